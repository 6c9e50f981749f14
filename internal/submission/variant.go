// Package submission runs the application submission workflow shared by
// the stock-point forms and the kisan jaivik card form.
package submission

import (
	"fmt"
	"sort"
	"strings"

	"vanu-marketplace/internal/models"
)

// Asset is a required attachment. It is stored at
// <collection>/<owner>/<Type>-<filename> and its URL recorded as <Type>Url.
type Asset struct {
	Field string
	Type  string
}

func (a Asset) URLField() string { return a.Type + "Url" }

// Variant configures one application form.
type Variant struct {
	Name              string
	Collection        string
	RoleTag           string
	Level             string
	RequiredFields    []string
	RequiredDocuments []string
	OptionalFields    []string
	OptionalFlags     []string
	Defaults          map[string]string
	TermsText         string
	Assets            []Asset
	InitialStatus     string
	ProvisionIdentity bool
}

var stockPointFields = []string{
	"applicantName", "gender", "dob", "qualification", "fatherName", "motherName",
	"panNo", "aadharNo", "mobileNo", "email", "password", "village", "post", "panchayatName",
	"policeStation", "blockName", "pinCode", "district", "state",
}

var stockPointDocuments = []string{"docPan", "docAadhar", "docPassbook", "docPhoto", "docQualification"}

// StockPointFlags are every checklist flag the stock-point forms carry,
// including the optional cancelled cheque.
var StockPointFlags = append([]string{"docCancelCheque"}, stockPointDocuments...)

const stockPointAffidavit = "I, {{applicantName}}, S/o {{fatherName}}, Aged about {{age}}, Resident of {{village}} " +
	"do hereby solemnly affirm and declare that I am authorized {{level}} level stockist of VANU ORGANIC PVT. LTD. " +
	"A company incorporated under the companies Act, 2013 and undertake that I will fully abide by the norms and " +
	"regulations of the company and will not do any activities which will harm the goodwill and reputation of the " +
	"company in its market, and I will be fully responsible for any unlawful activities done by me against the " +
	"company norms and the company will not be liable for the same in any manner."

func stockPoint(name, level, collection string) *Variant {
	return &Variant{
		Name:              name,
		Collection:        collection,
		RoleTag:           models.RoleStockist,
		Level:             level,
		RequiredFields:    stockPointFields,
		RequiredDocuments: stockPointDocuments,
		OptionalFields:    []string{"whatsappNo", "nationality"},
		OptionalFlags:     []string{"docCancelCheque"},
		Defaults:          map[string]string{"nationality": "INDIAN"},
		TermsText:         stockPointAffidavit,
		Assets:            []Asset{{Field: "photoFile", Type: "photo"}},
		InitialStatus:     models.ApplicationStatusReceived,
		ProvisionIdentity: true,
	}
}

func (v *Variant) acceptsField(name string) bool {
	if _, ok := v.Defaults[name]; ok {
		return true
	}
	return contains(v.RequiredFields, name) || contains(v.OptionalFields, name)
}

func (v *Variant) acceptsFlag(name string) bool {
	return contains(v.RequiredDocuments, name) || contains(v.OptionalFlags, name)
}

func contains(list []string, name string) bool {
	for _, s := range list {
		if s == name {
			return true
		}
	}
	return false
}

// Variant names
const (
	VariantDistrict  = "district"
	VariantBlock     = "block"
	VariantPanchayat = "panchayat"
	VariantKisanCard = "kisan-card"
)

var variants = map[string]*Variant{
	VariantDistrict:  stockPoint(VariantDistrict, "district", models.CollectionDistrictApplications),
	VariantBlock:     stockPoint(VariantBlock, "block", models.CollectionBlockApplications),
	VariantPanchayat: stockPoint(VariantPanchayat, "panchayat", models.CollectionPanchayatApplications),
	VariantKisanCard: {
		Name:       VariantKisanCard,
		Collection: models.CollectionKisanCardApplications,
		RequiredFields: []string{
			"name", "fatherName", "dob", "aadharNo", "panNo", "mobile",
			"village", "panchayat", "block", "district", "pinCode", "state",
		},
		Assets: []Asset{
			{Field: "photoFile", Type: "photo"},
			{Field: "aadharFile", Type: "aadhar"},
			{Field: "panFile", Type: "pan"},
		},
		InitialStatus: models.ApplicationStatusPaymentPending,
	},
}

// Lookup returns the variant registered under name.
func Lookup(name string) (*Variant, error) {
	v, ok := variants[name]
	if !ok {
		return nil, fmt.Errorf("unknown application variant %q", name)
	}
	return v, nil
}

// VariantNames lists the registered variants in sorted order.
func VariantNames() []string {
	names := make([]string, 0, len(variants))
	for n := range variants {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// PaymentGated reports whether the variant goes through payment confirmation.
func (v *Variant) PaymentGated() bool {
	return v.InitialStatus == models.ApplicationStatusPaymentPending
}

// assetPath is the blob path of an attachment.
func (v *Variant) assetPath(owner string, a Asset, filename string) string {
	return fmt.Sprintf("%s/%s/%s-%s", v.Collection, owner, a.Type, strings.TrimSpace(filename))
}
