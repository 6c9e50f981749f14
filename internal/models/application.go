package models

// Application collections
const (
	CollectionDistrictApplications  = "district-stock-point-applications"
	CollectionBlockApplications     = "block-stock-point-applications"
	CollectionPanchayatApplications = "panchayat-stock-point-applications"
	CollectionKisanCardApplications = "kisan-jaivik-card-applications"
)

// ApplicationCollections lists every collection an application may live in.
var ApplicationCollections = []string{
	CollectionDistrictApplications,
	CollectionBlockApplications,
	CollectionPanchayatApplications,
	CollectionKisanCardApplications,
}

// IsApplicationCollection reports whether name is a known application collection.
func IsApplicationCollection(name string) bool {
	for _, c := range ApplicationCollections {
		if c == name {
			return true
		}
	}
	return false
}

// Application statuses
const (
	ApplicationStatusReceived       = "Received"
	ApplicationStatusPaymentPending = "payment_pending"
)

// Application is a submitted form. Form fields are variant specific, so the
// record is kept as a document; the typed fields below are the ones every
// variant writes.
type Application map[string]interface{}

// Well-known application fields
const (
	FieldUserID        = "userId"
	FieldStatus        = "status"
	FieldSubmittedAt   = "submittedAt"
	FieldPhotoURL      = "photoUrl"
	FieldAadharURL     = "aadharUrl"
	FieldPanURL        = "panUrl"
	FieldPaymentID     = "paymentId"
	FieldPaymentMethod = "paymentMethod"
	FieldPassword      = "password"
)

func (a Application) String(field string) string {
	if v, ok := a[field].(string); ok {
		return v
	}
	return ""
}

// ApplicantName returns the name field used by the variant's form.
func (a Application) ApplicantName() string {
	if n := a.String("applicantName"); n != "" {
		return n
	}
	return a.String("name")
}

// Mobile returns the contact number used by the variant's form.
func (a Application) Mobile() string {
	if m := a.String("mobileNo"); m != "" {
		return m
	}
	return a.String("mobile")
}

// ApplicationReceivedMessage is published to the onboarding process after a
// successful submission.
const ApplicationReceivedMessage = "application-received"

// Attachment is an uploaded file held with a form until submission.
type Attachment struct {
	Name        string `json:"name"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType,omitempty"`
	Data        []byte `json:"data"`
}
