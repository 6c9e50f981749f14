package submission

import (
	"context"
	"strconv"
	"strings"
	"time"

	"vanu-marketplace/internal/common/errors"
)

// Pipeline runs a validated, agreed submission.
type Pipeline interface {
	Submit(ctx context.Context, v *Variant, form *Form) (*Result, error)
}

type gateState int

const (
	gateEditing gateState = iota
	gateAwaitingAgreement
	gateSubmitted
)

// Gate holds a form back from submission until the applicant has seen and
// accepted the variant's terms.
type Gate struct {
	variant  *Variant
	form     *Form
	pipeline Pipeline
	state    gateState
	now      func() time.Time
}

func NewGate(v *Variant, form *Form, pipeline Pipeline) *Gate {
	return &Gate{variant: v, form: form, pipeline: pipeline, now: time.Now}
}

// AwaitingAgreement reports whether terms have been presented.
func (g *Gate) AwaitingAgreement() bool { return g.state == gateAwaitingAgreement }

// RequestProceed validates the form and returns the terms to agree to.
func (g *Gate) RequestProceed() (string, error) {
	if g.state == gateSubmitted {
		return "", errors.NewInvalidStateError("application already submitted")
	}
	if err := g.form.validateFor(g.variant); err != nil {
		return "", err
	}
	g.state = gateAwaitingAgreement
	return RenderTerms(g.variant, g.form, g.now()), nil
}

// ConfirmAgreement runs the submission once the applicant accepts. A
// refusal fails without touching any collaborator.
func (g *Gate) ConfirmAgreement(ctx context.Context, accepted bool) (*Result, error) {
	if !accepted {
		return nil, errors.NewAgreementRequiredError()
	}
	switch g.state {
	case gateEditing:
		return nil, errors.NewValidationError("terms must be reviewed before agreeing")
	case gateSubmitted:
		return nil, errors.NewInvalidStateError("application already submitted")
	}

	res, err := g.pipeline.Submit(ctx, g.variant, g.form)
	if err != nil {
		return nil, err
	}
	g.state = gateSubmitted
	return res, nil
}

const blank = "....................................."

// RenderTerms fills the variant's terms template from the form.
func RenderTerms(v *Variant, form *Form, now time.Time) string {
	if v.TermsText == "" {
		return ""
	}
	value := func(name string) string {
		if s := strings.TrimSpace(form.Field(name)); s != "" {
			return s
		}
		return blank
	}
	age := ".........."
	if dob, err := time.Parse("2006-01-02", form.Field("dob")); err == nil {
		age = strconv.Itoa(now.Year() - dob.Year())
	}
	r := strings.NewReplacer(
		"{{applicantName}}", value("applicantName"),
		"{{fatherName}}", value("fatherName"),
		"{{village}}", value("village"),
		"{{age}}", age,
		"{{level}}", v.Level,
	)
	return r.Replace(v.TermsText)
}
