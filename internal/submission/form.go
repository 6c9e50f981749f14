package submission

import (
	"fmt"
	"net/http"
	"strings"

	"vanu-marketplace/internal/common/errors"
	"vanu-marketplace/internal/models"
)

// Form holds the values of one application form. A Form belongs to a
// single submission and is not safe for concurrent use.
type Form struct {
	fields map[string]string
	flags  map[string]bool
	files  map[string]models.Attachment
}

func NewForm() *Form {
	return &Form{
		fields: map[string]string{},
		flags:  map[string]bool{},
		files:  map[string]models.Attachment{},
	}
}

func (f *Form) SetField(name, value string) { f.fields[name] = value }

func (f *Form) Field(name string) string { return f.fields[name] }

func (f *Form) SetFlag(name string, checked bool) { f.flags[name] = checked }

// AttachFile holds an uploaded file under name until submission.
func (f *Form) AttachFile(name, filename string, data []byte) {
	f.files[name] = models.Attachment{
		Name:        name,
		Filename:    filename,
		ContentType: http.DetectContentType(data),
		Data:        data,
	}
}

func (f *Form) File(name string) (models.Attachment, bool) {
	a, ok := f.files[name]
	return a, ok && len(a.Data) > 0
}

// ValidateRequired returns the first field in fields, in order, that is
// missing or blank.
func (f *Form) ValidateRequired(fields []string) (string, bool) {
	for _, name := range fields {
		if strings.TrimSpace(f.fields[name]) == "" {
			return name, false
		}
	}
	return "", true
}

// ValidateDocumentChecklist fails on the first flag that is not checked.
func (f *Form) ValidateDocumentChecklist(flags []string) error {
	for _, name := range flags {
		if !f.flags[name] {
			return errors.NewValidationError(fmt.Sprintf("document checklist item '%s' must be checked", name))
		}
	}
	return nil
}

// ValidateEntries checks the required fields and the document checklist of
// v. Files are not looked at.
func (f *Form) ValidateEntries(v *Variant) error {
	if missing, ok := f.ValidateRequired(v.RequiredFields); !ok {
		return errors.NewValidationError(fmt.Sprintf("Please fill in the '%s' field.", missing)).
			WithMetadata("field", missing)
	}
	return f.ValidateDocumentChecklist(v.RequiredDocuments)
}

// validateFor runs every check a variant needs before any external call.
func (f *Form) validateFor(v *Variant) error {
	if err := f.ValidateEntries(v); err != nil {
		return err
	}
	for _, a := range v.Assets {
		if _, ok := f.File(a.Field); !ok {
			return errors.NewValidationError(fmt.Sprintf("Please upload the required file '%s'.", a.Field)).
				WithMetadata("field", a.Field)
		}
	}
	return nil
}

// Data returns the form fields and checklist flags v accepts as an
// application document, with variant defaults filled in for blank fields.
// Keys v does not name are dropped.
func (f *Form) Data(v *Variant) models.Application {
	app := make(models.Application, len(v.RequiredFields)+len(v.Defaults))
	for k, val := range v.Defaults {
		app[k] = val
	}
	for k, val := range f.fields {
		if !v.acceptsField(k) {
			continue
		}
		if val == "" {
			if _, hasDefault := v.Defaults[k]; hasDefault {
				continue
			}
		}
		app[k] = val
	}
	for k, val := range f.flags {
		if v.acceptsFlag(k) {
			app[k] = val
		}
	}
	return app
}
