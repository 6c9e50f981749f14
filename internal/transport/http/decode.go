package httptransport

import (
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"vanu-marketplace/internal/common/errors"
	"vanu-marketplace/internal/common/logger"
	"vanu-marketplace/internal/common/validation"
	"vanu-marketplace/internal/submission"
)

var (
	proceedSchema = validation.MustCompile(`{
		"type": "object",
		"properties": {
			"fields": {"type": "object", "additionalProperties": {"type": "string"}},
			"flags":  {"type": "object", "additionalProperties": {"type": "boolean"}}
		},
		"required": ["fields"]
	}`)

	loginSchema = validation.MustCompile(`{
		"type": "object",
		"properties": {
			"email":    {"type": "string", "minLength": 3},
			"password": {"type": "string", "minLength": 1}
		},
		"required": ["email", "password"]
	}`)

	paymentSchema = validation.MustCompile(`{
		"type": "object",
		"properties": {"utr": {"type": "string"}}
	}`)

	statusSchema = validation.MustCompile(`{
		"type": "object",
		"properties": {"status": {"type": "string", "minLength": 1}},
		"required": ["status"]
	}`)

	cartSchema = validation.MustCompile(`{
		"type": "object",
		"properties": {
			"items": {
				"type": "array",
				"minItems": 1,
				"items": {
					"type": "object",
					"properties": {
						"id":       {"type": "string", "minLength": 1},
						"name":     {"type": "string"},
						"price":    {"type": "number", "minimum": 0},
						"quantity": {"type": "integer", "minimum": 1}
					},
					"required": ["id", "price", "quantity"]
				}
			},
			"shipping": {"type": "number", "minimum": 0},
			"fees": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {"name": {"type": "string"}, "value": {"type": "number"}},
					"required": ["name", "value"]
				}
			},
			"shippingAddress": {"type": "object"}
		},
		"required": ["items", "shippingAddress"]
	}`)

	profileSchema = validation.MustCompile(`{
		"type": "object",
		"properties": {
			"firstName": {"type": "string", "minLength": 1},
			"lastName":  {"type": "string"},
			"phone":     {"type": "string"},
			"gender":    {"type": "string", "enum": ["male", "female", "other"]}
		},
		"additionalProperties": false
	}`)
)

const maxJSONBody = 1 << 20

// decodeJSON reads a JSON body, validates it against schema and decodes it
// into out.
func decodeJSON(r *http.Request, schema *validation.Schema, out interface{}) error {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxJSONBody))
	if err != nil {
		return errors.NewValidationError("unreadable request body")
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return errors.NewValidationError("request body is not valid JSON")
	}
	if res := schema.Validate(doc); !res.Valid {
		se := errors.NewValidationError(strings.Join(res.GetErrorMessages(), "; "))
		if len(res.Errors) > 0 {
			se = se.WithMetadata("field", res.Errors[0].Field)
		}
		return se
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.NewValidationError(err.Error())
	}
	return nil
}

var formFlags = func() map[string]bool {
	m := map[string]bool{}
	for _, f := range submission.StockPointFlags {
		m[f] = true
	}
	return m
}()

// Multipart keys that steer the request rather than fill the form.
const fieldTermsAccepted = "termsAccepted"

func parseBool(v string) bool {
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return strings.EqualFold(v, "on") || strings.EqualFold(v, "yes")
}

// parseMultipartForm builds a submission form from a multipart body. Keys
// naming document checklist entries become flags; every file part is
// attached under its field name.
func (s *Server) parseMultipartForm(w http.ResponseWriter, r *http.Request) (*submission.Form, bool, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.opts.MultipartMemoryBytes); err != nil {
		return nil, false, errors.NewValidationError("invalid multipart body: " + err.Error())
	}
	// Every part is copied into the form before returning.
	defer removeMultipartFiles(r, s.logger)

	form := submission.NewForm()
	accepted := false
	for key, values := range r.MultipartForm.Value {
		if len(values) == 0 {
			continue
		}
		switch {
		case key == fieldTermsAccepted:
			accepted = parseBool(values[0])
		case formFlags[key]:
			form.SetFlag(key, parseBool(values[0]))
		default:
			form.SetField(key, values[0])
		}
	}

	for key, headers := range r.MultipartForm.File {
		if len(headers) == 0 {
			continue
		}
		data, err := readPart(headers[0])
		if err != nil {
			return nil, false, errors.NewValidationError("unreadable file " + key)
		}
		form.AttachFile(key, headers[0].Filename, data)
	}
	return form, accepted, nil
}

func removeMultipartFiles(r *http.Request, log logger.Logger) {
	if r.MultipartForm == nil {
		return
	}
	if err := r.MultipartForm.RemoveAll(); err != nil {
		log.Warn("failed to remove multipart temp files", map[string]interface{}{
			"path":  r.URL.Path,
			"error": err.Error(),
		})
	}
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
