package httptransport

import (
	"net/http"

	"vanu-marketplace/internal/common/errors"
	"vanu-marketplace/internal/submission"

	"github.com/go-chi/chi/v5"
)

func lookupVariant(r *http.Request) (*submission.Variant, error) {
	name := chi.URLParam(r, "variant")
	v, err := submission.Lookup(name)
	if err != nil {
		return nil, errors.NewNotFoundError("application form", name)
	}
	return v, nil
}

type proceedRequest struct {
	Fields map[string]string `json:"fields"`
	Flags  map[string]bool   `json:"flags"`
}

// handleProceed validates a form without files and returns the terms the
// applicant has to accept.
func (s *Server) handleProceed(w http.ResponseWriter, r *http.Request) {
	v, err := lookupVariant(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req proceedRequest
	if err := decodeJSON(r, proceedSchema, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	form := submission.NewForm()
	for k, val := range req.Fields {
		form.SetField(k, val)
	}
	for k, checked := range req.Flags {
		form.SetFlag(k, checked)
	}

	if err := form.ValidateEntries(v); err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"variant": v.Name,
		"terms":   submission.RenderTerms(v, form, s.now()),
	})
}

// handleSubmitApplication runs a stock-point submission from a multipart
// form. termsAccepted must be true.
func (s *Server) handleSubmitApplication(w http.ResponseWriter, r *http.Request) {
	v, err := lookupVariant(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if v.PaymentGated() {
		s.writeError(w, r, errors.NewInvalidStateError(v.Name+" applications go through /api/kisan-card/applications"))
		return
	}

	form, accepted, err := s.parseMultipartForm(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	gate := submission.NewGate(v, form, s.svc.Applications)
	if _, err := gate.RequestProceed(); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := gate.ConfirmAgreement(r.Context(), accepted)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleKisanDraft(w http.ResponseWriter, r *http.Request) {
	v, err := submission.Lookup(submission.VariantKisanCard)
	if err != nil {
		s.writeError(w, r, errors.NewInternalError(err))
		return
	}
	form, _, err := s.parseMultipartForm(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	id, err := s.svc.Payments.SubmitDraft(r.Context(), v, form)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"applicationId": id,
		"status":        v.InitialStatus,
	})
}

type paymentRequest struct {
	UTR string `json:"utr"`
}

func (s *Server) handleKisanPayment(w http.ResponseWriter, r *http.Request) {
	v, err := submission.Lookup(submission.VariantKisanCard)
	if err != nil {
		s.writeError(w, r, errors.NewInternalError(err))
		return
	}
	var req paymentRequest
	if err := decodeJSON(r, paymentSchema, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.svc.Payments.ConfirmPayment(r.Context(), v, chi.URLParam(r, "id"), req.UTR)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
