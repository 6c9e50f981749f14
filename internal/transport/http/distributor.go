package httptransport

import (
	"mime"
	"net/http"

	"vanu-marketplace/internal/common/errors"
	"vanu-marketplace/internal/distributor"
	"vanu-marketplace/internal/models"

	"github.com/go-chi/chi/v5"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, loginSchema, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	session, err := s.svc.Distributor.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := s.svc.Distributor.Dashboard(r.Context(), userID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleDistributorOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.svc.Distributor.Orders(r.Context(), userID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"orders": orders})
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var cart distributor.Cart
	if err := decodeJSON(r, cartSchema, &cart); err != nil {
		s.writeError(w, r, err)
		return
	}
	order, err := s.svc.Distributor.PlaceOrder(r.Context(), userID(r), cart)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (s *Server) handleCancellation(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if err := s.svc.Distributor.RequestCancellation(r.Context(), userID(r), orderID); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"orderId": orderID,
		"status":  models.OrderStatusCancellationRequested,
	})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.svc.Distributor.Profile(r.Context(), userID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleUpdateProfile accepts either a JSON body or a multipart form whose
// optional "avatar" part replaces the profile picture.
func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	update, avatar, err := s.parseProfileUpdate(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.svc.Distributor.UpdateProfile(r.Context(), userID(r), update, avatar)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) parseProfileUpdate(w http.ResponseWriter, r *http.Request) (models.ProfileUpdate, []byte, error) {
	var update models.ProfileUpdate
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		err := decodeJSON(r, profileSchema, &update)
		return update, nil, err
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.opts.MultipartMemoryBytes); err != nil {
		return update, nil, errors.NewValidationError("invalid multipart body: " + err.Error())
	}
	defer removeMultipartFiles(r, s.logger)
	set := func(key string) *string {
		if vals, ok := r.MultipartForm.Value[key]; ok && len(vals) > 0 {
			v := vals[0]
			return &v
		}
		return nil
	}
	update.FirstName = set("firstName")
	update.LastName = set("lastName")
	update.Phone = set("phone")
	update.Gender = set("gender")

	var avatar []byte
	if headers := r.MultipartForm.File["avatar"]; len(headers) > 0 {
		data, err := readPart(headers[0])
		if err != nil {
			return update, nil, errors.NewValidationError("unreadable avatar")
		}
		avatar = data
	}
	return update, avatar, nil
}
