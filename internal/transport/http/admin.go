package httptransport

import (
	"net/http"

	"vanu-marketplace/internal/models"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleAdminApplications(w http.ResponseWriter, r *http.Request) {
	apps, err := s.svc.Admin.SearchApplications(r.Context(), chi.URLParam(r, "collection"), r.URL.Query().Get("q"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"applications": apps})
}

func (s *Server) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.svc.Admin.ListUsers(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"users": users})
}

type statusRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleAdminUserStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(r, statusSchema, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.svc.Admin.UpdateUserStatus(r.Context(), id, req.Status); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"userId": id, "status": req.Status})
}

func (s *Server) handleAdminApprove(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.svc.Admin.ApproveUser(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"userId": id, "status": models.UserStatusActive})
}

func (s *Server) handleAdminOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	orders, err := s.svc.Admin.ListOrders(r.Context(), q.Get("status"), q.Get("q"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"orders": orders})
}

func (s *Server) handleAdminOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(r, statusSchema, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.svc.Admin.UpdateOrderStatus(r.Context(), id, req.Status); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"orderId": id, "status": req.Status})
}
