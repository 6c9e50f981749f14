package httptransport

import "net/http"

func (s *Server) handleFeatured(w http.ResponseWriter, r *http.Request) {
	products, err := s.svc.Catalog.FeaturedProducts(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"products": products})
}

func (s *Server) handleSearchProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.svc.Catalog.SearchProducts(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"products": products})
}

func (s *Server) handleSlides(w http.ResponseWriter, r *http.Request) {
	slides, err := s.svc.Catalog.Slides(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"slides": slides})
}
