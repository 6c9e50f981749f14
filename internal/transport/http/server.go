// Package httptransport is the JSON/HTTP and websocket surface of the
// marketplace. Handlers only decode, delegate and encode.
package httptransport

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"vanu-marketplace/internal/admin"
	"vanu-marketplace/internal/common/auth"
	"vanu-marketplace/internal/common/errors"
	"vanu-marketplace/internal/common/logger"
	"vanu-marketplace/internal/distributor"
	"vanu-marketplace/internal/models"
	"vanu-marketplace/internal/store/feed"
	"vanu-marketplace/internal/submission"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Submitter interface {
	Submit(ctx context.Context, v *submission.Variant, form *submission.Form) (*submission.Result, error)
}

type PaymentDesk interface {
	SubmitDraft(ctx context.Context, v *submission.Variant, form *submission.Form) (string, error)
	ConfirmPayment(ctx context.Context, v *submission.Variant, id, utr string) (*submission.Result, error)
}

type Catalog interface {
	FeaturedProducts(ctx context.Context) ([]models.Product, error)
	SearchProducts(ctx context.Context, term string) ([]models.Product, error)
	Slides(ctx context.Context) ([]models.Slide, error)
}

type Distributor interface {
	Login(ctx context.Context, email, password string) (*distributor.Session, error)
	Authorize(ctx context.Context, uid string) error
	Dashboard(ctx context.Context, uid string) (*distributor.Dashboard, error)
	Orders(ctx context.Context, uid string) ([]models.Order, error)
	RequestCancellation(ctx context.Context, uid, orderID string) error
	PlaceOrder(ctx context.Context, uid string, cart distributor.Cart) (*models.Order, error)
	Profile(ctx context.Context, uid string) (*models.UserProfile, error)
	UpdateProfile(ctx context.Context, uid string, update models.ProfileUpdate, avatar []byte) (*models.UserProfile, error)
}

type Admin interface {
	SearchApplications(ctx context.Context, collection, term string) ([]map[string]interface{}, error)
	ListUsers(ctx context.Context, term string) ([]models.UserProfile, error)
	UpdateUserStatus(ctx context.Context, userID, status string) error
	ApproveUser(ctx context.Context, userID string) error
	ListOrders(ctx context.Context, status, term string) ([]models.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID, status string) error
	SubscribeApplications(ctx context.Context, collection string, fn func([]map[string]interface{})) (feed.Unsubscriber, error)
	SubscribeUsers(ctx context.Context, fn func([]models.UserProfile)) (feed.Unsubscriber, error)
	SubscribeOrders(ctx context.Context, fn func([]models.Order)) (feed.Unsubscriber, error)
}

type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*auth.TokenInfo, error)
}

var (
	_ Submitter   = (*submission.Workflow)(nil)
	_ PaymentDesk = (*submission.PaymentDesk)(nil)
	_ Distributor = (*distributor.Service)(nil)
	_ Admin       = (*admin.Service)(nil)
)

// Services groups the domain services behind the routes.
type Services struct {
	Applications Submitter
	Payments     PaymentDesk
	Catalog      Catalog
	Distributor  Distributor
	Admin        Admin
}

// ReadinessCheck reports whether a dependency is usable.
type ReadinessCheck func(ctx context.Context) error

type Options struct {
	AdminRole      string
	TokenCacheTTL  time.Duration
	MaxUploadBytes int64
	// MultipartMemoryBytes is how much of an upload is held in memory while
	// parsing; larger file parts spill to temporary files.
	MultipartMemoryBytes int64
	RequestTimeout       time.Duration
	Heartbeat            time.Duration
	Readiness            map[string]ReadinessCheck
}

type Server struct {
	svc    Services
	tokens *tokenCache
	opts   Options
	logger logger.Logger
	now    func() time.Time
}

func NewServer(svc Services, validator TokenValidator, opts Options, log logger.Logger) *Server {
	if opts.AdminRole == "" {
		opts.AdminRole = "admin"
	}
	if opts.TokenCacheTTL <= 0 {
		opts.TokenCacheTTL = time.Minute
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 20 << 20
	}
	if opts.MultipartMemoryBytes <= 0 || opts.MultipartMemoryBytes > opts.MaxUploadBytes {
		opts.MultipartMemoryBytes = min(8<<20, opts.MaxUploadBytes)
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = 30 * time.Second
	}
	log = log.WithFields(map[string]interface{}{"component": "http"})
	return &Server{
		svc:    svc,
		tokens: newTokenCache(validator, opts.TokenCacheTTL),
		opts:   opts,
		logger: log,
		now:    time.Now,
	}
}

// Router builds the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Handle("/metrics", promhttp.Handler())

	// websocket connections outlive the request timeout
	r.With(s.requireAuth, s.requireRole(s.opts.AdminRole)).Get("/api/realtime", s.handleRealtime)

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(s.opts.RequestTimeout))

		r.Route("/api/applications", func(r chi.Router) {
			r.Post("/{variant}/proceed", s.handleProceed)
			r.Post("/{variant}", s.handleSubmitApplication)
		})
		r.Route("/api/kisan-card/applications", func(r chi.Router) {
			r.Post("/", s.handleKisanDraft)
			r.Post("/{id}/payment", s.handleKisanPayment)
		})

		r.Route("/api/catalog", func(r chi.Router) {
			r.Get("/featured", s.handleFeatured)
			r.Get("/search", s.handleSearchProducts)
			r.Get("/slides", s.handleSlides)
		})

		r.Route("/api/distributor", func(r chi.Router) {
			r.Post("/login", s.handleLogin)
			r.Group(func(r chi.Router) {
				r.Use(s.requireAuth)
				r.Use(s.requireStockist)
				r.Get("/dashboard", s.handleDashboard)
				r.Get("/orders", s.handleDistributorOrders)
				r.Post("/orders", s.handlePlaceOrder)
				r.Post("/orders/{id}/cancellation", s.handleCancellation)
				r.Get("/profile", s.handleProfile)
				r.Put("/profile", s.handleUpdateProfile)
			})
		})

		r.Route("/api/admin", func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Use(s.requireRole(s.opts.AdminRole))
			r.Get("/applications/{collection}", s.handleAdminApplications)
			r.Get("/users", s.handleAdminUsers)
			r.Patch("/users/{id}/status", s.handleAdminUserStatus)
			r.Post("/users/{id}/approve", s.handleAdminApprove)
			r.Get("/orders", s.handleAdminOrders)
			r.Patch("/orders/{id}/status", s.handleAdminOrderStatus)
		})
	})

	return r
}

// ==========================
// Health
// ==========================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   s.now().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]string{}
	status := http.StatusOK
	for name, check := range s.opts.Readiness {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not ready"
	}
	writeJSON(w, status, map[string]interface{}{
		"status": state,
		"checks": checks,
		"time":   s.now().Format(time.RFC3339),
	})
}

// ==========================
// Encoding
// ==========================

type errorBody struct {
	Code     string                 `json:"code"`
	Message  string                 `json:"message"`
	Details  string                 `json:"details,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err as {"error": {...}} with the status its code maps to.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	se := errors.AsStandardError(err)
	status := errors.HTTPStatus(se.Code)

	fields := map[string]interface{}{
		"path":      r.URL.Path,
		"status":    status,
		"code":      string(se.Code),
		"requestId": chimiddleware.GetReqID(r.Context()),
	}
	if status >= http.StatusInternalServerError {
		fields["error"] = err.Error()
		s.logger.Error("request failed", fields)
	} else {
		s.logger.Debug("request rejected", fields)
	}

	body := errorBody{Code: string(se.Code), Message: se.Message, Details: se.Details, Metadata: se.Metadata}
	if status >= http.StatusInternalServerError {
		body.Details = ""
	}
	writeJSON(w, status, map[string]interface{}{"error": body})
}
