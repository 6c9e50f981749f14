package httptransport

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"vanu-marketplace/internal/common/auth"
	"vanu-marketplace/internal/common/errors"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	gocache "github.com/patrickmn/go-cache"
)

type principalKey struct{}

// PrincipalFrom returns the token claims set by requireAuth.
func PrincipalFrom(ctx context.Context) *auth.TokenInfo {
	p, _ := ctx.Value(principalKey{}).(*auth.TokenInfo)
	return p
}

func userID(r *http.Request) string {
	if p := PrincipalFrom(r.Context()); p != nil {
		return p.Sub
	}
	return ""
}

// tokenCache memoizes introspection results, never past a token's expiry.
type tokenCache struct {
	validator TokenValidator
	cache     *gocache.Cache
	ttl       time.Duration
}

func newTokenCache(validator TokenValidator, ttl time.Duration) *tokenCache {
	return &tokenCache{
		validator: validator,
		cache:     gocache.New(ttl, 2*ttl),
		ttl:       ttl,
	}
}

func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (c *tokenCache) validate(ctx context.Context, token string) (*auth.TokenInfo, error) {
	key := tokenKey(token)
	if v, ok := c.cache.Get(key); ok {
		return v.(*auth.TokenInfo), nil
	}

	info, err := c.validator.ValidateToken(ctx, token)
	if err != nil {
		return nil, err
	}

	ttl := c.ttl
	if info.Exp > 0 {
		if left := time.Until(info.ExpiresAt()); left < ttl {
			ttl = left
		}
	}
	if ttl > 0 {
		c.cache.Set(key, info, ttl)
	}
	return info, nil
}

func bearerToken(r *http.Request) string {
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	// browsers cannot set headers on a websocket handshake
	if websocketUpgrade(r) {
		return r.URL.Query().Get("access_token")
	}
	return ""
}

func websocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			s.writeError(w, r, errors.NewUnauthenticatedError("missing bearer token"))
			return
		}
		info, err := s.tokens.validate(r.Context(), token)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), principalKey{}, info)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := PrincipalFrom(r.Context())
			if p == nil || !p.HasRole(role) {
				s.writeError(w, r, errors.NewAccessDeniedError("requires role "+role))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requireStockist re-applies the distributor login checks for the token's
// subject: an approved, non-suspended stockist profile.
func (s *Server) requireStockist(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.svc.Distributor.Authorize(r.Context(), userID(r)); err != nil {
			s.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("http request", map[string]interface{}{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"durationMs": time.Since(start).Milliseconds(),
			"requestId":  chimiddleware.GetReqID(r.Context()),
		})
	})
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			s.logger.Error("panic in handler", map[string]interface{}{
				"path":  r.URL.Path,
				"panic": fmt.Sprint(rec),
				"stack": string(debug.Stack()),
			})
			s.writeError(w, r, errors.NewInternalError(fmt.Errorf("panic: %v", rec)))
		}()
		next.ServeHTTP(w, r)
	})
}
