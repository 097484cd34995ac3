// Package restapi exposes the read-only Query API over HTTP, adapted
// directly from internal/server/rest: the same chi router skeleton
// (RequestID/RealIP/Recoverer middleware, /healthz, an optional RS256-JWT-
// guarded /api/v1 route group) now serves entity lookups instead of
// alerts/hosts/audit.
package restapi

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
)

// NewRouter returns a configured chi.Router for the Query API.
//
// Route layout:
//
//	GET /healthz                              – liveness probe (no authentication required)
//	GET /api/v1/entities/{class}               – list all, or filter by ?name=&value= (JWT required)
//	GET /api/v1/entities/{class}/{id}          – a single entity by id (JWT required)
//	GET /api/v1/entities/{class}/by-property   – ranged property lookup (JWT required)
//
// pubKey is the RSA public key used to verify RS256 Bearer tokens on all
// /api routes. Pass nil to disable JWT validation.
func NewRouter(srv *Server, pubKey *rsa.PublicKey) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", srv.handleHealthz)

	r.Route("/api/v1", func(r chi.Router) {
		if pubKey != nil {
			r.Use(jwtMiddleware(pubKey))
		}

		r.Get("/entities/{class}", srv.handleListOrFilter)
		r.Get("/entities/{class}/by-property", srv.handleByPropertyRange)
		r.Get("/entities/{class}/{id}", srv.handleGet)
	})

	return r
}

type contextKey int

const claimsKey contextKey = iota

// Claims extends the standard jwt.RegisteredClaims; this API needs no
// application-specific fields beyond what RS256 validation already gives
// us, but keeps the named type so a caller's own middleware stack can
// extend it without touching jwtMiddleware.
type Claims struct {
	jwt.RegisteredClaims
}

// jwtMiddleware returns an HTTP middleware that validates RS256 Bearer
// tokens. On success the parsed Claims are stored in the request context;
// on any validation failure it responds 401 and does not call next.
func jwtMiddleware(pubKey *rsa.PublicKey) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, "missing Authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				writeError(w, http.StatusUnauthorized, "Authorization header must be Bearer token")
				return
			}
			tokenStr := parts[1]

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
					return nil, errors.New("unexpected signing method")
				}
				return pubKey, nil
			}, jwt.WithValidMethods([]string{"RS256"}))

			if err != nil || !token.Valid {
				writeError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext retrieves the JWT claims stored in ctx by jwtMiddleware,
// or nil if none are present.
func ClaimsFromContext(ctx context.Context) *Claims {
	c, _ := ctx.Value(claimsKey).(*Claims)
	return c
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
