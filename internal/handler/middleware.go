package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"

	"github.com/Shivanand-hulikatti/event-admission/internal/logger"
	"github.com/Shivanand-hulikatti/event-admission/internal/metrics"
	"github.com/Shivanand-hulikatti/event-admission/internal/model"
)

type actorKey struct{}

// WithActor stores the authenticated caller on ctx.
func WithActor(ctx context.Context, a model.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// actorFrom returns the caller, or the zero Actor for anonymous requests.
func actorFrom(ctx context.Context) model.Actor {
	a, _ := ctx.Value(actorKey{}).(model.Actor)
	return a
}

// Claims are the identity-service token claims. Subject is the user id.
type Claims struct {
	jwt.RegisteredClaims
	Role model.Role `json:"role"`
}

// Authenticator verifies HS256 bearer tokens issued by the identity service.
type Authenticator struct {
	secret []byte
	issuer string
}

// NewAuthenticator verifies tokens signed with secret. An empty issuer
// skips the iss check.
func NewAuthenticator(secret, issuer string) *Authenticator {
	return &Authenticator{secret: []byte(secret), issuer: issuer}
}

var errNoToken = errors.New("missing bearer token")

// Actor parses the Authorization header into an Actor.
func (a *Authenticator) Actor(r *http.Request) (model.Actor, error) {
	header := r.Header.Get("Authorization")
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return model.Actor{}, errNoToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	var claims Claims
	if _, err := jwt.ParseWithClaims(strings.TrimSpace(raw), &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...); err != nil {
		return model.Actor{}, err
	}
	if claims.Subject == "" {
		return model.Actor{}, errors.New("token has no subject")
	}

	role := claims.Role
	switch role {
	case "":
		role = model.RoleMember
	case model.RoleMember, model.RoleOfficer, model.RoleAdmin:
	default:
		return model.Actor{}, errors.New("token has unknown role")
	}
	return model.Actor{UserID: claims.Subject, Role: role}, nil
}

// Required rejects requests without a valid token.
func (a *Authenticator) Required(next http.Handler) http.Handler {
	return a.middleware(next, true)
}

// Optional lets anonymous requests through but still rejects bad tokens.
func (a *Authenticator) Optional(next http.Handler) http.Handler {
	return a.middleware(next, false)
}

func (a *Authenticator) middleware(next http.Handler, required bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, err := a.Actor(r)
		switch {
		case errors.Is(err, errNoToken) && !required:
			next.ServeHTTP(w, r)
			return
		case err != nil:
			w.Header().Set("WWW-Authenticate", `Bearer realm="admission"`)
			writeError(w, http.StatusUnauthorized, "unauthenticated", "invalid credentials: "+err.Error())
			return
		}

		ctx := WithActor(r.Context(), actor)
		ctx = logger.WithUserID(ctx, actor.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Logger writes one structured access-log line per request.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		fields := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status_code", ww.Status(),
			"bytes", ww.BytesWritten(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", r.RemoteAddr,
		}
		log := logger.WithContext(r.Context())
		if ww.Status() >= http.StatusInternalServerError {
			log.Error("request completed with error", fields...)
			return
		}
		log.Info("request completed", fields...)
	})
}

// Instrument records request latency under the matched chi route pattern so
// path parameters do not explode label cardinality.
func Instrument(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			m.ObserveHTTP(r.Method, route, ww.Status(), time.Since(start))
		})
	}
}

// CORS answers preflights and sets allow headers for the configured origins.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	allowAll := false
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origin = strings.TrimSpace(origin)
		switch origin {
		case "":
		case "*":
			allowAll = true
		default:
			allowed[origin] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			_, ok := allowed[origin]
			if !allowAll && !ok {
				next.ServeHTTP(w, r)
				return
			}

			if allowAll {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
