package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/jonwraymond/todos/auth"
	"github.com/jonwraymond/todos/observe"
)

// requestIDHeader carries the request id in and out.
const requestIDHeader = "X-Request-ID"

func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(observe.WithRequestID(r.Context(), id)))
	})
}

// withCORS answers preflights and sets the CORS headers on every response.
// A "*" entry allows any origin without credentials; listed origins are
// echoed back with credentials allowed.
func withCORS(allowed []string) func(http.Handler) http.Handler {
	trim := func(s string) string { return strings.TrimRight(strings.TrimSpace(s), "/") }
	list := make([]string, len(allowed))
	wildcard := false
	for i, a := range allowed {
		list[i] = trim(a)
		wildcard = wildcard || list[i] == "*"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := trim(r.Header.Get("Origin"))
			allow := ""
			switch {
			case wildcard:
				allow = "*"
			default:
				for _, a := range list {
					if origin != "" && strings.EqualFold(origin, a) {
						allow = origin
						break
					}
				}
			}

			h := w.Header()
			h.Add("Vary", "Origin")
			if allow != "" {
				h.Set("Access-Control-Allow-Origin", allow)
				if allow != "*" {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
				h.Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
				h.Set("Access-Control-Expose-Headers", "X-Request-ID, WWW-Authenticate")
				h.Set("Access-Control-Max-Age", "600")
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func withRecover(log observe.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					WriteError(r.Context(), w, log, ErrInternal.WithCause(fmt.Errorf("panic: %v", rec)))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// Authorizer decides on an Authorization header value.
type Authorizer interface {
	Authorize(ctx context.Context, header string) auth.Decision
}

// requireAuth dispatches to next only on Allow, with the identity in the
// request context. Every Deny is a 401 with a generic body.
func requireAuth(gate Authorizer, log observe.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := gate.Authorize(r.Context(), r.Header.Get("Authorization"))
			if !d.Allowed() || d.Identity == nil {
				WriteError(r.Context(), w, log, ErrUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), d.Identity)))
		})
	}
}
