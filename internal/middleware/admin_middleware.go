package middleware

import (
	"context"
	"net/http"
	"strings"

	"linknote-server/pkg/response"
)

type contextKey string

const AdminIdentityKey contextKey = "adminIdentity"

// AdminMiddleware admits requests whose identity header, set by the
// authenticating edge proxy, names an allowed identity. An empty allow list
// admits any identity the edge vouched for; config refuses that in production.
func AdminMiddleware(header string, allowed []string) func(http.Handler) http.Handler {
	allow := make(map[string]struct{}, len(allowed))
	for _, id := range allowed {
		if id = strings.ToLower(strings.TrimSpace(id)); id != "" {
			allow[id] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			identity := strings.TrimSpace(r.Header.Get(header))
			if identity == "" {
				response.Unauthorized(w, "Missing admin identity")
				return
			}

			if len(allow) > 0 {
				if _, ok := allow[strings.ToLower(identity)]; !ok {
					response.Forbidden(w, "Identity not allowed")
					return
				}
			}

			if h, ok := r.Context().Value(identityHolderKey).(*identityHolder); ok {
				h.identity = identity
			}

			ctx := context.WithValue(r.Context(), AdminIdentityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetAdminIdentity(r *http.Request) string {
	identity, ok := r.Context().Value(AdminIdentityKey).(string)
	if !ok {
		return ""
	}
	return identity
}
