package rbac

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// RequireAny ensures the current actor has at least one of the required permissions.
func (m Middleware) RequireAny(perms ...Permission) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return m.guard(normalized, func(role Role) bool {
		for _, p := range normalized {
			if m.Service.Can(role, p) {
				return true
			}
		}
		return len(normalized) == 0
	})
}

// RequireAll ensures the current actor has all required permissions.
func (m Middleware) RequireAll(perms ...Permission) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return m.guard(normalized, func(role Role) bool {
		for _, p := range normalized {
			if !m.Service.Can(role, p) {
				return false
			}
		}
		return true
	})
}

func (m Middleware) guard(perms []Permission, allowed func(Role) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := shared.ActorFromContext(r.Context())
			if actor == nil {
				httpx.RespondError(w, shared.ErrUnauthenticated)
				return
			}
			role, ok := ParseRole(actor.Role)
			if !ok {
				if m.Logger != nil {
					m.Logger.Warn("rbac unknown role", slog.String("role", actor.Role), slog.Int64("actor_id", actor.UserID))
				}
				httpx.RespondError(w, shared.ErrAuthorization)
				return
			}
			if !allowed(role) {
				if m.Logger != nil {
					m.Logger.Info("rbac denied",
						slog.String("role", string(role)),
						slog.String("required", strings.Join(perms, ",")),
						slog.String("path", r.URL.Path))
				}
				httpx.RespondError(w, shared.ErrAuthorization)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func normalizePermissions(perms []Permission) []Permission {
	unique := make(map[string]struct{}, len(perms))
	normalized := make([]Permission, 0, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(strings.ToLower(p))
		if p == "" {
			continue
		}
		if _, seen := unique[p]; seen {
			continue
		}
		unique[p] = struct{}{}
		normalized = append(normalized, p)
	}
	return normalized
}
