package rbac

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// PermissionsHandler reports what the current actor may do.
type PermissionsHandler struct {
	service *Service
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(service *Service) *PermissionsHandler {
	return &PermissionsHandler{service: service}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Get("/permissions", h.mine)
}

type permissionsResponse struct {
	UserID      int64        `json:"user_id"`
	Role        Role         `json:"role"`
	Permissions []Permission `json:"permissions"`
}

func (h *PermissionsHandler) mine(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	if actor == nil {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	role, ok := ParseRole(actor.Role)
	if !ok {
		httpx.RespondError(w, shared.ErrAuthorization)
		return
	}
	httpx.JSON(w, http.StatusOK, permissionsResponse{
		UserID:      actor.UserID,
		Role:        role,
		Permissions: h.service.EffectivePermissions(role),
	})
}
