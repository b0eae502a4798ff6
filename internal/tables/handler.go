package tables

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/rbac"
)

// Handler wires HTTP endpoints for tables.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *httpx.Validator
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, validator: httpx.NewValidator()}
}

// MountRoutes registers table routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAny(rbac.PermTablesView, rbac.PermTablesManage)).Get("/", h.list)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.PermTablesManage))
		r.Post("/", h.create)
		r.Put("/{id}/occupancy", h.setOccupancy)
	})
}

type createRequest struct {
	Name string `json:"name" validate:"required,max=64"`
}

type occupancyRequest struct {
	Occupied *bool `json:"occupied" validate:"required"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	tables, err := h.service.List(r.Context())
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"tables": tables})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if fields := h.validator.Struct(req); len(fields) > 0 {
		httpx.ValidationProblem(w, fields)
		return
	}
	table, err := h.service.Create(r.Context(), req.Name)
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.Created(w, httpx.Location("/tables", table.ID), table)
}

func (h *Handler) setOccupancy(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req occupancyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if fields := h.validator.Struct(req); len(fields) > 0 {
		httpx.ValidationProblem(w, fields)
		return
	}
	table, err := h.service.SetOccupied(r.Context(), id, *req.Occupied)
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, table)
}
