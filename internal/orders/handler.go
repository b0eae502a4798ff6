package orders

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/rbac"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// IdempotencyHeader carries the client's replay-protection key.
const IdempotencyHeader = "Idempotency-Key"

// Handler wires HTTP endpoints for orders.
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

// MountRoutes registers order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermOrdersView))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
	})
	r.With(h.rbac.RequireAll(rbac.PermOrdersPlace)).Post("/", h.place)
	r.With(h.rbac.RequireAll(rbac.PermOrdersUpdate)).Post("/{id}/transitions", h.transition)
}

type lineRequest struct {
	MenuItemID int64  `json:"menu_item_id" validate:"gte=0"`
	Name       string `json:"name" validate:"max=100"`
	Quantity   int    `json:"quantity" validate:"gte=1"`
}

type placeRequest struct {
	Customer string        `json:"customer" validate:"max=100"`
	TableID  *int64        `json:"table_id,omitempty" validate:"omitempty,gt=0"`
	Items    []lineRequest `json:"items" validate:"required,min=1,dive"`
}

type transitionRequest struct {
	Action string `json:"action" validate:"required,oneof=start ready cancel"`
}

type orderView struct {
	Order
	TimeTaken string `json:"time_taken,omitempty"`
}

func view(o Order) orderView {
	return orderView{Order: o, TimeTaken: o.TimeTaken()}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := shared.ParseDay(q.Get("from"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	period, err := shared.ParsePeriod(q.Get("period"), shared.PeriodWeekly)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	orders, err := h.service.List(r.Context(), ListFilter{
		Scope:  Scope(strings.ToLower(q.Get("scope"))),
		From:   from,
		Period: period,
	})
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	out := make([]orderView, 0, len(orders))
	for _, o := range orders {
		out = append(out, view(o))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"orders": out})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	o, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view(o))
}

func (h *Handler) place(w http.ResponseWriter, r *http.Request) {
	var req placeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if fields := h.validator.Struct(req); len(fields) > 0 {
		httpx.ValidationProblem(w, fields)
		return
	}
	input := PlaceInput{
		Customer:       req.Customer,
		TableID:        req.TableID,
		IdempotencyKey: r.Header.Get(IdempotencyHeader),
	}
	for _, line := range req.Items {
		input.Lines = append(input.Lines, CartLine(line))
	}
	o, err := h.service.PlaceOrder(r.Context(), input)
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.Created(w, httpx.Location("/orders", o.ID), view(o))
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req transitionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if fields := h.validator.Struct(req); len(fields) > 0 {
		httpx.ValidationProblem(w, fields)
		return
	}
	o, err := h.service.Transition(r.Context(), id, Action(req.Action))
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view(o))
}
