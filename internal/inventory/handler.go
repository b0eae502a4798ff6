package inventory

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/rbac"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Handler wires HTTP endpoints for inventory module.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *httpx.Validator
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, validator: httpx.NewValidator()}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermInventoryView, rbac.PermInventoryManage))
		r.Get("/items", h.listItems)
		r.Get("/items/{id}", h.getItem)
		r.Get("/history", h.listHistory)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.PermInventoryManage))
		r.Post("/items", h.createItem)
		r.Post("/items/{id}/adjust", h.adjust)
		r.Post("/items/{id}/restock", h.restock)
		r.Post("/items/{id}/consume", h.consume)
	})
}

type createItemRequest struct {
	Name      string          `json:"name" validate:"required,max=120"`
	Units     string          `json:"units" validate:"max=32"`
	Quantity  decimal.Decimal `json:"quantity" validate:"dgte0,dplaces=3"`
	UnitPrice decimal.Decimal `json:"unit_price" validate:"dgte0,dplaces=2"`
}

type adjustRequest struct {
	Quantity  decimal.Decimal  `json:"quantity" validate:"dgte0,dplaces=3"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty" validate:"omitempty,dgte0,dplaces=2"`
	Units     *string          `json:"units,omitempty" validate:"omitempty,max=32"`
	Reason    string           `json:"reason" validate:"max=255"`
}

type restockRequest struct {
	Quantity  decimal.Decimal `json:"quantity" validate:"dgt0,dplaces=3"`
	UnitPrice decimal.Decimal `json:"unit_price" validate:"dgte0,dplaces=2"`
	Reason    string          `json:"reason" validate:"max=255"`
}

type consumeRequest struct {
	Quantity decimal.Decimal `json:"quantity" validate:"dgt0,dplaces=3"`
	Reason   string          `json:"reason" validate:"max=255"`
}

type itemResponse struct {
	Item  StockItem     `json:"item"`
	Entry *HistoryEntry `json:"entry,omitempty"`
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListItems(r.Context())
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) getItem(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.GetItem(r.Context(), id)
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) listHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := HistoryFilter{Kind: ChangeKind(q.Get("kind"))}
	if raw := q.Get("item_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			httpx.RespondError(w, shared.Validationf("invalid item_id %q", raw))
			return
		}
		filter.ItemID = id
	}
	var err error
	if filter.From, err = shared.ParseDay(q.Get("from")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.To, err = shared.ParseDay(q.Get("to")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if !filter.To.IsZero() {
		// inclusive end day
		filter.To = filter.To.Add(24 * time.Hour)
	}
	entries, err := h.service.ListHistory(r.Context(), filter)
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) createItem(w http.ResponseWriter, r *http.Request) {
	var req createItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if fields := h.validator.Struct(req); len(fields) > 0 {
		httpx.ValidationProblem(w, fields)
		return
	}
	item, entry, err := h.service.CreateItem(r.Context(), CreateItemInput(req))
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.Created(w, httpx.Location("/inventory/items", item.ID), itemResponse{Item: item, Entry: &entry})
}

func (h *Handler) adjust(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req adjustRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if fields := h.validator.Struct(req); len(fields) > 0 {
		httpx.ValidationProblem(w, fields)
		return
	}
	item, entry, err := h.service.Adjust(r.Context(), AdjustInput{
		ItemID:    id,
		Quantity:  req.Quantity,
		UnitPrice: req.UnitPrice,
		Units:     req.Units,
		Reason:    req.Reason,
	})
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, itemResponse{Item: item, Entry: entry})
}

func (h *Handler) restock(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req restockRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if fields := h.validator.Struct(req); len(fields) > 0 {
		httpx.ValidationProblem(w, fields)
		return
	}
	item, entry, err := h.service.Restock(r.Context(), RestockInput{ItemID: id, Quantity: req.Quantity, UnitPrice: req.UnitPrice, Reason: req.Reason})
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, itemResponse{Item: item, Entry: &entry})
}

func (h *Handler) consume(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req consumeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if fields := h.validator.Struct(req); len(fields) > 0 {
		httpx.ValidationProblem(w, fields)
		return
	}
	entry, err := h.service.Consume(r.Context(), ConsumeInput{ItemID: id, Quantity: req.Quantity, Reason: req.Reason})
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}
