package menu

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/rbac"
)

// Handler wires HTTP endpoints for the menu.
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

// MountRoutes registers menu routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermMenuView, rbac.PermMenuManage))
		r.Get("/items", h.list)
		r.Get("/items/{id}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.PermMenuManage))
		r.Post("/items", h.create)
		r.Put("/items/{id}", h.update)
		r.Delete("/items/{id}", h.delete)
		r.Put("/items/{id}/ingredients", h.setIngredients)
	})
}

type ingredientRequest struct {
	StockItemID int64           `json:"stock_item_id" validate:"required,gt=0"`
	Quantity    decimal.Decimal `json:"quantity" validate:"dgt0,dplaces=3"`
}

type createRequest struct {
	Name        string              `json:"name" validate:"required,max=100"`
	Category    string              `json:"category" validate:"max=50"`
	Price       decimal.Decimal     `json:"price" validate:"dgt0,dplaces=2"`
	Ingredients []ingredientRequest `json:"ingredients" validate:"dive"`
}

type updateRequest struct {
	Name     string           `json:"name" validate:"required,max=100"`
	Category string           `json:"category" validate:"max=50"`
	Price    *decimal.Decimal `json:"price,omitempty" validate:"omitempty,dgt0,dplaces=2"`
}

type ingredientsRequest struct {
	Ingredients []ingredientRequest `json:"ingredients" validate:"dive"`
}

func toLines(reqs []ingredientRequest) []IngredientLine {
	lines := make([]IngredientLine, 0, len(reqs))
	for _, req := range reqs {
		lines = append(lines, IngredientLine(req))
	}
	return lines
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.List(r.Context())
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
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
	item, err := h.service.CreateItem(r.Context(), CreateItemInput{
		Name:        req.Name,
		Category:    req.Category,
		Price:       req.Price,
		Ingredients: toLines(req.Ingredients),
	})
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.Created(w, httpx.Location("/menu/items", item.ID), item)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req updateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if fields := h.validator.Struct(req); len(fields) > 0 {
		httpx.ValidationProblem(w, fields)
		return
	}
	item, err := h.service.UpdateItem(r.Context(), UpdateItemInput{ID: id, Name: req.Name, Category: req.Category, Price: req.Price})
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteItem(r.Context(), id); err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) setIngredients(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req ingredientsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if fields := h.validator.Struct(req); len(fields) > 0 {
		httpx.ValidationProblem(w, fields)
		return
	}
	item, err := h.service.SetIngredients(r.Context(), id, toLines(req.Ingredients))
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}
