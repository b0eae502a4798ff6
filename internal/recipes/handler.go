package recipes

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/rbac"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Handler wires HTTP endpoints for recipes.
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

// MountRoutes registers recipe routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermRecipesView, rbac.PermRecipesManage))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.PermRecipesManage))
		r.Post("/", h.create)
		r.Put("/{id}", h.update)
		r.Delete("/{id}", h.delete)
		r.Post("/{id}/ingredients", h.addIngredients)
		r.Delete("/{id}/ingredients/{ingredientID}", h.removeIngredient)
		r.Post("/{id}/recompute", h.recompute)
	})
}

type ingredientRequest struct {
	StockItemID int64            `json:"stock_item_id" validate:"required,gt=0"`
	Quantity    decimal.Decimal  `json:"quantity" validate:"dgt0,dplaces=3"`
	UnitPrice   *decimal.Decimal `json:"unit_price,omitempty" validate:"omitempty,dgte0,dplaces=2"`
}

type createRequest struct {
	Name             string              `json:"name" validate:"required,max=100"`
	Category         string              `json:"category" validate:"required,max=50"`
	Description      string              `json:"description"`
	ProfitPercentage *decimal.Decimal    `json:"profit_percentage,omitempty" validate:"omitempty,dgte0,dplaces=2"`
	Ingredients      []ingredientRequest `json:"ingredients" validate:"dive"`
}

type updateRequest struct {
	Name             string          `json:"name" validate:"required,max=100"`
	Category         string          `json:"category" validate:"required,max=50"`
	Description      string          `json:"description"`
	ProfitPercentage decimal.Decimal `json:"profit_percentage" validate:"dgte0,dplaces=2"`
}

type ingredientsRequest struct {
	Ingredients []ingredientRequest `json:"ingredients" validate:"required,min=1,dive"`
}

func toInputs(reqs []ingredientRequest) []IngredientInput {
	out := make([]IngredientInput, 0, len(reqs))
	for _, req := range reqs {
		out = append(out, IngredientInput(req))
	}
	return out
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
	recipes, err := h.service.List(r.Context(), ListFilter{From: from, Period: period})
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"recipes": recipes})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rec, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
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
	rec, err := h.service.Create(r.Context(), CreateInput{
		Name:             req.Name,
		Category:         req.Category,
		Description:      req.Description,
		ProfitPercentage: req.ProfitPercentage,
		Ingredients:      toInputs(req.Ingredients),
	})
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.Created(w, httpx.Location("/recipes", rec.ID), rec)
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
	rec, err := h.service.Update(r.Context(), UpdateInput{
		ID:               id,
		Name:             req.Name,
		Category:         req.Category,
		Description:      req.Description,
		ProfitPercentage: req.ProfitPercentage,
	})
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) addIngredients(w http.ResponseWriter, r *http.Request) {
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
	rec, err := h.service.AddIngredients(r.Context(), id, toInputs(req.Ingredients))
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) removeIngredient(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	ingredientID, err := httpx.IDParam(r, "ingredientID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rec, err := h.service.RemoveIngredient(r.Context(), id, ingredientID)
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) recompute(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rec, err := h.service.Recalculate(r.Context(), id)
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}
