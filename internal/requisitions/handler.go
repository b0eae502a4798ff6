package requisitions

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/rbac"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Handler wires HTTP endpoints for requisitions.
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

// MountRoutes registers requisition routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermRequisitionsCreate))
		r.Get("/", h.list)
		r.Get("/draft", h.draft)
		r.Post("/draft/items", h.addItem)
		r.Delete("/draft/items/{itemID}", h.removeItem)
		r.Post("/draft/submit", h.submitDraft)
		r.Get("/{id}", h.get)
		r.Post("/{id}/submit", h.submit)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermRequisitionsApprove))
		r.Get("/pending", h.pending)
		r.Post("/{id}/actions", h.act)
	})
}

type itemRequest struct {
	Name      string          `json:"item_name" validate:"required,max=100"`
	Units     string          `json:"units" validate:"max=20"`
	Quantity  decimal.Decimal `json:"quantity" validate:"dgt0,dplaces=3"`
	UnitPrice decimal.Decimal `json:"unit_price" validate:"dgte0,dplaces=2"`
	Reason    string          `json:"reason" validate:"max=500"`
	Comments  string          `json:"comments" validate:"max=500"`
}

type submitRequest struct {
	Note string `json:"note" validate:"max=500"`
}

type actRequest struct {
	Decision string `json:"decision" validate:"required,oneof=approve reject"`
	Note     string `json:"note" validate:"max=500"`
}

type requisitionView struct {
	Requisition
	Status Status `json:"status"`
}

func view(r Requisition) requisitionView {
	return requisitionView{Requisition: r, Status: r.Status()}
}

func views(reqs []Requisition) []requisitionView {
	out := make([]requisitionView, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, view(r))
	}
	return out
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	from, err := shared.ParseDay(r.URL.Query().Get("from"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.List(r.Context(), from)
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"requisitions": views(res.Requisitions),
		"grand_total":  res.GrandTotal.StringFixed(2),
		"from":         res.From,
		"to":           res.To,
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	req, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view(req))
}

func (h *Handler) pending(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.service.PendingQueue(r.Context())
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"requisitions": views(reqs)})
}

func (h *Handler) draft(w http.ResponseWriter, r *http.Request) {
	req, err := h.service.GetOrCreateDraft(r.Context())
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view(req))
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	var body itemRequest
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if fields := h.validator.Struct(body); len(fields) > 0 {
		httpx.ValidationProblem(w, fields)
		return
	}
	req, item, err := h.service.AddItem(r.Context(), AddItemInput(body))
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"requisition": view(req), "item": item})
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := httpx.IDParam(r, "itemID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	req, err := h.service.RemoveItem(r.Context(), itemID)
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view(req))
}

func (h *Handler) submitDraft(w http.ResponseWriter, r *http.Request) {
	h.doSubmit(w, r, 0)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.doSubmit(w, r, id)
}

func (h *Handler) doSubmit(w http.ResponseWriter, r *http.Request, id int64) {
	var body submitRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &body); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	if fields := h.validator.Struct(body); len(fields) > 0 {
		httpx.ValidationProblem(w, fields)
		return
	}
	req, err := h.service.Submit(r.Context(), id, body.Note)
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view(req))
}

func (h *Handler) act(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var body actRequest
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if fields := h.validator.Struct(body); len(fields) > 0 {
		httpx.ValidationProblem(w, fields)
		return
	}
	req, err := h.service.Act(r.Context(), ActInput{RequisitionID: id, Decision: Decision(body.Decision), Note: body.Note})
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view(req))
}
