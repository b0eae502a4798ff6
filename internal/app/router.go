package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/backoffice/internal/inventory"
	"github.com/odyssey-erp/backoffice/internal/menu"
	"github.com/odyssey-erp/backoffice/internal/observability"
	"github.com/odyssey-erp/backoffice/internal/orders"
	"github.com/odyssey-erp/backoffice/internal/rbac"
	"github.com/odyssey-erp/backoffice/internal/recipes"
	"github.com/odyssey-erp/backoffice/internal/reports"
	"github.com/odyssey-erp/backoffice/internal/requisitions"
	"github.com/odyssey-erp/backoffice/internal/shared"
	"github.com/odyssey-erp/backoffice/internal/tables"
	"github.com/odyssey-erp/backoffice/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger   *slog.Logger
	Config   *Config
	Sessions *shared.SessionStore
	Metrics  *observability.Metrics

	InventoryHandler    *inventory.Handler
	RecipesHandler      *recipes.Handler
	MenuHandler         *menu.Handler
	TablesHandler       *tables.Handler
	OrdersHandler       *orders.Handler
	RequisitionsHandler *requisitions.Handler
	ReportsHandler      *reports.Handler
	PermissionsHandler  *rbac.PermissionsHandler
	JobHandler          *jobs.Handler
}

// NewRouter constructs the chi.Router. Health, metrics and queue health are
// public; every other route requires a session.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}
	r.Use(RequestLogger(params.Logger))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	r.Group(func(r chi.Router) {
		r.Use(ActorMiddleware(params.Sessions, params.Logger))

		if params.PermissionsHandler != nil {
			r.Route("/me", params.PermissionsHandler.MountRoutes)
		}
		if params.InventoryHandler != nil {
			r.Route("/inventory", params.InventoryHandler.MountRoutes)
		}
		if params.RecipesHandler != nil {
			r.Route("/recipes", params.RecipesHandler.MountRoutes)
		}
		if params.MenuHandler != nil {
			r.Route("/menu", params.MenuHandler.MountRoutes)
		}
		if params.TablesHandler != nil {
			r.Route("/tables", params.TablesHandler.MountRoutes)
		}
		if params.OrdersHandler != nil {
			r.Route("/orders", params.OrdersHandler.MountRoutes)
		}
		if params.RequisitionsHandler != nil {
			r.Route("/requisitions", params.RequisitionsHandler.MountRoutes)
		}
		if params.ReportsHandler != nil {
			r.Route("/reports", params.ReportsHandler.MountRoutes)
		}
	})

	return r
}
