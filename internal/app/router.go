package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/inventory"
	"github.com/meridian-erp/meridian-erp/internal/invoicing"
	"github.com/meridian-erp/meridian-erp/internal/masterdata/contacts"
	"github.com/meridian-erp/meridian-erp/internal/masterdata/products"
	"github.com/meridian-erp/meridian-erp/internal/masterdata/warehouses"
	"github.com/meridian-erp/meridian-erp/internal/observability"
	"github.com/meridian-erp/meridian-erp/internal/production"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	Pool              *pgxpool.Pool
	Metrics           *observability.Metrics
	ProductHandler    *products.Handler
	WarehouseHandler  *warehouses.Handler
	ContactHandler    *contacts.Handler
	InventoryHandler  *inventory.Handler
	InvoicingHandler  *invoicing.Handler
	ProductionHandler *production.Handler
}

// NewRouter constructs the chi.Router with Meridian defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if params.Pool != nil {
			if err := params.Pool.Ping(r.Context()); err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"degraded"}`))
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		api.Route("/products", params.ProductHandler.MountRoutes)
		api.Route("/warehouses", func(wh chi.Router) {
			params.WarehouseHandler.MountRoutes(wh)
			params.InventoryHandler.MountRoutes(wh)
		})
		api.Route("/contacts", params.ContactHandler.MountRoutes)
		api.Route("/invoices", params.InvoicingHandler.MountRoutes)
		api.Route("/production", params.ProductionHandler.MountRoutes)
	})

	return r
}
