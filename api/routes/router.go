package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/parcelops/backend/api/controllers"
	"github.com/parcelops/backend/api/middleware"
	catalogsvc "github.com/parcelops/backend/internal/catalog"
	inventorysvc "github.com/parcelops/backend/internal/inventory"
	ordersvc "github.com/parcelops/backend/internal/orders"
	sweepsvc "github.com/parcelops/backend/internal/sweep"
	"github.com/parcelops/backend/pkg/config"
	"github.com/parcelops/backend/pkg/db"
	"github.com/parcelops/backend/pkg/logger"
	"github.com/parcelops/backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	catalogService catalogsvc.Service,
	inventoryService inventorysvc.Service,
	orderService ordersvc.Service,
	sweepService *sweepsvc.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	var redisP db.Pinger
	if redisClient != nil {
		redisP = redisClient
	}
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/products", func(r chi.Router) {
		r.Post("/", controllers.CreateProduct(catalogService, logg))
		r.Get("/", controllers.ListProducts(catalogService, logg))
		r.Get("/{productID}", controllers.GetProduct(catalogService, logg))
		r.Patch("/{productID}/cost", controllers.UpdateProductCost(catalogService, logg))
		r.Post("/{productID}/receipts", controllers.ReceiveStock(catalogService, logg))
		r.Get("/{productID}/batches", controllers.ListBatches(inventoryService, logg))
	})

	r.Route("/api/v1/orders", func(r chi.Router) {
		r.Post("/", controllers.CreateOrder(orderService, logg))
		r.Get("/", controllers.ListOrders(orderService, logg))
		r.Post("/bulk-delete", controllers.BulkDeleteOrders(orderService, logg))
		r.Get("/{orderID}", controllers.GetOrder(orderService, logg))
		r.Delete("/{orderID}", controllers.DeleteOrder(orderService, logg))
		r.Get("/{orderID}/allocations", controllers.ListAllocations(inventoryService, logg))
		r.Post("/{orderID}/delivered", controllers.MarkDelivered(orderService, logg))
		r.Put("/{orderID}/return-received", controllers.SetReturnReceived(orderService, logg))
	})

	r.Route("/api/v1/inventory", func(r chi.Router) {
		r.Get("/cost-summary", controllers.CostSummary(inventoryService, logg))
		r.Post("/reconcile", controllers.ReconcileStock(inventoryService, logg))
	})

	if sweepService != nil {
		r.Route("/api/v1/sweep", func(r chi.Router) {
			r.Post("/", controllers.TriggerSweep(sweepService, logg))
			r.Get("/", controllers.SweepStatus(sweepService))
		})
	}

	return r
}
