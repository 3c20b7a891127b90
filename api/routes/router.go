package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marketloop/marketloop-backend/api/controllers"
	webhookcontrollers "github.com/marketloop/marketloop-backend/api/controllers/webhooks"
	"github.com/marketloop/marketloop-backend/api/middleware"
	"github.com/marketloop/marketloop-backend/internal/applications"
	"github.com/marketloop/marketloop-backend/internal/orders"
	"github.com/marketloop/marketloop-backend/internal/preorders"
	"github.com/marketloop/marketloop-backend/internal/sales"
	"github.com/marketloop/marketloop-backend/internal/squaresync"
	"github.com/marketloop/marketloop-backend/internal/tickets"
	"github.com/marketloop/marketloop-backend/pkg/config"
	"github.com/marketloop/marketloop-backend/pkg/db"
	"github.com/marketloop/marketloop-backend/pkg/enums"
	"github.com/marketloop/marketloop-backend/pkg/logger"
	"github.com/marketloop/marketloop-backend/pkg/redis"
	"github.com/marketloop/marketloop-backend/pkg/stripe"
)

// RouterParams carries everything the HTTP surface needs. Wired once in
// cmd/api.
type RouterParams struct {
	Config *config.Config
	Logger *logger.Logger

	DB    db.Pinger
	Redis *redis.Client

	Orders          *orders.Service
	Preorders       *preorders.Service
	PreorderRepo    preorders.Repository
	Tickets         *tickets.Service
	Applications    *applications.Service
	Sales           sales.Service
	SquareSync      *squaresync.Service
	StripeClient    *stripe.Client
	StripeWebhooks  webhookcontrollers.StripeDispatcher
	MetricsHandler  http.Handler
	RateLimitWindow time.Duration
	RateLimitPerIP  int
}

const (
	defaultRateLimitWindow = time.Minute
	defaultRateLimitPerIP  = 300
)

// NewRouter assembles the chi handler tree.
func NewRouter(p RouterParams) http.Handler {
	cfg := p.Config
	logg := p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	window := p.RateLimitWindow
	if window <= 0 {
		window = defaultRateLimitWindow
	}
	perIP := p.RateLimitPerIP
	if perIP <= 0 {
		perIP = defaultRateLimitPerIP
	}
	apiPolicy := middleware.NewRateLimitPolicy("api", window, perIP)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.DB, p.Redis))
	})

	metricsHandler := p.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Handle("/metrics", metricsHandler)

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(p.StripeWebhooks, p.StripeClient, logg))
		r.Post("/stripe/connect", webhookcontrollers.StripeConnectWebhook(p.StripeWebhooks, p.StripeClient, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		if p.Redis != nil {
			r.Use(middleware.RateLimit(apiPolicy, p.Redis, logg))
		}

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", controllers.CreateOrder(p.Orders, logg))
			r.Get("/", controllers.ListMyOrders(p.Orders, logg))
			r.Get("/{orderId}", controllers.OrderDetail(p.Orders, logg))
			r.Post("/{orderId}/refund", controllers.RefundOrder(p.Orders, logg))
		})

		r.Route("/preorders", func(r chi.Router) {
			r.Post("/", controllers.CreatePreorder(p.Preorders, p.PreorderRepo, logg))
			r.Get("/", controllers.ListMyPreorders(p.Preorders, logg))
			r.Get("/{preorderId}", controllers.PreorderDetail(p.Preorders, logg))
			r.Post("/{preorderId}/refund", controllers.RefundPreorder(p.Preorders, logg))
		})

		r.Route("/tickets", func(r chi.Router) {
			r.Post("/checkout", controllers.TicketCheckout(p.Tickets, cfg.Tickets, logg))
			r.Get("/", controllers.ListMyTickets(p.Tickets, logg))
			r.Get("/{purchaseId}", controllers.TicketDetail(p.Tickets, logg))
			r.Get("/{purchaseId}/qr", controllers.TicketQR(p.Tickets, logg))
			r.Post("/{purchaseId}/cancel", controllers.CancelTicket(p.Tickets, logg))
			r.With(middleware.RequireRole(logg, string(enums.RoleOrganizer), string(enums.RoleAdmin))).
				Post("/{purchaseId}/validate", controllers.ValidateTicket(p.Tickets, logg))
		})

		r.Route("/applications", func(r chi.Router) {
			r.With(middleware.RequireRole(logg, string(enums.RoleVendor))).
				Post("/", controllers.SubmitApplication(p.Applications, logg))
			r.Get("/{applicationId}", controllers.ApplicationDetail(p.Applications, logg))
			r.With(middleware.RequireRole(logg, string(enums.RoleVendor))).
				Post("/{applicationId}/pay", controllers.PayApplication(p.Applications, logg))
			r.With(middleware.RequireRole(logg, string(enums.RoleOrganizer), string(enums.RoleAdmin))).
				Post("/{applicationId}/approve", controllers.ApproveApplication(p.Applications, logg))
			r.With(middleware.RequireRole(logg, string(enums.RoleOrganizer), string(enums.RoleAdmin))).
				Post("/{applicationId}/deny", controllers.DenyApplication(p.Applications, logg))
		})

		r.With(middleware.RequireRole(logg, string(enums.RoleOrganizer), string(enums.RoleAdmin))).
			Get("/markets/{marketId}/applications", controllers.ListMarketApplications(p.Applications, logg))

		r.Route("/vendor", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, string(enums.RoleVendor), string(enums.RoleAdmin)))
			r.Get("/orders", controllers.ListVendorOrders(p.Orders, logg))
			r.Get("/preorders", controllers.ListVendorPreorders(p.Preorders, logg))
			r.Get("/applications", controllers.ListVendorApplications(p.Applications, logg))
			r.Route("/sales", func(r chi.Router) {
				r.Get("/", controllers.VendorSalesList(p.Sales, logg))
				r.Get("/summary", controllers.VendorSalesSummary(p.Sales, logg))
				r.Get("/unassigned", controllers.VendorUnassignedSales(p.Sales, logg))
				r.Post("/{saleId}/assign", controllers.AssignSaleMarket(p.Sales, logg))
			})
			r.Post("/square/sync", controllers.TriggerSquareSync(p.SquareSync, logg))
		})

		r.Route("/organizer", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, string(enums.RoleOrganizer), string(enums.RoleAdmin)))
			r.Get("/tickets/summary", controllers.OrganizerTicketSummary(p.Tickets, logg))
		})
	})

	return r
}
