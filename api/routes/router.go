package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agroconexion/storefront-sync/api/controllers"
	"github.com/agroconexion/storefront-sync/api/middleware"
	checkoutsvc "github.com/agroconexion/storefront-sync/internal/checkout"
	"github.com/agroconexion/storefront-sync/internal/i18n"
	"github.com/agroconexion/storefront-sync/pkg/config"
	"github.com/agroconexion/storefront-sync/pkg/logger"
	"github.com/agroconexion/storefront-sync/pkg/redis"
)

const idempotencyScope = "storefront"

// Deps carries everything the HTTP shell serves. Nil optional fields disable
// the matching checks (redis readiness, idempotency replay).
type Deps struct {
	Config        *config.Config
	Logger        *logger.Logger
	Translator    *i18n.Translator
	Gatherer      prometheus.Gatherer
	Redis         redis.Pinger
	Idempotency   middleware.IdempotencyStore
	Cart          controllers.CartReader
	Coordinator   controllers.CartMutator
	Checkout      checkoutsvc.Service
	Notifications controllers.NotificationFeed
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger
	tr := deps.Translator
	if tr == nil {
		tr = i18n.New(cfg.App.DefaultLanguage)
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
		middleware.Language(tr),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg.App.Env))
		r.Get("/ready", controllers.HealthReady(cfg.App.Env, logg, deps.Redis))
	})

	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.CartFetch(deps.Cart, deps.Coordinator, logg))
			r.Post("/reload", controllers.CartReload(deps.Cart, deps.Coordinator, logg))
			r.Post("/items", controllers.CartAddItem(deps.Cart, deps.Coordinator, logg))
			r.Route("/lines/{lineId}", func(r chi.Router) {
				r.Delete("/", controllers.CartRemoveLine(deps.Cart, deps.Coordinator, logg))
				r.Put("/quantity", controllers.CartSetQuantity(deps.Cart, deps.Coordinator, logg))
				r.Post("/coupon", controllers.CartApplyCoupon(deps.Cart, deps.Coordinator, logg))
				r.Delete("/coupon", controllers.CartRemoveCoupon(deps.Cart, deps.Coordinator, logg))
			})
		})

		r.Route("/checkout", func(r chi.Router) {
			idem := middleware.Idempotency(deps.Idempotency, idempotencyScope, logg)
			r.With(idem).Post("/cart", controllers.CheckoutCart(deps.Checkout, logg))
			r.With(idem).Post("/product", controllers.CheckoutProduct(deps.Checkout, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(deps.Notifications, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(deps.Notifications, logg))
			r.Post("/reload", controllers.ReloadNotifications(deps.Notifications, logg))
			r.Delete("/{id}", controllers.DeleteNotification(deps.Notifications, logg))
		})
	})

	return r
}
