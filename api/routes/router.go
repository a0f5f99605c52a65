package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/tradepost/api/controllers"
	"github.com/angelmondragon/tradepost/api/middleware"
	"github.com/angelmondragon/tradepost/pkg/config"
	"github.com/angelmondragon/tradepost/pkg/enums"
	"github.com/angelmondragon/tradepost/pkg/logger"
)

// Store backs request idempotency and rate limiting; *redis.Client
// satisfies it.
type Store interface {
	Ping(ctx context.Context) error
	Get(ctx context.Context, key string) (string, error)
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	IdempotencyKey(scope, id string) string
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	store Store,
	svc controllers.Marketplace,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	writesPolicy := middleware.NewRateLimitPolicy("writes", cfg.Limits.Window, cfg.Limits.WritesPerWindow)
	bidsPolicy := middleware.NewRateLimitPolicy("bids", cfg.Limits.Window, cfg.Limits.BidsPerWindow)
	currency := enums.Currency(cfg.Engine.DefaultCurrency)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"database": dbP,
			"redis":    store,
		}))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(store, logg))

		r.Get("/items/{itemID}", controllers.ItemGet(svc, logg))
		r.Get("/listings/{listingID}", controllers.ListingGet(svc, logg))
		r.Get("/listings/{listingID}/offers", controllers.ListingOffers(svc, logg))
		r.Get("/offers/{offerID}", controllers.OfferGet(svc, logg))
		r.Get("/pickups/{pickupID}", controllers.PickupGet(svc, logg))

		r.With(middleware.RateLimit(bidsPolicy, store, logg)).
			Post("/listings/{listingID}/bids", controllers.BidPlace(svc, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(writesPolicy, store, logg))

			r.Post("/items", controllers.ItemCreate(svc, logg))

			r.Post("/listings", controllers.ListingCreate(svc, logg, currency))
			r.Post("/listings/{listingID}/activate", controllers.ListingActivate(svc, logg))
			r.Post("/listings/{listingID}/cancel", controllers.ListingCancel(svc, logg))
			r.Post("/listings/{listingID}/offers", controllers.OfferCreate(svc, logg, currency))

			r.Post("/offers/{offerID}/accept", controllers.OfferAccept(svc, logg))
			r.Post("/offers/{offerID}/reject", controllers.OfferReject(svc, logg))
			r.Post("/offers/{offerID}/withdraw", controllers.OfferWithdraw(svc, logg))
			r.Post("/offers/{offerID}/complete", controllers.OfferComplete(svc, logg))
			r.Post("/offers/{offerID}/cancel", controllers.OfferCancel(svc, logg))
			r.Post("/offers/{offerID}/pickup", controllers.PickupPropose(svc, logg))

			r.Post("/pickups/{pickupID}/select-time", controllers.PickupSelectTime(svc, logg))
			r.Post("/pickups/{pickupID}/accept", controllers.PickupAccept(svc, logg))
			r.Post("/pickups/{pickupID}/decline", controllers.PickupDecline(svc, logg))
			r.Post("/pickups/{pickupID}/complete", controllers.PickupComplete(svc, logg))
			r.Post("/pickups/{pickupID}/cancel", controllers.PickupCancel(svc, logg))
		})
	})

	return r
}
