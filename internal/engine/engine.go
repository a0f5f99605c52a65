// Package engine assembles the marketplace coordinator from configuration so
// every binary runs the same stock, offer, auction and pickup wiring.
package engine

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/tradepost/internal/auction"
	"github.com/angelmondragon/tradepost/internal/listings"
	"github.com/angelmondragon/tradepost/internal/locks"
	"github.com/angelmondragon/tradepost/internal/offers"
	"github.com/angelmondragon/tradepost/internal/persistence"
	"github.com/angelmondragon/tradepost/internal/pickups"
	"github.com/angelmondragon/tradepost/internal/stock"
	"github.com/angelmondragon/tradepost/pkg/config"
	"github.com/angelmondragon/tradepost/pkg/db"
	"github.com/angelmondragon/tradepost/pkg/logger"
	"github.com/angelmondragon/tradepost/pkg/metrics"
	"github.com/angelmondragon/tradepost/pkg/outbox"
)

type Params struct {
	Config *config.Config
	Logger *logger.Logger
	DB     *db.Client
	// Registerer receives the engine metrics; nil disables them.
	Registerer prometheus.Registerer
}

// New builds a coordinator backed by the gorm repository. Events are written
// to the outbox in the same transaction as the state they describe.
func New(params Params) (*listings.Coordinator, error) {
	if params.Config == nil {
		return nil, fmt.Errorf("config required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("database client required")
	}

	settings, err := listings.SettingsFromConfig(params.Config.Engine)
	if err != nil {
		return nil, fmt.Errorf("engine settings: %w", err)
	}

	var engineMetrics *metrics.EngineMetrics
	if params.Registerer != nil {
		engineMetrics = metrics.NewEngineMetrics(params.Registerer)
	}

	events := outbox.NewService(outbox.NewRepository(params.DB.DB()), params.Logger)
	repo, err := persistence.NewRepository(params.DB.DB(), params.DB, events)
	if err != nil {
		return nil, err
	}

	st := stock.New(stock.Options{
		Locks: locks.New(locks.Options{
			Attempts: params.Config.Engine.StockLockAttempts,
			Backoff:  params.Config.Engine.StockLockBackoff,
		}),
		Metrics: engineMetrics,
	})
	machine, err := offers.NewMachine(st, engineMetrics)
	if err != nil {
		return nil, err
	}

	return listings.NewCoordinator(listings.Options{
		Repository: repo,
		Inventory:  st,
		Offers:     machine,
		Auctions:   auction.NewEngine(engineMetrics),
		Pickups:    pickups.NewCoordinator(),
		Logger:     params.Logger,
		Settings:   settings,
	})
}
