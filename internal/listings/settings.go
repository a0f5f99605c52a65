package listings

import (
	"time"

	"github.com/angelmondragon/tradepost/internal/market"
	"github.com/angelmondragon/tradepost/internal/pickups"
	"github.com/angelmondragon/tradepost/pkg/config"
)

const (
	defaultSweepBatch = 200
	defaultOfferTTL   = 10 * 24 * time.Hour
)

// Settings are the engine knobs the coordinator reads.
type Settings struct {
	OfferTTL   time.Duration
	Pickup     pickups.Defaults
	SweepBatch int
}

// SettingsFromConfig converts the engine section of the app config.
func SettingsFromConfig(cfg config.EngineConfig) (Settings, error) {
	start, err := market.ParseTimeOfDay(cfg.PickupWindowStart)
	if err != nil {
		return Settings{}, err
	}
	end, err := market.ParseTimeOfDay(cfg.PickupWindowEnd)
	if err != nil {
		return Settings{}, err
	}
	window := market.TimeWindow{Start: start, End: end}
	if err := window.Validate(); err != nil {
		return Settings{}, err
	}
	return Settings{
		OfferTTL: cfg.OfferTTL,
		Pickup: pickups.Defaults{
			Days:     cfg.PickupWindowDays,
			Window:   window,
			Location: cfg.PickupLocation,
		},
		SweepBatch: defaultSweepBatch,
	}, nil
}

func (s Settings) withDefaults() Settings {
	if s.SweepBatch <= 0 {
		s.SweepBatch = defaultSweepBatch
	}
	if s.OfferTTL <= 0 {
		s.OfferTTL = defaultOfferTTL
	}
	if s.Pickup.Days <= 0 {
		s.Pickup.Days = 7
	}
	if s.Pickup.Window.Validate() != nil {
		s.Pickup.Window = market.TimeWindow{Start: 9 * 60, End: 18 * 60}
	}
	return s
}
