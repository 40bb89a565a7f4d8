package feed

import (
	"fmt"
	"time"

	"lagarb/internal/domain"
	"lagarb/internal/infra"
)

// New builds the worker for a configured venue.
func New(cfg *infra.Config, venue infra.VenueConfig, out domain.PriceWriter, metrics *infra.Metrics) (domain.FeedWorker, error) {
	switch venue.Provider {
	case infra.ProviderWebSocket:
		return NewWorker(WorkerOptions{
			Venue:            venue.Name,
			URL:              venue.WSURL,
			AssetID:          venue.AssetID,
			Channel:          venue.Channel,
			PriceField:       venue.PriceField,
			Backoff:          cfg.ReconnectBackoff(),
			HandshakeTimeout: time.Duration(cfg.Feed.HandshakeTimeoutSec) * time.Second,
			ReadTimeout:      time.Duration(cfg.Feed.ReadTimeoutSec) * time.Second,
		}, out, metrics), nil
	case infra.ProviderREST:
		return NewPoller(PollerOptions{
			Venue:      venue.Name,
			URL:        venue.RestURL,
			APIKey:     venue.APIKey,
			PriceField: venue.PriceField,
			Interval:   time.Duration(venue.PollIntervalMS) * time.Millisecond,
			RetryDelay: cfg.ReconnectBackoff(),
		}, out, metrics), nil
	case infra.ProviderSimulated:
		return NewSimulator(SimulatorOptions{
			Venue:    venue.Name,
			Start:    venue.SimStartPrice,
			Step:     venue.SimStep,
			Interval: time.Duration(venue.SimIntervalMS) * time.Millisecond,
		}, out, metrics), nil
	default:
		return nil, &domain.ConfigError{Field: "venues." + venue.Name + ".provider", Err: fmt.Errorf("unknown provider %q", venue.Provider)}
	}
}
