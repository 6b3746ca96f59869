package mapclient

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/avery-whitehead/StreetMapsDownload/internal/config"
	"github.com/avery-whitehead/StreetMapsDownload/internal/model"
	"github.com/avery-whitehead/StreetMapsDownload/internal/resilience"
)

// Result is the outcome of one request in a FetchAll batch.
type Result struct {
	Data []byte
	Err  error
}

// FetchAll fetches every request of a page with at most limit in flight.
// Results line up with reqs; one failed slot does not cancel the others.
func FetchAll(ctx context.Context, c Client, reqs []Request, limit int) []Result {
	results := make([]Result, len(reqs))
	if limit < 1 {
		limit = 1
	}

	var g errgroup.Group
	g.SetLimit(limit)
	for i, req := range reqs {
		g.Go(func() error {
			data, err := c.Fetch(ctx, req)
			results[i] = Result{Data: data, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// New builds the client for cfg.Provider.Name. observe may be nil.
func New(cfg *config.Config, observe func(string, time.Duration, error)) (Client, error) {
	opts := Options{
		Timeout:    time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		Policy:     resilience.NewPolicy(cfg.Fetch.MaxAttempts, cfg.Fetch.InitialBackoffMs, cfg.Fetch.MaxBackoffMs),
		RatePerSec: cfg.Fetch.RequestsPerSecond,
		Cache:      NewImageCache(cfg.Fetch.CacheEntries, time.Duration(cfg.Fetch.CacheTTLMins)*time.Minute),
		Observe:    observe,
	}

	switch cfg.Provider.Name {
	case ProviderEsri:
		a := cfg.Provider.ArcGIS
		c, err := NewArcGIS(ArcGISOptions{
			URL:            a.URL,
			CAFile:         a.CAFile,
			Format:         a.Format,
			LayoutTemplate: a.LayoutTemplate,
		}, opts)
		if err != nil {
			return nil, err
		}
		return c, nil
	case ProviderMapbox:
		m := cfg.Provider.Mapbox
		c, err := NewMapbox(MapboxOptions{BaseURL: m.BaseURL, Token: m.Token, Style: m.Style}, opts)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, &model.ConfigurationError{
			Item: "provider.name",
			Err:  eris.Errorf("mapclient: unknown provider %q", cfg.Provider.Name),
		}
	}
}
