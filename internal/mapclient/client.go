// Package mapclient fetches static map images from ArcGIS and Mapbox.
package mapclient

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/avery-whitehead/StreetMapsDownload/internal/model"
	"github.com/avery-whitehead/StreetMapsDownload/internal/resilience"
	"github.com/avery-whitehead/StreetMapsDownload/internal/webmap"
)

// Provider names.
const (
	ProviderEsri   = "esri"
	ProviderMapbox = "mapbox"
)

// maxImageBytes bounds a single downloaded image.
const maxImageBytes = 64 << 20

// Request is one map image to fetch. ArcGIS clients read WebMap, Mapbox
// clients read Static. Label names the request in logs and errors.
type Request struct {
	Label  string
	WebMap *webmap.WebMap
	Static *webmap.StaticRequest
}

// Client fetches one image per request.
type Client interface {
	Provider() string
	Fetch(ctx context.Context, req Request) ([]byte, error)
}

// Options holds the settings shared by every provider client.
type Options struct {
	Timeout    time.Duration
	Policy     resilience.Policy
	RatePerSec float64
	Cache      *ImageCache
	HTTPClient *http.Client
	// Observe, when set, receives the duration and outcome of every fetch.
	Observe func(provider string, d time.Duration, err error)
}

// core runs the fetch discipline shared by both providers: cache lookup,
// rate limiting, a per-attempt timeout, bounded retries, and conversion of
// the final failure into an ExternalServiceError.
type core struct {
	provider string
	http     *http.Client
	timeout  time.Duration
	policy   resilience.Policy
	limiter  *AdaptiveLimiter
	cache    *ImageCache
	observe  func(string, time.Duration, error)
}

func newCore(provider string, opts Options) core {
	hc := opts.HTTPClient
	if hc == nil {
		hc = newHTTPClient(nil)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	policy := opts.Policy
	if policy.OnRetry == nil {
		policy.OnRetry = resilience.LogRetries(provider, "fetch")
	}
	return core{
		provider: provider,
		http:     hc,
		timeout:  timeout,
		policy:   policy,
		limiter:  NewAdaptiveLimiter(rate.Limit(opts.RatePerSec), 1),
		cache:    opts.Cache,
		observe:  opts.Observe,
	}
}

func (c *core) fetch(ctx context.Context, label, key string, fn func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	if data, ok := c.cache.Get(key); ok {
		zap.L().Debug("map image cache hit", zap.String("provider", c.provider), zap.String("request", label))
		return data, nil
	}

	start := time.Now()
	data, attempts, err := resilience.Run(ctx, c.policy, func(ctx context.Context) ([]byte, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "mapclient: rate limiter wait")
		}
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		data, err := fn(attemptCtx)
		switch {
		case err == nil:
			c.limiter.OnSuccess()
		case resilience.StatusCode(err) == http.StatusTooManyRequests:
			c.limiter.OnRateLimit()
		case attemptCtx.Err() != nil && ctx.Err() == nil:
			// The attempt timed out while the caller is still waiting.
			err = resilience.NewTransientError(eris.Wrapf(err, "mapclient: attempt exceeded %s", c.timeout), 0)
		}
		return data, err
	})
	if c.observe != nil {
		c.observe(c.provider, time.Since(start), err)
	}
	if err != nil {
		zap.L().Warn("map fetch failed",
			zap.String("provider", c.provider),
			zap.String("request", label),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		return nil, &model.ExternalServiceError{
			Provider:   c.provider,
			Op:         label,
			StatusCode: resilience.StatusCode(err),
			Err:        err,
		}
	}

	c.cache.Put(key, data)
	return data, nil
}

// get downloads url and returns the body of a 200 response.
func (c *core) get(ctx context.Context, op, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "mapclient: %s: create request", op)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "mapclient: %s", op)
	}
	defer resp.Body.Close() //nolint:errcheck
	return readOK(resp, op)
}

func readOK(resp *http.Response, op string) ([]byte, error) {
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, resilience.StatusError("mapclient: "+op, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, eris.Wrapf(err, "mapclient: %s: read body", op)
	}
	if len(data) == 0 {
		return nil, eris.Errorf("mapclient: %s: empty body", op)
	}
	return data, nil
}

func newHTTPClient(pool *x509.CertPool) *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConnsPerHost: 4,
		MaxConnsPerHost:     8,
		IdleConnTimeout:     90 * time.Second,
	}
	if pool != nil {
		transport.TLSClientConfig = &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
	}
	return &http.Client{Transport: transport}
}

// loadCAPool reads a PEM bundle for print servers signed by a private CA.
func loadCAPool(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, &model.ConfigurationError{Item: "provider.arcgis.ca_file", Err: eris.Wrap(err, "mapclient: read ca bundle")}
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, &model.ConfigurationError{Item: "provider.arcgis.ca_file", Err: eris.New("mapclient: no certificates in ca bundle")}
	}
	return pool, nil
}
