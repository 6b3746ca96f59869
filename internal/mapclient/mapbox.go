package mapclient

import (
	"context"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/avery-whitehead/StreetMapsDownload/internal/webmap"
)

// MapboxOptions configures the Static Images API client.
type MapboxOptions struct {
	BaseURL string
	Token   string
	Style   string
}

// Mapbox downloads images from the Static Images API.
type Mapbox struct {
	core
	baseURL string
	token   string
	style   string
}

// NewMapbox builds the client.
func NewMapbox(m MapboxOptions, opts Options) (*Mapbox, error) {
	if m.Token == "" {
		return nil, eris.New("mapclient: mapbox token is required")
	}
	if m.BaseURL == "" {
		m.BaseURL = "https://api.mapbox.com"
	}
	if m.Style == "" {
		m.Style = "mapbox/streets-v11"
	}
	return &Mapbox{
		core:    newCore(ProviderMapbox, opts),
		baseURL: strings.TrimRight(m.BaseURL, "/"),
		token:   m.Token,
		style:   strings.Trim(m.Style, "/"),
	}, nil
}

// Provider returns "mapbox".
func (c *Mapbox) Provider() string { return ProviderMapbox }

// Fetch downloads the image described by req.Static.
func (c *Mapbox) Fetch(ctx context.Context, req Request) ([]byte, error) {
	if req.Static == nil {
		return nil, eris.Errorf("mapclient: mapbox request %q has no static request", req.Label)
	}
	u := c.URL(*req.Static)
	// The token is not part of the cache key.
	key := CacheKey(ProviderMapbox, c.path(*req.Static))
	return c.fetch(ctx, req.Label, key, func(ctx context.Context) ([]byte, error) {
		return c.get(ctx, "static", u)
	})
}

// URL returns the full static image URL including the access token.
func (c *Mapbox) URL(r webmap.StaticRequest) string {
	return c.baseURL + c.path(r) + "?" + url.Values{"access_token": {c.token}}.Encode()
}

func (c *Mapbox) path(r webmap.StaticRequest) string {
	var b strings.Builder
	b.WriteString("/styles/v1/")
	b.WriteString(c.style)
	b.WriteString("/static/")
	if overlay := r.Overlay(); overlay != "" {
		b.WriteString(overlay)
		b.WriteByte('/')
	}
	b.WriteString(r.Position())
	b.WriteByte('/')
	b.WriteString(r.Size())
	return b.String()
}
