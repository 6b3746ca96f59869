package mapclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/avery-whitehead/StreetMapsDownload/internal/resilience"
)

// ArcGISOptions configures an Export Web Map print service client.
type ArcGISOptions struct {
	URL            string
	CAFile         string
	Format         string
	LayoutTemplate string
}

// ArcGIS posts a web map to a print service, then downloads the rendered image.
type ArcGIS struct {
	core
	url            string
	format         string
	layoutTemplate string
}

// NewArcGIS builds the client. A CA bundle that cannot be read is a
// ConfigurationError.
func NewArcGIS(a ArcGISOptions, opts Options) (*ArcGIS, error) {
	if a.URL == "" {
		return nil, eris.New("mapclient: arcgis url is required")
	}
	if a.CAFile != "" && opts.HTTPClient == nil {
		pool, err := loadCAPool(a.CAFile)
		if err != nil {
			return nil, err
		}
		opts.HTTPClient = newHTTPClient(pool)
	}
	if a.Format == "" {
		a.Format = "JPG"
	}
	if a.LayoutTemplate == "" {
		a.LayoutTemplate = "MAP_ONLY"
	}
	return &ArcGIS{
		core:           newCore(ProviderEsri, opts),
		url:            a.URL,
		format:         a.Format,
		layoutTemplate: a.LayoutTemplate,
	}, nil
}

// Provider returns "esri".
func (c *ArcGIS) Provider() string { return ProviderEsri }

// Fetch renders req.WebMap and returns the image bytes.
func (c *ArcGIS) Fetch(ctx context.Context, req Request) ([]byte, error) {
	if req.WebMap == nil {
		return nil, eris.Errorf("mapclient: arcgis request %q has no web map", req.Label)
	}
	payload, err := req.WebMap.Encode()
	if err != nil {
		return nil, err
	}
	return c.fetch(ctx, req.Label, CacheKey(ProviderEsri, payload), func(ctx context.Context) ([]byte, error) {
		imageURL, err := c.export(ctx, payload)
		if err != nil {
			return nil, err
		}
		return c.get(ctx, "download", imageURL)
	})
}

type exportResponse struct {
	Results []struct {
		Value struct {
			URL string `json:"url"`
		} `json:"value"`
	} `json:"results"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *ArcGIS) export(ctx context.Context, webMapJSON string) (string, error) {
	form := url.Values{
		"Web_Map_as_JSON": {webMapJSON},
		"Format":          {c.format},
		"f":               {"json"},
		"Layout_Template": {c.layoutTemplate},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(form.Encode()))
	if err != nil {
		return "", eris.Wrap(err, "mapclient: export: create request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "mapclient: export")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := readOK(resp, "export")
	if err != nil {
		return "", err
	}

	var out exportResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", eris.Wrap(err, "mapclient: export: decode response")
	}
	// The service reports job failures inside a 200 response.
	if out.Error != nil {
		return "", resilience.StatusError("mapclient: export: "+out.Error.Message, out.Error.Code)
	}
	if len(out.Results) == 0 || out.Results[0].Value.URL == "" {
		return "", eris.New("mapclient: export: response has no image url")
	}
	return out.Results[0].Value.URL, nil
}
