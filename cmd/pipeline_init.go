package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/avery-whitehead/StreetMapsDownload/internal/cluster"
	"github.com/avery-whitehead/StreetMapsDownload/internal/grouping"
	"github.com/avery-whitehead/StreetMapsDownload/internal/layout"
	"github.com/avery-whitehead/StreetMapsDownload/internal/mapclient"
	"github.com/avery-whitehead/StreetMapsDownload/internal/metrics"
	"github.com/avery-whitehead/StreetMapsDownload/internal/model"
	"github.com/avery-whitehead/StreetMapsDownload/internal/palette"
	"github.com/avery-whitehead/StreetMapsDownload/internal/pipeline"
	"github.com/avery-whitehead/StreetMapsDownload/internal/publish"
	"github.com/avery-whitehead/StreetMapsDownload/internal/store"
	"github.com/avery-whitehead/StreetMapsDownload/internal/webmap"
)

// printEnv holds the store, metrics and pipeline used by the prints
// commands.
type printEnv struct {
	Store    store.Store
	Metrics  *metrics.Metrics
	Pipeline *pipeline.Pipeline
}

// Close flushes metrics and releases the store.
func (pe *printEnv) Close() {
	if err := pe.Metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
		zap.L().Warn("write metrics textfile failed", zap.Error(err))
	}
	if err := pe.Store.Close(); err != nil {
		zap.L().Warn("close store failed", zap.Error(err))
	}
}

// printOptions are the command-line overrides shared by the prints commands.
type printOptions struct {
	By       string
	Provider string
	Format   string
	Cleanup  bool
	Publish  bool
}

// initPrintEnv wires a pipeline from cfg and the command-line overrides.
func initPrintEnv(ctx context.Context, opts printOptions) (*printEnv, error) {
	if opts.Provider != "" {
		cfg.Provider.Name = opts.Provider
	}
	if opts.Format != "" {
		cfg.Print.Format = opts.Format
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for _, mode := range []string{"store", "fetch"} {
		if err := cfg.Require(mode); err != nil {
			return nil, err
		}
	}
	if opts.Publish {
		if err := cfg.Require("publish"); err != nil {
			return nil, err
		}
	}

	layouts, err := layout.Load(cfg.Paths.Layouts)
	if err != nil {
		return nil, err
	}
	grouper, err := newGrouper(opts.By)
	if err != nil {
		return nil, err
	}

	var builder *webmap.Builder
	if cfg.Provider.Name == mapclient.ProviderEsri {
		point, err := webmap.LoadTemplate(cfg.Paths.WebMap)
		if err != nil {
			return nil, err
		}
		clustered, err := webmap.LoadClusteredTemplate(cfg.Paths.WebMapClustered)
		if err != nil {
			return nil, err
		}
		builder = webmap.NewBuilder(point, clustered, cfg.Provider.ArcGIS.BasemapURL)
	}

	m := metrics.New()
	client, err := mapclient.New(cfg, m.ObserveFetch)
	if err != nil {
		return nil, err
	}

	var pub publish.Publisher = publish.Nop{}
	if opts.Publish {
		if pub, err = publish.New(cfg.Publish); err != nil {
			return nil, err
		}
	}

	seed := cfg.Colors.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	st, err := store.New(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	p, err := pipeline.New(pipeline.Deps{
		Store:     st,
		Grouper:   grouper,
		Palette:   palette.New(seed, cfg.Colors.PastelFactor, cfg.Colors.Trials),
		Builder:   builder,
		Client:    client,
		Layouts:   layouts,
		Publisher: pub,
		Metrics:   m,
	}, settingsFromConfig(opts))
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	zap.L().Info("print pipeline ready",
		zap.String("provider", cfg.Provider.Name),
		zap.String("store", cfg.Store.Driver),
		zap.String("format", cfg.Print.Format),
	)
	return &printEnv{Store: st, Metrics: m, Pipeline: p}, nil
}

func settingsFromConfig(opts printOptions) pipeline.Settings {
	return pipeline.Settings{
		Provider:      cfg.Provider.Name,
		WorkDir:       cfg.Paths.WorkDir,
		OutputDir:     cfg.Paths.OutputDir,
		AssetsDir:     cfg.Paths.AssetsDir,
		Format:        cfg.Print.Format,
		DPI:           cfg.Print.DPI,
		OnFailure:     cfg.Fetch.OnFailure,
		OutlineOffset: cfg.Colors.OutlineOffset,
		RoundPrefix:   cfg.Print.RoundLabelPrefix,
		Cleanup:       opts.Cleanup,
		Publish:       opts.Publish,
	}
}

// newGrouper returns the grouping strategy named by by.
func newGrouper(by string) (grouping.Grouper, error) {
	switch by {
	case "", "postcode":
		return grouping.ByPostcode{}, nil
	case "cluster":
		return grouping.Density{
			Clusterer: cluster.NewDBSCAN(cluster.MetricByName(cfg.Cluster.Metric)),
			Params:    cluster.Params{Eps: cfg.Cluster.Eps, MinPts: cfg.Cluster.MinPts},
			Planar:    cfg.Cluster.Metric == "euclidean",
		}, nil
	default:
		return nil, &model.ConfigurationError{Item: "--by", Err: eris.Errorf("unknown grouping %q (want postcode or cluster)", by)}
	}
}
