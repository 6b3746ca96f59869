package config

import (
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/avery-whitehead/StreetMapsDownload/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	Provider ProviderConfig `yaml:"provider" mapstructure:"provider"`
	Fetch    FetchConfig    `yaml:"fetch" mapstructure:"fetch"`
	Paths    PathsConfig    `yaml:"paths" mapstructure:"paths"`
	Colors   ColorConfig    `yaml:"colors" mapstructure:"colors"`
	Cluster  ClusterConfig  `yaml:"cluster" mapstructure:"cluster"`
	Print    PrintConfig    `yaml:"print" mapstructure:"print"`
	Publish  PublishConfig  `yaml:"publish" mapstructure:"publish"`
	Metrics  MetricsConfig  `yaml:"metrics" mapstructure:"metrics"`

	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// StoreConfig configures where location records are read from.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Path        string `yaml:"path" mapstructure:"path"`
	Sheet       string `yaml:"sheet" mapstructure:"sheet"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ProviderConfig selects and configures the static map provider.
type ProviderConfig struct {
	Name   string       `yaml:"name" mapstructure:"name"`
	ArcGIS ArcGISConfig `yaml:"arcgis" mapstructure:"arcgis"`
	Mapbox MapboxConfig `yaml:"mapbox" mapstructure:"mapbox"`
}

// ArcGISConfig holds the Export Web Map print service settings.
type ArcGISConfig struct {
	URL            string `yaml:"url" mapstructure:"url"`
	CAFile         string `yaml:"ca_file" mapstructure:"ca_file"`
	Format         string `yaml:"format" mapstructure:"format"`
	LayoutTemplate string `yaml:"layout_template" mapstructure:"layout_template"`
	BasemapURL     string `yaml:"basemap_url" mapstructure:"basemap_url"`
}

// MapboxConfig holds Mapbox Static Images API settings.
type MapboxConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Token   string `yaml:"token" mapstructure:"token"`
	Style   string `yaml:"style" mapstructure:"style"`
}

// FetchConfig bounds map fetches.
type FetchConfig struct {
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts       int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs  int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs      int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	OnFailure         string  `yaml:"on_failure" mapstructure:"on_failure"`
	CacheEntries      int     `yaml:"cache_entries" mapstructure:"cache_entries"`
	CacheTTLMins      int     `yaml:"cache_ttl_mins" mapstructure:"cache_ttl_mins"`
}

// PathsConfig locates working files and read-only assets.
type PathsConfig struct {
	WorkDir         string `yaml:"work_dir" mapstructure:"work_dir"`
	OutputDir       string `yaml:"output_dir" mapstructure:"output_dir"`
	AssetsDir       string `yaml:"assets_dir" mapstructure:"assets_dir"`
	WebMap          string `yaml:"web_map" mapstructure:"web_map"`
	WebMapClustered string `yaml:"web_map_clustered" mapstructure:"web_map_clustered"`
	Layouts         string `yaml:"layouts" mapstructure:"layouts"`
}

// ColorConfig tunes marker color generation.
type ColorConfig struct {
	PastelFactor  float64 `yaml:"pastel_factor" mapstructure:"pastel_factor"`
	Trials        int     `yaml:"trials" mapstructure:"trials"`
	OutlineOffset int     `yaml:"outline_offset" mapstructure:"outline_offset"`
	Seed          uint64  `yaml:"seed" mapstructure:"seed"`
}

// ClusterConfig holds density clustering parameters.
type ClusterConfig struct {
	Eps    float64 `yaml:"eps" mapstructure:"eps"`
	MinPts int     `yaml:"min_pts" mapstructure:"min_pts"`
	Metric string  `yaml:"metric" mapstructure:"metric"`
}

// PrintConfig controls output artifacts.
type PrintConfig struct {
	Format           string `yaml:"format" mapstructure:"format"`
	DPI              int    `yaml:"dpi" mapstructure:"dpi"`
	// RoundLabelPrefix limits round runs to labels with this prefix.
	RoundLabelPrefix string `yaml:"round_label_prefix" mapstructure:"round_label_prefix"`
}

// PublishConfig selects where merged round documents are uploaded.
type PublishConfig struct {
	Target string      `yaml:"target" mapstructure:"target"`
	FTP    FTPConfig   `yaml:"ftp" mapstructure:"ftp"`
	MinIO  MinIOConfig `yaml:"minio" mapstructure:"minio"`
}

// FTPConfig holds FTP upload settings.
type FTPConfig struct {
	URL         string `yaml:"url" mapstructure:"url"`
	User        string `yaml:"user" mapstructure:"user"`
	Password    string `yaml:"password" mapstructure:"password"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// MinIOConfig holds S3-compatible upload settings.
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint" mapstructure:"endpoint"`
	AccessKey string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey string `yaml:"secret_key" mapstructure:"secret_key"`
	Bucket    string `yaml:"bucket" mapstructure:"bucket"`
	Prefix    string `yaml:"prefix" mapstructure:"prefix"`
	Secure    bool   `yaml:"secure" mapstructure:"secure"`
}

// MetricsConfig configures the Prometheus textfile export.
type MetricsConfig struct {
	Textfile string `yaml:"textfile" mapstructure:"textfile"`
}

// MonitoringConfig holds run alerting thresholds.
type MonitoringConfig struct {
	WebhookURL              string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold    float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	IncompleteRateThreshold float64 `yaml:"incomplete_rate_threshold" mapstructure:"incomplete_rate_threshold"`
	MinPages                int     `yaml:"min_pages" mapstructure:"min_pages"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("STREETMAPS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.sheet", "locations")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("provider.name", "esri")
	v.SetDefault("provider.arcgis.url", "https://ccvgisapp01:6443/arcgis/rest/services/Printing/HDCExportWebMap/GPServer/Export%20Web%20Map/execute")
	v.SetDefault("provider.arcgis.format", "JPG")
	v.SetDefault("provider.arcgis.layout_template", "MAP_ONLY")
	v.SetDefault("provider.arcgis.basemap_url", "https://services.arcgisonline.com/ArcGIS/rest/services/World_Street_Map/MapServer")
	v.SetDefault("provider.mapbox.base_url", "https://api.mapbox.com")
	v.SetDefault("provider.mapbox.style", "mapbox/streets-v11")
	v.SetDefault("fetch.timeout_secs", 60)
	v.SetDefault("fetch.max_attempts", 3)
	v.SetDefault("fetch.initial_backoff_ms", 500)
	v.SetDefault("fetch.max_backoff_ms", 10000)
	v.SetDefault("fetch.requests_per_second", 2.0)
	v.SetDefault("fetch.on_failure", "mark")
	v.SetDefault("fetch.cache_entries", 64)
	v.SetDefault("fetch.cache_ttl_mins", 30)
	v.SetDefault("paths.work_dir", "img")
	v.SetDefault("paths.output_dir", "prints")
	v.SetDefault("paths.assets_dir", "assets")
	v.SetDefault("paths.web_map", "assets/web_map.json")
	v.SetDefault("paths.web_map_clustered", "assets/web_map_clustered.json")
	v.SetDefault("colors.pastel_factor", 0.9)
	v.SetDefault("colors.trials", 100)
	v.SetDefault("colors.outline_offset", 45)
	v.SetDefault("cluster.eps", 150.0)
	v.SetDefault("cluster.min_pts", 3)
	v.SetDefault("cluster.metric", "haversine")
	v.SetDefault("print.format", "pdf")
	v.SetDefault("print.dpi", 300)
	v.SetDefault("publish.target", "none")
	v.SetDefault("publish.ftp.timeout_secs", 30)
	v.SetDefault("monitoring.failure_rate_threshold", 0.10)
	v.SetDefault("monitoring.incomplete_rate_threshold", 0.25)
	v.SetDefault("monitoring.min_pages", 5)
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	checks := []struct {
		item    string
		value   string
		allowed []string
	}{
		{"store.driver", c.Store.Driver, []string{"postgres", "sqlite", "csv", "xlsx"}},
		{"provider.name", c.Provider.Name, []string{"esri", "mapbox"}},
		{"fetch.on_failure", c.Fetch.OnFailure, []string{"fail", "mark"}},
		{"cluster.metric", c.Cluster.Metric, []string{"haversine", "euclidean"}},
		{"print.format", c.Print.Format, []string{"pdf", "jpg"}},
		{"publish.target", c.Publish.Target, []string{"none", "ftp", "minio"}},
	}
	for _, chk := range checks {
		if !contains(chk.allowed, chk.value) {
			return &model.ConfigurationError{
				Item: chk.item,
				Err:  eris.Errorf("config: %q is not one of %s", chk.value, strings.Join(chk.allowed, ", ")),
			}
		}
	}
	if c.Print.DPI <= 0 {
		return &model.ConfigurationError{Item: "print.dpi", Err: eris.New("config: dpi must be positive")}
	}
	if c.Paths.WorkDir != "" && filepath.Clean(c.Paths.WorkDir) == filepath.Clean(c.Paths.OutputDir) {
		return &model.ConfigurationError{Item: "paths.output_dir", Err: eris.New("config: output dir must differ from work dir, cleanup empties the work dir")}
	}
	if c.Colors.PastelFactor < 0 {
		return &model.ConfigurationError{Item: "colors.pastel_factor", Err: eris.New("config: pastel factor must not be negative")}
	}
	return nil
}

// Require checks the settings a command needs beyond the defaults. Mode is
// one of "store", "fetch" or "publish"; all missing items are reported together.
func (c *Config) Require(mode string) error {
	var missing []string
	switch mode {
	case "store":
		switch c.Store.Driver {
		case "postgres":
			if c.Store.DatabaseURL == "" {
				missing = append(missing, "store.database_url is required")
			}
		default:
			if c.Store.Path == "" && c.Store.DatabaseURL == "" {
				missing = append(missing, "store.path is required")
			}
		}
	case "fetch":
		if c.Provider.Name == "mapbox" && c.Provider.Mapbox.Token == "" {
			missing = append(missing, "provider.mapbox.token is required")
		}
		if c.Provider.Name == "esri" && c.Provider.ArcGIS.URL == "" {
			missing = append(missing, "provider.arcgis.url is required")
		}
	case "publish":
		switch c.Publish.Target {
		case "ftp":
			if c.Publish.FTP.URL == "" {
				missing = append(missing, "publish.ftp.url is required")
			}
		case "minio":
			if c.Publish.MinIO.Endpoint == "" {
				missing = append(missing, "publish.minio.endpoint is required")
			}
			if c.Publish.MinIO.Bucket == "" {
				missing = append(missing, "publish.minio.bucket is required")
			}
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}
	if len(missing) > 0 {
		return &model.ConfigurationError{Item: mode, Err: eris.New(strings.Join(missing, "; "))}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
