package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/couchcryptid/storm-raster-viewer/internal/domain"
	"github.com/couchcryptid/storm-raster-viewer/internal/geo"
	"github.com/couchcryptid/storm-raster-viewer/internal/heatmap"
	"github.com/robfig/cron/v3"
)

// Raster source kinds.
const (
	SourceFile = "file"
	SourceHTTP = "http"
)

// Config holds all viewer settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Raster frames.
	RasterSource     string
	RasterBase       string
	RasterPrefix     string
	RasterSuffix     string
	RasterDate       time.Time
	RasterBounds     *domain.Bounds
	FrameStep        time.Duration
	FrameCount       int
	PlaybackInterval time.Duration
	Autoplay         bool
	FetchTimeout     time.Duration
	FetchRetries     int
	FrameCacheSize   int

	MaskBackground      bool
	BackgroundThreshold uint8
	SourceCRS           string
	TargetCRS           string

	// Vector overlays, fetched by name from the raster source.
	OverlayBoundary  string
	OverlayCoastline string
	OverlayRefresh   string

	// Density layer. HeatmapRaster is a single-band categorical raster and
	// HeatmapPoints a GeoJSON file of Point features; either may be empty.
	HeatmapRaster    string
	HeatmapPoints    string
	HeatmapWeights   heatmap.WeightTable
	HeatmapRadius    float64
	HeatmapIntensity float64
	HeatmapThreshold float64
	HeatmapOpacity   float64
	HeatmapRamp      heatmap.Ramp

	KafkaEnabled    bool
	KafkaBrokers    []string
	KafkaFrameTopic string

	MapCenter [2]float64
	MapZoom   float64
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:         sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:         sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:        sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:  shutdownTimeout,
		RasterSource:     strings.ToLower(sharedcfg.EnvOrDefault("RASTER_SOURCE", SourceFile)),
		RasterBase:       sharedcfg.EnvOrDefault("RASTER_BASE", "data"),
		RasterPrefix:     sharedcfg.EnvOrDefault("RASTER_PREFIX", "swrad_"),
		RasterSuffix:     sharedcfg.EnvOrDefault("RASTER_SUFFIX", "_jet.tif"),
		SourceCRS:        sharedcfg.EnvOrDefault("SOURCE_CRS", geo.WGS84),
		TargetCRS:        sharedcfg.EnvOrDefault("TARGET_CRS", geo.WGS84),
		OverlayBoundary:  os.Getenv("OVERLAY_BOUNDARY"),
		OverlayCoastline: os.Getenv("OVERLAY_COASTLINE"),
		OverlayRefresh:   os.Getenv("OVERLAY_REFRESH"),
		HeatmapRaster:    os.Getenv("HEATMAP_RASTER"),
		HeatmapPoints:    os.Getenv("HEATMAP_POINTS"),
		KafkaBrokers:     sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaFrameTopic:  sharedcfg.EnvOrDefault("KAFKA_FRAME_TOPIC", "raster-frames-applied"),
	}

	if cfg.RasterSource != SourceFile && cfg.RasterSource != SourceHTTP {
		return nil, fmt.Errorf("invalid RASTER_SOURCE %q: must be file or http", cfg.RasterSource)
	}

	date := sharedcfg.EnvOrDefault("RASTER_DATE", time.Now().UTC().Format("20060102"))
	if cfg.RasterDate, err = time.Parse("20060102", date); err != nil {
		return nil, errors.New("invalid RASTER_DATE: must be YYYYMMDD")
	}
	if s := os.Getenv("RASTER_BOUNDS"); s != "" {
		b, err := ParseBounds(s)
		if err != nil {
			return nil, fmt.Errorf("invalid RASTER_BOUNDS: %w", err)
		}
		cfg.RasterBounds = &b
	}

	if cfg.FrameStep, err = parseDuration("FRAME_STEP", "10m"); err != nil {
		return nil, err
	}
	if cfg.FrameCount, err = parseInt("FRAME_COUNT", 0, 0, 100000); err != nil {
		return nil, err
	}
	if cfg.FrameCount == 0 {
		cfg.FrameCount = domain.Namer{Step: cfg.FrameStep}.FramesPerDay()
	}
	if cfg.PlaybackInterval, err = parseDuration("PLAYBACK_INTERVAL", "1s"); err != nil {
		return nil, err
	}
	if cfg.Autoplay, err = parseBool("AUTOPLAY", false); err != nil {
		return nil, err
	}
	if cfg.FetchTimeout, err = parseDuration("FETCH_TIMEOUT", "10s"); err != nil {
		return nil, err
	}
	if cfg.FetchRetries, err = parseInt("FETCH_RETRIES", 2, 0, 10); err != nil {
		return nil, err
	}
	if cfg.FrameCacheSize, err = parseInt("FRAME_CACHE_SIZE", 32, 1, 10000); err != nil {
		return nil, err
	}
	if cfg.MaskBackground, err = parseBool("MASK_BACKGROUND", true); err != nil {
		return nil, err
	}
	threshold, err := parseInt("BACKGROUND_THRESHOLD", 1, 0, 255)
	if err != nil {
		return nil, err
	}
	cfg.BackgroundThreshold = uint8(threshold)

	if cfg.OverlayRefresh != "" {
		if _, err := cron.ParseStandard(cfg.OverlayRefresh); err != nil {
			return nil, fmt.Errorf("invalid OVERLAY_REFRESH: %w", err)
		}
	}

	if err := loadHeatmap(cfg); err != nil {
		return nil, err
	}

	if cfg.KafkaEnabled, err = parseBool("KAFKA_ENABLED", false); err != nil {
		return nil, err
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
	}
	if cfg.KafkaEnabled && cfg.KafkaFrameTopic == "" {
		return nil, errors.New("KAFKA_FRAME_TOPIC is required when KAFKA_ENABLED is true")
	}

	if cfg.MapCenter, err = parseCenter(sharedcfg.EnvOrDefault("MAP_CENTER", "127.5,38.0")); err != nil {
		return nil, err
	}
	if cfg.MapZoom, err = parseFloat("MAP_ZOOM", 5.5); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadHeatmap(cfg *Config) error {
	var err error
	cfg.HeatmapWeights = heatmap.DefaultWeights
	if s := os.Getenv("HEATMAP_WEIGHTS"); s != "" {
		if cfg.HeatmapWeights, err = heatmap.ParseWeights(s); err != nil {
			return fmt.Errorf("invalid HEATMAP_WEIGHTS: %w", err)
		}
	}
	cfg.HeatmapRamp = heatmap.DefaultRamp
	if s := os.Getenv("HEATMAP_RAMP"); s != "" {
		if cfg.HeatmapRamp, err = heatmap.ParseRamp(s); err != nil {
			return fmt.Errorf("invalid HEATMAP_RAMP: %w", err)
		}
	}

	def := heatmap.DefaultStyle()
	if cfg.HeatmapRadius, err = parseFloat("HEATMAP_RADIUS", def.Radius); err != nil {
		return err
	}
	if cfg.HeatmapRadius <= 0 {
		return errors.New("invalid HEATMAP_RADIUS: must be positive")
	}
	if cfg.HeatmapIntensity, err = parseFloat("HEATMAP_INTENSITY", def.Intensity); err != nil {
		return err
	}
	if cfg.HeatmapThreshold, err = parseFloat("HEATMAP_THRESHOLD", def.Threshold); err != nil {
		return err
	}
	if cfg.HeatmapThreshold < 0 || cfg.HeatmapThreshold > 1 {
		return errors.New("invalid HEATMAP_THRESHOLD: must be in [0,1]")
	}
	if cfg.HeatmapOpacity, err = parseFloat("HEATMAP_OPACITY", def.Opacity); err != nil {
		return err
	}
	if cfg.HeatmapOpacity < 0 || cfg.HeatmapOpacity > 1 {
		return errors.New("invalid HEATMAP_OPACITY: must be in [0,1]")
	}
	return nil
}

// HeatmapStyle returns the configured density style.
func (c *Config) HeatmapStyle() heatmap.Style {
	return heatmap.Style{
		Radius:    c.HeatmapRadius,
		Intensity: c.HeatmapIntensity,
		Threshold: c.HeatmapThreshold,
		Opacity:   c.HeatmapOpacity,
		Ramp:      c.HeatmapRamp,
	}
}

// Namer returns the frame naming template.
func (c *Config) Namer() domain.Namer {
	return domain.Namer{Prefix: c.RasterPrefix, Suffix: c.RasterSuffix, Date: c.RasterDate, Step: c.FrameStep}
}

// ParseBounds parses "west,south,east,north".
func ParseBounds(s string) (domain.Bounds, error) {
	v, err := parseFloats(s, 4)
	if err != nil {
		return domain.Bounds{}, err
	}
	b := domain.Bounds{West: v[0], South: v[1], East: v[2], North: v[3]}
	if !b.Valid() {
		return domain.Bounds{}, errors.New("bounds are inverted or empty")
	}
	return b, nil
}

func parseCenter(s string) ([2]float64, error) {
	v, err := parseFloats(s, 2)
	if err != nil {
		return [2]float64{}, fmt.Errorf("invalid MAP_CENTER: %w", err)
	}
	if v[0] < -180 || v[0] > 180 || v[1] < -90 || v[1] > 90 {
		return [2]float64{}, errors.New("invalid MAP_CENTER: out of range")
	}
	return [2]float64{v[0], v[1]}, nil
}

func parseFloats(s string, n int) ([]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("want %d comma-separated values, got %d", n, len(parts))
	}
	out := make([]float64, n)
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}

func parseDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive duration", key)
	}
	return d, nil
}

func parseInt(key string, fallback, lo, hi int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("invalid %s: must be %d-%d", key, lo, hi)
	}
	return n, nil
}

func parseFloat(key string, fallback float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: must be a number", key)
	}
	return f, nil
}

func parseBool(key string, fallback bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s: must be true or false", key)
	}
	return b, nil
}
