package config

import (
	"testing"
	"time"

	"github.com/couchcryptid/storm-raster-viewer/internal/domain"
	"github.com/couchcryptid/storm-raster-viewer/internal/heatmap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const defaultBroker = "localhost:9092"

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("RASTER_DATE", "20240707")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, SourceFile, cfg.RasterSource)
	assert.Equal(t, "data", cfg.RasterBase)
	assert.Equal(t, time.Date(2024, time.July, 7, 0, 0, 0, 0, time.UTC), cfg.RasterDate)
	assert.Nil(t, cfg.RasterBounds)
	assert.Equal(t, 10*time.Minute, cfg.FrameStep)
	assert.Equal(t, 144, cfg.FrameCount)
	assert.Equal(t, time.Second, cfg.PlaybackInterval)
	assert.False(t, cfg.Autoplay)
	assert.Equal(t, 2, cfg.FetchRetries)
	assert.Equal(t, 32, cfg.FrameCacheSize)
	assert.True(t, cfg.MaskBackground)
	assert.Equal(t, uint8(1), cfg.BackgroundThreshold)
	assert.Equal(t, "EPSG:4326", cfg.SourceCRS)
	assert.Equal(t, "EPSG:4326", cfg.TargetCRS)
	assert.Empty(t, cfg.OverlayRefresh)
	assert.Equal(t, heatmap.DefaultWeights, cfg.HeatmapWeights)
	assert.Equal(t, heatmap.DefaultStyle(), cfg.HeatmapStyle())
	assert.False(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{defaultBroker}, cfg.KafkaBrokers)
	assert.Equal(t, "raster-frames-applied", cfg.KafkaFrameTopic)
	assert.Equal(t, [2]float64{127.5, 38.0}, cfg.MapCenter)
	assert.InDelta(t, 5.5, cfg.MapZoom, 0)

	assert.Equal(t, "swrad_202407070050_jet.tif", cfg.Namer().Name(5))
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("RASTER_SOURCE", "HTTP")
	t.Setenv("RASTER_BASE", "https://example.com/frames")
	t.Setenv("RASTER_DATE", "20250101")
	t.Setenv("RASTER_BOUNDS", "120,30,135,45")
	t.Setenv("FRAME_STEP", "30m")
	t.Setenv("PLAYBACK_INTERVAL", "500ms")
	t.Setenv("AUTOPLAY", "true")
	t.Setenv("MASK_BACKGROUND", "false")
	t.Setenv("BACKGROUND_THRESHOLD", "8")
	t.Setenv("SOURCE_CRS", "GK2A:LCC")
	t.Setenv("OVERLAY_BOUNDARY", "boundary.geojson")
	t.Setenv("OVERLAY_REFRESH", "@hourly")
	t.Setenv("HEATMAP_WEIGHTS", "0:1.0,1:0.5,2:0.7")
	t.Setenv("HEATMAP_RADIUS", "25")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("MAP_CENTER", "126.9,37.5")
	t.Setenv("MAP_ZOOM", "7")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, SourceHTTP, cfg.RasterSource)
	assert.Equal(t, &domain.Bounds{West: 120, South: 30, East: 135, North: 45}, cfg.RasterBounds)
	assert.Equal(t, 48, cfg.FrameCount)
	assert.Equal(t, 500*time.Millisecond, cfg.PlaybackInterval)
	assert.True(t, cfg.Autoplay)
	assert.False(t, cfg.MaskBackground)
	assert.Equal(t, uint8(8), cfg.BackgroundThreshold)
	assert.Equal(t, "GK2A:LCC", cfg.SourceCRS)
	assert.Equal(t, "boundary.geojson", cfg.OverlayBoundary)
	assert.Equal(t, "@hourly", cfg.OverlayRefresh)
	assert.InDelta(t, 0.7, cfg.HeatmapWeights.Weight(2), 0)
	assert.InDelta(t, 25, cfg.HeatmapRadius, 0)
	assert.True(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, [2]float64{126.9, 37.5}, cfg.MapCenter)
	assert.InDelta(t, 7, cfg.MapZoom, 0)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"SHUTDOWN_TIMEOUT", "not-a-duration"},
		{"RASTER_SOURCE", "ftp"},
		{"RASTER_DATE", "2024-07-07"},
		{"RASTER_BOUNDS", "135,30,120,45"},
		{"FRAME_STEP", "-1m"},
		{"FRAME_COUNT", "abc"},
		{"PLAYBACK_INTERVAL", "0s"},
		{"AUTOPLAY", "maybe"},
		{"FETCH_RETRIES", "99"},
		{"FRAME_CACHE_SIZE", "0"},
		{"BACKGROUND_THRESHOLD", "256"},
		{"OVERLAY_REFRESH", "every day"},
		{"HEATMAP_WEIGHTS", "0:2.0"},
		{"HEATMAP_RAMP", "1,2"},
		{"HEATMAP_RADIUS", "0"},
		{"HEATMAP_THRESHOLD", "1.5"},
		{"HEATMAP_OPACITY", "x"},
		{"MAP_CENTER", "200,0"},
		{"MAP_ZOOM", "far"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestLoad_KafkaEnabledWithoutBrokers(t *testing.T) {
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", " , ")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KAFKA_BROKERS")
}

func TestParseBounds(t *testing.T) {
	b, err := ParseBounds(" 120, 30 ,135,45")
	require.NoError(t, err)
	assert.Equal(t, domain.Bounds{West: 120, South: 30, East: 135, North: 45}, b)

	_, err = ParseBounds("1,2,3")
	require.Error(t, err)
}
