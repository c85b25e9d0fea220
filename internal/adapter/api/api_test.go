package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/storm-raster-viewer/internal/adapter/api"
	"github.com/couchcryptid/storm-raster-viewer/internal/adapter/source"
	"github.com/couchcryptid/storm-raster-viewer/internal/domain"
	"github.com/couchcryptid/storm-raster-viewer/internal/heatmap"
	"github.com/couchcryptid/storm-raster-viewer/internal/mapview"
	"github.com/couchcryptid/storm-raster-viewer/internal/observability"
	"github.com/couchcryptid/storm-raster-viewer/internal/overlay"
	"github.com/couchcryptid/storm-raster-viewer/internal/player"
	"github.com/gin-gonic/gin"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// --- mocks ---

type fakePlayer struct {
	state   player.State
	frame   *domain.DisplayFrame
	err     error
	indexes []int
}

func (f *fakePlayer) State() player.State { return f.state }

func (f *fakePlayer) Current() (domain.DisplayFrame, bool) {
	if f.frame == nil {
		return domain.DisplayFrame{}, false
	}
	return *f.frame, true
}

func (f *fakePlayer) SetIndex(i int) error {
	if f.err != nil {
		return f.err
	}
	if i < 0 || i >= f.state.FrameCount {
		return fmt.Errorf("%w: %d", domain.ErrIndexOutOfRange, i)
	}
	f.indexes = append(f.indexes, i)
	f.state.CurrentIndex = i
	f.state.Loading = true
	return nil
}

func (f *fakePlayer) Play() error {
	if f.err != nil {
		return f.err
	}
	f.state.IsPlaying = true
	return nil
}

func (f *fakePlayer) Pause() error {
	f.state.IsPlaying = false
	return f.err
}

func (f *fakePlayer) Toggle() error {
	f.state.IsPlaying = !f.state.IsPlaying
	return f.err
}

type staticOverlay struct {
	fc *geojson.FeatureCollection
}

func (s staticOverlay) Current() *geojson.FeatureCollection { return s.fc }

// reloadingOverlay swaps in next on Refresh, or fails with err.
type reloadingOverlay struct {
	fc   *geojson.FeatureCollection
	next *geojson.FeatureCollection
	err  error
}

func (r *reloadingOverlay) Current() *geojson.FeatureCollection { return r.fc }

func (r *reloadingOverlay) Refresh(_ context.Context) (*geojson.FeatureCollection, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.fc = r.next
	return r.fc, nil
}

var testFrame = &domain.DisplayFrame{
	Index: 5,
	Name:  "swrad_202407070050_jet.tif",
	Bitmap: domain.CompositedBitmap{
		Width: 2, Height: 1,
		Pix:    []uint8{0, 0, 0, 0, 200, 10, 10, 255},
		Bounds: domain.Bounds{West: 120, South: 30, East: 135, North: 45},
	},
}

var testPoints = []domain.WeightedPoint{
	{Lon: 126, Lat: 37, Category: 0, Weight: 1},
	{Lon: 128, Lat: 36, Category: 1, Weight: 0.5},
}

func newRouter(t *testing.T, p *fakePlayer, deps api.Deps) http.Handler {
	t.Helper()
	view, err := mapview.NewView(mapview.DefaultViewport(), slog.Default())
	require.NoError(t, err)
	t.Cleanup(view.Close)

	deps.Player = p
	deps.View = view
	deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	if deps.Density.Radius == 0 {
		deps.Density = heatmap.DefaultStyle()
	}
	return api.NewRouter(deps)
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// --- tests ---

func TestGetPlayer(t *testing.T) {
	p := &fakePlayer{state: player.State{CurrentIndex: 3, FrameCount: 144, Phase: player.PhaseReady}}
	h := newRouter(t, p, api.Deps{})

	rec := do(h, http.MethodGet, "/api/v1/player", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var s player.State
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
	assert.Equal(t, 3, s.CurrentIndex)
	assert.Equal(t, 144, s.FrameCount)
	assert.Equal(t, player.PhaseReady, s.Phase)
}

func TestPlayPauseToggle(t *testing.T) {
	p := &fakePlayer{state: player.State{FrameCount: 144}}
	h := newRouter(t, p, api.Deps{})

	require.Equal(t, http.StatusOK, do(h, http.MethodPost, "/api/v1/player/play", "").Code)
	assert.True(t, p.state.IsPlaying)
	require.Equal(t, http.StatusOK, do(h, http.MethodPost, "/api/v1/player/pause", "").Code)
	assert.False(t, p.state.IsPlaying)
	require.Equal(t, http.StatusOK, do(h, http.MethodPost, "/api/v1/player/toggle", "").Code)
	assert.True(t, p.state.IsPlaying)
}

func TestPlay_Disposed(t *testing.T) {
	p := &fakePlayer{err: player.ErrDisposed}
	h := newRouter(t, p, api.Deps{})

	rec := do(h, http.MethodPost, "/api/v1/player/play", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSetIndex(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"valid", `{"index": 7}`, http.StatusAccepted},
		{"zero", `{"index": 0}`, http.StatusAccepted},
		{"out of range", `{"index": 144}`, http.StatusBadRequest},
		{"negative", `{"index": -1}`, http.StatusBadRequest},
		{"missing", `{}`, http.StatusBadRequest},
		{"malformed", `{"index":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakePlayer{state: player.State{FrameCount: 144}}
			h := newRouter(t, p, api.Deps{})

			rec := do(h, http.MethodPut, "/api/v1/player/index", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestCurrentFrame_NoneYet(t *testing.T) {
	h := newRouter(t, &fakePlayer{}, api.Deps{})

	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/api/v1/frames/current", "").Code)
	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/api/v1/frames/current.png", "").Code)
}

func TestCurrentFramePNG(t *testing.T) {
	h := newRouter(t, &fakePlayer{frame: testFrame}, api.Deps{})

	rec := do(h, http.MethodGet, "/api/v1/frames/current.png", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "5", rec.Header().Get("X-Frame-Index"))

	img, err := png.Decode(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 2, img.Bounds().Dx())
	_, _, _, a := img.At(0, 0).RGBA()
	assert.Equal(t, uint32(0), a)
}

func TestCurrentFrame_Metadata(t *testing.T) {
	h := newRouter(t, &fakePlayer{frame: testFrame}, api.Deps{})

	rec := do(h, http.MethodGet, "/api/v1/frames/current", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "swrad_202407070050_jet.tif", body["name"])
	assert.Equal(t, "/api/v1/frames/current.png?i=5", body["image_url"])
}

func TestLayers(t *testing.T) {
	fc := geojson.NewFeatureCollection()
	f := geojson.NewFeature(orb.LineString{{126, 37}, {127, 37}})
	f.Properties[overlay.LineTypeKey] = overlay.TagBoundary
	fc.Append(f)

	h := newRouter(t, &fakePlayer{frame: testFrame}, api.Deps{
		Overlay: staticOverlay{fc: fc},
		Points:  testPoints,
	})

	rec := do(h, http.MethodGet, "/api/v1/layers", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var scene struct {
		Viewport mapview.Viewport `json:"viewport"`
		Layers   []struct {
			Type     string     `json:"type"`
			ImageURL string     `json:"image_url"`
			Bounds   [4]float64 `json:"bounds"`
		} `json:"layers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &scene))
	assert.InDelta(t, 127.5, scene.Viewport.Lon, 0)
	require.Len(t, scene.Layers, 3)
	assert.Equal(t, "bitmap", scene.Layers[0].Type)
	assert.Equal(t, [4]float64{120, 30, 135, 45}, scene.Layers[0].Bounds)
	assert.Equal(t, "density", scene.Layers[1].Type)
	assert.Equal(t, "line", scene.Layers[2].Type)
}

func TestLayers_OverlayMissing(t *testing.T) {
	h := newRouter(t, &fakePlayer{frame: testFrame}, api.Deps{Overlay: staticOverlay{}})

	rec := do(h, http.MethodGet, "/api/v1/layers", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"type":"line"`)
	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/api/v1/overlay", "").Code)
}

func TestOverlay(t *testing.T) {
	fc := geojson.NewFeatureCollection()
	fc.Append(geojson.NewFeature(orb.LineString{{126, 37}, {127, 37}}))
	h := newRouter(t, &fakePlayer{}, api.Deps{Overlay: staticOverlay{fc: fc}})

	rec := do(h, http.MethodGet, "/api/v1/overlay", "")
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := geojson.UnmarshalFeatureCollection(rec.Body.Bytes())
	require.NoError(t, err)
	assert.Len(t, got.Features, 1)
}

func TestRefreshOverlay(t *testing.T) {
	next := geojson.NewFeatureCollection()
	next.Append(geojson.NewFeature(orb.LineString{{126, 37}, {127, 37}}))
	next.Append(geojson.NewFeature(orb.LineString{{128, 35}, {129, 35}}))
	src := &reloadingOverlay{fc: geojson.NewFeatureCollection(), next: next}
	h := newRouter(t, &fakePlayer{}, api.Deps{Overlay: src})

	rec := do(h, http.MethodPost, "/api/v1/overlay/refresh", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"features":2}`, rec.Body.String())
	assert.Len(t, src.Current().Features, 2)
}

// docFetcher serves mutable in-memory documents.
type docFetcher struct {
	mu   sync.Mutex
	docs map[string]string
}

func (d *docFetcher) Fetch(_ context.Context, name string) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	doc, ok := d.docs[name]
	if !ok {
		return nil, &domain.FetchError{Name: name, Err: domain.ErrNotFound}
	}
	return []byte(doc), nil
}

func (d *docFetcher) set(name, doc string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.docs[name] = doc
}

func TestRefreshOverlay_BypassesDocumentCache(t *testing.T) {
	line := `{"type":"Feature","geometry":{"type":"LineString","coordinates":[[126,37],[127,37]]},"properties":{}}`
	docs := &docFetcher{docs: map[string]string{
		"boundary.geojson": `{"type":"FeatureCollection","features":[` + line + `]}`,
	}}
	cached := source.NewCached(docs, 8, time.Hour)
	t.Cleanup(cached.Close)

	loader := overlay.NewLoader(cached,
		[]overlay.Layer{{Tag: overlay.TagBoundary, Name: "boundary.geojson"}},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		observability.NewMetricsForTesting(),
	)
	_, err := loader.Load(context.Background())
	require.NoError(t, err)

	h := newRouter(t, &fakePlayer{}, api.Deps{Overlay: loader})

	docs.set("boundary.geojson", `{"type":"FeatureCollection","features":[`+line+`,`+line+`]}`)
	rec := do(h, http.MethodPost, "/api/v1/overlay/refresh", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"features":2}`, rec.Body.String())

	docs.set("boundary.geojson", `{"type":"FeatureCollection","features":[]}`)
	rec = do(h, http.MethodPost, "/api/v1/overlay/refresh", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"features":0}`, rec.Body.String())
}

func TestRefreshOverlay_Failure(t *testing.T) {
	prev := geojson.NewFeatureCollection()
	src := &reloadingOverlay{fc: prev, err: errors.New("fetch boundary.geojson: connection refused")}
	h := newRouter(t, &fakePlayer{}, api.Deps{Overlay: src})

	rec := do(h, http.MethodPost, "/api/v1/overlay/refresh", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
	assert.Same(t, prev, src.Current())
}

func TestRefreshOverlay_NotSupported(t *testing.T) {
	h := newRouter(t, &fakePlayer{}, api.Deps{Overlay: staticOverlay{}})
	assert.Equal(t, http.StatusNotImplemented, do(h, http.MethodPost, "/api/v1/overlay/refresh", "").Code)
}

func TestHeatmapPoints(t *testing.T) {
	h := newRouter(t, &fakePlayer{}, api.Deps{Points: testPoints})

	rec := do(h, http.MethodGet, "/api/v1/heatmap/points", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []domain.WeightedPoint
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, testPoints, got)
}

func TestHeatmapPNG(t *testing.T) {
	h := newRouter(t, &fakePlayer{}, api.Deps{Points: testPoints})

	rec := do(h, http.MethodGet, "/api/v1/heatmap.png?width=64&height=32&bbox=120,30,135,45", "")
	require.Equal(t, http.StatusOK, rec.Code)
	img, err := png.Decode(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())
	assert.Equal(t, 32, img.Bounds().Dy())

	// Identical requests render identical bytes.
	again := do(h, http.MethodGet, "/api/v1/heatmap.png?width=64&height=32&bbox=120,30,135,45", "")
	assert.Equal(t, rec.Body.Bytes(), again.Body.Bytes())
}

func TestHeatmapPNG_BadParams(t *testing.T) {
	h := newRouter(t, &fakePlayer{}, api.Deps{Points: testPoints})

	for _, q := range []string{"width=0", "height=abc", "bbox=1,2,3", "bbox=10,0,0,10", "bbox=-Inf,30,130,40", "bbox=120,NaN,130,40"} {
		rec := do(h, http.MethodGet, "/api/v1/heatmap.png?"+q, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestHeatmapPNG_NoPoints(t *testing.T) {
	h := newRouter(t, &fakePlayer{}, api.Deps{})
	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/api/v1/heatmap.png", "").Code)
}

func TestViewport(t *testing.T) {
	h := newRouter(t, &fakePlayer{}, api.Deps{})

	rec := do(h, http.MethodPut, "/api/v1/viewport", `{"lon":126.9,"lat":37.5,"zoom":30}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var vp mapview.Viewport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &vp))
	assert.InDelta(t, 20, vp.Zoom, 0)

	rec = do(h, http.MethodGet, "/api/v1/viewport", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &vp))
	assert.InDelta(t, 126.9, vp.Lon, 0)

	rec = do(h, http.MethodPut, "/api/v1/viewport", `{"lon":200,"lat":0,"zoom":3}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	h := newRouter(t, &fakePlayer{}, api.Deps{})

	rec := do(h, http.MethodOptions, "/api/v1/player", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
