// Package player drives frame-indexed playback.
//
// Every request for a frame bumps a generation counter and the load carries
// the generation it was issued under. A completed load is applied only if its
// generation is still current, so the display always reflects the most
// recently requested frame no matter the order in which loads finish.
package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/storm-raster-viewer/internal/domain"
	"github.com/couchcryptid/storm-raster-viewer/internal/observability"
	"github.com/jonboulle/clockwork"
)

// DefaultInterval is the autoplay tick period.
const DefaultInterval = time.Second

// ErrDisposed is returned by operations on a disposed Player.
var ErrDisposed = errors.New("player disposed")

// Loader produces the display frame for an index.
type Loader interface {
	Load(ctx context.Context, index int) (domain.DisplayFrame, error)
}

// Phase is the load state of the player.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseLoading Phase = "loading"
	PhaseReady   Phase = "ready"
)

// State is a snapshot of the playback state.
type State struct {
	CurrentIndex   int    `json:"current_index"`
	FrameCount     int    `json:"frame_count"`
	IsPlaying      bool   `json:"is_playing"`
	Loading        bool   `json:"loading"`
	Phase          Phase  `json:"phase"`
	DisplayedIndex int    `json:"displayed_index"`
	LastError      string `json:"last_error,omitempty"`
	Disposed       bool   `json:"disposed"`
}

// EventKind identifies a player notification.
type EventKind string

const (
	EventStateChanged EventKind = "state_changed"
	EventFrameApplied EventKind = "frame_applied"
	EventLoadFailed   EventKind = "load_failed"
)

// Event is delivered to subscribers after every state change.
type Event struct {
	Kind  EventKind
	State State
	Frame *domain.DisplayFrame
	Index int
	Err   error
}

// Option configures a Player.
type Option func(*Player)

// WithInterval sets the autoplay tick period.
func WithInterval(d time.Duration) Option {
	return func(p *Player) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithClock replaces the real clock, for tests.
func WithClock(c clockwork.Clock) Option {
	return func(p *Player) { p.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Player) { p.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) Option {
	return func(p *Player) { p.metrics = m }
}

// Player owns the playback state for one view.
type Player struct {
	loader     Loader
	frameCount int
	interval   time.Duration
	clock      clockwork.Clock
	logger     *slog.Logger
	metrics    *observability.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	loads  sync.WaitGroup

	mu          sync.Mutex
	current     int
	playing     bool
	loading     bool
	generation  uint64
	displayed   *domain.DisplayFrame
	lastErr     error
	disposed    bool
	ticker      clockwork.Ticker
	stopTicking chan struct{}
	subscribers map[int]func(Event)
	nextSubID   int
}

// New creates a Player over frameCount frames, starting at index 0, paused
// and idle. No frame is requested until Start or SetIndex is called.
func New(loader Loader, frameCount int, opts ...Option) (*Player, error) {
	if frameCount <= 0 {
		return nil, fmt.Errorf("frame count must be positive, got %d", frameCount)
	}
	p := &Player{
		loader:      loader,
		frameCount:  frameCount,
		interval:    DefaultInterval,
		clock:       clockwork.NewRealClock(),
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics:     observability.NewMetricsForTesting(),
		subscribers: make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())
	return p, nil
}

// Start requests the current frame and ties the player's lifetime to ctx:
// when ctx is done the player is disposed.
func (p *Player) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return ErrDisposed
	}
	p.requestLocked(p.current)
	p.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			p.Dispose()
		case <-p.ctx.Done():
		}
	}()
	return nil
}

// FrameCount returns the number of frames in the sequence.
func (p *Player) FrameCount() int {
	return p.frameCount
}

// SetIndex requests frame i. Any load still in flight is superseded. An
// out-of-range index fails with ErrIndexOutOfRange and changes nothing.
func (p *Player) SetIndex(i int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.disposed {
		return ErrDisposed
	}
	if i < 0 || i >= p.frameCount {
		return fmt.Errorf("%w: %d not in [0, %d)", domain.ErrIndexOutOfRange, i, p.frameCount)
	}
	p.requestLocked(i)
	return nil
}

// requestLocked moves to Loading(i) and issues the load. p.mu must be held.
func (p *Player) requestLocked(i int) {
	p.current = i
	p.generation++
	gen := p.generation
	p.loading = true

	p.metrics.FramesRequested.Inc()
	p.metrics.CurrentFrame.Set(float64(i))
	p.notifyLocked(Event{Kind: EventStateChanged, Index: i})

	p.loads.Add(1)
	go p.load(p.ctx, i, gen)
}

func (p *Player) load(ctx context.Context, i int, gen uint64) {
	defer p.loads.Done()

	frame, err := p.loader.Load(ctx, i)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.disposed || gen != p.generation {
		p.metrics.FramesSuperseded.Inc()
		p.logger.Debug("discarding superseded frame", "index", i, "current", p.current)
		return
	}

	p.loading = false
	if err != nil {
		p.lastErr = err
		p.metrics.FramesFailed.Inc()
		p.logger.Warn("frame load failed, keeping previous frame", "index", i, "error", err)
		p.notifyLocked(Event{Kind: EventLoadFailed, Index: i, Err: err})
		return
	}

	frame.AppliedAt = p.clock.Now()
	p.displayed = &frame
	p.lastErr = nil
	p.ready.Store(true)
	p.metrics.FramesApplied.Inc()
	p.logger.Debug("frame applied", "index", i, "name", frame.Name)
	p.notifyLocked(Event{Kind: EventFrameApplied, Index: i, Frame: &frame})
}

// Play starts autoplay. Each tick advances by one frame and wraps from the
// last frame back to 0. Playing an already playing player is a no-op.
func (p *Player) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.disposed {
		return ErrDisposed
	}
	if p.playing {
		return nil
	}
	p.playing = true
	p.ticker = p.clock.NewTicker(p.interval)
	p.stopTicking = make(chan struct{})
	go p.tick(p.ticker, p.stopTicking)

	p.metrics.PlaybackRunning.Set(1)
	p.logger.Info("playback started", "index", p.current, "interval", p.interval)
	p.notifyLocked(Event{Kind: EventStateChanged, Index: p.current})
	return nil
}

func (p *Player) tick(t clockwork.Ticker, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-t.Chan():
			p.advance(stop)
		}
	}
}

func (p *Player) advance(stop <-chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// A tick that raced with Pause or Dispose is dropped.
	select {
	case <-stop:
		return
	default:
	}
	if p.disposed || !p.playing {
		return
	}
	p.requestLocked((p.current + 1) % p.frameCount)
}

// Pause stops autoplay. Loads already in flight still complete and apply.
func (p *Player) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.disposed {
		return ErrDisposed
	}
	if !p.playing {
		return nil
	}
	p.stopTickerLocked()
	p.logger.Info("playback paused", "index", p.current)
	p.notifyLocked(Event{Kind: EventStateChanged, Index: p.current})
	return nil
}

// Toggle switches between playing and paused.
func (p *Player) Toggle() error {
	p.mu.Lock()
	playing := p.playing
	p.mu.Unlock()

	if playing {
		return p.Pause()
	}
	return p.Play()
}

func (p *Player) stopTickerLocked() {
	p.playing = false
	if p.ticker != nil {
		p.ticker.Stop()
		close(p.stopTicking)
		p.ticker = nil
		p.stopTicking = nil
	}
	p.metrics.PlaybackRunning.Set(0)
}

// Dispose stops the timer and supersedes every in-flight load. No state
// changes and no notifications happen afterwards. Safe to call repeatedly.
func (p *Player) Dispose() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.disposed {
		return
	}
	p.stopTickerLocked()
	p.disposed = true
	p.generation++
	p.loading = false
	p.subscribers = nil
	p.cancel()
	p.logger.Info("player disposed", "index", p.current)
}

// State returns a snapshot of the playback state.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stateLocked()
}

func (p *Player) stateLocked() State {
	s := State{
		CurrentIndex:   p.current,
		FrameCount:     p.frameCount,
		IsPlaying:      p.playing,
		Loading:        p.loading,
		DisplayedIndex: -1,
		Disposed:       p.disposed,
	}
	switch {
	case p.loading:
		s.Phase = PhaseLoading
	case p.displayed != nil:
		s.Phase = PhaseReady
	default:
		s.Phase = PhaseIdle
	}
	if p.displayed != nil {
		s.DisplayedIndex = p.displayed.Index
	}
	if p.lastErr != nil {
		s.LastError = p.lastErr.Error()
	}
	return s
}

// Current returns the frame on display, if any.
func (p *Player) Current() (domain.DisplayFrame, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.displayed == nil {
		return domain.DisplayFrame{}, false
	}
	return *p.displayed, true
}

// Subscribe registers fn for every subsequent event and returns a function
// that removes it. fn runs while the player's lock is held, so it must not
// call back into the Player and should return quickly.
func (p *Player) Subscribe(fn func(Event)) (unsubscribe func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed {
		return func() {}
	}
	id := p.nextSubID
	p.nextSubID++
	p.subscribers[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.subscribers, id)
	}
}

func (p *Player) notifyLocked(e Event) {
	if len(p.subscribers) == 0 {
		return
	}
	e.State = p.stateLocked()
	for id := 0; id < p.nextSubID; id++ {
		if fn, ok := p.subscribers[id]; ok {
			fn(e)
		}
	}
}

// CheckReadiness returns nil once a frame has been applied, or an error
// describing why the viewer is not yet ready.
func (p *Player) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("player has not applied any frame yet")
	}
	return nil
}
