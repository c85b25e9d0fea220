package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/couchcryptid/storm-raster-viewer/internal/config"
	"github.com/couchcryptid/storm-raster-viewer/internal/domain"
	"github.com/couchcryptid/storm-raster-viewer/internal/observability"
	kafkago "github.com/segmentio/kafka-go"
)

// DefaultBuffer is how many frame events may wait for publishing before new
// ones are dropped.
const DefaultBuffer = 64

// FrameEvent is published every time the player applies a frame.
type FrameEvent struct {
	Index     int           `json:"index"`
	Name      string        `json:"name"`
	FrameTime time.Time     `json:"frame_time"`
	Bounds    domain.Bounds `json:"bounds"`
	Width     int           `json:"width"`
	Height    int           `json:"height"`
	AppliedAt time.Time     `json:"applied_at"`
}

// NewFrameEvent describes an applied frame.
func NewFrameEvent(f domain.DisplayFrame) FrameEvent {
	return FrameEvent{
		Index:     f.Index,
		Name:      f.Name,
		FrameTime: f.Time,
		Bounds:    f.Bitmap.Bounds,
		Width:     f.Bitmap.Width,
		Height:    f.Bitmap.Height,
		AppliedAt: f.AppliedAt,
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer publishes frame events to a Kafka topic from a background goroutine.
// Publish never blocks, so it is safe to call from a player subscriber.
type Writer struct {
	writer  messageWriter
	logger  *slog.Logger
	metrics *observability.Metrics

	mu     sync.Mutex
	closed bool
	events chan FrameEvent
	done   chan struct{}
}

// NewWriter creates a Kafka producer for the configured frame topic and
// starts its publishing loop.
func NewWriter(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaFrameTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	return newWriter(w, DefaultBuffer, logger, metrics)
}

func newWriter(mw messageWriter, buffer int, logger *slog.Logger, metrics *observability.Metrics) *Writer {
	w := &Writer{
		writer:  mw,
		logger:  logger,
		metrics: metrics,
		events:  make(chan FrameEvent, buffer),
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

// Publish queues an event. When the queue is full or the writer is closed
// the event is dropped.
func (w *Writer) Publish(e FrameEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		w.metrics.EventsPublished.WithLabelValues("dropped").Inc()
		return
	}
	select {
	case w.events <- e:
	default:
		w.metrics.EventsPublished.WithLabelValues("dropped").Inc()
		w.logger.Warn("frame event queue full, dropping event", "index", e.Index)
	}
}

func (w *Writer) run() {
	defer close(w.done)
	for e := range w.events {
		msg, err := serializeToMessage(e)
		if err != nil {
			w.metrics.EventsPublished.WithLabelValues("error").Inc()
			w.logger.Error("serialize frame event", "index", e.Index, "error", err)
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = w.writer.WriteMessages(ctx, msg)
		cancel()
		if err != nil {
			w.metrics.EventsPublished.WithLabelValues("error").Inc()
			w.logger.Error("publish frame event", "index", e.Index, "error", err)
			continue
		}
		w.metrics.EventsPublished.WithLabelValues("success").Inc()
	}
}

// Close drains queued events and closes the producer.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.events)
	w.mu.Unlock()

	<-w.done
	return w.writer.Close()
}

// serializeToMessage marshals a FrameEvent into a Kafka message keyed by
// frame name.
func serializeToMessage(e FrameEvent) (kafkago.Message, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize frame event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(e.Name),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "frame_index", Value: []byte(strconv.Itoa(e.Index))},
			{Key: "applied_at", Value: []byte(e.AppliedAt.Format(time.RFC3339))},
		},
	}, nil
}
