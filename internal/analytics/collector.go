package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bibmatch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/bibmatch/pkg/resilience"
)

const publishTimeout = 10 * time.Second

// Publisher is implemented by *kafka.Producer.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Collector buffers events on a channel. A single goroutine records each
// one in the Aggregator and publishes them in batches, flushing when the
// batch is full or the interval elapses.
type Collector struct {
	publisher     Publisher
	aggregator    *Aggregator
	eventCh       chan MatchEvent
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger
	done          chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewCollector creates a Collector. Either sink may be nil.
func NewCollector(publisher Publisher, aggregator *Aggregator, bufferSize, batchSize int, flushInterval time.Duration) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &Collector{
		publisher:     publisher,
		aggregator:    aggregator,
		eventCh:       make(chan MatchEvent, bufferSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        slog.Default().With("component", "analytics-collector"),
		done:          make(chan struct{}),
	}
}

// Start launches the collector loop. It stops when ctx is cancelled or
// Close is called, flushing whatever is buffered.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.flushInterval)
		defer ticker.Stop()

		batch := make([]kafka.Event, 0, c.batchSize)
		flush := func(ctx context.Context) {
			if len(batch) == 0 || c.publisher == nil {
				batch = batch[:0]
				return
			}
			events := batch
			err := resilience.WithTimeout(ctx, publishTimeout, "publish match events", func(ctx context.Context) error {
				return c.publisher.PublishBatch(ctx, events)
			})
			if err != nil {
				c.logger.Error("failed to publish analytics batch", "count", len(events), "error", err)
			}
			// A timed-out publish may still hold events.
			batch = make([]kafka.Event, 0, c.batchSize)
		}
		add := func(event MatchEvent) {
			if c.aggregator != nil {
				c.aggregator.Record(event)
			}
			batch = append(batch, kafka.Event{Key: event.Query, Value: event})
		}

		for {
			select {
			case event, ok := <-c.eventCh:
				if !ok {
					flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					flush(flushCtx)
					cancel()
					return
				}
				add(event)
				if len(batch) >= c.batchSize {
					flush(ctx)
				}
			case <-ticker.C:
				flush(ctx)
			case <-ctx.Done():
				c.drain(add)
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				flush(flushCtx)
				cancel()
				return
			}
		}
	}()
	c.logger.Info("analytics collector started",
		"buffer_size", cap(c.eventCh),
		"batch_size", c.batchSize,
		"kafka", c.publisher != nil,
	)
}

// Track enqueues an event without blocking. Events are dropped when the
// buffer is full or the collector is closed.
func (c *Collector) Track(event MatchEvent) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.eventCh <- event:
	default:
		c.logger.Warn("analytics event dropped (buffer full)")
	}
}

// Close stops accepting events and waits for the loop to flush.
func (c *Collector) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.eventCh)
	c.mu.Unlock()
	<-c.done
}

func (c *Collector) drain(add func(MatchEvent)) {
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				return
			}
			add(event)
		default:
			return
		}
	}
}
