package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"ledger-transfers/internal/metrics"
)

type DispatcherConfig struct {
	QueueSize      int
	MaxAttempts    int
	InitialBackoff time.Duration
	PublishTimeout time.Duration
}

func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		QueueSize:      256,
		MaxAttempts:    3,
		InitialBackoff: 100 * time.Millisecond,
		PublishTimeout: 5 * time.Second,
	}
}

// Dispatcher hands events to a Publisher on its own goroutine. Notify never
// blocks; publish failures are retried and then logged, never returned.
type Dispatcher struct {
	publisher Publisher
	cfg       DispatcherConfig
	logger    *slog.Logger

	queue chan Event
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(publisher Publisher, cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	d := &Dispatcher{
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
		queue:     make(chan Event, cfg.QueueSize),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

func (d *Dispatcher) Notify(e Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.logger.Warn("Dispatcher closed, dropping event", "type", e.Type, "transaction_id", e.TransactionID)
		metrics.EventResult(metrics.EventDropped)
		return
	}
	select {
	case d.queue <- e:
	default:
		d.logger.Error("Event queue full, dropping event", "type", e.Type, "transaction_id", e.TransactionID)
		metrics.EventResult(metrics.EventDropped)
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for e := range d.queue {
		d.deliver(e)
	}
}

func (d *Dispatcher) deliver(e Event) {
	backoff := d.cfg.InitialBackoff
	for attempt := 1; ; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.PublishTimeout)
		err := d.publisher.Publish(ctx, e)
		cancel()
		if err == nil {
			metrics.EventResult(metrics.EventPublished)
			return
		}
		if attempt >= d.cfg.MaxAttempts {
			metrics.EventResult(metrics.EventFailed)
			d.logger.Error("Failed to publish event",
				"type", e.Type,
				"transaction_id", e.TransactionID,
				"attempts", attempt,
				"error", err)
			return
		}
		d.logger.Warn("Retrying event publish", "type", e.Type, "attempt", attempt, "error", err)
		time.Sleep(backoff)
		backoff *= 2
	}
}

// Close stops accepting events, drains the queue and closes the publisher.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
	return d.publisher.Close()
}
