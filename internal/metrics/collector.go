package metrics

import (
	"context"
	"log/slog"
	"time"
)

type EventType string

const (
	EventResolved    EventType = "resolved"
	EventInitialized EventType = "initialized"
	EventForwarded   EventType = "forwarded"
	EventFailed      EventType = "failed"
)

type Event struct {
	Type      EventType
	Timestamp time.Time
	Filter    string
	Duration  time.Duration
	Reason    string
}

type Collector struct {
	eventCh chan Event
	metrics *Metrics
	logger  *slog.Logger
}

func NewCollector(bufferSize int, logger *slog.Logger) *Collector {
	return &Collector{
		eventCh: make(chan Event, bufferSize),
		metrics: NewMetrics(),
		logger:  logger,
	}
}

func (c *Collector) EventChannel() chan<- Event {
	return c.eventCh
}

func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Info("Metrics collector started")
	defer c.logger.Info("Metrics collector stopped")

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			// Drain remaining events before shutdown
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event Event) {
	switch event.Type {
	case EventResolved:
		c.metrics.RecordResolution(event.Filter, event.Timestamp)

	case EventInitialized:
		c.metrics.RecordInitialization(event.Filter)

	case EventForwarded:
		c.metrics.RecordRequest(event.Filter, event.Duration)

	case EventFailed:
		c.metrics.RecordFailure(event.Filter, event.Reason)

	default:
		c.logger.Debug("Dropping unknown metric event", slog.String("type", string(event.Type)))
	}
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}

func (c *Collector) Snapshot() Snapshot {
	return c.metrics.Snapshot()
}

func (c *Collector) Metrics() *Metrics {
	return c.metrics
}
