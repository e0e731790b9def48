// Package events announces newly ingested documents on Kafka and reacts to
// announcements from other processes.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/internal/category"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/internal/document"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/pkg/resilience"
	"github.com/google/uuid"
)

const publishTimeout = 5 * time.Second

// DocumentIngested is published once for every inserted document.
type DocumentIngested struct {
	EventID    string            `json:"event_id"`
	Origin     string            `json:"origin"`
	Category   category.Category `json:"category"`
	Filename   string            `json:"filename"`
	Pages      int               `json:"pages"`
	Verdict    string            `json:"verdict"`
	IngestedAt time.Time         `json:"ingested_at"`
}

// Sender writes events to a topic. *kafka.Producer implements it.
type Sender interface {
	Publish(ctx context.Context, events ...kafka.Event) error
}

// Publisher turns ingestion results into DocumentIngested events. Calls go
// through a circuit breaker so an unreachable broker costs ingestion workers
// nothing once the breaker is open.
type Publisher struct {
	sender  Sender
	origin  string
	breaker *resilience.CircuitBreaker
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewPublisher creates a Publisher. origin identifies this process in the
// events it sends; m may be nil.
func NewPublisher(sender Sender, origin string, m *metrics.Metrics) *Publisher {
	return &Publisher{
		sender: sender,
		origin: origin,
		breaker: resilience.NewCircuitBreaker("kafka-document-ingested", resilience.CircuitBreakerConfig{
			FailureThreshold: 3,
			ResetTimeout:     30 * time.Second,
		}),
		metrics: m,
		logger:  slog.Default().With("component", "event-publisher"),
		now:     time.Now,
	}
}

// Notify publishes the event for an inserted document. Other outcomes are
// ignored.
func (p *Publisher) Notify(ctx context.Context, res document.Result) error {
	if res.Outcome != document.OutcomeInserted {
		return nil
	}
	event := DocumentIngested{
		EventID:    uuid.NewString(),
		Origin:     p.origin,
		Category:   res.Category,
		Filename:   res.Filename,
		Pages:      res.Pages,
		Verdict:    res.Verdict.String(),
		IngestedAt: p.now().UTC(),
	}
	err := p.breaker.Execute(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()
		return p.sender.Publish(ctx, kafka.Event{Key: res.Category.String(), Value: event})
	})
	status := "ok"
	if err != nil {
		status = "failed"
		if p.breaker.State() == resilience.StateOpen {
			status = "dropped"
		}
	}
	if p.metrics != nil {
		p.metrics.EventsPublishedTotal.WithLabelValues(status).Inc()
	}
	if err != nil {
		return fmt.Errorf("publishing %s/%s: %w", res.Category, res.Filename, err)
	}
	p.logger.Debug("document event published", "event_id", event.EventID, "category", res.Category, "filename", res.Filename)
	return nil
}

// Invalidator drops cached query results.
type Invalidator interface {
	Invalidate(ctx context.Context) (int64, error)
}

// InvalidateCache returns a consumer handler that drops the query cache when
// another process reports a new document. Events from self are skipped:
// local ingestion already invalidated the cache.
func InvalidateCache(inv Invalidator, self string) kafka.MessageHandler {
	logger := slog.Default().With("component", "cache-invalidator")
	return func(ctx context.Context, _ []byte, value []byte) error {
		event, err := kafka.DecodeJSON[DocumentIngested](value)
		if err != nil {
			logger.Warn("dropping malformed event", "error", err)
			return nil
		}
		if event.Origin == self {
			return nil
		}
		n, err := inv.Invalidate(ctx)
		if err != nil {
			return fmt.Errorf("invalidating cache after %s/%s: %w", event.Category, event.Filename, err)
		}
		logger.Info("query cache invalidated", "event_id", event.EventID, "origin", event.Origin, "keys", n)
		return nil
	}
}
