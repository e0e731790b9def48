package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/internal/category"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/internal/document"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeSender struct {
	mu     sync.Mutex
	err    error
	events []kafka.Event
	calls  int
}

func (s *fakeSender) Publish(_ context.Context, events ...kafka.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, events...)
	return nil
}

var inserted = document.Result{
	Category: category.Contracts,
	Filename: "lease.pdf",
	Outcome:  document.OutcomeInserted,
	Verdict:  document.VerdictScanned,
	Pages:    4,
}

func TestNotifyPublishesInsertedOnly(t *testing.T) {
	sender := &fakeSender{}
	m := metrics.NewUnregistered()
	p := NewPublisher(sender, "node-a", m)

	if err := p.Notify(context.Background(), inserted); err != nil {
		t.Fatal(err)
	}
	present := inserted
	present.Outcome = document.OutcomeAlreadyPresent
	if err := p.Notify(context.Background(), present); err != nil {
		t.Fatal(err)
	}

	if len(sender.events) != 1 {
		t.Fatalf("published %d events, want 1", len(sender.events))
	}
	ev := sender.events[0]
	if ev.Key != "contracts" {
		t.Errorf("key = %q", ev.Key)
	}
	body, ok := ev.Value.(DocumentIngested)
	if !ok {
		t.Fatalf("value type %T", ev.Value)
	}
	if body.EventID == "" || body.Origin != "node-a" || body.Pages != 4 || body.Verdict != "scanned" {
		t.Errorf("event = %+v", body)
	}
	if v := testutil.ToFloat64(m.EventsPublishedTotal.WithLabelValues("ok")); v != 1 {
		t.Errorf("ok counter = %v", v)
	}
}

func TestNotifyStopsCallingBrokerWhenOpen(t *testing.T) {
	sender := &fakeSender{err: errors.New("broker down")}
	p := NewPublisher(sender, "node-a", nil)
	for i := 0; i < 5; i++ {
		if err := p.Notify(context.Background(), inserted); err == nil {
			t.Fatalf("call %d: expected error", i)
		}
	}
	if sender.calls != 3 {
		t.Errorf("broker called %d times, want 3 before the breaker opened", sender.calls)
	}
}

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) Invalidate(context.Context) (int64, error) {
	c.calls++
	return 7, nil
}

func TestInvalidateCacheHandler(t *testing.T) {
	inv := &countingInvalidator{}
	handle := InvalidateCache(inv, "node-a")
	encode := func(origin string) []byte {
		b, err := json.Marshal(DocumentIngested{EventID: "e1", Origin: origin, Category: category.Policies, Filename: "p.pdf"})
		if err != nil {
			t.Fatal(err)
		}
		return b
	}

	ctx := context.Background()
	if err := handle(ctx, nil, encode("node-a")); err != nil {
		t.Fatal(err)
	}
	if inv.calls != 0 {
		t.Error("own event should not invalidate")
	}
	if err := handle(ctx, nil, encode("node-b")); err != nil {
		t.Fatal(err)
	}
	if inv.calls != 1 {
		t.Errorf("invalidations = %d, want 1", inv.calls)
	}
	if err := handle(ctx, nil, []byte("{not json")); err != nil {
		t.Errorf("malformed event should be dropped, got %v", err)
	}
}
