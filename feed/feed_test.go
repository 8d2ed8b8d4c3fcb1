package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coder/websocket"
	json "github.com/goccy/go-json"
)

type fakeClearer struct {
	mu sync.Mutex
	n  int
}

func (f *fakeClearer) ClearCache() {
	f.mu.Lock()
	f.n++
	f.mu.Unlock()
}

func (f *fakeClearer) cleared() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.n
}

func TestInvalidator(t *testing.T) {
	target := &fakeClearer{}
	handler := Invalidator(target, "people")

	handler(Event{Type: TypeChanged, Source: "people"})
	if target.cleared() != 1 {
		t.Fatalf("cleared = %d, want 1", target.cleared())
	}
	handler(Event{Type: TypeChanged, Source: "orders"})
	if target.cleared() != 1 {
		t.Fatal("unwatched source cleared the cache")
	}
	handler(Event{Type: TypeSubscribed, Source: "people"})
	if target.cleared() != 1 {
		t.Fatal("ack event cleared the cache")
	}

	all := Invalidator(target)
	all(Event{Type: TypeChanged, Source: "anything"})
	if target.cleared() != 2 {
		t.Fatalf("cleared = %d, want 2", target.cleared())
	}
}

func waitEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case evt := <-ch:
		return evt
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestListenerReceivesEvents(t *testing.T) {
	subscribed := make(chan subscribePayload, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		ctx := r.Context()
		_, data, err := c.Read(ctx)
		if err != nil {
			return
		}
		var sub subscribePayload
		if err := json.Unmarshal(data, &sub); err == nil {
			subscribed <- sub
		}

		ack, _ := json.Marshal(Event{Type: TypeSubscribed})
		_ = c.Write(ctx, websocket.MessageText, ack)
		evt, _ := json.Marshal(Event{Type: TypeChanged, Source: "people", Keys: []any{1, 2}})
		_ = c.Write(ctx, websocket.MessageText, evt)

		_, _, _ = c.Read(ctx)
	}))
	defer srv.Close()

	events := make(chan Event, 4)
	l := New(context.Background(), srv.URL, func(evt Event) { events <- evt }, WithSources("people", "orders"))
	if err := l.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer l.Stop()

	select {
	case sub := <-subscribed:
		if sub.Type != "subscribe" || len(sub.Sources) != 2 || sub.Sources[0] != "people" {
			t.Fatalf("subscribe payload = %+v", sub)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server never saw a subscribe request")
	}

	evt := waitEvent(t, events)
	if evt.Type != TypeChanged || evt.Source != "people" || len(evt.Keys) != 2 {
		t.Fatalf("event = %+v", evt)
	}
}

func TestListenerReconnectsAndResubscribes(t *testing.T) {
	var mu sync.Mutex
	conns := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		mu.Lock()
		conns++
		n := conns
		mu.Unlock()
		ctx := r.Context()

		if _, _, err := c.Read(ctx); err != nil {
			return
		}
		source := "first"
		if n > 1 {
			source = "second"
		}
		evt, _ := json.Marshal(Event{Type: TypeChanged, Source: source})
		_ = c.Write(ctx, websocket.MessageText, evt)

		if n == 1 {
			_ = c.Close(websocket.StatusNormalClosure, "cycling")
			return
		}
		_, _, _ = c.Read(ctx)
	}))
	defer srv.Close()

	events := make(chan Event, 4)
	l := New(context.Background(), srv.URL, func(evt Event) { events <- evt }, WithSources("people"))
	l.newBackoff = func() backoff.BackOff { return backoff.NewConstantBackOff(10 * time.Millisecond) }
	if err := l.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer l.Stop()

	if evt := waitEvent(t, events); evt.Source != "first" {
		t.Fatalf("first event = %+v", evt)
	}
	if evt := waitEvent(t, events); evt.Source != "second" {
		t.Fatalf("event after reconnect = %+v", evt)
	}
}

func TestStartWithCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l := New(ctx, "ws://127.0.0.1:1", nil)
	if err := l.Start(); err == nil {
		t.Fatal("Start with cancelled context succeeded")
	}
	l.Stop()
}
