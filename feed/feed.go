// Package feed subscribes to collection change notifications over a
// WebSocket and turns them into cache invalidations, so remote mutations
// made elsewhere do not serve stale pages here.
package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coder/websocket"
	json "github.com/goccy/go-json"

	"github.com/tesseradata/tessera/observability"
)

const (
	// TypeChanged announces that rows in a source collection were written.
	TypeChanged = "changed"
	// TypeSubscribed acknowledges a subscription request.
	TypeSubscribed = "subscribed"

	connectTimeout = 10 * time.Second
	writeTimeout   = 5 * time.Second
)

// Event is one change notification from the feed service.
type Event struct {
	Type   string `json:"type"`
	Source string `json:"source"`
	Keys   []any  `json:"keys,omitempty"`
}

type subscribePayload struct {
	Type    string   `json:"type"`
	Sources []string `json:"sources"`
}

// CacheClearer is the slice of a data source the feed needs.
type CacheClearer interface {
	ClearCache()
}

// Invalidator builds a handler that clears the target's cache whenever a
// change event for one of the named sources arrives. No names means every
// change clears.
func Invalidator(target CacheClearer, sources ...string) func(Event) {
	var watched map[string]struct{}
	if len(sources) > 0 {
		watched = make(map[string]struct{}, len(sources))
		for _, s := range sources {
			watched[s] = struct{}{}
		}
	}
	return func(evt Event) {
		if evt.Type != TypeChanged {
			return
		}
		if watched != nil {
			if _, ok := watched[evt.Source]; !ok {
				return
			}
		}
		target.ClearCache()
	}
}

// Listener maintains one WebSocket connection with automatic reconnection
// and hands every event to the handler on the read goroutine.
type Listener struct {
	url     string
	sources []string
	handler func(Event)
	errs    chan<- error
	log     observability.Logger

	ctx    context.Context
	cancel context.CancelFunc

	conn   *websocket.Conn
	connMu sync.RWMutex

	ready     chan struct{}
	readyOnce sync.Once
	wg        sync.WaitGroup

	newBackoff func() backoff.BackOff
}

// Option adjusts a Listener.
type Option func(*Listener)

// WithLogger routes connection lifecycle logging.
func WithLogger(log observability.Logger) Option {
	return func(l *Listener) {
		if log != nil {
			l.log = log
		}
	}
}

// WithErrorChan receives connection and handler errors. Sends never block;
// a full channel drops.
func WithErrorChan(errs chan<- error) Option {
	return func(l *Listener) {
		l.errs = errs
	}
}

// WithSources names the collections to subscribe to. The subscription is
// replayed after every reconnect.
func WithSources(sources ...string) Option {
	return func(l *Listener) {
		l.sources = append([]string(nil), sources...)
	}
}

// New prepares a listener for the feed at url. Events flow to handler once
// Start succeeds.
func New(ctx context.Context, url string, handler func(Event), opts ...Option) *Listener {
	lctx, cancel := context.WithCancel(ctx)
	l := &Listener{
		url:        url,
		handler:    handler,
		log:        observability.NopLogger(),
		ctx:        lctx,
		cancel:     cancel,
		ready:      make(chan struct{}),
		newBackoff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start establishes the connection in a background goroutine and waits for
// the first successful dial.
func (l *Listener) Start() error {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		if err := l.connect(); err != nil && !errors.Is(err, context.Canceled) {
			l.reportError(fmt.Errorf("feed connection failed: %w", err))
		}
	}()

	select {
	case <-l.ready:
		return nil
	case <-time.After(connectTimeout):
		return errors.New("timeout waiting for feed connection")
	case <-l.ctx.Done():
		return fmt.Errorf("feed context done: %w", l.ctx.Err())
	}
}

// Stop closes the connection and ends the read loop.
func (l *Listener) Stop() {
	l.cancel()
	l.connMu.Lock()
	if l.conn != nil {
		_ = l.conn.Close(websocket.StatusNormalClosure, "shutdown")
		l.conn = nil
	}
	l.connMu.Unlock()
	l.wg.Wait()
}

// connect maintains the connection with automatic reconnection and
// exponential backoff.
func (l *Listener) connect() error {
	policy := l.newBackoff()

	for {
		select {
		case <-l.ctx.Done():
			return context.Canceled
		default:
		}

		conn, _, err := websocket.Dial(l.ctx, l.url, nil)
		if err != nil {
			l.reportError(fmt.Errorf("dial %s: %w", l.url, err))
			sleep := policy.NextBackOff()
			select {
			case <-l.ctx.Done():
				return context.Canceled
			case <-time.After(sleep):
				continue
			}
		}

		l.connMu.Lock()
		l.conn = conn
		l.connMu.Unlock()

		l.readyOnce.Do(func() {
			close(l.ready)
		})
		policy.Reset()
		l.log.Debug("feed connected", observability.Field{Key: "url", Value: l.url})

		if err := l.subscribe(conn); err != nil {
			l.reportError(fmt.Errorf("subscribe after connect: %w", err))
		}

		if err := l.readLoop(conn); err != nil {
			if errors.Is(err, context.Canceled) {
				return context.Canceled
			}
			l.reportError(fmt.Errorf("read loop: %w", err))
		}

		l.connMu.Lock()
		l.conn = nil
		l.connMu.Unlock()

		sleep := policy.NextBackOff()
		select {
		case <-l.ctx.Done():
			return context.Canceled
		case <-time.After(sleep):
		}
	}
}

// subscribe replays the source subscription on a fresh connection.
func (l *Listener) subscribe(conn *websocket.Conn) error {
	if len(l.sources) == 0 {
		return nil
	}
	data, err := json.Marshal(subscribePayload{Type: "subscribe", Sources: l.sources})
	if err != nil {
		return fmt.Errorf("marshal subscribe request: %w", err)
	}
	writeCtx, cancel := context.WithTimeout(l.ctx, writeTimeout)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("write subscribe request: %w", err)
	}
	return nil
}

func (l *Listener) readLoop(conn *websocket.Conn) error {
	for {
		msgType, data, err := conn.Read(l.ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return context.Canceled
			}
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return fmt.Errorf("read: %w", err)
		}

		if msgType != websocket.MessageText {
			continue
		}

		var evt Event
		if err := json.Unmarshal(data, &evt); err != nil {
			l.reportError(fmt.Errorf("decode event: %w", err))
			continue
		}
		if evt.Type == "" || evt.Type == TypeSubscribed {
			continue
		}
		if l.handler != nil {
			l.handler(evt)
		}
	}
}

func (l *Listener) reportError(err error) {
	if err == nil {
		return
	}
	l.log.Error("feed error", observability.Field{Key: "error", Value: err})
	if l.errs == nil {
		return
	}
	select {
	case <-l.ctx.Done():
	case l.errs <- err:
	default:
	}
}
