// Package events carries post-commit domain events between services in the
// same process.
package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/degentalk/progression/internal/metrics"
	"github.com/degentalk/progression/pkg/logger"
)

// ActionOccurred is published once the result of an action is final.
// Awarded is false when the engine refused XP (disabled or rate limited).
type ActionOccurred struct {
	UserID     string
	ActionKey  string
	ContextID  *string
	Metadata   map[string]interface{}
	XPAwarded  int64
	Awarded    bool
	OccurredAt time.Time
}

// Handler consumes an event. Errors are logged and counted, never retried.
type Handler func(ctx context.Context, event ActionOccurred) error

type subscription struct {
	name    string
	handler Handler
}

// Bus fans events out to subscribers. Handlers run on their own goroutine
// unless the bus was built with NewSyncBus.
type Bus struct {
	mu       sync.RWMutex
	subs     []subscription
	sync     bool
	inflight sync.WaitGroup
	log      *logger.Logger
}

// NewBus creates an asynchronous bus.
func NewBus(log *logger.Logger) *Bus {
	return &Bus{log: log.Component("events")}
}

// NewSyncBus creates a bus that runs handlers inline before Publish returns.
func NewSyncBus(log *logger.Logger) *Bus {
	return &Bus{sync: true, log: log.Component("events")}
}

// Subscribe registers a named handler.
func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscription{name: name, handler: h})
}

// Publish delivers event to every subscriber. It never fails; handler
// errors stay inside the bus.
func (b *Bus) Publish(ctx context.Context, event ActionOccurred) {
	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	// Bookkeeping must outlive the request that triggered it.
	ctx = context.WithoutCancel(ctx)

	for _, s := range subs {
		if b.sync {
			b.dispatch(ctx, s, event)
			continue
		}
		b.inflight.Add(1)
		go func(s subscription) {
			defer b.inflight.Done()
			b.dispatch(ctx, s, event)
		}(s)
	}
}

// Wait blocks until every asynchronous handler started so far has returned.
func (b *Bus) Wait() {
	b.inflight.Wait()
}

func (b *Bus) dispatch(ctx context.Context, s subscription, event ActionOccurred) {
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("handler panicked: %v", r)
			}
		}()
		err = s.handler(ctx, event)
	}()

	if err != nil {
		metrics.RecordEventHandlerFailure(s.name)
		b.log.Error().
			Err(err).
			Str("handler", s.name).
			Str("user_id", event.UserID).
			Str("action", event.ActionKey).
			Msg("Event handler failed")
	}
}
