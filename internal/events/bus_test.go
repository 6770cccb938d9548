package events

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/degentalk/progression/internal/metrics"
	"github.com/degentalk/progression/pkg/logger"
)

func TestSyncBus_DeliversBeforeReturn(t *testing.T) {
	bus := NewSyncBus(logger.Nop())

	var got []string
	bus.Subscribe("first", func(_ context.Context, e ActionOccurred) error {
		got = append(got, "first:"+e.ActionKey)
		return nil
	})
	bus.Subscribe("second", func(_ context.Context, e ActionOccurred) error {
		got = append(got, "second:"+e.ActionKey)
		return nil
	})

	bus.Publish(context.Background(), ActionOccurred{UserID: "u1", ActionKey: "post_created"})

	assert.Equal(t, []string{"first:post_created", "second:post_created"}, got)
}

func TestBus_HandlerFailuresAreContained(t *testing.T) {
	metrics.EventHandlerFailuresTotal.Reset()
	bus := NewSyncBus(logger.Nop())

	var reached atomic.Bool
	bus.Subscribe("erroring", func(context.Context, ActionOccurred) error { return errors.New("boom") })
	bus.Subscribe("panicking", func(context.Context, ActionOccurred) error { panic("kaboom") })
	bus.Subscribe("healthy", func(context.Context, ActionOccurred) error {
		reached.Store(true)
		return nil
	})

	assert.NotPanics(t, func() {
		bus.Publish(context.Background(), ActionOccurred{UserID: "u1", ActionKey: "x"})
	})
	assert.True(t, reached.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.EventHandlerFailuresTotal.WithLabelValues("erroring")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.EventHandlerFailuresTotal.WithLabelValues("panicking")))
}

func TestAsyncBus_WaitDrainsHandlers(t *testing.T) {
	bus := NewBus(logger.Nop())

	var count atomic.Int32
	bus.Subscribe("counter", func(context.Context, ActionOccurred) error {
		count.Add(1)
		return nil
	})

	for i := 0; i < 10; i++ {
		bus.Publish(context.Background(), ActionOccurred{UserID: "u1", ActionKey: "x"})
	}
	bus.Wait()

	assert.Equal(t, int32(10), count.Load())
}

func TestAsyncBus_SurvivesCancelledRequest(t *testing.T) {
	bus := NewBus(logger.Nop())

	var ctxErr atomic.Value
	bus.Subscribe("ctx", func(ctx context.Context, _ ActionOccurred) error {
		ctxErr.Store(ctx.Err() == nil)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	bus.Publish(ctx, ActionOccurred{UserID: "u1", ActionKey: "x"})
	bus.Wait()

	assert.Equal(t, true, ctxErr.Load())
}
