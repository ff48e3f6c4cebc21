package eventbus

import (
	"testing"
	"time"

	"github.com/cuemby/libcrun-shim/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recvWithTimeout(t *testing.T, sub *Subscriber) (model.Event, bool) {
	t.Helper()
	type result struct {
		ev model.Event
		ok bool
	}
	done := make(chan result, 1)
	go func() {
		ev, ok := sub.Recv()
		done <- result{ev, ok}
	}()
	select {
	case r := <-done:
		return r.ev, r.ok
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return model.Event{}, false
	}
}

func TestFIFODeliveryForNonLaggingSubscriber(t *testing.T) {
	bus := New(DefaultCapacity)
	defer bus.Stop()

	sub := bus.Subscribe()
	bus.EmitCreate("x")
	bus.EmitStart("x")
	bus.EmitDie("x", 137)

	ev1, ok := recvWithTimeout(t, sub)
	require.True(t, ok)
	assert.Equal(t, model.EventCreate, ev1.Type)

	ev2, ok := recvWithTimeout(t, sub)
	require.True(t, ok)
	assert.Equal(t, model.EventStart, ev2.Type)

	ev3, ok := recvWithTimeout(t, sub)
	require.True(t, ok)
	assert.Equal(t, model.EventDie, ev3.Type)
	require.NotNil(t, ev3.ExitCode)
	assert.EqualValues(t, 137, *ev3.ExitCode)
}

func TestSlowSubscriberDropsInsteadOfBlockingPublisher(t *testing.T) {
	bus := New(DefaultCapacity)
	defer bus.Stop()

	sub := bus.Subscribe()
	for i := 0; i < DefaultCapacity+50; i++ {
		bus.EmitCreate("x")
	}

	// The publisher must not have blocked; give the broadcast goroutine a
	// moment to drain its internal publish channel.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, bus.SubscriberCount())
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := New(DefaultCapacity)
	defer bus.Stop()

	sub := bus.Subscribe()
	bus.Unsubscribe(sub)

	_, ok := sub.Recv()
	assert.False(t, ok)
	assert.Equal(t, 0, bus.SubscriberCount())
}
