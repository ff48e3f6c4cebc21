// Package eventbus is the process-wide fan-out of container lifecycle
// events to in-process subscribers. It is adapted from the same
// non-blocking-send-and-skip broker pattern used elsewhere in this corpus:
// a slow subscriber never blocks the publisher, it just misses whatever
// arrived while its buffer was full.
package eventbus

import (
	"sync"

	"github.com/cuemby/libcrun-shim/pkg/metrics"
	"github.com/cuemby/libcrun-shim/pkg/model"
)

// DefaultCapacity is the bounded channel size for each subscriber and the
// bus's own publish lane.
const DefaultCapacity = 256

// Subscriber receives published events. Recv blocks until an event is
// available or the bus is closed.
type Subscriber struct {
	ch chan model.Event
}

// Recv blocks cooperatively until an event arrives or the bus is stopped,
// in which case ok is false.
func (s *Subscriber) Recv() (event model.Event, ok bool) {
	event, ok = <-s.ch
	return
}

// Bus is a bounded, many-subscriber broadcast channel. The zero value is
// not usable; construct with New.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[*Subscriber]bool
	publish     chan model.Event
	capacity    int
	stop        chan struct{}
	stopOnce    sync.Once
}

// New creates a Bus with the given buffer capacity for its internal
// publish lane and for each subscriber's buffer. Use DefaultCapacity unless a caller has a
// specific reason to size it differently.
func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	b := &Bus{
		subscribers: make(map[*Subscriber]bool),
		publish:     make(chan model.Event, capacity),
		capacity:    capacity,
		stop:        make(chan struct{}),
	}
	go b.run()
	return b
}

// Stop shuts the bus down; every subscriber's Recv subsequently returns
// ok=false.
func (b *Bus) Stop() {
	b.stopOnce.Do(func() { close(b.stop) })
}

// Subscribe registers a new subscriber with its own bounded buffer.
func (b *Bus) Subscribe() *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := &Subscriber{ch: make(chan model.Event, b.capacity)}
	b.subscribers[sub] = true
	metrics.EventBusSubscribers.Set(float64(len(b.subscribers)))
	return sub
}

// Unsubscribe removes sub from the fan-out set.
func (b *Bus) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[sub]; ok {
		delete(b.subscribers, sub)
		close(sub.ch)
		metrics.EventBusSubscribers.Set(float64(len(b.subscribers)))
	}
}

// Publish enqueues event for broadcast. Event ordering from a single
// publisher is preserved for every subscriber that does not lag beyond its
// buffer capacity.
func (b *Bus) Publish(event model.Event) {
	select {
	case b.publish <- event:
	case <-b.stop:
	}
}

// Emit constructs and publishes an event of the given type for id.
func (b *Bus) Emit(id string, t model.EventType) {
	b.Publish(model.NewEvent(id, t))
}

func (b *Bus) EmitCreate(id string)  { b.Emit(id, model.EventCreate) }
func (b *Bus) EmitStart(id string)   { b.Emit(id, model.EventStart) }
func (b *Bus) EmitStop(id string)    { b.Emit(id, model.EventStop) }
func (b *Bus) EmitKill(id string)    { b.Emit(id, model.EventKill) }
func (b *Bus) EmitDelete(id string)  { b.Emit(id, model.EventDelete) }
func (b *Bus) EmitPause(id string)   { b.Emit(id, model.EventPause) }
func (b *Bus) EmitUnpause(id string) { b.Emit(id, model.EventUnpause) }
func (b *Bus) EmitOom(id string)     { b.Emit(id, model.EventOom) }

func (b *Bus) EmitDie(id string, exitCode int32) {
	b.Publish(model.NewEvent(id, model.EventDie).WithExitCode(exitCode))
}

func (b *Bus) EmitHealth(id string, healthy bool) {
	t := model.EventHealthOk
	if !healthy {
		t = model.EventHealthFail
	}
	b.Emit(id, t)
}

func (b *Bus) EmitExecStart(id string) { b.Emit(id, model.EventExecStart) }
func (b *Bus) EmitExecDie(id string)   { b.Emit(id, model.EventExecDie) }

// SubscriberCount reports the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

func (b *Bus) run() {
	for {
		select {
		case event := <-b.publish:
			b.broadcast(event)
		case <-b.stop:
			b.closeAll()
			return
		}
	}
}

func (b *Bus) broadcast(event model.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subscribers {
		select {
		case sub.ch <- event:
		default:
			// subscriber buffer full: drop, next Recv returns whatever is
			// still buffered rather than blocking the publisher.
		}
	}
}

func (b *Bus) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subscribers {
		close(sub.ch)
		delete(b.subscribers, sub)
	}
	metrics.EventBusSubscribers.Set(0)
}
