// Package dispatch delivers model events to registered listeners
package dispatch

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ListenerFunc handles one model event
type ListenerFunc func(ctx context.Context, e Event) error

// Listener is a registered event handler
type Listener struct {
	Name  string
	Fn    ListenerFunc
	Async bool // run on the async queue with an isolated copy of the event
}

// Dispatcher fans model events out to listeners registered per kind
type Dispatcher struct {
	mu        sync.RWMutex
	listeners map[Kind][]*Listener
	queue     *AsyncQueue
	logger    *zap.Logger
}

// NewDispatcher creates a dispatcher. A nil queue makes async listeners run inline.
func NewDispatcher(queue *AsyncQueue, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		listeners: make(map[Kind][]*Listener),
		queue:     queue,
		logger:    logger,
	}
}

// On registers a listener for the given kinds, or for every kind when none are given
func (d *Dispatcher) On(l *Listener, kinds ...Kind) {
	if len(kinds) == 0 {
		kinds = Kinds()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, k := range kinds {
		d.listeners[k] = append(d.listeners[k], l)
	}
}

// Off removes a listener from every kind
func (d *Dispatcher) Off(l *Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, ls := range d.listeners {
		kept := ls[:0:0]
		for _, existing := range ls {
			if existing != l {
				kept = append(kept, existing)
			}
		}
		d.listeners[k] = kept
	}
}

// Listeners returns the listeners registered for kind
func (d *Dispatcher) Listeners(kind Kind) []*Listener {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]*Listener(nil), d.listeners[kind]...)
}

// HasListeners returns true if any listener handles kind
func (d *Dispatcher) HasListeners(kind Kind) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.listeners[kind]) > 0
}

// Clear removes all listeners
func (d *Dispatcher) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = make(map[Kind][]*Listener)
}

// Dispatch delivers e to its listeners in registration order. Listener
// errors are logged and never stop delivery.
func (d *Dispatcher) Dispatch(ctx context.Context, e Event) {
	for _, l := range d.Listeners(e.Type) {
		if l.Async && d.queue != nil {
			if err := d.enqueue(l, e); err != nil {
				d.logger.Warn("failed to enqueue event listener",
					zap.String("listener", l.Name),
					zap.Stringer("kind", e.Type),
					zap.Error(err))
			}
			continue
		}

		if err := l.Fn(ctx, e); err != nil {
			d.logger.Warn("event listener failed",
				zap.String("listener", l.Name),
				zap.Stringer("kind", e.Type),
				zap.String("model", e.ModelName),
				zap.Error(err))
		}
	}
}

// Func adapts the dispatcher to a DispatchFunc
func (d *Dispatcher) Func() DispatchFunc {
	return func(e Event) {
		d.Dispatch(context.Background(), e)
	}
}

func (d *Dispatcher) enqueue(l *Listener, e Event) error {
	eventCopy := e.Copy()
	return d.queue.Enqueue(AsyncTask{
		Name: fmt.Sprintf("%s_%s", l.Name, e.Type),
		Fn: func(ctx context.Context) error {
			return l.Fn(ctx, eventCopy)
		},
	})
}
