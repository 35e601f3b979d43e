// Package journal persists execution events so sessions can be replayed
// and audited after the fact. The bus itself is fire-and-forget; a journal
// subscription is how events outlive the process.
package journal

import (
	"errors"

	"github.com/randalmurphal/agentflow/pkg/agentflow/event"
)

// Store errors.
var (
	// ErrStoreClosed indicates an operation on a closed store.
	ErrStoreClosed = errors.New("journal store is closed")
)

// Store persists execution events in append order.
type Store interface {
	// Append records one event.
	Append(evt event.Event) error

	// List returns all recorded events for an execution, oldest first.
	List(executionID string) ([]event.Event, error)

	// Close releases the store. Append and List fail afterwards.
	Close() error
}

// Attach subscribes the store to every event on the bus. Append failures
// are reported through onErr when non-nil; the stream itself is never
// interrupted. The returned Subscription stops the recording.
func Attach(bus *event.Bus, store Store, onErr func(error)) event.Subscription {
	return bus.SubscribeAll(func(evt event.Event) {
		if err := store.Append(evt); err != nil && onErr != nil {
			onErr(err)
		}
	})
}
