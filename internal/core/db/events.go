package db

import "log/slog"

// ------------------------------
// Event System
// ------------------------------
//
// The ledger emits typed events when runs start and finish and when a
// snapshot result is recorded. Register listeners to react to these changes.
//
// Example usage:
//
//	db.RegisterEventListener(db.OnRunFinishedEvent, func(event db.Event) error {
//	    ev := event.(db.RunFinishedEvent)
//	    log.Printf("Run %s finished: %s", ev.RunID, ev.Status)
//	    return nil
//	})
//
// Event is the common interface for all database events.
type Event interface {
	Kind() EventKind
}

// EventKind represents all the kinds of events that can be emitted by the DB.
type EventKind int

const (
	// OnRunStartedEvent is emitted when a run is created.
	OnRunStartedEvent EventKind = iota
	// OnSnapshotRecordedEvent is emitted when a snapshot result is saved.
	OnSnapshotRecordedEvent
	// OnRunFinishedEvent is emitted when a run is marked finished.
	OnRunFinishedEvent
)

func (k EventKind) String() string {
	switch k {
	case OnRunStartedEvent:
		return "run_started"
	case OnSnapshotRecordedEvent:
		return "snapshot_recorded"
	case OnRunFinishedEvent:
		return "run_finished"
	default:
		return "unknown"
	}
}

// RunStartedEvent is emitted after a new run is inserted.
type RunStartedEvent struct {
	Run Run
}

func (e RunStartedEvent) Kind() EventKind { return OnRunStartedEvent }

// SnapshotRecordedEvent is emitted after a snapshot result is inserted.
type SnapshotRecordedEvent struct {
	Result SnapshotResult
}

func (e SnapshotRecordedEvent) Kind() EventKind { return OnSnapshotRecordedEvent }

// RunFinishedEvent is emitted after a run's final status is saved.
type RunFinishedEvent struct {
	RunID  string
	Status string
	Counts map[string]int
}

func (e RunFinishedEvent) Kind() EventKind { return OnRunFinishedEvent }

// EventListener is a callback that handles events of a specific kind.
type EventListener func(event Event) error

// RegisterEventListener adds a listener for a specific event kind.
// Listeners are called synchronously in registration order after the DB operation succeeds.
func (db *DB) RegisterEventListener(eventKind EventKind, listener EventListener) {
	if db.eventListeners == nil {
		db.eventListeners = make(map[EventKind][]EventListener)
	}
	db.eventListeners[eventKind] = append(db.eventListeners[eventKind], listener)
}

// emit dispatches an event to all registered listeners for that event kind.
func (db *DB) emit(event Event) {
	for _, listener := range db.eventListeners[event.Kind()] {
		if err := listener(event); err != nil {
			slog.Warn("event listener error", "event", event.Kind().String(), "error", err)
		}
	}
}
