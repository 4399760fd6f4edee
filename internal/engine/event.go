package engine

import "time"

// EventKind enumerates the per-face outcomes the engine reports to the
// presentation layer.
type EventKind int

const (
	// Marked: a new attendance record was written for this student.
	Marked EventKind = iota
	// AlreadyMarkedToday: the student has a record for today; nothing written.
	AlreadyMarkedToday
	// CoolingDown: the student was marked moments ago; Remaining carries the wait.
	CoolingDown
	// Unknown: the face did not match any registered student.
	Unknown
	// MarkFailed: the ledger write failed; the student will be retried on a
	// later frame.
	MarkFailed
)

// Event is the per-face outcome of one frame. Only the fields relevant to
// its Kind are set.
type Event struct {
	Kind       EventKind
	StudentID  string
	Name       string
	Confidence float64
	Remaining  time.Duration
}

// SessionPhase tags session-level events.
type SessionPhase int

const (
	SessionStarted SessionPhase = iota
	SessionStopped
)

// SessionEvent is emitted when a capture session starts or stops.
type SessionEvent struct {
	Phase         SessionPhase
	SessionMarked int
	TodayTotal    int
}

// Sink receives engine events. Implementations must be fast or hand off to
// their own workers; the frame loop calls them synchronously.
type Sink interface {
	Face(Event)
	Session(SessionEvent)
}

// Sinks fans events out to several sinks.
type Sinks []Sink

func (s Sinks) Face(e Event) {
	for _, sink := range s {
		sink.Face(e)
	}
}

func (s Sinks) Session(e SessionEvent) {
	for _, sink := range s {
		sink.Session(e)
	}
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Face(Event)           {}
func (NopSink) Session(SessionEvent) {}
