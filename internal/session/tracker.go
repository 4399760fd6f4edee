// Package session holds the ephemeral state of one live-capture session:
// which students were already marked today and when each student was last
// marked, to enforce the recognition cooldown.
package session

import "time"

// DecisionKind enumerates the possible outcomes for a recognized student.
type DecisionKind int

const (
	// ReadyToMark means no record exists today and no cooldown applies.
	ReadyToMark DecisionKind = iota
	// AlreadyMarkedToday means a record for today already exists.
	AlreadyMarkedToday
	// CoolingDown means the student was marked too recently this session.
	CoolingDown
)

// Decision is the outcome of a Decide call. Remaining is set only for
// CoolingDown.
type Decision struct {
	Kind      DecisionKind
	Remaining time.Duration
}

// Tracker owns the in-memory state of a single session. It is not safe for
// concurrent use; the frame loop is its only caller. State is discarded at
// session end, never persisted.
type Tracker struct {
	cooldown      time.Duration
	alreadyMarked map[string]struct{}
	lastMark      map[string]time.Time
}

// DefaultCooldown is the minimum wait between two marks of the same
// student within one session.
const DefaultCooldown = 10 * time.Second

// NewTracker creates a tracker. A cooldown of zero or below falls back to
// DefaultCooldown.
func NewTracker(cooldown time.Duration) *Tracker {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Tracker{
		cooldown:      cooldown,
		alreadyMarked: make(map[string]struct{}),
		lastMark:      make(map[string]time.Time),
	}
}

// Begin seeds the already-marked set from a ledger snapshot and clears the
// cooldown timers. The seed is copied; the caller's map is not retained.
func (t *Tracker) Begin(seed map[string]struct{}) {
	t.alreadyMarked = make(map[string]struct{}, len(seed))
	for id := range seed {
		t.alreadyMarked[id] = struct{}{}
	}
	t.lastMark = make(map[string]time.Time)
}

// Decide returns the marking decision for a student at the given moment.
// A running cooldown timer is reported before the already-marked set, so a
// student marked seconds ago shows the countdown rather than a flat
// "already marked"; once the timer expires the set takes over. Students
// seeded from an earlier run today have no timer and are reported as
// AlreadyMarkedToday immediately.
func (t *Tracker) Decide(studentID string, now time.Time) Decision {
	if last, ok := t.lastMark[studentID]; ok {
		if elapsed := now.Sub(last); elapsed < t.cooldown {
			return Decision{Kind: CoolingDown, Remaining: t.cooldown - elapsed}
		}
	}
	if _, ok := t.alreadyMarked[studentID]; ok {
		return Decision{Kind: AlreadyMarkedToday}
	}
	return Decision{Kind: ReadyToMark}
}

// RecordMark notes a successful ledger insert. Callers must only invoke it
// after MarkPresent returned true.
func (t *Tracker) RecordMark(studentID string, now time.Time) {
	t.alreadyMarked[studentID] = struct{}{}
	t.lastMark[studentID] = now
}

// MarkedCount returns the size of the already-marked set, the total number
// of students present today as far as this session knows.
func (t *Tracker) MarkedCount() int {
	return len(t.alreadyMarked)
}
