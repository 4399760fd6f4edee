// Package engine implements the duplicate-prevention attendance-marking
// protocol: for each face identified in the live stream, decide whether to
// persist a new attendance record given the per-day uniqueness constraint,
// the per-session recognition cooldown and the ledger's atomic
// insert-if-absent.
package engine

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log"
	"sync"
	"time"

	"smart-attendance-backend/internal/capture"
	"smart-attendance-backend/internal/model"
	"smart-attendance-backend/internal/recognize"
	"smart-attendance-backend/internal/session"
)

// ErrSessionRunning is returned by Start while a session is active.
var ErrSessionRunning = errors.New("a capture session is already running")

// Recognizer is the detect-and-match capability: find faces in a frame and
// identify each one, with the acceptance threshold already applied (an
// empty student id means no match).
type Recognizer interface {
	DetectAndMatch(ctx context.Context, frame image.Image) ([]recognize.Detection, error)
}

// Ledger is the subset of the store the engine mutates and seeds from.
type Ledger interface {
	MarkPresent(ctx context.Context, studentID, name string, at time.Time) (bool, error)
	MarkedStudentsOn(ctx context.Context, date string) (map[string]struct{}, error)
}

// NameResolver maps a student id to a display name for denormalized
// inserts and events.
type NameResolver interface {
	GetStudent(ctx context.Context, id string) (*model.Student, error)
}

// Status is a point-in-time view of the engine for the API.
type Status struct {
	Running       bool   `json:"running"`
	Date          string `json:"date,omitempty"`
	SessionMarked int    `json:"session_marked"`
	TodayTotal    int    `json:"today_total"`
}

// Engine orchestrates recognizer output, session state and the ledger. All
// collaborators are injected; the engine holds no process-wide state.
type Engine struct {
	ledger     Ledger
	names      NameResolver
	recognizer Recognizer
	frames     capture.FrameSource
	sink       Sink
	cooldown   time.Duration
	now        func() time.Time

	mu            sync.Mutex
	running       bool
	cancel        context.CancelFunc
	done          chan struct{}
	tracker       *session.Tracker
	sessionMarked int
	todayTotal    int
	sessionDate   string
}

// New creates an engine with explicit collaborators. The store satisfies
// both Ledger and NameResolver in production; tests inject fakes. A nil
// sink is replaced with NopSink.
func New(ledger Ledger, names NameResolver, recognizer Recognizer, frames capture.FrameSource, sink Sink, cooldown time.Duration) *Engine {
	if sink == nil {
		sink = NopSink{}
	}
	return &Engine{
		ledger:     ledger,
		names:      names,
		recognizer: recognizer,
		frames:     frames,
		sink:       sink,
		cooldown:   cooldown,
		now:        time.Now,
	}
}

// Start begins a capture session. The already-marked set is seeded from
// the ledger once, at session start; if that read fails the session does
// not begin, since an empty seed would silently allow re-marks. Start
// returns ErrSessionRunning while a session is active.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return ErrSessionRunning
	}

	today := e.now().Format(model.DateLayout)
	seed, err := e.ledger.MarkedStudentsOn(ctx, today)
	if err != nil {
		return fmt.Errorf("failed to seed session from ledger: %w", err)
	}

	e.tracker = session.NewTracker(e.cooldown)
	e.tracker.Begin(seed)
	e.sessionMarked = 0
	e.todayTotal = len(seed)
	e.sessionDate = today

	loopCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.done = make(chan struct{})
	e.running = true

	e.sink.Session(SessionEvent{Phase: SessionStarted, TodayTotal: len(seed)})
	log.Printf("Attendance session started: %d already marked on %s", len(seed), today)

	go e.run(loopCtx)
	return nil
}

// Stop ends the session. Cancellation is cooperative and observed between
// frames; an in-flight ledger write completes first. Stop is idempotent
// and blocks until the frame loop has exited.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	cancel, done := e.cancel, e.done
	e.mu.Unlock()

	cancel()
	<-done
}

// Snapshot reports the current session counters.
func (e *Engine) Snapshot() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{
		Running:       e.running,
		Date:          e.sessionDate,
		SessionMarked: e.sessionMarked,
		TodayTotal:    e.todayTotal,
	}
}

// run is the frame loop: pull one frame, process every face in it, repeat.
// Frames are strictly sequential; a slow recognizer call delays the next
// frame instead of overlapping with it.
func (e *Engine) run(ctx context.Context) {
	defer e.finish()

	for {
		if ctx.Err() != nil {
			return
		}
		frame, err := e.frames.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			if errors.Is(err, io.EOF) {
				log.Printf("Frame source exhausted, stopping session")
				return
			}
			log.Printf("Frame source error: %v", err)
			continue
		}
		e.processFrame(ctx, frame)
	}
}

// finish emits the session summary and resets the running state.
func (e *Engine) finish() {
	e.mu.Lock()
	e.running = false
	e.tracker = nil
	summary := SessionEvent{
		Phase:         SessionStopped,
		SessionMarked: e.sessionMarked,
		TodayTotal:    e.todayTotal,
	}
	close(e.done)
	e.mu.Unlock()

	e.sink.Session(summary)
	log.Printf("Attendance session stopped: %d new marks, %d present today",
		summary.SessionMarked, summary.TodayTotal)
}

// processFrame runs detection and matching once and applies the marking
// protocol to every face, in detector order. A recognition failure skips
// the frame; the loop keeps running and retries on the next one.
func (e *Engine) processFrame(ctx context.Context, frame image.Image) {
	detections, err := e.recognizer.DetectAndMatch(ctx, frame)
	if err != nil {
		log.Printf("Recognition failed, skipping frame: %v", err)
		return
	}

	for _, det := range detections {
		e.processFace(ctx, det)
	}
}

func (e *Engine) processFace(ctx context.Context, det recognize.Detection) {
	if det.StudentID == "" {
		e.sink.Face(Event{Kind: Unknown, Confidence: det.Confidence})
		return
	}

	now := e.now()
	decision := e.tracker.Decide(det.StudentID, now)

	switch decision.Kind {
	case session.AlreadyMarkedToday:
		e.sink.Face(Event{
			Kind:       AlreadyMarkedToday,
			StudentID:  det.StudentID,
			Name:       e.displayName(ctx, det.StudentID),
			Confidence: det.Confidence,
		})

	case session.CoolingDown:
		e.sink.Face(Event{
			Kind:       CoolingDown,
			StudentID:  det.StudentID,
			Name:       e.displayName(ctx, det.StudentID),
			Confidence: det.Confidence,
			Remaining:  decision.Remaining,
		})

	case session.ReadyToMark:
		name := e.displayName(ctx, det.StudentID)
		inserted, err := e.ledger.MarkPresent(ctx, det.StudentID, name, now)
		if err != nil {
			log.Printf("Mark failed for %s: %v", det.StudentID, err)
			e.sink.Face(Event{Kind: MarkFailed, StudentID: det.StudentID, Name: name})
			return
		}
		if !inserted {
			// Lost the race to a concurrent writer: render as already
			// marked, do not stamp a cooldown.
			e.sink.Face(Event{
				Kind:       AlreadyMarkedToday,
				StudentID:  det.StudentID,
				Name:       name,
				Confidence: det.Confidence,
			})
			return
		}

		e.tracker.RecordMark(det.StudentID, now)
		e.mu.Lock()
		e.sessionMarked++
		e.todayTotal = e.tracker.MarkedCount()
		e.mu.Unlock()

		log.Printf("Marked: %s (%s) at %s", name, det.StudentID, now.Format(model.TimeLayout))
		e.sink.Face(Event{
			Kind:       Marked,
			StudentID:  det.StudentID,
			Name:       name,
			Confidence: det.Confidence,
		})
	}
}

// displayName resolves the student's name, falling back to the id when the
// registry cannot answer. A record written with the id as name is still a
// valid record; the lookup failure must not block marking.
func (e *Engine) displayName(ctx context.Context, studentID string) string {
	if e.names == nil {
		return studentID
	}
	student, err := e.names.GetStudent(ctx, studentID)
	if err != nil || student == nil {
		return studentID
	}
	return student.Name
}
