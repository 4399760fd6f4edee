package engine

import (
	"context"
	"errors"
	"image"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart-attendance-backend/internal/model"
	"smart-attendance-backend/internal/recognize"
	"smart-attendance-backend/internal/session"
)

type fakeLedger struct {
	mu      sync.Mutex
	rows    map[string]string // (studentID|date) -> time
	seed    map[string]struct{}
	seedErr error
	markErr error
	marks   int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{rows: make(map[string]string), seed: map[string]struct{}{}}
}

func (l *fakeLedger) MarkPresent(_ context.Context, studentID, _ string, at time.Time) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.markErr != nil {
		return false, l.markErr
	}
	l.marks++
	key := studentID + "|" + at.Format(model.DateLayout)
	if _, exists := l.rows[key]; exists {
		return false, nil
	}
	l.rows[key] = at.Format(model.TimeLayout)
	return true, nil
}

func (l *fakeLedger) MarkedStudentsOn(context.Context, string) (map[string]struct{}, error) {
	if l.seedErr != nil {
		return nil, l.seedErr
	}
	return l.seed, nil
}

type fakeNames struct{}

func (fakeNames) GetStudent(_ context.Context, id string) (*model.Student, error) {
	if id == "S1" {
		return &model.Student{ID: "S1", Name: "Alice"}, nil
	}
	return nil, nil
}

type recordingSink struct {
	mu       sync.Mutex
	faces    []Event
	sessions []SessionEvent
}

func (s *recordingSink) Face(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faces = append(s.faces, e)
}

func (s *recordingSink) Session(e SessionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = append(s.sessions, e)
}

func (s *recordingSink) faceKinds() []EventKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make([]EventKind, len(s.faces))
	for i, e := range s.faces {
		kinds[i] = e.Kind
	}
	return kinds
}

// newTestEngine builds an engine with a controllable clock and no frame
// loop; tests drive processFace directly.
func newTestEngine(ledger *fakeLedger, sink Sink) (*Engine, *time.Time) {
	e := New(ledger, fakeNames{}, nil, nil, sink, 10*time.Second)
	now := time.Date(2025, 9, 1, 9, 0, 0, 0, time.Local)
	e.now = func() time.Time { return now }
	return e, &now
}

func startSession(t *testing.T, e *Engine) {
	t.Helper()
	// Seed the tracker the way Start does, without launching the loop.
	seed, err := e.ledger.MarkedStudentsOn(context.Background(), e.now().Format(model.DateLayout))
	require.NoError(t, err)
	e.tracker = session.NewTracker(e.cooldown)
	e.tracker.Begin(seed)
	e.todayTotal = len(seed)
}

func det(id string, confidence float64) recognize.Detection {
	return recognize.Detection{Region: image.Rect(0, 0, 50, 50), StudentID: id, Confidence: confidence}
}

func TestEngine_MarkFlow(t *testing.T) {
	ledger := newFakeLedger()
	sink := &recordingSink{}
	e, now := newTestEngine(ledger, sink)
	startSession(t, e)
	ctx := context.Background()

	// First sighting: marked.
	e.processFace(ctx, det("S1", 0.9))
	require.Equal(t, []EventKind{Marked}, sink.faceKinds())
	assert.Equal(t, "Alice", sink.faces[0].Name)
	assert.Equal(t, 1, ledger.marks)

	status := e.Snapshot()
	assert.Equal(t, 1, status.SessionMarked)
	assert.Equal(t, 1, status.TodayTotal)

	// Three seconds later: cooling down, no ledger call.
	*now = now.Add(3 * time.Second)
	e.processFace(ctx, det("S1", 0.9))
	require.Equal(t, []EventKind{Marked, CoolingDown}, sink.faceKinds())
	assert.Equal(t, 7*time.Second, sink.faces[1].Remaining)
	assert.Equal(t, 1, ledger.marks)

	// Past the cooldown: already marked today, still no new record.
	*now = now.Add(15 * time.Second)
	e.processFace(ctx, det("S1", 0.9))
	require.Equal(t, []EventKind{Marked, CoolingDown, AlreadyMarkedToday}, sink.faceKinds())
	assert.Len(t, ledger.rows, 1)
}

func TestEngine_SeededStudentSuppressed(t *testing.T) {
	// Marked on an earlier run today: suppressed immediately, with no
	// ledger mutation, even though no cooldown timer exists this session.
	ledger := newFakeLedger()
	ledger.seed = map[string]struct{}{"S1": {}}
	sink := &recordingSink{}
	e, _ := newTestEngine(ledger, sink)
	startSession(t, e)

	e.processFace(context.Background(), det("S1", 0.9))
	assert.Equal(t, []EventKind{AlreadyMarkedToday}, sink.faceKinds())
	assert.Equal(t, 0, ledger.marks)
}

func TestEngine_UnknownFace(t *testing.T) {
	ledger := newFakeLedger()
	sink := &recordingSink{}
	e, _ := newTestEngine(ledger, sink)
	startSession(t, e)

	e.processFace(context.Background(), det("", 0.3))
	assert.Equal(t, []EventKind{Unknown}, sink.faceKinds())
	assert.Equal(t, 0, ledger.marks)
}

func TestEngine_LostRace(t *testing.T) {
	// Another writer inserted the record between the decide and the mark:
	// the insert reports false, the engine renders "already marked" and
	// does not stamp a cooldown.
	ledger := newFakeLedger()
	sink := &recordingSink{}
	e, _ := newTestEngine(ledger, sink)
	startSession(t, e)
	ctx := context.Background()

	ledger.rows["S1|"+e.now().Format(model.DateLayout)] = "08:59:00"

	e.processFace(ctx, det("S1", 0.9))
	assert.Equal(t, []EventKind{AlreadyMarkedToday}, sink.faceKinds())
	assert.Equal(t, 0, e.Snapshot().SessionMarked)

	// No cooldown was stamped, so the next sighting decides ReadyToMark
	// again and collapses against the ledger the same way.
	e.processFace(ctx, det("S1", 0.9))
	assert.Equal(t, []EventKind{AlreadyMarkedToday, AlreadyMarkedToday}, sink.faceKinds())
	assert.Len(t, ledger.rows, 1)
}

func TestEngine_MarkFailure(t *testing.T) {
	ledger := newFakeLedger()
	ledger.markErr = errors.New("disk full")
	sink := &recordingSink{}
	e, _ := newTestEngine(ledger, sink)
	startSession(t, e)

	e.processFace(context.Background(), det("S1", 0.9))
	assert.Equal(t, []EventKind{MarkFailed}, sink.faceKinds())

	// The failure is transient: once the ledger recovers, the same student
	// marks normally on a later frame.
	ledger.markErr = nil
	e.processFace(context.Background(), det("S1", 0.9))
	assert.Equal(t, []EventKind{MarkFailed, Marked}, sink.faceKinds())
}

func TestEngine_RecognitionErrorSkipsFrame(t *testing.T) {
	ledger := newFakeLedger()
	sink := &recordingSink{}
	e, _ := newTestEngine(ledger, sink)
	startSession(t, e)
	e.recognizer = failingRecognizer{}

	e.processFrame(context.Background(), image.NewGray(image.Rect(0, 0, 10, 10)))
	assert.Empty(t, sink.faceKinds())
	assert.Equal(t, 0, ledger.marks)
}

type failingRecognizer struct{}

func (failingRecognizer) DetectAndMatch(context.Context, image.Image) ([]recognize.Detection, error) {
	return nil, errors.New("detector unreachable")
}

func TestEngine_StartFailsWhenSeedUnavailable(t *testing.T) {
	ledger := newFakeLedger()
	ledger.seedErr = errors.New("database gone")
	e := New(ledger, fakeNames{}, failingRecognizer{}, nil, nil, 10*time.Second)

	err := e.Start(context.Background())
	require.Error(t, err)
	assert.False(t, e.Snapshot().Running)
}

type scriptedFrames struct {
	frames []image.Image
	pos    int
}

func (s *scriptedFrames) Next(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.frames) {
		return nil, io.EOF
	}
	f := s.frames[s.pos]
	s.pos++
	return f, nil
}

type scriptedRecognizer struct {
	mu         sync.Mutex
	detections [][]recognize.Detection
	pos        int
}

func (r *scriptedRecognizer) DetectAndMatch(context.Context, image.Image) ([]recognize.Detection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pos >= len(r.detections) {
		return nil, nil
	}
	d := r.detections[r.pos]
	r.pos++
	return d, nil
}

func TestEngine_SessionLifecycle(t *testing.T) {
	ledger := newFakeLedger()
	sink := &recordingSink{}
	frames := &scriptedFrames{frames: []image.Image{
		image.NewGray(image.Rect(0, 0, 10, 10)),
		image.NewGray(image.Rect(0, 0, 10, 10)),
	}}
	rec := &scriptedRecognizer{detections: [][]recognize.Detection{
		{det("S1", 0.9), det("", 0.2)},
		{det("S1", 0.9)},
	}}

	e := New(ledger, fakeNames{}, rec, frames, sink, 10*time.Second)
	require.NoError(t, e.Start(context.Background()))

	// Starting again while running is refused.
	assert.ErrorIs(t, e.Start(context.Background()), ErrSessionRunning)

	// The scripted source runs dry and the loop stops on its own; Stop
	// afterwards is a no-op. Wait for the stopped summary.
	require.Eventually(t, func() bool {
		return !e.Snapshot().Running
	}, 2*time.Second, 10*time.Millisecond)
	e.Stop()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.sessions, 2)
	assert.Equal(t, SessionStarted, sink.sessions[0].Phase)
	assert.Equal(t, SessionStopped, sink.sessions[1].Phase)
	assert.Equal(t, 1, sink.sessions[1].SessionMarked)
	assert.Equal(t, 1, sink.sessions[1].TodayTotal)

	kinds := make([]EventKind, len(sink.faces))
	for i, e := range sink.faces {
		kinds[i] = e.Kind
	}
	assert.Equal(t, []EventKind{Marked, Unknown, CoolingDown}, kinds)
}
