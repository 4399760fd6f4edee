package internal

import (
	"context"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"smart-attendance-backend/config"
	"smart-attendance-backend/internal/api"
	"smart-attendance-backend/internal/capture"
	"smart-attendance-backend/internal/engine"
	"smart-attendance-backend/internal/facedetect"
	"smart-attendance-backend/internal/model"
	"smart-attendance-backend/internal/recognize"
	"smart-attendance-backend/internal/store"
)

var templateSizes = []int{50, 75, 100}

// faceImage renders a deterministic synthetic face so registration
// templates and session frames share the exact same raster.
func faceImage(seed byte) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, 120, 120))
	for y := 0; y < 120; y++ {
		for x := 0; x < 120; x++ {
			img.Pix[y*img.Stride+x] = uint8(int(seed)*37 + x*2 + y*3)
		}
	}
	return img
}

// countingSink tallies face events by kind.
type countingSink struct {
	mu    sync.Mutex
	kinds map[engine.EventKind]int
}

func newCountingSink() *countingSink {
	return &countingSink{kinds: make(map[engine.EventKind]int)}
}

func (s *countingSink) Face(e engine.Event) {
	s.mu.Lock()
	s.kinds[e.Kind]++
	s.mu.Unlock()
}

func (s *countingSink) Session(engine.SessionEvent) {}

func (s *countingSink) count(kind engine.EventKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kinds[kind]
}

// TestAttendanceLifecycle walks one student through the full pipeline:
// registration, a capture session over scripted frames, and the API view
// of the resulting ledger. The same student appearing in several frames
// must produce exactly one attendance row.
func TestAttendanceLifecycle(t *testing.T) {
	// 1. In-memory SQLite with the real schema.
	testDB, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := testDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	defer sqlDB.Close()

	require.NoError(t, testDB.AutoMigrate(
		&model.Student{},
		&model.FaceTemplate{},
		&model.AttendanceRecord{},
		&model.PushSubscription{},
	))
	s := store.NewGormStore(testDB, 6)
	ctx := context.Background()

	// 2. Register Alice from two captures of the same synthetic face.
	alice := faceImage(1)
	var templates []store.Template
	templates = append(templates, recognize.TemplatesFromImage(alice, templateSizes)...)
	templates = append(templates, recognize.TemplatesFromImage(alice, templateSizes)...)
	_, err = s.RegisterStudent(ctx, "S1", "Alice", templates)
	require.NoError(t, err)

	// 3. Recognition pipeline: detector in skip mode treats the whole
	// frame as the face region.
	index := recognize.NewIndex()
	require.NoError(t, index.Reload(ctx, s))
	matcher := recognize.NewMatcher(index, 0.65)
	detector := facedetect.New("", true, time.Second, 0)
	recognizer := recognize.NewRecognizer(detector, matcher)

	// 4. Scripted frames on disk: Alice twice, then an unknown face. The
	// finite source ends the session after one pass.
	frameDir := t.TempDir()
	writeFrame(t, frameDir, "01_alice.png", alice)
	writeFrame(t, frameDir, "02_alice.png", alice)
	writeFrame(t, frameDir, "03_unknown.png", noiseImage())
	frames := capture.NewFiniteDirSource(frameDir)

	sink := newCountingSink()
	eng := engine.New(s, s, recognizer, frames, sink, 10*time.Second)

	// --- Session 1: Alice is marked exactly once ---
	require.NoError(t, eng.Start(ctx))
	require.Eventually(t, func() bool { return !eng.Snapshot().Running }, 5*time.Second, 20*time.Millisecond)

	status := eng.Snapshot()
	assert.Equal(t, 1, status.SessionMarked)
	assert.Equal(t, 1, status.TodayTotal)
	assert.Equal(t, 1, sink.count(engine.Marked))
	assert.Equal(t, 1, sink.count(engine.CoolingDown), "second sighting lands inside the cooldown window")
	assert.Equal(t, 1, sink.count(engine.Unknown))

	var records []model.AttendanceRecord
	require.NoError(t, testDB.Find(&records).Error)
	require.Len(t, records, 1)
	assert.Equal(t, "S1", records[0].StudentID)
	assert.Equal(t, "Alice", records[0].Name)
	assert.Equal(t, time.Now().Format(model.DateLayout), records[0].Date)
	assert.Equal(t, "Present", records[0].Status)

	// --- Session 2: the ledger seed suppresses a re-mark ---
	frameDir2 := t.TempDir()
	writeFrame(t, frameDir2, "01_alice.png", alice)
	sink2 := newCountingSink()
	eng2 := engine.New(s, s, recognizer, capture.NewFiniteDirSource(frameDir2), sink2, 10*time.Second)

	require.NoError(t, eng2.Start(ctx))
	require.Eventually(t, func() bool { return !eng2.Snapshot().Running }, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, 0, eng2.Snapshot().SessionMarked)
	assert.Equal(t, 1, eng2.Snapshot().TodayTotal)
	assert.Equal(t, 1, sink2.count(engine.AlreadyMarkedToday))

	require.NoError(t, testDB.Find(&records).Error)
	assert.Len(t, records, 1, "a second session must not duplicate the attendance row")

	// --- API view ---
	cfg := &config.Config{}
	cfg.Recognition.TemplateSizes = templateSizes
	router := api.NewRouter(cfg, s, eng2, index, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/status", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var apiStatus struct {
		TotalStudents  int64   `json:"total_students"`
		PresentToday   int64   `json:"present_today"`
		AttendanceRate float64 `json:"attendance_rate"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiStatus))
	assert.Equal(t, int64(1), apiStatus.TotalStudents)
	assert.Equal(t, int64(1), apiStatus.PresentToday)
	assert.InDelta(t, 100.0, apiStatus.AttendanceRate, 0.01)
}

func writeFrame(t *testing.T, dir, name string, img image.Image) {
	t.Helper()
	f, err := os.Create(filepath.Join(dir, name))
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func noiseImage() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, 120, 120))
	state := uint32(42)
	for i := range img.Pix {
		state = state*1664525 + 1013904223
		img.Pix[i] = uint8(state >> 24)
	}
	return img
}
