// Package capture defines the frame acquisition boundary. Cameras,
// on-screen rendering and overlays live outside this repository; the
// engine only pulls raster frames, one at a time, from a FrameSource.
package capture

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// FrameSource produces a lazy sequence of frames. Next blocks until a
// frame is available, the source is exhausted (io.EOF) or ctx is done.
// A source is restartable: a new session may keep pulling from it.
type FrameSource interface {
	Next(ctx context.Context) (image.Image, error)
}

// DirSource reads raster frames from a directory, in file-name order. With
// Loop set it wraps around indefinitely, so it behaves like a live feed;
// without it, Next returns io.EOF after the last file. The directory
// listing is refreshed on every wrap, so newly dropped files are picked
// up.
type DirSource struct {
	dir      string
	interval time.Duration
	loop     bool

	files []string
	pos   int
}

// NewDirSource creates a looping directory source. interval is the pause
// between consecutive frames.
func NewDirSource(dir string, interval time.Duration) *DirSource {
	return &DirSource{dir: dir, interval: interval, loop: true}
}

// NewFiniteDirSource creates a source that stops after one pass, for
// replaying a fixed set of frames.
func NewFiniteDirSource(dir string) *DirSource {
	return &DirSource{dir: dir}
}

// Next decodes and returns the next frame.
func (s *DirSource) Next(ctx context.Context) (image.Image, error) {
	for {
		if s.pos >= len(s.files) {
			if s.pos > 0 && !s.loop {
				return nil, io.EOF
			}
			if err := s.refresh(); err != nil {
				return nil, err
			}
			if len(s.files) == 0 {
				if !s.loop {
					return nil, io.EOF
				}
				if err := sleep(ctx, s.interval); err != nil {
					return nil, err
				}
				continue
			}
		}

		if s.interval > 0 {
			if err := sleep(ctx, s.interval); err != nil {
				return nil, err
			}
		}

		path := s.files[s.pos]
		s.pos++

		img, err := decodeFile(path)
		if err != nil {
			// Skip unreadable files rather than killing the session.
			continue
		}
		return img, nil
	}
}

func (s *DirSource) refresh() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to read frame directory %s: %w", s.dir, err)
	}

	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg":
			files = append(files, filepath.Join(s.dir, e.Name()))
		}
	}
	sort.Strings(files)

	s.files = files
	s.pos = 0
	return nil
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	return img, err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
