package recognize

import (
	"context"
	"fmt"
	"image"
	"sync"

	"smart-attendance-backend/internal/store"
)

// Index holds the reference templates of every registered student in
// memory. It is rebuilt from the store after registrations and removals
// and read on every frame, so access is guarded.
type Index struct {
	mu        sync.RWMutex
	templates map[string][]*image.Gray
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{templates: make(map[string][]*image.Gray)}
}

// Reload replaces the index contents with the store's current templates.
func (idx *Index) Reload(ctx context.Context, s store.Store) error {
	byStudent, err := s.TemplatesByStudent(ctx)
	if err != nil {
		return fmt.Errorf("failed to load face templates: %w", err)
	}

	templates := make(map[string][]*image.Gray, len(byStudent))
	for studentID, rows := range byStudent {
		grays := make([]*image.Gray, 0, len(rows))
		for _, row := range rows {
			if len(row.Pixels) != row.Width*row.Height {
				continue
			}
			g := image.NewGray(image.Rect(0, 0, row.Width, row.Height))
			copy(g.Pix, row.Pixels)
			grays = append(grays, g)
		}
		if len(grays) > 0 {
			templates[studentID] = grays
		}
	}

	idx.mu.Lock()
	idx.templates = templates
	idx.mu.Unlock()
	return nil
}

// Size returns the number of indexed students.
func (idx *Index) Size() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.templates)
}

func (idx *Index) snapshot() map[string][]*image.Gray {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.templates
}
