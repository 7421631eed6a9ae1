package store

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/couchcryptid/wildfire-dashboard-service/internal/domain"
)

// EntityStore holds the detections the map layer renders. Each Replace swaps
// in a whole snapshot, so readers see one generation or the next, never a mix.
type EntityStore struct {
	current atomic.Pointer[generation]

	mu      sync.Mutex // serializes writers and guards changed
	changed chan struct{}
}

type generation struct {
	snapshot domain.Snapshot
	byCell   map[string]int
}

// New creates an empty store at generation 0.
func New() *EntityStore {
	s := &EntityStore{changed: make(chan struct{})}
	s.current.Store(&generation{
		snapshot: domain.Snapshot{Detections: []domain.FireDetection{}},
		byCell:   map[string]int{},
	})
	return s
}

// Replace installs a new snapshot. The detections are copied and ordered by
// ascending severity (stable), so extreme markers are drawn last and sit on
// top of overlapping ones.
func (s *EntityStore) Replace(snap domain.Snapshot) {
	detections := slices.Clone(snap.Detections)
	if detections == nil {
		detections = []domain.FireDetection{}
	}
	slices.SortStableFunc(detections, func(a, b domain.FireDetection) int {
		return a.Severity.Rank() - b.Severity.Rank()
	})

	byCell := make(map[string]int, len(detections))
	for i := range detections {
		byCell[detections[i].CellID] = i
	}
	snap.Detections = detections

	s.mu.Lock()
	s.current.Store(&generation{snapshot: snap, byCell: byCell})
	close(s.changed)
	s.changed = make(chan struct{})
	s.mu.Unlock()
}

// Current returns the detections of the current generation. Callers must not
// modify the returned slice.
func (s *EntityStore) Current() []domain.FireDetection {
	return s.current.Load().snapshot.Detections
}

// Snapshot returns the current generation with its metadata.
func (s *EntityStore) Snapshot() domain.Snapshot {
	return s.current.Load().snapshot
}

// Lookup finds a detection by cell id in the current generation.
func (s *EntityStore) Lookup(cellID string) (domain.FireDetection, bool) {
	g := s.current.Load()
	i, ok := g.byCell[cellID]
	if !ok {
		return domain.FireDetection{}, false
	}
	return g.snapshot.Detections[i], true
}

// Changed returns a channel that is closed by the next Replace.
func (s *EntityStore) Changed() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changed
}
