package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"scientia/src/core/index"
)

// VectorStore keeps fragments in process memory and ranks them by brute
// force L2 distance. It backs single-node deployments and doubles as the
// reference implementation for nearest-neighbor ranking.
type VectorStore struct {
	mu     sync.RWMutex
	nextID int64
	byDoc  map[int64][]index.Fragment
}

func NewVectorStore() *VectorStore {
	return &VectorStore{byDoc: make(map[int64][]index.Fragment)}
}

func (s *VectorStore) Replace(ctx context.Context, documentID int64, fragments []index.Fragment) error {
	rows := make([]index.Fragment, len(fragments))
	copy(rows, fragments)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for i := range rows {
		s.nextID++
		rows[i].ID = s.nextID
		rows[i].DocumentID = documentID
		rows[i].CreatedAt = now
	}

	if len(rows) == 0 {
		delete(s.byDoc, documentID)
		return nil
	}
	s.byDoc[documentID] = rows
	return nil
}

func (s *VectorStore) QueryNearest(ctx context.Context, documentID int64, vector []float32, k int) ([]index.ScoredFragment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fragments := s.byDoc[documentID]
	scored := make([]index.ScoredFragment, 0, len(fragments))
	for _, frag := range fragments {
		distance, err := l2(vector, frag.Embedding)
		if err != nil {
			return nil, fmt.Errorf("fragment %d: %w", frag.Index, err)
		}
		scored = append(scored, index.ScoredFragment{Fragment: frag, Distance: distance})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Distance < scored[j].Distance
	})

	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

func (s *VectorStore) Count(ctx context.Context, documentID int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.byDoc[documentID])), nil
}

// l2 returns the Euclidean distance between two vectors of equal dimension.
func l2(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("dimension mismatch: %d vs %d", len(a), len(b))
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum), nil
}
