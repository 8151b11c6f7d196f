package recognizer

import (
	"context"
	"sync"
)

// Serialized wraps an Extractor so that only one extraction runs at a time.
// Used when the extraction service cannot handle concurrent requests.
type Serialized struct {
	inner Extractor
	mu    sync.Mutex
}

// NewSerialized wraps the given extractor with a mutual exclusion lock.
func NewSerialized(inner Extractor) *Serialized {
	return &Serialized{inner: inner}
}

func (s *Serialized) ExtractFace(ctx context.Context, imageData []byte) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.ExtractFace(ctx, imageData)
}

var _ Extractor = (*Serialized)(nil)
