// Package enroll persists a person with a batch of face embeddings,
// rolling back the person when storage becomes unreachable mid-batch.
package enroll

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/ege-eker/BiometricCheckIn/internal/database"
	"github.com/google/uuid"
)

// MinVectors is the smallest batch a complete enrollment accepts.
const MinVectors = 5

var (
	// ErrTooFewVectors means the batch is smaller than MinVectors.
	ErrTooFewVectors = fmt.Errorf("at least %d images are required", MinVectors)

	// ErrNoAnchor means the first image of the batch yielded no face, so
	// nothing was persisted.
	ErrNoAnchor = errors.New("no face detected in the first image")
)

// ItemStatus describes what happened to one vector of the batch.
type ItemStatus string

const (
	ItemStored  ItemStatus = "stored"
	ItemSkipped ItemStatus = "skipped" // extraction found no face
	ItemFailed  ItemStatus = "failed"  // the store rejected this item
)

// ItemOutcome records the fate of one batch item.
type ItemOutcome struct {
	Index  int
	Status ItemStatus
	Err    error
}

// Summary is the result of a successful enrollment.
type Summary struct {
	EnrollmentID uuid.UUID
	PersonID     int64
	Stored       int
	Outcomes     []ItemOutcome
}

// Saga enrolls a person with a batch of embeddings. The first item is the
// anchor: it is stored atomically with the person row. Later items that
// fail individually are recorded and skipped; if the store becomes
// unreachable the person is deleted again so no partial identity remains.
type Saga struct {
	store database.PersonWriter
}

// NewSaga creates an enrollment saga over the given store.
func NewSaga(store database.PersonWriter) *Saga {
	return &Saga{store: store}
}

// Enroll persists the person and their embedding batch. vectors[i] == nil
// marks an image whose extraction found no face. Before anything is
// persisted, batches below MinVectors fail with ErrTooFewVectors and a nil
// anchor fails with ErrNoAnchor.
func (s *Saga) Enroll(ctx context.Context, person database.Person, vectors [][]float32) (*Summary, error) {
	if len(vectors) < MinVectors {
		return nil, ErrTooFewVectors
	}
	if vectors[0] == nil {
		return nil, ErrNoAnchor
	}

	enrollmentID := uuid.New()
	logger := log.With("enrollment_id", enrollmentID.String())

	personID, err := s.store.CreatePerson(ctx, person, vectors[0])
	if err != nil {
		return nil, fmt.Errorf("create person: %w", err)
	}
	logger.Info("person created", "person_id", personID, "batch_size", len(vectors))

	summary := &Summary{
		EnrollmentID: enrollmentID,
		PersonID:     personID,
		Stored:       1,
		Outcomes:     make([]ItemOutcome, 0, len(vectors)),
	}
	summary.Outcomes = append(summary.Outcomes, ItemOutcome{Index: 0, Status: ItemStored})

	for i, vec := range vectors[1:] {
		index := i + 1
		if vec == nil {
			logger.Warn("no face in image, skipping", "index", index)
			summary.Outcomes = append(summary.Outcomes, ItemOutcome{Index: index, Status: ItemSkipped})
			continue
		}

		if err := s.store.AddEmbedding(ctx, personID, vec); err != nil {
			if errors.Is(err, database.ErrUnavailable) {
				s.compensate(ctx, logger, personID)
				return nil, fmt.Errorf("store embedding %d: %w", index, err)
			}
			logger.Warn("embedding rejected, continuing", "index", index, "error", err)
			summary.Outcomes = append(summary.Outcomes, ItemOutcome{Index: index, Status: ItemFailed, Err: err})
			continue
		}
		summary.Stored++
		summary.Outcomes = append(summary.Outcomes, ItemOutcome{Index: index, Status: ItemStored})
	}

	logger.Info("enrollment complete", "person_id", personID, "stored", summary.Stored)
	return summary, nil
}

// compensate removes the person created earlier in the saga. Runs detached
// from the caller's cancellation so a dead request context cannot leave a
// partial identity behind.
func (s *Saga) compensate(ctx context.Context, logger *log.Logger, personID int64) {
	logger.Error("store unreachable, rolling back person", "person_id", personID)
	if err := s.store.DeletePerson(context.WithoutCancel(ctx), personID); err != nil {
		logger.Error("rollback failed, person may be partially enrolled", "person_id", personID, "error", err)
	}
}
