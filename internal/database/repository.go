package database

import (
	"context"
)

// PersonReader provides read-only access to people and their embeddings.
type PersonReader interface {
	// GetPerson retrieves a person by ID, returns nil if not found
	GetPerson(ctx context.Context, personID int64) (*Person, error)
	// GetPersonByPassport retrieves a person by passport number, returns nil if not found
	GetPersonByPassport(ctx context.Context, passportNo string) (*Person, error)
	// SearchByName finds people whose full name matches after normalization
	// (lowercase, no diacritics, dashes to spaces)
	SearchByName(ctx context.Context, name string) ([]Person, error)
	// Exists checks whether a person with the given ID exists
	Exists(ctx context.Context, personID int64) (bool, error)
	// BestMatchPerPerson returns, for every person owning at least one
	// embedding, the maximum cosine similarity between the probe and any of
	// that person's embeddings, ordered by similarity descending. Ordering is
	// deterministic: equal similarities break ties by person ID ascending.
	BestMatchPerPerson(ctx context.Context, probe []float32, topK int) ([]PersonMatch, error)
	// CountEmbeddingsAbove counts the person's embeddings whose similarity to
	// the probe strictly exceeds floor
	CountEmbeddingsAbove(ctx context.Context, personID int64, probe []float32, floor float64) (int, error)
	// CountPeople returns the total number of enrolled people
	CountPeople(ctx context.Context) (int, error)
	// CountEmbeddings returns the total number of stored embeddings
	CountEmbeddings(ctx context.Context) (int, error)
}

// PersonWriter provides write access to people and their embeddings.
type PersonWriter interface {
	PersonReader

	// CreatePerson inserts a person and their first embedding as one atomic
	// unit. A failure leaves no partial state.
	CreatePerson(ctx context.Context, p Person, firstEmbedding []float32) (int64, error)

	// AddEmbedding inserts one embedding for an existing person. Returns
	// ErrPersonNotFound if the person does not exist.
	AddEmbedding(ctx context.Context, personID int64, embedding []float32) error

	// DeletePerson removes a person and all their embeddings. Returns
	// ErrPersonNotFound if nothing was deleted; persistence failures are
	// reported, not swallowed.
	DeletePerson(ctx context.Context, personID int64) error
}
