package database

import (
	"time"
)

// Person represents an enrolled traveler. Created once per enrollment and
// never mutated afterwards; removed only by compensating rollback or an
// explicit admin delete.
type Person struct {
	ID          int64
	Name        string
	Surname     string
	Age         int
	Nationality string
	PassportNo  string
	FlightNo    string // optional, may be empty
	CreatedAt   time.Time
}

// StoredEmbedding represents a face embedding stored in the database.
// Vectors are unit-normalized and share a single fixed dimension.
type StoredEmbedding struct {
	ID        int64
	PersonID  int64
	Embedding []float32
	CreatedAt time.Time
}

// PersonMatch pairs a person with the best similarity any of their
// embeddings achieved against a probe vector.
type PersonMatch struct {
	Person     Person
	Similarity float64
}
