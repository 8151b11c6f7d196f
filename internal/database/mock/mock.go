// Package mock provides an in-memory implementation of the database
// interfaces for testing.
package mock

import (
	"context"
	"sort"
	"sync"

	"github.com/ege-eker/BiometricCheckIn/internal/database"
)

// PersonStore is an in-memory mock implementation of database.PersonWriter.
// Error fields inject failures; AddEmbeddingErrs keys on the 1-based ordinal
// of the AddEmbedding call, so tests can fail a specific secondary embedding.
type PersonStore struct {
	mu         sync.RWMutex
	nextID     int64
	nextEmbID  int64
	people     map[int64]database.Person
	embeddings map[int64][]database.StoredEmbedding // person ID -> embeddings

	// Error injection
	CreatePersonError         error
	AddEmbeddingError         error
	AddEmbeddingErrs          map[int]error
	DeletePersonError         error
	ExistsError               error
	BestMatchError            error
	CountAboveError           error
	CountError                error
	GetPersonError            error
	GetPersonByPassportError  error
	SearchByNameError         error

	// Call tracking
	AddEmbeddingCalls int
	DeletePersonCalls []int64
}

// NewPersonStore creates a new empty mock store.
func NewPersonStore() *PersonStore {
	return &PersonStore{
		nextID:     1,
		nextEmbID:  1,
		people:     make(map[int64]database.Person),
		embeddings: make(map[int64][]database.StoredEmbedding),
	}
}

// AddPerson seeds the store with a person and their embeddings, bypassing
// error injection. Returns the assigned person ID.
func (m *PersonStore) AddPerson(p database.Person, embeddings ...[]float32) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	p.ID = m.nextID
	m.nextID++
	m.people[p.ID] = p
	for _, emb := range embeddings {
		m.embeddings[p.ID] = append(m.embeddings[p.ID], database.StoredEmbedding{
			ID:        m.nextEmbID,
			PersonID:  p.ID,
			Embedding: emb,
		})
		m.nextEmbID++
	}
	return p.ID
}

// EmbeddingCount returns the number of embeddings stored for a person.
func (m *PersonStore) EmbeddingCount(personID int64) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.embeddings[personID])
}

// PersonCount returns the number of people in the store.
func (m *PersonStore) PersonCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.people)
}

// CreatePerson inserts a person and their first embedding.
func (m *PersonStore) CreatePerson(ctx context.Context, p database.Person, firstEmbedding []float32) (int64, error) {
	if m.CreatePersonError != nil {
		return 0, m.CreatePersonError
	}
	return m.AddPerson(p, firstEmbedding), nil
}

// AddEmbedding inserts one embedding for an existing person.
func (m *PersonStore) AddEmbedding(ctx context.Context, personID int64, embedding []float32) error {
	m.mu.Lock()
	m.AddEmbeddingCalls++
	call := m.AddEmbeddingCalls
	m.mu.Unlock()

	if err, ok := m.AddEmbeddingErrs[call]; ok {
		return err
	}
	if m.AddEmbeddingError != nil {
		return m.AddEmbeddingError
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.people[personID]; !ok {
		return database.ErrPersonNotFound
	}
	m.embeddings[personID] = append(m.embeddings[personID], database.StoredEmbedding{
		ID:        m.nextEmbID,
		PersonID:  personID,
		Embedding: embedding,
	})
	m.nextEmbID++
	return nil
}

// Exists checks whether a person exists.
func (m *PersonStore) Exists(ctx context.Context, personID int64) (bool, error) {
	if m.ExistsError != nil {
		return false, m.ExistsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.people[personID]
	return ok, nil
}

// DeletePerson removes a person and all their embeddings.
func (m *PersonStore) DeletePerson(ctx context.Context, personID int64) error {
	m.mu.Lock()
	m.DeletePersonCalls = append(m.DeletePersonCalls, personID)
	m.mu.Unlock()

	if m.DeletePersonError != nil {
		return m.DeletePersonError
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.people[personID]; !ok {
		return database.ErrPersonNotFound
	}
	delete(m.people, personID)
	delete(m.embeddings, personID)
	return nil
}

// GetPerson retrieves a person by ID, nil if not found.
func (m *PersonStore) GetPerson(ctx context.Context, personID int64) (*database.Person, error) {
	if m.GetPersonError != nil {
		return nil, m.GetPersonError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.people[personID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// GetPersonByPassport retrieves a person by passport number, nil if not found.
func (m *PersonStore) GetPersonByPassport(ctx context.Context, passportNo string) (*database.Person, error) {
	if m.GetPersonByPassportError != nil {
		return nil, m.GetPersonByPassportError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.people {
		if p.PassportNo == passportNo {
			return &p, nil
		}
	}
	return nil, nil
}

// SearchByName finds people by normalized full name.
func (m *PersonStore) SearchByName(ctx context.Context, name string) ([]database.Person, error) {
	if m.SearchByNameError != nil {
		return nil, m.SearchByNameError
	}
	normalized := database.NormalizePersonName(name)

	m.mu.RLock()
	defer m.mu.RUnlock()
	var results []database.Person
	for _, p := range m.people {
		if database.NormalizePersonName(p.Name+" "+p.Surname) == normalized {
			results = append(results, p)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
	return results, nil
}

// BestMatchPerPerson computes per-person best similarity over the in-memory
// data, ordered like the SQL window query (similarity descending, person ID
// ascending on ties).
func (m *PersonStore) BestMatchPerPerson(ctx context.Context, probe []float32, topK int) ([]database.PersonMatch, error) {
	if m.BestMatchError != nil {
		return nil, m.BestMatchError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matches []database.PersonMatch
	for id, embs := range m.embeddings {
		if len(embs) == 0 {
			continue
		}
		best := -1.0
		for _, emb := range embs {
			if sim := database.CosineSimilarity(probe, emb.Embedding); sim > best {
				best = sim
			}
		}
		matches = append(matches, database.PersonMatch{Person: m.people[id], Similarity: best})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].Person.ID < matches[j].Person.ID
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// CountEmbeddingsAbove counts embeddings whose similarity exceeds floor.
func (m *PersonStore) CountEmbeddingsAbove(ctx context.Context, personID int64, probe []float32, floor float64) (int, error) {
	if m.CountAboveError != nil {
		return 0, m.CountAboveError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, emb := range m.embeddings[personID] {
		if database.CosineSimilarity(probe, emb.Embedding) > floor {
			count++
		}
	}
	return count, nil
}

// CountPeople returns the number of people.
func (m *PersonStore) CountPeople(ctx context.Context) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	return m.PersonCount(), nil
}

// CountEmbeddings returns the total number of embeddings.
func (m *PersonStore) CountEmbeddings(ctx context.Context) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for _, embs := range m.embeddings {
		total += len(embs)
	}
	return total, nil
}

// Verify interface compliance
var _ database.PersonWriter = (*PersonStore)(nil)
