package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/ege-eker/BiometricCheckIn/internal/database"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// pq error codes of interest.
const pqForeignKeyViolation = "23503"

// wrapStoreErr classifies a statement error. Errors the server reported
// (*pq.Error) stay as-is; anything else means the database could not be
// reached and wraps database.ErrUnavailable, which the enrollment saga
// treats as fatal.
func wrapStoreErr(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %v", op, database.ErrUnavailable, err)
}

// PersonRepository provides PostgreSQL-backed person and embedding storage
// with an optional in-memory HNSW index as the similarity fast path.
type PersonRepository struct {
	pool         *Pool
	index        *database.PersonIndex
	indexEnabled bool
	indexMu      sync.RWMutex
}

// NewPersonRepository creates a new PostgreSQL person repository.
func NewPersonRepository(pool *Pool) *PersonRepository {
	return &PersonRepository{pool: pool}
}

const personColumns = "id, name, surname, age, nationality, passport_no, flight_no, created_at"

func scanPerson(row *sql.Row) (*database.Person, error) {
	var p database.Person
	err := row.Scan(&p.ID, &p.Name, &p.Surname, &p.Age, &p.Nationality, &p.PassportNo, &p.FlightNo, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan person: %w", err)
	}
	return &p, nil
}

// GetPerson retrieves a person by ID, returns nil if not found.
func (r *PersonRepository) GetPerson(ctx context.Context, personID int64) (*database.Person, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+personColumns+" FROM people WHERE id = $1", personID)
	return scanPerson(row)
}

// GetPersonByPassport retrieves a person by passport number, returns nil if
// not found. Passport numbers are not unique (see DESIGN.md); the oldest
// enrollment wins.
func (r *PersonRepository) GetPersonByPassport(ctx context.Context, passportNo string) (*database.Person, error) {
	row := r.pool.QueryRow(
		ctx, "SELECT "+personColumns+" FROM people WHERE passport_no = $1 ORDER BY id LIMIT 1", passportNo,
	)
	return scanPerson(row)
}

// SearchByName finds people whose full name matches after normalization.
// The SQL normalization (LOWER + unaccent + dash replacement) matches
// database.NormalizePersonName.
func (r *PersonRepository) SearchByName(ctx context.Context, name string) ([]database.Person, error) {
	normalized := database.NormalizePersonName(name)

	query := `
		SELECT ` + personColumns + `
		FROM people
		WHERE LOWER(REPLACE(unaccent(name || ' ' || surname), '-', ' ')) = $1
		ORDER BY id
	`
	rows, err := r.pool.Query(ctx, query, normalized)
	if err != nil {
		return nil, fmt.Errorf("query people by name: %w", err)
	}
	defer rows.Close()

	var people []database.Person
	for rows.Next() {
		var p database.Person
		if err := rows.Scan(&p.ID, &p.Name, &p.Surname, &p.Age, &p.Nationality, &p.PassportNo, &p.FlightNo, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		people = append(people, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate people: %w", err)
	}
	return people, nil
}

// Exists checks whether a person with the given ID exists.
func (r *PersonRepository) Exists(ctx context.Context, personID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM people WHERE id = $1)", personID).Scan(&exists)
	if err != nil {
		return false, wrapStoreErr("check person exists", err)
	}
	return exists, nil
}

// CreatePerson inserts a person and their first embedding in one
// transaction. Any failure rolls back both inserts.
func (r *PersonRepository) CreatePerson(ctx context.Context, p database.Person, firstEmbedding []float32) (int64, error) {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return 0, wrapStoreErr("create person", err)
	}
	defer tx.Rollback()

	var personID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO people (name, surname, age, nationality, passport_no, flight_no)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, p.Name, p.Surname, p.Age, p.Nationality, p.PassportNo, p.FlightNo).Scan(&personID)
	if err != nil {
		return 0, wrapStoreErr("insert person", err)
	}

	var embeddingID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO face_embeddings (person_id, embedding)
		VALUES ($1, $2::vector)
		RETURNING id
	`, personID, pgvector.NewVector(firstEmbedding)).Scan(&embeddingID)
	if err != nil {
		return 0, wrapStoreErr("insert first embedding", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, wrapStoreErr("commit person", err)
	}

	r.indexAdd(embeddingID, personID, firstEmbedding)
	return personID, nil
}

// AddEmbedding inserts one embedding for an existing person. Returns
// database.ErrPersonNotFound if the person does not exist.
func (r *PersonRepository) AddEmbedding(ctx context.Context, personID int64, embedding []float32) error {
	var embeddingID int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO face_embeddings (person_id, embedding)
		VALUES ($1, $2::vector)
		RETURNING id
	`, personID, pgvector.NewVector(embedding)).Scan(&embeddingID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqForeignKeyViolation {
			return database.ErrPersonNotFound
		}
		return wrapStoreErr("insert embedding", err)
	}

	r.indexAdd(embeddingID, personID, embedding)
	return nil
}

// DeletePerson removes a person and all their embeddings. The cascade is
// explicit: embeddings first, then the person row. Returns
// database.ErrPersonNotFound if nothing was deleted.
func (r *PersonRepository) DeletePerson(ctx context.Context, personID int64) error {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return wrapStoreErr("delete person", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM face_embeddings WHERE person_id = $1", personID); err != nil {
		return wrapStoreErr("delete embeddings", err)
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM people WHERE id = $1", personID)
	if err != nil {
		return wrapStoreErr("delete person row", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return wrapStoreErr("delete person row", err)
	}
	if affected == 0 {
		return database.ErrPersonNotFound
	}

	if err := tx.Commit(); err != nil {
		return wrapStoreErr("commit delete", err)
	}

	r.indexMu.RLock()
	if r.indexEnabled && r.index != nil {
		r.index.DeletePerson(personID)
	}
	r.indexMu.RUnlock()
	return nil
}

// BestMatchPerPerson returns the topK people ordered by the maximum
// similarity between the probe and any of their embeddings, descending.
// Uses the in-memory HNSW index when enabled, otherwise PostgreSQL.
func (r *PersonRepository) BestMatchPerPerson(ctx context.Context, probe []float32, topK int) ([]database.PersonMatch, error) {
	r.indexMu.RLock()
	indexEnabled := r.indexEnabled && r.index != nil
	r.indexMu.RUnlock()

	if indexEnabled {
		return r.bestMatchIndex(ctx, probe, topK)
	}
	return r.bestMatchPostgres(ctx, probe, topK)
}

// bestMatchPostgres runs the window query: rank each person's embeddings by
// distance to the probe, keep the best per person, order by similarity.
// Tie-breaks are deterministic (embedding ID within a person, person ID
// across people).
func (r *PersonRepository) bestMatchPostgres(ctx context.Context, probe []float32, topK int) ([]database.PersonMatch, error) {
	query := `
		WITH person_matches AS (
			SELECT
				p.id, p.name, p.surname, p.age, p.nationality, p.passport_no, p.flight_no, p.created_at,
				1 - (fe.embedding <=> $1::vector) AS similarity,
				ROW_NUMBER() OVER (
					PARTITION BY p.id
					ORDER BY fe.embedding <=> $1::vector ASC, fe.id ASC
				) AS rank
			FROM people p
			JOIN face_embeddings fe ON p.id = fe.person_id
		)
		SELECT id, name, surname, age, nationality, passport_no, flight_no, created_at, similarity
		FROM person_matches
		WHERE rank = 1
		ORDER BY similarity DESC, id ASC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, pgvector.NewVector(probe), topK)
	if err != nil {
		return nil, fmt.Errorf("query best matches: %w", err)
	}
	defer rows.Close()

	var matches []database.PersonMatch
	for rows.Next() {
		var m database.PersonMatch
		if err := rows.Scan(
			&m.Person.ID, &m.Person.Name, &m.Person.Surname, &m.Person.Age,
			&m.Person.Nationality, &m.Person.PassportNo, &m.Person.FlightNo,
			&m.Person.CreatedAt, &m.Similarity,
		); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate matches: %w", err)
	}
	return matches, nil
}

// bestMatchIndex searches the in-memory index, then resolves person fields
// from PostgreSQL in one query.
func (r *PersonRepository) bestMatchIndex(ctx context.Context, probe []float32, topK int) ([]database.PersonMatch, error) {
	r.indexMu.RLock()
	hits := r.index.BestMatchPerPerson(probe, topK)
	r.indexMu.RUnlock()

	if len(hits) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(hits))
	for i, h := range hits {
		ids[i] = h.Person.ID
	}

	rows, err := r.pool.Query(ctx, "SELECT "+personColumns+" FROM people WHERE id = ANY($1)", pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("resolve matched people: %w", err)
	}
	defer rows.Close()

	people := make(map[int64]database.Person, len(ids))
	for rows.Next() {
		var p database.Person
		if err := rows.Scan(&p.ID, &p.Name, &p.Surname, &p.Age, &p.Nationality, &p.PassportNo, &p.FlightNo, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		people[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate people: %w", err)
	}

	matches := make([]database.PersonMatch, 0, len(hits))
	for _, h := range hits {
		p, ok := people[h.Person.ID]
		if !ok {
			// Row deleted between index search and resolution; skip.
			continue
		}
		matches = append(matches, database.PersonMatch{Person: p, Similarity: h.Similarity})
	}
	return matches, nil
}

// CountEmbeddingsAbove counts the person's embeddings whose similarity to
// the probe strictly exceeds floor.
func (r *PersonRepository) CountEmbeddingsAbove(ctx context.Context, personID int64, probe []float32, floor float64) (int, error) {
	r.indexMu.RLock()
	indexEnabled := r.indexEnabled && r.index != nil
	r.indexMu.RUnlock()

	if indexEnabled {
		r.indexMu.RLock()
		count := r.index.CountAbove(personID, probe, floor)
		r.indexMu.RUnlock()
		return count, nil
	}

	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM face_embeddings
		WHERE person_id = $1
		  AND 1 - (embedding <=> $2::vector) > $3
	`, personID, pgvector.NewVector(probe), floor).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count embeddings above floor: %w", err)
	}
	return count, nil
}

// CountPeople returns the total number of enrolled people.
func (r *PersonRepository) CountPeople(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM people").Scan(&count); err != nil {
		return 0, fmt.Errorf("count people: %w", err)
	}
	return count, nil
}

// CountEmbeddings returns the total number of stored embeddings.
func (r *PersonRepository) CountEmbeddings(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM face_embeddings").Scan(&count); err != nil {
		return 0, fmt.Errorf("count embeddings: %w", err)
	}
	return count, nil
}

// EnableIndex builds the in-memory HNSW index from all stored embeddings.
// Should be called once at startup; writes keep the index in sync afterwards.
func (r *PersonRepository) EnableIndex(ctx context.Context) error {
	r.indexMu.Lock()
	defer r.indexMu.Unlock()

	rows, err := r.pool.Query(ctx, "SELECT id, person_id, embedding FROM face_embeddings ORDER BY id")
	if err != nil {
		return fmt.Errorf("load embeddings for index: %w", err)
	}
	defer rows.Close()

	var embeddings []database.StoredEmbedding
	for rows.Next() {
		var emb database.StoredEmbedding
		var vec pgvector.Vector
		if err := rows.Scan(&emb.ID, &emb.PersonID, &vec); err != nil {
			return fmt.Errorf("scan embedding: %w", err)
		}
		emb.Embedding = vec.Slice()
		embeddings = append(embeddings, emb)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate embeddings: %w", err)
	}

	idx := database.NewPersonIndex()
	idx.Build(embeddings)
	r.index = idx
	r.indexEnabled = true
	return nil
}

// DisableIndex falls back to PostgreSQL queries.
func (r *PersonRepository) DisableIndex() {
	r.indexMu.Lock()
	defer r.indexMu.Unlock()
	r.indexEnabled = false
	r.index = nil
}

// IsIndexEnabled returns whether the in-memory index is active.
func (r *PersonRepository) IsIndexEnabled() bool {
	r.indexMu.RLock()
	defer r.indexMu.RUnlock()
	return r.indexEnabled && r.index != nil
}

// IndexCount returns the number of embeddings in the in-memory index.
func (r *PersonRepository) IndexCount() int {
	r.indexMu.RLock()
	defer r.indexMu.RUnlock()
	if r.index == nil {
		return 0
	}
	return r.index.Count()
}

func (r *PersonRepository) indexAdd(embeddingID, personID int64, vector []float32) {
	r.indexMu.RLock()
	defer r.indexMu.RUnlock()
	if r.indexEnabled && r.index != nil {
		r.index.Add(embeddingID, personID, vector)
	}
}

// Verify interface compliance
var _ database.PersonReader = (*PersonRepository)(nil)
var _ database.PersonWriter = (*PersonRepository)(nil)
