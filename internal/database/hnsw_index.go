package database

import (
	"sort"
	"sync"

	"github.com/coder/hnsw"
)

// indexedEmbedding is one embedding held by the in-memory index.
type indexedEmbedding struct {
	personID int64
	vector   []float32
}

// PersonIndex is an in-memory HNSW index over all face embeddings, keyed by
// embedding ID. It serves as a fast path for the best-match-per-person query
// and the corroborating-embedding count, with PostgreSQL as the source of
// truth. The index is rebuilt from the database at startup and kept in sync
// on every write.
type PersonIndex struct {
	graph    *hnsw.Graph[int64]
	embs     map[int64]indexedEmbedding // embedding ID -> embedding
	byPerson map[int64][]int64          // person ID -> embedding IDs
	mu       sync.RWMutex
}

// NewPersonIndex creates a new empty index.
func NewPersonIndex() *PersonIndex {
	return &PersonIndex{
		embs:     make(map[int64]indexedEmbedding),
		byPerson: make(map[int64][]int64),
	}
}

func newGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.Distance = hnsw.CosineDistance
	return g
}

// Build replaces the index contents with the given embeddings.
func (x *PersonIndex) Build(embeddings []StoredEmbedding) {
	x.mu.Lock()
	defer x.mu.Unlock()

	g := newGraph()
	x.embs = make(map[int64]indexedEmbedding, len(embeddings))
	x.byPerson = make(map[int64][]int64)

	for i := range embeddings {
		emb := &embeddings[i]
		if len(emb.Embedding) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(emb.ID, emb.Embedding))
		x.embs[emb.ID] = indexedEmbedding{personID: emb.PersonID, vector: emb.Embedding}
		x.byPerson[emb.PersonID] = append(x.byPerson[emb.PersonID], emb.ID)
	}

	x.graph = g
}

// Add inserts a single embedding into the index.
func (x *PersonIndex) Add(embeddingID, personID int64, vector []float32) {
	if len(vector) == 0 {
		return
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if x.graph == nil {
		x.graph = newGraph()
	}
	x.graph.Add(hnsw.MakeNode(embeddingID, vector))
	x.embs[embeddingID] = indexedEmbedding{personID: personID, vector: vector}
	x.byPerson[personID] = append(x.byPerson[personID], embeddingID)
}

// DeletePerson removes all embeddings belonging to a person.
func (x *PersonIndex) DeletePerson(personID int64) {
	x.mu.Lock()
	defer x.mu.Unlock()

	for _, id := range x.byPerson[personID] {
		if x.graph != nil {
			x.graph.Delete(id)
		}
		delete(x.embs, id)
	}
	delete(x.byPerson, personID)
}

// BestMatchPerPerson returns the topK people ordered by the best similarity
// any of their embeddings achieved against the probe. Ties break by person ID
// ascending so repeated calls are deterministic. Only person IDs are
// resolved; the caller fills in person fields from the store.
func (x *PersonIndex) BestMatchPerPerson(probe []float32, topK int) []PersonMatch {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.graph == nil || len(x.embs) == 0 {
		return nil
	}

	// Over-fetch so that per-person aggregation still yields topK distinct
	// people when one person dominates the neighborhood.
	searchK := max(topK*HNSWSearchMultiplier, HNSWMinSearchK)
	neighbors := x.graph.Search(probe, searchK)

	best := make(map[int64]float64)
	for _, n := range neighbors {
		emb, ok := x.embs[n.Key]
		if !ok {
			continue
		}
		sim := CosineSimilarity(probe, emb.vector)
		if cur, seen := best[emb.personID]; !seen || sim > cur {
			best[emb.personID] = sim
		}
	}

	matches := make([]PersonMatch, 0, len(best))
	for personID, sim := range best {
		matches = append(matches, PersonMatch{Person: Person{ID: personID}, Similarity: sim})
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
	return matches
}

// CountAbove counts the person's embeddings whose similarity to the probe
// strictly exceeds floor.
func (x *PersonIndex) CountAbove(personID int64, probe []float32, floor float64) int {
	x.mu.RLock()
	defer x.mu.RUnlock()

	count := 0
	for _, id := range x.byPerson[personID] {
		emb, ok := x.embs[id]
		if !ok {
			continue
		}
		if CosineSimilarity(probe, emb.vector) > floor {
			count++
		}
	}
	return count
}

// Count returns the number of embeddings in the index.
func (x *PersonIndex) Count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.embs)
}

// IsEmpty reports whether the index holds no embeddings.
func (x *PersonIndex) IsEmpty() bool {
	return x.Count() == 0
}
