package handlers

import (
	"net/http"

	"github.com/ege-eker/BiometricCheckIn/internal/database"
)

// IndexInfo reports the state of the in-memory similarity index.
type IndexInfo interface {
	IsIndexEnabled() bool
	IndexCount() int
}

// StatsHandler reports enrollment counts and index state.
type StatsHandler struct {
	store database.PersonReader
	index IndexInfo
}

// NewStatsHandler creates a stats handler. index may be nil when no
// in-memory index is configured.
func NewStatsHandler(store database.PersonReader, index IndexInfo) *StatsHandler {
	return &StatsHandler{store: store, index: index}
}

type statsResponse struct {
	People       int  `json:"people"`
	Embeddings   int  `json:"embeddings"`
	IndexEnabled bool `json:"index_enabled"`
	IndexSize    int  `json:"index_size"`
}

// Get handles GET /stats.
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	people, err := h.store.CountPeople(r.Context())
	if err != nil {
		respondFromError(w, err)
		return
	}
	embeddings, err := h.store.CountEmbeddings(r.Context())
	if err != nil {
		respondFromError(w, err)
		return
	}

	resp := statsResponse{People: people, Embeddings: embeddings}
	if h.index != nil {
		resp.IndexEnabled = h.index.IsIndexEnabled()
		resp.IndexSize = h.index.IndexCount()
	}
	respondJSON(w, http.StatusOK, resp)
}
