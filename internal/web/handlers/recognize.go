package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ege-eker/BiometricCheckIn/internal/database"
	"github.com/ege-eker/BiometricCheckIn/internal/match"
	"github.com/ege-eker/BiometricCheckIn/internal/recognizer"
)

// personJSON is the wire representation of an enrolled person.
type personJSON struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Surname     string    `json:"surname"`
	Age         int       `json:"age"`
	Nationality string    `json:"nationality"`
	PassportNo  string    `json:"passport_no"`
	FlightNo    string    `json:"flight_no"`
	CreatedAt   time.Time `json:"created_at"`
}

func toPersonJSON(p database.Person) personJSON {
	return personJSON{
		ID:          p.ID,
		Name:        p.Name,
		Surname:     p.Surname,
		Age:         p.Age,
		Nationality: p.Nationality,
		PassportNo:  p.PassportNo,
		FlightNo:    p.FlightNo,
		CreatedAt:   p.CreatedAt,
	}
}

// RecognizeHandler matches probe images against the enrolled set.
type RecognizeHandler struct {
	engine    *match.Engine
	extractor recognizer.Extractor
}

// NewRecognizeHandler creates a recognize handler.
func NewRecognizeHandler(engine *match.Engine, extractor recognizer.Extractor) *RecognizeHandler {
	return &RecognizeHandler{engine: engine, extractor: extractor}
}

type recognizeRequest struct {
	Image string `json:"image"` // base64-encoded image
}

type recognizeResponse struct {
	Person        personJSON `json:"person"`
	Similarity    float64    `json:"similarity"`
	RawSimilarity float64    `json:"raw_similarity"`
	GoodMatches   int        `json:"good_matches"`
}

// Recognize handles POST /recognize.
func (h *RecognizeHandler) Recognize(w http.ResponseWriter, r *http.Request) {
	var req recognizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	imageData, err := decodeBase64Image(req.Image)
	if err != nil {
		respondFromError(w, err)
		return
	}

	probe, err := h.extractor.ExtractFace(r.Context(), imageData)
	if err != nil {
		respondFromError(w, err)
		return
	}

	result, err := h.engine.Match(r.Context(), probe)
	if err != nil {
		respondFromError(w, err)
		return
	}
	if result == nil {
		respondError(w, http.StatusNotFound, "no matching person found")
		return
	}
	if !result.Accepted {
		log.Info("best candidate below threshold",
			"person_id", result.Person.ID, "similarity", result.Similarity)
		respondError(w, http.StatusNotFound, "no matching person found")
		return
	}

	respondJSON(w, http.StatusOK, recognizeResponse{
		Person:        toPersonJSON(result.Person),
		Similarity:    result.Similarity,
		RawSimilarity: result.RawSimilarity,
		GoodMatches:   result.GoodMatches,
	})
}
