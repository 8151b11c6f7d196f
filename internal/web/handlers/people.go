package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/ege-eker/BiometricCheckIn/internal/database"
	"github.com/ege-eker/BiometricCheckIn/internal/enroll"
	"github.com/ege-eker/BiometricCheckIn/internal/recognizer"
	"github.com/go-chi/chi/v5"
)

// PeopleHandler manages person enrollment and lookup.
type PeopleHandler struct {
	store     database.PersonWriter
	extractor recognizer.Extractor
	saga      *enroll.Saga
}

// NewPeopleHandler creates a people handler.
func NewPeopleHandler(store database.PersonWriter, extractor recognizer.Extractor, saga *enroll.Saga) *PeopleHandler {
	return &PeopleHandler{store: store, extractor: extractor, saga: saga}
}

type personFields struct {
	Name        string `json:"name"`
	Surname     string `json:"surname"`
	Age         int    `json:"age"`
	Nationality string `json:"nationality"`
	PassportNo  string `json:"passport_no"`
	FlightNo    string `json:"flight_no"`
}

func (f personFields) toPerson() database.Person {
	return database.Person{
		Name:        f.Name,
		Surname:     f.Surname,
		Age:         f.Age,
		Nationality: f.Nationality,
		PassportNo:  f.PassportNo,
		FlightNo:    f.FlightNo,
	}
}

func (f personFields) validate() string {
	if f.Name == "" || f.Surname == "" {
		return "name and surname are required"
	}
	if f.PassportNo == "" {
		return "passport_no is required"
	}
	if f.Age < 0 {
		return "age must not be negative"
	}
	return ""
}

type registerRequest struct {
	personFields
	Image string `json:"image"` // base64-encoded image
}

// Register handles POST /people: enrolls a person with a single image.
func (h *PeopleHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if msg := req.validate(); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	imageData, err := decodeBase64Image(req.Image)
	if err != nil {
		respondFromError(w, err)
		return
	}

	embedding, err := h.extractor.ExtractFace(r.Context(), imageData)
	if err != nil {
		respondFromError(w, err)
		return
	}

	personID, err := h.store.CreatePerson(r.Context(), req.toPerson(), embedding)
	if err != nil {
		respondFromError(w, err)
		return
	}

	log.Info("person registered", "person_id", personID, "passport_no", sanitizeForLog(req.PassportNo))
	respondJSON(w, http.StatusCreated, map[string]any{"person_id": personID})
}

type addEmbeddingRequest struct {
	Image string `json:"image"` // base64-encoded image
}

// AddEmbedding handles POST /people/{id}/embeddings.
func (h *PeopleHandler) AddEmbedding(w http.ResponseWriter, r *http.Request) {
	personID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid person id")
		return
	}

	var req addEmbeddingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	imageData, err := decodeBase64Image(req.Image)
	if err != nil {
		respondFromError(w, err)
		return
	}

	embedding, err := h.extractor.ExtractFace(r.Context(), imageData)
	if err != nil {
		respondFromError(w, err)
		return
	}

	if err := h.store.AddEmbedding(r.Context(), personID, embedding); err != nil {
		respondFromError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type registerCompleteRequest struct {
	personFields
	Images []string `json:"images"` // base64-encoded images, first is the anchor
}

type itemOutcomeJSON struct {
	Index  int    `json:"index"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type registerCompleteResponse struct {
	EnrollmentID string            `json:"enrollment_id"`
	PersonID     int64             `json:"person_id"`
	Stored       int               `json:"stored"`
	Results      []itemOutcomeJSON `json:"results"`
}

// RegisterComplete handles POST /people/complete: enrolls a person with a
// batch of images. The first image must contain a face; later images that
// do not are skipped.
func (h *PeopleHandler) RegisterComplete(w http.ResponseWriter, r *http.Request) {
	var req registerCompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if msg := req.validate(); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}
	if len(req.Images) < enroll.MinVectors {
		respondFromError(w, enroll.ErrTooFewVectors)
		return
	}

	// Only a broken anchor aborts the batch; broken secondary images are
	// skipped like images without a face.
	vectors := make([][]float32, len(req.Images))
	for i, encoded := range req.Images {
		imageData, err := decodeBase64Image(encoded)
		if err != nil {
			if i == 0 {
				respondError(w, http.StatusBadRequest, "image 0 could not be decoded")
				return
			}
			log.Warn("skipping undecodable image", "index", i)
			vectors[i] = nil
			continue
		}

		embedding, err := h.extractor.ExtractFace(r.Context(), imageData)
		if err != nil {
			if errors.Is(err, recognizer.ErrNoFace) {
				vectors[i] = nil
				continue
			}
			if errors.Is(err, recognizer.ErrDecode) {
				if i == 0 {
					respondError(w, http.StatusBadRequest, "image 0 could not be decoded")
					return
				}
				log.Warn("skipping undecodable image", "index", i)
				vectors[i] = nil
				continue
			}
			respondFromError(w, err)
			return
		}
		vectors[i] = embedding
	}

	summary, err := h.saga.Enroll(r.Context(), req.toPerson(), vectors)
	if err != nil {
		respondFromError(w, err)
		return
	}

	results := make([]itemOutcomeJSON, len(summary.Outcomes))
	for i, o := range summary.Outcomes {
		results[i] = itemOutcomeJSON{Index: o.Index, Status: string(o.Status)}
		if o.Err != nil {
			results[i].Error = o.Err.Error()
		}
	}

	respondJSON(w, http.StatusCreated, registerCompleteResponse{
		EnrollmentID: summary.EnrollmentID.String(),
		PersonID:     summary.PersonID,
		Stored:       summary.Stored,
		Results:      results,
	})
}

// Get handles GET /people/{id}.
func (h *PeopleHandler) Get(w http.ResponseWriter, r *http.Request) {
	personID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid person id")
		return
	}

	person, err := h.store.GetPerson(r.Context(), personID)
	if err != nil {
		respondFromError(w, err)
		return
	}
	if person == nil {
		respondError(w, http.StatusNotFound, "person not found")
		return
	}

	respondJSON(w, http.StatusOK, toPersonJSON(*person))
}

// Search handles GET /people?name= or ?passport_no=.
func (h *PeopleHandler) Search(w http.ResponseWriter, r *http.Request) {
	if passport := r.URL.Query().Get("passport_no"); passport != "" {
		person, err := h.store.GetPersonByPassport(r.Context(), passport)
		if err != nil {
			respondFromError(w, err)
			return
		}
		if person == nil {
			respondJSON(w, http.StatusOK, map[string]any{"people": []personJSON{}})
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"people": []personJSON{toPersonJSON(*person)}})
		return
	}

	name := r.URL.Query().Get("name")
	if name == "" {
		respondError(w, http.StatusBadRequest, "name or passport_no query parameter is required")
		return
	}

	people, err := h.store.SearchByName(r.Context(), name)
	if err != nil {
		respondFromError(w, err)
		return
	}

	out := make([]personJSON, len(people))
	for i, p := range people {
		out[i] = toPersonJSON(p)
	}
	respondJSON(w, http.StatusOK, map[string]any{"people": out})
}

// Delete handles DELETE /people/{id}.
func (h *PeopleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	personID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid person id")
		return
	}

	if err := h.store.DeletePerson(r.Context(), personID); err != nil {
		respondFromError(w, err)
		return
	}

	log.Info("person deleted", "person_id", personID)
	w.WriteHeader(http.StatusNoContent)
}
