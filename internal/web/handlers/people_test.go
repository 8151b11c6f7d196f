package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ege-eker/BiometricCheckIn/internal/database"
	"github.com/ege-eker/BiometricCheckIn/internal/database/mock"
	"github.com/ege-eker/BiometricCheckIn/internal/enroll"
	"github.com/ege-eker/BiometricCheckIn/internal/recognizer"
)

func newPeopleHandler(store *mock.PersonStore, extractor *fakeExtractor) *PeopleHandler {
	return NewPeopleHandler(store, extractor, enroll.NewSaga(store))
}

func validFields() personFields {
	return personFields{
		Name: "Grace", Surname: "Hopper", Age: 85,
		Nationality: "US", PassportNo: "GH-1", FlightNo: "UA12",
	}
}

func marshalBody(t *testing.T, v any) *bytes.Buffer {
	t.Helper()
	body, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}
	return bytes.NewBuffer(body)
}

func TestRegister_Created(t *testing.T) {
	store := mock.NewPersonStore()
	extractor := &fakeExtractor{fallback: []float32{1, 0}}
	handler := newPeopleHandler(store, extractor)

	req := httptest.NewRequest("POST", "/api/v1/people",
		marshalBody(t, registerRequest{personFields: validFields(), Image: b64Image("face")}))
	recorder := httptest.NewRecorder()
	handler.Register(recorder, req)

	assertStatusCode(t, recorder, http.StatusCreated)

	var resp map[string]int64
	parseJSONResponse(t, recorder, &resp)
	if resp["person_id"] <= 0 {
		t.Errorf("expected a person id, got %d", resp["person_id"])
	}
	if store.PersonCount() != 1 {
		t.Errorf("expected 1 person in store, got %d", store.PersonCount())
	}
	if got := store.EmbeddingCount(resp["person_id"]); got != 1 {
		t.Errorf("expected 1 embedding, got %d", got)
	}
}

func TestRegister_MissingFields(t *testing.T) {
	handler := newPeopleHandler(mock.NewPersonStore(), &fakeExtractor{})

	fields := validFields()
	fields.PassportNo = ""
	req := httptest.NewRequest("POST", "/api/v1/people",
		marshalBody(t, registerRequest{personFields: fields, Image: b64Image("face")}))
	recorder := httptest.NewRecorder()
	handler.Register(recorder, req)

	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertJSONError(t, recorder, "passport_no is required")
}

func TestRegister_NoFace(t *testing.T) {
	store := mock.NewPersonStore()
	handler := newPeopleHandler(store, &fakeExtractor{}) // always ErrNoFace

	req := httptest.NewRequest("POST", "/api/v1/people",
		marshalBody(t, registerRequest{personFields: validFields(), Image: b64Image("face")}))
	recorder := httptest.NewRecorder()
	handler.Register(recorder, req)

	assertStatusCode(t, recorder, http.StatusNotFound)
	if store.PersonCount() != 0 {
		t.Error("expected nothing persisted")
	}
}

func TestAddEmbedding_OK(t *testing.T) {
	store := mock.NewPersonStore()
	id := store.AddPerson(validFields().toPerson(), []float32{1, 0})
	handler := newPeopleHandler(store, &fakeExtractor{fallback: []float32{0, 1}})

	req := httptest.NewRequest("POST", "/api/v1/people/1/embeddings",
		marshalBody(t, addEmbeddingRequest{Image: b64Image("face")}))
	req = requestWithChiParams(req, map[string]string{"id": fmt.Sprint(id)})
	recorder := httptest.NewRecorder()
	handler.AddEmbedding(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	if got := store.EmbeddingCount(id); got != 2 {
		t.Errorf("expected 2 embeddings, got %d", got)
	}
}

func TestAddEmbedding_PersonMissing(t *testing.T) {
	handler := newPeopleHandler(mock.NewPersonStore(), &fakeExtractor{fallback: []float32{0, 1}})

	req := httptest.NewRequest("POST", "/api/v1/people/42/embeddings",
		marshalBody(t, addEmbeddingRequest{Image: b64Image("face")}))
	req = requestWithChiParams(req, map[string]string{"id": "42"})
	recorder := httptest.NewRecorder()
	handler.AddEmbedding(recorder, req)

	assertStatusCode(t, recorder, http.StatusNotFound)
	assertJSONError(t, recorder, "person not found")
}

func TestAddEmbedding_BadID(t *testing.T) {
	handler := newPeopleHandler(mock.NewPersonStore(), &fakeExtractor{})

	req := httptest.NewRequest("POST", "/api/v1/people/abc/embeddings",
		marshalBody(t, addEmbeddingRequest{Image: b64Image("face")}))
	req = requestWithChiParams(req, map[string]string{"id": "abc"})
	recorder := httptest.NewRecorder()
	handler.AddEmbedding(recorder, req)

	assertStatusCode(t, recorder, http.StatusBadRequest)
}

func completeImages(n int) []string {
	images := make([]string, n)
	for i := range images {
		images[i] = b64Image(fmt.Sprintf("face-%d", i))
	}
	return images
}

func TestRegisterComplete_AllStored(t *testing.T) {
	store := mock.NewPersonStore()
	extractor := &fakeExtractor{fallback: []float32{1, 0}}
	handler := newPeopleHandler(store, extractor)

	req := httptest.NewRequest("POST", "/api/v1/people/complete",
		marshalBody(t, registerCompleteRequest{personFields: validFields(), Images: completeImages(5)}))
	recorder := httptest.NewRecorder()
	handler.RegisterComplete(recorder, req)

	assertStatusCode(t, recorder, http.StatusCreated)

	var resp registerCompleteResponse
	parseJSONResponse(t, recorder, &resp)
	if resp.Stored != 5 {
		t.Errorf("expected 5 stored, got %d", resp.Stored)
	}
	if resp.EnrollmentID == "" {
		t.Error("expected an enrollment id")
	}
	if len(resp.Results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(resp.Results))
	}
	if got := store.EmbeddingCount(resp.PersonID); got != 5 {
		t.Errorf("expected 5 embeddings in store, got %d", got)
	}
}

func TestRegisterComplete_SkipsNoFace(t *testing.T) {
	store := mock.NewPersonStore()
	extractor := &fakeExtractor{
		queue: []extractResult{
			{embedding: []float32{1, 0}},
			{embedding: []float32{1, 0}},
			{err: recognizer.ErrNoFace},
			{embedding: []float32{1, 0}},
			{embedding: []float32{1, 0}},
		},
	}
	handler := newPeopleHandler(store, extractor)

	req := httptest.NewRequest("POST", "/api/v1/people/complete",
		marshalBody(t, registerCompleteRequest{personFields: validFields(), Images: completeImages(5)}))
	recorder := httptest.NewRecorder()
	handler.RegisterComplete(recorder, req)

	assertStatusCode(t, recorder, http.StatusCreated)

	var resp registerCompleteResponse
	parseJSONResponse(t, recorder, &resp)
	if resp.Stored != 4 {
		t.Errorf("expected 4 stored, got %d", resp.Stored)
	}
	if resp.Results[2].Status != string(enroll.ItemSkipped) {
		t.Errorf("expected item 2 skipped, got %s", resp.Results[2].Status)
	}
}

func TestRegisterComplete_SkipsCorruptSecondaryImage(t *testing.T) {
	store := mock.NewPersonStore()
	handler := newPeopleHandler(store, &fakeExtractor{fallback: []float32{1, 0}})

	images := completeImages(5)
	images[3] = "!!! not base64 !!!"

	req := httptest.NewRequest("POST", "/api/v1/people/complete",
		marshalBody(t, registerCompleteRequest{personFields: validFields(), Images: images}))
	recorder := httptest.NewRecorder()
	handler.RegisterComplete(recorder, req)

	assertStatusCode(t, recorder, http.StatusCreated)

	var resp registerCompleteResponse
	parseJSONResponse(t, recorder, &resp)
	if resp.Stored != 4 {
		t.Errorf("expected 4 stored, got %d", resp.Stored)
	}
	if resp.Results[3].Status != string(enroll.ItemSkipped) {
		t.Errorf("expected item 3 skipped, got %s", resp.Results[3].Status)
	}
	if got := store.EmbeddingCount(resp.PersonID); got != 4 {
		t.Errorf("expected 4 embeddings in store, got %d", got)
	}
}

func TestRegisterComplete_SkipsSecondaryDecodeFailure(t *testing.T) {
	store := mock.NewPersonStore()
	extractor := &fakeExtractor{
		queue: []extractResult{
			{embedding: []float32{1, 0}},
			{err: recognizer.ErrDecode},
			{embedding: []float32{1, 0}},
			{embedding: []float32{1, 0}},
			{embedding: []float32{1, 0}},
		},
	}
	handler := newPeopleHandler(store, extractor)

	req := httptest.NewRequest("POST", "/api/v1/people/complete",
		marshalBody(t, registerCompleteRequest{personFields: validFields(), Images: completeImages(5)}))
	recorder := httptest.NewRecorder()
	handler.RegisterComplete(recorder, req)

	assertStatusCode(t, recorder, http.StatusCreated)

	var resp registerCompleteResponse
	parseJSONResponse(t, recorder, &resp)
	if resp.Stored != 4 {
		t.Errorf("expected 4 stored, got %d", resp.Stored)
	}
	if resp.Results[1].Status != string(enroll.ItemSkipped) {
		t.Errorf("expected item 1 skipped, got %s", resp.Results[1].Status)
	}
}

func TestRegisterComplete_CorruptAnchorAborts(t *testing.T) {
	store := mock.NewPersonStore()
	handler := newPeopleHandler(store, &fakeExtractor{fallback: []float32{1, 0}})

	images := completeImages(5)
	images[0] = "!!! not base64 !!!"

	req := httptest.NewRequest("POST", "/api/v1/people/complete",
		marshalBody(t, registerCompleteRequest{personFields: validFields(), Images: images}))
	recorder := httptest.NewRecorder()
	handler.RegisterComplete(recorder, req)

	assertStatusCode(t, recorder, http.StatusBadRequest)
	if store.PersonCount() != 0 {
		t.Error("expected nothing persisted for a corrupt anchor")
	}
}

func TestRegisterComplete_TooFewImages(t *testing.T) {
	store := mock.NewPersonStore()
	handler := newPeopleHandler(store, &fakeExtractor{fallback: []float32{1, 0}})

	req := httptest.NewRequest("POST", "/api/v1/people/complete",
		marshalBody(t, registerCompleteRequest{personFields: validFields(), Images: completeImages(4)}))
	recorder := httptest.NewRecorder()
	handler.RegisterComplete(recorder, req)

	assertStatusCode(t, recorder, http.StatusBadRequest)
	if store.PersonCount() != 0 {
		t.Error("expected nothing persisted")
	}
}

func TestRegisterComplete_AnchorNoFace(t *testing.T) {
	store := mock.NewPersonStore()
	extractor := &fakeExtractor{
		queue: []extractResult{
			{err: recognizer.ErrNoFace},
			{embedding: []float32{1, 0}},
			{embedding: []float32{1, 0}},
			{embedding: []float32{1, 0}},
			{embedding: []float32{1, 0}},
		},
	}
	handler := newPeopleHandler(store, extractor)

	req := httptest.NewRequest("POST", "/api/v1/people/complete",
		marshalBody(t, registerCompleteRequest{personFields: validFields(), Images: completeImages(5)}))
	recorder := httptest.NewRecorder()
	handler.RegisterComplete(recorder, req)

	assertStatusCode(t, recorder, http.StatusPreconditionFailed)
	if store.PersonCount() != 0 {
		t.Error("expected nothing persisted for a faceless anchor")
	}
}

func TestRegisterComplete_UnreachableStoreRollsBack(t *testing.T) {
	store := mock.NewPersonStore()
	store.AddEmbeddingErrs = map[int]error{
		2: fmt.Errorf("dial tcp: %w", database.ErrUnavailable),
	}
	handler := newPeopleHandler(store, &fakeExtractor{fallback: []float32{1, 0}})

	req := httptest.NewRequest("POST", "/api/v1/people/complete",
		marshalBody(t, registerCompleteRequest{personFields: validFields(), Images: completeImages(5)}))
	recorder := httptest.NewRecorder()
	handler.RegisterComplete(recorder, req)

	assertStatusCode(t, recorder, http.StatusInternalServerError)
	assertJSONError(t, recorder, "internal error")
	if store.PersonCount() != 0 {
		t.Error("expected the person rolled back")
	}
}

func TestGetPerson(t *testing.T) {
	store := mock.NewPersonStore()
	id := store.AddPerson(validFields().toPerson(), []float32{1, 0})
	handler := newPeopleHandler(store, &fakeExtractor{})

	req := requestWithChiParams(
		httptest.NewRequest("GET", "/api/v1/people/1", nil),
		map[string]string{"id": fmt.Sprint(id)},
	)
	recorder := httptest.NewRecorder()
	handler.Get(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)

	var resp personJSON
	parseJSONResponse(t, recorder, &resp)
	if resp.Name != "Grace" {
		t.Errorf("expected Grace, got %s", resp.Name)
	}

	req = requestWithChiParams(
		httptest.NewRequest("GET", "/api/v1/people/999", nil),
		map[string]string{"id": "999"},
	)
	recorder = httptest.NewRecorder()
	handler.Get(recorder, req)
	assertStatusCode(t, recorder, http.StatusNotFound)
}

func TestSearchPeople(t *testing.T) {
	store := mock.NewPersonStore()
	store.AddPerson(validFields().toPerson(), []float32{1, 0})
	handler := newPeopleHandler(store, &fakeExtractor{})

	req := httptest.NewRequest("GET", "/api/v1/people?passport_no=GH-1", nil)
	recorder := httptest.NewRecorder()
	handler.Search(recorder, req)
	assertStatusCode(t, recorder, http.StatusOK)

	var resp struct {
		People []personJSON `json:"people"`
	}
	parseJSONResponse(t, recorder, &resp)
	if len(resp.People) != 1 {
		t.Errorf("expected 1 person, got %d", len(resp.People))
	}

	req = httptest.NewRequest("GET", "/api/v1/people", nil)
	recorder = httptest.NewRecorder()
	handler.Search(recorder, req)
	assertStatusCode(t, recorder, http.StatusBadRequest)
}

func TestDeletePerson(t *testing.T) {
	store := mock.NewPersonStore()
	id := store.AddPerson(validFields().toPerson(), []float32{1, 0})
	handler := newPeopleHandler(store, &fakeExtractor{})

	req := requestWithChiParams(
		httptest.NewRequest("DELETE", "/api/v1/people/1", nil),
		map[string]string{"id": fmt.Sprint(id)},
	)
	recorder := httptest.NewRecorder()
	handler.Delete(recorder, req)
	assertStatusCode(t, recorder, http.StatusNoContent)

	if store.PersonCount() != 0 {
		t.Error("expected person removed")
	}

	recorder = httptest.NewRecorder()
	handler.Delete(recorder, requestWithChiParams(
		httptest.NewRequest("DELETE", "/api/v1/people/1", nil),
		map[string]string{"id": fmt.Sprint(id)},
	))
	assertStatusCode(t, recorder, http.StatusNotFound)
}
