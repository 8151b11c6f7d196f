package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ege-eker/BiometricCheckIn/internal/recognizer"
	"github.com/go-chi/chi/v5"
)

// fakeExtractor returns queued results in call order; when the queue is
// exhausted it returns the fallback embedding.
type fakeExtractor struct {
	queue    []extractResult
	fallback []float32
	calls    int
}

type extractResult struct {
	embedding []float32
	err       error
}

func (f *fakeExtractor) ExtractFace(ctx context.Context, imageData []byte) ([]float32, error) {
	f.calls++
	if len(f.queue) > 0 {
		next := f.queue[0]
		f.queue = f.queue[1:]
		return next.embedding, next.err
	}
	if f.fallback != nil {
		return f.fallback, nil
	}
	return nil, recognizer.ErrNoFace
}

var _ recognizer.Extractor = (*fakeExtractor)(nil)

// b64Image encodes an arbitrary payload; the fake extractor never inspects it.
func b64Image(payload string) string {
	return base64.StdEncoding.EncodeToString([]byte(payload))
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
