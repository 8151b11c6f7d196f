package web

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ege-eker/BiometricCheckIn/internal/config"
	"github.com/ege-eker/BiometricCheckIn/internal/database"
	"github.com/ege-eker/BiometricCheckIn/internal/database/mock"
)

type staticExtractor struct {
	embedding []float32
}

func (s *staticExtractor) ExtractFace(ctx context.Context, imageData []byte) ([]float32, error) {
	return s.embedding, nil
}

func testServer(store *mock.PersonStore) *Server {
	cfg := &config.Config{
		Recognition: config.RecognitionConfig{MinSimilarity: 0.80, TopK: 3},
		Server:      config.ServerConfig{WorkerPool: 10},
	}
	return NewServer(cfg, 0, "127.0.0.1", store, &staticExtractor{embedding: []float32{1, 0}}, nil)
}

func TestRoutes(t *testing.T) {
	store := mock.NewPersonStore()
	store.AddPerson(database.Person{Name: "Ada", Surname: "Lovelace", PassportNo: "A1"}, []float32{1, 0})
	server := testServer(store)

	t.Run("health", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/health", nil)
		recorder := httptest.NewRecorder()
		server.Router().ServeHTTP(recorder, req)
		if recorder.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", recorder.Code)
		}
	})

	t.Run("recognize", func(t *testing.T) {
		body, _ := json.Marshal(map[string]string{
			"image": base64.StdEncoding.EncodeToString([]byte("probe")),
		})
		req := httptest.NewRequest("POST", "/api/v1/recognize", bytes.NewBuffer(body))
		recorder := httptest.NewRecorder()
		server.Router().ServeHTTP(recorder, req)
		if recorder.Code != http.StatusOK {
			t.Errorf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
		}
	})

	t.Run("stats", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/stats", nil)
		recorder := httptest.NewRecorder()
		server.Router().ServeHTTP(recorder, req)
		if recorder.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", recorder.Code)
		}
		var resp map[string]any
		if err := json.Unmarshal(recorder.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse stats: %v", err)
		}
		if resp["people"].(float64) != 1 {
			t.Errorf("expected 1 person in stats, got %v", resp["people"])
		}
	})

	t.Run("person lookup", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/people/1", nil)
		recorder := httptest.NewRecorder()
		server.Router().ServeHTTP(recorder, req)
		if recorder.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", recorder.Code)
		}

		req = httptest.NewRequest("GET", "/api/v1/people/999", nil)
		recorder = httptest.NewRecorder()
		server.Router().ServeHTTP(recorder, req)
		if recorder.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", recorder.Code)
		}
	})

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest("OPTIONS", "/api/v1/recognize", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		recorder := httptest.NewRecorder()
		server.Router().ServeHTTP(recorder, req)
		if recorder.Code != http.StatusOK {
			t.Errorf("expected 200 for preflight, got %d", recorder.Code)
		}
		if recorder.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
			t.Error("expected localhost origin allowed")
		}
	})
}
