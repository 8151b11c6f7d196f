package web

import (
	"github.com/ege-eker/BiometricCheckIn/internal/enroll"
	"github.com/ege-eker/BiometricCheckIn/internal/match"
	"github.com/ege-eker/BiometricCheckIn/internal/web/handlers"
	"github.com/go-chi/chi/v5"
)

func (s *Server) setupRoutes() {
	engine := match.NewEngine(s.store, s.config.Recognition.MinSimilarity, s.config.Recognition.TopK)
	saga := enroll.NewSaga(s.store)

	recognizeHandler := handlers.NewRecognizeHandler(engine, s.extractor)
	peopleHandler := handlers.NewPeopleHandler(s.store, s.extractor, saga)
	statsHandler := handlers.NewStatsHandler(s.store, s.index)

	// Health check
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		// Recognition
		r.Post("/recognize", recognizeHandler.Recognize)

		// Enrollment and lookup
		r.Post("/people", peopleHandler.Register)
		r.Post("/people/complete", peopleHandler.RegisterComplete)
		r.Post("/people/{id}/embeddings", peopleHandler.AddEmbedding)
		r.Get("/people/{id}", peopleHandler.Get)
		r.Get("/people", peopleHandler.Search)
		r.Delete("/people/{id}", peopleHandler.Delete)

		// Stats
		r.Get("/stats", statsHandler.Get)
	})
}
