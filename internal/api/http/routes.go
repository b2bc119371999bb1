package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	auth "github.com/mind-engage/mindengage-exams/internal/auth/middleware"
	"github.com/mind-engage/mindengage-exams/internal/exam"
	"github.com/mind-engage/mindengage-exams/internal/rbac"
	"github.com/mind-engage/mindengage-exams/internal/scoring"
)

// Deps wires the router. Events and Ping are optional.
type Deps struct {
	Store      exam.Store
	Manager    *exam.Manager
	Aggregator *scoring.Aggregator
	Auth       *auth.AuthService
	Admin      auth.Credentials
	Events     EventLister
	Ping       func(ctx context.Context) error

	CORSOrigins    []string
	RequestTimeout time.Duration
}

func Routes(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	if d.RequestTimeout > 0 {
		r.Use(middleware.Timeout(d.RequestTimeout))
	}
	if len(d.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   d.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			ExposedHeaders:   []string{"Content-Length", "Content-Disposition"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Post("/auth/login", auth.LoginHandler(d.Auth, d.Admin))

	// Participant flow. Identity is caller-supplied; the attempt id is the
	// session handle.
	r.Post("/exams/lookup", LookupHandler(d.Manager))
	r.Post("/exams/{examID}/start", StartHandler(d.Manager))
	r.Route("/attempts/{attemptID}", func(ar chi.Router) {
		ar.Post("/answers", SubmitAnswerHandler(d.Manager))
		ar.Patch("/progress", UpdateProgressHandler(d.Manager))
		ar.Post("/finish", FinishHandler(d.Manager))
		ar.Get("/result", ResultHandler(d.Aggregator))
	})

	// Admin API (JWT → role in context → RBAC)
	r.Route("/admin", func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(d.Auth))

		pr.With(rbac.Require(rbac.PermExamManage)).Put("/exams", PutExamHandler(d.Store))
		pr.With(rbac.Require(rbac.PermExamView)).Get("/exams", ListExamsHandler(d.Store))
		pr.With(rbac.Require(rbac.PermExamView)).Get("/exams/{examID}", GetExamHandler(d.Store))
		pr.With(rbac.Require(rbac.PermAttemptView)).Get("/exams/{examID}/attempts", ListAttemptsHandler(d.Store))
		pr.With(rbac.Require(rbac.PermAttemptDelete)).Post("/exams/{examID}/restart", RestartHandler(d.Manager))

		pr.With(rbac.Require(rbac.PermAttemptGrade)).Post("/attempts/{attemptID}/grade", GradeHandler(d.Manager))
		pr.With(rbac.Require(rbac.PermAttemptDelete)).Delete("/attempts/{attemptID}", DeleteAttemptHandler(d.Manager))
		if d.Events != nil {
			pr.With(rbac.RequireAny(rbac.PermAttemptView, rbac.PermReportView)).Get("/attempts/{attemptID}/events", AttemptEventsHandler(d.Events))
			pr.With(rbac.Require(rbac.PermReportView)).Get("/activity", ActivityHandler(d.Events))
		}

		pr.With(rbac.Require(rbac.PermReportView)).Get("/statistics", StatisticsHandler(d.Aggregator))
		pr.With(rbac.Require(rbac.PermReportView)).Get("/participants/stats", ParticipantStatsHandler(d.Aggregator))
		pr.With(rbac.Require(rbac.PermReportView)).Get("/exams/{examID}/questions/stats", QuestionStatsHandler(d.Aggregator))
		pr.With(rbac.Require(rbac.PermReportExport)).Get("/exams/{examID}/results.csv", ResultsCSVHandler(d.Aggregator))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if d.Ping != nil {
			if err := d.Ping(r.Context()); err != nil {
				http.Error(w, "db unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	return r
}
