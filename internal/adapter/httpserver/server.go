// Package httpserver exposes the admin API and the candidate portal over
// HTTP.
package httpserver

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hireloop/hireloop/internal/domain"
	"github.com/hireloop/hireloop/internal/usecase"
)

// Server wires handlers onto a chi router.
type Server struct {
	repo      domain.CandidateRepository
	timeline  domain.TimelineRepository
	dupes     *usecase.DuplicateChecker
	workflow  *usecase.Workflow
	portal    *usecase.Portal
	cycle     *usecase.Cycle
	apiKey    string
	log       *slog.Logger
	validate  *validator.Validate
	metricsFn http.Handler
}

// New builds the server.
func New(
	repo domain.CandidateRepository,
	timeline domain.TimelineRepository,
	dupes *usecase.DuplicateChecker,
	workflow *usecase.Workflow,
	portal *usecase.Portal,
	cycle *usecase.Cycle,
	apiKey string,
	log *slog.Logger,
) *Server {
	return &Server{
		repo: repo, timeline: timeline, dupes: dupes, workflow: workflow,
		portal: portal, cycle: cycle, apiKey: apiKey, log: log,
		validate:  validator.New(),
		metricsFn: promhttp.Handler(),
	}
}

// Router assembles the full route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type", "X-API-Key"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", s.metricsFn)

	// candidate-facing, token-keyed, rate limited per IP
	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(30, time.Minute))
		r.Get("/portal", s.handlePortalView)
		r.Get("/v1/portal/slots", s.handlePortalSlots)
		r.Post("/v1/portal/book", s.handlePortalBook)
		r.Post("/v1/portal/test", s.handlePortalTest)
		r.Post("/v1/forms/application", s.handleApplicationForm)
		r.Post("/v1/forms/test", s.handleTestForm)
	})

	// admin, key-guarded
	r.Group(func(r chi.Router) {
		r.Use(s.requireAPIKey)
		r.Post("/v1/candidates", s.handleCreateCandidate)
		r.Get("/v1/candidates", s.handleListCandidates)
		r.Get("/v1/candidates/{id}", s.handleGetCandidate)
		r.Post("/v1/candidates/{id}/status", s.handleSetStatus)
		r.Get("/v1/candidates/{id}/timeline", s.handleTimeline)
		r.Post("/v1/cycle/run", s.handleRunCycle)
	})
	return r
}

func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-API-Key")
		if s.apiKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(s.apiKey)) != 1 {
			s.writeError(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handlePortalView(w http.ResponseWriter, r *http.Request) {
	v, err := s.portal.View(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, v)
}

func (s *Server) handlePortalSlots(w http.ResponseWriter, r *http.Request) {
	slots, err := s.portal.Slots(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"slots": slots})
}

type bookRequest struct {
	Token string    `json:"token" validate:"required"`
	Start time.Time `json:"start" validate:"required"`
}

func (s *Server) handlePortalBook(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.portal.Book(r.Context(), req.Token, req.Start); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "booked"})
}

type submitRequest struct {
	Token         string `json:"token" validate:"required"`
	SubmissionURL string `json:"submissionUrl" validate:"omitempty,url"`
}

func (s *Server) handlePortalTest(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.portal.SubmitTest(r.Context(), req.Token, req.SubmissionURL); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "submitted"})
}

type createCandidateRequest struct {
	Name         string `json:"name" validate:"required"`
	Email        string `json:"email" validate:"required,email"`
	Phone        string `json:"phone"`
	Role         string `json:"role" validate:"required"`
	Department   string `json:"department"`
	PortfolioURL string `json:"portfolioUrl" validate:"omitempty,url"`
	CVURL        string `json:"cvUrl" validate:"omitempty,url"`
}

func (s *Server) handleCreateCandidate(w http.ResponseWriter, r *http.Request) {
	var req createCandidateRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.createDeduped(w, r, domain.Candidate{
		Name: req.Name, Email: req.Email, Phone: req.Phone,
		Role: req.Role, Department: req.Department,
		PortfolioURL: req.PortfolioURL, CVURL: req.CVURL,
		Status: domain.StatusNew,
	})
}

// createDeduped runs the shared intake path: duplicate check, create, then
// the NEW handler.
func (s *Server) createDeduped(w http.ResponseWriter, r *http.Request, c domain.Candidate) {
	match := s.dupes.Check(r.Context(), c.Name, c.Email, c.Phone)
	if match.IsDuplicate {
		s.writeJSON(w, http.StatusConflict, map[string]any{
			"error":      "duplicate candidate",
			"matchType":  match.MatchType,
			"similarity": match.Similarity,
			"existingId": match.Matched.ID,
		})
		return
	}

	id, err := s.repo.Create(r.Context(), c)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.workflow.Process(r.Context(), id, domain.StatusNew)
	s.writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

type applicationFormRequest struct {
	Name             string `json:"name" validate:"required"`
	Email            string `json:"email" validate:"required,email"`
	Phone            string `json:"phone"`
	Role             string `json:"role" validate:"required"`
	Department       string `json:"department"`
	TestAvailability string `json:"testAvailability"`
	PortfolioURL     string `json:"portfolioUrl" validate:"omitempty,url"`
	CVURL            string `json:"cvUrl" validate:"omitempty,url"`
}

// handleApplicationForm receives the public application-form webhook. It
// feeds the same intake path as the admin create endpoint.
func (s *Server) handleApplicationForm(w http.ResponseWriter, r *http.Request) {
	var req applicationFormRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.createDeduped(w, r, domain.Candidate{
		Name: req.Name, Email: req.Email, Phone: req.Phone,
		Role: req.Role, Department: req.Department,
		TestAvailability: req.TestAvailability,
		PortfolioURL:     req.PortfolioURL, CVURL: req.CVURL,
		Status: domain.StatusNew,
	})
}

type testFormRequest struct {
	Email         string `json:"email" validate:"required,email"`
	PDFDocsURL    string `json:"pdfDocsUrl" validate:"omitempty,url"`
	DrawingsURL   string `json:"dwgUrl" validate:"omitempty,url"`
	OtherFilesURL string `json:"otherFilesUrl" validate:"omitempty,url"`
	Notes         string `json:"notes"`
}

// handleTestForm receives the test-submission form webhook, records the
// submitted file links and advances the record through TEST_SUBMITTED.
func (s *Server) handleTestForm(w http.ResponseWriter, r *http.Request) {
	var req testFormRequest
	if !s.decode(w, r, &req) {
		return
	}

	c, err := s.repo.FindByEmail(r.Context(), req.Email)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	var parts []string
	for _, u := range []string{req.PDFDocsURL, req.DrawingsURL, req.OtherFilesURL} {
		if u != "" {
			parts = append(parts, u)
		}
	}
	if req.Notes != "" {
		parts = append(parts, "notes: "+req.Notes)
	}

	prev := c.Status
	c.LastLog = "form submission: " + strings.Join(parts, " | ")
	c.Status = domain.StatusTestSubmitted
	if err := s.repo.Update(r.Context(), c); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.workflow.Process(r.Context(), c.ID, prev)
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "submitted"})
}

func (s *Server) handleListCandidates(w http.ResponseWriter, r *http.Request) {
	var (
		list []domain.Candidate
		err  error
	)
	if status := r.URL.Query().Get("status"); status != "" {
		st := domain.Status(status)
		if !st.Valid() {
			s.writeError(w, http.StatusBadRequest, "unknown status")
			return
		}
		list, err = s.repo.ListByStatus(r.Context(), st)
	} else {
		list, err = s.repo.ListAll(r.Context())
	}
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"candidates": list})
}

func (s *Server) handleGetCandidate(w http.ResponseWriter, r *http.Request) {
	c, err := s.repo.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, c)
}

type setStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	var req setStatusRequest
	if !s.decode(w, r, &req) {
		return
	}
	next := domain.Status(req.Status)
	if !next.Valid() {
		s.writeError(w, http.StatusBadRequest, "unknown status")
		return
	}

	id := chi.URLParam(r, "id")
	c, err := s.repo.Get(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	prev := c.Status
	if err := s.repo.SetStatus(r.Context(), id, next); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.workflow.Process(r.Context(), id, prev)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":   next,
		"expected": usecase.ExpectedTransition(prev, next),
	})
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	c, err := s.repo.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	events, err := s.timeline.List(r.Context(), c.Email)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) handleRunCycle(w http.ResponseWriter, r *http.Request) {
	s.cycle.Run(r.Context())
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "done"})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed json")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidToken):
		s.writeError(w, http.StatusNotFound, "unknown token")
	case errors.Is(err, domain.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrConflict):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInvalidArgument):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.log.Error("request failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	s.writeJSON(w, code, map[string]string{"error": msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("response encode failed", "error", err)
	}
}
