package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"buildsnap/internal/app"
	"buildsnap/internal/capture"
	"buildsnap/internal/config"
	"buildsnap/internal/jenkins"
	"buildsnap/internal/store"
)

// Greeting is the index page body.
const Greeting = "Hello World"

// Server is the HTTP + WebSocket API surface for buildsnap.
type Server struct {
	cfg          Config
	orchestrator *app.Orchestrator
	router       chi.Router
	upgrader     websocket.Upgrader
	logger       zerolog.Logger
}

// NewServer wires the orchestrator behind the HTTP routes.
func NewServer(cfg Config, orch *app.Orchestrator, logger zerolog.Logger) *Server {
	if cfg.Runtime == nil {
		cfg.Runtime = config.FromEnv()
	}

	s := &Server{
		cfg:          cfg,
		orchestrator: orch,
		router:       chi.NewRouter(),
		logger:       logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router

	r.Get("/", s.handleIndex)
	r.Get("/health", s.handleHealth)

	// Recorded capture runs
	r.Get("/runs", s.handleListRuns)
	r.Get("/runs/{runID}", s.handleGetRun)
	r.Get("/runs/{base}/diff/{head}", s.handleDiffRuns)

	// Capture jobs
	r.Post("/jobs/capture", s.handleStartCaptureJob)
	r.Get("/jobs", s.handleListJobs)
	r.Get("/jobs/{jobID}", s.handleGetJob)
	r.Delete("/jobs/{jobID}", s.handleCancelJob)

	// WebSocket job progress
	r.Get("/ws/capture", s.handleCaptureWS)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.logger.Info().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Msg("http_request")
	s.router.ServeHTTP(w, r)
}

// HTTPServer creates an *http.Server ready to ListenAndServe.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // allow streaming
	}
}

// Close shuts down the orchestrator.
func (s *Server) Close() {
	if s.orchestrator != nil {
		s.orchestrator.Close()
	}
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// --- HTTP handlers ---

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(Greeting + "\n"))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Runs

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.orchestrator.Store().ListRuns(r.Context())
	if err != nil {
		s.logger.Warn().Err(err).Msg("listing runs")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	run, artifacts, err := s.orchestrator.Store().GetRun(r.Context(), runID)
	if errors.Is(err, store.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("run_id", runID).Msg("getting run")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, store.Manifest{Run: *run, Artifacts: artifacts})
}

func (s *Server) handleDiffRuns(w http.ResponseWriter, r *http.Request) {
	base := chi.URLParam(r, "base")
	head := chi.URLParam(r, "head")

	diff, err := s.orchestrator.CompareConsoles(r.Context(), base, head)
	if errors.Is(err, store.ErrRunNotFound) || errors.Is(err, store.ErrArtifactNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.logger.Warn().Err(err).Msg("diffing runs")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, diff)
}

// Jobs

type captureJobBody struct {
	Job   string `json:"job"`
	Build int    `json:"build"`
}

func (s *Server) captureRequest(body captureJobBody) app.CaptureRequest {
	rt := s.cfg.Runtime
	job := body.Job
	if job == "" {
		job = rt.Job
	}
	build := body.Build
	if build <= 0 {
		build = rt.Build
	}
	return app.CaptureRequest{
		Build: jenkins.Build{
			BaseURL: rt.JenkinsURL,
			Job:     job,
			Number:  build,
		},
		Credentials: capture.Credentials{
			Username: rt.JenkinsUser,
			Password: rt.JenkinsPass,
		},
	}
}

func (s *Server) handleStartCaptureJob(w http.ResponseWriter, r *http.Request) {
	var body captureJobBody
	if r.Body != nil {
		// An empty body means "capture the configured build".
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	// The job must outlive this request.
	job, err := s.orchestrator.StartCaptureJob(context.Background(), s.captureRequest(body))
	if err != nil {
		s.logger.Warn().Err(err).Msg("starting capture job")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orchestrator.ListJobs())
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.orchestrator.GetJob(jobID)
	if job == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	s.orchestrator.CancelJob(jobID)
	writeJSON(w, http.StatusNoContent, nil)
}

// WebSocket

func (s *Server) handleCaptureWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("upgrading to websocket")
		return
	}
	defer conn.Close()

	job, err := s.orchestrator.StartCaptureJob(r.Context(), s.captureRequest(captureJobBody{
		Job:   r.URL.Query().Get("job"),
		Build: atoiOr(r.URL.Query().Get("build"), 0),
	}))
	if err != nil {
		_ = conn.WriteJSON(map[string]string{"error": err.Error()})
		return
	}

	_ = conn.WriteJSON(job)
	for ev := range job.Events {
		if err := conn.WriteJSON(ev); err != nil {
			// Assume client disconnected; cancel job.
			s.orchestrator.CancelJob(job.ID)
			return
		}
	}
}

func atoiOr(s string, fallback int) int {
	if v, err := strconv.Atoi(s); err == nil && v > 0 {
		return v
	}
	return fallback
}
