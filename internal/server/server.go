package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/cwbudde/ssimulacra2"
	"github.com/cwbudde/ssimulacra2/internal/imageio"
	"github.com/cwbudde/ssimulacra2/internal/metric"
	"github.com/cwbudde/ssimulacra2/internal/store"
)

// DefaultMaxUpload bounds the multipart body of a synchronous comparison.
const DefaultMaxUpload = 64 << 20

// Server represents the HTTP server
type Server struct {
	jobManager *JobManager
	store      store.Store
	addr       string
	maxUpload  int64
	server     *http.Server
	started    time.Time

	// slots bounds the number of jobs scored at once
	slots chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer creates a new HTTP server. reportStore may be nil, in which
// case completed jobs are kept in memory only.
func NewServer(addr string, reportStore store.Store) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		jobManager: NewJobManager(),
		store:      reportStore,
		addr:       addr,
		maxUpload:  DefaultMaxUpload,
		started:    time.Now(),
		slots:      make(chan struct{}, runtime.NumCPU()),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// SetMaxUpload changes the request body limit of POST /api/v1/score.
func (s *Server) SetMaxUpload(n int64) {
	if n > 0 {
		s.maxUpload = n
	}
}

// Handler returns the routed and wrapped HTTP handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/api/v1/score", s.handleScore)
	mux.HandleFunc("/api/v1/jobs", s.handleJobs)
	mux.HandleFunc("/api/v1/jobs/", s.handleJobsWithID)
	mux.HandleFunc("/api/v1/reports", s.handleListReports)
	mux.HandleFunc("/api/v1/reports/", s.handleGetReport)

	return s.loggingMiddleware(s.corsMiddleware(mux))
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("Starting HTTP server", "addr", s.addr, "store", s.store != nil)
	return s.server.ListenAndServe()
}

// Shutdown cancels running jobs and gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down HTTP server")
	s.cancel()
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// startJob runs a job in the background once a slot is free
func (s *Server) startJob(jobID string) {
	ctx, cancel := context.WithCancel(s.ctx)
	s.jobManager.setCancel(jobID, cancel)

	go func() {
		defer cancel()
		select {
		case s.slots <- struct{}{}:
			defer func() { <-s.slots }()
		case <-ctx.Done():
		}
		runJob(ctx, s.jobManager, s.store, jobID)
	}()
}

// handleJobs handles /api/v1/jobs
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateJob(w, r)
	case http.MethodGet:
		s.handleListJobs(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleJobsWithID handles /api/v1/jobs/:id/*
func (s *Server) handleJobsWithID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/jobs/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "Job ID required", http.StatusBadRequest)
		return
	}

	jobID := parts[0]

	if len(parts) == 1 && r.Method == http.MethodDelete {
		s.handleCancelJob(w, r, jobID)
		return
	}

	switch {
	case len(parts) == 1 || parts[1] == "status":
		s.handleGetJobStatus(w, r, jobID)
	case parts[1] == "heatmap.png":
		s.handleGetHeatmap(w, r, jobID)
	case parts[1] == "stream":
		s.handleJobStream(w, r, jobID)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// handleCreateJob handles POST /api/v1/jobs
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var config JobConfig
	if err := json.NewDecoder(r.Body).Decode(&config); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	if config.RefPath == "" || config.DistPath == "" {
		http.Error(w, "refPath and distPath are required", http.StatusBadRequest)
		return
	}
	if config.Background != nil {
		if err := metric.ValidateBackground(*config.Background); err != nil {
			writeError(w, err)
			return
		}
	}

	job := s.jobManager.CreateJob(config)
	s.startJob(job.ID)

	writeJSON(w, http.StatusCreated, job)
}

// handleListJobs handles GET /api/v1/jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.jobManager.ListJobs())
}

// handleGetJobStatus handles GET /api/v1/jobs/:id/status
func (s *Server) handleGetJobStatus(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	var elapsed time.Duration
	if job.EndTime != nil {
		elapsed = job.EndTime.Sub(job.StartTime)
	} else {
		elapsed = time.Since(job.StartTime)
	}

	writeJSON(w, http.StatusOK, struct {
		*Job
		Elapsed float64 `json:"elapsed"`
	}{job, elapsed.Seconds()})
}

// handleCancelJob handles DELETE /api/v1/jobs/:id
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request, jobID string) {
	if _, exists := s.jobManager.GetJob(jobID); !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	if !s.jobManager.CancelJob(jobID) {
		http.Error(w, "Job already finished", http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleGetHeatmap handles GET /api/v1/jobs/:id/heatmap.png
func (s *Server) handleGetHeatmap(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	if job.State != StateCompleted {
		http.Error(w, "No results yet", http.StatusNotFound)
		return
	}

	ref, _, err := imageio.DecodeFile(job.Config.RefPath)
	if err != nil {
		writeError(w, err)
		return
	}
	dist, _, err := imageio.DecodeFile(job.Config.DistPath)
	if err != nil {
		writeError(w, err)
		return
	}

	// Show the matte that produced the reported score
	heat, err := metric.Heatmap(ref, dist, job.Background)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	if err := png.Encode(w, heat); err != nil {
		slog.Error("Failed to encode PNG", "error", err)
	}
}

// handleScore handles POST /api/v1/score. The multipart form carries the
// "reference" and "distorted" files and an optional "background" value.
// Set "features" to any non-empty value to receive the feature vector.
func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			http.Error(w, fmt.Sprintf("Request body exceeds %d bytes", tooBig.Limit), http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, fmt.Sprintf("Invalid multipart form: %v", err), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	refData, err := readFormFile(r.MultipartForm, "reference")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	distData, err := readFormFile(r.MultipartForm, "distorted")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var opts []ssimulacra2.Option
	bg, err := parseBackground(r.FormValue("background"))
	if err != nil {
		writeError(w, err)
		return
	}
	if bg != nil {
		opts = append(opts, ssimulacra2.WithBackground(*bg))
	}

	start := time.Now()
	res, err := ssimulacra2.ComputeFromMemory(refData, distData, opts...)
	if err != nil {
		slog.Debug("Comparison rejected", "error", err)
		writeError(w, err)
		return
	}

	resp := scoreResponse{
		Score:      res.Score,
		Scales:     res.Scales,
		Composited: res.Composited,
		Background: res.Background,
		Elapsed:    time.Since(start).Seconds(),
	}
	if r.FormValue("features") != "" {
		resp.Features = res.Features[:]
	}
	writeJSON(w, http.StatusOK, resp)
}

func readFormFile(form *multipart.Form, field string) ([]byte, error) {
	files := form.File[field]
	if len(files) == 0 {
		return nil, fmt.Errorf("missing form file %q", field)
	}
	f, err := files[0].Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open form file %q: %w", field, err)
	}
	defer f.Close()
	return io.ReadAll(f)
}

// handleListReports handles GET /api/v1/reports
func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "No report store configured", http.StatusNotFound)
		return
	}
	infos, err := s.store.ListReports()
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to list reports: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, infos)
}

// handleGetReport handles GET and DELETE /api/v1/reports/:id
func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "No report store configured", http.StatusNotFound)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/reports/")
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "Report ID required", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		report, err := s.store.LoadReport(id)
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Report not found", http.StatusNotFound)
			return
		} else if err != nil {
			http.Error(w, fmt.Sprintf("Failed to load report: %v", err), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, report)
	case http.MethodDelete:
		err := s.store.DeleteReport(id)
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Report not found", http.StatusNotFound)
			return
		} else if err != nil {
			http.Error(w, fmt.Sprintf("Failed to delete report: %v", err), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
