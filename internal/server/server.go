// Package server exposes dashboard reports over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/verte-zerg/lrsdash/internal/dataset"
	"github.com/verte-zerg/lrsdash/internal/export"
	"github.com/verte-zerg/lrsdash/internal/logging"
	"github.com/verte-zerg/lrsdash/internal/lrs"
	"github.com/verte-zerg/lrsdash/internal/model"
	"github.com/verte-zerg/lrsdash/internal/normalize"
	"github.com/verte-zerg/lrsdash/internal/stats"
)

// Config holds listener settings.
type Config struct {
	Addr           string
	CORSOrigins    []string
	RequestTimeout time.Duration
}

// Server serves reports built by a loader.
type Server struct {
	loader stats.Loader
	logger logging.Logger
	cfg    Config
	now    func() time.Time
}

// New builds a server. Zero config values fall back to :8080, any origin and
// a six minute request timeout.
func New(loader stats.Loader, logger logging.Logger, cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = lrs.DefaultMaxDuration + time.Minute
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Server{loader: loader, logger: logger, cfg: cfg, now: time.Now}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, s.logRequests, middleware.Recoverer)
	r.Use(middleware.Timeout(s.cfg.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{"Content-Disposition", "Content-Length"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Route("/api", func(ar chi.Router) {
		ar.Get("/datasets", s.handleDatasets)
		ar.Get("/{dataset}", s.handleReport)
		ar.Get("/{dataset}/export.xlsx", s.handleExport)
	})
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down: %w", err)
		}
		return nil
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.logger.LogRequest(r.Method, r.URL.Path, status, time.Since(start),
			"request_id", middleware.GetReqID(r.Context()), "bytes", ww.BytesWritten())
	})
}

type datasetInfo struct {
	Name      model.Dataset   `json:"name"`
	Origin    string          `json:"origin"`
	Languages []string        `json:"languages"`
	Types     []string        `json:"types"`
	Mode      model.FetchMode `json:"default_mode"`
}

func (s *Server) handleDatasets(w http.ResponseWriter, _ *http.Request) {
	out := make([]datasetInfo, 0, len(dataset.Datasets))
	for _, d := range dataset.Datasets {
		out = append(out, datasetInfo{
			Name:      d,
			Origin:    dataset.Origin(d).Format(model.DateLayout),
			Languages: dataset.Languages(d),
			Types:     dataset.ActivityTypes(d),
			Mode:      dataset.DefaultMode(d),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) report(w http.ResponseWriter, r *http.Request) (stats.Report, bool) {
	params := r.URL.Query()
	q, err := dataset.ParseQuery(dataset.Params{
		Dataset: chi.URLParam(r, "dataset"),
		Lang:    params.Get("lang"),
		Type:    params.Get("type"),
		Since:   params.Get("since"),
		Until:   params.Get("until"),
		Mode:    params.Get("mode"),
	}, s.now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return stats.Report{}, false
	}
	report, err := stats.BuildReport(r.Context(), s.loader, q)
	if err != nil {
		s.logger.LogError(err, "report failed", "query", q.String())
		writeError(w, statusFor(err), err)
		return stats.Report{}, false
	}
	return report, true
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	report, ok := s.report(w, r)
	if !ok {
		return
	}
	if r.URL.Query().Get("records") == "false" {
		report.Records = nil
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	report, ok := s.report(w, r)
	if !ok {
		return
	}
	f, err := export.Workbook(report)
	if errors.Is(err, stats.ErrEmptyResult) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	defer func() {
		_ = f.Close()
	}()
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(report.Query)))
	if _, err := f.WriteTo(w); err != nil {
		s.logger.LogError(err, "export write failed", "query", report.Query.String())
	}
}

// statusFor maps loader failures to HTTP statuses.
func statusFor(err error) int {
	var tooMany *lrs.TooManyPagesError
	var schema *normalize.SchemaError
	switch {
	case errors.Is(err, dataset.ErrInvalidQuery):
		return http.StatusBadRequest
	case errors.As(err, &tooMany), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case lrs.IsTransport(err), lrs.IsMalformed(err), errors.As(err, &schema):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
