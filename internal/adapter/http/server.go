// Package http serves the geocoding API alongside the health, readiness and
// metrics endpoints.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/reseller-geocoder/internal/batch"
	"github.com/couchcryptid/reseller-geocoder/internal/domain"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MaxBatchAddresses bounds one batch request.
const MaxBatchAddresses = 500

const maxBodyBytes = 1 << 20

// Geocoder resolves a single address.
type Geocoder interface {
	ResolveOne(ctx context.Context, raw string) (*domain.Coordinates, error)
}

// BatchGeocoder resolves many addresses at once.
type BatchGeocoder interface {
	ResolveMany(ctx context.Context, addresses []string) (batch.Report, error)
}

// Server exposes the geocoding API plus health, readiness, and metrics HTTP endpoints.
type Server struct {
	httpServer *http.Server
	geocoder   Geocoder
	batcher    BatchGeocoder
	validate   *validator.Validate
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /v1/geocode, /v1/geocode/batch,
// /healthz, /readyz, and /metrics routes.
func NewServer(addr string, geocoder Geocoder, batcher BatchGeocoder, ready sharedobs.ReadinessChecker, logger *slog.Logger) *Server {
	r := chi.NewRouter()

	s := &Server{
		httpServer: &http.Server{
			Addr:        addr,
			Handler:     r,
			ReadTimeout: 10 * time.Second,
			// Paced batches take about one second per distinct address.
			WriteTimeout: 10 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		geocoder: geocoder,
		batcher:  batcher,
		validate: validator.New(),
		logger:   logger,
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", sharedobs.LivenessHandler())
	r.Get("/readyz", sharedobs.ReadinessHandler(ready))
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/v1/geocode", s.handleGeocode)
	r.Post("/v1/geocode/batch", s.handleBatch)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

type geocodeRequest struct {
	Address *string `json:"address" validate:"required,max=1024"`
}

type batchRequest struct {
	Addresses []string `json:"addresses" validate:"required,min=1,max=500,dive,max=1024"`
}

type batchResponse struct {
	Results   []batch.Located `json:"results"`
	Succeeded int             `json:"succeeded"`
	Failed    int             `json:"failed"`
	LastError string          `json:"last_error,omitempty"`
}

// handleGeocode answers with {"lat":..,"lng":..} or null.
func (s *Server) handleGeocode(w http.ResponseWriter, r *http.Request) {
	var req geocodeRequest
	if !s.decode(w, r, &req) {
		return
	}

	loc, err := s.geocoder.ResolveOne(r.Context(), *req.Address)
	if err != nil {
		s.resolutionFailed(w, r, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, loc)
}

// handleBatch answers with the resolved entries and the batch counters.
func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !s.decode(w, r, &req) {
		return
	}

	report, err := s.batcher.ResolveMany(r.Context(), req.Addresses)
	if err != nil {
		s.resolutionFailed(w, r, err)
		return
	}

	resp := batchResponse{
		Results:   report.Located(),
		Succeeded: report.Succeeded,
		Failed:    report.Failed,
	}
	if report.LastError != nil {
		resp.LastError = report.LastError.Error()
	}
	sharedobs.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			writeError(w, http.StatusBadRequest, "invalid field "+verrs[0].Namespace()+": failed "+verrs[0].Tag())
			return false
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// resolutionFailed handles the only error resolution reports: the request
// context ending before the work finished.
func (s *Server) resolutionFailed(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Warn("geocode request interrupted",
		"error", err,
		"request_id", middleware.GetReqID(r.Context()),
	)
	writeError(w, http.StatusServiceUnavailable, "resolution interrupted: "+err.Error())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	sharedobs.WriteJSON(w, status, map[string]string{"error": msg})
}
