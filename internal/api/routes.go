package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"teslabox/internal/archive"
	"teslabox/internal/liveness"
	"teslabox/internal/logging"
	"teslabox/internal/pipeline"
	"teslabox/internal/queue"
	"teslabox/internal/services"
	"teslabox/internal/stream"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

const maxRequestBytes = 1 << 20

// ArchiveService is the archive pipeline surface the API drives.
type ArchiveService interface {
	Push(ctx context.Context, req archive.Request) error
	List(ctx context.Context) ([]queue.ArchiveRecord, error)
	Pending() []pipeline.PendingJob
	Cancel(id string) bool
}

// StreamService is the stream pipeline surface the API drives.
type StreamService interface {
	Push(ctx context.Context, req stream.Request) error
	List(ctx context.Context) ([]queue.StreamEntry, error)
	Pending() []pipeline.PendingJob
	Cancel(id string) bool
}

// ServerConfig carries the router's collaborators.
type ServerConfig struct {
	Archives  ArchiveService
	Streams   StreamService
	Oracle    liveness.Oracle
	Token     string
	StartTime time.Time
	Logger    *slog.Logger
}

// NewRouter builds the HTTP handler tree.
func NewRouter(cfg ServerConfig) *chi.Mux {
	cfg.Logger = logging.NewComponentLogger(cfg.Logger, "api")
	if cfg.StartTime.IsZero() {
		cfg.StartTime = time.Now()
	}

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Token, cfg.Logger))

		r.Get("/archives", listArchivesHandler(cfg))
		r.Post("/archives", pushArchiveHandler(cfg))
		r.Get("/streams", listStreamsHandler(cfg))
		r.Post("/streams", pushStreamHandler(cfg))
		r.Get("/queue", queueHandler(cfg))
		r.Delete("/queue/{pipeline}/{id}", cancelHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		online := false
		if cfg.Oracle != nil {
			online = cfg.Oracle.IsAlive()
		}
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: Version,
			UptimeS: int64(time.Since(cfg.StartTime).Seconds()),
			Online:  online,
		})
	}
}

func listArchivesHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := cfg.Archives.List(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list archives", "INTERNAL_ERROR")
			return
		}
		if records == nil {
			records = []queue.ArchiveRecord{}
		}
		WriteJSON(w, http.StatusOK, ArchivesResponse{Archives: records})
	}
}

func listStreamsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := cfg.Streams.List(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list streams", "INTERNAL_ERROR")
			return
		}
		if entries == nil {
			entries = []queue.StreamEntry{}
		}
		WriteJSON(w, http.StatusOK, StreamsResponse{Streams: entries})
	}
}

func pushArchiveHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req archive.Request
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.ID) == "" {
			req.ID = uuid.NewString()
		}
		writePushResult(w, r, cfg.Logger, req.ID, cfg.Archives.Push(r.Context(), req))
	}
}

func pushStreamHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req stream.Request
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.ID) == "" {
			req.ID = uuid.NewString()
		}
		writePushResult(w, r, cfg.Logger, req.ID, cfg.Streams.Push(r.Context(), req))
	}
}

func queueHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, QueueResponse{
			Archive: nonNil(cfg.Archives.Pending()),
			Stream:  nonNil(cfg.Streams.Pending()),
		})
	}
}

func cancelHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var cancelled bool
		switch chi.URLParam(r, "pipeline") {
		case archive.PipelineName:
			cancelled = cfg.Archives.Cancel(id)
		case stream.PipelineName:
			cancelled = cfg.Streams.Cancel(id)
		default:
			WriteError(w, http.StatusNotFound, "unknown pipeline", "NOT_FOUND")
			return
		}
		if !cancelled {
			WriteError(w, http.StatusNotFound, "job not found", "NOT_FOUND")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), "BAD_REQUEST")
		return false
	}
	return true
}

func writePushResult(w http.ResponseWriter, r *http.Request, logger *slog.Logger, id string, err error) {
	switch {
	case err == nil:
		WriteJSON(w, http.StatusAccepted, AcceptedResponse{ID: id})
	case errors.Is(err, services.ErrValidation):
		WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
	case errors.Is(err, pipeline.ErrDuplicateJob):
		WriteError(w, http.StatusConflict, err.Error(), "CONFLICT")
	default:
		logging.WithContext(r.Context(), logger).Warn("push failed", logging.String(logging.FieldJobID, id), logging.Error(err))
		WriteError(w, http.StatusInternalServerError, "failed to queue job", "INTERNAL_ERROR")
	}
}

func nonNil(jobs []pipeline.PendingJob) []pipeline.PendingJob {
	if jobs == nil {
		return []pipeline.PendingJob{}
	}
	return jobs
}
