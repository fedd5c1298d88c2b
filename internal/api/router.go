package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"semefo/internal/logging"
	"semefo/internal/services"
)

// RouterOptions wires the HTTP surface to the running daemon.
type RouterOptions struct {
	Queue *QueueService
	// Status reports daemon runtime information for GET /api/status.
	Status func(ctx context.Context) DaemonStatus
	// Notify is called after a request may have made a task claimable.
	Notify func()
	Token  string
	Logger *slog.Logger
}

type router struct {
	opts   RouterOptions
	logger *slog.Logger
}

// NewRouter builds the daemon's HTTP handler. /healthz and /metrics are
// always open; everything under /api honours the bearer token.
func NewRouter(opts RouterOptions) http.Handler {
	rt := &router{opts: opts, logger: logging.NewComponentLogger(opts.Logger, "api-server")}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(rt.requestID)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, nil)
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(requireBearer(opts.Token))
		r.Get("/status", rt.handleStatus)
		r.Route("/queue", func(r chi.Router) {
			r.Get("/", rt.handleList)
			r.Post("/", rt.handleEnqueue)
			r.Get("/stats", rt.handleStats)
			r.Post("/retry", rt.handleRetry)
			r.Get("/{id}", rt.handleDescribe)
		})
	})
	return r
}

func (rt *router) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		started := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(services.WithRequestID(r.Context(), id)))
		rt.logger.Debug("api request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", ww.Status()),
			logging.Duration("elapsed", time.Since(started)),
			logging.String(logging.FieldCorrelationID, id),
		)
	})
}

func (rt *router) handleStatus(w http.ResponseWriter, r *http.Request) {
	if rt.opts.Status == nil {
		writeJSON(w, http.StatusOK, DaemonStatus{}, rt.logger)
		return
	}
	writeJSON(w, http.StatusOK, rt.opts.Status(r.Context()), rt.logger)
}

func (rt *router) handleList(w http.ResponseWriter, r *http.Request) {
	tasks, err := rt.opts.Queue.List(r.Context(), r.URL.Query()["status"]...)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if tasks == nil {
		tasks = []QueueTask{}
	}
	writeJSON(w, http.StatusOK, QueueListResponse{Tasks: tasks}, rt.logger)
}

func (rt *router) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := rt.opts.Queue.Stats(r.Context())
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats, rt.logger)
}

func (rt *router) handleDescribe(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid queue task id"}, rt.logger)
		return
	}
	task, err := rt.opts.Queue.Describe(r.Context(), id)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if task == nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "queue task not found"}, rt.logger)
		return
	}
	writeJSON(w, http.StatusOK, QueueTaskResponse{Task: *task}, rt.logger)
}

func (rt *router) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req EnqueueRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"}, rt.logger)
		return
	}
	resp, err := rt.opts.Queue.Enqueue(r.Context(), req)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if resp.Created {
		status = http.StatusCreated
		rt.logger.Info("task enqueued",
			logging.Int64(logging.FieldTaskID, resp.Task.ID),
			logging.String(logging.FieldExpediente, resp.Task.Expediente),
			logging.Int64(logging.FieldSessionID, resp.Task.SessionID),
			logging.String(logging.FieldKind, resp.Task.Kind),
			logging.String(logging.FieldEventType, "task_enqueued"),
		)
		rt.notify()
	}
	writeJSON(w, status, resp, rt.logger)
}

func (rt *router) handleRetry(w http.ResponseWriter, r *http.Request) {
	var req RetryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"}, rt.logger)
		return
	}
	count, err := rt.opts.Queue.Retry(r.Context(), req.IDs)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if count > 0 {
		rt.notify()
	}
	writeJSON(w, http.StatusOK, CountResponse{Count: count}, rt.logger)
}

func (rt *router) notify() {
	if rt.opts.Notify != nil {
		rt.opts.Notify()
	}
}

func (rt *router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, services.ErrValidation) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()}, rt.logger)
		return
	}
	logging.WarnWithContext(logging.WithContext(r.Context(), rt.logger), "api request failed", "api_request_failed",
		logging.String("path", r.URL.Path),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check queue database health"),
		logging.String(logging.FieldImpact, "request not served"),
	)
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()}, rt.logger)
}

func writeJSON(w http.ResponseWriter, status int, payload any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil && logger != nil {
		logger.Error("failed to encode response", logging.Error(err))
	}
}
