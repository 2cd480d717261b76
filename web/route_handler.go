package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/RezaEskandarii/quirrel/client"
	"github.com/RezaEskandarii/quirrel/internal/store"
	"github.com/RezaEskandarii/quirrel/pgk/schedule"
	"github.com/RezaEskandarii/quirrel/types"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const (
	PageSize = 15

	maxRequestBody = 1 << 20
)

type HttpRouteHandler struct {
	jobManager  *client.JobManager
	jobStore    store.EnqueuedJobStore
	passphrases []string
	addr        string
	logger      zerolog.Logger
}

func NewRouteHandler(jobManager *client.JobManager, jobStore store.EnqueuedJobStore, passphrases []string, addr string, logger zerolog.Logger) *HttpRouteHandler {
	return &HttpRouteHandler{
		jobManager:  jobManager,
		jobStore:    jobStore,
		passphrases: passphrases,
		addr:        addr,
		logger:      logger,
	}
}

// Handler returns the admin API routes.
func (handler *HttpRouteHandler) Handler() http.Handler {
	mux := http.NewServeMux()
	auth := func(h http.HandlerFunc) http.HandlerFunc {
		return authMiddleware(handler.passphrases, h)
	}

	mux.HandleFunc("GET /health", handler.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /stats", auth(handler.handleStats))

	mux.HandleFunc("DELETE /queues", auth(handler.handleDeleteAll))
	mux.HandleFunc("POST /queues/{route}", auth(handler.handleEnqueue))
	mux.HandleFunc("GET /queues/{route}", auth(handler.handleList))
	mux.HandleFunc("GET /queues/{route}/{id}", auth(handler.handleGet))
	mux.HandleFunc("DELETE /queues/{route}/{id}", auth(handler.handleDelete))
	mux.HandleFunc("POST /queues/{route}/{id}", auth(handler.handleInvoke))
	return mux
}

// Serve listens until ctx is done, then drains in-flight requests.
func (handler *HttpRouteHandler) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              handler.addr,
		Handler:           handler.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		printBanner(handler.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (handler *HttpRouteHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if _, err := handler.jobStore.CountAllJobsGroupedByStatus(r.Context()); err != nil {
		handler.logger.Warn().Err(err).Msg("health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (handler *HttpRouteHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	counts, err := handler.jobStore.CountAllJobsGroupedByStatus(r.Context())
	if err != nil {
		handler.logger.Error().Err(err).Msg("failed to count jobs")
		writeError(w, http.StatusServiceUnavailable, "failed to count jobs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": counts})
}

func (handler *HttpRouteHandler) queue(w http.ResponseWriter, r *http.Request) (*client.Queue, bool) {
	q, err := handler.jobManager.Queue(r.PathValue("route"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return q, true
}

type repeatRequest struct {
	Every any    `json:"every"`
	Times int    `json:"times"`
	Cron  string `json:"cron"`
}

type enqueueRequest struct {
	Body      json.RawMessage `json:"body"`
	ID        string          `json:"id"`
	Delay     any             `json:"delay"`
	RunAt     *time.Time      `json:"runAt"`
	Retry     []any           `json:"retry"`
	Repeat    *repeatRequest  `json:"repeat"`
	Exclusive bool            `json:"exclusive"`
	Override  bool            `json:"override"`
}

func (req enqueueRequest) options() schedule.Options {
	opts := schedule.Options{
		ID:        req.ID,
		Exclusive: req.Exclusive,
		Override:  req.Override,
		Retry:     req.Retry,
		Delay:     req.Delay,
		RunAt:     req.RunAt,
	}
	if req.Repeat != nil {
		opts.Repeat = &schedule.Repeat{Every: req.Repeat.Every, Times: req.Repeat.Times, Cron: req.Repeat.Cron}
	}
	return opts
}

func (handler *HttpRouteHandler) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	q, ok := handler.queue(w, r)
	if !ok {
		return
	}

	var req enqueueRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	job, err := q.Enqueue(r.Context(), req.Body, req.options())
	if err != nil {
		handler.logger.Warn().Err(err).Str("route", q.Route()).Msg("enqueue rejected")
		writeError(w, statusOf(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func (handler *HttpRouteHandler) handleList(w http.ResponseWriter, r *http.Request) {
	q, ok := handler.queue(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	pageNumber := getPageNumber(r)

	jobs, err := handler.jobStore.ListByRoute(ctx, q.Route(), pageNumber, PageSize)
	if err != nil {
		handler.logger.Error().Err(err).Msg("failed to fetch jobs")
		writeError(w, http.StatusServiceUnavailable, "failed to fetch jobs")
		return
	}

	data := NewPaginatedDataMap(*jobs)
	if pageNumber == 1 {
		cron, err := q.GetByID(ctx, types.CronJobID)
		if err != nil && statusOf(err) != http.StatusNotImplemented {
			handler.logger.Warn().Err(err).Msg("failed to fetch cron job")
		}
		data.Add("cron", cron)
	}
	writeJSON(w, http.StatusOK, data.Data)
}

func (handler *HttpRouteHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	q, ok := handler.queue(w, r)
	if !ok {
		return
	}
	job, err := q.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, statusOf(err), err.Error())
		return
	}
	if job == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (handler *HttpRouteHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	q, ok := handler.queue(w, r)
	if !ok {
		return
	}
	removed, err := q.Delete(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, statusOf(err), err.Error())
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (handler *HttpRouteHandler) handleInvoke(w http.ResponseWriter, r *http.Request) {
	q, ok := handler.queue(w, r)
	if !ok {
		return
	}
	invoked, err := q.Invoke(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, statusOf(err), err.Error())
		return
	}
	if !invoked {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (handler *HttpRouteHandler) handleDeleteAll(w http.ResponseWriter, r *http.Request) {
	n, err := handler.jobManager.DeleteAll(r.Context())
	if err != nil {
		handler.logger.Error().Err(err).Int("removed", n).Msg("delete all incomplete")
		writeError(w, statusOf(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": n})
}
