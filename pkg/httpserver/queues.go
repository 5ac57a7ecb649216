package httpserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/queuekit/pkg/logger"
	"github.com/dmitrymomot/queuekit/pkg/queue"
)

const (
	defaultListLimit = 50
	maxListLimit     = 1000
)

type queueHandlers struct {
	src    InspectorSource
	logger *slog.Logger
}

type countsResponse struct {
	Queue  string          `json:"queue"`
	Counts queue.JobCounts `json:"counts"`
}

type jobsResponse struct {
	Queue string       `json:"queue"`
	State string       `json:"state"`
	Jobs  []*queue.Job `json:"jobs"`
}

func (h *queueHandlers) counts(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "queue")
	in, ok := h.inspector(w, r)
	if !ok {
		return
	}

	c, err := in.Counts(r.Context(), name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, countsResponse{Queue: name, Counts: c})
}

func (h *queueHandlers) list(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "queue")

	state := queue.StateFailed
	if s := r.URL.Query().Get("state"); s != "" {
		state = queue.JobState(s)
		if !state.Valid() {
			writeError(w, http.StatusBadRequest, "unknown job state "+strconv.Quote(s))
			return
		}
	}

	limit := defaultListLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}

	in, ok := h.inspector(w, r)
	if !ok {
		return
	}

	jobs, err := in.ListJobs(r.Context(), name, state, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jobsResponse{Queue: name, State: string(state), Jobs: jobs})
}

func (h *queueHandlers) get(w http.ResponseWriter, r *http.Request) {
	in, ok := h.inspector(w, r)
	if !ok {
		return
	}

	job, err := in.GetJob(r.Context(), chi.URLParam(r, "queue"), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *queueHandlers) retry(w http.ResponseWriter, r *http.Request) {
	name, id := chi.URLParam(r, "queue"), chi.URLParam(r, "id")
	in, ok := h.inspector(w, r)
	if !ok {
		return
	}

	if err := in.RetryJob(r.Context(), name, id); err != nil {
		h.fail(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "job replayed", logger.Queue(name), logger.JobID(id))

	job, err := in.GetJob(r.Context(), name, id)
	if err != nil {
		// Already picked up and removed on completion.
		if errors.Is(err, queue.ErrJobNotFound) {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (h *queueHandlers) inspector(w http.ResponseWriter, r *http.Request) (queue.Inspector, bool) {
	in, err := h.src.Inspector(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return nil, false
	}
	return in, true
}

func (h *queueHandlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, queue.ErrJobNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, queue.ErrInvalidState):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, queue.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, queue.ErrConfiguration):
		writeError(w, http.StatusNotImplemented, err.Error())
	case errors.Is(err, queue.ErrRuntimeClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.logger.ErrorContext(r.Context(), "queue inspection failed", logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
