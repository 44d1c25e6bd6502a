package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/rolecraft/turneval/internal/model"
	"github.com/rolecraft/turneval/internal/reportcache"
)

// HandleEvaluate handles POST /v1/evaluations.
func (h *Handlers) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req model.EvaluateRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	report, err := h.evalSvc.Evaluate(r.Context(), req.Context)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrInvalidContext):
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		case r.Context().Err() != nil:
			// Client went away; nobody reads the response.
			return
		default:
			h.logger.Error("evaluate", "error", err, "message_id", req.Context.Message.ID)
			writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "evaluation failed")
		}
		return
	}
	writeJSON(w, r, http.StatusCreated, report)
}

// HandleGetEvaluation handles GET /v1/evaluations/{message_id}.
func (h *Handlers) HandleGetEvaluation(w http.ResponseWriter, r *http.Request) {
	messageID := r.PathValue("message_id")
	report, err := h.evalSvc.Get(messageID)
	if errors.Is(err, reportcache.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "no report for message "+messageID)
		return
	}
	if err != nil {
		h.logger.Error("get evaluation", "error", err, "message_id", messageID)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to load report")
		return
	}
	writeJSON(w, r, http.StatusOK, report)
}

// HandleListEvaluations handles GET /v1/evaluations?limit=N.
func (h *Handlers) HandleListEvaluations(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 50)
	reports := h.evalSvc.Recent(limit)
	writeList(w, r, reports, h.evalSvc.CachedReports(), limit)
}

// HandleStream handles GET /v1/evaluations/stream (SSE).
func (h *Handlers) HandleStream(w http.ResponseWriter, r *http.Request) {
	if h.broker == nil {
		writeError(w, r, http.StatusServiceUnavailable, model.ErrCodeUnavailable, "event stream not enabled")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Disable the server's WriteTimeout for this long-lived connection.
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	ch := h.broker.Subscribe()
	defer h.broker.Unsubscribe(ch)

	keepalive := time.NewTicker(15 * time.Second)
	defer keepalive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-keepalive.C:
			if _, err := w.Write([]byte(":keepalive\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case event, ok := <-ch:
			if !ok {
				return
			}
			if _, err := w.Write(event); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
