package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"clipperstats/internal/service"
	"clipperstats/pkg/httputil"
)

var errBadQuery = errors.New("bad query parameter")

// respond maps service errors to API errors and writes the body.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, body any, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		err = httputil.Error(w, r, http.StatusNotFound, "not_found", "entity not found", nil)
	case errors.Is(err, service.ErrUnknownInterval), errors.Is(err, errBadQuery):
		err = httputil.Error(w, r, http.StatusBadRequest, "bad_request", err.Error(), nil)
	case err != nil:
		h.Log.Errorf("Stats handler error on %s: %v", r.URL.Path, err)
		err = httputil.Error(w, r, http.StatusInternalServerError, "internal", "internal error", nil)
	default:
		err = httputil.JSON(w, http.StatusOK, body, nil)
	}

	if err != nil {
		h.Log.Errorf("Failed to write response for %s: %v", r.URL.Path, err)
	}
}

// bucketQuery reads the interval/ts query params of status endpoints.
// ts defaults to now, so the bare endpoint returns the current bucket.
func bucketQuery(r *http.Request) (interval int64, ts int64, err error) {
	interval, err = service.IntervalSeconds(r.URL.Query().Get("interval"))
	if err != nil {
		return 0, 0, err
	}

	ts = time.Now().Unix()
	if raw := r.URL.Query().Get("ts"); raw != "" {
		if ts, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return 0, 0, fmt.Errorf("%w: ts=%q", errBadQuery, raw)
		}
	}
	return interval, ts, nil
}

func (h *Handler) Pool(w http.ResponseWriter, r *http.Request) {
	pool, err := h.Processor.GetPool(r.Context(), h.PoolID)
	h.respond(w, r, pool, err)
}

func (h *Handler) PoolStatus(w http.ResponseWriter, r *http.Request) {
	interval, ts, err := bucketQuery(r)
	if err != nil {
		h.respond(w, r, nil, err)
		return
	}

	status, err := h.Processor.GetPoolStatus(r.Context(), h.PoolID, ts, interval)
	h.respond(w, r, status, err)
}

func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	token, err := h.Processor.GetToken(r.Context(), chi.URLParam(r, "address"))
	h.respond(w, r, token, err)
}

func (h *Handler) Cove(w http.ResponseWriter, r *http.Request) {
	cove, err := h.Processor.GetCove(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, r, cove, err)
}

func (h *Handler) CoveStatus(w http.ResponseWriter, r *http.Request) {
	interval, ts, err := bucketQuery(r)
	if err != nil {
		h.respond(w, r, nil, err)
		return
	}

	status, err := h.Processor.GetCoveStatus(r.Context(), chi.URLParam(r, "id"), ts, interval)
	h.respond(w, r, status, err)
}

// GlobalCoveStatus serves the bucket aggregating all coves together.
func (h *Handler) GlobalCoveStatus(w http.ResponseWriter, r *http.Request) {
	interval, ts, err := bucketQuery(r)
	if err != nil {
		h.respond(w, r, nil, err)
		return
	}

	status, err := h.Processor.GetCoveStatus(r.Context(), "", ts, interval)
	h.respond(w, r, status, err)
}

func (h *Handler) Stake(w http.ResponseWriter, r *http.Request) {
	stake, err := h.Processor.GetStake(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "wallet"))
	h.respond(w, r, stake, err)
}

func (h *Handler) User(w http.ResponseWriter, r *http.Request) {
	user, err := h.Processor.GetUser(r.Context(), chi.URLParam(r, "wallet"))
	h.respond(w, r, user, err)
}

func (h *Handler) Pair(w http.ResponseWriter, r *http.Request) {
	pair, err := h.Processor.GetPair(r.Context(), chi.URLParam(r, "asset0"), chi.URLParam(r, "asset1"))
	h.respond(w, r, pair, err)
}

func (h *Handler) Source(w http.ResponseWriter, r *http.Request) {
	src, err := h.Processor.GetSource(r.Context(), chi.URLParam(r, "tag"))
	h.respond(w, r, src, err)
}
