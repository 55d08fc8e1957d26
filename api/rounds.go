package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/vocdoni/mpn-executor/storage"
)

// status returns the executor information and its last round
// GET /status
func (a *API) status(w http.ResponseWriter, r *http.Request) {
	resp := &Status{ExecutorInfo: a.info}
	if a.storage != nil {
		last, err := a.storage.LastRound()
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			ErrGenericInternalServerError.WithErr(err).Write(w)
			return
		}
		resp.LastRound = last
	}
	httpWriteJSON(w, resp)
}

// rounds lists the last rounds
// GET /rounds?limit=N
func (a *API) rounds(w http.ResponseWriter, r *http.Request) {
	if a.storage == nil {
		ErrResourceNotFound.With("round records are not available").Write(w)
		return
	}
	limit := DefaultRoundsLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 || n > MaxRoundsLimit {
			ErrMalformedParam.Withf("invalid limit %q", l).Write(w)
			return
		}
		limit = n
	}
	rounds, err := a.storage.Rounds(limit)
	if err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	if rounds == nil {
		rounds = []*storage.RoundRecord{}
	}
	httpWriteJSON(w, &Rounds{Rounds: rounds})
}

// round returns a single round record
// GET /rounds/{roundId}
func (a *API) round(w http.ResponseWriter, r *http.Request) {
	if a.storage == nil {
		ErrResourceNotFound.With("round records are not available").Write(w)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, RoundURLParam))
	if err != nil {
		ErrMalformedRoundID.WithErr(err).Write(w)
		return
	}
	rec, err := a.storage.Round(id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			ErrRoundNotFound.Write(w)
			return
		}
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, rec)
}
