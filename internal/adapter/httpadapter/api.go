package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/wildfire-dashboard-service/internal/domain"
	"github.com/couchcryptid/wildfire-dashboard-service/internal/pipeline"
	"github.com/couchcryptid/wildfire-dashboard-service/internal/selection"
	"github.com/couchcryptid/wildfire-dashboard-service/internal/session"
	"github.com/couchcryptid/wildfire-dashboard-service/internal/store"
)

// RefreshFunc triggers an immediate refresh.
type RefreshFunc func(ctx context.Context) (pipeline.Result, error)

// API serves the map data and per-session selection endpoints.
type API struct {
	store    *store.EntityStore
	refresh  RefreshFunc
	sessions *session.Manager
	logger   *slog.Logger

	retryAfter time.Duration
	streams    context.Context
}

// NewAPI creates the API handlers. retryAfter is advertised to clients when a
// manual refresh fails because the data source is down.
func NewAPI(s *store.EntityStore, refresh RefreshFunc, sessions *session.Manager, retryAfter time.Duration, logger *slog.Logger) *API {
	return &API{
		store:      s,
		refresh:    refresh,
		sessions:   sessions,
		logger:     logger,
		retryAfter: retryAfter,
		streams:    context.Background(),
	}
}

func (a *API) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/detections", a.handleDetections)
	mux.HandleFunc("POST /api/refresh", a.handleRefresh)
	mux.HandleFunc("GET /api/stats", a.handleStats)
	mux.HandleFunc("POST /api/sessions", a.handleCreateSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", a.handleCloseSession)
	mux.HandleFunc("POST /api/sessions/{id}/clicks", a.handleClick)
	mux.HandleFunc("GET /api/sessions/{id}/selection", a.handleSelection)
	mux.HandleFunc("GET /api/sessions/{id}/stream", a.handleStream)
}

type errorResponse struct {
	Error        string `json:"error"`
	Retryable    bool   `json:"retryable,omitempty"`
	RetryAfterMS int64  `json:"retry_after_ms,omitempty"`
}

// handleDetections returns the current snapshot, optionally keeping only
// detections at or above ?min_severity and ?min_confidence. A confidence filter
// excludes detections whose confidence is not numeric.
func (a *API) handleDetections(w http.ResponseWriter, r *http.Request) {
	snap := a.store.Snapshot()
	q := r.URL.Query()

	minRank := -1
	if v := q.Get("min_severity"); v != "" {
		minRank = domain.SeverityTier(strings.ToLower(v)).Rank()
		if minRank < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown severity " + v})
			return
		}
	}

	minConfidence := math.NaN()
	if v := q.Get("min_confidence"); v != "" {
		c, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(c) || math.IsInf(c, 0) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid min_confidence " + v})
			return
		}
		minConfidence = c
	}

	if minRank < 0 && math.IsNaN(minConfidence) {
		writeJSON(w, http.StatusOK, snap)
		return
	}

	kept := make([]domain.FireDetection, 0, len(snap.Detections))
	for i := range snap.Detections {
		d := snap.Detections[i]
		if d.Severity.Rank() < minRank {
			continue
		}
		if !math.IsNaN(minConfidence) {
			c, ok := d.NumericConfidence()
			if !ok || c < minConfidence {
				continue
			}
		}
		kept = append(kept, d)
	}
	snap.Detections = kept

	writeJSON(w, http.StatusOK, snap)
}

type refreshResponse struct {
	Generation uint64 `json:"generation"`
	Fetched    int    `json:"fetched"`
	Detections int    `json:"detections"`
	Dropped    int    `json:"dropped"`
	Collapsed  int    `json:"collapsed"`
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	res, err := a.refresh(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, refreshResponse{
			Generation: res.Generation,
			Fetched:    res.Fetched,
			Detections: len(res.Detections),
			Dropped:    res.Dropped,
			Collapsed:  res.Collapsed,
		})
	case errors.Is(err, domain.ErrDataSource):
		w.Header().Set("Retry-After", retryAfterSeconds(a.retryAfter))
		writeJSON(w, http.StatusBadGateway, errorResponse{
			Error:        err.Error(),
			Retryable:    true,
			RetryAfterMS: a.retryAfter.Milliseconds(),
		})
	case errors.Is(err, pipeline.ErrClosed):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	default:
		a.logger.Warn("manual refresh aborted", "error", err)
		writeJSON(w, http.StatusGatewayTimeout, errorResponse{Error: err.Error()})
	}
}

// statsResponse reports total_fires per distinct cell; dropped and collapsed
// account for the raw records behind it.
type statsResponse struct {
	Generation  uint64    `json:"generation"`
	RefreshedAt time.Time `json:"refreshed_at"`
	Dropped     int       `json:"dropped"`
	Collapsed   int       `json:"collapsed"`
	domain.Stats
}

func (a *API) handleStats(w http.ResponseWriter, _ *http.Request) {
	snap := a.store.Snapshot()
	writeJSON(w, http.StatusOK, statsResponse{
		Generation:  snap.Generation,
		RefreshedAt: snap.RefreshedAt,
		Dropped:     snap.Dropped,
		Collapsed:   snap.Collapsed,
		Stats:       domain.Summarize(snap.Detections),
	})
}

type sessionResponse struct {
	ID        string          `json:"id"`
	Selection selection.State `json:"selection"`
}

func (a *API) handleCreateSession(w http.ResponseWriter, _ *http.Request) {
	sess := a.sessions.Create()
	writeJSON(w, http.StatusCreated, sessionResponse{ID: sess.ID, Selection: sess.Selection().State()})
}

func (a *API) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := a.sessions.Close(r.PathValue("id")); err != nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type clickRequest struct {
	CellID string `json:"cell_id"`
}

// handleClick applies a click. A body naming a cell with a current detection
// is a marker click; an empty body or any other cell is a click on the map.
func (a *API) handleClick(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.lookupSession(w, r)
	if !ok {
		return
	}

	var req clickRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid click body: " + err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, sess.Click(strings.TrimSpace(req.CellID)))
}

func (a *API) handleSelection(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.lookupSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Selection().State())
}

func (a *API) lookupSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := a.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
		return nil, false
	}
	return sess, true
}

func retryAfterSeconds(d time.Duration) string {
	secs := int64((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
