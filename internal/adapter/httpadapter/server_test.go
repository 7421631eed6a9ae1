package httpadapter_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/couchcryptid/wildfire-dashboard-service/internal/adapter/httpadapter"
	"github.com/couchcryptid/wildfire-dashboard-service/internal/domain"
	"github.com/couchcryptid/wildfire-dashboard-service/internal/observability"
	"github.com/couchcryptid/wildfire-dashboard-service/internal/pipeline"
	"github.com/couchcryptid/wildfire-dashboard-service/internal/selection"
	"github.com/couchcryptid/wildfire-dashboard-service/internal/session"
	"github.com/couchcryptid/wildfire-dashboard-service/internal/store"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	lowCell     = "8528340bfffffff"
	extremeCell = "85283473fffffff"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type fixture struct {
	server   *httpadapter.Server
	store    *store.EntityStore
	sessions *session.Manager
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func detection(t *testing.T, cellID string, frp float64) domain.FireDetection {
	t.Helper()
	geo, err := domain.DecodeCell(cellID)
	require.NoError(t, err)
	det, err := domain.BuildDetection(domain.RawFireRecord{
		CellID:         cellID,
		RadiativePower: frp,
		ObservedAt:     time.Date(2025, time.August, 14, 20, 30, 0, 0, time.UTC),
		Confidence:     "n",
	}, geo)
	require.NoError(t, err)
	return det
}

func newFixture(t *testing.T, refresh httpadapter.RefreshFunc, readyErr error) *fixture {
	t.Helper()
	s := store.New()
	s.Replace(domain.NewSnapshot(1, []domain.FireDetection{
		detection(t, extremeCell, 230),
		detection(t, lowCell, 12),
	}, 1))

	sessions := session.NewManager(s, discardLogger(), observability.NewMetricsForTesting(),
		selection.WithRevealDelay(10*time.Millisecond))
	t.Cleanup(sessions.CloseAll)

	if refresh == nil {
		refresh = func(context.Context) (pipeline.Result, error) { return pipeline.Result{}, nil }
	}
	api := httpadapter.NewAPI(s, refresh, sessions, 30*time.Second, discardLogger())
	return &fixture{
		server:   httpadapter.NewServer(":0", api, &mockReadiness{err: readyErr}, discardLogger()),
		store:    s,
		sessions: sessions,
	}
}

func (f *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, httptest.NewRequest(method, target, r))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

// --- health ---

func TestHealthzReturns200(t *testing.T) {
	f := newFixture(t, nil, nil)
	rec := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyz(t *testing.T) {
	assert.Equal(t, http.StatusOK, newFixture(t, nil, nil).do(t, http.MethodGet, "/readyz", "").Code)

	notReady := newFixture(t, nil, errors.New("no fire data loaded yet"))
	assert.Equal(t, http.StatusServiceUnavailable, notReady.do(t, http.MethodGet, "/readyz", "").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := newFixture(t, nil, nil).do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

// --- map data ---

func TestDetections_RenderOrder(t *testing.T) {
	f := newFixture(t, nil, nil)
	rec := f.do(t, http.MethodGet, "/api/detections", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	snap := decode[domain.Snapshot](t, rec)
	assert.Equal(t, uint64(1), snap.Generation)
	assert.Equal(t, 1, snap.Dropped)
	require.Len(t, snap.Detections, 2)
	assert.Equal(t, domain.SeverityLow, snap.Detections[0].Severity)
	assert.Equal(t, domain.SeverityExtreme, snap.Detections[1].Severity, "extreme drawn last")
	assert.Equal(t, "#B71C1C", snap.Detections[1].Color)
}

func TestDetections_MinSeverity(t *testing.T) {
	f := newFixture(t, nil, nil)

	snap := decode[domain.Snapshot](t, f.do(t, http.MethodGet, "/api/detections?min_severity=HIGH", ""))
	require.Len(t, snap.Detections, 1)
	assert.Equal(t, extremeCell, snap.Detections[0].CellID)

	rec := f.do(t, http.MethodGet, "/api/detections?min_severity=catastrophic", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDetections_MinConfidence(t *testing.T) {
	f := newFixture(t, nil, nil)
	withConfidence := func(cellID, conf string) domain.FireDetection {
		d := detection(t, cellID, 120)
		d.Confidence = conf
		return d
	}
	f.store.Replace(domain.NewSnapshot(2, []domain.FireDetection{
		withConfidence(extremeCell, "85"),
		withConfidence(lowCell, "40"),
		withConfidence("85283463fffffff", "h"),
	}, 0))

	snap := decode[domain.Snapshot](t, f.do(t, http.MethodGet, "/api/detections?min_confidence=50", ""))
	require.Len(t, snap.Detections, 1)
	assert.Equal(t, extremeCell, snap.Detections[0].CellID)

	snap = decode[domain.Snapshot](t, f.do(t, http.MethodGet, "/api/detections?min_confidence=0", ""))
	assert.Len(t, snap.Detections, 2, "class-letter confidence never passes a numeric filter")

	snap = decode[domain.Snapshot](t, f.do(t, http.MethodGet, "/api/detections", ""))
	assert.Len(t, snap.Detections, 3)

	for _, bad := range []string{"high", "NaN", "Inf"} {
		rec := f.do(t, http.MethodGet, "/api/detections?min_confidence="+bad, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
	}
}

func TestStats(t *testing.T) {
	f := newFixture(t, nil, nil)
	rec := f.do(t, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 1, body["generation"])
	assert.EqualValues(t, 2, body["total_fires"])
	assert.EqualValues(t, 1, body["dropped"])
	assert.EqualValues(t, 0, body["collapsed"])
}

func TestRefresh_Success(t *testing.T) {
	f := newFixture(t, func(context.Context) (pipeline.Result, error) {
		return pipeline.Result{Generation: 2, Fetched: 5, Dropped: 1, Detections: make([]domain.FireDetection, 4)}, nil
	}, nil)

	rec := f.do(t, http.MethodPost, "/api/refresh", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"generation":2,"fetched":5,"detections":4,"dropped":1}`, rec.Body.String())
}

func TestRefresh_DataSourceErrorIs502WithRetryHint(t *testing.T) {
	f := newFixture(t, func(context.Context) (pipeline.Result, error) {
		return pipeline.Result{}, errors.Join(domain.ErrDataSource, errors.New("firms API error: status 503"))
	}, nil)

	rec := f.do(t, http.MethodPost, "/api/refresh", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["retryable"])
	assert.EqualValues(t, 30000, body["retry_after_ms"])

	// The previous snapshot is still served.
	snap := decode[domain.Snapshot](t, f.do(t, http.MethodGet, "/api/detections", ""))
	assert.Len(t, snap.Detections, 2)
}

func TestRefresh_Closed(t *testing.T) {
	f := newFixture(t, func(context.Context) (pipeline.Result, error) {
		return pipeline.Result{}, pipeline.ErrClosed
	}, nil)
	assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodPost, "/api/refresh", "").Code)
}

// --- sessions ---

type sessionBody struct {
	ID        string          `json:"id"`
	Selection selection.State `json:"selection"`
}

func TestSession_ClickFlow(t *testing.T) {
	f := newFixture(t, nil, nil)

	rec := f.do(t, http.MethodPost, "/api/sessions", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	sess := decode[sessionBody](t, rec)
	require.NotEmpty(t, sess.ID)
	assert.Equal(t, selection.PhaseIdle, sess.Selection.Phase)

	base := "/api/sessions/" + sess.ID

	st := decode[selection.State](t, f.do(t, http.MethodPost, base+"/clicks", `{"cell_id":"`+extremeCell+`"}`))
	assert.Equal(t, selection.PhaseSelected, st.Phase)
	require.NotNil(t, st.Detection)
	assert.Equal(t, domain.SeverityExtreme, st.Detection.Severity)

	assert.Eventually(t, func() bool {
		return decode[selection.State](t, f.do(t, http.MethodGet, base+"/selection", "")).PanelVisible
	}, time.Second, 5*time.Millisecond)

	st = decode[selection.State](t, f.do(t, http.MethodPost, base+"/clicks", ""))
	assert.Equal(t, selection.PhaseIdle, st.Phase)
	assert.False(t, st.PanelVisible)
	assert.Nil(t, st.Detection)

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, base, "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, base+"/selection", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, base, "").Code)
}

func TestSession_BadClickBody(t *testing.T) {
	f := newFixture(t, nil, nil)
	sess := f.sessions.Create()

	rec := f.do(t, http.MethodPost, "/api/sessions/"+sess.ID+"/clicks", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSession_UnknownID(t *testing.T) {
	f := newFixture(t, nil, nil)
	rec := f.do(t, http.MethodPost, "/api/sessions/does-not-exist/clicks", `{"cell_id":"`+extremeCell+`"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// --- stream ---

type frame struct {
	Type      string           `json:"type"`
	Snapshot  *domain.Snapshot `json:"snapshot"`
	Selection *selection.State `json:"selection"`
}

func dialStream(t *testing.T, f *fixture, sessionID string) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(f.server)
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/sessions/" + sessionID + "/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var fr frame
	require.NoError(t, conn.ReadJSON(&fr))
	return fr
}

// readUntil reads frames until match returns true.
func readUntil(t *testing.T, conn *websocket.Conn, match func(frame) bool) frame {
	t.Helper()
	for i := 0; i < 20; i++ {
		if fr := readFrame(t, conn); match(fr) {
			return fr
		}
	}
	t.Fatal("expected frame never arrived")
	return frame{}
}

func TestStream_InitialFramesAndClicks(t *testing.T) {
	f := newFixture(t, nil, nil)
	sess := f.sessions.Create()
	conn := dialStream(t, f, sess.ID)

	first := readFrame(t, conn)
	require.Equal(t, "snapshot", first.Type)
	assert.Len(t, first.Snapshot.Detections, 2)

	second := readFrame(t, conn)
	require.Equal(t, "selection", second.Type)
	assert.Equal(t, selection.PhaseIdle, second.Selection.Phase)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "click", "cell_id": extremeCell}))

	revealed := readUntil(t, conn, func(fr frame) bool {
		return fr.Type == "selection" && fr.Selection.PanelVisible
	})
	assert.Equal(t, extremeCell, revealed.Selection.Detection.CellID)
}

func TestStream_PushesNewSnapshots(t *testing.T) {
	f := newFixture(t, nil, nil)
	sess := f.sessions.Create()
	conn := dialStream(t, f, sess.ID)

	readFrame(t, conn)
	readFrame(t, conn)

	f.store.Replace(domain.NewSnapshot(2, []domain.FireDetection{detection(t, lowCell, 160)}, 0))

	fr := readUntil(t, conn, func(fr frame) bool { return fr.Type == "snapshot" })
	assert.Equal(t, uint64(2), fr.Snapshot.Generation)
	require.Len(t, fr.Snapshot.Detections, 1)
	assert.Equal(t, domain.SeverityHigh, fr.Snapshot.Detections[0].Severity)
}

func TestStream_ClosesWithSession(t *testing.T) {
	f := newFixture(t, nil, nil)
	sess := f.sessions.Create()
	conn := dialStream(t, f, sess.ID)

	readFrame(t, conn)
	readFrame(t, conn)
	require.NoError(t, f.sessions.Close(sess.ID))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}
