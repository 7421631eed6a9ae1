package httpadapter

import (
	"net/http"
	"sync"
	"time"

	"github.com/couchcryptid/wildfire-dashboard-service/internal/domain"
	"github.com/couchcryptid/wildfire-dashboard-service/internal/selection"
	"github.com/couchcryptid/wildfire-dashboard-service/internal/session"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The dashboard is served from its own origin.
	CheckOrigin: func(*http.Request) bool { return true },
}

// streamMessage is one frame pushed to the dashboard. Exactly one of Snapshot
// and Selection is set, matching Type.
type streamMessage struct {
	Type      string           `json:"type"` // "snapshot" or "selection"
	Snapshot  *domain.Snapshot `json:"snapshot,omitempty"`
	Selection *selection.State `json:"selection,omitempty"`
}

// clientMessage is a frame sent by the dashboard.
type clientMessage struct {
	Type   string `json:"type"` // "click"
	CellID string `json:"cell_id"`
}

// latestState keeps only the newest selection state for the writer. States
// older than one already taken are ignored.
type latestState struct {
	mu    sync.Mutex
	state *selection.State
	taken uint64
	wake  chan struct{}
}

func (l *latestState) set(st selection.State) {
	l.mu.Lock()
	if st.Version <= l.taken || (l.state != nil && st.Version < l.state.Version) {
		l.mu.Unlock()
		return
	}
	l.state = &st
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *latestState) take() *selection.State {
	l.mu.Lock()
	defer l.mu.Unlock()
	st := l.state
	l.state = nil
	if st == nil || st.Version <= l.taken {
		return nil
	}
	l.taken = st.Version
	return st
}

// handleStream upgrades to a WebSocket that pushes every new map snapshot and
// every selection change of the session, and accepts click frames.
func (a *API) handleStream(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.lookupSession(w, r)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("websocket upgrade failed", "session_id", sess.ID, "error", err)
		return
	}
	defer conn.Close()

	a.logger.Info("map stream opened", "session_id", sess.ID)
	defer a.logger.Info("map stream closed", "session_id", sess.ID)

	pending := &latestState{wake: make(chan struct{}, 1)}
	unsubscribe := sess.Selection().Subscribe(pending.set)
	defer unsubscribe()

	readDone := make(chan struct{})
	go a.readClicks(conn, sess, readDone)

	changed := a.store.Changed()
	if err := writeFrame(conn, snapshotFrame(a.store.Snapshot())); err != nil {
		return
	}
	current := sess.Selection().State()
	pending.mu.Lock()
	pending.taken = max(pending.taken, current.Version)
	pending.mu.Unlock()
	if err := writeFrame(conn, streamMessage{Type: "selection", Selection: &current}); err != nil {
		return
	}

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-changed:
			changed = a.store.Changed()
			if err := writeFrame(conn, snapshotFrame(a.store.Snapshot())); err != nil {
				return
			}
		case <-pending.wake:
			if st := pending.take(); st != nil {
				if err := writeFrame(conn, streamMessage{Type: "selection", Selection: st}); err != nil {
					return
				}
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-sess.Done():
			closeFrame(conn, websocket.CloseNormalClosure, "session closed")
			return
		case <-a.streams.Done():
			closeFrame(conn, websocket.CloseGoingAway, "server shutting down")
			return
		case <-readDone:
			return
		}
	}
}

// readClicks applies click frames until the connection fails or closes.
func (a *API) readClicks(conn *websocket.Conn, sess *session.Session, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				a.logger.Debug("map stream read failed", "session_id", sess.ID, "error", err)
			}
			return
		}
		if msg.Type != "click" {
			a.logger.Debug("ignoring stream frame", "session_id", sess.ID, "type", msg.Type)
			continue
		}
		sess.Click(msg.CellID)
	}
}

func snapshotFrame(snap domain.Snapshot) streamMessage {
	return streamMessage{Type: "snapshot", Snapshot: &snap}
}

func writeFrame(conn *websocket.Conn, msg streamMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg)
}

func closeFrame(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(writeWait))
}
