// Package selection tracks which hotspot a dashboard session has selected and
// when the detail panel may show it.
package selection

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/wildfire-dashboard-service/internal/domain"
	"github.com/couchcryptid/wildfire-dashboard-service/internal/observability"
	"github.com/jonboulle/clockwork"
)

// DefaultRevealDelay is how long the detail panel waits after a selection
// before showing its content.
const DefaultRevealDelay = 200 * time.Millisecond

// Phase names the variant of the selection state.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseSelected Phase = "selected"
)

// State is the read-only view of a controller handed to panels.
// PanelVisible is only ever true in PhaseSelected.
type State struct {
	Phase        Phase                 `json:"phase"`
	Detection    *domain.FireDetection `json:"detection"`
	PanelVisible bool                  `json:"panel_visible"`
	Place        string                `json:"place,omitempty"`
	Version      uint64                `json:"version"`
}

// phase is either idle or selected.
type phase interface{ isPhase() }

type idle struct{}

type selected struct {
	detection domain.FireDetection
	revealed  bool
	place     string
}

func (idle) isPhase()      {}
func (*selected) isPhase() {}

// Option configures a Controller.
type Option func(*Controller)

// WithClock replaces the clock driving the reveal timer.
func WithClock(c clockwork.Clock) Option {
	return func(ctl *Controller) { ctl.clock = c }
}

// WithRevealDelay overrides DefaultRevealDelay.
func WithRevealDelay(d time.Duration) Option {
	return func(ctl *Controller) { ctl.delay = d }
}

// WithPlaceLookup describes each selected hotspot's location through lookup.
func WithPlaceLookup(lookup domain.PlaceLookup) Option {
	return func(ctl *Controller) { ctl.lookup = lookup }
}

// Controller is the single source of truth for one session's selection. Only
// marker clicks select; map clicks clear.
type Controller struct {
	clock   clockwork.Clock
	delay   time.Duration
	lookup  domain.PlaceLookup
	logger  *slog.Logger
	metrics *observability.Metrics

	mu           sync.Mutex
	state        phase
	version      uint64
	token        uint64 // bumped whenever the selected detection changes
	timer        clockwork.Timer
	cancelLookup context.CancelFunc
	closed       bool
	listeners    map[int]func(State)
	nextListener int
}

// New creates an idle Controller.
func New(logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Controller {
	c := &Controller{
		clock:     clockwork.NewRealClock(),
		delay:     DefaultRevealDelay,
		logger:    logger,
		metrics:   metrics,
		state:     idle{},
		listeners: make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SelectMarker handles a click on a hotspot marker. The panel content is
// hidden and revealed again once the delay has elapsed since this call.
// Clicking the already selected hotspot changes nothing unless a refresh has
// since replaced its detection, in which case the new one is selected.
func (c *Controller) SelectMarker(det domain.FireDetection) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	kind := "select"
	if cur, ok := c.state.(*selected); ok {
		if cur.detection == det {
			c.mu.Unlock()
			return
		}
		kind = "swap"
	}

	c.cancelPendingLocked()
	c.token++
	tok := c.token
	c.state = &selected{detection: det}
	c.version++

	c.timer = c.clock.AfterFunc(c.delay, func() { c.reveal(tok) })
	if c.lookup != nil {
		ctx, cancel := context.WithCancel(context.Background())
		c.cancelLookup = cancel
		go c.describe(ctx, tok, det)
	}

	st, listeners := c.viewLocked(), c.listenersLocked()
	c.mu.Unlock()

	c.metrics.SelectionEvents.WithLabelValues(kind).Inc()
	c.logger.Debug("hotspot selected", "cell_id", det.CellID, "severity", det.Severity, "version", st.Version)
	notify(listeners, st)
}

// MapClick handles a click on empty map space.
func (c *Controller) MapClick() { c.Clear() }

// Clear returns to idle and hides the panel immediately. It is a no-op when
// nothing is selected.
func (c *Controller) Clear() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if _, ok := c.state.(idle); ok {
		c.mu.Unlock()
		return
	}
	c.cancelPendingLocked()
	c.token++
	c.state = idle{}
	c.version++
	st, listeners := c.viewLocked(), c.listenersLocked()
	c.mu.Unlock()

	c.metrics.SelectionEvents.WithLabelValues("clear").Inc()
	notify(listeners, st)
}

// State returns the current view.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

// Subscribe registers fn to receive every state change and returns a function
// that removes it. fn runs on the goroutine that caused the change and must
// not block.
func (c *Controller) Subscribe(fn func(State)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextListener
	c.nextListener++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Close cancels the pending reveal and place lookup. Later calls are ignored.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.cancelPendingLocked()
	c.token++
	clear(c.listeners)
}

func (c *Controller) reveal(tok uint64) {
	c.mu.Lock()
	cur, ok := c.state.(*selected)
	if c.closed || tok != c.token || !ok || cur.revealed {
		c.mu.Unlock()
		return
	}
	cur.revealed = true
	c.timer = nil
	c.version++
	st, listeners := c.viewLocked(), c.listenersLocked()
	c.mu.Unlock()

	c.metrics.SelectionEvents.WithLabelValues("reveal").Inc()
	notify(listeners, st)
}

func (c *Controller) describe(ctx context.Context, tok uint64, det domain.FireDetection) {
	place := domain.DescribePlace(ctx, c.lookup, det.Geo, c.logger)
	if ctx.Err() != nil {
		return
	}

	c.mu.Lock()
	cur, ok := c.state.(*selected)
	if c.closed || tok != c.token || !ok {
		c.mu.Unlock()
		return
	}
	cur.place = place
	c.version++
	st, listeners := c.viewLocked(), c.listenersLocked()
	c.mu.Unlock()

	notify(listeners, st)
}

func (c *Controller) cancelPendingLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.cancelLookup != nil {
		c.cancelLookup()
		c.cancelLookup = nil
	}
}

func (c *Controller) viewLocked() State {
	switch s := c.state.(type) {
	case *selected:
		det := s.detection
		return State{
			Phase:        PhaseSelected,
			Detection:    &det,
			PanelVisible: s.revealed,
			Place:        s.place,
			Version:      c.version,
		}
	default:
		return State{Phase: PhaseIdle, Version: c.version}
	}
}

func (c *Controller) listenersLocked() []func(State) {
	out := make([]func(State), 0, len(c.listeners))
	for _, fn := range c.listeners {
		out = append(out, fn)
	}
	return out
}

func notify(listeners []func(State), st State) {
	for _, fn := range listeners {
		fn(st)
	}
}
