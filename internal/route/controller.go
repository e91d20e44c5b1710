// Package route decides when the walking route to the destination must be
// refetched and draws the result. A Controller belongs to one UI loop;
// every method must be called from it.
package route

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/neexbeast/campusnav/internal/geo"
	"github.com/neexbeast/campusnav/internal/metrics"
	"github.com/neexbeast/campusnav/internal/report"
)

// RefreshMeters is how far the user must move from the last triggering
// fix before the route is refetched.
const RefreshMeters = 3.0

const storeTimeout = 2 * time.Second

// ErrInvalidDestination is returned for the sentinel (0,0) or an
// out-of-range destination.
var ErrInvalidDestination = errors.New("invalid destination")

// State is the controller's position in Idle -> AwaitingFix -> RouteLoaded.
type State int

const (
	StateIdle State = iota + 1
	StateAwaitingFix
	StateRouteLoaded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingFix:
		return "awaiting_fix"
	case StateRouteLoaded:
		return "route_loaded"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name written by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	for _, st := range []State{StateIdle, StateAwaitingFix, StateRouteLoaded} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}

// Router fetches a route between two points. It is called off the UI loop.
type Router interface {
	Route(ctx context.Context, from, to geo.Coordinate) ([]geo.Coordinate, error)
}

// Drawer renders the route and the destination marker.
type Drawer interface {
	DrawRoute(points []geo.Coordinate)
	ClearRoute()
	SetDestinationMarker(pos geo.Coordinate) bool
	ClearDestination()
}

// DestinationStore persists the pending destination across restarts.
type DestinationStore interface {
	GetDestination(ctx context.Context, session string) (*geo.Coordinate, error)
	SetDestination(ctx context.Context, session string, dest geo.Coordinate) error
	DeleteDestination(ctx context.Context, session string) error
}

// Poster marshals work onto the UI loop.
type Poster interface {
	Post(fn func()) bool
}

// Notifier surfaces one-shot messages to the user.
type Notifier interface {
	Error(msg string)
}

// Options configures a Controller.
type Options struct {
	Session string
	Router  Router
	Drawer  Drawer
	Store   DestinationStore
	Loop    Poster
	Notices Notifier
	Log     *slog.Logger
}

// Controller tracks the user position and destination of one session.
type Controller struct {
	session string
	router  Router
	drawer  Drawer
	store   DestinationStore
	loop    Poster
	notices Notifier
	log     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	state       State
	position    geo.Coordinate
	hasPosition bool
	destination *geo.Coordinate
	lastTrigger *geo.Coordinate
	hasRoute    bool

	gen           uint64
	cancelRequest context.CancelFunc
	attached      bool
}

// NewController creates an idle, attached controller.
func NewController(opts Options) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		session:  opts.Session,
		router:   opts.Router,
		drawer:   opts.Drawer,
		store:    opts.Store,
		loop:     opts.Loop,
		notices:  opts.Notices,
		log:      opts.Log,
		ctx:      ctx,
		cancel:   cancel,
		state:    StateIdle,
		attached: true,
	}
}

// State returns the current state.
func (c *Controller) State() State { return c.state }

// Destination returns the current destination, if any.
func (c *Controller) Destination() (geo.Coordinate, bool) {
	if c.destination == nil {
		return geo.Coordinate{}, false
	}
	return *c.destination, true
}

// Restore loads a persisted destination and, when one is found, marks it
// and requests a route. A missing destination leaves the controller idle.
func (c *Controller) Restore(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	dest, err := c.store.GetDestination(ctx, c.session)
	if err != nil {
		return fmt.Errorf("restoring destination: %w", err)
	}
	if dest == nil || dest.IsSentinel() || !dest.Valid() {
		return nil
	}

	d := *dest
	c.destination = &d
	c.lastTrigger = nil
	c.drawer.SetDestinationMarker(d)
	c.trigger()
	return nil
}

// SetDestination selects a new destination, persists it, swaps the marker
// at dest, and requests a route from the latest fix.
func (c *Controller) SetDestination(ctx context.Context, dest geo.Coordinate) error {
	if dest.IsSentinel() || !dest.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidDestination, dest)
	}

	d := dest
	c.destination = &d
	c.lastTrigger = nil
	c.drawer.SetDestinationMarker(d)

	sctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	if err := c.store.SetDestination(sctx, c.session, d); err != nil {
		c.log.Warn("persisting destination failed", "err", err)
	}

	c.trigger()
	return nil
}

// ClearDestination drops the destination, the route, and the destination
// marker, and returns to Idle. An in-flight request is abandoned.
func (c *Controller) ClearDestination(ctx context.Context) {
	c.destination = nil
	c.lastTrigger = nil
	c.abandon()

	c.drawer.ClearRoute()
	c.drawer.ClearDestination()
	c.hasRoute = false
	c.state = StateIdle

	sctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	if err := c.store.DeleteDestination(sctx, c.session); err != nil {
		c.log.Warn("deleting destination failed", "err", err)
	}
}

// OnPosition records a new fix and refetches the route when the user has
// moved more than RefreshMeters since the last triggering fix.
func (c *Controller) OnPosition(pos geo.Coordinate) {
	c.position = pos
	c.hasPosition = true

	if c.destination == nil {
		return
	}
	if c.lastTrigger != nil && !geo.Moved(*c.lastTrigger, pos, RefreshMeters) {
		return
	}
	c.trigger()
}

func (c *Controller) trigger() {
	if c.destination == nil || c.destination.IsSentinel() {
		return
	}

	c.state = StateAwaitingFix
	if !c.hasPosition {
		return
	}

	from, to := c.position, *c.destination
	c.lastTrigger = &from
	c.abandon()
	c.gen++
	gen := c.gen

	ctx, cancel := context.WithCancel(c.ctx)
	c.cancelRequest = cancel
	started := time.Now()

	go func() {
		points, err := c.router.Route(ctx, from, to)
		metrics.RouteLatency.Observe(time.Since(started).Seconds())
		c.loop.Post(func() { c.complete(gen, points, err) })
	}()
}

// abandon cancels the in-flight request and invalidates its result.
func (c *Controller) abandon() {
	if c.cancelRequest != nil {
		c.cancelRequest()
		c.cancelRequest = nil
	}
	c.gen++
}

func (c *Controller) complete(gen uint64, points []geo.Coordinate, err error) {
	if !c.attached {
		return
	}
	if gen != c.gen {
		metrics.RouteRequests.WithLabelValues(metrics.OutcomeStale).Inc()
		c.log.Debug("dropping stale route response", "gen", gen, "current", c.gen)
		return
	}
	c.cancelRequest = nil

	if err != nil {
		metrics.RouteRequests.WithLabelValues(metrics.OutcomeError).Inc()
		c.log.Warn("route request failed", "err", err)
		report.Error(err, report.Options{
			Tags:  map[string]string{"component": "route"},
			Extra: map[string]interface{}{"session": c.session},
		})
		if c.notices != nil {
			c.notices.Error("Could not compute the route. It will retry as you move.")
		}
		if c.hasRoute {
			c.state = StateRouteLoaded
		} else {
			c.state = StateIdle
		}
		return
	}

	metrics.RouteRequests.WithLabelValues(metrics.OutcomeOK).Inc()
	c.drawer.DrawRoute(points)
	c.hasRoute = true
	c.state = StateRouteLoaded
}

// Detach cancels any in-flight request and ignores late results.
func (c *Controller) Detach() {
	c.attached = false
	c.cancel()
}
