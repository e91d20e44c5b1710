package route_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neexbeast/campusnav/internal/campus"
	"github.com/neexbeast/campusnav/internal/geo"
	"github.com/neexbeast/campusnav/internal/notice"
	"github.com/neexbeast/campusnav/internal/route"
	"github.com/neexbeast/campusnav/internal/uiloop"
)

type routeCall struct {
	from, to geo.Coordinate
	reply    chan routeReply
}

type routeReply struct {
	points []geo.Coordinate
	err    error
}

// gatedRouter blocks every request until the test replies to it.
type gatedRouter struct {
	calls chan routeCall
}

func (r *gatedRouter) Route(_ context.Context, from, to geo.Coordinate) ([]geo.Coordinate, error) {
	call := routeCall{from: from, to: to, reply: make(chan routeReply, 1)}
	r.calls <- call
	reply := <-call.reply
	return reply.points, reply.err
}

type recordingDrawer struct {
	mu          sync.Mutex
	route       []geo.Coordinate
	draws       int
	destination *geo.Coordinate
	hasMarker   bool
}

func (d *recordingDrawer) DrawRoute(points []geo.Coordinate) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.route = points
	d.draws++
}

func (d *recordingDrawer) ClearRoute() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.route = nil
}

func (d *recordingDrawer) SetDestinationMarker(pos geo.Coordinate) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destination = &pos
	return d.hasMarker
}

func (d *recordingDrawer) ClearDestination() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destination = nil
}

func (d *recordingDrawer) snapshot() ([]geo.Coordinate, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.route, d.draws
}

type memStore struct {
	mu     sync.Mutex
	values map[string]geo.Coordinate
	setErr error
}

func newMemStore() *memStore {
	return &memStore{values: make(map[string]geo.Coordinate)}
}

func (s *memStore) GetDestination(_ context.Context, session string) (*geo.Coordinate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.values[session]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (s *memStore) SetDestination(_ context.Context, session string, dest geo.Coordinate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	s.values[session] = dest
	return nil
}

func (s *memStore) DeleteDestination(_ context.Context, session string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, session)
	return nil
}

type controllerFixture struct {
	t      *testing.T
	loop   *uiloop.Loop
	router *gatedRouter
	drawer *recordingDrawer
	store  *memStore
	board  *notice.Board
	ctrl   *route.Controller
}

func newController(t *testing.T) *controllerFixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	loop := uiloop.New(log)
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)
	t.Cleanup(cancel)

	f := &controllerFixture{
		t:      t,
		loop:   loop,
		router: &gatedRouter{calls: make(chan routeCall, 4)},
		drawer: &recordingDrawer{hasMarker: true},
		store:  newMemStore(),
		board:  notice.NewBoard(),
	}
	f.ctrl = route.NewController(route.Options{
		Session: "s1",
		Router:  f.router,
		Drawer:  f.drawer,
		Store:   f.store,
		Loop:    loop,
		Notices: f.board,
		Log:     log,
	})
	return f
}

func (f *controllerFixture) do(fn func()) {
	f.t.Helper()
	require.NoError(f.t, f.loop.Do(context.Background(), fn))
}

func (f *controllerFixture) state() route.State {
	var s route.State
	f.do(func() { s = f.ctrl.State() })
	return s
}

func (f *controllerFixture) nextCall() routeCall {
	f.t.Helper()
	select {
	case c := <-f.router.calls:
		return c
	case <-time.After(2 * time.Second):
		f.t.Fatal("expected a route request")
		return routeCall{}
	}
}

func (f *controllerFixture) noCall() {
	f.t.Helper()
	// A trigger starts its request synchronously on the loop, so a round
	// trip through the loop is enough to see it.
	f.do(func() {})
	select {
	case c := <-f.router.calls:
		f.t.Fatalf("unexpected route request from %s to %s", c.from, c.to)
	case <-time.After(50 * time.Millisecond):
	}
}

func (f *controllerFixture) waitState(want route.State) {
	f.t.Helper()
	require.Eventually(f.t, func() bool { return f.state() == want }, 2*time.Second, 5*time.Millisecond)
}

var (
	here = geo.Coordinate{Lat: 43.5615, Lon: 1.4686}
	dest = geo.Coordinate{Lat: 43.5621, Lon: 1.4699}
	line = []geo.Coordinate{here, dest}
)

// north returns pos moved by meters due north.
func north(pos geo.Coordinate, meters float64) geo.Coordinate {
	return geo.Coordinate{Lat: pos.Lat + meters/111195.0, Lon: pos.Lon}
}

func TestController_SetDestinationFetchesRoute(t *testing.T) {
	f := newController(t)
	assert.Equal(t, route.StateIdle, f.state())

	f.do(func() { f.ctrl.OnPosition(here) })
	f.noCall()

	var err error
	f.do(func() { err = f.ctrl.SetDestination(context.Background(), dest) })
	require.NoError(t, err)

	call := f.nextCall()
	assert.Equal(t, here, call.from)
	assert.Equal(t, dest, call.to)
	assert.Equal(t, route.StateAwaitingFix, f.state())

	call.reply <- routeReply{points: line}
	f.waitState(route.StateRouteLoaded)

	drawn, draws := f.drawer.snapshot()
	assert.Equal(t, line, drawn)
	assert.Equal(t, 1, draws)

	stored, err := f.store.GetDestination(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, dest, *stored)
}

func TestController_DestinationBeforeFixAwaitsFix(t *testing.T) {
	f := newController(t)

	f.do(func() { require.NoError(t, f.ctrl.SetDestination(context.Background(), dest)) })
	f.noCall()
	assert.Equal(t, route.StateAwaitingFix, f.state())

	f.do(func() { f.ctrl.OnPosition(here) })
	call := f.nextCall()
	assert.Equal(t, here, call.from)
	call.reply <- routeReply{points: line}
	f.waitState(route.StateRouteLoaded)
}

func TestController_MovementThreshold(t *testing.T) {
	f := newController(t)
	f.do(func() { f.ctrl.OnPosition(here) })
	f.do(func() { require.NoError(t, f.ctrl.SetDestination(context.Background(), dest)) })
	f.nextCall().reply <- routeReply{points: line}
	f.waitState(route.StateRouteLoaded)

	f.do(func() { f.ctrl.OnPosition(north(here, 2)) })
	f.noCall()

	// Still measured from the last triggering fix, not the last fix.
	f.do(func() { f.ctrl.OnPosition(north(here, 3.5)) })
	call := f.nextCall()
	assert.InDelta(t, north(here, 3.5).Lat, call.from.Lat, 1e-12)
	call.reply <- routeReply{points: []geo.Coordinate{call.from, dest}}

	require.Eventually(t, func() bool {
		_, draws := f.drawer.snapshot()
		return draws == 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestController_NoTriggerWithoutDestination(t *testing.T) {
	f := newController(t)
	f.do(func() { f.ctrl.OnPosition(here) })
	f.do(func() { f.ctrl.OnPosition(north(here, 50)) })
	f.noCall()
	assert.Equal(t, route.StateIdle, f.state())
}

func TestController_SentinelNeverTriggers(t *testing.T) {
	f := newController(t)
	f.do(func() { f.ctrl.OnPosition(here) })

	var err error
	f.do(func() { err = f.ctrl.SetDestination(context.Background(), geo.Sentinel) })
	assert.ErrorIs(t, err, route.ErrInvalidDestination)

	f.do(func() { f.ctrl.OnPosition(north(here, 100)) })
	f.do(func() { f.ctrl.OnPosition(north(here, 200)) })
	f.noCall()
	assert.Equal(t, route.StateIdle, f.state())

	_, ok := f.ctrl.Destination()
	assert.False(t, ok)
}

func TestController_FailureKeepsPreviousRoute(t *testing.T) {
	f := newController(t)
	f.do(func() { f.ctrl.OnPosition(here) })
	f.do(func() { require.NoError(t, f.ctrl.SetDestination(context.Background(), dest)) })
	f.nextCall().reply <- routeReply{points: line}
	f.waitState(route.StateRouteLoaded)

	f.do(func() { f.ctrl.OnPosition(north(here, 10)) })
	f.nextCall().reply <- routeReply{err: fmt.Errorf("route request returned status 502: %w", campus.ErrNetwork)}

	require.Eventually(t, func() bool { return len(f.board.Drain()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, route.StateRouteLoaded, f.state())
	drawn, draws := f.drawer.snapshot()
	assert.Equal(t, line, drawn, "prior polyline is untouched")
	assert.Equal(t, 1, draws)
}

func TestController_FirstFailureGoesIdle(t *testing.T) {
	f := newController(t)
	f.do(func() { f.ctrl.OnPosition(here) })
	f.do(func() { require.NoError(t, f.ctrl.SetDestination(context.Background(), dest)) })
	f.nextCall().reply <- routeReply{err: campus.ErrJSONShape}

	f.waitState(route.StateIdle)
	_, draws := f.drawer.snapshot()
	assert.Equal(t, 0, draws)
}

func TestController_StaleResponseDropped(t *testing.T) {
	f := newController(t)
	f.do(func() { f.ctrl.OnPosition(here) })
	f.do(func() { require.NoError(t, f.ctrl.SetDestination(context.Background(), dest)) })
	first := f.nextCall()

	other := geo.Coordinate{Lat: 43.5700, Lon: 1.4800}
	f.do(func() { require.NoError(t, f.ctrl.SetDestination(context.Background(), other)) })
	second := f.nextCall()
	assert.Equal(t, other, second.to)

	newer := []geo.Coordinate{here, other}
	second.reply <- routeReply{points: newer}
	f.waitState(route.StateRouteLoaded)

	first.reply <- routeReply{points: line}
	f.do(func() {})
	f.do(func() {})

	drawn, draws := f.drawer.snapshot()
	assert.Equal(t, newer, drawn, "late response must not overwrite the newer route")
	assert.Equal(t, 1, draws)
}

func TestController_ClearDestination(t *testing.T) {
	f := newController(t)
	f.do(func() { f.ctrl.OnPosition(here) })
	f.do(func() { require.NoError(t, f.ctrl.SetDestination(context.Background(), dest)) })
	f.nextCall().reply <- routeReply{points: line}
	f.waitState(route.StateRouteLoaded)

	f.do(func() { f.ctrl.ClearDestination(context.Background()) })
	f.do(func() { f.ctrl.ClearDestination(context.Background()) })

	assert.Equal(t, route.StateIdle, f.state())
	drawn, _ := f.drawer.snapshot()
	assert.Nil(t, drawn)
	assert.Nil(t, f.drawer.destination)

	stored, err := f.store.GetDestination(context.Background(), "s1")
	require.NoError(t, err)
	assert.Nil(t, stored)

	f.do(func() { f.ctrl.OnPosition(north(here, 100)) })
	f.noCall()
}

func TestController_ClearAbandonsInFlight(t *testing.T) {
	f := newController(t)
	f.do(func() { f.ctrl.OnPosition(here) })
	f.do(func() { require.NoError(t, f.ctrl.SetDestination(context.Background(), dest)) })
	call := f.nextCall()

	f.do(func() { f.ctrl.ClearDestination(context.Background()) })
	call.reply <- routeReply{points: line}
	f.do(func() {})
	f.do(func() {})

	_, draws := f.drawer.snapshot()
	assert.Equal(t, 0, draws)
	assert.Equal(t, route.StateIdle, f.state())
}

func TestController_Restore(t *testing.T) {
	f := newController(t)
	require.NoError(t, f.store.SetDestination(context.Background(), "s1", dest))

	f.do(func() { f.ctrl.OnPosition(here) })
	f.do(func() { require.NoError(t, f.ctrl.Restore(context.Background())) })

	got, ok := f.ctrl.Destination()
	require.True(t, ok)
	assert.Equal(t, dest, got)
	require.NotNil(t, f.drawer.destination)

	f.nextCall().reply <- routeReply{points: line}
	f.waitState(route.StateRouteLoaded)
}

func TestController_RestoreIgnoresSentinel(t *testing.T) {
	f := newController(t)
	require.NoError(t, f.store.SetDestination(context.Background(), "s1", geo.Sentinel))

	f.do(func() { f.ctrl.OnPosition(here) })
	f.do(func() { require.NoError(t, f.ctrl.Restore(context.Background())) })
	f.noCall()
	assert.Equal(t, route.StateIdle, f.state())
}

func TestController_PersistFailureStillRoutes(t *testing.T) {
	f := newController(t)
	f.store.setErr = errors.New("redis down")

	f.do(func() { f.ctrl.OnPosition(here) })
	var err error
	f.do(func() { err = f.ctrl.SetDestination(context.Background(), dest) })
	require.NoError(t, err)
	f.nextCall().reply <- routeReply{points: line}
	f.waitState(route.StateRouteLoaded)
}

func TestController_DetachIgnoresLateResult(t *testing.T) {
	f := newController(t)
	f.do(func() { f.ctrl.OnPosition(here) })
	f.do(func() { require.NoError(t, f.ctrl.SetDestination(context.Background(), dest)) })
	call := f.nextCall()

	f.do(f.ctrl.Detach)
	call.reply <- routeReply{points: line}
	f.do(func() {})
	f.do(func() {})

	_, draws := f.drawer.snapshot()
	assert.Equal(t, 0, draws)
}
