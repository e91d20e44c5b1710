// Package session hosts one client's navigation screen: a list builder per
// POI kind, the marker synchronizer, and the route controller, all driven
// by the session's own UI loop. Exported methods are safe to call from any
// goroutine; they marshal onto the loop.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/neexbeast/campusnav/internal/cache"
	"github.com/neexbeast/campusnav/internal/campus"
	"github.com/neexbeast/campusnav/internal/filter"
	"github.com/neexbeast/campusnav/internal/geo"
	"github.com/neexbeast/campusnav/internal/listing"
	"github.com/neexbeast/campusnav/internal/location"
	"github.com/neexbeast/campusnav/internal/mapview"
	"github.com/neexbeast/campusnav/internal/markers"
	"github.com/neexbeast/campusnav/internal/notice"
	"github.com/neexbeast/campusnav/internal/route"
	"github.com/neexbeast/campusnav/internal/uiloop"
)

const storeTimeout = 2 * time.Second

// ErrDetached is returned by operations on a session that has ended.
var ErrDetached = errors.New("session detached")

// CameraStore persists the map camera between visits.
type CameraStore interface {
	GetCamera(ctx context.Context, session string) (*cache.Camera, error)
	SetCamera(ctx context.Context, session string, cam cache.Camera) error
}

// Deps are the collaborators shared by every session.
type Deps struct {
	Source        listing.Source
	Router        route.Router
	Images        markers.ImageLoader
	Cameras       CameraStore
	Destinations  route.DestinationStore
	DefaultCamera mapview.Camera
	Log           *slog.Logger
}

// Session is one attached navigation screen.
type Session struct {
	id   string
	deps Deps
	log  *slog.Logger

	loop      *uiloop.Loop
	provider  *location.PushProvider
	notices   *notice.Board
	surface   *mapview.Surface
	clusterer *mapview.Clusterer
	markers   *markers.Synchronizer
	route     *route.Controller
	lists     map[campus.Kind]*listing.Builder

	stop           context.CancelFunc
	unsubscribe    func()
	hasFix         bool
	cameraRestored bool
	detachOnce     sync.Once
}

// New builds a session. Call Attach before using it.
func New(id string, locationGranted bool, deps Deps) *Session {
	log := deps.Log.With("session", id)
	s := &Session{
		id:        id,
		deps:      deps,
		log:       log,
		loop:      uiloop.New(log),
		provider:  location.NewPushProvider(locationGranted),
		notices:   notice.NewBoard(),
		surface:   mapview.NewSurface(deps.DefaultCamera),
		clusterer: mapview.NewClusterer(),
		lists:     make(map[campus.Kind]*listing.Builder, len(campus.Kinds)),
	}

	s.markers = markers.New(markers.Options{
		Widget:    s.surface,
		Clusterer: s.clusterer,
		Images:    deps.Images,
		Loop:      s.loop,
		Log:       log,
	})
	s.route = route.NewController(route.Options{
		Session: id,
		Router:  deps.Router,
		Drawer:  s.markers,
		Store:   deps.Destinations,
		Loop:    s.loop,
		Notices: s.notices,
		Log:     log,
	})
	for _, kind := range campus.Kinds {
		s.lists[kind] = listing.New(listing.Options{
			Kind:     kind,
			Source:   deps.Source,
			Loop:     s.loop,
			Notices:  s.notices,
			Log:      log,
			OnChange: s.syncMarkers,
		})
	}
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Attach starts the UI loop, restores the camera and the pending
// destination, subscribes to location updates, and loads every list. When
// location permission was refused the map falls back to the default
// center and location features stay off.
func (s *Session) Attach(ctx context.Context) error {
	runCtx, stop := context.WithCancel(context.Background())
	s.stop = stop
	go s.loop.Run(runCtx)

	var restoreErr error
	err := s.loop.Do(ctx, func() {
		s.cameraRestored = s.restoreCamera(ctx)

		if err := s.route.Restore(ctx); err != nil {
			s.log.Warn("destination not restored", "err", err)
		}

		updates, cancel, err := s.provider.Subscribe()
		switch {
		case errors.Is(err, campus.ErrPermissionDenied):
			s.notices.Info("Location permission denied. Showing the campus map without your position.")
		case err != nil:
			restoreErr = fmt.Errorf("subscribing to location: %w", err)
			return
		default:
			s.unsubscribe = cancel
			go s.pump(updates)
		}

		for _, kind := range campus.Kinds {
			s.lists[kind].Load(s.logLoad(kind))
		}
	})
	if err != nil {
		stop()
		return fmt.Errorf("attaching session %s: %w", s.id, err)
	}
	return restoreErr
}

// restoreCamera moves the map to the persisted camera. Without one the
// surface keeps the default center.
func (s *Session) restoreCamera(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	cam, err := s.deps.Cameras.GetCamera(ctx, s.id)
	if err != nil {
		s.log.Warn("camera not restored", "err", err)
		return false
	}
	if cam == nil {
		return false
	}
	s.surface.MoveCamera(geo.Coordinate{Lat: cam.Lat, Lon: cam.Lon}, cam.Zoom)
	s.surface.SetNightMode(cam.NightMode)
	return true
}

func (s *Session) pump(updates <-chan geo.Coordinate) {
	for pos := range updates {
		if !s.loop.Post(func() { s.onPosition(pos) }) {
			return
		}
	}
}

func (s *Session) onPosition(pos geo.Coordinate) {
	first := !s.hasFix
	s.hasFix = true

	for _, b := range s.lists {
		b.SetReference(pos)
	}
	s.markers.MoveUser(pos)
	s.route.OnPosition(pos)

	if first {
		if !s.cameraRestored {
			s.surface.MoveCamera(pos, 0)
		}
		for _, kind := range campus.Kinds {
			s.lists[kind].Load(s.logLoad(kind))
		}
	}
}

func (s *Session) logLoad(kind campus.Kind) func(error) {
	return func(err error) {
		if err != nil && !errors.Is(err, listing.ErrSuperseded) && !errors.Is(err, listing.ErrDetached) {
			s.log.Warn("list load failed", "kind", kind, "err", err)
		}
	}
}

// syncMarkers reconciles the map with every list's visible placeable POIs
// and re-marks the destination if its POI marker was re-created.
func (s *Session) syncMarkers() {
	var placements []markers.Placement
	for _, kind := range campus.Kinds {
		for _, p := range s.lists[kind].Placeable() {
			if pl, ok := markers.PlacementFor(p); ok {
				placements = append(placements, pl)
			}
		}
	}
	s.markers.Sync(placements)

	if dest, ok := s.route.Destination(); ok && s.markers.Destination() == nil {
		s.markers.SetDestinationMarker(dest)
	}
}

func (s *Session) do(ctx context.Context, fn func()) error {
	if err := s.loop.Do(ctx, fn); err != nil {
		if errors.Is(err, uiloop.ErrClosed) {
			return ErrDetached
		}
		return err
	}
	return nil
}

// PushPosition feeds a location fix into the session.
func (s *Session) PushPosition(pos geo.Coordinate) error {
	return s.provider.Push(pos)
}

// ListQuery selects what a list shows. Reload forces a fresh fetch; a
// changed region or category also refetches.
type ListQuery struct {
	Query    string
	Region   filter.Region
	Category string
	Reload   bool
}

// List returns the list of kind after applying q. Fetch failures surface as
// notices and the previous collection is returned.
func (s *Session) List(ctx context.Context, kind campus.Kind, q ListQuery) (listing.Snapshot, error) {
	b, ok := s.lists[kind]
	if !ok {
		return listing.Snapshot{}, fmt.Errorf("unknown poi kind %s", kind)
	}

	var loaded chan error
	err := s.do(ctx, func() {
		snap := b.Snapshot()
		reload := q.Reload || snap.State == listing.StateLoading ||
			snap.Region != q.Region || snap.Category != q.Category
		if !reload {
			return
		}
		b.SetFilter(q.Region, q.Category)
		loaded = make(chan error, 1)
		b.Load(func(err error) { loaded <- err })
	})
	if err != nil {
		return listing.Snapshot{}, err
	}

	if loaded != nil {
		select {
		case err := <-loaded:
			if errors.Is(err, listing.ErrDetached) {
				return listing.Snapshot{}, ErrDetached
			}
		case <-ctx.Done():
			return listing.Snapshot{}, ctx.Err()
		}
	}

	var snap listing.Snapshot
	err = s.do(ctx, func() {
		if b.Query() != q.Query {
			b.Search(q.Query)
		}
		snap = b.Snapshot()
	})
	return snap, err
}

// SetDestination selects a destination and starts routing to it.
func (s *Session) SetDestination(ctx context.Context, dest geo.Coordinate) error {
	var setErr error
	if err := s.do(ctx, func() { setErr = s.route.SetDestination(ctx, dest) }); err != nil {
		return err
	}
	return setErr
}

// ClearDestination removes the destination and its route.
func (s *Session) ClearDestination(ctx context.Context) error {
	return s.do(ctx, func() { s.route.ClearDestination(ctx) })
}

// Map renders the current map as GeoJSON.
func (s *Session) Map(ctx context.Context) (*geojson.FeatureCollection, error) {
	var fc *geojson.FeatureCollection
	err := s.do(ctx, func() { fc = s.surface.GeoJSON(s.clusterer) })
	return fc, err
}

// SetCamera moves the map and persists the camera.
func (s *Session) SetCamera(ctx context.Context, cam cache.Camera) error {
	center := geo.Coordinate{Lat: cam.Lat, Lon: cam.Lon}
	if !center.Valid() {
		return fmt.Errorf("%w: %s", campus.ErrInvalidCoordinate, center)
	}
	if err := s.do(ctx, func() {
		s.surface.MoveCamera(center, cam.Zoom)
		s.surface.SetNightMode(cam.NightMode)
		cam = s.cameraState()
	}); err != nil {
		return err
	}

	sctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	if err := s.deps.Cameras.SetCamera(sctx, s.id, cam); err != nil {
		return fmt.Errorf("persisting camera: %w", err)
	}
	return nil
}

func (s *Session) cameraState() cache.Camera {
	c := s.surface.Camera()
	return cache.Camera{Lat: c.Center.Lat, Lon: c.Center.Lon, Zoom: c.Zoom, NightMode: c.NightMode}
}

// HideMarkers hides every POI marker except the destination.
func (s *Session) HideMarkers(ctx context.Context) error {
	return s.do(ctx, s.markers.Hide)
}

// RevealMarkers shows hidden POI markers again.
func (s *Session) RevealMarkers(ctx context.Context) error {
	return s.do(ctx, s.markers.Reveal)
}

// Notices drains the pending user notices.
func (s *Session) Notices() []notice.Notice {
	return s.notices.Drain()
}

// Status summarises the session for clients.
type Status struct {
	ID              string          `json:"id"`
	LocationGranted bool            `json:"location_granted"`
	Route           route.State     `json:"route_state"`
	Destination     *geo.Coordinate `json:"destination,omitempty"`
	RoutePoints     int             `json:"route_points"`
	Markers         int             `json:"markers"`
	MarkersHidden   bool            `json:"markers_hidden"`
	Camera          mapview.Camera  `json:"camera"`
}

// Status reports the session's current state.
func (s *Session) Status(ctx context.Context) (Status, error) {
	st := Status{ID: s.id, LocationGranted: s.provider.Granted()}
	err := s.do(ctx, func() {
		st.Route = s.route.State()
		if d, ok := s.route.Destination(); ok {
			st.Destination = &d
		}
		st.RoutePoints = len(s.markers.Route())
		st.Markers = s.markers.Len()
		st.MarkersHidden = s.markers.Hidden()
		st.Camera = s.surface.Camera()
	})
	return st, err
}

// Detach stops location updates, drops pending async results, persists the
// camera, and stops the loop. Later calls are no-ops.
func (s *Session) Detach(ctx context.Context) {
	s.detachOnce.Do(func() {
		var cam cache.Camera
		err := s.loop.Do(ctx, func() {
			if s.unsubscribe != nil {
				s.unsubscribe()
			}
			for _, b := range s.lists {
				b.Detach()
			}
			s.markers.Detach()
			s.route.Detach()
			cam = s.cameraState()
		})
		s.loop.Close()
		if s.stop != nil {
			s.stop()
		}
		if err != nil {
			s.log.Warn("detaching session", "err", err)
			return
		}

		sctx, cancel := context.WithTimeout(ctx, storeTimeout)
		defer cancel()
		if err := s.deps.Cameras.SetCamera(sctx, s.id, cam); err != nil {
			s.log.Warn("persisting camera failed", "err", err)
		}
	})
}
