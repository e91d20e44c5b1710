package session_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neexbeast/campusnav/internal/cache"
	"github.com/neexbeast/campusnav/internal/campus"
	"github.com/neexbeast/campusnav/internal/filter"
	"github.com/neexbeast/campusnav/internal/geo"
	"github.com/neexbeast/campusnav/internal/listing"
	"github.com/neexbeast/campusnav/internal/mapview"
	"github.com/neexbeast/campusnav/internal/notice"
	"github.com/neexbeast/campusnav/internal/route"
	"github.com/neexbeast/campusnav/internal/session"
)

type mockSource struct {
	failing atomic.Bool
}

func (m *mockSource) Fetch(ctx context.Context, kind campus.Kind) ([]*campus.POI, error) {
	if m.failing.Load() {
		return nil, errors.New("db unavailable")
	}
	return campusData(ctx, kind)
}

type mockRouter struct {
	routeFn func(ctx context.Context, from, to geo.Coordinate) ([]geo.Coordinate, error)
}

func (m *mockRouter) Route(ctx context.Context, from, to geo.Coordinate) ([]geo.Coordinate, error) {
	return m.routeFn(ctx, from, to)
}

var (
	here        = geo.Coordinate{Lat: 43.5615, Lon: 1.4686}
	defaultView = mapview.Camera{Center: geo.Coordinate{Lat: 43.5600, Lon: 1.4700}, Zoom: 15}
	libraryPos  = geo.Coordinate{Lat: 43.5620, Lon: 1.4690}
)

func campusData(_ context.Context, kind campus.Kind) ([]*campus.POI, error) {
	switch kind {
	case campus.KindBuilding:
		return []*campus.POI{
			campus.NewBuilding(campus.Attributes{ID: "b1", Name: "Bibliothèque universitaire", Latitude: "43.5620", Longitude: "1.4690", Region: campus.RegionTagNorth}, campus.BuildingInfo{Code: "BU"}),
			campus.NewBuilding(campus.Attributes{ID: "b2", Name: "Amphi Concorde", Latitude: "43.5580", Longitude: "1.4700", Region: campus.RegionTagSouth}, campus.BuildingInfo{}),
			campus.NewBuilding(campus.Attributes{ID: "b3", Name: "Annexe", Latitude: "", Longitude: "1.4700", Region: campus.RegionTagSouth}, campus.BuildingInfo{}),
		}, nil
	case campus.KindRoom:
		return []*campus.POI{
			campus.NewRoom(campus.Attributes{ID: "r1", Name: "Salle 101", Latitude: "43.5581", Longitude: "1.4701"}, campus.RoomInfo{BuildingID: "b2", Floor: 1}),
		}, nil
	default:
		return []*campus.POI{
			campus.NewFacility(campus.Attributes{ID: "f1", Name: "Cafétéria", Latitude: "43.5600", Longitude: "1.4650", Category: "food"}, campus.FacilityInfo{}),
		}, nil
	}
}

type env struct {
	mr      *miniredis.Miniredis
	store   *cache.Store
	manager *session.Manager
	source  *mockSource
	router  *mockRouter
}

func newEnv(t *testing.T) *env {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	e := &env{
		mr:     mr,
		store:  cache.NewStore(client, 0),
		source: &mockSource{},
		router: &mockRouter{routeFn: func(_ context.Context, from, to geo.Coordinate) ([]geo.Coordinate, error) {
			return []geo.Coordinate{from, to}, nil
		}},
	}
	e.manager = session.NewManager(session.Deps{
		Source:        e.source,
		Router:        e.router,
		Cameras:       e.store,
		Destinations:  e.store,
		DefaultCamera: defaultView,
		Log:           slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	t.Cleanup(func() { e.manager.Close(context.Background()) })
	return e
}

func (e *env) create(t *testing.T, opts session.CreateOptions) *session.Session {
	t.Helper()
	s, err := e.manager.Create(context.Background(), opts)
	require.NoError(t, err)
	return s
}

func status(t *testing.T, s *session.Session) session.Status {
	t.Helper()
	st, err := s.Status(context.Background())
	require.NoError(t, err)
	return st
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}

func TestSession_LocationFlow(t *testing.T) {
	e := newEnv(t)
	s := e.create(t, session.CreateOptions{LocationGranted: true})
	ctx := context.Background()

	// Four placeable POIs across the three lists.
	eventually(t, func() bool { return status(t, s).Markers == 4 })

	require.NoError(t, s.PushPosition(here))
	eventually(t, func() bool { return status(t, s).Markers == 5 })
	assert.Equal(t, here, status(t, s).Camera.Center, "first fix centers the map")

	var snap listing.Snapshot
	eventually(t, func() bool {
		var err error
		snap, err = s.List(ctx, campus.KindBuilding, session.ListQuery{})
		require.NoError(t, err)
		return len(snap.Items) == 3 && snap.Items[0].Distance != ""
	})
	assert.Equal(t, listing.StatePopulated, snap.State)
	assert.Equal(t, geo.FormatDistance(geo.Distance(here, libraryPos)), snap.Items[0].Distance)
	assert.Empty(t, snap.Items[2].Distance, "POI without latitude has no distance")
}

func TestSession_ListQueryAndRegion(t *testing.T) {
	e := newEnv(t)
	s := e.create(t, session.CreateOptions{LocationGranted: true})
	ctx := context.Background()

	snap, err := s.List(ctx, campus.KindBuilding, session.ListQuery{Query: "bq"})
	require.NoError(t, err)
	assert.Equal(t, listing.StateFiltered, snap.State)
	require.Len(t, snap.Items, 1)
	assert.Equal(t, "b1", snap.Items[0].ID)
	eventually(t, func() bool { return status(t, s).Markers == 3 })

	snap, err = s.List(ctx, campus.KindBuilding, session.ListQuery{Region: filter.RegionSouth})
	require.NoError(t, err)
	assert.Equal(t, listing.StatePopulated, snap.State)
	require.Len(t, snap.Items, 2)
	assert.Equal(t, "b2", snap.Items[0].ID)

	snap, err = s.List(ctx, campus.KindFacility, session.ListQuery{Category: "FOOD"})
	require.NoError(t, err)
	require.Len(t, snap.Items, 1)
}

func TestSession_ListFetchFailureRaisesNotice(t *testing.T) {
	e := newEnv(t)
	s := e.create(t, session.CreateOptions{LocationGranted: true})
	ctx := context.Background()

	_, err := s.List(ctx, campus.KindRoom, session.ListQuery{})
	require.NoError(t, err)

	e.source.failing.Store(true)
	snap, err := s.List(ctx, campus.KindRoom, session.ListQuery{Reload: true})
	require.NoError(t, err)
	assert.Len(t, snap.Items, 1, "previous collection is kept")

	var notices []notice.Notice
	eventually(t, func() bool {
		notices = append(notices, s.Notices()...)
		return len(notices) > 0
	})
	assert.Equal(t, notice.LevelError, notices[0].Level)
}

func TestSession_DestinationRoundTrip(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	s := e.create(t, session.CreateOptions{LocationGranted: true})
	id := s.ID()

	require.NoError(t, s.PushPosition(here))
	eventually(t, func() bool { return status(t, s).Markers == 5 })

	require.NoError(t, s.SetDestination(ctx, libraryPos))
	eventually(t, func() bool { return status(t, s).Route == route.StateRouteLoaded })
	st := status(t, s)
	assert.Equal(t, 2, st.RoutePoints)
	require.NotNil(t, st.Destination)
	assert.Equal(t, libraryPos, *st.Destination)
	assert.True(t, e.mr.Exists("destination:"+id))

	require.NoError(t, s.SetCamera(ctx, cache.Camera{Lat: 43.5610, Lon: 1.4680, Zoom: 17, NightMode: true}))
	require.NoError(t, e.manager.End(ctx, id))

	restored := e.create(t, session.CreateOptions{ID: id, LocationGranted: true})
	st = status(t, restored)
	require.NotNil(t, st.Destination, "destination survives a restart")
	assert.Equal(t, libraryPos, *st.Destination)
	assert.Equal(t, mapview.Camera{Center: geo.Coordinate{Lat: 43.5610, Lon: 1.4680}, Zoom: 17, NightMode: true}, st.Camera)

	require.NoError(t, restored.ClearDestination(ctx))
	st = status(t, restored)
	assert.Nil(t, st.Destination)
	assert.Equal(t, route.StateIdle, st.Route)
	assert.Equal(t, 0, st.RoutePoints)
	assert.False(t, e.mr.Exists("destination:"+id))
}

func TestSession_SentinelDestinationRejected(t *testing.T) {
	e := newEnv(t)
	s := e.create(t, session.CreateOptions{LocationGranted: true})

	err := s.SetDestination(context.Background(), geo.Sentinel)
	assert.ErrorIs(t, err, route.ErrInvalidDestination)
}

func TestSession_PermissionDenied(t *testing.T) {
	e := newEnv(t)
	s := e.create(t, session.CreateOptions{LocationGranted: false})

	assert.ErrorIs(t, s.PushPosition(here), campus.ErrPermissionDenied)

	st := status(t, s)
	assert.False(t, st.LocationGranted)
	assert.Equal(t, defaultView, st.Camera)

	notices := s.Notices()
	require.NotEmpty(t, notices)
	assert.Equal(t, notice.LevelInfo, notices[0].Level)

	eventually(t, func() bool { return status(t, s).Markers == 4 })
}

func TestSession_HideRevealAndMap(t *testing.T) {
	e := newEnv(t)
	s := e.create(t, session.CreateOptions{LocationGranted: true})
	ctx := context.Background()
	eventually(t, func() bool { return status(t, s).Markers == 4 })

	fc, err := s.Map(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, fc.Features)

	require.NoError(t, s.HideMarkers(ctx))
	assert.True(t, status(t, s).MarkersHidden)
	fc, err = s.Map(ctx)
	require.NoError(t, err)
	assert.Empty(t, fc.Features)

	require.NoError(t, s.RevealMarkers(ctx))
	assert.False(t, status(t, s).MarkersHidden)
	fc, err = s.Map(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, fc.Features)
}

func TestSession_SetCameraRejectsInvalid(t *testing.T) {
	e := newEnv(t)
	s := e.create(t, session.CreateOptions{LocationGranted: true})

	err := s.SetCamera(context.Background(), cache.Camera{Lat: 100, Lon: 0, Zoom: 10})
	assert.ErrorIs(t, err, campus.ErrInvalidCoordinate)
}

func TestSession_DetachedOperations(t *testing.T) {
	e := newEnv(t)
	s := e.create(t, session.CreateOptions{LocationGranted: true})
	ctx := context.Background()
	require.NoError(t, e.manager.End(ctx, s.ID()))

	_, err := s.Status(ctx)
	assert.ErrorIs(t, err, session.ErrDetached)
	assert.ErrorIs(t, s.SetDestination(ctx, libraryPos), session.ErrDetached)
	_, err = s.List(ctx, campus.KindBuilding, session.ListQuery{Reload: true})
	assert.ErrorIs(t, err, session.ErrDetached)

	s.Detach(ctx)
	assert.True(t, e.mr.Exists("camera:"+s.ID()), "camera is persisted on detach")
}

func TestManager(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.manager.Create(ctx, session.CreateOptions{ID: "not-a-uuid"})
	assert.ErrorIs(t, err, session.ErrInvalidID)

	s := e.create(t, session.CreateOptions{})
	assert.Equal(t, 1, e.manager.Len())

	got, err := e.manager.Get(s.ID())
	require.NoError(t, err)
	assert.Same(t, s, got)

	again := e.create(t, session.CreateOptions{ID: s.ID()})
	assert.Same(t, s, again, "an attached id resumes the same session")

	_, err = e.manager.Get("missing")
	assert.ErrorIs(t, err, session.ErrNotFound)
	assert.ErrorIs(t, e.manager.End(ctx, "missing"), session.ErrNotFound)

	e.create(t, session.CreateOptions{})
	e.manager.Close(ctx)
	assert.Equal(t, 0, e.manager.Len())
}
