package markers

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/neexbeast/campusnav/internal/campus"
	"github.com/neexbeast/campusnav/internal/geo"
	"github.com/neexbeast/campusnav/internal/mapview"
)

// UserRefreshMeters is how far the user must move before the user marker
// is re-placed.
const UserRefreshMeters = 1.0

// RouteID is the polyline id of the route.
const RouteID = "route"

// UserTitle is the title of the user marker.
const UserTitle = "You are here"

// Widget draws markers and polylines directly.
type Widget interface {
	AddMarker(m mapview.Marker)
	UpdateMarker(m mapview.Marker) bool
	RemoveMarker(id string) bool
	AddPolyline(id string, points []geo.Coordinate)
	RemovePolyline(id string)
}

// Clusterer groups POI markers. Membership is visibility.
type Clusterer interface {
	Add(m mapview.Marker)
	Update(m mapview.Marker) bool
	Remove(id string) bool
}

// ImageLoader fetches marker image overlays. It is called off the UI loop.
type ImageLoader interface {
	Load(ctx context.Context, ref string) ([]byte, error)
}

// Poster marshals work onto the UI loop.
type Poster interface {
	Post(fn func()) bool
}

// Options configures a Synchronizer. Images may be nil to skip overlays.
type Options struct {
	Widget    Widget
	Clusterer Clusterer
	Images    ImageLoader
	Loop      Poster
	Log       *slog.Logger
}

// Synchronizer owns the marker set of one map.
type Synchronizer struct {
	widget    Widget
	clusterer Clusterer
	images    ImageLoader
	loop      Poster
	log       *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	byKey map[string]*Record
	order []*Record

	user        *Record
	destination *Record
	route       []geo.Coordinate
	hidden      bool
	attached    bool
}

// New creates an empty, attached synchronizer.
func New(opts Options) *Synchronizer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Synchronizer{
		widget:    opts.Widget,
		clusterer: opts.Clusterer,
		images:    opts.Images,
		loop:      opts.Loop,
		log:       opts.Log,
		ctx:       ctx,
		cancel:    cancel,
		byKey:     make(map[string]*Record),
		attached:  true,
	}
}

// Place upserts a POI marker. A record with the same (position, title) is
// removed from the widget and the clusterer before the new one is added.
func (s *Synchronizer) Place(pl Placement) *Record {
	return s.place(pl, false)
}

func (s *Synchronizer) place(pl Placement, direct bool) *Record {
	var wasUser, wasDestination bool
	if old, ok := s.byKey[identity(pl.Position, pl.Title)]; ok {
		wasUser = old == s.user
		wasDestination = old == s.destination
		s.drop(old)
	}
	// The user marker always stays on the widget.
	direct = direct || wasUser

	r := &Record{
		ID:       uuid.NewString(),
		Position: pl.Position,
		Title:    pl.Title,
		Icon:     pl.Icon,
		ImageRef: pl.ImageRef,
		Kind:     pl.Kind,
		attached: true,
		direct:   direct,
	}
	if r.Icon == "" {
		r.Icon = campus.IconDefault
	}
	s.byKey[r.Key()] = r
	s.order = append(s.order, r)

	if wasUser {
		s.user = r
	}
	if wasDestination {
		s.destination = r
		r.prevIcon = r.Icon
		r.Icon = campus.IconDestination
	}

	switch {
	case direct:
		s.widget.AddMarker(r.marker())
	case !s.hidden || r == s.destination:
		s.clusterer.Add(r.marker())
		r.clustered = true
	}

	s.loadImage(r)
	return r
}

// drop removes r from every surface and from the owned set.
func (s *Synchronizer) drop(r *Record) {
	if r.direct {
		s.widget.RemoveMarker(r.ID)
	}
	if r.clustered {
		s.clusterer.Remove(r.ID)
	}
	r.clustered = false
	r.attached = false

	delete(s.byKey, r.Key())
	for i, v := range s.order {
		if v == r {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	if r == s.user {
		s.user = nil
	}
	if r == s.destination {
		s.destination = nil
	}
}

func (s *Synchronizer) redraw(r *Record) {
	if r.direct {
		s.widget.UpdateMarker(r.marker())
	}
	if r.clustered {
		s.clusterer.Update(r.marker())
	}
}

func (s *Synchronizer) loadImage(r *Record) {
	if s.images == nil || r.ImageRef == "" {
		return
	}

	ctx, ref := s.ctx, r.ImageRef
	go func() {
		img, err := s.images.Load(ctx, ref)
		s.loop.Post(func() {
			if !s.attached || !r.attached {
				return
			}
			if err != nil {
				s.log.Debug("marker image not loaded", "ref", ref, "err", err)
				return
			}
			r.image = img
			s.redraw(r)
		})
	}()
}

// SetUserMarker replaces the user marker with one at pos.
func (s *Synchronizer) SetUserMarker(pos geo.Coordinate) *Record {
	if s.user != nil {
		s.drop(s.user)
	}
	r := s.place(Placement{Position: pos, Title: UserTitle, Icon: campus.IconUser}, true)
	s.user = r
	return r
}

// MoveUser re-places the user marker when pos is more than
// UserRefreshMeters from it, or when there is none yet. It reports whether
// the marker was re-placed.
func (s *Synchronizer) MoveUser(pos geo.Coordinate) bool {
	if s.user != nil && !geo.Moved(s.user.Position, pos, UserRefreshMeters) {
		return false
	}
	s.SetUserMarker(pos)
	return true
}

// User returns the current user marker, or nil.
func (s *Synchronizer) User() *Record { return s.user }

// SetDestinationMarker marks the POI marker at pos as the destination,
// swapping its icon. Any previous destination is restored first. Without
// a marker at pos nothing is created and it reports false.
func (s *Synchronizer) SetDestinationMarker(pos geo.Coordinate) bool {
	want := positionKey(pos)
	var found *Record
	for _, r := range s.order {
		if r != s.user && positionKey(r.Position) == want {
			found = r
			break
		}
	}
	if found != nil && found == s.destination {
		return true
	}

	s.ClearDestination()
	if found == nil {
		return false
	}
	found.prevIcon = found.Icon
	found.Icon = campus.IconDestination
	s.destination = found
	if !found.clustered && !found.direct {
		s.clusterer.Add(found.marker())
		found.clustered = true
		return true
	}
	s.redraw(found)
	return true
}

// ClearDestination restores the destination marker's icon. Calling it
// without a destination is a no-op.
func (s *Synchronizer) ClearDestination() {
	r := s.destination
	if r == nil {
		return
	}
	s.destination = nil
	r.Icon = r.prevIcon
	r.prevIcon = ""

	if s.hidden && r.clustered {
		s.clusterer.Remove(r.ID)
		r.clustered = false
		return
	}
	s.redraw(r)
}

// Destination returns the current destination marker, or nil.
func (s *Synchronizer) Destination() *Record { return s.destination }

// Hide removes every POI marker except the destination from the clusterer.
func (s *Synchronizer) Hide() {
	s.hidden = true
	for _, r := range s.order {
		if r == s.user || r == s.destination || !r.clustered {
			continue
		}
		s.clusterer.Remove(r.ID)
		r.clustered = false
	}
}

// Reveal adds hidden POI markers back to the clusterer.
func (s *Synchronizer) Reveal() {
	s.hidden = false
	for _, r := range s.order {
		if r.direct || r.clustered {
			continue
		}
		s.clusterer.Add(r.marker())
		r.clustered = true
	}
}

// Hidden reports whether POI markers are hidden.
func (s *Synchronizer) Hidden() bool { return s.hidden }

// Sync reconciles the POI markers with placements. Records missing from
// placements are removed, except the user and destination markers; new
// placements are added; unchanged ones are left alone.
func (s *Synchronizer) Sync(placements []Placement) {
	want := make(map[string]Placement, len(placements))
	for _, pl := range placements {
		want[identity(pl.Position, pl.Title)] = pl
	}

	for _, r := range append([]*Record(nil), s.order...) {
		if r == s.user || r == s.destination {
			continue
		}
		pl, ok := want[r.Key()]
		if !ok || pl.Icon != r.Icon || pl.ImageRef != r.ImageRef {
			s.drop(r)
		}
	}

	for _, pl := range placements {
		k := identity(pl.Position, pl.Title)
		if r, ok := s.byKey[k]; ok && (r == s.user || r == s.destination || r.Icon == pl.Icon) {
			continue
		}
		s.Place(pl)
	}
}

// Records returns the owned records in placement order.
func (s *Synchronizer) Records() []*Record {
	return append([]*Record(nil), s.order...)
}

// Len returns the number of owned records.
func (s *Synchronizer) Len() int { return len(s.order) }

// DrawRoute replaces the route polyline with points. An empty slice only
// removes the old one.
func (s *Synchronizer) DrawRoute(points []geo.Coordinate) {
	s.widget.RemovePolyline(RouteID)
	s.route = nil
	if len(points) == 0 {
		return
	}
	s.route = append([]geo.Coordinate(nil), points...)
	s.widget.AddPolyline(RouteID, s.route)
}

// ClearRoute removes the route polyline.
func (s *Synchronizer) ClearRoute() {
	s.DrawRoute(nil)
}

// Route returns the drawn route, or nil.
func (s *Synchronizer) Route() []geo.Coordinate {
	return append([]geo.Coordinate(nil), s.route...)
}

// Detach stops pending image loads and ignores their results.
func (s *Synchronizer) Detach() {
	s.attached = false
	s.cancel()
}
