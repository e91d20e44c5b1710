// Package mapview is the headless map widget: it holds the markers,
// polylines, and camera a client renders, plus an S2-cell clusterer that
// groups POI markers by zoom level. Neither type is safe for concurrent
// use; drive them from the session's UI loop.
package mapview

import (
	"github.com/neexbeast/campusnav/internal/geo"
)

// Marker is a pin as the surface draws it.
type Marker struct {
	ID       string         `json:"id"`
	Position geo.Coordinate `json:"position"`
	Title    string         `json:"title"`
	Icon     string         `json:"icon"`
	Image    []byte         `json:"-"`
}

// Camera is the visible viewport.
type Camera struct {
	Center    geo.Coordinate `json:"center"`
	Zoom      float64        `json:"zoom"`
	NightMode bool           `json:"night_mode"`
}

// Surface holds everything drawn directly on the map.
type Surface struct {
	markers   map[string]Marker
	order     []string
	polylines map[string][]geo.Coordinate
	camera    Camera
}

// NewSurface creates an empty surface centred on camera.
func NewSurface(camera Camera) *Surface {
	return &Surface{
		markers:   make(map[string]Marker),
		polylines: make(map[string][]geo.Coordinate),
		camera:    camera,
	}
}

// AddMarker draws m, replacing any marker with the same ID.
func (s *Surface) AddMarker(m Marker) {
	if _, ok := s.markers[m.ID]; !ok {
		s.order = append(s.order, m.ID)
	}
	s.markers[m.ID] = m
}

// UpdateMarker redraws an existing marker. It reports false if m.ID is
// not on the surface.
func (s *Surface) UpdateMarker(m Marker) bool {
	if _, ok := s.markers[m.ID]; !ok {
		return false
	}
	s.markers[m.ID] = m
	return true
}

// RemoveMarker erases the marker with id. It reports whether one existed.
func (s *Surface) RemoveMarker(id string) bool {
	if _, ok := s.markers[id]; !ok {
		return false
	}
	delete(s.markers, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// Markers returns the drawn markers in insertion order.
func (s *Surface) Markers() []Marker {
	out := make([]Marker, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.markers[id])
	}
	return out
}

// AddPolyline draws a line under id. Points are copied.
func (s *Surface) AddPolyline(id string, points []geo.Coordinate) {
	s.polylines[id] = append([]geo.Coordinate(nil), points...)
}

// RemovePolyline erases the line under id.
func (s *Surface) RemovePolyline(id string) {
	delete(s.polylines, id)
}

// Polyline returns the line under id, or nil.
func (s *Surface) Polyline(id string) []geo.Coordinate {
	pts, ok := s.polylines[id]
	if !ok {
		return nil
	}
	return append([]geo.Coordinate(nil), pts...)
}

// Polylines returns how many lines are drawn.
func (s *Surface) Polylines() int {
	return len(s.polylines)
}

// MoveCamera centres the viewport. A non-positive zoom keeps the current one.
func (s *Surface) MoveCamera(center geo.Coordinate, zoom float64) {
	s.camera.Center = center
	if zoom > 0 {
		s.camera.Zoom = zoom
	}
}

// SetNightMode switches the map style.
func (s *Surface) SetNightMode(on bool) {
	s.camera.NightMode = on
}

// Camera returns the current viewport.
func (s *Surface) Camera() Camera {
	return s.camera
}
