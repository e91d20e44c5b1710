// Package markers keeps a session's map markers in step with its POI lists:
// one record per (position, title), a single user marker, an optional
// destination marker that borrows a POI marker, and the route polyline.
// A Synchronizer belongs to one UI loop and must only be called from it.
package markers

import (
	"fmt"
	"math"
	"strconv"

	"github.com/neexbeast/campusnav/internal/campus"
	"github.com/neexbeast/campusnav/internal/geo"
	"github.com/neexbeast/campusnav/internal/mapview"
)

// keyPrecision is the number of decimal degrees positions are normalised
// to, about 11 cm.
const keyPrecision = 6

func roundTo(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}

func positionKey(pos geo.Coordinate) string {
	lat := strconv.FormatFloat(roundTo(pos.Lat, keyPrecision), 'f', keyPrecision, 64)
	lon := strconv.FormatFloat(roundTo(pos.Lon, keyPrecision), 'f', keyPrecision, 64)
	return lat + "|" + lon
}

func identity(pos geo.Coordinate, title string) string {
	return fmt.Sprintf("%s|%s", title, positionKey(pos))
}

// Placement describes a marker to place.
type Placement struct {
	Position geo.Coordinate
	Title    string
	Icon     string
	ImageRef string
	Kind     campus.Kind
}

// PlacementFor builds the placement of a POI. It reports false when the POI
// has no usable coordinates.
func PlacementFor(p *campus.POI) (Placement, bool) {
	pos, err := p.Coordinate()
	if err != nil {
		return Placement{}, false
	}
	pl := Placement{
		Position: pos,
		Title:    p.Name,
		Icon:     campus.IconFor(p.Kind),
		Kind:     p.Kind,
	}
	if len(p.Images) > 0 {
		pl.ImageRef = p.Images[0]
	}
	return pl, true
}

// Record is a marker owned by the Synchronizer.
type Record struct {
	ID       string
	Position geo.Coordinate
	Title    string
	Icon     string
	ImageRef string
	Kind     campus.Kind

	image     []byte
	prevIcon  string
	attached  bool
	direct    bool
	clustered bool
}

// Key returns the (position, title) identity of r.
func (r *Record) Key() string {
	return identity(r.Position, r.Title)
}

// Attached reports whether r is still owned by its synchronizer.
func (r *Record) Attached() bool { return r.attached }

// HasImage reports whether the image overlay has been applied.
func (r *Record) HasImage() bool { return len(r.image) > 0 }

func (r *Record) marker() mapview.Marker {
	return mapview.Marker{
		ID:       r.ID,
		Position: r.Position,
		Title:    r.Title,
		Icon:     r.Icon,
		Image:    r.image,
	}
}
