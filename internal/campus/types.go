// Package campus defines the points of interest shown by the navigation
// engine: buildings, rooms, and facilities, plus the errors shared across
// the list, map, and route components.
package campus

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/neexbeast/campusnav/internal/geo"
)

// Kind tags which variant a POI is.
type Kind int

const (
	KindBuilding Kind = iota + 1
	KindRoom
	KindFacility
)

// Kinds lists every variant in display order.
var Kinds = []Kind{KindBuilding, KindRoom, KindFacility}

func (k Kind) String() string {
	switch k {
	case KindBuilding:
		return "building"
	case KindRoom:
		return "room"
	case KindFacility:
		return "facility"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind accepts singular or plural variant names.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "building", "buildings":
		return KindBuilding, nil
	case "room", "rooms":
		return KindRoom, nil
	case "facility", "facilities":
		return KindFacility, nil
	default:
		return 0, fmt.Errorf("unknown poi kind %q", s)
	}
}

// Region tags as stored in the document store.
const (
	RegionTagNorth = "Campus nord"
	RegionTagSouth = "Campus sud"
)

// Attributes are the fields every POI variant carries. Latitude and
// Longitude keep the raw strings from the document store; use
// POI.Coordinate to parse them.
type Attributes struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Latitude    string   `json:"latitude"`
	Longitude   string   `json:"longitude"`
	Region      string   `json:"region,omitempty"`
	Category    string   `json:"category,omitempty"`
	Images      []string `json:"images,omitempty"`
}

// BuildingInfo holds building-only fields.
type BuildingInfo struct {
	Code   string `json:"code,omitempty"`
	Floors int    `json:"floors,omitempty"`
}

// RoomInfo holds room-only fields.
type RoomInfo struct {
	BuildingID string `json:"building_id,omitempty"`
	Floor      int    `json:"floor"`
	Capacity   int    `json:"capacity,omitempty"`
}

// FacilityInfo holds facility-only fields.
type FacilityInfo struct {
	OpeningHours string `json:"opening_hours,omitempty"`
	Phone        string `json:"phone,omitempty"`
}

// POI is a building, room, or facility. Exactly one of Building, Room, or
// Facility is set, matching Kind. Distance is filled in by Annotate.
type POI struct {
	Kind Kind `json:"-"`
	Attributes

	Building *BuildingInfo `json:"building,omitempty"`
	Room     *RoomInfo     `json:"room,omitempty"`
	Facility *FacilityInfo `json:"facility,omitempty"`

	Distance string `json:"distance,omitempty"`
}

// NewBuilding constructs a building POI.
func NewBuilding(attrs Attributes, info BuildingInfo) *POI {
	return &POI{Kind: KindBuilding, Attributes: attrs, Building: &info}
}

// NewRoom constructs a room POI.
func NewRoom(attrs Attributes, info RoomInfo) *POI {
	return &POI{Kind: KindRoom, Attributes: attrs, Room: &info}
}

// NewFacility constructs a facility POI.
func NewFacility(attrs Attributes, info FacilityInfo) *POI {
	return &POI{Kind: KindFacility, Attributes: attrs, Facility: &info}
}

// Coordinate parses the raw latitude/longitude. Empty, unparseable,
// non-finite, or out-of-range values return a *CoordinateError.
func (p *POI) Coordinate() (geo.Coordinate, error) {
	lat, err := parseDegrees(p.Latitude)
	if err != nil {
		return geo.Coordinate{}, &CoordinateError{ID: p.ID, Field: "latitude", Value: p.Latitude, Err: err}
	}
	lon, err := parseDegrees(p.Longitude)
	if err != nil {
		return geo.Coordinate{}, &CoordinateError{ID: p.ID, Field: "longitude", Value: p.Longitude, Err: err}
	}

	c := geo.Coordinate{Lat: lat, Lon: lon}
	if !c.Valid() {
		return geo.Coordinate{}, &CoordinateError{ID: p.ID, Field: "coordinate", Value: c.String(), Err: errOutOfRange}
	}
	return c, nil
}

// Placeable reports whether the POI can be put on the map.
func (p *POI) Placeable() bool {
	_, err := p.Coordinate()
	return err == nil
}

func parseDegrees(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, errEmpty
	}
	return strconv.ParseFloat(s, 64)
}
