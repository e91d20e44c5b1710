package campus

import "github.com/neexbeast/campusnav/internal/geo"

// Annotate sets p.Distance to the formatted distance from ref and returns it.
// On a *CoordinateError p is left untouched; callers log and move on.
func Annotate(p *POI, ref geo.Coordinate) (string, error) {
	c, err := p.Coordinate()
	if err != nil {
		return "", err
	}
	p.Distance = geo.FormatDistance(geo.Distance(ref, c))
	return p.Distance, nil
}

// Icon identifiers understood by the map surface.
const (
	IconBuilding    = "ic_building"
	IconRoom        = "ic_room"
	IconFacility    = "ic_facility"
	IconUser        = "ic_user"
	IconDestination = "ic_destination"
	IconDefault     = "ic_marker"
)

var kindIcons = map[Kind]string{
	KindBuilding: IconBuilding,
	KindRoom:     IconRoom,
	KindFacility: IconFacility,
}

// IconFor returns the marker icon for a POI kind.
func IconFor(k Kind) string {
	if icon, ok := kindIcons[k]; ok {
		return icon
	}
	return IconDefault
}
