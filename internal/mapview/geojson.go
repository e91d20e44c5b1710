package mapview

import (
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/neexbeast/campusnav/internal/geo"
)

// Feature types written to the "type" property.
const (
	FeatureMarker   = "marker"
	FeatureCluster  = "cluster"
	FeaturePolyline = "polyline"
)

func point(c geo.Coordinate) orb.Point {
	return orb.Point{c.Lon, c.Lat}
}

func markerFeature(m Marker) *geojson.Feature {
	f := geojson.NewFeature(point(m.Position))
	f.ID = m.ID
	f.Properties["type"] = FeatureMarker
	f.Properties["title"] = m.Title
	f.Properties["icon"] = m.Icon
	f.Properties["has_image"] = len(m.Image) > 0
	return f
}

// GeoJSON renders the surface and the visible clusters of c at the current
// camera zoom. Direct markers come first, then clusters and singletons,
// then polylines sorted by ID. The camera goes in the collection's
// foreign members.
func (s *Surface) GeoJSON(c *Clusterer) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	for _, m := range s.Markers() {
		fc.Append(markerFeature(m))
	}

	if c != nil {
		for _, cl := range c.Clusters(s.camera.Zoom) {
			if len(cl.MarkerIDs) == 1 {
				fc.Append(markerFeature(c.members[cl.MarkerIDs[0]]))
				continue
			}
			f := geojson.NewFeature(point(cl.Center))
			f.ID = cl.ID
			f.Properties["type"] = FeatureCluster
			f.Properties["count"] = len(cl.MarkerIDs)
			f.Properties["markers"] = cl.MarkerIDs
			fc.Append(f)
		}
	}

	ids := make([]string, 0, len(s.polylines))
	for id := range s.polylines {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		pts := s.polylines[id]
		ls := make(orb.LineString, 0, len(pts))
		for _, p := range pts {
			ls = append(ls, point(p))
		}
		f := geojson.NewFeature(ls)
		f.ID = id
		f.Properties["type"] = FeaturePolyline
		fc.Append(f)
	}

	fc.ExtraMembers = geojson.Properties{
		"camera": s.camera,
	}
	return fc
}
