package mapview

import (
	"fmt"
	"math"
	"sort"

	"github.com/golang/geo/s2"

	"github.com/neexbeast/campusnav/internal/geo"
)

// MaxClusterZoom is the zoom at and above which every marker is shown on
// its own.
const MaxClusterZoom = 18

// Cluster is a group of markers sharing an S2 cell at the current zoom.
type Cluster struct {
	ID        string
	Center    geo.Coordinate
	MarkerIDs []string
}

// Clusterer groups POI markers into S2 cells. Membership decides
// visibility: a marker removed from the clusterer is not drawn.
type Clusterer struct {
	members map[string]Marker
}

// NewClusterer creates an empty clusterer.
func NewClusterer() *Clusterer {
	return &Clusterer{members: make(map[string]Marker)}
}

// Add inserts or replaces m.
func (c *Clusterer) Add(m Marker) {
	c.members[m.ID] = m
}

// Update replaces an existing member. It reports false if id is absent.
func (c *Clusterer) Update(m Marker) bool {
	if _, ok := c.members[m.ID]; !ok {
		return false
	}
	c.members[m.ID] = m
	return true
}

// Remove drops the member with id. It reports whether one existed.
func (c *Clusterer) Remove(id string) bool {
	if _, ok := c.members[id]; !ok {
		return false
	}
	delete(c.members, id)
	return true
}

// Contains reports whether id is a member.
func (c *Clusterer) Contains(id string) bool {
	_, ok := c.members[id]
	return ok
}

// Len returns the number of members.
func (c *Clusterer) Len() int { return len(c.members) }

// Members returns every member sorted by ID.
func (c *Clusterer) Members() []Marker {
	out := make([]Marker, 0, len(c.members))
	for _, m := range c.members {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Level maps a camera zoom onto an S2 cell level.
func Level(zoom float64) int {
	level := int(math.Floor(zoom))
	if level < 0 {
		return 0
	}
	if level > s2.MaxLevel {
		return s2.MaxLevel
	}
	return level
}

func cellID(pos geo.Coordinate, level int) s2.CellID {
	return s2.CellIDFromLatLng(s2.LatLngFromDegrees(pos.Lat, pos.Lon)).Parent(level)
}

// Clusters groups members for zoom. Below MaxClusterZoom, markers in the
// same cell form one cluster centred on their mean position; at or above
// it every marker is a cluster of one. Output is sorted by cluster ID.
func (c *Clusterer) Clusters(zoom float64) []Cluster {
	members := c.Members()

	if zoom >= MaxClusterZoom {
		out := make([]Cluster, 0, len(members))
		for _, m := range members {
			out = append(out, Cluster{ID: m.ID, Center: m.Position, MarkerIDs: []string{m.ID}})
		}
		return out
	}

	level := Level(zoom)
	byCell := make(map[s2.CellID]*Cluster)
	var cells []s2.CellID
	for _, m := range members {
		id := cellID(m.Position, level)
		cl, ok := byCell[id]
		if !ok {
			cl = &Cluster{ID: fmt.Sprintf("s2_%d", uint64(id))}
			byCell[id] = cl
			cells = append(cells, id)
		}
		cl.MarkerIDs = append(cl.MarkerIDs, m.ID)
		cl.Center.Lat += m.Position.Lat
		cl.Center.Lon += m.Position.Lon
	}

	sort.Slice(cells, func(i, j int) bool { return cells[i] < cells[j] })
	out := make([]Cluster, 0, len(cells))
	for _, id := range cells {
		cl := byCell[id]
		n := float64(len(cl.MarkerIDs))
		cl.Center.Lat /= n
		cl.Center.Lon /= n
		out = append(out, *cl)
	}
	return out
}
