// Package filter narrows POI collections by campus region, category, and
// free-text name search. Every function here is stable: output order
// follows input order.
package filter

import (
	"fmt"
	"strings"

	"github.com/neexbeast/campusnav/internal/campus"
)

// Region selects a campus half. The zero value selects everything.
type Region string

const (
	RegionAll   Region = ""
	RegionNorth Region = "nord"
	RegionSouth Region = "sud"
)

// ParseRegion maps the view-filter vocabulary onto a Region.
func ParseRegion(s string) (Region, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return RegionAll, nil
	case "north", "nord":
		return RegionNorth, nil
	case "south", "sud":
		return RegionSouth, nil
	default:
		return RegionAll, fmt.Errorf("unknown region %q (must be all, north, or south)", s)
	}
}

// Filter keeps the POIs matching region and category.
//
// RegionNorth and RegionSouth compare the region tag exactly and
// case-sensitively against "Campus nord" / "Campus sud"; category is not
// consulted. RegionAll compares category case-insensitively, where an
// empty category selector passes every POI and a POI without a category
// never matches a non-empty selector.
func Filter(pois []*campus.POI, region Region, category string) []*campus.POI {
	out := make([]*campus.POI, 0, len(pois))
	for _, p := range pois {
		if keep(p, region, category) {
			out = append(out, p)
		}
	}
	return out
}

func keep(p *campus.POI, region Region, category string) bool {
	switch region {
	case RegionSouth:
		return p.Region == campus.RegionTagSouth
	case RegionNorth:
		return p.Region == campus.RegionTagNorth
	case RegionAll:
		if category == "" {
			return true
		}
		if p.Category == "" {
			return false
		}
		return strings.EqualFold(p.Category, category)
	default:
		return false
	}
}
