package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Region identifies a continental strike grid on the backend.
type Region int

const (
	RegionGlobal       Region = 0
	RegionEurope       Region = 1
	RegionOceania      Region = 2
	RegionNorthAmerica Region = 3
	RegionAsia         Region = 4
	RegionSouthAmerica Region = 5
	RegionAfrica       Region = 6
)

// Regions lists every continental region in request order.
var Regions = []Region{
	RegionEurope,
	RegionOceania,
	RegionNorthAmerica,
	RegionAsia,
	RegionSouthAmerica,
	RegionAfrica,
}

func (r Region) String() string {
	switch r {
	case RegionGlobal:
		return "global"
	case RegionEurope:
		return "europe"
	case RegionOceania:
		return "oceania"
	case RegionNorthAmerica:
		return "north_america"
	case RegionAsia:
		return "asia"
	case RegionSouthAmerica:
		return "south_america"
	case RegionAfrica:
		return "africa"
	default:
		return "region_" + strconv.Itoa(int(r))
	}
}

// Valid reports whether r is the global grid or a known continent.
func (r Region) Valid() bool {
	return r >= RegionGlobal && r <= RegionAfrica
}

// ParseRegions parses a comma-separated list of region IDs, e.g. "1,3,5".
// Duplicates are dropped; the global region is not allowed in a list.
func ParseRegions(s string) ([]Region, error) {
	seen := make(map[Region]bool)
	var out []Region
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("parse region %q: %w", part, err)
		}
		r := Region(n)
		if !r.Valid() || r == RegionGlobal {
			return nil, fmt.Errorf("unknown region %d", n)
		}
		if seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no regions in %q", s)
	}
	return out, nil
}
