// Package mockrpc is a local stand-in for the strike backend. It generates
// random strikes around a few drifting storm cells and serves them over the
// same JSON-RPC contract as the real service.
package mockrpc

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/storm-lightning-service/internal/domain"
)

// history is how long generated strikes are kept for answering requests.
const history = 3 * time.Hour

type bounds struct {
	west, east, south, north float64
}

var regionBounds = map[domain.Region]bounds{
	domain.RegionGlobal:       {-180, 180, -90, 90},
	domain.RegionEurope:       {-15, 45, 30, 75},
	domain.RegionOceania:      {110, 180, -50, 0},
	domain.RegionNorthAmerica: {-170, -50, 10, 75},
	domain.RegionAsia:         {45, 150, 0, 60},
	domain.RegionSouthAmerica: {-90, -30, -60, 15},
	domain.RegionAfrica:       {-20, 55, -40, 37},
}

type mockStrike struct {
	seq          int64
	at           time.Time
	lon, lat     float64
	lateralError float64
	amplitude    float64
}

type cell struct {
	lon, lat float64
}

// Generator produces strikes at a steady rate as its clock advances.
// It is safe for concurrent use.
type Generator struct {
	clock         clockwork.Clock
	ratePerMinute float64

	mu      sync.Mutex
	rng     *rand.Rand
	cells   []cell
	strikes []mockStrike
	seq     int64
	last    time.Time
	carry   float64
}

// NewGenerator creates a generator with the given seed. Strikes are produced
// lazily whenever a request observes that the clock has moved.
func NewGenerator(clock clockwork.Clock, seed uint64, ratePerMinute float64, cells int) *Generator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	g := &Generator{
		clock:         clock,
		ratePerMinute: ratePerMinute,
		rng:           rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		last:          clock.Now().Truncate(time.Second).Add(-time.Hour),
	}
	for range cells {
		g.cells = append(g.cells, cell{
			lon: -160 + g.rng.Float64()*320,
			lat: -55 + g.rng.Float64()*120,
		})
	}
	return g
}

// PointPayload answers get_strikes. A positive cursor returns only strikes
// generated after it; zero or a negative offset returns the whole interval.
func (g *Generator) PointPayload(intervalMinutes int, cursorOrOffset int64) map[string]any {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.advance()
	ref := now
	if cursorOrOffset < 0 {
		ref = now.Add(time.Duration(cursorOrOffset) * time.Duration(intervalMinutes) * time.Minute)
	}
	from := ref.Add(-time.Duration(intervalMinutes) * time.Minute)

	rows := make([][]float64, 0)
	for _, s := range g.strikes {
		if cursorOrOffset > 0 && s.seq <= cursorOrOffset {
			continue
		}
		if s.at.Before(from) || s.at.After(ref) {
			continue
		}
		rows = append(rows, []float64{
			round(ref.Sub(s.at).Seconds(), 3),
			round(s.lon, 5),
			round(s.lat, 5),
			round(s.lateralError, 2),
			round(s.amplitude, 1),
		})
	}

	return map[string]any{
		"t":    ref.UTC().Format(domain.ReferenceTimeLayout),
		"s":    rows,
		"next": g.seq,
	}
}

// GridPayload answers both grid methods. gridSize is the cell edge in meters;
// only cells with more than countThreshold strikes are reported.
func (g *Generator) GridPayload(region domain.Region, intervalMinutes, gridSize, offset, countThreshold int) map[string]any {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.advance()
	ref := now.Add(time.Duration(offset) * time.Duration(intervalMinutes) * time.Minute)
	from := ref.Add(-time.Duration(intervalMinutes) * time.Minute)

	b, ok := regionBounds[region]
	if !ok {
		b = regionBounds[domain.RegionGlobal]
	}
	delta := math.Max(float64(gridSize)/111320, 0.01)
	xc := int(math.Ceil((b.east - b.west) / delta))
	yc := int(math.Ceil((b.north - b.south) / delta))

	type bin struct {
		count  int
		latest float64
	}
	bins := make(map[[2]int]*bin)
	var order [][2]int
	for _, s := range g.strikes {
		if s.at.Before(from) || s.at.After(ref) {
			continue
		}
		if s.lon < b.west || s.lon >= b.east || s.lat <= b.south || s.lat > b.north {
			continue
		}
		key := [2]int{int((s.lon - b.west) / delta), int((b.north - s.lat) / delta)}
		offsetSeconds := -ref.Sub(s.at).Seconds()
		bn, ok := bins[key]
		if !ok {
			bn = &bin{latest: offsetSeconds}
			bins[key] = bn
			order = append(order, key)
		}
		bn.count++
		bn.latest = math.Max(bn.latest, offsetSeconds)
	}

	rows := make([][]float64, 0, len(order))
	for _, key := range order {
		bn := bins[key]
		if bn.count <= countThreshold {
			continue
		}
		rows = append(rows, []float64{float64(key[0]), float64(key[1]), float64(bn.count), math.Round(bn.latest)})
	}

	return map[string]any{
		"t":  ref.UTC().Format(domain.ReferenceTimeLayout),
		"x0": b.west,
		"y1": b.north,
		"xd": delta,
		"yd": -delta,
		"xc": xc,
		"yc": yc,
		"r":  rows,
	}
}

// Len returns the number of strikes currently held.
func (g *Generator) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.advance()
	return len(g.strikes)
}

// advance generates strikes for the time elapsed since the last call and
// drops those older than the history horizon. Callers hold g.mu.
func (g *Generator) advance() time.Time {
	// Reference times go out with second precision.
	now := g.clock.Now().Truncate(time.Second)
	elapsed := now.Sub(g.last)
	if elapsed <= 0 {
		return now
	}

	want := g.ratePerMinute*elapsed.Minutes() + g.carry
	n := int(want)
	g.carry = want - float64(n)

	for i := 0; i < n && len(g.cells) > 0; i++ {
		c := &g.cells[g.rng.IntN(len(g.cells))]
		c.lon = wrapLon(c.lon + g.rng.NormFloat64()*0.02)
		c.lat = clampLat(c.lat + g.rng.NormFloat64()*0.02)

		g.seq++
		g.strikes = append(g.strikes, mockStrike{
			seq:          g.seq,
			at:           g.last.Add(time.Duration(g.rng.Int64N(int64(elapsed)) + 1)).Truncate(time.Millisecond),
			lon:          wrapLon(c.lon + g.rng.NormFloat64()*0.5),
			lat:          clampLat(c.lat + g.rng.NormFloat64()*0.5),
			lateralError: 0.1 + g.rng.Float64()*2,
			amplitude:    (g.rng.Float64()*2 - 1) * 80,
		})
	}
	g.last = now

	cutoff := now.Add(-history)
	keep := g.strikes[:0]
	for _, s := range g.strikes {
		if !s.at.Before(cutoff) {
			keep = append(keep, s)
		}
	}
	g.strikes = keep
	return now
}

func wrapLon(lon float64) float64 {
	for lon >= 180 {
		lon -= 360
	}
	for lon < -180 {
		lon += 360
	}
	return lon
}

func clampLat(lat float64) float64 {
	return math.Max(-89.9, math.Min(89.9, lat))
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
