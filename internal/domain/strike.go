package domain

import "time"

// Method names a JSON-RPC method exposed by the strike backend.
type Method string

const (
	MethodStrikes           Method = "get_strikes"
	MethodStrikesGrid       Method = "get_strikes_grid"
	MethodGlobalStrikesGrid Method = "get_global_strikes_grid"
)

// IsGrid reports whether the method returns a grid payload.
func (m Method) IsGrid() bool {
	return m == MethodStrikesGrid || m == MethodGlobalStrikesGrid
}

// Cursor is the incremental fetch token ("next") returned by get_strikes.
// The zero value means no incremental fetch is possible.
type Cursor int64

// Valid reports whether the cursor can be used for an incremental fetch.
func (c Cursor) Valid() bool { return c != 0 }

// Strike is one detected lightning event.
type Strike struct {
	ID              string  `json:"id"`
	TimestampMillis int64   `json:"timestamp"`
	Longitude       float64 `json:"longitude"`
	Latitude        float64 `json:"latitude"`
	LateralError    float64 `json:"lateral_error"` // km, 0 in grid mode
	Amplitude       float64 `json:"amplitude"`     // kA, or multiplicity in grid mode
}

// Time returns the strike time in UTC.
func (s Strike) Time() time.Time {
	return time.UnixMilli(s.TimestampMillis).UTC()
}

// GridParameters converts integer cell indices into coordinates.
type GridParameters struct {
	LongitudeStart float64 // x0
	LatitudeStart  float64 // y1
	LongitudeDelta float64 // xd
	LatitudeDelta  float64 // yd
	LongitudeBins  int     // xc
	LatitudeBins   int     // yc
}

// CellCenter returns the coordinates of the center of cell (x, y).
func (g GridParameters) CellCenter(x, y int) (lon, lat float64) {
	lon = g.LongitudeStart + (float64(x)+0.5)*g.LongitudeDelta
	lat = g.LatitudeStart + (float64(y)+0.5)*g.LatitudeDelta
	return lon, lat
}

// Batch is the decoded result of a single RPC response.
type Batch struct {
	Method        Method
	ReferenceTime time.Time
	Strikes       []Strike

	// Next is only meaningful when HasNext is set; a response without a
	// numeric "next" leaves the caller's cursor untouched.
	Next    Cursor
	HasNext bool

	Grid *GridParameters

	// Skipped counts rows dropped because they did not match the row shape.
	Skipped int
}
