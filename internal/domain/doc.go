// Package domain models lightning strike data served by the Blitzortung-style
// JSON-RPC backend and decodes its wire payloads into [Strike] records.
//
// # Data Source
//
// The backend answers one HTTP POST per call. The request body is
//
//	{"id": 0, "method": "<name>", "params": [...]}
//
// and the response is either a bare JSON object or a single-element array
// wrapping it. Three methods are consumed:
//
//	get_strikes(intervalMinutes, cursorOrNegativeOffset)
//	get_strikes_grid(intervalMinutes, gridSize, offset, regionId, countThreshold)
//	get_global_strikes_grid(intervalMinutes, gridSize, offset, countThreshold)
//
// # Reference Time
//
// Every response carries a single reference time "t" in the packed format
//
//	"20250811T15:32:10"  →  2025-08-11 15:32:10 UTC
//
// All per-row times are offsets from it. Row times are never derived from the
// local wall clock, so clock skew between client and server and network
// latency do not shift strikes. An unparseable "t" discards the rows of that
// batch (see [DecodeError]) but keeps its cursor.
//
// # Point Mode
//
// get_strikes returns
//
//	{"t": "...", "s": [[secondsAgo, lon, lat, lateralError, amplitude], ...], "next": 1234}
//
// secondsAgo counts backwards: timestamp = t - secondsAgo.
// lateralError is in kilometers, amplitude in kiloamps.
// "next" is the incremental cursor; 0 or absent means none.
//
// # Grid Mode
//
// The grid methods return
//
//	{"t": "...", "x0": -25, "y1": 70, "xd": 0.1, "yd": -0.1, "xc": 500, "yc": 400,
//	 "r": [[cellX, cellY, multiplicity, deltaSeconds], ...]}
//
// Cell indices map to the cell center:
//
//	lon = x0 + (cellX + 0.5) * xd
//	lat = y1 + (cellY + 0.5) * yd
//
// deltaSeconds counts forwards: timestamp = t + deltaSeconds. The sign differs
// from point mode and is part of the wire contract. Grid rows have no lateral
// error; multiplicity becomes the amplitude (1 when not positive).
//
// # ID Generation
//
// Strike IDs are short SHA-256 hashes of mode|timestamp|coordinates, so the
// same event decodes to the same ID on every re-fetch and the window can
// de-duplicate by ID. Rows that hash identically inside one batch get an
// occurrence suffix. See [strikeID].
package domain
