package domain

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ReferenceTimeLayout is the packed UTC layout of the "t" field.
const ReferenceTimeLayout = "20060102T15:04:05"

// pointPayload is the get_strikes response object. Fields stay raw so each one
// can be validated on its own instead of failing the whole object.
type pointPayload struct {
	T    json.RawMessage `json:"t"`
	S    json.RawMessage `json:"s"`
	Next json.RawMessage `json:"next"`
}

// gridPayload is the response object of both grid methods.
type gridPayload struct {
	T  json.RawMessage `json:"t"`
	X0 json.RawMessage `json:"x0"`
	Y1 json.RawMessage `json:"y1"`
	XD json.RawMessage `json:"xd"`
	YD json.RawMessage `json:"yd"`
	XC json.RawMessage `json:"xc"`
	YC json.RawMessage `json:"yc"`
	R  json.RawMessage `json:"r"`
}

// Decode converts an unwrapped RPC response object into a Batch according to
// the shape of the called method. Payloads that do not match the shape are
// rejected with *MalformedPayloadError.
//
// A *DecodeError is soft: the returned Batch is still valid (its cursor is
// populated) but carries no strikes.
func Decode(method Method, raw json.RawMessage) (Batch, error) {
	if !isObject(raw) {
		return Batch{}, &MalformedPayloadError{Method: method, Reason: "not a JSON object"}
	}
	switch method {
	case MethodStrikes:
		return DecodePoints(raw)
	case MethodStrikesGrid, MethodGlobalStrikesGrid:
		return DecodeGrid(method, raw)
	default:
		return Batch{}, fmt.Errorf("decode: unsupported method %q", method)
	}
}

// DecodePoints decodes a get_strikes response.
func DecodePoints(raw json.RawMessage) (Batch, error) {
	var p pointPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Batch{}, &MalformedPayloadError{Method: MethodStrikes, Reason: "decode object", Err: err}
	}

	batch := Batch{Method: MethodStrikes}
	batch.Next, batch.HasNext = decodeCursor(p.Next)

	ref, err := parseReferenceTime(p.T)
	if err != nil {
		return batch, &DecodeError{Method: MethodStrikes, ReferenceTime: rawString(p.T), Err: err}
	}
	batch.ReferenceTime = ref

	rows := decodeRows(p.S)
	batch.Strikes = make([]Strike, 0, len(rows))
	seen := make(map[string]int, len(rows))
	for _, row := range rows {
		vals, ok := numbers(row, 5)
		if !ok {
			batch.Skipped++
			continue
		}
		secondsAgo, lon, lat, lateralError, amplitude := vals[0], vals[1], vals[2], vals[3], vals[4]
		ts := ref.UnixMilli() - int64(math.Round(secondsAgo*1000))

		key := fmt.Sprintf("%s|%d|%.5f|%.5f", MethodStrikes, ts, lon, lat)
		batch.Strikes = append(batch.Strikes, Strike{
			ID:              strikeID("strike", key, seen[key]),
			TimestampMillis: ts,
			Longitude:       lon,
			Latitude:        lat,
			LateralError:    lateralError,
			Amplitude:       amplitude,
		})
		seen[key]++
	}
	return batch, nil
}

// DecodeGrid decodes a get_strikes_grid or get_global_strikes_grid response.
func DecodeGrid(method Method, raw json.RawMessage) (Batch, error) {
	var p gridPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Batch{}, &MalformedPayloadError{Method: method, Reason: "decode object", Err: err}
	}

	grid, err := decodeGridParameters(method, p)
	if err != nil {
		return Batch{}, err
	}

	batch := Batch{Method: method, Grid: &grid}

	ref, err := parseReferenceTime(p.T)
	if err != nil {
		return batch, &DecodeError{Method: method, ReferenceTime: rawString(p.T), Err: err}
	}
	batch.ReferenceTime = ref

	rows := decodeRows(p.R)
	batch.Strikes = make([]Strike, 0, len(rows))
	seen := make(map[string]int, len(rows))
	for _, row := range rows {
		vals, ok := numbers(row, 2)
		if !ok {
			batch.Skipped++
			continue
		}
		x, y := int(vals[0]), int(vals[1])
		multiplicity := 1.0
		if len(vals) > 2 && vals[2] > 0 {
			multiplicity = vals[2]
		}
		var deltaSeconds float64
		if len(vals) > 3 {
			deltaSeconds = vals[3]
		}

		lon, lat := grid.CellCenter(x, y)
		ts := ref.UnixMilli() + int64(math.Round(deltaSeconds*1000))

		key := fmt.Sprintf("%s|%d|%.5f|%.5f", method, ts, lon, lat)
		batch.Strikes = append(batch.Strikes, Strike{
			ID:              strikeID("cell", key, seen[key]),
			TimestampMillis: ts,
			Longitude:       lon,
			Latitude:        lat,
			Amplitude:       multiplicity,
		})
		seen[key]++
	}
	return batch, nil
}

func decodeGridParameters(method Method, p gridPayload) (GridParameters, error) {
	var grid GridParameters
	var ok bool

	// The global grid is anchored at the origin when the backend omits it.
	originOptional := method == MethodGlobalStrikesGrid

	if grid.LongitudeStart, ok = number(p.X0); !ok && !(originOptional && isAbsent(p.X0)) {
		return grid, &MalformedPayloadError{Method: method, Reason: "x0 is not a number"}
	}
	if grid.LatitudeStart, ok = number(p.Y1); !ok && !(originOptional && isAbsent(p.Y1)) {
		return grid, &MalformedPayloadError{Method: method, Reason: "y1 is not a number"}
	}
	if grid.LongitudeDelta, ok = number(p.XD); !ok {
		return grid, &MalformedPayloadError{Method: method, Reason: "xd is not a number"}
	}
	if grid.LatitudeDelta, ok = number(p.YD); !ok {
		return grid, &MalformedPayloadError{Method: method, Reason: "yd is not a number"}
	}
	if xc, ok := number(p.XC); ok {
		grid.LongitudeBins = int(xc)
	}
	if yc, ok := number(p.YC); ok {
		grid.LatitudeBins = int(yc)
	}
	return grid, nil
}

// ParseReferenceTime parses a packed "20060102T15:04:05" UTC timestamp.
// Fractional seconds after the seconds field are accepted.
func ParseReferenceTime(s string) (time.Time, error) {
	return time.ParseInLocation(ReferenceTimeLayout, strings.TrimSpace(s), time.UTC)
}

func parseReferenceTime(raw json.RawMessage) (time.Time, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || isAbsent(raw) {
		return time.Time{}, errors.New("reference time is not a string")
	}
	return ParseReferenceTime(s)
}

// decodeCursor returns the numeric "next" value, if any.
func decodeCursor(raw json.RawMessage) (Cursor, bool) {
	v, ok := number(raw)
	if !ok || v != math.Trunc(v) {
		return 0, false
	}
	return Cursor(int64(v)), true
}

// decodeRows returns the elements of a JSON array, or nil when raw is not one.
func decodeRows(raw json.RawMessage) []json.RawMessage {
	var rows []json.RawMessage
	if isAbsent(raw) || json.Unmarshal(raw, &rows) != nil {
		return nil
	}
	return rows
}

// numbers decodes a row as an array of at least minLen numbers. Elements past
// the first non-number are dropped.
func numbers(row json.RawMessage, minLen int) ([]float64, bool) {
	var elems []any
	if err := json.Unmarshal(row, &elems); err != nil {
		return nil, false
	}
	vals := make([]float64, 0, len(elems))
	for _, e := range elems {
		f, ok := e.(float64)
		if !ok {
			break
		}
		vals = append(vals, f)
	}
	return vals, len(vals) >= minLen
}

func number(raw json.RawMessage) (float64, bool) {
	if isAbsent(raw) {
		return 0, false
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false
	}
	return v, true
}

func isAbsent(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}

func rawString(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return string(raw)
}

// strikeID produces a deterministic ID from the strike's key fields. The same
// underlying event decodes to the same ID on every re-fetch; occurrence only
// separates identical rows inside one batch.
func strikeID(prefix, key string, occurrence int) string {
	hash := sha256.Sum256([]byte(key))
	short := hex.EncodeToString(hash[:8])
	if occurrence > 0 {
		return fmt.Sprintf("%s-%s-%d", prefix, short, occurrence)
	}
	return prefix + "-" + short
}
