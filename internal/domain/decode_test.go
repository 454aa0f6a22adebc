package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testReferenceTime = "20250811T15:32:10"

var testReference = time.Date(2025, time.August, 11, 15, 32, 10, 0, time.UTC)

func TestDecodePoints(t *testing.T) {
	t.Run("offsets rows backwards from the reference time", func(t *testing.T) {
		raw := json.RawMessage(`{"t":"` + testReferenceTime + `","s":[[12,10.5,51.25,0.4,-18.2],[0,11,52,1.2,7]],"next":4711}`)

		batch, err := DecodePoints(raw)
		require.NoError(t, err)

		require.Len(t, batch.Strikes, 2)
		assert.Equal(t, testReference, batch.ReferenceTime)
		assert.Equal(t, testReference.UnixMilli()-12*1000, batch.Strikes[0].TimestampMillis)
		assert.Equal(t, testReference.UnixMilli(), batch.Strikes[1].TimestampMillis)

		s := batch.Strikes[0]
		assert.Equal(t, 10.5, s.Longitude)
		assert.Equal(t, 51.25, s.Latitude)
		assert.Equal(t, 0.4, s.LateralError)
		assert.Equal(t, -18.2, s.Amplitude)
		assert.True(t, strings.HasPrefix(s.ID, "strike-"))

		assert.True(t, batch.HasNext)
		assert.Equal(t, Cursor(4711), batch.Next)
	})

	t.Run("every row uses the single reference time", func(t *testing.T) {
		raw := json.RawMessage(`{"t":"` + testReferenceTime + `","s":[[1,0,0,0,0],[2,0,0,0,0],[3600,0,0,0,0]]}`)

		batch, err := DecodePoints(raw)
		require.NoError(t, err)
		for i, secondsAgo := range []int64{1, 2, 3600} {
			assert.Equal(t, testReference.UnixMilli()-secondsAgo*1000, batch.Strikes[i].TimestampMillis)
		}
	})

	t.Run("malformed reference time yields empty list", func(t *testing.T) {
		raw := json.RawMessage(`{"t":"not-a-date","s":[[1,2,3,4,5]],"next":12}`)

		batch, err := DecodePoints(raw)
		require.Error(t, err)

		var decodeErr *DecodeError
		require.ErrorAs(t, err, &decodeErr)
		assert.Equal(t, "not-a-date", decodeErr.ReferenceTime)
		assert.Empty(t, batch.Strikes)
		assert.True(t, batch.HasNext, "cursor survives a bad reference time")
		assert.Equal(t, Cursor(12), batch.Next)
	})

	t.Run("missing reference time", func(t *testing.T) {
		batch, err := DecodePoints(json.RawMessage(`{"s":[[1,2,3,4,5]]}`))
		var decodeErr *DecodeError
		require.ErrorAs(t, err, &decodeErr)
		assert.Empty(t, batch.Strikes)
	})

	t.Run("non-array s yields empty list", func(t *testing.T) {
		batch, err := DecodePoints(json.RawMessage(`{"t":"` + testReferenceTime + `","s":"nope"}`))
		require.NoError(t, err)
		assert.Empty(t, batch.Strikes)
		assert.False(t, batch.HasNext)
	})

	t.Run("short and non-numeric rows are skipped", func(t *testing.T) {
		raw := json.RawMessage(`{"t":"` + testReferenceTime + `","s":[[1,2,3],[1,"x",3,4,5],5,[1,2,3,4,5]]}`)

		batch, err := DecodePoints(raw)
		require.NoError(t, err)
		assert.Len(t, batch.Strikes, 1)
		assert.Equal(t, 3, batch.Skipped)
	})

	t.Run("non-numeric next is ignored", func(t *testing.T) {
		batch, err := DecodePoints(json.RawMessage(`{"t":"` + testReferenceTime + `","s":[],"next":"abc"}`))
		require.NoError(t, err)
		assert.False(t, batch.HasNext)
	})

	t.Run("numeric zero next is reported", func(t *testing.T) {
		batch, err := DecodePoints(json.RawMessage(`{"t":"` + testReferenceTime + `","s":[],"next":0}`))
		require.NoError(t, err)
		assert.True(t, batch.HasNext)
		assert.False(t, batch.Next.Valid())
	})
}

func TestDecodePoints_StableIDs(t *testing.T) {
	first := json.RawMessage(`{"t":"` + testReferenceTime + `","s":[[10,1.5,2.5,0,3]]}`)
	// Same event reported 5s later, at a different row index.
	second := json.RawMessage(`{"t":"20250811T15:32:15","s":[[0,9,9,0,1],[15,1.5,2.5,0,3]]}`)

	a, err := DecodePoints(first)
	require.NoError(t, err)
	b, err := DecodePoints(second)
	require.NoError(t, err)

	assert.Equal(t, a.Strikes[0].ID, b.Strikes[1].ID)
	assert.NotEqual(t, b.Strikes[0].ID, b.Strikes[1].ID)
}

func TestDecodePoints_DuplicateRowsInBatch(t *testing.T) {
	raw := json.RawMessage(`{"t":"` + testReferenceTime + `","s":[[1,2,3,0,5],[1,2,3,0,5]]}`)

	batch, err := DecodePoints(raw)
	require.NoError(t, err)
	require.Len(t, batch.Strikes, 2)
	assert.NotEqual(t, batch.Strikes[0].ID, batch.Strikes[1].ID)
	assert.Equal(t, batch.Strikes[0].ID+"-1", batch.Strikes[1].ID)
}

func TestDecodeGrid(t *testing.T) {
	t.Run("cell centers and forward offsets", func(t *testing.T) {
		raw := json.RawMessage(`{"t":"` + testReferenceTime + `","x0":0,"y1":60,"xd":10,"yd":-0.5,"xc":36,"yc":240,"r":[[3,4,7,-30],[0,0,0,15]]}`)

		batch, err := DecodeGrid(MethodStrikesGrid, raw)
		require.NoError(t, err)
		require.Len(t, batch.Strikes, 2)

		s := batch.Strikes[0]
		assert.InDelta(t, 35.0, s.Longitude, 1e-9)
		assert.InDelta(t, 57.75, s.Latitude, 1e-9)
		assert.Equal(t, testReference.UnixMilli()-30*1000, s.TimestampMillis)
		assert.Equal(t, 7.0, s.Amplitude)
		assert.Zero(t, s.LateralError)
		assert.True(t, strings.HasPrefix(s.ID, "cell-"))

		// Positive delta moves forward from the reference, unlike point mode.
		assert.Equal(t, testReference.UnixMilli()+15*1000, batch.Strikes[1].TimestampMillis)
		assert.Equal(t, 1.0, batch.Strikes[1].Amplitude, "non-positive multiplicity defaults to 1")

		require.NotNil(t, batch.Grid)
		assert.Equal(t, 36, batch.Grid.LongitudeBins)
		assert.Equal(t, 240, batch.Grid.LatitudeBins)
		assert.False(t, batch.HasNext)
	})

	t.Run("grid and point deltas have opposite signs", func(t *testing.T) {
		grid, err := DecodeGrid(MethodStrikesGrid, json.RawMessage(`{"t":"`+testReferenceTime+`","x0":0,"y1":0,"xd":1,"yd":1,"r":[[0,0,1,20]]}`))
		require.NoError(t, err)
		points, err := DecodePoints(json.RawMessage(`{"t":"` + testReferenceTime + `","s":[[20,0,0,0,1]]}`))
		require.NoError(t, err)

		assert.Equal(t, int64(40_000), grid.Strikes[0].TimestampMillis-points.Strikes[0].TimestampMillis)
	})

	t.Run("missing multiplicity defaults to 1", func(t *testing.T) {
		batch, err := DecodeGrid(MethodStrikesGrid, json.RawMessage(`{"t":"`+testReferenceTime+`","x0":0,"y1":0,"xd":1,"yd":1,"r":[[2,2]]}`))
		require.NoError(t, err)
		require.Len(t, batch.Strikes, 1)
		assert.Equal(t, 1.0, batch.Strikes[0].Amplitude)
		assert.Equal(t, testReference.UnixMilli(), batch.Strikes[0].TimestampMillis)
	})

	t.Run("global grid defaults origin", func(t *testing.T) {
		batch, err := DecodeGrid(MethodGlobalStrikesGrid, json.RawMessage(`{"t":"`+testReferenceTime+`","xd":2,"yd":-2,"r":[[1,1,1,0]]}`))
		require.NoError(t, err)
		assert.InDelta(t, 3.0, batch.Strikes[0].Longitude, 1e-9)
		assert.InDelta(t, -3.0, batch.Strikes[0].Latitude, 1e-9)
	})

	t.Run("global grid keeps origin the backend sends", func(t *testing.T) {
		batch, err := DecodeGrid(MethodGlobalStrikesGrid, json.RawMessage(`{"t":"`+testReferenceTime+`","x0":-180,"y1":90,"xd":2,"yd":-2,"r":[[1,1,1,0]]}`))
		require.NoError(t, err)
		assert.InDelta(t, -177.0, batch.Strikes[0].Longitude, 1e-9)
		assert.InDelta(t, 87.0, batch.Strikes[0].Latitude, 1e-9)
	})

	t.Run("regional grid requires origin", func(t *testing.T) {
		_, err := DecodeGrid(MethodStrikesGrid, json.RawMessage(`{"t":"`+testReferenceTime+`","xd":2,"yd":-2,"r":[]}`))
		var malformed *MalformedPayloadError
		require.ErrorAs(t, err, &malformed)
		assert.Contains(t, malformed.Error(), "x0")
	})

	t.Run("missing deltas are rejected", func(t *testing.T) {
		_, err := DecodeGrid(MethodGlobalStrikesGrid, json.RawMessage(`{"t":"`+testReferenceTime+`","x0":0,"y1":0,"r":[]}`))
		var malformed *MalformedPayloadError
		require.ErrorAs(t, err, &malformed)
	})

	t.Run("bad reference time keeps grid, drops rows", func(t *testing.T) {
		batch, err := DecodeGrid(MethodStrikesGrid, json.RawMessage(`{"t":"not-a-date","x0":0,"y1":0,"xd":1,"yd":1,"r":[[1,1,1,1]]}`))
		var decodeErr *DecodeError
		require.ErrorAs(t, err, &decodeErr)
		assert.Empty(t, batch.Strikes)
		assert.NotNil(t, batch.Grid)
	})
}

func TestGridParameters_CellCenter(t *testing.T) {
	g := GridParameters{LongitudeStart: 0, LongitudeDelta: 10, LatitudeStart: 0, LatitudeDelta: 10}
	lon, lat := g.CellCenter(3, 0)
	assert.Equal(t, 35.0, lon)
	assert.Equal(t, 5.0, lat)
}

func TestDecode_Dispatch(t *testing.T) {
	tests := []struct {
		name    string
		method  Method
		raw     string
		wantErr bool
	}{
		{"points", MethodStrikes, `{"t":"` + testReferenceTime + `","s":[]}`, false},
		{"regional grid", MethodStrikesGrid, `{"t":"` + testReferenceTime + `","x0":0,"y1":0,"xd":1,"yd":1,"r":[]}`, false},
		{"global grid", MethodGlobalStrikesGrid, `{"t":"` + testReferenceTime + `","xd":1,"yd":1,"r":[]}`, false},
		{"array is not an object", MethodStrikes, `[1,2]`, true},
		{"string is not an object", MethodStrikes, `"x"`, true},
		{"unknown method", Method("get_local_strikes_grid"), `{}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batch, err := Decode(tt.method, json.RawMessage(tt.raw))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.method, batch.Method)
		})
	}
}

func TestParseReferenceTime(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Time
		wantErr bool
	}{
		{"packed", "20250811T15:32:10", testReference, false},
		{"fractional seconds", "20250811T15:32:10.250", testReference.Add(250 * time.Millisecond), false},
		{"surrounding space", " 20250811T15:32:10 ", testReference, false},
		{"iso format", "2025-08-11T15:32:10Z", time.Time{}, true},
		{"garbage", "not-a-date", time.Time{}, true},
		{"empty", "", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseReferenceTime(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "transport", ErrorKind(&TransportError{Status: 502}))
	assert.Equal(t, "empty", ErrorKind(ErrEmptyResponse))
	assert.Equal(t, "malformed", ErrorKind(&MalformedPayloadError{Reason: "x"}))
	assert.Equal(t, "decode", ErrorKind(&DecodeError{}))
	assert.Equal(t, "network", ErrorKind(assert.AnError))
	assert.Empty(t, ErrorKind(nil))
}

func TestParseRegions(t *testing.T) {
	regions, err := ParseRegions("1, 3,3,6")
	require.NoError(t, err)
	assert.Equal(t, []Region{RegionEurope, RegionNorthAmerica, RegionAfrica}, regions)

	_, err = ParseRegions("0")
	require.Error(t, err)
	_, err = ParseRegions("9")
	require.Error(t, err)
	_, err = ParseRegions("a")
	require.Error(t, err)
	_, err = ParseRegions("")
	require.Error(t, err)

	assert.Equal(t, "north_america", RegionNorthAmerica.String())
	assert.Equal(t, "region_9", Region(9).String())
}
