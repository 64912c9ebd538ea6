package feed

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unklstewy/skyfeed/pkg/adsb"
)

func TestColumnNames(t *testing.T) {
	require.Len(t, ColumnNames, adsb.StateVectorWidth+4)
	assert.Equal(t, "icao24", ColumnNames[0])
	assert.Equal(t, "position_source", ColumnNames[16])
	assert.Equal(t, []string{"x", "y", "rot_angle", "url"}, ColumnNames[17:])
}

func TestAugment(t *testing.T) {
	states := []adsb.AircraftState{
		makeState("a12345", "UAL123", -80.5, 35.5, 90),
		{ICAO24: ptr("nopos"), TrueTrack: ptr(45.0)},
		{ICAO24: ptr("notrack"), Longitude: ptr(0.0), Latitude: ptr(0.0)},
	}

	flights := Augment(states, testIcon)
	require.Len(t, flights, 3)

	first := flights[0]
	require.NotNil(t, first.X)
	assert.InDelta(t, -8961219.008858522, *first.X, 1e-6)
	assert.InDelta(t, 4232038.46239887, *first.Y, 1e-6)
	assert.Equal(t, -90.0, *first.RotAngle)
	assert.Equal(t, testIcon, first.IconURL)

	assert.Nil(t, flights[1].X, "no position, no projection")
	assert.Equal(t, -45.0, *flights[1].RotAngle)

	assert.InDelta(t, 0.0, *flights[2].X, 1e-9)
	assert.InDelta(t, 0.0, *flights[2].Y, 1e-6)
	assert.Nil(t, flights[2].RotAngle)
}

func TestAugmentIsIdempotent(t *testing.T) {
	states := makeBatch(7, 5)
	states[3].TrueTrack = nil
	states[4].Longitude = nil

	first := SanitizeAll(Augment(states, testIcon))
	second := SanitizeAll(Augment(states, testIcon))

	require.Len(t, second, len(first))
	for i := range first {
		for _, col := range []string{ColumnX, ColumnY, ColumnRotAngle, ColumnURL} {
			assert.Equal(t, first[i][col], second[i][col], "row %d column %s", i, col)
		}
	}
}

func TestSanitize(t *testing.T) {
	t.Run("Complete state", func(t *testing.T) {
		s := makeState("a12345", "UAL123", -80.5, 35.5, 270)
		s.Sensors = []int{7}
		r := Sanitize(Augment([]adsb.AircraftState{s}, testIcon)[0])

		for _, name := range ColumnNames {
			assert.Contains(t, r, name)
			assert.NotEqual(t, MissingValue, r[name], name)
		}
		assert.Equal(t, "a12345", r["icao24"])
		assert.Equal(t, int64(1700000000), r["time_position"])
		assert.Equal(t, false, r["on_ground"])
		assert.Equal(t, []int{7}, r["sensors"])
		assert.Equal(t, 0, r["position_source"])
		assert.Equal(t, -270.0, r[ColumnRotAngle])
		assert.Equal(t, testIcon, r[ColumnURL])
	})

	t.Run("Empty state", func(t *testing.T) {
		r := Sanitize(&Flight{})
		require.Len(t, r, len(ColumnNames))
		for _, name := range ColumnNames {
			assert.Equal(t, MissingValue, r[name], name)
		}
	})
}

func TestToColumns(t *testing.T) {
	records := SanitizeAll(Augment(makeBatch(1, 3), testIcon))
	cols := ToColumns(records)

	require.Len(t, cols, len(ColumnNames))
	for _, name := range ColumnNames {
		require.Len(t, cols[name], 3, name)
	}
	assert.Equal(t, []interface{}{"c01i00", "c01i01", "c01i02"}, cols["icao24"])

	empty := ToColumns(nil)
	assert.Len(t, empty, len(ColumnNames))
	assert.Empty(t, empty["x"])
}

func TestSanitizePolePosition(t *testing.T) {
	states := []adsb.AircraftState{
		makeState("south1", "POLE1", 10, -90, 0),
		makeState("north1", "POLE2", 10, 90, 0),
	}
	records := SanitizeAll(Augment(states, testIcon))

	assert.Equal(t, MissingValue, records[0][ColumnY], "ln(0) has no finite image")
	assert.InDelta(t, 1113194.9079327357, records[0][ColumnX], 1e-6)
	assert.NotEqual(t, MissingValue, records[1][ColumnY])

	// every sanitized batch must be JSON encodable
	_, err := json.Marshal(ToColumns(records))
	require.NoError(t, err)
}
