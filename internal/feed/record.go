package feed

import (
	"math"

	"github.com/unklstewy/skyfeed/pkg/adsb"
	"github.com/unklstewy/skyfeed/pkg/coordinates"
)

// MissingValue replaces any field the source did not report.
const MissingValue = "No Data"

// Augmented column names, appended after the source columns.
const (
	ColumnX        = "x"
	ColumnY        = "y"
	ColumnRotAngle = "rot_angle"
	ColumnURL      = "url"
)

// ColumnNames is the full, ordered column set of a Record.
var ColumnNames = append(append([]string(nil), adsb.StateColumns...),
	ColumnX, ColumnY, ColumnRotAngle, ColumnURL)

// Record is one sanitized aircraft row as seen by the presentation layer.
// Every column in ColumnNames is present; absent values hold MissingValue.
// Records are never mutated after publication.
type Record map[string]interface{}

// Columns is a batch of records transposed into field-name -> sequence form.
type Columns map[string][]interface{}

// ToColumns transposes records, preserving row order.
func ToColumns(records []Record) Columns {
	cols := make(Columns, len(ColumnNames))
	for _, name := range ColumnNames {
		col := make([]interface{}, len(records))
		for i, r := range records {
			col[i] = r[name]
		}
		cols[name] = col
	}
	return cols
}

// Flight is an aircraft state augmented for display, before sanitizing.
type Flight struct {
	State adsb.AircraftState

	// X, Y are the Mercator coordinates, nil when the state has no position
	X *float64
	Y *float64

	// RotAngle is the icon rotation in degrees: the negated true track
	RotAngle *float64

	// IconURL is the aircraft icon image
	IconURL string
}

// Position implements coordinates.Geolocated.
func (f *Flight) Position() (float64, float64, bool) {
	p, ok := f.State.Position()
	return p.Longitude, p.Latitude, ok
}

// SetProjected implements coordinates.Geolocated.
func (f *Flight) SetProjected(x, y float64) {
	f.X, f.Y = &x, &y
}

// Augment projects positions, derives icon rotation and attaches the icon
// reference. It has no hidden state: equal input gives equal output.
func Augment(states []adsb.AircraftState, iconURL string) []*Flight {
	flights := make([]*Flight, len(states))
	for i, s := range states {
		f := &Flight{State: s, IconURL: iconURL}
		if s.TrueTrack != nil {
			rot := -1 * *s.TrueTrack
			f.RotAngle = &rot
		}
		flights[i] = f
	}
	coordinates.ProjectAll(flights)
	return flights
}

// Sanitize flattens a flight into a Record, substituting MissingValue for
// every absent field. A projection with no finite value (a pole position)
// is treated as absent.
func Sanitize(f *Flight) Record {
	s := f.State
	r := Record{
		"icao24":          orMissing(s.ICAO24),
		"callsign":        orMissing(s.Callsign),
		"origin_country":  orMissing(s.OriginCountry),
		"time_position":   orMissing(s.TimePosition),
		"last_contact":    orMissing(s.LastContact),
		"long":            orMissing(s.Longitude),
		"lat":             orMissing(s.Latitude),
		"baro_altitude":   orMissing(s.BaroAltitude),
		"on_ground":       orMissing(s.OnGround),
		"velocity":        orMissing(s.Velocity),
		"true_track":      orMissing(s.TrueTrack),
		"vertical_rate":   orMissing(s.VerticalRate),
		"sensors":         MissingValue,
		"geo_altitude":    orMissing(s.GeoAltitude),
		"squawk":          orMissing(s.Squawk),
		"spi":             orMissing(s.SPI),
		"position_source": orMissing(s.PositionSource),
		ColumnX:           finiteOrMissing(f.X),
		ColumnY:           finiteOrMissing(f.Y),
		ColumnRotAngle:    orMissing(f.RotAngle),
		ColumnURL:         MissingValue,
	}
	if s.Sensors != nil {
		r["sensors"] = append([]int(nil), s.Sensors...)
	}
	if f.IconURL != "" {
		r[ColumnURL] = f.IconURL
	}
	return r
}

// SanitizeAll sanitizes a batch, preserving order.
func SanitizeAll(flights []*Flight) []Record {
	records := make([]Record, len(flights))
	for i, f := range flights {
		records[i] = Sanitize(f)
	}
	return records
}

func orMissing[T any](v *T) interface{} {
	if v == nil {
		return MissingValue
	}
	return *v
}

func finiteOrMissing(v *float64) interface{} {
	if v == nil || math.IsInf(*v, 0) || math.IsNaN(*v) {
		return MissingValue
	}
	return *v
}
