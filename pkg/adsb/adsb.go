package adsb

import (
	"context"

	"github.com/unklstewy/skyfeed/pkg/coordinates"
)

// StateColumns is the fixed column order of an OpenSky state vector.
var StateColumns = []string{
	"icao24",
	"callsign",
	"origin_country",
	"time_position",
	"last_contact",
	"long",
	"lat",
	"baro_altitude",
	"on_ground",
	"velocity",
	"true_track",
	"vertical_rate",
	"sensors",
	"geo_altitude",
	"squawk",
	"spi",
	"position_source",
}

// StateVectorWidth is the number of positional fields per aircraft.
const StateVectorWidth = 17

// AircraftState is one observed aircraft state vector.
// All position data is in WGS84 coordinate system. A nil field means the
// source did not report a value in this observation.
type AircraftState struct {
	// ICAO24 is the unique 24-bit transponder address as hex (e.g., "a12345")
	ICAO24 *string

	// Callsign is the 8 character flight callsign, space padded
	Callsign *string

	// OriginCountry is inferred from the ICAO24 address
	OriginCountry *string

	// TimePosition is the Unix time of the last position update
	TimePosition *int64

	// LastContact is the Unix time of the last message of any kind
	LastContact *int64

	// Longitude in decimal degrees (-180 to +180)
	Longitude *float64

	// Latitude in decimal degrees (-90 to +90)
	Latitude *float64

	// BaroAltitude is barometric altitude in meters
	BaroAltitude *float64

	// OnGround is true when the position came from a surface report
	OnGround *bool

	// Velocity is ground speed in m/s
	Velocity *float64

	// TrueTrack is the heading in degrees clockwise from north (0 = North)
	TrueTrack *float64

	// VerticalRate in m/s (positive = climbing)
	VerticalRate *float64

	// Sensors lists the receiver IDs that contributed (nil unless requested)
	Sensors []int

	// GeoAltitude is geometric altitude in meters
	GeoAltitude *float64

	// Squawk is the transponder code
	Squawk *string

	// SPI is the special purpose indicator flag
	SPI *bool

	// PositionSource: 0 = ADS-B, 1 = ASTERIX, 2 = MLAT, 3 = FLARM
	PositionSource *int
}

// Position returns the geographic position if both coordinates were reported.
func (s AircraftState) Position() (coordinates.GeoPoint, bool) {
	if s.Longitude == nil || s.Latitude == nil {
		return coordinates.GeoPoint{}, false
	}
	return coordinates.GeoPoint{Longitude: *s.Longitude, Latitude: *s.Latitude}, true
}

// StatesSnapshot is the decoded response of one states/all call.
type StatesSnapshot struct {
	// Time is the Unix time the states are associated with
	Time int64

	// States holds one entry per aircraft, in response order
	States []AircraftState
}

// DataSource is the interface that all state vector providers must implement.
type DataSource interface {
	// GetStates returns the current state of every aircraft within box.
	GetStates(ctx context.Context, box coordinates.BoundingBox) (*StatesSnapshot, error)

	// Close cleanly shuts down the data source connection.
	Close() error
}
