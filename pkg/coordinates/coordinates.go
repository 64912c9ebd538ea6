// Package coordinates converts WGS84 geographic positions into the spherical
// Mercator plane used by web map tiles.
package coordinates

import (
	"fmt"
	"math"
)

// Constants for coordinate calculations
const (
	// EarthRadius is the sphere radius of the web Mercator projection in meters
	// (WGS84 semi-major axis).
	EarthRadius = 6378137.0

	// MetersPerDegree is the Mercator x distance covered by one degree of longitude.
	MetersPerDegree = EarthRadius * math.Pi / 180.0
)

// GeoPoint is a position on Earth's surface in the WGS84 datum (same as GPS).
type GeoPoint struct {
	// Longitude in decimal degrees (-180 to +180)
	// Positive = East, Negative = West
	Longitude float64

	// Latitude in decimal degrees (-90 to +90)
	// Positive = North, Negative = South
	Latitude float64
}

// ProjectedPoint is a position in the spherical Mercator plane, in meters.
type ProjectedPoint struct {
	X float64
	Y float64
}

// Mercator projects the point. See WGS84ToMercator.
func (g GeoPoint) Mercator() ProjectedPoint {
	return WGS84ToMercator(g.Longitude, g.Latitude)
}

// WGS84ToMercator converts a longitude/latitude pair in degrees to spherical
// Mercator meters:
//
//	x = lon * (R * π / 180)
//	y = ln(tan((90 + lat) * π / 360)) * R
//
// Latitudes of exactly ±90 have no finite image; the result is then ±Inf
// (or NaN) and is returned as is.
func WGS84ToMercator(lon, lat float64) ProjectedPoint {
	return ProjectedPoint{
		X: lon * (EarthRadius * math.Pi / 180.0),
		Y: math.Log(math.Tan((90+lat)*math.Pi/360)) * EarthRadius,
	}
}

// WGS84ToMercatorSlice projects parallel longitude and latitude sequences
// elementwise.
func WGS84ToMercatorSlice(lons, lats []float64) (xs, ys []float64, err error) {
	if len(lons) != len(lats) {
		return nil, nil, fmt.Errorf("length mismatch: %d longitudes, %d latitudes", len(lons), len(lats))
	}

	xs = make([]float64, len(lons))
	ys = make([]float64, len(lats))
	for i := range lons {
		p := WGS84ToMercator(lons[i], lats[i])
		xs[i], ys[i] = p.X, p.Y
	}
	return xs, ys, nil
}

// Geolocated is implemented by records that carry a geographic position and
// can hold its projection.
type Geolocated interface {
	// Position returns the record's longitude and latitude. ok is false when
	// the record has no position.
	Position() (lon, lat float64, ok bool)

	// SetProjected stores the projected coordinates on the record,
	// overwriting any previous value.
	SetProjected(x, y float64)
}

// ProjectAll adds or overwrites the Mercator x/y of every record in place.
// Records without a position are left untouched.
func ProjectAll[T Geolocated](records []T) {
	for _, r := range records {
		lon, lat, ok := r.Position()
		if !ok {
			continue
		}
		p := WGS84ToMercator(lon, lat)
		r.SetProjected(p.X, p.Y)
	}
}

// NormalizeAzimuth ensures azimuth is in the range [0, 360).
func NormalizeAzimuth(azimuth float64) float64 {
	az := math.Mod(azimuth, 360.0)
	if az < 0 {
		az += 360.0
	}
	return az
}
