package coordinates

import "fmt"

// BoundingBox is a rectangular geographic region in decimal degrees.
type BoundingBox struct {
	LonMin float64
	LatMin float64
	LonMax float64
	LatMax float64
}

// Viewport is the projected extent of a bounding box, used to size the map.
type Viewport struct {
	XRange [2]float64 `json:"x_range"`
	YRange [2]float64 `json:"y_range"`
}

// Validate reports whether the box is well formed.
func (b BoundingBox) Validate() error {
	if b.LonMin < -180 || b.LonMax > 180 {
		return fmt.Errorf("longitude out of range: [%f, %f]", b.LonMin, b.LonMax)
	}
	if b.LatMin <= -90 || b.LatMax >= 90 {
		return fmt.Errorf("latitude out of range: [%f, %f]", b.LatMin, b.LatMax)
	}
	if b.LonMin >= b.LonMax || b.LatMin >= b.LatMax {
		return fmt.Errorf("empty bounding box: (%f, %f) to (%f, %f)", b.LonMin, b.LatMin, b.LonMax, b.LatMax)
	}
	return nil
}

// Contains reports whether p lies inside the box, edges included.
func (b BoundingBox) Contains(p GeoPoint) bool {
	return p.Longitude >= b.LonMin && p.Longitude <= b.LonMax &&
		p.Latitude >= b.LatMin && p.Latitude <= b.LatMax
}

// Viewport projects the min and max corners of the box.
func (b BoundingBox) Viewport() Viewport {
	lo := WGS84ToMercator(b.LonMin, b.LatMin)
	hi := WGS84ToMercator(b.LonMax, b.LatMax)
	return Viewport{
		XRange: [2]float64{lo.X, hi.X},
		YRange: [2]float64{lo.Y, hi.Y},
	}
}
