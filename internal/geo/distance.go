package geo

import "math"

// RadiusOfEarthMeters is the sphere radius used by every distance computation.
const RadiusOfEarthMeters = 6378100.0

// LatLon is a point in degrees
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Distance returns the great-circle distance in meters between two points (haversine)
func Distance(aLat, aLon, bLat, bLon float64) float64 {
	dLat := radians(aLat - bLat)
	dLon := radians(aLon - bLon)
	a := math.Pow(math.Sin(dLat/2), 2) +
		math.Cos(radians(aLat))*math.Cos(radians(bLat))*math.Pow(math.Sin(dLon/2), 2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return RadiusOfEarthMeters * c
}

// DistanceTo returns the distance in meters between two points
func (p LatLon) DistanceTo(o LatLon) float64 {
	return Distance(p.Lat, p.Lon, o.Lat, o.Lon)
}

// ValidLatLon reports whether lat and lon are within the legal degree ranges
func ValidLatLon(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// WrapLon maps a longitude back into [-180, 180]. Latitude is never wrapped.
func WrapLon(lon float64) float64 {
	for lon > 180 {
		lon -= 360
	}
	for lon < -180 {
		lon += 360
	}
	return lon
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
