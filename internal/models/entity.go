package models

import (
	"errors"
	"fmt"
	"math"

	"zombierun.dev/internal/geo"
)

// ErrInvalidLocation is returned when a latitude or longitude is out of range
var ErrInvalidLocation = errors.New("invalid location")

// Locatable is anything with an optional position
type Locatable interface {
	Location() (geo.LatLon, bool)
}

// Entity is the base of every game object: an optional location.
// An unset location is a valid state, e.g. a fortification that is waiting
// for its owner's first location report.
type Entity struct {
	location *geo.LatLon
}

// Location returns the entity's position and whether it is set
func (e *Entity) Location() (geo.LatLon, bool) {
	if e.location == nil {
		return geo.LatLon{}, false
	}
	return *e.location, true
}

// HasLocation reports whether the location is set
func (e *Entity) HasLocation() bool {
	return e.location != nil
}

// SetLocation validates and stores a position
func (e *Entity) SetLocation(lat, lon float64) error {
	if !geo.ValidLatLon(lat, lon) {
		return fmt.Errorf("%w: lat=%v lon=%v", ErrInvalidLocation, lat, lon)
	}
	e.location = &geo.LatLon{Lat: lat, Lon: lon}
	return nil
}

// ClearLocation resets the entity to the unlocated state
func (e *Entity) ClearLocation() {
	e.location = nil
}

// DistanceTo returns meters to another entity, or +Inf if either is unlocated
func (e *Entity) DistanceTo(other Locatable) float64 {
	o, ok := other.Location()
	if !ok {
		return math.Inf(1)
	}
	return e.DistanceToLatLon(o.Lat, o.Lon)
}

// DistanceToLatLon returns meters to a point, or +Inf if the entity is unlocated
func (e *Entity) DistanceToLatLon(lat, lon float64) float64 {
	if e.location == nil {
		return math.Inf(1)
	}
	return geo.Distance(e.location.Lat, e.location.Lon, lat, lon)
}
