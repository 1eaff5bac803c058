package models

import (
	"fmt"
	"time"
)

// TriggerKind is the effect an entity has on a player that collides with it
type TriggerKind int

const (
	TriggerNone TriggerKind = iota
	TriggerInfect
	TriggerReachDestination
)

func (k TriggerKind) String() string {
	switch k {
	case TriggerNone:
		return "none"
	case TriggerInfect:
		return "infect"
	case TriggerReachDestination:
		return "reach-destination"
	}
	return fmt.Sprintf("TriggerKind(%d)", int(k))
}

// Trigger is a located entity that acts on players within TriggerDistanceMeters
type Trigger interface {
	Locatable
	Trigger() TriggerKind
}

// TriggerDistanceMeters is how close a player must be for a trigger to fire
const TriggerDistanceMeters = 15.0

// ApplyTrigger applies kind to p. It reports whether the player changed.
func ApplyTrigger(kind TriggerKind, p *Player, now time.Time) bool {
	switch kind {
	case TriggerNone:
		return false
	case TriggerInfect:
		return p.Infect(now)
	case TriggerReachDestination:
		return p.ReachDestination()
	}
	panic(fmt.Sprintf("unhandled trigger kind %d", int(kind)))
}
