package models

import (
	"errors"
	"time"
)

// Player state machine timings
const (
	InfectedToZombie = 120 * time.Second
	ZombieHealed     = time.Hour
)

// PlayerState is the derived health of a player
type PlayerState int

const (
	Healthy PlayerState = iota
	Infected
	Zombified
)

func (s PlayerState) String() string {
	switch s {
	case Infected:
		return "infected"
	case Zombified:
		return "zombie"
	}
	return "healthy"
}

// Player is a human participant, keyed by email
type Player struct {
	Entity

	email              string
	infected           bool
	infectedAt         time.Time
	zombie             bool
	reachedDestination bool
	fortification      *Fortification
}

// NewPlayer creates an unlocated, healthy player
func NewPlayer(email string) (*Player, error) {
	if email == "" {
		return nil, errors.New("player email must not be empty")
	}
	return &Player{email: email}, nil
}

func (p *Player) Email() string               { return p.email }
func (p *Player) IsInfected() bool            { return p.infected }
func (p *Player) InfectedAt() time.Time       { return p.infectedAt }
func (p *Player) IsZombie() bool              { return p.zombie }
func (p *Player) HasReachedDestination() bool { return p.reachedDestination }

// Fortification returns the player's fortification, or nil
func (p *Player) Fortification() *Fortification {
	return p.fortification
}

// State derives Healthy, Infected or Zombified from the flags
func (p *Player) State() PlayerState {
	switch {
	case p.zombie:
		return Zombified
	case p.infected:
		return Infected
	}
	return Healthy
}

// Infect marks a healthy player infected at now. It is a no-op for players
// that are already infected.
func (p *Player) Infect(now time.Time) bool {
	if p.infected {
		return false
	}
	p.infected = true
	// stored at millisecond precision to match the wire record
	p.infectedAt = time.UnixMilli(now.UnixMilli())
	return true
}

// ReachDestination sets the reached-destination flag. It is never cleared.
func (p *Player) ReachDestination() bool {
	if p.reachedDestination {
		return false
	}
	p.reachedDestination = true
	return true
}

// Fortify claims a fortification at the player's current location. Without a
// location the fortification stays unlocated until Invalidate sees one.
func (p *Player) Fortify() {
	if p.fortification == nil {
		p.fortification = NewFortification()
	}
	if loc, ok := p.Location(); ok {
		// already validated by the player's own SetLocation
		_ = p.fortification.SetLocation(loc.Lat, loc.Lon)
	}
}

// Invalidate advances the player's state machine to now. All timings are
// measured from the original infection time.
func (p *Player) Invalidate(now time.Time) {
	if p.infected && !p.zombie && now.Sub(p.infectedAt) > InfectedToZombie {
		p.zombie = true
	}
	if p.zombie && now.Sub(p.infectedAt) > ZombieHealed {
		p.zombie = false
		p.infected = false
		p.infectedAt = time.Time{}
	}

	if p.zombie {
		p.fortification = nil
	}

	if p.fortification != nil && !p.fortification.HasLocation() && p.HasLocation() {
		p.Fortify()
	}

	// a fortification expires once its owner walks away from it
	if p.fortification != nil && p.fortification.HasLocation() && p.HasLocation() &&
		p.DistanceTo(p.fortification) > FortificationRadiusMeters {
		p.fortification = nil
	}
}

// Trigger implements Trigger: only zombie players infect
func (p *Player) Trigger() TriggerKind {
	if p.zombie {
		return TriggerInfect
	}
	return TriggerNone
}
