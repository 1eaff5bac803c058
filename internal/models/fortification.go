package models

// FortificationRadiusMeters is the size of every fortification
const FortificationRadiusMeters = 100.0

// Fortification is a player-claimed safe area that zombies move away from
type Fortification struct {
	Entity
}

// NewFortification returns an unlocated fortification
func NewFortification() *Fortification {
	return &Fortification{}
}

// Trigger implements Trigger; a plain fortification does nothing
func (f *Fortification) Trigger() TriggerKind {
	return TriggerNone
}

// Destination is the fortification players race to. Reaching it wins the game.
type Destination struct {
	Fortification
}

// NewDestination creates a destination at lat, lon
func NewDestination(lat, lon float64) (*Destination, error) {
	d := &Destination{}
	if err := d.SetLocation(lat, lon); err != nil {
		return nil, err
	}
	return d, nil
}

// Trigger implements Trigger
func (d *Destination) Trigger() TriggerKind {
	return TriggerReachDestination
}
