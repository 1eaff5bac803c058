package models

import (
	"errors"
	"fmt"
	"math"
)

// Zombie is a roaming non-player entity with a stable generated id
type Zombie struct {
	Entity

	id    string
	speed float64

	// chasing is recomputed every movement step and never persisted
	chasing      *Player
	chasingEmail string
}

// NewZombie creates an unlocated zombie moving at speed meters per second
func NewZombie(id string, speed float64) (*Zombie, error) {
	if id == "" {
		return nil, errors.New("zombie id must not be empty")
	}
	if speed <= 0 || math.IsInf(speed, 0) || math.IsNaN(speed) {
		return nil, fmt.Errorf("invalid zombie speed %v", speed)
	}
	return &Zombie{id: id, speed: speed}, nil
}

func (z *Zombie) ID() string       { return z.id }
func (z *Zombie) Speed() float64   { return z.speed }
func (z *Zombie) Chasing() *Player { return z.chasing }

// ChasingEmail is the chase target's identity, kept for display
func (z *Zombie) ChasingEmail() string {
	return z.chasingEmail
}

// SetChasing sets or clears (nil) the chase target
func (z *Zombie) SetChasing(p *Player) {
	z.chasing = p
	if p == nil {
		z.chasingEmail = ""
		return
	}
	z.chasingEmail = p.Email()
}

// Trigger implements Trigger: zombies always infect
func (z *Zombie) Trigger() TriggerKind {
	return TriggerInfect
}
