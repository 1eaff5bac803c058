package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"zombierun.dev/internal/geo"
)

// CodecVersion is written into every encoded entity as "v"
const CodecVersion = 1

// ErrDecode is returned for corrupt, incomplete or incompatible records
var ErrDecode = errors.New("decode entity")

// LocationRecord is the wire form of a bare located entity
type LocationRecord struct {
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`
}

// PlayerRecord is the wire form of a Player
type PlayerRecord struct {
	Version            int             `json:"v"`
	Lat                *float64        `json:"lat"`
	Lon                *float64        `json:"lon"`
	Email              string          `json:"email"`
	Infected           bool            `json:"infected"`
	InfectedTime       *int64          `json:"infected_time,omitempty"` // unix milliseconds
	IsZombie           bool            `json:"is_zombie"`
	ReachedDestination bool            `json:"reached_destination"`
	Fortification      *LocationRecord `json:"fortification,omitempty"`
}

// ZombieRecord is the wire form of a Zombie
type ZombieRecord struct {
	Version int      `json:"v"`
	Lat     *float64 `json:"lat"`
	Lon     *float64 `json:"lon"`
	Speed   float64  `json:"speed"`
	GUID    string   `json:"guid"`
	Chasing string   `json:"chasing,omitempty"`
}

// DestinationRecord is the wire form of a Destination
type DestinationRecord struct {
	Version int      `json:"v"`
	Lat     *float64 `json:"lat"`
	Lon     *float64 `json:"lon"`
}

func locationRecord(e *Entity) LocationRecord {
	loc, ok := e.Location()
	if !ok {
		return LocationRecord{}
	}
	lat, lon := loc.Lat, loc.Lon
	return LocationRecord{Lat: &lat, Lon: &lon}
}

// Record returns the wire form of the player
func (p *Player) Record() PlayerRecord {
	loc := locationRecord(&p.Entity)
	rec := PlayerRecord{
		Version:            CodecVersion,
		Lat:                loc.Lat,
		Lon:                loc.Lon,
		Email:              p.email,
		Infected:           p.infected,
		IsZombie:           p.zombie,
		ReachedDestination: p.reachedDestination,
	}
	if p.infected {
		ms := p.infectedAt.UnixMilli()
		rec.InfectedTime = &ms
	}
	if p.fortification != nil {
		f := locationRecord(&p.fortification.Entity)
		rec.Fortification = &f
	}
	return rec
}

// Record returns the wire form of the zombie
func (z *Zombie) Record() ZombieRecord {
	loc := locationRecord(&z.Entity)
	return ZombieRecord{
		Version: CodecVersion,
		Lat:     loc.Lat,
		Lon:     loc.Lon,
		Speed:   z.speed,
		GUID:    z.id,
		Chasing: z.chasingEmail,
	}
}

// Record returns the wire form of the destination
func (d *Destination) Record() DestinationRecord {
	loc := locationRecord(&d.Entity)
	return DestinationRecord{Version: CodecVersion, Lat: loc.Lat, Lon: loc.Lon}
}

// EncodePlayer serializes a player for storage
func EncodePlayer(p *Player) (string, error) {
	if p.email == "" {
		return "", errors.New("player email must be set before encoding")
	}
	return encode(p.Record())
}

// EncodeZombie serializes a zombie for storage
func EncodeZombie(z *Zombie) (string, error) {
	return encode(z.Record())
}

// EncodeDestination serializes a destination for storage
func EncodeDestination(d *Destination) (string, error) {
	return encode(d.Record())
}

func encode(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodePlayer parses a stored player, failing with ErrDecode on missing or
// invalid fields.
func DecodePlayer(s string) (*Player, error) {
	var rec PlayerRecord
	if err := decodeStrict(s, &rec, "v", "lat", "lon", "email", "infected", "is_zombie", "reached_destination"); err != nil {
		return nil, err
	}
	if err := checkVersion(rec.Version); err != nil {
		return nil, err
	}
	p, err := NewPlayer(rec.Email)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if err := applyLocation(&p.Entity, rec.Lat, rec.Lon); err != nil {
		return nil, err
	}
	p.infected = rec.Infected
	if rec.Infected {
		if rec.InfectedTime == nil {
			return nil, fmt.Errorf("%w: infected player %s has no infected_time", ErrDecode, rec.Email)
		}
		p.infectedAt = time.UnixMilli(*rec.InfectedTime)
	}
	p.zombie = rec.IsZombie
	p.reachedDestination = rec.ReachedDestination
	if rec.Fortification != nil {
		p.fortification = NewFortification()
		if err := applyLocation(&p.fortification.Entity, rec.Fortification.Lat, rec.Fortification.Lon); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// DecodeZombie parses a stored zombie
func DecodeZombie(s string) (*Zombie, error) {
	var rec ZombieRecord
	if err := decodeStrict(s, &rec, "v", "lat", "lon", "speed", "guid"); err != nil {
		return nil, err
	}
	if err := checkVersion(rec.Version); err != nil {
		return nil, err
	}
	z, err := NewZombie(rec.GUID, rec.Speed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if err := applyLocation(&z.Entity, rec.Lat, rec.Lon); err != nil {
		return nil, err
	}
	z.chasingEmail = rec.Chasing
	return z, nil
}

// DecodeDestination parses a stored destination
func DecodeDestination(s string) (*Destination, error) {
	var rec DestinationRecord
	if err := decodeStrict(s, &rec, "v", "lat", "lon"); err != nil {
		return nil, err
	}
	if err := checkVersion(rec.Version); err != nil {
		return nil, err
	}
	d := &Destination{}
	if err := applyLocation(&d.Entity, rec.Lat, rec.Lon); err != nil {
		return nil, err
	}
	return d, nil
}

func decodeStrict(s string, v any, required ...string) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &fields); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	for _, name := range required {
		if _, ok := fields[name]; !ok {
			return fmt.Errorf("%w: missing field %q", ErrDecode, name)
		}
	}
	dec := json.NewDecoder(strings.NewReader(s))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return nil
}

func checkVersion(v int) error {
	if v != CodecVersion {
		return fmt.Errorf("%w: unsupported record version %d", ErrDecode, v)
	}
	return nil
}

func applyLocation(e *Entity, lat, lon *float64) error {
	if lat == nil && lon == nil {
		return nil
	}
	if lat == nil || lon == nil {
		return fmt.Errorf("%w: lat and lon must be set together", ErrDecode)
	}
	if !geo.ValidLatLon(*lat, *lon) {
		return fmt.Errorf("%w: location out of range (%v, %v)", ErrDecode, *lat, *lon)
	}
	return e.SetLocation(*lat, *lon)
}
