package game

import (
	"math"

	"zombierun.dev/internal/geo"
	"zombierun.dev/internal/models"
)

// ZombieVisionMeters is how far away a zombie notices a player
const ZombieVisionMeters = 200.0

const maxStepRescales = 4

// randomSource is the slice of world.RNG zombie movement needs
type randomSource interface {
	Uniform(a, b float64) float64
}

// advanceZombie integrates a zombie's movement over seconds in 1 s steps,
// chasing the nearest player in sight and backing away from fortifications.
// An unlocated zombie does not move.
func advanceZombie(z *models.Zombie, seconds float64, players []*models.Player, forts []models.Locatable, rng randomSource) error {
	for seconds > 0 {
		loc, ok := z.Location()
		if !ok {
			return nil
		}
		step := math.Min(seconds, 1)

		chaseNearest(z, players)

		var dLat, dLon float64
		if target := z.Chasing(); target != nil {
			t, _ := target.Location()
			// halved so a zombie sharing a fortification with its target backs off
			dLat += (t.Lat - loc.Lat) / 2
			dLon += (t.Lon - loc.Lon) / 2
		}
		for _, f := range forts {
			fl, ok := f.Location()
			if !ok {
				continue
			}
			if loc.DistanceTo(fl) < models.FortificationRadiusMeters {
				dLat -= fl.Lat - loc.Lat
				dLon -= fl.Lon - loc.Lon
			}
		}

		if dLat == 0 && dLon == 0 {
			dLat = rng.Uniform(-1, 1)
			dLon = rng.Uniform(-1, 1)
		}

		toLat, toLon := loc.Lat+dLat, loc.Lon+dLon
		distance := math.Min(z.DistanceToLatLon(toLat, toLon), step*z.Speed())
		if err := moveTowards(z, toLat, toLon, distance); err != nil {
			return err
		}
		seconds -= 1
	}
	return nil
}

// chaseNearest points z at the closest player within sight, or at nobody
func chaseNearest(z *models.Zombie, players []*models.Player) {
	var nearest *models.Player
	best := math.Inf(1)
	for _, p := range players {
		if d := z.DistanceTo(p); d < best {
			nearest, best = p, d
		}
	}
	if nearest != nil && best < ZombieVisionMeters {
		z.SetChasing(nearest)
		return
	}
	z.SetChasing(nil)
}

// moveTowards moves z at most meters along the straight lat/lon line to a
// point, scaling by the great-circle distance so it never overshoots
func moveTowards(z *models.Zombie, lat, lon, meters float64) error {
	loc, _ := z.Location()
	d := geo.Distance(loc.Lat, loc.Lon, lat, lon)
	if d == 0 || meters <= 0 {
		return nil
	}
	f := meters / d
	toLat, toLon := loc.Lat+(lat-loc.Lat)*f, geo.WrapLon(loc.Lon+(lon-loc.Lon)*f)
	// a lat/lon line is not a great circle, so the step can come out long
	for i := 0; i < maxStepRescales; i++ {
		actual := geo.Distance(loc.Lat, loc.Lon, toLat, toLon)
		if actual <= meters {
			break
		}
		f *= meters / actual * (1 - 1e-12)
		toLat, toLon = loc.Lat+(lat-loc.Lat)*f, geo.WrapLon(loc.Lon+(lon-loc.Lon)*f)
	}
	return z.SetLocation(toLat, toLon)
}
