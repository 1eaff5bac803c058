package game

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"zombierun.dev/internal/geo"
	"zombierun.dev/internal/models"
	"zombierun.dev/internal/store"
	"zombierun.dev/internal/world"
)

const (
	sfLat = 37.7749
	sfLon = -122.4194
	// roughly one meter of latitude
	meterLat = 1 / 111319.5
)

var sf = geo.LatLon{Lat: sfLat, Lon: sfLon}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

type env struct {
	clk     *clock
	fast    store.Cache
	durable *store.MemoryStore
	repo    *Repository
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		clk:     &clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
		fast:    store.NewMemoryCache(time.Hour),
		durable: store.NewMemoryStore(),
	}
	e.repo = e.newRepo(t, e.fast)
	return e
}

// newRepo builds a repository over the shared durable store and the given cache
func (e *env) newRepo(t *testing.T, fast store.Cache) *Repository {
	log := zaptest.NewLogger(t)
	tiles := world.NewTileCache(fast, e.durable, world.TileCacheConfig{Now: e.clk.Now}, log)
	return NewRepository(fast, e.durable, tiles, Settings{
		Population: world.Population{Density: 0, Speed: world.DefaultZombieSpeed},
		Seed:       1,
		Now:        e.clk.Now,
	}, log)
}

func locatedPlayer(t *testing.T, email string, lat, lon float64) *models.Player {
	t.Helper()
	p, err := models.NewPlayer(email)
	require.NoError(t, err)
	require.NoError(t, p.SetLocation(lat, lon))
	return p
}

func locatedZombie(t *testing.T, id string, lat, lon float64) *models.Zombie {
	t.Helper()
	z, err := models.NewZombie(id, world.DefaultZombieSpeed)
	require.NoError(t, err)
	require.NoError(t, z.SetLocation(lat, lon))
	return z
}

func addZombie(t *testing.T, g *Game, z *models.Zombie) {
	t.Helper()
	w, err := g.Window(context.Background())
	require.NoError(t, err)
	require.NoError(t, w.SetZombie(context.Background(), z))
}

func TestAdvanceInfectsPlayerNearZombie(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	g, err := e.repo.Create(ctx, 5, "a@x", sf)
	require.NoError(t, err)

	p := locatedPlayer(t, "a@x", sfLat, sfLon)
	require.NoError(t, g.AddPlayer(ctx, p))
	z := locatedZombie(t, "z1", sfLat+10*meterLat, sfLon)
	addZombie(t, g, z)
	require.NoError(t, g.Put(ctx, true))
	before := z.DistanceTo(p)

	e.clk.now = e.clk.now.Add(time.Second)
	require.NoError(t, g.Advance(ctx, "a@x"))

	assert.True(t, p.IsInfected())
	assert.True(t, p.InfectedAt().Equal(e.clk.now))
	assert.Less(t, z.DistanceTo(p), before)
	assert.Same(t, p, z.Chasing())
	assert.True(t, g.LastTickAt().Equal(e.clk.now))
}

func TestAdvanceDestinationBeforeZombies(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	g, err := e.repo.Create(ctx, 5, "a@x", sf)
	require.NoError(t, err)

	d, err := models.NewDestination(sfLat, sfLon)
	require.NoError(t, err)
	g.SetDestination(d)
	p := locatedPlayer(t, "a@x", sfLat+5*meterLat, sfLon)
	require.NoError(t, g.AddPlayer(ctx, p))
	addZombie(t, g, locatedZombie(t, "z1", sfLat+8*meterLat, sfLon))

	e.clk.now = e.clk.now.Add(time.Second)
	require.NoError(t, g.Advance(ctx, "a@x"))

	assert.True(t, p.HasReachedDestination())
	assert.False(t, p.IsInfected())
}

func TestAdvanceTurnsPlayersIntoZombies(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	g, err := e.repo.Create(ctx, 5, "a@x", sf)
	require.NoError(t, err)

	infected := locatedPlayer(t, "a@x", sfLat, sfLon)
	require.True(t, infected.Infect(e.clk.now))
	healthy := locatedPlayer(t, "b@x", sfLat+5*meterLat, sfLon)
	require.NoError(t, g.AddPlayer(ctx, infected))
	require.NoError(t, g.AddPlayer(ctx, healthy))

	e.clk.now = e.clk.now.Add(60 * time.Second)
	require.NoError(t, g.Advance(ctx, "b@x"))
	assert.False(t, infected.IsZombie())
	assert.False(t, healthy.IsInfected(), "infected players do not infect")

	e.clk.now = e.clk.now.Add(61 * time.Second)
	require.NoError(t, g.Advance(ctx, "b@x"))
	assert.True(t, infected.IsZombie())
	assert.True(t, healthy.IsInfected(), "zombie players infect")
}

func TestAdvanceClampsIdleTime(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	g, err := e.repo.Create(ctx, 5, "a@x", sf)
	require.NoError(t, err)

	u, err := models.NewPlayer("a@x")
	require.NoError(t, err)
	require.NoError(t, g.AddPlayer(ctx, u))
	z := locatedZombie(t, "z1", sfLat, sfLon)
	addZombie(t, g, z)

	e.clk.now = e.clk.now.Add(2 * time.Hour)
	require.NoError(t, g.Advance(ctx, "a@x"))

	moved := z.DistanceToLatLon(sfLat, sfLon)
	assert.Positive(t, moved)
	assert.LessOrEqual(t, moved, MaxTickSeconds*z.Speed()+1e-6)
	assert.False(t, u.HasLocation())
}

func TestMeanderDiffersBetweenRequests(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	g, err := e.repo.Create(ctx, 5, "a@x", sf)
	require.NoError(t, err)
	require.NoError(t, g.AddPlayer(ctx, locatedPlayer(t, "a@x", sfLat, sfLon)))
	// out of sight, so it only meanders
	addZombie(t, g, locatedZombie(t, "z1", sfLat+300*meterLat, sfLon))
	require.NoError(t, g.Put(ctx, true))

	zombieAt := func(g *Game) geo.LatLon {
		zs, err := g.Zombies(ctx)
		require.NoError(t, err)
		for _, z := range zs {
			if z.ID() == "z1" {
				loc, _ := z.Location()
				return loc
			}
		}
		t.Fatal("zombie z1 not loaded")
		return geo.LatLon{}
	}

	var steps []geo.LatLon
	for i := 0; i < 3; i++ {
		g, err := e.repo.Get(ctx, 5, sf)
		require.NoError(t, err)
		before := zombieAt(g)
		e.clk.now = e.clk.now.Add(time.Second)
		require.NoError(t, g.Advance(ctx, "a@x"))
		require.NoError(t, g.Put(ctx, false))
		after := zombieAt(g)
		steps = append(steps, geo.LatLon{Lat: after.Lat - before.Lat, Lon: after.Lon - before.Lon})
	}

	assert.NotEqual(t, steps[0], steps[1])
	assert.NotEqual(t, steps[1], steps[2])
}

func TestAdvanceUnknownPlayer(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	g, err := e.repo.Create(ctx, 5, "a@x", sf)
	require.NoError(t, err)
	assert.ErrorIs(t, g.Advance(ctx, "nobody@x"), world.ErrPlayerNotFound)
}

func TestPutAndReload(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	g, err := e.repo.Create(ctx, 5, "a@x", sf)
	require.NoError(t, err)
	d, err := models.NewDestination(sfLat+0.01, sfLon)
	require.NoError(t, err)
	g.SetDestination(d)
	require.NoError(t, g.AddPlayer(ctx, locatedPlayer(t, "a@x", sfLat, sfLon)))
	require.NoError(t, g.Put(ctx, false))

	_, err = e.repo.Create(ctx, 5, "b@x", sf)
	assert.ErrorIs(t, err, ErrGameExists)

	// a cold cache reads everything back from the durable store
	cold := e.newRepo(t, store.NewMemoryCache(time.Hour))
	got, err := cold.Get(ctx, 5, geo.LatLon{Lat: 1, Lon: 1})
	require.NoError(t, err)
	assert.Equal(t, "a@x", got.Owner())
	assert.True(t, got.CreatedAt().Equal(g.CreatedAt()))
	require.NotNil(t, got.Destination())
	loc, _ := got.Destination().Location()
	assert.InDelta(t, sfLat+0.01, loc.Lat, 1e-9)

	p, err := got.GetPlayer(ctx, "a@x")
	require.NoError(t, err)
	assert.True(t, p.HasLocation())

	id, err := cold.LastGame(ctx, "a@x")
	require.NoError(t, err)
	assert.Equal(t, int64(5), id)
}

func TestGetUnknownGame(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	_, err := e.repo.Get(ctx, 404, sf)
	assert.ErrorIs(t, err, ErrGameNotFound)

	_, err = e.repo.LastGame(ctx, "nobody@x")
	assert.ErrorIs(t, err, ErrGameNotFound)

	g, created, err := e.repo.GetOrCreate(ctx, 1, "a@x", sf)
	require.NoError(t, err)
	assert.True(t, created)
	require.NoError(t, g.Put(ctx, false))

	_, created, err = e.repo.GetOrCreate(ctx, 1, "b@x", sf)
	require.NoError(t, err)
	assert.False(t, created)
}

func TestGameRecordThrottle(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	g, err := e.repo.Create(ctx, 5, "a@x", sf)
	require.NoError(t, err)
	require.NoError(t, g.AddPlayer(ctx, locatedPlayer(t, "a@x", sfLat, sfLon)))
	require.NoError(t, g.Put(ctx, false))
	start := e.clk.now

	e.clk.now = start.Add(10 * time.Second)
	require.NoError(t, g.Advance(ctx, "a@x"))
	require.NoError(t, g.Put(ctx, false))

	rec, err := e.durable.GetGame(ctx, 5)
	require.NoError(t, err)
	assert.True(t, rec.LastTickAt.Equal(start), "durable copy is still fresh")

	cached, err := e.repo.Get(ctx, 5, sf)
	require.NoError(t, err)
	assert.True(t, cached.LastTickAt().Equal(start.Add(10*time.Second)))

	e.clk.now = start.Add(41 * time.Second)
	require.NoError(t, g.Advance(ctx, "a@x"))
	require.NoError(t, g.Put(ctx, false))
	rec, err = e.durable.GetGame(ctx, 5)
	require.NoError(t, err)
	assert.True(t, rec.LastTickAt.Equal(e.clk.now))
}

func TestCorruptCachedGameFallsThrough(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	g, err := e.repo.Create(ctx, 5, "a@x", sf)
	require.NoError(t, err)
	require.NoError(t, g.Put(ctx, true))

	require.NoError(t, e.fast.Set(ctx, store.GameKey(5), []byte{0xc1}))
	got, err := e.repo.Get(ctx, 5, sf)
	require.NoError(t, err)
	assert.Equal(t, "a@x", got.Owner())
}
