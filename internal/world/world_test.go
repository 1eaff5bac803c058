package world

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"zombierun.dev/internal/geo"
	"zombierun.dev/internal/models"
	"zombierun.dev/internal/store"
)

const (
	sfLat = 37.7749
	sfLon = -122.4194
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newCache(t *testing.T, durable store.Durable, clk *clock) (*TileCache, store.Cache) {
	t.Helper()
	fast := store.NewMemoryCache(time.Hour)
	return NewTileCache(fast, durable, TileCacheConfig{Now: clk.Now}, zaptest.NewLogger(t)), fast
}

func player(t *testing.T, email string, lat, lon float64) *models.Player {
	t.Helper()
	p, err := models.NewPlayer(email)
	require.NoError(t, err)
	require.NoError(t, p.SetLocation(lat, lon))
	return p
}

func TestRNGDeterministic(t *testing.T) {
	a, b := NewRNG(42), NewRNG(42)
	for i := 0; i < 100; i++ {
		assert.Equal(t, a.Uint64(), b.Uint64())
	}

	r := NewRNG(7)
	seen := make(map[int]bool)
	for i := 0; i < 1000; i++ {
		n := r.IntRange(1, MaxZombieClusterSize)
		assert.GreaterOrEqual(t, n, 1)
		assert.LessOrEqual(t, n, MaxZombieClusterSize)
		seen[n] = true

		f := r.Uniform(-0.2, 0.2)
		assert.GreaterOrEqual(t, f, -0.2)
		assert.Less(t, f, 0.2)
	}
	assert.Len(t, seen, MaxZombieClusterSize)
}

func TestPopulateZombiesReachesDensity(t *testing.T) {
	grid := geo.DefaultGrid
	tile := NewGameTile(grid, 1, grid.TileID(sfLat, sfLon))

	n := tile.PopulateZombies(DefaultPopulation(), NewRNG(1), zaptest.NewLogger(t))
	require.Positive(t, n)
	assert.Equal(t, n, tile.NumZombies())
	assert.GreaterOrEqual(t, tile.ZombiesPerSqKm(), DefaultZombieDensity)

	for _, z := range tile.Zombies() {
		loc, ok := z.Location()
		require.True(t, ok)
		assert.True(t, tile.Contains(loc.Lat, loc.Lon), "zombie %v outside tile", loc)
		assert.GreaterOrEqual(t, z.Speed(), DefaultZombieSpeed*(1-ZombieSpeedVariance))
		assert.LessOrEqual(t, z.Speed(), DefaultZombieSpeed*(1+ZombieSpeedVariance))
	}

	// already dense enough
	assert.Zero(t, tile.PopulateZombies(DefaultPopulation(), NewRNG(2), zaptest.NewLogger(t)))
}

func TestPopulateZombiesKeepsAwayFromPlayers(t *testing.T) {
	grid := geo.DefaultGrid
	id := grid.TileID(sfLat, sfLon)
	tile := NewGameTile(grid, 1, id)
	nw, se := tile.NW(), tile.SE()
	p := player(t, "a@x", (nw.Lat+se.Lat)/2, (nw.Lon+se.Lon)/2)
	tile.AddPlayer(p)

	tile.PopulateZombies(DefaultPopulation(), NewRNG(3), zaptest.NewLogger(t))
	for _, z := range tile.Zombies() {
		assert.GreaterOrEqual(t, z.DistanceTo(p), MinZombieDistanceFromPlayer-MaxZombieClusterRadius)
	}
}

func TestPopulateZombiesGivesUpWhenCrowded(t *testing.T) {
	grid := geo.DefaultGrid
	tile := NewGameTile(grid, 1, grid.TileID(sfLat, sfLon))
	nw, se := tile.NW(), tile.SE()

	// players every 40 m leave no point 50 m clear of all of them
	const spacing = 40.0
	latStep := spacing / geo.Distance(nw.Lat, nw.Lon, nw.Lat+1, nw.Lon)
	lonStep := spacing / geo.Distance(se.Lat, nw.Lon, se.Lat, nw.Lon+1)
	n := 0
	for lat := nw.Lat; lat > se.Lat-latStep; lat -= latStep {
		for lon := nw.Lon; lon < se.Lon+lonStep; lon += lonStep {
			tile.AddPlayer(player(t, fmt.Sprintf("p%d@x", n), lat, lon))
			n++
		}
	}

	added := tile.PopulateZombies(DefaultPopulation(), NewRNG(5), zaptest.NewLogger(t))
	assert.Zero(t, added)
	assert.Zero(t, tile.NumZombies())
	assert.Less(t, tile.ZombiesPerSqKm(), DefaultZombieDensity)
}

func TestUnlocatedTileStaysEmpty(t *testing.T) {
	tile := NewGameTile(geo.DefaultGrid, 1, geo.UnlocatedTileID)
	assert.Zero(t, tile.PopulateZombies(DefaultPopulation(), NewRNG(1), zaptest.NewLogger(t)))
	assert.False(t, tile.Contains(0, 0))
}

func TestTileMembership(t *testing.T) {
	tile := NewGameTile(geo.DefaultGrid, 1, 5)
	p1, err := models.NewPlayer("a@x")
	require.NoError(t, err)
	p2, err := models.NewPlayer("a@x")
	require.NoError(t, err)

	tile.AddPlayer(p1)
	tile.AddPlayer(p2)
	assert.Equal(t, 1, tile.NumPlayers())
	assert.Same(t, p2, tile.Player("a@x"))
	assert.True(t, tile.RemovePlayer("a@x"))
	assert.False(t, tile.RemovePlayer("a@x"))

	z, err := models.NewZombie("z1", 1)
	require.NoError(t, err)
	assert.True(t, tile.AddZombie(z))
	assert.False(t, tile.AddZombie(z))
	assert.True(t, tile.SetZombie(z))
	assert.True(t, tile.RemoveZombie("z1"))
	assert.False(t, tile.SetZombie(z))
}

func TestTileRecordRoundTrip(t *testing.T) {
	grid := geo.DefaultGrid
	tile := NewGameTile(grid, 4, grid.TileID(sfLat, sfLon))
	tile.AddPlayer(player(t, "a@x", sfLat, sfLon))
	tile.PopulateZombies(DefaultPopulation(), NewRNG(1), zaptest.NewLogger(t))

	rec, err := tile.Record()
	require.NoError(t, err)
	assert.Equal(t, []string{"a@x"}, rec.PlayerEmails)

	got, err := TileFromRecord(grid, rec)
	require.NoError(t, err)
	assert.Equal(t, tile.ID(), got.ID())
	assert.Equal(t, tile.NW(), got.NW())
	assert.Equal(t, tile.NumZombies(), got.NumZombies())
	assert.True(t, got.HasPlayer("a@x"))
	assert.True(t, got.Saved())

	rec.Zombies = append(rec.Zombies, `{"v":1}`)
	_, err = TileFromRecord(grid, rec)
	assert.ErrorIs(t, err, models.ErrDecode)
}

func TestTileCacheThrottlesDurableWrites(t *testing.T) {
	ctx := context.Background()
	clk := &clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	durable := store.NewMemoryStore()
	cache, _ := newCache(t, durable, clk)

	tile := NewGameTile(cache.Grid(), 1, 10)
	require.NoError(t, cache.Put(ctx, []*GameTile{tile}, false))
	rec, err := durable.GetTile(ctx, 1, 10)
	require.NoError(t, err)
	assert.True(t, rec.UpdatedAt.Equal(clk.now), "unsaved tiles are written through")
	first := clk.now

	clk.now = first.Add(10 * time.Second)
	tile.AddPlayer(player(t, "a@x", 0, 0))
	require.NoError(t, cache.Put(ctx, []*GameTile{tile}, false))
	rec, err = durable.GetTile(ctx, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, rec.PlayerEmails, "fresh durable copy is left alone")

	// the volatile tier still sees the change
	loaded, err := cache.Load(ctx, 1, 10)
	require.NoError(t, err)
	assert.True(t, loaded.HasPlayer("a@x"))
	id, ok := cache.PlayerTile(ctx, 1, "a@x")
	require.True(t, ok)
	assert.Equal(t, int64(10), id)

	clk.now = first.Add(31 * time.Second)
	require.NoError(t, cache.Put(ctx, []*GameTile{tile}, false))
	rec, err = durable.GetTile(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"a@x"}, rec.PlayerEmails)

	clk.now = clk.now.Add(time.Second)
	tile.RemovePlayer("a@x")
	require.NoError(t, cache.Put(ctx, []*GameTile{tile}, true))
	rec, err = durable.GetTile(ctx, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, rec.PlayerEmails, "forced puts always write through")
}

func TestTileCacheLoadFallsThroughBadCacheEntry(t *testing.T) {
	ctx := context.Background()
	clk := &clock{now: time.Now()}
	durable := store.NewMemoryStore()
	cache, fast := newCache(t, durable, clk)

	_, err := cache.Load(ctx, 1, 10)
	require.ErrorIs(t, err, store.ErrNotFound)

	tile := NewGameTile(cache.Grid(), 1, 10)
	tile.AddPlayer(player(t, "a@x", 0, 0))
	require.NoError(t, cache.Put(ctx, []*GameTile{tile}, true))

	require.NoError(t, fast.Set(ctx, store.TileKey(1, 10), []byte("garbage")))
	got, err := cache.Load(ctx, 1, 10)
	require.NoError(t, err)
	assert.True(t, got.HasPlayer("a@x"))

	// the durable read repopulated the volatile tier
	b, err := fast.Get(ctx, store.TileKey(1, 10))
	require.NoError(t, err)
	_, err = store.DecodeTile(b)
	assert.NoError(t, err)
}

func TestOpenWindowLoadsNeighborhood(t *testing.T) {
	ctx := context.Background()
	clk := &clock{now: time.Now()}
	cache, _ := newCache(t, store.NewMemoryStore(), clk)
	log := zaptest.NewLogger(t)

	w, err := OpenWindow(ctx, cache, WindowConfig{
		GameID:     1,
		Center:     geo.LatLon{Lat: sfLat, Lon: sfLon},
		Population: DefaultPopulation(),
		RNG:        NewRNG(1),
	}, log)
	require.NoError(t, err)

	tiles := w.Tiles()
	require.Len(t, tiles, 9)
	for i := 1; i < len(tiles); i++ {
		assert.Less(t, tiles[i-1].ID(), tiles[i].ID())
	}
	assert.Len(t, w.DebugMap().Tiles, 9)
	assert.Positive(t, w.NumZombies())
	center := cache.Grid().TileID(sfLat, sfLon)
	assert.Contains(t, w.tiles, center)

	require.NoError(t, w.Put(ctx, false))

	// a second window over the same area sees the same zombies
	again, err := OpenWindow(ctx, cache, WindowConfig{
		GameID:     1,
		Center:     geo.LatLon{Lat: sfLat, Lon: sfLon},
		Population: DefaultPopulation(),
		RNG:        NewRNG(99),
	}, log)
	require.NoError(t, err)
	ids := func(w *Window) []string {
		var out []string
		for _, z := range w.Zombies() {
			out = append(out, z.ID())
		}
		return out
	}
	assert.Equal(t, ids(w), ids(again))
}

func TestOpenWindowNearPoleIsBounded(t *testing.T) {
	clk := &clock{now: time.Now()}
	cache, _ := newCache(t, store.NewMemoryStore(), clk)
	w, err := OpenWindow(context.Background(), cache, WindowConfig{
		GameID:     1,
		Center:     geo.LatLon{Lat: 89.999, Lon: 0},
		Population: Population{Density: 0, Speed: DefaultZombieSpeed},
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.LessOrEqual(t, len(w.Tiles()), (2*maxWindowSteps+1)*(2*maxWindowSteps+1))
}

func TestOpenWindowRejectsBadCenter(t *testing.T) {
	clk := &clock{now: time.Now()}
	cache, _ := newCache(t, store.NewMemoryStore(), clk)
	_, err := OpenWindow(context.Background(), cache, WindowConfig{GameID: 1, Center: geo.LatLon{Lat: 91}}, zaptest.NewLogger(t))
	assert.ErrorIs(t, err, models.ErrInvalidLocation)
}

func TestWindowSetPlayerChangesTile(t *testing.T) {
	ctx := context.Background()
	clk := &clock{now: time.Now()}
	durable := store.NewMemoryStore()
	cache, _ := newCache(t, durable, clk)
	grid := cache.Grid()

	w, err := OpenWindow(ctx, cache, WindowConfig{
		GameID:     1,
		Center:     geo.LatLon{Lat: sfLat, Lon: sfLon},
		Population: Population{Density: 0, Speed: DefaultZombieSpeed},
	}, zaptest.NewLogger(t))
	require.NoError(t, err)

	p := player(t, "a@x", sfLat, sfLon)
	require.NoError(t, w.AddPlayer(ctx, p))
	require.NoError(t, w.Put(ctx, true))

	from := grid.TileID(sfLat, sfLon)
	northLat := sfLat + grid.LatSpan()
	to := grid.TileID(northLat, sfLon)
	require.NotEqual(t, from, to)

	require.NoError(t, p.SetLocation(northLat, sfLon))
	require.NoError(t, w.SetPlayer(ctx, p))
	assert.False(t, w.tiles[from].HasPlayer("a@x"))
	assert.True(t, w.tiles[to].HasPlayer("a@x"))

	// the change was flushed through to the durable store
	rec, err := durable.FindTileByPlayer(ctx, 1, "a@x")
	require.NoError(t, err)
	assert.Equal(t, to, rec.TileID)
	old, err := durable.GetTile(ctx, 1, from)
	require.NoError(t, err)
	assert.False(t, old.HasPlayer("a@x"))
}

func TestWindowGetPlayerOutsideWindow(t *testing.T) {
	ctx := context.Background()
	clk := &clock{now: time.Now()}
	durable := store.NewMemoryStore()
	cache, _ := newCache(t, durable, clk)
	log := zaptest.NewLogger(t)
	empty := Population{Density: 0, Speed: DefaultZombieSpeed}

	home, err := OpenWindow(ctx, cache, WindowConfig{GameID: 1, Center: geo.LatLon{Lat: sfLat, Lon: sfLon}, Population: empty}, log)
	require.NoError(t, err)
	require.NoError(t, home.AddPlayer(ctx, player(t, "a@x", sfLat, sfLon)))
	require.NoError(t, home.Put(ctx, true))

	// found through the cached player index
	away, err := OpenWindow(ctx, cache, WindowConfig{GameID: 1, Center: geo.LatLon{Lat: 0, Lon: 0}, Population: empty}, log)
	require.NoError(t, err)
	p, err := away.GetPlayer(ctx, "a@x")
	require.NoError(t, err)
	assert.Equal(t, "a@x", p.Email())

	// found through the durable store when the volatile tier is cold
	cold, _ := newCache(t, durable, clk)
	away, err = OpenWindow(ctx, cold, WindowConfig{GameID: 1, Center: geo.LatLon{Lat: 0, Lon: 0}, Population: empty}, log)
	require.NoError(t, err)
	p, err = away.GetPlayer(ctx, "a@x")
	require.NoError(t, err)
	assert.Equal(t, "a@x", p.Email())

	_, err = away.GetPlayer(ctx, "nobody@x")
	assert.ErrorIs(t, err, ErrPlayerNotFound)

	// unlocated players live in their own tile
	u, err := models.NewPlayer("u@x")
	require.NoError(t, err)
	require.NoError(t, away.AddPlayer(ctx, u))
	got, err := away.GetPlayer(ctx, "u@x")
	require.NoError(t, err)
	assert.Same(t, u, got)
	assert.True(t, away.tiles[geo.UnlocatedTileID].HasPlayer("u@x"))
}

func TestWindowSetZombie(t *testing.T) {
	ctx := context.Background()
	clk := &clock{now: time.Now()}
	cache, _ := newCache(t, store.NewMemoryStore(), clk)
	grid := cache.Grid()
	w, err := OpenWindow(ctx, cache, WindowConfig{
		GameID:     1,
		Center:     geo.LatLon{Lat: sfLat, Lon: sfLon},
		Population: Population{Density: 0, Speed: DefaultZombieSpeed},
	}, zaptest.NewLogger(t))
	require.NoError(t, err)

	z, err := models.NewZombie("z1", DefaultZombieSpeed)
	require.NoError(t, err)
	require.NoError(t, z.SetLocation(sfLat, sfLon))

	// missing from every tile: logged and placed
	require.NoError(t, w.SetZombie(ctx, z))
	from := grid.TileID(sfLat, sfLon)
	assert.True(t, w.tiles[from].HasZombie("z1"))

	require.NoError(t, z.SetLocation(sfLat, sfLon+grid.LonSpan()))
	require.NoError(t, w.SetZombie(ctx, z))
	to := grid.TileID(sfLat, sfLon+grid.LonSpan())
	assert.False(t, w.tiles[from].HasZombie("z1"))
	assert.True(t, w.tiles[to].HasZombie("z1"))
	assert.Equal(t, 1, w.NumZombies())
}
