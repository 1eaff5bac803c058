package store

import (
	"context"
	"strings"
	"sync"
)

// MemoryStore is an in-process Durable. Records are kept encoded so callers
// never share memory with the store.
type MemoryStore struct {
	mu    sync.RWMutex
	tiles map[string][]byte
	games map[string][]byte
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tiles: make(map[string][]byte),
		games: make(map[string][]byte),
	}
}

func (m *MemoryStore) GetTile(_ context.Context, gameID, tileID int64) (*TileRecord, error) {
	m.mu.RLock()
	b, ok := m.tiles[TileKey(gameID, tileID)]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return DecodeTile(b)
}

func (m *MemoryStore) PutTiles(_ context.Context, tiles []*TileRecord) error {
	encoded := make(map[string][]byte, len(tiles))
	for _, t := range tiles {
		b, err := EncodeTile(t)
		if err != nil {
			return err
		}
		encoded[TileKey(t.GameID, t.TileID)] = b
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for k, b := range encoded {
		m.tiles[k] = b
	}
	return nil
}

func (m *MemoryStore) FindTileByPlayer(_ context.Context, gameID int64, email string) (*TileRecord, error) {
	return m.findTile(GameKey(gameID)+"_gt", email)
}

func (m *MemoryStore) LatestTileForPlayer(_ context.Context, email string) (*TileRecord, error) {
	return m.findTile("", email)
}

func (m *MemoryStore) findTile(prefix, email string) (*TileRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matches []*TileRecord
	for k, b := range m.tiles {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		r, err := DecodeTile(b)
		if err != nil {
			return nil, err
		}
		if r.HasPlayer(email) {
			matches = append(matches, r)
		}
	}
	if len(matches) == 0 {
		return nil, ErrNotFound
	}
	return newest(matches), nil
}

func (m *MemoryStore) GetGame(_ context.Context, id int64) (*GameRecord, error) {
	m.mu.RLock()
	b, ok := m.games[GameKey(id)]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return DecodeGame(b)
}

func (m *MemoryStore) PutGame(_ context.Context, g *GameRecord) error {
	b, err := EncodeGame(g)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.games[GameKey(g.ID)] = b
	m.mu.Unlock()
	return nil
}
