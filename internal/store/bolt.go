package store

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	tilesBucket       = []byte("tiles")
	gamesBucket       = []byte("games")
	playerIndexBucket = []byte("player_tiles")
)

// BoltStore is the Durable store backed by a bbolt file.
//
// The player_tiles bucket indexes tiles by the emails they contain, keyed
// "<email>\x00<tile key>", so a player's tile can be found without scanning
// the whole game.
type BoltStore struct {
	db *bolt.DB
}

// OpenBolt opens (creating if needed) the store at path
func OpenBolt(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{tilesBucket, gamesBucket, playerIndexBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Close closes the underlying file
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) GetTile(_ context.Context, gameID, tileID int64) (*TileRecord, error) {
	var rec *TileRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		rec, err = getTile(tx, []byte(TileKey(gameID, tileID)))
		return err
	})
	return rec, err
}

func (s *BoltStore) PutTiles(_ context.Context, tiles []*TileRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(tilesBucket)
		idx := tx.Bucket(playerIndexBucket)
		for _, t := range tiles {
			key := []byte(TileKey(t.GameID, t.TileID))

			// drop index entries of the previous version of this tile
			if old, err := getTile(tx, key); err == nil {
				for _, email := range old.PlayerEmails {
					if err := idx.Delete(indexKey(email, key)); err != nil {
						return err
					}
				}
			}

			enc, err := EncodeTile(t)
			if err != nil {
				return err
			}
			if err := b.Put(key, enc); err != nil {
				return err
			}
			for _, email := range t.PlayerEmails {
				if err := idx.Put(indexKey(email, key), key); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (s *BoltStore) FindTileByPlayer(_ context.Context, gameID int64, email string) (*TileRecord, error) {
	return s.findTile(indexKey(email, []byte(GameKey(gameID)+"_gt")), email)
}

func (s *BoltStore) LatestTileForPlayer(_ context.Context, email string) (*TileRecord, error) {
	return s.findTile(indexKey(email, nil), email)
}

func (s *BoltStore) findTile(prefix []byte, email string) (*TileRecord, error) {
	var matches []*TileRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(playerIndexBucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			rec, err := getTile(tx, v)
			if err == ErrNotFound {
				continue
			}
			if err != nil {
				return err
			}
			if rec.HasPlayer(email) {
				matches = append(matches, rec)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, ErrNotFound
	}
	return newest(matches), nil
}

func (s *BoltStore) GetGame(_ context.Context, id int64) (*GameRecord, error) {
	var rec *GameRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(gamesBucket).Get([]byte(GameKey(id)))
		if v == nil {
			return ErrNotFound
		}
		var err error
		rec, err = DecodeGame(v)
		return err
	})
	return rec, err
}

func (s *BoltStore) PutGame(_ context.Context, g *GameRecord) error {
	enc, err := EncodeGame(g)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(gamesBucket).Put([]byte(GameKey(g.ID)), enc)
	})
}

func getTile(tx *bolt.Tx, key []byte) (*TileRecord, error) {
	v := tx.Bucket(tilesBucket).Get(key)
	if v == nil {
		return nil, ErrNotFound
	}
	return DecodeTile(v)
}

func indexKey(email string, tileKey []byte) []byte {
	k := make([]byte, 0, len(email)+1+len(tileKey))
	k = append(k, email...)
	k = append(k, 0)
	return append(k, tileKey...)
}
