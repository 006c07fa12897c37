// accolade/pkg/cache/bolt.go

package cache

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	bolt "go.etcd.io/bbolt"
)

var counterBucket = []byte("counters")

type boltEntry struct {
	Value     int       `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// BoltCache keeps counters in a local bbolt file, for single-node
// deployments without Redis.
type BoltCache struct {
	db  *bolt.DB
	now func() time.Time
}

func NewBoltCache(path string) (*BoltCache, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, cacheError("open bolt", err, path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(counterBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, cacheError("create bucket", err, path)
	}
	return &BoltCache{db: db, now: time.Now}, nil
}

func (c *BoltCache) read(b *bolt.Bucket, key string) (int, bool, error) {
	data := b.Get([]byte(key))
	if data == nil {
		return 0, false, nil
	}
	var e boltEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return 0, false, cacheError("decode", err, key)
	}
	if !e.ExpiresAt.IsZero() && c.now().After(e.ExpiresAt) {
		return 0, false, nil
	}
	return e.Value, true, nil
}

func (c *BoltCache) write(b *bolt.Bucket, key string, value int, ttl time.Duration) error {
	e := boltEntry{Value: value}
	if ttl > 0 {
		e.ExpiresAt = c.now().Add(ttl)
	}
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return b.Put([]byte(key), data)
}

func (c *BoltCache) Get(_ context.Context, key string) (int, error) {
	var (
		n     int
		found bool
	)
	err := c.db.View(func(tx *bolt.Tx) error {
		var err error
		n, found, err = c.read(tx.Bucket(counterBucket), key)
		return err
	})
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, ErrNotFound
	}
	return n, nil
}

func (c *BoltCache) Set(_ context.Context, key string, value int, ttl time.Duration) error {
	err := c.db.Update(func(tx *bolt.Tx) error {
		return c.write(tx.Bucket(counterBucket), key, value, ttl)
	})
	if err != nil {
		return cacheError("set", err, key)
	}
	return nil
}

// GetOrCreate runs seed outside the write transaction and stores its value
// only if no other writer created the key meanwhile.
func (c *BoltCache) GetOrCreate(ctx context.Context, key string, ttl time.Duration, seed SeedFunc) (int, error) {
	n, err := c.Get(ctx, key)
	if !errors.Is(err, ErrNotFound) {
		return n, err
	}

	value, err := seed()
	if err != nil {
		return 0, err
	}

	err = c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(counterBucket)
		existing, found, err := c.read(b, key)
		if err != nil {
			return err
		}
		if found {
			value = existing
			return nil
		}
		return c.write(b, key, value, ttl)
	})
	if err != nil {
		return 0, cacheError("create", err, key)
	}
	return value, nil
}

func (c *BoltCache) Keys(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	err := c.db.View(func(tx *bolt.Tx) error {
		cur := tx.Bucket(counterBucket).Cursor()
		p := []byte(prefix)
		for k, _ := cur.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = cur.Next() {
			keys = append(keys, string(k))
		}
		return nil
	})
	return keys, err
}

func (c *BoltCache) Delete(_ context.Context, keys ...string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(counterBucket)
		for _, k := range keys {
			if err := b.Delete([]byte(k)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (c *BoltCache) Close() error {
	return c.db.Close()
}
