package retrieval

import (
	"context"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var imagesBucket = []byte("images")

// BoltCache keeps retrieved images in a bbolt database, keyed by image path, and
// retrieves the images it does not have from another Retriever. Failures are not cached.
type BoltCache struct {
	db        *bolt.DB
	retriever Retriever
}

func OpenBoltCache(file string, retriever Retriever) (*BoltCache, error) {
	db, err := bolt.Open(file, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("error opening image cache %s: %w", file, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(imagesBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltCache{db: db, retriever: retriever}, nil
}

func (c *BoltCache) Retrieve(ctx context.Context, req Request) ([]byte, error) {
	var data []byte
	err := c.db.View(func(tx *bolt.Tx) error {
		// values are only valid during the transaction
		if v := tx.Bucket(imagesBucket).Get([]byte(req.ImagePath)); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil || data != nil {
		return data, err
	}

	if data, err = c.retriever.Retrieve(ctx, req); err != nil {
		return nil, err
	}
	err = c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(imagesBucket).Put([]byte(req.ImagePath), data)
	})
	if err != nil {
		return nil, fmt.Errorf("error caching %s: %w", req.ImagePath, err)
	}
	return data, nil
}

// Len returns the number of cached images.
func (c *BoltCache) Len() (int, error) {
	var n int
	err := c.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(imagesBucket).Stats().KeyN
		return nil
	})
	return n, err
}

func (c *BoltCache) Close() error {
	return c.db.Close()
}
