// DetectionCache stores AI detection results across sessions, keyed by
// the content hash of the analyzed text. Model inference dominates
// extraction cost, so recurring texts (retried requests, repeated
// prompts) should pay for it once.
//
// Two base implementations:
//   - memoryCache — in-memory only, used in tests and when no path is
//     configured.
//   - bboltCache  — embedded key-value store, survives restarts.
//
// Production wraps bbolt in an S3-FIFO eviction layer (s3fifo.go) that
// bounds both the hot in-memory footprint and the on-disk store size.
package extractor

import (
	"fmt"
	"sync"

	bolt "go.etcd.io/bbolt"

	"text-pseudonymizer/internal/logger"
)

// DetectionCache maps a content hash to a serialized detection list.
// All implementations must be safe for concurrent use.
type DetectionCache interface {
	// Get returns the cached detections for the given content hash.
	Get(key string) (value string, ok bool)

	// Set stores key → value, overwriting silently.
	Set(key, value string)

	// Delete removes key. Unknown keys are a no-op.
	Delete(key string)

	// Close releases held resources (file handles).
	Close() error
}

// NewDetectionCache builds the production cache: an S3-FIFO layer over
// bbolt when path is non-empty, a plain in-memory cache otherwise.
func NewDetectionCache(path string, capacity int, log *logger.Logger) (DetectionCache, error) {
	if path == "" {
		return NewMemoryCache(), nil
	}
	backing, err := newBboltCache(path, log)
	if err != nil {
		return nil, err
	}
	return newS3FIFOCache(backing, capacity, log), nil
}

// --- memoryCache ---------------------------------------------------------

type memoryCache struct {
	mu    sync.RWMutex
	store map[string]string
}

// NewMemoryCache returns a thread-safe in-memory DetectionCache.
func NewMemoryCache() DetectionCache {
	return &memoryCache{store: make(map[string]string)}
}

func (c *memoryCache) Get(key string) (string, bool) {
	c.mu.RLock()
	v, ok := c.store[key]
	c.mu.RUnlock()
	return v, ok
}

func (c *memoryCache) Set(key, value string) {
	c.mu.Lock()
	c.store[key] = value
	c.mu.Unlock()
}

func (c *memoryCache) Delete(key string) {
	c.mu.Lock()
	delete(c.store, key)
	c.mu.Unlock()
}

func (c *memoryCache) Close() error { return nil }

// --- bboltCache ----------------------------------------------------------

const bboltBucket = "ai_detections"

type bboltCache struct {
	db  *bolt.DB
	log *logger.Logger
}

// newBboltCache opens (or creates) the bbolt database at path and
// ensures the bucket exists.
func newBboltCache(path string, log *logger.Logger) (DetectionCache, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open detection cache %q: %w", path, err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bboltBucket))
		return err
	}); err != nil {
		db.Close() //nolint:errcheck // best-effort close on init failure
		return nil, fmt.Errorf("create cache bucket: %w", err)
	}

	log.Infof("cache_open", "detection cache at %s", path)
	return &bboltCache{db: db, log: log}, nil
}

func (c *bboltCache) Get(key string) (string, bool) {
	var value string
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bboltBucket))
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			value = string(v)
		}
		return nil
	})
	if err != nil {
		c.log.Errorf("cache_get", "%v", err)
		return "", false
	}
	return value, value != ""
}

func (c *bboltCache) Set(key, value string) {
	if err := c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bboltBucket))
		if b == nil {
			return fmt.Errorf("bucket %q not found", bboltBucket)
		}
		return b.Put([]byte(key), []byte(value))
	}); err != nil {
		c.log.Errorf("cache_set", "%v", err)
	}
}

func (c *bboltCache) Delete(key string) {
	if err := c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bboltBucket))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	}); err != nil {
		c.log.Errorf("cache_delete", "%v", err)
	}
}

func (c *bboltCache) Close() error {
	return c.db.Close()
}
