package storage

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samvad-hq/channel-relay/internal/domain"
	bolt "go.etcd.io/bbolt"
)

const (
	processedBucket = "processed_messages"
	entryValueBytes = 16
)

// boltLedger keeps one entry per "channel/message" key holding the
// processing time and the retention deadline.
type boltLedger struct {
	db              *bolt.DB
	cleanupMu       sync.Mutex
	lastCleanup     atomic.Int64
	retention       time.Duration
	cleanupInterval time.Duration
	now             func() time.Time
}

func openBolt(path string, opts Options) (*boltLedger, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(processedBucket))
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init bucket: %w", err)
	}

	l := &boltLedger{
		db:              db,
		retention:       opts.Retention,
		cleanupInterval: opts.CleanupInterval,
		now:             time.Now,
	}
	l.lastCleanup.Store(l.now().Unix())
	return l, nil
}

func (b *boltLedger) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

// HasProcessed reports whether key has an unexpired entry.
func (b *boltLedger) HasProcessed(key domain.MessageKey) (bool, error) {
	if b == nil || b.db == nil {
		return false, nil
	}

	now := b.now()
	if err := b.maybeCleanupExpired(now); err != nil {
		return false, err
	}

	var exists bool
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(processedBucket))
		if bucket == nil {
			return fmt.Errorf("processed bucket missing")
		}
		_, expiry, ok := decodeEntry(bucket.Get([]byte(key.String())))
		exists = ok && expiry.After(now)
		return nil
	})
	return exists, err
}

// MarkProcessed records key. An unexpired existing entry keeps its original timestamp.
func (b *boltLedger) MarkProcessed(key domain.MessageKey) error {
	if b == nil || b.db == nil {
		return nil
	}

	now := b.now()
	if err := b.maybeCleanupExpired(now); err != nil {
		return err
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(processedBucket))
		if bucket == nil {
			return fmt.Errorf("processed bucket missing")
		}
		k := []byte(key.String())
		if _, expiry, ok := decodeEntry(bucket.Get(k)); ok && expiry.After(now) {
			return nil
		}
		return bucket.Put(k, encodeEntry(now, now.Add(b.retention)))
	})
}

func (b *boltLedger) Prune() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.maybeCleanupExpired(b.now())
}

// maybeCleanupExpired removes entries past retention on a fixed cadence.
func (b *boltLedger) maybeCleanupExpired(now time.Time) error {
	last := time.Unix(b.lastCleanup.Load(), 0)
	if now.Sub(last) < b.cleanupInterval {
		return nil
	}

	b.cleanupMu.Lock()
	defer b.cleanupMu.Unlock()

	last = time.Unix(b.lastCleanup.Load(), 0)
	if now.Sub(last) < b.cleanupInterval {
		return nil
	}

	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(processedBucket))
		if bucket == nil {
			return fmt.Errorf("processed bucket missing")
		}

		cursor := bucket.Cursor()
		for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
			_, expiry, ok := decodeEntry(v)
			if !ok || !expiry.After(now) {
				if err := cursor.Delete(); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err == nil {
		b.lastCleanup.Store(now.Unix())
	}
	return err
}

func encodeEntry(processedAt, expiry time.Time) []byte {
	buf := make([]byte, entryValueBytes)
	binary.BigEndian.PutUint64(buf[:8], uint64(processedAt.Unix()))
	binary.BigEndian.PutUint64(buf[8:], uint64(expiry.Unix()))
	return buf
}

func decodeEntry(value []byte) (processedAt, expiry time.Time, ok bool) {
	if len(value) != entryValueBytes {
		return time.Time{}, time.Time{}, false
	}
	p := int64(binary.BigEndian.Uint64(value[:8]))
	e := int64(binary.BigEndian.Uint64(value[8:]))
	if e <= 0 {
		return time.Time{}, time.Time{}, false
	}
	return time.Unix(p, 0), time.Unix(e, 0), true
}
