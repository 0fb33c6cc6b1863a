package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/fastygo/eventcore/eventsourcing"
)

// Store wraps BoltDB to persist events whose handler fan-out failed, so
// a catch-up replay has durable material to retry from.
type Store struct {
	db     *bolt.DB
	bucket []byte
}

// Open initializes the BoltDB file at path and ensures bucket exists. An
// empty bucket defaults to "outbox".
func Open(path string, bucket string) (*Store, error) {
	if bucket == "" {
		bucket = "outbox"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, bucket: []byte(bucket)}, nil
}

// Stage persists event as a pending outbox Item, recording handlerErr's
// message for diagnostics. It implements eventsourcing.FailureSink.
func (s *Store) Stage(_ context.Context, event eventsourcing.Event, handlerErr error) error {
	body, err := eventsourcing.SerializeEvent(event)
	if err != nil {
		return fmt.Errorf("outbox: serialize event for staging: %w", err)
	}
	meta := event.Meta()
	item := Item{
		AggregateID:    meta.AggregateID,
		SequenceNumber: meta.SequenceNumber,
		EventType:      event.EventType(),
		EventJSON:      json.RawMessage(body),
		LastError:      handlerErr.Error(),
		Timestamp:      meta.CreatedAt,
	}
	return s.Enqueue(item)
}

// Enqueue stores item under a timestamp-ordered key.
func (s *Store) Enqueue(item Item) error {
	if s == nil || s.db == nil {
		return bolt.ErrDatabaseNotOpen
	}
	item.normalize()
	key := buildKey(item)
	item.bucketKey = []byte(key)

	payload, err := json.Marshal(item)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Put(item.bucketKey, payload)
	})
}

// GetBatch returns up to limit staged items in key order, without
// removing them.
func (s *Store) GetBatch(limit int) ([]Item, error) {
	if s == nil || s.db == nil {
		return nil, bolt.ErrDatabaseNotOpen
	}
	if limit <= 0 {
		limit = 50
	}

	var items []Item
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(s.bucket).Cursor()
		for k, v := c.First(); k != nil && len(items) < limit; k, v = c.Next() {
			var item Item
			if err := json.Unmarshal(v, &item); err != nil {
				continue
			}
			item.bucketKey = append([]byte(nil), k...)
			items = append(items, item)
		}
		return nil
	})
	return items, err
}

// OldestPending returns the Timestamp of the oldest unredelivered item
// (the event's created_at when staged, the requeue time once requeued),
// or the zero time if the buffer is empty. Keys are timestamp-
// ordered (buildKey), so this is just the first batch entry.
func (s *Store) OldestPending() (time.Time, error) {
	items, err := s.GetBatch(1)
	if err != nil {
		return time.Time{}, err
	}
	if len(items) == 0 {
		return time.Time{}, nil
	}
	return items[0].Timestamp, nil
}

// Remove deletes item from the buffer.
func (s *Store) Remove(item Item) error {
	if s == nil || s.db == nil {
		return bolt.ErrDatabaseNotOpen
	}
	if len(item.bucketKey) == 0 {
		return s.deleteByID(item.ID)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Delete(item.bucketKey)
	})
}

// Requeue re-inserts item with a bumped retry count and timestamp, for
// use after a retry attempt fails again. The item's old entry is removed
// first, so it stays in the buffer once, under a fresh key.
func (s *Store) Requeue(item Item) error {
	if err := s.Remove(item); err != nil {
		return err
	}
	item.bucketKey = nil
	item.Retries++
	item.Timestamp = time.Now()
	return s.Enqueue(item)
}

// Size returns the number of staged items.
func (s *Store) Size() (int, error) {
	if s == nil || s.db == nil {
		return 0, bolt.ErrDatabaseNotOpen
	}
	var count int
	err := s.db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket(s.bucket).Stats().KeyN
		return nil
	})
	return count, err
}

// Cleanup removes items older than olderThan, e.g. after exceeding a
// maximum retry budget elsewhere.
func (s *Store) Cleanup(olderThan time.Time) error {
	if s == nil || s.db == nil {
		return bolt.ErrDatabaseNotOpen
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		c := tx.Bucket(s.bucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var item Item
			if err := json.Unmarshal(v, &item); err != nil {
				continue
			}
			if item.Timestamp.Before(olderThan) {
				if err := c.Delete(); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// Close closes the underlying Bolt database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Stats exposes Bolt statistics for monitoring endpoints.
func (s *Store) Stats() bolt.Stats {
	if s == nil || s.db == nil {
		return bolt.Stats{}
	}
	return s.db.Stats()
}

func (s *Store) deleteByID(id string) error {
	if id == "" {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		c := tx.Bucket(s.bucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var item Item
			if err := json.Unmarshal(v, &item); err != nil {
				continue
			}
			if item.ID == id {
				return c.Delete()
			}
		}
		return nil
	})
}

func buildKey(item Item) string {
	return fmt.Sprintf("%020d_%s", item.Timestamp.UnixNano(), item.ID)
}

var _ eventsourcing.FailureSink = (*Store)(nil)
