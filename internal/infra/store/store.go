// Package store persists catalog snapshots in a bbolt database so the
// catalog can be served without live servers.
package store

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"mcpbroker/internal/domain"
)

// DefaultKeep is the number of snapshots retained when Options.Keep is unset.
const DefaultKeep = 5

var ErrStoreClosed = errors.New("snapshot store is closed")

type Options struct {
	// Keep bounds the snapshot history. Older snapshots are pruned on Save.
	Keep int
}

// SnapshotStore keeps catalog snapshots ordered by build time.
type SnapshotStore struct {
	mu     sync.RWMutex
	db     *bolt.DB
	path   string
	keep   int
	closed bool
}

// SnapshotEntry describes one stored snapshot.
type SnapshotEntry struct {
	ETag      string    `json:"etag"`
	BuiltAt   time.Time `json:"builtAt"`
	ToolCount int       `json:"toolCount"`
}

func Open(path string, opts Options) (*SnapshotStore, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("snapshot path is required")
	}
	if err := os.MkdirAll(filepath.Dir(trimmed), 0o755); err != nil {
		return nil, fmt.Errorf("ensure snapshot dir: %w", err)
	}
	db, err := bolt.Open(trimmed, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open snapshot db: %w", err)
	}
	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	keep := opts.Keep
	if keep <= 0 {
		keep = DefaultKeep
	}
	return &SnapshotStore{db: db, path: trimmed, keep: keep}, nil
}

func (s *SnapshotStore) Path() string {
	return s.path
}

func (s *SnapshotStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Save stores a snapshot and prunes history beyond the retention limit.
func (s *SnapshotStore) Save(snapshot domain.CatalogSnapshot) error {
	if snapshot.BuiltAt.IsZero() {
		snapshot.BuiltAt = time.Now()
	}
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return s.update(func(tx *bolt.Tx) error {
		bucket, err := snapshotsBucket(tx)
		if err != nil {
			return err
		}
		if err := bucket.Put(snapshotKey(snapshot.BuiltAt), raw); err != nil {
			return fmt.Errorf("write snapshot: %w", err)
		}
		return prune(bucket, s.keep)
	})
}

// Latest returns the most recently built snapshot.
func (s *SnapshotStore) Latest() (domain.CatalogSnapshot, bool, error) {
	var (
		snapshot domain.CatalogSnapshot
		found    bool
	)
	err := s.view(func(tx *bolt.Tx) error {
		bucket, err := snapshotsBucket(tx)
		if err != nil {
			return err
		}
		_, value := bucket.Cursor().Last()
		if value == nil {
			return nil
		}
		if err := json.Unmarshal(value, &snapshot); err != nil {
			return fmt.Errorf("decode snapshot: %w", err)
		}
		found = true
		return nil
	})
	if err != nil {
		return domain.CatalogSnapshot{}, false, err
	}
	return snapshot, found, nil
}

// History lists stored snapshots, newest first.
func (s *SnapshotStore) History() ([]SnapshotEntry, error) {
	entries := []SnapshotEntry{}
	err := s.view(func(tx *bolt.Tx) error {
		bucket, err := snapshotsBucket(tx)
		if err != nil {
			return err
		}
		cursor := bucket.Cursor()
		for key, value := cursor.Last(); key != nil; key, value = cursor.Prev() {
			var snapshot domain.CatalogSnapshot
			if err := json.Unmarshal(value, &snapshot); err != nil {
				return fmt.Errorf("decode snapshot: %w", err)
			}
			entries = append(entries, SnapshotEntry{
				ETag:      snapshot.ETag,
				BuiltAt:   snapshot.BuiltAt,
				ToolCount: len(snapshot.Tools),
			})
		}
		return nil
	})
	return entries, err
}

func (s *SnapshotStore) view(fn func(*bolt.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return s.db.View(fn)
}

func (s *SnapshotStore) update(fn func(*bolt.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return s.db.Update(fn)
}

// snapshotKey orders snapshots by build time under byte comparison.
func snapshotKey(builtAt time.Time) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(builtAt.UnixNano()))
	return buf
}

func prune(bucket *bolt.Bucket, keep int) error {
	var keys [][]byte
	cursor := bucket.Cursor()
	for key, _ := cursor.First(); key != nil; key, _ = cursor.Next() {
		keys = append(keys, append([]byte(nil), key...))
	}
	if len(keys) <= keep {
		return nil
	}
	for _, key := range keys[:len(keys)-keep] {
		if err := bucket.Delete(key); err != nil {
			return fmt.Errorf("prune snapshot: %w", err)
		}
	}
	return nil
}
