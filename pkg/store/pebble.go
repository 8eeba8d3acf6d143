// Package store persists notifications, conversations and messages in a
// Pebble key/value database.
//
// Key layout:
//
//	notif:<userID>:<ts>-<seq>   notification row, time-ordered per recipient
//	notifid:<id>                index: notification id -> row key
//	conv:<convID>               conversation metadata
//	userconv:<userID>:<convID>  index: participant -> conversation
//	msg:<convID>:<ts>-<seq>     message row, time-ordered per conversation
//	msgid:<id>                  index: message id -> row key
//
// Timestamps are zero-padded nanoseconds so lexicographic key order is
// insertion order; seq breaks ties within one nanosecond.
package store

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"

	"snapfeed/pkg/logger"
)

// Store owns one opened Pebble database.
type Store struct {
	db   *pebble.DB
	path string
	seq  uint64
}

// Open opens (or creates) a Pebble database at path.
func Open(path string) (*Store, error) {
	logger.Info("opening_pebble_db", "path", path)
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return nil, err
	}
	logger.Info("pebble_opened", "path", path)
	return &Store{db: db, path: path}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return err
	}
	s.db = nil
	logger.Info("pebble_closed")
	return nil
}

// Ready reports whether the store is opened and usable.
func (s *Store) Ready() bool {
	return s != nil && s.db != nil
}

// timeKey renders ts with a per-process sequence suffix so two rows written
// in the same nanosecond still sort deterministically.
func (s *Store) timeKey(ts int64) string {
	return fmt.Sprintf("%020d-%06d", ts, atomic.AddUint64(&s.seq, 1))
}

func (s *Store) set(key string, val []byte) error {
	if s.db == nil {
		return fmt.Errorf("store not opened; call store.Open first")
	}
	return s.db.Set([]byte(key), val, pebble.Sync)
}

func (s *Store) get(key string) ([]byte, error) {
	if s.db == nil {
		return nil, fmt.Errorf("store not opened; call store.Open first")
	}
	v, closer, err := s.db.Get([]byte(key))
	if err != nil {
		return nil, err
	}
	out := append([]byte(nil), v...)
	_ = closer.Close()
	return out, nil
}

func (s *Store) delete(key string) error {
	if s.db == nil {
		return fmt.Errorf("store not opened; call store.Open first")
	}
	return s.db.Delete([]byte(key), pebble.Sync)
}

// IsNotFound reports whether err means the key does not exist.
func IsNotFound(err error) bool {
	return err == pebble.ErrNotFound
}

func nowNS() int64 {
	return time.Now().UTC().UnixNano()
}
