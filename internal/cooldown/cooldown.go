// Package cooldown provides a durable, per-content-hash play cooldown for
// the Playback Poller, so a restart doesn't immediately re-enqueue or
// re-record a play for a track the poller just saw seconds before it was
// killed. It is the opt-in alternative to the poller's default in-memory
// cooldown cache.
package cooldown

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/ytthumbs/ytthumbs/internal/logging"
)

const keyPrefix = "cooldown:"

// entry is the value stored per content hash: the timestamp the cooldown
// was last refreshed from, so TTL expiry and explicit reads agree.
type entry struct {
	LastSeen time.Time `json:"last_seen"`
}

// Store is a badger-backed cooldown tracker. Each key expires on its own
// via badger's TTL support, so there is no separate sweep/cleanup pass.
type Store struct {
	db  *badger.DB
	ttl time.Duration
}

// Open opens (creating if necessary) a badger store at path for
// tracking play cooldowns, each entry expiring after ttl.
func Open(path string, ttl time.Duration) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open cooldown store: %w", err)
	}
	return &Store{db: db, ttl: ttl}, nil
}

// Close releases the underlying badger database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Contains reports whether contentHash is currently within its cooldown
// window. A missing or expired key is treated as "not in cooldown" —
// badger prunes expired entries lazily, but reads never see them.
func (s *Store) Contains(contentHash string) bool {
	var inCooldown bool
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(keyPrefix + contentHash))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		inCooldown = true
		return nil
	})
	if err != nil {
		logging.Warn().Err(err).Str("content_hash", contentHash).Msg("cooldown store read failed, treating as not in cooldown")
		return false
	}
	return inCooldown
}

// Refresh records contentHash as just played, starting (or restarting)
// its cooldown window.
func (s *Store) Refresh(contentHash string) error {
	data, err := json.Marshal(entry{LastSeen: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal cooldown entry: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(keyPrefix+contentHash), data).WithTTL(s.ttl)
		return txn.SetEntry(e)
	})
}
