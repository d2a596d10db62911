// Package cache provides the key-value tier of the edge cache, backed by
// BadgerDB. Entries carry a TTL enforced by Badger itself; every TTL'd write
// also maintains a persistent shadow copy so the proxy can serve known-stale
// data when the origin backend is unreachable.
//
// Key namespaces in use:
//
//	profile:<token>            cached public profile snapshots
//	api:<path><?query>         generic proxy entries
//	static:<path>              edge-cached static assets
//	ratelimit:<bucket>:...     fixed-window counters
//	chatroom:<room>:messages   per-room chat logs (no TTL)
//	stale:<key>                shadow copies backing stale reads
package cache

import (
	"encoding/json"
	"strconv"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
)

// stalePrefix marks the persistent shadow copy of a TTL'd entry.
const stalePrefix = "stale:"

// Store is a durable key→bytes store with per-entry expiry. It is safe for
// concurrent use; all synchronization is delegated to Badger transactions.
type Store struct {
	db  *badger.DB
	log zerolog.Logger
}

// Open opens (or creates) a Badger store at path. An empty path opens an
// in-memory store, which is what tests use.
func Open(path string, log zerolog.Logger) (*Store, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(path)
	}
	// Badger's own logging is noisy at startup; the store logs what matters.
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, log: log}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Get returns the current value for key. A missing or expired entry is a
// miss (found=false), never an error.
func (s *Store) Get(key string) (val []byte, found bool, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

// GetStale returns the value for key even when the TTL'd entry has expired,
// by falling back to the persistent shadow copy. Used only on origin failure.
func (s *Store) GetStale(key string) ([]byte, bool, error) {
	if val, found, err := s.Get(key); err != nil || found {
		return val, found, err
	}
	return s.Get(stalePrefix + key)
}

// Put stores val under key. A positive ttl makes the entry expire (reads
// after expiry miss) and additionally refreshes the shadow copy; ttl <= 0
// stores a plain persistent entry.
func (s *Store) Put(key string, val []byte, ttl time.Duration) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if ttl > 0 {
			if err := txn.SetEntry(badger.NewEntry([]byte(key), val).WithTTL(ttl)); err != nil {
				return err
			}
			return txn.Set([]byte(stalePrefix+key), val)
		}
		return txn.Set([]byte(key), val)
	})
}

// Delete removes key and its shadow copy. Missing keys are not an error.
func (s *Store) Delete(key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(key)); err != nil {
			return err
		}
		return txn.Delete([]byte(stalePrefix + key))
	})
}

// GetJSON unmarshals the entry at key into v. Missing/expired entries return
// found=false without touching v.
func (s *Store) GetJSON(key string, v any) (bool, error) {
	raw, found, err := s.Get(key)
	if err != nil || !found {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, err
	}
	return true, nil
}

// GetJSONStale is GetJSON against the stale view (expiry ignored).
func (s *Store) GetJSONStale(key string, v any) (bool, error) {
	raw, found, err := s.GetStale(key)
	if err != nil || !found {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, err
	}
	return true, nil
}

// PutJSON marshals v and stores it under key with the given TTL.
func (s *Store) PutJSON(key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Put(key, raw, ttl)
}

// GetCounter reads an integer counter. Missing/expired counters read as 0.
func (s *Store) GetCounter(key string) (int64, error) {
	raw, found, err := s.Get(key)
	if err != nil || !found {
		return 0, err
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		// A corrupt counter resets rather than wedging its bucket.
		s.log.Warn().Str("key", key).Str("value", string(raw)).Msg("kv: resetting malformed counter")
		return 0, nil
	}
	return n, nil
}

// PutCounter stores an integer counter with the given TTL. Counters do not
// keep shadow copies; a stale quota is worthless.
func (s *Store) PutCounter(key string, n int64, ttl time.Duration) error {
	return s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), []byte(strconv.FormatInt(n, 10)))
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
}
