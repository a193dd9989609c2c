// Package journal keeps raw upstream payloads in a local Badger store.
// Normalization bugs can then be fixed and replayed without refetching from
// Garmin. Entries carry a TTL so the journal stays bounded.
//
// Key layout:
//   - raw:<kind>:<date>  raw JSON payload for one signal and day
//   - sync:<id>          sync idempotency marker with TTL
package journal

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/bernardmuller/pulse/internal/biometrics"
	"github.com/bernardmuller/pulse/internal/log"
)

const (
	rawPrefix  = "raw:"
	syncPrefix = "sync:"

	// DefaultRawTTL bounds how long raw payloads are kept for replay.
	DefaultRawTTL = 30 * 24 * time.Hour
	// DefaultSyncMarkerTTL bounds how long a finished sync suppresses an
	// identical rerun.
	DefaultSyncMarkerTTL = 24 * time.Hour
)

var ErrNotFound = errors.New("journal: entry not found")

// Kind names a raw signal stream.
type Kind string

const (
	KindHRV        Kind = "hrv"
	KindSleep      Kind = "sleep"
	KindSteps      Kind = "steps"
	KindActivities Kind = "activities"
)

// Journal is the raw-payload store.
type Journal struct {
	db     *badger.DB
	rawTTL time.Duration
}

// Open opens (or creates) the journal under dataDir.
func Open(dataDir string) (*Journal, error) {
	path := filepath.Join(dataDir, "journal")
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	logger := log.WithComponent("journal")
	logger.Debug().Str(log.FieldPath, path).Msg("journal opened")
	return &Journal{db: db, rawTTL: DefaultRawTTL}, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error { return j.db.Close() }

func rawKey(kind Kind, day biometrics.Date) []byte {
	return []byte(rawPrefix + string(kind) + ":" + string(day))
}

// PutRaw stores the raw payload for one signal and day, replacing any
// previous capture.
func (j *Journal) PutRaw(ctx context.Context, kind Kind, day biometrics.Date, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := j.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(rawKey(kind, day), payload).WithTTL(j.rawTTL)
		return txn.SetEntry(e)
	})
	if err != nil {
		return fmt.Errorf("journal: put %s/%s: %w", kind, day, err)
	}
	return nil
}

// GetRaw loads the raw payload for one signal and day.
func (j *Journal) GetRaw(ctx context.Context, kind Kind, day biometrics.Date) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []byte
	err := j.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(rawKey(kind, day))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, kind, day)
	}
	if err != nil {
		return nil, fmt.Errorf("journal: get %s/%s: %w", kind, day, err)
	}
	return out, nil
}

// Days lists the days for which a raw payload of the given kind exists,
// in ascending date order.
func (j *Journal) Days(ctx context.Context, kind Kind) ([]biometrics.Date, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := []byte(rawPrefix + string(kind) + ":")
	var days []biometrics.Date
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().Key()
			days = append(days, biometrics.Date(key[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("journal: list %s: %w", kind, err)
	}
	return days, nil
}

// MarkSync records a completed sync marker so identical reruns can short
// circuit. Returns true if the marker was newly set, false if it existed.
func (j *Journal) MarkSync(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if ttl <= 0 {
		ttl = DefaultSyncMarkerTTL
	}
	key := []byte(syncPrefix + id)
	fresh := false
	err := j.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		fresh = true
		return txn.SetEntry(badger.NewEntry(key, []byte(time.Now().UTC().Format(time.RFC3339))).WithTTL(ttl))
	})
	if err != nil {
		return false, fmt.Errorf("journal: mark sync %s: %w", id, err)
	}
	return fresh, nil
}

// SyncSeen reports whether a sync marker exists.
func (j *Journal) SyncSeen(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	err := j.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(syncPrefix + id))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("journal: check sync %s: %w", id, err)
	}
	return true, nil
}

// RunGC triggers one Badger value-log garbage collection pass. Callers run
// this periodically; ErrNoRewrite is the normal nothing-to-do answer.
func (j *Journal) RunGC() error {
	err := j.db.RunValueLogGC(0.5)
	if errors.Is(err, badger.ErrNoRewrite) {
		return nil
	}
	return err
}
