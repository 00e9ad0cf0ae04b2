// Package history keeps a keeper-local, append-only record of FSM
// transitions. Upstream pg_auto_failover serves `show events` from the
// monitor's database; since the monitor is out of scope here, this
// package gives the keeper's own CLI a local mirror of the same idea,
// backed by bbolt the way pkg/storage backs the rest of the teacher's
// cluster state.
package history

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/gmr/pg-auto-failover/pkg/types"
)

var bucketTransitions = []byte("transitions")

// Ledger is a bbolt-backed append-only log of TransitionRecord values,
// keyed by a monotonically increasing sequence number.
type Ledger struct {
	db *bolt.DB
}

// Open opens (creating if absent) the ledger file at path.
func Open(path string) (*Ledger, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open history ledger: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketTransitions)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Ledger{db: db}, nil
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Append records one transition at the end of the ledger.
func (l *Ledger) Append(rec types.TransitionRecord) error {
	return l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTransitions)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put(seqKey(seq), data)
	})
}

// Recent returns up to limit of the most recently appended records,
// newest first. limit <= 0 means "all of them".
func (l *Ledger) Recent(limit int) ([]types.TransitionRecord, error) {
	var records []types.TransitionRecord
	err := l.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTransitions)
		c := b.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var rec types.TransitionRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			records = append(records, rec)
			if limit > 0 && len(records) >= limit {
				break
			}
		}
		return nil
	})
	return records, err
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
