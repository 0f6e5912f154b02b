// SPDX-License-Identifier: MIT

package audit

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Key layout:
// - entries: "audit:%016d" (JSON), zero-padded so iteration order is
//   sequence order
// - counter: "audit_seq" (big-endian uint64)
const entryPrefix = "audit:"

var seqKey = []byte("audit_seq")

// BadgerSink is the persistent append-only audit store. Sequence
// assignment and entry writes share one transaction, serialised by a
// writer lock: concurrent transactions would conflict on the counter
// key and badger aborts all but one, so appends take turns instead.
// Numbers stay gapless and strictly increasing under concurrency.
type BadgerSink struct {
	db  *badger.DB
	ttl time.Duration

	writeMu sync.Mutex
}

// OpenBadgerSink opens (or creates) the audit store at path. retention
// sets a TTL on every entry; zero keeps entries until swept.
func OpenBadgerSink(path string, retention time.Duration) (*BadgerSink, error) {
	db, err := badger.Open(badger.DefaultOptions(path).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}
	return &BadgerSink{db: db, ttl: retention}, nil
}

func (s *BadgerSink) Close() error { return s.db.Close() }

func entryKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%016d", entryPrefix, seq))
}

// Append persists the event and fills in its sequence number.
func (s *BadgerSink) Append(ctx context.Context, event *Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.db.Update(func(txn *badger.Txn) error {
		seq, err := nextSeq(txn)
		if err != nil {
			return err
		}
		event.Seq = seq

		buf, err := json.Marshal(event)
		if err != nil {
			return err
		}
		entry := badger.NewEntry(entryKey(seq), buf)
		if s.ttl > 0 {
			entry = entry.WithTTL(s.ttl)
		}
		return txn.SetEntry(entry)
	})
}

func nextSeq(txn *badger.Txn) (uint64, error) {
	var seq uint64 = 1
	item, err := txn.Get(seqKey)
	switch err {
	case nil:
		verr := item.Value(func(val []byte) error {
			if len(val) == 8 {
				seq = binary.BigEndian.Uint64(val) + 1
			}
			return nil
		})
		if verr != nil {
			return 0, verr
		}
	case badger.ErrKeyNotFound:
		// First entry ever.
	default:
		return 0, err
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	return seq, txn.Set(seqKey, buf[:])
}

// Scan streams stored events in sequence order, starting at from.
// fn returning an error stops the scan.
func (s *BadgerSink) Scan(ctx context.Context, from uint64, fn func(Event) error) error {
	prefix := []byte(entryPrefix)
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(entryKey(from)); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var e Event
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				return err
			}
			if err := fn(e); err != nil {
				return err
			}
		}
		return nil
	})
}

// Sweep deletes events recorded before the cutoff and returns how many
// were removed. It complements the write-time TTL when the retention
// window is shortened after entries were written.
func (s *BadgerSink) Sweep(ctx context.Context, before time.Time) (int, error) {
	var stale [][]byte
	err := s.Scan(ctx, 0, func(e Event) error {
		if e.Timestamp.Before(before) {
			stale = append(stale, entryKey(e.Seq))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	for _, key := range stale {
		if err := s.db.Update(func(txn *badger.Txn) error {
			return txn.Delete(key)
		}); err != nil {
			return len(stale), fmt.Errorf("audit: sweep: %w", err)
		}
	}
	return len(stale), nil
}

var _ Sink = (*BadgerSink)(nil)
