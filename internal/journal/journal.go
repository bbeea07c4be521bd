// Package journal persists committed exchange commands in a pebble store so
// the in-memory exchange can be rebuilt by replay at start-up.
package journal

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/alanyoungcy/socialbet/internal/exchange"
)

var keyPrefix = []byte("cmd/")

// Journal is an append-only command log keyed by sequence number.
type Journal struct {
	mu     sync.Mutex
	db     *pebble.DB
	write  *pebble.WriteOptions
	last   uint64
	logger *slog.Logger
}

var _ exchange.Journal = (*Journal)(nil)

// Open opens or creates the journal in dir. With sync set every append is
// fsynced before it returns.
func Open(dir string, sync bool, logger *slog.Logger) (*Journal, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", dir, err)
	}
	j := &Journal{db: db, write: pebble.NoSync, logger: logger.With(slog.String("component", "journal"))}
	if sync {
		j.write = pebble.Sync
	}
	last, err := j.lastSeq()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	j.last = last
	return j, nil
}

// Close flushes and closes the store.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Last returns the highest sequence written.
func (j *Journal) Last() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.last
}

// Append writes cmd under the next sequence number and returns it.
func (j *Journal) Append(_ context.Context, cmd exchange.Command) (uint64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	seq := j.last + 1
	if err := j.db.Set(key(seq), Encode(seq, cmd), j.write); err != nil {
		return 0, fmt.Errorf("journal: append %d: %w", seq, err)
	}
	j.last = seq
	return seq, nil
}

func (j *Journal) lastSeq() (uint64, error) {
	iter, err := j.db.NewIter(bounds(0))
	if err != nil {
		return 0, fmt.Errorf("journal: iterate: %w", err)
	}
	defer iter.Close()
	if !iter.Last() {
		return 0, iter.Error()
	}
	return binary.BigEndian.Uint64(iter.Key()[len(keyPrefix):]), nil
}

// Cursor iterates commands in sequence order.
type Cursor struct {
	iter    *pebble.Iterator
	started bool
	seq     uint64
}

// From returns a cursor positioned before the first command with a sequence
// greater than after.
func (j *Journal) From(after uint64) (*Cursor, error) {
	iter, err := j.db.NewIter(bounds(after + 1))
	if err != nil {
		return nil, fmt.Errorf("journal: iterate: %w", err)
	}
	return &Cursor{iter: iter}, nil
}

// Next returns the next command, or false at the end of the journal.
func (c *Cursor) Next() (exchange.Command, bool, error) {
	var ok bool
	if !c.started {
		c.started = true
		ok = c.iter.First()
	} else {
		ok = c.iter.Next()
	}
	if !ok {
		return exchange.Command{}, false, c.iter.Error()
	}
	seq, cmd, err := Decode(c.iter.Value())
	if err != nil {
		return cmd, false, fmt.Errorf("journal: record %x: %w", c.iter.Key(), err)
	}
	want := binary.BigEndian.Uint64(c.iter.Key()[len(keyPrefix):])
	if seq != want {
		return cmd, false, fmt.Errorf("journal: record %d holds sequence %d", want, seq)
	}
	if c.seq != 0 && seq != c.seq+1 {
		return cmd, false, fmt.Errorf("journal: gap between %d and %d", c.seq, seq)
	}
	c.seq = seq
	return cmd, true, nil
}

// Seq returns the sequence of the last command returned by Next.
func (c *Cursor) Seq() uint64 { return c.seq }

// Close releases the iterator.
func (c *Cursor) Close() error { return c.iter.Close() }

// Replay rebuilds x from the whole journal and returns the number of commands
// applied.
func (j *Journal) Replay(ctx context.Context, x *exchange.Exchange) (int, error) {
	cur, err := j.From(0)
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := cur.Close(); cerr != nil {
			j.logger.Warn("close replay cursor", slog.String("error", cerr.Error()))
		}
	}()
	n, err := x.Replay(ctx, cur.Next)
	if err != nil {
		return n, err
	}
	j.logger.InfoContext(ctx, "journal replayed",
		slog.Int("commands", n),
		slog.Uint64("last_seq", cur.Seq()),
	)
	return n, nil
}

// key encodes seq big-endian so keys sort in sequence order.
func key(seq uint64) []byte {
	k := make([]byte, len(keyPrefix)+8)
	copy(k, keyPrefix)
	binary.BigEndian.PutUint64(k[len(keyPrefix):], seq)
	return k
}

func bounds(from uint64) *pebble.IterOptions {
	upper := append([]byte(nil), keyPrefix...)
	upper[len(upper)-1]++
	return &pebble.IterOptions{LowerBound: key(from), UpperBound: upper}
}
