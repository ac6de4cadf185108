package journal

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/cockroachdb/pebble"

	"skoll/internal/common"
)

// Journal is a pebble-backed, append-only trade log. Every settled trade
// increment lands here with a monotonic sequence number, giving the exchange
// an audit trail that survives restarts. Balances are not persisted; this
// journals transitions, not state.
type Journal struct {
	db  *pebble.DB
	seq atomic.Uint64
}

// keys: t:<8-byte big-endian sequence>
var (
	keyPrefix = []byte("t:")
	keyLimit  = []byte("t;") // prefix upper bound for iteration
)

func tradeKey(seq uint64) []byte {
	key := make([]byte, len(keyPrefix)+8)
	copy(key, keyPrefix)
	binary.BigEndian.PutUint64(key[len(keyPrefix):], seq)
	return key
}

func Open(path string) (*Journal, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	j := &Journal{db: db}

	// Resume the sequence after the last persisted trade.
	iter, err := db.NewIter(&pebble.IterOptions{
		LowerBound: keyPrefix,
		UpperBound: keyLimit,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open journal iterator: %w", err)
	}
	if iter.Last() && len(iter.Key()) == len(keyPrefix)+8 {
		j.seq.Store(binary.BigEndian.Uint64(iter.Key()[len(keyPrefix):]))
	}
	if err := iter.Close(); err != nil {
		db.Close()
		return nil, err
	}

	return j, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// Record appends one trade. Implements exchange.TradeRecorder.
func (j *Journal) Record(t common.Trade) error {
	val, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode trade: %w", err)
	}
	if err := j.db.Set(tradeKey(j.seq.Add(1)), val, pebble.Sync); err != nil {
		return fmt.Errorf("append trade: %w", err)
	}
	return nil
}

// Len returns the number of trades journaled so far.
func (j *Journal) Len() uint64 {
	return j.seq.Load()
}

// Recent returns up to n trades, newest first.
func (j *Journal) Recent(n int) ([]common.Trade, error) {
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: keyPrefix,
		UpperBound: keyLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("open journal iterator: %w", err)
	}
	defer iter.Close()

	trades := make([]common.Trade, 0, n)
	for ok := iter.Last(); ok && len(trades) < n; ok = iter.Prev() {
		var t common.Trade
		if err := json.Unmarshal(iter.Value(), &t); err != nil {
			return nil, fmt.Errorf("decode trade: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, iter.Error()
}
