package book

import (
	"github.com/tidwall/btree"

	"skoll/internal/common"
)

// priceLevel groups resting orders at one price, FIFO by arrival. Order ids
// are allocated monotonically and placement is serialized per asset, so
// appending keeps each level in ascending-id order.
type priceLevel struct {
	price  uint64
	orders []*common.Order
}

type levels = btree.BTreeG[*priceLevel]

// OrderBook holds the resting limit orders for a single asset. The buy side
// is kept best-bid-first (descending price), the sell side best-ask-first
// (ascending price); within a level, oldest first. The book itself is a
// plain structure: the matching engine owns it exclusively and serializes
// all access.
type OrderBook struct {
	bids *levels
	asks *levels
}

func New() *OrderBook {
	// Min of each tree is the best price for that side.
	bids := btree.NewBTreeG(func(a, b *priceLevel) bool {
		return a.price > b.price
	})
	asks := btree.NewBTreeG(func(a, b *priceLevel) bool {
		return a.price < b.price
	})
	return &OrderBook{bids: bids, asks: asks}
}

func (ob *OrderBook) sideOf(sd common.Side) *levels {
	if sd == common.Buy {
		return ob.bids
	}
	return ob.asks
}

// Insert places a resting limit order at the position preserving the
// priority ordering invariant.
func (ob *OrderBook) Insert(o *common.Order) {
	side := ob.sideOf(o.Side)

	// Comparator only looks at price, so a bare level works as the key.
	if lvl, ok := side.GetMut(&priceLevel{price: o.Price}); ok {
		lvl.orders = append(lvl.orders, o)
		return
	}
	side.Set(&priceLevel{price: o.Price, orders: []*common.Order{o}})
}

// Walk visits one side's resting orders in matching priority order until fn
// returns false. The book must not be mutated during the walk.
func (ob *OrderBook) Walk(sd common.Side, fn func(*common.Order) bool) {
	ob.sideOf(sd).Scan(func(lvl *priceLevel) bool {
		for _, o := range lvl.orders {
			if !fn(o) {
				return false
			}
		}
		return true
	})
}

// Compact removes fully filled orders from the head of a side. After a
// market sweep the filled orders always form a prefix of the priority
// sequence, so compaction stops at the first order with open quantity.
func (ob *OrderBook) Compact(sd common.Side) {
	side := ob.sideOf(sd)
	for {
		lvl, ok := side.MinMut()
		if !ok {
			return
		}
		i := 0
		for i < len(lvl.orders) && lvl.orders[i].Open() == 0 {
			i++
		}
		lvl.orders = lvl.orders[i:]
		if len(lvl.orders) > 0 {
			return
		}
		side.Delete(lvl)
	}
}

// Snapshot returns copies of one side's resting orders in priority order.
func (ob *OrderBook) Snapshot(sd common.Side) []common.Order {
	out := make([]common.Order, 0, ob.Len(sd))
	ob.Walk(sd, func(o *common.Order) bool {
		out = append(out, *o)
		return true
	})
	return out
}

// Len returns the number of resting orders on a side.
func (ob *OrderBook) Len(sd common.Side) int {
	n := 0
	ob.sideOf(sd).Scan(func(lvl *priceLevel) bool {
		n += len(lvl.orders)
		return true
	})
	return n
}
