package common

import (
	"fmt"
	"time"
)

// Trade records one matched increment between a market order (taker) and a
// resting limit order (maker). Settlement always happens at the maker's
// price; the taker has none.
type Trade struct {
	ID        string    // uuid, assigned at settlement time
	Symbol    Symbol    // Traded asset
	Price     uint64    // Maker's limit price
	Qty       uint64    // Matched quantity
	MakerID   uint64    // Resting order id; takers have no id
	Buyer     AccountID // Received the asset, paid native
	Seller    AccountID // Paid the asset, received native
	Timestamp time.Time // Settlement time
}

func (t Trade) String() string {
	return fmt.Sprintf(
		"trade %s: %d %s @ %d, %s -> %s (maker %d)",
		t.ID, t.Qty, t.Symbol, t.Price, t.Seller, t.Buyer, t.MakerID,
	)
}
