package common

import "fmt"

type Order struct {
	ID     uint64    // Allocator-assigned, strictly increasing, never reused
	Side   Side      // Order side
	Kind   OrderKind // Limit or market
	Symbol Symbol    // Traded asset
	Owner  AccountID // Who owns this order
	Price  uint64    // Native units per asset unit; zero for market orders
	Amount uint64    // Originally requested quantity
	Filled uint64    // Quantity filled so far, never exceeds Amount
}

// Open returns the unfilled quantity.
func (o Order) Open() uint64 {
	return o.Amount - o.Filled
}

func (o Order) String() string {
	return fmt.Sprintf(
		"order %d: %s %s %d %s @ %d (filled %d)",
		o.ID, o.Kind, o.Side, o.Amount, o.Symbol, o.Price, o.Filled,
	)
}
