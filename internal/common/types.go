package common

type Side uint8

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	}
	return "unknown"
}

// Opposite returns the book side an incoming order matches against.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

type OrderKind uint8

const (
	// Limit orders rest on the book at their limit price until filled.
	// There is no cancel operation; a resting order leaves the book only
	// by filling completely.
	LimitOrder OrderKind = iota
	// Market orders are matched immediately against the book at the
	// resting orders' prices. They never rest; unfilled quantity is
	// dropped.
	MarketOrder
)

func (k OrderKind) String() string {
	switch k {
	case LimitOrder:
		return "limit"
	case MarketOrder:
		return "market"
	}
	return "unknown"
}
