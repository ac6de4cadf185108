package exchange

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"skoll/internal/asset"
	"skoll/internal/book"
	"skoll/internal/common"
	"skoll/internal/ledger"
)

// TradeRecorder receives every settled trade increment for audit. Recording
// is best-effort: a failing recorder is logged, never rolled back into the
// settlement.
type TradeRecorder interface {
	Record(common.Trade) error
}

// market pairs an order book with the lock serializing every mutating
// operation against it. Books are fully partitioned by asset, so different
// markets trade concurrently; the ledger does its own locking.
type market struct {
	mu   sync.RWMutex
	book *book.OrderBook
}

// Exchange is the matching engine: it validates incoming orders against the
// registry and ledger, matches market orders against resting limit orders in
// price-time priority, and settles every fill through the ledger.
type Exchange struct {
	registry *asset.Registry
	ledger   *ledger.Ledger

	nextID atomic.Uint64 // order id allocator; first id handed out is 1

	mu      sync.RWMutex
	markets map[common.Symbol]*market

	recorder TradeRecorder // optional
}

func New(registry *asset.Registry, led *ledger.Ledger) *Exchange {
	return &Exchange{
		registry: registry,
		ledger:   led,
		markets:  make(map[common.Symbol]*market),
	}
}

// SetRecorder wires a trade audit sink. Call before trading starts.
func (e *Exchange) SetRecorder(r TradeRecorder) {
	e.recorder = r
}

// RegisterAsset adds a symbol to the directory and opens its order book.
// Admin only; delegates the permission check to the registry.
func (e *Exchange) RegisterAsset(sym common.Symbol, handle common.TokenHandle, caller common.AccountID) error {
	if err := e.registry.Register(sym, handle, caller); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.markets[sym]; !ok {
		e.markets[sym] = &market{book: book.New()}
	}
	return nil
}

// Deposit and Withdraw are ledger passthroughs so callers deal with one
// facade.
func (e *Exchange) Deposit(account common.AccountID, sym common.Symbol, amount uint64) error {
	return e.ledger.Deposit(account, sym, amount)
}

func (e *Exchange) Withdraw(account common.AccountID, sym common.Symbol, amount uint64) error {
	return e.ledger.Withdraw(account, sym, amount)
}

// Balance returns the ledger balance for (account, sym), zero by default.
func (e *Exchange) Balance(account common.AccountID, sym common.Symbol) uint64 {
	return e.ledger.BalanceOf(account, sym)
}

func (e *Exchange) marketFor(sym common.Symbol) (*market, error) {
	e.mu.RLock()
	m, ok := e.markets[sym]
	e.mu.RUnlock()
	if ok {
		return m, nil
	}

	if !e.registry.Registered(sym) {
		return nil, common.ErrUnknownAsset
	}

	// Registry was primed without going through RegisterAsset; open the
	// book lazily.
	e.mu.Lock()
	defer e.mu.Unlock()
	if m, ok := e.markets[sym]; ok {
		return m, nil
	}
	m = &market{book: book.New()}
	e.markets[sym] = m
	return m, nil
}

// CreateLimitOrder rests a new limit order on the book and returns its id.
//
// The balance requirement (asset for sells, worst-case native cost for buys)
// is a pre-flight check only: nothing is escrowed, and actual debits happen
// per fill at the fill's price. Placement never matches against the opposite
// side; matching is driven entirely by market-order arrival.
func (e *Exchange) CreateLimitOrder(sd common.Side, sym common.Symbol, amount, price uint64, owner common.AccountID) (uint64, error) {
	if amount == 0 || price == 0 {
		return 0, common.ErrInvalidAmount
	}
	if amount > math.MaxUint64/price {
		return 0, common.ErrInvalidAmount
	}

	m, err := e.marketFor(sym)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch sd {
	case common.Sell:
		if e.ledger.BalanceOf(owner, sym) < amount {
			return 0, common.ErrInsufficientBalance
		}
	case common.Buy:
		if e.ledger.BalanceOf(owner, common.Native) < amount*price {
			return 0, common.ErrInsufficientBalance
		}
	default:
		return 0, common.ErrInvalidSide
	}

	o := &common.Order{
		ID:     e.nextID.Add(1),
		Side:   sd,
		Kind:   common.LimitOrder,
		Symbol: sym,
		Owner:  owner,
		Price:  price,
		Amount: amount,
	}
	m.book.Insert(o)

	log.Debug().
		Uint64("id", o.ID).
		Str("side", sd.String()).
		Str("symbol", sym.String()).
		Uint64("amount", amount).
		Uint64("price", price).
		Str("owner", string(owner)).
		Msg("limit order resting")
	return o.ID, nil
}

// fill is one planned settlement increment against a resting maker order.
type fill struct {
	maker *common.Order
	qty   uint64
	cost  uint64 // qty * maker price, in native units
}

// CreateMarketOrder matches an incoming market order against the opposite
// side of the book, best price first, and returns the filled quantity.
//
// The walk is planned first and settled second: every ledger delta is
// buffered and applied in one atomic batch, so a balance shortfall anywhere
// in the walk fails the whole call and leaves ledger and book untouched.
// Unfilled remainder is dropped; market orders never rest.
func (e *Exchange) CreateMarketOrder(sd common.Side, sym common.Symbol, amount uint64, owner common.AccountID) (uint64, error) {
	if amount == 0 {
		return 0, common.ErrInvalidAmount
	}

	m, err := e.marketFor(sym)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Entry checks: a seller must hold the full
	// amount on deposit, and a buyer must hold native balance at all,
	// even against an empty book.
	switch sd {
	case common.Sell:
		if e.ledger.BalanceOf(owner, sym) < amount {
			return 0, common.ErrInsufficientBalance
		}
	case common.Buy:
		if e.ledger.BalanceOf(owner, common.Native) == 0 {
			return 0, common.ErrInsufficientBalance
		}
	default:
		return 0, common.ErrInvalidSide
	}

	fills, filled, err := e.planFills(m.book, sd, amount, owner)
	if err != nil {
		return 0, err
	}
	if len(fills) == 0 {
		// Empty opposite side: nothing to fill, nothing to mutate.
		return 0, nil
	}

	entries := make([]ledger.Entry, 0, 4*len(fills))
	for _, f := range fills {
		buyer, seller := owner, f.maker.Owner
		if sd == common.Sell {
			buyer, seller = f.maker.Owner, owner
		}
		entries = append(entries,
			ledger.Entry{Account: seller, Symbol: sym, Amount: f.qty, Debit: true},
			ledger.Entry{Account: buyer, Symbol: sym, Amount: f.qty},
			ledger.Entry{Account: buyer, Symbol: common.Native, Amount: f.cost, Debit: true},
			ledger.Entry{Account: seller, Symbol: common.Native, Amount: f.cost},
		)
	}
	if err := e.ledger.Apply(entries); err != nil {
		// A maker's balance moved out from under its resting order
		// (withdrawals are not blocked by open orders). The batch was
		// rejected wholesale, so conservation holds.
		return 0, fmt.Errorf("settlement rejected: %w", err)
	}

	for _, f := range fills {
		f.maker.Filled += f.qty
	}
	m.book.Compact(sd.Opposite())

	e.recordFills(sd, sym, owner, fills)

	log.Debug().
		Str("side", sd.String()).
		Str("symbol", sym.String()).
		Uint64("requested", amount).
		Uint64("filled", filled).
		Str("owner", string(owner)).
		Msg("market order settled")
	return filled, nil
}

// planFills walks the opposite side in priority order and buffers settlement
// increments without mutating anything. Buyer affordability is re-validated
// per increment against cumulative planned spend; a shortfall aborts the
// plan. Seller affordability is covered by the entry check, since total
// fills never exceed the requested amount.
func (e *Exchange) planFills(ob *book.OrderBook, sd common.Side, amount uint64, owner common.AccountID) ([]fill, uint64, error) {
	var (
		fills     []fill
		remaining = amount
		spend     uint64
		planErr   error
	)

	ob.Walk(sd.Opposite(), func(rest *common.Order) bool {
		qty := min(remaining, rest.Open())
		cost := qty * rest.Price

		if sd == common.Buy {
			// Guard the running total so a wrapped sum cannot pass the
			// affordability check.
			if spend > math.MaxUint64-cost ||
				e.ledger.BalanceOf(owner, common.Native) < spend+cost {
				planErr = common.ErrInsufficientBalance
				return false
			}
		}

		fills = append(fills, fill{maker: rest, qty: qty, cost: cost})
		remaining -= qty
		spend += cost
		return remaining > 0
	})
	if planErr != nil {
		return nil, 0, planErr
	}
	return fills, amount - remaining, nil
}

func (e *Exchange) recordFills(sd common.Side, sym common.Symbol, owner common.AccountID, fills []fill) {
	if e.recorder == nil {
		return
	}
	now := time.Now()
	for _, f := range fills {
		buyer, seller := owner, f.maker.Owner
		if sd == common.Sell {
			buyer, seller = f.maker.Owner, owner
		}
		t := common.Trade{
			ID:        uuid.NewString(),
			Symbol:    sym,
			Price:     f.maker.Price,
			Qty:       f.qty,
			MakerID:   f.maker.ID,
			Buyer:     buyer,
			Seller:    seller,
			Timestamp: now,
		}
		if err := e.recorder.Record(t); err != nil {
			log.Error().Err(err).Str("trade", t.ID).Msg("trade not journaled")
		}
	}
}

// OrderBook returns a priority-ordered snapshot of one side of a book.
// Side-effect-free and safe to call while the other side trades.
func (e *Exchange) OrderBook(sym common.Symbol, sd common.Side) ([]common.Order, error) {
	m, err := e.marketFor(sym)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.book.Snapshot(sd), nil
}
