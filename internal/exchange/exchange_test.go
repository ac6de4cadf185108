package exchange_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skoll/internal/asset"
	"skoll/internal/common"
	"skoll/internal/exchange"
	"skoll/internal/ledger"
)

const (
	admin = common.AccountID("admin")
	alice = common.AccountID("alice") // usually the taker
	bob   = common.AccountID("bob")   // resting sellers
	carol = common.AccountID("carol")
	dave  = common.AccountID("dave")
)

var (
	tLINK = common.NewSymbol("tLINK")
	tUNI  = common.NewSymbol("tUNI")
)

// memRecorder captures settled trades for assertions.
type memRecorder struct {
	trades []common.Trade
}

func (r *memRecorder) Record(t common.Trade) error {
	r.trades = append(r.trades, t)
	return nil
}

func newTestExchange(t *testing.T) *exchange.Exchange {
	t.Helper()
	reg := asset.NewRegistry(admin)
	led := ledger.New(reg, ledger.NopAgent{})
	exch := exchange.New(reg, led)
	require.NoError(t, exch.RegisterAsset(tLINK, "0xlink", admin))
	return exch
}

// sellBook seeds bob, carol and dave with tLINK and rests one sell order
// each at prices 300, 400, 500 for amount 5.
func sellBook(t *testing.T, exch *exchange.Exchange) {
	t.Helper()
	for i, seller := range []common.AccountID{bob, carol, dave} {
		require.NoError(t, exch.Deposit(seller, tLINK, 50))
		_, err := exch.CreateLimitOrder(common.Sell, tLINK, 5, uint64(300+100*i), seller)
		require.NoError(t, err)
	}
}

func TestRegisterAsset_AdminOnly(t *testing.T) {
	exch := newTestExchange(t)

	err := exch.RegisterAsset(tUNI, "0xuni", alice)
	assert.ErrorIs(t, err, common.ErrUnauthorized)

	assert.NoError(t, exch.RegisterAsset(tUNI, "0xuni", admin))
	assert.ErrorIs(t, exch.RegisterAsset(tUNI, "0xuni", admin), common.ErrAlreadyRegistered)
}

func TestCreateLimitOrder_Validation(t *testing.T) {
	exch := newTestExchange(t)

	// 1. Zero amount or price never reaches the book.
	_, err := exch.CreateLimitOrder(common.Sell, tLINK, 0, 300, alice)
	assert.ErrorIs(t, err, common.ErrInvalidAmount)
	_, err = exch.CreateLimitOrder(common.Buy, tLINK, 5, 0, alice)
	assert.ErrorIs(t, err, common.ErrInvalidAmount)

	// 2. Unregistered symbols are rejected.
	_, err = exch.CreateLimitOrder(common.Sell, tUNI, 5, 300, alice)
	assert.ErrorIs(t, err, common.ErrUnknownAsset)
}

func TestCreateOrder_RejectsUnknownSide(t *testing.T) {
	exch := newTestExchange(t)

	// 1. An out-of-range side must not slip past the balance checks and
	// rest on the book; alice holds nothing.
	_, err := exch.CreateLimitOrder(common.Side(2), tLINK, 10, 300, alice)
	assert.ErrorIs(t, err, common.ErrInvalidSide)

	for _, sd := range []common.Side{common.Buy, common.Sell} {
		orders, err := exch.OrderBook(tLINK, sd)
		require.NoError(t, err)
		assert.Empty(t, orders)
	}

	// 2. Same for market orders.
	_, err = exch.CreateMarketOrder(common.Side(7), tLINK, 10, alice)
	assert.ErrorIs(t, err, common.ErrInvalidSide)
}

func TestCreateLimitOrder_SellNeedsAssetOnDeposit(t *testing.T) {
	exch := newTestExchange(t)

	// 1. Selling without the asset on deposit fails and leaves the book
	// untouched.
	_, err := exch.CreateLimitOrder(common.Sell, tLINK, 10, 300, alice)
	assert.ErrorIs(t, err, common.ErrInsufficientBalance)

	orders, err := exch.OrderBook(tLINK, common.Sell)
	require.NoError(t, err)
	assert.Empty(t, orders)

	// 2. With the asset deposited, the order rests.
	require.NoError(t, exch.Deposit(alice, tLINK, 10))
	id, err := exch.CreateLimitOrder(common.Sell, tLINK, 10, 300, alice)
	assert.NoError(t, err)
	assert.NotZero(t, id)

	orders, err = exch.OrderBook(tLINK, common.Sell)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, id, orders[0].ID)
	assert.Equal(t, uint64(0), orders[0].Filled)

	// 3. Placement is a pre-flight check only: nothing was escrowed.
	assert.Equal(t, uint64(10), exch.Balance(alice, tLINK))
}

func TestCreateLimitOrder_BuyNeedsWorstCaseNative(t *testing.T) {
	exch := newTestExchange(t)

	require.NoError(t, exch.Deposit(alice, common.Native, 1499))

	// Worst case is amount * limit price = 1500.
	_, err := exch.CreateLimitOrder(common.Buy, tLINK, 5, 300, alice)
	assert.ErrorIs(t, err, common.ErrInsufficientBalance)

	require.NoError(t, exch.Deposit(alice, common.Native, 1))
	_, err = exch.CreateLimitOrder(common.Buy, tLINK, 5, 300, alice)
	assert.NoError(t, err)
}

func TestCreateLimitOrder_NeverCrosses(t *testing.T) {
	exch := newTestExchange(t)

	require.NoError(t, exch.Deposit(bob, tLINK, 5))
	require.NoError(t, exch.Deposit(alice, common.Native, 10000))

	// A buy limit above the best ask still rests: limit placement never
	// matches, matching is driven by market orders only.
	_, err := exch.CreateLimitOrder(common.Sell, tLINK, 5, 300, bob)
	require.NoError(t, err)
	_, err = exch.CreateLimitOrder(common.Buy, tLINK, 5, 500, alice)
	require.NoError(t, err)

	asks, err := exch.OrderBook(tLINK, common.Sell)
	require.NoError(t, err)
	bids, err := exch.OrderBook(tLINK, common.Buy)
	require.NoError(t, err)
	assert.Len(t, asks, 1)
	assert.Len(t, bids, 1)
	assert.Equal(t, uint64(0), asks[0].Filled)
	assert.Equal(t, uint64(0), bids[0].Filled)
}

func TestOrderIDs_StrictlyIncreasing(t *testing.T) {
	exch := newTestExchange(t)
	require.NoError(t, exch.RegisterAsset(tUNI, "0xuni", admin))

	require.NoError(t, exch.Deposit(alice, tLINK, 100))
	require.NoError(t, exch.Deposit(alice, tUNI, 100))
	require.NoError(t, exch.Deposit(alice, common.Native, 100000))

	// Ids increase across assets and sides alike.
	var last uint64
	for i := 0; i < 4; i++ {
		for _, sym := range []common.Symbol{tLINK, tUNI} {
			for _, sd := range []common.Side{common.Buy, common.Sell} {
				id, err := exch.CreateLimitOrder(sd, sym, 1, 10, alice)
				require.NoError(t, err)
				assert.Greater(t, id, last)
				last = id
			}
		}
	}
}

func TestMarketBuy_EmptyBookZeroNative(t *testing.T) {
	exch := newTestExchange(t)

	// A buyer with no native balance is rejected even though an empty
	// book would trivially fill nothing.
	_, err := exch.CreateMarketOrder(common.Buy, tLINK, 10, alice)
	assert.ErrorIs(t, err, common.ErrInsufficientBalance)
}

func TestMarketBuy_EmptyBookPositiveNative(t *testing.T) {
	exch := newTestExchange(t)
	require.NoError(t, exch.Deposit(alice, common.Native, 10000))

	filled, err := exch.CreateMarketOrder(common.Buy, tLINK, 10, alice)
	assert.NoError(t, err)
	assert.Zero(t, filled)

	// No fills possible, nothing changed.
	assert.Equal(t, uint64(10000), exch.Balance(alice, common.Native))
	orders, err := exch.OrderBook(tLINK, common.Buy)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestMarketSell_WithoutTokens(t *testing.T) {
	exch := newTestExchange(t)

	_, err := exch.CreateMarketOrder(common.Sell, tLINK, 10, alice)
	assert.ErrorIs(t, err, common.ErrInsufficientBalance)
}

func TestMarketBuy_FillsCheapestFirst(t *testing.T) {
	exch := newTestExchange(t)
	sellBook(t, exch)
	require.NoError(t, exch.Deposit(alice, common.Native, 10000))

	// Market buy for 10 against asks 5@300, 5@400, 5@500: exactly the
	// two cheapest orders fill and leave the book.
	filled, err := exch.CreateMarketOrder(common.Buy, tLINK, 10, alice)
	assert.NoError(t, err)
	assert.Equal(t, uint64(10), filled)

	orders, err := exch.OrderBook(tLINK, common.Sell)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, uint64(500), orders[0].Price)
	assert.Equal(t, uint64(0), orders[0].Filled)
	assert.Equal(t, uint64(5), orders[0].Amount)

	// Settlement at resting prices: 5*300 + 5*400.
	assert.Equal(t, uint64(10000-3500), exch.Balance(alice, common.Native))
	assert.Equal(t, uint64(10), exch.Balance(alice, tLINK))

	// Each matched seller paid their tradable amount and received native
	// at their own price.
	assert.Equal(t, uint64(45), exch.Balance(bob, tLINK))
	assert.Equal(t, uint64(1500), exch.Balance(bob, common.Native))
	assert.Equal(t, uint64(45), exch.Balance(carol, tLINK))
	assert.Equal(t, uint64(2000), exch.Balance(carol, common.Native))
	assert.Equal(t, uint64(50), exch.Balance(dave, tLINK))
	assert.Equal(t, uint64(0), exch.Balance(dave, common.Native))
}

func TestMarketBuy_ExhaustsBookAndDropsRemainder(t *testing.T) {
	exch := newTestExchange(t)
	require.NoError(t, exch.Deposit(bob, tLINK, 50))
	require.NoError(t, exch.Deposit(alice, common.Native, 10000))

	_, err := exch.CreateLimitOrder(common.Sell, tLINK, 5, 300, bob)
	require.NoError(t, err)

	// Market buy for 50 against a single 5@300 ask: 5 fills, 45 is
	// silently dropped, no resting order is created for the remainder.
	filled, err := exch.CreateMarketOrder(common.Buy, tLINK, 50, alice)
	assert.NoError(t, err)
	assert.Equal(t, uint64(5), filled)
	assert.Equal(t, uint64(5), exch.Balance(alice, tLINK))

	asks, err := exch.OrderBook(tLINK, common.Sell)
	require.NoError(t, err)
	assert.Empty(t, asks)
	bids, err := exch.OrderBook(tLINK, common.Buy)
	require.NoError(t, err)
	assert.Empty(t, bids)
}

func TestMarketBuy_PartialFillMutatesRestingOrder(t *testing.T) {
	exch := newTestExchange(t)
	require.NoError(t, exch.Deposit(bob, tLINK, 50))
	require.NoError(t, exch.Deposit(alice, common.Native, 10000))

	id, err := exch.CreateLimitOrder(common.Sell, tLINK, 5, 300, bob)
	require.NoError(t, err)

	filled, err := exch.CreateMarketOrder(common.Buy, tLINK, 2, alice)
	assert.NoError(t, err)
	assert.Equal(t, uint64(2), filled)

	// The resting order stays in the book with its filled amount set.
	orders, err := exch.OrderBook(tLINK, common.Sell)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, id, orders[0].ID)
	assert.Equal(t, uint64(2), orders[0].Filled)
	assert.Equal(t, uint64(5), orders[0].Amount)
}

func TestMarketSell_MirrorsBuy(t *testing.T) {
	exch := newTestExchange(t)

	// Bob rests a buy order for 5 @ 300; alice sells 3 into it.
	require.NoError(t, exch.Deposit(bob, common.Native, 1500))
	require.NoError(t, exch.Deposit(alice, tLINK, 10))

	_, err := exch.CreateLimitOrder(common.Buy, tLINK, 5, 300, bob)
	require.NoError(t, err)

	filled, err := exch.CreateMarketOrder(common.Sell, tLINK, 3, alice)
	assert.NoError(t, err)
	assert.Equal(t, uint64(3), filled)

	assert.Equal(t, uint64(7), exch.Balance(alice, tLINK))
	assert.Equal(t, uint64(900), exch.Balance(alice, common.Native))
	assert.Equal(t, uint64(3), exch.Balance(bob, tLINK))
	assert.Equal(t, uint64(600), exch.Balance(bob, common.Native))

	bids, err := exch.OrderBook(tLINK, common.Buy)
	require.NoError(t, err)
	require.Len(t, bids, 1)
	assert.Equal(t, uint64(3), bids[0].Filled)
}

func TestMarketBuy_MidWalkShortfallRollsBack(t *testing.T) {
	exch := newTestExchange(t)
	sellBook(t, exch)

	// 2000 native covers the first increment (5*300) but not the second
	// (5*400). The whole call fails and neither increment settles.
	require.NoError(t, exch.Deposit(alice, common.Native, 2000))

	_, err := exch.CreateMarketOrder(common.Buy, tLINK, 10, alice)
	assert.ErrorIs(t, err, common.ErrInsufficientBalance)

	assert.Equal(t, uint64(2000), exch.Balance(alice, common.Native))
	assert.Zero(t, exch.Balance(alice, tLINK))

	orders, err := exch.OrderBook(tLINK, common.Sell)
	require.NoError(t, err)
	require.Len(t, orders, 3)
	for _, o := range orders {
		assert.Equal(t, uint64(0), o.Filled)
	}
}

func TestMarketBuy_PlannedSpendCannotWrap(t *testing.T) {
	exch := newTestExchange(t)

	// Two resting sells each costing MaxUint64; the running spend for a
	// buyer sweeping both wraps around zero. The plan must fail cleanly
	// instead of letting the wrapped sum pass the affordability check.
	require.NoError(t, exch.Deposit(bob, tLINK, 2))
	for i := 0; i < 2; i++ {
		_, err := exch.CreateLimitOrder(common.Sell, tLINK, 1, math.MaxUint64, bob)
		require.NoError(t, err)
	}
	require.NoError(t, exch.Deposit(alice, common.Native, math.MaxUint64))

	_, err := exch.CreateMarketOrder(common.Buy, tLINK, 2, alice)
	assert.Equal(t, common.ErrInsufficientBalance, err)

	assert.Equal(t, uint64(math.MaxUint64), exch.Balance(alice, common.Native))
	assert.Zero(t, exch.Balance(alice, tLINK))

	orders, err := exch.OrderBook(tLINK, common.Sell)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	for _, o := range orders {
		assert.Equal(t, uint64(0), o.Filled)
	}
}

func TestMarketBuy_RecordsTrades(t *testing.T) {
	exch := newTestExchange(t)
	rec := &memRecorder{}
	exch.SetRecorder(rec)

	sellBook(t, exch)
	require.NoError(t, exch.Deposit(alice, common.Native, 10000))

	_, err := exch.CreateMarketOrder(common.Buy, tLINK, 7, alice)
	require.NoError(t, err)

	// One trade per matched increment, maker prices preserved.
	require.Len(t, rec.trades, 2)
	assert.Equal(t, uint64(5), rec.trades[0].Qty)
	assert.Equal(t, uint64(300), rec.trades[0].Price)
	assert.Equal(t, bob, rec.trades[0].Seller)
	assert.Equal(t, uint64(2), rec.trades[1].Qty)
	assert.Equal(t, uint64(400), rec.trades[1].Price)
	assert.Equal(t, carol, rec.trades[1].Seller)
	for _, tr := range rec.trades {
		assert.Equal(t, alice, tr.Buyer)
		assert.NotEmpty(t, tr.ID)
	}
}

func TestMarketOrder_Validation(t *testing.T) {
	exch := newTestExchange(t)

	_, err := exch.CreateMarketOrder(common.Buy, tLINK, 0, alice)
	assert.ErrorIs(t, err, common.ErrInvalidAmount)

	_, err = exch.CreateMarketOrder(common.Buy, tUNI, 5, alice)
	assert.ErrorIs(t, err, common.ErrUnknownAsset)
}

func TestConservation_AcrossTrades(t *testing.T) {
	exch := newTestExchange(t)
	sellBook(t, exch)
	require.NoError(t, exch.Deposit(alice, common.Native, 10000))

	_, err := exch.CreateMarketOrder(common.Buy, tLINK, 12, alice)
	require.NoError(t, err)

	// Total tLINK across all accounts equals total deposits; native
	// likewise. Settlement only moves value, never mints it.
	totalLink := exch.Balance(alice, tLINK) + exch.Balance(bob, tLINK) +
		exch.Balance(carol, tLINK) + exch.Balance(dave, tLINK)
	assert.Equal(t, uint64(150), totalLink)

	totalNative := exch.Balance(alice, common.Native) + exch.Balance(bob, common.Native) +
		exch.Balance(carol, common.Native) + exch.Balance(dave, common.Native)
	assert.Equal(t, uint64(10000), totalNative)
}
