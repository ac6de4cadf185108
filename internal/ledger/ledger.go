package ledger

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"skoll/internal/asset"
	"skoll/internal/common"
)

// TransferAgent moves token value between external custody and the exchange.
// Calls are synchronous and all-or-nothing; a returned error means nothing
// moved.
type TransferAgent interface {
	TransferIn(token common.TokenHandle, from common.AccountID, amount uint64) error
	TransferOut(token common.TokenHandle, to common.AccountID, amount uint64) error
}

// NopAgent is a stand-in agent that accepts every transfer. Used when token
// custody is handled out of band.
type NopAgent struct{}

func (NopAgent) TransferIn(common.TokenHandle, common.AccountID, uint64) error  { return nil }
func (NopAgent) TransferOut(common.TokenHandle, common.AccountID, uint64) error { return nil }

type balanceKey struct {
	account common.AccountID
	symbol  common.Symbol
}

// Entry is one half of a settlement: a single credit or debit against one
// (account, symbol) balance. Entries are only meaningful in batches passed
// to Apply, where they land atomically.
type Entry struct {
	Account common.AccountID
	Symbol  common.Symbol
	Amount  uint64
	Debit   bool
}

// Ledger owns every balance. Balances are non-negative by construction:
// amounts are unsigned and every debit is checked. Absent entries read as
// zero.
type Ledger struct {
	registry *asset.Registry
	agent    TransferAgent

	mu       sync.RWMutex
	balances map[balanceKey]uint64
}

func New(registry *asset.Registry, agent TransferAgent) *Ledger {
	return &Ledger{
		registry: registry,
		agent:    agent,
		balances: make(map[balanceKey]uint64),
	}
}

// BalanceOf returns the balance for (account, sym), zero if never touched.
func (l *Ledger) BalanceOf(account common.AccountID, sym common.Symbol) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[balanceKey{account, sym}]
}

// Deposit credits an account. For non-native assets the external transfer-in
// must succeed before any balance changes; a declined transfer fails the
// whole call with ErrTransferFailed. Native deposits credit directly, since
// the value arrives attached to the call at the transport layer.
func (l *Ledger) Deposit(account common.AccountID, sym common.Symbol, amount uint64) error {
	if amount == 0 {
		return common.ErrInvalidAmount
	}

	if !sym.IsNative() {
		handle, err := l.registry.Resolve(sym)
		if err != nil {
			return err
		}
		if err := l.agent.TransferIn(handle, account, amount); err != nil {
			return fmt.Errorf("%w: %s", common.ErrTransferFailed, err)
		}
	}

	l.Credit(account, sym, amount)

	log.Debug().
		Str("account", string(account)).
		Str("symbol", sym.String()).
		Uint64("amount", amount).
		Msg("deposit")
	return nil
}

// Withdraw debits an account and releases the value externally. The debit
// happens strictly before the transfer-out so a reentrant caller cannot
// withdraw the same balance twice. If the external transfer is declined the
// debit is restored and the call fails with ErrTransferFailed, leaving state
// untouched.
func (l *Ledger) Withdraw(account common.AccountID, sym common.Symbol, amount uint64) error {
	if amount == 0 {
		return common.ErrInvalidAmount
	}

	var handle common.TokenHandle
	if !sym.IsNative() {
		var err error
		handle, err = l.registry.Resolve(sym)
		if err != nil {
			return err
		}
	}

	if err := l.Debit(account, sym, amount); err != nil {
		return err
	}

	if !sym.IsNative() {
		if err := l.agent.TransferOut(handle, account, amount); err != nil {
			l.Credit(account, sym, amount)
			return fmt.Errorf("%w: %s", common.ErrTransferFailed, err)
		}
	}

	log.Debug().
		Str("account", string(account)).
		Str("symbol", sym.String()).
		Uint64("amount", amount).
		Msg("withdrawal")
	return nil
}

// Credit unconditionally adds to a balance. Settlement primitive; callers
// are expected to hold the matching-side serialization for the asset.
func (l *Ledger) Credit(account common.AccountID, sym common.Symbol, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[balanceKey{account, sym}] += amount
}

// Debit removes from a balance, failing with ErrInsufficientBalance rather
// than going negative.
func (l *Ledger) Debit(account common.AccountID, sym common.Symbol, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := balanceKey{account, sym}
	if l.balances[key] < amount {
		return common.ErrInsufficientBalance
	}
	l.balances[key] -= amount
	return nil
}

// Apply lands a settlement batch atomically: every debit is validated
// against current balances under one lock, then all entries are applied, or
// none are. A failed batch returns ErrInsufficientBalance and changes
// nothing, which is what keeps a multi-fill market order all-or-nothing.
func (l *Ledger) Apply(entries []Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Dry run against a scratch view of the touched keys.
	scratch := make(map[balanceKey]uint64, len(entries))
	for _, e := range entries {
		key := balanceKey{e.Account, e.Symbol}
		bal, ok := scratch[key]
		if !ok {
			bal = l.balances[key]
		}
		if e.Debit {
			if bal < e.Amount {
				return fmt.Errorf("%w: %s %s short %d",
					common.ErrInsufficientBalance, e.Account, e.Symbol, e.Amount-bal)
			}
			bal -= e.Amount
		} else {
			bal += e.Amount
		}
		scratch[key] = bal
	}

	for key, bal := range scratch {
		l.balances[key] = bal
	}
	return nil
}
