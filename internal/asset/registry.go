package asset

import (
	"sync"

	"github.com/rs/zerolog/log"

	"skoll/internal/common"
)

// Registry is the permissioned directory of tradable assets. Registration is
// a one-way transition: entries are never mutated or deleted, and only the
// admin account may add them. The native unit of account is implicit and is
// never stored here.
type Registry struct {
	admin common.AccountID

	mu     sync.RWMutex
	assets map[common.Symbol]common.TokenHandle
}

func NewRegistry(admin common.AccountID) *Registry {
	return &Registry{
		admin:  admin,
		assets: make(map[common.Symbol]common.TokenHandle),
	}
}

// Register inserts a new symbol backed by an external token handle. Fails
// with ErrUnauthorized unless caller is the admin, and with
// ErrAlreadyRegistered if the symbol exists. Registering the native symbol
// is rejected the same way, since it is implicitly always present.
func (r *Registry) Register(sym common.Symbol, handle common.TokenHandle, caller common.AccountID) error {
	if caller != r.admin {
		return common.ErrUnauthorized
	}
	if sym.IsZero() {
		return common.ErrInvalidSymbol
	}
	if sym.IsNative() {
		return common.ErrAlreadyRegistered
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.assets[sym]; ok {
		return common.ErrAlreadyRegistered
	}
	r.assets[sym] = handle

	log.Info().
		Str("symbol", sym.String()).
		Str("handle", string(handle)).
		Msg("asset registered")
	return nil
}

// Resolve returns the token handle behind a symbol. The native symbol
// resolves to the native sentinel without ever having been registered.
func (r *Registry) Resolve(sym common.Symbol) (common.TokenHandle, error) {
	if sym.IsNative() {
		return common.NativeHandle, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	handle, ok := r.assets[sym]
	if !ok {
		return common.NativeHandle, common.ErrUnknownAsset
	}
	return handle, nil
}

// Registered reports whether orders can be placed against a symbol. Only
// registered non-native assets carry an order book.
func (r *Registry) Registered(sym common.Symbol) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.assets[sym]
	return ok
}

// Symbols returns every registered symbol, in no particular order.
func (r *Registry) Symbols() []common.Symbol {
	r.mu.RLock()
	defer r.mu.RUnlock()

	syms := make([]common.Symbol, 0, len(r.assets))
	for sym := range r.assets {
		syms = append(syms, sym)
	}
	return syms
}
