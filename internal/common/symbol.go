package common

import "bytes"

// SymbolLen is the fixed width of an asset symbol on the wire and in maps.
const SymbolLen = 8

// Symbol identifies a registered asset. Text shorter than SymbolLen is
// NUL-padded, longer text is truncated. Comparison is byte-for-byte, so
// symbols are case-sensitive.
type Symbol [SymbolLen]byte

// Native is the unit of account every order book is denominated in. It is
// implicit: it exists without registration and never carries a token handle.
var Native = NewSymbol("ETH")

func NewSymbol(text string) Symbol {
	var s Symbol
	copy(s[:], text)
	return s
}

func (s Symbol) String() string {
	return string(bytes.TrimRight(s[:], "\x00"))
}

// MarshalText renders the symbol as trimmed text for JSON surfaces.
func (s Symbol) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Symbol) UnmarshalText(text []byte) error {
	*s = NewSymbol(string(text))
	return nil
}

func (s Symbol) IsNative() bool {
	return s == Native
}

func (s Symbol) IsZero() bool {
	return s == Symbol{}
}

// AccountID is a stable, opaque account identifier. Key custody is not this
// system's concern; whoever hands us an AccountID has already authenticated it.
type AccountID string

// TokenHandle references the external token contract backing a registered
// asset. The zero value is the native sentinel.
type TokenHandle string

// NativeHandle marks the native unit of account, which has no backing token.
const NativeHandle TokenHandle = ""
