package common

import "errors"

var (
	// ErrUnauthorized is returned when a non-admin caller attempts a
	// privileged operation.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrAlreadyRegistered is returned when registering a symbol twice.
	ErrAlreadyRegistered = errors.New("asset already registered")
	// ErrUnknownAsset is returned when an operation names a symbol that
	// was never registered.
	ErrUnknownAsset = errors.New("unknown asset")
	// ErrInvalidSymbol is returned for an empty symbol.
	ErrInvalidSymbol = errors.New("invalid symbol")
	// ErrInsufficientBalance is returned when a debit, withdrawal or
	// order would require more balance than the account holds.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInvalidAmount is returned for a zero amount or price.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInvalidSide is returned for a side value that is neither Buy nor
	// Sell.
	ErrInvalidSide = errors.New("invalid order side")
	// ErrTransferFailed is returned when the external custody collaborator
	// declines a transfer in or out.
	ErrTransferFailed = errors.New("external transfer failed")
)
