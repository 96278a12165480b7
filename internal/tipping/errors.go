package tipping

import "errors"

var (
	ErrMalformedCommand   = errors.New("malformed command")
	ErrRecipientNotFound  = errors.New("recipient not found")
	ErrSenderUnregistered = errors.New("sender has no account")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrLedgerTransient    = errors.New("ledger unavailable")
	ErrAccountCreation    = errors.New("account creation failed")
	ErrInvalidAddress     = errors.New("invalid address")
)

// UserError is a validation failure that is answered with a chat reply
// instead of failing the event.
type UserError struct {
	Kind error
	Text string
}

func (e *UserError) Error() string {
	return e.Kind.Error() + ": " + e.Text
}

func (e *UserError) Unwrap() error {
	return e.Kind
}

func userError(kind error, text string) error {
	return &UserError{Kind: kind, Text: text}
}
