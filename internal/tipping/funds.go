package tipping

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"
)

// FundsValidator checks that a sender can cover a command before any
// transfer starts.
type FundsValidator struct {
	ledger  Ledger
	wallet  string
	timeout time.Duration
	logger  *slog.Logger
}

func NewFundsValidator(ledger Ledger, wallet string, timeout time.Duration, logger *slog.Logger) *FundsValidator {
	return &FundsValidator{
		ledger:  ledger,
		wallet:  wallet,
		timeout: timeout,
		logger:  logger.With("component", "funds"),
	}
}

// Sweep pockets pending deposits of account and returns its spendable balance.
// A failed sweep is logged and the balance read anyway; funds that were not
// pocketed simply do not count.
func (v *FundsValidator) Sweep(ctx context.Context, account string) (*big.Int, error) {
	sctx, cancel := withTimeout(ctx, v.timeout)
	err := v.ledger.ReceivePending(sctx, v.wallet, account)
	cancel()
	if err != nil {
		v.logger.Warn("receive pending failed", "account", account, "error", err)
	}

	bctx, cancel := withTimeout(ctx, v.timeout)
	defer cancel()
	balance, err := v.ledger.Balance(bctx, account)
	if err != nil {
		return nil, fmt.Errorf("%w: balance: %w", ErrLedgerTransient, err)
	}
	return balance, nil
}

// Admit verifies that account holds at least amount × count raw units.
// It returns the balance it checked against.
func (v *FundsValidator) Admit(ctx context.Context, account string, amount *big.Int, count int) (*big.Int, error) {
	balance, err := v.Sweep(ctx, account)
	if err != nil {
		return nil, err
	}
	required := new(big.Int).Mul(amount, big.NewInt(int64(count)))
	if balance.Cmp(required) < 0 {
		return balance, fmt.Errorf("%w: balance %s < required %s", ErrInsufficientFunds, balance, required)
	}
	return balance, nil
}
