package tipping

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"banano-tipbot/internal/repo"

	"golang.org/x/sync/singleflight"
)

// AccountDirectory maps platform users to ledger addresses, creating
// addresses on first need.
type AccountDirectory struct {
	store   Store
	ledger  Ledger
	wallet  string
	timeout time.Duration
	group   singleflight.Group
	logger  *slog.Logger
}

func NewAccountDirectory(store Store, ledger Ledger, wallet string, timeout time.Duration, logger *slog.Logger) *AccountDirectory {
	return &AccountDirectory{
		store:   store,
		ledger:  ledger,
		wallet:  wallet,
		timeout: timeout,
		logger:  logger.With("component", "accounts"),
	}
}

// Lookup returns the account of userID, if any.
func (d *AccountDirectory) Lookup(ctx context.Context, userID string) (*repo.Account, bool, error) {
	a, err := d.store.GetAccount(ctx, userID)
	a, ok, err := found(a, err)
	if err != nil {
		return nil, false, fmt.Errorf("lookup account: %w", err)
	}
	return a, ok, nil
}

type createResult struct {
	account *repo.Account
	created bool
}

// GetOrCreate returns the account of userID, asking the ledger for a new
// address when none exists. created reports whether this call minted it.
// Ledger failures wrap ErrAccountCreation and persist nothing.
func (d *AccountDirectory) GetOrCreate(ctx context.Context, userID, userName string) (*repo.Account, bool, error) {
	if a, ok, err := d.Lookup(ctx, userID); err != nil || ok {
		return a, false, err
	}

	v, err, _ := d.group.Do(userID, func() (any, error) {
		if a, ok, err := d.Lookup(ctx, userID); err != nil || ok {
			return createResult{account: a}, err
		}

		lctx, cancel := withTimeout(ctx, d.timeout)
		address, err := d.ledger.CreateAccount(lctx, d.wallet)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrAccountCreation, err)
		}

		// Another process may have won the race; the stored row is authoritative.
		stored, err := d.store.InsertAccount(ctx, repo.Account{
			UserID:   userID,
			UserName: userName,
			Address:  address,
		})
		if err != nil {
			return nil, fmt.Errorf("insert account: %w", err)
		}
		created := stored.Address == address
		if created {
			d.logger.Info("account created", "user_id", userID, "address", address)
		} else {
			d.logger.Warn("discarded concurrently created address", "user_id", userID, "address", address)
		}
		return createResult{account: stored, created: created}, nil
	})
	if err != nil {
		return nil, false, err
	}
	res := v.(createResult)
	return res.account, res.created, nil
}

// MarkRegistered flags userID as registered. It is a no-op when already set.
func (d *AccountDirectory) MarkRegistered(ctx context.Context, account *repo.Account) error {
	if account.Registered {
		return nil
	}
	if err := d.store.MarkAccountRegistered(ctx, account.UserID); err != nil {
		return fmt.Errorf("mark registered: %w", err)
	}
	account.Registered = true
	return nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
