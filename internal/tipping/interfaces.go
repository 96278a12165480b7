package tipping

import (
	"context"
	"math/big"

	"banano-tipbot/internal/ledger"
	"banano-tipbot/internal/repo"
)

// Store is the persistence the engine needs. repo.Repository satisfies it.
type Store interface {
	GetAccount(ctx context.Context, userID string) (*repo.Account, error)
	InsertAccount(ctx context.Context, account repo.Account) (*repo.Account, error)
	MarkAccountRegistered(ctx context.Context, userID string) error

	UpsertChatMember(ctx context.Context, member repo.ChatMember) error
	GetChatMemberByName(ctx context.Context, chatID, memberName string) (*repo.ChatMember, error)
	GetChatMemberByID(ctx context.Context, chatID, memberID string) (*repo.ChatMember, error)
	DeleteChatMember(ctx context.Context, chatID, memberID string) error

	ListTipRecords(ctx context.Context, messageID string) ([]repo.TipRecord, error)
	InsertTipRecord(ctx context.Context, record repo.TipRecord) (*repo.TipRecord, bool, error)
	UpdateTipStatus(ctx context.Context, messageID string, index int, status repo.TipStatus, txHash, errMsg *string) error
}

// Ledger is the node contract. ledger.Client satisfies it.
type Ledger interface {
	CreateAccount(ctx context.Context, wallet string) (string, error)
	ReceivePending(ctx context.Context, wallet, account string) error
	Balance(ctx context.Context, account string) (*big.Int, error)
	Send(ctx context.Context, req ledger.SendRequest) (string, error)
	ValidateAddress(ctx context.Context, address string) (bool, error)
}

// Messenger delivers plain text back to the chat platform.
type Messenger interface {
	SendText(ctx context.Context, chatID, text string) error
	SendDirect(ctx context.Context, userID, text string) error
}

var (
	_ Store  = repo.Repository(nil)
	_ Ledger = (*ledger.Client)(nil)
)
