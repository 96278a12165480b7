package repo

import (
	"context"
	"errors"
	"io/fs"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrRecordSent is returned when trying to change a tip record that already reached sent.
	ErrRecordSent = errors.New("tip record already sent")
)

// Repository defines the interface for data persistence.
type Repository interface {
	// Lifecycle
	Close()
	Ping(ctx context.Context) error
	RunMigrations(ctx context.Context, filesystem fs.FS) error

	// Accounts
	GetAccount(ctx context.Context, userID string) (*Account, error)
	// InsertAccount stores the account unless one already exists for the same
	// user, and returns whichever row is stored.
	InsertAccount(ctx context.Context, account Account) (*Account, error)
	MarkAccountRegistered(ctx context.Context, userID string) error

	// Chat members
	UpsertChatMember(ctx context.Context, member ChatMember) error
	GetChatMemberByName(ctx context.Context, chatID, memberName string) (*ChatMember, error)
	GetChatMemberByID(ctx context.Context, chatID, memberID string) (*ChatMember, error)
	DeleteChatMember(ctx context.Context, chatID, memberID string) error

	// Tip records
	GetTipRecord(ctx context.Context, messageID string, index int) (*TipRecord, error)
	ListTipRecords(ctx context.Context, messageID string) ([]TipRecord, error)
	// InsertTipRecord inserts the record if its key is absent. The stored row is
	// returned together with whether this call created it.
	InsertTipRecord(ctx context.Context, record TipRecord) (*TipRecord, bool, error)
	UpdateTipStatus(ctx context.Context, messageID string, index int, status TipStatus, txHash, errMsg *string) error
	ListTipRecordsByStatus(ctx context.Context, status TipStatus, limit int) ([]TipRecord, error)
}
