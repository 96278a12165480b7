package repo

import "time"

// Account maps a platform identity to its ledger address.
type Account struct {
	ID         string
	UserID     string
	UserName   string
	Address    string
	Registered bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ChatMember is a cached observation of a member inside a group chat.
type ChatMember struct {
	ChatID     string
	ChatName   string
	MemberID   string
	MemberName string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TipStatus is the lifecycle state of a single transfer.
type TipStatus string

const (
	TipPending TipStatus = "pending"
	TipSent    TipStatus = "sent"
	TipFailed  TipStatus = "failed"
)

// TipKind distinguishes chat tips from withdrawals to external addresses.
type TipKind string

const (
	KindTip      TipKind = "tip"
	KindWithdraw TipKind = "withdraw"
)

// TipRecord is the durable record of one attempted transfer. MessageID and
// RecipientIndex together form the idempotency key.
type TipRecord struct {
	MessageID       string
	RecipientIndex  int
	Kind            TipKind
	SenderID        string
	SenderAccount   string
	ReceiverID      string
	ReceiverAccount string
	// Amount is expressed in raw ledger units as a base-10 integer string.
	Amount    string
	Status    TipStatus
	TxHash    *string
	Error     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}
