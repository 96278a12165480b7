package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

type rowScanner interface {
	Scan(dest ...any) error
}

// -- Accounts --

func scanSQLiteAccount(row rowScanner) (*Account, error) {
	var a Account
	if err := row.Scan(&a.ID, &a.UserID, &a.UserName, &a.Address, &a.Registered, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *SQLiteRepository) GetAccount(ctx context.Context, userID string) (*Account, error) {
	const q = `SELECT ` + accountColumns + ` FROM accounts WHERE user_id = ? LIMIT 1;`
	a, err := scanSQLiteAccount(r.db.QueryRowContext(ctx, q, userID))
	if err != nil {
		return nil, fmt.Errorf("get account: %w", sqlNotFound(err))
	}
	return a, nil
}

func (r *SQLiteRepository) InsertAccount(ctx context.Context, account Account) (*Account, error) {
	// SQLite has no gen_random_uuid(); ids are generated here. The stored row is
	// read back with a plain SELECT so DATETIME columns keep their declared type.
	const q = `
INSERT INTO accounts (id, user_id, user_name, address, registered)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (user_id) DO NOTHING;
`
	if _, err := r.db.ExecContext(ctx, q, randomUUID(), account.UserID, account.UserName, account.Address, account.Registered); err != nil {
		return nil, fmt.Errorf("insert account: %w", err)
	}
	return r.GetAccount(ctx, account.UserID)
}

func (r *SQLiteRepository) MarkAccountRegistered(ctx context.Context, userID string) error {
	const q = `UPDATE accounts SET registered = 1, updated_at = CURRENT_TIMESTAMP WHERE user_id = ? AND registered = 0`
	if _, err := r.db.ExecContext(ctx, q, userID); err != nil {
		return fmt.Errorf("mark account registered: %w", err)
	}
	return nil
}

// -- Chat members --

func scanSQLiteMember(row rowScanner) (*ChatMember, error) {
	var m ChatMember
	if err := row.Scan(&m.ChatID, &m.ChatName, &m.MemberID, &m.MemberName, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *SQLiteRepository) UpsertChatMember(ctx context.Context, member ChatMember) error {
	const q = `
INSERT INTO chat_members (id, chat_id, chat_name, member_id, member_name, updated_at)
VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT (chat_id, member_id) DO UPDATE SET
    chat_name = COALESCE(NULLIF(excluded.chat_name, ''), chat_members.chat_name),
    member_name = COALESCE(NULLIF(excluded.member_name, ''), chat_members.member_name),
    updated_at = CURRENT_TIMESTAMP;
`
	if _, err := r.db.ExecContext(ctx, q, randomUUID(), member.ChatID, member.ChatName, member.MemberID, member.MemberName); err != nil {
		return fmt.Errorf("upsert chat member: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetChatMemberByName(ctx context.Context, chatID, memberName string) (*ChatMember, error) {
	const q = `
SELECT ` + memberColumns + `
FROM chat_members
WHERE chat_id = ? AND member_name = ? COLLATE NOCASE
ORDER BY updated_at DESC
LIMIT 1;
`
	m, err := scanSQLiteMember(r.db.QueryRowContext(ctx, q, chatID, memberName))
	if err != nil {
		return nil, fmt.Errorf("get chat member by name: %w", sqlNotFound(err))
	}
	return m, nil
}

func (r *SQLiteRepository) GetChatMemberByID(ctx context.Context, chatID, memberID string) (*ChatMember, error) {
	const q = `SELECT ` + memberColumns + ` FROM chat_members WHERE chat_id = ? AND member_id = ? LIMIT 1;`
	m, err := scanSQLiteMember(r.db.QueryRowContext(ctx, q, chatID, memberID))
	if err != nil {
		return nil, fmt.Errorf("get chat member by id: %w", sqlNotFound(err))
	}
	return m, nil
}

func (r *SQLiteRepository) DeleteChatMember(ctx context.Context, chatID, memberID string) error {
	const q = `DELETE FROM chat_members WHERE chat_id = ? AND member_id = ?`
	if _, err := r.db.ExecContext(ctx, q, chatID, memberID); err != nil {
		return fmt.Errorf("delete chat member: %w", err)
	}
	return nil
}

// -- Tip records --

func scanSQLiteTip(row rowScanner) (*TipRecord, error) {
	var t TipRecord
	if err := row.Scan(&t.MessageID, &t.RecipientIndex, &t.Kind, &t.SenderID, &t.SenderAccount, &t.ReceiverID, &t.ReceiverAccount, &t.Amount, &t.Status, &t.TxHash, &t.Error, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *SQLiteRepository) GetTipRecord(ctx context.Context, messageID string, index int) (*TipRecord, error) {
	const q = `SELECT ` + tipColumns + ` FROM tip_records WHERE message_id = ? AND recipient_index = ?;`
	t, err := scanSQLiteTip(r.db.QueryRowContext(ctx, q, messageID, index))
	if err != nil {
		return nil, fmt.Errorf("get tip record: %w", sqlNotFound(err))
	}
	return t, nil
}

func (r *SQLiteRepository) ListTipRecords(ctx context.Context, messageID string) ([]TipRecord, error) {
	const q = `SELECT ` + tipColumns + ` FROM tip_records WHERE message_id = ? ORDER BY recipient_index ASC;`
	return r.queryTips(ctx, "list tip records", q, messageID)
}

func (r *SQLiteRepository) ListTipRecordsByStatus(ctx context.Context, status TipStatus, limit int) ([]TipRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `SELECT ` + tipColumns + ` FROM tip_records WHERE status = ? ORDER BY created_at ASC LIMIT ?;`
	return r.queryTips(ctx, "list tip records by status", q, status, limit)
}

func (r *SQLiteRepository) queryTips(ctx context.Context, op, q string, args ...any) ([]TipRecord, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var records []TipRecord
	for rows.Next() {
		t, err := scanSQLiteTip(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", op, err)
		}
		records = append(records, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", op, err)
	}
	return records, nil
}

func (r *SQLiteRepository) InsertTipRecord(ctx context.Context, record TipRecord) (*TipRecord, bool, error) {
	if record.Status == "" {
		record.Status = TipPending
	}
	if record.Kind == "" {
		record.Kind = KindTip
	}
	const q = `
INSERT INTO tip_records (message_id, recipient_index, kind, sender_id, sender_account, receiver_id, receiver_account, amount, status)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (message_id, recipient_index) DO NOTHING;
`
	res, err := r.db.ExecContext(ctx, q,
		record.MessageID,
		record.RecipientIndex,
		record.Kind,
		record.SenderID,
		record.SenderAccount,
		record.ReceiverID,
		record.ReceiverAccount,
		record.Amount,
		record.Status,
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert tip record: %w", err)
	}
	inserted, _ := res.RowsAffected()
	stored, err := r.GetTipRecord(ctx, record.MessageID, record.RecipientIndex)
	if err != nil {
		return nil, false, err
	}
	return stored, inserted > 0, nil
}

func (r *SQLiteRepository) UpdateTipStatus(ctx context.Context, messageID string, index int, status TipStatus, txHash, errMsg *string) error {
	const q = `
UPDATE tip_records
SET status = ?,
    tx_hash = COALESCE(?, tx_hash),
    error = ?,
    updated_at = CURRENT_TIMESTAMP
WHERE message_id = ? AND recipient_index = ? AND status <> 'sent';
`
	res, err := r.db.ExecContext(ctx, q, status, txHash, errMsg, messageID, index)
	if err != nil {
		return fmt.Errorf("update tip status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.GetTipRecord(ctx, messageID, index); err != nil {
			return err
		}
		return fmt.Errorf("update tip status %s/%d: %w", messageID, index, ErrRecordSent)
	}
	return nil
}

// -- Helpers --

func sqlNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func randomUUID() string {
	return uuid.NewString()
}
