package repo

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository provides typed access to Postgres resources.
type PostgresRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	schema string
}

var _ Repository = (*PostgresRepository)(nil)

// New opens a new connection pool to the database with the desired search_path.
func New(ctx context.Context, databaseURL, schema string, logger *slog.Logger) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	if cfg.ConnConfig.RuntimeParams == nil {
		cfg.ConnConfig.RuntimeParams = map[string]string{}
	}
	if schema != "" {
		cfg.ConnConfig.RuntimeParams["search_path"] = schema
	}
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	r := &PostgresRepository{
		pool:   pool,
		logger: logger.With("component", "repo"),
		schema: schema,
	}

	if err := r.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

// Close releases the connection pool.
func (r *PostgresRepository) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
}

// Ping ensures the database is reachable.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// RunMigrations applies schema migrations on the connected database.
func (r *PostgresRepository) RunMigrations(ctx context.Context, filesystem fs.FS) error {
	sub, err := fs.Sub(filesystem, "postgres")
	if err != nil {
		return fmt.Errorf("open postgres migrations: %w", err)
	}
	return ApplyMigrations(ctx, r.pool, sub)
}

const accountColumns = `id, user_id, user_name, address, registered, created_at, updated_at`

func scanAccount(row pgx.Row) (*Account, error) {
	var a Account
	if err := row.Scan(&a.ID, &a.UserID, &a.UserName, &a.Address, &a.Registered, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAccount returns the account for a platform user.
func (r *PostgresRepository) GetAccount(ctx context.Context, userID string) (*Account, error) {
	const q = `SELECT ` + accountColumns + ` FROM accounts WHERE user_id = $1 LIMIT 1;`
	a, err := scanAccount(r.pool.QueryRow(ctx, q, userID))
	if err != nil {
		return nil, fmt.Errorf("get account: %w", notFound(err))
	}
	return a, nil
}

// InsertAccount creates the account unless the user already has one.
func (r *PostgresRepository) InsertAccount(ctx context.Context, account Account) (*Account, error) {
	const q = `
INSERT INTO accounts (user_id, user_name, address, registered)
VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id) DO NOTHING
RETURNING ` + accountColumns + `;
`
	a, err := scanAccount(r.pool.QueryRow(ctx, q, account.UserID, account.UserName, account.Address, account.Registered))
	if errors.Is(err, pgx.ErrNoRows) {
		r.logger.Debug("account already exists, returning stored row", "user_id", account.UserID)
		return r.GetAccount(ctx, account.UserID)
	}
	if err != nil {
		return nil, fmt.Errorf("insert account: %w", err)
	}
	return a, nil
}

// MarkAccountRegistered flips the registration flag; registered accounts are untouched.
func (r *PostgresRepository) MarkAccountRegistered(ctx context.Context, userID string) error {
	const q = `UPDATE accounts SET registered = TRUE, updated_at = NOW() WHERE user_id = $1 AND registered = FALSE`
	if _, err := r.pool.Exec(ctx, q, userID); err != nil {
		return fmt.Errorf("mark account registered: %w", err)
	}
	return nil
}

const memberColumns = `chat_id, chat_name, member_id, member_name, created_at, updated_at`

func scanMember(row pgx.Row) (*ChatMember, error) {
	var m ChatMember
	if err := row.Scan(&m.ChatID, &m.ChatName, &m.MemberID, &m.MemberName, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

// UpsertChatMember stores or refreshes a chat member observation.
func (r *PostgresRepository) UpsertChatMember(ctx context.Context, member ChatMember) error {
	const q = `
INSERT INTO chat_members (chat_id, chat_name, member_id, member_name, updated_at)
VALUES ($1, $2, $3, $4, NOW())
ON CONFLICT (chat_id, member_id) DO UPDATE SET
    chat_name = COALESCE(NULLIF(EXCLUDED.chat_name, ''), chat_members.chat_name),
    member_name = COALESCE(NULLIF(EXCLUDED.member_name, ''), chat_members.member_name),
    updated_at = NOW();
`
	if _, err := r.pool.Exec(ctx, q, member.ChatID, member.ChatName, member.MemberID, member.MemberName); err != nil {
		return fmt.Errorf("upsert chat member: %w", err)
	}
	return nil
}

// GetChatMemberByName finds a member of the chat by case-insensitive name.
func (r *PostgresRepository) GetChatMemberByName(ctx context.Context, chatID, memberName string) (*ChatMember, error) {
	const q = `
SELECT ` + memberColumns + `
FROM chat_members
WHERE chat_id = $1 AND LOWER(member_name) = LOWER($2)
ORDER BY updated_at DESC
LIMIT 1;
`
	m, err := scanMember(r.pool.QueryRow(ctx, q, chatID, memberName))
	if err != nil {
		return nil, fmt.Errorf("get chat member by name: %w", notFound(err))
	}
	return m, nil
}

// GetChatMemberByID finds a member of the chat by platform member id.
func (r *PostgresRepository) GetChatMemberByID(ctx context.Context, chatID, memberID string) (*ChatMember, error) {
	const q = `SELECT ` + memberColumns + ` FROM chat_members WHERE chat_id = $1 AND member_id = $2 LIMIT 1;`
	m, err := scanMember(r.pool.QueryRow(ctx, q, chatID, memberID))
	if err != nil {
		return nil, fmt.Errorf("get chat member by id: %w", notFound(err))
	}
	return m, nil
}

// DeleteChatMember removes a member who left the chat.
func (r *PostgresRepository) DeleteChatMember(ctx context.Context, chatID, memberID string) error {
	const q = `DELETE FROM chat_members WHERE chat_id = $1 AND member_id = $2`
	if _, err := r.pool.Exec(ctx, q, chatID, memberID); err != nil {
		return fmt.Errorf("delete chat member: %w", err)
	}
	return nil
}

const tipColumns = `message_id, recipient_index, kind, sender_id, sender_account, receiver_id, receiver_account, amount, status, tx_hash, error, created_at, updated_at`

func scanTip(row pgx.Row) (*TipRecord, error) {
	var t TipRecord
	if err := row.Scan(&t.MessageID, &t.RecipientIndex, &t.Kind, &t.SenderID, &t.SenderAccount, &t.ReceiverID, &t.ReceiverAccount, &t.Amount, &t.Status, &t.TxHash, &t.Error, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTipRecord returns the record stored under the idempotency key.
func (r *PostgresRepository) GetTipRecord(ctx context.Context, messageID string, index int) (*TipRecord, error) {
	const q = `SELECT ` + tipColumns + ` FROM tip_records WHERE message_id = $1 AND recipient_index = $2;`
	t, err := scanTip(r.pool.QueryRow(ctx, q, messageID, index))
	if err != nil {
		return nil, fmt.Errorf("get tip record: %w", notFound(err))
	}
	return t, nil
}

// ListTipRecords returns every record of a message ordered by recipient index.
func (r *PostgresRepository) ListTipRecords(ctx context.Context, messageID string) ([]TipRecord, error) {
	const q = `SELECT ` + tipColumns + ` FROM tip_records WHERE message_id = $1 ORDER BY recipient_index ASC;`
	return r.queryTips(ctx, "list tip records", q, messageID)
}

// ListTipRecordsByStatus returns the oldest records in the given status.
func (r *PostgresRepository) ListTipRecordsByStatus(ctx context.Context, status TipStatus, limit int) ([]TipRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `SELECT ` + tipColumns + ` FROM tip_records WHERE status = $1 ORDER BY created_at ASC LIMIT $2;`
	return r.queryTips(ctx, "list tip records by status", q, status, limit)
}

func (r *PostgresRepository) queryTips(ctx context.Context, op, q string, args ...any) ([]TipRecord, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var records []TipRecord
	for rows.Next() {
		t, err := scanTip(rows)
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

// InsertTipRecord inserts the record if the (message_id, recipient_index) key is free.
func (r *PostgresRepository) InsertTipRecord(ctx context.Context, record TipRecord) (*TipRecord, bool, error) {
	if record.Status == "" {
		record.Status = TipPending
	}
	if record.Kind == "" {
		record.Kind = KindTip
	}
	const q = `
INSERT INTO tip_records (message_id, recipient_index, kind, sender_id, sender_account, receiver_id, receiver_account, amount, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (message_id, recipient_index) DO NOTHING
RETURNING ` + tipColumns + `;
`
	t, err := scanTip(r.pool.QueryRow(ctx, q,
		record.MessageID,
		record.RecipientIndex,
		record.Kind,
		record.SenderID,
		record.SenderAccount,
		record.ReceiverID,
		record.ReceiverAccount,
		record.Amount,
		record.Status,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		existing, err := r.GetTipRecord(ctx, record.MessageID, record.RecipientIndex)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("insert tip record: %w", err)
	}
	return t, true, nil
}

// UpdateTipStatus moves a record to a new status. Records already sent are immutable.
func (r *PostgresRepository) UpdateTipStatus(ctx context.Context, messageID string, index int, status TipStatus, txHash, errMsg *string) error {
	const q = `
UPDATE tip_records
SET status = $3,
    tx_hash = COALESCE($4, tx_hash),
    error = $5,
    updated_at = NOW()
WHERE message_id = $1 AND recipient_index = $2 AND status <> 'sent';
`
	ct, err := r.pool.Exec(ctx, q, messageID, index, status, txHash, errMsg)
	if err != nil {
		return fmt.Errorf("update tip status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		if _, err := r.GetTipRecord(ctx, messageID, index); err != nil {
			return err
		}
		return fmt.Errorf("update tip status %s/%d: %w", messageID, index, ErrRecordSent)
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
