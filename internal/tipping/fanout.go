package tipping

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"banano-tipbot/internal/ledger"
	"banano-tipbot/internal/metrics"
	"banano-tipbot/internal/repo"

	"github.com/google/uuid"
)

// sendIDNamespace scopes the deterministic node-side send ids.
var sendIDNamespace = uuid.MustParse("6f1d7c2e-4b8a-5e3f-9a61-0c2d8e7b5a14")

// SendID derives the node idempotency id of transfer index of messageID.
func SendID(messageID string, index int) string {
	return uuid.NewSHA1(sendIDNamespace, []byte(fmt.Sprintf("%s:%d", messageID, index))).String()
}

// Transfer is one planned send of a command.
type Transfer struct {
	Index           int
	ReceiverID      string
	ReceiverName    string
	ReceiverAccount string
}

// Plan is the full set of transfers of one command.
type Plan struct {
	MessageID     string
	Kind          repo.TipKind
	SenderID      string
	SenderAccount string
	Amount        *big.Int
	Transfers     []Transfer
}

// FanOutResult describes how far a fan-out got.
type FanOutResult struct {
	Records []repo.TipRecord
	// Sent counts transfers published by this run.
	Sent int
	// Duplicates counts records skipped because they were already sent.
	Duplicates int
	// Failed is the record that aborted the run, nil on completion.
	Failed *repo.TipRecord
	Err    error
}

// Completed reports whether every record ended sent.
func (r *FanOutResult) Completed() bool {
	return r.Failed == nil
}

// Executor runs planned transfers one at a time and records each outcome
// before moving on.
type Executor struct {
	store   Store
	ledger  Ledger
	wallet  string
	timeout time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewExecutor(store Store, ledger Ledger, wallet string, timeout time.Duration, metrics *metrics.Metrics, logger *slog.Logger) *Executor {
	return &Executor{
		store:   store,
		ledger:  ledger,
		wallet:  wallet,
		timeout: timeout,
		metrics: metrics,
		logger:  logger.With("component", "fanout"),
	}
}

// Existing returns the records already stored for messageID, keyed by index.
func (x *Executor) Existing(ctx context.Context, messageID string) (map[int]repo.TipRecord, error) {
	records, err := x.store.ListTipRecords(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("list tip records: %w", err)
	}
	byIndex := make(map[int]repo.TipRecord, len(records))
	for _, rec := range records {
		byIndex[rec.RecipientIndex] = rec
	}
	return byIndex, nil
}

// Prepare inserts a pending record for every transfer that has none and
// returns the stored records in index order. Stored records win over the
// plan, so a redelivered command keeps its original receivers and amount.
func (x *Executor) Prepare(ctx context.Context, plan Plan) ([]repo.TipRecord, error) {
	records := make([]repo.TipRecord, 0, len(plan.Transfers))
	for _, t := range plan.Transfers {
		stored, _, err := x.store.InsertTipRecord(ctx, repo.TipRecord{
			MessageID:       plan.MessageID,
			RecipientIndex:  t.Index,
			Kind:            plan.Kind,
			SenderID:        plan.SenderID,
			SenderAccount:   plan.SenderAccount,
			ReceiverID:      t.ReceiverID,
			ReceiverAccount: t.ReceiverAccount,
			Amount:          plan.Amount.String(),
			Status:          repo.TipPending,
		})
		if err != nil {
			return nil, fmt.Errorf("insert tip record %d: %w", t.Index, err)
		}
		records = append(records, *stored)
	}
	return records, nil
}

// Execute sends each record in order. A ledger failure marks the record
// failed and stops; later records stay pending. Store failures are returned
// as errors.
func (x *Executor) Execute(ctx context.Context, records []repo.TipRecord) (*FanOutResult, error) {
	result := &FanOutResult{Records: make([]repo.TipRecord, len(records))}
	copy(result.Records, records)

	for i := range result.Records {
		rec := &result.Records[i]
		if rec.Status == repo.TipSent {
			result.Duplicates++
			x.count(rec.Kind, "duplicate")
			x.logger.Info("skipping sent record", "message_id", rec.MessageID, "index", rec.RecipientIndex)
			continue
		}

		hash, sendErr := x.send(ctx, rec)
		if sendErr != nil {
			msg := sendErr.Error()
			if err := x.store.UpdateTipStatus(ctx, rec.MessageID, rec.RecipientIndex, repo.TipFailed, nil, &msg); err != nil {
				return nil, fmt.Errorf("record failed transfer: %w", err)
			}
			rec.Status = repo.TipFailed
			rec.Error = &msg
			x.count(rec.Kind, "failed")
			x.logger.Warn("transfer failed", "message_id", rec.MessageID, "index", rec.RecipientIndex, "receiver", rec.ReceiverAccount, "error", sendErr)
			result.Failed = rec
			result.Err = fmt.Errorf("%w: %w", ErrLedgerTransient, sendErr)
			return result, nil
		}

		err := x.store.UpdateTipStatus(ctx, rec.MessageID, rec.RecipientIndex, repo.TipSent, &hash, nil)
		if err != nil && !errors.Is(err, repo.ErrRecordSent) {
			return nil, fmt.Errorf("record sent transfer: %w", err)
		}
		rec.Status = repo.TipSent
		rec.TxHash = &hash
		rec.Error = nil
		result.Sent++
		x.count(rec.Kind, "sent")
		x.logger.Info("transfer sent", "message_id", rec.MessageID, "index", rec.RecipientIndex, "receiver", rec.ReceiverAccount, "hash", hash)
	}
	return result, nil
}

func (x *Executor) send(ctx context.Context, rec *repo.TipRecord) (string, error) {
	amount, ok := new(big.Int).SetString(rec.Amount, 10)
	if !ok {
		return "", fmt.Errorf("invalid stored amount %q", rec.Amount)
	}
	sctx, cancel := withTimeout(ctx, x.timeout)
	defer cancel()
	return x.ledger.Send(sctx, ledger.SendRequest{
		Wallet:      x.wallet,
		Source:      rec.SenderAccount,
		Destination: rec.ReceiverAccount,
		Amount:      amount,
		ID:          SendID(rec.MessageID, rec.RecipientIndex),
	})
}

func (x *Executor) count(kind repo.TipKind, result string) {
	if x.metrics != nil {
		x.metrics.Transfers.WithLabelValues(string(kind), result).Inc()
	}
}
