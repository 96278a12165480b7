package tipping

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"banano-tipbot/internal/metrics"
	"banano-tipbot/internal/repo"

	"github.com/shopspring/decimal"
)

// Config holds engine settings.
type Config struct {
	Platform      string
	MinTip        decimal.Decimal
	Wallet        string
	Decimals      int32
	Symbol        string
	Triggers      []string
	LedgerTimeout time.Duration
	BotName       string
	// BotID is the platform id of the bot; its own messages are ignored.
	BotID         string
	AddressPrefix string
}

// Engine turns chat events into validated, recorded ledger transfers.
type Engine struct {
	cfg       Config
	ledger    Ledger
	messenger Messenger
	locker    Locker
	metrics   *metrics.Metrics
	logger    *slog.Logger

	parser   *Parser
	members  *MemberDirectory
	accounts *AccountDirectory
	resolver *Resolver
	funds    *FundsValidator
	executor *Executor

	addressRe *regexp.Regexp
}

// New wires an Engine. locker may be nil, in which case an in-process
// locker is used.
func New(cfg Config, store Store, ledger Ledger, messenger Messenger, locker Locker, metrics *metrics.Metrics, logger *slog.Logger) *Engine {
	if cfg.Symbol == "" {
		cfg.Symbol = "BAN"
	}
	if len(cfg.Triggers) == 0 {
		cfg.Triggers = []string{".tip", ".ban", "/tip"}
	}
	if locker == nil {
		locker = NewLocalLocker()
	}
	members := NewMemberDirectory(store, logger)
	return &Engine{
		cfg:       cfg,
		ledger:    ledger,
		messenger: messenger,
		locker:    locker,
		metrics:   metrics,
		logger:    logger.With("component", "tipping", "platform", cfg.Platform),
		parser:    NewParser(cfg.Triggers, cfg.MinTip, cfg.Decimals, cfg.Symbol),
		members:   members,
		accounts:  NewAccountDirectory(store, ledger, cfg.Wallet, cfg.LedgerTimeout, logger),
		resolver:  NewResolver(members),
		funds:     NewFundsValidator(ledger, cfg.Wallet, cfg.LedgerTimeout, logger),
		executor:  NewExecutor(store, ledger, cfg.Wallet, cfg.LedgerTimeout, metrics, logger),
		addressRe: addressPattern(cfg.AddressPrefix),
	}
}

// HandleEvent processes one inbound event. A non-nil error means the event
// was not handled because the store failed; it is safe to deliver again.
func (e *Engine) HandleEvent(ctx context.Context, ev Event) (Outcome, error) {
	if e.metrics != nil {
		e.metrics.InboundEvents.WithLabelValues(ev.Platform, string(ev.Kind)).Inc()
	}
	out, err := e.handle(ctx, ev)
	if err != nil {
		if e.metrics != nil {
			e.metrics.Errors.WithLabelValues("tipping").Inc()
		}
		e.logger.Error("event processing failed", "message_id", ev.MessageID, "kind", ev.Kind, "error", err)
	}
	return out, err
}

func (e *Engine) handle(ctx context.Context, ev Event) (Outcome, error) {
	switch ev.Kind {
	case EventMemberJoined:
		for _, m := range ev.Members {
			if err := e.members.ObserveMember(ctx, ev.ChatID, ev.ChatName, m); err != nil {
				return Outcome{}, err
			}
		}
		return Outcome{Kind: Ignored}, nil
	case EventMemberLeft:
		for _, m := range ev.Members {
			if err := e.members.ForgetMember(ctx, ev.ChatID, m.ID); err != nil {
				return Outcome{}, err
			}
		}
		return Outcome{Kind: Ignored}, nil
	case EventChatCreated:
		sender := Member{ID: ev.SenderID, Name: ev.SenderName}
		if err := e.members.ObserveMember(ctx, ev.ChatID, ev.ChatName, sender); err != nil {
			return Outcome{}, err
		}
		return Outcome{Kind: Ignored}, nil
	case EventMessage:
	default:
		return Outcome{Kind: Ignored}, nil
	}

	if ev.SenderID == "" || (e.cfg.BotID != "" && ev.SenderID == e.cfg.BotID) {
		return Outcome{Kind: Ignored}, nil
	}
	if ev.ChatType == ChatPrivate {
		return e.handleDirect(ctx, ev)
	}

	sender := Member{ID: ev.SenderID, Name: ev.SenderName}
	if err := e.members.ObserveMember(ctx, ev.ChatID, ev.ChatName, sender); err != nil {
		return Outcome{}, err
	}
	return e.handleTip(ctx, ev)
}

func (e *Engine) handleTip(ctx context.Context, ev Event) (Outcome, error) {
	cmd, err := e.parser.ParseTipCommand(ev.Text)
	if err != nil {
		return e.fail(ctx, ev, err)
	}
	if cmd == nil {
		return Outcome{Kind: Ignored}, nil
	}

	recipients, err := e.resolver.Resolve(ctx, ev, cmd.Rest)
	if err != nil {
		return e.fail(ctx, ev, err)
	}
	if len(recipients) == 0 {
		e.logger.Debug("tip without recipients dropped", "message_id", ev.MessageID)
		return Outcome{Kind: Ignored}, nil
	}

	sender, ok, err := e.accounts.Lookup(ctx, ev.SenderID)
	if err != nil {
		return Outcome{}, err
	}
	if !ok {
		return e.fail(ctx, ev, userError(ErrSenderUnregistered, textSenderUnregistered))
	}
	if err := e.accounts.MarkRegistered(ctx, sender); err != nil {
		return Outcome{}, err
	}

	ctx, unlock, err := e.lockAccount(ctx, sender.Address)
	if err != nil {
		return Outcome{}, err
	}
	defer unlock()

	existing, err := e.executor.Existing(ctx, ev.MessageID)
	if err != nil {
		return Outcome{}, err
	}
	outstanding := 0
	for i := range recipients {
		if rec, ok := existing[i]; !ok || rec.Status != repo.TipSent {
			outstanding++
		}
	}

	if outstanding > 0 {
		if _, err := e.funds.Admit(ctx, sender.Address, cmd.Amount.Raw, outstanding); err != nil {
			if errors.Is(err, ErrInsufficientFunds) {
				err = userError(ErrInsufficientFunds, textInsufficientFunds(cmd.Amount.Times(outstanding), e.cfg.Symbol))
			}
			return e.fail(ctx, ev, err)
		}
	}

	plan := Plan{
		MessageID:     ev.MessageID,
		Kind:          repo.KindTip,
		SenderID:      ev.SenderID,
		SenderAccount: sender.Address,
		Amount:        cmd.Amount.Raw,
	}
	for i, r := range recipients {
		if rec, ok := existing[i]; ok {
			plan.Transfers = append(plan.Transfers, Transfer{Index: i, ReceiverID: rec.ReceiverID, ReceiverName: r.Name, ReceiverAccount: rec.ReceiverAccount})
			continue
		}
		account, _, err := e.accounts.GetOrCreate(ctx, r.ID, r.Name)
		if err != nil {
			return e.fail(ctx, ev, err)
		}
		plan.Transfers = append(plan.Transfers, Transfer{Index: i, ReceiverID: r.ID, ReceiverName: r.Name, ReceiverAccount: account.Address})
	}

	records, err := e.executor.Prepare(ctx, plan)
	if err != nil {
		return Outcome{}, err
	}
	result, err := e.executor.Execute(ctx, records)
	if err != nil {
		return Outcome{}, err
	}

	if !result.Completed() {
		name := receiverLabel(plan, result.Failed.RecipientIndex)
		out, err := e.fail(ctx, ev, userError(ErrLedgerTransient, textTipFailed(name, e.cfg.Symbol)))
		out.Records = result.Records
		return out, err
	}

	text := textTipsSent(cmd.Amount.Text, e.cfg.Symbol, len(recipients))
	e.reply(ctx, ev, text)
	e.logger.Info("tip executed", "message_id", ev.MessageID, "recipients", len(recipients), "sent", result.Sent, "duplicates", result.Duplicates)
	return Outcome{Kind: Executed, Text: text, Records: result.Records}, nil
}

func receiverLabel(plan Plan, index int) string {
	for _, t := range plan.Transfers {
		if t.Index == index && t.ReceiverName != "" {
			return "@" + t.ReceiverName
		}
	}
	return "recipient #" + fmt.Sprint(index+1)
}

// lockAccount enters the exclusive section of a ledger account, which spans
// the balance check and every send of one command. The returned context
// ignores the caller's cancellation: an entered section runs to completion,
// bounded only by the per-call ledger timeout.
func (e *Engine) lockAccount(ctx context.Context, address string) (context.Context, func(), error) {
	start := time.Now()
	unlock, err := e.locker.Lock(ctx, "account:"+address)
	if err != nil {
		return nil, nil, fmt.Errorf("lock account %s: %w", address, err)
	}
	if e.metrics != nil {
		e.metrics.LockWait.Observe(time.Since(start).Seconds())
	}
	return context.WithoutCancel(ctx), unlock, nil
}

// fail replies with the text of a user-facing error. Any other error is
// returned so the event can be redelivered.
func (e *Engine) fail(ctx context.Context, ev Event, err error) (Outcome, error) {
	var ue *UserError
	if !errors.As(err, &ue) {
		switch {
		case errors.Is(err, ErrAccountCreation):
			ue = &UserError{Kind: ErrAccountCreation, Text: textAccountCreation}
		case errors.Is(err, ErrLedgerTransient):
			ue = &UserError{Kind: ErrLedgerTransient, Text: textLedgerUnavailable}
		default:
			return Outcome{}, err
		}
		e.logger.Warn("ledger stage failed", "message_id", ev.MessageID, "error", err)
	}
	e.reply(ctx, ev, ue.Text)
	return Outcome{Kind: RepliedWithError, Text: ue.Text, Reason: ue.Kind}, nil
}

// reply answers in the chat the event came from. Delivery failures are
// logged only.
func (e *Engine) reply(ctx context.Context, ev Event, text string) {
	var err error
	target := "chat"
	if ev.ChatType == ChatPrivate {
		target = "direct"
		err = e.messenger.SendDirect(ctx, ev.SenderID, text)
	} else {
		err = e.messenger.SendText(ctx, ev.ChatID, text)
	}
	if err != nil {
		if e.metrics != nil {
			e.metrics.Errors.WithLabelValues("messenger").Inc()
		}
		e.logger.Warn("reply delivery failed", "chat_id", ev.ChatID, "target", target, "error", err)
	}
}
