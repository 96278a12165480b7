package tipping

import (
	"context"
	"errors"
	"math/big"
	"regexp"
	"strings"

	"banano-tipbot/internal/repo"
)

// handleDirect routes commands sent in a private conversation.
func (e *Engine) handleDirect(ctx context.Context, ev Event) (Outcome, error) {
	args := strings.Fields(ev.Text)
	if len(args) == 0 {
		return Outcome{Kind: Ignored}, nil
	}
	action := stripBotSuffix(strings.ToLower(args[0]))

	switch action {
	case ".help", "/help", "/start":
		return e.help(ctx, ev)
	case ".balance", "/balance":
		return e.balance(ctx, ev)
	case ".register", "/register":
		return e.register(ctx, ev)
	case ".account", "/account":
		return e.account(ctx, ev)
	case ".withdraw", "/withdraw":
		return e.withdraw(ctx, ev, args[1:])
	}
	for _, t := range e.cfg.Triggers {
		if action == t {
			return e.tipRedirect(ctx, ev)
		}
	}
	return e.fail(ctx, ev, userError(ErrMalformedCommand, textNotRecognized))
}

func (e *Engine) help(ctx context.Context, ev Event) (Outcome, error) {
	text := textHelp(e.cfg.BotName, e.cfg.Symbol, e.cfg.Triggers)
	e.reply(ctx, ev, text)
	return Outcome{Kind: Executed, Text: text}, nil
}

func (e *Engine) tipRedirect(ctx context.Context, ev Event) (Outcome, error) {
	text := textTipRedirect(e.cfg.BotName, e.cfg.Triggers[0])
	return e.fail(ctx, ev, userError(ErrMalformedCommand, text))
}

func (e *Engine) balance(ctx context.Context, ev Event) (Outcome, error) {
	account, _, err := e.accounts.GetOrCreate(ctx, ev.SenderID, ev.SenderName)
	if err != nil {
		return e.fail(ctx, ev, err)
	}
	if err := e.accounts.MarkRegistered(ctx, account); err != nil {
		return Outcome{}, err
	}

	ctx, unlock, err := e.lockAccount(ctx, account.Address)
	if err != nil {
		return Outcome{}, err
	}
	defer unlock()

	balance, err := e.funds.Sweep(ctx, account.Address)
	if err != nil {
		return e.fail(ctx, ev, err)
	}
	text := textBalance(FormatRaw(balance, e.cfg.Decimals), e.cfg.Symbol)
	e.reply(ctx, ev, text)
	return Outcome{Kind: Executed, Text: text}, nil
}

func (e *Engine) register(ctx context.Context, ev Event) (Outcome, error) {
	account, created, err := e.accounts.GetOrCreate(ctx, ev.SenderID, ev.SenderName)
	if err != nil {
		return e.fail(ctx, ev, err)
	}
	text := textRegistered
	if !created && account.Registered {
		text = textAlreadyRegistered
	}
	if err := e.accounts.MarkRegistered(ctx, account); err != nil {
		return Outcome{}, err
	}
	return e.sendAccount(ctx, ev, text, account.Address), nil
}

func (e *Engine) account(ctx context.Context, ev Event) (Outcome, error) {
	account, created, err := e.accounts.GetOrCreate(ctx, ev.SenderID, ev.SenderName)
	if err != nil {
		return e.fail(ctx, ev, err)
	}
	text := textAccountAddress
	if created {
		text = textAccountCreated
	}
	if err := e.accounts.MarkRegistered(ctx, account); err != nil {
		return Outcome{}, err
	}
	return e.sendAccount(ctx, ev, text, account.Address), nil
}

// sendAccount sends the address as its own message so it is easy to copy.
func (e *Engine) sendAccount(ctx context.Context, ev Event, text, address string) Outcome {
	e.reply(ctx, ev, text)
	e.reply(ctx, ev, address)
	return Outcome{Kind: Executed, Text: text + "\n" + address}
}

func (e *Engine) withdraw(ctx context.Context, ev Event, args []string) (Outcome, error) {
	if len(args) < 1 || len(args) > 2 {
		return e.fail(ctx, ev, userError(ErrMalformedCommand, textWithdrawUsage))
	}
	address := strings.ToLower(args[len(args)-1])

	var requested *Amount
	if len(args) == 2 {
		amount, err := ParseAmount(args[0], e.cfg.Decimals)
		if err != nil || amount.Raw.Sign() <= 0 {
			return e.fail(ctx, ev, userError(ErrMalformedCommand, textWithdrawNotANumber))
		}
		requested = &amount
	}

	sender, ok, err := e.accounts.Lookup(ctx, ev.SenderID)
	if err != nil {
		return Outcome{}, err
	}
	if !ok {
		return e.fail(ctx, ev, userError(ErrSenderUnregistered, textWithdrawNoAccount))
	}

	if err := e.validateAddress(ctx, address); err != nil {
		return e.fail(ctx, ev, err)
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
	var raw *big.Int
	if rec, ok := existing[0]; ok {
		// Redelivery: the stored amount is what was promised.
		raw, _ = new(big.Int).SetString(rec.Amount, 10)
	}
	if raw == nil || existing[0].Status != repo.TipSent {
		balance, err := e.funds.Sweep(ctx, sender.Address)
		if err != nil {
			return e.fail(ctx, ev, err)
		}
		if raw == nil {
			if requested != nil {
				raw = requested.Raw
			} else {
				raw = balance
			}
		}
		if balance.Sign() == 0 {
			return e.fail(ctx, ev, userError(ErrInsufficientFunds, textZeroBalance(sender.Address)))
		}
		if raw.Cmp(balance) > 0 {
			return e.fail(ctx, ev, userError(ErrInsufficientFunds, textWithdrawTooMuch(e.cfg.Symbol)))
		}
	}

	records, err := e.executor.Prepare(ctx, Plan{
		MessageID:     ev.MessageID,
		Kind:          repo.KindWithdraw,
		SenderID:      ev.SenderID,
		SenderAccount: sender.Address,
		Amount:        raw,
		Transfers:     []Transfer{{Index: 0, ReceiverAccount: address}},
	})
	if err != nil {
		return Outcome{}, err
	}
	result, err := e.executor.Execute(ctx, records)
	if err != nil {
		return Outcome{}, err
	}
	if !result.Completed() {
		out, err := e.fail(ctx, ev, userError(ErrLedgerTransient, textWithdrawFailed))
		out.Records = result.Records
		return out, err
	}

	text := textWithdrawn(FormatRaw(raw, e.cfg.Decimals), e.cfg.Symbol)
	e.reply(ctx, ev, text)
	e.logger.Info("withdraw executed", "message_id", ev.MessageID, "sender", sender.Address, "destination", address)
	return Outcome{Kind: Executed, Text: text, Records: result.Records}, nil
}

// validateAddress checks the address shape locally before asking the node.
func (e *Engine) validateAddress(ctx context.Context, address string) error {
	if !e.addressRe.MatchString(address) {
		return userError(ErrInvalidAddress, textInvalidAddress)
	}
	vctx, cancel := withTimeout(ctx, e.cfg.LedgerTimeout)
	defer cancel()
	valid, err := e.ledger.ValidateAddress(vctx, address)
	if err != nil {
		return errors.Join(ErrLedgerTransient, err)
	}
	if !valid {
		return userError(ErrInvalidAddress, textInvalidAddress)
	}
	return nil
}

// Account addresses are the prefix, a 1 or 3, then 59 characters of the
// base32 alphabet without 0, 2, l and v.
func addressPattern(prefix string) *regexp.Regexp {
	if prefix == "" {
		prefix = "ban_"
	}
	return regexp.MustCompile(`^` + regexp.QuoteMeta(strings.ToLower(prefix)) + `[13][13456789abcdefghijkmnopqrstuwxyz]{59}$`)
}
