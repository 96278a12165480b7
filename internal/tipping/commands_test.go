package tipping

import (
	"context"
	"strings"
	"testing"

	"banano-tipbot/internal/repo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var validAddress = "ban_1" + strings.Repeat("a", 59)

func TestDirectHelp(t *testing.T) {
	h := newHarness(t)
	for _, cmd := range []string{".help", "/help", "/start", "/START@BananoTipBot"} {
		out, err := h.engine.HandleEvent(context.Background(), directMessage("u:1", cmd))
		require.NoError(t, err)
		assert.Equal(t, Executed, out.Kind, cmd)
		assert.Contains(t, out.Text, ".withdraw", cmd)
	}
	assert.True(t, h.messenger.last().Direct)
	assert.Equal(t, testSender, h.messenger.last().To)
}

func TestDirectUnknownAndTipRedirect(t *testing.T) {
	h := newHarness(t)

	out, err := h.engine.HandleEvent(context.Background(), directMessage("u:2", ".dance"))
	require.NoError(t, err)
	assert.Equal(t, RepliedWithError, out.Kind)
	assert.Contains(t, out.Text, "not recognized")

	out, err = h.engine.HandleEvent(context.Background(), directMessage("u:3", ".tip 1 @alice"))
	require.NoError(t, err)
	assert.Equal(t, RepliedWithError, out.Kind)
	assert.Contains(t, out.Text, "@BananoTipBot .tip 1 @user1")
}

func TestDirectRegister(t *testing.T) {
	h := newHarness(t)
	ev := directMessage("u:4", ".register")
	ev.SenderID, ev.SenderName = "60", "hank"

	out, err := h.engine.HandleEvent(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, Executed, out.Kind)
	assert.Equal(t, textRegistered+"\nban_created1", out.Text)

	account, err := h.store.GetAccount(context.Background(), "60")
	require.NoError(t, err)
	assert.True(t, account.Registered)
	assert.Equal(t, "hank", account.UserName)

	out, err = h.engine.HandleEvent(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, textAlreadyRegistered+"\nban_created1", out.Text)
	assert.Equal(t, 1, h.ledger.created)
}

func TestDirectRegisterActivatesTipRecipient(t *testing.T) {
	h := newHarness(t)
	ev := directMessage("u:5", ".register")
	ev.SenderID = "2"

	out, err := h.engine.HandleEvent(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, textRegistered+"\nban_alice", out.Text)
	assert.Zero(t, h.ledger.created)
}

func TestDirectAccount(t *testing.T) {
	h := newHarness(t)

	out, err := h.engine.HandleEvent(context.Background(), directMessage("u:6", ".account"))
	require.NoError(t, err)
	assert.Equal(t, textAccountAddress+"\nban_sender", out.Text)

	ev := directMessage("u:7", "/account")
	ev.SenderID = "61"
	out, err = h.engine.HandleEvent(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, textAccountCreated+"\nban_created1", out.Text)
}

func TestDirectAccountCreationFailure(t *testing.T) {
	h := newHarness(t)
	h.ledger.createErr = assert.AnError
	ev := directMessage("u:8", ".register")
	ev.SenderID = "62"

	out, err := h.engine.HandleEvent(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, RepliedWithError, out.Kind)
	assert.ErrorIs(t, out.Reason, ErrAccountCreation)
	_, err = h.store.GetAccount(context.Background(), "62")
	require.ErrorIs(t, err, repo.ErrNotFound)
}

func TestDirectBalanceSweepsDeposits(t *testing.T) {
	h := newHarness(t)
	h.ledger.fund("ban_sender", ban("1"))
	h.ledger.deposit("ban_sender", ban("1.5"))

	out, err := h.engine.HandleEvent(context.Background(), directMessage("u:9", ".balance"))
	require.NoError(t, err)
	assert.Equal(t, "Your balance is 2.5 BAN.", out.Text)
}

func TestDirectWithdrawWholeBalance(t *testing.T) {
	h := newHarness(t)
	h.ledger.fund("ban_sender", ban("3"))
	ev := directMessage("u:10", ".withdraw "+strings.ToUpper(validAddress))

	out, err := h.engine.HandleEvent(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, Executed, out.Kind)
	assert.Equal(t, "You have successfully withdrawn 3 BAN!", out.Text)
	require.Len(t, out.Records, 1)
	assert.Equal(t, repo.KindWithdraw, out.Records[0].Kind)
	assert.Equal(t, validAddress, out.Records[0].ReceiverAccount)
	assert.Zero(t, h.ledger.balanceOf("ban_sender").Sign())

	// Redelivery does not withdraw again.
	out, err = h.engine.HandleEvent(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, Executed, out.Kind)
	assert.Equal(t, 1, h.ledger.sendCount())
}

func TestDirectWithdrawPartial(t *testing.T) {
	h := newHarness(t)
	h.ledger.fund("ban_sender", ban("3"))

	out, err := h.engine.HandleEvent(context.Background(), directMessage("u:11", ".withdraw 1.25 "+validAddress))
	require.NoError(t, err)
	assert.Equal(t, "You have successfully withdrawn 1.25 BAN!", out.Text)
	assert.Equal(t, 0, ban("1.75").Cmp(h.ledger.balanceOf("ban_sender")))
}

func TestDirectWithdrawRejections(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		sender  string
		balance string
		invalid bool
		reason  error
		want    string
	}{
		{name: "usage", text: ".withdraw", reason: ErrMalformedCommand, want: "didn't understand"},
		{name: "too many args", text: ".withdraw 1 2 " + validAddress, reason: ErrMalformedCommand, want: "didn't understand"},
		{name: "not a number", text: ".withdraw lots " + validAddress, reason: ErrMalformedCommand, want: "did not send a number"},
		{name: "no account", text: ".withdraw " + validAddress, sender: "70", reason: ErrSenderUnregistered, want: "do not have an account"},
		{name: "bad shape", text: ".withdraw ban_123", reason: ErrInvalidAddress, want: "invalid"},
		{name: "node rejects", text: ".withdraw " + validAddress, invalid: true, reason: ErrInvalidAddress, want: "invalid"},
		{name: "zero balance", text: ".withdraw " + validAddress, balance: "0", reason: ErrInsufficientFunds, want: "0 balance"},
		{name: "too much", text: ".withdraw 5 " + validAddress, balance: "3", reason: ErrInsufficientFunds, want: "do not have that much"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			if tt.balance != "" {
				h.ledger.fund("ban_sender", ban(tt.balance))
			}
			if tt.invalid {
				h.ledger.invalid[validAddress] = true
			}
			ev := directMessage("u:w", tt.text)
			if tt.sender != "" {
				ev.SenderID = tt.sender
			}

			out, err := h.engine.HandleEvent(context.Background(), ev)
			require.NoError(t, err)
			assert.Equal(t, RepliedWithError, out.Kind)
			assert.ErrorIs(t, out.Reason, tt.reason)
			assert.Contains(t, out.Text, tt.want)
			assert.Zero(t, h.ledger.sendCount())
		})
	}
}

func TestDirectWithdrawRunsToCompletionAfterCallerCancels(t *testing.T) {
	h := newHarness(t)
	h.ledger.fund("ban_sender", ban("3"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.ledger.after = func(action string) {
		if action == "balance" {
			cancel()
		}
	}

	out, err := h.engine.HandleEvent(ctx, directMessage("u:40", ".withdraw "+validAddress))
	require.NoError(t, err)
	assert.Equal(t, Executed, out.Kind)
	require.Len(t, out.Records, 1)
	assert.Equal(t, repo.TipSent, out.Records[0].Status)
	assert.Equal(t, 1, h.ledger.sendCount())
}
