package ledger

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rpcCall struct {
	Action string
	Params map[string]any
}

// fakeNode answers RPC actions from a handler table and records every call.
type fakeNode struct {
	mu       sync.Mutex
	calls    []rpcCall
	handlers map[string]func(params map[string]any) any
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var params map[string]any
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	action, _ := params["action"].(string)
	n.mu.Lock()
	n.calls = append(n.calls, rpcCall{Action: action, Params: params})
	handler := n.handlers[action]
	n.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if handler == nil {
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "Unknown command"})
		return
	}
	_ = json.NewEncoder(w).Encode(handler(params))
}

func (n *fakeNode) actions() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.calls))
	for _, c := range n.calls {
		out = append(out, c.Action)
	}
	return out
}

func newTestClient(t *testing.T, node http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(node)
	t.Cleanup(srv.Close)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(Config{Endpoint: srv.URL, Timeout: 2 * time.Second}, logger, nil, nil)
}

func TestCreateAccount(t *testing.T) {
	node := &fakeNode{handlers: map[string]func(map[string]any) any{
		"account_create": func(p map[string]any) any {
			assert.Equal(t, "W1", p["wallet"])
			return map[string]string{"account": "ban_1new"}
		},
	}}
	c := newTestClient(t, node)

	account, err := c.CreateAccount(context.Background(), "W1")
	require.NoError(t, err)
	assert.Equal(t, "ban_1new", account)
}

func TestCreateAccountNodeError(t *testing.T) {
	node := &fakeNode{handlers: map[string]func(map[string]any) any{
		"account_create": func(map[string]any) any {
			return map[string]string{"error": "Wallet not found"}
		},
	}}
	c := newTestClient(t, node)

	_, err := c.CreateAccount(context.Background(), "W1")
	require.ErrorIs(t, err, ErrNode)
	assert.Contains(t, err.Error(), "Wallet not found")
}

func TestReceivePendingSweepsEveryBlock(t *testing.T) {
	var received []string
	node := &fakeNode{handlers: map[string]func(map[string]any) any{
		"receivable": func(map[string]any) any {
			return map[string]any{"blocks": []string{"H1", "H2"}}
		},
		"receive": func(p map[string]any) any {
			received = append(received, p["block"].(string))
			return map[string]string{"block": "R-" + p["block"].(string)}
		},
	}}
	c := newTestClient(t, node)

	require.NoError(t, c.ReceivePending(context.Background(), "W1", "ban_1a"))
	assert.Equal(t, []string{"H1", "H2"}, received)
}

func TestReceivePendingEmptyString(t *testing.T) {
	node := &fakeNode{handlers: map[string]func(map[string]any) any{
		"receivable": func(map[string]any) any {
			return map[string]any{"blocks": ""}
		},
	}}
	c := newTestClient(t, node)

	require.NoError(t, c.ReceivePending(context.Background(), "W1", "ban_1a"))
	assert.Equal(t, []string{"receivable"}, node.actions())
}

func TestReceivePendingFallsBackToPending(t *testing.T) {
	node := &fakeNode{handlers: map[string]func(map[string]any) any{
		"pending": func(map[string]any) any {
			return map[string]any{"blocks": map[string]string{"H9": "100"}}
		},
		"receive": func(map[string]any) any {
			return map[string]string{"block": "R9"}
		},
	}}
	c := newTestClient(t, node)

	require.NoError(t, c.ReceivePending(context.Background(), "W1", "ban_1a"))
	assert.Equal(t, []string{"receivable", "pending", "receive"}, node.actions())
}

func TestBalance(t *testing.T) {
	node := &fakeNode{handlers: map[string]func(map[string]any) any{
		"account_balance": func(p map[string]any) any {
			if p["account"] == "ban_1unopened" {
				return map[string]string{"error": "Account not found"}
			}
			return map[string]string{"balance": "100000000000000000000000000000000", "pending": "0"}
		},
	}}
	c := newTestClient(t, node)

	balance, err := c.Balance(context.Background(), "ban_1a")
	require.NoError(t, err)
	want, _ := new(big.Int).SetString("100000000000000000000000000000000", 10)
	assert.Equal(t, 0, want.Cmp(balance))

	balance, err = c.Balance(context.Background(), "ban_1unopened")
	require.NoError(t, err)
	assert.Equal(t, 0, balance.Sign())
}

func TestSendPassesIdempotencyID(t *testing.T) {
	node := &fakeNode{handlers: map[string]func(map[string]any) any{
		"send": func(p map[string]any) any {
			assert.Equal(t, "ban_1src", p["source"])
			assert.Equal(t, "ban_1dst", p["destination"])
			assert.Equal(t, "12345", p["amount"])
			assert.Equal(t, "send-id-1", p["id"])
			return map[string]string{"block": "BLOCK1"}
		},
	}}
	c := newTestClient(t, node)

	hash, err := c.Send(context.Background(), SendRequest{
		Wallet:      "W1",
		Source:      "ban_1src",
		Destination: "ban_1dst",
		Amount:      big.NewInt(12345),
		ID:          "send-id-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "BLOCK1", hash)
}

func TestSendRejectsNonPositiveAmount(t *testing.T) {
	c := newTestClient(t, &fakeNode{})
	_, err := c.Send(context.Background(), SendRequest{Amount: big.NewInt(0)})
	require.Error(t, err)
}

func TestValidateAddress(t *testing.T) {
	node := &fakeNode{handlers: map[string]func(map[string]any) any{
		"validate_account_number": func(p map[string]any) any {
			if p["account"] == "ban_1good" {
				return map[string]string{"valid": "1"}
			}
			return map[string]string{"valid": "0"}
		},
	}}
	c := newTestClient(t, node)

	ok, err := c.ValidateAddress(context.Background(), "ban_1good")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.ValidateAddress(context.Background(), "ban_1bad")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestServerErrorIsUnavailable(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusBadGateway)
	}))

	_, err := c.Balance(context.Background(), "ban_1a")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestTimeoutIsUnavailable(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := New(Config{Endpoint: srv.URL, Timeout: 50 * time.Millisecond}, logger, nil, nil)

	_, err := c.Balance(context.Background(), "ban_1a")
	require.ErrorIs(t, err, ErrUnavailable)
}
