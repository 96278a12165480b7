package telegram

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBotAPI answers getMe and records sendMessage calls.
type fakeBotAPI struct {
	mu    sync.Mutex
	sends []map[string]string
}

func (f *fakeBotAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasSuffix(r.URL.Path, "/getMe"):
		_, _ = io.WriteString(w, `{"ok":true,"result":{"id":999,"is_bot":true,"first_name":"Tip","username":"BananoTipBot"}}`)
	case strings.HasSuffix(r.URL.Path, "/sendMessage"):
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.sends = append(f.sends, map[string]string{"chat_id": r.Form.Get("chat_id"), "text": r.Form.Get("text")})
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":     true,
			"result": map[string]any{"message_id": 1, "date": 0, "chat": map[string]any{"id": 1, "type": "private"}},
		})
	default:
		_, _ = io.WriteString(w, `{"ok":false,"error_code":404,"description":"Not Found"}`)
	}
}

func newTestClient(t *testing.T) (*Client, *fakeBotAPI) {
	t.Helper()
	api := &fakeBotAPI{}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c, err := NewWithEndpoint("TOKEN", srv.URL+"/bot%s/%s", srv.Client(), logger, nil)
	require.NoError(t, err)
	return c, api
}

func TestClientIdentity(t *testing.T) {
	c, _ := newTestClient(t)
	assert.Equal(t, "999", c.BotID())
	assert.Equal(t, "BananoTipBot", c.BotName())
}

func TestClientSends(t *testing.T) {
	c, api := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.SendText(ctx, "-100", "hello chat"))
	require.NoError(t, c.SendDirect(ctx, "42", "hello you"))

	api.mu.Lock()
	defer api.mu.Unlock()
	assert.Equal(t, []map[string]string{
		{"chat_id": "-100", "text": "hello chat"},
		{"chat_id": "42", "text": "hello you"},
	}, api.sends)
}

func TestClientRejectsBadChatID(t *testing.T) {
	c, _ := newTestClient(t)
	require.Error(t, c.SendText(context.Background(), "not-a-number", "x"))
}
