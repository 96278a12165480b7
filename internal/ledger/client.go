package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"banano-tipbot/internal/cache"
	"banano-tipbot/internal/metrics"
)

const (
	defaultTimeout     = 15 * time.Second
	defaultValidateTTL = 24 * time.Hour
	receivableCount    = 50
)

var (
	// ErrNode indicates the node answered with an error payload.
	ErrNode = errors.New("ledger node error")
	// ErrUnavailable indicates the node could not be reached or timed out.
	ErrUnavailable = errors.New("ledger node unavailable")
)

// Client talks to a Nano-protocol node over its JSON RPC.
type Client struct {
	logger      *slog.Logger
	endpoint    string
	timeout     time.Duration
	http        *http.Client
	metrics     *metrics.Metrics
	cache       *cache.Redis
	validateTTL time.Duration
}

// Config holds ledger client configuration.
type Config struct {
	Endpoint string
	Timeout  time.Duration
}

// SendRequest describes a signed send from a wallet-held account.
type SendRequest struct {
	Wallet      string
	Source      string
	Destination string
	Amount      *big.Int
	// ID makes the send idempotent on the node: repeating an ID returns the
	// original block instead of publishing a new one.
	ID string
}

// New constructs a Client. redis may be nil.
func New(cfg Config, logger *slog.Logger, metrics *metrics.Metrics, redis *cache.Redis) *Client {
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = "http://127.0.0.1:7072"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		logger:      logger.With("component", "ledger"),
		endpoint:    endpoint,
		timeout:     timeout,
		http:        &http.Client{Timeout: timeout},
		metrics:     metrics,
		cache:       redis,
		validateTTL: defaultValidateTTL,
	}
}

// CreateAccount asks the node to derive a new account in wallet.
func (c *Client) CreateAccount(ctx context.Context, wallet string) (string, error) {
	var res struct {
		Account string `json:"account"`
	}
	if err := c.call(ctx, "account_create", map[string]any{"wallet": wallet}, &res); err != nil {
		return "", err
	}
	if res.Account == "" {
		return "", fmt.Errorf("%w: account_create returned no account", ErrNode)
	}
	return res.Account, nil
}

// ReceivePending pockets every receivable block for account so the funds
// become spendable.
func (c *Client) ReceivePending(ctx context.Context, wallet, account string) error {
	blocks, err := c.receivable(ctx, account)
	if err != nil {
		return err
	}
	for _, hash := range blocks {
		var res struct {
			Block string `json:"block"`
		}
		params := map[string]any{"wallet": wallet, "account": account, "block": hash}
		if err := c.call(ctx, "receive", params, &res); err != nil {
			return fmt.Errorf("receive %s: %w", hash, err)
		}
		c.logger.Debug("received pending block", "account", account, "source_block", hash, "block", res.Block)
	}
	return nil
}

func (c *Client) receivable(ctx context.Context, account string) ([]string, error) {
	var res struct {
		Blocks json.RawMessage `json:"blocks"`
	}
	params := map[string]any{"account": account, "count": fmt.Sprint(receivableCount)}
	err := c.call(ctx, "receivable", params, &res)
	if err != nil && errors.Is(err, ErrNode) && strings.Contains(strings.ToLower(err.Error()), "unknown command") {
		// Older nodes only know the pre-rename action.
		err = c.call(ctx, "pending", params, &res)
	}
	if err != nil {
		return nil, err
	}
	return parseBlockList(res.Blocks)
}

// parseBlockList accepts the shapes nodes use for block lists: an array of
// hashes, a hash-keyed object, or an empty string when nothing is pending.
func parseBlockList(raw json.RawMessage) ([]string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] == '"' || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var hashes []string
		if err := json.Unmarshal(trimmed, &hashes); err != nil {
			return nil, fmt.Errorf("decode blocks: %w", err)
		}
		return hashes, nil
	}
	var byHash map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &byHash); err != nil {
		return nil, fmt.Errorf("decode blocks: %w", err)
	}
	hashes := make([]string, 0, len(byHash))
	for hash := range byHash {
		hashes = append(hashes, hash)
	}
	return hashes, nil
}

// Balance returns the confirmed balance of account in raw units. Accounts
// that were never opened report zero.
func (c *Client) Balance(ctx context.Context, account string) (*big.Int, error) {
	var res struct {
		Balance string `json:"balance"`
	}
	if err := c.call(ctx, "account_balance", map[string]any{"account": account}, &res); err != nil {
		if errors.Is(err, ErrNode) && strings.Contains(strings.ToLower(err.Error()), "account not found") {
			return new(big.Int), nil
		}
		return nil, err
	}
	balance, ok := new(big.Int).SetString(res.Balance, 10)
	if !ok {
		return nil, fmt.Errorf("%w: invalid balance %q", ErrNode, res.Balance)
	}
	return balance, nil
}

// Send publishes a send block and returns its hash.
func (c *Client) Send(ctx context.Context, req SendRequest) (string, error) {
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return "", fmt.Errorf("send amount must be positive")
	}
	params := map[string]any{
		"wallet":      req.Wallet,
		"source":      req.Source,
		"destination": req.Destination,
		"amount":      req.Amount.String(),
	}
	if req.ID != "" {
		params["id"] = req.ID
	}
	var res struct {
		Block string `json:"block"`
	}
	if err := c.call(ctx, "send", params, &res); err != nil {
		return "", err
	}
	if res.Block == "" {
		return "", fmt.Errorf("%w: send returned no block", ErrNode)
	}
	return res.Block, nil
}

// ValidateAddress checks the account checksum on the node. Results are cached
// in Redis when configured.
func (c *Client) ValidateAddress(ctx context.Context, address string) (bool, error) {
	cacheKey := "tipbot:ledger:valid:" + address
	if c.cache != nil {
		var cached bool
		ok, err := c.cache.GetJSON(ctx, cacheKey, &cached)
		if err != nil {
			c.logger.Warn("read address cache failed", "error", err)
		} else if ok {
			return cached, nil
		}
	}

	var res struct {
		Valid string `json:"valid"`
	}
	if err := c.call(ctx, "validate_account_number", map[string]any{"account": address}, &res); err != nil {
		return false, err
	}
	valid := res.Valid == "1"

	if c.cache != nil {
		if err := c.cache.SetJSON(ctx, cacheKey, valid, c.validateTTL); err != nil {
			c.logger.Warn("set address cache failed", "error", err)
		}
	}
	return valid, nil
}

func (c *Client) call(ctx context.Context, action string, params map[string]any, dest any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload := make(map[string]any, len(params)+1)
	for k, v := range params {
		payload[k] = v
	}
	payload["action"] = action
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", action, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "banano-tipbot/ledger-client")

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		c.observe(action, "error", start)
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, action, err)
	}
	defer res.Body.Close()
	c.observe(action, fmt.Sprintf("%d", res.StatusCode), start)

	bodyBytes, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("%w: read %s response: %v", ErrUnavailable, action, err)
	}
	if res.StatusCode >= 400 {
		return classifyHTTPError(action, res.StatusCode, string(bodyBytes))
	}

	var envelope struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(bodyBytes, &envelope); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", ErrNode, action, err)
	}
	if envelope.Error != "" {
		return fmt.Errorf("%w: %s: %s", ErrNode, action, envelope.Error)
	}
	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(bodyBytes, dest); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", ErrNode, action, err)
	}
	return nil
}

func (c *Client) observe(action, status string, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.LedgerRequests.WithLabelValues(action, status).Inc()
	c.metrics.LedgerLatency.WithLabelValues(action, status).Observe(time.Since(start).Seconds())
}

func classifyHTTPError(action string, status int, body string) error {
	snippet := strings.TrimSpace(body)
	if len(snippet) > 256 {
		snippet = snippet[:256]
	}
	if status >= 500 || status == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %s: status=%d body=%s", ErrUnavailable, action, status, snippet)
	}
	return fmt.Errorf("%w: %s: status=%d body=%s", ErrNode, action, status, snippet)
}
