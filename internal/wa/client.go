package wa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"banano-tipbot/internal/metrics"
	"banano-tipbot/internal/tipping"

	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
	_ "modernc.org/sqlite"
)

// Platform labels events and metrics coming from WhatsApp.
const Platform = "whatsapp"

const processTimeout = 2 * time.Minute

// Config holds configuration to initialise the WhatsApp client.
type Config struct {
	StorePath string
	LogLevel  string
	Metrics   *metrics.Metrics
}

// Client wraps the WhatsMeow client and associated dependencies.
type Client struct {
	client    *whatsmeow.Client
	logger    *slog.Logger
	metrics   *metrics.Metrics
	processor EventProcessor
}

// EventProcessor handles normalized chat events.
type EventProcessor interface {
	HandleEvent(ctx context.Context, ev tipping.Event) (tipping.Outcome, error)
}

type replyContextKey struct{}

// ReplyMetadata carries information for quoting a previous message.
type ReplyMetadata struct {
	Message *waProto.Message
	Info    types.MessageInfo
}

// WithReply attaches reply metadata to the context so outgoing messages to
// the same chat quote the given event.
func WithReply(ctx context.Context, evt *events.Message) context.Context {
	if evt == nil || evt.Message == nil {
		return ctx
	}
	cloned, ok := proto.Clone(evt.Message).(*waProto.Message)
	if !ok {
		cloned = evt.Message
	}
	meta := &ReplyMetadata{
		Message: cloned,
		Info:    evt.Info,
	}
	return context.WithValue(ctx, replyContextKey{}, meta)
}

func replyFromContext(ctx context.Context) *ReplyMetadata {
	if ctx == nil {
		return nil
	}
	meta, _ := ctx.Value(replyContextKey{}).(*ReplyMetadata)
	return meta
}

// New creates a new WhatsApp client instance backed by an SQLite store.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.StorePath == "" {
		return nil, errors.New("store path is required")
	}

	if err := ensureDir(filepath.Dir(cfg.StorePath)); err != nil {
		return nil, fmt.Errorf("ensure store dir: %w", err)
	}

	storeLogger := waLog.Stdout("whatsmeow/sqlstore", cfg.LogLevel, true)
	container, err := sqlstore.New(ctx, "sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout=10000&_pragma=foreign_keys(ON)", cfg.StorePath), storeLogger)
	if err != nil {
		return nil, fmt.Errorf("create sqlstore: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("get device: %w", err)
	}

	waLogger := waLog.Stdout("whatsmeow/client", cfg.LogLevel, true)
	client := whatsmeow.NewClient(deviceStore, waLogger)

	wc := &Client{
		client:  client,
		logger:  logger.With("component", "wa"),
		metrics: cfg.Metrics,
	}
	client.AddEventHandler(wc.handleEvent)

	return wc, nil
}

// Start connects the client and handles login/QR pairing flow.
func (c *Client) Start(ctx context.Context) error {
	if c.client.Store.ID == nil {
		c.logger.Info("pairing required, waiting for QR scan")
		qrChan, err := c.client.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("get qr channel: %w", err)
		}

		go func() {
			for evt := range qrChan {
				if evt.Event == "code" {
					c.logger.Info("scan the QR code with WhatsApp", "qr", evt.Code)
				} else {
					c.logger.Info("pairing event received", "event", evt.Event)
				}
			}
		}()
	}

	if err := c.client.Connect(); err != nil {
		return fmt.Errorf("connect wa client: %w", err)
	}

	c.logger.Info("whatsapp client connected")
	return nil
}

// Close disconnects the WhatsApp client.
func (c *Client) Close() {
	if c.client != nil {
		c.client.Disconnect()
	}
}

// SetEventProcessor registers the processor that receives converted events.
func (c *Client) SetEventProcessor(processor EventProcessor) {
	c.processor = processor
}

func (c *Client) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Message:
		ev, ok := MessageToEvent(v)
		if !ok {
			c.logger.Debug("message ignored", "chat", v.Info.Chat.String(), "id", v.Info.ID)
			return
		}
		c.dispatch(WithReply(context.Background(), v), ev)
	case *events.GroupInfo:
		for _, ev := range GroupInfoToEvents(v) {
			c.dispatch(context.Background(), ev)
		}
	case *events.JoinedGroup:
		c.dispatch(context.Background(), JoinedGroupToEvent(v))
	case *events.Connected:
		c.logger.Info("device connected")
	case *events.Disconnected:
		c.logger.Warn("device disconnected")
	}
}

// dispatch hands ev to the processor off the whatsmeow event goroutine.
// WhatsApp never redelivers, so failures are only logged.
func (c *Client) dispatch(ctx context.Context, ev tipping.Event) {
	if c.processor == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(ctx, processTimeout)
		defer cancel()
		out, err := c.processor.HandleEvent(ctx, ev)
		if err != nil {
			c.logger.Error("failed processing event", "message_id", ev.MessageID, "kind", ev.Kind, "error", err)
			return
		}
		c.logger.Debug("event processed", "message_id", ev.MessageID, "outcome", out.Kind.String())
	}()
}

func ensureDir(dir string) error {
	if dir == "." || dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0o755)
	}
	return nil
}

// SendText sends a text message to a chat JID. When ctx carries reply
// metadata for the same chat the message quotes it.
func (c *Client) SendText(ctx context.Context, chatID, text string) error {
	to, err := types.ParseJID(chatID)
	if err != nil {
		return fmt.Errorf("parse chat jid %q: %w", chatID, err)
	}
	return c.send(ctx, "chat", to, buildText(replyFromContext(ctx), to, text))
}

// SendDirect sends a text message to the private chat of a user JID.
func (c *Client) SendDirect(ctx context.Context, userID, text string) error {
	to, err := types.ParseJID(userID)
	if err != nil {
		return fmt.Errorf("parse user jid %q: %w", userID, err)
	}
	return c.send(ctx, "direct", to.ToNonAD(), buildText(nil, to, text))
}

func (c *Client) send(ctx context.Context, target string, to types.JID, message *waProto.Message) error {
	if _, err := c.client.SendMessage(ctx, to, message); err != nil {
		if c.metrics != nil {
			c.metrics.Errors.WithLabelValues("wa_send").Inc()
		}
		return fmt.Errorf("send text: %w", err)
	}
	if c.metrics != nil {
		c.metrics.OutgoingMessages.WithLabelValues(Platform, target).Inc()
	}
	return nil
}

func buildText(reply *ReplyMetadata, to types.JID, text string) *waProto.Message {
	if reply == nil || reply.Message == nil || reply.Info.Chat != to {
		return &waProto.Message{Conversation: proto.String(text)}
	}
	return &waProto.Message{
		ExtendedTextMessage: &waProto.ExtendedTextMessage{
			Text: proto.String(text),
			ContextInfo: &waProto.ContextInfo{
				StanzaID:      proto.String(string(reply.Info.ID)),
				Participant:   proto.String(reply.Info.Sender.ToNonAD().String()),
				RemoteJID:     proto.String(reply.Info.Chat.String()),
				QuotedMessage: reply.Message,
				QuotedType:    waProto.ContextInfo_EXPLICIT.Enum(),
			},
		},
	}
}
