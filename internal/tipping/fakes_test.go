package tipping

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"banano-tipbot/internal/ledger"
	"banano-tipbot/internal/repo"

	"github.com/shopspring/decimal"
)

const testDecimals = 29

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ban converts a display amount to raw units.
func ban(s string) *big.Int {
	return decimal.RequireFromString(s).Shift(testDecimals).BigInt()
}

type fakeStore struct {
	mu       sync.Mutex
	accounts map[string]repo.Account
	members  map[string]repo.ChatMember
	records  map[string]repo.TipRecord

	nameLookups int
	listErr     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts: make(map[string]repo.Account),
		members:  make(map[string]repo.ChatMember),
		records:  make(map[string]repo.TipRecord),
	}
}

func memberKey(chatID, memberID string) string { return chatID + "\x00" + memberID }

func recordKey(messageID string, index int) string { return fmt.Sprintf("%s\x00%d", messageID, index) }

func (s *fakeStore) addMember(chatID, memberID, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[memberKey(chatID, memberID)] = repo.ChatMember{ChatID: chatID, MemberID: memberID, MemberName: name}
}

func (s *fakeStore) addAccount(userID, address string, registered bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[userID] = repo.Account{UserID: userID, Address: address, Registered: registered}
}

func (s *fakeStore) record(messageID string, index int) (repo.TipRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[recordKey(messageID, index)]
	return r, ok
}

func (s *fakeStore) recordCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *fakeStore) GetAccount(_ context.Context, userID string) (*repo.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[userID]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &a, nil
}

func (s *fakeStore) InsertAccount(_ context.Context, account repo.Account) (*repo.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[account.UserID]; ok {
		return &a, nil
	}
	account.ID = "acc-" + account.UserID
	account.CreatedAt = time.Now()
	s.accounts[account.UserID] = account
	return &account, nil
}

func (s *fakeStore) MarkAccountRegistered(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[userID]; ok {
		a.Registered = true
		s.accounts[userID] = a
	}
	return nil
}

func (s *fakeStore) UpsertChatMember(_ context.Context, member repo.ChatMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memberKey(member.ChatID, member.MemberID)
	if existing, ok := s.members[key]; ok {
		if member.ChatName == "" {
			member.ChatName = existing.ChatName
		}
		if member.MemberName == "" {
			member.MemberName = existing.MemberName
		}
	}
	s.members[key] = member
	return nil
}

func (s *fakeStore) GetChatMemberByName(_ context.Context, chatID, memberName string) (*repo.ChatMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nameLookups++
	for _, m := range s.members {
		if m.ChatID == chatID && strings.EqualFold(m.MemberName, memberName) {
			return &m, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (s *fakeStore) GetChatMemberByID(_ context.Context, chatID, memberID string) (*repo.ChatMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[memberKey(chatID, memberID)]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &m, nil
}

func (s *fakeStore) DeleteChatMember(_ context.Context, chatID, memberID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.members, memberKey(chatID, memberID))
	return nil
}

func (s *fakeStore) ListTipRecords(_ context.Context, messageID string) ([]repo.TipRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []repo.TipRecord
	for i := 0; ; i++ {
		r, ok := s.records[recordKey(messageID, i)]
		if !ok {
			break
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *fakeStore) InsertTipRecord(_ context.Context, record repo.TipRecord) (*repo.TipRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := recordKey(record.MessageID, record.RecipientIndex)
	if existing, ok := s.records[key]; ok {
		return &existing, false, nil
	}
	if record.Status == "" {
		record.Status = repo.TipPending
	}
	s.records[key] = record
	return &record, true, nil
}

func (s *fakeStore) UpdateTipStatus(_ context.Context, messageID string, index int, status repo.TipStatus, txHash, errMsg *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := recordKey(messageID, index)
	r, ok := s.records[key]
	if !ok {
		return repo.ErrNotFound
	}
	if r.Status == repo.TipSent {
		return repo.ErrRecordSent
	}
	r.Status = status
	if txHash != nil {
		r.TxHash = txHash
	}
	r.Error = errMsg
	s.records[key] = r
	return nil
}

type fakeLedger struct {
	mu         sync.Mutex
	balances   map[string]*big.Int
	receivable map[string]*big.Int
	sendsByID  map[string]string
	sends      []ledger.SendRequest
	attempts   []string
	failTo     map[string]error
	invalid    map[string]bool
	created    int
	createErr  error
	balanceErr error
	// after runs at the end of every Balance or Send call, outside the lock.
	after func(action string)
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		balances:   make(map[string]*big.Int),
		receivable: make(map[string]*big.Int),
		sendsByID:  make(map[string]string),
		failTo:     make(map[string]error),
		invalid:    make(map[string]bool),
	}
}

func (l *fakeLedger) fund(account string, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[account] = new(big.Int).Set(amount)
}

func (l *fakeLedger) deposit(account string, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.receivable[account] = new(big.Int).Set(amount)
}

func (l *fakeLedger) failSendsTo(account string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err == nil {
		delete(l.failTo, account)
		return
	}
	l.failTo[account] = err
}

func (l *fakeLedger) sendCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sends)
}

func (l *fakeLedger) destinations() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.sends))
	for _, s := range l.sends {
		out = append(out, s.Destination)
	}
	return out
}

func (l *fakeLedger) balanceOf(account string) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.balances[account]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

func (l *fakeLedger) CreateAccount(_ context.Context, _ string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.createErr != nil {
		return "", l.createErr
	}
	l.created++
	return fmt.Sprintf("ban_created%d", l.created), nil
}

func (l *fakeLedger) ReceivePending(_ context.Context, _, account string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if amount, ok := l.receivable[account]; ok {
		balance := l.balances[account]
		if balance == nil {
			balance = new(big.Int)
		}
		l.balances[account] = new(big.Int).Add(balance, amount)
		delete(l.receivable, account)
	}
	return nil
}

func (l *fakeLedger) notify(action string) {
	if l.after != nil {
		l.after(action)
	}
}

func (l *fakeLedger) Balance(ctx context.Context, account string) (*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer l.notify("balance")
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balanceErr != nil {
		return nil, l.balanceErr
	}
	if b, ok := l.balances[account]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (l *fakeLedger) Send(ctx context.Context, req ledger.SendRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	defer l.notify("send")
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempts = append(l.attempts, req.Destination)
	if hash, ok := l.sendsByID[req.ID]; ok && req.ID != "" {
		return hash, nil
	}
	if err := l.failTo[req.Destination]; err != nil {
		return "", err
	}
	balance := l.balances[req.Source]
	if balance == nil || balance.Cmp(req.Amount) < 0 {
		return "", fmt.Errorf("insufficient balance")
	}
	l.balances[req.Source] = new(big.Int).Sub(balance, req.Amount)
	dest := l.balances[req.Destination]
	if dest == nil {
		dest = new(big.Int)
	}
	l.balances[req.Destination] = new(big.Int).Add(dest, req.Amount)
	l.sends = append(l.sends, req)
	hash := fmt.Sprintf("HASH%d", len(l.sends))
	l.sendsByID[req.ID] = hash
	return hash, nil
}

func (l *fakeLedger) ValidateAddress(_ context.Context, address string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.invalid[address], nil
}

type sentMessage struct {
	Direct bool
	To     string
	Text   string
}

type fakeMessenger struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (m *fakeMessenger) SendText(_ context.Context, chatID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMessage{To: chatID, Text: text})
	return nil
}

func (m *fakeMessenger) SendDirect(_ context.Context, userID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMessage{Direct: true, To: userID, Text: text})
	return nil
}

func (m *fakeMessenger) texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sent))
	for _, s := range m.sent {
		out = append(out, s.Text)
	}
	return out
}

func (m *fakeMessenger) last() sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return sentMessage{}
	}
	return m.sent[len(m.sent)-1]
}

type harness struct {
	engine    *Engine
	store     *fakeStore
	ledger    *fakeLedger
	messenger *fakeMessenger
}

const (
	testChat   = "-100"
	testSender = "1"
)

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:     newFakeStore(),
		ledger:    newFakeLedger(),
		messenger: &fakeMessenger{},
	}
	h.engine = New(Config{
		Platform:      "test",
		MinTip:        decimal.NewFromInt(1),
		Wallet:        "WALLET",
		Decimals:      testDecimals,
		Symbol:        "BAN",
		Triggers:      []string{".tip", ".ban", "/tip"},
		LedgerTimeout: time.Second,
		BotName:       "BananoTipBot",
		BotID:         "999",
		AddressPrefix: "ban_",
	}, h.store, h.ledger, h.messenger, nil, nil, discardLogger())

	h.store.addMember(testChat, testSender, "sender")
	h.store.addAccount(testSender, "ban_sender", true)
	for id, name := range map[string]string{"2": "alice", "3": "bob", "4": "carol"} {
		h.store.addMember(testChat, id, name)
		h.store.addAccount(id, "ban_"+name, false)
	}
	return h
}

func groupMessage(messageID, text string) Event {
	return Event{
		Platform:   "test",
		Kind:       EventMessage,
		ChatID:     testChat,
		ChatType:   ChatGroup,
		ChatName:   "bananas",
		SenderID:   testSender,
		SenderName: "sender",
		MessageID:  messageID,
		Text:       text,
	}
}

func directMessage(messageID, text string) Event {
	return Event{
		Platform:   "test",
		Kind:       EventMessage,
		ChatID:     testSender,
		ChatType:   ChatPrivate,
		SenderID:   testSender,
		SenderName: "sender",
		MessageID:  messageID,
		Text:       text,
	}
}
