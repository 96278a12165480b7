package tipping

import "banano-tipbot/internal/repo"

// EventKind classifies an inbound chat event.
type EventKind string

const (
	EventMessage      EventKind = "message"
	EventMemberJoined EventKind = "member_joined"
	EventMemberLeft   EventKind = "member_left"
	EventChatCreated  EventKind = "chat_created"
)

// ChatType distinguishes direct conversations from multi-member chats.
type ChatType string

const (
	ChatPrivate ChatType = "private"
	ChatGroup   ChatType = "group"
)

// Event is a chat update normalized by a transport.
type Event struct {
	Platform   string
	Kind       EventKind
	ChatID     string
	ChatType   ChatType
	ChatName   string
	SenderID   string
	SenderName string
	// MessageID must be unique across chats of the platform; it keys tip records.
	MessageID string
	Text      string
	ReplyTo   *ReplyTarget
	Mentions  []Mention
	// Members carries the subjects of join and leave events.
	Members []Member
}

// ReplyTarget identifies the author of the message being replied to.
type ReplyTarget struct {
	MemberID   string
	MemberName string
}

// Mention is an explicit user reference supplied by the transport rather
// than a plain-text @name.
type Mention struct {
	MemberID string
	Name     string
}

// Member is a chat participant.
type Member struct {
	ID   string
	Name string
}

// OutcomeKind reports what HandleEvent did with an event.
type OutcomeKind int

const (
	Ignored OutcomeKind = iota
	RepliedWithError
	Executed
)

func (k OutcomeKind) String() string {
	switch k {
	case RepliedWithError:
		return "replied_with_error"
	case Executed:
		return "executed"
	default:
		return "ignored"
	}
}

// Outcome is the result of handling one event.
type Outcome struct {
	Kind OutcomeKind
	// Text is the reply delivered to the user, if any.
	Text string
	// Reason is the taxonomy error behind a RepliedWithError outcome.
	Reason  error
	Records []repo.TipRecord
}
