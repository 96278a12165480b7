package tipping

import (
	"context"
	"fmt"
	"strings"
	"unicode"
)

// Recipient is a resolved tip receiver. Order in a recipient list is the
// transfer order and the basis of each record's index.
type Recipient struct {
	ID   string
	Name string
}

// Resolver turns a parsed command into an ordered recipient list.
type Resolver struct {
	members *MemberDirectory
}

func NewResolver(members *MemberDirectory) *Resolver {
	return &Resolver{members: members}
}

// Resolve picks reply mode when ev replies to a message, and mention-scan
// mode otherwise. An unknown recipient returns a *UserError wrapping
// ErrRecipientNotFound. An empty list without error means nothing to do.
func (r *Resolver) Resolve(ctx context.Context, ev Event, rest []string) ([]Recipient, error) {
	if ev.ReplyTo != nil {
		return r.resolveReply(ctx, ev)
	}
	return r.resolveMentions(ctx, ev, rest)
}

func (r *Resolver) resolveReply(ctx context.Context, ev Event) ([]Recipient, error) {
	m, ok, err := r.members.FindByID(ctx, ev.ChatID, ev.ReplyTo.MemberID)
	if err != nil {
		return nil, fmt.Errorf("resolve reply target: %w", err)
	}
	if !ok {
		return nil, userError(ErrRecipientNotFound, textReplyTargetUnknown)
	}
	if m.MemberID == ev.SenderID {
		return nil, nil
	}
	return []Recipient{{ID: m.MemberID, Name: m.MemberName}}, nil
}

func (r *Resolver) resolveMentions(ctx context.Context, ev Event, rest []string) ([]Recipient, error) {
	list := recipientList{sender: ev.SenderID, seen: make(map[string]struct{})}

	runOpen := false
	for _, token := range rest {
		name, isMention := mentionName(token)
		if !isMention {
			if runOpen {
				break
			}
			continue
		}
		if ev.SenderName != "" && strings.EqualFold(name, ev.SenderName) {
			continue
		}

		m, ok, err := r.members.FindByName(ctx, ev.ChatID, name)
		if err != nil {
			return nil, fmt.Errorf("resolve mention %s: %w", name, err)
		}
		if !ok {
			return nil, userError(ErrRecipientNotFound, textRecipientNotFound("@"+name))
		}
		runOpen = true
		list.add(Recipient{ID: m.MemberID, Name: m.MemberName})
	}

	for _, mention := range ev.Mentions {
		if mention.MemberID == "" {
			continue
		}
		recipient := Recipient{ID: mention.MemberID, Name: mention.Name}
		m, ok, err := r.members.FindByID(ctx, ev.ChatID, mention.MemberID)
		if err != nil {
			return nil, fmt.Errorf("resolve mention entity %s: %w", mention.MemberID, err)
		}
		if ok && m.MemberName != "" {
			recipient.Name = m.MemberName
		}
		list.add(recipient)
	}

	return list.items, nil
}

// mentionName extracts the name of an @mention token, dropping trailing
// punctuation such as "@alice," or "@bob!".
func mentionName(token string) (string, bool) {
	if !strings.HasPrefix(token, "@") {
		return "", false
	}
	name := strings.TrimRightFunc(token[1:], func(r rune) bool {
		return unicode.IsPunct(r) && r != '_'
	})
	if name == "" {
		return "", false
	}
	return name, true
}

// recipientList appends recipients while enforcing sender exclusion and
// uniqueness by id.
type recipientList struct {
	sender string
	seen   map[string]struct{}
	items  []Recipient
}

func (l *recipientList) add(r Recipient) {
	if r.ID == l.sender {
		return
	}
	if _, dup := l.seen[r.ID]; dup {
		return
	}
	l.seen[r.ID] = struct{}{}
	l.items = append(l.items, r)
}
