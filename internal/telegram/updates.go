package telegram

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"banano-tipbot/internal/tipping"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

var nonWord = regexp.MustCompile(`[^\p{L}\p{N}_]+`)

// ToEvent normalizes an update. The second result is false for updates the
// engine has no use for, such as edits, channel posts or stickers.
func ToEvent(u tgbotapi.Update) (tipping.Event, bool) {
	msg := u.Message
	if msg == nil || msg.Chat == nil {
		return tipping.Event{}, false
	}

	ev := tipping.Event{
		Platform:  Platform,
		ChatID:    strconv.FormatInt(msg.Chat.ID, 10),
		ChatName:  strings.TrimSpace(nonWord.ReplaceAllString(msg.Chat.Title, " ")),
		MessageID: fmt.Sprintf("%d:%d", msg.Chat.ID, msg.MessageID),
	}
	switch {
	case msg.Chat.IsPrivate():
		ev.ChatType = tipping.ChatPrivate
	case msg.Chat.IsGroup(), msg.Chat.IsSuperGroup():
		ev.ChatType = tipping.ChatGroup
	default:
		return tipping.Event{}, false
	}
	if msg.From != nil {
		ev.SenderID = userID(msg.From)
		ev.SenderName = msg.From.UserName
	}

	switch {
	case len(msg.NewChatMembers) > 0:
		ev.Kind = tipping.EventMemberJoined
		for i := range msg.NewChatMembers {
			ev.Members = append(ev.Members, member(&msg.NewChatMembers[i]))
		}
	case msg.LeftChatMember != nil:
		ev.Kind = tipping.EventMemberLeft
		ev.Members = []tipping.Member{member(msg.LeftChatMember)}
	case msg.GroupChatCreated || msg.SuperGroupChatCreated:
		ev.Kind = tipping.EventChatCreated
	case msg.Text != "":
		ev.Kind = tipping.EventMessage
		ev.Text = msg.Text
		if reply := msg.ReplyToMessage; reply != nil && reply.From != nil {
			ev.ReplyTo = &tipping.ReplyTarget{MemberID: userID(reply.From), MemberName: reply.From.UserName}
		}
		ev.Mentions = textMentions(msg)
	default:
		return tipping.Event{}, false
	}
	return ev, true
}

// textMentions returns the mentions of users without a username, which
// Telegram delivers as entities carrying the user instead of @name text.
func textMentions(msg *tgbotapi.Message) []tipping.Mention {
	var out []tipping.Mention
	for _, e := range msg.Entities {
		if e.Type != "text_mention" || e.User == nil {
			continue
		}
		name := e.User.UserName
		if name == "" {
			name = strings.TrimSpace(e.User.FirstName + " " + e.User.LastName)
		}
		out = append(out, tipping.Mention{MemberID: userID(e.User), Name: name})
	}
	return out
}

func member(u *tgbotapi.User) tipping.Member {
	return tipping.Member{ID: userID(u), Name: u.UserName}
}

func userID(u *tgbotapi.User) string {
	return strconv.FormatInt(u.ID, 10)
}
