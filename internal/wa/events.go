package wa

import (
	"banano-tipbot/internal/tipping"

	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

// MessageToEvent normalizes an inbound message. Members are identified by
// their JID and named by its user part, which is what @mentions render as.
// The second result is false for the bot's own messages, broadcasts and
// messages without text.
func MessageToEvent(evt *events.Message) (tipping.Event, bool) {
	if evt == nil || evt.Message == nil || evt.Info.IsFromMe {
		return tipping.Event{}, false
	}
	info := evt.Info

	ev := tipping.Event{
		Platform:   Platform,
		Kind:       tipping.EventMessage,
		ChatID:     info.Chat.String(),
		SenderID:   info.Sender.ToNonAD().String(),
		SenderName: info.Sender.User,
		MessageID:  info.Chat.String() + ":" + string(info.ID),
	}
	switch {
	case info.IsGroup:
		ev.ChatType = tipping.ChatGroup
	case info.Chat.Server == types.DefaultUserServer, info.Chat.Server == types.HiddenUserServer:
		ev.ChatType = tipping.ChatPrivate
	default:
		return tipping.Event{}, false
	}

	msg := evt.Message
	switch {
	case msg.GetConversation() != "":
		ev.Text = msg.GetConversation()
	case msg.GetExtendedTextMessage().GetText() != "":
		ext := msg.GetExtendedTextMessage()
		ev.Text = ext.GetText()
		ctxInfo := ext.GetContextInfo()
		if p := ctxInfo.GetParticipant(); p != "" && ctxInfo.GetStanzaID() != "" {
			if jid, err := types.ParseJID(p); err == nil {
				ev.ReplyTo = &tipping.ReplyTarget{MemberID: jid.ToNonAD().String(), MemberName: jid.User}
			}
		}
		for _, raw := range ctxInfo.GetMentionedJID() {
			jid, err := types.ParseJID(raw)
			if err != nil {
				continue
			}
			ev.Mentions = append(ev.Mentions, tipping.Mention{MemberID: jid.ToNonAD().String(), Name: jid.User})
		}
	default:
		return tipping.Event{}, false
	}
	return ev, true
}

// GroupInfoToEvents maps participant changes of a group to membership
// events. Other group changes produce nothing.
func GroupInfoToEvents(evt *events.GroupInfo) []tipping.Event {
	if evt == nil {
		return nil
	}
	var name string
	if evt.Name != nil {
		name = evt.Name.Name
	}
	base := tipping.Event{
		Platform: Platform,
		ChatID:   evt.JID.String(),
		ChatType: tipping.ChatGroup,
		ChatName: name,
	}
	if evt.Sender != nil {
		base.SenderID = evt.Sender.ToNonAD().String()
		base.SenderName = evt.Sender.User
	}

	var out []tipping.Event
	if len(evt.Join) > 0 {
		joined := base
		joined.Kind = tipping.EventMemberJoined
		joined.Members = members(evt.Join)
		out = append(out, joined)
	}
	if len(evt.Leave) > 0 {
		left := base
		left.Kind = tipping.EventMemberLeft
		left.Members = members(evt.Leave)
		out = append(out, left)
	}
	return out
}

// JoinedGroupToEvent records the whole roster of a group the bot was added
// to or created.
func JoinedGroupToEvent(evt *events.JoinedGroup) tipping.Event {
	jids := make([]types.JID, 0, len(evt.Participants))
	for _, p := range evt.Participants {
		jids = append(jids, p.JID)
	}
	ev := tipping.Event{
		Platform: Platform,
		Kind:     tipping.EventMemberJoined,
		ChatID:   evt.JID.String(),
		ChatType: tipping.ChatGroup,
		ChatName: evt.GroupName.Name,
		Members:  members(jids),
	}
	if evt.Sender != nil {
		ev.SenderID = evt.Sender.ToNonAD().String()
		ev.SenderName = evt.Sender.User
	}
	return ev
}

func members(jids []types.JID) []tipping.Member {
	out := make([]tipping.Member, 0, len(jids))
	for _, jid := range jids {
		out = append(out, tipping.Member{ID: jid.ToNonAD().String(), Name: jid.User})
	}
	return out
}
