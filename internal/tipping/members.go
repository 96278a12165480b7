package tipping

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"banano-tipbot/internal/repo"
)

// MemberDirectory caches who has been seen in which chat, so mentions and
// replies resolve without asking the platform.
type MemberDirectory struct {
	store  Store
	logger *slog.Logger
}

func NewMemberDirectory(store Store, logger *slog.Logger) *MemberDirectory {
	return &MemberDirectory{store: store, logger: logger.With("component", "members")}
}

// ObserveMember records that member is part of chat, refreshing its name.
func (d *MemberDirectory) ObserveMember(ctx context.Context, chatID, chatName string, member Member) error {
	if chatID == "" || member.ID == "" {
		return nil
	}
	err := d.store.UpsertChatMember(ctx, repo.ChatMember{
		ChatID:     chatID,
		ChatName:   chatName,
		MemberID:   member.ID,
		MemberName: member.Name,
	})
	if err != nil {
		return fmt.Errorf("observe member: %w", err)
	}
	return nil
}

// ForgetMember removes member from chat.
func (d *MemberDirectory) ForgetMember(ctx context.Context, chatID, memberID string) error {
	if err := d.store.DeleteChatMember(ctx, chatID, memberID); err != nil {
		return fmt.Errorf("forget member: %w", err)
	}
	d.logger.Info("member left chat", "chat_id", chatID, "member_id", memberID)
	return nil
}

// FindByName looks a member up by case-insensitive name within chat.
func (d *MemberDirectory) FindByName(ctx context.Context, chatID, name string) (*repo.ChatMember, bool, error) {
	m, err := d.store.GetChatMemberByName(ctx, chatID, name)
	return found(m, err)
}

// FindByID looks a member up by platform id within chat.
func (d *MemberDirectory) FindByID(ctx context.Context, chatID, memberID string) (*repo.ChatMember, bool, error) {
	m, err := d.store.GetChatMemberByID(ctx, chatID, memberID)
	return found(m, err)
}

func found[T any](v *T, err error) (*T, bool, error) {
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	default:
		return v, true, nil
	}
}
