package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UpsertUser inserts the user on first sight, otherwise refreshes the
// display name and last-seen timestamp. Never fails on a duplicate id.
func (s *Store) UpsertUser(ctx context.Context, id int64, displayName string) (*User, error) {
	now := time.Now()
	u := &User{ID: id, DisplayName: displayName, FirstSeenAt: now, LastSeenAt: now}
	err := s.withWrite(ctx, func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"display_name": displayName,
				"last_seen_at": now,
			}),
		}).Create(u).Error; err != nil {
			return err
		}
		return tx.First(u, "id = ?", id).Error
	})
	if err != nil {
		return nil, fmt.Errorf("upsert user %d: %w", id, err)
	}
	return u, nil
}

// UpsertChat is symmetric to UpsertUser.
func (s *Store) UpsertChat(ctx context.Context, id int64, kind ChatKind, title string) (*Chat, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: chat kind %q", ErrInvalidArgument, kind)
	}
	now := time.Now()
	c := &Chat{ID: id, Kind: kind, Title: title, FirstSeenAt: now, LastSeenAt: now}
	err := s.withWrite(ctx, func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"kind":         kind,
				"title":        title,
				"last_seen_at": now,
			}),
		}).Create(c).Error; err != nil {
			return err
		}
		return tx.First(c, "id = ?", id).Error
	})
	if err != nil {
		return nil, fmt.Errorf("upsert chat %d: %w", id, err)
	}
	return c, nil
}

// SaveMessage persists one utterance. The chat, and the user when set, must
// already exist (ErrUnknownEntity otherwise). A zero timestamp defaults to
// now. A second message with the same (interactionID, role) fails with
// ErrDuplicateMessage.
func (s *Store) SaveMessage(ctx context.Context, chatID int64, userID *int64, role Role, body, interactionID string, at time.Time) (*Message, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: role %q", ErrInvalidArgument, role)
	}
	if strings.TrimSpace(interactionID) == "" {
		return nil, fmt.Errorf("%w: empty interaction id", ErrInvalidArgument)
	}
	if at.IsZero() {
		at = time.Now()
	}

	m := &Message{
		ChatID:        chatID,
		UserID:        userID,
		Role:          role,
		Body:          body,
		InteractionID: interactionID,
		CreatedAt:     at,
	}
	err := s.withWrite(ctx, func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&Chat{}).Where("id = ?", chatID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: chat %d", ErrUnknownEntity, chatID)
		}
		if userID != nil {
			if err := tx.Model(&User{}).Where("id = ?", *userID).Count(&n).Error; err != nil {
				return err
			}
			if n == 0 {
				return fmt.Errorf("%w: user %d", ErrUnknownEntity, *userID)
			}
		}
		if err := tx.Create(m).Error; err != nil {
			if isDuplicateKey(err) {
				return fmt.Errorf("%w: interaction %s role %s", ErrDuplicateMessage, interactionID, role)
			}
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrUnknownEntity) || errors.Is(err, ErrDuplicateMessage) || errors.Is(err, ErrStoreBusy) {
			return nil, err
		}
		return nil, fmt.Errorf("save message: %w", err)
	}
	return m, nil
}

// SaveTokenUsage records the accounting for one AI call. At most one record
// per interaction; a retry that hits an existing record gets
// ErrDuplicateUsage and the prior record stands.
func (s *Store) SaveTokenUsage(ctx context.Context, interactionID string, promptTokens, completionTokens int) (*TokenUsage, error) {
	if strings.TrimSpace(interactionID) == "" {
		return nil, fmt.Errorf("%w: empty interaction id", ErrInvalidArgument)
	}
	if promptTokens < 0 || completionTokens < 0 {
		return nil, fmt.Errorf("%w: negative token count", ErrInvalidArgument)
	}

	u := &TokenUsage{
		InteractionID:    interactionID,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		CreatedAt:        time.Now(),
	}
	err := s.withWrite(ctx, func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&Message{}).Where("interaction_id = ?", interactionID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: interaction %s", ErrUnknownEntity, interactionID)
		}
		if err := tx.Create(u).Error; err != nil {
			if isDuplicateKey(err) {
				return fmt.Errorf("%w: interaction %s", ErrDuplicateUsage, interactionID)
			}
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrUnknownEntity) || errors.Is(err, ErrDuplicateUsage) || errors.Is(err, ErrStoreBusy) {
			return nil, err
		}
		return nil, fmt.Errorf("save token usage: %w", err)
	}
	return u, nil
}

// DeleteConversation removes all messages for a chat, optionally scoped to
// one user, along with token usage records left without any message. Zero
// matches is not an error.
func (s *Store) DeleteConversation(ctx context.Context, chatID int64, userID *int64) (int64, error) {
	var deleted int64
	err := s.withWrite(ctx, func(tx *gorm.DB) error {
		q := tx.Where("chat_id = ?", chatID)
		if userID != nil {
			q = q.Where("user_id = ?", *userID)
		}
		res := q.Delete(&Message{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected
		return deleteOrphanedUsage(tx)
	})
	if err != nil {
		if errors.Is(err, ErrStoreBusy) {
			return 0, err
		}
		return 0, fmt.Errorf("delete conversation: %w", err)
	}
	return deleted, nil
}

// ConversationLength counts stored messages for the chat, optionally scoped
// to one user.
func (s *Store) ConversationLength(ctx context.Context, chatID int64, userID *int64) (int64, error) {
	q := s.db.WithContext(ctx).Model(&Message{}).Where("chat_id = ?", chatID)
	if userID != nil {
		q = q.Where("user_id = ?", *userID)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("conversation length: %w", err)
	}
	return n, nil
}

func deleteOrphanedUsage(tx *gorm.DB) error {
	return tx.
		Where("interaction_id NOT IN (?)",
			tx.Session(&gorm.Session{NewDB: true}).Model(&Message{}).Distinct("interaction_id")).
		Delete(&TokenUsage{}).Error
}
