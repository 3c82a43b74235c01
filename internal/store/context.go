package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// BuildContext reconstructs the prompt history for a new AI call: the most
// recent maxTurns messages of the chat, oldest first. For direct chats the
// window is scoped to the requesting user's rows plus assistant rows (which
// carry a NULL user id); group chats interleave all participants.
//
// maxTurns == 0 yields an empty window; negative values are rejected. The
// retrieval queries newest-first on the (chat_id, created_at) index and
// reverses before returning. Truncation is hard: older turns fall out.
func (s *Store) BuildContext(ctx context.Context, chatID, userID int64, maxTurns int) ([]Turn, error) {
	if maxTurns < 0 {
		return nil, fmt.Errorf("%w: maxTurns %d", ErrInvalidArgument, maxTurns)
	}
	if maxTurns == 0 {
		return []Turn{}, nil
	}

	var chat Chat
	if err := s.db.WithContext(ctx).First(&chat, "id = ?", chatID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: chat %d", ErrUnknownEntity, chatID)
		}
		return nil, fmt.Errorf("build context: %w", err)
	}

	q := s.db.WithContext(ctx).Where("chat_id = ?", chatID)
	if chat.Kind == ChatDirect {
		q = q.Where("user_id = ? OR user_id IS NULL", userID)
	}

	var msgs []Message
	if err := q.Order("created_at DESC, id DESC").Limit(maxTurns).Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("build context: %w", err)
	}

	turns := make([]Turn, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		turns = append(turns, Turn{Role: msgs[i].Role, Body: msgs[i].Body})
	}
	return turns, nil
}
