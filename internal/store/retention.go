package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PurgeOlderThan deletes messages whose timestamp is older than now minus
// the given number of days, plus token usage records orphaned by the
// deletion. days == 0 purges everything. The purge is a single transaction:
// a failure leaves the store unchanged.
func (s *Store) PurgeOlderThan(ctx context.Context, days int) (int64, error) {
	if days < 0 {
		return 0, fmt.Errorf("%w: days %d", ErrInvalidArgument, days)
	}
	cutoff := time.Now().AddDate(0, 0, -days)

	var deleted int64
	err := s.withWrite(ctx, func(tx *gorm.DB) error {
		res := tx.Where("created_at < ?", cutoff).Delete(&Message{})
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
		return 0, fmt.Errorf("purge: %w", err)
	}
	if deleted > 0 {
		s.log.Info("purged old messages", zap.Int64("deleted", deleted), zap.Int("days", days))
	}
	return deleted, nil
}

type exportEntry struct {
	Role          Role      `json:"role"`
	Body          string    `json:"body"`
	Timestamp     time.Time `json:"timestamp"`
	InteractionID string    `json:"interaction_id"`
}

// ExportConversation dumps a chat's full history, oldest first, as a byte
// payload in the requested format. The export is a snapshot of the store at
// call time.
func (s *Store) ExportConversation(ctx context.Context, chatID int64, format ExportFormat) ([]byte, error) {
	switch format {
	case ExportJSON, ExportText:
	default:
		return nil, fmt.Errorf("%w: export format %q", ErrInvalidArgument, format)
	}

	var msgs []Message
	err := s.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at ASC, id ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}

	if format == ExportJSON {
		entries := make([]exportEntry, 0, len(msgs))
		for _, m := range msgs {
			entries = append(entries, exportEntry{
				Role:          m.Role,
				Body:          m.Body,
				Timestamp:     m.CreatedAt,
				InteractionID: m.InteractionID,
			})
		}
		out, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("export: %w", err)
		}
		return out, nil
	}

	var b strings.Builder
	for _, m := range msgs {
		fmt.Fprintf(&b, "[%s] %s: %s\n", m.CreatedAt.Format("2006-01-02 15:04:05"), m.Role, m.Body)
	}
	return []byte(b.String()), nil
}
