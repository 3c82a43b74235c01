package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const (
	defaultSearchLimit = 50
	maxSearchLimit     = 200
)

// Search finds messages whose body contains the query, case-insensitively,
// most recent match first. A query wrapped in double quotes is matched as
// the literal inner phrase. No stemming, no relevance ranking. Scoping by
// chatID is optional; nil searches globally.
func (s *Store) Search(ctx context.Context, query string, chatID *int64, limit, offset int) ([]Message, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty search query", ErrInvalidArgument)
	}
	if offset < 0 {
		return nil, fmt.Errorf("%w: negative offset", ErrInvalidArgument)
	}
	if limit <= 0 || limit > maxSearchLimit {
		limit = defaultSearchLimit
	}

	term := query
	if len(term) >= 2 && strings.HasPrefix(term, `"`) && strings.HasSuffix(term, `"`) {
		term = term[1 : len(term)-1]
	}
	if term == "" {
		return nil, fmt.Errorf("%w: empty search phrase", ErrInvalidArgument)
	}

	pattern := "%" + escapeLike(strings.ToLower(term)) + "%"
	q := s.db.WithContext(ctx).Where("lower(body) LIKE ? ESCAPE '\\'", pattern)
	if chatID != nil {
		q = q.Where("chat_id = ?", *chatID)
	}

	var msgs []Message
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Offset(offset).Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return msgs, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

type ChatStats struct {
	MessageCount   int64      `json:"message_count"`
	UserCount      int64      `json:"user_count"`
	FirstMessageAt *time.Time `json:"first_message_at,omitempty"`
	LastMessageAt  *time.Time `json:"last_message_at,omitempty"`
}

type UserStats struct {
	MessageCount          int64 `json:"message_count"`
	TotalPromptTokens     int64 `json:"total_prompt_tokens"`
	TotalCompletionTokens int64 `json:"total_completion_tokens"`
	ChatsParticipatedIn   int64 `json:"chats_participated_in"`
}

type DatabaseStats struct {
	TotalUsers       int64 `json:"total_users"`
	TotalChats       int64 `json:"total_chats"`
	TotalMessages    int64 `json:"total_messages"`
	StorageSizeBytes int64 `json:"storage_size_bytes"`
}

// ChatStatistics aggregates one chat. An empty store yields zeros.
func (s *Store) ChatStatistics(ctx context.Context, chatID int64) (ChatStats, error) {
	var row struct {
		MessageCount   int64
		UserCount      int64
		FirstMessageAt sql.NullTime
		LastMessageAt  sql.NullTime
	}
	err := s.db.WithContext(ctx).Model(&Message{}).
		Select("COUNT(*) AS message_count, COUNT(DISTINCT user_id) AS user_count, MIN(created_at) AS first_message_at, MAX(created_at) AS last_message_at").
		Where("chat_id = ?", chatID).
		Scan(&row).Error
	if err != nil {
		return ChatStats{}, fmt.Errorf("chat statistics: %w", err)
	}

	stats := ChatStats{MessageCount: row.MessageCount, UserCount: row.UserCount}
	if row.FirstMessageAt.Valid {
		t := row.FirstMessageAt.Time
		stats.FirstMessageAt = &t
	}
	if row.LastMessageAt.Valid {
		t := row.LastMessageAt.Time
		stats.LastMessageAt = &t
	}
	return stats, nil
}

// UserStatistics aggregates one user across all chats. Token totals come
// from usage records of interactions the user initiated.
func (s *Store) UserStatistics(ctx context.Context, userID int64) (UserStats, error) {
	var stats UserStats

	err := s.db.WithContext(ctx).Model(&Message{}).
		Where("user_id = ?", userID).
		Count(&stats.MessageCount).Error
	if err != nil {
		return UserStats{}, fmt.Errorf("user statistics: %w", err)
	}

	err = s.db.WithContext(ctx).Model(&Message{}).
		Where("user_id = ?", userID).
		Distinct("chat_id").
		Count(&stats.ChatsParticipatedIn).Error
	if err != nil {
		return UserStats{}, fmt.Errorf("user statistics: %w", err)
	}

	var tokens struct {
		Prompt     int64
		Completion int64
	}
	sub := s.db.WithContext(ctx).Model(&Message{}).
		Select("interaction_id").
		Where("user_id = ? AND role = ?", userID, RoleUser)
	err = s.db.WithContext(ctx).Model(&TokenUsage{}).
		Select("COALESCE(SUM(prompt_tokens), 0) AS prompt, COALESCE(SUM(completion_tokens), 0) AS completion").
		Where("interaction_id IN (?)", sub).
		Scan(&tokens).Error
	if err != nil {
		return UserStats{}, fmt.Errorf("user statistics: %w", err)
	}
	stats.TotalPromptTokens = tokens.Prompt
	stats.TotalCompletionTokens = tokens.Completion
	return stats, nil
}

// DatabaseStatistics reports global counters and the on-disk size of the
// store.
func (s *Store) DatabaseStatistics(ctx context.Context) (DatabaseStats, error) {
	var stats DatabaseStats
	if err := s.db.WithContext(ctx).Model(&User{}).Count(&stats.TotalUsers).Error; err != nil {
		return DatabaseStats{}, fmt.Errorf("database statistics: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&Chat{}).Count(&stats.TotalChats).Error; err != nil {
		return DatabaseStats{}, fmt.Errorf("database statistics: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&Message{}).Count(&stats.TotalMessages).Error; err != nil {
		return DatabaseStats{}, fmt.Errorf("database statistics: %w", err)
	}

	switch s.db.Dialector.Name() {
	case "sqlite":
		var size sql.NullInt64
		err := s.db.WithContext(ctx).
			Raw("SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()").
			Scan(&size).Error
		if err != nil {
			return DatabaseStats{}, fmt.Errorf("database statistics: %w", err)
		}
		stats.StorageSizeBytes = size.Int64
	case "mysql":
		var size sql.NullInt64
		err := s.db.WithContext(ctx).
			Raw("SELECT COALESCE(SUM(data_length + index_length), 0) FROM information_schema.tables WHERE table_schema = DATABASE()").
			Scan(&size).Error
		if err != nil {
			return DatabaseStats{}, fmt.Errorf("database statistics: %w", err)
		}
		stats.StorageSizeBytes = size.Int64
	}
	return stats, nil
}
