// Package chat orchestrates one assistant turn: persist the incoming
// message, assemble context, call the AI provider, persist the reply and
// its token accounting under one interaction identifier.
package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/mosskim/gembot/internal/ai"
	"github.com/mosskim/gembot/internal/store"
)

type Service struct {
	store         *store.Store
	registry      *ai.Registry
	provider      string
	contextWindow int
	log           *zap.Logger
}

func NewService(st *store.Store, registry *ai.Registry, provider string, contextWindow int, log *zap.Logger) *Service {
	if contextWindow <= 0 || contextWindow > 100 {
		contextWindow = 20
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:         st,
		registry:      registry,
		provider:      provider,
		contextWindow: contextWindow,
		log:           log,
	}
}

// Incoming is one user message as handed over by the transport shell.
type Incoming struct {
	ChatID      int64
	ChatKind    store.ChatKind
	ChatTitle   string
	UserID      int64
	DisplayName string
	Text        string
}

// HandleTurn runs the full turn and returns the assistant's reply text.
// The user message, assistant reply and token usage share one interaction
// identifier. A duplicate usage record from a retried write is logged and
// swallowed; the turn still counts as successful.
func (s *Service) HandleTurn(ctx context.Context, in Incoming) (string, error) {
	if _, err := s.store.UpsertUser(ctx, in.UserID, in.DisplayName); err != nil {
		return "", err
	}
	if _, err := s.store.UpsertChat(ctx, in.ChatID, in.ChatKind, in.ChatTitle); err != nil {
		return "", err
	}

	interactionID := ulid.Make().String()

	userID := in.UserID
	if _, err := s.store.SaveMessage(ctx, in.ChatID, &userID, store.RoleUser, in.Text, interactionID, time.Time{}); err != nil {
		return "", err
	}

	turns, err := s.store.BuildContext(ctx, in.ChatID, in.UserID, s.contextWindow)
	if err != nil {
		return "", err
	}
	msgs := make([]ai.Message, 0, len(turns))
	for _, t := range turns {
		msgs = append(msgs, ai.Message{Role: string(t.Role), Content: t.Body})
	}

	provider, err := s.registry.Get(ctx, s.provider)
	if err != nil {
		return "", err
	}
	reply, err := provider.Respond(ctx, msgs)
	if err != nil {
		return "", fmt.Errorf("ai call: %w", err)
	}

	if _, err := s.store.SaveMessage(ctx, in.ChatID, nil, store.RoleAssistant, reply.Text, interactionID, time.Time{}); err != nil {
		return "", err
	}
	if _, err := s.store.SaveTokenUsage(ctx, interactionID, reply.PromptTokens, reply.CompletionTokens); err != nil {
		if errors.Is(err, store.ErrDuplicateUsage) {
			s.log.Warn("token usage already recorded",
				zap.String("interaction_id", interactionID))
		} else {
			return "", err
		}
	}

	return reply.Text, nil
}

// Clear wipes the chat's stored history and returns the number of removed
// messages.
func (s *Service) Clear(ctx context.Context, chatID int64) (int64, error) {
	return s.store.DeleteConversation(ctx, chatID, nil)
}

func (s *Service) UserStats(ctx context.Context, userID int64) (store.UserStats, error) {
	return s.store.UserStatistics(ctx, userID)
}

func (s *Service) ChatStats(ctx context.Context, chatID int64) (store.ChatStats, error) {
	return s.store.ChatStatistics(ctx, chatID)
}

func (s *Service) Search(ctx context.Context, query string, chatID int64, limit int) ([]store.Message, error) {
	return s.store.Search(ctx, query, &chatID, limit, 0)
}

func (s *Service) Export(ctx context.Context, chatID int64, format store.ExportFormat) ([]byte, error) {
	return s.store.ExportConversation(ctx, chatID, format)
}
