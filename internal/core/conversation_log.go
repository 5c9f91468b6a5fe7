package core

import (
	"context"
	"fmt"
	"time"

	"github.com/orchidream/orchidream/internal/store"
)

type HistorySource interface {
	FetchConversationHistory(ctx context.Context) ([]store.ConversationMessage, error)
}

// DisplayMessage is one chat turn as the assistant screen renders it.
type DisplayMessage struct {
	Key       string     `json:"key"`
	Role      store.Role `json:"role"`
	Content   string     `json:"content"`
	Timestamp time.Time  `json:"timestamp"`
}

type ConversationLog struct {
	source HistorySource
}

func NewConversationLog(source HistorySource) *ConversationLog {
	return &ConversationLog{source: source}
}

// FetchForDisplay returns the whole history, oldest first.
func (l *ConversationLog) FetchForDisplay(ctx context.Context) ([]DisplayMessage, error) {
	history, err := l.source.FetchConversationHistory(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch conversation: %w", err)
	}

	messages := make([]DisplayMessage, 0, len(history))
	for i, msg := range history {
		messages = append(messages, DisplayMessage{
			Key:       messageKey(msg.Timestamp, msg.Role, i),
			Role:      msg.Role,
			Content:   msg.Content,
			Timestamp: msg.Timestamp,
		})
	}
	return messages, nil
}

func messageKey(ts time.Time, role store.Role, index int) string {
	return fmt.Sprintf("%d_%s_%d", ts.UnixMilli(), role, index)
}
