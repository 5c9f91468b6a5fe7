package core

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/orchidream/orchidream/internal/store"
)

const (
	systemPrompt = "You are Orchidream, a helpful AI assistant specializing in lucid dreaming. " +
		"You can answer questions about induction techniques (MILD, WILD, SSILD, WBTB), " +
		"offer general interpretations of common dream symbols (with disclaimers about subjectivity), " +
		"and provide motivational support. Keep your responses concise and helpful."

	primingAcknowledgment = "Okay, I understand. I'm ready to help with lucid dreaming."
)

// Replies shown in the chat when the turn fails. They are ordinary model
// messages, not a separate error state.
const (
	ReplyInvalidAPIKey = "Error: Invalid API Key. Please ensure your API key is correct and has the necessary permissions."
	ReplyQuotaExceeded = "Error: API quota exceeded. Please check your Google Cloud project for billing and quota details."
	ReplyTimedOut      = "Sorry, the assistant took too long to respond. Please try again."
	ReplyGenericError  = "Sorry, I encountered an error trying to respond. Please try again."
)

// AssistantBridge runs one chat turn against the model. It never persists
// anything; the caller records both turns.
type AssistantBridge struct {
	history *ConversationLog
	model   ChatModel
	timeout time.Duration
}

func NewAssistantBridge(history *ConversationLog, model ChatModel, timeout time.Duration) *AssistantBridge {
	return &AssistantBridge{
		history: history,
		model:   model,
		timeout: timeout,
	}
}

// Reply returns the model's answer to userMessage, or a user-facing
// description of what went wrong.
func (b *AssistantBridge) Reply(ctx context.Context, userMessage string) string {
	history, err := b.history.FetchForDisplay(ctx)
	if err != nil {
		log.Printf("Error sending message to Gemini: %v", err)
		return describeFailure(ctx, err)
	}
	return b.ReplyTo(ctx, history, userMessage)
}

// ReplyTo is Reply with a history the caller already read.
func (b *AssistantBridge) ReplyTo(ctx context.Context, history []DisplayMessage, userMessage string) string {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	reply, err := b.model.SendChat(ctx, buildPromptHistory(history), userMessage)
	if err != nil {
		log.Printf("Error sending message to Gemini: %v", err)
		return describeFailure(ctx, err)
	}
	return reply
}

// buildPromptHistory puts the priming pair ahead of the stored history.
func buildPromptHistory(history []DisplayMessage) []Turn {
	turns := make([]Turn, 0, len(history)+2)
	turns = append(turns,
		Turn{Role: store.RoleUser, Text: systemPrompt},
		Turn{Role: store.RoleModel, Text: primingAcknowledgment},
	)
	for _, msg := range history {
		turns = append(turns, Turn{Role: msg.Role, Text: msg.Content})
	}
	return turns
}

// describeFailure also checks ctx, since transports do not always wrap the
// deadline in the error they return.
func describeFailure(ctx context.Context, err error) string {
	msg := err.Error()
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return ReplyTimedOut
	case strings.Contains(msg, invalidAPIKeyFragment):
		return ReplyInvalidAPIKey
	case strings.Contains(strings.ToLower(msg), "quota"):
		return ReplyQuotaExceeded
	default:
		return ReplyGenericError
	}
}
