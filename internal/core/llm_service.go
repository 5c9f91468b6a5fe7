package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/orchidream/orchidream/internal/store"
)

const (
	defaultChatModelName   = "gemini-1.5-flash"
	defaultMaxOutputTokens = 2048
	emptyResponseReply     = "I'm sorry, I couldn't generate a response at this time. Please try again."
	nonTextResponseReply   = "I received an empty or non-text response, please try rephrasing your question."
	invalidAPIKeyFragment  = "API key not valid"
)

// ErrMissingAPIKey is reported by the assistant when no Gemini key is configured.
var ErrMissingAPIKey = errors.New(invalidAPIKeyFragment + ": GEMINI_API_KEY is not set")

// Turn is one message of the history sent to the model.
type Turn struct {
	Role store.Role
	Text string
}

// ChatModel is the external text-generation collaborator.
type ChatModel interface {
	SendChat(ctx context.Context, history []Turn, message string) (string, error)
}

type LLMService struct {
	client          *genai.Client
	modelName       string
	maxOutputTokens int32
}

func NewLLMService(ctx context.Context, apiKey, modelName string, maxOutputTokens int) (*LLMService, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	if modelName == "" {
		modelName = defaultChatModelName
	}
	if maxOutputTokens <= 0 {
		maxOutputTokens = defaultMaxOutputTokens
	}
	return &LLMService{
		client:          client,
		modelName:       modelName,
		maxOutputTokens: int32(maxOutputTokens),
	}, nil
}

func (s *LLMService) Close() {
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			log.Printf("Error closing GenAI client: %v", err)
		} else {
			log.Println("GenAI client closed.")
		}
	}
}

// SendChat starts a chat seeded with history and sends message as the next
// user turn.
func (s *LLMService) SendChat(ctx context.Context, history []Turn, message string) (string, error) {
	model := s.client.GenerativeModel(s.modelName)
	model.SetMaxOutputTokens(s.maxOutputTokens)

	chatSession := model.StartChat()
	chatSession.History = toGenaiHistory(history)

	resp, err := chatSession.SendMessage(ctx, genai.Text(message))
	if err != nil {
		return "", fmt.Errorf("gemini chat SendMessage failed: %w", err)
	}
	return responseText(resp), nil
}

func toGenaiHistory(history []Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history))
	for _, turn := range history {
		contents = append(contents, &genai.Content{
			Role:  string(turn.Role),
			Parts: []genai.Part{genai.Text(turn.Text)},
		})
	}
	return contents
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		log.Println("Gemini response was empty or had no valid candidates/parts.")
		return emptyResponseReply
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			responseText.WriteString(string(txt))
		} else {
			log.Printf("Gemini response part was not text: %T", part)
		}
	}

	if responseText.Len() == 0 {
		log.Println("Gemini response part was not text or was empty after processing.")
		return nonTextResponseReply
	}
	return responseText.String()
}

// unavailableModel stands in for the collaborator when it cannot be built,
// so the assistant still answers with an explanatory message.
type unavailableModel struct {
	err error
}

func NewUnavailableModel(err error) ChatModel {
	return unavailableModel{err: err}
}

func (m unavailableModel) SendChat(context.Context, []Turn, string) (string, error) {
	return "", m.err
}
