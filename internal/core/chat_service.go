package core

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/orchidream/orchidream/internal/store"
	"github.com/orchidream/orchidream/internal/utils"
)

const recordTimeout = 10 * time.Second

var ErrEmptyMessage = errors.New("message content cannot be empty")

// TurnRecorder persists chat turns. AppendConversationMessage must not
// report failures; it logs them.
type TurnRecorder interface {
	AppendConversationMessage(ctx context.Context, role store.Role, content string, timestamp time.Time)
	ClearConversationHistory(ctx context.Context) error
}

// Exchange is the result of one Send: the user's turn and the reply.
type Exchange struct {
	TurnID string                    `json:"turnId"`
	User   store.ConversationMessage `json:"user"`
	Reply  store.ConversationMessage `json:"reply"`
}

type ChatService struct {
	recorder    TurnRecorder
	history     *ConversationLog
	assistant   *AssistantBridge
	loadBackoff utils.Backoff
	debug       bool
	now         func() time.Time

	pending sync.WaitGroup
}

func NewChatService(recorder TurnRecorder, history *ConversationLog, assistant *AssistantBridge, loadBackoff utils.Backoff) *ChatService {
	return &ChatService{
		recorder:    recorder,
		history:     history,
		assistant:   assistant,
		loadBackoff: loadBackoff,
		now:         time.Now,
	}
}

func (s *ChatService) SetDebug(debug bool) {
	s.debug = debug
}

// LoadHistory reads the conversation with bounded retry. Startup races with
// the store are expected to clear quickly; if they don't, the conversation
// starts empty instead of blocking.
func (s *ChatService) LoadHistory(ctx context.Context) []DisplayMessage {
	var history []DisplayMessage
	err := utils.Retry(ctx, s.loadBackoff, func(attempt int) error {
		h, err := s.history.FetchForDisplay(ctx)
		if err != nil {
			log.Printf("Failed to load conversation history (%d/%d): %v", attempt, s.loadBackoff.Attempts, err)
			return err
		}
		history = h
		return nil
	})
	if err != nil {
		log.Println("Could not load conversation history. Starting with empty conversation.")
		return []DisplayMessage{}
	}
	return history
}

// Send records the user's turn, gets the assistant's reply to content and
// records that too. Records are written in the background; Send does not
// wait for them.
func (s *ChatService) Send(ctx context.Context, content string) (*Exchange, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyMessage
	}

	turnID := uuid.NewString()
	userMsg := store.ConversationMessage{
		Role:      store.RoleUser,
		Content:   content,
		Timestamp: s.now(),
	}

	// Read the context before recording the user turn, so the turn is not
	// sent twice.
	history, historyErr := s.history.FetchForDisplay(ctx)
	s.record(turnID, userMsg)

	var reply string
	if historyErr != nil {
		log.Printf("Error sending message to Gemini: %v", historyErr)
		reply = describeFailure(ctx, historyErr)
	} else {
		reply = s.assistant.ReplyTo(ctx, history, content)
	}

	modelMsg := store.ConversationMessage{
		Role:      store.RoleModel,
		Content:   reply,
		Timestamp: replyTimestamp(userMsg.Timestamp, s.now()),
	}
	s.record(turnID, modelMsg)

	return &Exchange{TurnID: turnID, User: userMsg, Reply: modelMsg}, nil
}

// replyTimestamp keeps the reply strictly after the user turn at the
// store's millisecond precision, since the two appends race.
func replyTimestamp(user, reply time.Time) time.Time {
	floor := user.Truncate(time.Millisecond)
	if !reply.Truncate(time.Millisecond).After(floor) {
		return floor.Add(time.Millisecond)
	}
	return reply
}

func (s *ChatService) record(turnID string, msg store.ConversationMessage) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		// Detached from the caller's context so a finished request does not
		// cancel the write.
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()

		if s.debug {
			log.Printf("turn %s: recording %s message", turnID, msg.Role)
		}
		s.recorder.AppendConversationMessage(ctx, msg.Role, msg.Content, msg.Timestamp)
	}()
}

// Flush waits for background records to finish.
func (s *ChatService) Flush() {
	s.pending.Wait()
}

func (s *ChatService) Clear(ctx context.Context) error {
	return s.recorder.ClearConversationHistory(ctx)
}
