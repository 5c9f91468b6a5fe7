package core

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchidream/orchidream/internal/store"
)

func TestReplyPrependsPrimingPairThenHistory(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	t1 := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	s.AppendConversationMessage(ctx, store.RoleUser, "What is WBTB?", t1)
	s.AppendConversationMessage(ctx, store.RoleModel, "Wake back to bed.", t1.Add(time.Second))

	model := &fakeModel{reply: "Try MILD tonight."}
	bridge := NewAssistantBridge(NewConversationLog(s), model, time.Second)

	reply := bridge.Reply(ctx, "Any tips?")

	assert.Equal(t, "Try MILD tonight.", reply)
	assert.Equal(t, []Turn{
		{Role: store.RoleUser, Text: systemPrompt},
		{Role: store.RoleModel, Text: primingAcknowledgment},
		{Role: store.RoleUser, Text: "What is WBTB?"},
		{Role: store.RoleModel, Text: "Wake back to bed."},
	}, model.lastHistory())
	assert.Equal(t, []string{"Any tips?"}, model.messages)

	// The bridge itself never records turns.
	history, err := s.FetchConversationHistory(ctx)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestReplyPrimesOncePerCall(t *testing.T) {
	s := newTestStore(t)
	model := &fakeModel{reply: "ok"}
	bridge := NewAssistantBridge(NewConversationLog(s), model, 0)

	bridge.Reply(context.Background(), "one")
	bridge.Reply(context.Background(), "two")

	assert.Len(t, model.lastHistory(), 2, "priming is not accumulated across calls")
}

func TestReplyTurnsFailuresIntoMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"invalid key", errors.New("googleapi: Error 400: API key not valid. Please pass a valid API key."), ReplyInvalidAPIKey},
		{"missing key", ErrMissingAPIKey, ReplyInvalidAPIKey},
		{"quota", errors.New("rpc error: code = ResourceExhausted desc = Quota exceeded for metric"), ReplyQuotaExceeded},
		{"deadline", fmt.Errorf("gemini chat SendMessage failed: %w", context.DeadlineExceeded), ReplyTimedOut},
		{"other", errors.New("connection reset by peer"), ReplyGenericError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			bridge := NewAssistantBridge(NewConversationLog(s), &fakeModel{err: tt.err}, time.Second)
			assert.Equal(t, tt.want, bridge.Reply(context.Background(), "hello"))
		})
	}
}

func TestReplyHistoryFailureIsGenericMessage(t *testing.T) {
	uninitialized := store.NewSQLiteStore(store.DriverCGO, filepath.Join(t.TempDir(), "never.db"))
	model := &fakeModel{reply: "unused"}
	bridge := NewAssistantBridge(NewConversationLog(uninitialized), model, time.Second)

	assert.Equal(t, ReplyGenericError, bridge.Reply(context.Background(), "hello"))
	assert.Equal(t, 0, model.calls)
}

func TestReplyTimesOutSlowModel(t *testing.T) {
	s := newTestStore(t)
	bridge := NewAssistantBridge(NewConversationLog(s), &fakeModel{block: true}, 20*time.Millisecond)

	start := time.Now()
	reply := bridge.Reply(context.Background(), "hello?")

	assert.Equal(t, ReplyTimedOut, reply)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestReplyTimesOutWhenErrorHidesDeadline(t *testing.T) {
	s := newTestStore(t)
	model := &fakeModel{block: true, blockErr: errors.New("rpc error: code = Unavailable desc = transport is closing")}
	bridge := NewAssistantBridge(NewConversationLog(s), model, 20*time.Millisecond)

	assert.Equal(t, ReplyTimedOut, bridge.Reply(context.Background(), "hello?"))
}

func TestUnavailableModelReportsItsError(t *testing.T) {
	s := newTestStore(t)
	bridge := NewAssistantBridge(NewConversationLog(s), NewUnavailableModel(ErrMissingAPIKey), time.Second)

	assert.Equal(t, ReplyInvalidAPIKey, bridge.Reply(context.Background(), "hi"))
}
