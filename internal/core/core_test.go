package core

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/orchidream/orchidream/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.Open(context.Background(), store.DriverCGO, filepath.Join(t.TempDir(), "core_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

// fakeModel records what the bridge sends and answers with reply or err.
type fakeModel struct {
	mu       sync.Mutex
	reply    string
	err      error
	block    bool
	blockErr error // returned in place of ctx.Err() when block is set
	calls    int
	history  []Turn
	messages []string
}

func (m *fakeModel) SendChat(ctx context.Context, history []Turn, message string) (string, error) {
	m.mu.Lock()
	m.calls++
	m.history = append([]Turn(nil), history...)
	m.messages = append(m.messages, message)
	block, blockErr, reply, err := m.block, m.blockErr, m.reply, m.err
	m.mu.Unlock()

	if block {
		<-ctx.Done()
		if blockErr != nil {
			return "", blockErr
		}
		return "", ctx.Err()
	}
	return reply, err
}

func (m *fakeModel) lastHistory() []Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.history
}

// flakyHistory fails the first `failures` reads.
type flakyHistory struct {
	mu       sync.Mutex
	failures int
	calls    int
	messages []store.ConversationMessage
}

func (f *flakyHistory) FetchConversationHistory(context.Context) ([]store.ConversationMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("database is locked")
	}
	return f.messages, nil
}

// gatedModel blocks each call until release is closed.
type gatedModel struct {
	started chan struct{}
	release chan struct{}
	reply   string
}

func newGatedModel(reply string) *gatedModel {
	return &gatedModel{started: make(chan struct{}, 1), release: make(chan struct{}), reply: reply}
}

func (m *gatedModel) SendChat(ctx context.Context, _ []Turn, _ string) (string, error) {
	m.started <- struct{}{}
	select {
	case <-m.release:
		return m.reply, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
