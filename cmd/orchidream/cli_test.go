package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/orchidream/orchidream/internal/config"
	"github.com/orchidream/orchidream/internal/core"
	"github.com/orchidream/orchidream/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		DatabaseURL:         filepath.Join(t.TempDir(), "cli_test.db"),
		DatabaseDriver:      store.DriverCGO,
		AssistantTimeout:    time.Second,
		HistoryLoadAttempts: 3,
		HistoryLoadBackoff:  time.Millisecond,
	}
}

// setupTestApp returns a CLI app writing into the returned buffer.
func setupTestApp(t *testing.T) (*cli.App, *bytes.Buffer) {
	t.Helper()
	sess := newSession(testConfig(t))
	t.Cleanup(sess.Close)

	var out bytes.Buffer
	app := newCLIApp(sess)
	app.Writer = &out
	return app, &out
}

func run(t *testing.T, app *cli.App, out *bytes.Buffer, args ...string) string {
	t.Helper()
	out.Reset()
	require.NoError(t, app.Run(append([]string{"orchidream"}, args...)))
	return out.String()
}

func TestCLIHelpAndVersionDoNotOpenDatabase(t *testing.T) {
	cfg := testConfig(t)
	sess := newSession(cfg)
	t.Cleanup(sess.Close)

	var out bytes.Buffer
	app := newCLIApp(sess)
	app.Writer = &out

	run(t, app, &out, "--help")
	assert.Contains(t, out.String(), "orchidream")
	run(t, app, &out, "--version")
	assert.Contains(t, out.String(), Version)
	run(t, app, &out, "dream", "--help")

	_, err := os.Stat(cfg.DatabaseURL)
	assert.True(t, os.IsNotExist(err), "database file should not exist, got %v", err)

	run(t, app, &out, "dream", "list")
	_, err = os.Stat(cfg.DatabaseURL)
	assert.NoError(t, err)
}

func TestParseList(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "empty string", input: "", expected: nil},
		{name: "single item", input: "flying", expected: []string{"flying"}},
		{name: "spaces and blanks", input: " flying , ,falling ", expected: []string{"flying", "falling"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseList(tt.input)
			if tt.expected == nil {
				assert.Nil(t, got)
				return
			}
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestParseRealityChecks(t *testing.T) {
	checks, err := parseRealityChecks([]string{"hands=six fingers", " clock = changed "})
	require.NoError(t, err)
	assert.Equal(t, []store.RealityCheck{
		{Type: "hands", Outcome: "six fingers"},
		{Type: "clock", Outcome: "changed"},
	}, checks)

	_, err = parseRealityChecks([]string{"hands"})
	assert.Error(t, err)
}

func TestCLIDreamLifecycle(t *testing.T) {
	app, out := setupTestApp(t)

	var created store.DreamEntry
	require.NoError(t, json.Unmarshal([]byte(run(t, app, out,
		"dream", "add",
		"--date", "2024-05-01",
		"--title", "Lighthouse",
		"--description", "A beam sweeping the sea",
		"--tags", "sea, light",
		"-r", "hands=blurry",
	)), &created))
	assert.NotZero(t, created.ID)
	assert.Equal(t, []string{"sea", "light"}, created.Tags)
	assert.Equal(t, []store.RealityCheck{{Type: "hands", Outcome: "blurry"}}, created.RealityChecks)

	id := strconv.FormatInt(created.ID, 10)

	var edited store.DreamEntry
	require.NoError(t, json.Unmarshal([]byte(run(t, app, out, "dream", "edit", "--title", "Beacon", "--tags", "", id)), &edited))
	assert.Equal(t, "Beacon", edited.Title)
	assert.Empty(t, edited.Tags)
	assert.Equal(t, "A beam sweeping the sea", edited.Description)

	var shown store.DreamEntry
	require.NoError(t, json.Unmarshal([]byte(run(t, app, out, "dream", "show", id)), &shown))
	assert.Equal(t, edited, shown)

	run(t, app, out, "dream", "delete", id)
	out.Reset()
	err := app.Run([]string{"orchidream", "dream", "show", id})
	require.Error(t, err)
	assert.Contains(t, err.Error(), core.ErrDreamNotFound.Error())
}

func TestCLIDreamList(t *testing.T) {
	app, out := setupTestApp(t)
	run(t, app, out, "dream", "add", "--date", "2024-01-01", "--title", "b", "--description", "first", "--tags", "exam")
	run(t, app, out, "dream", "add", "--date", "2024-01-02", "--title", "a", "--description", "second")

	var dreams []store.DreamEntry
	require.NoError(t, json.Unmarshal([]byte(run(t, app, out, "dream", "list")), &dreams))
	require.Len(t, dreams, 2)
	assert.Equal(t, "a", dreams[0].Title)

	require.NoError(t, json.Unmarshal([]byte(run(t, app, out, "dream", "list", "--tags", "exam")), &dreams))
	require.Len(t, dreams, 1)
	assert.Equal(t, "b", dreams[0].Title)

	require.NoError(t, json.Unmarshal([]byte(run(t, app, out, "dream", "list", "--sort-by", "title", "--order", "asc")), &dreams))
	assert.Equal(t, "a", dreams[0].Title)

	err := app.Run([]string{"orchidream", "dream", "list", "--sort-by", "mood"})
	assert.Error(t, err)
}

func TestCLIDreamAddRequiresDescription(t *testing.T) {
	app, _ := setupTestApp(t)
	err := app.Run([]string{"orchidream", "dream", "add", "--description", "   "})
	require.Error(t, err)
	assert.Contains(t, err.Error(), core.ErrEmptyDescription.Error())
}

func TestCLIChatWithoutAPIKey(t *testing.T) {
	app, out := setupTestApp(t)

	reply := run(t, app, out, "chat", "send", "how", "do", "I", "start?")
	assert.Equal(t, core.ReplyInvalidAPIKey, strings.TrimSpace(reply))

	var history []core.DisplayMessage
	require.NoError(t, json.Unmarshal([]byte(run(t, app, out, "chat", "history")), &history))
	require.Len(t, history, 2)
	assert.Equal(t, "how do I start?", history[0].Content)
	assert.Equal(t, core.ReplyInvalidAPIKey, history[1].Content)

	run(t, app, out, "chat", "clear")
	require.NoError(t, json.Unmarshal([]byte(run(t, app, out, "chat", "history")), &history))
	assert.Empty(t, history)
}

func TestCLITranscribeNotConfigured(t *testing.T) {
	app, _ := setupTestApp(t)
	err := app.Run([]string{"orchidream", "transcribe", "dream.wav"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SPEECH_API_KEY")
}
