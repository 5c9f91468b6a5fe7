package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/orchidream/orchidream/internal/config"
	"github.com/orchidream/orchidream/internal/core"
	"github.com/orchidream/orchidream/internal/store"
	"github.com/orchidream/orchidream/internal/transcribe"
	"github.com/orchidream/orchidream/internal/utils"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// services holds everything the commands share. llm and transcriber are nil
// when their keys are not configured.
type services struct {
	cfg         *config.Config
	store       *store.SQLiteStore
	journal     *core.JournalService
	chat        *core.ChatService
	llm         *core.LLMService
	transcriber transcribe.Transcriber
}

func newServices(ctx context.Context, cfg *config.Config) (*services, error) {
	dbStore, err := store.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	svc := &services{
		cfg:     cfg,
		store:   dbStore,
		journal: core.NewJournalService(dbStore),
	}

	var model core.ChatModel
	llmService, err := core.NewLLMService(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiMaxOutputTokens)
	if err != nil {
		log.Printf("Assistant unavailable: %v", err)
		model = core.NewUnavailableModel(err)
	} else {
		svc.llm = llmService
		model = llmService
	}

	history := core.NewConversationLog(dbStore)
	bridge := core.NewAssistantBridge(history, model, cfg.AssistantTimeout)
	svc.chat = core.NewChatService(dbStore, history, bridge, utils.Backoff{
		Attempts: cfg.HistoryLoadAttempts,
		Initial:  cfg.HistoryLoadBackoff,
	})
	svc.chat.SetDebug(cfg.Debug())

	if cfg.SpeechAPIKey != "" {
		transcriber, err := transcribe.NewSpeechTranscriber(ctx, cfg.SpeechAPIKey, cfg.SpeechLanguage, cfg.SpeechSampleRate)
		if err != nil {
			log.Printf("Transcription unavailable: %v", err)
		} else {
			svc.transcriber = transcriber
		}
	}
	return svc, nil
}

// Close waits for pending conversation writes before closing the store.
func (s *services) Close() {
	s.chat.Flush()
	if s.llm != nil {
		s.llm.Close()
	}
	if err := s.store.Close(); err != nil {
		log.Printf("Error closing database: %v", err)
	}
}

func main() {
	cfg := config.LoadConfig()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if cfg.Debug() {
		log.Println("Orchidream starting in DEBUG mode")
	}

	sess := newSession(cfg)
	app := newCLIApp(sess)
	runErr := app.Run(os.Args)
	sess.Close()
	if runErr != nil {
		fmt.Fprintln(os.Stderr, runErr)
		os.Exit(1)
	}
}
