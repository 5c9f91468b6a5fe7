package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/orchidream/orchidream/internal/api"
	"github.com/orchidream/orchidream/internal/config"
	"github.com/orchidream/orchidream/internal/store"
)

func newCLIApp(sess *session) *cli.App {
	app := &cli.App{
		Name:    "orchidream",
		Usage:   "Dream journal with a lucid dreaming assistant",
		Version: Version,
		Commands: []*cli.Command{
			serveCmd(sess),
			dreamCmd(sess),
			chatCmd(sess),
			transcribeCmd(sess),
		},
	}
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// session opens the services on first use, so --help and --version never
// touch the database.
type session struct {
	cfg *config.Config

	mu  sync.Mutex
	svc *services
}

func newSession(cfg *config.Config) *session {
	return &session{cfg: cfg}
}

func (s *session) services(ctx context.Context) (*services, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.svc == nil {
		svc, err := newServices(ctx, s.cfg)
		if err != nil {
			return nil, err
		}
		s.svc = svc
	}
	return s.svc, nil
}

func (s *session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.svc != nil {
		s.svc.Close()
		s.svc = nil
	}
}

func (s *session) action(fn func(c *cli.Context, svc *services) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		svc, err := s.services(c.Context)
		if err != nil {
			return outputError(err)
		}
		return fn(c, svc)
	}
}

func outputJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func outputError(err error) error {
	return cli.Exit(err.Error(), 1)
}

// parseList splits a comma-separated flag value, dropping blanks.
func parseList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	items := make([]string, 0, len(parts))
	for _, p := range parts {
		if item := strings.TrimSpace(p); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// parseRealityChecks reads "type=outcome" pairs.
func parseRealityChecks(values []string) ([]store.RealityCheck, error) {
	var checks []store.RealityCheck
	for _, v := range values {
		kind, outcome, ok := strings.Cut(v, "=")
		if !ok {
			return nil, fmt.Errorf("reality check %q must look like type=outcome", v)
		}
		checks = append(checks, store.RealityCheck{Type: strings.TrimSpace(kind), Outcome: strings.TrimSpace(outcome)})
	}
	return checks, nil
}

func parseID(c *cli.Context) (int64, error) {
	if c.NArg() == 0 {
		return 0, errors.New("dream id is required")
	}
	id, err := strconv.ParseInt(c.Args().First(), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid dream id %q", c.Args().First())
	}
	return id, nil
}

func serveCmd(sess *session) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the local HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Value: sess.cfg.HTTPAddr, Usage: "Listen address"},
		},
		Action: sess.action(func(c *cli.Context, svc *services) error {
			router := api.NewRouter(api.NewAPIHandler(svc.journal, svc.chat, svc.transcriber))
			addr := c.String("addr")

			srv := &http.Server{
				Addr:         addr,
				Handler:      router,
				ReadTimeout:  15 * time.Second,
				WriteTimeout: svc.cfg.AssistantTimeout + 15*time.Second,
				IdleTimeout:  120 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Printf("Starting server on %s. Press Ctrl+C to quit.", addr)
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(quit)

			select {
			case err := <-errCh:
				return outputError(fmt.Errorf("could not listen on %s: %w", addr, err))
			case <-quit:
			}
			log.Println("Shutting down server...")

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				return outputError(fmt.Errorf("server forced to shutdown: %w", err))
			}

			log.Println("Server exiting gracefully")
			return nil
		}),
	}
}

func dreamCmd(sess *session) *cli.Command {
	return &cli.Command{
		Name:  "dream",
		Usage: "Manage journal entries",
		Subcommands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Record a dream",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "date", Aliases: []string{"d"}, Usage: "Dream date (ISO-8601, defaults to now)"},
					&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "Title"},
					&cli.StringFlag{Name: "description", Aliases: []string{"m"}, Usage: "What happened", Required: true},
					&cli.StringFlag{Name: "lucidity", Aliases: []string{"l"}, Usage: "Non-lucid|Semi-lucid|Fully lucid"},
					&cli.StringFlag{Name: "tags", Usage: "Comma-separated tags"},
					&cli.StringFlag{Name: "emotions", Usage: "Comma-separated emotions"},
					&cli.StringFlag{Name: "triggers", Usage: "Comma-separated lucidity triggers"},
					&cli.StringSliceFlag{Name: "reality-check", Aliases: []string{"r"}, Usage: "type=outcome, repeatable"},
				},
				Action: sess.action(func(c *cli.Context, svc *services) error {
					checks, err := parseRealityChecks(c.StringSlice("reality-check"))
					if err != nil {
						return outputError(err)
					}
					entry, err := svc.journal.Create(c.Context, store.NewDreamEntry{
						Date:             c.String("date"),
						Title:            c.String("title"),
						Description:      c.String("description"),
						LucidityLevel:    c.String("lucidity"),
						Tags:             parseList(c.String("tags")),
						Emotions:         parseList(c.String("emotions")),
						LucidityTriggers: parseList(c.String("triggers")),
						RealityChecks:    checks,
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, entry)
				}),
			},
			{
				Name:  "list",
				Usage: "List dreams, newest first by default",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "search", Aliases: []string{"q"}, Usage: "Text in title or description"},
					&cli.StringFlag{Name: "date", Usage: "Exact date"},
					&cli.StringFlag{Name: "from", Usage: "Start date (inclusive)"},
					&cli.StringFlag{Name: "to", Usage: "End date (inclusive)"},
					&cli.StringFlag{Name: "lucidity", Aliases: []string{"l"}, Usage: "Lucidity level"},
					&cli.StringFlag{Name: "tags", Usage: "Comma-separated tags, any may match"},
					&cli.StringFlag{Name: "sort-by", Value: string(store.SortByDate), Usage: "date|title"},
					&cli.StringFlag{Name: "order", Value: string(store.SortDesc), Usage: "ASC|DESC"},
				},
				Action: sess.action(func(c *cli.Context, svc *services) error {
					opts := store.FetchOptions{
						SearchQuery:         c.String("search"),
						LucidityLevelFilter: c.String("lucidity"),
						TagsFilter:          parseList(c.String("tags")),
						SortBy:              store.SortField(c.String("sort-by")),
						SortOrder:           store.SortOrder(c.String("order")),
					}
					if date := c.String("date"); date != "" {
						opts.DateFilter = store.ExactDate(date)
					} else if c.IsSet("from") || c.IsSet("to") {
						opts.DateFilter = store.DateRange(c.String("from"), c.String("to"))
					}

					dreams, err := svc.journal.List(c.Context, opts)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, dreams)
				}),
			},
			{
				Name:      "show",
				Usage:     "Show one dream",
				ArgsUsage: "<id>",
				Action: sess.action(func(c *cli.Context, svc *services) error {
					id, err := parseID(c)
					if err != nil {
						return outputError(err)
					}
					entry, err := svc.journal.Get(c.Context, id)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, entry)
				}),
			},
			{
				Name:      "edit",
				Usage:     "Change the given fields of a dream",
				ArgsUsage: "<id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "date", Aliases: []string{"d"}, Usage: "New date"},
					&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "New title"},
					&cli.StringFlag{Name: "description", Aliases: []string{"m"}, Usage: "New description"},
					&cli.StringFlag{Name: "lucidity", Aliases: []string{"l"}, Usage: "New lucidity level, empty to clear"},
					&cli.StringFlag{Name: "tags", Usage: "New comma-separated tags, empty to clear"},
					&cli.StringFlag{Name: "emotions", Usage: "New comma-separated emotions, empty to clear"},
					&cli.StringFlag{Name: "triggers", Usage: "New comma-separated lucidity triggers, empty to clear"},
					&cli.StringSliceFlag{Name: "reality-check", Aliases: []string{"r"}, Usage: "Replaces all reality checks, repeatable"},
				},
				Action: sess.action(func(c *cli.Context, svc *services) error {
					id, err := parseID(c)
					if err != nil {
						return outputError(err)
					}

					var update store.DreamUpdate
					if c.IsSet("date") {
						update.Date = store.Set(c.String("date"))
					}
					if c.IsSet("title") {
						update.Title = store.Set(c.String("title"))
					}
					if c.IsSet("description") {
						update.Description = store.Set(c.String("description"))
					}
					if c.IsSet("lucidity") {
						update.LucidityLevel = store.Set(c.String("lucidity"))
					}
					if c.IsSet("tags") {
						update.Tags = store.Set(parseList(c.String("tags")))
					}
					if c.IsSet("emotions") {
						update.Emotions = store.Set(parseList(c.String("emotions")))
					}
					if c.IsSet("triggers") {
						update.LucidityTriggers = store.Set(parseList(c.String("triggers")))
					}
					if c.IsSet("reality-check") {
						checks, err := parseRealityChecks(c.StringSlice("reality-check"))
						if err != nil {
							return outputError(err)
						}
						update.RealityChecks = store.Set(checks)
					}

					if err := svc.journal.Update(c.Context, id, update); err != nil {
						return outputError(err)
					}
					entry, err := svc.journal.Get(c.Context, id)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, entry)
				}),
			},
			{
				Name:      "delete",
				Usage:     "Delete a dream",
				ArgsUsage: "<id>",
				Action: sess.action(func(c *cli.Context, svc *services) error {
					id, err := parseID(c)
					if err != nil {
						return outputError(err)
					}
					if err := svc.journal.Delete(c.Context, id); err != nil {
						return outputError(err)
					}
					return outputJSON(c, map[string]any{"deleted": id})
				}),
			},
		},
	}
}

func chatCmd(sess *session) *cli.Command {
	return &cli.Command{
		Name:  "chat",
		Usage: "Talk to the lucid dreaming assistant",
		Subcommands: []*cli.Command{
			{
				Name:      "send",
				Usage:     "Send a message and print the reply",
				ArgsUsage: "<message>",
				Action: sess.action(func(c *cli.Context, svc *services) error {
					ex, err := svc.chat.Send(c.Context, strings.Join(c.Args().Slice(), " "))
					if err != nil {
						return outputError(err)
					}
					svc.chat.Flush()
					_, err = fmt.Fprintln(c.App.Writer, ex.Reply.Content)
					return err
				}),
			},
			{
				Name:  "history",
				Usage: "Print the conversation, oldest first",
				Action: sess.action(func(c *cli.Context, svc *services) error {
					return outputJSON(c, svc.chat.LoadHistory(c.Context))
				}),
			},
			{
				Name:  "clear",
				Usage: "Delete the whole conversation",
				Action: sess.action(func(c *cli.Context, svc *services) error {
					if err := svc.chat.Clear(c.Context); err != nil {
						return outputError(err)
					}
					return outputJSON(c, map[string]any{"cleared": true})
				}),
			},
		},
	}
}

func transcribeCmd(sess *session) *cli.Command {
	return &cli.Command{
		Name:      "transcribe",
		Usage:     "Transcribe a LINEAR16 audio file",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "dream", Usage: "Append the transcript to this dream's description"},
		},
		Action: sess.action(func(c *cli.Context, svc *services) error {
			if svc.transcriber == nil {
				return outputError(errors.New("transcription is not configured, set SPEECH_API_KEY"))
			}
			if c.NArg() == 0 {
				return outputError(errors.New("audio file is required"))
			}
			audio, err := os.ReadFile(c.Args().First())
			if err != nil {
				return outputError(err)
			}

			transcript, err := svc.transcriber.Transcribe(c.Context, audio)
			if err != nil {
				return outputError(err)
			}

			if !c.IsSet("dream") {
				_, err = fmt.Fprintln(c.App.Writer, transcript)
				return err
			}
			entry, err := svc.journal.AppendTranscriptToEntry(c.Context, c.Int64("dream"), transcript)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, entry)
		}),
	}
}
