package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/orchidream/orchidream/internal/store"
)

const dreamDateLayout = "2006-01-02T15:04:05.000Z"

var (
	ErrEmptyDescription = errors.New("please provide dream content")
	ErrDreamNotFound    = errors.New("dream not found")
)

type JournalStore interface {
	InsertDreamEntry(ctx context.Context, entry store.NewDreamEntry) (int64, error)
	FetchDreamEntryByID(ctx context.Context, id int64) (*store.DreamEntry, error)
	FetchDreams(ctx context.Context, opts store.FetchOptions) ([]store.DreamEntry, error)
	UpdateDreamEntry(ctx context.Context, id int64, update store.DreamUpdate) error
	DeleteDreamEntry(ctx context.Context, id int64) error
	CountDreams(ctx context.Context) (int, error)
}

// JournalService validates and normalizes entries before they reach the store.
type JournalService struct {
	store JournalStore
	now   func() time.Time
}

func NewJournalService(s JournalStore) *JournalService {
	return &JournalService{store: s, now: time.Now}
}

func (s *JournalService) Create(ctx context.Context, entry store.NewDreamEntry) (*store.DreamEntry, error) {
	entry.Title = strings.TrimSpace(entry.Title)
	entry.Description = strings.TrimSpace(entry.Description)
	if entry.Description == "" {
		return nil, ErrEmptyDescription
	}
	entry.Date = strings.TrimSpace(entry.Date)
	if entry.Date == "" {
		entry.Date = s.now().UTC().Format(dreamDateLayout)
	}
	entry.LucidityLevel = strings.TrimSpace(entry.LucidityLevel)
	entry.Tags = cleanList(entry.Tags)
	entry.Emotions = cleanList(entry.Emotions)
	entry.LucidityTriggers = cleanList(entry.LucidityTriggers)
	entry.RealityChecks = cleanRealityChecks(entry.RealityChecks)

	id, err := s.store.InsertDreamEntry(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("failed to save dream: %w", err)
	}
	return s.Get(ctx, id)
}

func (s *JournalService) Get(ctx context.Context, id int64) (*store.DreamEntry, error) {
	entry, err := s.store.FetchDreamEntryByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load dream %d: %w", id, err)
	}
	if entry == nil {
		return nil, ErrDreamNotFound
	}
	return entry, nil
}

func (s *JournalService) List(ctx context.Context, opts store.FetchOptions) ([]store.DreamEntry, error) {
	opts.SearchQuery = strings.TrimSpace(opts.SearchQuery)
	opts.TagsFilter = cleanList(opts.TagsFilter)

	dreams, err := s.store.FetchDreams(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to load dreams: %w", err)
	}
	return dreams, nil
}

// Update applies the set fields of update. Setting a blank description is
// rejected the same way as on create.
func (s *JournalService) Update(ctx context.Context, id int64, update store.DreamUpdate) error {
	if v, ok := update.Description.Get(); ok {
		v = strings.TrimSpace(v)
		if v == "" {
			return ErrEmptyDescription
		}
		update.Description = store.Set(v)
	}
	if v, ok := update.Title.Get(); ok {
		update.Title = store.Set(strings.TrimSpace(v))
	}
	if v, ok := update.Date.Get(); ok {
		update.Date = store.Set(strings.TrimSpace(v))
	}
	if v, ok := update.LucidityLevel.Get(); ok {
		update.LucidityLevel = store.Set(strings.TrimSpace(v))
	}
	if v, ok := update.Tags.Get(); ok {
		update.Tags = store.Set(cleanList(v))
	}
	if v, ok := update.Emotions.Get(); ok {
		update.Emotions = store.Set(cleanList(v))
	}
	if v, ok := update.LucidityTriggers.Get(); ok {
		update.LucidityTriggers = store.Set(cleanList(v))
	}
	if v, ok := update.RealityChecks.Get(); ok {
		update.RealityChecks = store.Set(cleanRealityChecks(v))
	}

	if err := s.store.UpdateDreamEntry(ctx, id, update); err != nil {
		return fmt.Errorf("failed to update dream %d: %w", id, err)
	}
	return nil
}

func (s *JournalService) Delete(ctx context.Context, id int64) error {
	if err := s.store.DeleteDreamEntry(ctx, id); err != nil {
		return fmt.Errorf("failed to delete dream %d: %w", id, err)
	}
	return nil
}

func (s *JournalService) Count(ctx context.Context) (int, error) {
	n, err := s.store.CountDreams(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count dreams: %w", err)
	}
	return n, nil
}

// AppendTranscriptToEntry adds dictated text to the end of an entry's
// description.
func (s *JournalService) AppendTranscriptToEntry(ctx context.Context, id int64, transcript string) (*store.DreamEntry, error) {
	entry, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	description := AppendTranscript(entry.Description, transcript)
	if description == entry.Description {
		return entry, nil
	}
	if err := s.Update(ctx, id, store.DreamUpdate{Description: store.Set(description)}); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// AppendTranscript joins transcript onto description with a single space.
func AppendTranscript(description, transcript string) string {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return description
	}
	if description == "" {
		return transcript
	}
	return description + " " + transcript
}

// cleanList trims items, drops blanks and returns nil for an empty result.
func cleanList(items []string) []string {
	var out []string
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// cleanRealityChecks keeps only checks with both a type and an outcome.
func cleanRealityChecks(checks []store.RealityCheck) []store.RealityCheck {
	var out []store.RealityCheck
	for _, rc := range checks {
		rc.Type = strings.TrimSpace(rc.Type)
		rc.Outcome = strings.TrimSpace(rc.Outcome)
		if rc.Type != "" && rc.Outcome != "" {
			out = append(out, rc)
		}
	}
	return out
}
