package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchidream/orchidream/internal/store"
)

func TestCreateNormalizesEntry(t *testing.T) {
	ctx := context.Background()
	journal := NewJournalService(newTestStore(t))
	journal.now = func() time.Time { return time.Date(2024, 7, 4, 6, 30, 0, 0, time.UTC) }

	entry, err := journal.Create(ctx, store.NewDreamEntry{
		Title:         "  Night flight ",
		Description:   "\n  Over the rooftops  ",
		Tags:          []string{" flying ", "", "  "},
		Emotions:      []string{"   "},
		RealityChecks: []store.RealityCheck{{Type: "hands", Outcome: ""}, {Type: " text ", Outcome: " changed "}},
	})
	require.NoError(t, err)

	assert.Equal(t, "Night flight", entry.Title)
	assert.Equal(t, "Over the rooftops", entry.Description)
	assert.Equal(t, "2024-07-04T06:30:00.000Z", entry.Date)
	assert.Equal(t, []string{"flying"}, entry.Tags)
	assert.Equal(t, []string{}, entry.Emotions)
	assert.Equal(t, []store.RealityCheck{{Type: "text", Outcome: "changed"}}, entry.RealityChecks)
}

func TestCreateRejectsBlankDescription(t *testing.T) {
	s := newTestStore(t)
	journal := NewJournalService(s)

	_, err := journal.Create(context.Background(), store.NewDreamEntry{Title: "only a title", Description: "  "})
	assert.ErrorIs(t, err, ErrEmptyDescription)

	n, err := s.CountDreams(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestGetMissingDream(t *testing.T) {
	journal := NewJournalService(newTestStore(t))

	_, err := journal.Get(context.Background(), 12)
	assert.ErrorIs(t, err, ErrDreamNotFound)
}

func TestUpdateValidatesSetFields(t *testing.T) {
	ctx := context.Background()
	journal := NewJournalService(newTestStore(t))
	entry, err := journal.Create(ctx, store.NewDreamEntry{Date: "2024-01-01", Description: "sea", Tags: []string{"water"}})
	require.NoError(t, err)

	err = journal.Update(ctx, entry.ID, store.DreamUpdate{Description: store.Set(" ")})
	assert.ErrorIs(t, err, ErrEmptyDescription)

	require.NoError(t, journal.Update(ctx, entry.ID, store.DreamUpdate{
		Title: store.Set("  Tide "),
		Tags:  store.Set([]string{" "}),
	}))

	got, err := journal.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "Tide", got.Title)
	assert.Equal(t, "sea", got.Description)
	assert.Empty(t, got.Tags)
}

func TestListAndDelete(t *testing.T) {
	ctx := context.Background()
	journal := NewJournalService(newTestStore(t))
	a, err := journal.Create(ctx, store.NewDreamEntry{Date: "2024-01-01", Title: "a", Description: "x", Tags: []string{"exam"}})
	require.NoError(t, err)
	_, err = journal.Create(ctx, store.NewDreamEntry{Date: "2024-01-02", Title: "b", Description: "y"})
	require.NoError(t, err)

	got, err := journal.List(ctx, store.FetchOptions{TagsFilter: []string{" exam ", ""}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, a.ID, got[0].ID)

	require.NoError(t, journal.Delete(ctx, a.ID))
	got, err = journal.List(ctx, store.FetchOptions{})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	n, err := journal.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestListWrapsStoreErrors(t *testing.T) {
	journal := NewJournalService(store.NewSQLiteStore(store.DriverCGO, "unused.db"))

	_, err := journal.List(context.Background(), store.FetchOptions{})
	assert.True(t, errors.Is(err, store.ErrRead))

	_, err = journal.Count(context.Background())
	assert.True(t, errors.Is(err, store.ErrRead))
}

func TestAppendTranscript(t *testing.T) {
	assert.Equal(t, "I was flying", AppendTranscript("", "I was flying"))
	assert.Equal(t, "Start. then more", AppendTranscript("Start.", " then more "))
	assert.Equal(t, "unchanged", AppendTranscript("unchanged", "  "))
}

func TestAppendTranscriptToEntry(t *testing.T) {
	ctx := context.Background()
	journal := NewJournalService(newTestStore(t))
	entry, err := journal.Create(ctx, store.NewDreamEntry{Description: "I was in a forest."})
	require.NoError(t, err)

	got, err := journal.AppendTranscriptToEntry(ctx, entry.ID, "The trees were glowing.")
	require.NoError(t, err)
	assert.Equal(t, "I was in a forest. The trees were glowing.", got.Description)

	_, err = journal.AppendTranscriptToEntry(ctx, entry.ID+1, "lost")
	assert.ErrorIs(t, err, ErrDreamNotFound)
}
