package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/resona/internal/store"
)

func TestNotebookRepoLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewNotebookRepo()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(ctx, store.Notebook{ID: "old", ProjectName: "Old", CreatedAt: base}))
	require.NoError(t, repo.Create(ctx, store.Notebook{
		ID: "new", ProjectName: "New", Researchers: []string{"Ada"}, CreatedAt: base.Add(time.Hour),
	}))
	require.Error(t, repo.Create(ctx, store.Notebook{ID: "old"}))

	list, err := repo.List(ctx, 10, 0)
	require.NoError(t, err)
	require.Equal(t, "new", list[0].ID)
	list[0].Researchers[0] = "mutated"

	got, err := repo.Get(ctx, "new")
	require.NoError(t, err)
	require.Equal(t, []string{"Ada"}, got.Researchers)

	require.NoError(t, repo.AddNote(ctx, "new", store.NoteInsight, store.Note{ID: "n1", Text: "slow login"}))
	require.NoError(t, repo.AddNote(ctx, "new", store.NoteInsight, store.Note{ID: "n2", Text: "likes dark mode"}))
	require.NoError(t, repo.UpdateNote(ctx, "new", store.NoteInsight, "n1", "very slow login"))
	require.NoError(t, repo.DeleteNote(ctx, "new", store.NoteInsight, "n2"))

	got, err = repo.Get(ctx, "new")
	require.NoError(t, err)
	require.Equal(t, []store.Note{{ID: "n1", Text: "very slow login"}}, got.Insights)
	require.False(t, got.UpdatedAt.IsZero())

	require.ErrorIs(t, repo.UpdateNote(ctx, "new", store.NoteInsight, "n2", "x"), store.ErrNotFound)
	require.ErrorIs(t, repo.AddNote(ctx, "nope", store.NotePainPoint, store.Note{}), store.ErrNotFound)
	require.ErrorIs(t, repo.AddNote(ctx, "new", "quotes", store.Note{}), store.ErrInvalidNoteKind)
	_, err = repo.Get(ctx, "nope")
	require.ErrorIs(t, err, store.ErrNotFound)
}
