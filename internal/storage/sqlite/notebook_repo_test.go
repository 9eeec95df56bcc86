package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/resona/internal/store"
)

func openTestRepo(t *testing.T) *NotebookRepo {
	t.Helper()
	repo, err := Open(context.Background(), filepath.Join(t.TempDir(), "notebooks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, repo.Close()) })
	return repo
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()
	_, err := Open(context.Background(), " ")
	require.Error(t, err)
}

func TestNotebookRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	edited := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	repo := openTestRepo(t).WithClock(func() time.Time { return edited })
	created := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)

	nb := store.Notebook{
		ID:             "nb-1",
		ProjectName:    "Onboarding",
		Date:           "2025-03-01",
		Researchers:    []string{"Ada", "Grace"},
		UserCohorts:    "Trial users",
		Methodology:    "In-person research",
		AudioFileCount: 3,
		DriveFolderID:  "f1",
		DriveFolderURL: "https://drive.google.com/drive/folders/f1",
		PainPoints:     []store.Note{{ID: "p1", Text: "too many steps", Timestamp: created}},
		CreatedAt:      created,
		UpdatedAt:      created,
	}
	require.NoError(t, repo.Create(ctx, nb))
	require.Error(t, repo.Create(ctx, nb))

	got, err := repo.Get(ctx, "nb-1")
	require.NoError(t, err)
	require.Equal(t, nb.Researchers, got.Researchers)
	require.Equal(t, nb.PainPoints, got.PainPoints)
	require.True(t, got.CreatedAt.Equal(created))

	require.NoError(t, repo.AddNote(ctx, "nb-1", store.NoteInsight, store.Note{ID: "i1", Text: "likes video", Timestamp: created}))
	require.NoError(t, repo.UpdateNote(ctx, "nb-1", store.NoteInsight, "i1", "loves video"))
	require.NoError(t, repo.DeleteNote(ctx, "nb-1", store.NotePainPoint, "p1"))

	got, err = repo.Get(ctx, "nb-1")
	require.NoError(t, err)
	require.Equal(t, "loves video", got.Insights[0].Text)
	require.Empty(t, got.PainPoints)
	require.True(t, got.UpdatedAt.Equal(edited))

	require.ErrorIs(t, repo.AddNote(ctx, "missing", store.NoteInsight, store.Note{ID: "x"}), store.ErrNotFound)
	require.ErrorIs(t, repo.UpdateNote(ctx, "nb-1", store.NoteInsight, "nope", "x"), store.ErrNotFound)
	require.ErrorIs(t, repo.DeleteNote(ctx, "nb-1", store.NoteInsight, "nope"), store.ErrNotFound)
	_, err = repo.Get(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestListNewestFirst(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := openTestRepo(t)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, repo.Create(ctx, store.Notebook{
			ID: id, ProjectName: id, Date: "2025-01-01", UserCohorts: "x", Methodology: "Remote research",
			CreatedAt: base.Add(time.Duration(i) * time.Hour), UpdatedAt: base,
		}))
	}
	require.NoError(t, repo.AddNote(ctx, "a", store.NoteOpportunity, store.Note{ID: "o1", Text: "x", Timestamp: base}))

	all, err := repo.List(ctx, 0, 0)
	require.NoError(t, err)
	require.Equal(t, []string{"c", "b", "a"}, []string{all[0].ID, all[1].ID, all[2].ID})
	require.Len(t, all[2].Opportunities, 1)
	require.Empty(t, all[0].Researchers)

	page, err := repo.List(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, "b", page[0].ID)
}

func TestPing(t *testing.T) {
	t.Parallel()
	repo := openTestRepo(t)
	require.NoError(t, repo.Ping(context.Background()))
}
