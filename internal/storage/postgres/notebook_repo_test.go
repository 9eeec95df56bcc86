package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/resona/internal/store"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newMockRepo(t *testing.T) (*NotebookRepo, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	repo, err := NewWithPool(mock, func() time.Time { return fixedNow })
	require.NoError(t, err)
	return repo, mock
}

func notebookRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "project_name", "date", "researchers", "user_cohorts", "methodology",
		"audio_file_count", "drive_folder_id", "drive_folder_url", "created_at", "updated_at",
	})
}

func TestNewWithPoolRequiresPool(t *testing.T) {
	t.Parallel()
	_, err := NewWithPool(nil, nil)
	require.Error(t, err)
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()
	repo, mock := newMockRepo(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS notebooks").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	require.NoError(t, repo.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateInsertsNotebookAndNotes(t *testing.T) {
	t.Parallel()
	repo, mock := newMockRepo(t)

	nb := store.Notebook{
		ID:             "nb-1",
		ProjectName:    "Checkout study",
		Date:           "2025-03-01",
		Researchers:    []string{"Ada", "Grace"},
		UserCohorts:    "New shoppers",
		Methodology:    "Remote research",
		AudioFileCount: 2,
		DriveFolderID:  "folder-1",
		DriveFolderURL: "https://drive.google.com/drive/folders/folder-1",
		Insights:       []store.Note{{ID: "n1", Text: "confused by coupon", Timestamp: fixedNow}},
		CreatedAt:      fixedNow,
		UpdatedAt:      fixedNow,
	}

	mock.ExpectExec("INSERT INTO notebooks").
		WithArgs(nb.ID, nb.ProjectName, nb.Date, nb.Researchers, nb.UserCohorts, nb.Methodology,
			nb.AudioFileCount, nb.DriveFolderID, nb.DriveFolderURL, nb.CreatedAt, nb.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO notebook_notes").
		WithArgs("nb-1", "insights", "n1", "confused by coupon", fixedNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Create(context.Background(), nb))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetLoadsNotes(t *testing.T) {
	t.Parallel()
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("FROM notebooks WHERE id").
		WithArgs("nb-1").
		WillReturnRows(notebookRows().AddRow(
			"nb-1", "Checkout study", "2025-03-01", []string{"Ada"}, "New shoppers", "In-person research",
			1, "folder-1", "https://drive.google.com/drive/folders/folder-1", fixedNow, fixedNow,
		))
	mock.ExpectQuery("FROM notebook_notes").
		WithArgs([]string{"nb-1"}).
		WillReturnRows(pgxmock.NewRows([]string{"notebook_id", "kind", "id", "text", "ts"}).
			AddRow("nb-1", "pain_points", "p1", "slow checkout", fixedNow).
			AddRow("nb-1", "opportunities", "o1", "saved carts", fixedNow))

	nb, err := repo.Get(context.Background(), "nb-1")
	require.NoError(t, err)
	require.Equal(t, "Checkout study", nb.ProjectName)
	require.Equal(t, []string{"Ada"}, nb.Researchers)
	require.Len(t, nb.PainPoints, 1)
	require.Len(t, nb.Opportunities, 1)
	require.Empty(t, nb.Insights)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	t.Parallel()
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("FROM notebooks WHERE id").
		WithArgs("missing").
		WillReturnRows(notebookRows())

	_, err := repo.Get(context.Background(), "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListPaginates(t *testing.T) {
	t.Parallel()
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("FROM notebooks").
		WithArgs(10, 5).
		WillReturnRows(notebookRows().
			AddRow("nb-2", "B", "2025-03-02", []string{}, "c", "Remote research", 0, "", "", fixedNow, fixedNow).
			AddRow("nb-1", "A", "2025-03-01", []string{}, "c", "Remote research", 0, "", "", fixedNow, fixedNow))
	mock.ExpectQuery("FROM notebook_notes").
		WithArgs([]string{"nb-2", "nb-1"}).
		WillReturnRows(pgxmock.NewRows([]string{"notebook_id", "kind", "id", "text", "ts"}).
			AddRow("nb-1", "insights", "i1", "x", fixedNow))

	list, err := repo.List(context.Background(), 10, 5)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "nb-2", list[0].ID)
	require.Len(t, list[1].Insights, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListUnlimitedPassesNullLimit(t *testing.T) {
	t.Parallel()
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("FROM notebooks").
		WithArgs(nil, 0).
		WillReturnRows(notebookRows())

	list, err := repo.List(context.Background(), 0, -3)
	require.NoError(t, err)
	require.Empty(t, list)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddNoteTouchesNotebook(t *testing.T) {
	t.Parallel()
	repo, mock := newMockRepo(t)
	note := store.Note{ID: "n9", Text: "wants export", Timestamp: fixedNow}

	mock.ExpectExec("INSERT INTO notebook_notes").
		WithArgs("nb-1", "opportunities", "n9", "wants export", fixedNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE notebooks SET updated_at").
		WithArgs("nb-1", fixedNow).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.AddNote(context.Background(), "nb-1", store.NoteOpportunity, note))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddNoteMissingNotebook(t *testing.T) {
	t.Parallel()
	repo, mock := newMockRepo(t)
	mock.ExpectExec("INSERT INTO notebook_notes").
		WithArgs("nope", "insights", "n1", "x", fixedNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	err := repo.AddNote(context.Background(), "nope", store.NoteInsight, store.Note{ID: "n1", Text: "x", Timestamp: fixedNow})
	require.ErrorIs(t, err, store.ErrNotFound)
	require.ErrorIs(t, repo.AddNote(context.Background(), "nb", "quotes", store.Note{}), store.ErrInvalidNoteKind)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateAndDeleteNote(t *testing.T) {
	t.Parallel()
	repo, mock := newMockRepo(t)

	mock.ExpectExec("UPDATE notebook_notes SET text").
		WithArgs("nb-1", "insights", "n1", "edited").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE notebooks SET updated_at").
		WithArgs("nb-1", fixedNow).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("DELETE FROM notebook_notes").
		WithArgs("nb-1", "insights", "gone").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	ctx := context.Background()
	require.NoError(t, repo.UpdateNote(ctx, "nb-1", store.NoteInsight, "n1", "edited"))
	require.ErrorIs(t, repo.DeleteNote(ctx, "nb-1", store.NoteInsight, "gone"), store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecErrorsAreWrapped(t *testing.T) {
	t.Parallel()
	repo, mock := newMockRepo(t)
	mock.ExpectExec("UPDATE notebook_notes SET text").
		WillReturnError(errors.New("connection reset"))

	err := repo.UpdateNote(context.Background(), "nb-1", store.NoteInsight, "n1", "x")
	require.ErrorContains(t, err, "update note: connection reset")
}

func TestPing(t *testing.T) {
	t.Parallel()
	mock, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	repo, err := NewWithPool(mock, nil)
	require.NoError(t, err)

	mock.ExpectPing()
	require.NoError(t, repo.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	require.ErrorContains(t, repo.Ping(context.Background()), "connection refused")
	require.NoError(t, mock.ExpectationsWereMet())
}
