// Package sqlite provides a single-file notebook repository for local runs.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JakeFAU/resona/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS notebooks (
	id               TEXT PRIMARY KEY,
	project_name     TEXT NOT NULL,
	date             TEXT NOT NULL,
	researchers      TEXT NOT NULL DEFAULT '[]',
	user_cohorts     TEXT NOT NULL,
	methodology      TEXT NOT NULL,
	audio_file_count INTEGER NOT NULL DEFAULT 0,
	drive_folder_id  TEXT NOT NULL DEFAULT '',
	drive_folder_url TEXT NOT NULL DEFAULT '',
	created_at       INTEGER NOT NULL,
	updated_at       INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS notebook_notes (
	notebook_id TEXT NOT NULL REFERENCES notebooks(id) ON DELETE CASCADE,
	kind        TEXT NOT NULL,
	id          TEXT NOT NULL,
	text        TEXT NOT NULL,
	ts          INTEGER NOT NULL,
	PRIMARY KEY (notebook_id, kind, id)
);
CREATE INDEX IF NOT EXISTS notebooks_created_at_idx ON notebooks (created_at DESC);
`

const notebookColumns = `id, project_name, date, researchers, user_cohorts, methodology,
	audio_file_count, drive_folder_id, drive_folder_url, created_at, updated_at`

// NotebookRepo implements store.Repository on SQLite. Timestamps are stored as
// unix nanoseconds.
type NotebookRepo struct {
	db  *sql.DB
	now func() time.Time
}

var _ store.Repository = (*NotebookRepo)(nil)

// Open creates or opens the database at path. ":memory:" keeps everything in
// a single in-process connection.
func Open(ctx context.Context, path string) (*NotebookRepo, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("notebooks.sqlite_path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply notebook schema: %w", err)
	}
	return &NotebookRepo{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// WithClock overrides the UpdatedAt source.
func (r *NotebookRepo) WithClock(now func() time.Time) *NotebookRepo {
	r.now = now
	return r
}

// Ping checks the database handle.
func (r *NotebookRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (r *NotebookRepo) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Create inserts the notebook and its initial notes in one transaction.
func (r *NotebookRepo) Create(ctx context.Context, nb store.Notebook) (err error) {
	researchers, err := json.Marshal(nonNil(nb.Researchers))
	if err != nil {
		return fmt.Errorf("encode researchers: %w", err)
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO notebooks (`+notebookColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nb.ID, nb.ProjectName, nb.Date, string(researchers), nb.UserCohorts, nb.Methodology,
		nb.AudioFileCount, nb.DriveFolderID, nb.DriveFolderURL,
		nb.CreatedAt.UnixNano(), nb.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert notebook: %w", err)
	}
	for _, kind := range []store.NoteKind{store.NoteInsight, store.NoteOpportunity, store.NotePainPoint} {
		for _, note := range *nb.Notes(kind) {
			if _, err = tx.ExecContext(ctx,
				`INSERT INTO notebook_notes (notebook_id, kind, id, text, ts) VALUES (?, ?, ?, ?, ?)`,
				nb.ID, string(kind), note.ID, note.Text, note.Timestamp.UnixNano()); err != nil {
				return fmt.Errorf("insert note: %w", err)
			}
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit notebook: %w", err)
	}
	return nil
}

// Get loads one notebook with its notes.
func (r *NotebookRepo) Get(ctx context.Context, id string) (store.Notebook, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+notebookColumns+` FROM notebooks WHERE id = ?`, id)
	nb, err := scanNotebook(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Notebook{}, store.ErrNotFound
		}
		return store.Notebook{}, fmt.Errorf("get notebook: %w", err)
	}
	if err := r.loadNotes(ctx, &nb); err != nil {
		return store.Notebook{}, err
	}
	return nb, nil
}

// List returns notebooks newest first.
func (r *NotebookRepo) List(ctx context.Context, limit, offset int) ([]store.Notebook, error) {
	if limit <= 0 {
		limit = -1
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+notebookColumns+` FROM notebooks ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list notebooks: %w", err)
	}
	out := []store.Notebook{}
	for rows.Next() {
		nb, err := scanNotebook(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan notebook row: %w", err)
		}
		out = append(out, nb)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("list notebooks: %w", err)
	}
	// Single connection: release it before issuing the note queries.
	_ = rows.Close()
	for i := range out {
		if err := r.loadNotes(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// AddNote inserts a note when the notebook exists.
func (r *NotebookRepo) AddNote(ctx context.Context, notebookID string, kind store.NoteKind, note store.Note) error {
	if _, err := store.ParseNoteKind(string(kind)); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO notebook_notes (notebook_id, kind, id, text, ts)
		SELECT ?1, ?2, ?3, ?4, ?5 WHERE EXISTS (SELECT 1 FROM notebooks WHERE id = ?1)`,
		notebookID, string(kind), note.ID, note.Text, note.Timestamp.UnixNano())
	if err != nil {
		return fmt.Errorf("insert note: %w", err)
	}
	return r.touchIfAffected(ctx, notebookID, res)
}

// UpdateNote replaces a note's text.
func (r *NotebookRepo) UpdateNote(ctx context.Context, notebookID string, kind store.NoteKind, noteID, text string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE notebook_notes SET text = ? WHERE notebook_id = ? AND kind = ? AND id = ?`,
		text, notebookID, string(kind), noteID)
	if err != nil {
		return fmt.Errorf("update note: %w", err)
	}
	return r.touchIfAffected(ctx, notebookID, res)
}

// DeleteNote removes a note.
func (r *NotebookRepo) DeleteNote(ctx context.Context, notebookID string, kind store.NoteKind, noteID string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM notebook_notes WHERE notebook_id = ? AND kind = ? AND id = ?`,
		notebookID, string(kind), noteID)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	return r.touchIfAffected(ctx, notebookID, res)
}

func (r *NotebookRepo) touchIfAffected(ctx context.Context, id string, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	if _, err := r.db.ExecContext(ctx, `UPDATE notebooks SET updated_at = ? WHERE id = ?`,
		r.now().UnixNano(), id); err != nil {
		return fmt.Errorf("touch notebook: %w", err)
	}
	return nil
}

func (r *NotebookRepo) loadNotes(ctx context.Context, nb *store.Notebook) error {
	rows, err := r.db.QueryContext(ctx,
		`SELECT kind, id, text, ts FROM notebook_notes WHERE notebook_id = ? ORDER BY ts, id`, nb.ID)
	if err != nil {
		return fmt.Errorf("load notes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			kind string
			ts   int64
			note store.Note
		)
		if err := rows.Scan(&kind, &note.ID, &note.Text, &ts); err != nil {
			return fmt.Errorf("failed to scan note row: %w", err)
		}
		note.Timestamp = time.Unix(0, ts).UTC()
		if list := nb.Notes(store.NoteKind(kind)); list != nil {
			*list = append(*list, note)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load notes: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNotebook(row scanner) (store.Notebook, error) {
	var (
		nb                   store.Notebook
		researchers          string
		createdAt, updatedAt int64
	)
	if err := row.Scan(
		&nb.ID,
		&nb.ProjectName,
		&nb.Date,
		&researchers,
		&nb.UserCohorts,
		&nb.Methodology,
		&nb.AudioFileCount,
		&nb.DriveFolderID,
		&nb.DriveFolderURL,
		&createdAt,
		&updatedAt,
	); err != nil {
		return store.Notebook{}, err
	}
	if err := json.Unmarshal([]byte(researchers), &nb.Researchers); err != nil {
		return store.Notebook{}, fmt.Errorf("decode researchers: %w", err)
	}
	nb.CreatedAt = time.Unix(0, createdAt).UTC()
	nb.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return nb, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
