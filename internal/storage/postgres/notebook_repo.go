// Package postgres provides the Postgres-backed notebook repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/resona/internal/store"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pgxIface is the subset of pgxpool.Pool the repository uses; pgxmock
// satisfies it in tests.
type pgxIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS notebooks (
	id               TEXT PRIMARY KEY,
	project_name     TEXT NOT NULL,
	date             TEXT NOT NULL,
	researchers      TEXT[] NOT NULL DEFAULT '{}',
	user_cohorts     TEXT NOT NULL,
	methodology      TEXT NOT NULL,
	audio_file_count INTEGER NOT NULL DEFAULT 0,
	drive_folder_id  TEXT NOT NULL DEFAULT '',
	drive_folder_url TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS notebook_notes (
	notebook_id TEXT NOT NULL REFERENCES notebooks(id) ON DELETE CASCADE,
	kind        TEXT NOT NULL,
	id          TEXT NOT NULL,
	text        TEXT NOT NULL,
	ts          TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (notebook_id, kind, id)
);
CREATE INDEX IF NOT EXISTS notebooks_created_at_idx ON notebooks (created_at DESC);
`

const notebookColumns = `id, project_name, date, researchers, user_cohorts, methodology,
	audio_file_count, drive_folder_id, drive_folder_url, created_at, updated_at`

// NotebookRepo implements store.Repository on Postgres.
type NotebookRepo struct {
	pool pgxIface
	now  func() time.Time
}

var _ store.Repository = (*NotebookRepo)(nil)

// New connects a pool and ensures the schema exists.
func New(ctx context.Context, cfg Config) (*NotebookRepo, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("notebooks.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	repo := &NotebookRepo{pool: pool, now: utcNow}
	if err := repo.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return repo, nil
}

// NewWithPool constructs a repository from an existing pool (primarily for testing).
func NewWithPool(pool pgxIface, now func() time.Time) (*NotebookRepo, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if now == nil {
		now = utcNow
	}
	return &NotebookRepo{pool: pool, now: now}, nil
}

func utcNow() time.Time { return time.Now().UTC() }

// EnsureSchema creates the tables when missing.
func (r *NotebookRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply notebook schema: %w", err)
	}
	return nil
}

// Ping checks that the database is reachable.
func (r *NotebookRepo) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases the pool.
func (r *NotebookRepo) Close() {
	r.pool.Close()
}

// Create inserts the notebook and any initial notes.
func (r *NotebookRepo) Create(ctx context.Context, nb store.Notebook) error {
	researchers := nb.Researchers
	if researchers == nil {
		researchers = []string{}
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO notebooks (`+notebookColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		nb.ID, nb.ProjectName, nb.Date, researchers, nb.UserCohorts, nb.Methodology,
		nb.AudioFileCount, nb.DriveFolderID, nb.DriveFolderURL, nb.CreatedAt, nb.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notebook: %w", err)
	}
	for _, kind := range []store.NoteKind{store.NoteInsight, store.NoteOpportunity, store.NotePainPoint} {
		for _, note := range *nb.Notes(kind) {
			if err := r.insertNote(ctx, nb.ID, kind, note); err != nil {
				return err
			}
		}
	}
	return nil
}

// Get loads one notebook with its notes.
func (r *NotebookRepo) Get(ctx context.Context, id string) (store.Notebook, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+notebookColumns+` FROM notebooks WHERE id = $1`, id)
	nb, err := scanNotebook(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Notebook{}, store.ErrNotFound
		}
		return store.Notebook{}, fmt.Errorf("get notebook: %w", err)
	}
	byID := map[string]*store.Notebook{nb.ID: &nb}
	if err := r.loadNotes(ctx, []string{nb.ID}, byID); err != nil {
		return store.Notebook{}, err
	}
	return nb, nil
}

// List returns notebooks newest first with their notes.
func (r *NotebookRepo) List(ctx context.Context, limit, offset int) ([]store.Notebook, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+notebookColumns+` FROM notebooks
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2`, lim, offset)
	if err != nil {
		return nil, fmt.Errorf("list notebooks: %w", err)
	}
	defer rows.Close()

	out := []store.Notebook{}
	for rows.Next() {
		nb, err := scanNotebook(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notebook row: %w", err)
		}
		out = append(out, nb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list notebooks: %w", err)
	}
	if len(out) == 0 {
		return out, nil
	}
	ids := make([]string, len(out))
	byID := make(map[string]*store.Notebook, len(out))
	for i := range out {
		ids[i] = out[i].ID
		byID[out[i].ID] = &out[i]
	}
	if err := r.loadNotes(ctx, ids, byID); err != nil {
		return nil, err
	}
	return out, nil
}

// AddNote inserts a note when the notebook exists.
func (r *NotebookRepo) AddNote(ctx context.Context, notebookID string, kind store.NoteKind, note store.Note) error {
	if _, err := store.ParseNoteKind(string(kind)); err != nil {
		return err
	}
	if err := r.insertNote(ctx, notebookID, kind, note); err != nil {
		return err
	}
	return r.touch(ctx, notebookID)
}

// UpdateNote replaces a note's text.
func (r *NotebookRepo) UpdateNote(ctx context.Context, notebookID string, kind store.NoteKind, noteID, text string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE notebook_notes SET text = $4 WHERE notebook_id = $1 AND kind = $2 AND id = $3`,
		notebookID, string(kind), noteID, text)
	if err != nil {
		return fmt.Errorf("update note: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return r.touch(ctx, notebookID)
}

// DeleteNote removes a note.
func (r *NotebookRepo) DeleteNote(ctx context.Context, notebookID string, kind store.NoteKind, noteID string) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM notebook_notes WHERE notebook_id = $1 AND kind = $2 AND id = $3`,
		notebookID, string(kind), noteID)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return r.touch(ctx, notebookID)
}

func (r *NotebookRepo) insertNote(ctx context.Context, notebookID string, kind store.NoteKind, note store.Note) error {
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO notebook_notes (notebook_id, kind, id, text, ts)
		SELECT $1, $2, $3, $4, $5 WHERE EXISTS (SELECT 1 FROM notebooks WHERE id = $1)`,
		notebookID, string(kind), note.ID, note.Text, note.Timestamp)
	if err != nil {
		return fmt.Errorf("insert note: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *NotebookRepo) touch(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, `UPDATE notebooks SET updated_at = $2 WHERE id = $1`, id, r.now()); err != nil {
		return fmt.Errorf("touch notebook: %w", err)
	}
	return nil
}

func (r *NotebookRepo) loadNotes(ctx context.Context, ids []string, byID map[string]*store.Notebook) error {
	rows, err := r.pool.Query(ctx,
		`SELECT notebook_id, kind, id, text, ts FROM notebook_notes
		WHERE notebook_id = ANY($1)
		ORDER BY ts, id`, ids)
	if err != nil {
		return fmt.Errorf("load notes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			notebookID, kind string
			note             store.Note
		)
		if err := rows.Scan(&notebookID, &kind, &note.ID, &note.Text, &note.Timestamp); err != nil {
			return fmt.Errorf("failed to scan note row: %w", err)
		}
		nb, ok := byID[notebookID]
		if !ok {
			continue
		}
		if list := nb.Notes(store.NoteKind(kind)); list != nil {
			*list = append(*list, note)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load notes: %w", err)
	}
	return nil
}

func scanNotebook(row pgx.Row) (store.Notebook, error) {
	var nb store.Notebook
	err := row.Scan(
		&nb.ID,
		&nb.ProjectName,
		&nb.Date,
		&nb.Researchers,
		&nb.UserCohorts,
		&nb.Methodology,
		&nb.AudioFileCount,
		&nb.DriveFolderID,
		&nb.DriveFolderURL,
		&nb.CreatedAt,
		&nb.UpdatedAt,
	)
	return nb, err
}
