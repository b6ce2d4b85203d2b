package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"collab-docs/pkg/delta"
)

// Postgres is a Store over two tables. Deltas are stored as JSONB and the
// operations table carries a (doc_id, version) primary key, so duplicate
// log appends surface as conflict-free no-op inserts.
type Postgres struct {
	db *sqlx.DB
}

// NewPostgres wraps an open sqlx handle.
func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS documents (
	id            TEXT PRIMARY KEY,
	title         TEXT NOT NULL DEFAULT '',
	content       JSONB NOT NULL DEFAULT '[]',
	version       BIGINT NOT NULL DEFAULT 0,
	created_by    TEXT NOT NULL DEFAULT '',
	collaborators TEXT[] NOT NULL DEFAULT '{}',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS operations (
	doc_id  TEXT NOT NULL,
	version BIGINT NOT NULL,
	delta   JSONB NOT NULL,
	user_id TEXT NOT NULL DEFAULT '',
	conn_id TEXT NOT NULL DEFAULT '',
	ts      TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (doc_id, version)
);`

// Bootstrap creates the schema if it does not exist.
func (p *Postgres) Bootstrap(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, postgresSchema)
	return errors.Wrap(err, "creating schema")
}

type pgDocument struct {
	ID            string         `db:"id"`
	Title         string         `db:"title"`
	Content       []byte         `db:"content"`
	Version       int            `db:"version"`
	CreatedBy     string         `db:"created_by"`
	Collaborators pq.StringArray `db:"collaborators"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

func (p *Postgres) Create(ctx context.Context, doc *Document) error {
	content, err := json.Marshal(doc.Content)
	if err != nil {
		return errors.Wrap(err, "encoding content")
	}
	now := time.Now()
	createdAt, updatedAt := doc.CreatedAt, doc.UpdatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	if updatedAt.IsZero() {
		updatedAt = now
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO documents (id, title, content, version, created_by, collaborators, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		doc.ID, doc.Title, content, doc.Version, doc.CreatedBy,
		pq.StringArray(doc.Collaborators), createdAt, updatedAt)
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code.Name() == "unique_violation" {
		return ErrExists
	}
	return errors.Wrap(err, "inserting document")
}

func (p *Postgres) Load(ctx context.Context, docID string) (*Document, error) {
	var row pgDocument
	err := p.db.GetContext(ctx, &row, `
		SELECT id, title, content, version, created_by, collaborators, created_at, updated_at
		FROM documents WHERE id = $1`, docID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "loading document")
	}
	doc := &Document{
		ID:            row.ID,
		Title:         row.Title,
		Version:       row.Version,
		CreatedBy:     row.CreatedBy,
		Collaborators: row.Collaborators,
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
	}
	if err := json.Unmarshal(row.Content, &doc.Content); err != nil {
		return nil, errors.Wrap(err, "decoding content")
	}
	return doc, nil
}

type pgOp struct {
	DocID   string    `db:"doc_id"`
	Version int       `db:"version"`
	Delta   []byte    `db:"delta"`
	UserID  string    `db:"user_id"`
	ConnID  string    `db:"conn_id"`
	Ts      time.Time `db:"ts"`
}

func (p *Postgres) OpsSince(ctx context.Context, docID string, fromVersion int) ([]OpLogEntry, error) {
	var rows []pgOp
	err := p.db.SelectContext(ctx, &rows, `
		SELECT doc_id, version, delta, user_id, conn_id, ts
		FROM operations WHERE doc_id = $1 AND version > $2
		ORDER BY version ASC`, docID, fromVersion)
	if err != nil {
		return nil, errors.Wrap(err, "querying operations")
	}
	out := make([]OpLogEntry, 0, len(rows))
	for _, r := range rows {
		entry := OpLogEntry{
			DocID:     r.DocID,
			Version:   r.Version,
			UserID:    r.UserID,
			ConnID:    r.ConnID,
			Timestamp: r.Ts,
		}
		if err := json.Unmarshal(r.Delta, &entry.Delta); err != nil {
			return nil, errors.Wrapf(err, "decoding delta at version %d", r.Version)
		}
		out = append(out, entry)
	}
	return out, nil
}

func (p *Postgres) Commit(ctx context.Context, docID string, expectedVersion int, newContent delta.Delta, newVersion int) error {
	if err := checkVersions(expectedVersion, newVersion); err != nil {
		return err
	}
	content, err := json.Marshal(newContent)
	if err != nil {
		return errors.Wrap(err, "encoding content")
	}
	res, err := p.db.ExecContext(ctx, `
		UPDATE documents SET content = $1, version = $2, updated_at = now()
		WHERE id = $3 AND version = $4`,
		content, newVersion, docID, expectedVersion)
	if err != nil {
		return errors.Wrap(err, "committing document")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "reading commit result")
	}
	if n == 0 {
		var exists bool
		if err := p.db.GetContext(ctx, &exists,
			`SELECT EXISTS (SELECT 1 FROM documents WHERE id = $1)`, docID); err != nil {
			return errors.Wrap(err, "checking document existence")
		}
		if !exists {
			return ErrNotFound
		}
		return ErrConflict
	}
	return nil
}

func (p *Postgres) AppendLog(ctx context.Context, entry OpLogEntry) error {
	d, err := json.Marshal(entry.Delta)
	if err != nil {
		return errors.Wrap(err, "encoding delta")
	}
	res, err := p.db.ExecContext(ctx, `
		INSERT INTO operations (doc_id, version, delta, user_id, conn_id, ts)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (doc_id, version) DO NOTHING`,
		entry.DocID, entry.Version, d, entry.UserID, entry.ConnID, entry.Timestamp)
	if err != nil {
		return errors.Wrap(err, "appending log entry")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "reading append result")
	}
	if n == 0 {
		return ErrDuplicate
	}
	return nil
}
