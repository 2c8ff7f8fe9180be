// Package journal records scene operations in a SQLite database.
package journal

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/utils"
	_ "modernc.org/sqlite"

	"github.com/capturescene/capturescene/scene"
)

const schema = `
	CREATE TABLE IF NOT EXISTS operations (
		id            TEXT PRIMARY KEY,
		kind          TEXT NOT NULL,
		name          TEXT NOT NULL,
		points        BIGINT,
		vertices      BIGINT,
		triangles     BIGINT,
		error         TEXT,
		started_at_ns BIGINT NOT NULL,
		duration_ns   BIGINT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS operations_started ON operations (started_at_ns);
`

// DefaultLimit is the number of entries List returns when no limit is given.
const DefaultLimit = 100

// Journal is a scene.Recorder backed by SQLite.
type Journal struct {
	db *sql.DB
}

var _ scene.Recorder = (*Journal)(nil)

// Open opens or creates the journal at path. ":memory:" gives a private
// in-memory journal.
func Open(path string) (*Journal, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, errors.Wrapf(err, "cannot create journal directory for %q", path)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open journal %q", path)
	}
	// a single connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		utils.UncheckedError(db.Close())
		return nil, errors.Wrap(err, "cannot create journal schema")
	}
	return &Journal{db: db}, nil
}

// Record inserts op.
func (j *Journal) Record(ctx context.Context, op scene.Operation) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO operations (
			id, kind, name, points, vertices, triangles, error, started_at_ns, duration_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		op.ID, string(op.Kind), op.Name, op.Points, op.Vertices, op.Triangles,
		op.Error, op.StartedAt.UnixNano(), int64(op.Duration),
	)
	return errors.Wrap(err, "cannot record operation")
}

// Query filters List.
type Query struct {
	// Kind restricts results to one kind when set.
	Kind  scene.OperationKind
	Limit int
}

// List returns the most recent operations first.
func (j *Journal) List(ctx context.Context, q Query) ([]scene.Operation, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, kind, name, points, vertices, triangles, error, started_at_ns, duration_ns
		FROM operations
		WHERE ? = '' OR kind = ?
		ORDER BY started_at_ns DESC, rowid DESC
		LIMIT ?`,
		string(q.Kind), string(q.Kind), limit,
	)
	if err != nil {
		return nil, errors.Wrap(err, "cannot list operations")
	}
	defer func() {
		utils.UncheckedError(rows.Close())
	}()

	var ops []scene.Operation
	for rows.Next() {
		var (
			op                  scene.Operation
			kind                string
			startedNs, duration int64
		)
		if err := rows.Scan(&op.ID, &kind, &op.Name, &op.Points, &op.Vertices, &op.Triangles,
			&op.Error, &startedNs, &duration); err != nil {
			return nil, errors.Wrap(err, "cannot read operation")
		}
		op.Kind = scene.OperationKind(kind)
		op.StartedAt = time.Unix(0, startedNs).UTC()
		op.Duration = time.Duration(duration)
		ops = append(ops, op)
	}
	return ops, errors.Wrap(rows.Err(), "cannot list operations")
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}
