// Package store persists finished graph builds in SQLite so they can be
// projected again without re-running the build.
package store

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

	"codegraph/internal/graph"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

var ErrNotFound = errors.New("build not found")

const schema = `
CREATE TABLE IF NOT EXISTS builds (
    id TEXT PRIMARY KEY,
    entry_id TEXT NOT NULL,
    entry_name TEXT NOT NULL,
    entry_uri TEXT NOT NULL,
    entry_range TEXT NOT NULL,
    artifact_dir TEXT NOT NULL,
    node_count INTEGER NOT NULL,
    created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS nodes (
    build_id TEXT NOT NULL REFERENCES builds(id) ON DELETE CASCADE,
    seq INTEGER NOT NULL,
    id TEXT NOT NULL,
    failure INTEGER NOT NULL,
    body TEXT NOT NULL,
    PRIMARY KEY (build_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_builds_created ON builds(created_at);
`

// Build is one finished graph build.
type Build struct {
	ID          string        `json:"id"`
	EntryID     string        `json:"entryId"`
	EntryName   string        `json:"entryName"`
	Entry       graph.Locator `json:"entry"`
	ArtifactDir string        `json:"artifactDir"`
	NodeCount   int           `json:"nodeCount"`
	CreatedAt   time.Time     `json:"createdAt"`
	// Nodes is only populated by Get.
	Nodes *graph.NodeMap `json:"-"`
}

type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	// One writer keeps sqlite from returning SQLITE_BUSY under the MCP server.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores b and its nodes. An empty ID is filled with a new uuid.
func (s *Store) Save(ctx context.Context, b *Build) error {
	if b.Nodes == nil {
		return fmt.Errorf("build has no nodes")
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}
	b.NodeCount = b.Nodes.Len()

	rangeJSON, err := json.Marshal(b.Entry.Range)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
INSERT INTO builds (id, entry_id, entry_name, entry_uri, entry_range, artifact_dir, node_count, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.EntryID, b.EntryName, b.Entry.URI, string(rangeJSON), b.ArtifactDir, b.NodeCount, b.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert build: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO nodes (build_id, seq, id, failure, body) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, n := range b.Nodes.Nodes() {
		body, err := graph.MarshalNode(n)
		if err != nil {
			return err
		}
		_, isFail := n.(*graph.FailNode)
		if _, err := stmt.ExecContext(ctx, b.ID, i, n.NodeID(), isFail, string(body)); err != nil {
			return fmt.Errorf("insert node %s: %w", n.NodeID(), err)
		}
	}
	return tx.Commit()
}

// Get loads a build and its node map. id may be a unique prefix.
func (s *Store) Get(ctx context.Context, id string) (*Build, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrNotFound
	}
	rows, err := s.db.QueryContext(ctx, selectBuild+` WHERE id = ? OR id LIKE ? ORDER BY created_at DESC LIMIT 2`, id, id+"%")
	if err != nil {
		return nil, err
	}
	builds, err := scanBuilds(rows)
	if err != nil {
		return nil, err
	}
	if len(builds) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	b := builds[0]
	if len(builds) > 1 {
		if builds[1].ID == id {
			b = builds[1]
		} else if b.ID != id {
			return nil, fmt.Errorf("build id prefix %q is ambiguous", id)
		}
	}

	nodeRows, err := s.db.QueryContext(ctx, `SELECT body FROM nodes WHERE build_id = ? ORDER BY seq`, b.ID)
	if err != nil {
		return nil, err
	}
	defer nodeRows.Close()

	m := graph.NewNodeMap()
	for nodeRows.Next() {
		var body string
		if err := nodeRows.Scan(&body); err != nil {
			return nil, err
		}
		n, err := graph.UnmarshalNode([]byte(body))
		if err != nil {
			return nil, err
		}
		m.Insert(n)
	}
	if err := nodeRows.Err(); err != nil {
		return nil, err
	}
	b.Nodes = m
	return &b, nil
}

// List returns the most recent builds first. limit <= 0 means no limit.
func (s *Store) List(ctx context.Context, limit int) ([]Build, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, selectBuild+` ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return scanBuilds(rows)
}

// Delete removes a build and its nodes.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM builds WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

const selectBuild = `SELECT id, entry_id, entry_name, entry_uri, entry_range, artifact_dir, node_count, created_at FROM builds`

func scanBuilds(rows *sql.Rows) ([]Build, error) {
	defer rows.Close()
	var out []Build
	for rows.Next() {
		var (
			b         Build
			rangeJSON string
			created   int64
		)
		if err := rows.Scan(&b.ID, &b.EntryID, &b.EntryName, &b.Entry.URI, &rangeJSON, &b.ArtifactDir, &b.NodeCount, &created); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(rangeJSON), &b.Entry.Range); err != nil {
			return nil, fmt.Errorf("decode entry range: %w", err)
		}
		b.CreatedAt = time.UnixMilli(created)
		out = append(out, b)
	}
	return out, rows.Err()
}
