package vectorstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// PgvectorIndex searches a Postgres table with a pgvector "embedding" column by cosine distance.
type PgvectorIndex struct {
	db         *bun.DB
	table      string
	dimensions int
}

func OpenPgvectorIndex(cfg Config) (*PgvectorIndex, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("vectorstore: dsn is required")
	}
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return NewPgvectorIndex(bun.NewDB(sqldb, pgdialect.New()), cfg.Table, cfg.Dimensions), nil
}

func NewPgvectorIndex(db *bun.DB, table string, dimensions int) *PgvectorIndex {
	table = strings.TrimSpace(table)
	if table == "" {
		table = "business_knowledge"
	}
	if dimensions <= 0 {
		dimensions = 1536
	}
	return &PgvectorIndex{db: db, table: table, dimensions: dimensions}
}

func (x *PgvectorIndex) Close() error {
	return x.db.Close()
}

// CreateSchema installs the vector extension and the knowledge table.
func (x *PgvectorIndex) CreateSchema(ctx context.Context) error {
	if _, err := x.db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("create extension: %w", err)
	}
	_, err := x.db.NewRaw(fmt.Sprintf(`CREATE TABLE IF NOT EXISTS ? (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL DEFAULT '',
  content TEXT NOT NULL,
  source TEXT NOT NULL DEFAULT '',
  embedding vector(%d) NOT NULL
)`, x.dimensions), bun.Ident(x.table)).Exec(ctx)
	if err != nil {
		return fmt.Errorf("create knowledge table: %w", err)
	}
	return nil
}

func (x *PgvectorIndex) Nearest(ctx context.Context, vector []float32, k int) ([]Document, error) {
	if len(vector) != x.dimensions {
		return nil, fmt.Errorf("vector has %d dimensions, index expects %d", len(vector), x.dimensions)
	}
	lit := formatVector(vector)

	var docs []Document
	err := x.db.NewRaw(`
SELECT id, title, content, source, 1 - (embedding <=> ?::vector) AS score
FROM ?
ORDER BY embedding <=> ?::vector
LIMIT ?`, lit, bun.Ident(x.table), lit, k).Scan(ctx, &docs)
	if err != nil {
		return nil, err
	}
	return docs, nil
}
