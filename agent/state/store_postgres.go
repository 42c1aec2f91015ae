package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

type threadRow struct {
	bun.BaseModel `bun:"table:conversation_threads"`

	ThreadKey string    `bun:"thread_key,pk"`
	Version   int64     `bun:"version,notnull"`
	Doc       string    `bun:"doc,type:jsonb,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

type checkpointRow struct {
	bun.BaseModel `bun:"table:thread_checkpoints"`

	ID           int64     `bun:"id,pk,autoincrement"`
	CheckpointID string    `bun:"checkpoint_id,unique,notnull"`
	ThreadKey    string    `bun:"thread_key,notnull"`
	Version      int64     `bun:"version,notnull"`
	Iteration    int       `bun:"iteration,notnull"`
	Kind         string    `bun:"kind,notnull"`
	Body         string    `bun:"body,type:jsonb,notnull"`
	CreatedAt    time.Time `bun:"created_at,notnull"`
}

// PostgresStore persists threads in Postgres through bun.
type PostgresStore struct {
	db *bun.DB
}

func OpenPostgresStore(dsn string) (*PostgresStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return NewPostgresStore(bun.NewDB(sqldb, pgdialect.New())), nil
}

func NewPostgresStore(db *bun.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// CreateSchema creates the thread and checkpoint tables if they do not exist.
func (s *PostgresStore) CreateSchema(ctx context.Context) error {
	models := []any{(*threadRow)(nil), (*checkpointRow)(nil)}
	for _, m := range models {
		if _, err := s.db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	_, err := s.db.NewCreateIndex().
		Model((*checkpointRow)(nil)).
		Index("idx_thread_checkpoints_thread").
		Column("thread_key", "id").
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, threadKey string) (*ConversationThread, error) {
	key, err := validateKey(threadKey)
	if err != nil {
		return nil, err
	}

	var row threadRow
	err = s.db.NewSelect().Model(&row).Where("thread_key = ?", key).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load thread: %w", err)
	}
	return decodeThread([]byte(row.Doc), row.Version)
}

func (s *PostgresStore) CompareAndSave(ctx context.Context, th *ConversationThread, expectedVersion int64) (int64, error) {
	key, payload, next, err := prepareForSave(th, expectedVersion)
	if err != nil {
		return 0, err
	}
	row := threadRow{
		ThreadKey: key,
		Version:   next,
		Doc:       string(payload),
		UpdatedAt: time.Now().UTC(),
	}

	var res sql.Result
	if expectedVersion == 0 {
		res, err = s.db.NewInsert().
			Model(&row).
			On("CONFLICT (thread_key) DO NOTHING").
			Exec(ctx)
	} else {
		res, err = s.db.NewUpdate().
			Model(&row).
			Column("version", "doc", "updated_at").
			Where("thread_key = ?", key).
			Where("version = ?", expectedVersion).
			Exec(ctx)
	}
	if err != nil {
		return 0, fmt.Errorf("save thread: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("save thread: %w", err)
	}
	if n == 0 {
		return 0, ErrVersionConflict
	}
	return next, nil
}

func (s *PostgresStore) AppendCheckpoints(ctx context.Context, threadKey string, cps []Checkpoint) error {
	key, err := validateKey(threadKey)
	if err != nil {
		return err
	}
	if len(cps) == 0 {
		return nil
	}

	rows := make([]checkpointRow, 0, len(cps))
	for _, cp := range cps {
		raw, err := json.Marshal(cp)
		if err != nil {
			return fmt.Errorf("marshal checkpoint: %w", err)
		}
		rows = append(rows, checkpointRow{
			CheckpointID: cp.ID,
			ThreadKey:    key,
			Version:      cp.Version,
			Iteration:    cp.Iteration,
			Kind:         string(cp.Kind),
			Body:         string(raw),
			CreatedAt:    cp.At.UTC(),
		})
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().
			Model(&rows).
			On("CONFLICT (checkpoint_id) DO NOTHING").
			Exec(ctx); err != nil {
			return fmt.Errorf("insert checkpoints: %w", err)
		}

		keep := tx.NewSelect().
			Model((*checkpointRow)(nil)).
			Column("id").
			Where("thread_key = ?", key).
			OrderExpr("id DESC").
			Limit(defaultCheckpointRetention)
		if _, err := tx.NewDelete().
			Model((*checkpointRow)(nil)).
			Where("thread_key = ?", key).
			Where("id NOT IN (?)", keep).
			Exec(ctx); err != nil {
			return fmt.Errorf("prune checkpoints: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) ListCheckpoints(ctx context.Context, threadKey string, limit int) ([]Checkpoint, error) {
	key, err := validateKey(threadKey)
	if err != nil {
		return nil, err
	}

	var rows []checkpointRow
	err = s.db.NewSelect().
		Model(&rows).
		Where("thread_key = ?", key).
		OrderExpr("id DESC").
		Limit(normalizeLimit(limit)).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}

	out := make([]Checkpoint, len(rows))
	for i, row := range rows {
		var cp Checkpoint
		if err := json.Unmarshal([]byte(row.Body), &cp); err != nil {
			return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
		}
		out[len(rows)-1-i] = cp
	}
	return out, nil
}
