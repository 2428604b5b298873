package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/lvyanru/hitl-chat/internal/domain"
	"github.com/lvyanru/hitl-chat/internal/domain/entity"
)

const defaultMySQLTable = "chat_checkpoints"

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,63}$`)

// MySQLStore checkpoint store backed by one MySQL table.
type MySQLStore struct {
	db    *sql.DB
	table string
}

// NewMySQLStore creates the table when missing.
func NewMySQLStore(ctx context.Context, db *sql.DB, table string) (*MySQLStore, error) {
	if table == "" {
		table = defaultMySQLTable
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid checkpoint table name %q", table)
	}

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	thread_id VARCHAR(128) NOT NULL PRIMARY KEY,
	state LONGTEXT NOT NULL,
	updated_at DATETIME(3) NOT NULL
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`, table)
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint table: %w", err)
	}

	return &MySQLStore{db: db, table: table}, nil
}

func (s *MySQLStore) Get(ctx context.Context, threadID string) (*entity.ExecutionState, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT state FROM %s WHERE thread_id = ?", s.table), threadID,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("thread", threadID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	return decodeState([]byte(data))
}

func (s *MySQLStore) Put(ctx context.Context, threadID string, state *entity.ExecutionState) error {
	data, err := encodeState(state)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (thread_id, state, updated_at) VALUES (?, ?, ?)
ON DUPLICATE KEY UPDATE state = VALUES(state), updated_at = VALUES(updated_at)`, s.table),
		threadID, string(data), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	return nil
}

func (s *MySQLStore) Delete(ctx context.Context, threadID string) error {
	if _, err := s.db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE thread_id = ?", s.table), threadID,
	); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

func (s *MySQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *MySQLStore) Close() error {
	return s.db.Close()
}
