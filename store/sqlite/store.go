package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"go.uber.org/zap"

	"github.com/ebogdum/vizgate/metrics"
	"github.com/ebogdum/vizgate/store"
)

type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
CREATE TABLE IF NOT EXISTS platforms (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    platform TEXT NOT NULL,
    code TEXT NOT NULL,
    check_code TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    metadata TEXT NOT NULL DEFAULT '{}',
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_platforms_code ON platforms(code);

CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    username TEXT NOT NULL UNIQUE,
    email TEXT NOT NULL DEFAULT '',
    name TEXT NOT NULL DEFAULT '',
    admin INTEGER NOT NULL DEFAULT 0,
    active INTEGER NOT NULL DEFAULT 1,
    created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
);
`
	for _, t := range store.EntityTables {
		scope := ""
		if t.ScopeColumn != "" {
			scope = fmt.Sprintf("\n    %s INTEGER,", t.ScopeColumn)
		}
		schema += fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    %[2]s TEXT NOT NULL,%[3]s
    created_at TEXT NOT NULL DEFAULT (strftime('%%Y-%%m-%%dT%%H:%%M:%%fZ', 'now'))
);

CREATE INDEX IF NOT EXISTS idx_%[1]s_name ON %[1]s(%[2]s);
`, t.Table, t.NameField(), scope)
	}

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize sqlite schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetPlatformsByCode(ctx context.Context, code string) ([]*store.Platform, error) {
	defer observe("get_platforms_by_code", time.Now())

	query := `
		SELECT id, name, platform, code, check_code, description, metadata, created_at
		FROM platforms
		WHERE code = ?
		ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query, code)
	if err != nil {
		return nil, fmt.Errorf("failed to query platforms: %w", err)
	}
	defer rows.Close()

	var platforms []*store.Platform
	for rows.Next() {
		var p store.Platform
		var platformType, rawMetadata, createdAt string
		if err := rows.Scan(&p.ID, &p.Name, &platformType, &p.Code, &p.CheckCode, &p.Description, &rawMetadata, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan platform: %w", err)
		}
		p.Type = store.PlatformType(platformType)
		p.CreatedAt = parseTimestamp(createdAt)
		if rawMetadata != "" {
			if err := json.Unmarshal([]byte(rawMetadata), &p.Metadata); err != nil {
				s.logger.Warn("Ignoring malformed platform metadata",
					zap.Int64("platform_id", p.ID), zap.Error(err))
			}
		}
		platforms = append(platforms, &p)
	}

	return platforms, rows.Err()
}

func (s *SQLiteStore) CreatePlatform(ctx context.Context, p *store.Platform) error {
	defer observe("create_platform", time.Now())

	rawMetadata, err := json.Marshal(p.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode platform metadata: %w", err)
	}
	if p.Metadata == nil {
		rawMetadata = []byte("{}")
	}
	p.CreatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO platforms (name, platform, code, check_code, description, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.Name,
		string(p.Type),
		p.Code,
		p.CheckCode,
		p.Description,
		string(rawMetadata),
		p.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to create platform: %w", err)
	}

	if id, err := result.LastInsertId(); err == nil {
		p.ID = id
	}
	return nil
}

func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	defer observe("get_user_by_username", time.Now())

	query := `
		SELECT id, username, email, name, admin, active, created_at
		FROM users
		WHERE username = ?`

	var u store.User
	var createdAt string
	err := s.db.QueryRowContext(ctx, query, username).Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.Name,
		&u.Admin,
		&u.Active,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	u.CreatedAt = parseTimestamp(createdAt)

	return &u, nil
}

func (s *SQLiteStore) CreateUser(ctx context.Context, u *store.User) error {
	defer observe("create_user", time.Now())

	u.CreatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, email, name, admin, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		u.Username,
		u.Email,
		u.Name,
		u.Admin,
		u.Active,
		u.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: users.username") {
			return store.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	if id, err := result.LastInsertId(); err == nil {
		u.ID = id
	}
	return nil
}

func (s *SQLiteStore) EntityNameExists(ctx context.Context, table store.EntityTable, name string, excludeID, scopeID *int64) (bool, error) {
	defer observe("entity_name_exists", time.Now())

	query, args := store.BuildEntityExistsQuery(table, name, excludeID, scopeID, store.QuestionMark)

	var one int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check %s name: %w", table.Table, err)
	}
	return true, nil
}

func (s *SQLiteStore) CreateEntity(ctx context.Context, table store.EntityTable, name string, scopeID *int64) (int64, error) {
	defer observe("create_entity", time.Now())

	query, args := store.BuildEntityInsertQuery(table, name, scopeID, store.QuestionMark)
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s entity: %w", table.Table, err)
	}
	return result.LastInsertId()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func observe(operation string, start time.Time) {
	metrics.StoreQueriesTotal.WithLabelValues("sqlite", operation).Inc()
	metrics.StoreQueryDuration.WithLabelValues("sqlite", operation).Observe(time.Since(start).Seconds())
}

func parseTimestamp(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
