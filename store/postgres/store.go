package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/ebogdum/vizgate/metrics"
	"github.com/ebogdum/vizgate/store"
)

// uniqueViolation is the PostgreSQL error code for unique constraint failures
const uniqueViolation = "23505"

// PostgresStore implements the store.Store interface using PostgreSQL
type PostgresStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresStore creates a new PostgreSQL credential store
func NewPostgresStore(dsn string, logger *zap.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{
		db:     db,
		logger: logger,
	}, nil
}

// GetPlatformsByCode returns all platforms for an auth code, oldest first
func (s *PostgresStore) GetPlatformsByCode(ctx context.Context, code string) ([]*store.Platform, error) {
	defer observe("get_platforms_by_code", time.Now())

	rows, err := s.db.QueryContext(ctx, _SQL_GET_PLATFORMS_BY_CODE, code)
	if err != nil {
		return nil, fmt.Errorf("failed to query platforms: %w", err)
	}
	defer rows.Close()

	var platforms []*store.Platform
	for rows.Next() {
		var p store.Platform
		var platformType string
		var rawMetadata []byte
		if err := rows.Scan(&p.ID, &p.Name, &platformType, &p.Code, &p.CheckCode, &p.Description, &rawMetadata, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan platform: %w", err)
		}
		p.Type = store.PlatformType(platformType)
		if len(rawMetadata) > 0 {
			if err := json.Unmarshal(rawMetadata, &p.Metadata); err != nil {
				s.logger.Warn("Ignoring malformed platform metadata",
					zap.Int64("platform_id", p.ID), zap.Error(err))
			}
		}
		platforms = append(platforms, &p)
	}

	return platforms, rows.Err()
}

// CreatePlatform registers a new platform
func (s *PostgresStore) CreatePlatform(ctx context.Context, p *store.Platform) error {
	defer observe("create_platform", time.Now())

	rawMetadata := []byte("{}")
	if p.Metadata != nil {
		encoded, err := json.Marshal(p.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode platform metadata: %w", err)
		}
		rawMetadata = encoded
	}

	err := s.db.QueryRowContext(ctx, _SQL_CREATE_PLATFORM,
		p.Name, string(p.Type), p.Code, p.CheckCode, p.Description, rawMetadata,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create platform: %w", err)
	}
	return nil
}

// GetUserByUsername returns a user or store.ErrNotFound
func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	defer observe("get_user_by_username", time.Now())

	var u store.User
	err := s.db.QueryRowContext(ctx, _SQL_GET_USER_BY_USERNAME, username).Scan(
		&u.ID, &u.Username, &u.Email, &u.Name, &u.Admin, &u.Active, &u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// CreateUser registers a new user
func (s *PostgresStore) CreateUser(ctx context.Context, u *store.User) error {
	defer observe("create_user", time.Now())

	err := s.db.QueryRowContext(ctx, _SQL_CREATE_USER,
		u.Username, u.Email, u.Name, u.Admin, u.Active,
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return store.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// EntityNameExists probes an entity table for a name
func (s *PostgresStore) EntityNameExists(ctx context.Context, table store.EntityTable, name string, excludeID, scopeID *int64) (bool, error) {
	defer observe("entity_name_exists", time.Now())

	query, args := store.BuildEntityExistsQuery(table, name, excludeID, scopeID, store.Dollar)

	var one int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check %s name: %w", table.Table, err)
	}
	return true, nil
}

// CreateEntity records a named entity
func (s *PostgresStore) CreateEntity(ctx context.Context, table store.EntityTable, name string, scopeID *int64) (int64, error) {
	defer observe("create_entity", time.Now())

	query, args := store.BuildEntityInsertQuery(table, name, scopeID, store.Dollar)

	var id int64
	if err := s.db.QueryRowContext(ctx, query+" RETURNING id", args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to create %s entity: %w", table.Table, err)
	}
	return id, nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func observe(operation string, start time.Time) {
	metrics.StoreQueriesTotal.WithLabelValues("postgres", operation).Inc()
	metrics.StoreQueryDuration.WithLabelValues("postgres", operation).Observe(time.Since(start).Seconds())
}
