package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/ebogdum/vizgate/metrics"
	"github.com/ebogdum/vizgate/store"
)

// RedisStore keeps platforms as JSON lists keyed by auth code, users as JSON
// documents keyed by username, and entity names in one hash per table.
type RedisStore struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// entityRef is one holder of a name inside an entity table hash
type entityRef struct {
	ID    int64  `json:"id"`
	Scope *int64 `json:"scope,omitempty"`
}

func NewRedisStore(addr, password string, db int, prefix string, logger *zap.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis credential store: %w", err)
	}

	return newWithClient(client, prefix, logger), nil
}

func newWithClient(client *redis.Client, prefix string, logger *zap.Logger) *RedisStore {
	if prefix == "" {
		prefix = "vizgate:"
	}
	return &RedisStore{client: client, prefix: prefix, logger: logger}
}

func (s *RedisStore) GetPlatformsByCode(ctx context.Context, code string) ([]*store.Platform, error) {
	defer observe("get_platforms_by_code", time.Now())

	raws, err := s.client.LRange(ctx, s.platformKey(code), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query platforms: %w", err)
	}

	platforms := make([]*store.Platform, 0, len(raws))
	for _, raw := range raws {
		var rec platformRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("failed to decode platform: %w", err)
		}
		p := rec.Platform
		p.CheckCode = rec.CheckCode
		platforms = append(platforms, &p)
	}
	return platforms, nil
}

func (s *RedisStore) CreatePlatform(ctx context.Context, p *store.Platform) error {
	defer observe("create_platform", time.Now())

	id, err := s.client.Incr(ctx, s.sequenceKey("platform")).Result()
	if err != nil {
		return fmt.Errorf("failed to allocate platform id: %w", err)
	}
	p.ID = id
	p.CreatedAt = time.Now().UTC()

	raw, err := json.Marshal(platformRecord{Platform: *p, CheckCode: p.CheckCode})
	if err != nil {
		return fmt.Errorf("failed to encode platform: %w", err)
	}

	// RPUSH keeps ids ascending within a code, matching the SQL stores' ordering
	if err := s.client.RPush(ctx, s.platformKey(p.Code), raw).Err(); err != nil {
		return fmt.Errorf("failed to create platform: %w", err)
	}
	return nil
}

func (s *RedisStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	defer observe("get_user_by_username", time.Now())

	raw, err := s.client.Get(ctx, s.userKey(username)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	var u store.User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return nil, fmt.Errorf("failed to decode user: %w", err)
	}
	return &u, nil
}

func (s *RedisStore) CreateUser(ctx context.Context, u *store.User) error {
	defer observe("create_user", time.Now())

	id, err := s.client.Incr(ctx, s.sequenceKey("user")).Result()
	if err != nil {
		return fmt.Errorf("failed to allocate user id: %w", err)
	}
	u.ID = id
	u.CreatedAt = time.Now().UTC()

	raw, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("failed to encode user: %w", err)
	}

	stored, err := s.client.SetNX(ctx, s.userKey(u.Username), raw, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	if !stored {
		return store.ErrAlreadyExists
	}

	return s.addName(ctx, store.UsersTable, u.Username, entityRef{ID: id})
}

func (s *RedisStore) EntityNameExists(ctx context.Context, table store.EntityTable, name string, excludeID, scopeID *int64) (bool, error) {
	defer observe("entity_name_exists", time.Now())

	refs, err := s.names(ctx, table, name)
	if err != nil {
		return false, err
	}

	for _, ref := range refs {
		if excludeID != nil && ref.ID == *excludeID {
			continue
		}
		if table.ScopeColumn != "" && scopeID != nil && (ref.Scope == nil || *ref.Scope != *scopeID) {
			continue
		}
		return true, nil
	}
	return false, nil
}

func (s *RedisStore) CreateEntity(ctx context.Context, table store.EntityTable, name string, scopeID *int64) (int64, error) {
	defer observe("create_entity", time.Now())

	id, err := s.client.Incr(ctx, s.sequenceKey(table.Table)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to allocate %s id: %w", table.Table, err)
	}

	ref := entityRef{ID: id}
	if table.ScopeColumn != "" {
		ref.Scope = scopeID
	}
	if err := s.addName(ctx, table, name, ref); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// platformRecord persists the check code, which is hidden from JSON responses
type platformRecord struct {
	store.Platform
	CheckCode string `json:"check_code"`
}

func (s *RedisStore) names(ctx context.Context, table store.EntityTable, name string) ([]entityRef, error) {
	raw, err := s.client.HGet(ctx, s.namesKey(table), name).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to check %s name: %w", table.Table, err)
	}

	var refs []entityRef
	if err := json.Unmarshal([]byte(raw), &refs); err != nil {
		return nil, fmt.Errorf("failed to decode %s names: %w", table.Table, err)
	}
	return refs, nil
}

func (s *RedisStore) addName(ctx context.Context, table store.EntityTable, name string, ref entityRef) error {
	refs, err := s.names(ctx, table, name)
	if err != nil {
		return err
	}
	refs = append(refs, ref)

	raw, err := json.Marshal(refs)
	if err != nil {
		return fmt.Errorf("failed to encode %s names: %w", table.Table, err)
	}
	if err := s.client.HSet(ctx, s.namesKey(table), name, raw).Err(); err != nil {
		return fmt.Errorf("failed to index %s name: %w", table.Table, err)
	}
	return nil
}

func (s *RedisStore) platformKey(code string) string {
	return s.prefix + "platform:code:" + code
}

func (s *RedisStore) userKey(username string) string {
	return s.prefix + "user:" + username
}

func (s *RedisStore) namesKey(table store.EntityTable) string {
	return s.prefix + "names:" + table.Table
}

func (s *RedisStore) sequenceKey(name string) string {
	return s.prefix + "seq:" + name
}

func observe(operation string, start time.Time) {
	metrics.StoreQueriesTotal.WithLabelValues("redis", operation).Inc()
	metrics.StoreQueryDuration.WithLabelValues("redis", operation).Observe(time.Since(start).Seconds())
}
