// Package store provides the credential store used by the request gate and the
// name uniqueness checks. Platforms are looked up by auth code and users by username.
// Implementations exist for SQLite, PostgreSQL and Redis.
package store

import (
	"context"
	"errors"
	"time"
)

// Common store errors
var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyExists = errors.New("record already exists")
)

// PlatformType names the authentication strategy a platform uses
type PlatformType string

const (
	PlatformTrusted PlatformType = "trusted"
	PlatformSigned  PlatformType = "signed"
)

// Platform identifies an external caller integrating with the application
type Platform struct {
	ID          int64             `json:"id"`
	Name        string            `json:"name"`
	Type        PlatformType      `json:"platform"`
	Code        string            `json:"code"`
	CheckCode   string            `json:"-"`
	Description string            `json:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// User is an authenticated principal
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	Name      string    `json:"name,omitempty"`
	Admin     bool      `json:"admin"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// EntityTable describes where names of one entity kind live.
// ScopeColumn is empty for kinds whose names are globally unique.
type EntityTable struct {
	Table       string
	NameColumn  string
	ScopeColumn string
}

// NameField returns the column holding the entity name
func (t EntityTable) NameField() string {
	if t.NameColumn == "" {
		return "name"
	}
	return t.NameColumn
}

// Entity tables known to every store implementation. Table and column names are
// only ever taken from this list, never from request input.
var (
	UsersTable           = EntityTable{Table: "users", NameColumn: "username"}
	OrganizationsTable   = EntityTable{Table: "organizations"}
	ProjectsTable        = EntityTable{Table: "projects", ScopeColumn: "org_id"}
	SourcesTable         = EntityTable{Table: "sources", ScopeColumn: "project_id"}
	ViewsTable           = EntityTable{Table: "views", ScopeColumn: "project_id"}
	WidgetsTable         = EntityTable{Table: "widgets", ScopeColumn: "project_id"}
	DisplaysTable        = EntityTable{Table: "displays", ScopeColumn: "project_id"}
	DashboardPortalTable = EntityTable{Table: "dashboard_portals", ScopeColumn: "project_id"}
	DashboardsTable      = EntityTable{Table: "dashboards", ScopeColumn: "portal_id"}
	CronJobsTable        = EntityTable{Table: "cron_jobs", ScopeColumn: "project_id"}
	RolesTable           = EntityTable{Table: "roles", ScopeColumn: "org_id"}
)

// EntityTables lists every entity table, used by schema setup.
var EntityTables = []EntityTable{
	OrganizationsTable,
	ProjectsTable,
	SourcesTable,
	ViewsTable,
	WidgetsTable,
	DisplaysTable,
	DashboardPortalTable,
	DashboardsTable,
	CronJobsTable,
	RolesTable,
}

// Store defines the interface for credential storage operations
type Store interface {
	// GetPlatformsByCode returns all platforms registered under an auth code, ordered by id
	GetPlatformsByCode(ctx context.Context, code string) ([]*Platform, error)

	// CreatePlatform registers a new platform
	CreatePlatform(ctx context.Context, p *Platform) error

	// GetUserByUsername returns the user with the given username or ErrNotFound
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// CreateUser registers a new user
	CreateUser(ctx context.Context, u *User) error

	// EntityNameExists reports whether name is used in table by an entity other than
	// excludeID, restricted to scopeID when the table is scoped and scopeID is set
	EntityNameExists(ctx context.Context, table EntityTable, name string, excludeID, scopeID *int64) (bool, error)

	// CreateEntity records a named entity, returning its id
	CreateEntity(ctx context.Context, table EntityTable, name string, scopeID *int64) (int64, error)

	// Close closes the store connection
	Close() error
}
