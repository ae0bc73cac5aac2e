// Package check answers whether a candidate name is already used by another
// entity of the same kind.
package check

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ebogdum/vizgate/metrics"
	"github.com/ebogdum/vizgate/store"
)

// Kind identifies the entity type whose names are checked
type Kind string

const (
	KindUser            Kind = "user"
	KindOrganization    Kind = "organization"
	KindProject         Kind = "project"
	KindSource          Kind = "source"
	KindView            Kind = "view"
	KindWidget          Kind = "widget"
	KindDisplay         Kind = "display"
	KindDashboardPortal Kind = "dashboard_portal"
	KindDashboard       Kind = "dashboard"
	KindCronJob         Kind = "cron_job"
	KindRole            Kind = "role"
)

// Result messages
const (
	MessageEmptyName   = "Name is empty"
	MessageUnsupported = "Not supported entity type"
)

// Request is a single name check. ID excludes the entity being updated and
// ScopeID restricts the check to one parent (organization, project or portal).
type Request struct {
	Kind    Kind
	Name    string
	ID      *int64
	ScopeID *int64
}

// Result is the uniform pass/fail answer. Token holds a refreshed bearer token
// when the kind refreshes tokens and the caller presented one.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Token   string `json:"token,omitempty"`
}

// ExistenceChecker reports whether name is taken for one entity kind
type ExistenceChecker interface {
	Exists(ctx context.Context, name string, id, scopeID *int64) (bool, error)
}

// TokenRefresher re-issues a bearer token
type TokenRefresher interface {
	Refresh(header string) (string, error)
}

// Checker dispatches name checks to the checker registered for each kind
type Checker struct {
	checkers map[Kind]ExistenceChecker
	tokens   TokenRefresher
	logger   *zap.Logger
}

// NewChecker creates a checker with no registered kinds
func NewChecker(tokens TokenRefresher, logger *zap.Logger) *Checker {
	return &Checker{
		checkers: make(map[Kind]ExistenceChecker),
		tokens:   tokens,
		logger:   logger,
	}
}

// NewStoreChecker registers every known kind against its store table
func NewStoreChecker(s NameStore, tokens TokenRefresher, logger *zap.Logger) *Checker {
	c := NewChecker(tokens, logger)
	for kind, table := range KindTables {
		c.Register(kind, &StoreExistenceChecker{store: s, table: table})
	}
	return c
}

// Register binds an existence checker to a kind
func (c *Checker) Register(kind Kind, checker ExistenceChecker) {
	c.checkers[kind] = checker
}

// Check validates req. Every kind except user pairs its result with a refresh
// of the bearer token in header; user never refreshes.
func (c *Checker) Check(ctx context.Context, req Request, header string) Result {
	res, label := c.check(ctx, req)
	kindLabel := string(req.Kind)
	if label == "unsupported" {
		kindLabel = "unknown"
	}
	metrics.NameChecksTotal.WithLabelValues(kindLabel, label).Inc()

	if req.Kind != KindUser {
		res.Token = c.refresh(header)
	}
	return res
}

func (c *Checker) check(ctx context.Context, req Request) (Result, string) {
	if strings.TrimSpace(req.Name) == "" {
		return Result{Message: MessageEmptyName}, "invalid"
	}

	checker, ok := c.checkers[req.Kind]
	if !ok {
		return Result{Message: MessageUnsupported}, "unsupported"
	}

	taken, err := checker.Exists(ctx, req.Name, req.ID, req.ScopeID)
	if err != nil {
		c.logger.Error("Failed to check name",
			zap.String("kind", string(req.Kind)), zap.Error(err))
		metrics.ErrorsTotal.WithLabelValues("check", "store").Inc()
		return Result{Message: fmt.Sprintf("Failed to check %s name", req.Kind)}, "error"
	}
	if taken {
		return Result{Message: fmt.Sprintf("The current %s name is already taken", req.Kind)}, "taken"
	}
	return Result{Success: true}, "free"
}

func (c *Checker) refresh(header string) string {
	if c.tokens == nil || header == "" {
		return ""
	}
	token, err := c.tokens.Refresh(header)
	if err != nil {
		c.logger.Debug("Token refresh skipped", zap.Error(err))
		return ""
	}
	return token
}

// NameStore is the subset of store.Store used for existence checks
type NameStore interface {
	EntityNameExists(ctx context.Context, table store.EntityTable, name string, excludeID, scopeID *int64) (bool, error)
}

// KindTables maps every supported kind to the table holding its names
var KindTables = map[Kind]store.EntityTable{
	KindUser:            store.UsersTable,
	KindOrganization:    store.OrganizationsTable,
	KindProject:         store.ProjectsTable,
	KindSource:          store.SourcesTable,
	KindView:            store.ViewsTable,
	KindWidget:          store.WidgetsTable,
	KindDisplay:         store.DisplaysTable,
	KindDashboardPortal: store.DashboardPortalTable,
	KindDashboard:       store.DashboardsTable,
	KindCronJob:         store.CronJobsTable,
	KindRole:            store.RolesTable,
}

// StoreExistenceChecker looks names up in one store table
type StoreExistenceChecker struct {
	store NameStore
	table store.EntityTable
}

func (s *StoreExistenceChecker) Exists(ctx context.Context, name string, id, scopeID *int64) (bool, error) {
	return s.store.EntityNameExists(ctx, s.table, name, id, scopeID)
}
