package check

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/ebogdum/vizgate/store"
)

type fakeExistence struct {
	taken   map[string]bool
	err     error
	calls   int
	lastID  *int64
	lastOrg *int64
}

func (f *fakeExistence) Exists(ctx context.Context, name string, id, scopeID *int64) (bool, error) {
	f.calls++
	f.lastID, f.lastOrg = id, scopeID
	return f.taken[name], f.err
}

type fakeRefresher struct {
	calls int
	err   error
}

func (f *fakeRefresher) Refresh(header string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "refreshed", nil
}

func newTestChecker(existence *fakeExistence, tokens *fakeRefresher) *Checker {
	c := NewChecker(tokens, zap.NewNop())
	c.Register(KindUser, existence)
	c.Register(KindProject, existence)
	return c
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name        string
		req         Request
		existsErr   error
		wantSuccess bool
		wantMessage string
		wantRefresh bool
	}{
		{
			name:        "free project name",
			req:         Request{Kind: KindProject, Name: "sales"},
			wantSuccess: true,
			wantRefresh: true,
		},
		{
			name:        "taken project name",
			req:         Request{Kind: KindProject, Name: "taken"},
			wantMessage: "The current project name is already taken",
			wantRefresh: true,
		},
		{
			name:        "free user name",
			req:         Request{Kind: KindUser, Name: "alice"},
			wantSuccess: true,
		},
		{
			name:        "taken user name",
			req:         Request{Kind: KindUser, Name: "taken"},
			wantMessage: "The current user name is already taken",
		},
		{
			name:        "empty name for user",
			req:         Request{Kind: KindUser, Name: ""},
			wantMessage: "Name is empty",
		},
		{
			name:        "blank name for project",
			req:         Request{Kind: KindProject, Name: "   "},
			wantMessage: "Name is empty",
			wantRefresh: true,
		},
		{
			name:        "empty name for unregistered kind",
			req:         Request{Kind: "galaxy", Name: ""},
			wantMessage: "Name is empty",
			wantRefresh: true,
		},
		{
			name:        "unregistered kind",
			req:         Request{Kind: KindWidget, Name: "chart"},
			wantMessage: "Not supported entity type",
			wantRefresh: true,
		},
		{
			name:        "lookup failure",
			req:         Request{Kind: KindProject, Name: "sales"},
			existsErr:   errors.New("db down"),
			wantMessage: "Failed to check project name",
			wantRefresh: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			existence := &fakeExistence{taken: map[string]bool{"taken": true}, err: tt.existsErr}
			tokens := &fakeRefresher{}
			c := newTestChecker(existence, tokens)

			res := c.Check(context.Background(), tt.req, "Bearer current")

			if res.Success != tt.wantSuccess {
				t.Errorf("expected success %v, got %v", tt.wantSuccess, res.Success)
			}
			if res.Message != tt.wantMessage {
				t.Errorf("expected message %q, got %q", tt.wantMessage, res.Message)
			}
			if tt.wantRefresh {
				if tokens.calls != 1 || res.Token != "refreshed" {
					t.Errorf("expected one refresh, got %d calls and token %q", tokens.calls, res.Token)
				}
			} else if tokens.calls != 0 || res.Token != "" {
				t.Errorf("expected no refresh, got %d calls and token %q", tokens.calls, res.Token)
			}
		})
	}
}

func TestCheckWithoutBearer(t *testing.T) {
	tokens := &fakeRefresher{}
	c := newTestChecker(&fakeExistence{}, tokens)

	res := c.Check(context.Background(), Request{Kind: KindProject, Name: "sales"}, "")
	if !res.Success {
		t.Fatalf("expected success, got %q", res.Message)
	}
	if tokens.calls != 0 || res.Token != "" {
		t.Errorf("expected refresh to be skipped without a token")
	}
}

func TestCheckRefreshFailureKeepsResult(t *testing.T) {
	tokens := &fakeRefresher{err: errors.New("expired")}
	c := newTestChecker(&fakeExistence{taken: map[string]bool{"sales": true}}, tokens)

	res := c.Check(context.Background(), Request{Kind: KindProject, Name: "sales"}, "Bearer stale")
	if res.Success || res.Message != "The current project name is already taken" {
		t.Errorf("unexpected result %+v", res)
	}
	if res.Token != "" {
		t.Errorf("expected no token, got %q", res.Token)
	}
}

func TestCheckPassesIDAndScope(t *testing.T) {
	existence := &fakeExistence{}
	c := newTestChecker(existence, nil)
	id, org := int64(7), int64(3)

	c.Check(context.Background(), Request{Kind: KindProject, Name: "sales", ID: &id, ScopeID: &org}, "")

	if existence.lastID == nil || *existence.lastID != 7 || existence.lastOrg == nil || *existence.lastOrg != 3 {
		t.Errorf("expected id and scope to reach the existence checker")
	}
}

type fakeNameStore struct {
	table store.EntityTable
}

func (f *fakeNameStore) EntityNameExists(ctx context.Context, table store.EntityTable, name string, excludeID, scopeID *int64) (bool, error) {
	f.table = table
	return name == "taken", nil
}

func TestStoreCheckerCoversEveryKind(t *testing.T) {
	names := &fakeNameStore{}
	c := NewStoreChecker(names, nil, zap.NewNop())

	for kind, table := range KindTables {
		res := c.Check(context.Background(), Request{Kind: kind, Name: "taken"}, "")
		if res.Success {
			t.Errorf("%s: expected taken", kind)
		}
		if names.table != table {
			t.Errorf("%s: expected table %s, got %s", kind, table.Table, names.table.Table)
		}
	}
	if len(KindTables) != 11 {
		t.Errorf("expected 11 kinds, got %d", len(KindTables))
	}
}
