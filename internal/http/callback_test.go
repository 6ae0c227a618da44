package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/nextlevelbuilder/joinbridge/internal/oauth"
	"github.com/nextlevelbuilder/joinbridge/internal/store"
	"github.com/nextlevelbuilder/joinbridge/internal/store/file"
)

type fakeExchanger struct {
	user store.BoundUser
	err  error
}

func (f fakeExchanger) Exchange(_ context.Context, code string) (store.BoundUser, error) {
	if f.err != nil {
		return store.BoundUser{}, f.err
	}
	return f.user, nil
}

type fakeJoiner struct {
	mu     sync.Mutex
	ok     bool
	guilds []string
}

func (f *fakeJoiner) JoinUser(_ context.Context, _ store.BoundUser, guildID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.guilds = append(f.guilds, guildID)
	return f.ok
}

func newStores(t *testing.T) *store.Stores {
	t.Helper()
	stores, err := file.NewFileStores(store.StoreConfig{
		BindingsPath: filepath.Join(t.TempDir(), "bound-users.json"),
	})
	if err != nil {
		t.Fatalf("NewFileStores: %v", err)
	}
	return stores
}

var alice = store.BoundUser{ID: "1001", Username: "alice", AccessToken: "at", TokenType: "Bearer"}

func get(h http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestCallback_NoCode(t *testing.T) {
	j := &fakeJoiner{ok: true}
	h := NewCallbackHandler(fakeExchanger{user: alice}, newStores(t), j)

	rec := get(h, "/callback")
	if rec.Code != http.StatusBadRequest || rec.Body.String() != msgNoCode {
		t.Errorf("got %d %q", rec.Code, rec.Body.String())
	}
}

func TestCallback_ExchangeFailure(t *testing.T) {
	stores := newStores(t)
	j := &fakeJoiner{ok: true}
	exErr := &oauth.ExchangeError{Step: "token", Status: 400, Detail: "invalid_grant", Err: errors.New("bad code")}
	h := NewCallbackHandler(fakeExchanger{err: exErr}, stores, j)

	rec := get(h, "/callback?code=abc")
	if rec.Body.String() != msgAuthFailed {
		t.Errorf("body = %q", rec.Body.String())
	}
	if stores.Bindings.Count() != 0 {
		t.Error("nothing should be bound on exchange failure")
	}
	if len(j.guilds) != 0 {
		t.Error("no join on exchange failure")
	}
}

// Code resolves but the user never spoke in a guild: bound, no join.
func TestCallback_NoPendingGuild(t *testing.T) {
	stores := newStores(t)
	j := &fakeJoiner{ok: true}
	h := NewCallbackHandler(fakeExchanger{user: alice}, stores, j)

	rec := get(h, "/callback?code=abc")
	if rec.Code != http.StatusOK || rec.Body.String() != msgNoGuild {
		t.Errorf("got %d %q", rec.Code, rec.Body.String())
	}
	if u, ok := stores.Bindings.Find("1001"); !ok || u.AccessToken != "at" {
		t.Errorf("binding = (%+v, %v), want persisted", u, ok)
	}
	if len(j.guilds) != 0 {
		t.Errorf("JoinUser called %d times, want 0", len(j.guilds))
	}
}

func TestCallback_JoinOutcome(t *testing.T) {
	tests := []struct {
		name   string
		joinOK bool
		want   string
	}{
		{"joined", true, msgJoined},
		{"join failed", false, msgBoundNotJoin},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stores := newStores(t)
			stores.Pending.Record("1001", "G")
			j := &fakeJoiner{ok: tt.joinOK}
			h := NewCallbackHandler(fakeExchanger{user: alice}, stores, j)

			rec := get(h, "/callback?code=abc")
			if rec.Body.String() != tt.want {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.want)
			}
			if len(j.guilds) != 1 || j.guilds[0] != "G" {
				t.Errorf("joined guilds = %v, want [G]", j.guilds)
			}
			if stores.Bindings.Count() != 1 {
				t.Errorf("count = %d, want 1", stores.Bindings.Count())
			}
			// The pending entry survives the lookup.
			if g, ok := stores.Pending.Consume("1001"); !ok || g != "G" {
				t.Errorf("pending after callback = (%q, %v)", g, ok)
			}
		})
	}
}

func TestCallback_ReauthorizeUpdatesBinding(t *testing.T) {
	stores := newStores(t)
	j := &fakeJoiner{ok: true}

	NewCallbackHandler(fakeExchanger{user: alice}, stores, j).ServeHTTP(httptest.NewRecorder(),
		httptest.NewRequest(http.MethodGet, "/callback?code=1", nil))

	renamed := alice
	renamed.Username = "alice2"
	renamed.AccessToken = "at2"
	get(NewCallbackHandler(fakeExchanger{user: renamed}, stores, j), "/callback?code=2")

	if stores.Bindings.Count() != 1 {
		t.Fatalf("count = %d, want 1", stores.Bindings.Count())
	}
	if u, _ := stores.Bindings.Find("1001"); u.Username != "alice2" || u.AccessToken != "at2" {
		t.Errorf("binding = %+v, want latest values", u)
	}
}
