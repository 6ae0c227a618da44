package commands

import (
	"context"
	"iter"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/nextlevelbuilder/joinbridge/internal/bus"
	"github.com/nextlevelbuilder/joinbridge/internal/discord"
	"github.com/nextlevelbuilder/joinbridge/internal/joiner"
	"github.com/nextlevelbuilder/joinbridge/internal/store"
	"github.com/nextlevelbuilder/joinbridge/internal/store/file"
)

type fakeLink struct{}

func (fakeLink) AuthURL() string { return "https://discord.test/oauth2/authorize?client_id=42" }

// memberAPI accepts joins for the ids in allow and records every add.
type memberAPI struct {
	mu    sync.Mutex
	allow map[string]bool
	adds  []string
}

func (m *memberAPI) AddGuildMember(_ context.Context, guildID, userID, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adds = append(m.adds, guildID+"/"+userID)
	if !m.allow[userID] {
		return &discord.APIError{Status: 403, Message: "Missing Access"}
	}
	return nil
}

func (m *memberAPI) AddMemberRole(context.Context, string, string, string) error { return nil }

func (m *memberAPI) PostWebhook(context.Context, string, discord.WebhookMessage) error { return nil }

// recordingJoiner captures JoinMany arguments without remote calls.
type recordingJoiner struct {
	guildID string
	limit   int
	calls   int
	joined  int
}

func (r *recordingJoiner) JoinMany(_ context.Context, users iter.Seq[store.BoundUser], guildID string, limit int) joiner.BatchResult {
	r.calls++
	r.guildID = guildID
	r.limit = limit
	res := joiner.BatchResult{}
	for range users {
		if limit > 0 && res.Attempted >= limit {
			break
		}
		res.Attempted++
	}
	res.Joined = min(res.Attempted, r.joined)
	return res
}

func newStores(t *testing.T, users ...store.BoundUser) *store.Stores {
	t.Helper()
	stores, err := file.NewFileStores(store.StoreConfig{
		BindingsPath: filepath.Join(t.TempDir(), "bound-users.json"),
	})
	if err != nil {
		t.Fatalf("NewFileStores: %v", err)
	}
	for _, u := range users {
		if err := stores.Bindings.Upsert(u); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}
	return stores
}

func guildMsg(content string) bus.InboundMessage {
	return bus.InboundMessage{
		Channel:   "discord",
		MessageID: "m1",
		SenderID:  "1001",
		ChatID:    "c1",
		GuildID:   "G",
		Content:   content,
	}
}

func TestHandle_Ignored(t *testing.T) {
	stores := newStores(t)
	d := NewDispatcher(stores, &recordingJoiner{}, fakeLink{})

	tests := []struct {
		name string
		msg  bus.InboundMessage
	}{
		{"bot author", bus.InboundMessage{SenderID: "1", GuildID: "G", Content: "!users", FromBot: true}},
		{"direct message", bus.InboundMessage{SenderID: "1", Content: "!users"}},
		{"unknown command", guildMsg("!dance")},
		{"plain chat", guildMsg("hello there")},
		{"empty", guildMsg("   ")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if reply, ok := d.Handle(context.Background(), tt.msg); ok {
				t.Errorf("expected no reply, got %q", reply)
			}
		})
	}
}

func TestHandle_RecordsPendingForEveryGuildMessage(t *testing.T) {
	stores := newStores(t)
	d := NewDispatcher(stores, &recordingJoiner{}, fakeLink{})

	d.Handle(context.Background(), guildMsg("just chatting"))
	if g, ok := stores.Pending.Consume("1001"); !ok || g != "G" {
		t.Errorf("pending = (%q, %v), want (G, true)", g, ok)
	}

	d.Handle(context.Background(), bus.InboundMessage{SenderID: "2002", Content: "!link"})
	if _, ok := stores.Pending.Consume("2002"); ok {
		t.Error("direct messages must not record a pending guild")
	}
}

func TestHandle_Link(t *testing.T) {
	d := NewDispatcher(newStores(t), &recordingJoiner{}, fakeLink{})
	reply, ok := d.Handle(context.Background(), guildMsg("!LINK"))
	if !ok {
		t.Fatal("expected reply")
	}
	want := "🔗 Click to authorize and join: https://discord.test/oauth2/authorize?client_id=42"
	if reply != want {
		t.Errorf("reply = %q, want %q", reply, want)
	}
}

func TestHandle_UsersAndBound(t *testing.T) {
	stores := newStores(t,
		store.BoundUser{ID: "1", Username: "a", AccessToken: "t1"},
		store.BoundUser{ID: "2", Username: "b", AccessToken: "t2"},
	)
	d := NewDispatcher(stores, &recordingJoiner{}, fakeLink{})

	if reply, _ := d.Handle(context.Background(), guildMsg("!users")); reply != "🔍 Bound Users: 2" {
		t.Errorf("!users = %q", reply)
	}
	if reply, _ := d.Handle(context.Background(), guildMsg("!bound")); reply != "• a (1)\n• b (2)" {
		t.Errorf("!bound = %q", reply)
	}

	empty := NewDispatcher(newStores(t), &recordingJoiner{}, fakeLink{})
	if reply, _ := empty.Handle(context.Background(), guildMsg("!bound")); reply != "No users bound." {
		t.Errorf("!bound on empty store = %q", reply)
	}
}

func TestHandle_JoinArguments(t *testing.T) {
	tests := []struct {
		content   string
		wantLimit int
	}{
		{"!join", 1},
		{"!join 2", 2},
		{"!join 0", 1},
		{"!join -3", 1},
		{"!join abc", 1},
		{"!join \"5\"", 5},
		{"!join\t3", 3},
	}
	for _, tt := range tests {
		t.Run(tt.content, func(t *testing.T) {
			rj := &recordingJoiner{joined: 100}
			stores := newStores(t,
				store.BoundUser{ID: "1", Username: "a"},
				store.BoundUser{ID: "2", Username: "b"},
			)
			d := NewDispatcher(stores, rj, fakeLink{})
			if _, ok := d.Handle(context.Background(), guildMsg(tt.content)); !ok {
				t.Fatal("expected reply")
			}
			if rj.limit != tt.wantLimit {
				t.Errorf("limit = %d, want %d", rj.limit, tt.wantLimit)
			}
			if rj.guildID != "G" {
				t.Errorf("guild = %q, want G", rj.guildID)
			}
		})
	}
}

func TestHandle_JoinAll(t *testing.T) {
	rj := &recordingJoiner{joined: 1}
	stores := newStores(t,
		store.BoundUser{ID: "1", Username: "a"},
		store.BoundUser{ID: "2", Username: "b"},
	)
	d := NewDispatcher(stores, rj, fakeLink{})

	reply, _ := d.Handle(context.Background(), guildMsg("!joinall"))
	if reply != "✅ Joined 1 users to this server." {
		t.Errorf("reply = %q", reply)
	}
	if rj.limit != 0 {
		t.Errorf("limit = %d, want 0 (all)", rj.limit)
	}

	rjEmpty := &recordingJoiner{}
	empty := NewDispatcher(newStores(t), rjEmpty, fakeLink{})
	if reply, _ := empty.Handle(context.Background(), guildMsg("!joinall")); reply != "No bound users to join." {
		t.Errorf("empty reply = %q", reply)
	}
	if rjEmpty.calls != 0 {
		t.Error("JoinMany must not run on an empty store")
	}
}

func TestHandle_Unbind(t *testing.T) {
	stores := newStores(t, store.BoundUser{ID: "1", Username: "a"})
	d := NewDispatcher(stores, &recordingJoiner{}, fakeLink{})

	if reply, _ := d.Handle(context.Background(), guildMsg("!unbind")); !strings.HasPrefix(reply, "Usage:") {
		t.Errorf("missing id reply = %q", reply)
	}
	if reply, _ := d.Handle(context.Background(), guildMsg("!unbind 9")); reply != "User not found." {
		t.Errorf("absent id reply = %q", reply)
	}
	if reply, _ := d.Handle(context.Background(), guildMsg("!unbind 1")); reply != "❌ Unbound 1" {
		t.Errorf("reply = %q", reply)
	}
	if stores.Bindings.Count() != 0 {
		t.Errorf("count = %d, want 0", stores.Bindings.Count())
	}
}

func TestHandle_Help(t *testing.T) {
	d := NewDispatcher(newStores(t), &recordingJoiner{}, fakeLink{})
	reply, ok := d.Handle(context.Background(), guildMsg("!help"))
	if !ok {
		t.Fatal("expected reply")
	}
	for name := range d.handlers {
		if !strings.Contains(reply, name) {
			t.Errorf("help text does not mention %s", name)
		}
	}
}

// Store [a(1), b(2)]; "!join 1" in guild G; only id 1 is attempted.
func TestScenario_JoinOne(t *testing.T) {
	stores := newStores(t,
		store.BoundUser{ID: "1", Username: "a", AccessToken: "t1"},
		store.BoundUser{ID: "2", Username: "b", AccessToken: "t2"},
	)
	api := &memberAPI{allow: map[string]bool{"1": true, "2": true}}
	d := NewDispatcher(stores, joiner.New(api, joiner.Options{}), fakeLink{})

	reply, _ := d.Handle(context.Background(), guildMsg("!join 1"))
	if reply != "✅ Joined 1 users." {
		t.Errorf("reply = %q", reply)
	}
	if len(api.adds) != 1 || api.adds[0] != "G/1" {
		t.Errorf("adds = %v, want [G/1]", api.adds)
	}
	all := stores.Bindings.All()
	if len(all) != 2 || all[0].Username != "a" || all[1].Username != "b" {
		t.Errorf("store changed: %+v", all)
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in       string
		wantName string
		wantArgs []string
	}{
		{"!Join 3", "!join", []string{"3"}},
		{"  !unbind   123  ", "!unbind", []string{"123"}},
		{`!unbind "12 3"`, "!unbind", []string{"12 3"}},
		{`!unbind "123`, "!unbind", []string{`"123`}},
		{"!users", "!users", nil},
		{"", "", nil},
	}
	for _, tt := range tests {
		name, args := parseCommand(tt.in)
		if name != tt.wantName {
			t.Errorf("parseCommand(%q) name = %q, want %q", tt.in, name, tt.wantName)
		}
		if strings.Join(args, "|") != strings.Join(tt.wantArgs, "|") {
			t.Errorf("parseCommand(%q) args = %q, want %q", tt.in, args, tt.wantArgs)
		}
	}
}
