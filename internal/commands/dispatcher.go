// Package commands parses chat commands and runs them against the binding
// store, the pending index and the joiner.
package commands

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strconv"
	"strings"

	"github.com/mattn/go-shellwords"

	"github.com/nextlevelbuilder/joinbridge/internal/bus"
	"github.com/nextlevelbuilder/joinbridge/internal/joiner"
	"github.com/nextlevelbuilder/joinbridge/internal/store"
)

// Joiner runs batch joins. *joiner.Joiner implements it.
type Joiner interface {
	JoinMany(ctx context.Context, users iter.Seq[store.BoundUser], guildID string, limit int) joiner.BatchResult
}

// LinkSource builds the authorization URL handed out by !link.
// *oauth.Exchanger implements it.
type LinkSource interface {
	AuthURL() string
}

type handlerFunc func(ctx context.Context, msg bus.InboundMessage, args []string) string

// Dispatcher maps command names to handlers.
type Dispatcher struct {
	bindings store.BindingStore
	pending  store.PendingIndex
	joiner   Joiner
	link     LinkSource

	handlers map[string]handlerFunc
}

// NewDispatcher creates a Dispatcher with the built-in command set.
func NewDispatcher(stores *store.Stores, j Joiner, link LinkSource) *Dispatcher {
	d := &Dispatcher{
		bindings: stores.Bindings,
		pending:  stores.Pending,
		joiner:   j,
		link:     link,
	}
	d.handlers = map[string]handlerFunc{
		"!link":    d.handleLink,
		"!users":   d.handleUsers,
		"!joinall": d.handleJoinAll,
		"!join":    d.handleJoin,
		"!bound":   d.handleBound,
		"!unbind":  d.handleUnbind,
		"!help":    d.handleHelp,
	}
	return d
}

// Handle runs the command in msg and returns its reply. ok is false when
// nothing should be sent: bot authors, direct messages, and anything that
// is not a known command.
//
// Every guild message from a human records author → guild in the pending
// index, whether or not it carries a command.
func (d *Dispatcher) Handle(ctx context.Context, msg bus.InboundMessage) (reply string, ok bool) {
	if msg.FromBot || msg.GuildID == "" {
		return "", false
	}
	d.pending.Record(msg.SenderID, msg.GuildID)

	name, args := parseCommand(msg.Content)
	h, found := d.handlers[name]
	if !found {
		return "", false
	}

	slog.Debug("command received", "command", name, "user_id", msg.SenderID, "guild_id", msg.GuildID)
	return h(ctx, msg, args), true
}

// parseCommand splits content into a lower-cased command name and its
// arguments. Quoted arguments are honored; unbalanced quotes fall back to a
// plain whitespace split.
func parseCommand(content string) (string, []string) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", nil
	}
	name, rest, _ := strings.Cut(content, " ")
	if i := strings.IndexAny(name, "\t\n\r"); i >= 0 {
		name, rest = name[:i], name[i+1:]+" "+rest
	}
	name = strings.ToLower(name)

	rest = strings.TrimSpace(rest)
	if rest == "" {
		return name, nil
	}
	args, err := shellwords.Parse(rest)
	if err != nil {
		args = strings.Fields(rest)
	}
	return name, args
}

// --- Handlers ---

func (d *Dispatcher) handleLink(_ context.Context, _ bus.InboundMessage, _ []string) string {
	return "🔗 Click to authorize and join: " + d.link.AuthURL()
}

func (d *Dispatcher) handleUsers(_ context.Context, _ bus.InboundMessage, _ []string) string {
	return fmt.Sprintf("🔍 Bound Users: %d", d.bindings.Count())
}

func (d *Dispatcher) handleJoinAll(ctx context.Context, msg bus.InboundMessage, _ []string) string {
	if d.bindings.Count() == 0 {
		return "No bound users to join."
	}
	res := d.joiner.JoinMany(ctx, d.bindings.List(), msg.GuildID, 0)
	return fmt.Sprintf("✅ Joined %d users to this server.", res.Joined)
}

func (d *Dispatcher) handleJoin(ctx context.Context, msg bus.InboundMessage, args []string) string {
	limit := 1
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil && n > 1 {
			limit = n
		}
	}
	res := d.joiner.JoinMany(ctx, d.bindings.List(), msg.GuildID, limit)
	return fmt.Sprintf("✅ Joined %d users.", res.Joined)
}

func (d *Dispatcher) handleBound(_ context.Context, _ bus.InboundMessage, _ []string) string {
	var sb strings.Builder
	for u := range d.bindings.List() {
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "• %s (%s)", u.Username, u.ID)
	}
	if sb.Len() == 0 {
		return "No users bound."
	}
	return sb.String()
}

func (d *Dispatcher) handleUnbind(_ context.Context, msg bus.InboundMessage, args []string) string {
	if len(args) == 0 {
		return "Usage: !unbind <user id>"
	}
	id := args[0]
	removed, err := d.bindings.Remove(id)
	if err != nil {
		slog.Error("unbind failed", "user_id", id, "requested_by", msg.SenderID, "error", err)
		return "⚠️ Could not update bindings. Check the bot logs."
	}
	if !removed {
		return "User not found."
	}
	return "❌ Unbound " + id
}

func (d *Dispatcher) handleHelp(_ context.Context, _ bus.InboundMessage, _ []string) string {
	return "Available commands:\n" +
		"!link: get the authorization link\n" +
		"!users: count bound users\n" +
		"!joinall: add every bound user to this server\n" +
		"!join [n]: add the first n bound users (default 1)\n" +
		"!bound: list bound users\n" +
		"!unbind <id>: remove a bound user\n" +
		"!help: show this message"
}
