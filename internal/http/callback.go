// Package http serves the OAuth2 redirect target and a health probe.
package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nextlevelbuilder/joinbridge/internal/oauth"
	"github.com/nextlevelbuilder/joinbridge/internal/store"
)

// Callback responses, shown to the user in the browser.
const (
	msgNoCode       = "No code provided"
	msgAuthFailed   = "❌ Failed to authorize. Try again."
	msgNoGuild      = "⚠️ Could not determine server to join. Please try again from the bot command."
	msgJoined       = "✅ Joined successfully!"
	msgBoundNotJoin = "⚠️ Bound, but failed to join the server."
)

// joinTimeout bounds the membership add started by a callback. The join
// continues if the browser goes away.
const joinTimeout = 30 * time.Second

// Exchanger resolves an authorization code. *oauth.Exchanger implements it.
type Exchanger interface {
	Exchange(ctx context.Context, code string) (store.BoundUser, error)
}

// UserJoiner adds one user to a guild. *joiner.Joiner implements it.
type UserJoiner interface {
	JoinUser(ctx context.Context, u store.BoundUser, guildID string) bool
}

// CallbackHandler handles GET /callback?code=.
//
// The user is bound as soon as the code resolves, even when no guild is
// known for them yet: a later !joinall picks them up.
type CallbackHandler struct {
	exchanger Exchanger
	bindings  store.BindingStore
	pending   store.PendingIndex
	joiner    UserJoiner
}

// NewCallbackHandler creates a CallbackHandler.
func NewCallbackHandler(ex Exchanger, stores *store.Stores, j UserJoiner) *CallbackHandler {
	return &CallbackHandler{
		exchanger: ex,
		bindings:  stores.Bindings,
		pending:   stores.Pending,
		joiner:    j,
	}
}

func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		writeText(w, http.StatusBadRequest, msgNoCode)
		return
	}

	user, err := h.exchanger.Exchange(r.Context(), code)
	if err != nil {
		attrs := []any{"error", err}
		var exErr *oauth.ExchangeError
		if errors.As(err, &exErr) {
			attrs = append(attrs, "step", exErr.Step, "status", exErr.Status)
		}
		slog.Warn("oauth callback: exchange failed", attrs...)
		writeText(w, http.StatusBadRequest, msgAuthFailed)
		return
	}

	if err := h.bindings.Upsert(user); err != nil {
		slog.Error("oauth callback: persist binding failed", "user_id", user.ID, "error", err)
		writeText(w, http.StatusInternalServerError, msgAuthFailed)
		return
	}

	guildID, ok := h.pending.Consume(user.ID)
	if !ok {
		slog.Info("oauth callback: bound without pending guild", "user_id", user.ID, "username", user.Username)
		writeText(w, http.StatusOK, msgNoGuild)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), joinTimeout)
	defer cancel()
	if h.joiner.JoinUser(ctx, user, guildID) {
		writeText(w, http.StatusOK, msgJoined)
		return
	}
	writeText(w, http.StatusOK, msgBoundNotJoin)
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprint(w, body)
}
