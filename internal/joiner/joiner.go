// Package joiner adds bound users to guilds.
//
// JoinUser is the single-user operation: a membership add authorized by the
// bot token with the user's access token in the body, then an optional role
// grant and an optional webhook notification. Only the membership add
// decides the result. JoinMany runs JoinUser sequentially over a batch.
package joiner

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nextlevelbuilder/joinbridge/internal/discord"
	"github.com/nextlevelbuilder/joinbridge/internal/store"
)

// webhookTimeout bounds the detached notification call.
const webhookTimeout = 10 * time.Second

// MemberAPI is the subset of the Discord REST API the joiner needs.
// *discord.Client implements it.
type MemberAPI interface {
	AddGuildMember(ctx context.Context, guildID, userID, accessToken string) error
	AddMemberRole(ctx context.Context, guildID, userID, roleID string) error
	PostWebhook(ctx context.Context, webhookURL string, msg discord.WebhookMessage) error
}

// Options are the optional post-join actions. Both may change at runtime.
type Options struct {
	AutoRoleID string // granted after a successful join; "" disables
	WebhookURL string // notified after a successful join; "" disables
}

// Joiner performs joins against one Discord application.
type Joiner struct {
	api  MemberAPI
	opts atomic.Pointer[Options]
}

// New creates a Joiner.
func New(api MemberAPI, opts Options) *Joiner {
	j := &Joiner{api: api}
	j.SetOptions(opts)
	return j
}

// SetOptions swaps the post-join options (used by config hot reload).
func (j *Joiner) SetOptions(opts Options) {
	j.opts.Store(&opts)
}

// Options returns the current post-join options.
func (j *Joiner) Options() Options {
	return *j.opts.Load()
}

// JoinUser adds u to guildID and reports whether the membership add
// succeeded. An empty guildID returns false without any remote call.
// Role-grant and webhook failures never change the result.
func (j *Joiner) JoinUser(ctx context.Context, u store.BoundUser, guildID string) bool {
	logAttrs := store.LogAttrs(ctx)
	if guildID == "" {
		slog.Warn("join skipped: no guild id", append(logAttrs, "user_id", u.ID, "username", u.Username)...)
		return false
	}

	if err := j.api.AddGuildMember(ctx, guildID, u.ID, u.AccessToken); err != nil {
		slog.Warn("join failed", append(logAttrs,
			"user_id", u.ID, "username", u.Username, "guild_id", guildID, "error", upstreamMessage(err))...)
		return false
	}

	opts := j.Options()

	if opts.AutoRoleID != "" {
		if err := j.api.AddMemberRole(ctx, guildID, u.ID, opts.AutoRoleID); err != nil {
			slog.Warn("role grant failed", append(logAttrs,
				"user_id", u.ID, "username", u.Username, "role_id", opts.AutoRoleID, "error", upstreamMessage(err))...)
		}
	}

	if opts.WebhookURL != "" {
		j.notify(ctx, opts.WebhookURL, u, guildID)
	}

	slog.Info("joined", append(logAttrs, "user_id", u.ID, "username", u.Username, "guild_id", guildID)...)
	return true
}

// notify posts the join notification in the background. The result is
// discarded and the caller never waits for it.
func (j *Joiner) notify(ctx context.Context, webhookURL string, u store.BoundUser, guildID string) {
	msg := discord.WebhookMessage{
		Content: fmt.Sprintf("✅ **%s** joined [%s] via OAuth2.", u.Username, guildID),
	}
	bg := context.WithoutCancel(ctx)
	go func() {
		wctx, cancel := context.WithTimeout(bg, webhookTimeout)
		defer cancel()
		_ = j.api.PostWebhook(wctx, webhookURL, msg)
	}()
}

// BatchResult summarizes a JoinMany run.
type BatchResult struct {
	Attempted int
	Joined    int
}

// JoinMany joins users into guildID one at a time, in order. When limit > 0
// at most limit users are attempted; limit <= 0 attempts every user.
// Iteration stops early if ctx is cancelled.
func (j *Joiner) JoinMany(ctx context.Context, users iter.Seq[store.BoundUser], guildID string, limit int) BatchResult {
	runID := store.GenRunID().String()
	ctx = store.WithRunID(ctx, runID)

	var res BatchResult
	for u := range users {
		if limit > 0 && res.Attempted >= limit {
			break
		}
		if ctx.Err() != nil {
			slog.Warn("batch join interrupted", "run_id", runID, "guild_id", guildID, "attempted", res.Attempted)
			break
		}
		res.Attempted++
		if j.JoinUser(ctx, u, guildID) {
			res.Joined++
		}
	}

	slog.Info("batch join finished", "run_id", runID, "guild_id", guildID,
		"limit", limit, "attempted", res.Attempted, "joined", res.Joined)
	return res
}

// upstreamMessage prefers Discord's own error message when one was returned.
func upstreamMessage(err error) string {
	var apiErr *discord.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}
