// Package discord is a small REST client for the Discord endpoints the bot
// calls with its own credential: adding members, granting roles and posting
// webhooks. Gateway (chat) traffic goes through discordgo in
// internal/channels/discord instead.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/joinbridge/internal/tracing"
)

// DefaultAPIBase is the Discord REST API root.
const DefaultAPIBase = "https://discord.com/api"

// Client calls the Discord REST API with a bot token.
type Client struct {
	apiBase  string
	botToken string
	http     *http.Client
}

// ClientConfig configures a Client.
type ClientConfig struct {
	APIBase    string        // default DefaultAPIBase
	BotToken   string        // sent as "Bot <token>"
	Timeout    time.Duration // default 15s, ignored when HTTPClient is set
	HTTPClient *http.Client
}

// NewClient creates a REST client.
func NewClient(cfg ClientConfig) *Client {
	c := &Client{
		apiBase:  strings.TrimRight(cfg.APIBase, "/"),
		botToken: cfg.BotToken,
		http:     cfg.HTTPClient,
	}
	if c.apiBase == "" {
		c.apiBase = DefaultAPIBase
	}
	if c.http == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		c.http = &http.Client{Timeout: timeout}
	}
	return c
}

// APIBase returns the configured API root.
func (c *Client) APIBase() string { return c.apiBase }

// APIError is a non-success response from Discord.
type APIError struct {
	Status  int
	Code    int    // Discord JSON error code, 0 if absent
	Message string // Discord "message" field, or the raw body
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("discord api error %d (code %d): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("discord api error %d: %s", e.Status, e.Message)
}

// AddGuildMember adds userID to guildID using the user's OAuth2 access
// token (PUT /guilds/{guild}/members/{user}). Discord answers 201 when the
// user was added and 204 when they were already a member; every other
// status is returned as *APIError.
func (c *Client) AddGuildMember(ctx context.Context, guildID, userID, accessToken string) error {
	ctx, span := tracing.Tracer().Start(ctx, "discord.AddGuildMember",
		trace.WithAttributes(attribute.String("guild_id", guildID), attribute.String("user_id", userID)))
	defer span.End()

	body := map[string]string{"access_token": accessToken}
	path := "/guilds/" + url.PathEscape(guildID) + "/members/" + url.PathEscape(userID)

	status, err := c.do(ctx, http.MethodPut, path, body, http.StatusCreated, http.StatusNoContent)
	span.SetAttributes(attribute.Int("http.status_code", status))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// AddMemberRole grants roleID to a guild member
// (PUT /guilds/{guild}/members/{user}/roles/{role}).
func (c *Client) AddMemberRole(ctx context.Context, guildID, userID, roleID string) error {
	ctx, span := tracing.Tracer().Start(ctx, "discord.AddMemberRole",
		trace.WithAttributes(attribute.String("guild_id", guildID), attribute.String("role_id", roleID)))
	defer span.End()

	path := "/guilds/" + url.PathEscape(guildID) + "/members/" + url.PathEscape(userID) +
		"/roles/" + url.PathEscape(roleID)

	_, err := c.do(ctx, http.MethodPut, path, struct{}{}, http.StatusOK, http.StatusNoContent)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// CurrentUser returns the bot's own user (GET /users/@me). Used as a
// credential check.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/users/@me", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("discord request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, readAPIError(resp)
	}
	var u User
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return nil, fmt.Errorf("decode discord user: %w", err)
	}
	return &u, nil
}

// User is the subset of a Discord user object the bot reads.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Bot      bool   `json:"bot"`
}

// do sends a JSON request and returns the status code. A status outside
// okStatus yields *APIError.
func (c *Client) do(ctx context.Context, method, path string, body any, okStatus ...int) (int, error) {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return 0, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("discord request failed: %w", err)
	}
	defer resp.Body.Close()

	for _, s := range okStatus {
		if resp.StatusCode == s {
			io.Copy(io.Discard, resp.Body)
			return resp.StatusCode, nil
		}
	}
	return resp.StatusCode, readAPIError(resp)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal discord request: %w", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiBase+path, r)
	if err != nil {
		return nil, fmt.Errorf("create discord request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+c.botToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func readAPIError(resp *http.Response) *APIError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	apiErr := &APIError{Status: resp.StatusCode}

	var payload struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &payload) == nil && payload.Message != "" {
		apiErr.Code = payload.Code
		apiErr.Message = payload.Message
		return apiErr
	}

	apiErr.Message = strings.TrimSpace(string(raw))
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
