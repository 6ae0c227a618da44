// Package oauth turns a one-time Discord authorization code into a bound
// user: code → access token (token endpoint) → identity (users/@me).
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/oauth2"

	"github.com/nextlevelbuilder/joinbridge/internal/store"
	"github.com/nextlevelbuilder/joinbridge/internal/tracing"
)

// DefaultAPIBase is the Discord API root hosting the OAuth2 endpoints.
const DefaultAPIBase = "https://discord.com/api"

// Scopes requested by the authorization link. guilds.join is what lets the
// bot add the user to a guild later.
var Scopes = []string{"identify", "guilds.join"}

// ErrMissingCode is returned by Exchange for an empty code.
var ErrMissingCode = errors.New("authorization code is empty")

// Config configures the Exchanger.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	APIBase      string       // default DefaultAPIBase
	HTTPClient   *http.Client // default: 15s timeout
}

// Exchanger performs the two-step code exchange. Single attempt, no retries.
type Exchanger struct {
	oauth   oauth2.Config
	apiBase string
	client  *http.Client
}

// NewExchanger creates an Exchanger.
func NewExchanger(cfg Config) *Exchanger {
	apiBase := strings.TrimRight(cfg.APIBase, "/")
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	return &Exchanger{
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   apiBase + "/oauth2/authorize",
				TokenURL:  apiBase + "/oauth2/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		apiBase: apiBase,
		client:  client,
	}
}

// AuthURL returns the link users open to authorize the application.
func (e *Exchanger) AuthURL() string {
	return e.oauth.AuthCodeURL("")
}

// ExchangeError describes a failed exchange step. Detail carries the
// upstream error text for logs; it is never shown to users.
type ExchangeError struct {
	Step   string // "token" or "profile"
	Status int    // HTTP status, 0 on transport failure
	Detail string
	Err    error
}

func (e *ExchangeError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("oauth %s step failed (%d): %s", e.Step, e.Status, e.Detail)
	}
	return fmt.Sprintf("oauth %s step failed: %s", e.Step, e.Detail)
}

func (e *ExchangeError) Unwrap() error { return e.Err }

// Exchange resolves code to a BoundUser carrying the user's access token.
// Any failure is returned as *ExchangeError.
func (e *Exchanger) Exchange(ctx context.Context, code string) (store.BoundUser, error) {
	if code == "" {
		return store.BoundUser{}, ErrMissingCode
	}

	ctx, span := tracing.Tracer().Start(ctx, "oauth.Exchange")
	defer span.End()

	ctx = context.WithValue(ctx, oauth2.HTTPClient, e.client)

	tok, err := e.oauth.Exchange(ctx, code)
	if err != nil {
		xerr := tokenError(err)
		span.SetStatus(codes.Error, xerr.Error())
		return store.BoundUser{}, xerr
	}

	profile, err := e.fetchProfile(ctx, tok)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return store.BoundUser{}, err
	}
	span.SetAttributes(attribute.String("user_id", profile.ID))

	return store.BoundUser{
		ID:          profile.ID,
		Username:    profile.Username,
		AccessToken: tok.AccessToken,
		TokenType:   tok.Type(),
	}, nil
}

type discordProfile struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

func (e *Exchanger) fetchProfile(ctx context.Context, tok *oauth2.Token) (*discordProfile, error) {
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(tok))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.apiBase+"/users/@me", nil)
	if err != nil {
		return nil, &ExchangeError{Step: "profile", Detail: err.Error(), Err: err}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &ExchangeError{Step: "profile", Detail: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return nil, &ExchangeError{Step: "profile", Status: resp.StatusCode, Detail: strings.TrimSpace(string(body))}
	}

	var p discordProfile
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, &ExchangeError{Step: "profile", Status: resp.StatusCode, Detail: "decode profile: " + err.Error(), Err: err}
	}
	if err := store.ValidateUserID(p.ID); err != nil {
		return nil, &ExchangeError{Step: "profile", Status: resp.StatusCode, Detail: err.Error(), Err: err}
	}
	return &p, nil
}

func tokenError(err error) *ExchangeError {
	xerr := &ExchangeError{Step: "token", Detail: err.Error(), Err: err}

	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		if rerr.Response != nil {
			xerr.Status = rerr.Response.StatusCode
		}
		switch {
		case rerr.ErrorCode != "" && rerr.ErrorDescription != "":
			xerr.Detail = rerr.ErrorCode + ": " + rerr.ErrorDescription
		case rerr.ErrorCode != "":
			xerr.Detail = rerr.ErrorCode
		case len(rerr.Body) > 0:
			xerr.Detail = strings.TrimSpace(string(rerr.Body))
		}
	}
	return xerr
}
