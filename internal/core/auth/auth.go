// Package auth owns the bearer-token lifecycle for the vendor cloud API:
// password-grant acquisition, expiry tracking and refresh. A token is
// replaced wholesale on every refresh and never partially mutated, so
// concurrent readers always observe a consistent value.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/singleflight"
)

// tokenBuffer is the safety margin before expiry at which a token is
// considered stale and refreshed ahead of time.
const tokenBuffer = 120 * time.Second

// authTimeout bounds the auth endpoint round trip. The vendor auth service
// is far quicker than the data API, so this stays in seconds.
const authTimeout = 30 * time.Second

// Credentials hold everything needed for a password-grant login.
type Credentials struct {
	Email        string
	Password     string
	ClientID     string
	ClientSecret string
}

// Token is an immutable snapshot of a successful authentication.
type Token struct {
	BearerToken string
	ExpiresAt   time.Time
	AccountID   string
}

// Valid reports whether the token is still usable at the given instant,
// leaving the refresh buffer before the actual expiry.
func (t Token) Valid(now time.Time) bool {
	return t.BearerToken != "" && now.Add(tokenBuffer).Before(t.ExpiresAt)
}

// AuthError is returned when credentials are rejected or the auth endpoint
// cannot be reached. It is fatal to the session until corrected.
type AuthError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: request failed: %v", e.Err)
	}
	return fmt.Sprintf("auth: request failed with status %d: %s", e.StatusCode, e.Body)
}

func (e *AuthError) Unwrap() error { return e.Err }

// TokenManager acquires and refreshes bearer tokens. Refreshes are
// single-flight: concurrent callers that find a stale token share one
// in-flight authentication instead of stampeding the auth endpoint.
type TokenManager struct {
	authURL string
	creds   Credentials
	client  *resty.Client
	log     *slog.Logger

	mu    sync.RWMutex
	token *Token

	refresh singleflight.Group
}

// NewTokenManager creates a token manager for the given auth endpoint.
func NewTokenManager(authURL string, creds Credentials, log *slog.Logger) *TokenManager {
	client := resty.New().
		SetTimeout(authTimeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &TokenManager{
		authURL: authURL,
		creds:   creds,
		client:  client,
		log:     log,
	}
}

// Token returns a valid token, authenticating or refreshing transparently
// when none is held or the held one is inside the expiry buffer.
func (m *TokenManager) Token(ctx context.Context) (Token, error) {
	m.mu.RLock()
	tok := m.token
	m.mu.RUnlock()

	if tok != nil && tok.Valid(time.Now()) {
		return *tok, nil
	}
	return m.ForceRefresh(ctx)
}

// ForceRefresh discards any held token and authenticates again. Concurrent
// callers await the same in-flight refresh and receive its result.
func (m *TokenManager) ForceRefresh(ctx context.Context) (Token, error) {
	v, err, shared := m.refresh.Do("token", func() (interface{}, error) {
		tok, err := m.authenticate(ctx)
		if err != nil {
			return nil, err
		}

		m.mu.Lock()
		m.token = tok
		m.mu.Unlock()

		m.log.Info("authenticated with vendor API",
			"account_id", tok.AccountID, "expires_at", tok.ExpiresAt)
		return *tok, nil
	})
	if err != nil {
		return Token{}, err
	}
	if shared {
		m.log.Debug("token refresh shared with concurrent caller")
	}
	return v.(Token), nil
}

type authRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	GrantType    string `json:"grant_type"`
	Username     string `json:"username"`
	Password     string `json:"password"`
}

type authResponse struct {
	AccessToken string  `json:"access_token"`
	ExpiresIn   float64 `json:"expires_in"`
	UserID      string  `json:"userId"`
}

func (m *TokenManager) authenticate(ctx context.Context) (*Token, error) {
	body := authRequest{
		ClientID:     m.creds.ClientID,
		ClientSecret: m.creds.ClientSecret,
		GrantType:    "password",
		Username:     m.creds.Email,
		Password:     m.creds.Password,
	}

	// The auth service does not reliably label its responses as JSON, so
	// the body is decoded as JSON regardless of content type.
	var parsed authResponse
	resp, err := m.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&parsed).
		ForceContentType("application/json").
		Post(m.authURL)
	if err != nil {
		return nil, &AuthError{Err: err}
	}

	if resp.StatusCode() != 200 {
		m.log.Error("authentication rejected",
			"status", resp.StatusCode(), "body", string(resp.Body()))
		return nil, &AuthError{StatusCode: resp.StatusCode(), Body: string(resp.Body())}
	}

	if parsed.AccessToken == "" {
		return nil, &AuthError{StatusCode: resp.StatusCode(), Body: "response missing access_token"}
	}

	return &Token{
		BearerToken: parsed.AccessToken,
		ExpiresAt:   time.Now().Add(time.Duration(parsed.ExpiresIn * float64(time.Second))),
		AccountID:   parsed.UserID,
	}, nil
}
