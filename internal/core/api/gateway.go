// Package api is the single chokepoint for authenticated calls to the
// vendor REST API. It injects the bearer token, classifies HTTP failures
// into RequestError, and performs exactly one transparent re-authentication
// retry when a call comes back unauthorized.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/trymwestin/eightsleep/internal/core/auth"
)

// requestTimeout bounds a single vendor API round trip. The data API is
// slow enough that the budget is minutes, not seconds.
const requestTimeout = 4 * time.Minute

// RequestError wraps any HTTP-level or transport-level failure from the
// vendor API. The original cause, when any, is preserved for errors.Is/As.
type RequestError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
	Err        error
}

func (e *RequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("api: %s %s: %v", e.Method, e.URL, e.Err)
	}
	return fmt.Sprintf("api: %s %s: status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

func (e *RequestError) Unwrap() error { return e.Err }

// ValidationError reports a caller-supplied value outside the accepted
// domain. It is raised before any network call is made.
type ValidationError struct {
	Field string
	Value string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("api: invalid %s: %q", e.Field, e.Value)
}

// Gateway issues authenticated requests against the vendor API.
type Gateway struct {
	client *resty.Client
	tokens *auth.TokenManager
	log    *slog.Logger
}

// NewGateway creates a gateway that signs requests with tokens from the
// given manager. Callers pass absolute URLs; the vendor splits its surface
// across several hosts so there is no single base URL.
func NewGateway(tokens *auth.TokenManager, log *slog.Logger) *Gateway {
	client := resty.New().SetTimeout(requestTimeout)

	return &Gateway{
		client: client,
		tokens: tokens,
		log:    log,
	}
}

// Get issues a GET and decodes the JSON response into out when non-nil.
func (g *Gateway) Get(ctx context.Context, url string, params map[string]string, out any) error {
	return g.do(ctx, http.MethodGet, url, params, nil, out, false)
}

// Put issues a PUT with a JSON body, decoding the response into out when
// non-nil. A nil out discards the payload (fire-and-forget writes).
func (g *Gateway) Put(ctx context.Context, url string, body, out any) error {
	return g.do(ctx, http.MethodPut, url, nil, body, out, false)
}

// Post issues a POST with a JSON body, decoding the response into out when
// non-nil.
func (g *Gateway) Post(ctx context.Context, url string, body, out any) error {
	return g.do(ctx, http.MethodPost, url, nil, body, out, false)
}

func (g *Gateway) do(ctx context.Context, method, url string, params map[string]string, body, out any, retried bool) error {
	tok, err := g.tokens.Token(ctx)
	if err != nil {
		return err
	}

	// Headers are built fresh per request; nothing mutable is shared
	// between concurrent calls.
	req := g.client.R().
		SetContext(ctx).
		SetHeaders(map[string]string{
			"Accept":        "application/json",
			"Content-Type":  "application/json",
			"User-Agent":    "okhttp/4.9.3",
			"Authorization": "Bearer " + tok.BearerToken,
		})

	if params != nil {
		req.SetQueryParams(params)
	}
	if body != nil {
		req.SetBody(body)
	}
	if out != nil {
		// Several vendor endpoints omit the JSON content type; decode the
		// body as JSON regardless.
		req.SetResult(out).ForceContentType("application/json")
	}

	resp, err := req.Execute(strings.ToUpper(method), url)
	if err != nil {
		return &RequestError{Method: method, URL: url, Err: err}
	}

	if resp.StatusCode() == http.StatusUnauthorized && !retried {
		g.log.Info("unauthorized response, refreshing token and retrying once",
			"method", method, "url", url)
		if _, err := g.tokens.ForceRefresh(ctx); err != nil {
			return err
		}
		return g.do(ctx, method, url, params, body, out, true)
	}

	if resp.StatusCode() >= 400 {
		g.log.Error("vendor API request failed",
			"method", method, "url", url, "status", resp.StatusCode())
		return &RequestError{
			Method:     method,
			URL:        url,
			StatusCode: resp.StatusCode(),
			Body:       string(resp.Body()),
		}
	}

	return nil
}
