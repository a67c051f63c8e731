package faresdk

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// TokenSource supplies the bearer token for authenticated requests.
// An empty token means nobody is logged in.
type TokenSource interface {
	Token() string
}

// Client is a client for the bus-fare backend.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	// Tokens is consulted on every authenticated request.
	Tokens TokenSource

	// OnUnauthorized is invoked when an authenticated request is rejected
	// with 401. It receives the token that was rejected and runs before the
	// error is returned to the caller.
	OnUnauthorized func(ctx context.Context, rejectedToken string)
}

// NewClient creates a client with a 10 second request timeout.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *Client) token() string {
	if c.Tokens == nil {
		return ""
	}
	return c.Tokens.Token()
}
