package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"revstats/internal/logging"
	"revstats/internal/util"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// TokenPath is the Revcontent OAuth2 token endpoint, relative to the API base URL.
const TokenPath = "/oauth/token"

// ErrNotLoggedIn is returned when a request is authorized before Login succeeded.
var ErrNotLoggedIn = errors.New("not logged in: no access token")

// Error reports a failed token exchange. StatusCode is zero when the failure
// happened before an HTTP response was received.
type Error struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("authentication failed: %v", e.Err)
	}
	return fmt.Sprintf("authentication failed: %d: %s", e.StatusCode, e.Body)
}

func (e *Error) Unwrap() error { return e.Err }

// ClientCredentials obtains and holds a bearer token using the OAuth2
// client-credentials grant. The token is fetched once and reused until
// Refresh is called explicitly.
type ClientCredentials struct {
	cfg        clientcredentials.Config
	httpClient *http.Client

	mu    sync.Mutex
	token *oauth2.Token
}

// NewClientCredentials creates an authenticator for the API at baseURL.
// httpClient is used for the token exchange; nil means http.DefaultClient.
func NewClientCredentials(baseURL, clientID, clientSecret string, httpClient *http.Client) *ClientCredentials {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &ClientCredentials{
		cfg: clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     strings.TrimRight(baseURL, "/") + TokenPath,
			AuthStyle:    oauth2.AuthStyleInParams, // client_id/client_secret go in the form body
		},
		httpClient: httpClient,
	}
}

// Login performs the token exchange unless a token is already held.
func (c *ClientCredentials) Login(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != nil {
		return nil
	}
	return c.exchangeLocked(ctx)
}

// Refresh discards the held token and performs a fresh exchange.
func (c *ClientCredentials) Refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = nil
	return c.exchangeLocked(ctx)
}

func (c *ClientCredentials) exchangeLocked(ctx context.Context) error {
	logging.Logf(logging.Info, "Logging in to %s as client %s", c.cfg.TokenURL, util.MaskSecret(c.cfg.ClientID))
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	tok, err := c.cfg.Token(ctx)
	if err != nil {
		var rErr *oauth2.RetrieveError
		if errors.As(err, &rErr) && rErr.Response != nil {
			logging.Logf(logging.Error, "Failed to get Revcontent access token (status %d)", rErr.Response.StatusCode)
			return &Error{StatusCode: rErr.Response.StatusCode, Body: string(rErr.Body), Err: err}
		}
		logging.Logf(logging.Error, "Failed to get Revcontent access token: %v", err)
		return &Error{Err: err}
	}
	c.token = tok
	logging.Logf(logging.Info, "Logged in")
	return nil
}

// AccessToken returns the current token, or "" before Login.
func (c *ClientCredentials) AccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == nil {
		return ""
	}
	return c.token.AccessToken
}

// Apply sets the bearer Authorization header on req.
func (c *ClientCredentials) Apply(req *http.Request) error {
	tok := c.AccessToken()
	if tok == "" {
		return ErrNotLoggedIn
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	return nil
}
