package google

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/google-connect/internal/domain/oauth"
)

// Default Google OAuth2 endpoints. Overridable through Endpoints for tests.
const (
	DefaultAuthURL   = "https://accounts.google.com/o/oauth2/v2/auth"
	DefaultTokenURL  = "https://oauth2.googleapis.com/token"
	DefaultRevokeURL = "https://oauth2.googleapis.com/revoke"
)

// Client encapsulates outbound HTTP calls to Google's OAuth endpoints.
type Client interface {
	ExchangeCode(ctx context.Context, code, redirectURI string) (*oauth.TokenResponse, error)
	RefreshAccessToken(ctx context.Context, refreshToken string) (*oauth.TokenResponse, error)
	RevokeToken(ctx context.Context, token string) error
}

// Endpoints holds the provider URLs used by the HTTP client.
type Endpoints struct {
	AuthURL   string
	TokenURL  string
	RevokeURL string
}

// DefaultEndpoints returns Google's production endpoints.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		AuthURL:   DefaultAuthURL,
		TokenURL:  DefaultTokenURL,
		RevokeURL: DefaultRevokeURL,
	}
}

// HTTPClient is the default Client implementation.
type HTTPClient struct {
	httpClient   *http.Client
	endpoints    Endpoints
	clientID     string
	clientSecret string
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient constructs the default Client. A nil http.Client gets a
// 10 second timeout.
func NewHTTPClient(client *http.Client, endpoints Endpoints, clientID, clientSecret string) *HTTPClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if endpoints.TokenURL == "" {
		endpoints = DefaultEndpoints()
	}
	return &HTTPClient{
		httpClient:   client,
		endpoints:    endpoints,
		clientID:     clientID,
		clientSecret: clientSecret,
	}
}

// ExchangeCode performs the authorization_code grant.
func (c *HTTPClient) ExchangeCode(ctx context.Context, code, redirectURI string) (*oauth.TokenResponse, error) {
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("redirect_uri", redirectURI)
	return c.postTokenRequest(ctx, data)
}

// RefreshAccessToken performs the refresh_token grant.
func (c *HTTPClient) RefreshAccessToken(ctx context.Context, refreshToken string) (*oauth.TokenResponse, error) {
	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)
	return c.postTokenRequest(ctx, data)
}

// RevokeToken revokes a refresh or access token. Google returns 200 for
// already revoked tokens, so only transport and hard provider failures
// surface here.
func (c *HTTPClient) RevokeToken(ctx context.Context, token string) error {
	data := url.Values{}
	data.Set("token", token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoints.RevokeURL, strings.NewReader(data.Encode()))
	if err != nil {
		return fmt.Errorf("build revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("revoke request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return providerError(resp.StatusCode, body)
	}
	return nil
}

func (c *HTTPClient) postTokenRequest(ctx context.Context, data url.Values) (*oauth.TokenResponse, error) {
	data.Set("client_id", c.clientID)
	if c.clientSecret != "" {
		data.Set("client_secret", c.clientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoints.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, providerError(resp.StatusCode, body)
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}

	token := &oauth.TokenResponse{
		AccessToken:  stringValue(raw["access_token"]),
		RefreshToken: stringValue(raw["refresh_token"]),
		TokenType:    stringValue(raw["token_type"]),
		IDToken:      stringValue(raw["id_token"]),
		Scope:        stringValue(raw["scope"]),
		Raw:          raw,
	}
	if exp := raw["expires_in"]; exp != nil {
		token.ExpiresIn = int64Value(exp)
	}
	return token, nil
}

func providerError(status int, body []byte) *oauth.ProviderError {
	perr := &oauth.ProviderError{StatusCode: status}
	var payload struct {
		Error       string `json:"error"`
		Description string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		perr.ErrorCode = payload.Error
		perr.Description = payload.Description
	}
	return perr
}

func stringValue(input any) string {
	switch v := input.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func int64Value(input any) int64 {
	switch v := input.(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case json.Number:
		n, _ := v.Int64()
		return n
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return 0
}
