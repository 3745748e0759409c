package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	googleadapter "github.com/smallbiznis/google-connect/internal/adapter/google"
	"github.com/smallbiznis/google-connect/internal/config"
	"github.com/smallbiznis/google-connect/internal/domain/oauth"
	httptransport "github.com/smallbiznis/google-connect/internal/http"
	httpHandler "github.com/smallbiznis/google-connect/internal/http/handler"
	authsvc "github.com/smallbiznis/google-connect/internal/service/auth"
	"github.com/smallbiznis/google-connect/internal/statestore"
	"github.com/smallbiznis/google-connect/internal/tokenstore"
)

func TestStatusFreshInstall(t *testing.T) {
	h := newRouterHarness(t)

	res := h.do(http.MethodGet, "/api/auth/google/status", nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, "no-store", res.Header().Get("Cache-Control"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	require.Equal(t, false, body["connected"])
	require.Equal(t, true, body["configured"])
	require.Nil(t, body["profile"])
	require.Equal(t, "", body["openIdSubject"])
}

func TestMethodNotAllowed(t *testing.T) {
	h := newRouterHarness(t)

	for path, method := range map[string]string{
		"/api/auth/google/status":       http.MethodPost,
		"/api/auth/google/start":        http.MethodDelete,
		"/api/auth/google/access-token": http.MethodGet,
		"/api/auth/google/disconnect":   http.MethodGet,
	} {
		res := h.do(method, path, nil)
		require.Equal(t, http.StatusMethodNotAllowed, res.Code, "%s %s", method, path)
		require.Contains(t, res.Body.String(), "method_not_allowed")
	}
}

func TestStartSetsStateCookieAndRedirects(t *testing.T) {
	h := newRouterHarness(t)

	res := h.do(http.MethodGet, "/api/auth/google/start", nil)
	require.Equal(t, http.StatusFound, res.Code)

	location, err := url.Parse(res.Header().Get("Location"))
	require.NoError(t, err)
	state := location.Query().Get("state")
	require.Len(t, state, 64)

	cookie := findCookie(t, res, httpHandler.StateCookieName)
	require.Equal(t, state, cookie.Value)
	require.True(t, cookie.HttpOnly)
	require.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	require.Equal(t, "/", cookie.Path)
}

func TestCallbackStateMismatch(t *testing.T) {
	h := newRouterHarness(t)
	h.registry.Remember("s2")

	req := httptest.NewRequest(http.MethodGet, "/api/auth/google/callback?code=abc&state=s2", nil)
	req.AddCookie(&http.Cookie{Name: httpHandler.StateCookieName, Value: "s1"})
	res := httptest.NewRecorder()
	h.router.ServeHTTP(res, req)

	require.Equal(t, http.StatusBadRequest, res.Code)
	require.Contains(t, res.Body.String(), "invalid_state")
	require.Zero(t, h.client.exchangeCalls)

	cookie := findCookie(t, res, httpHandler.StateCookieName)
	require.Empty(t, cookie.Value)
	require.Negative(t, cookie.MaxAge)
}

func TestFullConnectFlow(t *testing.T) {
	h := newRouterHarness(t)
	h.client.exchangeResp = &oauth.TokenResponse{
		AccessToken:  "AT1",
		RefreshToken: "RT1",
		TokenType:    "Bearer",
		ExpiresIn:    3600,
	}

	start := h.do(http.MethodGet, "/api/auth/google/start", nil)
	require.Equal(t, http.StatusFound, start.Code)
	location, err := url.Parse(start.Header().Get("Location"))
	require.NoError(t, err)
	state := location.Query().Get("state")
	stateCookie := findCookie(t, start, httpHandler.StateCookieName)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/google/callback?code=abc&state="+state, nil)
	req.AddCookie(&http.Cookie{Name: stateCookie.Name, Value: stateCookie.Value})
	callback := httptest.NewRecorder()
	h.router.ServeHTTP(callback, req)

	require.Equal(t, http.StatusFound, callback.Code)
	require.Equal(t, "/", callback.Header().Get("Location"))
	connected := findCookie(t, callback, httpHandler.ConnectedCookieName)
	require.Equal(t, "1", connected.Value)
	require.False(t, connected.HttpOnly)
	require.Positive(t, connected.MaxAge)

	status := h.do(http.MethodGet, "/api/auth/google/status", nil)
	require.Contains(t, status.Body.String(), `"connected":true`)

	tokenRes := h.do(http.MethodPost, "/api/auth/google/access-token", nil)
	require.Equal(t, http.StatusOK, tokenRes.Code)
	var tokenBody map[string]any
	require.NoError(t, json.Unmarshal(tokenRes.Body.Bytes(), &tokenBody))
	require.Equal(t, "AT1", tokenBody["accessToken"])
	require.Equal(t, "Bearer", tokenBody["tokenType"])
	require.NotZero(t, tokenBody["expiresAt"])
}

func TestAccessTokenNotConnected(t *testing.T) {
	h := newRouterHarness(t)

	res := h.do(http.MethodPost, "/api/auth/google/access-token", nil)
	require.Equal(t, http.StatusUnauthorized, res.Code)
	require.Contains(t, res.Body.String(), "not_connected")
}

func TestAccessTokenTriggersRefresh(t *testing.T) {
	h := newRouterHarness(t)
	ctx := context.Background()
	at := "AT-old"
	rt := "RT1"
	exp := time.Now().Add(30 * time.Second).UnixMilli()
	_, err := h.store.Write(ctx, oauth.StateUpdate{AccessToken: &at, RefreshToken: &rt, AccessTokenExpiresAt: &exp})
	require.NoError(t, err)
	h.client.refreshResp = &oauth.TokenResponse{AccessToken: "AT-new", TokenType: "Bearer", ExpiresIn: 3600}

	res := h.do(http.MethodPost, "/api/auth/google/access-token", nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, 1, h.client.refreshCalls)
	require.Contains(t, res.Body.String(), "AT-new")
}

func TestDisconnect(t *testing.T) {
	h := newRouterHarness(t)
	ctx := context.Background()
	rt := "RT1"
	_, err := h.store.Write(ctx, oauth.StateUpdate{RefreshToken: &rt})
	require.NoError(t, err)

	res := h.do(http.MethodPost, "/api/auth/google/disconnect", nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.Contains(t, res.Body.String(), `"connected":false`)
	require.Equal(t, 1, h.client.revokeCalls)

	cookie := findCookie(t, res, httpHandler.ConnectedCookieName)
	require.Empty(t, cookie.Value)
	require.Negative(t, cookie.MaxAge)

	require.Empty(t, h.store.Read(ctx).RefreshToken)
}

func TestUnmatchedAPIPathIs404(t *testing.T) {
	h := newRouterHarness(t)
	res := h.do(http.MethodGet, "/api/auth/google/unknown", nil)
	require.Equal(t, http.StatusNotFound, res.Code)
}

func TestNonAPIPathServesUI(t *testing.T) {
	h := newRouterHarness(t)
	res := h.do(http.MethodGet, "/calendar", nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.Contains(t, res.Body.String(), "<!doctype html>")
}

// ---- Test harness ----

type routerHarness struct {
	router   *gin.Engine
	store    tokenstore.Store
	registry *statestore.Registry
	client   *fakeGoogleClient
}

func newRouterHarness(t *testing.T) *routerHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	distDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(distDir, "index.html"), []byte("<!doctype html><title>calendar</title>"), 0o644))

	cfg := config.Config{
		GoogleClientID:     "client-id",
		GoogleClientSecret: "client-secret",
		PostAuthRedirect:   "/",
		Scopes:             strings.Fields(oauth.DefaultScope),
		UIDistDir:          distDir,
		StateTTL:           10 * time.Minute,
		AccessTokenSkew:    time.Minute,
		DefaultTokenTTL:    oauth.DefaultAccessTokenLifetime,
		ConnectedCookieTTL: 30 * 24 * time.Hour,
		ServiceName:        "google-connect-test",
	}

	store := tokenstore.NewFileStore(filepath.Join(t.TempDir(), "google-auth.json"), nil, zap.NewNop())
	registry := statestore.New(cfg.StateTTL, nil)
	client := &fakeGoogleClient{}
	svc := authsvc.NewService(cfg, store, registry, client, googleadapter.DefaultEndpoints(), zap.NewNop())
	authHandler := httpHandler.NewAuthHandler(svc, cfg, zap.NewNop())
	router := httptransport.NewRouter(cfg, authHandler, nil, zap.NewNop())

	return &routerHarness{router: router, store: store, registry: registry, client: client}
}

func (h *routerHarness) do(method, path string, body *strings.Reader) *httptest.ResponseRecorder {
	var req *http.Request
	if body == nil {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, body)
	}
	res := httptest.NewRecorder()
	h.router.ServeHTTP(res, req)
	return res
}

func findCookie(t *testing.T, res *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, cookie := range res.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	t.Fatalf("cookie %s not set", name)
	return nil
}

type fakeGoogleClient struct {
	exchangeResp  *oauth.TokenResponse
	exchangeErr   error
	exchangeCalls int

	refreshResp  *oauth.TokenResponse
	refreshErr   error
	refreshCalls int

	revokeErr   error
	revokeCalls int
}

var _ googleadapter.Client = (*fakeGoogleClient)(nil)

func (c *fakeGoogleClient) ExchangeCode(context.Context, string, string) (*oauth.TokenResponse, error) {
	c.exchangeCalls++
	if c.exchangeErr != nil {
		return nil, c.exchangeErr
	}
	if c.exchangeResp == nil {
		return &oauth.TokenResponse{}, nil
	}
	return c.exchangeResp, nil
}

func (c *fakeGoogleClient) RefreshAccessToken(context.Context, string) (*oauth.TokenResponse, error) {
	c.refreshCalls++
	if c.refreshErr != nil {
		return nil, c.refreshErr
	}
	if c.refreshResp == nil {
		return &oauth.TokenResponse{}, nil
	}
	return c.refreshResp, nil
}

func (c *fakeGoogleClient) RevokeToken(context.Context, string) error {
	c.revokeCalls++
	return c.revokeErr
}
