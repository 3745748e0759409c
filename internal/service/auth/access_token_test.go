package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/google-connect/internal/domain/oauth"
)

func TestEnsureAccessToken_NotConfigured(t *testing.T) {
	h := newAuthTestHarness(t)
	h.cfg.GoogleClientID = ""
	h.rebuild()

	_, err := h.service.EnsureAccessToken(context.Background())
	requireAuthError(t, err, "oauth_not_configured")
}

func TestEnsureAccessToken_NotConnected(t *testing.T) {
	h := newAuthTestHarness(t)
	_, err := h.service.EnsureAccessToken(context.Background())
	requireAuthError(t, err, "not_connected")
	require.Zero(t, h.client.refreshCalls)
}

func TestEnsureAccessToken_ValidTokenSkipsRefresh(t *testing.T) {
	h := newAuthTestHarness(t)
	ctx := context.Background()
	at := "AT1"
	rt := "RT1"
	exp := h.clock.now.Add(30 * time.Minute).UnixMilli()
	_, err := h.store.Write(ctx, oauth.StateUpdate{AccessToken: &at, RefreshToken: &rt, AccessTokenExpiresAt: &exp})
	require.NoError(t, err)

	token, err := h.service.EnsureAccessToken(ctx)
	require.NoError(t, err)
	require.Equal(t, "AT1", token.AccessToken)
	require.Equal(t, "Bearer", token.TokenType)
	require.Equal(t, exp, token.ExpiresAt)
	require.Zero(t, h.client.refreshCalls)
}

func TestEnsureAccessToken_RefreshesNearExpiry(t *testing.T) {
	h := newAuthTestHarness(t)
	ctx := context.Background()
	at := "AT-old"
	rt := "RT1"
	exp := h.clock.now.Add(30 * time.Second).UnixMilli()
	_, err := h.store.Write(ctx, oauth.StateUpdate{AccessToken: &at, RefreshToken: &rt, AccessTokenExpiresAt: &exp})
	require.NoError(t, err)

	h.client.refreshResp = &oauth.TokenResponse{AccessToken: "AT-new", TokenType: "Bearer", ExpiresIn: 3600}

	token, err := h.service.EnsureAccessToken(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, h.client.refreshCalls)
	require.Equal(t, "RT1", h.client.lastRefresh)
	require.Equal(t, "AT-new", token.AccessToken)
	require.Equal(t, h.clock.now.Add(time.Hour).UnixMilli(), token.ExpiresAt)

	// Refresh token is retained when the provider does not rotate it.
	state := h.store.Read(ctx)
	require.Equal(t, "RT1", state.RefreshToken)
	require.Equal(t, "AT-new", state.AccessToken)
}

func TestEnsureAccessToken_RefreshRotation(t *testing.T) {
	h := newAuthTestHarness(t)
	ctx := context.Background()
	rt := "RT1"
	_, err := h.store.Write(ctx, oauth.StateUpdate{RefreshToken: &rt})
	require.NoError(t, err)

	h.client.refreshResp = &oauth.TokenResponse{AccessToken: "AT1", RefreshToken: "RT2", ExpiresIn: 3600}

	_, err = h.service.EnsureAccessToken(ctx)
	require.NoError(t, err)
	require.Equal(t, "RT2", h.store.Read(ctx).RefreshToken)
}

func TestEnsureAccessToken_InvalidGrantClearsStore(t *testing.T) {
	h := newAuthTestHarness(t)
	ctx := context.Background()
	at := "AT1"
	rt := "RT-dead"
	sub := "sub-1"
	_, err := h.store.Write(ctx, oauth.StateUpdate{AccessToken: &at, RefreshToken: &rt, OpenIDSubject: &sub})
	require.NoError(t, err)

	h.client.refreshErr = &oauth.ProviderError{StatusCode: 400, ErrorCode: "invalid_grant"}

	_, err = h.service.EnsureAccessToken(ctx)
	requireAuthError(t, err, "invalid_grant")

	state := h.store.Read(ctx)
	require.Empty(t, state.RefreshToken)
	require.Empty(t, state.AccessToken)
	require.Empty(t, state.OpenIDSubject)

	// With the store wiped, subsequent calls report not connected.
	_, err = h.service.EnsureAccessToken(ctx)
	requireAuthError(t, err, "not_connected")
}

func TestEnsureAccessToken_TransientFailureKeepsStore(t *testing.T) {
	h := newAuthTestHarness(t)
	ctx := context.Background()
	rt := "RT1"
	_, err := h.store.Write(ctx, oauth.StateUpdate{RefreshToken: &rt})
	require.NoError(t, err)

	h.client.refreshErr = &oauth.ProviderError{StatusCode: 503, ErrorCode: "temporarily_unavailable"}

	_, err = h.service.EnsureAccessToken(ctx)
	authErr := requireAuthError(t, err, "token_refresh_failed")
	require.Equal(t, "temporarily_unavailable", authErr.Details)
	require.Equal(t, "RT1", h.store.Read(ctx).RefreshToken)
}

func TestEnsureAccessToken_EmptyAccessTokenInRefreshResponse(t *testing.T) {
	h := newAuthTestHarness(t)
	ctx := context.Background()
	rt := "RT1"
	_, err := h.store.Write(ctx, oauth.StateUpdate{RefreshToken: &rt})
	require.NoError(t, err)

	h.client.refreshResp = &oauth.TokenResponse{TokenType: "Bearer"}

	_, err = h.service.EnsureAccessToken(ctx)
	requireAuthError(t, err, "token_refresh_failed")
	require.Equal(t, "RT1", h.store.Read(ctx).RefreshToken)
}

func TestEnsureAccessToken_DefaultLifetimeWhenExpiresInOmitted(t *testing.T) {
	h := newAuthTestHarness(t)
	ctx := context.Background()
	rt := "RT1"
	_, err := h.store.Write(ctx, oauth.StateUpdate{RefreshToken: &rt})
	require.NoError(t, err)

	h.client.refreshResp = &oauth.TokenResponse{AccessToken: "AT1"}

	token, err := h.service.EnsureAccessToken(ctx)
	require.NoError(t, err)
	require.Equal(t, h.clock.now.Add(oauth.DefaultAccessTokenLifetime).UnixMilli(), token.ExpiresAt)
}
