package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/smallbiznis/google-connect/internal/domain/oauth"
)

// EnsureAccessToken returns a currently valid access token, refreshing
// lazily when fewer than the configured skew seconds remain. Two
// near-simultaneous expiring-token requests may both refresh; the refresh is
// idempotent on Google's side and the last store write wins.
func (s *service) EnsureAccessToken(ctx context.Context) (*AccessToken, error) {
	if !s.cfg.ProviderConfigured() {
		return nil, oauth.ErrNotConfigured()
	}

	stored := s.store.Read(ctx)
	skew := s.cfg.AccessTokenSkew
	if skew <= 0 {
		skew = time.Minute
	}
	if stored.AccessToken != "" && stored.AccessTokenExpiresAt > s.now().Add(skew).UnixMilli() {
		return &AccessToken{
			AccessToken: stored.AccessToken,
			TokenType:   stored.TokenType,
			ExpiresAt:   stored.AccessTokenExpiresAt,
		}, nil
	}
	if stored.RefreshToken == "" {
		return nil, oauth.ErrNotConnected()
	}
	return s.refreshAccessToken(ctx, stored)
}

// refreshAccessToken exchanges the stored refresh token for a new access
// token. An invalid_grant response means the refresh token is permanently
// dead: the store is fully cleared and the caller must restart the
// authorization flow. Any other provider failure leaves the store untouched
// since it may be transient.
func (s *service) refreshAccessToken(ctx context.Context, stored oauth.StoredAuthState) (*AccessToken, error) {
	if stored.RefreshToken == "" {
		return nil, oauth.ErrNotConnected()
	}

	tokenResp, err := s.client.RefreshAccessToken(ctx, stored.RefreshToken)
	if err != nil {
		var perr *oauth.ProviderError
		if errors.As(err, &perr) && perr.ErrorCode == "invalid_grant" {
			s.logger.Warn("refresh token rejected, clearing stored state")
			if _, clearErr := s.store.Clear(ctx); clearErr != nil {
				s.logger.Warn("failed to clear token store", zap.Error(clearErr))
			}
			return nil, oauth.ErrInvalidGrant()
		}
		return nil, oauth.ErrRefreshFailed(providerDetail(err))
	}
	if tokenResp.AccessToken == "" {
		return nil, oauth.ErrRefreshFailed("empty_access_token")
	}

	expiresAt := s.tokenExpiry(tokenResp.ExpiresIn)
	update := oauth.StateUpdate{
		AccessToken:          &tokenResp.AccessToken,
		AccessTokenExpiresAt: &expiresAt,
	}
	if tokenResp.RefreshToken != "" {
		// Google may rotate the refresh token.
		update.RefreshToken = &tokenResp.RefreshToken
	}
	if tokenResp.TokenType != "" {
		update.TokenType = &tokenResp.TokenType
	}
	if tokenResp.Scope != "" {
		update.Scope = &tokenResp.Scope
	}
	state, err := s.store.Write(ctx, update)
	if err != nil {
		return nil, fmt.Errorf("persist refreshed tokens: %w", err)
	}

	return &AccessToken{
		AccessToken: state.AccessToken,
		TokenType:   state.TokenType,
		ExpiresAt:   state.AccessTokenExpiresAt,
	}, nil
}
