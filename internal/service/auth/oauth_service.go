package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	googleadapter "github.com/smallbiznis/google-connect/internal/adapter/google"
	"github.com/smallbiznis/google-connect/internal/config"
	"github.com/smallbiznis/google-connect/internal/domain/oauth"
	"github.com/smallbiznis/google-connect/internal/idtoken"
	"github.com/smallbiznis/google-connect/internal/statestore"
	"github.com/smallbiznis/google-connect/internal/tokenstore"
)

// CallbackPath is the fixed callback route appended to the request origin
// when no redirect URL is pinned in configuration.
const CallbackPath = "/api/auth/google/callback"

const stateTokenBytes = 32

// Service defines the Google connection lifecycle behaviors.
type Service interface {
	StartAuthorization(ctx context.Context, in StartInput) (*StartOutput, error)
	HandleCallback(ctx context.Context, in CallbackInput) (*CallbackOutput, error)
	EnsureAccessToken(ctx context.Context) (*AccessToken, error)
	Status(ctx context.Context) *ConnectionStatus
	Disconnect(ctx context.Context) error
}

// StartInput carries the request origin used to derive the callback URL.
type StartInput struct {
	Origin string
}

// StartOutput returns the prepared consent URL and the issued state token.
type StartOutput struct {
	AuthorizationURL string
	State            string
}

// CallbackInput captures the provider callback parameters together with the
// state cookie round-tripped through the browser.
type CallbackInput struct {
	Code          string
	State         string
	CookieState   string
	ProviderError string
	Origin        string
}

// CallbackOutput tells the handler where to send the browser next.
type CallbackOutput struct {
	RedirectTo string
}

// AccessToken is a currently valid access token with its absolute expiry in
// epoch milliseconds.
type AccessToken struct {
	AccessToken string
	TokenType   string
	ExpiresAt   int64
}

// ConnectionStatus is the read-only connection report.
type ConnectionStatus struct {
	Connected     bool
	OpenIDSubject string
	Scope         string
	Configured    bool
}

type service struct {
	cfg      config.Config
	store    tokenstore.Store
	registry *statestore.Registry
	client   googleadapter.Client
	authURL  string
	now      func() time.Time
	logger   *zap.Logger
}

// NewService wires the Google connection service.
func NewService(
	cfg config.Config,
	store tokenstore.Store,
	registry *statestore.Registry,
	client googleadapter.Client,
	endpoints googleadapter.Endpoints,
	logger *zap.Logger,
) Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &service{
		cfg:      cfg,
		store:    store,
		registry: registry,
		client:   client,
		authURL:  endpoints.AuthURL,
		now:      time.Now,
		logger:   logger,
	}
}

func (s *service) StartAuthorization(_ context.Context, in StartInput) (*StartOutput, error) {
	if !s.cfg.ProviderConfigured() {
		return nil, oauth.ErrNotConfigured()
	}

	state, err := secureStateToken()
	if err != nil {
		return nil, fmt.Errorf("generate state: %w", err)
	}
	s.registry.Remember(state)

	consentURL, err := url.Parse(s.authURL)
	if err != nil {
		return nil, fmt.Errorf("parse auth url: %w", err)
	}
	params := consentURL.Query()
	params.Set("client_id", s.cfg.GoogleClientID)
	params.Set("response_type", "code")
	params.Set("redirect_uri", s.resolveRedirectURI(in.Origin))
	params.Set("scope", strings.Join(s.cfg.Scopes, " "))
	params.Set("access_type", "offline")
	params.Set("prompt", "consent")
	params.Set("state", state)
	consentURL.RawQuery = params.Encode()

	return &StartOutput{
		AuthorizationURL: consentURL.String(),
		State:            state,
	}, nil
}

func (s *service) HandleCallback(ctx context.Context, in CallbackInput) (*CallbackOutput, error) {
	if !s.cfg.ProviderConfigured() {
		return nil, oauth.ErrNotConfigured()
	}
	if strings.TrimSpace(in.ProviderError) != "" {
		return nil, oauth.ErrDenied(in.ProviderError)
	}
	if err := validateCallbackState(in); err != nil {
		return nil, err
	}
	if err := s.registry.Consume(in.State); err != nil {
		switch {
		case errors.Is(err, oauth.ErrStateExpired):
			return nil, oauth.ErrExpiredState()
		default:
			return nil, oauth.ErrInvalidState()
		}
	}

	tokenResp, err := s.client.ExchangeCode(ctx, in.Code, s.resolveRedirectURI(in.Origin))
	if err != nil {
		return nil, oauth.ErrCodeExchangeFailed(providerDetail(err))
	}

	stored := s.store.Read(ctx)
	effectiveRefresh := tokenResp.RefreshToken
	if effectiveRefresh == "" {
		// Google omits refresh_token on repeat consent; keep the prior one.
		effectiveRefresh = stored.RefreshToken
	}
	if tokenResp.AccessToken == "" && effectiveRefresh == "" {
		return nil, oauth.ErrMissingTokens()
	}

	expiresAt := s.tokenExpiry(tokenResp.ExpiresIn)
	update := oauth.StateUpdate{
		AccessToken:          &tokenResp.AccessToken,
		AccessTokenExpiresAt: &expiresAt,
	}
	if tokenResp.RefreshToken != "" {
		update.RefreshToken = &tokenResp.RefreshToken
	}
	if tokenResp.TokenType != "" {
		update.TokenType = &tokenResp.TokenType
	}
	if tokenResp.Scope != "" {
		update.Scope = &tokenResp.Scope
	}
	if subject := idtoken.Subject(tokenResp.IDToken); subject != "" {
		update.OpenIDSubject = &subject
	}
	if _, err := s.store.Write(ctx, update); err != nil {
		return nil, fmt.Errorf("persist tokens: %w", err)
	}

	return &CallbackOutput{RedirectTo: s.cfg.PostAuthRedirect}, nil
}

func (s *service) Status(ctx context.Context) *ConnectionStatus {
	stored := s.store.Read(ctx)
	nowMillis := s.now().UnixMilli()
	connected := stored.RefreshToken != "" ||
		(stored.AccessToken != "" && stored.AccessTokenExpiresAt > nowMillis)
	return &ConnectionStatus{
		Connected:     connected,
		OpenIDSubject: stored.OpenIDSubject,
		Scope:         stored.Scope,
		Configured:    s.cfg.ProviderConfigured(),
	}
}

// Disconnect best-effort-revokes whichever credential is available, then
// wipes the local store. Revoke failures are swallowed: local disconnect
// must succeed even when Google is unreachable.
func (s *service) Disconnect(ctx context.Context) error {
	stored := s.store.Read(ctx)
	credential := stored.RefreshToken
	if credential == "" {
		credential = stored.AccessToken
	}
	if credential != "" {
		if err := s.client.RevokeToken(ctx, credential); err != nil {
			s.logger.Warn("token revocation failed", zap.Error(err))
		}
	}
	if _, err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear token store: %w", err)
	}
	return nil
}

func (s *service) resolveRedirectURI(origin string) string {
	if s.cfg.RedirectURL != "" {
		return s.cfg.RedirectURL
	}
	return strings.TrimRight(origin, "/") + CallbackPath
}

func (s *service) tokenExpiry(expiresIn int64) int64 {
	lifetime := s.cfg.DefaultTokenTTL
	if lifetime <= 0 {
		lifetime = oauth.DefaultAccessTokenLifetime
	}
	if expiresIn > 0 {
		lifetime = time.Duration(expiresIn) * time.Second
	}
	return s.now().Add(lifetime).UnixMilli()
}

func validateCallbackState(in CallbackInput) error {
	if strings.TrimSpace(in.State) == "" || strings.TrimSpace(in.Code) == "" {
		return oauth.ErrInvalidState()
	}
	if in.CookieState == "" || in.CookieState != in.State {
		// The cookie binds the callback to the browser session that
		// started the flow; the registry alone only prevents replay.
		return oauth.ErrInvalidState()
	}
	return nil
}

func providerDetail(err error) string {
	var perr *oauth.ProviderError
	if errors.As(err, &perr) && perr.ErrorCode != "" {
		return perr.ErrorCode
	}
	return err.Error()
}

func secureStateToken() (string, error) {
	buf := make([]byte, stateTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
