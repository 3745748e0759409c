package oauth

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrStateNotFound signals a pending state token that never existed or
	// was already consumed.
	ErrStateNotFound = errors.New("oauth: state not found")
	// ErrStateExpired signals a pending state token past its TTL.
	ErrStateExpired = errors.New("oauth: state expired")
)

// Error is the caller-facing failure shape for the auth subsystem. Code is
// machine-readable, Message human-readable, and Details optionally carries
// the upstream provider's error token.
type Error struct {
	Code    string
	Status  int
	Message string
	Details string
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ErrNotConfigured reports missing Google client credentials.
func ErrNotConfigured() *Error {
	return &Error{Code: "oauth_not_configured", Status: http.StatusInternalServerError, Message: "Google OAuth client credentials are not configured."}
}

// ErrDenied reports an error parameter sent by the provider on callback.
func ErrDenied(providerError string) *Error {
	return &Error{Code: "oauth_denied", Status: http.StatusBadRequest, Message: "Google reported an authorization error.", Details: providerError}
}

// ErrInvalidState reports a missing or mismatched CSRF state token.
func ErrInvalidState() *Error {
	return &Error{Code: "invalid_state", Status: http.StatusBadRequest, Message: "OAuth state is missing or does not match."}
}

// ErrExpiredState reports a state token past its TTL.
func ErrExpiredState() *Error {
	return &Error{Code: "expired_state", Status: http.StatusBadRequest, Message: "OAuth state has expired. Restart the login flow."}
}

// ErrCodeExchangeFailed reports a failed authorization-code exchange.
func ErrCodeExchangeFailed(details string) *Error {
	return &Error{Code: "code_exchange_failed", Status: http.StatusBadGateway, Message: "Exchanging the authorization code with Google failed.", Details: details}
}

// ErrMissingTokens reports a token response carrying neither an access token
// nor a usable refresh token.
func ErrMissingTokens() *Error {
	return &Error{Code: "missing_tokens", Status: http.StatusBadGateway, Message: "Google returned no usable tokens."}
}

// ErrNotConnected reports that no refresh token is stored.
func ErrNotConnected() *Error {
	return &Error{Code: "not_connected", Status: http.StatusUnauthorized, Message: "Google account is not connected."}
}

// ErrInvalidGrant reports a refresh token rejected by Google. The stored
// state has been cleared; the caller must re-authorize.
func ErrInvalidGrant() *Error {
	return &Error{Code: "invalid_grant", Status: http.StatusUnauthorized, Message: "Google rejected the stored refresh token. Reconnect the account."}
}

// ErrRefreshFailed reports a provider-side refresh failure that may be
// transient; stored state is left untouched.
func ErrRefreshFailed(details string) *Error {
	return &Error{Code: "token_refresh_failed", Status: http.StatusBadGateway, Message: "Refreshing the Google access token failed.", Details: details}
}

// ErrInternal wraps any uncategorized failure surfaced by the dispatcher.
func ErrInternal(details string) *Error {
	return &Error{Code: "google_auth_internal_error", Status: http.StatusInternalServerError, Message: "Internal authentication error.", Details: details}
}

// ProviderError carries a structured non-2xx response from Google's token or
// revoke endpoints.
type ProviderError struct {
	StatusCode  int
	ErrorCode   string
	Description string
}

func (e *ProviderError) Error() string {
	if e.ErrorCode != "" {
		return fmt.Sprintf("google: %s (status=%d)", e.ErrorCode, e.StatusCode)
	}
	return fmt.Sprintf("google: request failed (status=%d)", e.StatusCode)
}
