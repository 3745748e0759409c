package oauth

import "time"

// DefaultScope is the fixed scope set requested from Google on every
// authorization. The calendar UI only needs read access plus the OpenID
// claims used to display the connected account.
const DefaultScope = "openid email https://www.googleapis.com/auth/calendar"

// DefaultTokenType is assumed whenever the provider omits token_type.
const DefaultTokenType = "Bearer"

// DefaultAccessTokenLifetime is applied when the provider omits expires_in.
// Google access tokens live for an hour; 55 minutes leaves headroom.
const DefaultAccessTokenLifetime = 55 * time.Minute

// StoredAuthState is the single persisted record for this installation.
// Empty RefreshToken means never authorized (or revoked); zero
// AccessTokenExpiresAt means unknown or expired.
type StoredAuthState struct {
	RefreshToken         string `json:"refreshToken"`
	AccessToken          string `json:"accessToken"`
	TokenType            string `json:"tokenType"`
	Scope                string `json:"scope"`
	AccessTokenExpiresAt int64  `json:"accessTokenExpiresAt"`
	OpenIDSubject        string `json:"openIdSubject"`
	UpdatedAt            string `json:"updatedAt"`
}

// StateUpdate carries a partial mutation of the stored record. Nil fields
// keep their previous value.
type StateUpdate struct {
	RefreshToken         *string
	AccessToken          *string
	TokenType            *string
	Scope                *string
	AccessTokenExpiresAt *int64
	OpenIDSubject        *string
}

// Normalize coerces an untyped JSON document into a canonical record.
// Missing or malformed fields fall back to safe defaults, so a missing,
// empty, or corrupted file reads as an all-defaults record rather than an
// error. Both the store's load path and Clear go through here.
func Normalize(raw map[string]any) StoredAuthState {
	state := StoredAuthState{
		RefreshToken:         stringField(raw, "refreshToken"),
		AccessToken:          stringField(raw, "accessToken"),
		TokenType:            stringField(raw, "tokenType"),
		Scope:                stringField(raw, "scope"),
		AccessTokenExpiresAt: int64Field(raw, "accessTokenExpiresAt"),
		OpenIDSubject:        stringField(raw, "openIdSubject"),
		UpdatedAt:            stringField(raw, "updatedAt"),
	}
	if state.TokenType == "" {
		state.TokenType = DefaultTokenType
	}
	if state.Scope == "" {
		state.Scope = DefaultScope
	}
	if state.AccessTokenExpiresAt < 0 {
		state.AccessTokenExpiresAt = 0
	}
	return state
}

// TokenResponse models the payload returned by Google's token endpoint for
// both the authorization_code and refresh_token grants.
type TokenResponse struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
	TokenType    string
	IDToken      string
	Scope        string
	Raw          map[string]any
}

func stringField(raw map[string]any, key string) string {
	if raw == nil {
		return ""
	}
	if v, ok := raw[key].(string); ok {
		return v
	}
	return ""
}

func int64Field(raw map[string]any, key string) int64 {
	if raw == nil {
		return 0
	}
	switch v := raw[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}
