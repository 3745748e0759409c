package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/smallbiznis/google-connect/internal/config"
	"github.com/smallbiznis/google-connect/internal/domain/oauth"
	authsvc "github.com/smallbiznis/google-connect/internal/service/auth"
)

// Cookie names used by the auth endpoints. The state cookie is HTTP-only;
// the connected cookie is readable by the calendar UI.
const (
	StateCookieName     = "gc_oauth_state"
	ConnectedCookieName = "gc_connected"
)

const stateCookieMaxAge = 600

// AuthHandler orchestrates the Google connection endpoints.
type AuthHandler struct {
	Auth   authsvc.Service
	Cfg    config.Config
	Logger *zap.Logger
}

// NewAuthHandler creates the handler set.
func NewAuthHandler(auth authsvc.Service, cfg config.Config, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{Auth: auth, Cfg: cfg, Logger: logger}
}

// Start issues a redirect to Google's consent URL and sets the state cookie.
func (h *AuthHandler) Start(c *gin.Context) {
	out, err := h.Auth.StartAuthorization(c.Request.Context(), authsvc.StartInput{
		Origin: originFromRequest(c.Request),
	})
	if err != nil {
		h.respondAuthError(c, err)
		return
	}
	h.setStateCookie(c, out.State)
	c.Redirect(http.StatusFound, out.AuthorizationURL)
}

// Callback validates the provider callback, exchanges the code, persists
// tokens, and redirects to the post-auth destination.
func (h *AuthHandler) Callback(c *gin.Context) {
	cookieState, _ := c.Cookie(StateCookieName)
	out, err := h.Auth.HandleCallback(c.Request.Context(), authsvc.CallbackInput{
		Code:          c.Query("code"),
		State:         c.Query("state"),
		CookieState:   cookieState,
		ProviderError: c.Query("error"),
		Origin:        originFromRequest(c.Request),
	})
	h.clearStateCookie(c)
	if err != nil {
		h.respondAuthError(c, err)
		return
	}
	h.setConnectedCookie(c)
	c.Redirect(http.StatusFound, out.RedirectTo)
}

// Status reports the connection state without network calls or mutation.
func (h *AuthHandler) Status(c *gin.Context) {
	status := h.Auth.Status(c.Request.Context())
	respondJSON(c, http.StatusOK, gin.H{
		"connected":     status.Connected,
		"profile":       nil,
		"openIdSubject": status.OpenIDSubject,
		"scopes":        status.Scope,
		"configured":    status.Configured,
	})
}

// AccessToken returns a currently valid access token, refreshing lazily.
func (h *AuthHandler) AccessToken(c *gin.Context) {
	token, err := h.Auth.EnsureAccessToken(c.Request.Context())
	if err != nil {
		h.respondAuthError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{
		"accessToken": token.AccessToken,
		"tokenType":   token.TokenType,
		"expiresAt":   token.ExpiresAt,
	})
}

// Disconnect revokes best-effort, wipes the local store, and clears the
// connected cookie.
func (h *AuthHandler) Disconnect(c *gin.Context) {
	if err := h.Auth.Disconnect(c.Request.Context()); err != nil {
		h.respondAuthError(c, err)
		return
	}
	h.clearConnectedCookie(c)
	respondJSON(c, http.StatusOK, gin.H{"connected": false})
}

// MethodNotAllowed answers any method mismatch on a matched path.
func MethodNotAllowed(c *gin.Context) {
	respondJSON(c, http.StatusMethodNotAllowed, gin.H{
		"error":   "method_not_allowed",
		"message": "Method not allowed.",
	})
}

func (h *AuthHandler) respondAuthError(c *gin.Context, err error) {
	var authErr *oauth.Error
	if !errors.As(err, &authErr) {
		authErr = oauth.ErrInternal(err.Error())
	}
	if authErr.Status >= http.StatusInternalServerError {
		h.Logger.Error("auth request failed", zap.String("code", authErr.Code), zap.Error(err))
	} else {
		h.Logger.Warn("auth request rejected", zap.String("code", authErr.Code), zap.Error(err))
	}
	body := gin.H{"error": authErr.Code, "message": authErr.Message}
	if authErr.Details != "" {
		body["details"] = authErr.Details
	}
	respondJSON(c, authErr.Status, body)
}

func respondJSON(c *gin.Context, status int, payload gin.H) {
	c.Header("Cache-Control", "no-store")
	c.JSON(status, payload)
}

func (h *AuthHandler) setStateCookie(c *gin.Context, state string) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     StateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   stateCookieMaxAge,
		HttpOnly: true,
		Secure:   requestIsSecure(c.Request),
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearStateCookie(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     StateCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   requestIsSecure(c.Request),
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) setConnectedCookie(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     ConnectedCookieName,
		Value:    "1",
		Path:     "/",
		MaxAge:   int(h.Cfg.ConnectedCookieTTL.Seconds()),
		HttpOnly: false,
		Secure:   requestIsSecure(c.Request),
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearConnectedCookie(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     ConnectedCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: false,
		Secure:   requestIsSecure(c.Request),
		SameSite: http.SameSiteLaxMode,
	})
}

func originFromRequest(r *http.Request) string {
	scheme := schemeOnly(r)
	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}
	return scheme + "://" + host
}

func schemeOnly(r *http.Request) string {
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		if r.TLS != nil {
			scheme = "https"
		} else {
			scheme = "http"
		}
	}
	return scheme
}

func requestIsSecure(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(schemeOnly(r), "https")
}
