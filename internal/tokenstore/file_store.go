package tokenstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/smallbiznis/google-connect/internal/domain/oauth"
)

// Store persists the single auth record for this installation.
type Store interface {
	Read(ctx context.Context) oauth.StoredAuthState
	Write(ctx context.Context, update oauth.StateUpdate) (oauth.StoredAuthState, error)
	Clear(ctx context.Context) (oauth.StoredAuthState, error)
}

// FileStore keeps the record in one pretty-printed JSON document on disk.
// There is no locking: the dev-server use case is single-process and
// low-concurrency, so the last writer wins.
type FileStore struct {
	path   string
	now    func() time.Time
	logger *zap.Logger
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a store rooted at path. A nil clock defaults to
// time.Now.
func NewFileStore(path string, now func() time.Time, logger *zap.Logger) *FileStore {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{path: path, now: now, logger: logger}
}

// Read loads the record, falling back to normalized defaults on a missing,
// unreadable, or malformed file. It never fails.
func (s *FileStore) Read(context.Context) oauth.StoredAuthState {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return oauth.Normalize(nil)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		s.logger.Warn("token store file is corrupted, using defaults",
			zap.String("path", s.path), zap.Error(err))
		return oauth.Normalize(nil)
	}
	return oauth.Normalize(raw)
}

// Write merges the partial update over the current record, normalizes, and
// persists the result with an advanced updatedAt timestamp.
func (s *FileStore) Write(ctx context.Context, update oauth.StateUpdate) (oauth.StoredAuthState, error) {
	state := s.Read(ctx)
	applyUpdate(&state, update)
	return s.persist(state)
}

// Clear resets every field to its default and persists the result.
func (s *FileStore) Clear(context.Context) (oauth.StoredAuthState, error) {
	return s.persist(oauth.Normalize(nil))
}

func (s *FileStore) persist(state oauth.StoredAuthState) (oauth.StoredAuthState, error) {
	state = oauth.Normalize(map[string]any{
		"refreshToken":         state.RefreshToken,
		"accessToken":          state.AccessToken,
		"tokenType":            state.TokenType,
		"scope":                state.Scope,
		"accessTokenExpiresAt": state.AccessTokenExpiresAt,
		"openIdSubject":        state.OpenIDSubject,
	})
	state.UpdatedAt = s.now().UTC().Format(time.RFC3339)

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return state, fmt.Errorf("create token store directory: %w", err)
	}
	payload, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return state, fmt.Errorf("encode token store: %w", err)
	}
	payload = append(payload, '\n')
	if err := os.WriteFile(s.path, payload, 0o600); err != nil {
		return state, fmt.Errorf("write token store: %w", err)
	}
	// WriteFile only applies the mode on create; tighten pre-existing files
	// best-effort.
	if err := os.Chmod(s.path, 0o600); err != nil {
		s.logger.Warn("failed to restrict token store permissions",
			zap.String("path", s.path), zap.Error(err))
	}
	return state, nil
}

func applyUpdate(state *oauth.StoredAuthState, update oauth.StateUpdate) {
	if update.RefreshToken != nil {
		state.RefreshToken = *update.RefreshToken
	}
	if update.AccessToken != nil {
		state.AccessToken = *update.AccessToken
	}
	if update.TokenType != nil {
		state.TokenType = *update.TokenType
	}
	if update.Scope != nil {
		state.Scope = *update.Scope
	}
	if update.AccessTokenExpiresAt != nil {
		state.AccessTokenExpiresAt = *update.AccessTokenExpiresAt
	}
	if update.OpenIDSubject != nil {
		state.OpenIDSubject = *update.OpenIDSubject
	}
}
