// Package rating wires OAuth2 credentials for the rating scope into a
// ytapi.TokenSource, persisting a refreshed token back to disk so the
// Worker never needs interactive re-authentication after the first
// grant.
package rating

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"
)

// Scope is the OAuth2 scope required to get/set a video's rating.
const Scope = "https://www.googleapis.com/auth/youtube"

// tokenFileMode restricts the persisted token to owner read/write,
// since it carries a long-lived refresh token.
const tokenFileMode = 0o600

// FileTokenSource wraps an oauth2.TokenSource, persisting the token to
// path every time the underlying source issues a new access token. It
// implements ytapi.TokenSource.
type FileTokenSource struct {
	mu     sync.Mutex
	path   string
	source oauth2.TokenSource
	last   string
}

// NewFileTokenSource loads a previously persisted token from path and
// wraps config's TokenSource around it so refreshes happen
// transparently and are written back to path.
func NewFileTokenSource(ctx context.Context, config *oauth2.Config, path string) (*FileTokenSource, error) {
	initial, err := loadToken(path)
	if err != nil {
		return nil, fmt.Errorf("rating: loading persisted token from %s: %w", path, err)
	}

	return &FileTokenSource{
		path:   path,
		source: config.TokenSource(ctx, initial),
		last:   initial.AccessToken,
	}, nil
}

// Token returns the current access token, refreshing and persisting a
// new one via the wrapped oauth2.TokenSource if needed.
func (f *FileTokenSource) Token(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	tok, err := f.source.Token()
	if err != nil {
		return "", fmt.Errorf("rating: refreshing oauth2 token: %w", err)
	}

	if tok.AccessToken != f.last {
		if err := persistToken(f.path, tok); err != nil {
			return "", fmt.Errorf("rating: persisting refreshed token: %w", err)
		}
		f.last = tok.AccessToken
	}

	return tok.AccessToken, nil
}

func loadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("decoding token file: %w", err)
	}
	return &tok, nil
}

func persistToken(path string, tok *oauth2.Token) error {
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".token-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp token file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp token file: %w", err)
	}
	if err := os.Chmod(tmpPath, tokenFileMode); err != nil {
		return fmt.Errorf("setting token file permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replacing token file: %w", err)
	}
	return nil
}
