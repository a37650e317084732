package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// ErrNotLoggedIn is returned when no token has been stored yet.
var ErrNotLoggedIn = errors.New("not logged in (run: punch login)")

// TokenStore persists the OAuth2 token under <base>/auth/token.json.
type TokenStore struct {
	path string
}

// NewTokenStore returns a store rooted at the data directory base.
func NewTokenStore(base string) *TokenStore {
	return &TokenStore{path: filepath.Join(base, "auth", "token.json")}
}

// Path returns the token file location.
func (s *TokenStore) Path() string { return s.path }

// Load loads a previously saved token from disk. It returns nil, nil when
// there is none.
func (s *TokenStore) Load() (*oauth2.Token, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading token file: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("corrupt token file (delete %s to re-authenticate): %w", s.path, err)
	}
	return &tok, nil
}

// Save persists a token to disk.
func (s *TokenStore) Save(tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("creating auth directory: %w", err)
	}
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling token: %w", err)
	}
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("saving token file: %w", err)
	}
	return nil
}

// Remove deletes the stored token.
func (s *TokenStore) Remove() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing token file: %w", err)
	}
	return nil
}

// OAuthConfig returns the oauth2.Config for the attendance API's token
// endpoint.
func OAuthConfig(tokenURL, clientID string) *oauth2.Config {
	return &oauth2.Config{
		ClientID: clientID,
		Endpoint: oauth2.Endpoint{
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// Login exchanges username and password for a token and stores it.
func Login(ctx context.Context, cfg *oauth2.Config, store *TokenStore, username, password string) (*oauth2.Token, error) {
	tok, err := cfg.PasswordCredentialsToken(ctx, username, password)
	if err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}
	if err := store.Save(tok); err != nil {
		return nil, err
	}
	return tok, nil
}

// TokenSource returns a token source over the stored token that refreshes
// it when needed and persists every refreshed token.
func TokenSource(ctx context.Context, cfg *oauth2.Config, store *TokenStore) (oauth2.TokenSource, *oauth2.Token, error) {
	tok, err := store.Load()
	if err != nil {
		return nil, nil, err
	}
	if tok == nil {
		return nil, nil, ErrNotLoggedIn
	}
	return &savingTokenSource{ts: cfg.TokenSource(ctx, tok), store: store, last: tok.AccessToken}, tok, nil
}

// savingTokenSource wraps a TokenSource and persists refreshed tokens.
type savingTokenSource struct {
	ts    oauth2.TokenSource
	store *TokenStore

	mu   sync.Mutex
	last string
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.ts.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		// Best-effort save; ignore errors.
		_ = s.store.Save(tok)
		s.last = tok.AccessToken
	}
	return tok, nil
}

// UserIDFromToken reads the user id from the access token's claims: the
// user_id claim when present, the subject otherwise. The signature is not
// checked; the server does that.
func UserIDFromToken(tok *oauth2.Token) (string, error) {
	if tok == nil || tok.AccessToken == "" {
		return "", ErrNotLoggedIn
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok.AccessToken, claims); err != nil {
		return "", fmt.Errorf("access token is not a JWT: %w", err)
	}
	switch v := claims["user_id"].(type) {
	case string:
		if v != "" {
			return v, nil
		}
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", errors.New("access token carries no user id")
	}
	return sub, nil
}
