package googleauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/sheets/v4"
)

// Scopes requested for the stored token
var Scopes = []string{
	calendar.CalendarScope,
	sheets.SpreadsheetsReadonlyScope,
	gmail.GmailReadonlyScope,
}

// ErrNoToken is returned when the token file does not exist. Run the consent flow
// once with another tool and place the resulting token.json next to the binary.
var ErrNoToken = errors.New("google token file not found")

// TokenUpdateFunc is a callback function that handles token updates
type TokenUpdateFunc func(*oauth2.Token) error

// tokenFile accepts both the oauth2.Token layout and the authorized-user layout written
// by Google's Python client (token, client_id, client_secret).
type tokenFile struct {
	AccessToken  string    `json:"access_token"`
	Token        string    `json:"token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	Expiry       time.Time `json:"expiry"`
	ClientID     string    `json:"client_id"`
	ClientSecret string    `json:"client_secret"`
}

func (t tokenFile) oauthToken() *oauth2.Token {
	access := t.AccessToken
	if access == "" {
		access = t.Token
	}
	tokenType := t.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return &oauth2.Token{
		AccessToken:  access,
		RefreshToken: t.RefreshToken,
		TokenType:    tokenType,
		Expiry:       t.Expiry,
	}
}

type notifyTokenSource struct {
	mu       sync.Mutex
	src      oauth2.TokenSource
	current  *oauth2.Token
	callback TokenUpdateFunc
	log      zerolog.Logger
}

func (s *notifyTokenSource) Token() (*oauth2.Token, error) {
	t, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.callback != nil && s.current.AccessToken != t.AccessToken {
		s.current = t
		if err := s.callback(t); err != nil {
			s.log.Warn().Err(err).Msg("failed to persist refreshed token")
		}
	}
	return t, nil
}

// NewHTTPClient builds an authorized client from the client credentials file and the
// token file. Refreshed tokens are written back to tokenPath.
func NewHTTPClient(ctx context.Context, credentialsPath, tokenPath string, log zerolog.Logger) (*http.Client, error) {
	stored, err := readTokenFile(tokenPath)
	if err != nil {
		return nil, err
	}

	config, err := loadConfig(credentialsPath, stored)
	if err != nil {
		return nil, err
	}

	token := stored.oauthToken()
	wrapped := &notifyTokenSource{
		src:      config.TokenSource(ctx, token),
		current:  token,
		callback: func(t *oauth2.Token) error { return WriteToken(tokenPath, t) },
		log:      log,
	}
	return oauth2.NewClient(ctx, wrapped), nil
}

func loadConfig(credentialsPath string, stored tokenFile) (*oauth2.Config, error) {
	data, err := os.ReadFile(credentialsPath)
	if err == nil {
		config, err := google.ConfigFromJSON(data, Scopes...)
		if err != nil {
			return nil, fmt.Errorf("unable to parse client credentials: %w", err)
		}
		return config, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("unable to read client credentials: %w", err)
	}
	if stored.ClientID == "" {
		return nil, fmt.Errorf("client credentials %s not found and token has no client_id", credentialsPath)
	}
	return &oauth2.Config{
		ClientID:     stored.ClientID,
		ClientSecret: stored.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       Scopes,
	}, nil
}

func readTokenFile(path string) (tokenFile, error) {
	var stored tokenFile
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return stored, fmt.Errorf("%w: %s", ErrNoToken, path)
	}
	if err != nil {
		return stored, fmt.Errorf("unable to read token file: %w", err)
	}
	if err := json.Unmarshal(data, &stored); err != nil {
		return stored, fmt.Errorf("unable to parse token file: %w", err)
	}
	if stored.AccessToken == "" && stored.Token == "" && stored.RefreshToken == "" {
		return stored, fmt.Errorf("token file %s has neither access nor refresh token", path)
	}
	return stored, nil
}

// WriteToken stores the token atomically, keeping the client id fields if present
func WriteToken(path string, t *oauth2.Token) error {
	out := tokenFile{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
		Expiry:       t.Expiry,
	}
	if prev, err := readTokenFile(path); err == nil {
		out.ClientID = prev.ClientID
		out.ClientSecret = prev.ClientSecret
		if out.RefreshToken == "" {
			out.RefreshToken = prev.RefreshToken
		}
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".token-*")
	if err != nil {
		return fmt.Errorf("unable to write token: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("unable to write token: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("unable to write token: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return fmt.Errorf("unable to write token: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}
