package github

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// TokenRefreshBuffer is how long before expiry a cached installation token is
// replaced.
const TokenRefreshBuffer = 5 * time.Minute

// TokenEnvVars are consulted in order when no token_env is configured.
var TokenEnvVars = []string{"GH_TOKEN", "GITHUB_TOKEN"}

// AppTokenSource is an oauth2.TokenSource minting installation tokens for a
// GitHub App. Tokens are cached until TokenRefreshBuffer before expiry.
type AppTokenSource struct {
	mu sync.Mutex

	installationID int64
	signer         *AppSigner
	exchanger      *Exchanger

	token   *oauth2.Token
	nowFunc func() time.Time
}

// AppSourceOption configures an AppTokenSource.
type AppSourceOption func(*AppTokenSource)

// WithExchanger replaces the default api.github.com exchanger.
func WithExchanger(e *Exchanger) AppSourceOption {
	return func(s *AppTokenSource) {
		s.exchanger = e
	}
}

// WithNowFunc sets the clock, for tests.
func WithNowFunc(fn func() time.Time) AppSourceOption {
	return func(s *AppTokenSource) {
		s.nowFunc = fn
	}
}

// NewAppTokenSource validates the App credentials. No request is made until
// the first Token call.
func NewAppTokenSource(appID, installationID int64, privateKey []byte, opts ...AppSourceOption) (*AppTokenSource, error) {
	if installationID <= 0 {
		return nil, fmt.Errorf("installation ID must be positive")
	}
	if len(privateKey) == 0 {
		return nil, fmt.Errorf("private key cannot be empty")
	}
	signer, err := NewAppSigner(appID, privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT signer: %w", err)
	}

	s := &AppTokenSource{
		installationID: installationID,
		signer:         signer,
		exchanger:      NewExchanger(),
		nowFunc:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Token implements oauth2.TokenSource.
func (s *AppTokenSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFunc()
	if s.token != nil && s.token.Expiry.After(now.Add(TokenRefreshBuffer)) {
		return s.token, nil
	}

	appJWT, err := s.signer.Sign(now, MaxJWTDuration)
	if err != nil {
		return nil, fmt.Errorf("failed to generate JWT: %w", err)
	}
	tok, err := s.exchanger.Exchange(context.Background(), appJWT, s.installationID)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}
	s.token = tok
	return tok, nil
}

// EnvToken returns the personal token from tokenEnv, or from the first
// non-empty TokenEnvVars entry when tokenEnv is empty.
func EnvToken(tokenEnv string) (string, bool) {
	return envToken(tokenEnv, os.Getenv)
}

func envToken(tokenEnv string, getenv func(string) string) (string, bool) {
	names := TokenEnvVars
	if tokenEnv != "" {
		names = []string{tokenEnv}
	}
	for _, name := range names {
		if v := getenv(name); v != "" {
			return v, true
		}
	}
	return "", false
}

// StaticTokenSource wraps a personal token.
func StaticTokenSource(token string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "token"})
}
