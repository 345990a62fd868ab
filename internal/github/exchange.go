package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// DefaultAPIURL is the public GitHub REST endpoint.
const DefaultAPIURL = "https://api.github.com"

// Exchanger trades an App JWT for an installation access token.
type Exchanger struct {
	httpClient *http.Client
	baseURL    string
}

// ExchangerOption configures an Exchanger.
type ExchangerOption func(*Exchanger)

// WithHTTPClient sets the HTTP client used for the exchange.
func WithHTTPClient(client *http.Client) ExchangerOption {
	return func(e *Exchanger) {
		e.httpClient = client
	}
}

// WithBaseURL points the exchange at a GitHub Enterprise or test server.
func WithBaseURL(url string) ExchangerOption {
	return func(e *Exchanger) {
		e.baseURL = strings.TrimSuffix(url, "/")
	}
}

// NewExchanger creates an Exchanger for api.github.com unless overridden.
func NewExchanger(opts ...ExchangerOption) *Exchanger {
	e := &Exchanger{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    DefaultAPIURL,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type installationToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Exchange requests an installation token. GitHub issues them for one hour.
func (e *Exchanger) Exchange(ctx context.Context, appJWT string, installationID int64) (*oauth2.Token, error) {
	if appJWT == "" {
		return nil, fmt.Errorf("JWT cannot be empty")
	}
	if installationID <= 0 {
		return nil, fmt.Errorf("installation ID must be positive")
	}

	url := fmt.Sprintf("%s/app/installations/%d/access_tokens", e.baseURL, installationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+appJWT)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusCreated {
		return nil, parseAPIError(resp.StatusCode, body)
	}

	var it installationToken
	if err := json.Unmarshal(body, &it); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}
	if it.Token == "" {
		return nil, fmt.Errorf("token response without token")
	}
	return &oauth2.Token{AccessToken: it.Token, TokenType: "token", Expiry: it.ExpiresAt}, nil
}

type apiError struct {
	Message string `json:"message"`
}

func parseAPIError(statusCode int, body []byte) error {
	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err != nil {
		return fmt.Errorf("API error (status %d): %s", statusCode, string(body))
	}

	switch statusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("unauthorized: %s (check app ID and private key)", apiErr.Message)
	case http.StatusForbidden:
		return fmt.Errorf("forbidden: %s (check App permissions)", apiErr.Message)
	case http.StatusNotFound:
		return fmt.Errorf("not found: %s (check installation ID)", apiErr.Message)
	default:
		return fmt.Errorf("API error (status %d): %s", statusCode, apiErr.Message)
	}
}
