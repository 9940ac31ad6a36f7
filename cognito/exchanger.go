package cognito

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrNotConfigured is returned when the hosted UI domain or client is missing
var ErrNotConfigured = errors.New("cognito not configured")

// TokenResponse represents the OAuth2 token endpoint response from Cognito
type TokenResponse struct {
	IDToken      string `json:"id_token"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// ExchangerConfig holds the hosted UI client settings
type ExchangerConfig struct {
	Domain       string
	ClientID     string
	ClientSecret string
	HTTPTimeout  time.Duration
}

// TokenExchanger exchanges authorization codes for tokens via the Cognito token endpoint
type TokenExchanger struct {
	cfg        ExchangerConfig
	httpClient *http.Client
}

// NewTokenExchanger creates a new token exchanger
func NewTokenExchanger(cfg ExchangerConfig) *TokenExchanger {
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	return &TokenExchanger{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
	}
}

// ExchangeCode exchanges an authorization code for an ID token
func (e *TokenExchanger) ExchangeCode(ctx context.Context, code, redirectURI string) (string, error) {
	if e.cfg.Domain == "" || e.cfg.ClientID == "" {
		return "", ErrNotConfigured
	}

	tokenURL := strings.TrimSuffix(e.cfg.Domain, "/") + "/oauth2/token"
	data := url.Values{
		"grant_type":   {"authorization_code"},
		"client_id":    {e.cfg.ClientID},
		"code":         {code},
		"redirect_uri": {redirectURI},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if e.cfg.ClientSecret != "" {
		req.SetBasicAuth(url.QueryEscape(e.cfg.ClientID), url.QueryEscape(e.cfg.ClientSecret))
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token exchange failed: status %d, body: %s", resp.StatusCode, string(body))
	}

	var tokenResp TokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", fmt.Errorf("parse token response: %w", err)
	}

	if tokenResp.IDToken == "" {
		return "", errors.New("no id_token in response")
	}

	return tokenResp.IDToken, nil
}
