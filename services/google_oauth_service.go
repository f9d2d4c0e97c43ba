package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"site-analytics-api/config"
)

const (
	googleAuthEndpoint      = "https://accounts.google.com/o/oauth2/v2/auth"
	googleTokenEndpoint     = "https://oauth2.googleapis.com/token"
	googleTokenInfoEndpoint = "https://oauth2.googleapis.com/tokeninfo"
	googleRevokeEndpoint    = "https://oauth2.googleapis.com/revoke"

	// AnalyticsReadonlyScope is the only scope the importer ever requests.
	AnalyticsReadonlyScope = "https://www.googleapis.com/auth/analytics.readonly"

	// tokenExpiryBuffer treats a token as expired while it still has up to
	// five minutes left, so a batch never starts with a token that will die
	// mid-batch.
	tokenExpiryBuffer = 5 * time.Minute
)

// TokenSet is one user's Google OAuth credential set.
type TokenSet struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	Scope        string    `json:"scope"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// TokenValidation is the outcome of ValidateToken. It is always populated;
// validation never fails with an error.
type TokenValidation struct {
	Valid     bool      `json:"valid"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
	Scope     string    `json:"scope,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// GoogleOAuthService handles the OAuth flow against Google: authorization
// URL construction, code exchange, refresh, validation and revocation.
type GoogleOAuthService struct {
	cfg    config.GoogleOAuthConfig
	client *http.Client

	authEndpoint      string
	tokenEndpoint     string
	tokenInfoEndpoint string
	revokeEndpoint    string
}

// NewGoogleOAuthService constructs a GoogleOAuthService. A nil httpClient
// falls back to a default client with a 30 second timeout.
func NewGoogleOAuthService(cfg config.GoogleOAuthConfig, httpClient *http.Client) *GoogleOAuthService {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &GoogleOAuthService{
		cfg:               cfg,
		client:            httpClient,
		authEndpoint:      googleAuthEndpoint,
		tokenEndpoint:     googleTokenEndpoint,
		tokenInfoEndpoint: googleTokenInfoEndpoint,
		revokeEndpoint:    googleRevokeEndpoint,
	}
}

// GenerateAuthURL builds the consent URL. access_type=offline and
// prompt=consent guarantee Google issues a refresh token. The state
// parameter is omitted entirely when empty.
func (s *GoogleOAuthService) GenerateAuthURL(state string) string {
	params := url.Values{}
	params.Set("client_id", s.cfg.ClientID)
	params.Set("redirect_uri", s.cfg.RedirectURI)
	params.Set("response_type", "code")
	params.Set("scope", AnalyticsReadonlyScope)
	params.Set("access_type", "offline")
	params.Set("prompt", "consent")
	if state != "" {
		params.Set("state", state)
	}
	return s.authEndpoint + "?" + params.Encode()
}

// ExchangeCodeForTokens swaps an authorization code for a token set.
func (s *GoogleOAuthService) ExchangeCodeForTokens(ctx context.Context, code string) (*TokenSet, error) {
	if strings.TrimSpace(code) == "" {
		return nil, &ValidationError{Msg: "authorization code is required"}
	}

	form := url.Values{}
	form.Set("client_id", s.cfg.ClientID)
	form.Set("client_secret", s.cfg.ClientSecret)
	form.Set("code", code)
	form.Set("grant_type", "authorization_code")
	form.Set("redirect_uri", s.cfg.RedirectURI)

	return s.requestToken(ctx, form, "")
}

// RefreshAccessToken exchanges a refresh token for a fresh access token.
// The original refresh token is kept when Google does not return a new one.
func (s *GoogleOAuthService) RefreshAccessToken(ctx context.Context, refreshToken string) (*TokenSet, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, &ValidationError{Msg: "refresh token is required"}
	}

	form := url.Values{}
	form.Set("client_id", s.cfg.ClientID)
	form.Set("client_secret", s.cfg.ClientSecret)
	form.Set("refresh_token", refreshToken)
	form.Set("grant_type", "refresh_token")

	return s.requestToken(ctx, form, refreshToken)
}

// requestToken posts form-encoded token requests per RFC 6749 and surfaces
// the provider's error_description (falling back to error) on failure.
func (s *GoogleOAuthService) requestToken(ctx context.Context, form url.Values, fallbackRefreshToken string) (*TokenSet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var provider struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
		}
		message := ""
		if err := json.Unmarshal(body, &provider); err == nil {
			message = provider.ErrorDescription
			if message == "" {
				message = provider.Error
			}
		}
		if message == "" {
			message = fmt.Sprintf("token endpoint returned status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("google oauth error: %s", message)
	}

	var decoded struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		TokenType    string `json:"token_type"`
		Scope        string `json:"scope"`
		ExpiresIn    int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}

	refreshToken := decoded.RefreshToken
	if refreshToken == "" {
		refreshToken = fallbackRefreshToken
	}

	return &TokenSet{
		AccessToken:  decoded.AccessToken,
		RefreshToken: refreshToken,
		TokenType:    decoded.TokenType,
		Scope:        decoded.Scope,
		ExpiresAt:    time.Now().Add(time.Duration(decoded.ExpiresIn) * time.Second),
	}, nil
}

// ValidateToken asks Google's tokeninfo endpoint about an access token. All
// failure modes resolve into the returned struct; it never returns an error.
func (s *GoogleOAuthService) ValidateToken(ctx context.Context, accessToken string) *TokenValidation {
	if strings.TrimSpace(accessToken) == "" {
		return &TokenValidation{Valid: false, Error: "access token is required"}
	}

	infoURL := s.tokenInfoEndpoint + "?access_token=" + url.QueryEscape(accessToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, infoURL, nil)
	if err != nil {
		return &TokenValidation{Valid: false, Error: err.Error()}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return &TokenValidation{Valid: false, Error: err.Error()}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode != http.StatusOK {
		var provider struct {
			ErrorDescription string `json:"error_description"`
			Error            string `json:"error"`
		}
		message := "token rejected by provider"
		if err := json.Unmarshal(body, &provider); err == nil {
			if provider.ErrorDescription != "" {
				message = provider.ErrorDescription
			} else if provider.Error != "" {
				message = provider.Error
			}
		}
		return &TokenValidation{Valid: false, Error: message}
	}

	// tokeninfo returns numbers as JSON strings.
	var decoded struct {
		Scope     string `json:"scope"`
		ExpiresIn string `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return &TokenValidation{Valid: false, Error: fmt.Sprintf("decode tokeninfo response: %v", err)}
	}

	validation := &TokenValidation{Valid: true, Scope: decoded.Scope}
	if seconds, err := strconv.ParseInt(decoded.ExpiresIn, 10, 64); err == nil {
		validation.ExpiresAt = time.Now().Add(time.Duration(seconds) * time.Second)
	}
	return validation
}

// RevokeToken asks Google to revoke the token and reports whether the
// provider accepted. An already-revoked token yields false, not an error.
func (s *GoogleOAuthService) RevokeToken(ctx context.Context, token string) bool {
	if strings.TrimSpace(token) == "" {
		return false
	}

	form := url.Values{}
	form.Set("token", token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.revokeEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return resp.StatusCode == http.StatusOK
}

// IsTokenExpired reports whether a token expiring at expiresAt should no
// longer be used. Anything within the five-minute buffer counts as expired.
func IsTokenExpired(expiresAt time.Time) bool {
	return time.Until(expiresAt) <= tokenExpiryBuffer
}

// ValidateScope reports whether the granted scope string contains the
// read-only analytics scope. The check is case-sensitive.
func ValidateScope(scope string) bool {
	return strings.Contains(scope, AnalyticsReadonlyScope)
}
