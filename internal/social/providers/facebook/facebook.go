// Package facebook implements the Facebook OAuth adapter. Unlike Google, the
// code exchange is a query-parameter GET against the Graph API, and profiles
// may come back without an email, in which case the adapter synthesizes a
// locally-unique placeholder address.
package facebook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nutrivida/api/internal/social"
)

const (
	defaultAuthURL     = "https://www.facebook.com/v13.0/dialog/oauth"
	defaultTokenURL    = "https://graph.facebook.com/v13.0/oauth/access_token"
	defaultUserInfoURL = "https://graph.facebook.com/me"

	fallbackName     = "Usuario Facebook"
	placeholderSufix = "@facebook.local"
)

// Config holds Facebook OAuth configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
	Scopes       []string

	AuthURL     string
	TokenURL    string
	UserInfoURL string

	HTTPClient *http.Client
}

// DefaultScopes returns the default Facebook scopes.
func DefaultScopes() []string {
	return []string{"email", "public_profile"}
}

// Provider implements social.Provider for Facebook.
type Provider struct {
	config     Config
	httpClient *http.Client
}

var _ social.Provider = (*Provider)(nil)

// New creates a new Facebook provider.
func New(cfg Config) *Provider {
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes()
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = defaultAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultTokenURL
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = defaultUserInfoURL
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return &Provider{
		config:     cfg,
		httpClient: client,
	}
}

// Name implements social.Provider.
func (p *Provider) Name() string {
	return "facebook"
}

// AuthCodeURL implements social.Provider. Facebook scopes are comma-joined.
func (p *Provider) AuthCodeURL(state string) string {
	params := url.Values{
		"client_id":     {p.config.ClientID},
		"redirect_uri":  {p.config.CallbackURL},
		"response_type": {"code"},
		"scope":         {strings.Join(p.config.Scopes, ",")},
	}
	if state != "" {
		params.Set("state", state)
	}

	return p.config.AuthURL + "?" + params.Encode()
}

// Exchange implements social.Provider with the Graph API's GET exchange.
func (p *Provider) Exchange(ctx context.Context, code string) (*social.Token, error) {
	params := url.Values{
		"client_id":     {p.config.ClientID},
		"client_secret": {p.config.ClientSecret},
		"redirect_uri":  {p.config.CallbackURL},
		"code":          {code},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.TokenURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var tokenResp facebookTokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, providerError("exchange", resp.StatusCode, "invalid_response", "failed to decode token response", err)
	}

	if resp.StatusCode != http.StatusOK || tokenResp.Error.Message != "" {
		return nil, providerError("exchange", resp.StatusCode, tokenResp.Error.Type, tokenResp.Error.Message, nil)
	}
	if tokenResp.AccessToken == "" {
		return nil, providerError("exchange", resp.StatusCode, "missing_access_token", "missing access token", nil)
	}

	expiresAt := time.Time{}
	if tokenResp.ExpiresIn > 0 {
		expiresAt = time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	}

	return &social.Token{
		AccessToken: tokenResp.AccessToken,
		TokenType:   tokenResp.TokenType,
		ExpiresAt:   expiresAt,
	}, nil
}

// UserInfo implements social.Provider. The access token travels as a query
// parameter, per the Graph API contract.
func (p *Provider) UserInfo(ctx context.Context, token *social.Token) (*social.Profile, error) {
	params := url.Values{
		"fields":       {"id,name,email"},
		"access_token": {token.AccessToken},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.UserInfoURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, providerError("user_info", resp.StatusCode, "", strings.TrimSpace(string(body)), nil)
	}

	var userInfo facebookUserInfo
	if err := json.Unmarshal(body, &userInfo); err != nil {
		return nil, providerError("user_info", resp.StatusCode, "invalid_response", "failed to decode profile response", err)
	}

	return mapProfile(&userInfo), nil
}

type facebookTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Error       struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

type facebookUserInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func mapProfile(info *facebookUserInfo) *social.Profile {
	name := info.Name
	if name == "" {
		name = fallbackName
	}

	// Facebook may withhold the email; synthesize a locally-unique
	// placeholder so reconciliation still has a stable identifier.
	email := info.Email
	if email == "" {
		email = uuid.NewString() + placeholderSufix
	}

	return &social.Profile{
		ProviderUserID: info.ID,
		Provider:       "facebook",
		Email:          email,
		Name:           name,
		Raw: map[string]any{
			"id": info.ID,
		},
	}
}

func providerError(operation string, status int, code, description string, err error) *social.ProviderError {
	return &social.ProviderError{
		Provider:    "facebook",
		Operation:   operation,
		Status:      status,
		Code:        code,
		Description: description,
		Err:         err,
	}
}
