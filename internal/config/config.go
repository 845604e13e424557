package config

import (
	"strings"

	"github.com/caarlos0/env/v11"
)

// OAuthProvider holds the client credentials for one federated provider.
type OAuthProvider struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RedirectURI  string `env:"REDIRECT_URI"`
}

// Config is the explicit application configuration. It is loaded once in
// cmd/server and passed into each component at construction; there is no
// ambient global configuration state.
type Config struct {
	AppEnv     string `env:"APP_ENV" envDefault:"local"`
	AppDebug   bool   `env:"APP_DEBUG" envDefault:"false"`
	AppURL     string `env:"APP_URL" envDefault:"http://localhost:8080"`
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`

	// FrontendURL is the base URL the federated login bridge redirects to.
	FrontendURL string `env:"APP_FRONTEND_URL" envDefault:"http://localhost:3000"`

	DBDriver string `env:"DB_CONNECTION" envDefault:"sqlite"`
	DBDSN    string `env:"DB_DSN" envDefault:"file:nutrivida.db?cache=shared"`

	CORSOrigins        string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"`
	CORSCredentials    bool   `env:"CORS_SUPPORTS_CREDENTIALS" envDefault:"true"`
	SessionDomain      string `env:"SESSION_DOMAIN"`
	SessionLifetimeMin int    `env:"SESSION_LIFETIME" envDefault:"120"`

	// DeterministicIDs derives identity IDs from the registration email
	// instead of generating random UUIDs.
	DeterministicIDs bool `env:"DETERMINISTIC_IDS" envDefault:"false"`

	// PhoneRegion is the default region used to normalize telefono values.
	PhoneRegion string `env:"PHONE_REGION" envDefault:"MX"`

	BcryptCost int `env:"BCRYPT_COST" envDefault:"12"`

	Google   OAuthProvider `envPrefix:"GOOGLE_"`
	Facebook OAuthProvider `envPrefix:"FACEBOOK_"`
}

// Load reads the configuration from the process environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// CORSOriginList splits the configured origins.
func (c *Config) CORSOriginList() []string {
	parts := strings.Split(c.CORSOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// GoogleRedirectURI returns the configured redirect URI or the conventional
// callback path under AppURL.
func (c *Config) GoogleRedirectURI() string {
	if c.Google.RedirectURI != "" {
		return c.Google.RedirectURI
	}
	return strings.TrimRight(c.AppURL, "/") + "/oauth/google/callback"
}

// FacebookRedirectURI returns the configured redirect URI or the conventional
// callback path under AppURL.
func (c *Config) FacebookRedirectURI() string {
	if c.Facebook.RedirectURI != "" {
		return c.Facebook.RedirectURI
	}
	return strings.TrimRight(c.AppURL, "/") + "/oauth/facebook/callback"
}
