package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.AppEnv)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "http://localhost:3000", cfg.FrontendURL)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "MX", cfg.PhoneRegion)
	assert.Equal(t, 12, cfg.BcryptCost)
	assert.False(t, cfg.DeterministicIDs)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("APP_URL", "https://api.nutrivida.test")
	t.Setenv("GOOGLE_CLIENT_ID", "g-id")
	t.Setenv("GOOGLE_CLIENT_SECRET", "g-secret")
	t.Setenv("FACEBOOK_CLIENT_ID", "f-id")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.test, https://b.test,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.AppEnv)
	assert.Equal(t, "g-id", cfg.Google.ClientID)
	assert.Equal(t, "g-secret", cfg.Google.ClientSecret)
	assert.Equal(t, "f-id", cfg.Facebook.ClientID)
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.CORSOriginList())
}

func TestRedirectURIFallbacks(t *testing.T) {
	cfg := &Config{AppURL: "https://api.nutrivida.test/"}
	assert.Equal(t, "https://api.nutrivida.test/oauth/google/callback", cfg.GoogleRedirectURI())
	assert.Equal(t, "https://api.nutrivida.test/oauth/facebook/callback", cfg.FacebookRedirectURI())

	cfg.Google.RedirectURI = "https://other.test/cb"
	assert.Equal(t, "https://other.test/cb", cfg.GoogleRedirectURI())
}
