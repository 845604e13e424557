// Package social implements the federated login bridge: fixed provider
// adapters plus provider-agnostic identity reconciliation.
package social

import (
	"context"
	"fmt"
	"time"
)

// Provider is one federated identity provider. Each adapter owns its own
// request shapes and profile normalization.
type Provider interface {
	// Name returns the provider identifier (e.g. "google", "facebook").
	Name() string

	// AuthCodeURL returns the URL users are redirected to for authorization.
	AuthCodeURL(state string) string

	// Exchange trades an authorization code for a provider access token.
	Exchange(ctx context.Context, code string) (*Token, error)

	// UserInfo fetches the user's normalized profile using the access token.
	UserInfo(ctx context.Context, token *Token) (*Profile, error)
}

// Token is a provider access token response.
type Token struct {
	AccessToken string
	TokenType   string
	ExpiresAt   time.Time
	Raw         map[string]any
}

// Profile is the normalized provider profile used for reconciliation.
type Profile struct {
	ProviderUserID string
	Provider       string
	Email          string
	EmailVerified  bool
	Name           string
	Raw            map[string]any
}

// ProviderError reports a failed provider call. It is never surfaced to the
// end user; callback flows short-circuit to a safe redirect instead.
type ProviderError struct {
	Provider    string
	Operation   string
	Status      int
	Code        string
	Description string
	Err         error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s: %s failed", e.Provider, e.Operation)
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Code != "" {
		msg = fmt.Sprintf("%s [%s]", msg, e.Code)
	}
	if e.Description != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Description)
	}
	return msg
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
