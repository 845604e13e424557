package social

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/nutrivida/api/internal/audit"
	"github.com/nutrivida/api/internal/auth"
	"github.com/nutrivida/api/internal/models"
	"github.com/nutrivida/api/internal/provision"
	repo "github.com/nutrivida/api/internal/repository"
)

// Bridge reconciles federated identities against local accounts and drives
// the redirect-based callback flow. Callback failures never surface provider
// details to the browser; they resolve to a safe login redirect.
type Bridge struct {
	providers   map[string]Provider
	repo        repo.Manager
	credentials *auth.CredentialStore
	tokens      *auth.TokenService
	recorder    audit.Recorder
	logger      *zap.Logger
	frontendURL string
}

// NewBridge builds a bridge over the given providers.
func NewBridge(
	manager repo.Manager,
	credentials *auth.CredentialStore,
	tokens *auth.TokenService,
	recorder audit.Recorder,
	logger *zap.Logger,
	frontendURL string,
	providers ...Provider,
) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}

	index := make(map[string]Provider, len(providers))
	for _, p := range providers {
		if p != nil {
			index[p.Name()] = p
		}
	}

	return &Bridge{
		providers:   index,
		repo:        manager,
		credentials: credentials,
		tokens:      tokens,
		recorder:    audit.Normalize(recorder),
		logger:      logger,
		frontendURL: strings.TrimRight(frontendURL, "/"),
	}
}

// LoginURL is the frontend page failed callback flows land on.
func (b *Bridge) LoginURL() string {
	return b.frontendURL + "/login"
}

// AuthCodeURL returns the provider's authorization URL.
func (b *Bridge) AuthCodeURL(provider, state string) (string, error) {
	p, ok := b.providers[provider]
	if !ok {
		return "", fmt.Errorf("unknown provider: %s", provider)
	}
	return p.AuthCodeURL(state), nil
}

// CompleteAuth runs the full callback flow and returns the frontend URL the
// browser should be redirected to. It never returns an error: any failure is
// logged and resolves to the login page.
func (b *Bridge) CompleteAuth(ctx context.Context, provider, code string) string {
	p, ok := b.providers[provider]
	if !ok {
		b.logger.Warn("oauth callback for unknown provider", zap.String("provider", provider))
		return b.LoginURL()
	}
	if code == "" {
		b.logger.Warn("oauth callback without code", zap.String("provider", provider))
		return b.LoginURL()
	}

	token, err := p.Exchange(ctx, code)
	if err != nil {
		b.logger.Error("oauth code exchange failed", zap.String("provider", provider), zap.Error(err))
		return b.LoginURL()
	}

	profile, err := p.UserInfo(ctx, token)
	if err != nil {
		b.logger.Error("oauth profile fetch failed", zap.String("provider", provider), zap.Error(err))
		return b.LoginURL()
	}

	user, bearer, err := b.Reconcile(ctx, profile)
	if err != nil {
		b.logger.Error("oauth reconciliation failed", zap.String("provider", provider), zap.Error(err))
		return b.LoginURL()
	}

	payload, err := encodePayload(bearer, user)
	if err != nil {
		b.logger.Error("oauth payload encoding failed", zap.String("provider", provider), zap.Error(err))
		return b.LoginURL()
	}

	return b.frontendURL + "/oauth-success?payload=" + payload
}

// Reconcile maps a provider profile to a local account, creating one when the
// email is unknown, then issues a fresh bearer token. Provider accounts get an
// unguessable local secret; they authenticate only via their provider.
func (b *Bridge) Reconcile(ctx context.Context, profile *Profile) (*models.User, string, error) {
	if profile == nil || profile.Email == "" {
		return nil, "", goerrors.New("profile has no email", goerrors.CategoryBadInput)
	}

	email := repo.NormalizeEmail(profile.Email)

	user, err := b.repo.Users().GetByEmail(ctx, email)
	created := false
	switch {
	case err == nil:
	case repository.IsRecordNotFound(err):
		if user, err = b.provisionFederated(ctx, profile, email); err != nil {
			return nil, "", err
		}
		created = true
	default:
		return nil, "", err
	}

	if user.Role == models.RolePatient && user.Paciente == nil {
		if patient, err := b.repo.Patients().GetByUserID(ctx, user.ID); err == nil {
			user.AttachPatient(patient)
		} else if !repository.IsRecordNotFound(err) {
			return nil, "", err
		}
	}

	bearer, err := b.tokens.Issue(ctx, user.ID)
	if err != nil {
		return nil, "", err
	}

	b.recorder.Record(ctx, audit.Event{
		Type:   audit.EventSocialLogin,
		Level:  audit.LevelInfo,
		UserID: user.ID.String(),
		Metadata: map[string]any{
			"provider": profile.Provider,
			"email":    email,
			"created":  created,
		},
	})

	return user, bearer, nil
}

// provisionFederated creates the identity plus its patient profile in one
// transaction. Federated signups are always patients; the provider tells us
// nothing about gender, so the profile starts neutral.
func (b *Bridge) provisionFederated(ctx context.Context, profile *Profile, email string) (*models.User, error) {
	user := &models.User{
		Name:         strings.TrimSpace(profile.Name),
		Email:        email,
		Role:         models.RolePatient,
		PasswordHash: b.credentials.RandomPasswordHash(),
	}

	var patient *models.Patient
	err := b.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		if user, err = b.repo.Users().RegisterTx(ctx, tx, user); err != nil {
			return err
		}

		nombre, apellido := models.SplitFullName(user.Name)
		patient, err = b.repo.Patients().CreateTx(ctx, tx, &models.Patient{
			UserID:   user.ID,
			Nombre:   nombre,
			Apellido: apellido,
			Genero:   models.GenderOther,
			Email:    email,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	user.AttachPatient(patient)
	return user, nil
}

// TokenLogin authenticates with a provider access token directly, the flow
// mobile clients use. Only Google supports it.
func (b *Bridge) TokenLogin(ctx context.Context, accessToken string) (*provision.AuthResult, error) {
	p, ok := b.providers["google"]
	if !ok {
		return nil, goerrors.New("Error al procesar token de Google", goerrors.CategoryBadInput).
			WithTextCode("GOOGLE_TOKEN_FAILED")
	}

	profile, err := p.UserInfo(ctx, &Token{AccessToken: accessToken, TokenType: auth.TokenType})
	if err != nil {
		b.logger.Warn("google token login profile fetch failed", zap.Error(err))
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "Error al procesar token de Google").
			WithTextCode("GOOGLE_TOKEN_FAILED")
	}

	if profile.Email == "" {
		return nil, goerrors.New("No se pudo obtener el email del token de Google", goerrors.CategoryBadInput).
			WithTextCode("GOOGLE_TOKEN_NO_EMAIL")
	}

	user, bearer, err := b.Reconcile(ctx, profile)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "Error al procesar token de Google").
			WithTextCode("GOOGLE_TOKEN_FAILED")
	}

	return &provision.AuthResult{
		Message:     "Inicio de sesión con Google exitoso",
		User:        user,
		AccessToken: bearer,
		TokenType:   auth.TokenType,
	}, nil
}

// successPayload is what the frontend unpacks from the oauth-success redirect.
type successPayload struct {
	Token string      `json:"token"`
	User  payloadUser `json:"user"`
}

type payloadUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func encodePayload(token string, user *models.User) (string, error) {
	raw, err := json.Marshal(successPayload{
		Token: token,
		User: payloadUser{
			ID:    user.ID.String(),
			Name:  user.Name,
			Email: user.Email,
			Role:  user.Role,
		},
	})
	if err != nil {
		return "", err
	}

	return base64.URLEncoding.EncodeToString(raw), nil
}
