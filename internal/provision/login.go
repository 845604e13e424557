package provision

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"

	"github.com/nutrivida/api/internal/audit"
	"github.com/nutrivida/api/internal/auth"
	"github.com/nutrivida/api/internal/models"
	repo "github.com/nutrivida/api/internal/repository"
)

// Login authenticates an identity by email and secret. Unknown users and
// wrong passwords return the same generic credential error; the specific
// reason is recorded on the audit trail only.
func (w *Workflow) Login(ctx context.Context, in LoginInput, meta RequestMeta) (*AuthResult, error) {
	email := repo.NormalizeEmail(in.Email)

	w.record(ctx, audit.EventLoginStarted, audit.LevelInfo, "", map[string]any{
		"email":      email,
		"ip":         meta.IP,
		"user_agent": meta.UserAgent,
	})

	if err := in.Validate(); err != nil {
		errs := fieldErrorMap(err)
		w.record(ctx, audit.EventLoginRejected, audit.LevelWarn, "", map[string]any{
			"email":  email,
			"reason": "validation",
			"errors": errs,
			"ip":     meta.IP,
		})
		return nil, validationError(errs)
	}

	user, err := w.repo.Users().GetByEmail(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			w.record(ctx, audit.EventLoginRejected, audit.LevelWarn, "", map[string]any{
				"email":  email,
				"reason": "user_not_found",
				"ip":     meta.IP,
			})
			return nil, auth.InvalidCredentials()
		}
		return nil, w.loginErrored(ctx, email, err)
	}

	if err := w.credentials.Verify(in.Password, user.PasswordHash); err != nil {
		w.record(ctx, audit.EventLoginRejected, audit.LevelWarn, user.ID.String(), map[string]any{
			"email":  email,
			"reason": "invalid_password",
			"ip":     meta.IP,
		})
		return nil, auth.InvalidCredentials()
	}

	if user.Role == models.RolePatient {
		if patient, err := w.repo.Patients().GetByUserID(ctx, user.ID); err == nil {
			user.AttachPatient(patient)
		} else if !repository.IsRecordNotFound(err) {
			return nil, w.loginErrored(ctx, email, err)
		}
	}

	w.record(ctx, audit.EventTokenIssuing, audit.LevelInfo, user.ID.String(), map[string]any{
		"email": email,
		"role":  user.Role,
	})

	token, err := w.tokens.Issue(ctx, user.ID)
	if err != nil {
		return nil, w.loginErrored(ctx, email, err)
	}

	w.record(ctx, audit.EventLoginSucceeded, audit.LevelInfo, user.ID.String(), map[string]any{
		"email": email,
		"role":  user.Role,
		"ip":    meta.IP,
	})

	return &AuthResult{
		Message:     "Inicio de sesión exitoso",
		User:        user,
		AccessToken: token,
		TokenType:   auth.TokenType,
	}, nil
}

func (w *Workflow) loginErrored(ctx context.Context, email string, err error) error {
	w.record(ctx, audit.EventLoginErrored, audit.LevelError, "", map[string]any{
		"email": email,
		"error": err.Error(),
	})

	return goerrors.Wrap(err, goerrors.CategoryInternal, "Error al procesar la solicitud de inicio de sesión").
		WithTextCode("LOGIN_FAILED")
}
