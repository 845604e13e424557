package provision

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/nutrivida/api/internal/audit"
	"github.com/nutrivida/api/internal/auth"
	"github.com/nutrivida/api/internal/models"
	repo "github.com/nutrivida/api/internal/repository"
)

// Register provisions a new identity plus its role-specific cascade records
// inside one transaction, then issues a bearer token post-commit. Exactly one
// start event and one terminal (success or failure) event are recorded per
// attempt; no event ever carries the secret.
func (w *Workflow) Register(ctx context.Context, in RegisterInput, meta RequestMeta) (*AuthResult, error) {
	email := repo.NormalizeEmail(in.Email)
	role := in.RoleOrDefault()

	w.record(ctx, audit.EventRegistrationStarted, audit.LevelInfo, "", map[string]any{
		"email":      email,
		"name":       in.Name,
		"role":       role,
		"ip":         meta.IP,
		"user_agent": meta.UserAgent,
	})

	errs := fieldErrorMap(in.Validate())

	nutritionistID, err := w.checkNutritionistRef(ctx, in.NutritionistID, errs)
	if err != nil {
		return nil, w.registrationFailed(ctx, email, role, meta, err)
	}
	serviceID, err := w.checkServiceRef(ctx, in.ServiceID, errs)
	if err != nil {
		return nil, w.registrationFailed(ctx, email, role, meta, err)
	}

	if _, dup := errs["email"]; !dup && email != "" {
		taken, err := w.repo.Users().EmailTaken(ctx, email)
		if err != nil {
			return nil, w.registrationFailed(ctx, email, role, meta, err)
		}
		if taken {
			errs["email"] = "El email ya está registrado."
		}
	}

	if len(errs) > 0 {
		w.record(ctx, audit.EventRegistrationRejected, audit.LevelWarn, "", map[string]any{
			"email":  email,
			"errors": errs,
			"ip":     meta.IP,
		})
		return nil, validationError(errs)
	}

	user := &models.User{
		Name:     strings.TrimSpace(in.Name),
		Email:    email,
		Role:     role,
		Telefono: w.normalizePhone(in.Telefono),
	}
	if w.deterministicIDs {
		if id, err := hashid.NewUUID(email); err == nil {
			user.ID = id
		}
	}

	err = w.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		hash, err := w.credentials.Hash(in.Password)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}
		user.PasswordHash = hash

		if user, err = w.repo.Users().RegisterTx(ctx, tx, user); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user")
		}

		w.record(ctx, audit.EventUserCreated, audit.LevelInfo, user.ID.String(), map[string]any{
			"email": user.Email,
			"role":  user.Role,
		})

		if role != models.RolePatient {
			return nil
		}

		patient, err := w.createPatientTx(ctx, tx, user, in, nutritionistID)
		if err != nil {
			return err
		}
		user.AttachPatient(patient)

		if in.Medicion.Complete() {
			if _, err := w.createInitialEvaluationTx(ctx, tx, patient.ID, nutritionistID, *in.Medicion, ""); err != nil {
				return err
			}
		}

		if serviceID != nil {
			svc, err := w.repo.Services().GetTx(ctx, tx, *serviceID)
			if err != nil {
				if repository.IsRecordNotFound(err) {
					return nil
				}
				return err
			}
			if _, err := w.repo.Subscriptions().CreateTx(ctx, tx, newOnboardingSubscription(user.ID, svc)); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, w.registrationFailed(ctx, email, role, meta, err)
	}

	// Issuance is deliberately outside the transaction: a failure here leaves
	// a committed identity with no token, recoverable by logging in.
	token, err := w.tokens.Issue(ctx, user.ID)
	if err != nil {
		return nil, w.registrationFailed(ctx, email, role, meta, err)
	}

	w.record(ctx, audit.EventRegistrationSucceeded, audit.LevelInfo, user.ID.String(), map[string]any{
		"email": user.Email,
		"role":  user.Role,
		"ip":    meta.IP,
	})

	return &AuthResult{
		Message:     "Usuario registrado exitosamente",
		User:        user,
		AccessToken: token,
		TokenType:   auth.TokenType,
	}, nil
}

func (w *Workflow) createPatientTx(ctx context.Context, tx bun.IDB, user *models.User, in RegisterInput, nutritionistID *uuid.UUID) (*models.Patient, error) {
	nombre, apellido := models.SplitFullName(in.Name)

	patient := &models.Patient{
		UserID:         user.ID,
		Nombre:         nombre,
		Apellido:       apellido,
		Genero:         in.Genero,
		Email:          user.Email,
		Telefono:       user.Telefono,
		NutritionistID: nutritionistID,
	}
	if in.FechaNacimiento != "" {
		if fecha, err := time.Parse(dateLayout, in.FechaNacimiento); err == nil {
			patient.FechaNacimiento = &fecha
		}
	}

	return w.repo.Patients().CreateTx(ctx, tx, patient)
}

func (w *Workflow) createInitialEvaluationTx(ctx context.Context, tx bun.IDB, patientID uuid.UUID, nutritionistID *uuid.UUID, m MeasurementInput, observaciones string) (*models.Evaluation, error) {
	eval, err := w.repo.Evaluations().CreateTx(ctx, tx, &models.Evaluation{
		PatientID:      patientID,
		NutritionistID: nutritionistID,
		Tipo:           models.EvaluationInitial,
		Fecha:          time.Now(),
		Observaciones:  observaciones,
	})
	if err != nil {
		return nil, err
	}

	medicion, err := w.repo.Evaluations().CreateMeasurementTx(ctx, tx, &models.Measurement{
		EvaluationID: eval.ID,
		PesoKg:       *m.PesoKg,
		AlturaM:      *m.AlturaM,
		PorcGrasa:    m.PorcGrasa,
		MasaMagraKg:  m.MasaMagraKg,
	})
	if err != nil {
		return nil, err
	}

	eval.Medicion = medicion
	return eval, nil
}

func newOnboardingSubscription(userID uuid.UUID, svc *models.Service) *models.Subscription {
	now := time.Now()
	end := now.AddDate(0, 0, svc.DuracionDias)
	metodoPago, _ := json.Marshal(map[string]string{
		"tipo":   "onboarding",
		"nombre": "Registro",
	})

	return &models.Subscription{
		UserID:       userID,
		ServiceID:    svc.ID,
		Estado:       models.SubscriptionActive,
		FechaInicio:  now,
		FechaFin:     end,
		ProximoCobro: end,
		MetodoPago:   string(metodoPago),
	}
}

// checkNutritionistRef validates an optional practitioner reference, adding a
// field error for dangling ids.
func (w *Workflow) checkNutritionistRef(ctx context.Context, raw string, errs map[string]any) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	if _, invalid := errs["id_nutricionista"]; invalid {
		return nil, nil
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		errs["id_nutricionista"] = "must be a valid UUID"
		return nil, nil
	}

	exists, err := w.repo.Nutritionists().Exists(ctx, id)
	if err != nil {
		return nil, err
	}
	if !exists {
		errs["id_nutricionista"] = "El nutricionista seleccionado no existe."
		return nil, nil
	}

	return &id, nil
}

// checkServiceRef validates an optional service reference, adding a field
// error for dangling ids.
func (w *Workflow) checkServiceRef(ctx context.Context, raw string, errs map[string]any) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	if _, invalid := errs["servicio_id"]; invalid {
		return nil, nil
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		errs["servicio_id"] = "must be a valid UUID"
		return nil, nil
	}

	exists, err := w.repo.Services().Exists(ctx, id)
	if err != nil {
		return nil, err
	}
	if !exists {
		errs["servicio_id"] = "El servicio seleccionado no existe."
		return nil, nil
	}

	return &id, nil
}

func (w *Workflow) registrationFailed(ctx context.Context, email string, role models.UserRole, meta RequestMeta, err error) error {
	w.record(ctx, audit.EventRegistrationFailed, audit.LevelError, "", map[string]any{
		"email": email,
		"role":  role,
		"error": err.Error(),
		"ip":    meta.IP,
	})

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Category == goerrors.CategoryValidation {
		return richErr
	}

	return goerrors.Wrap(err, goerrors.CategoryInternal, "Error al registrar usuario").
		WithTextCode("REGISTRATION_FAILED")
}

func validationError(errs map[string]any) *goerrors.Error {
	return goerrors.New("Los datos proporcionados no son válidos.", goerrors.CategoryValidation).
		WithTextCode("VALIDATION_ERROR").
		WithMetadata(map[string]any{"errors": errs})
}
