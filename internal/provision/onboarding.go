package provision

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/nutrivida/api/internal/audit"
	"github.com/nutrivida/api/internal/models"
)

// FinalizeOnboarding completes the patient cascade for an already
// authenticated identity that registered without it: practitioner assignment,
// initial evaluation with its measurement, and a service subscription, all in
// one transaction. Calling it twice creates two independent subscriptions.
func (w *Workflow) FinalizeOnboarding(ctx context.Context, user *models.User, in OnboardingInput, meta RequestMeta) (*OnboardingResult, error) {
	errs := fieldErrorMap(in.Validate())

	nutritionistID, err := w.checkNutritionistRef(ctx, in.NutritionistID, errs)
	if err != nil {
		return nil, w.onboardingFailed(ctx, user.ID, meta, err)
	}
	serviceID, err := w.checkServiceRef(ctx, in.ServiceID, errs)
	if err != nil {
		return nil, w.onboardingFailed(ctx, user.ID, meta, err)
	}

	if len(errs) > 0 {
		return nil, validationError(errs)
	}

	var (
		eval *models.Evaluation
		sub  *models.Subscription
		svc  *models.Service
	)

	err = w.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		patient, err := w.repo.Patients().GetByUserIDTx(ctx, tx, user.ID)
		if err != nil {
			return err
		}

		if err := w.repo.Patients().AssignNutritionistTx(ctx, tx, patient.ID, *nutritionistID); err != nil {
			return err
		}

		if eval, err = w.createInitialEvaluationTx(ctx, tx, patient.ID, nutritionistID, *in.Medicion, in.Observaciones); err != nil {
			return err
		}

		if svc, err = w.repo.Services().GetTx(ctx, tx, *serviceID); err != nil {
			return err
		}

		sub, err = w.repo.Subscriptions().CreateTx(ctx, tx, newOnboardingSubscription(user.ID, svc))
		return err
	})
	if err != nil {
		return nil, w.onboardingFailed(ctx, user.ID, meta, err)
	}

	w.record(ctx, audit.EventOnboardingCompleted, audit.LevelInfo, user.ID.String(), map[string]any{
		"id_evaluacion": eval.ID.String(),
		"servicio_id":   svc.ID.String(),
		"ip":            meta.IP,
	})

	return &OnboardingResult{
		Message:     "Onboarding completado",
		Evaluacion:  eval,
		Suscripcion: newSubscriptionSummary(sub, svc),
	}, nil
}

// onboardingFailed rolls the attempt up into the generic transactional error;
// the underlying cause lives only on the audit trail.
func (w *Workflow) onboardingFailed(ctx context.Context, userID uuid.UUID, meta RequestMeta, err error) error {
	w.record(ctx, audit.EventOnboardingFailed, audit.LevelError, userID.String(), map[string]any{
		"error": err.Error(),
		"ip":    meta.IP,
	})

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Category == goerrors.CategoryValidation {
		return richErr
	}

	return goerrors.Wrap(err, goerrors.CategoryInternal, "Error al finalizar onboarding").
		WithTextCode("ONBOARDING_FAILED")
}
