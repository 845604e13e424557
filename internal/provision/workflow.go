// Package provision orchestrates account provisioning: registration with its
// transactional cascade, credential login, and patient onboarding completion.
package provision

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
	"go.uber.org/zap"

	"github.com/nutrivida/api/internal/audit"
	"github.com/nutrivida/api/internal/auth"
	"github.com/nutrivida/api/internal/models"
	"github.com/nutrivida/api/internal/repository"
)

// Workflow runs the provisioning operations. All collaborators are injected;
// the workflow owns no global state.
type Workflow struct {
	repo        repository.Manager
	credentials *auth.CredentialStore
	tokens      *auth.TokenService
	recorder    audit.Recorder
	logger      *zap.Logger

	// phoneRegion is the default region for telefono normalization.
	phoneRegion string
	// deterministicIDs derives identity IDs from the email address.
	deterministicIDs bool
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithPhoneRegion sets the default telefono parsing region.
func WithPhoneRegion(region string) Option {
	return func(w *Workflow) {
		w.phoneRegion = region
	}
}

// WithDeterministicIDs derives identity IDs from the registration email.
func WithDeterministicIDs(enabled bool) Option {
	return func(w *Workflow) {
		w.deterministicIDs = enabled
	}
}

// NewWorkflow builds a provisioning workflow.
func NewWorkflow(
	repo repository.Manager,
	credentials *auth.CredentialStore,
	tokens *auth.TokenService,
	recorder audit.Recorder,
	logger *zap.Logger,
	opts ...Option,
) *Workflow {
	if logger == nil {
		logger = zap.NewNop()
	}

	w := &Workflow{
		repo:        repo,
		credentials: credentials,
		tokens:      tokens,
		recorder:    audit.Normalize(recorder),
		logger:      logger,
		phoneRegion: "MX",
	}

	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}

	return w
}

// RequestMeta carries the request context recorded on audit events.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// AuthResult is the outcome of registration and login.
type AuthResult struct {
	Message     string       `json:"message"`
	User        *models.User `json:"user"`
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
}

// ServiceSummary is the service slice of a subscription summary.
type ServiceSummary struct {
	ID     uuid.UUID `json:"id"`
	Nombre string    `json:"nombre"`
	Precio float64   `json:"precio"`
}

// SubscriptionSummary reports a created subscription with calendar dates.
type SubscriptionSummary struct {
	ID           uuid.UUID      `json:"id"`
	Servicio     ServiceSummary `json:"servicio"`
	Estado       string         `json:"estado"`
	FechaInicio  string         `json:"fecha_inicio"`
	ProximoCobro string         `json:"proximo_cobro"`
}

// OnboardingResult is the outcome of finalize-onboarding.
type OnboardingResult struct {
	Message     string              `json:"message"`
	Evaluacion  *models.Evaluation  `json:"evaluacion"`
	Suscripcion SubscriptionSummary `json:"suscripcion"`
}

const dateLayout = "2006-01-02"

// normalizePhone formats a telefono to E.164 when it parses as a valid number
// for the default region, otherwise keeps the raw value.
func (w *Workflow) normalizePhone(raw string) string {
	if raw == "" {
		return ""
	}

	num, err := phonenumbers.Parse(raw, w.phoneRegion)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return raw
	}

	return phonenumbers.Format(num, phonenumbers.E164)
}

func newSubscriptionSummary(sub *models.Subscription, svc *models.Service) SubscriptionSummary {
	return SubscriptionSummary{
		ID: sub.ID,
		Servicio: ServiceSummary{
			ID:     svc.ID,
			Nombre: svc.Nombre,
			Precio: svc.Costo,
		},
		Estado:       sub.Estado,
		FechaInicio:  sub.FechaInicio.Format(dateLayout),
		ProximoCobro: sub.ProximoCobro.Format(dateLayout),
	}
}

func (w *Workflow) record(ctx context.Context, eventType audit.EventType, level audit.Level, userID string, metadata map[string]any) {
	w.recorder.Record(ctx, audit.Event{
		Type:       eventType,
		Level:      level,
		UserID:     userID,
		Metadata:   metadata,
		OccurredAt: time.Now(),
	})
}
