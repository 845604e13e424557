package audit

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// EventType identifies an audit event.
type EventType string

// Audit events emitted around every provisioning and authentication
// state transition.
const (
	EventRegistrationStarted   EventType = "registration_started"
	EventRegistrationRejected  EventType = "registration_validation_failed"
	EventUserCreated           EventType = "user_created"
	EventRegistrationSucceeded EventType = "registration_succeeded"
	EventRegistrationFailed    EventType = "registration_failed"

	EventLoginStarted   EventType = "login_started"
	EventLoginRejected  EventType = "login_invalid_credentials"
	EventTokenIssuing   EventType = "token_issuing"
	EventLoginSucceeded EventType = "login_succeeded"
	EventLoginErrored   EventType = "login_unexpected_error"

	EventOnboardingCompleted EventType = "onboarding_completed"
	EventOnboardingFailed    EventType = "onboarding_failed"

	EventSocialLogin EventType = "social_login"
	EventLogout      EventType = "logout"
)

// Level is the severity an event is recorded with.
type Level int

const (
	LevelInfo Level = iota
	LevelWarn
	LevelError
)

// Event is one audit entry. Metadata must never carry secrets; the recorder
// redacts known sensitive keys regardless.
type Event struct {
	Type       EventType
	Level      Level
	UserID     string
	Metadata   map[string]any
	OccurredAt time.Time
}

// Recorder receives audit events. Recording is fire-and-forget relative to the
// main flow but happens before the response is returned.
type Recorder interface {
	Record(ctx context.Context, event Event)
}

// Normalize returns a usable recorder, substituting a no-op for nil.
func Normalize(r Recorder) Recorder {
	if r == nil {
		return noopRecorder{}
	}
	return r
}

type noopRecorder struct{}

func (noopRecorder) Record(context.Context, Event) {}

// sensitive keys are dropped from event metadata, replaced by a marker so the
// omission is visible in the trail.
var sensitiveKeys = map[string]struct{}{
	"password":              {},
	"password_confirmation": {},
	"secret":                {},
	"client_secret":         {},
	"token":                 {},
	"access_token":          {},
	"authorization":         {},
}

const redactedValue = "[REDACTED]"

// ZapRecorder emits audit events through a zap logger.
type ZapRecorder struct {
	logger *zap.Logger
}

var _ Recorder = (*ZapRecorder)(nil)

// NewZapRecorder builds a recorder on top of the given logger.
func NewZapRecorder(logger *zap.Logger) *ZapRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapRecorder{logger: logger.Named("audit")}
}

func (r *ZapRecorder) Record(_ context.Context, event Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	fields := make([]zap.Field, 0, len(event.Metadata)+3)
	fields = append(fields,
		zap.String("event", string(event.Type)),
		zap.Time("occurred_at", event.OccurredAt),
	)
	if event.UserID != "" {
		fields = append(fields, zap.String("user_id", event.UserID))
	}
	for k, v := range event.Metadata {
		fields = append(fields, zap.Any(k, Redact(k, v)))
	}

	switch event.Level {
	case LevelError:
		r.logger.Error(string(event.Type), fields...)
	case LevelWarn:
		r.logger.Warn(string(event.Type), fields...)
	default:
		r.logger.Info(string(event.Type), fields...)
	}
}

// Redact replaces sensitive values, descending into nested metadata maps.
func Redact(key string, value any) any {
	if _, ok := sensitiveKeys[key]; ok {
		return redactedValue
	}

	switch nested := value.(type) {
	case map[string]any:
		clean := make(map[string]any, len(nested))
		for k, v := range nested {
			clean[k] = Redact(k, v)
		}
		return clean
	case map[string]string:
		clean := make(map[string]string, len(nested))
		for k, v := range nested {
			if _, ok := sensitiveKeys[k]; ok {
				clean[k] = redactedValue
				continue
			}
			clean[k] = v
		}
		return clean
	}

	return value
}
