package provision

import (
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/nutrivida/api/internal/models"
)

// MeasurementInput is the optional anthropometric sub-structure, decoded once
// at the boundary with typed, range-validated fields.
type MeasurementInput struct {
	PesoKg      *float64 `json:"peso_kg"`
	AlturaM     *float64 `json:"altura_m"`
	PorcGrasa   *float64 `json:"porc_grasa"`
	MasaMagraKg *float64 `json:"masa_magra_kg"`
}

// Complete reports whether both mandatory values were supplied.
func (m *MeasurementInput) Complete() bool {
	return m != nil && m.PesoKg != nil && m.AlturaM != nil
}

// Validate applies the range constraints to whichever fields are present.
func (m MeasurementInput) Validate() error {
	return m.validate(false)
}

// validateRequired additionally demands peso_kg and altura_m, as the
// onboarding contract does.
func (m MeasurementInput) validateRequired() error {
	return m.validate(true)
}

func (m MeasurementInput) validate(required bool) error {
	pesoRules := []validation.Rule{validation.Min(20.0), validation.Max(300.0)}
	alturaRules := []validation.Rule{validation.Min(0.5), validation.Max(2.5)}
	if required {
		pesoRules = append([]validation.Rule{validation.NotNil}, pesoRules...)
		alturaRules = append([]validation.Rule{validation.NotNil}, alturaRules...)
	}

	return validation.ValidateStruct(&m,
		validation.Field(&m.PesoKg, pesoRules...),
		validation.Field(&m.AlturaM, alturaRules...),
		validation.Field(&m.PorcGrasa, validation.Min(0.0), validation.Max(100.0)),
		validation.Field(&m.MasaMagraKg, validation.Min(0.0)),
	)
}

// RegisterInput is the registration payload.
type RegisterInput struct {
	Name                 string            `json:"name"`
	Email                string            `json:"email"`
	Password             string            `json:"password"`
	PasswordConfirmation string            `json:"password_confirmation"`
	Role                 string            `json:"role"`
	FechaNacimiento      string            `json:"fecha_nacimiento"`
	Genero               string            `json:"genero"`
	Telefono             string            `json:"telefono"`
	NutritionistID       string            `json:"id_nutricionista"`
	ServiceID            string            `json:"servicio_id"`
	Medicion             *MeasurementInput `json:"medicion"`
}

// RoleOrDefault resolves the effective role; identities default to paciente.
func (r RegisterInput) RoleOrDefault() models.UserRole {
	if r.Role == "" {
		return models.RolePatient
	}
	return r.Role
}

// Validate runs the shape rules. fecha_nacimiento and genero are required
// only for role paciente.
func (r RegisterInput) Validate() error {
	patient := r.RoleOrDefault() == models.RolePatient

	fechaRules := []validation.Rule{validation.Date(dateLayout)}
	generoRules := []validation.Rule{
		validation.In(models.GenderMale, models.GenderFemale, models.GenderOther),
	}
	if patient {
		fechaRules = append([]validation.Rule{validation.Required}, fechaRules...)
		generoRules = append([]validation.Rule{validation.Required}, generoRules...)
	}

	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 100)),
		validation.Field(&r.Email, validation.Required, validation.Length(3, 150), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 100)),
		validation.Field(
			&r.PasswordConfirmation,
			validation.Required,
			validation.By(stringEquals(r.Password, "las contraseñas no coinciden")),
		),
		validation.Field(&r.Role, validation.In(models.ValidRoles()...)),
		validation.Field(&r.FechaNacimiento, fechaRules...),
		validation.Field(&r.Genero, generoRules...),
		validation.Field(&r.Telefono, validation.Length(0, 20)),
		validation.Field(&r.NutritionistID, is.UUID),
		validation.Field(&r.ServiceID, is.UUID),
		validation.Field(&r.Medicion),
	)
}

// LoginInput is the credential login payload.
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate runs the shape rules.
func (r LoginInput) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

// OnboardingInput finalizes the patient cascade for an authenticated identity.
type OnboardingInput struct {
	ServiceID      string            `json:"servicio_id"`
	NutritionistID string            `json:"id_nutricionista"`
	Medicion       *MeasurementInput `json:"medicion"`
	Observaciones  string            `json:"observaciones"`
}

// Validate runs the shape rules; the measurement pair is mandatory here.
func (r OnboardingInput) Validate() error {
	err := validation.ValidateStruct(&r,
		validation.Field(&r.ServiceID, validation.Required, is.UUID),
		validation.Field(&r.NutritionistID, validation.Required, is.UUID),
	)

	errs, ok := err.(validation.Errors)
	if err != nil && !ok {
		return err
	}
	if errs == nil {
		errs = validation.Errors{}
	}

	if r.Medicion == nil {
		errs["medicion"] = errors.New("cannot be blank")
	} else if mErr := r.Medicion.validateRequired(); mErr != nil {
		if mErrs, ok := mErr.(validation.Errors); ok {
			for k, v := range mErrs {
				errs[fmt.Sprintf("medicion.%s", k)] = v
			}
		} else {
			errs["medicion"] = mErr
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

func stringEquals(expected, message string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != expected {
			return errors.New(message)
		}
		return nil
	}
}

// fieldErrorMap flattens validation errors into the string map captured by
// validation-failure audit events and 422 responses.
func fieldErrorMap(err error) map[string]any {
	out := map[string]any{}
	if err == nil {
		return out
	}

	if errs, ok := err.(validation.Errors); ok {
		for field, ferr := range errs {
			out[field] = ferr.Error()
		}
		return out
	}

	out["_"] = err.Error()
	return out
}
