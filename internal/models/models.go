package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserRole is the identity role
type UserRole = string

const (
	// RoleAdmin is the platform administrator
	RoleAdmin UserRole = "admin"
	// RoleNutritionist is a practitioner account
	RoleNutritionist UserRole = "nutricionista"
	// RolePatient is the default role for new identities
	RolePatient UserRole = "paciente"
	// RolePsychologist is a practitioner account for psychology sessions
	RolePsychologist UserRole = "psicologo"
)

// ValidRoles lists every accepted identity role.
func ValidRoles() []any {
	return []any{RoleAdmin, RoleNutritionist, RolePatient, RolePsychologist}
}

// Genders accepted on patient profiles.
const (
	GenderMale   = "M"
	GenderFemale = "F"
	GenderOther  = "Otro"
)

// User is the authenticatable identity record. The password hash is never
// serialized in responses.
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Name          string     `bun:"name,notnull" json:"name,omitempty"`
	Email         string     `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash  string     `bun:"password_hash" json:"-"`
	Role          UserRole   `bun:"role,notnull" json:"role,omitempty"`
	Telefono      string     `bun:"telefono" json:"telefono,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`

	// Patient attachment, populated for role paciente on login and social flows.
	PacienteID *uuid.UUID `bun:"-" json:"id_paciente,omitempty"`
	Paciente   *Patient   `bun:"rel:has-one,join:id=user_id" json:"paciente,omitempty"`
}

// AttachPatient links the transient patient fields to the user.
func (u *User) AttachPatient(p *Patient) *User {
	if p != nil {
		u.PacienteID = &p.ID
		u.Paciente = p
	}
	return u
}

// Patient is the 1:1 clinical profile for identities with role paciente.
// peso_inicial and estatura are legacy columns superseded by mediciones.
type Patient struct {
	bun.BaseModel   `bun:"table:pacientes,alias:pac"`
	ID              uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id_paciente,omitempty"`
	UserID          uuid.UUID  `bun:"user_id,notnull,unique,type:uuid" json:"user_id,omitempty"`
	Nombre          string     `bun:"nombre,notnull" json:"nombre"`
	Apellido        string     `bun:"apellido" json:"apellido"`
	FechaNacimiento *time.Time `bun:"fecha_nacimiento,nullzero" json:"fecha_nacimiento,omitempty"`
	Genero          string     `bun:"genero" json:"genero,omitempty"`
	Email           string     `bun:"email" json:"email,omitempty"`
	Telefono        string     `bun:"telefono" json:"telefono,omitempty"`
	PesoInicial     *float64   `bun:"peso_inicial" json:"peso_inicial,omitempty"`
	Estatura        *float64   `bun:"estatura" json:"estatura,omitempty"`
	Alergias        *string    `bun:"alergias" json:"alergias,omitempty"`
	NutritionistID  *uuid.UUID `bun:"id_nutricionista,nullzero,type:uuid" json:"id_nutricionista,omitempty"`
	CreatedAt       *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt       *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// Nutritionist is the practitioner record patients get assigned to.
type Nutritionist struct {
	bun.BaseModel `bun:"table:nutricionistas,alias:nut"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id_nutricionista,omitempty"`
	Nombre        string     `bun:"nombre,notnull" json:"nombre,omitempty"`
	Email         string     `bun:"email" json:"email,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// EvaluationInitial tags the assessment created during provisioning.
const EvaluationInitial = "INICIAL"

// Evaluation is a clinical assessment event. It owns exactly one Measurement.
type Evaluation struct {
	bun.BaseModel  `bun:"table:evaluaciones,alias:eva"`
	ID             uuid.UUID    `bun:"id,pk,nullzero,type:uuid" json:"id_evaluacion,omitempty"`
	PatientID      uuid.UUID    `bun:"id_paciente,notnull,type:uuid" json:"id_paciente,omitempty"`
	NutritionistID *uuid.UUID   `bun:"id_nutricionista,nullzero,type:uuid" json:"id_nutricionista,omitempty"`
	Tipo           string       `bun:"tipo,notnull" json:"tipo,omitempty"`
	Fecha          time.Time    `bun:"fecha,notnull" json:"fecha,omitempty"`
	Observaciones  string       `bun:"observaciones" json:"observaciones"`
	Medicion       *Measurement `bun:"rel:has-one,join:id=id_evaluacion" json:"medicion,omitempty"`
}

// Measurement holds the anthropometric values of one evaluation. Records are
// immutable once created in this workflow.
type Measurement struct {
	bun.BaseModel `bun:"table:mediciones,alias:med"`
	ID            uuid.UUID `bun:"id,pk,nullzero,type:uuid" json:"id_medicion,omitempty"`
	EvaluationID  uuid.UUID `bun:"id_evaluacion,notnull,type:uuid" json:"id_evaluacion,omitempty"`
	PesoKg        float64   `bun:"peso_kg,notnull" json:"peso_kg"`
	AlturaM       float64   `bun:"altura_m,notnull" json:"altura_m"`
	PorcGrasa     *float64  `bun:"porc_grasa" json:"porc_grasa,omitempty"`
	MasaMagraKg   *float64  `bun:"masa_magra_kg" json:"masa_magra_kg,omitempty"`
}

// Service is an offering patients subscribe to.
type Service struct {
	bun.BaseModel `bun:"table:servicios,alias:srv"`
	ID            uuid.UUID `bun:"id,pk,nullzero,type:uuid" json:"id_servicio,omitempty"`
	Nombre        string    `bun:"nombre,notnull" json:"nombre,omitempty"`
	Costo         float64   `bun:"costo,notnull" json:"precio"`
	DuracionDias  int       `bun:"duracion_dias,notnull" json:"duracion_dias,omitempty"`
}

// SubscriptionActive is the status subscriptions are created with.
const SubscriptionActive = "activa"

// Subscription binds an identity to a service. Re-onboarding creates an
// additional subscription; there is no dedup.
type Subscription struct {
	bun.BaseModel `bun:"table:suscripciones,alias:sus"`
	ID            uuid.UUID `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	ServiceID     uuid.UUID `bun:"servicio_id,notnull,type:uuid" json:"servicio_id,omitempty"`
	Estado        string    `bun:"estado,notnull" json:"estado,omitempty"`
	FechaInicio   time.Time `bun:"fecha_inicio,notnull" json:"fecha_inicio,omitempty"`
	FechaFin      time.Time `bun:"fecha_fin,notnull" json:"fecha_fin,omitempty"`
	ProximoCobro  time.Time `bun:"proximo_cobro,notnull" json:"proximo_cobro,omitempty"`
	MetodoPago    string    `bun:"metodo_pago" json:"metodo_pago,omitempty"`
}

// AccessToken is an opaque bearer credential bound to exactly one identity.
// Only the SHA-256 digest of the secret half is stored.
type AccessToken struct {
	bun.BaseModel `bun:"table:access_tokens,alias:tok"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	Name          string     `bun:"name,notnull" json:"name,omitempty"`
	TokenDigest   string     `bun:"token_digest,notnull" json:"-"`
	LastUsedAt    *time.Time `bun:"last_used_at,nullzero" json:"last_used_at,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}
