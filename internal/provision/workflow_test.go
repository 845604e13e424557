package provision

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	repobun "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"golang.org/x/crypto/bcrypt"

	"github.com/nutrivida/api/internal/audit"
	"github.com/nutrivida/api/internal/auth"
	"github.com/nutrivida/api/internal/models"
	"github.com/nutrivida/api/internal/repository"
)

type recorderStub struct {
	events []audit.Event
}

func (r *recorderStub) Record(_ context.Context, event audit.Event) {
	r.events = append(r.events, event)
}

func (r *recorderStub) byType(eventType audit.EventType) []audit.Event {
	var out []audit.Event
	for _, e := range r.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type workflowEnv struct {
	workflow *Workflow
	repo     repository.Manager
	recorder *recorderStub
	db       *bun.DB
}

func setupWorkflow(t *testing.T, opts ...Option) *workflowEnv {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	require.NoError(t, repository.CreateSchema(context.Background(), db))

	t.Cleanup(func() {
		_ = db.Close()
	})

	manager := repository.NewManager(db)
	recorder := &recorderStub{}
	credentials := auth.NewCredentialStore(bcrypt.MinCost)
	tokens := auth.NewTokenService(db, nil)

	return &workflowEnv{
		workflow: NewWorkflow(manager, credentials, tokens, recorder, nil, opts...),
		repo:     manager,
		recorder: recorder,
		db:       db,
	}
}

func (e *workflowEnv) seedService(t *testing.T) *models.Service {
	t.Helper()
	svc, err := e.repo.Services().Create(context.Background(), &models.Service{
		Nombre:       "Plan mensual",
		Costo:        499,
		DuracionDias: 30,
	})
	require.NoError(t, err)
	return svc
}

func (e *workflowEnv) seedNutritionist(t *testing.T) *models.Nutritionist {
	t.Helper()
	nut, err := e.repo.Nutritionists().Create(context.Background(), &models.Nutritionist{
		Nombre: "Dra. Perez",
		Email:  "perez@x.com",
	})
	require.NoError(t, err)
	return nut
}

func anaInput() RegisterInput {
	return RegisterInput{
		Name:                 "Ana Lopez",
		Email:                "ana@x.com",
		Password:             "Password123!",
		PasswordConfirmation: "Password123!",
		Role:                 models.RolePatient,
		FechaNacimiento:      "1995-05-01",
		Genero:               models.GenderFemale,
	}
}

func requireValidation(t *testing.T, err error) map[string]any {
	t.Helper()

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr), "expected a rich error, got %v", err)
	require.Equal(t, goerrors.CategoryValidation, richErr.Category)

	errs, _ := richErr.Metadata["errors"].(map[string]any)
	return errs
}

func TestRegisterPatientScenario(t *testing.T) {
	env := setupWorkflow(t)
	ctx := context.Background()

	result, err := env.workflow.Register(ctx, anaInput(), RequestMeta{IP: "1.2.3.4"})
	require.NoError(t, err)

	assert.Equal(t, "Usuario registrado exitosamente", result.Message)
	assert.Equal(t, "Bearer", result.TokenType)
	assert.NotEmpty(t, result.AccessToken)

	require.NotNil(t, result.User)
	assert.Equal(t, models.RolePatient, result.User.Role)
	assert.Equal(t, "ana@x.com", result.User.Email)
	require.NotNil(t, result.User.Paciente)
	assert.Equal(t, "Ana", result.User.Paciente.Nombre)
	assert.Equal(t, "Lopez", result.User.Paciente.Apellido)

	// exactly one identity and one profile row
	userCount, err := env.db.NewSelect().Model((*models.User)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, userCount)

	patientCount, err := env.db.NewSelect().Model((*models.Patient)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, patientCount)

	require.Len(t, env.recorder.byType(audit.EventRegistrationStarted), 1)
	require.Len(t, env.recorder.byType(audit.EventUserCreated), 1)
	require.Len(t, env.recorder.byType(audit.EventRegistrationSucceeded), 1)
}

func TestRegisterWithCascadeRecords(t *testing.T) {
	env := setupWorkflow(t)
	ctx := context.Background()

	svc := env.seedService(t)
	nut := env.seedNutritionist(t)

	peso, altura := 70.0, 1.75
	in := anaInput()
	in.NutritionistID = nut.ID.String()
	in.ServiceID = svc.ID.String()
	in.Telefono = "55 1234 5678"
	in.Medicion = &MeasurementInput{PesoKg: &peso, AlturaM: &altura}

	result, err := env.workflow.Register(ctx, in, RequestMeta{})
	require.NoError(t, err)

	patient, err := env.repo.Patients().GetByUserID(ctx, result.User.ID)
	require.NoError(t, err)
	require.NotNil(t, patient.NutritionistID)
	assert.Equal(t, nut.ID, *patient.NutritionistID)
	require.NotNil(t, patient.FechaNacimiento)

	eval, err := env.repo.Evaluations().LatestByPatient(ctx, patient.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EvaluationInitial, eval.Tipo)
	require.NotNil(t, eval.Medicion)
	assert.Equal(t, 70.0, eval.Medicion.PesoKg)
	assert.Equal(t, 1.75, eval.Medicion.AlturaM)

	subs, err := env.repo.Subscriptions().ListByUser(ctx, result.User.ID)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, models.SubscriptionActive, subs[0].Estado)

	var metodo map[string]string
	require.NoError(t, json.Unmarshal([]byte(subs[0].MetodoPago), &metodo))
	assert.Equal(t, "onboarding", metodo["tipo"])
	assert.Equal(t, "Registro", metodo["nombre"])
}

func TestRegisterRollsBackOnCascadeFailure(t *testing.T) {
	tests := []struct {
		name   string
		table  string
		mutate func(*RegisterInput)
	}{
		{
			name:  "patient insert fails",
			table: "pacientes",
		},
		{
			name:  "measurement insert fails",
			table: "mediciones",
			mutate: func(in *RegisterInput) {
				peso, altura := 70.0, 1.75
				in.Medicion = &MeasurementInput{PesoKg: &peso, AlturaM: &altura}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupWorkflow(t)
			ctx := context.Background()

			_, err := env.db.ExecContext(ctx, "DROP TABLE "+tt.table)
			require.NoError(t, err)

			in := anaInput()
			if tt.mutate != nil {
				tt.mutate(&in)
			}

			_, err = env.workflow.Register(ctx, in, RequestMeta{})
			require.Error(t, err)

			var richErr *goerrors.Error
			require.True(t, goerrors.As(err, &richErr))
			assert.Equal(t, goerrors.CategoryInternal, richErr.Category)
			assert.Equal(t, "Error al registrar usuario", richErr.Message)

			// the identity row goes in first inside the tx; a later cascade
			// failure must roll it back too
			userCount, err := env.db.NewSelect().Model((*models.User)(nil)).Count(ctx)
			require.NoError(t, err)
			assert.Zero(t, userCount)

			tokenCount, err := env.db.NewSelect().Model((*models.AccessToken)(nil)).Count(ctx)
			require.NoError(t, err)
			assert.Zero(t, tokenCount)

			require.Len(t, env.recorder.byType(audit.EventRegistrationFailed), 1)
			require.Empty(t, env.recorder.byType(audit.EventRegistrationSucceeded))
		})
	}
}

type vanishedServices struct {
	repository.Services
}

func (vanishedServices) GetTx(context.Context, bun.IDB, uuid.UUID) (*models.Service, error) {
	return nil, repobun.NewRecordNotFound()
}

type vanishedServiceManager struct {
	repository.Manager
}

func (m vanishedServiceManager) Services() repository.Services {
	return vanishedServices{m.Manager.Services()}
}

func TestRegisterServiceVanishesMidTransaction(t *testing.T) {
	env := setupWorkflow(t)
	ctx := context.Background()

	// the service passes the reference check but is gone by the time the
	// transaction reads it back; registration proceeds without a subscription
	svc := env.seedService(t)
	workflow := NewWorkflow(
		vanishedServiceManager{env.repo},
		auth.NewCredentialStore(bcrypt.MinCost),
		auth.NewTokenService(env.db, nil),
		env.recorder,
		nil,
	)

	in := anaInput()
	in.ServiceID = svc.ID.String()

	result, err := workflow.Register(ctx, in, RequestMeta{})
	require.NoError(t, err)

	require.NotNil(t, result.User.Paciente)
	assert.Equal(t, "Ana", result.User.Paciente.Nombre)
	require.NotNil(t, result.User.PacienteID)

	subs, err := env.repo.Subscriptions().ListByUser(ctx, result.User.ID)
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestRegisterValidationFailures(t *testing.T) {
	env := setupWorkflow(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		mutate    func(*RegisterInput)
		wantField string
	}{
		{
			name:      "missing email",
			mutate:    func(in *RegisterInput) { in.Email = "" },
			wantField: "email",
		},
		{
			name:      "short password",
			mutate:    func(in *RegisterInput) { in.Password, in.PasswordConfirmation = "short", "short" },
			wantField: "password",
		},
		{
			name:      "confirmation mismatch",
			mutate:    func(in *RegisterInput) { in.PasswordConfirmation = "Different123!" },
			wantField: "password_confirmation",
		},
		{
			name:      "unknown role",
			mutate:    func(in *RegisterInput) { in.Role = "superadmin" },
			wantField: "role",
		},
		{
			name:      "patient without genero",
			mutate:    func(in *RegisterInput) { in.Genero = "" },
			wantField: "genero",
		},
		{
			name:      "patient without fecha_nacimiento",
			mutate:    func(in *RegisterInput) { in.FechaNacimiento = "" },
			wantField: "fecha_nacimiento",
		},
		{
			name:      "dangling nutritionist reference",
			mutate:    func(in *RegisterInput) { in.NutritionistID = uuid.NewString() },
			wantField: "id_nutricionista",
		},
		{
			name:      "dangling service reference",
			mutate:    func(in *RegisterInput) { in.ServiceID = uuid.NewString() },
			wantField: "servicio_id",
		},
		{
			name: "measurement out of range",
			mutate: func(in *RegisterInput) {
				peso, altura := 10.0, 1.75
				in.Medicion = &MeasurementInput{PesoKg: &peso, AlturaM: &altura}
			},
			wantField: "medicion",
		},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := anaInput()
			in.Email = fmt.Sprintf("ana%d@x.com", i)
			tt.mutate(&in)

			_, err := env.workflow.Register(ctx, in, RequestMeta{})
			require.Error(t, err)

			errs := requireValidation(t, err)
			assert.Contains(t, errs, tt.wantField)
		})
	}

	count, err := env.db.NewSelect().Model((*models.User)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count, "rejected registrations must not persist identities")
}

func TestRegisterDuplicateEmail(t *testing.T) {
	env := setupWorkflow(t)
	ctx := context.Background()

	_, err := env.workflow.Register(ctx, anaInput(), RequestMeta{})
	require.NoError(t, err)

	in := anaInput()
	in.Email = "ANA@X.COM"
	_, err = env.workflow.Register(ctx, in, RequestMeta{})
	require.Error(t, err)

	errs := requireValidation(t, err)
	assert.Equal(t, "El email ya está registrado.", errs["email"])
}

func TestRegisterNeverAuditsSecrets(t *testing.T) {
	env := setupWorkflow(t)

	_, err := env.workflow.Register(context.Background(), anaInput(), RequestMeta{})
	require.NoError(t, err)

	for _, event := range env.recorder.events {
		raw, err := json.Marshal(event.Metadata)
		require.NoError(t, err)
		assert.NotContains(t, string(raw), "Password123!")
	}
}

func TestRegisterDeterministicIDs(t *testing.T) {
	env := setupWorkflow(t, WithDeterministicIDs(true))

	result, err := env.workflow.Register(context.Background(), anaInput(), RequestMeta{})
	require.NoError(t, err)

	want, err := hashid.NewUUID("ana@x.com")
	require.NoError(t, err)
	assert.Equal(t, want, result.User.ID)
}

func TestRegisterNormalizesPhone(t *testing.T) {
	env := setupWorkflow(t, WithPhoneRegion("MX"))

	in := anaInput()
	in.Telefono = "55 1234 5678"

	result, err := env.workflow.Register(context.Background(), in, RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, "+525512345678", result.User.Telefono)
}

func TestLoginSuccess(t *testing.T) {
	env := setupWorkflow(t)
	ctx := context.Background()

	registered, err := env.workflow.Register(ctx, anaInput(), RequestMeta{})
	require.NoError(t, err)

	result, err := env.workflow.Login(ctx, LoginInput{
		Email:    "ANA@X.COM",
		Password: "Password123!",
	}, RequestMeta{IP: "1.2.3.4"})
	require.NoError(t, err)

	assert.Equal(t, "Inicio de sesión exitoso", result.Message)
	assert.NotEmpty(t, result.AccessToken)
	assert.NotEqual(t, registered.AccessToken, result.AccessToken)

	// paciente attachment travels with the login response
	require.NotNil(t, result.User.Paciente)
	assert.Equal(t, "Ana", result.User.Paciente.Nombre)

	require.Len(t, env.recorder.byType(audit.EventTokenIssuing), 1)
	require.Len(t, env.recorder.byType(audit.EventLoginSucceeded), 1)
}

func TestLoginFailureReasonsStayInternal(t *testing.T) {
	env := setupWorkflow(t)
	ctx := context.Background()

	_, err := env.workflow.Register(ctx, anaInput(), RequestMeta{})
	require.NoError(t, err)

	tests := []struct {
		name       string
		email      string
		password   string
		wantReason string
	}{
		{
			name:       "unknown email",
			email:      "nobody@x.com",
			password:   "Password123!",
			wantReason: "user_not_found",
		},
		{
			name:       "wrong password",
			email:      "ana@x.com",
			password:   "WrongPassword!",
			wantReason: "invalid_password",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env.recorder.events = nil

			_, err := env.workflow.Login(ctx, LoginInput{
				Email:    tt.email,
				Password: tt.password,
			}, RequestMeta{})
			require.Error(t, err)

			var richErr *goerrors.Error
			require.True(t, goerrors.As(err, &richErr))
			assert.Equal(t, goerrors.CategoryValidation, richErr.Category)
			assert.Equal(t, "Las credenciales proporcionadas son incorrectas.", richErr.Message)

			rejected := env.recorder.byType(audit.EventLoginRejected)
			require.Len(t, rejected, 1)
			assert.Equal(t, tt.wantReason, rejected[0].Metadata["reason"])
		})
	}
}

func TestIssueReplacesToken(t *testing.T) {
	env := setupWorkflow(t)
	ctx := context.Background()

	result, err := env.workflow.Register(ctx, anaInput(), RequestMeta{})
	require.NoError(t, err)

	_, err = env.workflow.Login(ctx, LoginInput{Email: "ana@x.com", Password: "Password123!"}, RequestMeta{})
	require.NoError(t, err)

	count, err := env.db.NewSelect().
		Model((*models.AccessToken)(nil)).
		Where("user_id = ?", result.User.ID).
		Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "at most one valid token per identity")
}

func onboardingInput(svc *models.Service, nut *models.Nutritionist) OnboardingInput {
	peso, altura := 70.0, 1.75
	return OnboardingInput{
		ServiceID:      svc.ID.String(),
		NutritionistID: nut.ID.String(),
		Medicion:       &MeasurementInput{PesoKg: &peso, AlturaM: &altura},
		Observaciones:  "Primera consulta",
	}
}

func TestFinalizeOnboarding(t *testing.T) {
	env := setupWorkflow(t)
	ctx := context.Background()

	registered, err := env.workflow.Register(ctx, anaInput(), RequestMeta{})
	require.NoError(t, err)

	svc := env.seedService(t)
	nut := env.seedNutritionist(t)

	result, err := env.workflow.FinalizeOnboarding(ctx, registered.User, onboardingInput(svc, nut), RequestMeta{})
	require.NoError(t, err)

	assert.Equal(t, "Onboarding completado", result.Message)
	require.NotNil(t, result.Evaluacion)
	require.NotNil(t, result.Evaluacion.Medicion)
	assert.Equal(t, 70.0, result.Evaluacion.Medicion.PesoKg)
	assert.Equal(t, 1.75, result.Evaluacion.Medicion.AlturaM)
	assert.Equal(t, "Plan mensual", result.Suscripcion.Servicio.Nombre)
	assert.Equal(t, models.SubscriptionActive, result.Suscripcion.Estado)

	// round trip via the read path
	patient, err := env.repo.Patients().GetByUserID(ctx, registered.User.ID)
	require.NoError(t, err)
	require.NotNil(t, patient.NutritionistID)
	assert.Equal(t, nut.ID, *patient.NutritionistID)

	latest, err := env.repo.Evaluations().LatestByPatient(ctx, patient.ID)
	require.NoError(t, err)
	require.NotNil(t, latest.Medicion)
	assert.Equal(t, 70.0, latest.Medicion.PesoKg)
	assert.Equal(t, 1.75, latest.Medicion.AlturaM)
}

func TestFinalizeOnboardingTwiceCreatesTwoSubscriptions(t *testing.T) {
	env := setupWorkflow(t)
	ctx := context.Background()

	registered, err := env.workflow.Register(ctx, anaInput(), RequestMeta{})
	require.NoError(t, err)

	svc := env.seedService(t)
	nut := env.seedNutritionist(t)
	in := onboardingInput(svc, nut)

	_, err = env.workflow.FinalizeOnboarding(ctx, registered.User, in, RequestMeta{})
	require.NoError(t, err)
	_, err = env.workflow.FinalizeOnboarding(ctx, registered.User, in, RequestMeta{})
	require.NoError(t, err)

	subs, err := env.repo.Subscriptions().ListByUser(ctx, registered.User.ID)
	require.NoError(t, err)
	assert.Len(t, subs, 2)
}

func TestFinalizeOnboardingValidation(t *testing.T) {
	env := setupWorkflow(t)
	ctx := context.Background()

	registered, err := env.workflow.Register(ctx, anaInput(), RequestMeta{})
	require.NoError(t, err)

	svc := env.seedService(t)
	nut := env.seedNutritionist(t)

	t.Run("missing measurement", func(t *testing.T) {
		in := onboardingInput(svc, nut)
		in.Medicion = nil

		_, err := env.workflow.FinalizeOnboarding(ctx, registered.User, in, RequestMeta{})
		require.Error(t, err)
		errs := requireValidation(t, err)
		assert.Contains(t, errs, "medicion")
	})

	t.Run("incomplete measurement", func(t *testing.T) {
		peso := 70.0
		in := onboardingInput(svc, nut)
		in.Medicion = &MeasurementInput{PesoKg: &peso}

		_, err := env.workflow.FinalizeOnboarding(ctx, registered.User, in, RequestMeta{})
		require.Error(t, err)
		errs := requireValidation(t, err)
		assert.Contains(t, errs, "medicion.altura_m")
	})

	t.Run("dangling service", func(t *testing.T) {
		in := onboardingInput(svc, nut)
		in.ServiceID = uuid.NewString()

		_, err := env.workflow.FinalizeOnboarding(ctx, registered.User, in, RequestMeta{})
		require.Error(t, err)
		errs := requireValidation(t, err)
		assert.Equal(t, "El servicio seleccionado no existe.", errs["servicio_id"])
	})
}

func TestFinalizeOnboardingWithoutProfile(t *testing.T) {
	env := setupWorkflow(t)
	ctx := context.Background()

	in := anaInput()
	in.Role = models.RoleNutritionist
	in.FechaNacimiento = ""
	in.Genero = ""

	registered, err := env.workflow.Register(ctx, in, RequestMeta{})
	require.NoError(t, err)

	svc := env.seedService(t)
	nut := env.seedNutritionist(t)

	_, err = env.workflow.FinalizeOnboarding(ctx, registered.User, onboardingInput(svc, nut), RequestMeta{})
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, goerrors.CategoryInternal, richErr.Category)
	assert.Equal(t, "Error al finalizar onboarding", richErr.Message)

	require.Len(t, env.recorder.byType(audit.EventOnboardingFailed), 1)
}
