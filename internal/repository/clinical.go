package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/nutrivida/api/internal/models"
)

// Patients persists the 1:1 clinical profile records.
type Patients interface {
	CreateTx(ctx context.Context, tx bun.IDB, record *models.Patient) (*models.Patient, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Patient, error)
	GetByUserIDTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (*models.Patient, error)
	AssignNutritionistTx(ctx context.Context, tx bun.IDB, patientID, nutritionistID uuid.UUID) error
}

type patients struct {
	db *bun.DB
}

// NewPatientsRepository builds the patients repository.
func NewPatientsRepository(db *bun.DB) Patients {
	return &patients{db: db}
}

func (r *patients) CreateTx(ctx context.Context, tx bun.IDB, record *models.Patient) (*models.Patient, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	record.Email = NormalizeEmail(record.Email)

	if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
		return nil, err
	}
	return record, nil
}

func (r *patients) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Patient, error) {
	return r.GetByUserIDTx(ctx, r.db, userID)
}

func (r *patients) GetByUserIDTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (*models.Patient, error) {
	record := &models.Patient{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.user_id = ?", userID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"user_id": userID.String()})
		}
		return nil, err
	}
	return record, nil
}

func (r *patients) AssignNutritionistTx(ctx context.Context, tx bun.IDB, patientID, nutritionistID uuid.UUID) error {
	_, err := tx.NewUpdate().
		Model((*models.Patient)(nil)).
		Set("id_nutricionista = ?", nutritionistID).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", patientID).
		Exec(ctx)
	return err
}

// Nutritionists resolves practitioner references.
type Nutritionists interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	Create(ctx context.Context, record *models.Nutritionist) (*models.Nutritionist, error)
}

type nutritionists struct {
	db *bun.DB
}

// NewNutritionistsRepository builds the practitioners repository.
func NewNutritionistsRepository(db *bun.DB) Nutritionists {
	return &nutritionists{db: db}
}

func (r *nutritionists) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.db.NewSelect().
		Model((*models.Nutritionist)(nil)).
		Where("?TableAlias.id = ?", id).
		Exists(ctx)
}

func (r *nutritionists) Create(ctx context.Context, record *models.Nutritionist) (*models.Nutritionist, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if _, err := r.db.NewInsert().Model(record).Exec(ctx); err != nil {
		return nil, err
	}
	return record, nil
}

// Evaluations persists assessment events and their measurement.
type Evaluations interface {
	CreateTx(ctx context.Context, tx bun.IDB, record *models.Evaluation) (*models.Evaluation, error)
	CreateMeasurementTx(ctx context.Context, tx bun.IDB, record *models.Measurement) (*models.Measurement, error)
	GetWithMeasurement(ctx context.Context, id uuid.UUID) (*models.Evaluation, error)
	LatestByPatient(ctx context.Context, patientID uuid.UUID) (*models.Evaluation, error)
}

type evaluations struct {
	db *bun.DB
}

// NewEvaluationsRepository builds the evaluations repository.
func NewEvaluationsRepository(db *bun.DB) Evaluations {
	return &evaluations{db: db}
}

func (r *evaluations) CreateTx(ctx context.Context, tx bun.IDB, record *models.Evaluation) (*models.Evaluation, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.Tipo == "" {
		record.Tipo = models.EvaluationInitial
	}
	if record.Fecha.IsZero() {
		record.Fecha = time.Now()
	}

	if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
		return nil, err
	}
	return record, nil
}

func (r *evaluations) CreateMeasurementTx(ctx context.Context, tx bun.IDB, record *models.Measurement) (*models.Measurement, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
		return nil, err
	}
	return record, nil
}

func (r *evaluations) GetWithMeasurement(ctx context.Context, id uuid.UUID) (*models.Evaluation, error) {
	record := &models.Evaluation{}
	err := r.db.NewSelect().
		Model(record).
		Relation("Medicion").
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"id": id.String()})
		}
		return nil, err
	}
	return record, nil
}

func (r *evaluations) LatestByPatient(ctx context.Context, patientID uuid.UUID) (*models.Evaluation, error) {
	record := &models.Evaluation{}
	err := r.db.NewSelect().
		Model(record).
		Relation("Medicion").
		Where("?TableAlias.id_paciente = ?", patientID).
		Order("fecha DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"id_paciente": patientID.String()})
		}
		return nil, err
	}
	return record, nil
}
