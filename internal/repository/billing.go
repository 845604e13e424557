package repository

import (
	"context"
	"database/sql"
	"errors"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/nutrivida/api/internal/models"
)

// Services resolves the service catalog consumed during onboarding. Catalog
// management itself is an external concern.
type Services interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Service, error)
	GetTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*models.Service, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	Create(ctx context.Context, record *models.Service) (*models.Service, error)
}

type services struct {
	db *bun.DB
}

// NewServicesRepository builds the services repository.
func NewServicesRepository(db *bun.DB) Services {
	return &services{db: db}
}

func (r *services) Get(ctx context.Context, id uuid.UUID) (*models.Service, error) {
	return r.GetTx(ctx, r.db, id)
}

func (r *services) GetTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*models.Service, error) {
	record := &models.Service{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"id_servicio": id.String()})
		}
		return nil, err
	}
	return record, nil
}

func (r *services) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.db.NewSelect().
		Model((*models.Service)(nil)).
		Where("?TableAlias.id = ?", id).
		Exists(ctx)
}

func (r *services) Create(ctx context.Context, record *models.Service) (*models.Service, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if _, err := r.db.NewInsert().Model(record).Exec(ctx); err != nil {
		return nil, err
	}
	return record, nil
}

// Subscriptions persists service subscriptions.
type Subscriptions interface {
	CreateTx(ctx context.Context, tx bun.IDB, record *models.Subscription) (*models.Subscription, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Subscription, error)
}

type subscriptions struct {
	db *bun.DB
}

// NewSubscriptionsRepository builds the subscriptions repository.
func NewSubscriptionsRepository(db *bun.DB) Subscriptions {
	return &subscriptions{db: db}
}

func (r *subscriptions) CreateTx(ctx context.Context, tx bun.IDB, record *models.Subscription) (*models.Subscription, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.Estado == "" {
		record.Estado = models.SubscriptionActive
	}
	if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
		return nil, err
	}
	return record, nil
}

func (r *subscriptions) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Subscription, error) {
	var records []*models.Subscription
	err := r.db.NewSelect().
		Model(&records).
		Where("?TableAlias.user_id = ?", userID).
		Order("fecha_inicio ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}
