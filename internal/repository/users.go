package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/nutrivida/api/internal/models"
)

// Users persists identity records.
type Users interface {
	repository.Repository[*models.User]

	Register(ctx context.Context, user *models.User) (*models.User, error)
	RegisterTx(ctx context.Context, tx bun.IDB, user *models.User) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*models.User, error)
	EmailTaken(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, record *models.User, criteria ...repository.InsertCriteria) (*models.User, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *models.User, criteria ...repository.InsertCriteria) (*models.User, error)
}

type users struct {
	repository.Repository[*models.User]
	db *bun.DB
}

var (
	_ Users                               = (*users)(nil)
	_ repository.Repository[*models.User] = (*users)(nil)
)

// NewUsersRepository wires the generic repository with identity handlers.
func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*models.User](db, repository.ModelHandlers[*models.User]{
		NewRecord: func() *models.User { return &models.User{} },
		GetID: func(u *models.User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *models.User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

func (a *users) Register(ctx context.Context, user *models.User) (*models.User, error) {
	return a.RegisterTx(ctx, a.db, user)
}

func (a *users) RegisterTx(ctx context.Context, tx bun.IDB, user *models.User) (*models.User, error) {
	return a.CreateTx(ctx, tx, user)
}

func (a *users) Create(ctx context.Context, record *models.User, criteria ...repository.InsertCriteria) (*models.User, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *users) CreateTx(ctx context.Context, tx bun.IDB, record *models.User, criteria ...repository.InsertCriteria) (*models.User, error) {
	prepareUserDefaults(record)
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (a *users) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return a.GetByEmailTx(ctx, a.db, email)
}

func (a *users) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*models.User, error) {
	record := &models.User{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.email = ?", NormalizeEmail(email)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) || errors.Is(err, sql.ErrNoRows) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"identifier": NormalizeEmail(email),
				})
		}
		return nil, err
	}

	return record, nil
}

func (a *users) EmailTaken(ctx context.Context, email string) (bool, error) {
	_, err := a.GetByEmail(ctx, email)
	if err == nil {
		return true, nil
	}
	if repository.IsRecordNotFound(err) {
		return false, nil
	}
	return false, err
}

// NormalizeEmail lowercases the address so uniqueness is case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func prepareUserDefaults(record *models.User) {
	if record == nil {
		return
	}

	if record.Role == "" {
		record.Role = models.RolePatient
	}

	record.Email = NormalizeEmail(record.Email)

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}
