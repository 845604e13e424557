package repository

import (
	"context"
	"database/sql"
	"errors"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// Manager exposes all repositories plus the shared transaction boundary.
// The provisioning cascade runs entirely inside one RunInTx call.
type Manager interface {
	repository.Validator
	repository.TransactionManager
	Users() Users
	Patients() Patients
	Nutritionists() Nutritionists
	Evaluations() Evaluations
	Services() Services
	Subscriptions() Subscriptions
	Ping(ctx context.Context) error
}

type mngr struct {
	db            *bun.DB
	users         Users
	patients      Patients
	nutritionists Nutritionists
	evaluations   Evaluations
	services      Services
	subscriptions Subscriptions
}

// NewManager wires every repository over a single bun handle.
func NewManager(db *bun.DB) Manager {
	return &mngr{
		db:            db,
		users:         NewUsersRepository(db),
		patients:      NewPatientsRepository(db),
		nutritionists: NewNutritionistsRepository(db),
		evaluations:   NewEvaluationsRepository(db),
		services:      NewServicesRepository(db),
		subscriptions: NewSubscriptionsRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.patients == nil {
		return errors.New("repository patients should be initialized")
	}

	if m.evaluations == nil {
		return errors.New("repository evaluations should be initialized")
	}

	if m.subscriptions == nil {
		return errors.New("repository subscriptions should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Ping(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

func (m mngr) Users() Users                 { return m.users }
func (m mngr) Patients() Patients           { return m.patients }
func (m mngr) Nutritionists() Nutritionists { return m.nutritionists }
func (m mngr) Evaluations() Evaluations     { return m.evaluations }
func (m mngr) Services() Services           { return m.services }
func (m mngr) Subscriptions() Subscriptions { return m.subscriptions }
