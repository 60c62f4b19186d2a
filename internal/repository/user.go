package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/fusetalk/fusetalk-server/internal/database"
	"github.com/fusetalk/fusetalk-server/internal/model"
)

// UserRepository reads the user directory. Accounts are provisioned elsewhere.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByIDs(ctx context.Context, ids []string) ([]model.User, error)
	FindByTokenHash(ctx context.Context, tokenHash string) (*model.User, error)
}

type userRepo struct {
	db database.Querier
}

func NewUserRepository(db database.Querier) UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE id = $1`, id)
	return optional(&user, err)
}

func (r *userRepo) FindByIDs(ctx context.Context, ids []string) ([]model.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT * FROM users WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	var users []model.User
	err = r.db.SelectContext(ctx, &users, sqlx.Rebind(sqlx.DOLLAR, query), args...)
	return users, err
}

func (r *userRepo) FindByTokenHash(ctx context.Context, tokenHash string) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE token_hash = $1`, tokenHash)
	return optional(&user, err)
}
