package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"commerce-access/internal/domain/model"
	"commerce-access/internal/domain/ports/repository"
)

var _ repository.UserRepository = (*userRepo)(nil)

type userRepo struct{ pool *pgxpool.Pool }

func NewUserRepo(pool *pgxpool.Pool) *userRepo {
	return &userRepo{pool: pool}
}

func (r *userRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	const q = `
INSERT INTO users (id, email, created_at) VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email;`
	_, err := execSQL(ctx, r.pool, tx, q, u.ID, model.NormalizeEmail(u.Email), u.CreatedAt)
	return err
}

func (r *userRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	return r.findOne(ctx, tx, `SELECT id, email, created_at FROM users WHERE id = $1;`, id)
}

func (r *userRepo) FindByEmail(ctx context.Context, tx repository.Tx, email string) (*model.User, error) {
	return r.findOne(ctx, tx, `SELECT id, email, created_at FROM users WHERE email = $1;`, model.NormalizeEmail(email))
}

func (r *userRepo) findOne(ctx context.Context, tx repository.Tx, q string, arg string) (*model.User, error) {
	row, err := pickRow(ctx, r.pool, tx, q, arg)
	if err != nil {
		return nil, err
	}
	u := &model.User{}
	if err := row.Scan(&u.ID, &u.Email, &u.CreatedAt); err != nil {
		return nil, scanErr(err)
	}
	return u, nil
}
