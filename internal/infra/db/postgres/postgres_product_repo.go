package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"commerce-access/internal/domain"
	"commerce-access/internal/domain/model"
	"commerce-access/internal/domain/ports/repository"
)

var _ repository.ProductRepository = (*productRepo)(nil)

type productRepo struct{ pool *pgxpool.Pool }

func NewProductRepo(pool *pgxpool.Pool) *productRepo {
	return &productRepo{pool: pool}
}

const productCols = `id, name, active, price, currency, duration_days, oto, created_at`

func (r *productRepo) Save(ctx context.Context, tx repository.Tx, p *model.Product) error {
	var oto []byte
	if p.Oto != nil {
		b, err := json.Marshal(p.Oto)
		if err != nil {
			return fmt.Errorf("%w: oto config: %v", domain.ErrInvalidArgument, err)
		}
		oto = b
	}
	const q = `
INSERT INTO products (` + productCols + `) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (id) DO UPDATE SET
  name=$2, active=$3, price=$4, currency=$5, duration_days=$6, oto=$7;`
	_, err := execSQL(ctx, r.pool, tx, q, p.ID, p.Name, p.Active, p.Price, p.Currency, p.DurationDays, oto, p.CreatedAt)
	return err
}

func (r *productRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Product, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+productCols+` FROM products WHERE id = $1;`, id)
	if err != nil {
		return nil, err
	}
	return scanProduct(row)
}

func (r *productRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.Product, error) {
	rows, err := queryRows(ctx, r.pool, tx, `SELECT `+productCols+` FROM products ORDER BY id;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgError(err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanProduct(row scanner) (*model.Product, error) {
	p := &model.Product{}
	var oto []byte
	if err := row.Scan(&p.ID, &p.Name, &p.Active, &p.Price, &p.Currency, &p.DurationDays, &oto, &p.CreatedAt); err != nil {
		return nil, scanErr(err)
	}
	if len(oto) > 0 {
		var cfg model.OtoConfig
		if err := json.Unmarshal(oto, &cfg); err != nil {
			return nil, fmt.Errorf("%w: product %s oto: %v", domain.ErrReadDatabaseRow, p.ID, err)
		}
		p.Oto = &cfg
	}
	return p, nil
}
