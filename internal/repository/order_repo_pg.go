package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tedxreg/registration/internal/domain"
)

type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order) error
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	ExpireCreatedBefore(ctx context.Context, deadline time.Time) ([]domain.Order, error)
}

type PGOrderRepository struct {
	db DB
}

func NewOrderRepository(db DB) OrderRepository {
	return &PGOrderRepository{db: db}
}

const orderColumns = `id, amount, currency, receipt, coupon_code, email, status, expires_at, created_at, updated_at`

func (r *PGOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	order.Status = domain.OrderStatusCreated
	err := r.db.QueryRow(ctx, `INSERT INTO orders (id, amount, currency, receipt, coupon_code, email, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		order.ID, order.Amount, order.Currency, order.Receipt, order.CouponCode, order.Email, order.Status, order.ExpiresAt).
		Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ConflictError{Resource: "order", Msg: order.ID + " already recorded"}
		}
		return err
	}
	return nil
}

func (r *PGOrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	row := r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, err
	}
	return o, nil
}

func (r *PGOrderRepository) ExpireCreatedBefore(ctx context.Context, deadline time.Time) ([]domain.Order, error) {
	rows, err := r.db.Query(ctx, `UPDATE orders SET status=$1, updated_at=now() WHERE status=$2 AND expires_at <= $3 RETURNING `+orderColumns,
		domain.OrderStatusExpired, domain.OrderStatusCreated, deadline)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var expired []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		expired = append(expired, *o)
	}
	return expired, rows.Err()
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var o domain.Order
	if err := row.Scan(&o.ID, &o.Amount, &o.Currency, &o.Receipt, &o.CouponCode, &o.Email, &o.Status, &o.ExpiresAt, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	return &o, nil
}

var _ OrderRepository = (*PGOrderRepository)(nil)
