package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/tedxreg/registration/internal/domain"
)

type CouponRepository interface {
	GetByCode(ctx context.Context, code string) (*domain.Coupon, error)
	// Consume marks an unconsumed coupon as used by orderID. It returns true only
	// for the call that did so, and the order now holding the coupon ("" when it
	// was consumed without one).
	Consume(ctx context.Context, code, orderID string) (bool, string, error)
	Create(ctx context.Context, coupon *domain.Coupon) error
	List(ctx context.Context) ([]domain.Coupon, error)
}

type PGCouponRepository struct {
	db DB
}

func NewCouponRepository(db DB) CouponRepository {
	return &PGCouponRepository{db: db}
}

const couponColumns = `code, discount, expires_at, consumed_at, created_at`

func (r *PGCouponRepository) GetByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	row := r.db.QueryRow(ctx, `SELECT `+couponColumns+` FROM coupons WHERE code=$1`, code)
	c, err := scanCoupon(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCouponNotFound
		}
		return nil, err
	}
	return c, nil
}

func (r *PGCouponRepository) Consume(ctx context.Context, code, orderID string) (bool, string, error) {
	tag, err := r.db.Exec(ctx, `UPDATE coupons SET consumed_at = now(), consumed_by = NULLIF($2, '') WHERE code=$1 AND consumed_at IS NULL`,
		code, orderID)
	if err != nil {
		return false, "", err
	}
	if tag.RowsAffected() == 1 {
		return true, orderID, nil
	}

	var holder *string
	if err := r.db.QueryRow(ctx, `SELECT consumed_by FROM coupons WHERE code=$1`, code).Scan(&holder); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, "", domain.ErrCouponNotFound
		}
		return false, "", err
	}
	if holder == nil {
		return false, "", nil
	}
	return false, *holder, nil
}

func (r *PGCouponRepository) Create(ctx context.Context, coupon *domain.Coupon) error {
	err := r.db.QueryRow(ctx, `INSERT INTO coupons (code, discount, expires_at) VALUES ($1, $2, $3) RETURNING created_at`,
		coupon.Code, coupon.Discount, coupon.ExpiresAt).Scan(&coupon.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ConflictError{Resource: "coupon", Msg: coupon.Code + " already exists"}
		}
		return err
	}
	return nil
}

func (r *PGCouponRepository) List(ctx context.Context) ([]domain.Coupon, error) {
	rows, err := r.db.Query(ctx, `SELECT `+couponColumns+` FROM coupons ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	coupons := make([]domain.Coupon, 0)
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, err
		}
		coupons = append(coupons, *c)
	}
	return coupons, rows.Err()
}

func scanCoupon(row pgx.Row) (*domain.Coupon, error) {
	var (
		c                   domain.Coupon
		expires, consumedAt pgtype.Timestamptz
	)
	if err := row.Scan(&c.Code, &c.Discount, &expires, &consumedAt, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.ExpiresAt = timePtr(expires)
	c.ConsumedAt = timePtr(consumedAt)
	return &c, nil
}

func timePtr(ts pgtype.Timestamptz) *time.Time {
	if !ts.Valid {
		return nil
	}
	t := ts.Time
	return &t
}

var _ CouponRepository = (*PGCouponRepository)(nil)
