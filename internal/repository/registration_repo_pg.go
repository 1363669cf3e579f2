package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/tedxreg/registration/internal/domain"
)

type RegistrationRepository interface {
	// Record marks the order paid and stores the attendee in one transaction.
	Record(ctx context.Context, reg *domain.Registration) error
	List(ctx context.Context) ([]domain.Registration, error)
}

type PGRegistrationRepository struct {
	db DB
}

func NewRegistrationRepository(db DB) RegistrationRepository {
	return &PGRegistrationRepository{db: db}
}

func (r *PGRegistrationRepository) Record(ctx context.Context, reg *domain.Registration) (err error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	tag, err := tx.Exec(ctx, `UPDATE orders SET status=$1, updated_at=now() WHERE id=$2 AND status IN ($3, $4)`,
		domain.OrderStatusPaid, reg.OrderID, domain.OrderStatusCreated, domain.OrderStatusExpired)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var status domain.OrderStatus
		if err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1`, reg.OrderID).Scan(&status); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				err = domain.ErrOrderNotFound
			}
			return err
		}
		err = domain.ErrRegistrationExists
		return err
	}

	a := reg.Attendee
	var (
		usn        *string
		idCard     []byte
		idCardType *string
	)
	if a.Student != nil {
		usn = &a.Student.USN
		idCard = a.Student.IDCard.Data
		idCardType = &a.Student.IDCard.ContentType
	}

	err = tx.QueryRow(ctx, `INSERT INTO registrations
		(id, order_id, payment_id, amount, coupon_code, coupon_contested, designation, name, email, phone, photo, photo_type, usn, id_card, id_card_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING created_at`,
		reg.ID, reg.OrderID, reg.PaymentID, reg.Amount, reg.CouponCode, reg.CouponContested, a.Designation, a.Name, a.Email, a.Phone,
		a.Photo.Data, a.Photo.ContentType, usn, idCard, idCardType).Scan(&reg.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			err = domain.ErrRegistrationExists
		}
		return err
	}

	return tx.Commit(ctx)
}

// List omits image bytes.
func (r *PGRegistrationRepository) List(ctx context.Context) ([]domain.Registration, error) {
	rows, err := r.db.Query(ctx, `SELECT id, order_id, payment_id, amount, coupon_code, coupon_contested, designation, name, email, phone, photo_type, usn, created_at
		FROM registrations ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	regs := make([]domain.Registration, 0)
	for rows.Next() {
		var (
			reg domain.Registration
			usn *string
		)
		a := &reg.Attendee
		if err := rows.Scan(&reg.ID, &reg.OrderID, &reg.PaymentID, &reg.Amount, &reg.CouponCode, &reg.CouponContested, &a.Designation,
			&a.Name, &a.Email, &a.Phone, &a.Photo.ContentType, &usn, &reg.CreatedAt); err != nil {
			return nil, err
		}
		if usn != nil {
			a.Student = &domain.StudentCredentials{USN: *usn}
		}
		regs = append(regs, reg)
	}
	return regs, rows.Err()
}

var _ RegistrationRepository = (*PGRegistrationRepository)(nil)
