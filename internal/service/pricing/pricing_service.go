package pricing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tedxreg/registration/internal/domain"
)

type PricingUseCase interface {
	Quote(ctx context.Context, couponCode string) (domain.PriceQuote, error)
	BasePrice() int64
}

type CouponReader interface {
	GetByCode(ctx context.Context, code string) (*domain.Coupon, error)
}

type PricingService struct {
	coupons   CouponReader
	basePrice int64
	now       func() time.Time
	log       zerolog.Logger
}

type PricingServiceOption func(*PricingService)

func WithLogger(log zerolog.Logger) PricingServiceOption {
	return func(s *PricingService) {
		s.log = log
	}
}

func WithClock(now func() time.Time) PricingServiceOption {
	return func(s *PricingService) {
		s.now = now
	}
}

func NewPricingService(coupons CouponReader, basePrice int64, opts ...PricingServiceOption) *PricingService {
	service := &PricingService{
		coupons:   coupons,
		basePrice: basePrice,
		now:       time.Now,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

func (s *PricingService) BasePrice() int64 {
	return s.basePrice
}

// Quote prices the registration. It never consumes the coupon.
func (s *PricingService) Quote(ctx context.Context, couponCode string) (domain.PriceQuote, error) {
	code := strings.TrimSpace(couponCode)
	if code == "" {
		return domain.NewQuote(s.basePrice, 0, ""), nil
	}

	coupon, err := s.coupons.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, domain.ErrCouponNotFound) {
			s.log.Debug().Str("coupon", code).Msg("unknown coupon")
			return domain.PriceQuote{}, domain.InvalidCouponError{Code: code, Reason: domain.CouponUnknown}
		}
		return domain.PriceQuote{}, fmt.Errorf("lookup coupon: %w", err)
	}
	if err := coupon.Check(s.now()); err != nil {
		s.log.Debug().Str("coupon", code).Err(err).Msg("coupon rejected")
		return domain.PriceQuote{}, err
	}

	return domain.NewQuote(s.basePrice, coupon.Discount, code), nil
}

var _ PricingUseCase = (*PricingService)(nil)
