package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/tedxreg/registration/config"
	"github.com/tedxreg/registration/internal/auth"
	"github.com/tedxreg/registration/internal/bootstrap"
	"github.com/tedxreg/registration/internal/cache"
	"github.com/tedxreg/registration/internal/kafka"
	"github.com/tedxreg/registration/internal/logger"
	"github.com/tedxreg/registration/internal/payment"
	"github.com/tedxreg/registration/internal/repository"
	"github.com/tedxreg/registration/internal/service/coupon"
	"github.com/tedxreg/registration/internal/service/order"
	"github.com/tedxreg/registration/internal/service/pricing"
	"github.com/tedxreg/registration/internal/service/registration"
	"github.com/tedxreg/registration/internal/validation"
)

func main() {
	cfg, err := config.LoadConfig(config.Path())
	if err != nil {
		fatal := zerolog.New(os.Stderr).With().Timestamp().Logger()
		fatal.Fatal().Err(err).Msg("load config")
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty).With().Str("component", "app").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	redisClient := cache.NewRedisClient(cfg.Redis)
	defer redisClient.Close()
	idempotency := cache.NewIdempotencyStore(redisClient, cfg.Registration.IdempotencyTTL())

	producer := kafka.NewProducer(cfg.Kafka.Brokers, log)
	defer producer.Close()

	couponRepo := repository.NewCouponRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)
	registrationRepo := repository.NewRegistrationRepository(pool)

	gateway := payment.NewGateway(cfg.Razorpay.KeyID, cfg.Razorpay.KeySecret)
	validator := validation.New(validation.Limits{
		MaxPhotoBytes:  cfg.Registration.MaxPhotoBytes,
		MaxIDCardBytes: cfg.Registration.MaxIDCardBytes,
	})

	pricingService := pricing.NewPricingService(couponRepo, cfg.Pricing.BasePrice, pricing.WithLogger(log))
	orderService := order.NewOrderService(
		orderRepo,
		gateway,
		pricingService,
		cfg.Pricing.Currency,
		order.WithLogger(log),
		order.WithIdempotency(idempotency),
		order.WithEvents(producer, cfg.Kafka.PaymentsTopic),
		order.WithOrderTTL(cfg.Worker.OrderTTL()),
	)
	couponService := coupon.NewCouponService(
		couponRepo,
		coupon.WithLogger(log),
		coupon.WithEvents(producer, cfg.Kafka.PaymentsTopic),
		coupon.WithPaymentCheck(orderRepo, orderService),
	)
	registrationService := registration.NewRegistrationService(
		registrationRepo,
		orderRepo,
		orderService,
		validator,
		registration.WithLogger(log),
		registration.WithEvents(producer, cfg.Kafka.ReceiptsTopic),
		registration.WithCoupons(couponRepo),
	)

	svcs := bootstrap.Services{
		Pricing:       pricingService,
		Orders:        orderService,
		Coupons:       couponService,
		Registrations: registrationService,
	}
	probes := []bootstrap.Probe{
		{Name: "postgres", Check: pool.Ping},
		{Name: "redis", Check: idempotency.Ping},
		{Name: "kafka", Check: producer.CheckConnection},
	}

	if err := bootstrap.Run(ctx, cfg, svcs, auth.NewSessions(cfg.Auth.SessionSecret), log, probes...); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}
