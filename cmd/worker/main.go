package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/tedxreg/registration/config"
	"github.com/tedxreg/registration/internal/email"
	"github.com/tedxreg/registration/internal/kafka"
	"github.com/tedxreg/registration/internal/logger"
	"github.com/tedxreg/registration/internal/payment"
	"github.com/tedxreg/registration/internal/receipt"
	"github.com/tedxreg/registration/internal/repository"
	"github.com/tedxreg/registration/internal/service/order"
	"github.com/tedxreg/registration/internal/service/pricing"
)

func main() {
	cfg, err := config.LoadConfig(config.Path())
	if err != nil {
		fatal := zerolog.New(os.Stderr).With().Timestamp().Logger()
		fatal.Fatal().Err(err).Msg("load config")
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty).With().Str("component", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	producer := kafka.NewProducer(cfg.Kafka.Brokers, log)
	defer producer.Close()

	orderService := order.NewOrderService(
		repository.NewOrderRepository(pool),
		payment.NewGateway(cfg.Razorpay.KeyID, cfg.Razorpay.KeySecret),
		pricing.NewPricingService(repository.NewCouponRepository(pool), cfg.Pricing.BasePrice),
		cfg.Pricing.Currency,
		order.WithLogger(log),
		order.WithEvents(producer, cfg.Kafka.PaymentsTopic),
		order.WithOrderTTL(cfg.Worker.OrderTTL()),
	)

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.ReceiptsTopic, log)
	defer consumer.Close()

	sender := email.NewSender(cfg.Mail, log)
	mailer := receipt.NewMailer(sender, log)
	if !sender.Enabled() {
		log.Warn().Msg("mail api key not set, receipts are logged only")
	}

	go func() {
		handler := kafka.EventHandler(log, kafka.EventRegistrationCompleted, mailer.Handle)
		if err := consumer.Consume(ctx, handler); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("consumer stopped")
		}
	}()

	expireTicker := time.NewTicker(cfg.Worker.SweepInterval())
	defer expireTicker.Stop()

	log.Info().Str("topic", cfg.Kafka.ReceiptsTopic).Dur("sweep", cfg.Worker.SweepInterval()).Msg("worker started")

	for {
		select {
		case <-expireTicker.C:
			expired, err := orderService.ExpirePendingOrders(ctx)
			if err != nil {
				log.Error().Err(err).Msg("expire orders")
				continue
			}
			if len(expired) > 0 {
				log.Info().Int("count", len(expired)).Msg("expired abandoned orders")
			}
		case <-ctx.Done():
			log.Info().Msg("shutting down")
			return
		}
	}
}
