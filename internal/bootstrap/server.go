package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/rs/zerolog"
	httpSwagger "github.com/swaggo/http-swagger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/tedxreg/registration/api"
	"github.com/tedxreg/registration/api/docs"
	"github.com/tedxreg/registration/config"
	"github.com/tedxreg/registration/internal/auth"
	"github.com/tedxreg/registration/internal/rpc"
	"github.com/tedxreg/registration/internal/service/coupon"
	"github.com/tedxreg/registration/internal/service/order"
	"github.com/tedxreg/registration/internal/service/pricing"
	"github.com/tedxreg/registration/internal/service/registration"
)

// Services are the use cases exposed over HTTP and gRPC.
type Services struct {
	Pricing       pricing.PricingUseCase
	Orders        order.OrderUseCase
	Coupons       coupon.CouponUseCase
	Registrations registration.RegistrationUseCase
}

// Probe is a named readiness check, e.g. a database ping.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

type Servers struct {
	grpcServer *grpc.Server
	health     *health.Server
	healthConn *grpc.ClientConn
	httpServer *http.Server
}

// Run starts the gRPC and HTTP servers and blocks until ctx is canceled or a server fails.
func Run(ctx context.Context, cfg *config.Config, svcs Services, sessions *auth.Sessions, log zerolog.Logger, probes ...Probe) error {
	lis, err := net.Listen("tcp", cfg.GRPC.Address)
	if err != nil {
		return fmt.Errorf("listen gRPC %s: %w", cfg.GRPC.Address, err)
	}

	s, err := newServers(cfg, svcs, sessions, log, lis.Addr().String(), probes)
	if err != nil {
		_ = lis.Close()
		return err
	}
	defer s.healthConn.Close()

	errCh := make(chan error, 2)
	go func() { errCh <- s.grpcServer.Serve(lis) }()

	go func() {
		if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	log.Info().Str("http", cfg.HTTP.Address).Str("grpc", cfg.GRPC.Address).Msg("servers started")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.health.Shutdown()
		s.grpcServer.GracefulStop()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		log.Info().Msg("servers stopped")
		return nil
	}
}

// newServers builds both servers. /healthz on the HTTP side asks the gRPC
// health service at grpcAddr.
func newServers(cfg *config.Config, svcs Services, sessions *auth.Sessions, log zerolog.Logger, grpcAddr string, probes []Probe) (*Servers, error) {
	grpcSrv, healthSrv := NewGRPCServer(cfg, svcs, sessions, log)

	conn, err := grpc.NewClient(grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial gRPC health %s: %w", grpcAddr, err)
	}

	handler, err := NewHTTPHandler(cfg, svcs, sessions, healthpb.NewHealthClient(conn), log, probes...)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	return &Servers{
		grpcServer: grpcSrv,
		health:     healthSrv,
		healthConn: conn,
		httpServer: &http.Server{
			Addr:              cfg.HTTP.Address,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// NewGRPCServer registers the registration service and the standard health
// service. Quote and health checks are callable without a session. Requests
// may carry both uploads at their configured limits.
func NewGRPCServer(cfg *config.Config, svcs Services, sessions *auth.Sessions, log zerolog.Logger) (*grpc.Server, *health.Server) {
	srv := grpc.NewServer(
		grpc.UnaryInterceptor(auth.UnaryServerInterceptor(sessions, rpc.MethodQuote, healthpb.Health_Check_FullMethodName)),
		grpc.MaxRecvMsgSize(rpc.MaxMessageSize(cfg.Registration.MaxPhotoBytes, cfg.Registration.MaxIDCardBytes)),
	)
	rpc.RegisterRegistrationServiceServer(srv, rpc.NewServer(svcs.Pricing, svcs.Orders, svcs.Coupons, svcs.Registrations, log,
		rpc.WithAdminRole(cfg.Auth.AdminRole)))

	healthSrv := health.NewServer()
	healthSrv.SetServingStatus(rpc.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, healthSrv)
	return srv, healthSrv
}

// NewHTTPHandler mounts the JSON API under /api, health probes and the swagger UI.
// /healthz reports the gRPC health service through the gateway mux; /readyz runs probes.
func NewHTTPHandler(cfg *config.Config, svcs Services, sessions *auth.Sessions, healthClient healthpb.HealthClient, log zerolog.Logger, probes ...Probe) (http.Handler, error) {
	engine := gin.New()
	engine.Use(gin.Recovery(), api.RequestLogger(log), cors.New(corsConfig(cfg.HTTP.AllowedOrigins)))

	apiGroup := engine.Group("/api", auth.RequireSession(sessions))
	api.NewPricingHandler(svcs.Pricing, log).Register(apiGroup)
	api.NewOrderHandler(svcs.Orders, log).Register(apiGroup)
	couponHandler := api.NewCouponHandler(svcs.Coupons, cfg.Auth.AdminRole, log)
	couponHandler.Register(apiGroup)
	registrationHandler := api.NewRegistrationHandler(svcs.Registrations, uploadLimit(cfg.Registration), log)
	registrationHandler.Register(apiGroup)

	admin := apiGroup.Group("/admin", auth.RequireRole(cfg.Auth.AdminRole))
	couponHandler.RegisterAdmin(admin)
	registrationHandler.RegisterAdmin(admin)

	health := runtime.NewServeMux(runtime.WithHealthzEndpoint(healthClient))
	if err := health.HandlePath(http.MethodGet, "/readyz", readiness(log, probes)); err != nil {
		return nil, fmt.Errorf("register readyz: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/", engine)
	mux.Handle("/healthz", health)
	mux.Handle("/readyz", health)
	mux.HandleFunc("/swagger/doc.json", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(docs.SwaggerJSON)
	})
	mux.Handle("/swagger/", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
	return mux, nil
}

func readiness(log zerolog.Logger, probes []Probe) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		for _, p := range probes {
			if err := p.Check(ctx); err != nil {
				log.Warn().Err(err).Str("probe", p.Name).Msg("not ready")
				http.Error(w, p.Name+" unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	}
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "Idempotency-Key"},
		ExposeHeaders: []string{"X-Request-ID"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		c.AllowAllOrigins = true
		return c
	}
	c.AllowOrigins = origins
	c.AllowCredentials = true
	return c
}

func uploadLimit(r config.RegistrationConfig) int64 {
	if r.MaxPhotoBytes > r.MaxIDCardBytes {
		return r.MaxPhotoBytes
	}
	return r.MaxIDCardBytes
}
