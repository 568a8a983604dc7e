package bootstrap

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	cacheadapter "github.com/viralforge/powerauth-server/internal/adapters/cache"
	cryptoadapter "github.com/viralforge/powerauth-server/internal/adapters/crypto"
	eventadapter "github.com/viralforge/powerauth-server/internal/adapters/events"
	grpcadapter "github.com/viralforge/powerauth-server/internal/adapters/grpc"
	httpadapter "github.com/viralforge/powerauth-server/internal/adapters/http"
	"github.com/viralforge/powerauth-server/internal/adapters/postgres"
	"github.com/viralforge/powerauth-server/internal/application"
	"github.com/viralforge/powerauth-server/internal/domain"
	"github.com/viralforge/powerauth-server/internal/ports"
)

type Runtime struct {
	cfg        Config
	logger     *slog.Logger
	httpServer *http.Server
	grpcServer *grpc.Server
	grpcLis    net.Listener
	callbacks  *eventadapter.CallbackWorker
	service    *application.Service
	cleanupFn  func(context.Context)
}

func NewRuntime(ctx context.Context, configPath string) (*Runtime, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	logger.Info("bootstrapping powerauth server", "http_port", cfg.HTTPPort, "grpc_port", cfg.GRPCPort)

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.MaxDBConns)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	sqlDB, err := pool.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm sql db: %w", err)
	}

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	redisClient, err := cacheadapter.Connect(ctx, cfg.RedisURL)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("init redis client: %w", err)
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	activations := postgres.NewActivationRepository(pool)
	appVersions := postgres.NewApplicationVersionRepository(pool)
	masterKeyPairs := postgres.NewMasterKeyPairRepository(pool)
	history := postgres.NewActivationHistoryRepository(pool)
	signatureAudit := postgres.NewSignatureAuditRepository(pool)
	callbacks := postgres.NewCallbackRepository(pool)

	var serverKeyCipher ports.ServerKeyCipher
	if cfg.ServerKeyEncryption == string(domain.ServerKeyEncryptionAESHMAC) {
		masterKey, decodeErr := base64.StdEncoding.DecodeString(cfg.MasterDBEncryptionKeyBase64)
		if decodeErr != nil {
			_ = sqlDB.Close()
			_ = redisClient.Close()
			return nil, fmt.Errorf("decode MASTER_DB_ENCRYPTION_KEY: %w", decodeErr)
		}
		serverKeyCipher = cryptoadapter.NewServerKeyCipher(masterKey)
	}

	svc := application.NewService(application.Dependencies{
		Config: application.Config{
			ActivationValidity:              cfg.ActivationValidity,
			SignatureMaxFailedAttempts:      cfg.SignatureMaxFailedAttempts,
			SignatureValidationLookahead:    cfg.SignatureValidationLookahead,
			ActivationCodeGenerationRetries: cfg.ActivationCodeGenerationRetries,
			ShortIDGenerationRetries:        cfg.ShortIDGenerationRetries,
			DefaultOTPValidation:            cfg.DefaultOTPValidation,
			DefaultVersion:                  cfg.DefaultVersion,
			ServerKeyEncryption:             cfg.ServerKeyEncryption,
			ExpirationSweepBatchSize:        cfg.ExpirationSweepBatchSize,
		},
		Activations:        activations,
		AppVersions:        appVersions,
		MasterKeyPairs:     masterKeyPairs,
		History:            history,
		SignatureAudit:     signatureAudit,
		Callbacks:          callbacks,
		AppVersionCache:    cacheadapter.NewRedisApplicationVersionCache(redisClient),
		MasterKeyPairCache: cacheadapter.NewRedisMasterKeyPairCache(redisClient),
		CryptoByVersion: map[domain.Version]ports.ActivationCrypto{
			domain.VersionV2: cryptoadapter.NewV2(),
			domain.VersionV3: cryptoadapter.NewV3(),
		},
		SignatureEngine: cryptoadapter.NewEngine(),
		ECDSAVerifier:   cryptoadapter.NewECDSAVerifier(),
		ServerKeyCipher: serverKeyCipher,
		Logger:          logger,
	})

	handler := httpadapter.NewRouter(svc)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	grpcadapter.Register(grpcServer, grpcadapter.NewSignatureInternalServer(svc))

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
	if err != nil {
		_ = sqlDB.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("listen gRPC: %w", err)
	}

	callbackWorker := eventadapter.NewCallbackWorker(
		logger,
		callbacks,
		eventadapter.NewLoggingCallbackPublisher(logger),
		cfg.CallbackPollInterval,
		cfg.CallbackBatchSize,
		cfg.CallbackClaimTTL,
		cfg.CallbackMaxRetries,
	)

	return &Runtime{
		cfg:        cfg,
		logger:     logger,
		httpServer: httpServer,
		grpcServer: grpcServer,
		grpcLis:    lis,
		callbacks:  callbackWorker,
		service:    svc,
		cleanupFn: func(ctx context.Context) {
			_ = redisClient.Close()
			_ = sqlDB.Close()
		},
	}, nil
}

// RunAPI serves the HTTP and gRPC fronts until an interrupt or fatal server error.
func (r *Runtime) RunAPI(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	go func() {
		r.logger.Info("http server started", "addr", r.httpServer.Addr)
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		r.logger.Info("grpc server started", "addr", r.grpcLis.Addr().String())
		if err := r.grpcServer.Serve(r.grpcLis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		r.logger.Info("shutdown signal received")
	case err := <-errCh:
		r.logger.Error("server failure", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = r.httpServer.Shutdown(shutdownCtx)
	r.grpcServer.GracefulStop()
	r.cleanupFn(shutdownCtx)
	return nil
}

// RunCallbackWorker delivers pending activation-status callbacks until the process stops.
func (r *Runtime) RunCallbackWorker(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	r.logger.Info("callback worker started")
	err := r.callbacks.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r.cleanupFn(shutdownCtx)
	return nil
}

// RunExpirationSweeper tombstones CREATED/PENDING_COMMIT activations past their
// timestampActivationExpire until the process stops (spec §4.5 lazy-plus-swept expiration).
func (r *Runtime) RunExpirationSweeper(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	r.logger.Info("expiration sweeper started", "interval", r.cfg.ExpirationSweepInterval, "batch_size", r.cfg.ExpirationSweepBatchSize)
	err := r.service.RunExpirationSweep(ctx, r.cfg.ExpirationSweepInterval, r.cfg.ExpirationSweepBatchSize)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r.cleanupFn(shutdownCtx)
	return nil
}
