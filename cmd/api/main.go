package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	_ "github.com/redmonkez12/docstamp-api/docs" // Swagger docs (generated)
	"github.com/redmonkez12/docstamp-api/internal/account"
	"github.com/redmonkez12/docstamp-api/internal/auth"
	"github.com/redmonkez12/docstamp-api/internal/config"
	"github.com/redmonkez12/docstamp-api/internal/database"
	"github.com/redmonkez12/docstamp-api/internal/document"
	"github.com/redmonkez12/docstamp-api/internal/email"
	"github.com/redmonkez12/docstamp-api/internal/guard"
	httpServer "github.com/redmonkez12/docstamp-api/internal/http"
	"github.com/redmonkez12/docstamp-api/internal/logging"
	"github.com/redmonkez12/docstamp-api/internal/otp"
	"github.com/redmonkez12/docstamp-api/internal/ratelimit"
	"github.com/redmonkez12/docstamp-api/internal/stamp"
	"github.com/redmonkez12/docstamp-api/internal/storage"
	"github.com/redmonkez12/docstamp-api/internal/verification"
)

// @title           DocStamp API
// @version         1.0
// @description     Document stamping backend with OTP account verification and public serial number checks.

// @contact.name   API Support
// @contact.email  support@example.com

// @license.name  MIT
// @license.url   https://opensource.org/licenses/MIT

// @host      localhost:8080
// @BasePath  /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the access token.

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "docstamp-api",
		Short:         "Document stamping API server",
		SilenceUsage:  true,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context())
		},
	}

	rootCmd.AddCommand(serveCmd, migrateCmd)

	// Running without a subcommand starts the server
	rootCmd.RunE = serveCmd.RunE

	return rootCmd
}

func runMigrate(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := logging.NewLogger(cfg.Server.IsDevelopment())

	sqlDB, err := database.Open(cfg.Database.ConnectionString())
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer sqlDB.Close()

	if err := database.Migrate(ctx, sqlDB); err != nil {
		return err
	}

	logger.Info("migrations applied")
	return nil
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.NewLogger(cfg.Server.IsDevelopment())
	logger.Info("starting application",
		"env", cfg.Server.Env,
		"port", cfg.Server.Port,
		"token_format", cfg.Auth.TokenFormat,
	)

	sqlDB, err := database.Open(cfg.Database.ConnectionString())
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer sqlDB.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, sqlDB); err != nil {
			return err
		}
		logger.Info("migrations applied")
	}
	db := database.NewBunDB(sqlDB)

	redisClient, err := initRedis(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("failed to initialize Redis: %w", err)
	}
	defer redisClient.Close()

	objects, err := storage.NewS3Store(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize object storage: %w", err)
	}

	tokenService, err := auth.NewTokenService(cfg.Auth)
	if err != nil {
		return fmt.Errorf("failed to initialize token service: %w", err)
	}

	accounts := account.NewRepository(db)
	engine := otp.NewEngine(accounts, otp.WithTTL(cfg.OTP.TTL))
	machine := verification.NewMachine(engine, logger)

	rateLimiter := ratelimit.NewLimiter(redisClient, ratelimit.Limits{
		EmailCooldown:    cfg.OTP.RequestCooldown,
		OTPMaxAttempts:   cfg.OTP.MaxAttempts,
		OTPAttemptWindow: cfg.OTP.TTL,
	})

	authService := auth.NewService(
		accounts,
		machine,
		auth.NewRedisRepository(redisClient),
		tokenService,
		email.NewService(cfg.Email),
		logger,
		cfg.Auth.AccessTokenDuration,
		cfg.Auth.RefreshTokenDuration,
		auth.WithNotificationTimeout(cfg.Email.SendTimeout),
	)

	documentService := document.NewService(
		document.NewRepository(db),
		objects,
		logger,
		cfg.Email.FrontendURL,
		cfg.Server.PublicURL,
	)
	stampService := stamp.NewService(stamp.NewRepository(db), guard.New(accounts), objects, logger)

	handlers := httpServer.Handlers{
		Auth: auth.NewHandler(
			authService,
			rateLimiter,
			!cfg.Server.IsDevelopment(), // isProduction
			cfg.Auth.AccessTokenDuration,
			cfg.Auth.RefreshTokenDuration,
		),
		Documents: document.NewHandler(documentService),
		Stamps:    stamp.NewHandler(stampService),
	}

	router := httpServer.NewRouter(cfg, handlers, auth.NewMiddleware(tokenService), logger)
	server := httpServer.NewServer(
		":"+cfg.Server.Port,
		router,
		cfg.Server.ReadTimeout,
		cfg.Server.WriteTimeout,
		logger,
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("received signal", "signal", sig.String())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// initRedis connects to Redis and verifies the connection
func initRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return client, nil
}
