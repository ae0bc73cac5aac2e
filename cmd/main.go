package main

//	@title			Vizgate API
//	@version		1.0
//	@description	Vizgate authenticates platform requests, checks entity name uniqueness and manages exported files.

//	@BasePath	/v1

//	@securityDefinitions.apikey	AuthCode
//	@in							query
//	@name						auth_code

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Type "Bearer" followed by a space and the token.

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ebogdum/vizgate/auth"
	"github.com/ebogdum/vizgate/backends"
	"github.com/ebogdum/vizgate/backends/noop"
	"github.com/ebogdum/vizgate/backends/s3"
	"github.com/ebogdum/vizgate/check"
	"github.com/ebogdum/vizgate/config"
	vlog "github.com/ebogdum/vizgate/core/log"
	"github.com/ebogdum/vizgate/files"
	"github.com/ebogdum/vizgate/server"
	gatewayMiddleware "github.com/ebogdum/vizgate/server/middleware"
	"github.com/ebogdum/vizgate/store"
	"github.com/ebogdum/vizgate/store/cache"
	"github.com/ebogdum/vizgate/store/postgres"
	"github.com/ebogdum/vizgate/store/redis"
	"github.com/ebogdum/vizgate/store/schema"
	"github.com/ebogdum/vizgate/store/sqlite"
)

var rootCmd = &cobra.Command{
	Use:   "vizgate",
	Short: "Vizgate - request gate and file helper for a data visualization platform",
	Long: `Vizgate authenticates requests coming from integrated platforms, answers
entity name uniqueness checks and stores, streams and archives exported files.`,
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the Vizgate server",
	RunE:  runServer,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long:  "Validate the Vizgate configuration and display the loaded settings",
	RunE:  validateConfig,
}

var configFilePath string

func main() {
	rootCmd.PersistentFlags().StringVarP(&configFilePath, "config", "c", "", "Path to configuration file")

	configCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(serverCmd, configCmd, tokenCmd(), platformCmd(), userCmd())

	// If no command specified, default to server
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "server")
	}

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

// runServer starts the Vizgate server
func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigFromFile(configFilePath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := vlog.NewLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		if err := logger.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to sync logger: %v\n", err)
		}
	}()

	logger.Info("Starting Vizgate server",
		zap.String("listen_addr", cfg.Server.ListenAddr),
		zap.String("store", cfg.Store.Type),
		zap.String("log_mode", vlog.Mode().String()))

	credentials, err := openStore(cfg.Store, logger)
	if err != nil {
		return err
	}
	defer credentials.Close()

	if cfg.Store.PlatformCacheTTL > 0 {
		cached := cache.NewCachedStore(credentials, cfg.Store.PlatformCacheTTL, cfg.Store.PlatformCacheSize)
		stopCache := make(chan struct{})
		defer close(stopCache)
		go cached.Run(stopCache)
		credentials = cached
	}

	sink, err := openSink(cfg.Export, logger)
	if err != nil {
		return err
	}
	defer sink.Close()

	tokens := auth.NewTokenService(cfg.Auth.TokenSecret, cfg.Auth.TokenIssuer, cfg.Auth.TokenTTL)
	strategies := auth.NewDefaultRegistry(credentials, cfg.Auth.SignatureWindow)
	gate := auth.NewGate(credentials, tokens, strategies, logger)
	checker := check.NewStoreChecker(credentials, tokens, logger)

	if err := os.MkdirAll(cfg.Files.BaseDir, 0o755); err != nil {
		return fmt.Errorf("failed to create files base directory: %w", err)
	}
	helper := files.NewHelper(cfg.Files.BaseDir, logger)
	compressor := files.NewCompressor(cfg.Files.CompressThreshold, cfg.Files.CompressMinDecrease, cfg.Files.CompressQuality, logger)

	limiter := gatewayMiddleware.NewClientRateLimiter(cfg.Limiter)
	stopCleanup := make(chan struct{})
	defer close(stopCleanup)
	go limiter.Run(stopCleanup)

	logger.Info("Initializing HTTP router")
	router := server.NewRouter(gate, checker, helper, compressor, sink, limiter, &cfg.Server, logger)

	srv := &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		var err error
		if cfg.Server.CertFile != "" {
			logger.Info("Starting HTTPS server", zap.String("addr", cfg.Server.ListenAddr))
			err = srv.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile)
		} else {
			logger.Info("Starting HTTP server", zap.String("addr", cfg.Server.ListenAddr))
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
		return err
	}

	logger.Info("Server exited gracefully")
	return nil
}

// openStore opens the configured credential store. Postgres schemas are
// migrated first; SQLite creates its own schema.
func openStore(cfg config.StoreConfig, logger *zap.Logger) (store.Store, error) {
	switch cfg.Type {
	case "postgres":
		logger.Info("Running database migrations")
		if err := schema.RunMigrations(cfg.DSN); err != nil {
			return nil, fmt.Errorf("failed to run database migrations: %w", err)
		}
		s, err := postgres.NewPostgresStore(cfg.DSN, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize postgres store: %w", err)
		}
		return s, nil
	case "redis":
		s, err := redis.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisKeyPrefix, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize redis store: %w", err)
		}
		return s, nil
	default:
		s, err := sqlite.NewSQLiteStore(cfg.SQLitePath, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize sqlite store: %w", err)
		}
		return s, nil
	}
}

// openSink returns the S3 mirror when a bucket is configured
func openSink(cfg config.ExportConfig, logger *zap.Logger) (backends.Sink, error) {
	if cfg.S3BucketName == "" {
		logger.Info("Export mirror disabled (no bucket configured)")
		return noop.NewNoopSink(), nil
	}

	logger.Info("Initializing S3 export mirror", zap.String("bucket", cfg.S3BucketName))
	sink, err := s3.NewS3Sink(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize S3 export mirror: %w", err)
	}
	return sink, nil
}

// validateConfig validates the Vizgate configuration and displays settings
func validateConfig(cmd *cobra.Command, args []string) error {
	fmt.Println("Validating configuration...")

	cfg, err := config.LoadConfigFromFile(configFilePath)
	if err != nil {
		fmt.Printf("Configuration validation failed: %v\n", err)
		return err
	}

	fmt.Println("Configuration is valid")
	fmt.Printf("Listen Address: %s\n", cfg.Server.ListenAddr)
	fmt.Printf("Store: %s\n", cfg.Store.Type)
	switch cfg.Store.Type {
	case "postgres":
		fmt.Printf("Store DSN: %s\n", maskDSN(cfg.Store.DSN))
	case "redis":
		fmt.Printf("Redis Address: %s\n", cfg.Store.RedisAddr)
	default:
		fmt.Printf("SQLite Path: %s\n", cfg.Store.SQLitePath)
	}
	fmt.Printf("Files Base Dir: %s\n", cfg.Files.BaseDir)
	if cfg.Export.S3BucketName != "" {
		fmt.Printf("Export Bucket: %s\n", cfg.Export.S3BucketName)
		fmt.Printf("Export Region: %s\n", cfg.Export.S3Region)
	}

	return nil
}

// maskDSN masks the middle of a DSN for display
func maskDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	if len(dsn) > 20 {
		return dsn[:10] + "***" + dsn[len(dsn)-7:]
	}
	return "***"
}
