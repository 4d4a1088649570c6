package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"medibook-server/internal/config"
	"medibook-server/internal/directory"
	"medibook-server/internal/events"
	"medibook-server/internal/handlers"
	"medibook-server/internal/logging"
	"medibook-server/internal/middleware"
	"medibook-server/internal/models"
	"medibook-server/internal/records"
	"medibook-server/internal/routes"
	"medibook-server/internal/scheduling"
	"medibook-server/internal/store"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "medibook",
		Short: "Medical appointment booking API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			return runServer(cfg, logger)
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			if err := models.Migrate(db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			logger.Info().Str("driver", cfg.Database.Driver).Msg("migrations applied")
			return nil
		},
	}
}

func bootstrap() (*config.Config, zerolog.Logger, error) {
	// A missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("load config: %w", err)
	}
	return cfg, logging.New(cfg.Environment, cfg.LogLevel), nil
}

func openDB(cfg *config.Config) (*gorm.DB, error) {
	db, err := models.InitDB(models.DatabaseConfig{
		Driver: cfg.Database.Driver,
		DSN:    cfg.Database.DSN,
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return db, nil
}

func runServer(cfg *config.Config, logger zerolog.Logger) error {
	db, err := openDB(cfg)
	if err != nil {
		return err
	}

	var publisher interface {
		scheduling.Publisher
		Close() error
	} = events.Nop{}
	if cfg.RabbitMQ.Enabled {
		amqpPublisher, err := events.NewAMQPPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, logger)
		if err != nil {
			return err
		}
		publisher = amqpPublisher
	} else {
		logger.Info().Msg("rabbitmq disabled, lifecycle events are not published")
	}
	defer publisher.Close()

	users := directory.NewStore(db)
	cachedUsers := directory.NewCached(users, cfg.Directory.CacheSize, cfg.Directory.CacheTTL, logger)
	recordWriter := records.NewWriter(db)

	engine := scheduling.NewEngine(store.NewAppointmentStore(db), cachedUsers, scheduling.Rules{
		ConflictWindow:      cfg.Scheduling.ConflictWindow,
		PatientCancelNotice: cfg.Scheduling.PatientCancelNotice,
		DoctorCancelNotice:  cfg.Scheduling.DoctorCancelNotice,
		StoreTimeout:        cfg.Scheduling.StoreTimeout,
	}, logger)
	engine.Publisher = publisher
	engine.Recorder = recordWriter

	authHandler := handlers.NewAuthHandler(db, cfg, logger)
	authHandler.OnProfileChange = cachedUsers.Invalidate

	if !cfg.IsDev() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RequestID(), middleware.RequestLogger(logger), middleware.Recovery(logger))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{cfg.Origin}
	corsConfig.AllowCredentials = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.RequestIDHeader}
	corsConfig.ExposeHeaders = []string{middleware.RequestIDHeader}
	router.Use(cors.New(corsConfig))

	routes.SetupRoutes(router, routes.Handlers{
		Auth:          authHandler,
		Users:         handlers.NewUserHandler(users, logger),
		Appointments:  handlers.NewAppointmentHandler(engine, logger),
		MedicalRecord: handlers.NewMedicalRecordHandler(recordWriter, cachedUsers, logger),
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}
