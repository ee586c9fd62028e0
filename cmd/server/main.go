package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/example/shramik/internal/config"
	"github.com/example/shramik/internal/database"
	"github.com/example/shramik/internal/events"
	"github.com/example/shramik/internal/handlers"
	"github.com/example/shramik/internal/repositories"
	"github.com/example/shramik/internal/routes"
	"github.com/example/shramik/internal/services"
	"github.com/example/shramik/internal/storage"
	"github.com/example/shramik/internal/utils"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "shramik",
		Short: "Shramik labour marketplace API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			utils.InitLogger(config.AppName, cfg.LogLevel)
			if _, err := database.Connect(cfg.DatabaseURL, database.Options{Migrate: true, LogLevel: "warn"}); err != nil {
				return err
			}
			utils.Logger.Info("migrations applied")
			return nil
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		utils.Logger.WithError(err).Error("command failed")
		os.Exit(1)
	}
}

func serve(ctx context.Context) error {
	cfg := config.Load()
	utils.InitLogger(config.AppName, cfg.LogLevel)

	db, err := database.Connect(cfg.DatabaseURL, database.Options{Migrate: true, LogLevel: "warn"})
	if err != nil {
		return err
	}

	outbox := events.NewOutbox(db)
	h, err := buildHandlers(ctx, db, cfg, outbox)
	if err != nil {
		return err
	}

	if cfg.EventsEnabled() {
		writer := events.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer writer.Close()

		relay := events.NewRelay(outbox, writer)
		if err := relay.Start(cfg.OutboxRelaySchedule); err != nil {
			return err
		}
		defer relay.Stop()
		utils.Logger.WithField("topic", cfg.KafkaTopic).Info("outbox relay started")
	} else {
		utils.Logger.Info("KAFKA_BROKERS not set, outbox relay disabled")
	}

	app := fiber.New(fiber.Config{
		AppName:      "Shramik API",
		ErrorHandler: handlers.ErrorHandler,
		BodyLimit:    12 << 20,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,PATCH,DELETE,OPTIONS",
	}))

	routes.Register(app, h, cfg)

	errCh := make(chan error, 1)
	go func() {
		utils.Logger.Infof("starting server on :%s", cfg.AppPort)
		errCh <- app.Listen(":" + cfg.AppPort)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		utils.Logger.Info("shutting down")
		return app.ShutdownWithTimeout(10 * time.Second)
	}
}

func buildHandlers(ctx context.Context, db *gorm.DB, cfg *config.Config, outbox *events.Outbox) (routes.Handlers, error) {
	telegram := services.NewTelegramService(cfg.TelegramBotToken, cfg.TelegramAdminChat)

	store := repositories.NewShiftRepository(db)
	otps := services.NewOtpService(store, outbox)
	shifts := services.NewShiftService(store, outbox, nil)
	ratings := services.NewRatingService(store, outbox, cfg.RatingRejectDuplicates)
	completion := services.NewCompletionService(store)
	payme := services.NewPaymeService(db, telegram)

	var sender handlers.LoginCodeSender
	if cfg.SMSEnabled() {
		sender = services.NewSMSService(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromPhone)
	} else {
		utils.Logger.Warn("twilio not configured, login codes are returned in responses")
	}

	var docs handlers.DocumentUploader
	if cfg.S3Bucket != "" {
		s3Docs, err := storage.NewS3DocumentStore(ctx, cfg.S3Bucket, cfg.S3Endpoint)
		if err != nil {
			return routes.Handlers{}, err
		}
		docs = s3Docs
	}

	return routes.Handlers{
		Auth:       handlers.NewAuthHandler(db, cfg, sender),
		Profile:    handlers.NewProfileHandler(db, docs, telegram, ratings),
		Jobs:       handlers.NewJobHandler(db, completion),
		Shifts:     handlers.NewShiftHandler(otps, shifts, ratings),
		Payme:      handlers.NewPaymeHandler(db, payme, cfg.PaymeMerchantID, cfg.PaymeCheckoutURL),
		SafetyFund: handlers.NewSafetyFundHandler(db),
	}, nil
}
