package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"museum-ticketing-platform/internal/config"
	"museum-ticketing-platform/internal/database"
	"museum-ticketing-platform/internal/handlers"
	"museum-ticketing-platform/internal/middleware"
	"museum-ticketing-platform/internal/queue"
	"museum-ticketing-platform/internal/repositories"
	"museum-ticketing-platform/internal/server"
	"museum-ticketing-platform/internal/services"

	"github.com/go-co-op/gocron/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const holdSweepInterval = time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	logger := newLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Configuration is not usable")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewConnection(ctx, cfg.Database.ConnectionString(), database.DefaultPoolConfig())
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()
	logger.Info("Database connection established")

	if err := database.NewMigrator(db.DB, logger).RunMigrations(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to run migrations")
	}

	// Repositories
	auditRepo := repositories.NewAuditLogRepository(db.DB)
	bookingRepo := repositories.NewBookingRepository(db.DB)
	cartRepo := repositories.NewCartRepository(db.DB)
	orderRepo := repositories.NewPaymentOrderRepository(db.DB)
	pricingRepo := repositories.NewPricingRepository(db.DB)
	settingsRepo := repositories.NewSettingsRepository(db.DB)
	ticketRepo := repositories.NewTicketRepository(db.DB)
	slotRepo := repositories.NewTimeSlotRepository(db.DB)
	webhookRepo := repositories.NewWebhookEventRepository(db.DB)

	// Shared services
	metrics := services.NewMetrics()
	audit := services.NewAuditService(auditRepo, logger)
	settings := services.NewSettingsService(settingsRepo, audit, logger)
	gateway := services.NewPaymentGateway(cfg.Razorpay, logger)
	if cfg.Razorpay.Sandbox() {
		logger.Warn("Razorpay credentials missing, using the sandbox gateway")
	}

	storage := services.NewStorageFactory(cfg, logger).CreateStorageService(ctx)
	assets := services.NewTicketAssets(storage, logger)
	sender := services.NewNotificationSender(services.NewMailer(cfg.Resend, cfg.Email, logger), assets, metrics, logger)

	dispatcher, shutdownDispatcher := startDispatcher(ctx, cfg, sender, metrics, logger)

	// Booking flow
	completion := services.NewPaymentCompletion(orderRepo, bookingRepo, ticketRepo, slotRepo, cartRepo, settings, dispatcher, audit, metrics, logger)
	cart := services.NewCartService(cartRepo, slotRepo, pricingRepo, settings, metrics, logger)
	checkout := services.NewCheckoutService(cartRepo, orderRepo, gateway, completion, metrics, logger)
	payments := services.NewPaymentService(orderRepo, gateway, completion, audit, metrics, logger)
	webhooks := services.NewWebhookService(webhookRepo, orderRepo, bookingRepo, gateway, completion, audit, metrics, logger)
	bookings := services.NewBookingService(bookingRepo, logger)
	admin := services.NewAdminService(orderRepo, webhooks, audit, logger)

	// Background jobs
	scheduler, err := startHoldSweeper(cart, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to schedule hold sweeper")
	}

	var reporter *services.MetricsReporter
	if cfg.Metrics.Enabled {
		reporter, err = services.NewMetricsReporter(metrics, cfg.Metrics.Interval, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create metrics reporter")
		}
		reporter.Start()
	}

	rdb := newRedisClient(ctx, cfg.Redis, logger)

	guests := middleware.NewGuestCartStore(cfg.Session, !cfg.IsDevelopment())

	router := server.NewRouter(server.Deps{
		Auth:    middleware.NewAuthenticator(cfg.Auth, logger),
		Limiter: middleware.NewRateLimiter(cfg.RateLimit, rdb, logger),
		CORS:    cfg.CORS,
		Logger:  logger,

		Health:        handlers.NewHealthHandler(db, logger),
		Cart:          handlers.NewCartHandler(cart, guests, logger),
		Checkout:      handlers.NewCheckoutHandler(checkout, logger),
		Payment:       handlers.NewPaymentHandler(payments, logger),
		Webhook:       handlers.NewWebhookHandler(webhooks, logger),
		Bookings:      handlers.NewBookingHandler(bookings, logger),
		Admin:         handlers.NewAdminHandler(admin, logger),
		AdminSettings: handlers.NewAdminSettingsHandler(settings, logger),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.WithFields(logrus.Fields{
			"port":      cfg.Server.Port,
			"env":       cfg.Server.Env,
			"transport": cfg.Notification.Transport,
		}).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed")
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("HTTP server shutdown failed")
	}
	if err := scheduler.Shutdown(); err != nil {
		logger.WithError(err).Warn("Hold sweeper shutdown failed")
	}
	if reporter != nil {
		if err := reporter.Stop(); err != nil {
			logger.WithError(err).Warn("Metrics reporter shutdown failed")
		}
		reporter.Report()
	}
	shutdownDispatcher(shutdownCtx)
	if rdb != nil {
		_ = rdb.Close()
	}

	logger.Info("Server stopped")
}

func newLogger(cfg config.LogConfig) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		logger.WithField("level", cfg.Level).Warn("Unknown log level, using info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}

// startDispatcher picks the notification transport. The returned func drains
// or closes it on shutdown.
func startDispatcher(ctx context.Context, cfg *config.Config, sender *services.NotificationSender, metrics *services.Metrics, logger *logrus.Logger) (services.Dispatcher, func(context.Context)) {
	if cfg.Notification.Transport == "amqp" {
		publisher := queue.NewPublisher(cfg.AMQP, cfg.Notification.BufferSize, metrics, logger)
		publisher.Start()
		consumer := queue.NewConsumer(cfg.AMQP, sender, logger)

		consumerCtx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := consumer.Run(consumerCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.WithError(err).Error("Notification consumer stopped")
			}
		}()

		return publisher, func(shutdownCtx context.Context) {
			if err := publisher.Stop(shutdownCtx); err != nil {
				logger.WithError(err).Warn("Notification publisher not fully drained")
			}
			cancel()
			select {
			case <-done:
			case <-shutdownCtx.Done():
				logger.Warn("Notification consumer did not stop in time")
			}
		}
	}

	dispatcher := services.NewChannelDispatcher(sender, cfg.Notification.Workers, cfg.Notification.BufferSize, metrics, logger)
	dispatcher.Start()
	return dispatcher, func(shutdownCtx context.Context) {
		if err := dispatcher.Stop(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Notification queue not fully drained")
		}
	}
}

// startHoldSweeper releases expired holds for every user on a fixed interval
func startHoldSweeper(cart *services.CartService, logger *logrus.Logger) (gocron.Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	_, err = s.NewJob(
		gocron.DurationJob(holdSweepInterval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			n, err := cart.SweepAllExpired(ctx)
			if err != nil {
				logger.WithError(err).Error("Hold sweep failed")
				return
			}
			if n > 0 {
				logger.WithField("released", n).Info("Released expired cart holds")
			}
		}),
		gocron.WithName("cart-hold-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, err
	}

	s.Start()
	return s, nil
}

// newRedisClient returns nil when Redis is not configured or unreachable;
// the rate limiter then keeps its buckets in process.
func newRedisClient(ctx context.Context, cfg config.RedisConfig, logger *logrus.Logger) *redis.Client {
	if cfg.Addr == "" {
		return nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.WithError(err).Warn("Redis unreachable, rate limiting in process")
		_ = rdb.Close()
		return nil
	}

	logger.WithField("addr", cfg.Addr).Info("Redis connected")
	return rdb
}
