package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pubnub "github.com/pubnub/go/v7"
	"github.com/redis/go-redis/v9"

	"campus-events/config"
	"campus-events/internal/handlers"
	"campus-events/internal/identity"
	"campus-events/internal/notify"
	"campus-events/internal/services"
	"campus-events/internal/store"
	"campus-events/internal/telemetry"
	_ "campus-events/migrations"
	"campus-events/monitoring"
	"campus-events/security"
	"campus-events/utils"
)

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer shutdownTracing(context.Background())

	// Redis backs the redis store and the rate limiter. Outside the redis
	// store it is optional.
	var redisClient *redis.Client
	if cfg.StoreDriver == config.StoreRedis || cfg.RedisURL != "" {
		redisClient, err = utils.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			if cfg.StoreDriver == config.StoreRedis {
				return err
			}
			slog.Warn("Redis unavailable, rate limiting disabled", "error", err)
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	notifier, closeNotifiers, err := newNotifier(cfg)
	if err != nil {
		return err
	}
	defer closeNotifiers()

	var monitor *monitoring.Monitor
	if cfg.EnableMetrics {
		monitor = monitoring.NewMonitor(prometheus.DefaultRegisterer)
	}

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: cfg.IsDevelopment(),
	})

	// Setup graceful shutdown
	go handleShutdown(cancel)

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		// The pocketbase store needs the bootstrapped app database, so
		// every store is opened here.
		events, err := openStore(ctx, cfg, e.App, redisClient)
		if err != nil {
			return err
		}

		engine := services.NewEngine(services.Deps{
			Store:    events,
			Notifier: notifier,
			Identity: identity.ContextProvider{},
			Monitor:  monitor,
			Logger:   slog.Default(),
			Tracer:   telemetry.Tracer(),
			Settings: services.Settings{
				CancellationLead:    cfg.CancellationLead,
				ClashHorizonDays:    cfg.ClashHorizonDays,
				MaxAlternativeDates: cfg.MaxAlternativeDates,
				MaxSuggestedSlots:   cfg.MaxSuggestedSlots,
				CandidateSlots:      cfg.CandidateSlots,
				Location:            loc,
			},
		})

		var limit func(*core.RequestEvent) error
		if redisClient != nil {
			limit = security.NewRateLimiter(redisClient, cfg.RateLimitMax, cfg.RateLimitWindow).Middleware
		}
		handlers.New(engine, cfg.ReminderLead).Routes(e.Router, limit)

		if monitor != nil {
			e.Router.GET("/metrics", apis.WrapStdHandler(promhttp.Handler()))
			go monitor.Run(ctx, events, cfg.MetricsInterval)
		}

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if redisClient != nil {
				if err := utils.RedisHealthCheck(e.Request.Context(), redisClient); err != nil {
					return e.JSON(503, map[string]string{
						"status": "unhealthy",
						"error":  err.Error(),
					})
				}
			}
			return e.JSON(200, map[string]string{"status": "healthy"})
		})

		slog.Info("Server routes registered", "store", cfg.StoreDriver, "environment", cfg.Environment)

		return e.Next()
	})

	// Start server
	return app.Start()
}

func openStore(ctx context.Context, cfg *config.Config, app core.App, redisClient *redis.Client) (store.Store, error) {
	opts := store.Options{
		LockTimeout: cfg.LockTimeout,
		MaxRetries:  cfg.MaxRetries,
	}

	switch cfg.StoreDriver {
	case config.StoreMemory:
		return store.NewMemoryStore(opts), nil
	case config.StoreRedis:
		return store.NewRedisStore(redisClient, opts), nil
	case config.StoreSQLite, config.StorePostgres:
		db, err := store.OpenSQL(cfg.StoreDriver, cfg.StoreDSN)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureSchema(ctx, db); err != nil {
			return nil, err
		}
		return store.NewSQLStore(db, opts), nil
	default:
		// Tables come from the campus store migration.
		return store.NewSQLStore(app.DB(), opts), nil
	}
}

// newNotifier fans out to the log and every configured channel. The
// returned func closes the broker connections.
func newNotifier(cfg *config.Config) (notify.Notifier, func(), error) {
	fanout := notify.Fanout{notify.LogNotifier{Logger: slog.Default()}}
	var closers []func() error

	if cfg.PubNubPublishKey != "" && cfg.PubNubSubscribeKey != "" {
		pnConfig := pubnub.NewConfigWithUserId(pubnub.UserId(cfg.ServiceName))
		pnConfig.PublishKey = cfg.PubNubPublishKey
		pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
		pnConfig.SecretKey = cfg.PubNubSecretKey

		fanout = append(fanout, notify.NewPubNubNotifier(pubnub.NewPubNub(pnConfig), utils.NewCircuitBreaker("pubnub")))
	}

	if cfg.AMQPURL != "" {
		amqpNotifier, err := notify.NewAMQPNotifier(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return nil, nil, fmt.Errorf("connect amqp: %w", err)
		}
		fanout = append(fanout, amqpNotifier)
		closers = append(closers, amqpNotifier.Close)
	}

	if len(cfg.KafkaBrokers) > 0 {
		kafkaNotifier := notify.NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaTopic)
		fanout = append(fanout, kafkaNotifier)
		closers = append(closers, kafkaNotifier.Close)
	}

	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				slog.Warn("Failed to close notifier", "error", err)
			}
		}
	}
	return fanout, closeAll, nil
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	slog.Info("Shutdown signal received, cleaning up...")
	cancel()
}
