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

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"dispatch/internal/app"
	"dispatch/internal/config"
	"dispatch/internal/events"
	"dispatch/internal/handler"
	"dispatch/internal/logger"
	"dispatch/internal/notify"
	internalRedis "dispatch/internal/redis"
	"dispatch/internal/repository/postgres"
	"dispatch/internal/signals"
)

var (
	cfgPath    string
	memoryOnly bool
)

var rootCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Courier matching and dispatch service",
	RunE:  run,
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the HTTP API (default command)",
	RunE:  run,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the PostgreSQL schema and exit",
	RunE:  migrate,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "configuration file (yaml or json)")
	rootCmd.PersistentFlags().BoolVar(&memoryOnly, "memory", false, "keep all state in process, without PostgreSQL or Redis")
	rootCmd.AddCommand(serverCmd, migrateCmd)
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger.SetLevel(cfg.Log.Level)
	return cfg, nil
}

func migrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	db, err := app.NewDatabase(ctx, cfg.Database, nil)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		return err
	}
	logger.New("migrate").Infof("schema ready on %s/%s", cfg.Database.Host, cfg.Database.DBName)
	return nil
}

func run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.New("main")

	// Initialize New Relic FIRST (before database so we can instrument DB).
	var nrApp *newrelic.Application
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			log.Warnf("failed to initialize New Relic: %v", err)
			nrApp = nil
		} else {
			log.Infof("New Relic enabled: app=%s", cfg.NewRelic.AppName)
			defer nrApp.Shutdown(5 * time.Second)
		}
	}

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	stores := app.MemoryStores()
	var ext app.External
	var redisClient *redis.Client
	if !memoryOnly {
		db, err := app.NewDatabase(initCtx, cfg.Database, nrApp)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer db.Close()
		if err := postgres.EnsureSchema(initCtx, db); err != nil {
			return err
		}
		stores = app.PostgresStores(db)
		log.Infof("connected to PostgreSQL")

		redisClient, err = app.NewRedisClient(initCtx, cfg.Redis, nrApp)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer redisClient.Close()
		ext.Index = internalRedis.NewLocationStore(redisClient)
		ext.Locker = internalRedis.NewLockStore(redisClient)
		if cfg.Signals.Shared {
			ext.SignalStore = internalRedis.NewCacheStore(redisClient)
		}
		log.Infof("connected to Redis")
	}

	if cfg.Maps.APIKey != "" {
		traffic, err := signals.NewMapsTraffic(cfg.Maps.APIKey)
		if err != nil {
			return fmt.Errorf("maps client: %w", err)
		}
		ext.Traffic = traffic
	}
	if cfg.Signals.WeatherURL != "" {
		ext.Weather = signals.NewHTTPWeather(cfg.Signals.WeatherURL, &http.Client{Timeout: cfg.Signals.FetchTimeout})
	}

	if cfg.MQTT.Enabled {
		mq, err := notify.NewMQTTNotifier(cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.MQTT.QoS)
		if err != nil {
			return fmt.Errorf("mqtt notifier: %w", err)
		}
		defer mq.Close()
		ext.Notifier = mq
	}

	engine, err := app.NewEngine(initCtx, cfg, stores, ext)
	if err != nil {
		return err
	}
	log.Infof("dispatch engine ready, scoring strategy %s", engine.Strategy)

	g, gctx := errgroup.WithContext(ctx)

	var gatherer prometheus.Gatherer
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		sink, err := events.NewPromSink(reg)
		if err != nil {
			return fmt.Errorf("metrics sink: %w", err)
		}
		sub := engine.Bus.Subscribe()
		g.Go(func() error {
			events.Consume(gctx, sub, sink, logger.New("metrics"))
			return nil
		})
		gatherer = reg
	}

	if cfg.Kafka.Enabled {
		sink, err := events.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return fmt.Errorf("kafka sink: %w", err)
		}
		defer sink.Close()
		sub := engine.Bus.Subscribe()
		g.Go(func() error {
			events.Consume(gctx, sub, sink, logger.New("kafka"))
			return nil
		})
	}

	router := app.NewRouter(app.RouterDeps{
		RequestHandler: handler.NewRequestHandler(engine.Service),
		CourierHandler: handler.NewCourierHandler(engine.Service),
		SessionHandler: handler.NewSessionHandler(engine.Service),
		IssueHandler:   handler.NewIssueHandler(engine.Service),
		RedisClient:    redisClient,
		NewRelicApp:    nrApp,
		Metrics:        gatherer,
		MetricsPath:    cfg.Metrics.Path,
	})
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g.Go(func() error {
		log.Infof("starting server on port %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})

	// Graceful shutdown.
	g.Go(func() error {
		<-gctx.Done()
		log.Infof("shutting down server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		err := server.Shutdown(shutdownCtx)
		engine.Bus.Close()
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Infof("server exited")
	return nil
}
