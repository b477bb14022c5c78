package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	alarmapp "groundstation-safety/internal/alarms/application"
	alarms "groundstation-safety/internal/alarms/domain"
	"groundstation-safety/internal/alarms/infrastructure/journal"
	alarmhttp "groundstation-safety/internal/alarms/interfaces/http"
	alarmnotify "groundstation-safety/internal/alarms/notify"
	"groundstation-safety/internal/audit"
	"groundstation-safety/internal/auth"
	commandsapp "groundstation-safety/internal/commands/application"
	commands "groundstation-safety/internal/commands/domain"
	commandsmqtt "groundstation-safety/internal/commands/infrastructure/mqtt"
	commandshttp "groundstation-safety/internal/commands/interfaces/http"
	"groundstation-safety/internal/config"
	"groundstation-safety/internal/observability/metrics"
	telemetryapp "groundstation-safety/internal/telemetry/application"
	"groundstation-safety/internal/telemetry/infrastructure/properties"
	telemetryredis "groundstation-safety/internal/telemetry/infrastructure/redis"
	telemetryhttp "groundstation-safety/internal/telemetry/interfaces/http"
	telemetrymqtt "groundstation-safety/internal/telemetry/interfaces/mqtt"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:          "groundstation",
		Short:        "Vehicle ground station safety monitor",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", os.Getenv(config.EnvConfigPath), "YAML config file")
	load := func() (*config.Config, error) {
		return config.Load(configPath)
	}
	root.AddCommand(
		serveCmd(load),
		classifyCmd(load),
		propertiesCmd(load),
		exportCmd(load),
		tokenCmd(load),
	)
	return root
}

type configLoader func() (*config.Config, error)

func serveCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the safety monitor and its HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, log.New(os.Stdout, "", log.LstdFlags))
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret (AUTH_JWT_SECRET) is required")
	}
	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		return err
	}

	catalog, err := loadCatalog(cfg)
	if err != nil {
		return fmt.Errorf("properties: %w", err)
	}
	store := telemetryapp.NewSignalStore(catalog.Defaults())
	health, err := telemetryapp.NewHealthService(store, catalog.Table())
	if err != nil {
		return err
	}
	stopHeartbeat := health.TrackHeartbeat(alarmapp.SignalFrontendHeartbeating)
	defer stopHeartbeat()

	var (
		journalRepo *journal.Repository
		auditRepo   *audit.Repository
		db          *sql.DB
	)
	if cfg.Journal.DSN != "" {
		var driver string
		db, driver, err = journal.Open(cfg.Journal.Driver, cfg.Journal.DSN)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("journal ping: %w", err)
		}
		journalRepo, err = journal.NewRepository(db, driver, logger)
		if err != nil {
			return err
		}
		if err := journalRepo.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("journal schema: %w", err)
		}
		auditRepo = audit.NewRepository(db, driver)
		if err := auditRepo.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("audit schema: %w", err)
		}
	} else {
		logger.Printf("journal: no dsn configured, notifications are not persisted")
	}
	metrics.Init(db, logger)

	// The webhook escalates critical notifications until the engine reports
	// them dismissed; the engine is created after its notifiers.
	open := &engineOpenChecker{}
	broker := alarmhttp.NewSSEBroker()
	notifiers := []alarmapp.Notifier{broker, alarmnotify.NewLogNotifier(logger)}
	var dismissListener alarmapp.DismissListener
	if journalRepo != nil {
		journalAsync, err := alarmnotify.NewAsyncNotifier(journalRepo, 1024, logger)
		if err != nil {
			return err
		}
		defer journalAsync.Close()
		notifiers = append(notifiers, journalAsync)
		dismissListener = journalRepo
	}
	if cfg.Alarms.WebhookURL != "" {
		webhook, err := buildWebhookNotifier(cfg, open, logger)
		if err != nil {
			return err
		}
		defer webhook.Close()
		webhookAsync, err := alarmnotify.NewAsyncNotifier(webhook, 256, logger)
		if err != nil {
			return err
		}
		defer webhookAsync.Close()
		notifiers = append(notifiers, webhookAsync)
	}

	var mqttClient pahomqtt.Client
	var publisher commandsapp.Publisher = unlinkedPublisher{}
	if cfg.MQTT.Broker != "" {
		client, err := telemetrymqtt.Dial(cfg.MQTT.Broker, cfg.MQTT.ClientID)
		if err != nil {
			return err
		}
		mqttClient = client
		publisher, err = commandsmqtt.NewPublisher(client, cfg.MQTT.CommandTopic, byte(cfg.MQTT.QoS))
		if err != nil {
			return err
		}
	} else {
		logger.Printf("mqtt: no broker configured, commands cannot reach the vehicle")
	}
	commandService, err := commandsapp.NewService(publisher,
		commandsapp.WithTimeout(engineCfg.CommandTimeout),
		commandsapp.WithAllowedCommands(cfg.Commands.Allowed...),
		commandsapp.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	registry := alarms.NewSourceRegistry(alarms.WithRemoval(cfg.Alarms.AllowSourceRemoval))
	engine, err := alarmapp.NewEngine(store, catalog.Table(), alarmnotify.NewMultiNotifier(notifiers...), commandService, catalog,
		alarmapp.WithConfig(engineCfg),
		alarmapp.WithRegistry(registry),
		alarmapp.WithLogger(logger),
		alarmapp.WithDismissListener(dismissListener),
	)
	if err != nil {
		return err
	}
	open.engine = engine
	if err := engine.Start(ctx); err != nil {
		return err
	}
	defer engine.Stop()

	if cfg.Redis.Addr != "" {
		client := telemetryredis.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		defer client.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := client.Ping(pingCtx).Err(); err != nil {
			logger.Printf("redis: ping %s: %v", cfg.Redis.Addr, err)
		}
		cancel()
		mirror, err := telemetryredis.NewSnapshotMirror(client,
			telemetryredis.WithKeyPrefix(cfg.Redis.KeyPrefix),
			telemetryredis.WithTTL(cfg.Redis.TTL),
			telemetryredis.WithLogger(logger),
		)
		if err != nil {
			return err
		}
		defer mirror.Close()
		unsubscribe := store.SubscribeAll(mirror.Observe)
		defer unsubscribe()
	}

	if mqttClient != nil {
		subscriber, err := telemetrymqtt.NewSubscriber(store, cfg.MQTT.TelemetryTopic, byte(cfg.MQTT.QoS), logger)
		if err != nil {
			return err
		}
		if err := subscriber.Start(mqttClient); err != nil {
			return err
		}
		defer subscriber.Stop(mqttClient)
	}

	if cfg.Alarms.StaleSweepInterval > 0 {
		go func() {
			ticker := time.NewTicker(cfg.Alarms.StaleSweepInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					engine.SweepStale(ctx)
				}
			}
		}()
	}

	mux, err := buildMux(muxDeps{
		store:     store,
		health:    health,
		engine:    engine,
		broker:    broker,
		journal:   journalRepo,
		audit:     auditRepo,
		commands:  commandService,
		logger:    logger,
		ingestKey: []byte(cfg.Auth.IngestSecret),
		ingestAge: cfg.Auth.IngestMaxSkew,
	})
	if err != nil {
		return err
	}
	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, []string{"/ingest/"})
	authMiddleware := auth.NewMiddleware([]byte(cfg.Auth.JWTSecret), policy)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           loggingMiddleware(authMiddleware.Wrap(mux), logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Printf("http listening on %s", cfg.HTTPAddr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	logger.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

type muxDeps struct {
	store     *telemetryapp.SignalStore
	health    *telemetryapp.HealthService
	engine    *alarmapp.Engine
	broker    *alarmhttp.SSEBroker
	journal   *journal.Repository
	audit     *audit.Repository
	commands  *commandsapp.Service
	logger    *log.Logger
	ingestKey []byte
	ingestAge time.Duration
}

func buildMux(deps muxDeps) (*http.ServeMux, error) {
	ingestHandler, err := telemetryhttp.NewIngestHandler(deps.store, deps.logger)
	if err != nil {
		return nil, fmt.Errorf("ingest handler: %w", err)
	}
	statusHandler, err := telemetryhttp.NewStatusHandler(deps.health)
	if err != nil {
		return nil, fmt.Errorf("status handler: %w", err)
	}
	alarmOpts := []alarmhttp.HandlerOption{
		alarmhttp.WithHeartbeat(deps.health),
		alarmhttp.WithLogger(deps.logger),
	}
	if deps.journal != nil {
		alarmOpts = append(alarmOpts, alarmhttp.WithJournal(deps.journal))
	}
	var auditLogger audit.Logger
	if deps.audit != nil {
		auditLogger = deps.audit
		alarmOpts = append(alarmOpts, alarmhttp.WithAudit(deps.audit))
	}
	alarmHandler, err := alarmhttp.NewHandler(deps.engine, alarmOpts...)
	if err != nil {
		return nil, fmt.Errorf("alarm handler: %w", err)
	}
	commandHandler, err := commandshttp.NewHandler(deps.commands, auditLogger, deps.logger)
	if err != nil {
		return nil, fmt.Errorf("command handler: %w", err)
	}
	ingestAuth := auth.NewIngestAuthMiddleware(deps.ingestKey, deps.ingestAge)

	mux := http.NewServeMux()
	mux.Handle("/ingest/telemetry", ingestAuth.Wrap(ingestHandler))
	mux.Handle("/api/v1/signals/", statusHandler)
	mux.Handle("/api/v1/emergencies", alarmHandler)
	mux.Handle("/api/v1/notifications", alarmHandler)
	mux.Handle("/api/v1/notifications/stream", alarmhttp.NewStreamHandler(deps.broker))
	mux.Handle("/api/v1/notifications/", alarmHandler)
	mux.Handle("/api/v1/journal/", alarmHandler)
	mux.Handle("/api/v1/commands", commandHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux, nil
}

func loadCatalog(cfg *config.Config) (*properties.Catalog, error) {
	if cfg.PropertiesFile == "" {
		return properties.Default(), nil
	}
	return properties.Load(cfg.PropertiesFile)
}

func buildWebhookNotifier(cfg *config.Config, open alarmnotify.OpenChecker, logger *log.Logger) (*alarmnotify.Notifier, error) {
	channel, err := alarmnotify.NewWebhookChannel(cfg.Alarms.WebhookURL)
	if err != nil {
		return nil, fmt.Errorf("alarm webhook: %w", err)
	}
	tpl, err := alarmnotify.NewTemplate(cfg.Alarms.NotifyTemplate)
	if err != nil {
		return nil, fmt.Errorf("alarm template: %w", err)
	}
	return alarmnotify.NewNotifier(channel, tpl,
		alarmnotify.WithEscalation(cfg.Alarms.EscalationAfter, open),
		alarmnotify.WithCooldown(cfg.Alarms.NotifyCooldown),
		alarmnotify.WithDedupeWindow(cfg.Alarms.NotifyDedupeWindow),
		alarmnotify.WithRequestTimeout(cfg.Alarms.NotifyTimeout),
		alarmnotify.WithMinSeverity(alarms.Severity(cfg.Alarms.NotifyMinSeverity)),
		alarmnotify.WithDashboardURL(cfg.Alarms.DashboardURL),
		alarmnotify.WithLogger(logger),
	)
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush keeps the notification stream working through the logging wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// ---- Adapters ----

type engineOpenChecker struct {
	engine *alarmapp.Engine
}

func (c *engineOpenChecker) IsOpen(id string) bool {
	return c.engine.IsOpen(id)
}

type unlinkedPublisher struct{}

func (unlinkedPublisher) Publish(context.Context, commands.Command) error {
	return errors.New("no vehicle link configured")
}
