// Server runs the notification HTTP API and the live connection gateway.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"notifyhub/backend/internal/audit"
	auditrepo "notifyhub/backend/internal/audit/repository"
	"notifyhub/backend/internal/config"
	"notifyhub/backend/internal/db"
	"notifyhub/backend/internal/db/migrate"
	"notifyhub/backend/internal/delivery/consumer"
	deliveryhandler "notifyhub/backend/internal/delivery/handler"
	deliveryservice "notifyhub/backend/internal/delivery/service"
	healthhandler "notifyhub/backend/internal/health/handler"
	identityhandler "notifyhub/backend/internal/identity/handler"
	identityservice "notifyhub/backend/internal/identity/service"
	"notifyhub/backend/internal/logger"
	notificationhandler "notifyhub/backend/internal/notification/handler"
	notificationrepo "notifyhub/backend/internal/notification/repository"
	notificationservice "notifyhub/backend/internal/notification/service"
	"notifyhub/backend/internal/policy/engine"
	pushhandler "notifyhub/backend/internal/push/handler"
	pushrepo "notifyhub/backend/internal/push/repository"
	"notifyhub/backend/internal/push/sender"
	pushservice "notifyhub/backend/internal/push/service"
	"notifyhub/backend/internal/realtime"
	"notifyhub/backend/internal/security"
	"notifyhub/backend/internal/server"
	sessionrepo "notifyhub/backend/internal/session/repository"
	sessionservice "notifyhub/backend/internal/session/service"
	"notifyhub/backend/internal/telemetry"
	telemetryotel "notifyhub/backend/internal/telemetry/otel"
	"notifyhub/backend/internal/telemetry/producer"
)

const (
	serviceName     = "notifyhub"
	startupTimeout  = 15 * time.Second
	shutdownTimeout = 15 * time.Second
)

func main() {
	generateKeys := flag.Bool("generate-vapid-keys", false, "Print a new VAPID key pair and exit")
	flag.Parse()

	if *generateKeys {
		pub, priv, err := sender.GenerateKeys()
		if err != nil {
			fmt.Fprintf(os.Stderr, "generate keys: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("VAPID_PUBLIC_KEY=%s\nVAPID_PRIVATE_KEY=%s\n", pub, priv)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	startCtx, cancelStart := context.WithTimeout(context.Background(), startupTimeout)
	defer cancelStart()

	providers, err := telemetryotel.NewProviders(startCtx, cfg.OTLPEndpoint, serviceName, cfg.OTLPInsecure)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	providers.SetGlobal()

	if cfg.MigrateOnStart {
		if err := migrate.Run(cfg.DatabaseURL, "up"); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		log.Info("migrations applied")
	}
	sqlDB, err := db.Open(startCtx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer sqlDB.Close()

	policy := engine.DefaultPolicy
	if cfg.NotifyPolicyFile != "" {
		if policy, err = engine.LoadPolicy(cfg.NotifyPolicyFile); err != nil {
			return fmt.Errorf("policy: %w", err)
		}
	}
	evaluator, err := engine.NewEvaluator(startCtx, policy, log)
	if err != nil {
		return fmt.Errorf("policy: %w", err)
	}

	tokens := security.NewTokenProvider(cfg.JWTSecret, cfg.JWTIssuer, cfg.AccessTTL())
	auditLog := audit.NewLogger(auditrepo.NewPostgresRepository(sqlDB), log)
	sessions := sessionservice.NewStore(sessionrepo.NewPostgresRepository(sqlDB), cfg.RefreshTTL())
	auth := identityservice.NewAuthService(sessions, tokens, auditLog, log)

	ledger := notificationservice.NewLedger(notificationrepo.NewPostgresRepository(sqlDB))
	connections := realtime.NewRegistry(log)

	subscriptions := pushservice.NewRegistry(pushrepo.NewPostgresRepository(sqlDB))
	var pushSender sender.Sender
	if cfg.PushEnabled() {
		wp, err := sender.NewWebPush(sender.Config{
			PublicKey:  cfg.VAPIDPublicKey,
			PrivateKey: cfg.VAPIDPrivateKey,
			Subject:    cfg.VAPIDSubject,
			TTL:        time.Duration(cfg.PushTTLSeconds) * time.Second,
		})
		if err != nil {
			return fmt.Errorf("webpush: %w", err)
		}
		pushSender = wp
	} else {
		log.Warn("VAPID keys not configured; push delivery disabled")
	}
	dispatcher := pushservice.NewDispatcher(subscriptions, pushSender, cfg.PushConcurrency, log)

	emitters := []telemetry.EventEmitter{telemetryotel.NewEventEmitter(providers.LoggerProvider)}
	var deliveryProducer producer.Producer
	if kp := producer.NewKafkaProducer(cfg.KafkaBrokersList(), cfg.DeliveryKafkaTopic); kp != nil {
		deliveryProducer = kp
		emitters = append(emitters, deliveryProducer)
	}

	orchestrator := deliveryservice.NewOrchestrator(ledger, connections, dispatcher, log,
		deliveryservice.WithAdmission(evaluator),
		deliveryservice.WithEmitter(telemetry.Multi(emitters...)),
		deliveryservice.WithPushTimeout(cfg.PushDeadline()),
	)

	gateway := realtime.NewHandler(connections, tokens, ledger, log)
	router := server.NewRouter(server.Deps{
		Tokens: tokens,
		Auth: identityhandler.New(auth, identityhandler.CookieConfig{
			Name:   cfg.RefreshCookieName,
			Secure: cfg.CookieSecure,
			TTL:    sessions.TTL(),
		}, log),
		Notify:          deliveryhandler.New(orchestrator, log),
		Notifications:   notificationhandler.New(ledger, log),
		Push:            pushhandler.New(subscriptions, dispatcher, cfg.VAPIDPublicKey, log),
		LiveConnections: gateway.ServeWS,
		Health: healthhandler.New(map[string]healthhandler.CheckFunc{
			"database": sqlDB.PingContext,
			"policy":   evaluator.HealthCheck,
		}, log),
	}, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	notifyConsumer := consumer.NewKafkaConsumer(cfg.KafkaBrokersList(), cfg.NotifyKafkaTopic, cfg.KafkaGroupID, orchestrator, log)
	consumerDone := make(chan struct{})
	if notifyConsumer != nil {
		go func() {
			defer close(consumerDone)
			if err := notifyConsumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("notify consumer stopped", zap.Error(err))
			}
		}()
		log.Info("consuming notify requests", zap.String("topic", cfg.NotifyKafkaTopic))
	} else {
		close(consumerDone)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", cfg.HTTPAddr), zap.Bool("push_enabled", dispatcher.Enabled()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	// Hijacked WebSocket connections are not tracked by http.Server.
	log.Info("closing live connections", zap.Int("count", connections.Len()))
	connections.CloseAll(1001, "server shutting down")

	<-consumerDone
	if err := notifyConsumer.Close(); err != nil {
		log.Warn("notify consumer close", zap.Error(err))
	}
	if err := orchestrator.Drain(shutdownCtx); err != nil {
		log.Warn("delivery drain incomplete", zap.Error(err))
	}
	time.Sleep(telemetry.ShutdownDrainDuration)

	if deliveryProducer != nil {
		if err := deliveryProducer.Close(); err != nil {
			log.Warn("kafka producer close", zap.Error(err))
		}
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Warn("otel shutdown", zap.Error(err))
	}
	log.Info("server stopped")
	return nil
}
