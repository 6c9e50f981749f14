// cmd/marketplace-server/main.go
package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"vanu-marketplace/internal/admin"
	"vanu-marketplace/internal/catalog"
	"vanu-marketplace/internal/common/auth"
	awsclient "vanu-marketplace/internal/common/aws"
	"vanu-marketplace/internal/common/camunda"
	"vanu-marketplace/internal/common/config"
	"vanu-marketplace/internal/common/database"
	"vanu-marketplace/internal/common/logger"
	"vanu-marketplace/internal/common/observability"
	"vanu-marketplace/internal/distributor"
	"vanu-marketplace/internal/identity"
	"vanu-marketplace/internal/notify"
	"vanu-marketplace/internal/store/blobs"
	"vanu-marketplace/internal/store/documents"
	"vanu-marketplace/internal/store/feed"
	"vanu-marketplace/internal/store/search"
	"vanu-marketplace/internal/store/staging"
	"vanu-marketplace/internal/submission"
	httptransport "vanu-marketplace/internal/transport/http"

	as "vanu-marketplace/internal/workers/onboarding/activate-stockist"
	san "vanu-marketplace/internal/workers/onboarding/send-application-notification"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting marketplace server...", zap.String("version", cfg.App.Version))

	obs, err := observability.New(cfg.App.Name, observability.TracingOptions{
		Enabled:        cfg.Tracing.Enabled,
		JaegerEndpoint: cfg.Tracing.JaegerEndpoint,
		SampleRatio:    cfg.Tracing.SampleRatio,
	})
	if err != nil {
		zapLog.Fatal("observability init failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- PostgreSQL ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Redis ---
	var rdb *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected successfully")

	// --- Elasticsearch ---
	var esClient *database.ElasticsearchClient
	err = retryWithBackoff(func() error {
		var err error
		esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		return esClient.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
	if err != nil {
		zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
	}
	if err := search.EnsureIndices(ctx, esClient); err != nil {
		zapLog.Fatal("elasticsearch index setup failed", zap.Error(err))
	}
	zapLog.Info("Elasticsearch connected successfully")

	// --- Stores ---
	changes := feed.New(rdb.Client, cfg.Realtime.ChannelPrefix, logger.ForComponent(log, "feed"))
	docs := documents.NewStore(pg.DB, changes, logger.ForComponent(log, "documents"))
	if err := docs.EnsureSchema(ctx); err != nil {
		zapLog.Fatal("document schema setup failed", zap.Error(err))
	}
	live := changes.Source(docs)
	pending := staging.NewStore(rdb.Client, config.GetDuration(cfg.Applications.PendingUploadTTL))
	index := search.New(esClient.Client, logger.ForComponent(log, "search"))

	// --- AWS ---
	awsCfg, err := awsclient.LoadConfig(ctx, cfg.Integrations.AWS.Region)
	if err != nil {
		zapLog.Fatal("aws config load failed", zap.Error(err))
	}
	s3 := awsclient.NewS3Client(awsCfg, awsclient.S3Options{
		Bucket:        cfg.Integrations.AWS.S3.Bucket,
		PublicBaseURL: cfg.Integrations.AWS.S3.PublicBaseURL,
		Endpoint:      cfg.Integrations.AWS.S3.Endpoint,
		UsePathStyle:  cfg.Integrations.AWS.S3.UsePathStyle,
	})
	uploader := blobs.NewUploader(s3, logger.ForComponent(log, "blobs"))

	sender := notify.NewSender(notify.Config{
		EmailEnabled: cfg.Notifications.Email.Enabled && cfg.Integrations.AWS.SES.Enabled,
		SMSEnabled:   cfg.Notifications.SMS.Enabled && cfg.Integrations.AWS.SNS.Enabled,
		FromEmail:    cfg.Notifications.Email.FromEmail,
		Signature:    cfg.Notifications.Signature,
	},
		awsclient.NewSESClient(awsCfg),
		awsclient.NewSNSClient(awsCfg, cfg.Integrations.AWS.SNS.DefaultSMSSenderID),
		logger.ForComponent(log, "notify"),
	)

	// --- Keycloak ---
	kc := auth.NewKeycloakClient(
		cfg.Auth.Keycloak.URL,
		cfg.Auth.Keycloak.Realm,
		cfg.Auth.Keycloak.ClientID,
		cfg.Auth.Keycloak.ClientSecret,
		cfg.Auth.Keycloak.PublicClientID,
	)

	// --- Zeebe ---
	var zeebe *camunda.Client
	if cfg.Camunda.Enabled {
		err = retryWithBackoff(func() error {
			var err error
			zeebe, err = camunda.NewClientWithConfig(&camunda.ClientConfig{
				GatewayAddress:         cfg.Camunda.BrokerAddress,
				UsePlaintextConnection: true,
				ConnectionTimeout:      10 * time.Second,
				RequestTimeout:         config.GetDuration(cfg.Camunda.RequestTimeout),
			})
			return err
		}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}
		defer zeebe.Close()
		zapLog.Info("Zeebe client connected successfully")
	}

	// --- Domain services ---
	opts := submission.Options{
		CompensateIdentity: cfg.Applications.CompensateIdentity,
		ConfirmationPath:   cfg.Applications.ConfirmationPath,
		MessageTTL:         config.GetDuration(cfg.Camunda.MessageTTL),
	}
	recorder := submission.NewRecorder(docs)

	deps := submission.Deps{
		Authority:   identity.NewKeycloakAuthority(kc),
		Provisioner: identity.NewProvisioner(docs, logger.ForComponent(log, "identity")),
		Uploader:    uploader,
		Recorder:    recorder,
		Index:       index,
		Observer:    obs,
		Logger:      logger.ForComponent(log, "submission"),
	}
	paymentDeps := submission.PaymentDeps{
		Uploader: uploader,
		Recorder: recorder,
		Staging:  pending,
		Index:    index,
		Observer: obs,
		Logger:   logger.ForComponent(log, "payments"),
	}
	if zeebe != nil {
		deps.Process = zeebe
		paymentDeps.Process = zeebe
	}

	services := httptransport.Services{
		Applications: submission.NewWorkflow(deps, opts),
		Payments:     submission.NewPaymentDesk(paymentDeps, opts),
		Catalog:      catalog.New(docs, index, logger.ForComponent(log, "catalog")),
		Distributor: distributor.NewService(distributor.Deps{
			Auth:      kc,
			Store:     docs,
			Uploader:  uploader,
			Directory: distributor.NewKeycloakDirectory(kc),
			Logger:    logger.ForComponent(log, "distributor"),
		}),
		Admin: admin.NewService(docs, live, index, sender, logger.ForComponent(log, "admin")),
	}

	// --- Workers ---
	var workers []*camunda.CamundaWorker
	if zeebe != nil {
		if wcfg := config.GetWorkerConfig(cfg, san.TaskType); wcfg.Enabled {
			handler := san.NewHandler(san.LoadConfig(config.GetDuration(wcfg.Timeout)), sender, log)
			workers = append(workers, camunda.NewWorker(zeebe.GetClient(), san.TaskType, wcfg.MaxJobsActive,
				config.GetDuration(wcfg.Timeout), handler, zapLog))
		}
		if wcfg := config.GetWorkerConfig(cfg, as.TaskType); wcfg.Enabled {
			handler := as.NewHandler(as.LoadConfig(config.GetDuration(wcfg.Timeout)), docs, log)
			workers = append(workers, camunda.NewWorker(zeebe.GetClient(), as.TaskType, wcfg.MaxJobsActive,
				config.GetDuration(wcfg.Timeout), handler, zapLog))
		}
		zapLog.Info("workers registered", zap.Int("count", len(workers)))
	}

	// --- HTTP ---
	readiness := map[string]httptransport.ReadinessCheck{
		"postgres":      pg.Ping,
		"redis":         rdb.Ping,
		"elasticsearch": esClient.Ping,
		"keycloak":      kc.Ping,
	}
	if zeebe != nil {
		readiness["zeebe"] = zeebe.HealthCheck
	}

	server := httptransport.NewServer(services, kc, httptransport.Options{
		AdminRole:            cfg.Auth.AdminRole,
		TokenCacheTTL:        config.GetDuration(cfg.Auth.TokenCacheTTL),
		MaxUploadBytes:       cfg.HTTP.MaxUploadBytes,
		MultipartMemoryBytes: cfg.HTTP.MultipartMemory,
		RequestTimeout:       config.GetDuration(cfg.HTTP.WriteTimeout),
		Heartbeat:            config.GetDuration(cfg.Realtime.Heartbeat),
		Readiness:            readiness,
	}, logger.ForComponent(log, "http"))

	httpServer := &http.Server{
		Addr:        cfg.HTTP.Address,
		Handler:     server.Router(),
		ReadTimeout: config.GetDuration(cfg.HTTP.ReadTimeout),
		// no WriteTimeout; /realtime connections are long-lived
	}

	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", cfg.HTTP.Address))
		if err := httpServer.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			zapLog.Error("HTTP server failed", zap.Error(err))
			stop()
		}
	}()

	// --- Graceful Shutdown ---
	<-ctx.Done()
	zapLog.Info("Shutdown signal received, stopping...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.HTTP.ShutdownTimeout))
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down HTTP server", zap.Error(err))
	}
	for _, w := range workers {
		w.Stop(shutdownCtx)
	}
	if err := obs.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down observability", zap.Error(err))
	}

	zapLog.Info("Marketplace server stopped gracefully")
}
