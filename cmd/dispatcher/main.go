// cmd/dispatcher/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	commonaws "pulss-notifications/internal/common/aws"
	"pulss-notifications/internal/common/config"
	"pulss-notifications/internal/common/database"
	commonhttp "pulss-notifications/internal/common/http"
	"pulss-notifications/internal/common/logger"
	"pulss-notifications/internal/common/observability"
	"pulss-notifications/internal/notify/analytics"
	"pulss-notifications/internal/notify/dispatch"
	"pulss-notifications/internal/notify/preference"
	"pulss-notifications/internal/notify/provider"
	"pulss-notifications/internal/store"
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
	zapLog := logger.New("info", "console")
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting notification dispatcher...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	obs := observability.New("notification-dispatcher")
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Init PostgreSQL with retry ---
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

	// --- Init Redis with retry ---
	var redis *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redis, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redis.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init Elasticsearch (optional audit index) ---
	var esClient *database.ElasticsearchClient
	if cfg.Database.Elasticsearch.Enabled {
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping()
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		zapLog.Info("Elasticsearch connected successfully")
	}

	// --- Init AWS provider clients ---
	sesClient, err := commonaws.NewSESClient(ctx, cfg.Providers.AWS.Region)
	if err != nil {
		zapLog.Fatal("ses client init failed", zap.Error(err))
	}
	snsClient, err := commonaws.NewSNSClient(ctx, cfg.Providers.AWS.Region)
	if err != nil {
		zapLog.Fatal("sns client init failed", zap.Error(err))
	}

	webhook, err := provider.NewWebhookProvider(
		commonhttp.NewClient(config.GetDuration(cfg.Providers.Webhook.Timeout)),
		cfg.Providers.Webhook.SigningKey,
	)
	if err != nil {
		zapLog.Fatal("webhook provider init failed", zap.Error(err))
	}

	// --- Wire the delivery engine ---
	jobs := store.NewJobStore(pg.DB)
	events := store.NewEventStore(pg.DB)
	stats := store.NewAnalyticsStore(pg.DB)
	prefs := store.NewPreferenceStore(pg.DB)
	providers := store.NewProviderStore(pg.DB)

	router := provider.NewRouter(providers,
		provider.NewSESEmailProvider(sesClient, cfg.Providers.AWS.SES.FromEmail),
		provider.NewSNSSMSProvider(snsClient, cfg.Providers.AWS.SNS.SMSSenderID),
		provider.NewSNSPushProvider(snsClient),
		webhook,
	)

	filter := preference.NewFilter(prefs, cfg.Notifications.CriticalTypes, log)

	recorder := analytics.NewRecorder(events, stats, redis,
		config.GetDuration(cfg.Notifications.DedupeTTL), log)
	if esClient != nil {
		recorder = recorder.WithIndexer(esClient, cfg.Database.Elasticsearch.Index)
	}

	dispatcher := dispatch.New(jobs, router, filter, recorder,
		dispatch.NewBackoff(cfg.Dispatcher.BackoffSteps, cfg.Dispatcher.BackoffJitter),
		dispatch.Options{
			WorkerID:     cfg.Dispatcher.WorkerID,
			PollInterval: config.GetDuration(cfg.Dispatcher.PollInterval),
			BatchSize:    cfg.Dispatcher.BatchSize,
			MaxInFlight:  cfg.Dispatcher.MaxInFlight,
			SendTimeout:  config.GetDuration(cfg.Dispatcher.SendTimeout),
			ClaimTTL:     config.GetDuration(cfg.Dispatcher.ClaimTTL),
		},
		log,
	).WithObserver(obs)

	// --- Maintenance schedule: reaper each minute, reconciliation nightly ---
	scheduler := cron.New()
	scheduler.AddFunc("* * * * *", func() { dispatcher.Reap(ctx) })
	scheduler.AddFunc("30 0 * * *", func() { reconcileYesterday(ctx, events, stats, log) })
	scheduler.Start()
	defer scheduler.Stop()

	// --- Metrics / pprof endpoint ---
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ok"))
		})
		if err := http.ListenAndServe(cfg.API.MetricsAddress, mux); err != nil {
			zapLog.Error("metrics server stopped", zap.Error(err))
		}
	}()

	dispatcher.Run(ctx)
	zapLog.Info("Shutdown complete")
	os.Exit(0)
}

// reconcileYesterday rebuilds yesterday's aggregates from the audit table,
// correcting any drift from counter increments lost mid-crash.
func reconcileYesterday(ctx context.Context, events *store.EventStore, stats *store.AnalyticsStore, log logger.Logger) {
	day := time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")
	rows, err := events.RecountDay(ctx, day)
	if err != nil {
		log.Error("reconciliation recount failed", map[string]interface{}{"day": day, "error": err.Error()})
		return
	}
	for _, row := range rows {
		if err := stats.Set(ctx, row); err != nil {
			log.Error("reconciliation write failed", map[string]interface{}{"day": day, "error": err.Error()})
			return
		}
	}
	log.Info("daily stats reconciled", map[string]interface{}{"day": day, "buckets": len(rows)})
}
