package main

import (
	"database/sql"
	"log"
	"net/http"
	"os"
	"time"

	alertapp "pasture-cloud/internal/alerts/application"
	alertrepo "pasture-cloud/internal/alerts/infrastructure/postgres"
	alertinterfaces "pasture-cloud/internal/alerts/interfaces"
	alerthttp "pasture-cloud/internal/alerts/interfaces/http"
	alertnotify "pasture-cloud/internal/alerts/notify"
	analyticsapp "pasture-cloud/internal/analytics/application"
	analyticsrepo "pasture-cloud/internal/analytics/infrastructure/postgres"
	analyticshttp "pasture-cloud/internal/analytics/interfaces/http"
	"pasture-cloud/internal/audit"
	"pasture-cloud/internal/auth"
	"pasture-cloud/internal/eventbus"
	mdapp "pasture-cloud/internal/masterdata/application"
	masterdatarepo "pasture-cloud/internal/masterdata/infrastructure/postgres"
	mdhttp "pasture-cloud/internal/masterdata/interfaces/http"
	"pasture-cloud/internal/observability/metrics"
	telemetryapp "pasture-cloud/internal/telemetry/application"
	telemetrymemory "pasture-cloud/internal/telemetry/infrastructure/memory"
	telemetrypostgres "pasture-cloud/internal/telemetry/infrastructure/postgres"
	telemetryhttp "pasture-cloud/internal/telemetry/interfaces/http"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	_ = godotenv.Load()
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}

	metrics.Init(db, logger)
	ownerChecker := auth.NewFarmChecker(db)
	auditRepo := audit.NewRepository(db)

	farmerRepo := masterdatarepo.NewFarmerRepository(db)
	farmRepo := masterdatarepo.NewFarmRepository(db)
	zoneRepo := masterdatarepo.NewZoneRepository(db)
	livestockRepo := masterdatarepo.NewLivestockRepository(db)
	sensorRepo := masterdatarepo.NewSensorRepository(db)
	counters := masterdatarepo.NewCounterAdjuster(db)

	mdService, err := mdapp.NewService(farmerRepo, farmRepo, zoneRepo, livestockRepo, sensorRepo, counters)
	if err != nil {
		logger.Fatalf("masterdata service error: %v", err)
	}
	mdHandler, err := mdhttp.NewHandler(mdService, ownerChecker, auditRepo, logger)
	if err != nil {
		logger.Fatalf("masterdata handler error: %v", err)
	}

	bus := eventbus.NewInMemoryBus()
	readingRepo := telemetrypostgres.NewReadingRepository(db)
	liveStore := telemetrymemory.NewLiveStatusStore()
	telemetryService, err := telemetryapp.NewService(readingRepo, sensorRepo, farmRepo, liveStore, bus, logger)
	if err != nil {
		logger.Fatalf("telemetry service error: %v", err)
	}

	deviceKeys, err := auth.NewDeviceKeyVerifier([]byte(cfg.DeviceAPIKey))
	if err != nil {
		logger.Fatalf("device key error: %v", err)
	}
	ingestHandler, err := telemetryhttp.NewIngestHandler(telemetryService, deviceKeys)
	if err != nil {
		logger.Fatalf("ingest handler error: %v", err)
	}
	liveHandler, err := telemetryhttp.NewLiveHandler(telemetryService)
	if err != nil {
		logger.Fatalf("live handler error: %v", err)
	}

	alertRepo := alertrepo.NewAlertRepository(db)
	notificationRepo := alertrepo.NewNotificationRepository(db)
	alertService, err := alertapp.NewService(alertRepo, notificationRepo, counters, logger)
	if err != nil {
		logger.Fatalf("alert service error: %v", err)
	}

	broker := alerthttp.NewSSEBroker()
	streamHandler := alerthttp.NewStreamHandler(broker)
	notifiers := []alertapp.AlertNotifier{broker}
	notifyCfg, err := alertnotify.LoadConfig()
	if err != nil {
		logger.Fatalf("notify config error: %v", err)
	}
	if notifyCfg.WebhookURL != "" {
		channel, err := alertnotify.NewWebhookChannel(notifyCfg.WebhookURL)
		if err != nil {
			logger.Fatalf("alert webhook error: %v", err)
		}
		tpl, err := alertnotify.NewTemplate(notifyCfg.Template)
		if err != nil {
			logger.Fatalf("alert template error: %v", err)
		}
		opts := append(notifyCfg.Options(), alertnotify.WithDeliveryRecorder(alertService))
		webhookNotifier, err := alertnotify.NewNotifier(farmRepo, zoneRepo, channel, tpl, logger, opts...)
		if err != nil {
			logger.Fatalf("alert notifier error: %v", err)
		}
		notifiers = append(notifiers, webhookNotifier)
	}
	alertService.SetNotifier(alertnotify.NewMultiNotifier(notifiers...))

	alertConsumer, err := alertinterfaces.NewReadingConsumer(alertService, logger)
	if err != nil {
		logger.Fatalf("alert consumer error: %v", err)
	}
	if err := alertConsumer.Register(bus); err != nil {
		logger.Fatalf("alert consumer register error: %v", err)
	}

	alertHandler, err := alerthttp.NewHandler(alertService, streamHandler, ownerChecker, alerthttp.WithAuditor(auditRepo))
	if err != nil {
		logger.Fatalf("alert handler error: %v", err)
	}

	readingSource, err := analyticsrepo.NewReadingSource(db)
	if err != nil {
		logger.Fatalf("reading source error: %v", err)
	}
	alertSource, err := analyticsrepo.NewAlertSource(db)
	if err != nil {
		logger.Fatalf("alert source error: %v", err)
	}
	aggregator, err := analyticsapp.NewAggregator(readingSource, alertSource, farmRepo)
	if err != nil {
		logger.Fatalf("aggregator error: %v", err)
	}
	exportHandler, err := analyticshttp.NewExportHandler(alertService)
	if err != nil {
		logger.Fatalf("export handler error: %v", err)
	}
	analyticsHandler, err := analyticshttp.NewHandler(aggregator, exportHandler, ownerChecker)
	if err != nil {
		logger.Fatalf("analytics handler error: %v", err)
	}

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, []string{"/ingest/"})
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)

	mux := http.NewServeMux()
	mux.Handle("/ingest/sensors/reading", ingestHandler)
	mux.Handle("/ingest/sensors/batch", ingestHandler)
	mux.Handle("/api/v1/farmers", mdHandler)
	mux.Handle("/api/v1/farmers/", mdHandler)
	mux.Handle("/api/v1/farms", mdHandler)
	mux.Handle("/api/v1/farms/", mdHandler)
	mux.Handle("/api/v1/zones", mdHandler)
	mux.Handle("/api/v1/zones/", mdHandler)
	mux.Handle("/api/v1/livestock", mdHandler)
	mux.Handle("/api/v1/livestock/", mdHandler)
	mux.Handle("/api/v1/sensors", mdHandler)
	mux.Handle("/api/v1/sensors/", mdHandler)
	mux.Handle("/api/v1/sensors/live", liveHandler)
	mux.Handle("/api/v1/sensors/live/", liveHandler)
	mux.Handle("/api/v1/alerts", alertHandler)
	mux.Handle("/api/v1/alerts/", alertHandler)
	mux.Handle("/api/v1/analytics/", analyticsHandler)
	mux.Handle("/api/v1/exports/", analyticsHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           loggingMiddleware(authMiddleware.Wrap(mux), logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

type config struct {
	DatabaseURL  string
	HTTPAddr     string
	JWTSecret    string
	DeviceAPIKey string
}

func loadConfig() config {
	cfg := config{
		DatabaseURL:  getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:     getenvDefault("HTTP_ADDR", ":8080"),
		JWTSecret:    getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		DeviceAPIKey: getenvDefault("DEVICE_API_KEY", ""),
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL or PG_DSN is required")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
	}
	if cfg.DeviceAPIKey == "" {
		log.Fatal("DEVICE_API_KEY is required")
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
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
