package main

import (
	"database/sql"
	"net/http"
	"os"
	"strconv"
	"time"

	"mobbi-manager/internal/audit"
	"mobbi-manager/internal/auth"
	"mobbi-manager/internal/devicemgmt"
	"mobbi-manager/internal/logging"
	"mobbi-manager/internal/notify"
	"mobbi-manager/internal/observability/metrics"
	stationsapp "mobbi-manager/internal/stations/application"
	stations "mobbi-manager/internal/stations/domain"
	stationsrepo "mobbi-manager/internal/stations/infrastructure/postgres"
	stationshttp "mobbi-manager/internal/stations/interfaces/http"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := loadConfig()
	logger, err := logging.New(logging.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Environment,
		ServiceName: "mobbi-manager",
	})
	if err != nil {
		panic("logger init: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	if cfg.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL or PG_DSN is required")
	}
	if cfg.JWTSecret == "" {
		logger.Fatal("AUTH_JWT_SECRET is required")
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("db open error", zap.Error(err))
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatal("db ping error", zap.Error(err))
	}

	metrics.Init(db, logger)
	auditRepo := audit.NewRepository(db, logger)

	areaRepo := stationsrepo.NewAreaRepository(db)
	partnerRepo := stationsrepo.NewPartnerRepository(db)
	contactRepo := stationsrepo.NewContactRepository(db)
	catalogRepo := stationsrepo.NewCatalogRepository(db)

	reconciler, err := stationsapp.NewReconciler(
		areaRepo,
		partnerRepo,
		catalogRepo,
		stationsapp.WithMaxRetries(cfg.AllocationMaxRetries),
		stationsapp.WithReconcilerLogger(logger),
	)
	if err != nil {
		logger.Fatal("reconciler init error", zap.Error(err))
	}

	deviceCfg, err := devicemgmt.LoadConfig()
	if err != nil {
		logger.Fatal("device management config error", zap.Error(err))
	}
	var releaser stations.DeviceReleaser
	if deviceCfg.Enabled() {
		deviceReleaser, err := devicemgmt.New(deviceCfg, logger)
		if err != nil {
			logger.Fatal("device releaser init error", zap.Error(err))
		}
		releaser = deviceReleaser
	} else {
		logger.Warn("device management not configured; deleting partners with devices will be refused")
	}

	sequencerOpts := []stationsapp.SequencerOption{stationsapp.WithSequencerLogger(logger)}
	if alerter := notify.NewWebhookAlerter(cfg.AlertWebhookURL, cfg.Environment); alerter != nil {
		sequencerOpts = append(sequencerOpts, stationsapp.WithAlerter(alerter))
	}
	sequencer, err := stationsapp.NewSequencer(
		partnerRepo,
		contactRepo,
		releaser,
		stationsapp.SequencerConfig{APIToken: deviceCfg.APIToken},
		sequencerOpts...,
	)
	if err != nil {
		logger.Fatal("sequencer init error", zap.Error(err))
	}

	partnerService, err := stationsapp.NewPartnerService(areaRepo, partnerRepo, contactRepo, catalogRepo, logger)
	if err != nil {
		logger.Fatal("partner service init error", zap.Error(err))
	}
	areaService, err := stationsapp.NewAreaService(areaRepo, partnerRepo, logger)
	if err != nil {
		logger.Fatal("area service init error", zap.Error(err))
	}

	partnerHandler, err := stationshttp.NewPartnerHandler(reconciler, sequencer, partnerService, auditRepo, logger)
	if err != nil {
		logger.Fatal("partner handler init error", zap.Error(err))
	}
	areaHandler, err := stationshttp.NewAreaHandler(areaService, partnerService, reconciler, auditRepo, logger)
	if err != nil {
		logger.Fatal("area handler init error", zap.Error(err))
	}

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy, logger)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/partners", partnerHandler)
	mux.Handle("/api/v1/partners/", partnerHandler)
	mux.Handle("/api/v1/areas", areaHandler)
	mux.Handle("/api/v1/areas/", areaHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           logging.Middleware(authMiddleware.Wrap(mux), logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
	if err := server.ListenAndServe(); err != nil {
		logger.Fatal("http server stopped", zap.Error(err))
	}
}

type config struct {
	DatabaseURL          string
	HTTPAddr             string
	Environment          string
	LogLevel             string
	JWTSecret            string
	AllocationMaxRetries int
	AlertWebhookURL      string
}

func loadConfig() config {
	return config{
		DatabaseURL:          getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:             getenvDefault("HTTP_ADDR", ":8080"),
		Environment:          getenvDefault("APP_ENV", "development"),
		LogLevel:             getenvDefault("LOG_LEVEL", "info"),
		JWTSecret:            getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		AllocationMaxRetries: getenvIntDefault("ALLOCATION_MAX_RETRIES", 3),
		AlertWebhookURL:      getenvDefault("OPS_ALERT_WEBHOOK_URL", ""),
	}
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
