package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"taskqueue-gateway/middleware/admission"
	"taskqueue-gateway/middleware/admission/domain"
	"taskqueue-gateway/middleware/admission/infra"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	// .env é opcional; em produção as vars vêm do ambiente mesmo
	_ = godotenv.Load()

	logger, err := newLogger()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := readConfig()
	if err != nil {
		logger.Fatal("config error", zap.Error(err))
	}

	target, err := url.Parse(cfg.upstreamURL)
	if err != nil {
		logger.Fatal("invalid UPSTREAM_URL", zap.Error(err))
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Warn("proxy error", zap.Error(err))
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	store, err := infra.NewStore(infra.Config{
		Algorithm:         cfg.rateAlgorithm,
		RequestsPerMinute: cfg.rateRPM,
		Burst:             cfg.rateBurst,
		Window:            cfg.rateWindow,
		CleanupInterval:   cfg.rateCleanupInterval,
		EnableMetrics:     cfg.rateMetricsEnabled,
	}, infra.WithLogger(logger))
	if err != nil {
		logger.Fatal("rate limit config error", zap.Error(err))
	}

	queue, err := infra.NewQueue(infra.ThrottleConfig{
		MaxConcurrent:  cfg.throttleMax,
		QueueSize:      cfg.throttleQueueSize,
		Timeout:        cfg.throttleTimeout,
		EnablePriority: cfg.throttlePriority,
	}, infra.WithQueueLogger(logger))
	if err != nil {
		logger.Fatal("throttle config error", zap.Error(err))
	}

	statsStore, closeStats, err := buildStatsStore(cfg)
	if err != nil {
		logger.Fatal("stats config error", zap.Error(err))
	}
	defer closeStats()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	store.StartJanitor(ctx)
	queue.StartJanitor(ctx)

	h := http.Handler(proxy)
	h = admission.ThrottleMiddleware(admission.ThrottleOptions{
		Queue:              queue,
		PriorityHeader:     cfg.priorityHeader,
		KeyHeader:          cfg.rateKeyHeader,
		TrustXForwardedFor: cfg.trustXFF,
		RejectStatus:       http.StatusServiceUnavailable,
		TimeoutStatus:      http.StatusGatewayTimeout,
	})(h)
	if cfg.rateEnabled {
		h = admission.Middleware(admission.Options{
			Store:               store,
			Stats:               statsStore,
			KeyHeader:           cfg.rateKeyHeader,
			TrustXForwardedFor:  cfg.trustXFF,
			RejectStatus:        http.StatusTooManyRequests,
			RetryAfter:          cfg.retryAfter,
			AddRateLimitHeaders: cfg.addHeaders,
		})(h)
	}

	srv := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	var adminSrv *http.Server
	if cfg.adminAddr != "" {
		infra.RegisterAdmissionGauges(store, queue)
		adminMux := http.NewServeMux()
		adminMux.Handle("/metrics", promhttp.Handler())
		adminMux.Handle("/admission/", admission.AdminHandler(admission.AdminOptions{
			Store:   store,
			Metrics: store.Metrics,
			Queue:   queue,
			Token:   cfg.adminToken,
		}))
		adminSrv = &http.Server{
			Addr:              cfg.adminAddr,
			Handler:           adminMux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("admin listener on", zap.String("addr", cfg.adminAddr))
			if err := adminSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("admin server error", zap.Error(err))
			}
		}()
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		if adminSrv != nil {
			_ = adminSrv.Shutdown(shutdownCtx)
		}
	}()

	logger.Info("gateway listening",
		zap.String("addr", cfg.listenAddr),
		zap.String("upstream", target.String()),
	)
	logger.Info("rate limit",
		zap.Bool("enabled", cfg.rateEnabled),
		zap.String("algorithm", string(cfg.rateAlgorithm)),
		zap.Int("rpm", cfg.rateRPM),
		zap.Int("burst", cfg.rateBurst),
		zap.String("keyHeader", cfg.rateKeyHeader),
		zap.Bool("trustXFF", cfg.trustXFF),
	)
	logger.Info("throttle",
		zap.Int("maxConcurrent", cfg.throttleMax),
		zap.Int("queueSize", cfg.throttleQueueSize),
		zap.Duration("timeout", cfg.throttleTimeout),
		zap.Bool("priority", cfg.throttlePriority),
		zap.String("priorityHeader", cfg.priorityHeader),
	)
	logger.Info("stats", zap.String("backend", cfg.statsBackend))

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
}

func newLogger() (*zap.Logger, error) {
	if getenvBoolDefault("LOG_DEV", false) {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

type config struct {
	listenAddr  string
	upstreamURL string

	rateEnabled         bool
	rateAlgorithm       domain.Algorithm
	rateRPM             int
	rateBurst           int
	rateWindow          time.Duration
	rateCleanupInterval time.Duration
	rateMetricsEnabled  bool
	rateKeyHeader       string
	trustXFF            bool
	retryAfter          time.Duration
	addHeaders          bool

	throttleMax       int
	throttleQueueSize int
	throttleTimeout   time.Duration
	throttlePriority  bool
	priorityHeader    string

	statsBackend       string // none | memory | redis | prometheus
	statsRedisAddr     string
	statsRedisPassword string
	statsRedisDB       int
	statsPrefix        string
	statsTTL           time.Duration
	statsBucket        string
	statsTrackKeys     bool

	adminAddr  string
	adminToken string
}

func readConfig() (config, error) {
	cfg := config{}
	cfg.listenAddr = getenvDefault("LISTEN_ADDR", ":8080")
	cfg.upstreamURL = os.Getenv("UPSTREAM_URL")

	cfg.rateEnabled = getenvBoolDefault("RATE_ENABLED", true)
	alg, err := domain.ParseAlgorithm(getenvDefault("RATE_ALGORITHM", string(domain.AlgorithmTokenBucket)))
	if err != nil {
		return config{}, err
	}
	cfg.rateAlgorithm = alg
	cfg.rateRPM = getenvIntDefault("RATE_RPM", 600)
	// IMPORTANTE: o "burst" permite uma rajada inicial de requisições.
	// Com RPM muito baixo, o padrão (= RPM) pode dar a impressão de que o
	// limiter não está funcionando, porque as primeiras passam todas.
	cfg.rateBurst = getenvIntDefault("RATE_BURST", 0)
	cfg.rateWindow = getenvDurationDefault("RATE_WINDOW", time.Minute)
	cfg.rateCleanupInterval = getenvDurationDefault("RATE_CLEANUP_INTERVAL", 5*time.Minute)
	cfg.rateMetricsEnabled = getenvBoolDefault("RATE_METRICS_ENABLED", true)
	cfg.rateKeyHeader = os.Getenv("RATE_KEY_HEADER")
	cfg.trustXFF = getenvBoolDefault("TRUST_XFF", false)
	cfg.retryAfter = getenvDurationDefault("RETRY_AFTER", 1*time.Second)
	cfg.addHeaders = getenvBoolDefault("ADD_RATELIMIT_HEADERS", false)

	cfg.throttleMax = getenvIntDefault("THROTTLE_MAX", 100)
	cfg.throttleQueueSize = getenvIntDefault("THROTTLE_QUEUE_SIZE", 1000)
	cfg.throttleTimeout = getenvDurationDefault("THROTTLE_TIMEOUT", 30*time.Second)
	cfg.throttlePriority = getenvBoolDefault("THROTTLE_PRIORITY_ENABLED", true)
	cfg.priorityHeader = getenvDefault("PRIORITY_HEADER", "X-Priority")

	cfg.statsBackend = strings.ToLower(getenvDefault("STATS_BACKEND", "none"))
	cfg.statsRedisAddr = getenvDefault("STATS_REDIS_ADDR", "")
	cfg.statsRedisPassword = os.Getenv("STATS_REDIS_PASSWORD")
	cfg.statsRedisDB = getenvIntDefault("STATS_REDIS_DB", 0)
	cfg.statsPrefix = getenvDefault("STATS_PREFIX", "admission:stats")
	cfg.statsTTL = getenvDurationDefault("STATS_TTL", 24*time.Hour)
	cfg.statsBucket = getenvDefault("STATS_BUCKET", "minute")
	cfg.statsTrackKeys = getenvBoolDefault("STATS_TRACK_KEYS", false)

	cfg.adminAddr = getenvDefault("ADMIN_ADDR", "")
	cfg.adminToken = os.Getenv("ADMIN_TOKEN")

	if cfg.upstreamURL == "" {
		return config{}, errors.New("UPSTREAM_URL is required")
	}
	switch cfg.statsBackend {
	case "none", "memory", "redis", "prometheus":
	default:
		return config{}, errors.New("STATS_BACKEND must be none, memory, redis or prometheus")
	}
	if cfg.statsBackend == "redis" && strings.TrimSpace(cfg.statsRedisAddr) == "" {
		return config{}, errors.New("STATS_REDIS_ADDR is required when STATS_BACKEND=redis")
	}
	return cfg, nil
}

func buildStatsStore(cfg config) (domain.StatsStore, func(), error) {
	noop := func() {}
	switch cfg.statsBackend {
	case "memory":
		return infra.NewMemoryStatsStore(infra.WithTrackKeys(cfg.statsTrackKeys)), noop, nil
	case "prometheus":
		return infra.NewPrometheusStatsStore(), noop, nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.statsRedisAddr,
			Password: cfg.statsRedisPassword,
			DB:       cfg.statsRedisDB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_, err := rdb.Ping(pingCtx).Result()
		cancel()
		if err != nil {
			_ = rdb.Close()
			return nil, noop, err
		}
		stats := infra.NewRedisStatsStore(
			rdb,
			infra.WithStatsPrefix(cfg.statsPrefix),
			infra.WithStatsTTL(cfg.statsTTL),
			infra.WithStatsBucket(cfg.statsBucket),
			infra.WithStatsTrackKeys(cfg.statsTrackKeys),
		)
		return stats, func() { _ = rdb.Close() }, nil
	}
	return nil, noop, nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
