package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/agrisense/crop-advisory-service/internal/advisor"
	"github.com/agrisense/crop-advisory-service/internal/cache"
	"github.com/agrisense/crop-advisory-service/internal/client"
	"github.com/agrisense/crop-advisory-service/internal/config"
	"github.com/agrisense/crop-advisory-service/internal/geocode"
	"github.com/agrisense/crop-advisory-service/internal/health"
	httphandler "github.com/agrisense/crop-advisory-service/internal/http"
	"github.com/agrisense/crop-advisory-service/internal/llm"
	"github.com/agrisense/crop-advisory-service/internal/observability"
	"github.com/agrisense/crop-advisory-service/internal/service"
	"github.com/agrisense/crop-advisory-service/internal/session"
	"github.com/agrisense/crop-advisory-service/internal/validation"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	var cacheSvc cache.Cache
	var cachePing func() error
	var cacheClose func() error
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			logger.Fatal("memcached cache", zap.Error(err))
		}
		cacheSvc = mc
		cachePing = mc.Ping
		cacheClose = mc.Close
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	case "redis":
		rc, err := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisTimeout)
		if err != nil {
			logger.Fatal("redis cache", zap.Error(err))
		}
		cacheSvc = rc
		cachePing = rc.Ping
		cacheClose = rc.Close
		logger.Info("cache backend: redis", zap.String("addr", cfg.RedisAddr))
	default:
		cacheSvc = cache.NewInMemoryCache()
		logger.Info("cache backend: in_memory")
	}

	resolver := geocode.NewResolver(
		geocode.NewNominatimClient(cfg.GeocodeAPIURL, cfg.GeocodeUserAgent, cfg.UpstreamTimeout),
		geocode.NewIPAPIClient(cfg.IPLocateAPIURL, cfg.UpstreamTimeout),
		cacheSvc,
		cfg.GeocodeTTL,
		cfg.IPLocateTTL,
	)

	analyzer := service.NewAnalyzer(
		client.NewOpenMeteoClient(cfg.WeatherAPIURL, cfg.UpstreamTimeout),
		client.NewSoilGridsClient(cfg.SoilAPIURL, cfg.UpstreamTimeout),
		cacheSvc,
		cfg.WeatherTTL,
		cfg.SoilTTL,
		cfg.CoalesceTimeout,
	)

	model := llm.NewLlamaClient(cfg.ModelURL, cfg.ModelTimeout)
	crops := advisor.NewCropAdvisor(model)
	yields := advisor.NewYieldAdvisor(model)

	sessions := session.NewStore(cfg.SessionIdleTTL)
	upstream := health.NewTracker()

	healthConfig := &httphandler.HealthConfig{
		DegradedWindow:     cfg.DegradedWindow,
		DegradedErrorPct:   cfg.DegradedErrorPct,
		DegradedMinSamples: cfg.DegradedMinSamples,
		CachePing:          cachePing,
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}

	handler := httphandler.NewHandler(resolver, analyzer, crops, yields, sessions, upstream, healthConfig, logger)

	router := mux.NewRouter()
	router.Use(httphandler.CorrelationIDMiddleware(logger))
	router.Use(httphandler.MetricsMiddleware)
	router.HandleFunc("/health", handler.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())

	api := router.PathPrefix("/v1").Subrouter()
	api.Use(httphandler.RateLimitMiddleware(limiter))
	api.HandleFunc("/expenses", handler.GetExpenses).Methods("GET")
	api.HandleFunc("/expenses", handler.PostExpenses).Methods("POST")
	api.HandleFunc("/expenses", handler.DeleteExpenses).Methods("DELETE")
	api.HandleFunc("/expenses/categories", handler.PostExpenseCategories).Methods("POST")
	api.HandleFunc("/profit", handler.GetProfit).Methods("GET")
	api.HandleFunc("/export/predictions.csv", handler.GetExportPredictions).Methods("GET")
	api.HandleFunc("/export/expenses.csv", handler.GetExportExpenses).Methods("GET")

	analyzeAPI := api.NewRoute().Subrouter()
	analyzeAPI.Use(httphandler.TimeoutMiddleware(cfg.RequestTimeout))
	analyzeAPI.HandleFunc("/analyze", handler.PostAnalyze).Methods("POST")
	analyzeAPI.HandleFunc("/analyze/ip", handler.GetAnalyzeIP).Methods("GET")

	// Model-backed routes get the model's own deadline instead of the
	// request timeout. A prediction table runs its rows through the model
	// sequentially, so that route's budget scales with the row cap.
	modelAPI := api.NewRoute().Subrouter()
	modelAPI.Use(httphandler.TimeoutMiddleware(cfg.ModelTimeout))
	modelAPI.HandleFunc("/recommendations", handler.PostRecommendations).Methods("POST")

	predictionsTimeout := time.Duration(validation.MaxCropRows) * cfg.ModelTimeout
	predictionsAPI := api.NewRoute().Subrouter()
	predictionsAPI.Use(httphandler.TimeoutMiddleware(predictionsTimeout))
	predictionsAPI.HandleFunc("/predictions", handler.PostPredictions).Methods("POST")

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: predictionsTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	if cacheClose != nil {
		if err := cacheClose(); err != nil {
			logger.Error("cache close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}
