package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"bmcheck.local/internal/app/existing"
	"bmcheck.local/internal/app/existing/cache"
	"bmcheck.local/internal/app/existing/httpapi"
	"bmcheck.local/internal/app/existing/remote"
	"bmcheck.local/internal/app/existing/stats"
	"bmcheck.local/internal/platform/auth"
	platformcache "bmcheck.local/internal/platform/cache"
	"bmcheck.local/internal/platform/config"
	"bmcheck.local/internal/platform/db"
	"bmcheck.local/internal/platform/httpmiddleware"
	"bmcheck.local/internal/platform/httpserver"
	"bmcheck.local/internal/platform/metrics"
	"bmcheck.local/internal/platform/migrate"
	"bmcheck.local/internal/platform/ratelimit"
	"bmcheck.local/internal/platform/trace"
	"bmcheck.local/migrations"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	cfg := config.Load()

	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	var h slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if cfg.LogFormat == "text" {
		h = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(h))

	metrics.Init()

	if cfg.TracingEnabled {
		shutdown, err := trace.InitTrace(cfg.OtlpGrpcEndpoint, cfg.OtlpServiceName, version)
		if err != nil {
			slog.Error("trace init failed", "err", err)
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					slog.Error("trace shutdown failed", "err", err)
				}
			}()
		}
	} else {
		slog.Warn("Tracing disabled by config", "TRACING_ENABLED", false)
	}

	// 统计（可选）：Postgres + Channel 或 Kafka
	var dbPool *pgxpool.Pool
	var collector stats.Collector = stats.NopCollector{}
	var kafkaConsumer *stats.KafkaConsumer
	var channelConsumer *stats.Consumer
	if cfg.StatsEnabled {
		dbCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		pool, err := db.New(dbCtx, cfg.DBDSN)
		if err != nil {
			cancel()
			log.Fatal(err)
		}
		if err := pool.Ping(dbCtx); err != nil {
			cancel()
			log.Fatal(err)
		}
		res, err := migrate.Up(dbCtx, pool, migrations.FS)
		cancel()
		if err != nil {
			log.Fatal(err)
		}
		slog.Info("数据库连接成功", "migrations_applied", res.AppliedFiles)
		dbPool = pool
		defer dbPool.Close()

		if cfg.KafkaEnabled {
			slog.Info("使用 Kafka 收集查询统计", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
			collector = stats.NewKafkaCollector(cfg.KafkaBrokers, cfg.KafkaTopic)
			kafkaConsumer = stats.NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, dbPool)
		} else {
			slog.Info("使用 Channel 收集查询统计")
			channelCollector := stats.NewChannelCollector(10000)
			collector = channelCollector
			channelConsumer = stats.NewConsumer(dbPool, channelCollector)
		}
	} else {
		slog.Warn("Stats disabled by config", "STATS_ENABLED", false)
	}

	//限流器
	var limiter *ratelimit.Limiter
	if cfg.RateLimitEnabled {
		redisClient, err := platformcache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Fatal(err)
		}
		defer redisClient.Close()
		limiter = ratelimit.NewLimiter(redisClient)
	} else {
		slog.Warn("RateLimit disabled by config", "RATELIMIT_ENABLED", false)
	}

	// JWT：未配置密钥时 API 不要求认证
	var ts auth.TokenService
	if cfg.JWTSecret != "" {
		var err error
		ts, err = auth.NewHS256Service(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
		if err != nil {
			log.Fatal(err)
		}
	} else {
		slog.Warn("Auth disabled: JWT_SECRET not set")
	}

	resultCache, err := cache.New[existing.Resolution](cfg.CacheMaxItems)
	if err != nil {
		log.Fatal(err)
	}
	defer resultCache.Close()

	client := remote.NewClient(remote.Options{
		BaseURL:  cfg.RemoteBaseURL,
		APIToken: cfg.RemoteAPIToken,
		Timeout:  cfg.RemoteTimeout,
	})
	svc := existing.NewService(settingsFrom(cfg), client, resultCache,
		existing.WithCollector(collector),
		existing.WithOwnerRegistry(existing.NewOwnerRegistry(cfg.OwnerStaleAfter)),
	)

	// 对外业务
	r := chi.NewRouter()
	r.Use(middleware.Recoverer, httpmiddleware.RequestID, httpmiddleware.AccessLog, httpmiddleware.Metrics, httpmiddleware.TraceName)

	r.Route("/api/v1", func(api chi.Router) {
		httpapi.RegisterAPIRoutes(api, svc, httpapi.Options{
			TokenService: ts,
			Limiter:      limiter,
			RateLimit:    cfg.RateLimitCount,
			RateWindow:   cfg.RateLimitWindow,
		})
	})
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	publicHandler := http.Handler(r)
	if cfg.TracingEnabled {
		publicHandler = otelhttp.NewHandler(r, "http")
	}
	publicSrv := httpserver.New(cfg, publicHandler)

	// 仅本机/内网
	adminMux := http.NewServeMux()
	adminMux.Handle("/metrics", promhttp.Handler())
	adminMux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if dbPool == nil {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := dbPool.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("DB Ping Err"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("DB ready"))
	})
	adminMux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"service_name": cfg.ServiceName,
			"version":      version,
			"commit":       commit,
			"build_time":   buildTime,
			"go_version":   runtime.Version(),
		})
	})
	if cfg.PprofEnabled {
		adminMux.HandleFunc("/debug/pprof/", pprof.Index)
		adminMux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		adminMux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		adminMux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		adminMux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	adminSrv := httpserver.NewAdmin(cfg, adminMux)

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	defer collector.Close()
	var consumers sync.WaitGroup
	if kafkaConsumer != nil {
		defer kafkaConsumer.Close()
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			kafkaConsumer.Run(stopCtx)
		}()
	}
	if channelConsumer != nil {
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			channelConsumer.Run(stopCtx)
		}()
	}
	// 等消费者写完剩余统计再关闭连接
	defer consumers.Wait()

	errch := make(chan error, 2)
	go func() {
		errch <- httpserver.Run(stopCtx, publicSrv, cfg.ShutdownTimeout)
	}()
	go func() {
		errch <- httpserver.Run(stopCtx, adminSrv, cfg.ShutdownTimeout)
	}()
	slog.Info("bmcheck api started", "addr", cfg.Addr, "admin_addr", cfg.AdminAddr, "remote", cfg.RemoteBaseURL)

	if err := <-errch; err != nil {
		stop()
		select {
		case <-errch:
		case <-time.After(cfg.ShutdownTimeout + time.Second):
		}
		slog.Error("server exited", "err", err)
		return
	}
	stop()
	<-errch
}

func settingsFrom(cfg config.Config) existing.StaticSettings {
	return existing.StaticSettings{
		EnableExistingCheck:             cfg.CheckEnabled,
		FuzzyURLMatch:                   cfg.FuzzyURLMatch,
		CacheEnabled:                    cfg.CacheEnabled,
		CacheTTLSeconds:                 cfg.CacheTTLSeconds,
		TitleSimilarityEnabled:          cfg.TitleSimilarityEnabled,
		TitleCheckLimit:                 cfg.TitleCheckLimit,
		TitleSimilarityThresholdPercent: cfg.TitleSimilarityThreshold,
	}
}
