package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/ferZyx/ip-cam-monitor/internal/alarm"
	"github.com/ferZyx/ip-cam-monitor/internal/api"
	"github.com/ferZyx/ip-cam-monitor/internal/config"
	"github.com/ferZyx/ip-cam-monitor/internal/data"
	"github.com/ferZyx/ip-cam-monitor/internal/dvrip"
	"github.com/ferZyx/ip-cam-monitor/internal/extract"
	"github.com/ferZyx/ip-cam-monitor/internal/metrics"
	"github.com/ferZyx/ip-cam-monitor/internal/notify"
	"github.com/ferZyx/ip-cam-monitor/internal/ratelimit"
	"github.com/ferZyx/ip-cam-monitor/internal/store"
	"github.com/ferZyx/ip-cam-monitor/internal/tokens"
)

func main() {
	_ = godotenv.Load()

	cfgPath := flag.String("config", "config/default.yaml", "path to config file")
	flag.Parse()

	// 1. Config
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	// 2. Camera client
	camCfg := dvrip.Config{
		Address: cfg.Camera.Address,
		Credentials: dvrip.Credentials{
			Username: cfg.Camera.Username,
			Password: cfg.Camera.Password,
		},
		DialTimeout: cfg.Camera.DialTimeout.Std(),
		IOTimeout:   cfg.Camera.IOTimeout.Std(),
		KeepAlive:   cfg.Camera.KeepAlive.Std(),
	}
	client := dvrip.NewClient(camCfg, cfg.Camera.PoolSize)
	client.DownloadTimeout = cfg.Resolver.DownloadTimeout.Std()
	client.DownloadRetries = cfg.Resolver.DownloadRetries
	defer client.Close()

	// 3. Resolution pipeline
	extractor := extract.New(extract.Options{
		AcceptThreshold: cfg.Resolver.AcceptThreshold,
	})
	pipe := alarm.NewPipeline(client, extractor, extractor, pipelineConfig(cfg))
	timeline := alarm.NewTimeline(0, 0)
	svc := alarm.NewService(client, pipe, timeline, serviceConfig(cfg))

	// 4. Redis: photo store plus the API rate limiter share one client
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	st := store.NewStoreWithClient(rdb)
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := st.Ping(pingCtx); err != nil {
		cancel()
		log.Fatalf("Redis ping error: %v", err)
	}
	cancel()
	defer st.Close()
	svc.Store = st

	// 5. Postgres reports (optional)
	var db *sql.DB
	if cfg.Postgres.Name != "" {
		db, err = sql.Open("postgres", cfg.Postgres.ConnString())
		if err != nil {
			log.Fatalf("DB open error: %v", err)
		}
		if err := db.Ping(); err != nil {
			log.Fatalf("DB ping error: %v", err)
		}
		defer db.Close()
		svc.Reports = data.ReportModel{DB: db}
	} else {
		log.Println("[Server] DB_NAME not set, resolution reports disabled")
	}

	// 6. Publishers: websocket hub always, NATS when enabled
	hub := api.NewHub()
	defer hub.Close()
	pubs := notify.Fanout{hub}
	if cfg.NATS.Enabled {
		nc, err := nats.Connect(cfg.NATS.URL,
			nats.RetryOnFailedConnect(true),
			nats.MaxReconnects(-1))
		if err != nil {
			log.Fatalf("NATS connect error: %v", err)
		}
		defer nc.Close()
		pubs = append(pubs, notify.NewNATSPublisher(nc, cfg.NATS.Subject, cfg.NATS.MaxRetries))
	}
	svc.Notifier = pubs

	// 7. Realtime listener
	if cfg.Listener.Enabled {
		listener := dvrip.NewListener(dvrip.ListenerConfig{
			Session:   camCfg,
			Heartbeat: cfg.Listener.Heartbeat.Std(),
		}, svc.HandleRealtime)
		listener.OnResubscribe(metrics.ListenerResubscribesTotal.Inc)
		listener.Start()
		defer listener.Stop()
	}

	// 8. Polling safety net
	if cfg.Poller.Enabled {
		poller := alarm.NewPoller(svc, client, timeline, alarm.PollerConfig{
			Interval: cfg.Poller.Interval.Std(),
			Batch:    cfg.Poller.Batch,
			Lookback: cfg.Poller.Lookback.Std(),
		})
		poller.Start()
		defer poller.Stop()
	}

	// 9. Config hot reload for resolution tunables
	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	watcher := config.NewWatcher(*cfgPath, func(next *config.Config) {
		pipe.SetConfig(pipelineConfig(next))
		svc.SetConfig(serviceConfig(next))
	})
	watcher.Start(watchCtx)

	// 10. HTTP surface
	tokenMgr := tokens.NewManager(cfg.HTTP.JWTSigningKey, cfg.HTTP.PhotoTokenTTL.Std())
	handler := &api.AlarmHandler{
		Resolver:  svc,
		Store:     st,
		Tokens:    tokenMgr,
		AdminHash: cfg.HTTP.AdminPasswordHash,
	}
	var limiter *ratelimit.Limiter
	if cfg.HTTP.RateLimitRate > 0 {
		limiter = ratelimit.NewLimiter(rdb, cfg.HTTP.JWTSigningKey)
	}
	router := api.NewRouter(handler, hub, limiter, ratelimit.LimitConfig{
		Rate:   cfg.HTTP.RateLimitRate,
		Window: cfg.HTTP.RateLimitWindow.Std(),
	}, func() map[string]string {
		status := map[string]string{"redis": "ok", "camera": "ok"}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := st.Ping(ctx); err != nil {
			status["redis"] = err.Error()
		}
		if db != nil {
			if err := db.PingContext(ctx); err != nil {
				status["postgres"] = err.Error()
			} else {
				status["postgres"] = "ok"
			}
		}
		return status
	})

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout.Std(),
		WriteTimeout: cfg.HTTP.WriteTimeout.Std(),
	}

	go func() {
		log.Printf("[Server] listening on %s", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	// 11. Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("[Server] shutting down...")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutCancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		log.Printf("[Server] shutdown error: %v", err)
	}
}

func pipelineConfig(cfg *config.Config) alarm.PipelineConfig {
	return alarm.PipelineConfig{
		Workers:         cfg.Resolver.Workers,
		MinPayloadBytes: cfg.Resolver.MinPayloadBytes,
		StrictMarkers:   cfg.Resolver.StrictMarkers,
	}
}

func serviceConfig(cfg *config.Config) alarm.ServiceConfig {
	return alarm.ServiceConfig{
		Reconciler: alarm.ReconcilerConfig{
			Tolerance:       cfg.Resolver.Tolerance.Std(),
			ClipWindow:      cfg.Resolver.ClipWindow.Std(),
			PreferLaterClip: cfg.Resolver.PreferLaterClip,
		},
		Lookback: cfg.Resolver.Lookback.Std(),
	}
}
