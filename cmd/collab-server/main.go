package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"

	"collab-docs/config"
	"collab-docs/internal/auth"
	"collab-docs/internal/editor"
	"collab-docs/internal/lock"
	"collab-docs/internal/store"
)

func main() {
	var cfg config.Config
	if _, err := flags.Parse(&cfg); err != nil {
		if flags.WroteHelp(err) {
			return
		}
		os.Exit(1)
	}

	initLog(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := buildStore(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("initializing document store")
	}
	locker, err := buildLocker(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("initializing lock service")
	}

	var verifier auth.Verifier
	if cfg.Auth.JWTSecret != "" {
		verifier = auth.NewJWT([]byte(cfg.Auth.JWTSecret))
	} else {
		log.Warn("no JWT secret configured, accepting any token (dev mode)")
		verifier = auth.Insecure{}
	}

	registry := prometheus.NewRegistry()
	service := editor.NewService(editor.Config{
		LockTTL:            cfg.Lock.TTL,
		LockAcquireTimeout: cfg.Lock.AcquireTimeout,
		CursorMaxAge:       5 * time.Minute,
	}, st, locker, verifier, registry)
	service.Start()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/ws", service.HandleWebSocket)

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: mux,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.WithField("addr", cfg.Server.Addr).Info("collaboration server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutting down")
		service.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.WithError(err).Fatal("server failed")
	}
}

func initLog(cfg config.Config) {
	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	if cfg.Log.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	}
}

func buildStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	switch cfg.Store.Backend {
	case "mongo":
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Store.MongoURI))
		if err != nil {
			return nil, err
		}
		st := store.NewMongo(client.Database(cfg.Store.MongoDatabase))
		if err := st.EnsureIndexes(ctx); err != nil {
			return nil, err
		}
		log.WithField("database", cfg.Store.MongoDatabase).Info("using MongoDB document store")
		return st, nil
	case "postgres":
		db, err := sqlx.ConnectContext(ctx, "postgres", cfg.Store.PostgresDSN)
		if err != nil {
			return nil, err
		}
		st := store.NewPostgres(db)
		if err := st.Bootstrap(ctx); err != nil {
			return nil, err
		}
		log.Info("using Postgres document store")
		return st, nil
	default:
		log.Warn("using in-memory document store; documents do not survive restarts")
		return store.NewMemory(), nil
	}
}

func buildLocker(ctx context.Context, cfg config.Config) (lock.Locker, error) {
	switch cfg.Lock.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.Lock.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, err
		}
		log.WithField("addr", cfg.Lock.RedisAddr).Info("using Redis lock service")
		return lock.NewRedis(client), nil
	default:
		return lock.NewMemory(), nil
	}
}
