package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"school-store/internal/auth"
	"school-store/internal/catalog"
	"school-store/internal/config"
	"school-store/internal/httpx"
	kafkax "school-store/internal/kafka"
	"school-store/internal/orders"
	"school-store/internal/postgres"
	"school-store/internal/redisx"
	"school-store/internal/reports"
	"school-store/internal/uploads"
	"school-store/internal/users"
	"school-store/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.New(logger.Options{
		Service: cfg.ServiceName,
		Env:     cfg.AppEnv,
		Level:   cfg.LogLevel,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Error("db connect", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := postgres.Migrate(ctx, db, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		log.Error("migrate", "error", err)
		os.Exit(1)
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Uploaded product images and payment proofs live on local disk.
	store, err := uploads.NewStore(cfg.UploadDir)
	if err != nil {
		log.Error("upload store", "error", err)
		os.Exit(1)
	}

	// Kafka producers
	pPlaced := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderPlaced, 1024)
	pPlaced.Start(ctx)
	pStatus := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderStatus, 1024)
	pStatus.Start(ctx)

	// Repos & services
	userRepo := &users.Repo{DB: db}
	catalogRepo := &catalog.Repo{DB: db}
	orderRepo := &orders.Repo{DB: db}
	reportRepo := &reports.Repo{DB: db}
	orderSvc := &orders.Service{Repo: orderRepo}

	tokens := auth.NewTokens(cfg.JWTSecret)
	authed := httpx.Authenticator(tokens, userRepo)
	storeHours := httpx.StoreHours(cfg.EnforceStoreHours, time.Now)

	router := httpx.NewRouter()
	router.Group(func(api chi.Router) {
		api.Use(httpx.RateLimit(rdb, cfg.RateLimitMax,
			time.Duration(cfg.RateLimitWindow)*time.Second))

		ah := &httpx.AuthHandler{Users: userRepo, Tokens: tokens}
		ah.Register(api, authed)

		ph := &httpx.ProductsHandler{Catalog: catalogRepo, Uploads: store}
		ph.Register(api, authed, httpx.RequireAdmin)

		oh := &httpx.OrdersHandler{
			Svc:      orderSvc,
			Repo:     orderRepo,
			Uploads:  store,
			Producer: pPlaced,
			Redis:    rdb,
			Service:  cfg.ServiceName,
		}
		oh.Register(api, authed, httpx.RequireCustomer, storeHours)

		admh := &httpx.AdminHandler{
			Orders:        orderRepo,
			Users:         userRepo,
			Reports:       reportRepo,
			Producer:      pStatus,
			Redis:         rdb,
			Service:       cfg.ServiceName,
			StorefrontURL: cfg.StorefrontURL,
		}
		admh.Register(api, authed, httpx.RequireAdmin)
	})

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	// graceful shutdown
	go func() {
		log.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("listen", "error", err)
			os.Exit(1)
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	pPlaced.Close() // close inbox, flush & close writer
	pStatus.Close()
	cancel() // stop producer loops
	pPlaced.WaitClosed()
	pStatus.WaitClosed()
}
