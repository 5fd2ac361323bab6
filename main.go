package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"

	"greenhouse/bots"
	"greenhouse/components"
	"greenhouse/config"
	"greenhouse/db"
	"greenhouse/logging"
	"greenhouse/metrics"
	"greenhouse/middleware"
	"greenhouse/models"
	"greenhouse/mq"
	"greenhouse/ratelim"
	"greenhouse/rdx"
	"greenhouse/repository"
	"greenhouse/reviews"
	"greenhouse/routes"
	"greenhouse/runtimefeed"
	"greenhouse/snapshots"
	"greenhouse/subscriptions"
	"greenhouse/validation"
)

func main() {
	cfg, err := config.Load()
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := db.Connect(ctx, cfg.MongoURI)
	if err != nil {
		log.WithError(err).Fatal("mongo unavailable")
	}
	defer func() {
		dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Disconnect(dctx)
	}()
	database := client.Database(cfg.MongoDatabase)
	if err := db.EnsureIndexes(ctx, database); err != nil {
		log.WithError(err).Fatal("ensure indexes")
	}

	rdb, err := rdx.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		log.WithError(err).Fatal("redis unavailable")
	}
	defer rdb.Close()

	hub := runtimefeed.NewHub(log)
	go hub.Run()

	rateLimiter := ratelim.NewRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst)
	sweepStop := make(chan struct{})
	go rateLimiter.Run(sweepStop)

	emitter := mq.NewEmitter(rdb, log)
	go func() {
		if err := hub.Forward(ctx, emitter); err != nil {
			log.WithError(err).Error("runtime feed stopped")
		}
	}()

	router := setupRouter(cfg, log, database, rdb, emitter, hub, rateLimiter)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}).Handler(router)
	handler := middleware.AccessLog(log)(middleware.SecurityHeaders(metrics.InstrumentHandler(corsHandler)))

	server := &http.Server{
		Addr:              cfg.Port,
		Handler:           handler,
		ReadTimeout:       7 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
	}
	server.RegisterOnShutdown(func() {
		log.Info("stopping runtime feed")
		hub.Stop()
		close(sweepStop)
	})

	go func() {
		log.WithField("addr", cfg.Port).Info("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("listen")
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
		return
	}
	log.Info("server stopped")
}

// setupRouter wires repositories, services and handlers into a router.
func setupRouter(cfg config.Config, log *logrus.Logger, database *mongo.Database, rdb redis.UniversalClient, emitter *mq.Emitter, hub *runtimefeed.Hub, rl *ratelim.RateLimiter) *httprouter.Router {
	componentRepo := repository.NewMongoComponentRepository(database)
	botRepo := repository.NewMongoBotRepository(database)
	subscriptionRepo := repository.NewMongoSubscriptionRepository(database)
	snapshotRepo := repository.NewMongoSnapshotRepository(database)
	reviewRepo := repository.NewMongoReviewRepository(database)
	userRepo := repository.NewMongoUserRepository(database)

	v := validation.New()
	pictures := models.PictureURLs{CDNURL: cfg.CDNURL, GreenhouseURL: cfg.GreenhouseURL}
	cache := rdx.NewSnapshotCache(rdb, cfg.SnapshotCacheTTL)

	projector := snapshots.NewProjector(snapshots.Deps{
		Components:    componentRepo,
		Users:         userRepo,
		Subscriptions: subscriptionRepo,
		Snapshots:     snapshotRepo,
		Events:        emitter,
		Cache:         cache,
		Log:           log,
	})
	subs := subscriptions.NewService(subscriptions.Deps{
		Bots:          botRepo,
		Components:    componentRepo,
		Subscriptions: subscriptionRepo,
		Users:         userRepo,
		Projector:     projector,
		Validator:     v,
		Log:           log,
	})

	h := routes.Handlers{
		Components: components.NewHandler(components.NewService(components.Deps{
			Components: componentRepo,
			Bots:       botRepo,
			Users:      userRepo,
			Validator:  v,
			Pictures:   pictures,
			Log:        log,
		}), log),
		Bots: bots.NewHandler(bots.NewService(bots.Deps{
			Bots:          botRepo,
			Components:    componentRepo,
			Subscriptions: subscriptionRepo,
			Users:         userRepo,
			Projector:     projector,
			Owners:        subs,
			Validator:     v,
			Pictures:      pictures,
			Log:           log,
		}), log),
		Subscriptions: subscriptions.NewHandler(subs, log),
		Reviews: reviews.NewHandler(reviews.NewService(reviews.Deps{
			Reviews: reviewRepo,
			Users:   userRepo,
			Targets: map[models.InstanceType]reviews.Target{
				models.InstanceComponent: reviews.ComponentTarget(componentRepo),
				models.InstanceBot:       reviews.BotTarget(botRepo),
			},
			Validator:     v,
			AdminUsername: cfg.AdminUsername,
			Log:           log,
		}), log),
		Runtime: snapshots.NewHandler(snapshots.NewReader(snapshotRepo, cache, log), log),
		Feed:    hub,
	}

	router := httprouter.New()
	routes.RoutesWrapper(router, h, routes.Guards{
		Auth:    middleware.NewAuth(cfg.JWTSecret),
		Limiter: rl,
		Timeout: cfg.RequestTimeout,
	})
	return router
}
