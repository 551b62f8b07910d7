package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	config "github.com/phillip/labapp-server-go/config"
	"github.com/phillip/labapp-server-go/logger"
	middleware "github.com/phillip/labapp-server-go/middleware"
	routes "github.com/phillip/labapp-server-go/routes"
	services "github.com/phillip/labapp-server-go/services"
	"github.com/phillip/labapp-server-go/store"
	"github.com/phillip/labapp-server-go/store/memory"
	"github.com/phillip/labapp-server-go/store/mongostore"
	utils "github.com/phillip/labapp-server-go/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := logger.InitLogger(cfg.LogDir); err != nil {
		log.Fatalf("logger: %v", err)
	}
	logger.SetLogLevel(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Store ---
	var st store.Store
	if cfg.MongoURI != "" {
		if err := cfg.ConnectMongo(ctx); err != nil {
			logger.Error.Fatalf("%v", err)
		}
		defer func() {
			dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = cfg.MongoClient.Disconnect(dctx)
		}()
		ms := mongostore.New(cfg.MongoClient.Database(cfg.DBName), cfg.OpTimeout)
		if err := ms.EnsureIndexes(ctx); err != nil {
			logger.Error.Fatalf("ensure indexes: %v", err)
		}
		st = ms
		logger.Info.Printf("using mongo database %q", cfg.DBName)
	} else {
		logger.Warn.Println("MONGO_URI not set, using in-memory store; data is lost on restart")
		st = memory.New()
	}

	// --- Services ---
	weights := services.WeightsFrom(cfg.VoteWeights)
	resolver := services.NewEventResolver(st, st)
	presence := services.NewPresenceReconciler(st, st, cfg.PresenceIdle)
	deps := routes.Deps{
		Events:   services.NewEventService(st, st),
		Resolver: resolver,
		Voting:   services.NewVotingEngine(st, st, st, weights),
		Results:  services.NewResultsManager(resolver, st, st),
		Presence: presence,
	}
	cld, err := utils.NewCloudinary(cfg)
	if err != nil {
		logger.Error.Fatalf("%v", err)
	}
	if cld != nil {
		deps.Images = cld
	} else {
		logger.Warn.Println("cloudinary not configured, image uploads disabled")
	}

	scheduler, err := services.NewResetScheduler(presence, cfg.ResetHour, cfg.ResetMinute, cfg.ResetZone)
	if err != nil {
		logger.Error.Fatalf("%v", err)
	}
	scheduler.Start(ctx)

	// --- HTTP ---
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	// nil trusts no proxy: ClientIP is the socket address unless configured
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		logger.Error.Fatalf("TRUSTED_PROXIES: %v", err)
	}
	r.Use(gin.Recovery(), middleware.RequestID())
	corsCfg := cors.DefaultConfig()
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization", middleware.APIKeyHeader, middleware.RequestIDHeader)
	if len(cfg.CORSOrigins) == 0 || cfg.CORSOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.CORSOrigins
	}
	r.Use(cors.New(corsCfg))

	routes.SetupRoutes(r, cfg, deps)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info.Printf("listening on %s (weights %d/%d/%d)", cfg.Addr(), weights.First, weights.Second, weights.Third)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error.Printf("server error: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info.Println("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	scheduler.Stop()
	presence.Stop()
}
