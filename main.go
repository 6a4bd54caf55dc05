package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	apirest "github.com/kasuganosora/tilewalk/api/rest"
	"github.com/kasuganosora/tilewalk/api/sse"
	"github.com/kasuganosora/tilewalk/api/ws"
	"github.com/kasuganosora/tilewalk/audit"
	"github.com/kasuganosora/tilewalk/cache"
	"github.com/kasuganosora/tilewalk/config"
	dbadapter "github.com/kasuganosora/tilewalk/db"
	"github.com/kasuganosora/tilewalk/game/nav"
	"github.com/kasuganosora/tilewalk/game/terrain"
	"github.com/kasuganosora/tilewalk/game/world"
	mw "github.com/kasuganosora/tilewalk/middleware"
	"github.com/kasuganosora/tilewalk/model"
	"github.com/kasuganosora/tilewalk/resource"
	"github.com/kasuganosora/tilewalk/scheduler"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

func main() {
	cfgPath := "config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	if cfg.Server.AdminKeyHash == "" {
		logger.Warn("server.admin_key_hash is not set; tokens cannot be minted")
	}

	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	logger.Info("DB initialized", zap.String("mode", cfg.Database.Mode))

	auditSvc := audit.New(db, logger)
	defer auditSvc.Stop(context.Background())

	cacheConfig := cache.CacheConfig{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
		LocalPubSubBuf:  cfg.Cache.LocalPubSubBuf,
	}
	c, err := cache.NewCache(cacheConfig)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	defer c.Close()
	pubsub, err := cache.NewPubSub(cacheConfig)
	if err != nil {
		log.Fatalf("pubsub: %v", err)
	}
	logger.Info("Cache initialized", zap.Bool("redis", cfg.Cache.RedisAddr != ""))

	table, err := terrain.TableFromConfig(cfg.Terrain)
	if err != nil {
		log.Fatalf("terrain: %v", err)
	}

	sched := scheduler.New(logger)
	defer sched.Stop()

	wm, err := world.NewWorldManager(world.Config{
		Scheduler: sched,
		DB:        db,
		Observer:  world.NewEventObserver(c, pubsub, logger),
		Nav: nav.Options{
			BaseSpeed:    cfg.Navigation.BaseSpeed,
			CostScale:    cfg.Navigation.CostScale,
			FallbackCost: cfg.Navigation.FallbackCost,
		},
		PatrolTick: time.Duration(cfg.Navigation.PatrolTickMs) * time.Millisecond,
		Logger:     logger,
	})
	if err != nil {
		log.Fatalf("world: %v", err)
	}
	defer wm.StopAll()

	loader := resource.NewLoader(cfg.Maps.Dir, table, logger)
	files, err := loader.LoadDir()
	if err != nil {
		logger.Warn("map load warning", zap.Error(err))
	}
	for _, mf := range files {
		if err := wm.ApplyMapFile(loader, mf); err != nil {
			logger.Warn("map skipped", zap.String("map", mf.Name), zap.Error(err))
		}
	}
	logger.Info("maps loaded", zap.Strings("maps", wm.Maps()))

	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst,
		"/health", "/metrics", "/sse", "/ws"))

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok", "maps": len(wm.Maps())})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	auth := mw.Auth(cfg.Security, c)
	adminIPs := mw.IPWhitelist(cfg.Security.AdminIPs)

	authH := apirest.NewAuthHandler(c, cfg.Security, logger)
	actorH := apirest.NewActorHandler(wm, auditSvc, c, logger)
	mapH := apirest.NewMapHandler(wm)
	hub := ws.NewHub(logger)
	adminH := apirest.NewAdminHandler(wm, sched, hub)

	api := r.Group("/api")
	{
		authG := api.Group("/auth")
		authG.POST("/token", adminIPs, apirest.AdminAuth(cfg.Server.AdminKeyHash), authH.Token)
		authG.POST("/revoke", auth, authH.Revoke)

		api.GET("/maps", mapH.List)
		api.GET("/maps/:name", mapH.Detail)
		api.POST("/path", mapH.FindPath)

		actorsG := api.Group("/actors")
		actorsG.Use(auth)
		actorsG.GET("", actorH.List)
		actorsG.POST("", actorH.Spawn)
		actorsG.GET("/:id", actorH.Get)
		actorsG.DELETE("/:id", actorH.Despawn)
		actorsG.PUT("/:id/target", actorH.SetTarget)
		actorsG.POST("/:id/displace", actorH.Displace)
		actorsG.PUT("/:id/inventory", actorH.SetInventory)
		actorsG.POST("/:id/mine", actorH.Mine)
		actorsG.PUT("/:id/patrol", actorH.SetPatrol)
		actorsG.DELETE("/:id/patrol", actorH.ClearPatrol)
		actorsG.GET("/:id/trail", actorH.Trail)
		actorsG.GET("/:id/commands", actorH.Commands)

		adminG := api.Group("/admin")
		adminG.Use(adminIPs, auth)
		adminG.GET("/scheduler", adminH.Scheduler)
		adminG.GET("/sessions", adminH.Sessions)
	}

	sseH := sse.NewHandler(pubsub, logger)
	r.GET("/sse", auth, sseH.ServeSSE)

	// ---- WebSocket ----
	wsRouter := ws.NewRouter(logger)
	ws.RegisterNavHandlers(wsRouter, wm, logger)
	wsH := ws.NewHandler(pubsub, hub, cfg.Security, wsRouter, logger)
	r.GET("/ws", auth, wsH.ServeWS)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.Maps.Watch {
		g.Go(func() error {
			err := loader.Watch(gctx, func(mf *resource.MapFile) {
				if err := wm.ApplyMapFile(loader, mf); err != nil {
					logger.Warn("map reload rejected", zap.String("map", mf.Name), zap.Error(err))
					return
				}
				hub.Broadcast("map_reloaded", gin.H{"map": mf.Name})
			})
			if err != nil {
				logger.Warn("map watcher stopped", zap.Error(err))
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")
		hub.CloseAll(5 * time.Second)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", zap.Error(err))
	}
}
