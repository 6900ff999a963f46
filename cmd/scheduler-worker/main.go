package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lesson-scheduler/internal/models"
	"github.com/noah-isme/lesson-scheduler/internal/repository"
	"github.com/noah-isme/lesson-scheduler/internal/scheduler"
	"github.com/noah-isme/lesson-scheduler/internal/service"
	"github.com/noah-isme/lesson-scheduler/pkg/cache"
	"github.com/noah-isme/lesson-scheduler/pkg/config"
	"github.com/noah-isme/lesson-scheduler/pkg/database"
	"github.com/noah-isme/lesson-scheduler/pkg/logger"
	reqidmiddleware "github.com/noah-isme/lesson-scheduler/pkg/middleware/requestid"
	"github.com/noah-isme/lesson-scheduler/pkg/response"
	"github.com/noah-isme/lesson-scheduler/pkg/schedule"
)

// Entry point for the scheduler worker: loads config, wires the Data
// Gateway and Driver, serves an ops-only HTTP surface, and runs the
// cron-driven tick loop until signalled to shut down.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	metricsSvc := service.NewMetricsService()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to initialise database", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, driver lock falls back to in-process mutex", "error", err)
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	lessons := repository.NewLessonRepository(db)
	links := repository.NewLinkRepository(db)
	groups := repository.NewGroupRepository(db)
	subjects := repository.NewSubjectRepository(db)
	users := repository.NewUserRepository(db)

	timeModel := scheduler.TimeModel{
		SecondsPerUnit:    cfg.TimeModel.SecondsPerUnit,
		TimePerDay:        cfg.TimeModel.TimePerDay,
		DayStartOffset:    cfg.TimeModel.DayStartOffset,
		DesiredLessonTime: cfg.TimeModel.DesiredLessonTime,
	}

	gateway := service.NewGatewayService(db, lessons, links, logr, timeModel)

	popCfg := scheduler.PopulationConfig{
		PopSize:                     cfg.Scheduler.PopSize,
		NumParents:                  cfg.Scheduler.NumParents,
		NumOffspring:                cfg.Scheduler.NumOffspring,
		GuaranteedSurvivingParents:  cfg.Scheduler.GuaranteedSurvivingParents,
		MutationAmount:              cfg.Scheduler.MutationAmount,
		RandomLessonSkipProbability: cfg.Scheduler.RandomLessonSkipProbability,
		TimePerDay:                  cfg.TimeModel.TimePerDay,
		// Each Driver dispatch runs the GA over exactly one day (runDay picks
		// that day independently per spec §4.6); LookAheadPeriod only decides
		// how many such independent one-day runs get dispatched, not how many
		// days any single Timetable spans.
		Days: 1,
	}

	driverCfg := service.DefaultDriverConfig()
	driverCfg.LookAheadPeriod = cfg.Driver.LookAheadPeriod
	driverCfg.Iterations = cfg.Driver.Iterations
	driverCfg.FeederEnabled = cfg.Driver.FeederEnabled
	driverCfg.Population = popCfg
	driverCfg.TimeModel = timeModel
	driverCfg.LockTTL = cfg.Driver.LockTTL

	driver := service.NewDriverService(driverCfg, gateway, lessons, metricsSvc, logr, redisClient)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		metricsSvc.ObserveHTTPRequest(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
	})

	r.GET("/health", func(c *gin.Context) { response.JSON(c, http.StatusOK, gin.H{"status": "ok"}, nil) })
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, gin.H{"status": "ready"}, nil)
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))
	registerPprof(r)

	internalGroup := r.Group(cfg.APIPrefix)
	internalGroup.GET("/driver/status", func(c *gin.Context) {
		response.JSON(c, http.StatusOK, driver.Status(), nil)
	})
	internalGroup.GET("/groups", func(c *gin.Context) {
		list, err := groups.List(c.Request.Context())
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, list, nil)
	})
	internalGroup.GET("/subjects", func(c *gin.Context) {
		list, err := subjects.List(c.Request.Context())
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, list, nil)
	})
	internalGroup.GET("/users", func(c *gin.Context) {
		list, total, err := users.List(c.Request.Context(), models.UserFilter{Page: 1, PageSize: 100})
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, list, &models.Pagination{Page: 1, PageSize: 100, TotalCount: total})
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	ticker, err := schedule.NewTicker(cfg.Driver.CronExpr, func(ctx context.Context, firedAt time.Time) error {
		return driver.Tick(ctx, rng, firedAt)
	}, logr)
	if err != nil {
		logr.Sugar().Fatalw("failed to build driver ticker", "error", err)
	}
	ticker.Start(ctx)
	defer ticker.Stop()

	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: r}
	go func() {
		logr.Sugar().Infow("scheduler worker starting", "addr", srv.Addr, "env", cfg.Env, "cron", cfg.Driver.CronExpr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}

func registerPprof(r *gin.Engine) {
	group := r.Group("/debug/pprof")
	group.GET("/", gin.WrapF(pprof.Index))
	group.GET("/cmdline", gin.WrapF(pprof.Cmdline))
	group.GET("/profile", gin.WrapF(pprof.Profile))
	group.POST("/symbol", gin.WrapF(pprof.Symbol))
	group.GET("/symbol", gin.WrapF(pprof.Symbol))
	group.GET("/trace", gin.WrapF(pprof.Trace))
	group.GET("/allocs", gin.WrapH(pprof.Handler("allocs")))
	group.GET("/block", gin.WrapH(pprof.Handler("block")))
	group.GET("/goroutine", gin.WrapH(pprof.Handler("goroutine")))
	group.GET("/heap", gin.WrapH(pprof.Handler("heap")))
	group.GET("/mutex", gin.WrapH(pprof.Handler("mutex")))
	group.GET("/threadcreate", gin.WrapH(pprof.Handler("threadcreate")))
}
