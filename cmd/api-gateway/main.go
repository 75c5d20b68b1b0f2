package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	_ "github.com/noah-isme/course-cert-api/api/swagger"
	"github.com/noah-isme/course-cert-api/internal/handler"
	"github.com/noah-isme/course-cert-api/internal/middleware"
	"github.com/noah-isme/course-cert-api/internal/models"
	"github.com/noah-isme/course-cert-api/internal/repository"
	"github.com/noah-isme/course-cert-api/internal/service"
	"github.com/noah-isme/course-cert-api/pkg/cache"
	"github.com/noah-isme/course-cert-api/pkg/config"
	"github.com/noah-isme/course-cert-api/pkg/database"
	"github.com/noah-isme/course-cert-api/pkg/export"
	"github.com/noah-isme/course-cert-api/pkg/jobs"
	"github.com/noah-isme/course-cert-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/course-cert-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/course-cert-api/pkg/middleware/requestid"
)

// @title Course Certification API
// @version 1.0.0
// @description Course places, evaluation and certificate finalisation
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	metrics := service.NewMetricsService()
	checks := map[string]handler.ReadinessCheck{}

	store, closeStore, err := openStore(ctx, cfg, logr, metrics, checks)
	if err != nil {
		return err
	}
	defer closeStore()

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close() //nolint:errcheck
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, cfg.Cache.Namespace, logr)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.TTL, logr, cfg.Cache.Enabled && redisClient != nil)

	events := service.NewEventService(eventSinks(cfg, logr, redisClient), cacheSvc, metrics, logr, jobs.QueueConfig{
		Workers:       cfg.Events.Workers,
		BufferSize:    cfg.Events.BufferSize,
		MaxRetries:    cfg.Events.MaxRetries,
		RetryDelay:    cfg.Events.RetryDelay,
		MaxRetryDelay: cfg.Events.MaxDelay,
		Logger:        logr,
	})

	validate := service.NewValidator()
	authSvc := service.NewAuthService(logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	roleSvc := service.NewRoleService(store, logr, events)
	courseSvc := service.NewCourseService(store, validate, logr, events, cacheSvc, service.CourseConfig{
		Limits: models.Limits{
			MaxEvaluatorsPerCourse: cfg.Certification.MaxEvaluatorsPerCourse,
			MaxPlacesPerCourse:     cfg.Certification.MaxPlacesPerCourse,
		},
		ContractURI:   cfg.Certification.ContractURI,
		BaseCourseFee: cfg.Certification.BaseCourseFee,
		CacheTTL:      cfg.Cache.TTL,
	})
	enrollmentSvc := service.NewEnrollmentService(store, validate, logr, events)
	evaluationSvc := service.NewEvaluationService(store, validate, logr, events, cacheSvc, cfg.Cache.TTL)
	certificateSvc := service.NewCertificateService(store, validate, logr, events)
	treasurySvc := service.NewTreasuryService(store, repository.NewPayoutLog(logr), validate, logr, events)
	reportSvc := service.NewReportService(store, logr, export.NewCSVExporter(), export.NewPDFExporter())

	if cfg.Certification.BootstrapAdmin != "" {
		if err := roleSvc.Bootstrap(ctx, cfg.Certification.BootstrapAdmin); err != nil {
			return fmt.Errorf("bootstrap admin: %w", err)
		}
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics, "/metrics"))

	registerRoutes(r, cfg.APIPrefix, routeDeps{
		logger:       logr,
		auth:         authSvc,
		roles:        roleSvc,
		metrics:      metrics,
		courses:      handler.NewCourseHandler(courseSvc),
		enrollments:  handler.NewEnrollmentHandler(enrollmentSvc),
		evaluations:  handler.NewEvaluationHandler(evaluationSvc),
		certificates: handler.NewCertificateHandler(certificateSvc),
		treasury:     handler.NewTreasuryHandler(treasurySvc),
		reports:      handler.NewReportHandler(reportSvc),
		roleAdmin:    handler.NewRoleHandler(roleSvc),
		probes:       handler.NewMetricsHandler(metrics, checks),
	})

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Deliveries still buffered at shutdown are drained with a live context.
		events.Start(context.WithoutCancel(gctx))
		<-gctx.Done()
		events.Stop()
		return nil
	})
	g.Go(func() error {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env), zap.String("store", cfg.Store.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logr.Info("server shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// openStore selects the course state backend and registers its readiness check.
func openStore(ctx context.Context, cfg *config.Config, logr *zap.Logger, metrics *service.MetricsService, checks map[string]handler.ReadinessCheck) (service.Store, func(), error) {
	switch cfg.Store.Driver {
	case config.StorePostgres:
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		store := repository.NewPostgresStore(db, logr, repository.WithQueryObserver(metrics.ObserveDBQuery))
		if cfg.Store.AutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = db.Close()
				return nil, nil, err
			}
		}
		checks["store"] = db.PingContext
		return store, func() { _ = db.Close() }, nil
	case config.StoreMemory, "":
		logr.Warn("using in-memory store; state is lost on restart")
		return repository.NewMemoryStore(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}
}

func eventSinks(cfg *config.Config, logr *zap.Logger, client *redis.Client) []service.EventSink {
	sinks := []service.EventSink{service.NewLogSink(logr)}
	if client != nil {
		sinks = append(sinks, repository.NewRedisEventBus(client, cfg.Events.Channel))
	}
	return sinks
}
