package app

import (
	"context"
	"edu_backend/internal/config"
	"edu_backend/internal/controller"
	"edu_backend/internal/repository"
	"edu_backend/internal/service"
	"edu_backend/pkg/configwatcher"
	"edu_backend/pkg/database"
	"edu_backend/pkg/logger"
	"edu_backend/pkg/monitoring"
	"edu_backend/pkg/security"
	"edu_backend/pkg/tracing"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const configDir = "configs"

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	services        *services
	limiter         *security.IPRateLimiter
	tracer          *sdktrace.TracerProvider
	configCallbacks []func(*config.Config)
}

type repositories struct {
	user         *repository.UserRepository
	course       *repository.CourseRepository
	enrollment   *repository.EnrollmentRepository
	activity     *repository.ActivityRepository
	attempt      *repository.AttemptRepository
	file         *repository.FileRepository
	notification *repository.NotificationRepository
}

type services struct {
	auth               *service.AuthService
	storage            *service.StorageService
	catalog            *service.CatalogService
	enrollment         *service.EnrollmentService
	activity           *service.ActivityService
	attempt            *service.AttemptService
	notification       *service.NotificationService
	notificationHub    *service.NotificationHub
	notificationWorker *service.NotificationWorker
}

type controllers struct {
	auth         *controller.AuthController
	catalog      *controller.CatalogController
	enrollment   *controller.EnrollmentController
	activity     *controller.ActivityController
	attempt      *controller.AttemptController
	notification *controller.NotificationController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		user:         repository.NewUserRepository(db),
		course:       repository.NewCourseRepository(db),
		enrollment:   repository.NewEnrollmentRepository(db),
		activity:     repository.NewActivityRepository(db),
		attempt:      repository.NewAttemptRepository(db),
		file:         repository.NewFileRepository(db),
		notification: repository.NewNotificationRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, db *gorm.DB, rdb *redis.Client) *services {
	s := &services{}

	s.auth = service.NewAuthService(repos.user, cfg)
	s.storage = service.NewStorageService(&cfg.Storage)
	s.catalog = service.NewCatalogService(repos.course)

	s.notification = service.NewNotificationService(repos.notification, rdb, cfg.Notification)
	s.notificationHub = service.NewNotificationHub(rdb, cfg.Notification.Channel)
	s.notificationHub.OnRead = s.notification.MarkRead
	if rdb != nil {
		s.notificationWorker = service.NewNotificationWorker(repos.notification, rdb, s.notificationHub, cfg.Notification)
	}

	s.activity = service.NewActivityService(db, repos.activity, repos.attempt, repos.course, repos.file, s.storage)
	s.attempt = service.NewAttemptService(db, repos.activity, repos.attempt, s.notification)
	s.enrollment = service.NewEnrollmentService(db, repos.enrollment, repos.course, s.notification)

	return s
}

func (a *App) initControllers(s *services) *controllers {
	return &controllers{
		auth:         controller.NewAuthController(s.auth),
		catalog:      controller.NewCatalogController(s.catalog),
		enrollment:   controller.NewEnrollmentController(s.enrollment),
		activity:     controller.NewActivityController(s.activity),
		attempt:      controller.NewAttemptController(s.attempt),
		notification: controller.NewNotificationController(s.notification, s.notificationHub),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	router.Use(a.limiter.Middleware())

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// startBackgroundTasks 启动通知推送、限流清理和配置监听，ctx 取消后全部退出
func (a *App) startBackgroundTasks(ctx context.Context, wg *sync.WaitGroup) {
	s := a.services

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.notificationHub.Run(ctx)
	}()

	if s.notificationWorker != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.notificationWorker.Run(ctx)
		}()
	}

	go a.limiter.Cleanup(ctx)

	configFile := filepath.Join(configDir, "config.yaml")
	err := configwatcher.WatchConfig(configFile, func(newCfg *config.Config) {
		for _, cb := range a.configCallbacks {
			cb(newCfg)
		}
	}, ctx.Done())
	if err != nil {
		logger.Log.Warn("Config watcher disabled", zap.Error(err))
	}
}

// registerReloadCallbacks 热更新只覆盖日志级别、通知开关和限流配额
func (a *App) registerReloadCallbacks() {
	a.RegisterConfigCallback(func(cfg *config.Config) {
		logger.SetLevel(cfg)
	})
	a.RegisterConfigCallback(func(cfg *config.Config) {
		a.services.notification.SetEnabled(cfg.Notification.Enabled)
		logger.Log.Info("Notification delivery toggled", zap.Bool("enabled", cfg.Notification.Enabled))
	})
	a.RegisterConfigCallback(func(cfg *config.Config) {
		a.limiter.Update(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute)
	})
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)
	defer logger.Log.Sync()

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
		log.Fatalf("Failed to initialize database: %v", err)
	}

	if cfg.ForceMigrate || cfg.Server.Mode != gin.ReleaseMode {
		if err := database.Migrate(db); err != nil {
			logger.Log.Fatal("Failed to migrate database", zap.Error(err))
		}
	}
	if cfg.MigrateOnly {
		return &App{Config: cfg, DB: db}
	}

	// Redis 不可用时通知仍然落库，只是不入队，推送退化为本实例投递
	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Warn("Redis unavailable, notification queue disabled", zap.Error(err))
		rdb = nil
	}

	app := &App{
		Config:  cfg,
		DB:      db,
		Redis:   rdb,
		limiter: security.NewIPRateLimiter(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute),
	}

	repos := app.initRepositories(db)
	app.services = app.initServices(repos, cfg, db, rdb)
	controllers := app.initControllers(app.services)

	// 监控初始化
	monitoring.Init()

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer(cfg.Tracing.ServiceName, cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracer = tp
	}

	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	app.Router = router

	app.setupMiddlewares(router, cfg)
	app.registerRoutes(router, controllers, cfg)

	if cfg.Storage.Type == "local" {
		router.Static("/uploads", cfg.Storage.LocalPath)
	}

	app.registerReloadCallbacks()

	return app
}

func (a *App) Run() {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	a.startBackgroundTasks(ctx, &wg)

	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	// 启动服务器
	go func() {
		logger.Log.Info("Server running", zap.String("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("listen failed", zap.Error(err))
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")

	// 先停通知 worker 和 WebSocket 连接
	cancel()
	wg.Wait()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}

	if a.tracer != nil {
		if err := a.tracer.Shutdown(shutdownCtx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	if a.Redis != nil {
		a.Redis.Close()
	}

	logger.Log.Info("Server exiting")
}
