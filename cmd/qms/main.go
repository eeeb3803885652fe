package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bitfantasy/nimo-qms/internal/config"
	"github.com/bitfantasy/nimo-qms/internal/middleware"
	"github.com/bitfantasy/nimo-qms/internal/qms/entity"
	"github.com/bitfantasy/nimo-qms/internal/qms/handler"
	"github.com/bitfantasy/nimo-qms/internal/qms/repository"
	"github.com/bitfantasy/nimo-qms/internal/qms/service"
	"github.com/bitfantasy/nimo-qms/internal/qms/sse"
	"github.com/bitfantasy/nimo-qms/internal/shared/feishu"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// 加载 .env 文件
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化日志
	zapLogger, err := initLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting nimo-qms service",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
	)

	if cfg.JWT.Secret == "" {
		zapLogger.Fatal("JWT secret is required (JWT_SECRET)")
	}

	// 初始化数据库
	db, err := initDatabase(cfg.Database)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := db.AutoMigrate(entity.AllModels()...); err != nil {
		zapLogger.Fatal("AutoMigrate qms tables failed", zap.Error(err))
	}

	repos := repository.NewRepositories(db)
	if err := repos.DefectCode.SeedDefaults(context.Background()); err != nil {
		zapLogger.Warn("Seed default defect codes failed", zap.Error(err))
	}

	// Redis 不可用时看板不走缓存
	redisClient := initRedis(cfg.Redis)
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		zapLogger.Warn("Redis unavailable, KPI cache disabled", zap.Error(err))
		redisClient.Close()
		redisClient = nil
	}

	deps := service.Deps{
		Repos:   repos,
		Redis:   redisClient,
		Hub:     sse.NewHub(zapLogger),
		Logger:  zapLogger,
		Quality: cfg.Quality,
	}

	// MinIO 索赔证据存储
	if cfg.MinIO.Endpoint != "" {
		store, err := initStorage(cfg.MinIO)
		if err != nil {
			zapLogger.Warn("MinIO unavailable, claim evidence upload disabled", zap.Error(err))
		} else {
			deps.Store = store
		}
	}

	// 飞书安灯通知
	if cfg.Feishu.Enabled() && cfg.Feishu.AndonChatID != "" {
		client := feishu.NewClient(cfg.Feishu.AppID, cfg.Feishu.AppSecret, feishu.WithBaseURL(cfg.Feishu.BaseURL))
		deps.Notifier = service.NewFeishuNotifier(client, cfg.Feishu.AndonChatID, cfg.Feishu.DashboardURL)
		zapLogger.Info("Feishu andon notifications enabled", zap.String("chat_id", cfg.Feishu.AndonChatID))
	}

	services, err := service.NewServices(deps)
	if err != nil {
		zapLogger.Fatal("Failed to init services", zap.Error(err))
	}
	handlers := handler.NewHandlers(services, deps.Hub, handler.Options{
		FeishuVerificationToken: cfg.Feishu.VerificationToken,
		Logger:                  zapLogger,
	})

	// 设置Gin模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建路由
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(zapLogger))
	router.Use(middleware.CORS())
	router.Use(middleware.RequestID())
	router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/api/v1/qms/sse"})))

	registerRoutes(router, handlers, cfg, zapLogger)

	// 创建HTTP服务器
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: 0, // SSE 长连接
	}

	go func() {
		zapLogger.Info("Server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}
	// 等待未完成的飞书通知
	services.Andon.Wait()
	if redisClient != nil {
		redisClient.Close()
	}

	zapLogger.Info("Server exited")
}

func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config

	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	switch cfg.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}

	return zapCfg.Build()
}

func initDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return db, nil
}

func initRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func initStorage(cfg config.MinIOConfig) (*service.MinioStore, error) {
	store, err := service.NewMinioStore(cfg)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func registerRoutes(r *gin.Engine, h *handler.Handlers, cfg *config.Config, zapLogger *zap.Logger) {
	// 健康检查
	r.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/health/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// 版本信息
	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":    Version,
			"build_time": BuildTime,
		})
	})

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"code": 40400, "message": "Not found"})
	})

	v1 := r.Group("/api/v1/qms")
	{
		// 飞书回调（无需登录，需配置 verification token）
		if !h.RegisterWebhooks(v1) {
			zapLogger.Info("Feishu card callback disabled: verification token not configured")
		}

		authorized := v1.Group("")
		authorized.Use(middleware.JWTAuth(cfg.JWT.Secret))
		h.RegisterRoutes(authorized)
	}
}
