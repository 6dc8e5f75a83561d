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

	"github.com/bizhub-system/business-management/internal/config"
	"github.com/bizhub-system/business-management/internal/handler"
	"github.com/bizhub-system/business-management/internal/middleware"
	"github.com/bizhub-system/business-management/internal/model"
	"github.com/bizhub-system/business-management/internal/repository"
	"github.com/bizhub-system/business-management/internal/service"
	"github.com/bizhub-system/business-management/internal/service/worker"
	"github.com/bizhub-system/business-management/pkg/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logger.New(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zlog.Sync()

	if cfg.Database.AutoCreateDB {
		zlog.Info("检查数据库是否存在", zap.String("dbname", cfg.Database.DBName))
		if err := createDatabase(cfg); err != nil {
			zlog.Fatal("创建数据库失败", zap.Error(err))
		}
	}

	db, err := initDB(cfg)
	if err != nil {
		zlog.Fatal("连接数据库失败", zap.Error(err))
	}

	if cfg.Database.AutoMigrate {
		zlog.Info("执行数据库迁移")
		if err := autoMigrate(db); err != nil {
			zlog.Fatal("数据库迁移失败", zap.Error(err))
		}
	}

	// 仓库层
	businessRepo := repository.NewBusinessRepository(db)
	userRepo := repository.NewUserRepository(db)
	tenantUserRepo := repository.NewTenantUserRepository()
	moduleRepo := repository.NewModuleRepository(db)
	packageRepo := repository.NewPackageRepository(db)
	subscriptionRepo := repository.NewSubscriptionRepository(db)
	businessModuleRepo := repository.NewBusinessModuleRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	// 种子模块/套餐目录（幂等）
	if err := packageRepo.EnsureDefaultCatalog(); err != nil {
		zlog.Fatal("初始化模块套餐目录失败", zap.Error(err))
	}

	// 租户分区层
	partitionBackend := repository.NewPostgresPartitionBackend(db, cfg.Database)
	partitionManager := service.NewPartitionManager(partitionBackend, cfg.PartitionManager.ContextTimeout, cfg.PartitionManager.MaxHandles)
	partitionStore := service.NewPartitionStore(partitionBackend, partitionManager, zlog)
	contextSwitch := service.NewTenantContextSwitch(partitionManager)

	// 通知协作方
	var notifier service.Notifier = service.NoopNotifier{}
	if cfg.Notification.Enabled {
		notifier = service.NewWebhookNotifier(cfg.Notification.WebhookURL, cfg.Notification.Timeout, zlog)
	}

	// 服务层
	auditService := service.NewAuditService(auditRepo)
	identityService := service.NewIdentityService(userRepo, notifier, zlog)
	syncService := service.NewIdentitySyncService(
		identityService,
		businessRepo,
		tenantUserRepo,
		contextSwitch,
		auditService,
		zlog,
		cfg.Worker.MaxConcurrency,
	)
	entitlementService := service.NewEntitlementService(
		db,
		businessRepo,
		packageRepo,
		subscriptionRepo,
		businessModuleRepo,
		moduleRepo,
		auditService,
		notifier,
		zlog,
		cfg.Trial.Days,
	)
	provisioningService := service.NewProvisioningService(
		businessRepo,
		partitionStore,
		identityService,
		syncService,
		entitlementService,
		auditService,
		notifier,
		zlog,
	)
	businessDeleter := service.NewBusinessDeleter(
		db,
		businessRepo,
		userRepo,
		subscriptionRepo,
		businessModuleRepo,
		auditRepo,
		partitionStore,
		zlog,
	)
	authService := service.NewAuthService(userRepo, zlog, cfg.JWT.SecretKey, cfg.JWT.TokenExpiry)

	// 后台任务
	lifecycleWorker := worker.NewSubscriptionLifecycleWorker(
		subscriptionRepo,
		entitlementService,
		cfg.Worker.LifecycleCron,
		zlog,
	)
	reconciliationWorker := worker.NewMirrorReconciliationWorker(
		businessRepo,
		userRepo,
		tenantUserRepo,
		contextSwitch,
		syncService,
		cfg.Worker.ReconcileInterval,
		cfg.Worker.MaxConcurrency,
		zlog,
	)

	if cfg.Worker.Enabled {
		if err := lifecycleWorker.Start(); err != nil {
			zlog.Fatal("启动订阅生命周期任务失败", zap.Error(err))
		}
		defer lifecycleWorker.Stop()

		reconciliationWorker.Start()
		defer reconciliationWorker.Stop()
	} else {
		zlog.Info("后台任务已在配置中禁用")
	}

	// 处理层
	authHandler := handler.NewAuthHandler(authService)
	businessHandler := handler.NewBusinessHandler(businessRepo, provisioningService, businessDeleter)
	subscriptionHandler := handler.NewSubscriptionHandler(businessRepo, subscriptionRepo, packageRepo, entitlementService)
	userHandler := handler.NewUserHandler(businessRepo, identityService, syncService)
	catalogHandler := handler.NewCatalogHandler(moduleRepo, packageRepo)
	auditHandler := handler.NewAuditHandler(auditService)

	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}

	r := setupRoutes(cfg, authHandler, businessHandler, subscriptionHandler, userHandler, catalogHandler, auditHandler)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		zlog.Info("服务启动", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal("启动服务失败", zap.Error(err))
		}
	}()

	<-quit
	zlog.Info("服务关闭中")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zlog.Fatal("服务强制关闭", zap.Error(err))
	}

	zlog.Info("服务已退出")
}

func initDB(cfg *config.Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s TimeZone=%s",
		cfg.Database.Host,
		cfg.Database.Username,
		cfg.Database.Password,
		cfg.Database.DBName,
		cfg.Database.Port,
		cfg.Database.SSLMode,
		cfg.Database.Timezone,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	return db, nil
}

func createDatabase(cfg *config.Config) error {
	dsn := fmt.Sprintf("host=%s user=%s password=%s port=%d sslmode=%s TimeZone=%s",
		cfg.Database.Host,
		cfg.Database.Username,
		cfg.Database.Password,
		cfg.Database.Port,
		cfg.Database.SSLMode,
		cfg.Database.Timezone,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("failed to connect to postgres for database creation: %w", err)
	}

	var count int64
	err = db.Raw("SELECT COUNT(*) FROM pg_database WHERE datname = ?", cfg.Database.DBName).Scan(&count).Error
	if err != nil {
		return fmt.Errorf("failed to check database existence: %w", err)
	}

	if count == 0 {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}

		if _, err := sqlDB.Exec(fmt.Sprintf("CREATE DATABASE %s WITH ENCODING 'UTF8'", cfg.Database.DBName)); err != nil {
			return fmt.Errorf("failed to create database: %w", err)
		}

		log.Printf("Database '%s' created successfully", cfg.Database.DBName)
	}

	return nil
}

// autoMigrate 中央域表结构迁移
// 租户分区内的表由分区创建时各自迁移
func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.Business{},
		&model.User{},
		&model.BusinessUser{},
		&model.Module{},
		&model.Package{},
		&model.Subscription{},
		&model.BusinessModule{},
		&model.AuditEvent{},
	)
}

func setupRoutes(
	cfg *config.Config,
	authHandler *handler.AuthHandler,
	businessHandler *handler.BusinessHandler,
	subscriptionHandler *handler.SubscriptionHandler,
	userHandler *handler.UserHandler,
	catalogHandler *handler.CatalogHandler,
	auditHandler *handler.AuditHandler,
) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	// 认证相关路由（不需要认证）
	auth := r.Group("/api/v1/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.RefreshToken)
		auth.GET("/profile", middleware.JWTMiddleware(cfg.JWT.SecretKey), authHandler.Profile)
		auth.POST("/logout", middleware.JWTMiddleware(cfg.JWT.SecretKey), authHandler.Logout)
	}

	// 企业注册开通（对外入口，不需要认证）
	r.POST("/api/v1/businesses/register", businessHandler.Register)

	v1 := r.Group("/api/v1")
	v1.Use(middleware.JWTMiddleware(cfg.JWT.SecretKey))
	{
		businesses := v1.Group("/businesses")
		{
			businesses.GET("", businessHandler.ListBusinesses)
			businesses.GET(":id", businessHandler.GetBusiness)
			businesses.GET(":id/deletion-precheck", businessHandler.PreCheckDeletion)
			businesses.DELETE(":id", businessHandler.DeleteBusiness)

			// 订阅相关接口
			subscriptions := businesses.Group(":id/subscriptions")
			{
				subscriptions.POST("", subscriptionHandler.CreateSubscription)
				subscriptions.GET("", subscriptionHandler.ListSubscriptions)
				subscriptions.GET("/current", subscriptionHandler.GetCurrentSubscription)
				subscriptions.PUT("/package", subscriptionHandler.ChangePackage)
				subscriptions.DELETE("/current", subscriptionHandler.CancelSubscription)
			}

			businesses.GET(":id/modules", subscriptionHandler.GetActiveModules)

			// 审计相关接口
			audit := businesses.Group(":id/audit")
			{
				audit.GET("", auditHandler.ListAuditEvents)
			}
		}

		// 用户与成员关系接口
		users := v1.Group("/users")
		{
			users.POST("", userHandler.CreateUser)
			users.GET(":global_id", userHandler.GetUser)
			users.DELETE(":global_id", userHandler.PurgeUser)
			users.PUT(":global_id/profile", userHandler.UpdateProfile)
			users.GET(":global_id/memberships", userHandler.ListMemberships)
			users.POST(":global_id/businesses/:business_id", userHandler.AttachToBusiness)
			users.DELETE(":global_id/businesses/:business_id", userHandler.DetachFromBusiness)
			users.GET(":global_id/businesses/:business_id/tenant-identity", userHandler.ResolveInTenant)
		}

		// 目录接口
		catalog := v1.Group("/catalog")
		{
			catalog.GET("/modules", catalogHandler.ListModules)
			catalog.GET("/modules/:code", catalogHandler.GetModule)
			catalog.GET("/packages", catalogHandler.ListPackages)
			catalog.GET("/packages/:id", catalogHandler.GetPackage)
			catalog.PUT("/packages/:id/modules", catalogHandler.UpdatePackageModules)
		}

		// 价格试算
		v1.GET("/pricing/quote", subscriptionHandler.GetPriceQuote)
	}

	return r
}
