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
	"gorm.io/gorm"

	"blindbox_dev_v1_202608/internal/controller"
	"blindbox_dev_v1_202608/internal/middleware"
	"blindbox_dev_v1_202608/internal/model"
	"blindbox_dev_v1_202608/internal/repository"
	"blindbox_dev_v1_202608/internal/router"
	"blindbox_dev_v1_202608/internal/service"
	"blindbox_dev_v1_202608/internal/task"
	"blindbox_dev_v1_202608/pkg/database"
	"blindbox_dev_v1_202608/pkg/utils"
)

func main() {
	// 1. 初始化数据库
	db := initDatabase()

	// 2. 初始化依赖
	deps := initDependencies(db)

	// 3. 启动定时任务
	initTasks(deps)

	// 4. 初始化路由
	r := router.SetupRouter(deps.Controllers)

	// 5. 启动服务
	startServer(r)
}

// ==================== 依赖容器 ====================

// Dependencies 依赖容器
type Dependencies struct {
	DB          *gorm.DB
	Repos       *Repositories
	Services    *Services
	Controllers *router.Controllers
	Tasks       *task.TaskManager
}

// Repositories 仓库集合
type Repositories struct {
	Box         repository.BlindBoxRepository
	Item        repository.BlindBoxItemRepository
	Probability repository.ProbabilityConfigRepository
	CustomerBox repository.CustomerBlindBoxRepository
	Inventory   repository.InventoryItemRepository
	UnboxLog    repository.UnboxLogRepository
	UnboxUow    *repository.UnboxUnitOfWork
	ReviewUow   *repository.ReviewUnitOfWork
	Sellers     *repository.SellerDirectory
	Categories  *repository.CategoryDirectory
}

// Services 服务集合
type Services struct {
	BlindBox    *service.BlindBoxService
	Probability *service.ProbabilityService
	Unbox       *service.UnboxService
	UnboxLog    *service.UnboxLogService
}

// ==================== 初始化函数 ====================

// initDatabase 初始化数据库
// 审计日志表走分区 DDL，其余表 AutoMigrate
func initDatabase() *gorm.DB {
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		getEnv("DB_HOST", "localhost"),
		getEnv("DB_USER", "blindbox_admin"),
		getEnv("DB_PASSWORD", "1234"),
		getEnv("DB_NAME", "blindbox"),
		getEnv("DB_PORT", "5432"),
	)

	db := database.InitDB(dsn)
	middleware.RegisterAuditCallbacks(db)

	if err := database.QuickInit(db, []interface{}{
		// 目录
		&model.Seller{}, &model.Category{},
		// 盲盒
		&model.BlindBox{}, &model.BlindBoxItem{}, &model.ProbabilityConfig{},
		// 买家侧
		&model.CustomerBlindBox{}, &model.InventoryItem{},
	}); err != nil {
		log.Fatalf("数据库初始化失败: %v", err)
	}

	return db
}

// initDependencies 初始化所有依赖
func initDependencies(db *gorm.DB) *Dependencies {
	// -------- Repo 层 --------
	repos := initRepositories(db)

	// -------- 协作方 --------
	cache := utils.NewMemoryCache()
	clock := service.SystemClock{}
	notifier := service.NewWebhookNotifier(getEnv("NOTIFY_WEBHOOK_URL", ""))

	// -------- 业务服务 --------
	services := &Services{}
	services.UnboxLog = service.NewUnboxLogService(repos.UnboxLog)
	services.BlindBox = service.NewBlindBoxService(
		repos.Box, repos.Item, repos.ReviewUow,
		repos.Sellers, repos.Categories,
		notifier, cache, clock,
	)
	services.Probability = service.NewProbabilityService(
		repos.Probability, repos.Item, repos.Box, cache, clock,
	)
	services.Unbox = service.NewUnboxService(
		repos.UnboxUow, repos.Box, services.UnboxLog,
		notifier, cache, clock, service.SystemRand{},
	)

	// -------- Controller 层 --------
	controllers := &router.Controllers{
		BlindBox: controller.NewBlindBoxController(services.BlindBox, services.Probability),
		Unbox:    controller.NewUnboxController(services.Unbox),
		UnboxLog: controller.NewUnboxLogController(services.UnboxLog),
	}

	return &Dependencies{
		DB:          db,
		Repos:       repos,
		Services:    services,
		Controllers: controllers,
	}
}

// initRepositories 初始化所有仓库
func initRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Box:         repository.NewBlindBoxRepository(db),
		Item:        repository.NewBlindBoxItemRepository(db),
		Probability: repository.NewProbabilityConfigRepository(db),
		CustomerBox: repository.NewCustomerBlindBoxRepository(db),
		Inventory:   repository.NewInventoryItemRepository(db),
		UnboxLog:    repository.NewUnboxLogRepository(db),
		UnboxUow:    repository.NewUnboxUnitOfWork(db),
		ReviewUow:   repository.NewReviewUnitOfWork(db),
		Sellers:     repository.NewSellerDirectory(db),
		Categories:  repository.NewCategoryDirectory(db),
	}
}

// ==================== 定时任务 ====================

// initTasks 初始化定时任务
func initTasks(deps *Dependencies) {
	tm := task.NewTaskManager(&task.TaskManagerDeps{
		BoxRepo:     deps.Repos.Box,
		LogService:  deps.Services.UnboxLog,
		ProbService: deps.Services.Probability,
	}, nil)
	tm.Start()
	deps.Tasks = tm
}

// ==================== 服务启动 ====================

// startServer 启动服务
func startServer(r *gin.Engine) {
	port := getEnv("SERVER_PORT", "8080")

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	// 异步启动服务
	go func() {
		log.Printf("服务启动在 :%s", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("服务启动失败: %v", err)
		}
	}()

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("正在关闭服务...")

	// 优雅关闭，最多等待 30 秒
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("服务强制关闭: %v", err)
	}

	log.Println("服务已退出")
}

// ==================== 工具函数 ====================

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
