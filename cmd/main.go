package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/kiendt120702/ShopeeAPIBetacomSub-sub001/internal/config"
	"github.com/kiendt120702/ShopeeAPIBetacomSub-sub001/internal/controller"
	"github.com/kiendt120702/ShopeeAPIBetacomSub-sub001/internal/credential"
	"github.com/kiendt120702/ShopeeAPIBetacomSub-sub001/internal/model"
	"github.com/kiendt120702/ShopeeAPIBetacomSub-sub001/internal/repository"
	"github.com/kiendt120702/ShopeeAPIBetacomSub-sub001/internal/router"
	"github.com/kiendt120702/ShopeeAPIBetacomSub-sub001/internal/service"
	"github.com/kiendt120702/ShopeeAPIBetacomSub-sub001/internal/task"
	"github.com/kiendt120702/ShopeeAPIBetacomSub-sub001/pkg/database"
	"github.com/kiendt120702/ShopeeAPIBetacomSub-sub001/pkg/shopee"
)

func main() {
	// 1. 加载配置
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("配置校验失败: %v", err)
	}

	// 2. 初始化数据库
	db := initDatabase(cfg)

	// 3. 初始化依赖
	deps := initDependencies(cfg, db)

	// 4. 启动后台任务
	startTasks(deps)

	// 5. 初始化路由
	r := gin.Default()
	router.InitRoutes(r, deps.Controllers.Auth, deps.Controllers.Mirror, cfg.SyncCooldown)

	// 6. 启动服务（阻塞直到收到退出信号）
	startServer(cfg, r, deps)
}

// ==================== 依赖容器 ====================

// Dependencies 依赖容器
type Dependencies struct {
	DB          *gorm.DB
	Repos       *Repositories
	Services    *Services
	Controllers *Controllers
	Tasks       *Tasks
}

// Repositories 仓库集合
type Repositories struct {
	Shop    repository.ShopRepository
	Mirror  repository.MirrorRepository
	SyncJob repository.SyncJobRepository
}

// Services 服务集合
type Services struct {
	Auth        *service.AuthService
	Mirror      *service.MirrorService
	Credentials *credential.Manager
}

// Controllers 控制器集合
type Controllers struct {
	Auth   *controller.AuthController
	Mirror *controller.MirrorController
}

// Tasks 后台任务集合
type Tasks struct {
	SyncWorker *task.SyncWorker
	TokenTask  *task.TokenTask
}

// ==================== 初始化函数 ====================

// initDatabase 初始化数据库
func initDatabase(cfg *config.Config) *gorm.DB {
	return database.InitDB(
		cfg.DatabaseDSN,
		// Shop & 凭证
		&model.Shop{},
		// 镜像
		&model.FlashSaleMirror{}, &model.AdCampaignMirror{}, &model.ShopProfileMirror{},
		// 任务队列
		&model.SyncJob{},
	)
}

// initDependencies 初始化所有依赖
func initDependencies(cfg *config.Config, db *gorm.DB) *Dependencies {
	// -------- Repo 层 --------
	repos := &Repositories{
		Shop:   repository.NewShopRepository(db),
		Mirror: repository.NewMirrorRepository(db),
		SyncJob: repository.NewSyncJobRepository(db, cfg.MaxRetries, repository.BackoffPolicy{
			Base: cfg.BackoffBase,
			Cap:  cfg.BackoffCap,
		}),
	}

	// -------- 平台客户端 --------
	client := shopee.NewClient(cfg.APIBaseURL, cfg.PartnerID, cfg.PartnerKey, cfg.JobTimeout)

	// -------- 凭证存储后端 --------
	factory := buildStoreFactory(cfg, db)

	// -------- 业务服务 --------
	authSvc := service.NewAuthService(client, repos.Shop, repos.SyncJob, factory, cfg.RedirectURL)
	credManager := credential.NewManager(factory, authSvc, cfg.RefreshBuffer)
	mirrorSvc := service.NewMirrorService(repos.Mirror, repos.SyncJob, cfg)

	services := &Services{
		Auth:        authSvc,
		Mirror:      mirrorSvc,
		Credentials: credManager,
	}

	// -------- Controller 层 --------
	controllers := &Controllers{
		Auth:   controller.NewAuthController(authSvc),
		Mirror: controller.NewMirrorController(mirrorSvc, repos.SyncJob),
	}

	// -------- 后台任务 --------
	tasks := &Tasks{
		SyncWorker: task.NewSyncWorker(
			repos.SyncJob, repos.Mirror, credManager, client,
			cfg.WorkerCount, cfg.WorkerPoll, cfg.JobTimeout,
		),
		TokenTask: task.NewTokenTask(repos.Shop, credManager, cfg.RefreshBuffer),
	}

	return &Dependencies{
		DB:          db,
		Repos:       repos,
		Services:    services,
		Controllers: controllers,
		Tasks:       tasks,
	}
}

// buildStoreFactory 按配置选择凭证存储后端
// memory 后端的存储必须跨调用复用同一实例，用注册表缓存；
// file / db 后端无进程内状态，按需新建即可
func buildStoreFactory(cfg *config.Config, db *gorm.DB) credential.StoreFactory {
	switch cfg.CredentialBackend {
	case "memory":
		var stores sync.Map
		return func(shopID int64) credential.Store {
			actual, _ := stores.LoadOrStore(shopID, credential.NewMemoryStore(shopID))
			return actual.(credential.Store)
		}
	case "file":
		return func(shopID int64) credential.Store {
			return credential.NewEncryptedFileStore(shopID, cfg.CredentialDir, cfg.CredentialPassphrase, cfg.KDFIterations)
		}
	case "db":
		return func(shopID int64) credential.Store {
			return credential.NewDBStore(db, shopID)
		}
	default:
		log.Fatalf("未知的凭证存储后端: %s (可选: memory | file | db)", cfg.CredentialBackend)
		return nil
	}
}

// ==================== 后台任务 ====================

// startTasks 启动后台任务
func startTasks(deps *Dependencies) {
	deps.Tasks.SyncWorker.Start()
	deps.Tasks.TokenTask.Start()
	log.Println("后台任务已启动")
}

// ==================== 服务启动 ====================

// startServer 启动 HTTP 服务并处理优雅退出
func startServer(cfg *config.Config, r *gin.Engine, deps *Dependencies) {
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// 异步启动服务
	go func() {
		log.Printf("服务启动，监听端口 %s", cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("服务启动失败: %v", err)
		}
	}()

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("收到退出信号，正在关闭服务...")

	// 先停后台任务，避免关机途中还在认领新任务
	deps.Tasks.TokenTask.Stop()
	deps.Tasks.SyncWorker.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("服务关闭异常: %v", err)
	}

	log.Println("服务已退出")
}
