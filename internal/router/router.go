package router

import (
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/kiendt120702/ShopeeAPIBetacomSub-sub001/internal/controller"
	"github.com/kiendt120702/ShopeeAPIBetacomSub-sub001/internal/middleware"
)

// InitRoutes 注册所有路由
func InitRoutes(
	r *gin.Engine,
	authCtrl *controller.AuthController,
	mirrorCtrl *controller.MirrorController,
	syncCooldown time.Duration,
) {
	// 1. Swagger 文档路由
	// 访问 http://localhost:8080/swagger/index.html 即可查看
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// 2. API 路由组
	api := r.Group("/api")
	{
		auth := api.Group("/auth")
		{
			// GET /api/auth/login
			auth.GET("/login", authCtrl.LoginHandler)

			// GET /api/auth/callback
			auth.GET("/callback", authCtrl.CallbackHandler)

			// POST /api/auth/disconnect/:shop_id
			auth.POST("/disconnect/:shop_id", authCtrl.DisconnectHandler)
		}

		shops := api.Group("/shops")
		{
			// 镜像读路径：先读快照，过期自动触发后台同步
			shops.GET("/:shop_id/flash-sales", mirrorCtrl.ListFlashSales)
			shops.GET("/:shop_id/ad-campaigns", mirrorCtrl.ListAdCampaigns)
			shops.GET("/:shop_id/profile", mirrorCtrl.GetShopProfile)
		}

		// 手动触发同步，按 店铺+实体 冷却
		api.POST("/sync/:entity/:shop_id",
			middleware.SyncRateLimit(syncCooldown),
			mirrorCtrl.TriggerSync,
		)

		// 任务观测
		api.GET("/jobs", mirrorCtrl.ListJobs)
	}
}
