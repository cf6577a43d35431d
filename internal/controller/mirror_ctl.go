package controller

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kiendt120702/ShopeeAPIBetacomSub-sub001/internal/model"
	"github.com/kiendt120702/ShopeeAPIBetacomSub-sub001/internal/repository"
	"github.com/kiendt120702/ShopeeAPIBetacomSub-sub001/internal/service"
)

type MirrorController struct {
	mirrorService *service.MirrorService
	jobRepo       repository.SyncJobRepository
}

func NewMirrorController(mirrorService *service.MirrorService, jobRepo repository.SyncJobRepository) *MirrorController {
	return &MirrorController{mirrorService: mirrorService, jobRepo: jobRepo}
}

// ==================== 读镜像 ====================

// ListFlashSales
// @Summary 读限时折扣列表
// @Description 先读本地镜像，过期则触发后台同步；响应里带 sync 元信息
// @Tags Mirror (镜像模块)
// @Produce json
// @Param shop_id path int true "Shopee 店铺 ID"
// @Param wait query bool false "从未同步过时是否等待首次同步"
// @Success 200 {object} map[string]interface{}
// @Router /api/shops/{shop_id}/flash-sales [get]
func (ctrl *MirrorController) ListFlashSales(c *gin.Context) {
	shopID, ok := ctrl.shopID(c)
	if !ok {
		return
	}
	opts := service.ReadOptions{WaitFirstSync: c.Query("wait") == "true"}

	items, meta, err := ctrl.mirrorService.GetFlashSales(c.Request.Context(), shopID, opts)
	if err != nil {
		ctrl.readError(c, err, meta)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    200,
		"message": "获取成功",
		"data": gin.H{
			"items": items,
			"sync":  meta,
		},
	})
}

// ListAdCampaigns
// @Summary 读广告活动列表
// @Tags Mirror (镜像模块)
// @Produce json
// @Param shop_id path int true "Shopee 店铺 ID"
// @Param wait query bool false "从未同步过时是否等待首次同步"
// @Success 200 {object} map[string]interface{}
// @Router /api/shops/{shop_id}/ad-campaigns [get]
func (ctrl *MirrorController) ListAdCampaigns(c *gin.Context) {
	shopID, ok := ctrl.shopID(c)
	if !ok {
		return
	}
	opts := service.ReadOptions{WaitFirstSync: c.Query("wait") == "true"}

	items, meta, err := ctrl.mirrorService.GetAdCampaigns(c.Request.Context(), shopID, opts)
	if err != nil {
		ctrl.readError(c, err, meta)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    200,
		"message": "获取成功",
		"data": gin.H{
			"items": items,
			"sync":  meta,
		},
	})
}

// GetShopProfile
// @Summary 读店铺资料
// @Tags Mirror (镜像模块)
// @Produce json
// @Param shop_id path int true "Shopee 店铺 ID"
// @Param wait query bool false "从未同步过时是否等待首次同步"
// @Success 200 {object} map[string]interface{}
// @Router /api/shops/{shop_id}/profile [get]
func (ctrl *MirrorController) GetShopProfile(c *gin.Context) {
	shopID, ok := ctrl.shopID(c)
	if !ok {
		return
	}
	opts := service.ReadOptions{WaitFirstSync: c.Query("wait") == "true"}

	profile, meta, err := ctrl.mirrorService.GetShopProfile(c.Request.Context(), shopID, opts)
	if err != nil {
		ctrl.readError(c, err, meta)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    200,
		"message": "获取成功",
		"data": gin.H{
			"profile": profile,
			"sync":    meta,
		},
	})
}

// ==================== 手动同步 ====================

// TriggerSync
// @Summary 手动触发同步
// @Description 立即为指定店铺的指定实体排一个同步任务（带冷却限流与在途去重）
// @Tags Sync (同步模块)
// @Produce json
// @Param entity path string true "实体类型" Enums(flash_sale, ad_campaign, shop_profile)
// @Param shop_id path int true "Shopee 店铺 ID"
// @Success 200 {object} map[string]interface{}
// @Failure 429 {object} map[string]interface{} "冷却中"
// @Router /api/sync/{entity}/{shop_id} [post]
func (ctrl *MirrorController) TriggerSync(c *gin.Context) {
	shopID, ok := ctrl.shopID(c)
	if !ok {
		return
	}

	entity := model.EntityType(c.Param("entity"))
	job, err := ctrl.mirrorService.TriggerSync(c.Request.Context(), shopID, entity)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    200,
		"message": "同步任务已入队",
		"data": gin.H{
			"job_id":      job.ID,
			"status":      job.Status,
			"retry_count": job.RetryCount,
		},
	})
}

// ==================== 任务观测 ====================

// ListJobs
// @Summary 查询同步任务
// @Tags Sync (同步模块)
// @Produce json
// @Param shop_id query int false "Shopee 店铺 ID"
// @Param entity query string false "实体类型"
// @Param status query string false "任务状态" Enums(pending, running, succeeded, failed)
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} map[string]interface{}
// @Router /api/jobs [get]
func (ctrl *MirrorController) ListJobs(c *gin.Context) {
	shopID, _ := strconv.ParseInt(c.Query("shop_id"), 10, 64)
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	filter := repository.SyncJobFilter{
		ShopID:   shopID,
		Entity:   model.EntityType(c.Query("entity")),
		Status:   model.SyncJobStatus(c.Query("status")),
		Page:     page,
		PageSize: pageSize,
	}

	jobs, total, err := ctrl.jobRepo.List(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    500,
			"message": "查询任务失败: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    200,
		"message": "获取成功",
		"data": gin.H{
			"items": jobs,
			"total": total,
		},
	})
}

// ==================== 辅助 ====================

func (ctrl *MirrorController) shopID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("shop_id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": "无效的店铺 ID",
		})
		return 0, false
	}
	return id, true
}

// readError 读路径错误响应
// 首次同步失败单独给 502，方便前端提示"平台暂时不可用"
func (ctrl *MirrorController) readError(c *gin.Context, err error, meta *service.SyncMeta) {
	if errors.Is(err, service.ErrFirstSyncFailed) {
		c.JSON(http.StatusBadGateway, gin.H{
			"code":    502,
			"message": err.Error(),
			"data":    gin.H{"sync": meta},
		})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{
		"code":    500,
		"message": "读取镜像失败: " + err.Error(),
	})
}
