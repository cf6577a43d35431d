package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kiendt120702/ShopeeAPIBetacomSub-sub001/internal/model"
)

// ==================== 同步限流中间件 ====================

// SyncRateLimit 手动同步限流中间件
// 按 店铺 + 实体类型 维度冷却
//
// 使用示例:
//
//	router.POST("/api/sync/:entity/:shop_id",
//	    middleware.SyncRateLimit(60*time.Second),
//	    syncCtl.TriggerSync,
//	)
func SyncRateLimit(interval time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		shopIDStr := c.Param("shop_id")
		if shopIDStr == "" {
			shopIDStr = c.Query("shop_id")
		}

		shopID, err := strconv.ParseInt(shopIDStr, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    400,
				"message": "无效的店铺 ID",
			})
			c.Abort()
			return
		}

		entity := model.EntityType(c.Param("entity"))
		if !entity.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    400,
				"message": "未知实体类型: " + string(entity),
			})
			c.Abort()
			return
		}

		key := ShopSyncKey(shopID, entity)
		result := GetLimiter().Check(key, interval)
		if !result.Allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"code":    429,
				"message": formatRetryMessage(result.RetryAfter),
				"data": gin.H{
					"retry_after": int(result.RetryAfter.Seconds()),
					"entity":      entity,
				},
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// formatRetryMessage 格式化重试提示信息
func formatRetryMessage(d time.Duration) string {
	seconds := int(d.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	if seconds < 60 {
		return fmt.Sprintf("同步冷却中，请 %d 秒后重试", seconds)
	}
	minutes := seconds / 60
	remaining := seconds % 60
	if remaining == 0 {
		return fmt.Sprintf("同步冷却中，请 %d 分钟后重试", minutes)
	}
	return fmt.Sprintf("同步冷却中，请 %d 分 %d 秒后重试", minutes, remaining)
}
