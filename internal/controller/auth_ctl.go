package controller

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kiendt120702/ShopeeAPIBetacomSub-sub001/internal/service"
)

type AuthController struct {
	authService *service.AuthService
}

func NewAuthController(s *service.AuthService) *AuthController {
	return &AuthController{authService: s}
}

// LoginHandler
// @Summary 获取 Shopee 授权链接
// @Description 生成带 state 校验的店铺授权跳转链接
// @Tags Auth (授权模块)
// @Accept json
// @Produce json
// @Param region query string false "站点区域，如 SG/MY/TH"
// @Success 200 {object} map[string]interface{} "授权链接"
// @Failure 500 {object} map[string]interface{} "错误信息"
// @Router /api/auth/login [get]
func (ctrl *AuthController) LoginHandler(c *gin.Context) {
	region := c.DefaultQuery("region", "SG")

	url, err := ctrl.authService.GenerateAuthURL(region)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    500,
			"message": "生成授权链接失败: " + err.Error(),
		})
		return
	}

	// 由于网络限制，前端只能展示链接不能直接重定向，复制到浏览器手动跳转
	c.JSON(http.StatusOK, gin.H{
		"code":    200,
		"message": "获取成功",
		"data":    gin.H{"auth_url": url},
	})
}

// CallbackHandler
// @Summary Shopee 授权回调
// @Description 接收 Shopee 返回的 code 和 shop_id，换取 token 并入库
// @Tags Auth (授权模块)
// @Accept json
// @Produce json
// @Param code query string true "授权码"
// @Param shop_id query int true "Shopee 店铺 ID"
// @Param state query string true "安全校验码"
// @Success 200 {object} map[string]interface{} "授权成功信息"
// @Failure 400 {object} map[string]interface{} "拒绝授权/参数错误"
// @Router /api/auth/callback [get]
func (ctrl *AuthController) CallbackHandler(c *gin.Context) {
	code := c.Query("code")
	state := c.Query("state")
	shopIDStr := c.Query("shop_id")

	if code == "" || state == "" || shopIDStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": "缺少必要参数 code / state / shop_id",
		})
		return
	}

	shopID, err := strconv.ParseInt(shopIDStr, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": "shop_id 必须是数字",
		})
		return
	}

	if err := ctrl.authService.HandleCallback(c.Request.Context(), code, state, shopID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    500,
			"message": "授权失败: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    200,
		"message": "店铺绑定成功",
		"data":    gin.H{"shop_id": shopID},
	})
}

// DisconnectHandler
// @Summary 断开店铺授权
// @Description 清除店铺凭证，镜像数据保留
// @Tags Auth (授权模块)
// @Produce json
// @Param shop_id path int true "Shopee 店铺 ID"
// @Success 200 {object} map[string]interface{}
// @Router /api/auth/disconnect/{shop_id} [post]
func (ctrl *AuthController) DisconnectHandler(c *gin.Context) {
	shopID, err := strconv.ParseInt(c.Param("shop_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": "无效的店铺 ID",
		})
		return
	}

	if err := ctrl.authService.Disconnect(c.Request.Context(), shopID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    500,
			"message": "断开授权失败: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    200,
		"message": "已断开授权",
	})
}
