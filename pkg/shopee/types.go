package shopee

import "encoding/json"

// baseResponse Shopee v2 统一响应外壳
type baseResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

// apiErr 把响应外壳转成 *APIError（error 为空表示成功，返回 nil）
func (r *baseResponse) apiErr() error {
	if r.Error == "" {
		return nil
	}
	return &APIError{Code: r.Error, Message: r.Message, RequestID: r.RequestID}
}

// TokenResponse 换取/刷新 token 的响应
type TokenResponse struct {
	baseResponse
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpireIn     int    `json:"expire_in"` // 秒
	ShopID       int64  `json:"shop_id,omitempty"`
	MerchantID   int64  `json:"merchant_id,omitempty"`
}

// ==================== Flash Sale ====================

// FlashSale 限时折扣场次
type FlashSale struct {
	FlashSaleID      int64 `json:"flash_sale_id"`
	TimeslotID       int64 `json:"timeslot_id"`
	Status           int   `json:"status"` // 1-未开始 2-进行中 3-已结束
	Type             int   `json:"type"`
	StartTime        int64 `json:"start_time"`
	EndTime          int64 `json:"end_time"`
	ItemCount        int   `json:"item_count"`
	EnabledItemCount int   `json:"enabled_item_count"`

	// Raw 保留远端原始快照，入库时写进镜像行的 RawPayload
	Raw json.RawMessage `json:"-"`
}

type flashSaleListResponse struct {
	baseResponse
	Response struct {
		TotalCount    int               `json:"total_count"`
		FlashSaleList []json.RawMessage `json:"flash_sale_list"`
	} `json:"response"`
}

// ==================== 广告活动 ====================

// AdCampaign 广告活动
type AdCampaign struct {
	CampaignID  int64   `json:"campaign_id"`
	Name        string  `json:"name"`
	AdType      string  `json:"ad_type"`
	Status      string  `json:"status"`
	DailyBudget float64 `json:"daily_budget"`
	ItemIDList  []int64 `json:"item_id_list"`

	Raw json.RawMessage `json:"-"`
}

type adCampaignListResponse struct {
	baseResponse
	Response struct {
		TotalCount   int               `json:"total_count"`
		CampaignList []json.RawMessage `json:"campaign_list"`
	} `json:"response"`
}

// ==================== 店铺资料 ====================

// ShopInfo 店铺资料
type ShopInfo struct {
	ShopName      string  `json:"shop_name"`
	Region        string  `json:"region"`
	Status        string  `json:"status"` // NORMAL / FROZEN / BANNED
	ItemCount     int     `json:"item_count"`
	FollowerCount int     `json:"follower_count"`
	RatingStar    float64 `json:"rating_star"`
	Description   string  `json:"description"`

	Raw json.RawMessage `json:"-"`
}

type shopInfoResponse struct {
	baseResponse
	Response json.RawMessage `json:"response"`
}
