package model

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
)

// ==================== 镜像表 ====================
//
// 每种远端集合一张镜像表：热字段用于列表/排序，RawPayload 保存最近一次
// 成功拉取的完整快照，SyncedAt 为该批次的统一拉取完成时间。
// 镜像行只由 SyncWorker 的 upsert 写入，读路径永不删除。

// FlashSaleMirror 限时折扣（Flash Sale）镜像
type FlashSaleMirror struct {
	BaseModel

	// 联合唯一索引：同一店铺下一个 flash_sale_id 只有一行
	ShopID      int64 `gorm:"index;uniqueIndex:idx_flash_sale_key;not null" json:"shop_id"`
	FlashSaleID int64 `gorm:"uniqueIndex:idx_flash_sale_key;not null" json:"flash_sale_id"`

	// 热字段
	TimeslotID       int64 `gorm:"index" json:"timeslot_id"`
	Status           int   `gorm:"index" json:"status"` // 1-未开始 2-进行中 3-已结束
	Type             int   `json:"type"`
	StartTime        int64 `json:"start_time"` // Shopee 返回的秒级时间戳
	EndTime          int64 `json:"end_time"`
	ItemCount        int   `gorm:"default:0" json:"item_count"`
	EnabledItemCount int   `gorm:"default:0" json:"enabled_item_count"`

	// 原始数据
	RawPayload datatypes.JSON `gorm:"type:jsonb" json:"raw_payload"`
	SyncedAt   time.Time      `gorm:"index" json:"synced_at"`
}

func (FlashSaleMirror) TableName() string {
	return "flash_sale_mirrors"
}

// AdCampaignMirror 广告活动镜像
type AdCampaignMirror struct {
	BaseModel

	ShopID     int64 `gorm:"index;uniqueIndex:idx_ad_campaign_key;not null" json:"shop_id"`
	CampaignID int64 `gorm:"uniqueIndex:idx_ad_campaign_key;not null" json:"campaign_id"`

	// 热字段
	Name        string        `gorm:"size:255" json:"name"`
	AdType      string        `gorm:"size:32;index" json:"ad_type"` // search / discovery / auto
	Status      string        `gorm:"size:32;index" json:"status"`  // ongoing / paused / ended
	DailyBudget float64       `gorm:"type:decimal(12,2);default:0" json:"daily_budget"`
	ItemIDs     pq.Int64Array `gorm:"type:bigint[]" json:"item_ids"`

	RawPayload datatypes.JSON `gorm:"type:jsonb" json:"raw_payload"`
	SyncedAt   time.Time      `gorm:"index" json:"synced_at"`
}

func (AdCampaignMirror) TableName() string {
	return "ad_campaign_mirrors"
}

// ShopProfileMirror 店铺资料镜像（每店铺一行）
type ShopProfileMirror struct {
	BaseModel

	ShopID int64 `gorm:"uniqueIndex;not null" json:"shop_id"`

	// 热字段
	ShopName      string  `gorm:"size:100" json:"shop_name"`
	Region        string  `gorm:"size:20" json:"region"`
	ShopStatus    string  `gorm:"size:32" json:"shop_status"` // NORMAL / FROZEN / BANNED
	ItemCount     int     `gorm:"default:0" json:"item_count"`
	FollowerCount int     `gorm:"default:0" json:"follower_count"`
	RatingStar    float64 `gorm:"type:decimal(3,2);default:0" json:"rating_star"`
	Description   string  `gorm:"type:text" json:"description"`

	RawPayload datatypes.JSON `gorm:"type:jsonb" json:"raw_payload"`
	SyncedAt   time.Time      `gorm:"index" json:"synced_at"`
}

func (ShopProfileMirror) TableName() string {
	return "shop_profile_mirrors"
}
