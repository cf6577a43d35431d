package model

import (
	"time"
)

type BaseModel struct {
	ID        int64     `gorm:"primary_key;AUTO_INCREMENT" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EntityType 镜像实体类型
// 每种类型对应一张镜像表和一个 Shopee 远端接口
type EntityType string

const (
	EntityFlashSale   EntityType = "flash_sale"
	EntityAdCampaign  EntityType = "ad_campaign"
	EntityShopProfile EntityType = "shop_profile"
)

// Valid 校验实体类型是否合法
func (e EntityType) Valid() bool {
	switch e {
	case EntityFlashSale, EntityAdCampaign, EntityShopProfile:
		return true
	}
	return false
}

// AllEntityTypes 所有支持镜像的实体类型
func AllEntityTypes() []EntityType {
	return []EntityType{EntityFlashSale, EntityAdCampaign, EntityShopProfile}
}
