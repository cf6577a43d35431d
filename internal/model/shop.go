package model

import (
	"time"
)

// Shop 店铺状态常量
const (
	ShopStatusPending  = 0 // 待授权
	ShopStatusActive   = 1 // 正常
	ShopStatusInactive = 2 // 已停用
)

// Token 状态常量
const (
	TokenStatusValid   = "valid"        // 有效
	TokenStatusExpired = "expired"      // 已过期
	TokenStatusInvalid = "auth_invalid" // 需重新授权
)

// Shop 店铺主记录（principal）
// 凭证字段与店铺资料共用一张表：断开授权只清空 token 字段，店铺行保留
type Shop struct {
	BaseModel

	// 1. 核心身份
	// ShopeeShopID 对应 Shopee 开放平台的 shop_id，区分本表主键 ID
	ShopeeShopID int64  `gorm:"uniqueIndex" json:"shopee_shop_id"`
	MerchantID   int64  `gorm:"index" json:"merchant_id"` // CB 主账号下的 merchant_id，可为 0
	ShopName     string `gorm:"size:100" json:"shop_name"`
	Region       string `gorm:"size:20;not null;default:'VN'" json:"region"`

	// 2. 店铺状态
	Status int `gorm:"default:0;comment:状态 0-待授权 1-正常 2-已停用" json:"status"`

	// 3. API Token
	// 周期检测 token 是否过期，断开授权时仅清空，不删行
	TokenStatus    string     `gorm:"index;size:20;default:'auth_invalid'" json:"token_status"`
	AccessToken    string     `gorm:"size:512" json:"-"`
	RefreshToken   string     `gorm:"size:512" json:"-"`
	TokenExpiresAt *time.Time `json:"token_expires_at"`          // Token 具体过期时间点
	TokenExpiresIn int        `gorm:"default:0" json:"-"`        // 签发时的有效期（秒），重建凭证用
}

func (Shop) TableName() string {
	return "shops"
}
