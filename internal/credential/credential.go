package credential

import (
	"context"
	"errors"
	"time"
)

// 凭证路径的错误分类
var (
	// ErrNoCredential 从未建立凭证，或存储损坏后被自愈清除；
	// 不可自动重试，前端提示"需要重新授权"
	ErrNoCredential = errors.New("credential: no credential for shop")

	// ErrRefreshFailed 授权方拒绝或无法完成刷新；
	// 旧凭证保留在存储里，留给手动重连路径决策
	ErrRefreshFailed = errors.New("credential: token refresh failed")
)

// Credential 单店铺的 OAuth 凭证
type Credential struct {
	ShopID       int64     `json:"shop_id"`
	MerchantID   int64     `json:"merchant_id,omitempty"` // CB 主账号场景下的次级主体
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int       `json:"expires_in"` // 签发时的有效期（秒）
	ExpiredAt    time.Time `json:"-"`          // 绝对过期时间，序列化用毫秒时间戳
}

// ExpiringWithin 是否已进入刷新缓冲期
func (c *Credential) ExpiringWithin(buffer time.Duration) bool {
	return !time.Now().Before(c.ExpiredAt.Add(-buffer))
}

// Store 凭证存储契约，构造时绑定到单个店铺
//
// 所有实现必须满足：
//   - Save 幂等，整体覆盖，不暴露部分写入的中间态
//   - Get 在从未 Save 过、或存储不可恢复（如解密失败）时返回 (nil, nil)，
//     后者还要自愈清掉坏数据，后续 Get 不能一直失败
//   - Clear 只清 token 字段，不得连带销毁主体的其他持久数据
type Store interface {
	Save(ctx context.Context, cred *Credential) error
	Get(ctx context.Context) (*Credential, error)
	Clear(ctx context.Context) error
}

// StoreFactory 按店铺构造对应的凭证存储
type StoreFactory func(shopID int64) Store
