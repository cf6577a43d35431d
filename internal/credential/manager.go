package credential

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"
)

// Refresher 对授权方执行一次 token 刷新
type Refresher interface {
	Refresh(ctx context.Context, cred *Credential) (*Credential, error)
}

// RefresherFunc 函数适配器
type RefresherFunc func(ctx context.Context, cred *Credential) (*Credential, error)

func (f RefresherFunc) Refresh(ctx context.Context, cred *Credential) (*Credential, error) {
	return f(ctx, cred)
}

// Manager 凭证生命周期管理
//
// Shopee 的 refresh_token 一次性使用，同店铺并发刷新会把 token 刷坏，
// 因此刷新按店铺经 singleflight 串行化：后到的调用等待并复用在途结果，
// 不会发出第二次刷新请求。
type Manager struct {
	factory   StoreFactory
	refresher Refresher
	buffer    time.Duration // 过期前多久开始刷新

	group singleflight.Group
}

// NewManager 创建生命周期管理器
func NewManager(factory StoreFactory, refresher Refresher, buffer time.Duration) *Manager {
	return &Manager{
		factory:   factory,
		refresher: refresher,
		buffer:    buffer,
	}
}

// StoreFor 取指定店铺的凭证存储
func (m *Manager) StoreFor(shopID int64) Store {
	return m.factory(shopID)
}

// GetValidCredential 取一个可用的凭证，必要时先刷新
//
// 返回错误语义：
//   - ErrNoCredential: 从未授权（或已断开），需要重新走授权流程
//   - ErrRefreshFailed: 刷新被拒或网络失败；旧凭证保留在存储里不清除
func (m *Manager) GetValidCredential(ctx context.Context, shopID int64) (*Credential, error) {
	store := m.factory(shopID)

	cred, err := store.Get(ctx)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, ErrNoCredential
	}

	// 还没进缓冲期，直接用
	if !cred.ExpiringWithin(m.buffer) {
		return cred, nil
	}

	// 进入缓冲期：按店铺合并并发刷新
	v, err, _ := m.group.Do(strconv.FormatInt(shopID, 10), func() (interface{}, error) {
		return m.refreshLocked(ctx, store)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Credential), nil
}

// refreshLocked 在 singleflight 保护下执行刷新
func (m *Manager) refreshLocked(ctx context.Context, store Store) (*Credential, error) {
	// 双重检查：排队期间可能已有一轮刷新完成
	cred, err := store.Get(ctx)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, ErrNoCredential
	}
	if !cred.ExpiringWithin(m.buffer) {
		return cred, nil
	}

	refreshed, err := m.refresher.Refresh(ctx, cred)
	if err != nil {
		// 失败时旧凭证原样保留，手动重连路径再决定去留
		return nil, fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}

	if err := store.Save(ctx, refreshed); err != nil {
		return nil, fmt.Errorf("刷新后的凭证入库失败: %w", err)
	}

	return refreshed, nil
}
