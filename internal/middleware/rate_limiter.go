package middleware

import (
	"fmt"
	"sync"
	"time"

	"github.com/kiendt120702/ShopeeAPIBetacomSub-sub001/internal/model"
)

// ==================== SyncRateLimiter 同步限流器 ====================

// SyncRateLimiter 手动同步限流器
// 防止用户频繁点"立即刷新"导致 Shopee API 限流
type SyncRateLimiter struct {
	locks sync.Map // key -> *lockEntry
}

// lockEntry 锁条目
type lockEntry struct {
	lastTime time.Time
	mu       sync.Mutex
}

// 全局限流器实例
var globalLimiter = &SyncRateLimiter{}

// GetLimiter 获取全局限流器
func GetLimiter() *SyncRateLimiter {
	return globalLimiter
}

// ==================== 限流检查 ====================

// CheckResult 检查结果
type CheckResult struct {
	Allowed    bool          // 是否允许
	RetryAfter time.Duration // 剩余冷却时间
}

// Check 检查是否允许执行
// key: 限流键，如 "shop:123:flash_sale"
// interval: 冷却间隔
func (r *SyncRateLimiter) Check(key string, interval time.Duration) CheckResult {
	actual, _ := r.locks.LoadOrStore(key, &lockEntry{})
	entry := actual.(*lockEntry)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(entry.lastTime)

	if elapsed < interval {
		return CheckResult{
			Allowed:    false,
			RetryAfter: interval - elapsed,
		}
	}

	entry.lastTime = now
	return CheckResult{Allowed: true}
}

// CheckOnly 仅检查，不更新时间
func (r *SyncRateLimiter) CheckOnly(key string, interval time.Duration) CheckResult {
	actual, ok := r.locks.Load(key)
	if !ok {
		return CheckResult{Allowed: true}
	}

	entry := actual.(*lockEntry)
	entry.mu.Lock()
	defer entry.mu.Unlock()

	elapsed := time.Since(entry.lastTime)
	if elapsed < interval {
		return CheckResult{
			Allowed:    false,
			RetryAfter: interval - elapsed,
		}
	}

	return CheckResult{Allowed: true}
}

// Reset 重置指定 key 的限流
func (r *SyncRateLimiter) Reset(key string) {
	r.locks.Delete(key)
}

// ==================== Key 生成工具 ====================

// ShopSyncKey 生成店铺级同步 Key
func ShopSyncKey(shopID int64, entity model.EntityType) string {
	return fmt.Sprintf("shop:%d:%s", shopID, entity)
}
