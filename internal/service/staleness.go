package service

import "time"

// IsStale 新鲜度判定（纯函数）
//
//	stale = (now - syncedAt) > ttl
//
// 从未同步过（syncedAt 为 nil）视为无限旧，永远过期。
// 边界：恰好在 syncedAt + ttl 这一刻尚不算过期，过了才算。
func IsStale(syncedAt *time.Time, ttl time.Duration) bool {
	if syncedAt == nil {
		return true
	}
	return time.Since(*syncedAt) > ttl
}
