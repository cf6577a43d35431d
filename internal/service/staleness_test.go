package service

import (
	"testing"
	"time"
)

func TestIsStale(t *testing.T) {
	ttl := 5 * time.Minute

	// 从未同步过
	if !IsStale(nil, ttl) {
		t.Error("syncedAt 为 nil 应视为过期")
	}

	// 刚同步完
	now := time.Now()
	if IsStale(&now, ttl) {
		t.Error("刚同步完不应过期")
	}

	// 边界内侧：299 秒前
	inside := time.Now().Add(-299 * time.Second)
	if IsStale(&inside, ttl) {
		t.Error("299s < 300s TTL，不应过期")
	}

	// 边界外侧：301 秒前
	outside := time.Now().Add(-301 * time.Second)
	if !IsStale(&outside, ttl) {
		t.Error("301s > 300s TTL，应过期")
	}

	// 很久以前
	old := time.Now().Add(-24 * time.Hour)
	if !IsStale(&old, ttl) {
		t.Error("一天前的快照应过期")
	}
}
