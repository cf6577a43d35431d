package utils

import (
	"sync"
	"time"
)

// 授权 state 的一次性缓存
//
// state 只在"生成授权链接 -> 回调"这个窗口内有效，
// 消费即销毁，防止回调被重放。

// 授权流程的完成窗口，超过视为授权超时
const stateTTL = 10 * time.Minute

var stateCache sync.Map // state -> stateEntry

type stateEntry struct {
	value     string
	expiresAt time.Time
}

// SetState 登记一个待验证的 state
// value 放业务侧上下文（如发起授权的 region）
func SetState(state, value string) {
	stateCache.Store(state, stateEntry{
		value:     value,
		expiresAt: time.Now().Add(stateTTL),
	})
}

// ConsumeState 校验并销毁 state（一次性）
// 不存在或已超时都返回 false
func ConsumeState(state string) (string, bool) {
	val, ok := stateCache.LoadAndDelete(state)
	if !ok {
		return "", false
	}

	entry := val.(stateEntry)
	if time.Now().After(entry.expiresAt) {
		return "", false
	}
	return entry.value, true
}
