package model

import (
	"fmt"
	"time"
)

// SyncJobStatus 同步任务状态
type SyncJobStatus string

const (
	SyncJobPending   SyncJobStatus = "pending"
	SyncJobRunning   SyncJobStatus = "running"
	SyncJobSucceeded SyncJobStatus = "succeeded"
	SyncJobFailed    SyncJobStatus = "failed"
)

// Terminal 是否为终态（终态任务保留用于观测，不再调度）
func (s SyncJobStatus) Terminal() bool {
	return s == SyncJobSucceeded || s == SyncJobFailed
}

// SyncJob 同步任务行
// 字段名对外稳定（json tag），运维可直接查队列深度与失败率
type SyncJob struct {
	BaseModel

	ShopID     int64      `gorm:"index:idx_job_shop_entity;not null" json:"shop_id"`
	EntityType EntityType `gorm:"size:32;index:idx_job_shop_entity;not null" json:"entity_type"`

	Status       SyncJobStatus `gorm:"size:16;index;default:'pending'" json:"status"`
	RetryCount   int           `gorm:"default:0" json:"retry_count"`
	MaxRetries   int           `gorm:"default:5" json:"max_retries"`
	NextRunAt    time.Time     `gorm:"index" json:"next_run_at"`
	ErrorMessage string        `gorm:"type:text" json:"error_message"`

	// DedupKey 在 pending/running 期间持有 "shopID:entityType"，
	// 唯一索引保证同一 (店铺, 实体) 同时最多一个在途任务；
	// 进入终态时置空释放，允许后续重新入队。
	DedupKey *string `gorm:"size:64;uniqueIndex" json:"-"`
}

func (SyncJob) TableName() string {
	return "sync_jobs"
}

// JobDedupKey 生成在途去重键
func JobDedupKey(shopID int64, entityType EntityType) string {
	return fmt.Sprintf("%d:%s", shopID, entityType)
}
