package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/kiendt120702/ShopeeAPIBetacomSub-sub001/internal/config"
	"github.com/kiendt120702/ShopeeAPIBetacomSub-sub001/internal/model"
	"github.com/kiendt120702/ShopeeAPIBetacomSub-sub001/internal/repository"
)

// ErrFirstSyncFailed 首次同步等待失败：从未有过快照，且这次同步没能补上
var ErrFirstSyncFailed = errors.New("首次同步失败，暂无可用数据")

// SyncMeta 读路径的同步元信息
// UI 据此决定"直接展示 + 后台静默刷新"还是"提示稍后重试"
type SyncMeta struct {
	SyncedAt      *time.Time          `json:"synced_at"`      // 最近一次成功同步的批次时间
	Stale         bool                `json:"stale"`          // 本次返回的是否为过期快照
	SyncTriggered bool                `json:"sync_triggered"` // 是否触发了后台同步
	JobID         int64               `json:"job_id,omitempty"`
	JobStatus     model.SyncJobStatus `json:"job_status,omitempty"`
}

// ReadOptions 读路径选项
type ReadOptions struct {
	// WaitFirstSync 为 true 时，若从未有过快照则短暂等待首次同步完成；
	// 已有快照（哪怕过期）永远立即返回
	WaitFirstSync bool
}

// MirrorService 镜像读路径
//
// 契约：先读镜像；缺失或过期则（去重地）入队一个同步任务；
// 调用方拿到的是"快照 + 元信息"，读路径永不因过期硬失败。
type MirrorService struct {
	mirrorRepo repository.MirrorRepository
	jobRepo    repository.SyncJobRepository
	cfg        *config.Config

	// 等待首次同步的轮询参数
	waitPoll    time.Duration
	waitTimeout time.Duration
}

// NewMirrorService 创建镜像读服务
func NewMirrorService(mirrorRepo repository.MirrorRepository, jobRepo repository.SyncJobRepository, cfg *config.Config) *MirrorService {
	return &MirrorService{
		mirrorRepo:  mirrorRepo,
		jobRepo:     jobRepo,
		cfg:         cfg,
		waitPoll:    500 * time.Millisecond,
		waitTimeout: 30 * time.Second,
	}
}

// ==================== 读路径 ====================

// GetFlashSales 读限时折扣镜像
func (s *MirrorService) GetFlashSales(ctx context.Context, shopID int64, opts ReadOptions) ([]model.FlashSaleMirror, *SyncMeta, error) {
	meta, err := s.checkAndTrigger(ctx, shopID, model.EntityFlashSale)
	if err != nil {
		return nil, nil, err
	}

	items, err := s.mirrorRepo.ListFlashSales(ctx, shopID)
	if err != nil {
		return nil, nil, err
	}

	if len(items) == 0 && meta.SyncedAt == nil && opts.WaitFirstSync && meta.SyncTriggered {
		if err := s.waitForJob(ctx, meta); err != nil {
			return nil, meta, err
		}
		items, err = s.mirrorRepo.ListFlashSales(ctx, shopID)
		if err != nil {
			return nil, nil, err
		}
		meta.SyncedAt, _ = s.mirrorRepo.LatestSyncedAt(ctx, model.EntityFlashSale, shopID)
		meta.Stale = false
	}

	return items, meta, nil
}

// GetAdCampaigns 读广告活动镜像
func (s *MirrorService) GetAdCampaigns(ctx context.Context, shopID int64, opts ReadOptions) ([]model.AdCampaignMirror, *SyncMeta, error) {
	meta, err := s.checkAndTrigger(ctx, shopID, model.EntityAdCampaign)
	if err != nil {
		return nil, nil, err
	}

	items, err := s.mirrorRepo.ListAdCampaigns(ctx, shopID)
	if err != nil {
		return nil, nil, err
	}

	if len(items) == 0 && meta.SyncedAt == nil && opts.WaitFirstSync && meta.SyncTriggered {
		if err := s.waitForJob(ctx, meta); err != nil {
			return nil, meta, err
		}
		items, err = s.mirrorRepo.ListAdCampaigns(ctx, shopID)
		if err != nil {
			return nil, nil, err
		}
		meta.SyncedAt, _ = s.mirrorRepo.LatestSyncedAt(ctx, model.EntityAdCampaign, shopID)
		meta.Stale = false
	}

	return items, meta, nil
}

// GetShopProfile 读店铺资料镜像
func (s *MirrorService) GetShopProfile(ctx context.Context, shopID int64, opts ReadOptions) (*model.ShopProfileMirror, *SyncMeta, error) {
	meta, err := s.checkAndTrigger(ctx, shopID, model.EntityShopProfile)
	if err != nil {
		return nil, nil, err
	}

	profile, err := s.mirrorRepo.GetShopProfile(ctx, shopID)
	if err != nil {
		return nil, nil, err
	}

	if profile == nil && opts.WaitFirstSync && meta.SyncTriggered {
		if err := s.waitForJob(ctx, meta); err != nil {
			return nil, meta, err
		}
		profile, err = s.mirrorRepo.GetShopProfile(ctx, shopID)
		if err != nil {
			return nil, nil, err
		}
		if profile != nil {
			meta.SyncedAt = &profile.SyncedAt
			meta.Stale = false
		}
	}

	return profile, meta, nil
}

// TriggerSync 手动触发同步（UI 的"立即刷新"按钮）
func (s *MirrorService) TriggerSync(ctx context.Context, shopID int64, entity model.EntityType) (*model.SyncJob, error) {
	if !entity.Valid() {
		return nil, fmt.Errorf("未知实体类型: %s", entity)
	}
	return s.jobRepo.Enqueue(ctx, shopID, entity)
}

// ==================== 内部逻辑 ====================

// checkAndTrigger 新鲜度判定，过期则入队（去重）
func (s *MirrorService) checkAndTrigger(ctx context.Context, shopID int64, entity model.EntityType) (*SyncMeta, error) {
	syncedAt, err := s.mirrorRepo.LatestSyncedAt(ctx, entity, shopID)
	if err != nil {
		return nil, err
	}

	// 镜像表没有行不代表从未同步过：远端集合可能本来就是空的。
	// 用最近一次成功任务的时间兜底，避免空集合每次读都重复触发同步。
	if syncedAt == nil {
		syncedAt, err = s.jobRepo.LastSucceededAt(ctx, shopID, entity)
		if err != nil {
			return nil, err
		}
	}

	meta := &SyncMeta{SyncedAt: syncedAt}

	if !IsStale(syncedAt, s.cfg.TTLFor(entity)) {
		return meta, nil
	}

	meta.Stale = syncedAt != nil // 从未同步过的不叫"过期"，叫"没有"

	job, err := s.jobRepo.Enqueue(ctx, shopID, entity)
	if err != nil {
		// 入队失败不挡读路径：快照照常返回，只是少了后台刷新
		log.Printf("[Mirror] 店铺 %d %s 同步入队失败: %v", shopID, entity, err)
		return meta, nil
	}

	meta.SyncTriggered = true
	meta.JobID = job.ID
	meta.JobStatus = job.Status
	return meta, nil
}

// waitForJob 轮询等待任务进入终态（仅用于首次同步的可选等待）
// 先查一次状态再进轮询：worker 空闲时任务入队后立刻就能跑完，
// 不该让这种快路径白白等一个 tick
func (s *MirrorService) waitForJob(ctx context.Context, meta *SyncMeta) error {
	deadline := time.Now().Add(s.waitTimeout)
	ticker := time.NewTicker(s.waitPoll)
	defer ticker.Stop()

	for {
		job, err := s.jobRepo.GetByID(ctx, meta.JobID)
		if err != nil {
			return err
		}
		meta.JobStatus = job.Status

		switch job.Status {
		case model.SyncJobSucceeded:
			return nil
		case model.SyncJobFailed:
			return fmt.Errorf("%w: %s", ErrFirstSyncFailed, job.ErrorMessage)
		}

		if time.Now().After(deadline) {
			// 超时不算失败：任务还在队列里，让 UI 稍后自行重试
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
