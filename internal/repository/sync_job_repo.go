package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/kiendt120702/ShopeeAPIBetacomSub-sub001/internal/model"
)

// ==================== 接口定义 ====================

// SyncJobRepository 同步任务队列仓储
//
// 队列语义：
//   - Enqueue 去重：同一 (店铺, 实体) 已有 pending/running 任务时返回在途任务
//   - ClaimNext 原子认领：两个 worker 不会执行同一行
//   - MarkFailed 有界重试：指数退避，达到 max_retries 进入终态 failed
type SyncJobRepository interface {
	Enqueue(ctx context.Context, shopID int64, entity model.EntityType) (*model.SyncJob, error)
	ClaimNext(ctx context.Context) (*model.SyncJob, error)
	MarkSucceeded(ctx context.Context, jobID int64) error
	MarkFailed(ctx context.Context, jobID int64, errMsg string, terminal bool) error

	// RequeueStuck 把滞留在 running 的任务拉回 pending
	// 进程崩溃或非优雅重启会把任务留在 running，且 dedup_key 一直被占用，
	// 该 (店铺, 实体) 从此既不会被认领也无法重新入队；启动时必须清扫。
	// olderThan 限定只回收停更超过该时长的行，0 表示全部回收
	RequeueStuck(ctx context.Context, olderThan time.Duration) (int64, error)

	GetByID(ctx context.Context, jobID int64) (*model.SyncJob, error)
	List(ctx context.Context, filter SyncJobFilter) ([]model.SyncJob, int64, error)

	// LastSucceededAt 该 (店铺, 实体) 最近一次成功执行的时间，用于空集合的新鲜度判定
	LastSucceededAt(ctx context.Context, shopID int64, entity model.EntityType) (*time.Time, error)
}

// SyncJobFilter 任务查询过滤
type SyncJobFilter struct {
	ShopID   int64
	Entity   model.EntityType
	Status   model.SyncJobStatus
	Page     int
	PageSize int
}

// BackoffPolicy 重试退避参数
type BackoffPolicy struct {
	Base time.Duration // 首次重试延迟
	Cap  time.Duration // 延迟上限
}

// Delay 第 retryCount 次失败后的等待时间: base * 2^(retryCount-1)，封顶 cap
func (p BackoffPolicy) Delay(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}
	d := p.Base
	for i := 1; i < retryCount; i++ {
		d *= 2
		if d >= p.Cap {
			return p.Cap
		}
	}
	if d > p.Cap {
		return p.Cap
	}
	return d
}

// ==================== 仓储实现 ====================

type syncJobRepo struct {
	db         *gorm.DB
	maxRetries int
	backoff    BackoffPolicy
}

// NewSyncJobRepository 创建任务队列仓储
func NewSyncJobRepository(db *gorm.DB, maxRetries int, backoff BackoffPolicy) SyncJobRepository {
	return &syncJobRepo{db: db, maxRetries: maxRetries, backoff: backoff}
}

// Enqueue 条件入队
// 依赖 dedup_key 的唯一索引做并发安全的去重：插入冲突即说明已有在途任务，
// 查出来直接复用。终态任务的 dedup_key 已置空，不会挡住新任务。
func (r *syncJobRepo) Enqueue(ctx context.Context, shopID int64, entity model.EntityType) (*model.SyncJob, error) {
	key := model.JobDedupKey(shopID, entity)

	// 在途任务与终态转换之间存在窗口，小循环兜底
	var lastErr error
	for i := 0; i < 3; i++ {
		job := &model.SyncJob{
			ShopID:     shopID,
			EntityType: entity,
			Status:     model.SyncJobPending,
			MaxRetries: r.maxRetries,
			NextRunAt:  time.Now(),
			DedupKey:   &key,
		}

		err := r.db.WithContext(ctx).Create(job).Error
		if err == nil {
			return job, nil
		}
		lastErr = err

		// 插入失败大概率是唯一键冲突：复用在途任务
		var existing model.SyncJob
		findErr := r.db.WithContext(ctx).Where("dedup_key = ?", key).First(&existing).Error
		if findErr == nil {
			return &existing, nil
		}
		if !errors.Is(findErr, gorm.ErrRecordNotFound) {
			return nil, findErr
		}
		// 在途任务恰好转入终态，重新尝试插入
	}
	// 连插入错误也没带出去的话，排障只能靠猜
	return nil, fmt.Errorf("sync job enqueue 重试耗尽: %w", lastErr)
}

// ClaimNext 原子认领一个到期的 pending 任务
// 选出候选后用 "id + status 守卫" 的条件更新做 CAS，RowsAffected=0 说明被
// 其他 worker 抢先，换下一个候选
func (r *syncJobRepo) ClaimNext(ctx context.Context) (*model.SyncJob, error) {
	for i := 0; i < 3; i++ {
		var job model.SyncJob
		err := r.db.WithContext(ctx).
			Where("status = ? AND next_run_at <= ?", model.SyncJobPending, time.Now()).
			Order("next_run_at ASC").
			First(&job).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		res := r.db.WithContext(ctx).
			Model(&model.SyncJob{}).
			Where("id = ? AND status = ?", job.ID, model.SyncJobPending).
			Update("status", model.SyncJobRunning)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 1 {
			job.Status = model.SyncJobRunning
			return &job, nil
		}
		// 被其他 worker 抢走，取下一个候选
	}
	return nil, nil
}

// RequeueStuck 回收滞留的 running 任务
// 只改状态和排期，retry_count 与 dedup_key 原样保留：崩溃不算一次失败
func (r *syncJobRepo) RequeueStuck(ctx context.Context, olderThan time.Duration) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&model.SyncJob{}).
		Where("status = ? AND updated_at <= ?", model.SyncJobRunning, time.Now().Add(-olderThan)).
		Updates(map[string]interface{}{
			"status":      model.SyncJobPending,
			"next_run_at": time.Now(),
		})
	return res.RowsAffected, res.Error
}

// MarkSucceeded 任务成功，进入终态并释放去重键
func (r *syncJobRepo) MarkSucceeded(ctx context.Context, jobID int64) error {
	return r.db.WithContext(ctx).
		Model(&model.SyncJob{}).
		Where("id = ? AND status = ?", jobID, model.SyncJobRunning).
		Updates(map[string]interface{}{
			"status":        model.SyncJobSucceeded,
			"error_message": "",
			"dedup_key":     nil,
		}).Error
}

// MarkFailed 记录一次失败
// retry_count 自增；未达上限且非终态错误时回到 pending 并按指数退避排期，
// 否则进入终态 failed 并释放去重键（保留行供观测）
func (r *syncJobRepo) MarkFailed(ctx context.Context, jobID int64, errMsg string, terminal bool) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job model.SyncJob
		if err := tx.First(&job, jobID).Error; err != nil {
			return err
		}

		retry := job.RetryCount + 1
		updates := map[string]interface{}{
			"retry_count":   retry,
			"error_message": errMsg,
		}

		if terminal || retry >= job.MaxRetries {
			updates["status"] = model.SyncJobFailed
			updates["dedup_key"] = nil
		} else {
			updates["status"] = model.SyncJobPending
			updates["next_run_at"] = time.Now().Add(r.backoff.Delay(retry))
		}

		return tx.Model(&model.SyncJob{}).Where("id = ?", jobID).Updates(updates).Error
	})
}

func (r *syncJobRepo) GetByID(ctx context.Context, jobID int64) (*model.SyncJob, error) {
	var job model.SyncJob
	if err := r.db.WithContext(ctx).First(&job, jobID).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *syncJobRepo) List(ctx context.Context, filter SyncJobFilter) ([]model.SyncJob, int64, error) {
	var jobs []model.SyncJob
	var total int64

	query := r.db.WithContext(ctx).Model(&model.SyncJob{})
	if filter.ShopID > 0 {
		query = query.Where("shop_id = ?", filter.ShopID)
	}
	if filter.Entity != "" {
		query = query.Where("entity_type = ?", filter.Entity)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	offset := (filter.Page - 1) * filter.PageSize

	if err := query.Order("created_at DESC").Limit(filter.PageSize).Offset(offset).Find(&jobs).Error; err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

func (r *syncJobRepo) LastSucceededAt(ctx context.Context, shopID int64, entity model.EntityType) (*time.Time, error) {
	var latest *time.Time
	err := r.db.WithContext(ctx).
		Model(&model.SyncJob{}).
		Where("shop_id = ? AND entity_type = ? AND status = ?", shopID, entity, model.SyncJobSucceeded).
		Select("MAX(updated_at)").
		Scan(&latest).Error
	if err != nil {
		return nil, err
	}
	return latest, nil
}
