package task

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/kiendt120702/ShopeeAPIBetacomSub-sub001/internal/credential"
	"github.com/kiendt120702/ShopeeAPIBetacomSub-sub001/internal/model"
	"github.com/kiendt120702/ShopeeAPIBetacomSub-sub001/internal/repository"
	"github.com/kiendt120702/ShopeeAPIBetacomSub-sub001/pkg/shopee"
)

// PlatformClient worker 需要的远端拉取能力
// 抽成接口方便测试注入假客户端
type PlatformClient interface {
	GetShopFlashSales(ctx context.Context, accessToken string, shopID int64) ([]shopee.FlashSale, error)
	GetAdCampaigns(ctx context.Context, accessToken string, shopID int64) ([]shopee.AdCampaign, error)
	GetShopInfo(ctx context.Context, accessToken string, shopID int64) (*shopee.ShopInfo, error)
}

// SyncWorker 同步任务执行器
//
// 多个 goroutine 并发轮询队列，认领互斥由 ClaimNext 的原子更新保证。
// 单次执行的流程：取有效凭证 -> 拉远端 -> 整批 upsert 镜像 -> 标记成功；
// 任何一步失败都只记录在任务行上（分类后决定重试/终态），不碰镜像。
type SyncWorker struct {
	jobRepo    repository.SyncJobRepository
	mirrorRepo repository.MirrorRepository
	creds      *credential.Manager
	client     PlatformClient

	workers    int
	poll       time.Duration
	jobTimeout time.Duration

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// NewSyncWorker 创建执行器
func NewSyncWorker(
	jobRepo repository.SyncJobRepository,
	mirrorRepo repository.MirrorRepository,
	creds *credential.Manager,
	client PlatformClient,
	workers int,
	poll, jobTimeout time.Duration,
) *SyncWorker {
	if workers <= 0 {
		workers = 1
	}
	return &SyncWorker{
		jobRepo:    jobRepo,
		mirrorRepo: mirrorRepo,
		creds:      creds,
		client:     client,
		workers:    workers,
		poll:       poll,
		jobTimeout: jobTimeout,
		stop:       make(chan struct{}),
	}
}

// Start 启动 worker 池
// 启动前先回收上次进程遗留的 running 任务：单实例部署下此刻没有 worker 存活，
// 所有 running 行都是崩溃残骸，不清扫的话它们会永远占着 dedup_key
func (w *SyncWorker) Start() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	n, err := w.jobRepo.RequeueStuck(ctx, 0)
	cancel()
	if err != nil {
		log.Printf("[SyncWorker] 回收滞留任务失败: %v", err)
	} else if n > 0 {
		log.Printf("[SyncWorker] 回收 %d 个滞留的 running 任务", n)
	}

	log.Printf("[SyncWorker] 启动 %d 个 worker，轮询间隔 %v", w.workers, w.poll)
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go w.loop(i)
	}
}

// Stop 停止所有 worker 并等待在途任务结束
func (w *SyncWorker) Stop() {
	w.once.Do(func() { close(w.stop) })
	w.wg.Wait()
	log.Println("[SyncWorker] 已全部停止")
}

func (w *SyncWorker) loop(id int) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
		}

		// 每个 tick 把到期任务消化干净再睡
		for {
			claimCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			job, err := w.jobRepo.ClaimNext(claimCtx)
			cancel()
			if err != nil {
				log.Printf("[SyncWorker-%d] 认领任务失败: %v", id, err)
				break
			}
			if job == nil {
				break
			}

			w.Execute(job)

			select {
			case <-w.stop:
				return
			default:
			}
		}
	}
}

// Execute 执行单个任务（导出供测试直接驱动）
func (w *SyncWorker) Execute(job *model.SyncJob) {
	// 每个任务独立的墙钟预算，超时按可重试失败计
	ctx, cancel := context.WithTimeout(context.Background(), w.jobTimeout)
	defer cancel()

	if err := w.run(ctx, job); err != nil {
		terminal := classifyTerminal(err)
		if markErr := w.jobRepo.MarkFailed(context.Background(), job.ID, err.Error(), terminal); markErr != nil {
			log.Printf("[SyncWorker] 任务 %d 标记失败出错: %v", job.ID, markErr)
		}
		log.Printf("[SyncWorker] 任务 %d (店铺 %d, %s) 失败 (terminal=%v): %v",
			job.ID, job.ShopID, job.EntityType, terminal, err)
		return
	}

	if err := w.jobRepo.MarkSucceeded(context.Background(), job.ID); err != nil {
		log.Printf("[SyncWorker] 任务 %d 标记成功出错: %v", job.ID, err)
	}
}

func (w *SyncWorker) run(ctx context.Context, job *model.SyncJob) error {
	// 1. 取有效凭证（必要时管理器内部先刷新）
	cred, err := w.creds.GetValidCredential(ctx, job.ShopID)
	if err != nil {
		return err
	}

	// 2. 拉远端 + 3. 整批落镜像
	syncedAt := time.Now()

	switch job.EntityType {
	case model.EntityFlashSale:
		sales, err := w.client.GetShopFlashSales(ctx, cred.AccessToken, job.ShopID)
		if err != nil {
			return err
		}
		return w.mirrorRepo.BatchUpsertFlashSales(ctx, job.ShopID, transformFlashSales(sales), syncedAt)

	case model.EntityAdCampaign:
		campaigns, err := w.client.GetAdCampaigns(ctx, cred.AccessToken, job.ShopID)
		if err != nil {
			return err
		}
		return w.mirrorRepo.BatchUpsertAdCampaigns(ctx, job.ShopID, transformAdCampaigns(campaigns), syncedAt)

	case model.EntityShopProfile:
		info, err := w.client.GetShopInfo(ctx, cred.AccessToken, job.ShopID)
		if err != nil {
			return err
		}
		return w.mirrorRepo.UpsertShopProfile(ctx, transformShopProfile(job.ShopID, info), syncedAt)
	}

	return fmt.Errorf("未知实体类型: %s", job.EntityType)
}

// classifyTerminal 错误分类
// 终态：从未授权（重试无意义，等人工重连）、远端明确拒绝（参数/权限类）；
// 其余（网络、超时、服务端错误、刷新失败）都交给退避重试，由 max_retries 兜底
func classifyTerminal(err error) bool {
	if errors.Is(err, credential.ErrNoCredential) {
		return true
	}
	var apiErr *shopee.APIError
	if errors.As(err, &apiErr) {
		return !apiErr.Retryable()
	}
	return false
}

// ==================== 响应转换 ====================

func transformFlashSales(sales []shopee.FlashSale) []model.FlashSaleMirror {
	items := make([]model.FlashSaleMirror, 0, len(sales))
	for _, fs := range sales {
		items = append(items, model.FlashSaleMirror{
			FlashSaleID:      fs.FlashSaleID,
			TimeslotID:       fs.TimeslotID,
			Status:           fs.Status,
			Type:             fs.Type,
			StartTime:        fs.StartTime,
			EndTime:          fs.EndTime,
			ItemCount:        fs.ItemCount,
			EnabledItemCount: fs.EnabledItemCount,
			RawPayload:       []byte(fs.Raw),
		})
	}
	return items
}

func transformAdCampaigns(campaigns []shopee.AdCampaign) []model.AdCampaignMirror {
	items := make([]model.AdCampaignMirror, 0, len(campaigns))
	for _, c := range campaigns {
		items = append(items, model.AdCampaignMirror{
			CampaignID:  c.CampaignID,
			Name:        c.Name,
			AdType:      c.AdType,
			Status:      c.Status,
			DailyBudget: c.DailyBudget,
			ItemIDs:     c.ItemIDList,
			RawPayload:  []byte(c.Raw),
		})
	}
	return items
}

func transformShopProfile(shopID int64, info *shopee.ShopInfo) *model.ShopProfileMirror {
	return &model.ShopProfileMirror{
		ShopID:        shopID,
		ShopName:      info.ShopName,
		Region:        info.Region,
		ShopStatus:    info.Status,
		ItemCount:     info.ItemCount,
		FollowerCount: info.FollowerCount,
		RatingStar:    info.RatingStar,
		Description:   info.Description,
		RawPayload:    []byte(info.Raw),
	}
}
