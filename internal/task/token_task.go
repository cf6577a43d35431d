package task

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kiendt120702/ShopeeAPIBetacomSub-sub001/internal/credential"
	"github.com/kiendt120702/ShopeeAPIBetacomSub-sub001/internal/model"
	"github.com/kiendt120702/ShopeeAPIBetacomSub-sub001/internal/repository"
)

// TokenTask token 保活定时任务
//
// 定期扫描即将过期的店铺，通过凭证管理器提前刷新。
// 真正的刷新（含并发串行化、失败分类）都在 Manager 里，
// 这里只负责"谁该刷"和"刷得别太猛"。
type TokenTask struct {
	shopRepo repository.ShopRepository
	manager  *credential.Manager
	cron     *cron.Cron

	buffer time.Duration // 提前量：过期前多久算"即将过期"

	// 控制并发刷新的数量，防止触发授权方限流
	concurrencyLimit int
	sleepTime        time.Duration
}

// NewTokenTask 创建保活任务
func NewTokenTask(shopRepo repository.ShopRepository, manager *credential.Manager, buffer time.Duration) *TokenTask {
	return &TokenTask{
		shopRepo:         shopRepo,
		manager:          manager,
		cron:             cron.New(cron.WithSeconds()), // 支持秒级控制
		buffer:           buffer,
		concurrencyLimit: 10,
		sleepTime:        50 * time.Millisecond, // 每个协程启动间隔，平滑波峰
	}
}

// Start 启动定时任务
func (t *TokenTask) Start() {
	// 首次执行
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		log.Println("[Token] 服务启动，正在执行首次 token 检查...")
		t.refreshJob(ctx)
	}()

	// 每10分钟扫一轮，窗口远小于 token 有效期，漏扫一轮也无碍
	_, err := t.cron.AddFunc("0 0/10 * * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		t.refreshJob(ctx)
	})

	if err != nil {
		log.Fatalf("无法启动 token 定时任务: %v", err)
	}

	t.cron.Start()
	log.Println("[Token] 保活任务已启动 (每10分钟检查一次)")
}

// Stop 停止定时任务，等待在途的执行结束
func (t *TokenTask) Stop() {
	ctx := t.cron.Stop()
	<-ctx.Done()
	log.Println("[Token] 保活任务已停止")
}

// refreshJob 扫描即将过期的店铺并逐个刷新
func (t *TokenTask) refreshJob(ctx context.Context) {
	shops, err := t.shopRepo.FindExpiringShops(ctx, t.buffer)
	if err != nil {
		log.Printf("[Token] 店铺过期状态查询失败: %v", err)
		return
	}
	if len(shops) == 0 {
		return
	}

	// 信号量通道限并发
	sem := make(chan struct{}, t.concurrencyLimit)
	var wg sync.WaitGroup

	log.Printf("[Token] 开始处理 %d 个店铺的 token 刷新，并发上限: %d", len(shops), t.concurrencyLimit)

	for _, shop := range shops {
		select {
		case <-ctx.Done():
			log.Println("[Token] 本轮刷新超时停止")
			return
		default:
		}

		sem <- struct{}{}
		wg.Add(1)

		// 平滑波峰
		time.Sleep(t.sleepTime)

		go func(s model.Shop) {
			defer wg.Done()
			defer func() { <-sem }()

			// GetValidCredential 发现临期会自动走刷新
			if _, err := t.manager.GetValidCredential(ctx, s.ShopeeShopID); err != nil {
				// 日志仅记录，不中断其他协程
				log.Printf("[Token] 店铺 [%s](%d) 刷新失败: %v", s.ShopName, s.ShopeeShopID, err)
			}
		}(shop)
	}

	wg.Wait()
	log.Println("[Token] 本轮 token 刷新完成")
}
