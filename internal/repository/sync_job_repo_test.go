package repository

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/kiendt120702/ShopeeAPIBetacomSub-sub001/internal/model"
)

func setupJobTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("连接测试数据库失败: %v", err)
	}

	// :memory: 每个连接是独立的库，必须锁死单连接
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("获取底层 SQL DB 失败: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&model.SyncJob{}); err != nil {
		t.Fatalf("数据库迁移失败: %v", err)
	}
	return db
}

func newJobRepo(t *testing.T, db *gorm.DB) SyncJobRepository {
	return NewSyncJobRepository(db, 3, BackoffPolicy{
		Base: time.Millisecond,
		Cap:  8 * time.Millisecond,
	})
}

func TestSyncJobRepo_EnqueueDedup(t *testing.T) {
	db := setupJobTestDB(t)
	repo := newJobRepo(t, db)
	ctx := context.Background()

	first, err := repo.Enqueue(ctx, 100, model.EntityFlashSale)
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	// 同一 (店铺, 实体) 再次入队，应复用在途任务
	second, err := repo.Enqueue(ctx, 100, model.EntityFlashSale)
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("在途任务应被复用，got ID %d, want %d", second.ID, first.ID)
	}

	// 不同实体不受影响
	other, err := repo.Enqueue(ctx, 100, model.EntityAdCampaign)
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if other.ID == first.ID {
		t.Error("不同实体不应命中去重")
	}

	var count int64
	db.Model(&model.SyncJob{}).Count(&count)
	if count != 2 {
		t.Errorf("任务总数 = %d, want 2", count)
	}
}

func TestSyncJobRepo_EnqueueConcurrent(t *testing.T) {
	db := setupJobTestDB(t)
	repo := newJobRepo(t, db)
	ctx := context.Background()

	// 并发入队同一 (店铺, 实体)，唯一索引保证只产生一个在途任务
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.Enqueue(ctx, 7, model.EntityShopProfile); err != nil {
				t.Errorf("并发 Enqueue() error = %v", err)
			}
		}()
	}
	wg.Wait()

	var count int64
	db.Model(&model.SyncJob{}).
		Where("shop_id = ? AND status IN ?", 7, []model.SyncJobStatus{model.SyncJobPending, model.SyncJobRunning}).
		Count(&count)
	if count != 1 {
		t.Errorf("在途任务数 = %d, want 1", count)
	}
}

func TestSyncJobRepo_ClaimNext(t *testing.T) {
	db := setupJobTestDB(t)
	repo := newJobRepo(t, db)
	ctx := context.Background()

	// 空队列
	job, err := repo.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("ClaimNext() error = %v", err)
	}
	if job != nil {
		t.Fatal("空队列应返回 nil")
	}

	enqueued, _ := repo.Enqueue(ctx, 1, model.EntityFlashSale)

	// 第一次认领拿到任务
	claimed, err := repo.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("ClaimNext() error = %v", err)
	}
	if claimed == nil || claimed.ID != enqueued.ID {
		t.Fatalf("认领结果异常: %+v", claimed)
	}
	if claimed.Status != model.SyncJobRunning {
		t.Errorf("认领后状态 = %s, want running", claimed.Status)
	}

	// 同一个任务不能被认领第二次
	again, err := repo.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("ClaimNext() error = %v", err)
	}
	if again != nil {
		t.Errorf("running 任务被重复认领: %+v", again)
	}
}

func TestSyncJobRepo_ClaimNextSkipsFuture(t *testing.T) {
	db := setupJobTestDB(t)
	repo := newJobRepo(t, db)
	ctx := context.Background()

	job, _ := repo.Enqueue(ctx, 1, model.EntityFlashSale)

	// 把任务推到未来，认领应落空
	db.Model(&model.SyncJob{}).Where("id = ?", job.ID).
		Update("next_run_at", time.Now().Add(time.Hour))

	claimed, err := repo.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("ClaimNext() error = %v", err)
	}
	if claimed != nil {
		t.Errorf("未到期任务不应被认领: %+v", claimed)
	}
}

func TestSyncJobRepo_MarkSucceededReleasesDedup(t *testing.T) {
	db := setupJobTestDB(t)
	repo := newJobRepo(t, db)
	ctx := context.Background()

	first, _ := repo.Enqueue(ctx, 1, model.EntityFlashSale)
	claimed, _ := repo.ClaimNext(ctx)

	if err := repo.MarkSucceeded(ctx, claimed.ID); err != nil {
		t.Fatalf("MarkSucceeded() error = %v", err)
	}

	done, _ := repo.GetByID(ctx, claimed.ID)
	if done.Status != model.SyncJobSucceeded {
		t.Errorf("状态 = %s, want succeeded", done.Status)
	}
	if done.DedupKey != nil {
		t.Error("终态任务应释放 dedup_key")
	}

	// 去重键已释放，可以重新入队
	next, err := repo.Enqueue(ctx, 1, model.EntityFlashSale)
	if err != nil {
		t.Fatalf("终态后重新入队失败: %v", err)
	}
	if next.ID == first.ID {
		t.Error("终态后入队应产生新任务")
	}
}

func TestSyncJobRepo_RetryWithBackoff(t *testing.T) {
	db := setupJobTestDB(t)
	repo := newJobRepo(t, db)
	ctx := context.Background()

	job, _ := repo.Enqueue(ctx, 1, model.EntityAdCampaign)

	before := time.Now()
	if err := repo.MarkFailed(ctx, job.ID, "error_server: boom", false); err != nil {
		t.Fatalf("MarkFailed() error = %v", err)
	}

	failed, _ := repo.GetByID(ctx, job.ID)
	if failed.Status != model.SyncJobPending {
		t.Errorf("首次失败后状态 = %s, want pending", failed.Status)
	}
	if failed.RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1", failed.RetryCount)
	}
	if failed.ErrorMessage == "" {
		t.Error("失败原因应被记录")
	}
	if failed.NextRunAt.Before(before) {
		t.Error("重试应按退避延后 next_run_at")
	}
	if failed.DedupKey == nil {
		t.Error("重试中的任务应继续持有 dedup_key")
	}
}

func TestSyncJobRepo_BoundedRetries(t *testing.T) {
	db := setupJobTestDB(t)
	repo := newJobRepo(t, db) // maxRetries = 3
	ctx := context.Background()

	job, _ := repo.Enqueue(ctx, 1, model.EntityFlashSale)

	// 连续失败直到耗尽预算
	for i := 1; i <= 3; i++ {
		if err := repo.MarkFailed(ctx, job.ID, "still broken", false); err != nil {
			t.Fatalf("第 %d 次 MarkFailed() error = %v", i, err)
		}
	}

	final, _ := repo.GetByID(ctx, job.ID)
	if final.Status != model.SyncJobFailed {
		t.Errorf("耗尽重试后状态 = %s, want failed", final.Status)
	}
	if final.RetryCount != 3 {
		t.Errorf("RetryCount = %d, want 3", final.RetryCount)
	}
	if final.DedupKey != nil {
		t.Error("终态任务应释放 dedup_key")
	}
}

func TestSyncJobRepo_TerminalErrorSkipsRetry(t *testing.T) {
	db := setupJobTestDB(t)
	repo := newJobRepo(t, db)
	ctx := context.Background()

	job, _ := repo.Enqueue(ctx, 1, model.EntityShopProfile)

	// 终态错误第一次失败就进 failed
	if err := repo.MarkFailed(ctx, job.ID, "error_param: bad request", true); err != nil {
		t.Fatalf("MarkFailed() error = %v", err)
	}

	final, _ := repo.GetByID(ctx, job.ID)
	if final.Status != model.SyncJobFailed {
		t.Errorf("状态 = %s, want failed", final.Status)
	}
	if final.RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1", final.RetryCount)
	}
}

func TestSyncJobRepo_RequeueStuck(t *testing.T) {
	db := setupJobTestDB(t)
	repo := newJobRepo(t, db)
	ctx := context.Background()

	// 进程崩溃场景：任务停在 running，dedup_key 被一直占着
	zombie := mustClaim(t, repo, 1, model.EntityFlashSale)

	// 回收前：认领落空，入队只能拿回同一个僵尸任务
	if again, _ := repo.ClaimNext(ctx); again != nil {
		t.Fatalf("running 任务不应被直接认领: %+v", again)
	}
	dup, err := repo.Enqueue(ctx, 1, model.EntityFlashSale)
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if dup.ID != zombie.ID {
		t.Fatalf("去重应命中僵尸任务: got %d, want %d", dup.ID, zombie.ID)
	}

	n, err := repo.RequeueStuck(ctx, 0)
	if err != nil {
		t.Fatalf("RequeueStuck() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("回收行数 = %d, want 1", n)
	}

	// 回收后任务重新可被认领，崩溃不消耗重试预算
	claimed, err := repo.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("ClaimNext() error = %v", err)
	}
	if claimed == nil || claimed.ID != zombie.ID {
		t.Fatalf("回收后应能重新认领: %+v", claimed)
	}
	if claimed.RetryCount != 0 {
		t.Errorf("回收不应计入重试, RetryCount = %d", claimed.RetryCount)
	}
	if claimed.DedupKey == nil {
		t.Error("回收后的任务应继续持有 dedup_key")
	}
}

func TestSyncJobRepo_RequeueStuckHonorsAge(t *testing.T) {
	db := setupJobTestDB(t)
	repo := newJobRepo(t, db)
	ctx := context.Background()

	// 刚认领的任务还在正常执行中，带时间下限的清扫不应误伤
	mustClaim(t, repo, 1, model.EntityAdCampaign)

	n, err := repo.RequeueStuck(ctx, time.Hour)
	if err != nil {
		t.Fatalf("RequeueStuck() error = %v", err)
	}
	if n != 0 {
		t.Errorf("执行中的任务被误回收, got %d 行", n)
	}
}

func TestSyncJobRepo_EnqueueSurfacesDBError(t *testing.T) {
	db := setupJobTestDB(t)
	repo := newJobRepo(t, db)
	ctx := context.Background()

	// 用触发器模拟非唯一键冲突的插入失败：表里没有在途任务可复用，
	// 去重小循环耗尽后必须带出真正的数据库错误
	err := db.Exec(`CREATE TRIGGER reject_sync_jobs BEFORE INSERT ON sync_jobs
		BEGIN SELECT RAISE(ABORT, 'disk full'); END;`).Error
	if err != nil {
		t.Fatalf("创建触发器失败: %v", err)
	}

	_, err = repo.Enqueue(ctx, 1, model.EntityFlashSale)
	if err == nil {
		t.Fatal("插入被拒绝时 Enqueue 应报错")
	}
	if !strings.Contains(err.Error(), "disk full") {
		t.Errorf("错误应包含底层原因, got: %v", err)
	}
}

// mustClaim 入队并认领，模拟任务正在执行
func mustClaim(t *testing.T, repo SyncJobRepository, shopID int64, entity model.EntityType) *model.SyncJob {
	t.Helper()
	ctx := context.Background()
	if _, err := repo.Enqueue(ctx, shopID, entity); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	job, err := repo.ClaimNext(ctx)
	if err != nil || job == nil {
		t.Fatalf("ClaimNext() = %v, %v", job, err)
	}
	return job
}

func TestSyncJobRepo_LastSucceededAt(t *testing.T) {
	db := setupJobTestDB(t)
	repo := newJobRepo(t, db)
	ctx := context.Background()

	// 无记录
	at, err := repo.LastSucceededAt(ctx, 1, model.EntityFlashSale)
	if err != nil {
		t.Fatalf("LastSucceededAt() error = %v", err)
	}
	if at != nil {
		t.Errorf("无成功记录应返回 nil, got %v", at)
	}

	job, _ := repo.Enqueue(ctx, 1, model.EntityFlashSale)
	repo.ClaimNext(ctx)
	repo.MarkSucceeded(ctx, job.ID)

	at, err = repo.LastSucceededAt(ctx, 1, model.EntityFlashSale)
	if err != nil {
		t.Fatalf("LastSucceededAt() error = %v", err)
	}
	if at == nil {
		t.Fatal("应返回最近一次成功时间")
	}
	if time.Since(*at) > time.Minute {
		t.Errorf("成功时间异常: %v", at)
	}
}

func TestBackoffPolicy_Delay(t *testing.T) {
	p := BackoffPolicy{Base: 30 * time.Second, Cap: 15 * time.Minute}

	cases := []struct {
		retry int
		want  time.Duration
	}{
		{1, 30 * time.Second},
		{2, time.Minute},
		{3, 2 * time.Minute},
		{4, 4 * time.Minute},
		{5, 8 * time.Minute},
		{6, 15 * time.Minute}, // 16m 封顶到 cap
		{10, 15 * time.Minute},
		{0, 30 * time.Second}, // 非法输入按 1 处理
	}
	for _, c := range cases {
		if got := p.Delay(c.retry); got != c.want {
			t.Errorf("Delay(%d) = %v, want %v", c.retry, got, c.want)
		}
	}
}
