package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/kiendt120702/ShopeeAPIBetacomSub-sub001/internal/credential"
	"github.com/kiendt120702/ShopeeAPIBetacomSub-sub001/internal/model"
	"github.com/kiendt120702/ShopeeAPIBetacomSub-sub001/internal/repository"
	"github.com/kiendt120702/ShopeeAPIBetacomSub-sub001/pkg/shopee"
)

// fakeClient 假平台客户端
type fakeClient struct {
	flashSales []shopee.FlashSale
	campaigns  []shopee.AdCampaign
	shopInfo   *shopee.ShopInfo
	err        error
}

func (f *fakeClient) GetShopFlashSales(context.Context, string, int64) ([]shopee.FlashSale, error) {
	return f.flashSales, f.err
}
func (f *fakeClient) GetAdCampaigns(context.Context, string, int64) ([]shopee.AdCampaign, error) {
	return f.campaigns, f.err
}
func (f *fakeClient) GetShopInfo(context.Context, string, int64) (*shopee.ShopInfo, error) {
	return f.shopInfo, f.err
}

// 广告镜像表的 sqlite 版结构（生产列 item_ids 为 bigint[]）
type testAdTable struct {
	ID          int64 `gorm:"primaryKey"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ShopID      int64  `gorm:"index;uniqueIndex:idx_ad_campaign_key;not null"`
	CampaignID  int64  `gorm:"uniqueIndex:idx_ad_campaign_key;not null"`
	Name        string `gorm:"size:255"`
	AdType      string `gorm:"size:32"`
	Status      string `gorm:"size:32"`
	DailyBudget float64
	ItemIDs     string    `gorm:"column:item_ids;type:text"`
	RawPayload  string    `gorm:"type:text"`
	SyncedAt    time.Time `gorm:"index"`
}

func (testAdTable) TableName() string { return "ad_campaign_mirrors" }

type workerFixture struct {
	db         *gorm.DB
	jobRepo    repository.SyncJobRepository
	mirrorRepo repository.MirrorRepository
	store      *credential.MemoryStore
}

func setupWorker(t *testing.T, client PlatformClient) (*SyncWorker, *workerFixture) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("连接测试数据库失败: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("获取底层 SQL DB 失败: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&model.FlashSaleMirror{},
		&testAdTable{},
		&model.ShopProfileMirror{},
		&model.SyncJob{},
	)
	if err != nil {
		t.Fatalf("数据库迁移失败: %v", err)
	}

	jobRepo := repository.NewSyncJobRepository(db, 3, repository.BackoffPolicy{
		Base: time.Millisecond, Cap: 8 * time.Millisecond,
	})
	mirrorRepo := repository.NewMirrorRepository(db)

	// 有效期很长的凭证 + 永远不该被调用的刷新器
	store := credential.NewMemoryStore(100)
	store.Save(context.Background(), &credential.Credential{
		ShopID:      100,
		AccessToken: "tok",
		ExpiredAt:   time.Now().Add(4 * time.Hour),
	})
	manager := credential.NewManager(
		func(int64) credential.Store { return store },
		credential.RefresherFunc(func(context.Context, *credential.Credential) (*credential.Credential, error) {
			t.Error("凭证未临期，不应触发刷新")
			return nil, errors.New("unexpected refresh")
		}),
		5*time.Minute,
	)

	worker := NewSyncWorker(jobRepo, mirrorRepo, manager, client, 1, 10*time.Millisecond, 5*time.Second)
	return worker, &workerFixture{db: db, jobRepo: jobRepo, mirrorRepo: mirrorRepo, store: store}
}

// enqueueAndClaim 入队并认领，拿到 running 状态的任务
func enqueueAndClaim(t *testing.T, repo repository.SyncJobRepository, shopID int64, entity model.EntityType) *model.SyncJob {
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

func TestSyncWorker_FlashSaleSuccess(t *testing.T) {
	client := &fakeClient{flashSales: []shopee.FlashSale{
		{FlashSaleID: 1001, Status: 2, StartTime: 1700000000, ItemCount: 3, Raw: []byte(`{"flash_sale_id":1001}`)},
		{FlashSaleID: 1002, Status: 1, StartTime: 1700010000, ItemCount: 5, Raw: []byte(`{"flash_sale_id":1002}`)},
	}}
	worker, fx := setupWorker(t, client)
	ctx := context.Background()

	job := enqueueAndClaim(t, fx.jobRepo, 100, model.EntityFlashSale)
	worker.Execute(job)

	// 任务终态
	done, _ := fx.jobRepo.GetByID(ctx, job.ID)
	if done.Status != model.SyncJobSucceeded {
		t.Fatalf("任务状态 = %s (%s), want succeeded", done.Status, done.ErrorMessage)
	}

	// 镜像落库且批内 synced_at 统一
	items, _ := fx.mirrorRepo.ListFlashSales(ctx, 100)
	if len(items) != 2 {
		t.Fatalf("镜像行数 = %d, want 2", len(items))
	}
	if !items[0].SyncedAt.Equal(items[1].SyncedAt) {
		t.Error("批内 synced_at 应统一")
	}
	if len(items[0].RawPayload) == 0 {
		t.Error("原始快照应落进 raw_payload")
	}
}

func TestSyncWorker_ShopProfileSuccess(t *testing.T) {
	client := &fakeClient{shopInfo: &shopee.ShopInfo{
		ShopName: "测试店", Region: "SG", Status: "NORMAL", ItemCount: 7,
		Raw: []byte(`{"shop_name":"测试店"}`),
	}}
	worker, fx := setupWorker(t, client)
	ctx := context.Background()

	job := enqueueAndClaim(t, fx.jobRepo, 100, model.EntityShopProfile)
	worker.Execute(job)

	done, _ := fx.jobRepo.GetByID(ctx, job.ID)
	if done.Status != model.SyncJobSucceeded {
		t.Fatalf("任务状态 = %s (%s), want succeeded", done.Status, done.ErrorMessage)
	}

	profile, _ := fx.mirrorRepo.GetShopProfile(ctx, 100)
	if profile == nil || profile.ShopName != "测试店" {
		t.Errorf("资料镜像异常: %+v", profile)
	}
}

func TestSyncWorker_RetryableFailure(t *testing.T) {
	client := &fakeClient{err: &shopee.APIError{Code: shopee.ErrCodeServer, Message: "internal"}}
	worker, fx := setupWorker(t, client)
	ctx := context.Background()

	job := enqueueAndClaim(t, fx.jobRepo, 100, model.EntityFlashSale)
	worker.Execute(job)

	// 可重试错误：回到 pending 等待退避重试
	failed, _ := fx.jobRepo.GetByID(ctx, job.ID)
	if failed.Status != model.SyncJobPending {
		t.Errorf("状态 = %s, want pending", failed.Status)
	}
	if failed.RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1", failed.RetryCount)
	}

	// 镜像不受失败影响
	items, _ := fx.mirrorRepo.ListFlashSales(ctx, 100)
	if len(items) != 0 {
		t.Errorf("失败任务不应写镜像, got %d 行", len(items))
	}
}

func TestSyncWorker_TerminalFailure(t *testing.T) {
	client := &fakeClient{err: &shopee.APIError{Code: shopee.ErrCodeParam, Message: "bad param"}}
	worker, fx := setupWorker(t, client)
	ctx := context.Background()

	job := enqueueAndClaim(t, fx.jobRepo, 100, model.EntityAdCampaign)
	worker.Execute(job)

	// 参数类错误重试无意义，直接终态
	failed, _ := fx.jobRepo.GetByID(ctx, job.ID)
	if failed.Status != model.SyncJobFailed {
		t.Errorf("状态 = %s, want failed", failed.Status)
	}
	if failed.DedupKey != nil {
		t.Error("终态任务应释放 dedup_key")
	}
}

func TestSyncWorker_NoCredentialTerminal(t *testing.T) {
	client := &fakeClient{flashSales: []shopee.FlashSale{{FlashSaleID: 1}}}
	worker, fx := setupWorker(t, client)
	ctx := context.Background()

	// 清掉凭证：任务应直接失败，不做无谓重试
	fx.store.Clear(ctx)

	job := enqueueAndClaim(t, fx.jobRepo, 100, model.EntityFlashSale)
	worker.Execute(job)

	failed, _ := fx.jobRepo.GetByID(ctx, job.ID)
	if failed.Status != model.SyncJobFailed {
		t.Errorf("状态 = %s, want failed", failed.Status)
	}
}

func TestSyncWorker_StartStop(t *testing.T) {
	client := &fakeClient{flashSales: []shopee.FlashSale{
		{FlashSaleID: 1, Raw: []byte(`{}`)},
	}}
	worker, fx := setupWorker(t, client)
	ctx := context.Background()

	fx.jobRepo.Enqueue(ctx, 100, model.EntityFlashSale)

	worker.Start()
	// 等 worker 轮询认领并执行
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		items, _ := fx.mirrorRepo.ListFlashSales(ctx, 100)
		if len(items) == 1 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	worker.Stop()

	items, _ := fx.mirrorRepo.ListFlashSales(ctx, 100)
	if len(items) != 1 {
		t.Fatalf("后台 worker 未消费任务, 镜像行数 = %d", len(items))
	}
}

func TestSyncWorker_StartRecoversStuckJob(t *testing.T) {
	client := &fakeClient{flashSales: []shopee.FlashSale{
		{FlashSaleID: 1, Raw: []byte(`{}`)},
	}}
	worker, fx := setupWorker(t, client)
	ctx := context.Background()

	// 模拟上次进程崩溃：任务卡在 running
	stuck := enqueueAndClaim(t, fx.jobRepo, 100, model.EntityFlashSale)

	worker.Start()
	// 启动清扫应把僵尸任务拉回 pending，随后被正常消费
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		job, _ := fx.jobRepo.GetByID(ctx, stuck.ID)
		if job != nil && job.Status == model.SyncJobSucceeded {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	worker.Stop()

	done, _ := fx.jobRepo.GetByID(ctx, stuck.ID)
	if done.Status != model.SyncJobSucceeded {
		t.Fatalf("重启后滞留任务未被回收执行, 状态 = %s", done.Status)
	}
	items, _ := fx.mirrorRepo.ListFlashSales(ctx, 100)
	if len(items) != 1 {
		t.Fatalf("镜像行数 = %d, want 1", len(items))
	}
}

func TestClassifyTerminal(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"无凭证", credential.ErrNoCredential, true},
		{"刷新失败", credential.ErrRefreshFailed, false},
		{"参数错误", &shopee.APIError{Code: shopee.ErrCodeParam}, true},
		{"权限错误", &shopee.APIError{Code: shopee.ErrCodePermission}, true},
		{"签名错误", &shopee.APIError{Code: shopee.ErrCodeSign}, true},
		{"服务端错误", &shopee.APIError{Code: shopee.ErrCodeServer}, false},
		{"限流", &shopee.APIError{Code: shopee.ErrCodeRateLimit}, false},
		{"未知错误码", &shopee.APIError{Code: "error_mystery"}, false},
		{"网络错误", errors.New("connection refused"), false},
	}
	for _, c := range cases {
		if got := classifyTerminal(c.err); got != c.want {
			t.Errorf("%s: classifyTerminal = %v, want %v", c.name, got, c.want)
		}
	}
}
