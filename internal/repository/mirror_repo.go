package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kiendt120702/ShopeeAPIBetacomSub-sub001/internal/model"
)

// ==================== 接口定义 ====================

// MirrorRepository 镜像表仓储
//
// 写路径只有 Batch/Upsert 系列：单次拉取的全部记录在一个事务里整体提交，
// synced_at 取拉取完成时间并在批内统一——批次在新鲜度意义上不可分割。
// 自然键冲突按 last-write-wins 覆盖。
type MirrorRepository interface {
	BatchUpsertFlashSales(ctx context.Context, shopID int64, items []model.FlashSaleMirror, syncedAt time.Time) error
	BatchUpsertAdCampaigns(ctx context.Context, shopID int64, items []model.AdCampaignMirror, syncedAt time.Time) error
	UpsertShopProfile(ctx context.Context, profile *model.ShopProfileMirror, syncedAt time.Time) error

	ListFlashSales(ctx context.Context, shopID int64) ([]model.FlashSaleMirror, error)
	ListAdCampaigns(ctx context.Context, shopID int64) ([]model.AdCampaignMirror, error)
	GetShopProfile(ctx context.Context, shopID int64) (*model.ShopProfileMirror, error)

	// LatestSyncedAt 返回该实体最近一次成功同步的批次时间，无记录返回 nil
	LatestSyncedAt(ctx context.Context, entity model.EntityType, shopID int64) (*time.Time, error)
}

// ==================== 仓储实现 ====================

type mirrorRepo struct {
	db *gorm.DB
}

// NewMirrorRepository 创建镜像仓储
func NewMirrorRepository(db *gorm.DB) MirrorRepository {
	return &mirrorRepo{db: db}
}

func (r *mirrorRepo) BatchUpsertFlashSales(ctx context.Context, shopID int64, items []model.FlashSaleMirror, syncedAt time.Time) error {
	if len(items) == 0 {
		return nil
	}
	for i := range items {
		items[i].ShopID = shopID
		items[i].SyncedAt = syncedAt
	}

	// 整批一个事务：要么全部落库，要么保持旧快照原样
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "shop_id"}, {Name: "flash_sale_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"timeslot_id", "status", "type",
				"start_time", "end_time",
				"item_count", "enabled_item_count",
				"raw_payload", "synced_at", "updated_at",
			}),
		}).Create(&items).Error
	})
}

func (r *mirrorRepo) BatchUpsertAdCampaigns(ctx context.Context, shopID int64, items []model.AdCampaignMirror, syncedAt time.Time) error {
	if len(items) == 0 {
		return nil
	}
	for i := range items {
		items[i].ShopID = shopID
		items[i].SyncedAt = syncedAt
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "shop_id"}, {Name: "campaign_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "ad_type", "status", "daily_budget", "item_ids",
				"raw_payload", "synced_at", "updated_at",
			}),
		}).Create(&items).Error
	})
}

func (r *mirrorRepo) UpsertShopProfile(ctx context.Context, profile *model.ShopProfileMirror, syncedAt time.Time) error {
	profile.SyncedAt = syncedAt

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "shop_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"shop_name", "region", "shop_status",
			"item_count", "follower_count", "rating_star", "description",
			"raw_payload", "synced_at", "updated_at",
		}),
	}).Create(profile).Error
}

func (r *mirrorRepo) ListFlashSales(ctx context.Context, shopID int64) ([]model.FlashSaleMirror, error) {
	var items []model.FlashSaleMirror
	err := r.db.WithContext(ctx).
		Where("shop_id = ?", shopID).
		Order("start_time DESC").
		Find(&items).Error
	return items, err
}

func (r *mirrorRepo) ListAdCampaigns(ctx context.Context, shopID int64) ([]model.AdCampaignMirror, error) {
	var items []model.AdCampaignMirror
	err := r.db.WithContext(ctx).
		Where("shop_id = ?", shopID).
		Order("campaign_id DESC").
		Find(&items).Error
	return items, err
}

func (r *mirrorRepo) GetShopProfile(ctx context.Context, shopID int64) (*model.ShopProfileMirror, error) {
	var profile model.ShopProfileMirror
	err := r.db.WithContext(ctx).Where("shop_id = ?", shopID).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *mirrorRepo) LatestSyncedAt(ctx context.Context, entity model.EntityType, shopID int64) (*time.Time, error) {
	var table interface{}
	switch entity {
	case model.EntityFlashSale:
		table = &model.FlashSaleMirror{}
	case model.EntityAdCampaign:
		table = &model.AdCampaignMirror{}
	case model.EntityShopProfile:
		table = &model.ShopProfileMirror{}
	default:
		return nil, errors.New("未知实体类型: " + string(entity))
	}

	// MAX(synced_at) 在无行时为 NULL，扫进 *time.Time 自然得到 nil
	var latest *time.Time
	err := r.db.WithContext(ctx).
		Model(table).
		Where("shop_id = ?", shopID).
		Select("MAX(synced_at)").
		Scan(&latest).Error
	if err != nil {
		return nil, err
	}
	return latest, nil
}
