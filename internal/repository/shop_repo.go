package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/kiendt120702/ShopeeAPIBetacomSub-sub001/internal/model"
)

// ==================== 接口定义 ====================

// ShopRepository 店铺仓储接口
type ShopRepository interface {
	Create(ctx context.Context, shop *model.Shop) error
	GetByID(ctx context.Context, id int64) (*model.Shop, error)
	GetByShopeeShopID(ctx context.Context, shopeeShopID int64) (*model.Shop, error)
	List(ctx context.Context, filter ShopFilter) ([]model.Shop, int64, error)

	// Token 状态
	UpdateTokenStatus(ctx context.Context, shopeeShopID int64, tokenStatus string) error
	FindExpiringShops(ctx context.Context, buffer time.Duration) ([]model.Shop, error)
}

// ==================== 过滤条件 ====================

// ShopFilter 店铺过滤条件
type ShopFilter struct {
	Region      string
	Status      int    // -1 表示不筛选
	TokenStatus string // 空表示不筛选
	Page        int
	PageSize    int
}

// ==================== 仓储实现 ====================

type shopRepo struct {
	db *gorm.DB
}

// NewShopRepository 创建店铺仓储
func NewShopRepository(db *gorm.DB) ShopRepository {
	return &shopRepo{db: db}
}

func (r *shopRepo) Create(ctx context.Context, shop *model.Shop) error {
	return r.db.WithContext(ctx).Create(shop).Error
}

func (r *shopRepo) GetByID(ctx context.Context, id int64) (*model.Shop, error) {
	var shop model.Shop
	if err := r.db.WithContext(ctx).First(&shop, id).Error; err != nil {
		return nil, err
	}
	return &shop, nil
}

func (r *shopRepo) GetByShopeeShopID(ctx context.Context, shopeeShopID int64) (*model.Shop, error) {
	var shop model.Shop
	if err := r.db.WithContext(ctx).Where("shopee_shop_id = ?", shopeeShopID).First(&shop).Error; err != nil {
		return nil, err
	}
	return &shop, nil
}

func (r *shopRepo) List(ctx context.Context, filter ShopFilter) ([]model.Shop, int64, error) {
	var shops []model.Shop
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Shop{})

	if filter.Region != "" {
		query = query.Where("region = ?", filter.Region)
	}
	if filter.Status >= 0 {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.TokenStatus != "" {
		query = query.Where("token_status = ?", filter.TokenStatus)
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
	if err := query.Order("created_at DESC").Limit(filter.PageSize).Offset(offset).Find(&shops).Error; err != nil {
		return nil, 0, err
	}

	return shops, total, nil
}

func (r *shopRepo) UpdateTokenStatus(ctx context.Context, shopeeShopID int64, tokenStatus string) error {
	return r.db.WithContext(ctx).
		Model(&model.Shop{}).
		Where("shopee_shop_id = ?", shopeeShopID).
		Update("token_status", tokenStatus).Error
}

// FindExpiringShops 查找 token 即将进入刷新缓冲期的店铺
// 只看状态有效且带凭证的行，保活任务据此批量预刷新
func (r *shopRepo) FindExpiringShops(ctx context.Context, buffer time.Duration) ([]model.Shop, error) {
	var shops []model.Shop
	deadline := time.Now().Add(buffer)
	err := r.db.WithContext(ctx).
		Model(&model.Shop{}).
		Where("token_status = ? AND access_token <> '' AND token_expires_at <= ?", model.TokenStatusValid, deadline).
		Find(&shops).Error
	return shops, err
}
