package credential

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kiendt120702/ShopeeAPIBetacomSub-sub001/internal/model"
)

// DBStore 持久化到关系库的凭证存储
//
// 与店铺资料共用 shops 表（按 shopee_shop_id 定位行），所以：
//   - Save 走 upsert：行不存在则插入，存在则只覆盖 token 相关列
//   - Clear 只清空 token 列，店铺行必须保留
type DBStore struct {
	db     *gorm.DB
	shopID int64 // Shopee 平台的 shop_id
}

var _ Store = (*DBStore)(nil)

// NewDBStore 创建数据库凭证存储，绑定到指定店铺
func NewDBStore(db *gorm.DB, shopID int64) *DBStore {
	return &DBStore{db: db, shopID: shopID}
}

func (s *DBStore) Save(ctx context.Context, cred *Credential) error {
	expiresAt := cred.ExpiredAt
	shop := model.Shop{
		ShopeeShopID:   s.shopID,
		MerchantID:     cred.MerchantID,
		Status:         model.ShopStatusActive,
		TokenStatus:    model.TokenStatusValid,
		AccessToken:    cred.AccessToken,
		RefreshToken:   cred.RefreshToken,
		TokenExpiresAt: &expiresAt,
		TokenExpiresIn: cred.ExpiresIn,
	}

	// 原子覆盖：冲突时只更新 token 列，不碰店铺资料列
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "shopee_shop_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"merchant_id", "token_status",
			"access_token", "refresh_token", "token_expires_at", "token_expires_in",
			"updated_at",
		}),
	}).Create(&shop).Error
}

func (s *DBStore) Get(ctx context.Context) (*Credential, error) {
	var shop model.Shop
	err := s.db.WithContext(ctx).
		Where("shopee_shop_id = ?", s.shopID).
		First(&shop).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	// token 列已被 Clear 清空的行等同于无凭证
	if shop.AccessToken == "" || shop.RefreshToken == "" {
		return nil, nil
	}

	var expiredAt time.Time
	if shop.TokenExpiresAt != nil {
		expiredAt = *shop.TokenExpiresAt
	}

	return &Credential{
		ShopID:       shop.ShopeeShopID,
		MerchantID:   shop.MerchantID,
		AccessToken:  shop.AccessToken,
		RefreshToken: shop.RefreshToken,
		ExpiresIn:    shop.TokenExpiresIn,
		ExpiredAt:    expiredAt,
	}, nil
}

func (s *DBStore) Clear(ctx context.Context) error {
	// 只清 token 字段，shops 行及其资料保留
	return s.db.WithContext(ctx).
		Model(&model.Shop{}).
		Where("shopee_shop_id = ?", s.shopID).
		Updates(map[string]interface{}{
			"access_token":     "",
			"refresh_token":    "",
			"token_expires_at": nil,
			"token_expires_in": 0,
			"token_status":     model.TokenStatusInvalid,
		}).Error
}
