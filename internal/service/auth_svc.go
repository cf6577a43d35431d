package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/kiendt120702/ShopeeAPIBetacomSub-sub001/internal/credential"
	"github.com/kiendt120702/ShopeeAPIBetacomSub-sub001/internal/model"
	"github.com/kiendt120702/ShopeeAPIBetacomSub-sub001/internal/repository"
	"github.com/kiendt120702/ShopeeAPIBetacomSub-sub001/pkg/shopee"
	"github.com/kiendt120702/ShopeeAPIBetacomSub-sub001/pkg/utils"
)

// AuthService 授权流程 + token 刷新
// 同时实现 credential.Refresher，供生命周期管理器回调
type AuthService struct {
	client      *shopee.Client
	shopRepo    repository.ShopRepository
	jobRepo     repository.SyncJobRepository
	credFactory credential.StoreFactory
	redirectURL string
}

var _ credential.Refresher = (*AuthService)(nil)

// NewAuthService 工厂方法
func NewAuthService(
	client *shopee.Client,
	shopRepo repository.ShopRepository,
	jobRepo repository.SyncJobRepository,
	credFactory credential.StoreFactory,
	redirectURL string,
) *AuthService {
	return &AuthService{
		client:      client,
		shopRepo:    shopRepo,
		jobRepo:     jobRepo,
		credFactory: credFactory,
		redirectURL: redirectURL,
	}
}

// GenerateAuthURL 生成店铺授权链接
// Shopee 回调不原生携带 state，把 state 拼在 redirect 上带回来校验
func (s *AuthService) GenerateAuthURL(region string) (string, error) {
	state := uuid.NewString()
	utils.SetState(state, region)

	redirect, err := url.Parse(s.redirectURL)
	if err != nil {
		return "", fmt.Errorf("redirect url 配置无效: %w", err)
	}
	q := redirect.Query()
	q.Set("state", state)
	redirect.RawQuery = q.Encode()

	return s.client.AuthPartnerURL(redirect.String()), nil
}

// HandleCallback 处理授权回调：code 换 token 并入库
func (s *AuthService) HandleCallback(ctx context.Context, code, state string, shopID int64) error {
	// 1. 校验 state（一次性，用完即焚）
	if _, ok := utils.ConsumeState(state); !ok {
		return errors.New("授权超时或 state 无效，请重新发起")
	}

	// 2. 换取 token
	tokenResp, err := s.client.GetAccessToken(ctx, code, shopID)
	if err != nil {
		return fmt.Errorf("换取 token 失败: %w", err)
	}

	// 3. 组装凭证并整体覆盖入库
	cred := s.buildCredential(shopID, tokenResp)
	if err := s.credFactory(shopID).Save(ctx, cred); err != nil {
		return fmt.Errorf("凭证入库失败: %w", err)
	}

	// 4. 首次授权后立即排一个店铺资料同步，让面板尽快有数据
	if _, err := s.jobRepo.Enqueue(ctx, shopID, model.EntityShopProfile); err != nil {
		log.Printf("[Auth] 店铺 %d 首次资料同步入队失败: %v", shopID, err)
	}

	log.Printf("[Auth] 店铺 %d 授权成功，token 有效期 %d 秒", shopID, tokenResp.ExpireIn)
	return nil
}

// Disconnect 断开授权
// 只清 token 字段，店铺行与镜像数据保留
func (s *AuthService) Disconnect(ctx context.Context, shopID int64) error {
	return s.credFactory(shopID).Clear(ctx)
}

// Refresh 实现 credential.Refresher
// 并发串行化由 credential.Manager 负责，这里只管发一次刷新请求
func (s *AuthService) Refresh(ctx context.Context, cred *credential.Credential) (*credential.Credential, error) {
	tokenResp, err := s.client.RefreshAccessToken(ctx, cred.RefreshToken, cred.ShopID)
	if err != nil {
		// 授权方明确拒绝（非临时性错误）时同步标记店铺 token 状态，
		// 前端据此引导重新授权；凭证本身不清除
		var apiErr *shopee.APIError
		if errors.As(err, &apiErr) && !apiErr.Retryable() {
			if updErr := s.shopRepo.UpdateTokenStatus(ctx, cred.ShopID, model.TokenStatusInvalid); updErr != nil {
				log.Printf("[Auth] 店铺 %d 标记 token 失效失败: %v", cred.ShopID, updErr)
			}
		}
		return nil, err
	}

	return s.buildCredential(cred.ShopID, tokenResp), nil
}

func (s *AuthService) buildCredential(shopID int64, resp *shopee.TokenResponse) *credential.Credential {
	merchantID := resp.MerchantID
	return &credential.Credential{
		ShopID:       shopID,
		MerchantID:   merchantID,
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresIn:    resp.ExpireIn,
		ExpiredAt:    time.Now().Add(time.Duration(resp.ExpireIn) * time.Second),
	}
}
