package shopee

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

// API 路径常量
const (
	pathAuthPartner   = "/api/v2/shop/auth_partner"
	pathTokenGet      = "/api/v2/auth/token/get"
	pathTokenRefresh  = "/api/v2/auth/access_token/get"
	pathFlashSaleList = "/api/v2/shop_flash_sale/get_shop_flash_sale_list"
	pathAdCampaigns   = "/api/v2/ads/get_campaign_list"
	pathShopInfo      = "/api/v2/shop/get_shop_info"

	// 列表接口单页条数
	pageSize = 100
	// 分页拉取的页数硬上限，防止远端 total_count 异常导致死循环
	maxPages = 50
)

// Client Shopee 开放平台客户端
// 所有请求带调用方 context；超时是强制的，超时按失败计入重试
type Client struct {
	http       *resty.Client
	partnerID  int64
	partnerKey string
}

// NewClient 创建客户端
func NewClient(baseURL string, partnerID int64, partnerKey string, timeout time.Duration) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:       httpClient,
		partnerID:  partnerID,
		partnerKey: partnerKey,
	}
}

// AuthPartnerURL 生成店铺授权链接
// 回调会带上 code 与 shop_id；state 由调用方拼在 redirect 上自行校验
func (c *Client) AuthPartnerURL(redirect string) string {
	ts := time.Now().Unix()
	sign := SignPublic(c.partnerID, c.partnerKey, pathAuthPartner, ts)

	q := url.Values{}
	q.Set("partner_id", strconv.FormatInt(c.partnerID, 10))
	q.Set("timestamp", strconv.FormatInt(ts, 10))
	q.Set("sign", sign)
	q.Set("redirect", redirect)

	return c.http.BaseURL + pathAuthPartner + "?" + q.Encode()
}

// GetAccessToken 用授权码换取 token（首次授权）
func (c *Client) GetAccessToken(ctx context.Context, code string, shopID int64) (*TokenResponse, error) {
	body := map[string]interface{}{
		"code":       code,
		"shop_id":    shopID,
		"partner_id": c.partnerID,
	}

	var result TokenResponse
	if err := c.postPublic(ctx, pathTokenGet, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RefreshAccessToken 刷新 token
// 注意：Shopee 的 refresh_token 是一次性的，成功后会轮换，
// 并发刷新必须在上层（credential.Manager）串行化
func (c *Client) RefreshAccessToken(ctx context.Context, refreshToken string, shopID int64) (*TokenResponse, error) {
	body := map[string]interface{}{
		"refresh_token": refreshToken,
		"shop_id":       shopID,
		"partner_id":    c.partnerID,
	}

	var result TokenResponse
	if err := c.postPublic(ctx, pathTokenRefresh, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetShopFlashSales 拉取店铺全部限时折扣场次（自动翻页）
// 任意一页失败即整体失败，调用方不得提交部分结果
func (c *Client) GetShopFlashSales(ctx context.Context, accessToken string, shopID int64) ([]FlashSale, error) {
	var all []FlashSale

	for page := 0; page < maxPages; page++ {
		var result flashSaleListResponse
		err := c.getShop(ctx, pathFlashSaleList, accessToken, shopID, map[string]string{
			"type":   "0", // 0 = 全部状态
			"offset": strconv.Itoa(page * pageSize),
			"limit":  strconv.Itoa(pageSize),
		}, &result)
		if err != nil {
			return nil, err
		}

		for _, raw := range result.Response.FlashSaleList {
			var fs FlashSale
			if err := json.Unmarshal(raw, &fs); err != nil {
				return nil, fmt.Errorf("解析 flash sale 响应失败: %w", err)
			}
			fs.Raw = raw
			all = append(all, fs)
		}

		if len(result.Response.FlashSaleList) < pageSize || len(all) >= result.Response.TotalCount {
			break
		}
	}

	return all, nil
}

// GetAdCampaigns 拉取店铺全部广告活动（自动翻页）
func (c *Client) GetAdCampaigns(ctx context.Context, accessToken string, shopID int64) ([]AdCampaign, error) {
	var all []AdCampaign

	for page := 0; page < maxPages; page++ {
		var result adCampaignListResponse
		err := c.getShop(ctx, pathAdCampaigns, accessToken, shopID, map[string]string{
			"offset": strconv.Itoa(page * pageSize),
			"limit":  strconv.Itoa(pageSize),
		}, &result)
		if err != nil {
			return nil, err
		}

		for _, raw := range result.Response.CampaignList {
			var camp AdCampaign
			if err := json.Unmarshal(raw, &camp); err != nil {
				return nil, fmt.Errorf("解析广告活动响应失败: %w", err)
			}
			camp.Raw = raw
			all = append(all, camp)
		}

		if len(result.Response.CampaignList) < pageSize || len(all) >= result.Response.TotalCount {
			break
		}
	}

	return all, nil
}

// GetShopInfo 拉取店铺资料
func (c *Client) GetShopInfo(ctx context.Context, accessToken string, shopID int64) (*ShopInfo, error) {
	var result shopInfoResponse
	if err := c.getShop(ctx, pathShopInfo, accessToken, shopID, nil, &result); err != nil {
		return nil, err
	}

	var info ShopInfo
	if err := json.Unmarshal(result.Response, &info); err != nil {
		return nil, fmt.Errorf("解析店铺资料响应失败: %w", err)
	}
	info.Raw = result.Response
	return &info, nil
}

// ==================== 内部请求封装 ====================

// envelope 供内部解码响应外壳
type envelope interface {
	apiErr() error
}

// postPublic 发送公共接口请求（token 换取/刷新，签名不含 access_token）
func (c *Client) postPublic(ctx context.Context, path string, body interface{}, out envelope) error {
	ts := time.Now().Unix()
	sign := SignPublic(c.partnerID, c.partnerKey, path, ts)

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"partner_id": strconv.FormatInt(c.partnerID, 10),
			"timestamp":  strconv.FormatInt(ts, 10),
			"sign":       sign,
		}).
		SetBody(body).
		Post(path)

	return c.decode(resp, err, out)
}

// getShop 发送店铺接口请求（签名含 access_token + shop_id）
func (c *Client) getShop(ctx context.Context, path, accessToken string, shopID int64, params map[string]string, out envelope) error {
	ts := time.Now().Unix()
	sign := SignShop(c.partnerID, c.partnerKey, path, ts, accessToken, shopID)

	req := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"partner_id":   strconv.FormatInt(c.partnerID, 10),
			"timestamp":    strconv.FormatInt(ts, 10),
			"sign":         sign,
			"access_token": accessToken,
			"shop_id":      strconv.FormatInt(shopID, 10),
		})
	if params != nil {
		req.SetQueryParams(params)
	}

	resp, err := req.Get(path)
	return c.decode(resp, err, out)
}

// decode 统一处理传输层错误与业务错误
func (c *Client) decode(resp *resty.Response, err error, out envelope) error {
	// 传输层错误（含超时），上层按可重试失败处理
	if err != nil {
		return fmt.Errorf("shopee request failed: %w", err)
	}

	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("shopee response decode failed (status %d): %w", resp.StatusCode(), err)
	}

	// 业务层错误（error 字段非空）
	if apiErr := out.apiErr(); apiErr != nil {
		return apiErr
	}

	if resp.StatusCode() != 200 {
		return &APIError{Code: ErrCodeServer, Message: fmt.Sprintf("unexpected status %d", resp.StatusCode())}
	}

	return nil
}
