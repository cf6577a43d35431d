package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/kiendt120702/ShopeeAPIBetacomSub-sub001/internal/model"
)

// Config 全局配置
// 原则：算法里不落任何硬编码参数，TTL / 重试 / 退避 / 加密强度全部集中在这里
type Config struct {
	// 服务
	ServerPort  string
	DatabaseDSN string

	// Shopee 开放平台
	PartnerID   int64
	PartnerKey  string
	APIBaseURL  string
	RedirectURL string

	// 凭证存储
	CredentialBackend    string // memory | file | db
	CredentialDir        string // file 后端的存储目录
	CredentialPassphrase string // file 后端的加密口令
	KDFIterations        int    // PBKDF2 迭代次数

	// 凭证生命周期
	RefreshBuffer time.Duration // 过期前多久开始主动刷新

	// 镜像新鲜度 TTL（按实体类型）
	FlashSaleTTL   time.Duration
	AdCampaignTTL  time.Duration
	ShopProfileTTL time.Duration

	// 同步任务队列
	MaxRetries  int
	BackoffBase time.Duration
	BackoffCap  time.Duration

	// Worker
	WorkerCount  int
	WorkerPoll   time.Duration
	JobTimeout   time.Duration // 单次远端调用的墙钟预算
	SyncCooldown time.Duration // 手动触发同步的冷却间隔
}

// Load 加载配置
// .env 文件可选，环境变量优先
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ServerPort:  getEnv("SERVER_PORT", "8080"),
		DatabaseDSN: getEnv("DATABASE_DSN", "host=localhost user=shopee_admin password=1234 dbname=shopee_dash port=5432 sslmode=disable"),

		PartnerID:   getInt64("SHOPEE_PARTNER_ID", 0),
		PartnerKey:  getEnv("SHOPEE_PARTNER_KEY", ""),
		APIBaseURL:  getEnv("SHOPEE_API_BASE_URL", "https://partner.shopeemobile.com"),
		RedirectURL: getEnv("SHOPEE_REDIRECT_URL", "http://localhost:8080/api/auth/callback"),

		CredentialBackend:    getEnv("CREDENTIAL_BACKEND", "db"),
		CredentialDir:        getEnv("CREDENTIAL_DIR", "./credentials"),
		CredentialPassphrase: getEnv("CREDENTIAL_PASSPHRASE", ""),
		KDFIterations:        getInt("CREDENTIAL_KDF_ITERATIONS", 120000),

		RefreshBuffer: getDuration("TOKEN_REFRESH_BUFFER", 5*time.Minute),

		FlashSaleTTL:   getDuration("FLASH_SALE_TTL", 5*time.Minute),
		AdCampaignTTL:  getDuration("AD_CAMPAIGN_TTL", 10*time.Minute),
		ShopProfileTTL: getDuration("SHOP_PROFILE_TTL", 30*time.Minute),

		MaxRetries:  getInt("SYNC_MAX_RETRIES", 5),
		BackoffBase: getDuration("SYNC_BACKOFF_BASE", 30*time.Second),
		BackoffCap:  getDuration("SYNC_BACKOFF_CAP", 15*time.Minute),

		WorkerCount:  getInt("SYNC_WORKER_COUNT", 4),
		WorkerPoll:   getDuration("SYNC_WORKER_POLL", 2*time.Second),
		JobTimeout:   getDuration("SYNC_JOB_TIMEOUT", 20*time.Second),
		SyncCooldown: getDuration("SYNC_COOLDOWN", time.Minute),
	}
}

// Validate 校验必填项
func (c *Config) Validate() error {
	if c.PartnerID == 0 || c.PartnerKey == "" {
		return fmt.Errorf("SHOPEE_PARTNER_ID / SHOPEE_PARTNER_KEY 未配置")
	}
	if c.CredentialBackend == "file" && c.CredentialPassphrase == "" {
		return fmt.Errorf("file 凭证后端需要 CREDENTIAL_PASSPHRASE")
	}
	return nil
}

// TTLFor 按实体类型取镜像 TTL
func (c *Config) TTLFor(entity model.EntityType) time.Duration {
	switch entity {
	case model.EntityFlashSale:
		return c.FlashSaleTTL
	case model.EntityAdCampaign:
		return c.AdCampaignTTL
	case model.EntityShopProfile:
		return c.ShopProfileTTL
	}
	return c.FlashSaleTTL
}

// ==================== 工具函数 ====================

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getInt64(key string, defaultValue int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}
