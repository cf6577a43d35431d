package credential

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltLen = 16
	keyLen  = 32 // AES-256
)

// EncryptedFileStore 客户端加密的本地凭证存储
//
// 落盘格式：salt(16) ‖ nonce(12) ‖ AES-256-GCM 密文
// 密钥由口令经 PBKDF2-SHA256 派生，salt 每次 Save 重新生成。
// 解密/解码失败视为不可恢复：删除坏文件并返回无凭证（自愈），
// 绝不让调用方一直卡在读取失败上。
type EncryptedFileStore struct {
	shopID     int64
	dir        string
	passphrase string
	iterations int
}

var _ Store = (*EncryptedFileStore)(nil)

// NewEncryptedFileStore 创建加密文件存储
// iterations 为 PBKDF2 迭代次数，来自配置，不在此处写死
func NewEncryptedFileStore(shopID int64, dir, passphrase string, iterations int) *EncryptedFileStore {
	return &EncryptedFileStore{
		shopID:     shopID,
		dir:        dir,
		passphrase: passphrase,
		iterations: iterations,
	}
}

// storedCredential 落盘的 JSON 结构，过期时间用毫秒时间戳
type storedCredential struct {
	ShopID       int64  `json:"shop_id"`
	MerchantID   int64  `json:"merchant_id,omitempty"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	ExpiredAtMS  int64  `json:"expired_at"`
}

func (s *EncryptedFileStore) path() string {
	return filepath.Join(s.dir, fmt.Sprintf("shop_%d.cred", s.shopID))
}

func (s *EncryptedFileStore) Save(_ context.Context, cred *Credential) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("创建凭证目录失败: %w", err)
	}

	stored := storedCredential{
		ShopID:       s.shopID,
		MerchantID:   cred.MerchantID,
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		ExpiresIn:    cred.ExpiresIn,
		ExpiredAtMS:  cred.ExpiredAt.UnixMilli(),
	}
	plain, err := json.Marshal(stored)
	if err != nil {
		return err
	}

	// 1. 生成 salt 并派生密钥
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return err
	}
	key := pbkdf2.Key([]byte(s.passphrase), salt, s.iterations, keyLen, sha256.New)

	// 2. AEAD 加密
	block, err := aes.NewCipher(key)
	if err != nil {
		return err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return err
	}
	sealed := gcm.Seal(nil, nonce, plain, nil)

	// 3. salt ‖ nonce ‖ 密文 一起落盘，先写临时文件再原子替换
	blob := make([]byte, 0, len(salt)+len(nonce)+len(sealed))
	blob = append(blob, salt...)
	blob = append(blob, nonce...)
	blob = append(blob, sealed...)

	tmp := s.path() + ".tmp"
	if err := os.WriteFile(tmp, blob, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path())
}

func (s *EncryptedFileStore) Get(_ context.Context) (*Credential, error) {
	blob, err := os.ReadFile(s.path())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	cred, err := s.decrypt(blob)
	if err != nil {
		// 不可恢复：篡改、口令变更或格式损坏。自愈清除，下次读直接无凭证
		log.Printf("[Credential] 店铺 %d 凭证文件损坏，已清除: %v", s.shopID, err)
		_ = os.Remove(s.path())
		return nil, nil
	}
	return cred, nil
}

func (s *EncryptedFileStore) Clear(_ context.Context) error {
	err := os.Remove(s.path())
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (s *EncryptedFileStore) decrypt(blob []byte) (*Credential, error) {
	if len(blob) < saltLen+12+1 {
		return nil, fmt.Errorf("凭证文件长度异常: %d", len(blob))
	}

	salt := blob[:saltLen]
	key := pbkdf2.Key([]byte(s.passphrase), salt, s.iterations, keyLen, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := blob[saltLen : saltLen+gcm.NonceSize()]
	sealed := blob[saltLen+gcm.NonceSize():]

	plain, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("解密失败: %w", err)
	}

	var stored storedCredential
	if err := json.Unmarshal(plain, &stored); err != nil {
		return nil, fmt.Errorf("解码失败: %w", err)
	}

	return &Credential{
		ShopID:       stored.ShopID,
		MerchantID:   stored.MerchantID,
		AccessToken:  stored.AccessToken,
		RefreshToken: stored.RefreshToken,
		ExpiresIn:    stored.ExpiresIn,
		ExpiredAt:    time.UnixMilli(stored.ExpiredAtMS),
	}, nil
}
