package credential

import (
	"context"
	"sync"
)

// MemoryStore 进程内凭证存储
// 用于测试和无持久化需求的一次性会话
type MemoryStore struct {
	shopID int64

	mu   sync.RWMutex
	cred *Credential
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore 创建内存存储，绑定到指定店铺
func NewMemoryStore(shopID int64) *MemoryStore {
	return &MemoryStore{shopID: shopID}
}

func (s *MemoryStore) Save(_ context.Context, cred *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// 存副本，避免调用方后续改动污染存储
	cp := *cred
	cp.ShopID = s.shopID
	s.cred = &cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cred == nil {
		return nil, nil
	}
	cp := *s.cred
	return &cp, nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = nil
	return nil
}
