package credential

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "studio:key:"

type memoryEntry struct {
	key       string
	expiresAt time.Time
}

// Store - 세션별로 선택된 API 키 저장소
// Redis 가 없으면 프로세스 메모리에 저장 (개발 환경)
type Store struct {
	redis *redis.Client
	ttl   time.Duration

	mu     sync.Mutex
	memory map[string]memoryEntry
	now    func() time.Time
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	if rdb == nil {
		log.Println("⚠️  [Credential] Redis not available, keeping selected keys in memory")
	}
	return &Store{
		redis:  rdb,
		ttl:    ttl,
		memory: make(map[string]memoryEntry),
		now:    time.Now,
	}
}

func storeKey(sessionID string) string {
	return keyPrefix + sessionID
}

// Set stores key for the session, refreshing its TTL.
func (s *Store) Set(ctx context.Context, sessionID, key string) error {
	if s.redis == nil {
		s.mu.Lock()
		entry := memoryEntry{key: key}
		if s.ttl > 0 {
			entry.expiresAt = s.now().Add(s.ttl)
		}
		s.memory[sessionID] = entry
		s.mu.Unlock()
		return nil
	}

	if err := s.redis.Set(ctx, storeKey(sessionID), key, s.ttl).Err(); err != nil {
		log.Printf("⚠️ [Credential] Failed to save key: %v", err)
		return fmt.Errorf("failed to save key: %w", err)
	}
	return nil
}

// Get returns the session's key, or "" when none is stored.
func (s *Store) Get(ctx context.Context, sessionID string) (string, error) {
	if s.redis == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		entry, ok := s.memory[sessionID]
		if !ok {
			return "", nil
		}
		if !entry.expiresAt.IsZero() && !s.now().Before(entry.expiresAt) {
			delete(s.memory, sessionID)
			return "", nil
		}
		return entry.key, nil
	}

	key, err := s.redis.Get(ctx, storeKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read key: %w", err)
	}
	return key, nil
}

// Delete forgets the session's key.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if s.redis == nil {
		s.mu.Lock()
		delete(s.memory, sessionID)
		s.mu.Unlock()
		return nil
	}
	return s.redis.Del(ctx, storeKey(sessionID)).Err()
}
