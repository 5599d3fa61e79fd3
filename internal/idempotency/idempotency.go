// Package idempotency запоминает результат создания заказа по ключу Idempotency-Key.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TTL задаёт время жизни ключа идемпотентности.
const TTL = 24 * time.Hour

const keyOrderCreate = "idem:order:create:%d:%s"

// Key возвращает ключ хранилища для пользователя и клиентского ключа.
func Key(userID int64, clientKey string) string {
	return fmt.Sprintf(keyOrderCreate, userID, clientKey)
}

// RedisStore хранит ключи идемпотентности в Redis.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore подключается к Redis по адресу addr.
func NewRedisStore(addr string) *RedisStore {
	return &RedisStore{
		rdb: redis.NewClient(&redis.Options{
			Addr:         addr,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  2 * time.Second,
			WriteTimeout: 2 * time.Second,
		}),
		ttl: TTL,
	}
}

// Lookup возвращает идентификатор заказа, ранее созданного с этим ключом.
func (s *RedisStore) Lookup(ctx context.Context, userID int64, clientKey string) (int64, bool, error) {
	id, err := s.rdb.Get(ctx, Key(userID, clientKey)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("redis get: %w", err)
	}
	return id, true, nil
}

// Remember сохраняет идентификатор заказа для ключа.
func (s *RedisStore) Remember(ctx context.Context, userID int64, clientKey string, orderID int64) error {
	if err := s.rdb.Set(ctx, Key(userID, clientKey), orderID, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Ping проверяет соединение с Redis.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close закрывает соединения с Redis.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// MemoryStore хранит ключи в памяти процесса.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

type memoryEntry struct {
	orderID   int64
	expiresAt time.Time
}

// NewMemoryStore создаёт хранилище в памяти.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     TTL,
		now:     time.Now,
	}
}

func (s *MemoryStore) Lookup(ctx context.Context, userID int64, clientKey string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := Key(userID, clientKey)
	e, ok := s.entries[k]
	if !ok {
		return 0, false, nil
	}
	if s.now().After(e.expiresAt) {
		delete(s.entries, k)
		return 0, false, nil
	}
	return e.orderID, true, nil
}

func (s *MemoryStore) Remember(ctx context.Context, userID int64, clientKey string, orderID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[Key(userID, clientKey)] = memoryEntry{orderID: orderID, expiresAt: s.now().Add(s.ttl)}
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }
func (s *MemoryStore) Close() error                   { return nil }
