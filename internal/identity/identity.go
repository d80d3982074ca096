// Package identity отдает отображаемые имена по адресам кошельков.
package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Directory - внешний источник имен профилей.
type Directory interface {
	Name(ctx context.Context, address string) (string, error)
}

// ErrUnknown - у адреса нет профиля.
var ErrUnknown = errors.New("identity: unknown address")

// RedisDirectory читает имена из хэша Redis, который ведет сервис профилей.
type RedisDirectory struct {
	client *redis.Client
	key    string
}

// NewRedisDirectory создает RedisDirectory поверх хэша key.
func NewRedisDirectory(client *redis.Client, key string) *RedisDirectory {
	return &RedisDirectory{client: client, key: key}
}

// Name возвращает имя по адресу.
func (d *RedisDirectory) Name(ctx context.Context, address string) (string, error) {
	name, err := d.client.HGet(ctx, d.key, strings.ToLower(address)).Result()
	if errors.Is(err, redis.Nil) || (err == nil && name == "") {
		return "", ErrUnknown
	}
	return name, err
}

// Cache кэширует имена с ограничением по размеру и времени жизни.
// Ошибки источника не пробрасываются: вместо имени возвращается сокращенный адрес.
type Cache struct {
	dir Directory
	lru *expirable.LRU[string, string]
}

// NewCache создает кэш имен. dir может быть nil - тогда всегда возвращается сокращенный адрес.
func NewCache(dir Directory, size int, ttl time.Duration) *Cache {
	if size <= 0 {
		size = 1024
	}
	return &Cache{
		dir: dir,
		lru: expirable.NewLRU[string, string](size, nil, ttl),
	}
}

// Name возвращает отображаемое имя адреса.
func (c *Cache) Name(ctx context.Context, address string) string {
	key := strings.ToLower(strings.TrimSpace(address))
	if key == "" {
		return ""
	}
	if name, ok := c.lru.Get(key); ok {
		return name
	}
	if c.dir == nil {
		return ShortAddress(address)
	}
	name, err := c.dir.Name(ctx, address)
	if err != nil {
		// неизвестные адреса тоже кэшируем, иначе каждое уведомление идет в источник
		if errors.Is(err, ErrUnknown) {
			c.lru.Add(key, ShortAddress(address))
		}
		return ShortAddress(address)
	}
	c.lru.Add(key, name)
	return name
}

// ShortAddress сокращает адрес до вида 0x1234...abcd.
func ShortAddress(address string) string {
	address = strings.TrimSpace(address)
	if len(address) <= 12 {
		return address
	}
	return address[:6] + "..." + address[len(address)-4:]
}
