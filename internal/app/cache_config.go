package app

import (
	"strings"

	"github.com/wardenhq/warden/internal/cache"
)

// RedisClientConfig maps the cache section of the config onto the cache
// package's client settings.
func (c CacheConfig) RedisClientConfig() cache.RedisConfig {
	r := c.Redis
	return cache.RedisConfig{
		Address:  strings.TrimSpace(r.Address),
		Username: strings.TrimSpace(r.Username),
		Password: r.Password,
		DB:       r.DB,
		TLS:      r.TLS,
		Timeout:  r.Timeout,
	}
}
