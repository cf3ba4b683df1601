package credentials

import (
	"fmt"

	"github.com/brizzai/drinklog/internal/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

// New builds the store selected by cfg.
func New(cfg *config.StoreConfig) (Store, error) {
	switch cfg.Type {
	case config.StoreTypeMemory:
		return NewMemoryStore(), nil
	case config.StoreTypeFile:
		return NewFileStore(cfg.FilePath)
	case config.StoreTypeRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		s := NewRedisStore(rdb, cfg.Redis.KeyPrefix)
		s.owned = true
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported store type: %s", cfg.Type)
	}
}

// Module provides the configured Store and closes it on shutdown
var Module = fx.Module("credentials",
	fx.Provide(func(cfg *config.StoreConfig, lc fx.Lifecycle) (Store, error) {
		s, err := New(cfg)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.StopHook(s.Close))
		return s, nil
	}),
)
