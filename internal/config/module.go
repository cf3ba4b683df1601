package config

import "go.uber.org/fx"

// Module supplies the loaded configuration and its sections
func Module(cfg *Config) fx.Option {
	return fx.Module("config",
		fx.Supply(cfg),
		fx.Provide(
			func(c *Config) *LoggingConfig { return &c.Logging },
			func(c *Config) *BackendConfig { return &c.Backend },
			func(c *Config) *SessionConfig { return &c.Session },
			func(c *Config) *StoreConfig { return &c.Store },
		),
	)
}
