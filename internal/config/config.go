package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`

	// RedisURL selects the shared presence store and pub/sub layer.
	// Empty means single-process in-memory backends.
	RedisURL string `mapstructure:"redis_url" yaml:"redis_url"`

	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`

	// HistoryLimit bounds backlog hydration and notification queries.
	HistoryLimit int `mapstructure:"history_limit" yaml:"history_limit"`

	// PresenceTTL is how long an identity stays listed as online without a
	// heartbeat; HeartbeatInterval must be well below it.
	PresenceTTL       time.Duration `mapstructure:"presence_ttl" yaml:"presence_ttl"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" yaml:"heartbeat_interval"`

	JWTSecret   string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string `mapstructure:"jwt_audience" yaml:"jwt_audience"`

	VAPIDPublicKey  string `mapstructure:"vapid_public_key" yaml:"vapid_public_key"`
	VAPIDPrivateKey string `mapstructure:"vapid_private_key" yaml:"vapid_private_key"`
	VAPIDEmail      string `mapstructure:"vapid_email" yaml:"vapid_email"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		LogFormat:         "console",
		DatabasePath:      "pairwave.db",
		HistoryLimit:      50,
		PresenceTTL:       60 * time.Second,
		HeartbeatInterval: 20 * time.Second,
		JWTIssuer:         "pairwave",
		JWTAudience:       "pairwave-clients",
	}
}
