package config

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/vault-client-go"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var config = viper.New()

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`

	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`

	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`

	Minio struct {
		Endpoint   string `mapstructure:"ENDPOINT"`
		AccessKey  string `mapstructure:"ACCESS_KEY"`
		SecretKey  string `mapstructure:"SECRET_KEY"`
		Secure     bool   `mapstructure:"SECURE"`
		BucketName string `mapstructure:"BUCKET_NAME"`
	} `mapstructure:"MINIO"`

	Chat struct {
		GatewayURL string `mapstructure:"GATEWAY_URL"`
	} `mapstructure:"CHAT"`

	Moderation struct {
		Blocklist []string `mapstructure:"BLOCKLIST"`
	} `mapstructure:"MODERATION"`

	Worker struct {
		Moderation QueueConfig `mapstructure:"MODERATION"`
		Outbox     QueueConfig `mapstructure:"OUTBOX"`
		Media      QueueConfig `mapstructure:"MEDIA"`
	} `mapstructure:"WORKER"`
}

// QueueConfig tunes one job-table polling loop.
type QueueConfig struct {
	Interval     time.Duration `mapstructure:"INTERVAL"`
	BatchSize    int           `mapstructure:"BATCH_SIZE"`
	MaxRetries   int           `mapstructure:"MAX_RETRIES"`
	StuckAfter   time.Duration `mapstructure:"STUCK_AFTER"`
	WorkTimeout  time.Duration `mapstructure:"WORK_TIMEOUT"`
	BackoffBase  time.Duration `mapstructure:"BACKOFF_BASE"`
	BackoffCap   time.Duration `mapstructure:"BACKOFF_CAP"`
	Concurrency  int           `mapstructure:"CONCURRENCY"`
	LockTTL      time.Duration `mapstructure:"LOCK_TTL"`
	DisableSweep bool          `mapstructure:"DISABLE_SWEEP"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

type Params struct {
	fx.In
	Vault *vault.Client `optional:"true"`
}

func LoadConfig(p Params) *Config {
	config.SetConfigName("config")
	config.SetConfigType("yaml")
	config.AddConfigPath(".")

	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AutomaticEnv()

	if err := config.ReadInConfig(); err != nil {
		zap.L().Error("failed to read config file", zap.Error(err))
		os.Exit(1)
	}

	var cfg Config
	if err := config.Unmarshal(&cfg); err != nil {
		zap.L().Error("failed to unmarshal config", zap.Error(err))
		os.Exit(1)
	}

	if p.Vault != nil {
		hydrateFromVault(p.Vault, &cfg)
	}

	return &cfg
}

// hydrateFromVault overlays DB and redis credentials from the KV v2 secret
// mounted at secret/<APP_ENV>. Missing keys leave the file/env values intact.
func hydrateFromVault(client *vault.Client, cfg *Config) {
	ctx := context.Background()

	secret, err := client.Secrets.KvV2Read(ctx, cfg.AppEnv, vault.WithMountPath("secret"))
	if err != nil {
		zap.L().Error("failed get secret from vault", zap.Error(err))
		os.Exit(1)
	}

	get := func(key string) string {
		if val, ok := secret.Data.Data[key].(string); ok {
			return val
		}
		return ""
	}

	if v := get("postgres_user"); v != "" {
		cfg.Database.User = v
	}
	if v := get("postgres_password"); v != "" {
		cfg.Database.Password = v
	}
	if v := get("redis_password"); v != "" {
		cfg.Redis.Password = v
	}
	if v := get("minio_secret_key"); v != "" {
		cfg.Minio.SecretKey = v
	}
}
