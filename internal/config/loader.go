package config

import (
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies TOKENGATE_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known TOKENGATE_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Mode, "TOKENGATE_MODE")
	setStr(&cfg.LogLevel, "TOKENGATE_LOG_LEVEL")

	setInt(&cfg.Server.Port, "TOKENGATE_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "TOKENGATE_SERVER_API_KEY")

	setStr(&cfg.Postgres.DSN, "TOKENGATE_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "TOKENGATE_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "TOKENGATE_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "TOKENGATE_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "TOKENGATE_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "TOKENGATE_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "TOKENGATE_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "TOKENGATE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "TOKENGATE_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "TOKENGATE_POSTGRES_RUN_MIGRATIONS")

	setStr(&cfg.Redis.Addr, "TOKENGATE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TOKENGATE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TOKENGATE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "TOKENGATE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "TOKENGATE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "TOKENGATE_REDIS_TLS_ENABLED")

	setStr(&cfg.S3.Endpoint, "TOKENGATE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "TOKENGATE_S3_REGION")
	setStr(&cfg.S3.Bucket, "TOKENGATE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "TOKENGATE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "TOKENGATE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "TOKENGATE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "TOKENGATE_S3_FORCE_PATH_STYLE")

	setBool(&cfg.Archive.Enabled, "TOKENGATE_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "TOKENGATE_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Archive.Prefix, "TOKENGATE_ARCHIVE_PREFIX")

	setStr(&cfg.Platform.Treasury, "TOKENGATE_PLATFORM_TREASURY")
	setUint64(&cfg.Platform.RegistryFee, "TOKENGATE_PLATFORM_REGISTRY_FEE")
	setStr(&cfg.Platform.OperatorKey, "TOKENGATE_PLATFORM_OPERATOR_KEY")
	setStr(&cfg.Platform.EncryptedKeyPath, "TOKENGATE_PLATFORM_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Platform.KeyPassword, "TOKENGATE_PLATFORM_KEY_PASSWORD")

	setStr(&cfg.Notify.TelegramToken, "TOKENGATE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "TOKENGATE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "TOKENGATE_NOTIFY_DISCORD_WEBHOOK_URL")
}

func setStr(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func setInt(dst *int, env string) {
	if v := os.Getenv(env); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, env string) {
	if v := os.Getenv(env); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, env string) {
	if v := os.Getenv(env); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
