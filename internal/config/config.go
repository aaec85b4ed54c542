// Package config collects all runtime configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ewhitaker/larder/internal/backup"
	"github.com/ewhitaker/larder/internal/model"
	"github.com/ewhitaker/larder/internal/push"
)

type Config struct {
	Port      string
	DBPath    string
	LogLevel  string
	LogFormat string

	// Postmark email delivery. Email is disabled when the token is empty.
	PostmarkToken string
	PostmarkFrom  string

	// Web push. Push is disabled when either VAPID key is empty.
	Push push.Config

	// Notification routing.
	DefaultFrequency model.Frequency
	DigestHour       int
	WeeklyDay        time.Weekday
	PurchasedTTL     time.Duration

	Backup backup.Config
}

// Load reads configuration from LARDER_* environment variables and applies
// defaults. It fails only on values that parse but make no sense.
func Load() (Config, error) {
	cfg := Config{
		Port:      envOr("LARDER_PORT", "8080"),
		DBPath:    envOr("LARDER_DB_PATH", "larder.db"),
		LogLevel:  envOr("LARDER_LOG_LEVEL", "info"),
		LogFormat: envOr("LARDER_LOG_FORMAT", "text"),

		PostmarkToken: os.Getenv("LARDER_POSTMARK_TOKEN"),
		PostmarkFrom:  envOr("LARDER_POSTMARK_FROM", "noreply@localhost"),

		Push: push.Config{
			VAPIDPublicKey:  os.Getenv("LARDER_VAPID_PUBLIC_KEY"),
			VAPIDPrivateKey: os.Getenv("LARDER_VAPID_PRIVATE_KEY"),
			Subscriber:      envOr("LARDER_VAPID_SUBSCRIBER", "mailto:admin@localhost"),
		},

		DefaultFrequency: model.Frequency(envOr("LARDER_DEFAULT_FREQUENCY", string(model.FreqImmediate))),
	}

	if !cfg.DefaultFrequency.Valid() {
		return cfg, fmt.Errorf("LARDER_DEFAULT_FREQUENCY: unknown frequency %q", cfg.DefaultFrequency)
	}

	var err error
	if cfg.DigestHour, err = envInt("LARDER_DIGEST_HOUR", 8); err != nil {
		return cfg, err
	}
	if cfg.DigestHour < 0 || cfg.DigestHour > 23 {
		return cfg, fmt.Errorf("LARDER_DIGEST_HOUR: must be 0-23, got %d", cfg.DigestHour)
	}

	weeklyDay, err := parseWeekday(envOr("LARDER_WEEKLY_DAY", "monday"))
	if err != nil {
		return cfg, err
	}
	cfg.WeeklyDay = weeklyDay

	ttlDays, err := envInt("LARDER_PURCHASED_TTL_DAYS", 7)
	if err != nil {
		return cfg, err
	}
	cfg.PurchasedTTL = time.Duration(ttlDays) * 24 * time.Hour

	backupHour, err := envInt("LARDER_BACKUP_HOUR", 3)
	if err != nil {
		return cfg, err
	}
	retention, err := envInt("LARDER_BACKUP_RETENTION_DAYS", 30)
	if err != nil {
		return cfg, err
	}
	cfg.Backup = backup.Config{
		S3: backup.S3Config{
			Endpoint:  os.Getenv("LARDER_S3_ENDPOINT"),
			Bucket:    os.Getenv("LARDER_S3_BUCKET"),
			Region:    envOr("LARDER_S3_REGION", "auto"),
			AccessKey: os.Getenv("LARDER_S3_ACCESS_KEY"),
			SecretKey: os.Getenv("LARDER_S3_SECRET_KEY"),
		},
		DBPath:        cfg.DBPath,
		Passphrase:    os.Getenv("LARDER_BACKUP_PASSPHRASE"),
		Hour:          backupHour,
		RetentionDays: retention,
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func parseWeekday(s string) (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(s, d.String()) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("LARDER_WEEKLY_DAY: unknown weekday %q", s)
}
