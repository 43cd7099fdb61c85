package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port               string
	DatabaseURL        string
	Timezone           string
	PhonePolicy        string
	SessionTTL         time.Duration
	SweepInterval      time.Duration
	RateLimitPerMinute int
	RateLimitBurst     int
	NATSURL            string
	NATSSubjectPrefix  string
	NotifyInterval     time.Duration
	NotifyBatchSize    int
}

// Load reads configuration from the environment. A .env file in the
// working directory is loaded first, without overriding variables that
// are already set.
func Load() Config {
	_ = godotenv.Load()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	policy := os.Getenv("PHONE_POLICY")
	if policy == "" {
		policy = "global"
	}

	return Config{
		Port:               port,
		DatabaseURL:        os.Getenv("DB_DSN"),
		Timezone:           os.Getenv("TIMEZONE"),
		PhonePolicy:        policy,
		SessionTTL:         readDurationSeconds("SESSION_TTL_SECONDS", 43200),
		SweepInterval:      readDurationSeconds("SWEEP_INTERVAL_SECONDS", 60),
		RateLimitPerMinute: readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:     readInt("RATE_LIMIT_BURST", 30),
		NATSURL:            os.Getenv("NATS_URL"),
		NATSSubjectPrefix:  readString("NATS_SUBJECT_PREFIX", "tokens"),
		NotifyInterval:     readDurationSeconds("NOTIFY_SCAN_INTERVAL_SECONDS", 5),
		NotifyBatchSize:    readInt("NOTIFY_BATCH_SIZE", 50),
	}
}

func readString(key, fallback string) string {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	return raw
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
