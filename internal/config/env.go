package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string

	DatabaseURL string

	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string

	AIAPIKey   string
	EmbedModel string
	EmbedDim   int
	GenModel   string

	QueryMaxCandidates int

	DriveBaseURL    string
	DriveToken      string
	SiteID          string
	DriveID         string
	TargetFolder    string
	NotificationURL string
	ClientState     string

	SubscriptionLifetime time.Duration
	RenewThreshold       time.Duration
	RenewCheckInterval   time.Duration

	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration

	JWTSecret string
}

// LoadConfig loads the environment variables and returns the config.
func LoadConfig() *Config {

	_ = godotenv.Load()

	cfg := &Config{
		Port: getEnv("PORT", "8080"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:    getEnv("AWS_REGION", "us-east-2"),
		BucketName:   getEnv("BUCKET_NAME", "enrichd-review"),

		AIAPIKey:   getEnv("GEMINI_API_KEY", ""),
		EmbedModel: getEnv("EMBED_MODEL", "text-embedding-004"),
		EmbedDim:   getEnvInt("EMBED_DIM", 768),
		GenModel:   getEnv("GEN_MODEL", "gemini-1.5-flash"),

		QueryMaxCandidates: getEnvInt("QUERY_MAX_CANDIDATES", 500),

		DriveBaseURL:    getEnv("DRIVE_BASE_URL", ""),
		DriveToken:      getEnv("DRIVE_TOKEN", ""),
		SiteID:          getEnv("SITE_ID", ""),
		DriveID:         getEnv("DRIVE_ID", ""),
		TargetFolder:    getEnv("TARGET_FOLDER", "Enriched"),
		NotificationURL: getEnv("NOTIFICATION_URL", ""),
		ClientState:     getEnv("CLIENT_STATE", ""),

		SubscriptionLifetime: getEnvDuration("SUBSCRIPTION_LIFETIME", 72*time.Hour),
		RenewThreshold:       getEnvDuration("RENEW_THRESHOLD", 24*time.Hour),
		RenewCheckInterval:   getEnvDuration("RENEW_CHECK_INTERVAL", 48*time.Hour),

		RetryMaxAttempts: getEnvInt("RETRY_MAX_ATTEMPTS", 4),
		RetryBaseDelay:   getEnvDuration("RETRY_BASE_DELAY", time.Second),
		RetryMaxDelay:    getEnvDuration("RETRY_MAX_DELAY", 30*time.Second),

		JWTSecret: getEnv("JWT_SECRET", ""),
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}
	if cfg.DriveBaseURL == "" {
		log.Fatal("DRIVE_BASE_URL not set")
	}

	return cfg
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("WARN: %s=%q not a duration, using default %s", key, v, def)
		return def
	}
	return d
}
