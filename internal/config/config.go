package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends selectable with NOTIFICATION_STORE.
const (
	StoreDynamo = "dynamodb"
	StoreMongo  = "mongodb"
	StoreMemory = "memory"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort           string
	AppEnv            string
	NotificationStore string

	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTables   DynamoTables

	MongoURI     string
	MongoDB      string
	MongoTimeout time.Duration

	JWTPrivateKeyPath          string // optional; only needed to issue tokens
	JWTPublicKeyPath           string
	JWTExpiry                  time.Duration
	RequireTokenOnAuthenticate bool
	InternalTokenHash          string // bcrypt hash guarding /v1/internal

	SNSRegion          string
	SNSOfflineTopicARN string // empty disables the offline relay

	CleanupInterval   time.Duration
	CleanupMaxAgeDays int

	WSSendBuffer      int
	WSEventsPerSecond float64
	WSEventBurst      int

	AllowedOrigins []string // CORS allowed origins
}

// DynamoTables holds the DynamoDB table names.
type DynamoTables struct {
	Notifications string
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort:           getEnv("APP_PORT", "3000"),
		AppEnv:            getEnv("APP_ENV", "development"),
		NotificationStore: strings.ToLower(getEnv("NOTIFICATION_STORE", StoreDynamo)),

		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			Notifications: getEnv("DYNAMO_TABLE_NOTIFICATIONS", "notifications"),
		},

		MongoURI:     getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:      getEnv("MONGO_DATABASE", "notifications"),
		MongoTimeout: time.Duration(getEnvInt("MONGO_TIMEOUT_SECONDS", 10)) * time.Second,

		JWTPrivateKeyPath:          getEnv("JWT_PRIVATE_KEY_PATH", ""),
		JWTPublicKeyPath:           getEnv("JWT_PUBLIC_KEY_PATH", "./public_key.pem"),
		JWTExpiry:                  time.Duration(getEnvInt("JWT_EXPIRY_DAYS", 7)) * 24 * time.Hour,
		RequireTokenOnAuthenticate: getEnvBool("REQUIRE_TOKEN_ON_AUTHENTICATE", true),
		InternalTokenHash:          getEnv("INTERNAL_TOKEN_HASH", ""),

		SNSRegion:          getEnv("SNS_REGION", "us-east-1"),
		SNSOfflineTopicARN: getEnv("SNS_OFFLINE_TOPIC_ARN", ""),

		CleanupInterval:   getEnvDuration("CLEANUP_INTERVAL", 24*time.Hour),
		CleanupMaxAgeDays: getEnvInt("CLEANUP_MAX_AGE_DAYS", 30),

		WSSendBuffer:      getEnvInt("WS_SEND_BUFFER", 256),
		WSEventsPerSecond: getEnvFloat("WS_EVENTS_PER_SECOND", 10),
		WSEventBurst:      getEnvInt("WS_EVENT_BURST", 20),

		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
	}
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
