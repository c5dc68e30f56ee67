package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Delivery modes for the play path of the media endpoints.
const (
	DeliveryDirect   = "direct"
	DeliveryRedirect = "redirect"
	DeliveryProxy    = "proxy"
)

// Storage drivers understood by storage.New.
const (
	StorageMinio  = "minio"
	StorageS3     = "s3"
	StorageMemory = "memory"
)

// DefaultBucket is the bucket every object key lives in unless overridden.
const DefaultBucket = "music-files"

// Config stores the application configuration.
type Config struct {
	HTTPAddr     string
	WriteTimeout time.Duration
	CORSOrigin   string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis配置，RedisHost 为空时不启用
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	StorageDriver    string
	StorageEndpoint  string
	StorageRegion    string
	StorageAccessKey string
	StorageSecretKey string
	StorageBucket    string
	StorageUseSSL    bool
	StoragePathStyle bool

	SignedURLTTL   time.Duration
	DeliveryMode   string
	ProbeTimeout   time.Duration
	UploadMaxBytes int64

	JWTSecret string

	LogLevel string
	LogFile  string
}

// lookupEnv returns the first variable in names that is set. The first name is
// the canonical one; the rest are historical names still found in deployed
// environments.
func lookupEnv(names ...string) (string, bool) {
	for _, name := range names {
		if value, exists := os.LookupEnv(name); exists {
			return value, true
		}
	}
	return "", false
}

// getEnv gets an environment variable (or one of its legacy aliases) or returns a default value.
func getEnv(fallback string, names ...string) string {
	if value, ok := lookupEnv(names...); ok {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(fallback int, names ...string) int {
	if value, ok := lookupEnv(names...); ok {
		if intVal, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvBool(fallback bool, names ...string) bool {
	if value, ok := lookupEnv(names...); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvSeconds reads a whole number of seconds.
func getEnvSeconds(fallback time.Duration, names ...string) time.Duration {
	secs := getEnvInt(-1, names...)
	if secs < 0 {
		return fallback
	}
	return time.Duration(secs) * time.Second
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}
	return FromEnv()
}

// FromEnv builds a Config from the current process environment only.
func FromEnv() *Config {
	cfg := &Config{
		HTTPAddr:     getEnv(":8080", "HTTP_ADDR"),
		WriteTimeout: getEnvSeconds(10*time.Minute, "HTTP_WRITE_TIMEOUT"),
		CORSOrigin:   getEnv("*", "CORS_ORIGIN"),

		DBHost:     getEnv("127.0.0.1", "DB_HOST"),
		DBPort:     getEnv("3306", "DB_PORT"),
		DBUser:     getEnv("root", "DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"), // no hardcoded default for the password
		DBName:     getEnv("trackshelf", "DB_NAME"),

		RedisHost:     getEnv("", "REDIS_HOST"),
		RedisPort:     getEnv("6379", "REDIS_PORT"),
		RedisPassword: getEnv("", "REDIS_PASSWORD"),
		RedisDB:       getEnvInt(0, "REDIS_DB"),

		StorageDriver:    strings.ToLower(getEnv(StorageMinio, "STORAGE_DRIVER")),
		StorageEndpoint:  getEnv("127.0.0.1:9000", "STORAGE_ENDPOINT", "MINIO_ENDPOINT"),
		StorageRegion:    getEnv("us-east-1", "STORAGE_REGION", "MINIO_REGION"),
		StorageAccessKey: getEnv("", "STORAGE_ACCESS_KEY", "MINIO_ACCESS_KEY"),
		StorageSecretKey: getEnv("", "STORAGE_SECRET_KEY", "MINIO_SECRET_KEY", "SUPABASE_SECRET_KEY", "SUPABASE_SERVICE_ROLE_KEY"),
		StorageBucket:    getEnv(DefaultBucket, "STORAGE_BUCKET", "MINIO_BUCKET"),
		StorageUseSSL:    getEnvBool(false, "STORAGE_USE_SSL", "MINIO_USE_SSL"),
		StoragePathStyle: getEnvBool(true, "STORAGE_PATH_STYLE"),

		SignedURLTTL:   getEnvSeconds(time.Hour, "SIGNED_URL_TTL"),
		DeliveryMode:   strings.ToLower(getEnv(DeliveryDirect, "DELIVERY_MODE")),
		ProbeTimeout:   getEnvSeconds(3*time.Second, "PROBE_TIMEOUT"),
		UploadMaxBytes: int64(getEnvInt(100<<20, "UPLOAD_MAX_BYTES")),

		JWTSecret: getEnv("", "AUTH_JWT_SECRET", "SUPABASE_JWT_SECRET"),

		LogLevel: getEnv("info", "LOG_LEVEL"),
		LogFile:  getEnv("", "LOG_FILE"),
	}

	switch cfg.DeliveryMode {
	case DeliveryDirect, DeliveryRedirect, DeliveryProxy:
	default:
		log.Printf("Unknown DELIVERY_MODE %q, falling back to %q", cfg.DeliveryMode, DeliveryDirect)
		cfg.DeliveryMode = DeliveryDirect
	}
	if strings.TrimSpace(cfg.StorageBucket) == "" {
		cfg.StorageBucket = DefaultBucket
	}
	return cfg
}

// RedisEnabled reports whether a Redis host was configured.
func (c *Config) RedisEnabled() bool {
	return strings.TrimSpace(c.RedisHost) != ""
}
