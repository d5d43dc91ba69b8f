package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port          string
	GinMode       string
	PublicBaseURL string

	// Database
	DBDriver   string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	DBPath     string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// MinIO
	MinIOEndpoint      string
	MinIOAccessKey     string
	MinIOSecretKey     string
	MinIOUseSSL        bool
	MinIOBucketName    string
	MinIOPresignExpiry time.Duration

	// Studio owner JWT
	JWTSecret string

	// Gallery sessions
	GallerySessionSecret string
	GallerySessionTTL    time.Duration

	// Access gate
	PasswordMaxAttempts  int
	PasswordLockoutBase  time.Duration
	PublicRateLimitRPS   int
	PublicRateLimitBurst int

	// Lifecycle
	AutoStartSelection bool

	// Notifications
	NotifyWebhookURL  string
	NotifyMaxAttempts int
	NotifyQueueSize   int
}

func LoadConfig() *Config {
	env := os.Getenv("STUDIO_GALLERY_ENV")

	// Load .env file if it exists
	if err := godotenv.Load(".env." + env); err != nil {
		log.Println("No .env." + env + " file found, using environment variables")
	}

	config := &Config{
		// Server
		Port:          getEnv("PORT", "8080"),
		GinMode:       getEnv("GIN_MODE", "debug"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", "http://localhost:3000"),

		// Database
		DBDriver:   getEnv("DB_DRIVER", "postgres"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "password"),
		DBName:     getEnv("DB_NAME", "studio_gallery"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),
		DBPath:     getEnv("DB_PATH", "studio_gallery.db"),

		// Redis
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// MinIO
		MinIOEndpoint:      getEnv("MINIO_ENDPOINT", "localhost:9000"),
		MinIOAccessKey:     getEnv("MINIO_ACCESS_KEY", "minioadmin"),
		MinIOSecretKey:     getEnv("MINIO_SECRET_KEY", "minioadmin"),
		MinIOUseSSL:        getEnvAsBool("MINIO_USE_SSL", false),
		MinIOBucketName:    getEnv("MINIO_BUCKET_NAME", "studio-gallery"),
		MinIOPresignExpiry: getEnvAsDuration("MINIO_PRESIGN_EXPIRY", 15*time.Minute),

		// Studio owner JWT
		JWTSecret: getEnv("JWT_SECRET", "your-secret-key-here"),

		// Gallery sessions
		GallerySessionSecret: getEnv("GALLERY_SESSION_SECRET", "your-gallery-secret-here"),
		GallerySessionTTL:    getEnvAsDuration("GALLERY_SESSION_TTL", 4*time.Hour),

		// Access gate
		PasswordMaxAttempts:  getEnvAsInt("PASSWORD_MAX_ATTEMPTS", 5),
		PasswordLockoutBase:  getEnvAsDuration("PASSWORD_LOCKOUT_BASE", 30*time.Second),
		PublicRateLimitRPS:   getEnvAsInt("PUBLIC_RATE_LIMIT_RPS", 20),
		PublicRateLimitBurst: getEnvAsInt("PUBLIC_RATE_LIMIT_BURST", 40),

		// Lifecycle
		AutoStartSelection: getEnvAsBool("AUTO_START_SELECTION", false),

		// Notifications
		NotifyWebhookURL:  getEnv("NOTIFY_WEBHOOK_URL", ""),
		NotifyMaxAttempts: getEnvAsInt("NOTIFY_MAX_ATTEMPTS", 3),
		NotifyQueueSize:   getEnvAsInt("NOTIFY_QUEUE_SIZE", 256),
	}

	return config
}

func (c Config) String() string {
	redact := func(s string) string {
		if s == "" {
			return ""
		}
		if len(s) <= 4 {
			return "****"
		}
		return "****" + s[len(s)-4:]
	}

	return fmt.Sprintf(
		"Config:\n"+
			"  Server:\n"+
			"    Port: %s\n"+
			"    GinMode: %s\n"+
			"    PublicBaseURL: %s\n"+
			"  Database:\n"+
			"    Driver: %s\n"+
			"    Host: %s\n"+
			"    Port: %s\n"+
			"    User: %s\n"+
			"    Password: %s\n"+
			"    Name: %s\n"+
			"    SSLMode: %s\n"+
			"    Path: %s\n"+
			"  Redis:\n"+
			"    Host: %s\n"+
			"    Port: %s\n"+
			"    Password: %s\n"+
			"    DB: %d\n"+
			"  MinIO:\n"+
			"    Endpoint: %s\n"+
			"    AccessKey: %s\n"+
			"    SecretKey: %s\n"+
			"    UseSSL: %t\n"+
			"    BucketName: %s\n"+
			"    PresignExpiry: %s\n"+
			"  JWT:\n"+
			"    Secret: %s\n"+
			"  GallerySession:\n"+
			"    Secret: %s\n"+
			"    TTL: %s\n"+
			"  AccessGate:\n"+
			"    PasswordMaxAttempts: %d\n"+
			"    PasswordLockoutBase: %s\n"+
			"    RateLimit: %d rps (burst %d)\n"+
			"  Lifecycle:\n"+
			"    AutoStartSelection: %t\n"+
			"  Notify:\n"+
			"    WebhookURL: %s\n"+
			"    MaxAttempts: %d\n"+
			"    QueueSize: %d",
		c.Port, c.GinMode, c.PublicBaseURL,
		c.DBDriver, c.DBHost, c.DBPort, c.DBUser, redact(c.DBPassword), c.DBName, c.DBSSLMode, c.DBPath,
		c.RedisHost, c.RedisPort, redact(c.RedisPassword), c.RedisDB,
		c.MinIOEndpoint, redact(c.MinIOAccessKey), redact(c.MinIOSecretKey), c.MinIOUseSSL, c.MinIOBucketName, c.MinIOPresignExpiry,
		redact(c.JWTSecret),
		redact(c.GallerySessionSecret), c.GallerySessionTTL,
		c.PasswordMaxAttempts, c.PasswordLockoutBase, c.PublicRateLimitRPS, c.PublicRateLimitBurst,
		c.AutoStartSelection,
		c.NotifyWebhookURL, c.NotifyMaxAttempts, c.NotifyQueueSize,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go duration strings such as "90s" or "4h".
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
