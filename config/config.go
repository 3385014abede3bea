package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
type Config struct {
	HTTPAddr string

	// 数据库配置
	DBDriver   string // mysql or sqlite
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	SQLitePath string

	// Redis配置
	RedisEnabled  bool
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	QueueKey      string // list used by the ingestion queue
	StatusChannel string // pubsub channel for asset status events
	LabelCacheTTL time.Duration

	// 存储配置
	StorageDriver  string // local or minio
	MediaRoot      string
	MediaURL       string
	TempDir        string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool
	MinioBucket    string
	MinioRegion    string

	FFmpegPath   string
	FFprobePath  string
	ProbeTimeout time.Duration

	DriveTimeout         time.Duration
	DriveExportBase      string
	DriveUsercontentBase string

	WorkerCount        int
	QueueSize          int
	RetryMax           int
	RetryIntervalStart time.Duration
	RetryIntervalStep  time.Duration
	RetryIntervalMax   time.Duration

	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	GoogleUserinfoEndpoint string
	AllowOnlyInternalUsers bool
	AllowedHostedDomain    string
	PresenterEmailDomain   string

	LogLevel      string
	LogFile       string
	LogMaxSize    int
	LogMaxBackups int
	LogMaxAge     int
	LogCompress   bool
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("500ms", "30s") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	mediaRoot := getEnv("MEDIA_ROOT", "media")
	ffmpegPath := getEnv("FFMPEG_PATH", "ffmpeg")

	return &Config{
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		DBDriver:   getEnv("DB_DRIVER", "mysql"),
		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     getEnv("DB_NAME", "sessions_portal"),
		SQLitePath: getEnv("SQLITE_PATH", "sessions_portal.db"),

		RedisEnabled:  getEnvBool("REDIS_ENABLED", false),
		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""), // 默认无密码
		RedisDB:       getEnvInt("REDIS_DB", 0),
		QueueKey:      getEnv("QUEUE_KEY", "sessions:ingest:queue"),
		StatusChannel: getEnv("STATUS_CHANNEL", "sessions:asset:status"),
		LabelCacheTTL: getEnvDuration("LABEL_CACHE_TTL", 5*time.Minute),

		StorageDriver:  getEnv("STORAGE_DRIVER", "local"),
		MediaRoot:      mediaRoot,
		MediaURL:       getEnv("MEDIA_URL", "/media/"),
		TempDir:        getEnv("TEMP_DIR", filepath.Join(mediaRoot, "tmp")),
		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),
		MinioBucket:    getEnv("MINIO_BUCKET", "sessions"),
		MinioRegion:    getEnv("MINIO_REGION", "us-east-1"),

		FFmpegPath:   ffmpegPath,
		FFprobePath:  getEnv("FFPROBE_PATH", strings.Replace(ffmpegPath, "ffmpeg", "ffprobe", 1)),
		ProbeTimeout: getEnvDuration("PROBE_TIMEOUT", 2*time.Minute),

		DriveTimeout:         getEnvDuration("DRIVE_TIMEOUT", 30*time.Second),
		DriveExportBase:      getEnv("DRIVE_EXPORT_BASE", "https://drive.google.com"),
		DriveUsercontentBase: getEnv("DRIVE_USERCONTENT_BASE", "https://drive.usercontent.google.com"),

		WorkerCount:        getEnvInt("WORKER_COUNT", 4),
		QueueSize:          getEnvInt("QUEUE_SIZE", 256),
		RetryMax:           getEnvInt("RETRY_MAX", 3),
		RetryIntervalStart: getEnvDuration("RETRY_INTERVAL_START", 0),
		RetryIntervalStep:  getEnvDuration("RETRY_INTERVAL_STEP", 200*time.Millisecond),
		RetryIntervalMax:   getEnvDuration("RETRY_INTERVAL_MAX", 500*time.Millisecond),

		JWTSecret:       getEnv("JWT_SECRET", "change-me"),
		AccessTokenTTL:  getEnvDuration("ACCESS_TOKEN_TTL", time.Hour),
		RefreshTokenTTL: getEnvDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),

		GoogleUserinfoEndpoint: getEnv("GOOGLE_USERINFO_ENDPOINT", ""),
		AllowOnlyInternalUsers: getEnvBool("ALLOW_ONLY_INTERNAL_USERS", true),
		AllowedHostedDomain:    getEnv("ALLOWED_HOSTED_DOMAIN", "arbisoft.com"),
		PresenterEmailDomain:   getEnv("PRESENTER_EMAIL_DOMAIN", "arbisoft.com"),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFile:       getEnv("LOG_FILE", ""),
		LogMaxSize:    getEnvInt("LOG_MAX_SIZE", 100),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 5),
		LogMaxAge:     getEnvInt("LOG_MAX_AGE", 30),
		LogCompress:   getEnvBool("LOG_COMPRESS", true),
	}
}
