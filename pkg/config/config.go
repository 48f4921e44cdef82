package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database   DatabaseConfig
	Redis      RedisConfig
	Auth       AuthConfig
	CORS       CORSConfig
	Log        LogConfig
	AI         AIConfig
	Extraction ExtractionConfig
	Corpus     CorpusConfig
	Jobs       JobsConfig
	Uploads    UploadsConfig
	Chat       ChatConfig
	Reports    ReportsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// AuthConfig drives the optional bearer-token gate; token issuance lives upstream.
type AuthConfig struct {
	Enabled bool
	Secret  string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// AIConfig holds the shared Gemini client settings for OCR, scoring and chat.
type AIConfig struct {
	APIKey       string
	OCRModel     string
	ScoringModel string
	ChatModel    string
}

// ExtractionConfig tunes the tiered text-extraction pipeline.
type ExtractionConfig struct {
	Pdftotext        string
	FastPathMinChars int
	OCRMaxFileBytes  int64
	OCRTimeout       time.Duration
	SkipMinChars     int
}

// CorpusConfig bounds the assembled evaluation input.
type CorpusConfig struct {
	MaxLength int
}

// JobsConfig configures the scoring run worker pool.
type JobsConfig struct {
	Workers        int
	MaxRetries     int
	RetryDelay     time.Duration
	ScoringTimeout time.Duration
}

// UploadsConfig controls document upload storage & validation.
type UploadsConfig struct {
	StorageDir       string
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
	RetentionTTL     time.Duration
}

// ChatConfig gates the follow-up chat endpoints.
type ChatConfig struct {
	Enabled      bool
	HistoryLimit int
}

// ReportsConfig gates PDF export of scoring results.
type ReportsConfig struct {
	Enabled bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Auth = AuthConfig{
		Enabled: v.GetBool("AUTH_ENABLED"),
		Secret:  v.GetString("AUTH_JWT_SECRET"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.AI = AIConfig{
		APIKey:       v.GetString("GEMINI_API_KEY"),
		OCRModel:     v.GetString("AI_OCR_MODEL"),
		ScoringModel: v.GetString("AI_SCORING_MODEL"),
		ChatModel:    v.GetString("AI_CHAT_MODEL"),
	}

	cfg.Extraction = ExtractionConfig{
		Pdftotext:        v.GetString("EXTRACT_PDFTOTEXT_BIN"),
		FastPathMinChars: v.GetInt("EXTRACT_FAST_PATH_MIN_CHARS"),
		OCRMaxFileBytes:  v.GetInt64("EXTRACT_OCR_MAX_FILE_BYTES"),
		OCRTimeout:       parseDuration(v.GetString("EXTRACT_OCR_TIMEOUT"), 3*time.Minute),
		SkipMinChars:     v.GetInt("EXTRACT_SKIP_MIN_CHARS"),
	}

	cfg.Corpus = CorpusConfig{
		MaxLength: v.GetInt("CORPUS_MAX_LENGTH"),
	}

	cfg.Jobs = JobsConfig{
		Workers:        v.GetInt("JOBS_WORKERS"),
		MaxRetries:     v.GetInt("JOBS_MAX_RETRIES"),
		RetryDelay:     parseDuration(v.GetString("JOBS_RETRY_DELAY"), 2*time.Second),
		ScoringTimeout: parseDuration(v.GetString("JOBS_SCORING_TIMEOUT"), 15*time.Minute),
	}

	maxUploadSize := v.GetInt64("UPLOADS_MAX_FILE_SIZE")
	if maxUploadSize <= 0 {
		maxUploadSize = 200 * 1024 * 1024
	}
	cfg.Uploads = UploadsConfig{
		StorageDir:       v.GetString("UPLOADS_STORAGE_DIR"),
		MaxFileSizeBytes: maxUploadSize,
		AllowedMIMEs:     splitAndTrim(v.GetString("UPLOADS_ALLOWED_MIME_TYPES")),
		RetentionTTL:     parseDuration(v.GetString("UPLOADS_RETENTION_TTL"), 0),
	}

	cfg.Chat = ChatConfig{
		Enabled:      v.GetBool("ENABLE_CHAT"),
		HistoryLimit: v.GetInt("CHAT_HISTORY_LIMIT"),
	}

	cfg.Reports = ReportsConfig{
		Enabled: v.GetBool("ENABLE_PDF_REPORTS"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "petition_score")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("AUTH_ENABLED", false)
	v.SetDefault("AUTH_JWT_SECRET", "dev_secret")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("GEMINI_API_KEY", "")
	v.SetDefault("AI_OCR_MODEL", "gemini-2.0-flash")
	v.SetDefault("AI_SCORING_MODEL", "gemini-2.0-flash")
	v.SetDefault("AI_CHAT_MODEL", "gemini-2.0-flash")

	v.SetDefault("EXTRACT_PDFTOTEXT_BIN", "pdftotext")
	v.SetDefault("EXTRACT_FAST_PATH_MIN_CHARS", 500)
	v.SetDefault("EXTRACT_OCR_MAX_FILE_BYTES", 5*1024*1024)
	v.SetDefault("EXTRACT_OCR_TIMEOUT", "3m")
	v.SetDefault("EXTRACT_SKIP_MIN_CHARS", 100)

	v.SetDefault("CORPUS_MAX_LENGTH", 150000)

	v.SetDefault("JOBS_WORKERS", 4)
	v.SetDefault("JOBS_MAX_RETRIES", 2)
	v.SetDefault("JOBS_RETRY_DELAY", "2s")
	v.SetDefault("JOBS_SCORING_TIMEOUT", "15m")

	v.SetDefault("UPLOADS_STORAGE_DIR", "./uploads")
	v.SetDefault("UPLOADS_MAX_FILE_SIZE", 200*1024*1024)
	v.SetDefault("UPLOADS_ALLOWED_MIME_TYPES", "application/pdf,image/png,image/jpeg,image/webp,text/plain")

	v.SetDefault("ENABLE_CHAT", true)
	v.SetDefault("CHAT_HISTORY_LIMIT", 20)
	v.SetDefault("ENABLE_PDF_REPORTS", true)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
