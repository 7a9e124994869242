// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ストアドライバー
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMongo    = "mongo"
	StoreDriverMemory   = "memory"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Store
	StoreDriver   string
	DatabaseURL   string
	MongoURI      string
	MongoDatabase string

	// Generation
	GenerationAPIKey              string
	GenerationAPIURL              string
	GenerationModel               string
	GenerationTemperature         float64
	GenerationMaxTokens           int
	GenerationTimeout             time.Duration
	GenerationRatePerMinute       int // 上流APIへの送信レート（プロセス全体）。0で無効
	GenerationClientRatePerMinute int // 生成エンドポイントへのクライアントごとの受付レート。0で無効

	// Consistency sweep
	ConsistencySweepInterval time.Duration
	ConsistencyRepair        bool

	// Logging
	LogLevel string

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigins []string
}

// LoadDotEnv は指定された.envファイルを環境変数に読み込む。
// 既に設定されている環境変数は上書きしない。ファイルが存在しない場合は何もしない。
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合は、未設定の変数をまとめてエラーとして返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.StoreDriver = strings.ToLower(getEnvString("STORE_DRIVER", StoreDriverPostgres))
	switch cfg.StoreDriver {
	case StoreDriverPostgres:
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
		if cfg.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	case StoreDriverMongo:
		cfg.MongoURI = os.Getenv("MONGODB_URI")
		if cfg.MongoURI == "" {
			missing = append(missing, "MONGODB_URI")
		}
	case StoreDriverMemory:
	default:
		return nil, fmt.Errorf("unsupported STORE_DRIVER %q (want postgres, mongo or memory)", cfg.StoreDriver)
	}

	cfg.GenerationAPIKey = getEnvString("GENERATION_API_KEY", os.Getenv("MISTRAL_API_KEY"))
	if cfg.GenerationAPIKey == "" {
		missing = append(missing, "GENERATION_API_KEY")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.MongoDatabase = getEnvString("MONGODB_DATABASE", "coursegpt")
	cfg.GenerationAPIURL = getEnvString("GENERATION_API_URL", "https://api.mistral.ai/v1/chat/completions")
	cfg.GenerationModel = getEnvString("GENERATION_MODEL", "mistral-small-latest")
	cfg.GenerationTemperature = getEnvFloat("GENERATION_TEMPERATURE", 0.7)
	cfg.GenerationMaxTokens = getEnvInt("GENERATION_MAX_TOKENS", 10000)
	cfg.GenerationTimeout = getEnvDuration("GENERATION_TIMEOUT", 60*time.Second)
	cfg.GenerationRatePerMinute = getEnvInt("GENERATION_RATE_PER_MINUTE", 0)
	cfg.GenerationClientRatePerMinute = getEnvInt("GENERATION_CLIENT_RATE_PER_MINUTE", 0)
	cfg.ConsistencySweepInterval = getEnvDuration("CONSISTENCY_SWEEP_INTERVAL", time.Hour)
	cfg.ConsistencyRepair = getEnvBool("CONSISTENCY_REPAIR", false)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", getEnvString("PORT", "8080"))
	cfg.CORSAllowedOrigins = getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"})

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

// getEnvList はカンマ区切りの値を空要素を除いたスライスとして返す。
func getEnvList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
