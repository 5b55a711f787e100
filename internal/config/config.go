package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/genrelay/tgbot/internal/logger"
)

type Config struct {
	BotToken      string
	WebhookURL    string
	WebhookSecret string

	GeminiAPIKey   string
	TextModelFlash string
	TextModelPro   string
	ImageModel     string
	ChatModelTier  string

	ProjectID  string
	Region     string
	BucketName string

	DatabaseURL string
	HTTPPort    string
	LogLevel    string
	Locale      string

	RateLimitInterval time.Duration
	ThrottleCallbacks bool
}

var AppConfig Config

// LoadConfig reads the environment (and .env if present) into AppConfig.
// Missing required values are reported as warnings, the process keeps running.
func LoadConfig() Config {
	if err := godotenv.Load(); err != nil {
		logger.Log.Debug("No .env file found, relying on environment variables")
	}

	AppConfig = Config{
		BotToken:      getEnv("BOT_TOKEN", ""),
		WebhookURL:    getEnv("WEBHOOK_URL", ""),
		WebhookSecret: getEnv("WEBHOOK_SECRET", ""),

		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		TextModelFlash: getEnv("TEXT_MODEL_FLASH", "gemini-2.5-flash"),
		TextModelPro:   getEnv("TEXT_MODEL_PRO", "gemini-2.5-pro"),
		ImageModel:     getEnv("IMAGE_MODEL", "gemini-2.5-flash-image"),
		ChatModelTier:  getEnv("CHAT_MODEL_TIER", "flash"),

		ProjectID:  getEnv("PROJECT_ID", ""),
		Region:     getEnv("REGION", "us-central1"),
		BucketName: getEnv("BUCKET_NAME", ""),

		DatabaseURL: getEnv("DATABASE_URL", "genrelay.db"),
		HTTPPort:    getEnv("PORT", "8080"),
		LogLevel:    getEnv("LOG_LEVEL", "INFO"),
		Locale:      getEnv("BOT_LOCALE", "ru"),

		RateLimitInterval: getEnvAsDuration("RATE_LIMIT_INTERVAL", time.Second),
		ThrottleCallbacks: getEnvAsBool("THROTTLE_CALLBACKS", false),
	}

	logger.SetLevel(AppConfig.LogLevel)
	for _, w := range AppConfig.Validate() {
		logger.Log.Warn(w)
	}
	return AppConfig
}

// Validate returns one warning per missing or suspicious setting.
func (c Config) Validate() []string {
	var warnings []string
	if c.BotToken == "" {
		warnings = append(warnings, "BOT_TOKEN is not set, Telegram calls will fail")
	}
	if c.GeminiAPIKey == "" {
		warnings = append(warnings, "GEMINI_API_KEY is not set, generation requests will fail")
	}
	if c.WebhookURL == "" {
		warnings = append(warnings, "WEBHOOK_URL is not set, the bot only receives updates if a webhook was registered earlier")
	}
	if c.WebhookSecret == "" {
		warnings = append(warnings, "WEBHOOK_SECRET is not set, webhook requests are not authenticated")
	}
	if c.BucketName == "" {
		warnings = append(warnings, "BUCKET_NAME is not set, generated images will not be archived")
	}
	if c.ProjectID == "" {
		warnings = append(warnings, "PROJECT_ID is not set")
	}
	if c.ChatModelTier != "flash" && c.ChatModelTier != "pro" {
		warnings = append(warnings, "CHAT_MODEL_TIER must be flash or pro, using flash")
	}
	return warnings
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return strings.TrimSpace(value)
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("1500ms") or plain seconds ("2").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	if secs := getEnvAsInt(key, -1); secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
