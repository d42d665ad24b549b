package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"
)

// Config содержит конфигурацию игрового сервера.
type Config struct {
	// Настройки сервера
	Port        string `envconfig:"SERVER_PORT" default:"8080"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogEncoding string `envconfig:"LOG_ENCODING" default:"json"`

	// Каталоги данных
	StoriesDir string `envconfig:"STORIES_DIR" default:"./stories"`
	DataDir    string `envconfig:"DATA_DIR" default:"./data"`

	// Хранилище сессий: file или redis
	SessionStore string        `envconfig:"SESSION_STORE" default:"file"`
	SessionTTL   time.Duration `envconfig:"SESSION_TTL" default:"0"`

	// Настройки Redis (для SESSION_STORE=redis и rate limiter)
	RedisAddr string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisDB   int    `envconfig:"REDIS_DB" default:"0"`
	// Секретное поле БЕЗ envconfig тега
	RedisPassword string

	// CORS
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:3000"`

	// Rate limiting
	RateLimitPerSecond uint `envconfig:"RATE_LIMIT_PER_SECOND" default:"10"`

	// Настройки AI-генератора продолжений
	AIEnabled          bool          `envconfig:"AI_ENABLED" default:"false"`
	AIClientType       string        `envconfig:"AI_CLIENT_TYPE" default:"openai"`
	AIBaseURL          string        `envconfig:"AI_BASE_URL" default:""`
	AIModel            string        `envconfig:"AI_MODEL" default:"gpt-4o-mini"`
	AITimeout          time.Duration `envconfig:"AI_TIMEOUT" default:"90s"`
	AITemperature      float32       `envconfig:"AI_TEMPERATURE" default:"0.8"`
	AIMaxContextTokens int           `envconfig:"AI_MAX_CONTEXT_TOKENS" default:"3000"`
	// Секретное поле БЕЗ envconfig тега
	AIAPIKey string
}

// LoadConfig загружает конфигурацию из .env файла (если есть),
// переменных окружения и Docker Secrets.
func LoadConfig(envFiles ...string) (*Config, error) {
	// .env опционален, в контейнере все приходит из окружения.
	for _, f := range envFiles {
		_ = godotenv.Load(f)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("ошибка загрузки конфигурации: %w", err)
	}

	// Секреты читаются из файлов только там, где они реально нужны.
	if strings.EqualFold(cfg.SessionStore, "redis") {
		password, err := ReadSecret("redis_password")
		if err != nil {
			return nil, err
		}
		cfg.RedisPassword = password
	}
	if cfg.AIEnabled && strings.EqualFold(cfg.AIClientType, "openai") {
		key, err := ReadSecret("ai_api_key")
		if err != nil {
			return nil, err
		}
		cfg.AIAPIKey = key
	}

	return &cfg, nil
}

// LogSummary пишет в лог загруженную конфигурацию без секретов.
func (c *Config) LogSummary(logger *zap.Logger) {
	logger.Info("Configuration loaded",
		zap.String("port", c.Port),
		zap.String("logLevel", c.LogLevel),
		zap.String("storiesDir", c.StoriesDir),
		zap.String("dataDir", c.DataDir),
		zap.String("sessionStore", c.SessionStore),
		zap.Strings("allowedOrigins", c.AllowedOrigins),
		zap.Bool("aiEnabled", c.AIEnabled),
		zap.String("aiClientType", c.AIClientType),
		zap.String("aiModel", c.AIModel),
	)
}
