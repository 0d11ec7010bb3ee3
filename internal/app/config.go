package app

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/yungbote/tutorbridge-backend/internal/data/db"
	"github.com/yungbote/tutorbridge-backend/internal/observability"
	"github.com/yungbote/tutorbridge-backend/internal/pkg/envutil"
	"github.com/yungbote/tutorbridge-backend/internal/pkg/logger"
	"github.com/yungbote/tutorbridge-backend/internal/platform/identity"
	"github.com/yungbote/tutorbridge-backend/internal/platform/openai"
	"github.com/yungbote/tutorbridge-backend/internal/realtime/bus"
	"github.com/yungbote/tutorbridge-backend/internal/services"
)

type Config struct {
	Port        string
	LogMode     string
	CORSOrigins []string
	AuthMode    services.AuthMode
	PromptsYAML string
	MetricsAddr string

	DB       db.Config
	Redis    bus.RedisConfig
	OpenAI   openai.Config
	Identity identity.Config
	Otel     observability.OtelConfig

	StreamTimeout time.Duration
}

// LoadEnvFile seeds the environment from path (".env" when empty). Variables
// already set win, and a missing file is not an error.
func LoadEnvFile(path string) error {
	if strings.TrimSpace(path) == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		Port:        envutil.String("PORT", "8080"),
		LogMode:     envutil.String("LOG_MODE", "development"),
		CORSOrigins: envutil.List("CORS_ORIGINS", nil),
		AuthMode:    services.ParseAuthMode(envutil.String("AUTH_MODE", string(services.AuthEnforce))),
		PromptsYAML: envutil.String("PROMPTS_YAML", ""),
		MetricsAddr: envutil.String("METRICS_ADDR", ""),
		DB: db.Config{
			Driver:           envutil.String("DB_DRIVER", db.DriverPostgres),
			PostgresHost:     envutil.String("POSTGRES_HOST", "localhost"),
			PostgresPort:     envutil.String("POSTGRES_PORT", "5432"),
			PostgresUser:     envutil.String("POSTGRES_USER", "postgres"),
			PostgresPassword: envutil.String("POSTGRES_PASSWORD", ""),
			PostgresName:     envutil.String("POSTGRES_NAME", "tutorbridge"),
			PostgresSSLMode:  envutil.String("POSTGRES_SSLMODE", "disable"),
			SQLitePath:       envutil.String("SQLITE_PATH", "tutorbridge.db"),
			SlowThreshold:    time.Duration(envutil.Int("DB_SLOW_QUERY_MS", 1000)) * time.Millisecond,
		},
		Redis: bus.RedisConfig{
			Addr:     envutil.String("REDIS_ADDR", ""),
			Password: envutil.String("REDIS_PASSWORD", ""),
			DB:       envutil.Int("REDIS_DB", 0),
			Channel:  envutil.String("REDIS_CHANNEL", "tutorbridge:realtime"),
		},
		OpenAI: openai.Config{
			APIKey:     envutil.String("OPENAI_API_KEY", ""),
			BaseURL:    envutil.String("OPENAI_BASE_URL", "https://api.openai.com"),
			Model:      envutil.String("OPENAI_MODEL", "gpt-4o"),
			Timeout:    envutil.Seconds("OPENAI_TIMEOUT_SECONDS", 180*time.Second),
			MaxRetries: envutil.Int("OPENAI_MAX_RETRIES", 0),
		},
		Identity: identity.Config{
			JWTSecret: envutil.String("JWT_SECRET_KEY", ""),
			AccessTTL: envutil.Seconds("ACCESS_TOKEN_TTL", time.Hour),
			Issuer:    envutil.String("JWT_ISSUER", "tutorbridge"),
		},
		Otel: observability.OtelConfig{
			Enabled:     envutil.Bool("OTEL_ENABLED", false),
			ServiceName: envutil.String("OTEL_SERVICE_NAME", "tutorbridge-backend"),
			Environment: envutil.String("OTEL_ENVIRONMENT", "development"),
			Version:     envutil.String("OTEL_SERVICE_VERSION", "dev"),
			Endpoint:    envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:     observability.ParseHeaders(envutil.String("OTEL_EXPORTER_OTLP_HEADERS", "")),
			Insecure:    envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", false),
			SampleRatio: envutil.Float("OTEL_SAMPLE_RATIO", 1),
		},
		StreamTimeout: envutil.Seconds("LLM_STREAM_TIMEOUT_SECONDS", 120*time.Second),
	}

	if log != nil {
		log.Info("Config loaded",
			"port", cfg.Port,
			"db_driver", cfg.DB.Driver,
			"auth_mode", cfg.AuthMode,
			"redis", cfg.Redis.Addr != "",
			"otel", cfg.Otel.Enabled,
			"openai_model", cfg.OpenAI.Model,
		)
		if cfg.AuthMode == services.AuthAdvisory {
			log.Warn("AUTH_MODE=advisory: requests without a token are served anonymously")
		}
	}
	return cfg
}
