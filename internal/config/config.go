package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Safety    SafetyConfig
	Geo       GeoConfig
	Visits    VisitsConfig
	ShortID   ShortIDConfig
}

type AppConfig struct {
	Port    string
	BaseURL string
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

type RedisConfig struct {
	Host string
	Port string
}

type AuthConfig struct {
	JWTSecret string
}

type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

// SafetyConfig управляет проверкой репутации целевых адресов.
// FailOpen определяет поведение при недоступности внешнего сервиса:
// false (по умолчанию) отклоняет создание/правку, true пропускает.
type SafetyConfig struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
	FailOpen bool
}

type GeoConfig struct {
	GeoLitePath string
}

type VisitsConfig struct {
	WorkerCount       int
	BufferSize        int
	UniqueWindow      time.Duration
	ReconcileInterval time.Duration
}

type ShortIDConfig struct {
	Length      int
	MaxAttempts int
}

func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	cfg.App.Port = viper.GetString("APP_PORT")
	cfg.App.BaseURL = viper.GetString("APP_BASE_URL")
	cfg.DB.Host = viper.GetString("DB_HOST")
	cfg.DB.Port = viper.GetString("DB_PORT")
	cfg.DB.User = viper.GetString("DB_USER")
	cfg.DB.Password = viper.GetString("DB_PASSWORD")
	cfg.DB.Name = viper.GetString("DB_NAME")
	cfg.Redis.Host = viper.GetString("REDIS_HOST")
	cfg.Redis.Port = viper.GetString("REDIS_PORT")

	cfg.Auth.JWTSecret = viper.GetString("JWT_SECRET")

	cfg.RateLimit.RequestsPerSecond = viper.GetFloat64("RATE_LIMIT_RPS")
	if cfg.RateLimit.RequestsPerSecond == 0 {
		cfg.RateLimit.RequestsPerSecond = 10
	}
	cfg.RateLimit.BurstSize = viper.GetInt("RATE_LIMIT_BURST")
	if cfg.RateLimit.BurstSize == 0 {
		cfg.RateLimit.BurstSize = 20
	}

	cfg.Safety.Endpoint = viper.GetString("SAFETY_ENDPOINT")
	cfg.Safety.APIKey = viper.GetString("SAFETY_API_KEY")
	cfg.Safety.Timeout = viper.GetDuration("SAFETY_TIMEOUT")
	if cfg.Safety.Timeout == 0 {
		cfg.Safety.Timeout = 3 * time.Second
	}
	cfg.Safety.FailOpen = viper.GetBool("SAFETY_FAIL_OPEN")

	cfg.Geo.GeoLitePath = viper.GetString("GEOLITE_PATH")

	cfg.Visits.WorkerCount = viper.GetInt("VISIT_WORKERS")
	if cfg.Visits.WorkerCount == 0 {
		cfg.Visits.WorkerCount = 3
	}
	cfg.Visits.BufferSize = viper.GetInt("VISIT_BUFFER")
	if cfg.Visits.BufferSize == 0 {
		cfg.Visits.BufferSize = 1000
	}
	cfg.Visits.UniqueWindow = viper.GetDuration("VISIT_UNIQUE_WINDOW")
	if cfg.Visits.UniqueWindow == 0 {
		cfg.Visits.UniqueWindow = 24 * time.Hour
	}
	cfg.Visits.ReconcileInterval = viper.GetDuration("VISIT_RECONCILE_INTERVAL")
	if cfg.Visits.ReconcileInterval == 0 {
		cfg.Visits.ReconcileInterval = 5 * time.Minute
	}

	cfg.ShortID.Length = viper.GetInt("SHORTID_LENGTH")
	if cfg.ShortID.Length == 0 {
		cfg.ShortID.Length = 6
	}
	cfg.ShortID.MaxAttempts = viper.GetInt("SHORTID_MAX_ATTEMPTS")
	if cfg.ShortID.MaxAttempts == 0 {
		cfg.ShortID.MaxAttempts = 10
	}

	return &cfg, nil
}
