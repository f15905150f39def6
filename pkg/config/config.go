package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Weather provider names accepted in WEATHER_PROVIDER.
const (
	ProviderOpenWeather = "openweather"
	ProviderSimulated   = "simulated"
)

// De-duplication policy names accepted in SWEEP_DEDUP_POLICY / EVALUATOR_DEDUP_POLICY.
const (
	PolicyTuple   = "tuple"
	PolicyReplace = "replace"
)

type Config struct {
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Weather   WeatherConfig
	Sweep     SweepConfig
	Evaluator EvaluatorConfig
	Bands     BandConfig

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	MigrationsDir   string

	// AlertTTL sets expires_at on new alerts. Zero leaves alerts open-ended.
	AlertTTL time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

func (d DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers          []string
	TopicEvaluations string
	TopicAlerts      string
	GroupID          string
}

type WeatherConfig struct {
	Provider string
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
	CacheTTL time.Duration
}

// Validate reports configuration that makes fetching observations impossible.
// A missing API key is fatal to a sweep run.
func (w WeatherConfig) Validate() error {
	switch w.Provider {
	case ProviderOpenWeather:
		if w.APIKey == "" {
			return errors.New("OPENWEATHER_API_KEY is required when WEATHER_PROVIDER=openweather")
		}
	case ProviderSimulated:
	default:
		return fmt.Errorf("unknown WEATHER_PROVIDER %q", w.Provider)
	}
	return nil
}

type SweepConfig struct {
	Interval    time.Duration
	Concurrency int
	LockTTL     time.Duration
	DedupPolicy string
}

type EvaluatorConfig struct {
	DedupPolicy string
}

// BandConfig holds the fixed wind (knots, ascending) and visibility (km,
// descending) cutoffs used by the stream evaluator.
type BandConfig struct {
	WindYellow       float64
	WindOrange       float64
	WindRed          float64
	VisibilityYellow float64
	VisibilityOrange float64
	VisibilityRed    float64
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "airfield_user"),
			Password: getEnv("DB_PASSWORD", "airfield_pass"),
			DBName:   getEnv("DB_NAME", "airfield_alerts"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", true),
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers:          parseBrokers(getEnv("KAFKA_BROKERS", "localhost:9092")),
			TopicEvaluations: getEnv("KAFKA_TOPIC_EVALUATIONS", "airfield.evaluations"),
			TopicAlerts:      getEnv("KAFKA_TOPIC_ALERTS", "airfield.alerts"),
			GroupID:          getEnv("KAFKA_GROUP_ID", "airfield-evaluator"),
		},
		Weather: WeatherConfig{
			Provider: strings.ToLower(getEnv("WEATHER_PROVIDER", ProviderOpenWeather)),
			APIKey:   getEnv("OPENWEATHER_API_KEY", ""),
			BaseURL:  getEnv("OPENWEATHER_BASE_URL", "https://api.openweathermap.org"),
			Timeout:  getEnvAsDuration("WEATHER_TIMEOUT", 10*time.Second),
			CacheTTL: getEnvAsDuration("WEATHER_CACHE_TTL", 5*time.Minute),
		},
		Sweep: SweepConfig{
			Interval:    getEnvAsDuration("SWEEP_INTERVAL", 10*time.Minute),
			Concurrency: getEnvAsInt("SWEEP_CONCURRENCY", 8),
			LockTTL:     getEnvAsDuration("SWEEP_LOCK_TTL", 2*time.Minute),
			DedupPolicy: strings.ToLower(getEnv("SWEEP_DEDUP_POLICY", PolicyTuple)),
		},
		Evaluator: EvaluatorConfig{
			DedupPolicy: strings.ToLower(getEnv("EVALUATOR_DEDUP_POLICY", PolicyReplace)),
		},
		Bands: BandConfig{
			WindYellow:       getEnvAsFloat("BAND_WIND_YELLOW", 20),
			WindOrange:       getEnvAsFloat("BAND_WIND_ORANGE", 30),
			WindRed:          getEnvAsFloat("BAND_WIND_RED", 40),
			VisibilityYellow: getEnvAsFloat("BAND_VISIBILITY_YELLOW", 5),
			VisibilityOrange: getEnvAsFloat("BAND_VISIBILITY_ORANGE", 3),
			VisibilityRed:    getEnvAsFloat("BAND_VISIBILITY_RED", 1),
		},
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "json"),
		ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		MigrationsDir:   getEnv("MIGRATIONS_DIR", "migrations"),
		AlertTTL:        getEnvAsDuration("ALERT_TTL", 0),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.Kafka.Brokers) == 0 {
		return errors.New("KAFKA_BROKERS is required")
	}
	if c.Sweep.Interval <= 0 {
		return errors.New("SWEEP_INTERVAL must be positive")
	}
	if c.Sweep.Concurrency <= 0 {
		return errors.New("SWEEP_CONCURRENCY must be positive")
	}
	if c.Weather.Timeout <= 0 {
		return errors.New("WEATHER_TIMEOUT must be positive")
	}
	if c.Weather.CacheTTL <= 0 {
		return errors.New("WEATHER_CACHE_TTL must be positive")
	}
	if c.AlertTTL < 0 {
		return errors.New("ALERT_TTL must not be negative")
	}
	if err := validPolicy("SWEEP_DEDUP_POLICY", c.Sweep.DedupPolicy); err != nil {
		return err
	}
	if err := validPolicy("EVALUATOR_DEDUP_POLICY", c.Evaluator.DedupPolicy); err != nil {
		return err
	}

	b := c.Bands
	if b.WindYellow <= 0 || b.WindYellow >= b.WindOrange || b.WindOrange >= b.WindRed {
		return errors.New("BAND_WIND_* must satisfy 0 < yellow < orange < red")
	}
	if b.VisibilityRed <= 0 || b.VisibilityRed >= b.VisibilityOrange || b.VisibilityOrange >= b.VisibilityYellow {
		return errors.New("BAND_VISIBILITY_* must satisfy 0 < red < orange < yellow")
	}
	return nil
}

func validPolicy(key, value string) error {
	switch value {
	case PolicyTuple, PolicyReplace:
		return nil
	}
	return fmt.Errorf("%s must be %q or %q, got %q", key, PolicyTuple, PolicyReplace, value)
}

func parseBrokers(s string) []string {
	var brokers []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
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

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
