package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Refresh   RefreshConfig
	Worker    WorkerConfig
	Sources   SourcesConfig
	DB        DatabaseConfig
	Logging   LoggingConfig
	Kafka     KafkaConfig
	Assistant AssistantConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	RateLimitRPS int
}

type RefreshConfig struct {
	Interval time.Duration
	Dedup    bool
}

type WorkerConfig struct {
	Count int
}

type SourcesConfig struct {
	IncludeEarthquakes     bool
	USGSURL                string
	EarthquakeMinMagnitude float64
	IncludeWeather         bool
	OpenWeatherURL         string
	OpenWeatherAPIKey      string
	Cities                 []string
	IncludeGlobalAlerts    bool
	GDACSURL               string
	Timeout                time.Duration
}

type DatabaseConfig struct {
	Path string
}

type LoggingConfig struct {
	Level  string
	Format string
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

type AssistantConfig struct {
	GeminiAPIKey string
	GeminiModel  string
}

var defaultCities = []string{"New York", "Los Angeles", "London", "Tokyo", "Mumbai", "Delhi"}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "localhost"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			RateLimitRPS: getEnvInt("RATE_LIMIT_RPS", 5),
		},
		Refresh: RefreshConfig{
			Interval: getEnvDuration("REFRESH_INTERVAL", 5*time.Minute),
			Dedup:    getEnvBool("DEDUP_EVENTS", false),
		},
		Worker: WorkerConfig{
			Count: getEnvInt("WORKER_COUNT", 4),
		},
		Sources: SourcesConfig{
			IncludeEarthquakes:     getEnvBool("INCLUDE_EARTHQUAKES", true),
			USGSURL:                getEnv("USGS_URL", "https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary/all_day.geojson"),
			EarthquakeMinMagnitude: getEnvFloat("EARTHQUAKE_MIN_MAGNITUDE", 2.5),
			IncludeWeather:         getEnvBool("INCLUDE_WEATHER", true),
			OpenWeatherURL:         getEnv("OPENWEATHER_URL", "https://api.openweathermap.org/data/2.5/weather"),
			OpenWeatherAPIKey:      getEnv("OPENWEATHER_API_KEY", ""),
			Cities:                 getEnvList("WEATHER_CITIES", defaultCities),
			IncludeGlobalAlerts:    getEnvBool("INCLUDE_GLOBAL_ALERTS", false),
			GDACSURL:               getEnv("GDACS_URL", "https://www.gdacs.org/xml/rss.xml"),
			Timeout:                getEnvDuration("SOURCE_TIMEOUT", 15*time.Second),
		},
		DB: DatabaseConfig{
			Path: getEnv("DB_PATH", "./data/disaster-map.db"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvList("KAFKA_BROKERS", nil),
			Topic:   getEnv("KAFKA_TOPIC", "disaster-events"),
		},
		Assistant: AssistantConfig{
			GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
			GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.RateLimitRPS < 1 {
		return fmt.Errorf("invalid rate limit: %d", c.Server.RateLimitRPS)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	if c.Refresh.Interval < time.Minute {
		return fmt.Errorf("refresh interval must be at least 1 minute")
	}
	if c.Worker.Count < 1 {
		return fmt.Errorf("worker count must be at least 1")
	}
	if c.Sources.Timeout <= 0 {
		return fmt.Errorf("source timeout must be positive")
	}
	if c.Sources.EarthquakeMinMagnitude < 0 {
		return fmt.Errorf("invalid earthquake min magnitude: %v", c.Sources.EarthquakeMinMagnitude)
	}
	if c.Kafka.Enabled() && c.Kafka.Topic == "" {
		return fmt.Errorf("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}

// getEnvList splits a comma separated value, dropping blank items.
func getEnvList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
