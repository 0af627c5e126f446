package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	AppEnv   string
	LogLevel slog.Level
	HTTPAddr string

	SQLiteDriver          string
	SQLiteDSN             string
	SQLitePath            string
	SQLiteMaxOpenConns    int
	SQLiteMaxIdleConns    int
	SQLiteConnMaxLifetime time.Duration
	// SQLiteLogSQL routes every statement through the logging connector at debug level.
	SQLiteLogSQL bool

	NomisBaseURL     string
	NomisTimeout     time.Duration
	FetchMaxAttempts int
	FetchBaseDelay   time.Duration
	FetchMaxDelay    time.Duration
	// CacheCapacity bounds each cache; 0 means unbounded.
	CacheCapacity int
	// GeographyFile replaces the embedded station registry when set.
	GeographyFile string

	// MQTTBroker empty disables cache invalidation over MQTT.
	MQTTBroker   string
	MQTTPort     int
	MQTTClientID string
	MQTTTopic    string
}

func LoadFromEnv() (Config, error) {
	appEnv := envString("APP_ENV", "dev")
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	level, err := parseLogLevel(envString("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppEnv:        appEnv,
		LogLevel:      level,
		HTTPAddr:      envString("HTTP_ADDR", ":8080"),
		SQLiteDriver:  envString("DB_DRIVER", "sqlite3"),
		SQLiteDSN:     envString("DB_DSN", ""),
		SQLitePath:    envString("SQLITE_PATH", "../dev/sqlite/app.db"),
		NomisBaseURL:  envString("NOMIS_BASE_URL", "https://www.nomisweb.co.uk/api/v01"),
		GeographyFile: envString("GEOGRAPHY_FILE", ""),
		MQTTBroker:    envString("MQTT_BROKER", ""),
		MQTTClientID:  envString("MQTT_CLIENT_ID", "ble-dashboard"),
		MQTTTopic:     envString("MQTT_TOPIC", "ble/cache/invalidate"),
	}

	ints := []struct {
		name string
		def  string
		min  int
		dst  *int
	}{
		{"DB_MAX_OPEN_CONNS", "1", 0, &cfg.SQLiteMaxOpenConns},
		{"DB_MAX_IDLE_CONNS", "1", 0, &cfg.SQLiteMaxIdleConns},
		{"FETCH_MAX_ATTEMPTS", "3", 1, &cfg.FetchMaxAttempts},
		{"CACHE_CAPACITY", "512", 0, &cfg.CacheCapacity},
		{"MQTT_PORT", "1883", 1, &cfg.MQTTPort},
	}
	for _, v := range ints {
		if *v.dst, err = envInt(v.name, v.def, v.min); err != nil {
			return Config{}, err
		}
	}

	durations := []struct {
		name string
		def  string
		dst  *time.Duration
	}{
		{"DB_CONN_MAX_LIFETIME", "0s", &cfg.SQLiteConnMaxLifetime},
		{"NOMIS_TIMEOUT", "30s", &cfg.NomisTimeout},
		{"FETCH_BASE_DELAY", "1s", &cfg.FetchBaseDelay},
		{"FETCH_MAX_DELAY", "8s", &cfg.FetchMaxDelay},
	}
	for _, v := range durations {
		if *v.dst, err = envDuration(v.name, v.def); err != nil {
			return Config{}, err
		}
	}
	if cfg.FetchMaxDelay < cfg.FetchBaseDelay {
		return Config{}, fmt.Errorf("invalid FETCH_MAX_DELAY %s: must be >= FETCH_BASE_DELAY %s", cfg.FetchMaxDelay, cfg.FetchBaseDelay)
	}

	logSQL := envString("DB_LOG_SQL", "false")
	if cfg.SQLiteLogSQL, err = strconv.ParseBool(logSQL); err != nil {
		return Config{}, fmt.Errorf("invalid DB_LOG_SQL %q: %w", logSQL, err)
	}

	return cfg, nil
}

func envString(name, def string) string {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	return v
}

func envInt(name, def string, minimum int) (int, error) {
	s := envString(name, def)
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, s, err)
	}
	if n < minimum {
		return 0, fmt.Errorf("invalid %s %d: must be >= %d", name, n, minimum)
	}
	return n, nil
}

func envDuration(name, def string) (time.Duration, error) {
	s := envString(name, def)
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s %q: must not be negative", name, s)
	}
	return d, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
