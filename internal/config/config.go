package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"dpm-server/internal/jira"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// HTTPConfig holds the listener settings.
type HTTPConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// AppConfig holds the complete application configuration.
type AppConfig struct {
	HTTP     HTTPConfig
	Jira     jira.Config
	DataPath string
	LogDir   string
	CacheDir string
	// Holidays are YYYY-MM-DD dates excluded from the working calendar,
	// comma separated in HOLIDAYS.
	Holidays []time.Time
}

// Load loads the configuration from .env files and environment variables.
func Load() (*AppConfig, error) {
	// 1. Try to load from the executable's directory first.
	exePath, err := os.Executable()
	exeDir := ""
	if err == nil {
		exeDir = filepath.Dir(exePath)
		envPath := filepath.Join(exeDir, ".env")
		if err := godotenv.Load(envPath); err == nil {
			log.Debug().Str("path", envPath).Msg("Loaded configuration from binary directory")
		}
	}

	// 2. Fallback to current working directory (useful for development/go run)
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found in working directory, relying on environment variables or binary-relative .env")
	}

	// 3. Resolve data paths
	dataPath := os.Getenv("DATA_PATH")
	if dataPath == "" {
		if exeDir != "" {
			dataPath = exeDir
		} else {
			dataPath = "."
		}
	}

	logDir := getEnv("LOG_DIR", filepath.Join(dataPath, "logs"))
	cacheDir := filepath.Join(dataPath, "cache")

	if err := os.MkdirAll(logDir, 0755); err != nil {
		log.Warn().Err(err).Str("path", logDir).Msg("Failed to create log directory")
	}
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		log.Warn().Err(err).Str("path", cacheDir).Msg("Failed to create cache directory")
	}

	delayMS := getEnvInt("JIRA_REQUEST_DELAY_MS", 500)

	cfg := &AppConfig{
		HTTP: HTTPConfig{
			Addr:            getEnv("HTTP_ADDR", ":8080"),
			ReadTimeout:     time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 30)) * time.Second,
			WriteTimeout:    time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 60)) * time.Second,
			ShutdownTimeout: time.Duration(getEnvInt("HTTP_SHUTDOWN_TIMEOUT_SECONDS", 15)) * time.Second,
		},
		Jira: jira.Config{
			BaseURL:      getEnv("JIRA_URL", ""),
			Token:        getEnv("JIRA_TOKEN", ""),
			XsrfToken:    getEnv("JIRA_XSRF_TOKEN", ""),
			SessionID:    getEnv("JIRA_SESSION_ID", ""),
			RememberMe:   getEnv("JIRA_REMEMBERME_COOKIE", ""),
			RequestDelay: time.Duration(delayMS) * time.Millisecond,
		},
		DataPath: dataPath,
		LogDir:   logDir,
		CacheDir: cacheDir,
		Holidays: parseHolidays(getEnv("HOLIDAYS", "")),
	}

	return cfg, nil
}

func parseHolidays(raw string) []time.Time {
	if raw == "" {
		return nil
	}
	var holidays []time.Time
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		day, err := time.Parse("2006-01-02", part)
		if err != nil {
			log.Warn().Str("value", part).Msg("Ignoring unparsable holiday date")
			continue
		}
		holidays = append(holidays, day)
	}
	return holidays
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}
