package app

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// MasterKeyEnv names the variable that may carry the session sealing key
// instead of a key file.
const MasterKeyEnv = "BUSFARE_MASTER_KEY"

type Config struct {
	APIURL        string        // Required: backend base URL
	StateFile     string        // Optional: SQLite session file (default: <user config dir>/busfare/session.db)
	Ephemeral     bool          // Optional: keep the session in memory only (default: false)
	MasterKeyPath string        // Optional: sealing key file (default: next to StateFile)
	PolicyFile    string        // Optional: YAML page policy (default: built-in)
	PollInterval  time.Duration // Optional: payment status interval (default: 3s)
	PollCeiling   time.Duration // Optional: payment polling budget (default: 5m)
	MinTopUpCents int64         // Optional: smallest top-up in centavos (default: 100)
	CameraDir     string        // Optional: directory of frame folders used as cameras (default: ./camera)
	HTTPTimeout   time.Duration // Optional: per-request timeout (default: 10s)
	Env           string        // Environment (dev, staging, prod) (default: prod)
	LogLevel      string        // Log level (debug, info, warn, error) (default: warn)
	LogFormat     string        // Log format (json, text) (default: text)
}

// LoadDotEnv loads variables from the given files, or ./.env when none are
// named. Variables already set in the environment win. Missing files are
// skipped.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

func LoadConfig() Config {
	cfg := Config{
		APIURL:        getEnvOrDefault("BUSFARE_API_URL", "http://localhost:3000/api"),
		StateFile:     os.Getenv("BUSFARE_STATE_FILE"),
		Ephemeral:     getEnvBoolOrDefault("BUSFARE_EPHEMERAL", false),
		MasterKeyPath: os.Getenv("BUSFARE_MASTER_KEY_PATH"),
		PolicyFile:    os.Getenv("BUSFARE_POLICY_FILE"),
		PollInterval:  getEnvDurationOrDefault("BUSFARE_POLL_INTERVAL", 3*time.Second),
		PollCeiling:   getEnvDurationOrDefault("BUSFARE_POLL_CEILING", 5*time.Minute),
		MinTopUpCents: int64(getEnvIntOrDefault("BUSFARE_MIN_TOPUP_CENTS", 100)),
		CameraDir:     getEnvOrDefault("BUSFARE_CAMERA_DIR", "camera"),
		HTTPTimeout:   getEnvDurationOrDefault("BUSFARE_HTTP_TIMEOUT", 10*time.Second),
		Env:           getEnvOrDefault("ENV", "prod"),
		// A terminal client: keep stderr quiet unless asked.
		LogLevel:  getEnvOrDefault("LOG_LEVEL", "warn"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "text"),
	}

	if cfg.StateFile == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			dir = "."
		}
		cfg.StateFile = filepath.Join(dir, "busfare", "session.db")
	}
	if cfg.MasterKeyPath == "" {
		cfg.MasterKeyPath = filepath.Join(filepath.Dir(cfg.StateFile), "master.key")
	}

	return cfg
}

// Validate checks the settings that New can't recover from.
func (c Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil {
		return fmt.Errorf("invalid BUSFARE_API_URL: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid BUSFARE_API_URL %q: need an http(s) URL", c.APIURL)
	}
	if c.PollInterval <= 0 || c.PollCeiling <= 0 {
		return errors.New("poll interval and ceiling must be positive")
	}
	if c.PollCeiling < c.PollInterval {
		return fmt.Errorf("poll ceiling %s is shorter than the interval %s", c.PollCeiling, c.PollInterval)
	}
	if c.MinTopUpCents <= 0 {
		return errors.New("BUSFARE_MIN_TOPUP_CENTS must be positive")
	}
	if !c.Ephemeral && c.StateFile == "" {
		return errors.New("no state file configured")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "3s", "5m")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are seconds
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
