package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Profile is the runtime configuration for the conversation store.
type Profile struct {
	// Mode can be "prod", "dev" or "demo".
	Mode string
	// Data is the directory holding local state (the SQLite database file).
	Data string
	// Driver is the database driver, "sqlite" or "postgres".
	Driver string
	// DSN is the database source name.
	DSN string
	// Version is the current service version.
	Version string

	// ConversationCacheTTL bounds how long a conversation read stays cached.
	ConversationCacheTTL time.Duration
	// ConversationCacheSize bounds how many conversations stay cached.
	ConversationCacheSize int
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns environment variable value as int or default value.
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// FromEnv loads configuration from environment variables. Values already set
// (e.g. from flags) take precedence over the environment.
func (p *Profile) FromEnv() {
	if p.Mode == "" {
		p.Mode = getEnvOrDefault("ARBOR_MODE", "dev")
	}
	if p.Data == "" {
		p.Data = getEnvOrDefault("ARBOR_DATA", "")
	}
	if p.Driver == "" {
		p.Driver = getEnvOrDefault("ARBOR_DRIVER", "sqlite")
	}
	if p.DSN == "" {
		p.DSN = getEnvOrDefault("ARBOR_DSN", "")
	}

	if p.ConversationCacheTTL == 0 {
		p.ConversationCacheTTL = time.Duration(getEnvOrDefaultInt("ARBOR_CONVERSATION_CACHE_TTL_SECONDS", 600)) * time.Second
	}
	if p.ConversationCacheSize == 0 {
		p.ConversationCacheSize = getEnvOrDefaultInt("ARBOR_CONVERSATION_CACHE_SIZE", 1000)
	}
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Driver != "sqlite" && p.Driver != "postgres" {
		return errors.Errorf("unsupported driver %q", p.Driver)
	}

	if p.Mode == "prod" && p.Data == "" {
		p.Data = "/var/opt/arbor"
	}
	if p.Data == "" {
		p.Data = "."
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
		return err
	}
	p.Data = dataDir

	if p.Driver == "sqlite" && p.DSN == "" {
		dbFile := fmt.Sprintf("arbor_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}
	if p.Driver == "postgres" && p.DSN == "" {
		return errors.New("dsn required for postgres driver")
	}

	return nil
}
