package maestro

import (
	"os"
	"strconv"
	"time"
)

// Config holds process-level configuration, populated from the environment
type Config struct {
	// Definitions
	DefinitionsDir string

	// Instance store
	TableName string // DynamoDB table; empty selects the in-memory store

	// Decision provider
	UseStubProvider bool
	GeminiAPIKey    string
	GeminiModel     string
	RequestTimeout  time.Duration

	// Transport
	HTTPAddr string
}

// DefaultConfig provides sensible defaults
var DefaultConfig = Config{
	DefinitionsDir: "./workflows",
	GeminiModel:    "gemini-1.5-flash-latest",
	RequestTimeout: 60 * time.Second,
	HTTPAddr:       ":8080",
}

// LoadConfig reads configuration from the environment, falling back to
// DefaultConfig for anything unset
func LoadConfig() Config {
	cfg := DefaultConfig

	if v := os.Getenv("MAESTRO_DEFINITIONS_DIR"); v != "" {
		cfg.DefinitionsDir = v
	}
	if v := os.Getenv("MAESTRO_TABLE_NAME"); v != "" {
		cfg.TableName = v
	}
	if v := os.Getenv("MAESTRO_USE_STUB_PROVIDER"); v != "" {
		cfg.UseStubProvider, _ = strconv.ParseBool(v)
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.GeminiAPIKey = v
	}
	if v := os.Getenv("GEMINI_MODEL_NAME"); v != "" {
		cfg.GeminiModel = v
	}
	if v := os.Getenv("GEMINI_REQUEST_TIMEOUT_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.RequestTimeout = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv("MAESTRO_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}

	return cfg
}
