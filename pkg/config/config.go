package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

const (
	xdgAppName = "jotask"
	configFile = "config.json"

	// ClientIDSuffix is the suffix every Google OAuth web/desktop client ID carries.
	ClientIDSuffix = ".apps.googleusercontent.com"

	defaultCalendar = "Tasks"
)

// Config is the user's persistent jotask configuration.
type Config struct {
	Backend      string `json:"backend,omitempty"`
	StorePath    string `json:"store_path,omitempty"`
	Model        string `json:"model,omitempty"`
	Calendar     string `json:"calendar,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
}

// Env holds the values read from the environment (and an optional .env file).
type Env struct {
	GeminiAPIKey string
	GeminiModel  string
	ClientID     string
	ClientSecret string
	LogLevel     string
}

func GetConfigDir() (string, error) {
	xdgHome, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(xdgHome, ".config", xdgAppName), nil
}

func GetConfigPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFile), nil
}

// LoadFrom reads the config file at path. A missing file yields defaults.
func LoadFrom(path string) (*Config, error) {
	cfg, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}
	return cfg.withDefaults(filepath.Dir(path)), nil
}

// LoadRaw reads the config file without filling in defaults, for callers
// that write it back.
func LoadRaw(path string) (*Config, error) {
	cfg := &Config{}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

func (c *Config) withDefaults(dir string) *Config {
	if c.Backend == "" {
		c.Backend = "file"
	}
	if c.StorePath == "" {
		name := "state.json"
		if c.Backend == "sqlite" {
			name = "state.db"
		}
		c.StorePath = filepath.Join(dir, name)
	}
	if c.Calendar == "" {
		c.Calendar = defaultCalendar
	}
	return c
}

func SaveTo(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to open config file for writing: %w", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	return encoder.Encode(cfg)
}

// LoadEnv loads the given .env files (if present, without overriding set
// variables) and reads the jotask environment. It reports whether any .env
// file was loaded.
func LoadEnv(files ...string) (Env, bool) {
	loaded := false
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err == nil {
			loaded = true
		}
	}

	env := Env{
		GeminiAPIKey: firstNonEmpty(os.Getenv("GEMINI_API_KEY"), os.Getenv("API_KEY")),
		GeminiModel:  os.Getenv("GEMINI_MODEL"),
		ClientID:     strings.TrimSpace(os.Getenv("GOOGLE_CLIENT_ID")),
		ClientSecret: strings.TrimSpace(os.Getenv("GOOGLE_CLIENT_SECRET")),
		LogLevel:     os.Getenv("JOTASK_LOG_LEVEL"),
	}
	return env, loaded
}

// ResolveClientID applies the precedence flag > stored user value > environment.
// It returns the chosen value and where it came from.
func ResolveClientID(flagValue, stored, envValue string) (string, string) {
	switch {
	case strings.TrimSpace(flagValue) != "":
		return strings.TrimSpace(flagValue), "flag"
	case strings.TrimSpace(stored) != "":
		return strings.TrimSpace(stored), "stored"
	case strings.TrimSpace(envValue) != "":
		return strings.TrimSpace(envValue), "env"
	}
	return "", ""
}

// ResolveModel prefers the environment over the config file.
func ResolveModel(cfg *Config, env Env) string {
	return firstNonEmpty(env.GeminiModel, cfg.Model)
}

// ResolveClientSecret prefers the config file over the environment.
func ResolveClientSecret(cfg *Config, env Env) string {
	return firstNonEmpty(cfg.ClientSecret, env.ClientSecret)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
