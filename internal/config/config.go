// Package config loads layered engine configuration through viper.
// Precedence: env (BEADCORE_*) > project .beads/config.yaml >
// ~/.config/beadcore/config.yaml > ~/.beads/config.yaml > defaults.
// No config file is required; every key has a usable default.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

var (
	v    *viper.Viper
	once sync.Once
)

// Initialize sets up the viper configuration singleton. Safe to call
// more than once; only the first call does work. Library entry points
// call this lazily, so embedders never have to.
func Initialize() {
	once.Do(initViper)
}

func initViper() {
	v = viper.New()
	v.SetConfigType("yaml")

	// Explicitly locate config.yaml with SetConfigFile so an unrelated
	// config.json sitting next to it is never picked up.
	configFileSet := false

	// 1. Walk up from CWD to find project .beads/config.yaml, so the
	// engine behaves the same from any subdirectory of the repo.
	if cwd, err := os.Getwd(); err == nil {
		for dir := cwd; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
			configPath := filepath.Join(dir, ".beads", "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
				break
			}
		}
	}

	// 2. User config directory (~/.config/beadcore/config.yaml)
	if !configFileSet {
		if configDir, err := os.UserConfigDir(); err == nil {
			configPath := filepath.Join(configDir, "beadcore", "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
			}
		}
	}

	// 3. Home directory (~/.beads/config.yaml)
	if !configFileSet {
		if homeDir, err := os.UserHomeDir(); err == nil {
			configPath := filepath.Join(homeDir, ".beads", "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
			}
		}
	}

	// Environment variables take precedence over config file values.
	// BEADCORE_ACTOR maps to "actor", BEADCORE_DEBUG_LOG to "debug-log".
	v.SetEnvPrefix("BEADCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("actor", "")
	v.SetDefault("debug", false)
	v.SetDefault("debug-log", "")
	v.SetDefault("timezone", "")

	if configFileSet {
		// Unreadable config files are ignored rather than fatal; the
		// engine must keep working in a repo with a broken config.
		_ = v.ReadInConfig()
	}
}

// GetString returns a config value as a string.
func GetString(key string) string {
	Initialize()
	return v.GetString(key)
}

// GetBool returns a config value as a bool.
func GetBool(key string) bool {
	Initialize()
	return v.GetBool(key)
}

// Actor resolves who mutations are attributed to: the configured actor
// if set, otherwise USER/USERNAME from the environment, otherwise
// the literal "unknown".
func Actor() string {
	if actor := GetString("actor"); actor != "" {
		return actor
	}
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	if user := os.Getenv("USERNAME"); user != "" {
		return user
	}
	return "unknown"
}

// Debug reports whether debug logging is enabled.
func Debug() bool {
	return GetBool("debug")
}

// DebugLogPath returns the configured debug log path, or "" for the
// default (.beads/debug.log in the active repo).
func DebugLogPath() string {
	return GetString("debug-log")
}

// Timezone returns the configured location for natural-language date
// parsing, defaulting to the system's local zone.
func Timezone() *time.Location {
	name := GetString("timezone")
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.Local
	}
	return loc
}
