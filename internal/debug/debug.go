// Package debug provides opt-in diagnostic logging. Disabled by default;
// enabled via BEADCORE_DEBUG=1 or the "debug" config key. Output goes to
// a size-rotated file so long-lived repos never accumulate unbounded logs.
package debug

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/untoldecay/beadcore/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu     sync.Mutex
	logger *log.Logger
)

// Enabled reports whether debug logging is on.
func Enabled() bool {
	return config.Debug()
}

// Logf writes a formatted line to the debug log when enabled.
func Logf(format string, args ...any) {
	if !Enabled() {
		return
	}
	get().Printf(format, args...)
}

func get() *log.Logger {
	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		logger = log.New(&lumberjack.Logger{
			Filename:   logPath(),
			MaxSize:    10, // megabytes
			MaxBackups: 3,
		}, fmt.Sprintf("[%d] ", os.Getpid()), log.LstdFlags|log.Lmicroseconds)
	}
	return logger
}

func logPath() string {
	if path := config.DebugLogPath(); path != "" {
		return path
	}
	// Default next to the repo artifacts when a repo is in reach,
	// falling back to the temp dir.
	if cwd, err := os.Getwd(); err == nil {
		for dir := cwd; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
			beadsDir := filepath.Join(dir, ".beads")
			if info, err := os.Stat(beadsDir); err == nil && info.IsDir() {
				return filepath.Join(beadsDir, "debug.log")
			}
		}
	}
	return filepath.Join(os.TempDir(), "beadcore-debug.log")
}
