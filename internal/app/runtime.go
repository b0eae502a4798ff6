package app

import (
	"log/slog"
	"os"
	"strconv"
	"sync"
)

// RunMode tells a process whether to start for real.
type RunMode string

const (
	// ModeServe opens pools, queues and listeners.
	ModeServe RunMode = "serve"
	// ModeTest skips every startup side effect.
	ModeTest RunMode = "test"
)

// TestModeEnv switches processes into ModeTest. Any value strconv.ParseBool
// accepts as true enables it.
const TestModeEnv = "BACKOFFICE_TEST_MODE"

var (
	modeMu     sync.Mutex
	mode       RunMode
	modeLoaded bool
)

func readMode() RunMode {
	if on, err := strconv.ParseBool(os.Getenv(TestModeEnv)); err == nil && on {
		return ModeTest
	}
	return ModeServe
}

// Mode returns the run mode, reading the environment on first use.
func Mode() RunMode {
	modeMu.Lock()
	defer modeMu.Unlock()
	if !modeLoaded {
		mode, modeLoaded = readMode(), true
	}
	return mode
}

// InTestMode reports whether the process runs in ModeTest.
func InTestMode() bool {
	return Mode() == ModeTest
}

// RefreshTestMode re-reads the environment after it changed.
func RefreshTestMode() {
	modeMu.Lock()
	defer modeMu.Unlock()
	mode, modeLoaded = readMode(), true
}

// SkipStartup reports whether process must return before building anything,
// logging the decision when it does.
func SkipStartup(logger *slog.Logger, process string) bool {
	if !InTestMode() {
		return false
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("test mode, startup skipped", slog.String("process", process), slog.String("env", TestModeEnv))
	return true
}
