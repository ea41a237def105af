package app

import (
	"os"
	"sync"
	"sync/atomic"
)

// testModeEnv is set by the testing package import and internal/testing/guard.
const testModeEnv = "ODYSSEY_TEST_MODE"

var (
	testModeFlag atomic.Bool
	testModeOnce sync.Once
)

func detectTestMode() {
	testModeFlag.Store(os.Getenv(testModeEnv) == "1")
}

// InTestMode reports whether accountkit runs under tests. The entry points
// skip startup, the reminders runner never loops and the host allowlist is
// relaxed.
func InTestMode() bool {
	testModeOnce.Do(detectTestMode)
	return testModeFlag.Load()
}

// RefreshTestMode re-reads ODYSSEY_TEST_MODE after a test changed it.
func RefreshTestMode() {
	detectTestMode()
}
