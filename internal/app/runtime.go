package app

import (
	"os"
	"strconv"
	"sync"
	"sync/atomic"
)

// TestModeEnv is set by test binaries so cmd/tutorly and cmd/worker return before
// dialing Postgres, Redis or the payroll event broker.
const TestModeEnv = "TUTORLY_TEST_MODE"

var (
	testMode     atomic.Bool
	testModeOnce sync.Once
)

func loadTestMode() {
	on, err := strconv.ParseBool(os.Getenv(TestModeEnv))
	testMode.Store(err == nil && on)
}

// InTestMode reports whether the payroll binaries should skip start-up.
func InTestMode() bool {
	testModeOnce.Do(loadTestMode)
	return testMode.Load()
}

// RefreshTestMode re-reads TestModeEnv; tests call it after t.Setenv.
func RefreshTestMode() {
	testModeOnce.Do(func() {})
	loadTestMode()
}
