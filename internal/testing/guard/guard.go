// Package guard is blank-imported by tests that link the tutorly binaries' packages.
// It turns on TUTORLY_TEST_MODE unless the caller already chose a value, which keeps
// payroll start-up from reaching Postgres, Redis or RabbitMQ.
package guard

import "os"

// Mirrors app.TestModeEnv; importing app here would cycle through its tests.
const testModeEnv = "TUTORLY_TEST_MODE"

func init() {
	if _, set := os.LookupEnv(testModeEnv); !set {
		_ = os.Setenv(testModeEnv, "true")
	}
}
