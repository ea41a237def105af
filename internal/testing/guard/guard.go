// Package guard switches binaries into test mode when imported by their
// tests. An explicit ODYSSEY_TEST_MODE value is left alone.
package guard

import "os"

const testModeEnv = "ODYSSEY_TEST_MODE"

func init() {
	if _, ok := os.LookupEnv(testModeEnv); !ok {
		_ = os.Setenv(testModeEnv, "1")
	}
}
