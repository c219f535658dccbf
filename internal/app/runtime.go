package app

import (
	"os"
	"strconv"
	"sync"
)

// TestModeEnv is set by the root testing package so binaries skip startup
// side effects under go test.
const TestModeEnv = "ODYSSEY_TEST_MODE"

var (
	testMode     bool
	testModeOnce sync.Once
)

// testModeFrom accepts any strconv boolean; unset or malformed values mean off.
func testModeFrom(getenv func(string) string) bool {
	enabled, err := strconv.ParseBool(getenv(TestModeEnv))
	return err == nil && enabled
}

// InTestMode reports whether the process runs under tests. The environment
// is read once.
func InTestMode() bool {
	testModeOnce.Do(func() {
		testMode = testModeFrom(os.Getenv)
	})
	return testMode
}
