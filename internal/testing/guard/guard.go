// Package guard is imported for its side effects by tests that build the
// application wiring. It switches the binaries into test mode and stops
// configuration loading from picking up a developer's .env file.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("QUOTES_TEST_MODE") == "" {
			_ = os.Setenv("QUOTES_TEST_MODE", "1")
		}
		if os.Getenv("ENV_FILE") == "" {
			_ = os.Setenv("ENV_FILE", os.DevNull)
		}
	})
}
