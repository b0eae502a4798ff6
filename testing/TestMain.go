// Package testing puts the back-office into test mode. Test packages that
// reach process startup import it for that side effect.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

const testModeEnv = "BACKOFFICE_TEST_MODE"

var once sync.Once

// Enable flags test mode and keeps startup from migrating a real database.
// Values the caller already exported are left alone.
func Enable() {
	once.Do(func() {
		_ = os.Setenv(testModeEnv, "1")
		if _, ok := os.LookupEnv("MIGRATE_ON_START"); !ok {
			_ = os.Setenv("MIGRATE_ON_START", "false")
		}
	})
}

func init() {
	Enable()
}

// TestMain lets a package delegate its TestMain here.
func TestMain(m *stdtesting.M) {
	Enable()
	os.Exit(m.Run())
}
