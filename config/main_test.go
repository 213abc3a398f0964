package config

import (
	"fmt"
	"os"
	"testing"
)

// Load and ConnectDatabase read the real environment, so the package refuses
// to run its tests against anything but GO_ENV=test.
func TestMain(m *testing.M) {
	if env := os.Getenv("GO_ENV"); env != "test" {
		fmt.Fprintf(os.Stderr, "config tests need GO_ENV=test (got %q); run: GO_ENV=test go test ./...\n", env)
		os.Exit(1)
	}
	os.Exit(m.Run())
}
