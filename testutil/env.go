package testutil

import (
	"os"
	"testing"
)

// RequireTestEnvironment fails t unless GO_ENV=test. NewFixture calls it so a
// misconfigured shell never reaches a shared database.
func RequireTestEnvironment(t *testing.T) {
	t.Helper()
	if env := os.Getenv("GO_ENV"); env != "test" {
		t.Fatalf("tests must run with GO_ENV=test, got %q", env)
	}
}

// SetTestEnvironment sets the variables config.Load needs, pointing the
// database at in-memory SQLite and leaving Redis unset.
func SetTestEnvironment(t *testing.T) {
	t.Helper()
	for k, v := range map[string]string{
		"GO_ENV":                "test",
		"DATABASE_URL":          "sqlite://memory",
		"AUTH0_DOMAIN":          "test.auth0.com",
		"AUTH0_AUDIENCE":        "https://api.printhouse.test",
		"PORT":                  "8080",
		"REDIS_ADDR":            "",
		"AWS_REGION":            "us-east-1",
		"AWS_S3_BUCKET":         "test-bucket",
		"AWS_ACCESS_KEY_ID":     "test-key",
		"AWS_SECRET_ACCESS_KEY": "test-secret",
	} {
		t.Setenv(k, v)
	}
}
