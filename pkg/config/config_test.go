package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAPIConfigDefaults(t *testing.T) {
	for _, key := range []string{"API_ADDR", "SESSION_IDLE_TIMEOUT", "PASSWORD_RESET_TTL", "ACCESS_TOKEN_TTL_MIN"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	cfg := LoadAPIConfig()
	if cfg.Addr != ":4000" {
		t.Fatalf("unexpected addr %q", cfg.Addr)
	}
	if cfg.SessionIdleTimeout != time.Hour {
		t.Fatalf("unexpected idle timeout %s", cfg.SessionIdleTimeout)
	}
	if cfg.AccessTokenTTL != 15*time.Minute {
		t.Fatalf("unexpected access ttl %s", cfg.AccessTokenTTL)
	}
}

func TestGettersFallBackOnInvalidValues(t *testing.T) {
	t.Setenv("CFG_TEST_INT", "nope")
	t.Setenv("CFG_TEST_BOOL", "maybe")
	t.Setenv("CFG_TEST_DURATION", "soon")
	if got := GetInt("CFG_TEST_INT", 7); got != 7 {
		t.Fatalf("GetInt = %d", got)
	}
	if got := GetBool("CFG_TEST_BOOL", true); !got {
		t.Fatalf("GetBool = %v", got)
	}
	if got := GetDuration("CFG_TEST_DURATION", time.Second); got != time.Second {
		t.Fatalf("GetDuration = %s", got)
	}

	t.Setenv("CFG_TEST_DURATION", " 90s ")
	if got := GetDuration("CFG_TEST_DURATION", time.Second); got != 90*time.Second {
		t.Fatalf("GetDuration = %s", got)
	}
}

func TestLoadDotEnvKeepsExistingValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("CFG_TEST_FROM_FILE=file\nCFG_TEST_PRESET=file\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv("CFG_TEST_PRESET", "process")
	t.Setenv("CFG_TEST_FROM_FILE", "")
	os.Unsetenv("CFG_TEST_FROM_FILE")
	t.Cleanup(func() { os.Unsetenv("CFG_TEST_FROM_FILE") })

	LoadDotEnv(filepath.Join(t.TempDir(), "missing.env"), path)

	if got := GetString("CFG_TEST_FROM_FILE", ""); got != "file" {
		t.Fatalf("expected value from file, got %q", got)
	}
	if got := GetString("CFG_TEST_PRESET", ""); got != "process" {
		t.Fatalf("existing variable overwritten: %q", got)
	}
}
