package main

import (
	"testing"
	"time"
)

func TestEnvFallbacks(t *testing.T) {
	envWarnings = nil
	t.Setenv("PROBE_TIMEOUT", "3s")
	t.Setenv("BCRYPT_COST", "twelve")
	t.Setenv("WORK_DIR", "  ")

	if got := getEnvDuration("PROBE_TIMEOUT", time.Second); got != 3*time.Second {
		t.Fatalf("PROBE_TIMEOUT=%s, want 3s", got)
	}
	if got := getEnvInt("BCRYPT_COST", 10); got != 10 {
		t.Fatalf("BCRYPT_COST=%d, want fallback 10", got)
	}
	if got := getEnv("WORK_DIR", "."); got != "." {
		t.Fatalf("WORK_DIR=%q, want .", got)
	}
	if len(envWarnings) != 1 {
		t.Fatalf("warnings=%v, want one for BCRYPT_COST", envWarnings)
	}
}

func TestDefaultStaticDirFromEnv(t *testing.T) {
	t.Setenv("STATIC_DIR", "/srv/piexed/ui")
	if got := defaultStaticDir(); got != "/srv/piexed/ui" {
		t.Fatalf("defaultStaticDir=%q, want /srv/piexed/ui", got)
	}
}
