package config

import (
	"testing"
	"time"
)

func TestGetEnvDuration(t *testing.T) {
	cases := []struct {
		name     string
		value    string
		fallback time.Duration
		want     time.Duration
	}{
		{"go duration", "250ms", time.Second, 250 * time.Millisecond},
		{"bare seconds", "0.2", time.Second, 200 * time.Millisecond},
		{"zero", "0", time.Second, 0},
		{"garbage", "soon", time.Second, time.Second},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("TEST_DURATION", tc.value)
			if got := getEnvDuration("TEST_DURATION", tc.fallback); got != tc.want {
				t.Fatalf("getEnvDuration(%q): want=%v got=%v", tc.value, tc.want, got)
			}
		})
	}
}

func TestLoadDefaultsAndOverrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("WORKER_COUNT", "7")
	t.Setenv("ALLOW_ONLY_INTERNAL_USERS", "false")
	t.Setenv("FFMPEG_PATH", "/opt/bin/ffmpeg")

	cfg := Load()
	if cfg.DBDriver != "sqlite" {
		t.Fatalf("DBDriver: want=%q got=%q", "sqlite", cfg.DBDriver)
	}
	if cfg.WorkerCount != 7 {
		t.Fatalf("WorkerCount: want=7 got=%d", cfg.WorkerCount)
	}
	if cfg.AllowOnlyInternalUsers {
		t.Fatalf("AllowOnlyInternalUsers: want=false")
	}
	if cfg.FFprobePath != "/opt/bin/ffprobe" {
		t.Fatalf("FFprobePath: want=%q got=%q", "/opt/bin/ffprobe", cfg.FFprobePath)
	}
	if cfg.RetryMax != 3 || cfg.RetryIntervalStep != 200*time.Millisecond || cfg.RetryIntervalMax != 500*time.Millisecond {
		t.Fatalf("retry defaults: got max=%d step=%v max=%v", cfg.RetryMax, cfg.RetryIntervalStep, cfg.RetryIntervalMax)
	}
	if cfg.DriveTimeout != 30*time.Second {
		t.Fatalf("DriveTimeout: want=30s got=%v", cfg.DriveTimeout)
	}
}
