package config

import (
	"strings"
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, k := range []string{
		"TIMECLOCK_API_URL", "TIMECLOCK_DB", "TIMECLOCK_TIMEOUT_SECONDS", "TIMECLOCK_REPEAT_WINDOW_MS",
		"TIMECLOCK_COOLDOWN_MS", "TIMECLOCK_QR_MAX_AGE_SECONDS", "TIMECLOCK_DEDUP", "TIMECLOCK_TZ",
		"TIMECLOCK_ATTEMPTS", "TIMECLOCK_LOG_FILE",
	} {
		t.Setenv(k, "")
	}

	e, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if e.APIURL != "https://timesheetapp.azurewebsites.net/api" {
		t.Errorf("APIURL = %q", e.APIURL)
	}
	if e.Timeout != 30*time.Second || e.RepeatWindow != 3*time.Second || e.Cooldown != 2*time.Second || e.QRMaxAge != 30*time.Second {
		t.Errorf("durations = %v %v %v %v", e.Timeout, e.RepeatWindow, e.Cooldown, e.QRMaxAge)
	}
	if e.Dedup != "local" || e.Location != time.Local {
		t.Errorf("dedup = %q, location = %v", e.Dedup, e.Location)
	}
	if !strings.HasSuffix(e.DBPath, "timeclock.db") {
		t.Errorf("DBPath = %q", e.DBPath)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("TIMECLOCK_API_URL", "http://localhost:5000/api")
	t.Setenv("TIMECLOCK_REPEAT_WINDOW_MS", "500")
	t.Setenv("TIMECLOCK_QR_MAX_AGE_SECONDS", "0")
	t.Setenv("TIMECLOCK_DEDUP", "Remote")
	t.Setenv("TIMECLOCK_TZ", "Europe/Paris")

	e, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if e.APIURL != "http://localhost:5000/api" || e.RepeatWindow != 500*time.Millisecond || e.QRMaxAge != 0 {
		t.Errorf("env = %+v", e)
	}
	if e.Dedup != "remote" || e.Location.String() != "Europe/Paris" {
		t.Errorf("dedup = %q, location = %v", e.Dedup, e.Location)
	}
}

func TestFromEnvInvalid(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"TIMECLOCK_TIMEOUT_SECONDS", "soon"},
		{"TIMECLOCK_TIMEOUT_SECONDS", "0"},
		{"TIMECLOCK_COOLDOWN_MS", "-1"},
		{"TIMECLOCK_DEDUP", "both"},
		{"TIMECLOCK_TZ", "Mars/Olympus"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := FromEnv(); err == nil {
				t.Errorf("%s=%q accepted", tt.key, tt.value)
			}
		})
	}
}
