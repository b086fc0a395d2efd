// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"

	"github.com/pbaille/timeclock/internal/dedup"
)

// Env holds the configuration values for the application.
type Env struct {
	APIURL       string
	DBPath       string
	Timeout      time.Duration
	RepeatWindow time.Duration
	Cooldown     time.Duration
	QRMaxAge     time.Duration
	Dedup        string
	Location     *time.Location
	Attempts     string
	LogFile      string
}

// Load reads an optional .env file from the working directory, then the
// environment.
func Load() (Env, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds an Env from the process environment only.
func FromEnv() (Env, error) {
	n, err := positive("TIMECLOCK_TIMEOUT_SECONDS", "30")
	if err != nil {
		return Env{}, err
	}
	timeout := time.Duration(n) * time.Second
	window, err := millis("TIMECLOCK_REPEAT_WINDOW_MS", "3000")
	if err != nil {
		return Env{}, err
	}
	cooldown, err := millis("TIMECLOCK_COOLDOWN_MS", "2000")
	if err != nil {
		return Env{}, err
	}
	maxAge, err := seconds("TIMECLOCK_QR_MAX_AGE_SECONDS", "30")
	if err != nil {
		return Env{}, err
	}

	loc := time.Local
	if name := get("TIMECLOCK_TZ", ""); name != "" {
		loc, err = time.LoadLocation(name)
		if err != nil {
			return Env{}, fmt.Errorf("load TIMECLOCK_TZ: %w", err)
		}
	}

	strategy, err := dedup.ParseStrategy(get("TIMECLOCK_DEDUP", dedup.StrategyLocal))
	if err != nil {
		return Env{}, fmt.Errorf("invalid TIMECLOCK_DEDUP: %w", err)
	}

	e := Env{
		APIURL:       get("TIMECLOCK_API_URL", "https://timesheetapp.azurewebsites.net/api"),
		DBPath:       get("TIMECLOCK_DB", DefaultDBPath()),
		Timeout:      timeout,
		RepeatWindow: window,
		Cooldown:     cooldown,
		QRMaxAge:     maxAge,
		Dedup:        strategy,
		Location:     loc,
		Attempts:     get("TIMECLOCK_ATTEMPTS", ""),
		LogFile:      get("TIMECLOCK_LOG_FILE", ""),
	}
	return e, nil
}

// DefaultDBPath returns ~/.timeclock/timeclock.db
func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "timeclock.db"
	}
	return filepath.Join(home, ".timeclock", "timeclock.db")
}

// get returns the value of the environment variable k or def if not set.
func get(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func seconds(k, def string) (time.Duration, error) {
	n, err := nonNegative(k, def)
	return time.Duration(n) * time.Second, err
}

func millis(k, def string) (time.Duration, error) {
	n, err := nonNegative(k, def)
	return time.Duration(n) * time.Millisecond, err
}

func nonNegative(k, def string) (int, error) {
	v := get(k, def)
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s %q: want a non-negative integer", k, v)
	}
	return n, nil
}

func positive(k, def string) (int, error) {
	v := get(k, def)
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s %q: want a positive integer", k, v)
	}
	return n, nil
}
