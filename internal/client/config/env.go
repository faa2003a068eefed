package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const envPrefix = "LIU_"

type envVar struct {
	name string
	set  func(cfg *Config, v string) error
}

func str(field func(*Config) *string) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		*field(cfg) = v
		return nil
	}
}

func dur(field func(*Config) *time.Duration) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*field(cfg) = d
		return nil
	}
}

var envVars = []envVar{
	{"SERVER_URL", str(func(c *Config) *string { return &c.ServerURL })},
	{"DB_PATH", str(func(c *Config) *string { return &c.DBPath })},
	{"LOG_FILE", str(func(c *Config) *string { return &c.LogFile })},
	{"REQUEST_TIMEOUT", dur(func(c *Config) *time.Duration { return &c.RequestTimeout })},
	{"DEBOUNCE", dur(func(c *Config) *time.Duration { return &c.Debounce })},
	{"MERGE_DELAY", dur(func(c *Config) *time.Duration { return &c.MergeDelay })},
	{"MERGE_MAX_STACK", func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		c.MergeMaxStack = n
		return nil
	}},
	{"MERGE_WAIT", dur(func(c *Config) *time.Duration { return &c.MergeWait })},
	{"ENTER_INTERVAL", dur(func(c *Config) *time.Duration { return &c.EnterInterval })},
	{"REFRESH_BEFORE", dur(func(c *Config) *time.Duration { return &c.RefreshBefore })},
	{"CLIENT_ID", str(func(c *Config) *string { return &c.ClientID })},
	{"DEVICE", str(func(c *Config) *string { return &c.Device })},
	{"LANGUAGE", str(func(c *Config) *string { return &c.Language })},
	{"THEME", str(func(c *Config) *string { return &c.Theme })},
	{"VERSION", str(func(c *Config) *string { return &c.Version })},
	{"DEVICE_SECRET", str(func(c *Config) *string { return &c.DeviceSecret })},
}

// parseEnv overlays cfg with LIU_* variables. A .env file, when present, fills
// in variables that are not already set in the process environment.
func parseEnv(cfg *Config) error {
	_ = godotenv.Load(".env")

	for _, ev := range envVars {
		v, ok := os.LookupEnv(envPrefix + ev.name)
		if !ok || v == "" {
			continue
		}
		if err := ev.set(cfg, v); err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, ev.name, err)
		}
	}
	return nil
}
