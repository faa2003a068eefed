package config

import (
	"os"
	"time"
)

// Config holds runtime settings for the liusync client.
//
// Durations are time.Duration values; JSON and environment accept "3s" style
// strings.
type Config struct {
	ServerURL string
	DBPath    string
	LogFile   string

	RequestTimeout time.Duration
	Debounce       time.Duration

	MergeDelay    time.Duration
	MergeMaxStack int
	MergeWait     time.Duration

	EnterInterval time.Duration
	RefreshBefore time.Duration

	ClientID     string
	Device       string
	Language     string
	Theme        string
	Version      string
	DeviceSecret string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.DBPath = "liusync.db"
	c.LogFile = ""
	c.RequestTimeout = 10 * time.Second
	c.Debounce = 380 * time.Millisecond
	c.MergeDelay = 50 * time.Millisecond
	c.MergeMaxStack = 3
	c.MergeWait = 10 * time.Second
	c.EnterInterval = time.Hour
	c.RefreshBefore = 24 * time.Hour
	c.ClientID = "liusync-cli"
	c.Device = "cli"
	c.Language = "en"
	c.Theme = "system"
	c.Version = "0.1.0"
}

// Load builds a Config from defaults, then the JSON file named by -c, then
// LIU_* environment variables (a .env file in the working directory is read
// first), then command-line flags. Later sources win.
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJson(cfg, args); err != nil {
		return nil, err
	}
	if err := parseEnv(cfg); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig is Load over os.Args; it panics on a malformed source.
func LoadConfig() *Config {
	cfg, err := Load(os.Args[1:])
	if err != nil {
		panic(err)
	}
	return cfg
}
