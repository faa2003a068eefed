package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/liusync/internal/flagx"
	"github.com/dmitrijs2005/liusync/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Missing keys
// leave the corresponding Config field untouched.
type JsonConfig struct {
	ServerURL      *string         `json:"server_url"`
	DBPath         *string         `json:"db_path"`
	LogFile        *string         `json:"log_file"`
	RequestTimeout *timex.Duration `json:"request_timeout"`
	Debounce       *timex.Duration `json:"debounce"`
	MergeDelay     *timex.Duration `json:"merge_delay"`
	MergeMaxStack  *int            `json:"merge_max_stack"`
	MergeWait      *timex.Duration `json:"merge_wait"`
	EnterInterval  *timex.Duration `json:"enter_interval"`
	RefreshBefore  *timex.Duration `json:"refresh_before"`
	ClientID       *string         `json:"client_id"`
	Device         *string         `json:"device"`
	Language       *string         `json:"language"`
	Theme          *string         `json:"theme"`
	Version        *string         `json:"version"`
	DeviceSecret   *string         `json:"device_secret"`
}

// parseJson overlays cfg with the JSON file passed as -c or -config. Without
// the flag nothing is loaded.
func parseJson(cfg *Config, args []string) error {
	path := flagx.ConfigFile(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	setString(&cfg.ServerURL, jc.ServerURL)
	setString(&cfg.DBPath, jc.DBPath)
	setString(&cfg.LogFile, jc.LogFile)
	setDuration(&cfg.RequestTimeout, jc.RequestTimeout)
	setDuration(&cfg.Debounce, jc.Debounce)
	setDuration(&cfg.MergeDelay, jc.MergeDelay)
	if jc.MergeMaxStack != nil {
		cfg.MergeMaxStack = *jc.MergeMaxStack
	}
	setDuration(&cfg.MergeWait, jc.MergeWait)
	setDuration(&cfg.EnterInterval, jc.EnterInterval)
	setDuration(&cfg.RefreshBefore, jc.RefreshBefore)
	setString(&cfg.ClientID, jc.ClientID)
	setString(&cfg.Device, jc.Device)
	setString(&cfg.Language, jc.Language)
	setString(&cfg.Theme, jc.Theme)
	setString(&cfg.Version, jc.Version)
	setString(&cfg.DeviceSecret, jc.DeviceSecret)
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *timex.Duration) {
	if v != nil {
		*dst = v.Duration
	}
}
