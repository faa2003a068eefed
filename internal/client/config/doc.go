// Package config loads runtime configuration for the liusync client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected via -c or -config.
//  3. LIU_* environment variables; a .env file in the working directory is
//     loaded first without overriding variables that are already set.
//  4. Command-line flags, which override everything else.
//
// Supported flags
//
//	-a string     sync service base URL
//	-d string     local database path
//	-l string     log file
//	-t duration   request timeout
//
// # JSON schema
//
// Durations use timex.Duration, so values can be strings like "3s" or integer
// nanoseconds. Every key is optional:
//
//	{
//	  "server_url": "https://sync.example.com",
//	  "db_path": "liusync.db",
//	  "log_file": "liusync.log",
//	  "request_timeout": "10s",
//	  "debounce": "380ms",
//	  "merge_delay": "50ms",
//	  "merge_max_stack": 3,
//	  "merge_wait": "10s",
//	  "enter_interval": "1h",
//	  "refresh_before": "24h",
//	  "client_id": "liusync-cli",
//	  "device": "cli",
//	  "language": "en",
//	  "theme": "system",
//	  "version": "0.1.0",
//	  "device_secret": "..."
//	}
//
// Environment variables carry the same keys upper-cased with the LIU_ prefix,
// for example LIU_SERVER_URL or LIU_MERGE_WAIT.
package config
