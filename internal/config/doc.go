// Package config loads the fiscal client configuration.
//
// # Resolution order
//
//  1. Built-in defaults
//  2. ~/.config/fiscal/config.toml, or the path passed to Load
//  3. .env next to the config file and in the working directory
//  4. FISCAL_API_URL, FISCAL_DATA_DIR and FISCAL_LOG_LEVEL
//
// A missing config file is not an error. Invalid TOML, unparsable durations
// and negative retries are.
//
// # TOML Format
//
//	api_url = "http://127.0.0.1:3333"
//	data_dir = "~/.local/share/fiscal"
//	request_timeout = "10s"
//	retries = 1
//	debounce = "500ms"
//	probe_interval = "5s"
//	log_level = "info"
//
//	[offline]
//	apply_filters = false
//
// Durations use Go duration syntax. Tilde expansion is applied to data_dir.
// The data dir holds the SQLite cache, the session file and the log file.
package config
