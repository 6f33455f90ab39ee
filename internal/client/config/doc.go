// Package config loads runtime configuration for the ShopKeeper client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string   base URL of the remote story API
//	-o string   origin of the application shell
//	-l string   listen address of the interception proxy
//	-d string   path of the local database file
//	-i int      online status check interval (seconds)
//	-s int      periodic sync interval (seconds)
//
// # JSON schema
//
// The JSON loader uses timex.Duration for intervals, so values can be either
// strings like "2m" or integer nanoseconds:
//
//	{
//	  "api_base_url": "http://127.0.0.1:8080",
//	  "app_origin": "http://localhost:5173",
//	  "listen_addr": "127.0.0.1:8787",
//	  "database_dsn": "/home/me/.local/share/shopkeeper/client.db",
//	  "cache_dir": "/home/me/.cache/shopkeeper/intercept",
//	  "sync_interval": "2m",
//	  "online_check_interval": "15s"
//	}
//
// Note: This package does not read environment variables directly; use the
// JSON file or flags to configure values.
package config
