package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/shopkeeper/internal/flagx"
	"github.com/dmitrijs2005/shopkeeper/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling.
// It relies on timex.Duration so JSON can specify intervals either as
// strings like "2m" or as integer nanoseconds. After parsing, values
// are copied into the runtime Config (which uses time.Duration).
type JsonConfig struct {
	APIBaseURL          string         `json:"api_base_url"`
	AppOrigin           string         `json:"app_origin"`
	ListenAddr          string         `json:"listen_addr"`
	DatabaseDSN         string         `json:"database_dsn"`
	CacheDir            string         `json:"cache_dir"`
	SyncInterval        timex.Duration `json:"sync_interval"`
	OnlineCheckInterval timex.Duration `json:"online_check_interval"`
}

// parseJson overlays Config with values loaded from a JSON file.
//
// Lookup order for the JSON file path:
//  1. Command-line flags (-c or -config) via flagx.JsonConfigFlags().
//  2. If empty, no JSON is loaded and the function returns.
//
// Only fields present in the file override the current values; panics on
// read or unmarshal errors (caller should recover if desired).
//
// Intended usage is: defaults -> parseJson -> parseFlags, where later stages
// override earlier ones.
func parseJson(cfg *Config) {
	// Resolve file path from flags.
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.APIBaseURL != "" {
		cfg.APIBaseURL = jc.APIBaseURL
	}
	if jc.AppOrigin != "" {
		cfg.AppOrigin = jc.AppOrigin
	}
	if jc.ListenAddr != "" {
		cfg.ListenAddr = jc.ListenAddr
	}
	if jc.DatabaseDSN != "" {
		cfg.DatabaseDSN = jc.DatabaseDSN
	}
	if jc.CacheDir != "" {
		cfg.CacheDir = jc.CacheDir
	}
	if jc.SyncInterval.Duration != 0 {
		cfg.SyncInterval = time.Duration(jc.SyncInterval.Duration)
	}
	if jc.OnlineCheckInterval.Duration != 0 {
		cfg.OnlineCheckInterval = time.Duration(jc.OnlineCheckInterval.Duration)
	}
}
