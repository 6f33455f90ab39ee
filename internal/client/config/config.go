package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Config holds runtime settings for the ShopKeeper client.
//
// Fields:
//   - APIBaseURL: base URL of the remote story API.
//   - AppOrigin: origin of the application shell served through the
//     interception proxy.
//   - ListenAddr: host:port the interception proxy listens on.
//   - DatabaseDSN: path of the local SQLite database file.
//   - CacheDir: directory of the interception cache; empty keeps it in memory.
//   - SyncInterval: how often a periodic sync pass runs while online.
//   - OnlineCheckInterval: how often the client probes server reachability.
type Config struct {
	APIBaseURL          string
	AppOrigin           string
	ListenAddr          string
	DatabaseDSN         string
	CacheDir            string
	SyncInterval        time.Duration
	OnlineCheckInterval time.Duration
}

// LoadDefaults populates c with sensible defaults. Data and cache locations
// follow the XDG base directory spec.
func (c *Config) LoadDefaults() {
	c.APIBaseURL = "http://127.0.0.1:8080"
	c.AppOrigin = "http://localhost:5173"
	c.ListenAddr = "127.0.0.1:8787"
	c.DatabaseDSN = filepath.Join(xdg.DataHome, "shopkeeper", "client.db")
	c.CacheDir = filepath.Join(xdg.CacheHome, "shopkeeper", "intercept")
	c.SyncInterval = 2 * time.Minute
	c.OnlineCheckInterval = 15 * time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
