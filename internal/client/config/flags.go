package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/shopkeeper/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   base URL of the remote story API (default from Config)
//	-o string   origin of the application shell (default from Config)
//	-l string   listen address of the interception proxy (default from Config)
//	-d string   path of the local database file (default from Config)
//	-i int      online check interval in seconds (default from Config)
//	-s int      periodic sync interval in seconds (default from Config)
//
// Note: The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	// Filter args to include only those handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-o", "-l", "-d", "-i", "-s"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.APIBaseURL, "a", cfg.APIBaseURL, "base URL of the remote story API")
	fs.StringVar(&cfg.AppOrigin, "o", cfg.AppOrigin, "origin of the application shell")
	fs.StringVar(&cfg.ListenAddr, "l", cfg.ListenAddr, "listen address of the interception proxy")
	fs.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "path of the local database file")
	onlineCheckInterval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")
	syncInterval := fs.Int("s", int(cfg.SyncInterval.Seconds()), "periodic sync interval (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.OnlineCheckInterval = time.Duration(*onlineCheckInterval) * time.Second
	cfg.SyncInterval = time.Duration(*syncInterval) * time.Second
}
