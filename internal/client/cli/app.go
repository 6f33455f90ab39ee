package cli

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dmitrijs2005/shopkeeper/internal/client/config"
	"github.com/dmitrijs2005/shopkeeper/internal/client/events"
	"github.com/dmitrijs2005/shopkeeper/internal/client/gateway"
	"github.com/dmitrijs2005/shopkeeper/internal/client/storage"
	"github.com/dmitrijs2005/shopkeeper/internal/client/syncer"
	"github.com/dmitrijs2005/shopkeeper/internal/filex"
	"github.com/dmitrijs2005/shopkeeper/internal/intercept"
	"github.com/dmitrijs2005/shopkeeper/internal/logging"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

// App wires the local store, the network gateway, the reconciliation engine
// and the interception proxy together behind the REPL.
type App struct {
	config      *config.Config
	store       *storage.Store
	api         *gateway.Client
	engine      *syncer.Syncer
	interceptor *intercept.Interceptor
	tokens      *storeTokenSource
	log         logging.Logger
	reader      *bufio.Reader
	userName    string
}

func NewApp(c *config.Config) (*App, error) {
	ctx := context.Background()

	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})))

	if dir := filepath.Dir(c.DatabaseDSN); dir != "." {
		if _, err := filex.EnsureSubDir(filepath.Dir(dir), filepath.Base(dir)); err != nil {
			return nil, err
		}
	}
	if c.CacheDir != "" {
		if err := os.MkdirAll(c.CacheDir, 0o770); err != nil {
			return nil, err
		}
	}

	store, err := storage.Open(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, err
	}

	tokens := &storeTokenSource{store: store}
	api := gateway.NewClient(c.APIBaseURL, tokens, log)

	engine := syncer.New(store, api, events.NewRegistry(), log,
		syncer.WithInterval(c.SyncInterval),
		syncer.WithPingEvery(c.OnlineCheckInterval),
	)

	interceptor, err := intercept.New(intercept.Config{
		AppOrigin: c.AppOrigin,
		APIOrigin: c.APIBaseURL,
		CacheDir:  c.CacheDir,
		Precache:  []string{"/", "/index.html"},
	}, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &App{
		config:      c,
		store:       store,
		api:         api,
		engine:      engine,
		interceptor: interceptor,
		tokens:      tokens,
		log:         log,
		reader:      bufio.NewReader(os.Stdin),
	}, nil
}

// Run starts the background machinery and hands control to the REPL. It
// returns when the user exits; background goroutines stop with the context.
func (a *App) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer func() {
		if err := a.store.Close(); err != nil {
			a.log.Warn(ctx, "failed to close store", "error", err)
		}
	}()

	a.subscribeEvents()

	a.interceptor.Start(ctx)
	go a.serveProxy(ctx)
	go a.engine.Run(ctx)

	a.Root(ctx)
}

// serveProxy runs the interception proxy on the configured address until the
// context is cancelled.
func (a *App) serveProxy(ctx context.Context) {
	srv := &http.Server{
		Addr:              a.config.ListenAddr,
		Handler:           a.interceptor.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		a.log.Error(ctx, "interception proxy stopped", "error", err)
	}
}

// subscribeEvents mirrors engine events onto the terminal so the user sees
// connectivity and sync transitions without asking.
func (a *App) subscribeEvents() {
	reg := a.engine.Events()
	reg.Subscribe(events.NetworkOnline, func(any) {
		fmt.Println("\n[network] back online, syncing...")
	})
	reg.Subscribe(events.NetworkOffline, func(any) {
		fmt.Println("\n[network] connection lost, switching to offline mode")
	})
	reg.Subscribe(events.SyncCompleted, func(payload any) {
		if s, ok := payload.(syncer.Summary); ok && (s.Drained > 0 || s.Pushed > 0) {
			fmt.Printf("\n[sync] finished: %d queued changes sent, %d pushed\n", s.Drained, s.Pushed)
		}
	})
	reg.Subscribe(events.SyncFailed, func(payload any) {
		fmt.Printf("\n[sync] failed: %v\n", payload)
	})
}

func (a *App) isLoggedIn() bool {
	return a.userName != ""
}

func (a *App) mode() Mode {
	if a.api.Online() {
		return ModeOnline
	}
	return ModeOffline
}
