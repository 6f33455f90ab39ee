package intercept

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/shopkeeper/internal/logging"
)

// State is the interceptor lifecycle. Interception only happens in
// StateActive; before that, requests go straight to the network.
type State int32

const (
	StateInstalling State = iota
	StateInstalled
	StateActivating
	StateActive
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActivating:
		return "activating"
	case StateActive:
		return "active"
	default:
		return "stopped"
	}
}

// Config wires the interceptor to its surroundings.
type Config struct {
	// AppOrigin is scheme://host[:port] of the application shell; requests
	// with relative URLs are resolved against it.
	AppOrigin string
	// APIOrigin is scheme://host[:port] of the remote API.
	APIOrigin string
	// DevHosts lists hostnames that mark a live-reload development context
	// (default: localhost, 127.0.0.1).
	DevHosts []string
	// AnalyticsHosts are never intercepted. Defaults cover the usual
	// Google tracking endpoints.
	AnalyticsHosts []string
	// Precache lists static asset paths cached best-effort during install.
	Precache []string
	// HoldUntilSkipWaiting keeps the interceptor in StateInstalled until a
	// SKIP_WAITING control message arrives (new-version rollout).
	HoldUntilSkipWaiting bool
	// CacheDir is the badger directory; empty means in-memory.
	CacheDir string
}

type ctlKind int

const (
	ctlSkipWaiting ctlKind = iota
	ctlCacheStatus
	ctlClearCache
)

// ctlMsg is a control-channel message with an explicit reply port.
type ctlMsg struct {
	kind  ctlKind
	reply chan ctlReply
}

type ctlReply struct {
	partitions []PartitionStatus
	err        error
}

// CacheStatus is the GET_CACHE_STATUS reply.
type CacheStatus struct {
	State      string            `json:"state"`
	Partitions []PartitionStatus `json:"partitions"`
}

// Interceptor serves at the network boundary. Lifecycle transitions and
// partition maintenance are owned by a single actor goroutine and reached
// via control messages with reply ports; the lifecycle state itself is an
// atomic read elsewhere. Request strategies read and write individual cache
// entries directly on badger, which is safe for concurrent use.
type Interceptor struct {
	cfg    Config
	cache  *CacheStore
	client *http.Client
	log    logging.Logger

	appHost    string
	apiHost    string
	devContext bool

	state atomic.Int32
	ctl   chan ctlMsg
	done  chan struct{}
}

func New(cfg Config, log logging.Logger) (*Interceptor, error) {
	appURL, err := url.Parse(cfg.AppOrigin)
	if err != nil || appURL.Host == "" {
		return nil, fmt.Errorf("invalid app origin %q", cfg.AppOrigin)
	}
	apiURL, err := url.Parse(cfg.APIOrigin)
	if err != nil || apiURL.Host == "" {
		return nil, fmt.Errorf("invalid api origin %q", cfg.APIOrigin)
	}

	if cfg.DevHosts == nil {
		cfg.DevHosts = []string{"localhost", "127.0.0.1"}
	}
	if cfg.AnalyticsHosts == nil {
		cfg.AnalyticsHosts = defaultAnalyticsHosts
	}

	cache, err := OpenCache(cfg.CacheDir)
	if err != nil {
		return nil, err
	}

	i := &Interceptor{
		cfg:     cfg,
		cache:   cache,
		client:  &http.Client{Timeout: 30 * time.Second},
		log:     log.With("component", "intercept"),
		appHost: appURL.Host,
		apiHost: apiURL.Host,
		ctl:     make(chan ctlMsg),
		done:    make(chan struct{}),
	}
	i.devContext = i.isDevHost(appURL.Hostname())
	i.state.Store(int32(StateInstalling))
	return i, nil
}

func (i *Interceptor) isDevHost(hostname string) bool {
	for _, h := range i.cfg.DevHosts {
		if strings.EqualFold(hostname, h) {
			return true
		}
	}
	return false
}

// SetHTTPClient replaces the upstream transport. Test seam.
func (i *Interceptor) SetHTTPClient(c *http.Client) { i.client = c }

func (i *Interceptor) State() State { return State(i.state.Load()) }

// Start runs install/activate and then the actor loop. It returns once the
// lifecycle goroutine is launched; Stop (or ctx cancellation) ends it.
func (i *Interceptor) Start(ctx context.Context) {
	go i.run(ctx)
}

func (i *Interceptor) run(ctx context.Context) {
	defer close(i.done)
	defer func() {
		i.state.Store(int32(StateStopped))
		if err := i.cache.Close(); err != nil {
			i.log.Warn(ctx, "failed to close cache store", "error", err)
		}
	}()

	i.install(ctx)
	i.state.Store(int32(StateInstalled))

	if !i.cfg.HoldUntilSkipWaiting {
		i.activate(ctx)
	}

	for {
		select {
		case msg := <-i.ctl:
			i.handleControl(ctx, msg)
		case <-ctx.Done():
			return
		}
	}
}

// Wait blocks until the actor goroutine has exited.
func (i *Interceptor) Wait() { <-i.done }

// install pre-populates the static partition. Best-effort: one asset
// failing must not abort the rest.
func (i *Interceptor) install(ctx context.Context) {
	i.state.Store(int32(StateInstalling))
	for _, p := range i.cfg.Precache {
		target := i.cfg.AppOrigin + p
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			i.log.Warn(ctx, "precache skipped", "url", target, "error", err)
			continue
		}
		if _, err := i.fetchAndCache(req, partitionName(partStatic)); err != nil {
			i.log.Warn(ctx, "precache failed", "url", target, "error", err)
		}
	}
	i.log.Info(ctx, "install finished", "precached", len(i.cfg.Precache))
}

// activate deletes partitions outside the recognized set and starts
// intercepting.
func (i *Interceptor) activate(ctx context.Context) {
	i.state.Store(int32(StateActivating))

	current, err := i.cache.Partitions()
	if err != nil {
		i.log.Warn(ctx, "failed to list partitions during activation", "error", err)
	}
	recognized := map[string]struct{}{}
	for _, name := range recognizedPartitions() {
		recognized[name] = struct{}{}
	}
	for _, name := range current {
		if _, ok := recognized[name]; ok {
			continue
		}
		if err := i.cache.DropPartition(name); err != nil {
			i.log.Warn(ctx, "failed to drop stale partition", "partition", name, "error", err)
			continue
		}
		i.log.Info(ctx, "dropped stale cache partition", "partition", name)
	}

	i.state.Store(int32(StateActive))
	i.log.Info(ctx, "interceptor active", "version", CacheVersion, "dev", i.devContext)
}

// handleControl serves one control message. Every command answers on its
// reply port; a failing command must not take the actor down.
func (i *Interceptor) handleControl(ctx context.Context, msg ctlMsg) {
	switch msg.kind {
	case ctlSkipWaiting:
		if i.State() == StateInstalled {
			i.activate(ctx)
		}
		msg.reply <- ctlReply{}
	case ctlCacheStatus:
		var statuses []PartitionStatus
		var firstErr error
		for _, name := range recognizedPartitions() {
			st, err := i.cache.Status(name, 5)
			if err != nil && firstErr == nil {
				firstErr = err
			}
			statuses = append(statuses, st)
		}
		msg.reply <- ctlReply{partitions: statuses, err: firstErr}
	case ctlClearCache:
		var firstErr error
		names, err := i.cache.Partitions()
		if err != nil {
			firstErr = err
		}
		for _, name := range names {
			if err := i.cache.DropPartition(name); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		msg.reply <- ctlReply{err: firstErr}
	default:
		msg.reply <- ctlReply{err: errors.New("unknown control message")}
	}
}

func (i *Interceptor) control(ctx context.Context, kind ctlKind) (ctlReply, error) {
	msg := ctlMsg{kind: kind, reply: make(chan ctlReply, 1)}
	select {
	case i.ctl <- msg:
	case <-ctx.Done():
		return ctlReply{}, ctx.Err()
	case <-i.done:
		return ctlReply{}, errors.New("interceptor stopped")
	}
	select {
	case r := <-msg.reply:
		return r, nil
	case <-ctx.Done():
		return ctlReply{}, ctx.Err()
	}
}

// SkipWaiting forces a pending installed version to activate (SKIP_WAITING).
func (i *Interceptor) SkipWaiting(ctx context.Context) error {
	r, err := i.control(ctx, ctlSkipWaiting)
	if err != nil {
		return err
	}
	return r.err
}

// CacheContents reports partition names, entry counts and sample URLs
// (GET_CACHE_STATUS).
func (i *Interceptor) CacheContents(ctx context.Context) (*CacheStatus, error) {
	r, err := i.control(ctx, ctlCacheStatus)
	if err != nil {
		return nil, err
	}
	if r.err != nil {
		return nil, r.err
	}
	return &CacheStatus{State: i.State().String(), Partitions: r.partitions}, nil
}

// ClearCache drops every cache partition (CLEAR_CACHE).
func (i *Interceptor) ClearCache(ctx context.Context) error {
	r, err := i.control(ctx, ctlClearCache)
	if err != nil {
		return err
	}
	return r.err
}
