package syncer

import (
	"context"
	"time"

	"github.com/dmitrijs2005/shopkeeper/internal/client/events"
)

// Run drives the background triggers until ctx is cancelled: a connectivity
// probe that flips the gateway's online flag, and the periodic sync ticker
// gated on that flag. An offline-to-online transition triggers an immediate
// pass.
func (s *Syncer) Run(ctx context.Context) {
	pingTicker := time.NewTicker(s.pingEvery)
	defer pingTicker.Stop()
	syncTicker := time.NewTicker(s.interval)
	defer syncTicker.Stop()

	for {
		select {
		case <-pingTicker.C:
			s.checkConnectivity(ctx)
		case <-syncTicker.C:
			if s.api.Online() {
				_ = s.SyncNow(ctx)
			}
		case <-ctx.Done():
			return
		}
	}
}

// checkConnectivity probes the server and reconciles the online flag,
// emitting transition events. Coming back online kicks off a sync pass.
func (s *Syncer) checkConnectivity(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	err := s.api.Ping(probeCtx)
	cancel()

	wasOnline := s.api.Online()
	nowOnline := err == nil

	if wasOnline == nowOnline {
		return
	}
	s.api.SetOnline(nowOnline)

	if nowOnline {
		s.log.Info(ctx, "back online")
		s.events.Emit(events.NetworkOnline, nil)
		_ = s.SyncNow(ctx)
	} else {
		s.log.Info(ctx, "went offline", "error", err)
		s.events.Emit(events.NetworkOffline, nil)
	}
}
