package piwatch

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Refresher proactively renews the appliance session on a fixed period so
// foreground requests rarely observe an expired sid. Each tick logs in
// unconditionally, valid session or not; a failed tick is logged and
// swallowed and the loop continues.
type Refresher struct {
	auth     Authenticator
	interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewRefresher creates a refresher ticking at interval. An interval of zero
// or less defaults to 30 minutes.
func NewRefresher(auth Authenticator, interval time.Duration) *Refresher {
	if interval <= 0 {
		interval = 30 * time.Minute
	}

	return &Refresher{
		auth:     auth,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the background loop. Non-blocking; call Stop to shut the
// loop down.
func (r *Refresher) Start() {
	go r.run()
	log.Info().Dur("interval", r.interval).Msg("session refresher started")
}

// Stop terminates the loop and blocks until it has exited.
func (r *Refresher) Stop() {
	close(r.stopCh)
	<-r.doneCh
	log.Info().Msg("session refresher stopped")
}

func (r *Refresher) run() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.tick()
		case <-r.stopCh:
			return
		}
	}
}

// tick performs one unconditional re-login.
func (r *Refresher) tick() {
	if !r.auth.Login(context.Background()) {
		log.Warn().Msg("scheduled session refresh failed")
	}
}
