package app

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Evictor removes expired sessions and reports how many it removed.
type Evictor interface {
	EvictExpired() int
}

type EvictionRecorder interface {
	ObserveEvictions(n int)
}

// StartSessionReaper runs evictor on every tick until the returned stop
// function is called. recorder may be nil.
func StartSessionReaper(clock clockwork.Clock, interval time.Duration, evictor Evictor, recorder EvictionRecorder) func() {
	ticker := clock.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.Chan():
				n := evictor.EvictExpired()
				if n > 0 {
					slog.Info("Evicted expired sessions", "count", n)
				}
				if recorder != nil {
					recorder.ObserveEvictions(n)
				}
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()
	slog.Info("Session reaper started", "interval", interval.String())

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}
