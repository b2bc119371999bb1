package exam

import (
	"context"
	"log"
	"time"
)

// IsExpired reports whether an attempt started at start has run past its
// allotted duration at now. Exams without a positive duration never expire.
func IsExpired(start time.Time, durationMinutes int, now time.Time) bool {
	if durationMinutes <= 0 {
		return false
	}
	return now.Sub(start) > time.Duration(durationMinutes)*time.Minute
}

// Sweeper periodically closes attempts whose time ran out while nobody was
// interacting with them. Expiry is still checked lazily on every request;
// the sweeper only bounds how long an abandoned attempt stays IN_PROGRESS.
type Sweeper struct {
	mgr      *Manager
	interval time.Duration
}

func NewSweeper(mgr *Manager, interval time.Duration) *Sweeper {
	return &Sweeper{mgr: mgr, interval: interval}
}

// Run blocks until ctx is done. A non-positive interval disables sweeping.
func (s *Sweeper) Run(ctx context.Context) error {
	if s.interval <= 0 {
		<-ctx.Done()
		return nil
	}
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			n, err := s.mgr.ExpireStale(ctx)
			if err != nil {
				log.Printf("sweeper: expire stale attempts: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("sweeper: timed out %d attempt(s)", n)
			}
		}
	}
}
