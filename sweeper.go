package authkit

import (
	"context"
	"time"
)

// startSweeper launches the background goroutine that prunes session
// index sets. Session hashes expire on their own via Redis TTLs; the
// per-user index sets that point at them do not, so without pruning a
// user who logs in from many devices over months accumulates dead set
// members. A zero interval disables the sweeper.
func (s *Service) startSweeper() {
	interval := s.config.Sweep.Interval
	if interval <= 0 {
		return
	}

	s.sweepStop = make(chan struct{})
	s.sweepWG.Add(1)
	go func() {
		defer s.sweepWG.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.sweepOnce()
			case <-s.sweepStop:
				return
			}
		}
	}()
}

func (s *Service) sweepOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	err := s.sessions.ScanUserIndexes(ctx, func(userID string) error {
		return s.sessions.PruneUserIndex(ctx, userID)
	})
	if err != nil {
		s.warnf("session index sweep: %v", err)
	}
}
