package app

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const sweepTimeout = 30 * time.Second

// cleaner deletes inactive refresh tokens (session.Service.Cleanup).
type cleaner interface {
	Cleanup(ctx context.Context) (int64, error)
}

// sweeper runs cleaner periodically off the request path.
type sweeper struct {
	log      *slog.Logger
	c        cleaner
	interval time.Duration
	onSweep  func(removed int64, err error)

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func startSweeper(log *slog.Logger, c cleaner, interval time.Duration, onSweep func(int64, error)) *sweeper {
	s := &sweeper{
		log:      log,
		c:        c,
		interval: interval,
		onSweep:  onSweep,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *sweeper) loop() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	// Unblock an in-flight store call on Stop.
	go func() {
		select {
		case <-s.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	start := time.Now()
	n, err := s.c.Cleanup(ctx)
	if err != nil {
		s.log.Warn("refresh.cleanup.fail", "err", err)
	} else if n > 0 {
		s.log.Info("refresh.cleanup.ok", "removed", n, "duration_ms", time.Since(start).Milliseconds())
	}
	if s.onSweep != nil {
		s.onSweep(n, err)
	}
}

// Stop halts the loop and waits for an in-flight sweep to return.
func (s *sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}
