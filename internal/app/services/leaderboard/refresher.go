package leaderboard

import (
	"context"
	"sync"
	"time"

	"github.com/habitsnap/core/internal/app/system"
	"github.com/habitsnap/core/pkg/logger"
)

// Refresher periodically rebuilds the leaderboard cache so readers mostly
// hit redis instead of scanning the store.
type Refresher struct {
	cache    *Cache
	interval time.Duration
	log      *logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

var _ system.Service = (*Refresher)(nil)

// NewRefresher creates a refresher; interval defaults to one minute.
func NewRefresher(cache *Cache, interval time.Duration, log *logger.Logger) *Refresher {
	if interval <= 0 {
		interval = time.Minute
	}
	if log == nil {
		log = logger.NewDefault("leaderboard-refresher")
	}
	return &Refresher{cache: cache, interval: interval, log: log}
}

func (r *Refresher) Name() string { return "leaderboard-refresher" }

func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.running = true

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if err := r.cache.Refresh(runCtx); err != nil {
					r.log.WithError(err).Warn("leaderboard refresh failed")
				}
			}
		}
	}()

	r.log.Info("leaderboard refresher started")
	return nil
}

func (r *Refresher) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
