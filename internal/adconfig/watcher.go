package adconfig

import (
	"context"
	"fmt"
	"time"

	"github.com/keithlinneman/oboxads-web/internal/cryptoutil"
	"github.com/keithlinneman/oboxads-web/internal/log"
)

const (
	DefaultPollInterval = 30 * time.Second

	maxBackoff = 5 * time.Minute
)

type pollResult int

const (
	pollNoChange pollResult = iota
	pollSwapped
	pollSSMError
	pollLoadError
)

// Fetcher is what the watcher needs from a Loader.
type Fetcher interface {
	FetchCurrentHash(ctx context.Context) (string, error)
	LoadHash(ctx context.Context, hash string) (*Snapshot, error)
}

// WatcherMetrics is implemented by *metrics.ServerMetrics.
type WatcherMetrics interface {
	IncSettingsPolls()
	IncSettingsSwaps()
	IncSettingsError(errType string)
	ObserveSettingsLoadDuration(seconds float64)
	SetSettingsLastSuccess(unixSeconds float64)
	SetSettingsStale(stale bool)
}

type WatcherOptions struct {
	Logger       log.Logger
	Fetcher      Fetcher
	Manager      *Manager
	PollInterval time.Duration

	// OnSwap runs on the poll goroutine after every successful swap.
	OnSwap func(hash string, s Settings)

	Metrics WatcherMetrics

	// StaleThreshold defaults to 30 minutes.
	StaleThreshold time.Duration
}

// Watcher polls SSM for a new settings hash and swaps verified settings into
// the Manager. A failed load keeps the current settings.
type Watcher struct {
	fetcher  Fetcher
	manager  *Manager
	logger   log.Logger
	interval time.Duration
	onSwap   func(hash string, s Settings)
	metrics  WatcherMetrics

	currentHash     string
	consecutiveErrs int

	staleThreshold time.Duration
	lastSuccessAt  time.Time
	staleLogged    bool

	pollCount int64
	swapCount int64

	now func() time.Time
}

func NewWatcher(opts WatcherOptions) *Watcher {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	stale := opts.StaleThreshold
	if stale <= 0 {
		stale = 30 * time.Minute
	}
	return &Watcher{
		fetcher:        opts.Fetcher,
		manager:        opts.Manager,
		logger:         opts.Logger,
		interval:       interval,
		onSwap:         opts.OnSwap,
		metrics:        opts.Metrics,
		currentHash:    opts.Manager.Hash(),
		staleThreshold: stale,
		lastSuccessAt:  time.Now(),
		now:            time.Now,
	}
}

// Run blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info(ctx, "settings watcher starting",
		"poll_interval", w.interval.String(),
		"current_hash", truncHash(w.currentHash),
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info(ctx, "settings watcher stopping",
				"reason", ctx.Err(),
				"polls", w.pollCount,
				"swaps", w.swapCount,
			)
			return ctx.Err()
		case <-ticker.C:
			result := w.checkOnce(ctx)
			if next, changed := w.afterPoll(ctx, result); changed {
				ticker.Reset(next)
			}
		}
	}
}

// afterPoll updates backoff and staleness state and returns the next tick
// interval when it changed.
func (w *Watcher) afterPoll(ctx context.Context, result pollResult) (time.Duration, bool) {
	if result == pollSSMError {
		w.consecutiveErrs++
		backoff := w.backoffDuration()
		w.logger.Warn(ctx, "settings watcher: backing off",
			"consecutive_errors", w.consecutiveErrs,
			"next_poll_in", backoff.String(),
		)
		if since := w.now().Sub(w.lastSuccessAt); since > w.staleThreshold && !w.staleLogged {
			w.logger.Error(ctx, fmt.Errorf("last successful SSM poll was %s ago", since.Truncate(time.Second)),
				"settings watcher: ad settings are stale",
			)
			w.staleLogged = true
			if w.metrics != nil {
				w.metrics.SetSettingsStale(true)
			}
		}
		return backoff, true
	}

	if w.staleLogged {
		w.logger.Info(ctx, "settings watcher: staleness recovered")
		w.staleLogged = false
		if w.metrics != nil {
			w.metrics.SetSettingsStale(false)
		}
	}
	if w.consecutiveErrs > 0 {
		w.logger.Info(ctx, "settings watcher: recovered, resuming normal interval",
			"had_consecutive_errors", w.consecutiveErrs,
		)
		w.consecutiveErrs = 0
		return w.interval, true
	}
	return 0, false
}

func (w *Watcher) checkOnce(ctx context.Context) pollResult {
	w.pollCount++
	if w.metrics != nil {
		w.metrics.IncSettingsPolls()
	}

	hash, err := w.fetcher.FetchCurrentHash(ctx)
	if err != nil {
		w.logger.Error(ctx, err, "settings watcher: SSM poll failed")
		if w.metrics != nil {
			w.metrics.IncSettingsError("ssm")
		}
		return pollSSMError
	}

	now := w.now()
	w.lastSuccessAt = now
	if w.metrics != nil {
		w.metrics.SetSettingsLastSuccess(float64(now.Unix()))
	}

	if cryptoutil.HashEqual(hash, w.currentHash) {
		return pollNoChange
	}

	w.logger.Info(ctx, "settings watcher: new settings hash detected",
		"old_hash", truncHash(w.currentHash),
		"new_hash", truncHash(hash),
	)

	start := w.now()
	snap, err := w.fetcher.LoadHash(ctx, hash)
	if w.metrics != nil {
		w.metrics.ObserveSettingsLoadDuration(w.now().Sub(start).Seconds())
	}
	if err != nil {
		w.logger.Error(ctx, err, "settings watcher: failed to load settings, keeping current",
			"hash", truncHash(hash),
		)
		if w.metrics != nil {
			w.metrics.IncSettingsError("load")
		}
		return pollLoadError
	}

	old := w.currentHash
	w.manager.Set(*snap)
	w.currentHash = hash
	w.swapCount++

	w.logger.Info(ctx, "settings watcher: settings swapped",
		"old_hash", truncHash(old),
		"new_hash", truncHash(hash),
		"site", snap.Settings.Site,
		"total_swaps", w.swapCount,
	)
	if w.metrics != nil {
		w.metrics.IncSettingsSwaps()
	}

	if w.onSwap != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					w.logger.Error(ctx, fmt.Errorf("OnSwap panic: %v", r),
						"settings watcher: OnSwap callback panicked, continuing",
						"hash", truncHash(hash),
					)
				}
			}()
			w.onSwap(hash, snap.Settings)
		}()
	}
	return pollSwapped
}

// backoffDuration doubles the interval per consecutive error, capped at maxBackoff.
func (w *Watcher) backoffDuration() time.Duration {
	d := w.interval
	for i := 0; i < w.consecutiveErrs && d < maxBackoff; i++ {
		d *= 2
	}
	return min(d, maxBackoff)
}

func truncHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
