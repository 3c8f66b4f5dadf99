package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"stock-streamer/src/interfaces"
	"stock-streamer/src/logger"
	"stock-streamer/src/models"
	"stock-streamer/src/snapshot"
)

// -----------------------------------------------------------------------------
// Collaborator contracts
// -----------------------------------------------------------------------------

// Fetcher produces a complete snapshot (the upstream client).
type Fetcher interface {
	FetchAll() (*models.MSnapshot, error)
}

// Broadcaster receives each cycle's non-empty diff (the hub).
type Broadcaster interface {
	PublishUpdates(updates []models.MStockRecord)
}

// MarketGate reports whether the exchange is trading right now.
type MarketGate interface {
	MarketOpen() bool
}

// -----------------------------------------------------------------------------
// Poll Scheduler
// -----------------------------------------------------------------------------

// PollScheduler drives fetch->diff->broadcast cycles on a fixed
// interval, plus one cold-start cycle shortly after startup. A busy
// flag guards cycle entry: a tick that fires while the previous cycle
// is still running is skipped entirely, never queued.
type PollScheduler struct {
	Config  models.MPollConfig
	Fetcher Fetcher
	Store   *snapshot.Store
	Hub     Broadcaster
	Logger  *logger.Logger

	// Cache, when set, receives the current snapshot after each
	// successful cycle (replace-all persistence).
	Cache interfaces.ISnapshotCache

	// Market, when set together with Config.MarketHoursOnly, suppresses
	// interval ticks outside trading hours. Manual triggers bypass it.
	Market MarketGate

	busy   atomic.Bool
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// -----------------------------------------------------------------------------

// New creates a poll scheduler.
func New(cfg models.MPollConfig, fetcher Fetcher, store *snapshot.Store, hub Broadcaster, log *logger.Logger) *PollScheduler {
	return &PollScheduler{
		Config:  cfg,
		Fetcher: fetcher,
		Store:   store,
		Hub:     hub,
		Logger:  log,
	}
}

// -----------------------------------------------------------------------------

// Start launches the scheduling loop.
func (s *PollScheduler) Start(parentCtx context.Context) {
	s.ctx, s.cancel = context.WithCancel(parentCtx)

	s.wg.Add(1)
	go s.run()

	s.Logger.Info("Poll scheduler started (interval %ds)", s.Config.IntervalSeconds)
}

// -----------------------------------------------------------------------------

// Stop ends the loop and waits for any in-flight cycle to finish.
// In-flight upstream calls are not cancelled; their per-call timeout
// bounds the wait.
func (s *PollScheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.Logger.Info("Poll scheduler stopped")
}

// -----------------------------------------------------------------------------

// TriggerNow requests an out-of-band cycle (manual refresh, or the hub
// seeding a baseline for an early subscriber). It respects the same
// busy flag as interval ticks.
func (s *PollScheduler) TriggerNow() {
	s.launchCycle("manual")
}

// -----------------------------------------------------------------------------

func (s *PollScheduler) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(time.Duration(s.Config.IntervalSeconds) * time.Second)
	defer ticker.Stop()

	// One cold-start cycle shortly after startup, independent of the
	// interval's own first tick.
	coldStart := time.NewTimer(time.Duration(s.Config.ColdStartDelayMs) * time.Millisecond)
	defer coldStart.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return

		case <-coldStart.C:
			s.launchCycle("cold start")

		case <-ticker.C:
			if s.Config.MarketHoursOnly && s.Market != nil && !s.Market.MarketOpen() {
				s.Logger.Debug("Market closed, skipping tick")
				continue
			}
			s.launchCycle("tick")
		}
	}
}

// -----------------------------------------------------------------------------

func (s *PollScheduler) launchCycle(reason string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runCycle(reason)
	}()
}

// -----------------------------------------------------------------------------

// runCycle performs one fetch->diff->broadcast pass. Internal failures
// end the cycle without broadcasting; the scheduler itself never halts.
func (s *PollScheduler) runCycle(reason string) {
	if !s.busy.CompareAndSwap(false, true) {
		s.Logger.Info("Previous cycle still running, skipping %s cycle", reason)
		return
	}
	defer s.busy.Store(false)

	start := time.Now()

	snap, err := s.Fetcher.FetchAll()
	if err != nil {
		s.Logger.Warning("Cycle (%s) failed: %v", reason, err)
		return
	}

	prev := s.Store.Replace(snap)
	updates := snapshot.ComputeUpdates(prev, snap)

	if len(updates) > 0 {
		s.Hub.PublishUpdates(updates)
	}

	if s.Cache != nil {
		if err := s.Cache.SaveSnapshot(snap); err != nil {
			s.Logger.Warning("Failed to persist snapshot: %v", err)
		}
	}

	s.Logger.Info("Cycle (%s) complete: %d records, %d changed, %v",
		reason, snap.Len(), len(updates), time.Since(start))
}
