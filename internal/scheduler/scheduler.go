package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"CoverPool/internal/event"
)

// SnapshotFunc persists a snapshot of the current core state.
type SnapshotFunc func(ctx context.Context) error

// Scheduler manages the pool's cron tasks: the clock sweep that keeps
// tranche and bucket boundaries moving when no organic traffic arrives,
// and the periodic state snapshot.
type Scheduler struct {
	Cron      *cron.Cron
	EventChan chan<- event.Event
	Snapshot  SnapshotFunc
	Ctx       context.Context
}

// NewScheduler creates a new Scheduler.
func NewScheduler(ctx context.Context, eventChan chan<- event.Event, snapshot SnapshotFunc) *Scheduler {
	return &Scheduler{
		Cron:      cron.New(cron.WithSeconds()),
		EventChan: eventChan,
		Snapshot:  snapshot,
		Ctx:       ctx,
	}
}

// RegisterAll registers the sweep and snapshot tasks.
func (s *Scheduler) RegisterAll(sweepCron, snapshotCron string) error {
	if _, err := s.Cron.AddFunc(sweepCron, s.sweepTask); err != nil {
		return fmt.Errorf("register sweep task: %w", err)
	}
	if _, err := s.Cron.AddFunc(snapshotCron, s.snapshotTask); err != nil {
		return fmt.Errorf("register snapshot task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Println("INFO: scheduler started")
}

// Stop stops the cron scheduler gracefully.
func (s *Scheduler) Stop() {
	s.Cron.Stop()
	log.Println("INFO: scheduler stopped")
}

// RunSweepNow emits a sweep immediately (for manual trigger / startup
// catch-up after downtime).
func (s *Scheduler) RunSweepNow() {
	s.sweepTask()
}

func (s *Scheduler) sweepTask() {
	now := time.Now()
	evt := &event.ClockSweep{
		SweepID:   uuid.New(),
		Sequence:  now.UnixMicro(),
		Timestamp: now.Unix(),
		Role:      event.RoleOperator,
	}

	select {
	case s.EventChan <- evt:
	case <-s.Ctx.Done():
		log.Println("WARN: sweep dropped, shutting down")
	}
}

func (s *Scheduler) snapshotTask() {
	if s.Snapshot == nil {
		return
	}
	ctx, cancel := context.WithTimeout(s.Ctx, 30*time.Second)
	defer cancel()
	if err := s.Snapshot(ctx); err != nil {
		log.Printf("ERROR: snapshot task: %v", err)
	}
}
