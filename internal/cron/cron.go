package cron

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/Marga-Ghale/hdss-admin-backend/internal/service"
)

const jobTimeout = 2 * time.Minute

// Scheduler handles scheduled tasks
type Scheduler struct {
	cron       *cron.Cron
	recovery   service.RecoveryService
	staleAfter time.Duration
	logger     *zap.Logger
}

// NewScheduler creates a new scheduler. Sagas untouched for staleAfter are
// treated as abandoned.
func NewScheduler(recovery service.RecoveryService, staleAfter time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cron.DiscardLogger),
			cron.Recover(cron.DiscardLogger),
		)),
		recovery:   recovery,
		staleAfter: staleAfter,
		logger:     logger,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	// Every 5 minutes - settle approvals left behind by a crashed process
	if _, err := s.cron.AddFunc("*/5 * * * *", s.recoverStaleApprovals); err != nil {
		return err
	}

	// Every day at 8 AM - pending review backlog
	if _, err := s.cron.AddFunc("0 8 * * *", s.reportPendingRequests); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("scheduler started")
	return nil
}

// Stop stops the scheduler and waits for running jobs to finish
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// recoverStaleApprovals compensates or completes abandoned approval sagas
func (s *Scheduler) recoverStaleApprovals() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	n, err := s.recovery.RecoverStale(ctx, s.staleAfter)
	if err != nil {
		s.logger.Error("stale approval recovery failed", zap.Int("recovered", n), zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("recovered stale approvals", zap.Int("recovered", n))
	}
}

// reportPendingRequests logs how many account requests await review
func (s *Scheduler) reportPendingRequests() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	n, err := s.recovery.PendingCount(ctx)
	if err != nil {
		s.logger.Error("failed to count pending account requests", zap.Error(err))
		return
	}
	s.logger.Info("pending account requests", zap.Int("pending", n))
}

// ManualTrigger runs a job immediately
func (s *Scheduler) ManualTrigger(job string) {
	switch job {
	case "recovery":
		s.recoverStaleApprovals()
	case "pending":
		s.reportPendingRequests()
	case "all":
		s.recoverStaleApprovals()
		s.reportPendingRequests()
	}
}
