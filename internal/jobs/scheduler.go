// Package jobs runs the periodic maintenance work: sweeping pending
// gift deposits against the chain and expiring stale requests.
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"tonrush/internal/gift"
)

const (
	sweepTimeout  = 25 * time.Second
	requestMaxAge = 24 * time.Hour
)

type Scheduler struct {
	cron     *cron.Cron
	verifier *gift.Verifier
}

func NewScheduler(verifier *gift.Verifier) (*Scheduler, error) {
	s := &Scheduler{
		cron:     cron.New(),
		verifier: verifier,
	}

	if _, err := s.cron.AddFunc("@every 30s", s.sweepGifts); err != nil {
		return nil, err
	}
	if _, err := s.cron.AddFunc("@hourly", s.expireGifts); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	log.Info("jobs: scheduler started")
}

// Stop waits for a running job to finish before returning.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("jobs: scheduler stopped")
}

func (s *Scheduler) sweepGifts() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()
	s.verifier.Sweep(ctx)
}

func (s *Scheduler) expireGifts() {
	s.verifier.Expire(requestMaxAge)
}
