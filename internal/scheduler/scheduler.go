// Package scheduler runs the background jobs on fixed intervals. Each job
// kind is serialized across the fleet through a database lease keyed by the
// job name; different kinds run concurrently.
package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LeaseStore grants and releases named job leases.
type LeaseStore interface {
	AcquireLease(ctx context.Context, name, instanceID string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, name, instanceID string) error
}

type Job struct {
	Name     string
	Interval time.Duration
	// Timeout bounds one run, external calls included. Zero means the
	// scheduler default.
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

type Scheduler struct {
	leases         LeaseStore
	instanceID     string
	defaultTimeout time.Duration
	jobs           []Job
	log            *zap.SugaredLogger
}

func New(leases LeaseStore, defaultTimeout time.Duration, logger *zap.SugaredLogger) *Scheduler {
	if defaultTimeout <= 0 {
		defaultTimeout = 90 * time.Second
	}
	return &Scheduler{
		leases:         leases,
		instanceID:     uuid.NewString(),
		defaultTimeout: defaultTimeout,
		log:            logger,
	}
}

func (s *Scheduler) Register(job Job) {
	s.jobs = append(s.jobs, job)
}

// Start launches one ticker goroutine per job and blocks until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	for _, job := range s.jobs {
		go s.loop(ctx, job)
	}
	s.log.Infof("scheduler started with %d jobs, instance %s", len(s.jobs), s.instanceID)
	<-ctx.Done()
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx, job)
		}
	}
}

// RunOnce executes one guarded run of the job: take the lease, run with a
// deadline, release. A held lease elsewhere means this tick is skipped.
func (s *Scheduler) RunOnce(ctx context.Context, job Job) {
	timeout := job.Timeout
	if timeout <= 0 {
		timeout = s.defaultTimeout
	}

	ok, err := s.leases.AcquireLease(ctx, job.Name, s.instanceID, timeout+job.Interval)
	if err != nil {
		s.log.Errorf("job %s: acquire lease: %v", job.Name, err)
		return
	}
	if !ok {
		s.log.Debugf("job %s: lease held elsewhere, skipping", job.Name)
		return
	}
	defer func() {
		if err := s.leases.ReleaseLease(ctx, job.Name, s.instanceID); err != nil {
			s.log.Errorf("job %s: release lease: %v", job.Name, err)
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	if err := job.Run(runCtx); err != nil {
		s.log.Errorf("job %s: %v", job.Name, err)
		return
	}
	s.log.Infof("job %s finished in %s", job.Name, time.Since(start))
}
