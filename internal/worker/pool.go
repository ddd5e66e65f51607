// Package worker runs background jobs: asynchronous profile syncs and
// preview analysis for tracks whose audio features had to be estimated.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/ewilliams-labs/duet/internal/core/domain"
	"github.com/ewilliams-labs/duet/internal/core/ports"
	"github.com/ewilliams-labs/duet/internal/logging"
	"github.com/ewilliams-labs/duet/internal/metrics"
)

const (
	kindProfileSync = "profile_sync"
	kindPreview     = "preview_analysis"

	defaultJobTimeout = 2 * time.Minute
)

// Handler does the work behind each job kind.
type Handler interface {
	SyncProfile(ctx context.Context, userID string) (domain.TasteProfile, error)
	// ApplyPreviewEnergy stores the energy measured from a track preview.
	ApplyPreviewEnergy(ctx context.Context, job ports.PreviewJob, energy float64) error
}

// AnalyzeFunc measures the energy of a preview.
type AnalyzeFunc func(ctx context.Context, url string) (float64, error)

type Options struct {
	Workers    int
	QueueSize  int
	JobTimeout time.Duration
	// Analyze defaults to AnalyzePreview.
	Analyze AnalyzeFunc
}

type job struct {
	kind    string
	userID  string
	preview ports.PreviewJob
}

// Pool manages background workers for async jobs.
type Pool struct {
	handler    Handler
	analyze    AnalyzeFunc
	workers    int
	jobTimeout time.Duration

	jobs chan job
	wg   sync.WaitGroup

	mu      sync.RWMutex
	closed  bool
	started bool
	cancel  context.CancelFunc
}

var _ ports.JobQueue = (*Pool)(nil)

// NewPool creates a worker pool. Call Start before submitting work.
func NewPool(h Handler, opts Options) *Pool {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 1
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = defaultJobTimeout
	}
	if opts.Analyze == nil {
		opts.Analyze = AnalyzePreview
	}
	return &Pool{
		handler:    h,
		analyze:    opts.Analyze,
		workers:    opts.Workers,
		jobTimeout: opts.JobTimeout,
		jobs:       make(chan job, opts.QueueSize),
	}
}

// Start launches the worker goroutines. Jobs run under ctx; cancelling it
// aborts in-flight work.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true

	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for j := range p.jobs {
				metrics.WorkerQueueDepth.Set(float64(len(p.jobs)))
				p.process(ctx, j)
			}
		}()
	}
	logging.Component("worker").Info().Int("workers", p.workers).Int("queue", cap(p.jobs)).Msg("worker pool started")
}

// Stop closes the queue and waits for queued jobs to finish.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
	if p.cancel != nil {
		p.cancel()
	}
	metrics.WorkerQueueDepth.Set(0)
	logging.Component("worker").Info().Msg("worker pool stopped")
}

// SubmitProfileSync queues a profile rebuild without blocking.
func (p *Pool) SubmitProfileSync(userID string) bool {
	return p.submit(job{kind: kindProfileSync, userID: userID})
}

// SubmitPreviewAnalysis queues a preview analysis without blocking. Jobs
// without a preview URL are rejected.
func (p *Pool) SubmitPreviewAnalysis(pj ports.PreviewJob) bool {
	if pj.PreviewURL == "" || pj.TrackID == "" {
		return false
	}
	return p.submit(job{kind: kindPreview, userID: pj.UserID, preview: pj})
}

func (p *Pool) submit(j job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		metrics.WorkerJobs.WithLabelValues(j.kind, "dropped").Inc()
		return false
	}

	select {
	case p.jobs <- j:
		metrics.WorkerQueueDepth.Set(float64(len(p.jobs)))
		return true
	default:
		metrics.WorkerJobs.WithLabelValues(j.kind, "dropped").Inc()
		logging.Component("worker").Warn().
			Str("kind", j.kind).
			Str("user_id", j.userID).
			Str("track_id", j.preview.TrackID).
			Msg("queue full, dropping job")
		return false
	}
}

func (p *Pool) process(ctx context.Context, j job) {
	ctx, cancel := context.WithTimeout(logging.ContextWithUserID(ctx, j.userID), p.jobTimeout)
	defer cancel()

	start := time.Now()
	var err error
	switch j.kind {
	case kindProfileSync:
		_, err = p.handler.SyncProfile(ctx, j.userID)
	case kindPreview:
		var energy float64
		energy, err = p.analyze(ctx, j.preview.PreviewURL)
		if err == nil {
			err = p.handler.ApplyPreviewEnergy(ctx, j.preview, energy)
		}
	}

	log := logging.Ctx(ctx)
	if err != nil {
		metrics.WorkerJobs.WithLabelValues(j.kind, "failed").Inc()
		log.Warn().Err(err).Str("kind", j.kind).Str("track_id", j.preview.TrackID).Msg("job failed")
		return
	}
	metrics.WorkerJobs.WithLabelValues(j.kind, "ok").Inc()
	log.Debug().Str("kind", j.kind).Str("track_id", j.preview.TrackID).Dur("elapsed", time.Since(start)).Msg("job done")
}
