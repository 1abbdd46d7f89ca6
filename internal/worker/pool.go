package worker

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"onenight-backend/internal/models"
	"onenight-backend/internal/services"
)

// ErrPoolStopped is reported in the fallback result of a digest submitted
// after Stop.
var ErrPoolStopped = errors.New("digest pool stopped")

// Digester is the work a Pool runs.
type Digester interface {
	Digest(ctx context.Context, materials []models.StudyMaterial, durationMinutes int) services.DigestResult
}

type job struct {
	ctx       context.Context
	materials []models.StudyMaterial
	minutes   int
	result    chan services.DigestResult
}

// Pool runs digests on a fixed number of goroutines. Submitters block until a
// worker is free, so a burst of session starts queues instead of fanning out
// into concurrent model calls.
type Pool struct {
	digester    Digester
	logger      *zap.Logger
	workerCount int
	jobs        chan job
	stopChan    chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

func NewPool(digester Digester, workerCount int, logger *zap.Logger) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		digester:    digester,
		logger:      logger,
		workerCount: workerCount,
		jobs:        make(chan job),
		stopChan:    make(chan struct{}),
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.logger.Info("digest workers started", zap.Int("workers", p.workerCount))
}

// Stop waits for in-flight digests to finish. Later submissions resolve to
// the fallback tree immediately.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopChan)
	})
	p.wg.Wait()
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopChan:
			p.logger.Debug("digest worker shutting down", zap.Int("worker", id))
			return
		case j := <-p.jobs:
			if err := j.ctx.Err(); err != nil {
				j.result <- fallback(err)
				continue
			}
			p.logger.Debug("digest worker picked up job",
				zap.Int("worker", id), zap.Int("materials", len(j.materials)))
			j.result <- p.digester.Digest(j.ctx, j.materials, j.minutes)
		}
	}
}

// Digest queues the job and waits for its result. It never fails: a
// cancelled context or a stopped pool yields the fallback tree.
func (p *Pool) Digest(ctx context.Context, materials []models.StudyMaterial, durationMinutes int) services.DigestResult {
	j := job{
		ctx:       ctx,
		materials: materials,
		minutes:   durationMinutes,
		result:    make(chan services.DigestResult, 1),
	}

	select {
	case <-p.stopChan:
		return fallback(ErrPoolStopped)
	default:
	}

	select {
	case p.jobs <- j:
	case <-ctx.Done():
		return fallback(ctx.Err())
	case <-p.stopChan:
		return fallback(ErrPoolStopped)
	}

	select {
	case res := <-j.result:
		return res
	case <-ctx.Done():
		return fallback(ctx.Err())
	}
}

func fallback(err error) services.DigestResult {
	return services.DigestResult{Tree: models.FallbackKnowledgeTree(), Fallback: true, Err: err}
}
