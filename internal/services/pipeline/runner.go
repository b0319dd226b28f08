package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/bobmcallan/fnoscreen/internal/common"
	"github.com/bobmcallan/fnoscreen/internal/interfaces"
	"github.com/bobmcallan/fnoscreen/internal/models"
)

// Runner launches full pipeline runs in the background for the HTTP trigger and the
// scheduler. At most one run is active; Stop cancels it and waits for it to exit.
type Runner struct {
	service *Service
	logger  *common.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	active atomic.Bool

	mu   sync.Mutex
	last *models.RunReport
}

var _ interfaces.PipelineRunner = (*Runner)(nil)

// NewRunner creates a runner over service.
func NewRunner(service *Service, logger *common.Logger) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		service: service,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// safeGo launches a goroutine with panic recovery and logging.
func (r *Runner) safeGo(name string, fn func()) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error().
					Str("goroutine", name).
					Str("panic", fmt.Sprintf("%v", rec)).
					Str("stack", string(debug.Stack())).
					Msg("Recovered from panic in pipeline goroutine")
			}
		}()
		fn()
	}()
}

// Trigger starts a full run unless one is already going. It reports whether a run started.
func (r *Runner) Trigger(source string) bool {
	if !r.active.CompareAndSwap(false, true) {
		r.logger.Info().Str("source", source).Msg("Pipeline run already in progress, skipping")
		return false
	}

	r.safeGo("collect-all", func() {
		defer r.active.Store(false)

		report, err := r.service.CollectAll(r.ctx)
		if err != nil {
			if errors.Is(err, ErrRunInProgress) {
				r.logger.Info().Str("source", source).Msg("Pipeline run already in progress, skipping")
				return
			}
			r.logger.Error().Err(err).Str("source", source).Msg("Pipeline run failed")
			return
		}

		r.mu.Lock()
		r.last = report
		r.mu.Unlock()
	})
	return true
}

// Running reports whether a background run is active.
func (r *Runner) Running() bool {
	return r.active.Load()
}

// LastReport returns the report of the last completed background run, or nil.
func (r *Runner) LastReport() *models.RunReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Stop cancels any active run and waits for it to return.
func (r *Runner) Stop() {
	r.cancel()
	r.wg.Wait()
}
