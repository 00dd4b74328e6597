package sandbox

import (
	"context"
	"log/slog"
	"sync"
)

// settlementJob is one pending collection waiting for its simulated outcome.
type settlementJob struct {
	TransactionUUID string
	CallbackURL     string
}

type worker struct {
	id         int
	workerPool chan chan settlementJob
	jobChannel chan settlementJob
	logger     *slog.Logger
}

func newWorker(id int, workerPool chan chan settlementJob, logger *slog.Logger) *worker {
	return &worker{
		id:         id,
		workerPool: workerPool,
		jobChannel: make(chan settlementJob),
		logger:     logger,
	}
}

func (w *worker) start(ctx context.Context, wg *sync.WaitGroup, process func(settlementJob)) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		for {
			select {
			case w.workerPool <- w.jobChannel:
			case <-ctx.Done():
				w.logger.Debug("sandbox worker shutting down", "worker_id", w.id)
				return
			}

			select {
			case job := <-w.jobChannel:
				w.logger.Debug("sandbox worker settling", "worker_id", w.id, "transaction_uuid", job.TransactionUUID)
				process(job)
			case <-ctx.Done():
				w.logger.Debug("sandbox worker shutting down", "worker_id", w.id)
				return
			}
		}
	}()
}

func (s *Server) startWorkerPool() {
	s.once.Do(func() {
		for i := 0; i < s.maxWorkers; i++ {
			w := newWorker(i, s.workerPool, s.logger)
			w.start(s.ctx, &s.wg, s.settle)
		}

		s.wg.Add(1)
		go s.dispatch()

		s.logger.Info("sandbox gateway worker pool started",
			"max_workers", s.maxWorkers,
			"queue_size", cap(s.jobQueue))
	})
}

func (s *Server) dispatch() {
	defer s.wg.Done()

	for {
		select {
		case job := <-s.jobQueue:
			select {
			case jobChannel := <-s.workerPool:
				select {
				case jobChannel <- job:
				case <-s.ctx.Done():
					return
				}
			case <-s.ctx.Done():
				return
			}
		case <-s.ctx.Done():
			s.logger.Info("sandbox dispatcher shutting down")
			return
		}
	}
}

// Shutdown stops the workers; queued settlements are dropped.
func (s *Server) Shutdown() {
	s.logger.Info("shutting down sandbox gateway")
	s.cancel()
	s.wg.Wait()
	s.logger.Info("sandbox gateway shutdown complete")
}
