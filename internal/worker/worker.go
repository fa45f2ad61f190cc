package worker

import (
	"context"
	"log/slog"
	"time"

	"lorekeeper/internal/domain"
	"lorekeeper/internal/usecase"

	"golang.org/x/time/rate"
)

const (
	defaultPollInterval = 5 * time.Second
	jobTimeout          = 10 * time.Minute
	initialBackoff      = 1 * time.Second
	maxBackoff          = 5 * time.Minute
)

// IngestWorker drains the ingest queue: each job chunks, embeds, and
// indexes one document. Embedding throughput is capped with a token-bucket
// limiter so a bulk upload cannot starve live query traffic on the
// inference service.
type IngestWorker struct {
	jobs         domain.IngestJobRepository
	indexer      usecase.IndexDocumentUsecase
	limiter      *rate.Limiter
	pollInterval time.Duration
	logger       *slog.Logger
	stopChan     chan struct{}
	backoff      time.Duration
}

func NewIngestWorker(
	jobs domain.IngestJobRepository,
	indexer usecase.IndexDocumentUsecase,
	pollSeconds int,
	jobsPerMinute int,
	logger *slog.Logger,
) *IngestWorker {
	if jobsPerMinute <= 0 {
		jobsPerMinute = 30
	}
	pollInterval := defaultPollInterval
	if pollSeconds > 0 {
		pollInterval = time.Duration(pollSeconds) * time.Second
	}
	return &IngestWorker{
		jobs:         jobs,
		indexer:      indexer,
		limiter:      rate.NewLimiter(rate.Every(time.Minute/time.Duration(jobsPerMinute)), 1),
		pollInterval: pollInterval,
		logger:       logger,
		stopChan:     make(chan struct{}),
	}
}

func (w *IngestWorker) Start() {
	w.logger.Info("ingest_worker_started")
	go w.run()
}

func (w *IngestWorker) Stop() {
	w.logger.Info("ingest_worker_stopping")
	close(w.stopChan)
}

func (w *IngestWorker) run() {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopChan:
			return
		case <-ticker.C:
			w.processNextJob()
			if w.backoff > 0 {
				ticker.Reset(w.backoff)
			} else {
				ticker.Reset(w.pollInterval)
			}
		}
	}
}

func (w *IngestWorker) processNextJob() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	job, err := w.jobs.AcquireNextJob(ctx)
	if err != nil {
		w.logger.Error("job_acquire_failed", slog.String("error", err.Error()))
		return
	}
	if job == nil {
		return
	}

	w.logger.Info("job_processing",
		slog.String("job_id", job.ID.String()),
		slog.String("document_id", job.DocumentID.String()))

	if err := w.limiter.Wait(ctx); err != nil {
		w.requeue(job)
		return
	}

	processErr := w.indexer.Execute(ctx, job.DocumentID)

	status := domain.JobStatusDone
	var errMsg *string
	if processErr != nil {
		status = domain.JobStatusFailed
		msg := processErr.Error()
		errMsg = &msg
		w.backoff = w.nextBackoff(w.backoff)
		w.logger.Warn("worker_backing_off",
			slog.String("job_id", job.ID.String()),
			slog.Duration("backoff", w.backoff),
			slog.String("error", processErr.Error()))
	} else {
		w.backoff = 0
		w.logger.Info("job_completed", slog.String("job_id", job.ID.String()))
	}

	if err := w.jobs.UpdateStatus(ctx, job.ID, status, errMsg); err != nil {
		w.logger.Error("job_status_update_failed",
			slog.String("job_id", job.ID.String()),
			slog.String("error", err.Error()))
	}
}

// requeue puts a claimed but unprocessed job back in the queue, used when
// the job timeout expires before the rate limiter admits the job. A fresh
// context is required because the job's own context is already canceled.
func (w *IngestWorker) requeue(job *domain.IngestJob) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.jobs.UpdateStatus(ctx, job.ID, domain.JobStatusNew, nil); err != nil {
		w.logger.Error("job_requeue_failed",
			slog.String("job_id", job.ID.String()),
			slog.String("error", err.Error()))
	}
}

func (w *IngestWorker) nextBackoff(current time.Duration) time.Duration {
	if current == 0 {
		return initialBackoff
	}
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}
