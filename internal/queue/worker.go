package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/agentlab/inference-gateway/internal/domain"
)

// BatchGenerator is the slice of the dispatcher the worker needs.
type BatchGenerator interface {
	GenerateBatch(ctx context.Context, requests []domain.GenerationRequest) []domain.BatchItem
}

// Worker drains generation jobs from the queue and publishes results.
type Worker struct {
	queue     Queue
	generator BatchGenerator
	logger    *slog.Logger

	// polling pause after an empty or failed receive
	idleDelay time.Duration
}

func NewWorker(q Queue, generator BatchGenerator, logger *slog.Logger) *Worker {
	return &Worker{
		queue:     q,
		generator: generator,
		logger:    logger,
		idleDelay: time.Second,
	}
}

// Run polls until ctx is canceled. Jobs are processed one receive batch at
// a time; a job is acknowledged only after its result is published.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("queue worker started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("queue worker stopped")
			return
		default:
		}

		received, err := w.queue.ReceiveJobs(ctx, 10)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.logger.Error("receive jobs", "error", err)
			w.sleep(ctx)
			continue
		}

		if len(received) == 0 {
			w.sleep(ctx)
			continue
		}

		for _, r := range received {
			w.process(ctx, r)
		}
	}
}

func (w *Worker) process(ctx context.Context, received ReceivedJob) {
	job := received.Job

	w.logger.Info("processing generation job",
		"job_id", job.ID,
		"requests", len(job.Requests))

	items := w.generator.GenerateBatch(ctx, job.Requests)

	result := JobResult{
		JobID:     job.ID,
		Items:     make([]JobItem, len(items)),
		CreatedAt: time.Now().UTC(),
	}
	for i, item := range items {
		if item.Err != nil {
			result.Items[i] = JobItem{Error: item.Err.Error()}
			continue
		}
		result.Items[i] = JobItem{Result: item.Result}
	}

	if err := w.queue.SendResult(ctx, result); err != nil {
		// Leave the job unacknowledged so the queue redelivers it.
		w.logger.Error("send job result", "job_id", job.ID, "error", err)
		return
	}

	if received.ReceiptHandle != "" {
		if err := w.queue.DeleteJob(ctx, received.ReceiptHandle); err != nil {
			w.logger.Error("acknowledge job", "job_id", job.ID, "error", err)
		}
	}
}

func (w *Worker) sleep(ctx context.Context) {
	timer := time.NewTimer(w.idleDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
