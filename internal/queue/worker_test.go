package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/agentlab/inference-gateway/internal/domain"
)

type stubGenerator struct{}

func (stubGenerator) GenerateBatch(ctx context.Context, requests []domain.GenerationRequest) []domain.BatchItem {
	items := make([]domain.BatchItem, len(requests))
	for i, req := range requests {
		if req.Prompt == "fail" {
			items[i] = domain.BatchItem{Err: errors.New("provider exploded")}
			continue
		}
		items[i] = domain.BatchItem{Result: &domain.GenerationResult{
			Text:  "echo: " + req.Prompt,
			Model: req.Model,
		}}
	}
	return items
}

func TestWorker_ProcessesJob(t *testing.T) {
	q := NewInMemoryQueue()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	w := NewWorker(q, stubGenerator{}, logger)

	job := GenerationJob{
		ID: "job-1",
		Requests: []domain.GenerationRequest{
			{Model: "gpt-4o", Prompt: "hello"},
			{Model: "gpt-4o", Prompt: "fail"},
			{Model: "gpt-4o", Prompt: "world"},
		},
		CreatedAt: time.Now(),
	}
	if err := q.SendJob(context.Background(), job); err != nil {
		t.Fatalf("SendJob() error = %v", err)
	}

	received, err := q.ReceiveJobs(context.Background(), 10)
	if err != nil {
		t.Fatalf("ReceiveJobs() error = %v", err)
	}
	if len(received) != 1 {
		t.Fatalf("received %d jobs, want 1", len(received))
	}

	w.process(context.Background(), received[0])

	results := q.Results()
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	result := results[0]
	if result.JobID != "job-1" {
		t.Errorf("job id = %q", result.JobID)
	}
	if len(result.Items) != 3 {
		t.Fatalf("items = %d, want 3", len(result.Items))
	}
	if result.Items[0].Result == nil || result.Items[0].Result.Text != "echo: hello" {
		t.Errorf("item 0 = %+v", result.Items[0])
	}
	if result.Items[1].Error == "" || result.Items[1].Result != nil {
		t.Errorf("item 1 should carry the error: %+v", result.Items[1])
	}
	if result.Items[2].Result == nil || result.Items[2].Result.Text != "echo: world" {
		t.Errorf("item 2 = %+v, order must match submission", result.Items[2])
	}
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	q := NewInMemoryQueue()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	w := NewWorker(q, stubGenerator{}, logger)
	w.idleDelay = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}

func TestInMemoryQueue_FIFO(t *testing.T) {
	q := NewInMemoryQueue()
	ctx := context.Background()

	q.SendJob(ctx, GenerationJob{ID: "a"})
	q.SendJob(ctx, GenerationJob{ID: "b"})
	q.SendJob(ctx, GenerationJob{ID: "c"})

	got, _ := q.ReceiveJobs(ctx, 2)
	if len(got) != 2 || got[0].Job.ID != "a" || got[1].Job.ID != "b" {
		t.Errorf("first receive = %+v", got)
	}

	got, _ = q.ReceiveJobs(ctx, 2)
	if len(got) != 1 || got[0].Job.ID != "c" {
		t.Errorf("second receive = %+v", got)
	}
}
