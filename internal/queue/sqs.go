// Package queue carries asynchronous batch generation jobs over SQS: a
// client enqueues a batch, a gateway worker dispatches it, and results go
// back on the result queue keyed by job ID.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/agentlab/inference-gateway/internal/domain"
)

// GenerationJob is one queued batch of requests.
type GenerationJob struct {
	ID        string                     `json:"id"`
	Requests  []domain.GenerationRequest `json:"requests"`
	CreatedAt time.Time                  `json:"created_at"`
}

// JobItem mirrors one request's outcome; exactly one of Result or Error is
// meaningful.
type JobItem struct {
	Result *domain.GenerationResult `json:"result,omitempty"`
	Error  string                   `json:"error,omitempty"`
}

// JobResult is the completed batch, items aligned with the job's requests.
type JobResult struct {
	JobID     string    `json:"job_id"`
	Items     []JobItem `json:"items"`
	CreatedAt time.Time `json:"created_at"`
}

type Queue interface {
	SendJob(ctx context.Context, job GenerationJob) error
	ReceiveJobs(ctx context.Context, maxMessages int) ([]ReceivedJob, error)
	DeleteJob(ctx context.Context, receiptHandle string) error
	SendResult(ctx context.Context, result JobResult) error
}

// ReceivedJob pairs a job with the handle needed to acknowledge it.
type ReceivedJob struct {
	Job           GenerationJob
	ReceiptHandle string
}

type SQSQueue struct {
	client         *sqs.Client
	jobQueueURL    string
	resultQueueURL string
}

func NewSQSQueue(ctx context.Context, region, jobQueueURL, resultQueueURL string) (*SQSQueue, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewSQSQueueWithConfig(cfg, jobQueueURL, resultQueueURL), nil
}

func NewSQSQueueWithConfig(cfg aws.Config, jobQueueURL, resultQueueURL string) *SQSQueue {
	return &SQSQueue{
		client:         sqs.NewFromConfig(cfg),
		jobQueueURL:    jobQueueURL,
		resultQueueURL: resultQueueURL,
	}
}

func (q *SQSQueue) SendJob(ctx context.Context, job GenerationJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.jobQueueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"JobID": {
				DataType:    aws.String("String"),
				StringValue: aws.String(job.ID),
			},
		},
	}

	if _, err := q.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("send job: %w", err)
	}

	return nil
}

func (q *SQSQueue) ReceiveJobs(ctx context.Context, maxMessages int) ([]ReceivedJob, error) {
	input := &sqs.ReceiveMessageInput{
		QueueUrl:              aws.String(q.jobQueueURL),
		MaxNumberOfMessages:   int32(maxMessages),
		WaitTimeSeconds:       20,
		MessageAttributeNames: []string{"All"},
	}

	result, err := q.client.ReceiveMessage(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("receive jobs: %w", err)
	}

	jobs := make([]ReceivedJob, 0, len(result.Messages))
	for _, msg := range result.Messages {
		var job GenerationJob
		if err := json.Unmarshal([]byte(*msg.Body), &job); err != nil {
			continue
		}
		jobs = append(jobs, ReceivedJob{
			Job:           job,
			ReceiptHandle: aws.ToString(msg.ReceiptHandle),
		})
	}

	return jobs, nil
}

func (q *SQSQueue) DeleteJob(ctx context.Context, receiptHandle string) error {
	input := &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.jobQueueURL),
		ReceiptHandle: aws.String(receiptHandle),
	}

	if _, err := q.client.DeleteMessage(ctx, input); err != nil {
		return fmt.Errorf("delete job: %w", err)
	}

	return nil
}

func (q *SQSQueue) SendResult(ctx context.Context, result JobResult) error {
	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.resultQueueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"JobID": {
				DataType:    aws.String("String"),
				StringValue: aws.String(result.JobID),
			},
		},
	}

	if _, err := q.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("send result: %w", err)
	}

	return nil
}

// InMemoryQueue backs tests and single-process deployments.
type InMemoryQueue struct {
	mu      sync.Mutex
	jobs    []GenerationJob
	results []JobResult
}

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{}
}

func (q *InMemoryQueue) SendJob(ctx context.Context, job GenerationJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *InMemoryQueue) ReceiveJobs(ctx context.Context, maxMessages int) ([]ReceivedJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	count := maxMessages
	if count > len(q.jobs) {
		count = len(q.jobs)
	}

	out := make([]ReceivedJob, count)
	for i := 0; i < count; i++ {
		out[i] = ReceivedJob{Job: q.jobs[i]}
	}
	q.jobs = q.jobs[count:]

	return out, nil
}

func (q *InMemoryQueue) DeleteJob(ctx context.Context, receiptHandle string) error {
	return nil
}

func (q *InMemoryQueue) SendResult(ctx context.Context, result JobResult) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.results = append(q.results, result)
	return nil
}

func (q *InMemoryQueue) Results() []JobResult {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]JobResult, len(q.results))
	copy(out, q.results)
	return out
}
