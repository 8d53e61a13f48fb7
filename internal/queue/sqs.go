package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/vhvplatform/go-esign-delivery-service/internal/shared/logger"
)

const (
	sqsMaxBatch        = 10
	sqsMaxDelaySeconds = 900
)

// SQSAPI is the subset of the SQS client used by SQSQueue
type SQSAPI interface {
	GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	SendMessageBatch(ctx context.Context, params *sqs.SendMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageBatchOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	GetQueueAttributes(ctx context.Context, params *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error)
}

// SQSOptions configures an SQSQueue
type SQSOptions struct {
	WaitTimeSeconds int32
	// Schema, when set, is applied to every received body. Invalid
	// messages are deleted.
	Schema *Schema
}

// SQSQueue is a JobQueue backed by an SQS queue. Job JSON is the message body.
type SQSQueue[T Job] struct {
	client   SQSAPI
	name     string
	url      string
	waitTime int32
	schema   *Schema
	log      *logger.Logger
}

// NewSQSQueue resolves the queue URL for name once and returns the queue
func NewSQSQueue[T Job](ctx context.Context, client SQSAPI, name string, opts SQSOptions, log *logger.Logger) (*SQSQueue[T], error) {
	out, err := client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(name)})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve SQS queue %s: %w", name, err)
	}

	return &SQSQueue[T]{
		client:   client,
		name:     name,
		url:      aws.ToString(out.QueueUrl),
		waitTime: opts.WaitTimeSeconds,
		schema:   opts.Schema,
		log:      log.With("queue", name),
	}, nil
}

func (q *SQSQueue[T]) Name() string { return q.name }

// Enqueue sends one fresh job
func (q *SQSQueue[T]) Enqueue(ctx context.Context, job T) error {
	reset(job, time.Now())
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}

	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.url),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("failed to send message to %s: %w", q.name, err)
	}
	return nil
}

// EnqueueBatch sends jobs in chunks of ten, the SQS batch limit
func (q *SQSQueue[T]) EnqueueBatch(ctx context.Context, jobs []T) error {
	now := time.Now()
	for start := 0; start < len(jobs); start += sqsMaxBatch {
		chunk := jobs[start:min(start+sqsMaxBatch, len(jobs))]

		entries := make([]types.SendMessageBatchRequestEntry, 0, len(chunk))
		for i, job := range chunk {
			reset(job, now)
			body, err := json.Marshal(job)
			if err != nil {
				return fmt.Errorf("failed to encode job: %w", err)
			}
			entries = append(entries, types.SendMessageBatchRequestEntry{
				Id:          aws.String(strconv.Itoa(start + i)),
				MessageBody: aws.String(string(body)),
			})
		}

		out, err := q.client.SendMessageBatch(ctx, &sqs.SendMessageBatchInput{
			QueueUrl: aws.String(q.url),
			Entries:  entries,
		})
		if err != nil {
			return fmt.Errorf("failed to send message batch to %s: %w", q.name, err)
		}
		if len(out.Failed) > 0 {
			ids := make([]string, len(out.Failed))
			for i, f := range out.Failed {
				ids[i] = aws.ToString(f.Id) + ":" + aws.ToString(f.Code)
			}
			return fmt.Errorf("%d of %d messages rejected by %s: %s", len(out.Failed), len(entries), q.name, strings.Join(ids, ", "))
		}
	}
	return nil
}

// ReceiveBatch long-polls for up to limit messages, capped at ten
func (q *SQSQueue[T]) ReceiveBatch(ctx context.Context, limit int) ([]Delivery[T], error) {
	limit = min(max(limit, 1), sqsMaxBatch)

	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.url),
		MaxNumberOfMessages: int32(limit),
		WaitTimeSeconds:     q.waitTime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to receive from %s: %w", q.name, err)
	}

	deliveries := make([]Delivery[T], 0, len(out.Messages))
	for _, msg := range out.Messages {
		job, err := q.decode(msg)
		if err != nil {
			q.log.Error("Discarding invalid message",
				"message_id", aws.ToString(msg.MessageId),
				"error", err,
			)
			if delErr := q.delete(ctx, aws.ToString(msg.ReceiptHandle)); delErr != nil {
				q.log.Error("Failed to delete invalid message", "message_id", aws.ToString(msg.MessageId), "error", delErr)
			}
			continue
		}
		deliveries = append(deliveries, Delivery[T]{Job: job, Receipt: aws.ToString(msg.ReceiptHandle)})
	}
	return deliveries, nil
}

func (q *SQSQueue[T]) decode(msg types.Message) (T, error) {
	var job T
	body := bytes.TrimSpace([]byte(aws.ToString(msg.Body)))
	if len(body) == 0 || body[0] != '{' {
		return job, fmt.Errorf("message body is not a JSON object")
	}

	if q.schema != nil {
		if err := q.schema.Validate(body); err != nil {
			return job, err
		}
	}
	if err := json.Unmarshal(body, &job); err != nil {
		return job, fmt.Errorf("failed to decode message body: %w", err)
	}
	return job, nil
}

// Ack deletes the message
func (q *SQSQueue[T]) Ack(ctx context.Context, d Delivery[T]) error {
	return q.delete(ctx, d.Receipt)
}

// Nack re-sends the job with its current attempt count after delay, then
// deletes the original. If the delete fails the job may be delivered twice.
func (q *SQSQueue[T]) Nack(ctx context.Context, d Delivery[T], delay time.Duration) error {
	body, err := json.Marshal(d.Job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}

	seconds := int32(min(max(delay/time.Second, 0), sqsMaxDelaySeconds))
	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:     aws.String(q.url),
		MessageBody:  aws.String(string(body)),
		DelaySeconds: seconds,
	})
	if err != nil {
		return fmt.Errorf("failed to re-send message to %s: %w", q.name, err)
	}

	return q.delete(ctx, d.Receipt)
}

// Depth returns ApproximateNumberOfMessages
func (q *SQSQueue[T]) Depth(ctx context.Context) (int, error) {
	out, err := q.client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(q.url),
		AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameApproximateNumberOfMessages},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to read attributes of %s: %w", q.name, err)
	}

	raw := out.Attributes[string(types.QueueAttributeNameApproximateNumberOfMessages)]
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid queue depth %q: %w", raw, err)
	}
	return n, nil
}

func (q *SQSQueue[T]) delete(ctx context.Context, receipt string) error {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.url),
		ReceiptHandle: aws.String(receipt),
	})
	if err != nil {
		return fmt.Errorf("failed to delete message from %s: %w", q.name, err)
	}
	return nil
}
