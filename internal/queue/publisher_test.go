package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"shiksha/internal/types"
)

// mockSQSSender records all SendMessage calls for verification.
type mockSQSSender struct {
	calls     []*sqs.SendMessageInput
	returnErr error
}

func (m *mockSQSSender) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.calls = append(m.calls, params)
	if m.returnErr != nil {
		return nil, m.returnErr
	}
	return &sqs.SendMessageOutput{}, nil
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any)      {}
func (nopLogger) Error(string, ...any)     {}
func (nopLogger) Warn(string, ...any)      {}
func (nopLogger) With(...any) types.Logger { return nopLogger{} }

const queueURL = "https://sqs.ap-south-1.amazonaws.com/123/jobs"

func TestJobPublisher_Publish_IncrementsAttempt(t *testing.T) {
	sender := &mockSQSSender{}
	pub := NewJobPublisher(sender, queueURL, nopLogger{})

	msg := types.JobMessage{
		JobID:          "job_001",
		OrganizationID: "org_001",
		TraceID:        "trace_001",
		Attempt:        0,
	}

	if err := pub.Publish(context.Background(), msg, 5*time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(sender.calls) != 1 {
		t.Fatalf("expected 1 SQS call, got %d", len(sender.calls))
	}

	var sent types.JobMessage
	if err := json.Unmarshal([]byte(*sender.calls[0].MessageBody), &sent); err != nil {
		t.Fatalf("failed to unmarshal sent body: %v", err)
	}

	if sent.Attempt != 1 {
		t.Errorf("expected Attempt=1 in serialized message, got %d", sent.Attempt)
	}

	// The caller's message is passed by value and must not be mutated.
	if msg.Attempt != 0 {
		t.Errorf("original message Attempt was mutated: expected 0, got %d", msg.Attempt)
	}

	if *sender.calls[0].QueueUrl != queueURL {
		t.Errorf("queue URL = %q", *sender.calls[0].QueueUrl)
	}
	if sender.calls[0].DelaySeconds != 5 {
		t.Errorf("delay = %d, want 5", sender.calls[0].DelaySeconds)
	}
}

func TestJobPublisher_Publish_ClampsDelayTo900(t *testing.T) {
	sender := &mockSQSSender{}
	pub := NewJobPublisher(sender, queueURL, nopLogger{})

	if err := pub.Publish(context.Background(), types.JobMessage{JobID: "job_002"}, 2*time.Hour); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if sender.calls[0].DelaySeconds != 900 {
		t.Errorf("delay = %d, want clamped to 900", sender.calls[0].DelaySeconds)
	}
}

func TestJobPublisher_Publish_NegativeDelayBecomesZero(t *testing.T) {
	sender := &mockSQSSender{}
	pub := NewJobPublisher(sender, queueURL, nopLogger{})

	if err := pub.Publish(context.Background(), types.JobMessage{JobID: "job_003"}, -time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if sender.calls[0].DelaySeconds != 0 {
		t.Errorf("delay = %d, want 0", sender.calls[0].DelaySeconds)
	}
}

func TestJobPublisher_Publish_SendFailure(t *testing.T) {
	sender := &mockSQSSender{returnErr: errors.New("sqs unavailable")}
	pub := NewJobPublisher(sender, queueURL, nopLogger{})

	err := pub.Publish(context.Background(), types.JobMessage{JobID: "job_004"}, 0)
	if err == nil {
		t.Fatal("expected error from SQS failure")
	}
}

func TestDelayUntil(t *testing.T) {
	now := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	cases := []struct {
		name        string
		scheduledAt time.Time
		want        time.Duration
	}{
		{"past due", now.Add(-time.Minute), 0},
		{"due now", now, 0},
		{"within ceiling", now.Add(10 * time.Minute), 10 * time.Minute},
		{"at ceiling", now.Add(900 * time.Second), 900 * time.Second},
		{"beyond ceiling", now.Add(3 * time.Hour), 900 * time.Second},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DelayUntil(tc.scheduledAt, now); got != tc.want {
				t.Errorf("DelayUntil() = %v, want %v", got, tc.want)
			}
		})
	}
}
