package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/aws/aws-lambda-go/events"

	"shiksha/internal/types"
)

type mockRunner struct {
	processed []types.JobMessage
	errFor    map[string]error
}

func (m *mockRunner) Process(_ context.Context, msg types.JobMessage) error {
	m.processed = append(m.processed, msg)
	return m.errFor[msg.JobID]
}

func newTestWorker(runner *mockRunner) *Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &Handler{runner: runner, logger: &slogAdapter{logger: logger}}
}

func sqsRecord(messageID, body string) events.SQSMessage {
	return events.SQSMessage{MessageId: messageID, Body: body}
}

func TestHandle_ProcessesEachRecord(t *testing.T) {
	runner := &mockRunner{}
	h := newTestWorker(runner)

	event := events.SQSEvent{Records: []events.SQSMessage{
		sqsRecord("m1", `{"job_id":"job_1","organization_id":"org_1","attempt":0}`),
		sqsRecord("m2", `{"job_id":"job_2","organization_id":"org_1","attempt":1}`),
	}}

	resp, err := h.Handle(context.Background(), event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.BatchItemFailures) != 0 {
		t.Errorf("expected no batch failures, got %v", resp.BatchItemFailures)
	}
	if len(runner.processed) != 2 {
		t.Fatalf("expected 2 processed messages, got %d", len(runner.processed))
	}
	if runner.processed[0].JobID != "job_1" || runner.processed[1].Attempt != 1 {
		t.Errorf("messages not parsed correctly: %+v", runner.processed)
	}
}

func TestHandle_FailedRecordReportedForRetry(t *testing.T) {
	runner := &mockRunner{errFor: map[string]error{
		"job_2": errors.New("database unavailable"),
	}}
	h := newTestWorker(runner)

	event := events.SQSEvent{Records: []events.SQSMessage{
		sqsRecord("m1", `{"job_id":"job_1","organization_id":"org_1"}`),
		sqsRecord("m2", `{"job_id":"job_2","organization_id":"org_1"}`),
	}}

	resp, err := h.Handle(context.Background(), event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.BatchItemFailures) != 1 {
		t.Fatalf("expected 1 batch failure, got %d", len(resp.BatchItemFailures))
	}
	if resp.BatchItemFailures[0].ItemIdentifier != "m2" {
		t.Errorf("expected m2 reported, got %q", resp.BatchItemFailures[0].ItemIdentifier)
	}
}

func TestHandle_UnparseableBodyAcked(t *testing.T) {
	runner := &mockRunner{}
	h := newTestWorker(runner)

	event := events.SQSEvent{Records: []events.SQSMessage{
		sqsRecord("m1", `{not json`),
	}}

	resp, err := h.Handle(context.Background(), event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.BatchItemFailures) != 0 {
		t.Error("parse failures are permanent and must not be retried")
	}
	if len(runner.processed) != 0 {
		t.Error("runner must not be invoked for an unparseable body")
	}
}
