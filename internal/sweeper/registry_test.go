package sweeper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"shiksha/internal/types"
)

// mockHistoryDB records Start/Finish pairs.
type mockHistoryDB struct {
	mu         sync.Mutex
	nextID     int64
	started    []string
	finished   map[int64]types.SweepRunStatus
	items      map[int64]int64
	finishedAt map[int64]time.Time
	startErr   error
}

func newMockHistoryDB() *mockHistoryDB {
	return &mockHistoryDB{
		finished:   map[int64]types.SweepRunStatus{},
		items:      map[int64]int64{},
		finishedAt: map[int64]time.Time{},
	}
}

func (m *mockHistoryDB) Start(_ context.Context, ruleName string, _ time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startErr != nil {
		return 0, m.startErr
	}
	m.nextID++
	m.started = append(m.started, ruleName)
	return m.nextID, nil
}

func (m *mockHistoryDB) Finish(_ context.Context, id int64, status types.SweepRunStatus, items int64, _ error, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished[id] = status
	m.items[id] = items
	m.finishedAt[id] = at
	return nil
}

type frozenClock struct{ now time.Time }

func (c frozenClock) Now() time.Time { return c.now }

func countingRule(name string, affected int64, err error, calls *int) Rule {
	return Rule{
		Name: name,
		Apply: func(context.Context, time.Time) (int64, error) {
			*calls++
			return affected, err
		},
	}
}

func TestRegistryRun_RecordsHistory(t *testing.T) {
	history := newMockHistoryDB()
	calls := 0
	reg := NewRegistry([]Rule{countingRule("fee_overdue", 7, nil, &calls)}, history, nil, sweepTestLogger())

	affected, err := reg.Run(context.Background(), "fee_overdue", sweepNow)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if affected != 7 {
		t.Errorf("affected = %d", affected)
	}
	if calls != 1 {
		t.Errorf("rule ran %d times", calls)
	}
	if len(history.started) != 1 || history.started[0] != "fee_overdue" {
		t.Errorf("history started = %v", history.started)
	}
	if history.finished[1] != types.SweepRunCompleted {
		t.Errorf("history status = %q", history.finished[1])
	}
	if history.items[1] != 7 {
		t.Errorf("history items = %d", history.items[1])
	}
}

func TestRegistryRun_FinishStampedFromClock(t *testing.T) {
	history := newMockHistoryDB()
	calls := 0
	clock := frozenClock{now: sweepNow.Add(42 * time.Second)}
	reg := NewRegistry([]Rule{countingRule("fee_overdue", 1, nil, &calls)}, history, clock, sweepTestLogger())

	if _, err := reg.Run(context.Background(), "fee_overdue", sweepNow); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if got := history.finishedAt[1]; !got.Equal(clock.now) {
		t.Errorf("finish time = %v, want the injected clock's %v", got, clock.now)
	}
}

func TestRegistryRun_UnknownRule(t *testing.T) {
	reg := NewRegistry(nil, newMockHistoryDB(), nil, sweepTestLogger())

	if _, err := reg.Run(context.Background(), "nonsense", sweepNow); err == nil {
		t.Fatal("expected error for unknown rule")
	}
}

func TestRegistryRun_FailureRecordedAsFailed(t *testing.T) {
	history := newMockHistoryDB()
	calls := 0
	reg := NewRegistry([]Rule{countingRule("exam_status", 2, errors.New("boom"), &calls)}, history, nil, sweepTestLogger())

	_, err := reg.Run(context.Background(), "exam_status", sweepNow)
	if err == nil {
		t.Fatal("expected rule error to propagate")
	}
	if history.finished[1] != types.SweepRunFailed {
		t.Errorf("history status = %q, want failed", history.finished[1])
	}
}

func TestRegistryRunAll_IsolatesFailures(t *testing.T) {
	history := newMockHistoryDB()
	okCalls, badCalls, otherCalls := 0, 0, 0
	reg := NewRegistry([]Rule{
		countingRule("a", 1, nil, &okCalls),
		countingRule("b", 0, errors.New("b blew up"), &badCalls),
		countingRule("c", 2, nil, &otherCalls),
	}, history, nil, sweepTestLogger())

	err := reg.RunAll(context.Background(), sweepNow)
	if err == nil {
		t.Fatal("expected aggregate error when a rule fails")
	}

	// All three rules ran despite b's failure.
	if okCalls != 1 || badCalls != 1 || otherCalls != 1 {
		t.Errorf("calls = %d/%d/%d, want 1/1/1", okCalls, badCalls, otherCalls)
	}
	if len(history.started) != 3 {
		t.Errorf("history recorded %d runs, want 3", len(history.started))
	}
}

func TestRegistryRunAll_AllHealthy(t *testing.T) {
	history := newMockHistoryDB()
	a, b := 0, 0
	reg := NewRegistry([]Rule{
		countingRule("a", 1, nil, &a),
		countingRule("b", 2, nil, &b),
	}, history, nil, sweepTestLogger())

	if err := reg.RunAll(context.Background(), sweepNow); err != nil {
		t.Fatalf("RunAll() error: %v", err)
	}
	for id, status := range history.finished {
		if status != types.SweepRunCompleted {
			t.Errorf("run %d status = %q", id, status)
		}
	}
}

func TestRegistryRules_Names(t *testing.T) {
	n := 0
	reg := NewRegistry([]Rule{
		countingRule("x", 0, nil, &n),
		countingRule("y", 0, nil, &n),
	}, newMockHistoryDB(), nil, sweepTestLogger())

	names := reg.Rules()
	if len(names) != 2 || names[0] != "x" || names[1] != "y" {
		t.Errorf("names = %v", names)
	}
}
