package sweeper

import (
	"context"
	"errors"
	"testing"
	"time"

	"shiksha/internal/types"
)

type mockOrgLister struct {
	orgs []types.Organization
	err  error
}

func (m *mockOrgLister) ListOrganizations(context.Context) ([]types.Organization, error) {
	return m.orgs, m.err
}

type mockExporter struct {
	periods map[string]time.Time
	errs    map[string]error
}

func (m *mockExporter) ExportUsage(_ context.Context, orgID string, period time.Time) (int, error) {
	if m.periods == nil {
		m.periods = map[string]time.Time{}
	}
	m.periods[orgID] = period
	if err := m.errs[orgID]; err != nil {
		return 0, err
	}
	return 2, nil
}

func TestExportPreviousMonth_AllOrgs(t *testing.T) {
	orgs := &mockOrgLister{orgs: []types.Organization{{ID: "org_1"}, {ID: "org_2"}}}
	exporter := &mockExporter{}
	svc := NewBillingExportService(orgs, exporter, sweepTestLogger())

	exported, err := svc.ExportPreviousMonth(context.Background(), time.Date(2026, 9, 1, 2, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ExportPreviousMonth() error: %v", err)
	}
	if exported != 2 {
		t.Errorf("exported = %d", exported)
	}

	want := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for org, period := range exporter.periods {
		if !period.Equal(want) {
			t.Errorf("org %s period = %v, want %v", org, period, want)
		}
	}
}

func TestExportPreviousMonth_JanuaryRollsToPreviousYear(t *testing.T) {
	orgs := &mockOrgLister{orgs: []types.Organization{{ID: "org_1"}}}
	exporter := &mockExporter{}
	svc := NewBillingExportService(orgs, exporter, sweepTestLogger())

	if _, err := svc.ExportPreviousMonth(context.Background(), time.Date(2027, 1, 1, 2, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("ExportPreviousMonth() error: %v", err)
	}
	want := time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)
	if !exporter.periods["org_1"].Equal(want) {
		t.Errorf("period = %v, want %v", exporter.periods["org_1"], want)
	}
}

func TestExportPreviousMonth_PartialFailureContinues(t *testing.T) {
	orgs := &mockOrgLister{orgs: []types.Organization{{ID: "org_bad"}, {ID: "org_good"}}}
	exporter := &mockExporter{errs: map[string]error{"org_bad": errors.New("stripe down")}}
	svc := NewBillingExportService(orgs, exporter, sweepTestLogger())

	exported, err := svc.ExportPreviousMonth(context.Background(), time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("partial failure must not abort the export: %v", err)
	}
	if exported != 1 {
		t.Errorf("exported = %d, want 1", exported)
	}
	if _, ok := exporter.periods["org_good"]; !ok {
		t.Error("healthy org was skipped")
	}
}

func TestExportPreviousMonth_TotalFailure(t *testing.T) {
	orgs := &mockOrgLister{orgs: []types.Organization{{ID: "org_1"}}}
	exporter := &mockExporter{errs: map[string]error{"org_1": errors.New("stripe down")}}
	svc := NewBillingExportService(orgs, exporter, sweepTestLogger())

	if _, err := svc.ExportPreviousMonth(context.Background(), time.Now()); err == nil {
		t.Fatal("expected error when every export fails")
	}
}

func TestExportPreviousMonth_NoOrgs(t *testing.T) {
	svc := NewBillingExportService(&mockOrgLister{}, &mockExporter{}, sweepTestLogger())

	exported, err := svc.ExportPreviousMonth(context.Background(), time.Now())
	if err != nil || exported != 0 {
		t.Errorf("exported = %d, err = %v", exported, err)
	}
}
