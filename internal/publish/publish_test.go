package publish

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	bqinfra "github.com/dvloznov/ads-extractor/internal/infra/bigquery"
	"github.com/dvloznov/ads-extractor/internal/notify"
	"github.com/dvloznov/ads-extractor/internal/output"
	"github.com/google/go-cmp/cmp"
)

type mockStorage struct {
	uploads   []string
	failOn    string
	closeCall int
}

func (m *mockStorage) UploadFile(ctx context.Context, bucketName, objectName, filePath string) error {
	if objectName == m.failOn {
		return errors.New("permission denied")
	}
	m.uploads = append(m.uploads, bucketName+"/"+objectName)
	return nil
}

func (m *mockStorage) Close() error {
	m.closeCall++
	return nil
}

type mockRuns struct {
	started   []string
	failed    map[string]error
	succeeded map[string]bqinfra.RunStats
	loads     []bqinfra.TableLoad
	loadErr   error
}

func newMockRuns() *mockRuns {
	return &mockRuns{failed: map[string]error{}, succeeded: map[string]bqinfra.RunStats{}}
}

func (m *mockRuns) StartExtractionRun(ctx context.Context, runID, action string, rootIDs []string) error {
	m.started = append(m.started, runID)
	return nil
}

func (m *mockRuns) MarkExtractionRunFailed(ctx context.Context, runID string, runErr error) {
	m.failed[runID] = runErr
}

func (m *mockRuns) MarkExtractionRunSucceeded(ctx context.Context, runID string, stats bqinfra.RunStats) error {
	m.succeeded[runID] = stats
	return nil
}

func (m *mockRuns) LoadTable(ctx context.Context, runID string, load bqinfra.TableLoad) (*bqinfra.LoadResult, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	m.loads = append(m.loads, load)
	return &bqinfra.LoadResult{Table: bqinfra.TableName(load.Name), Rows: 2}, nil
}

func (m *mockRuns) ListExtractionRuns(ctx context.Context, limit int) ([]*bqinfra.ExtractionRunRow, error) {
	return nil, nil
}

func (m *mockRuns) Close() error { return nil }

type mockNotifier struct {
	events []notify.RunCompleted
}

func (m *mockNotifier) RunCompleted(ctx context.Context, ev notify.RunCompleted) (string, error) {
	m.events = append(m.events, ev)
	return "msg-1", nil
}

func testTables() []output.TableInfo {
	dir := filepath.Join("data", "out", "tables")
	return []output.TableInfo{
		{
			Name:     "campaign",
			Path:     filepath.Join(dir, "campaign.csv"),
			Rows:     2,
			Manifest: output.Manifest{Incremental: true, PrimaryKey: []string{"customerId", "id"}, Columns: []string{"customerId", "id", "name"}},
		},
		{
			Name:     "report-groups",
			Path:     filepath.Join(dir, "report-groups.csv"),
			Rows:     2,
			Manifest: output.Manifest{Incremental: true, PrimaryKey: []string{"adGroupId"}, Columns: []string{"adGroupId", "metricsClicks"}},
		},
	}
}

func TestPublisher_Complete(t *testing.T) {
	storage := &mockStorage{}
	runs := newMockRuns()
	notifier := &mockNotifier{}
	p := &Publisher{Storage: storage, Runs: runs, Notifier: notifier, Target: Target{Bucket: "exports", Prefix: "ads/"}}
	run := Run{ID: "run-1", Action: "run", Accounts: 3, Skipped: 1}

	if err := p.Begin(context.Background(), run); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	uploaded, err := p.Complete(context.Background(), run, testTables())
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	wantUploads := []string{
		"exports/ads/run-1/campaign.csv",
		"exports/ads/run-1/campaign.csv.manifest",
		"exports/ads/run-1/report-groups.csv",
		"exports/ads/run-1/report-groups.csv.manifest",
	}
	if diff := cmp.Diff(wantUploads, storage.uploads); diff != "" {
		t.Errorf("uploads mismatch (-want +got):\n%s", diff)
	}
	if uploaded[1].URI != "gs://exports/ads/run-1/report-groups.csv" {
		t.Errorf("URI = %q", uploaded[1].URI)
	}

	if diff := cmp.Diff([]string{"run-1"}, runs.started); diff != "" {
		t.Errorf("started mismatch (-want +got):\n%s", diff)
	}
	if len(runs.loads) != 2 || runs.loads[0].URI != "gs://exports/ads/run-1/campaign.csv" {
		t.Fatalf("loads = %+v", runs.loads)
	}
	if diff := cmp.Diff([]string{"customerId", "id"}, runs.loads[0].PrimaryKey); diff != "" {
		t.Errorf("primary key mismatch (-want +got):\n%s", diff)
	}
	wantStats := bqinfra.RunStats{Accounts: 3, Skipped: 1, Tables: map[string]int64{"campaign": 2, "report_groups": 2}}
	if diff := cmp.Diff(wantStats, runs.succeeded["run-1"]); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}

	if len(notifier.events) != 1 {
		t.Fatalf("got %d events, want 1", len(notifier.events))
	}
	ev := notifier.events[0]
	if ev.Status != bqinfra.RunStatusSuccess || ev.Error != "" {
		t.Errorf("event = %+v", ev)
	}
	if diff := cmp.Diff([]string{"campaign", "report-groups"}, ev.Tables); diff != "" {
		t.Errorf("event tables mismatch (-want +got):\n%s", diff)
	}
}

func TestPublisher_UploadFailureMarksRunFailed(t *testing.T) {
	storage := &mockStorage{failOn: "run-2/report-groups.csv.manifest"}
	runs := newMockRuns()
	notifier := &mockNotifier{}
	p := &Publisher{Storage: storage, Runs: runs, Notifier: notifier, Target: Target{Bucket: "exports"}}

	_, err := p.Complete(context.Background(), Run{ID: "run-2"}, testTables())
	if err == nil {
		t.Fatal("Complete() expected error")
	}
	if _, ok := runs.failed["run-2"]; !ok {
		t.Error("run not marked failed")
	}
	if len(runs.loads) != 0 {
		t.Errorf("loads = %d, want none after failed upload", len(runs.loads))
	}
	if len(notifier.events) != 1 || notifier.events[0].Status != bqinfra.RunStatusFailed {
		t.Errorf("events = %+v, want one failure", notifier.events)
	}
}

func TestPublisher_LoadFailure(t *testing.T) {
	runs := newMockRuns()
	runs.loadErr = errors.New("quota exceeded")
	p := &Publisher{Storage: &mockStorage{}, Runs: runs, Target: Target{Bucket: "exports"}}

	_, err := p.Complete(context.Background(), Run{ID: "run-3"}, testTables())
	if !errors.Is(err, runs.loadErr) {
		t.Fatalf("Complete() error = %v, want load error", err)
	}
	if !errors.Is(runs.failed["run-3"], runs.loadErr) {
		t.Errorf("failed run error = %v", runs.failed["run-3"])
	}
}

func TestPublisher_StorageOnly(t *testing.T) {
	storage := &mockStorage{}
	p := &Publisher{Storage: storage, Target: Target{Bucket: "exports"}}

	if err := p.Begin(context.Background(), Run{ID: "run-4"}); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	uploaded, err := p.Complete(context.Background(), Run{ID: "run-4"}, testTables()[:1])
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if len(uploaded) != 1 || len(storage.uploads) != 2 {
		t.Errorf("uploaded = %+v, uploads = %v", uploaded, storage.uploads)
	}
}

type closingNotifier struct {
	mockNotifier
	err error
}

func (c *closingNotifier) Close() error { return c.err }

func TestPublisher_Close(t *testing.T) {
	storage := &mockStorage{}
	closeErr := errors.New("flush failed")
	p := &Publisher{Storage: storage, Runs: newMockRuns(), Notifier: &closingNotifier{err: closeErr}}

	err := p.Close()
	if !errors.Is(err, closeErr) {
		t.Errorf("Close() error = %v, want %v", err, closeErr)
	}
	if storage.closeCall != 1 {
		t.Errorf("storage closed %d times, want 1", storage.closeCall)
	}

	if err := (&Publisher{Storage: &mockStorage{}}).Close(); err != nil {
		t.Errorf("Close() without runs or notifier error = %v", err)
	}
}
