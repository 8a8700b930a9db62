package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dvloznov/ads-extractor/internal/ads"
	"github.com/dvloznov/ads-extractor/internal/ads/adstest"
	"github.com/dvloznov/ads-extractor/internal/config"
	"github.com/dvloznov/ads-extractor/internal/output"
	"github.com/dvloznov/ads-extractor/internal/publish"
	"github.com/google/go-cmp/cmp"
)

type recordingStorage struct {
	objects []string
}

func (s *recordingStorage) UploadFile(ctx context.Context, bucketName, objectName, filePath string) error {
	if _, err := os.Stat(filePath); err != nil {
		return err
	}
	s.objects = append(s.objects, objectName)
	return nil
}

func (s *recordingStorage) Close() error { return nil }

func testGateway() *adstest.Gateway {
	gw := adstest.New()
	gw.Accessible = []ads.CustomerID{1}
	gw.Streams[1] = []ads.Record{
		adstest.CustomerClient(1, 0, true, "Manager"),
		adstest.CustomerClient(10, 1, false, "Client"),
	}
	gw.Results[adstest.Key{CustomerID: 1, Resource: "customer_client"}] = []adstest.Page{{
		FieldMask: []string{"customer_client.id"},
		Records: []ads.Record{
			adstest.CustomerClient(1, 0, true, "Manager"),
			adstest.CustomerClient(10, 1, false, "Client"),
		},
	}}
	gw.Results[adstest.Key{CustomerID: 10, Resource: "campaign"}] = []adstest.Page{{
		FieldMask: []string{"campaign.id", "campaign.name"},
		Records:   []ads.Record{{"campaign": map[string]any{"id": "7", "name": "Brand"}}},
	}}
	gw.Results[adstest.Key{CustomerID: 10, Resource: "ad_group"}] = []adstest.Page{{
		FieldMask: []string{"ad_group.id", "metrics.clicks"},
		Records:   []ads.Record{{"adGroup": map[string]any{"id": "5"}, "metrics": map[string]any{"clicks": "3"}}},
	}}
	return gw
}

func testConfig(dataDir string) *config.Config {
	return &config.Config{
		Action:        config.ActionRun,
		DataDir:       dataDir,
		CustomerIDs:   []ads.CustomerID{1},
		Name:          "groups",
		Query:         "SELECT ad_group.id, metrics.clicks FROM ad_group",
		PrimaryKeys:   []string{"adGroupId"},
		OnlyEnabled:   true,
		RetryAttempts: 1,
	}
}

func TestRun_WritesAndPublishesTables(t *testing.T) {
	dataDir := t.TempDir()
	storage := &recordingStorage{}
	pub := &publish.Publisher{Storage: storage, Target: publish.Target{Bucket: "exports", Prefix: "ads"}}

	cfg := testConfig(dataDir)
	opts := Options(cfg)
	opts.RunID = "run-1"
	summary, err := RunWithOptions(context.Background(), dataDir, cfg.Action, testGateway(), pub, opts)
	if err != nil {
		t.Fatalf("RunWithOptions() error = %v", err)
	}
	if diff := cmp.Diff([]ads.CustomerID{10}, summary.Accounts); diff != "" {
		t.Errorf("accounts mismatch (-want +got):\n%s", diff)
	}

	tables, err := output.ScanTables(dataDir)
	if err != nil {
		t.Fatalf("ScanTables() error = %v", err)
	}
	var names []string
	for _, ti := range tables {
		names = append(names, ti.Name)
	}
	if diff := cmp.Diff([]string{"campaign", "customer", "report-groups"}, names); diff != "" {
		t.Errorf("tables mismatch (-want +got):\n%s", diff)
	}

	wantObjects := []string{
		"ads/run-1/customer.csv", "ads/run-1/customer.csv.manifest",
		"ads/run-1/campaign.csv", "ads/run-1/campaign.csv.manifest",
		"ads/run-1/report-groups.csv", "ads/run-1/report-groups.csv.manifest",
	}
	if diff := cmp.Diff(wantObjects, storage.objects); diff != "" {
		t.Errorf("uploaded objects mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_FailureIsNotPublished(t *testing.T) {
	dataDir := t.TempDir()
	storage := &recordingStorage{}
	pub := &publish.Publisher{Storage: storage, Target: publish.Target{Bucket: "exports"}}

	cfg := testConfig(dataDir)
	cfg.PrimaryKeys = []string{"nope"}
	_, err := Run(context.Background(), cfg, testGateway(), pub)
	if ExitCode(err) != ExitUserError {
		t.Fatalf("Run() error = %v, want user error", err)
	}
	if len(storage.objects) != 0 {
		t.Errorf("uploaded %v after failed run", storage.objects)
	}
}

func TestListAccounts(t *testing.T) {
	var buf bytes.Buffer
	cfg := &config.Config{Action: config.ActionListAccounts}
	if err := ListAccounts(context.Background(), cfg, testGateway(), &buf); err != nil {
		t.Fatalf("ListAccounts() error = %v", err)
	}

	var got map[string]struct {
		Info struct {
			ID string `json:"id"`
		} `json:"info"`
		Children []struct {
			Info struct {
				ID    string `json:"id"`
				Level int    `json:"level"`
			} `json:"info"`
		} `json:"children"`
	}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decoding output %q: %v", buf.String(), err)
	}
	root, ok := got["1"]
	if !ok || root.Info.ID != "1" {
		t.Fatalf("output = %s", buf.String())
	}
	if len(root.Children) != 1 || root.Children[0].Info.ID != "10" || root.Children[0].Info.Level != 1 {
		t.Errorf("children = %+v", root.Children)
	}
}

func TestPublish_FromDataDir(t *testing.T) {
	dataDir := t.TempDir()
	w, err := output.NewWriter(dataDir)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(w.Dir(), "campaign.csv"), []byte("1,7,Brand\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := output.WriteManifest(w.TablePath("campaign"), output.Manifest{Incremental: true, Columns: []string{"customerId", "id", "name"}}); err != nil {
		t.Fatal(err)
	}

	storage := &recordingStorage{}
	uploaded, err := Publish(context.Background(), dataDir, "manual", &publish.Publisher{Storage: storage, Target: publish.Target{Bucket: "b"}})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(uploaded) != 1 || uploaded[0].URI != "gs://b/manual/campaign.csv" || uploaded[0].Rows != 1 {
		t.Errorf("uploaded = %+v", uploaded)
	}
}

func TestOptions(t *testing.T) {
	cfg := testConfig("/data")
	cfg.RetryAttempts = 3
	cfg.Since, cfg.Until = "2024-03-01", "2024-03-14"
	opts := Options(cfg)
	if opts.ReportName != "groups" || opts.Since != "2024-03-01" || opts.Until != "2024-03-14" {
		t.Errorf("Options() = %+v", opts)
	}
	if opts.Retry.MaxAttempts != 3 || opts.Retry.InitialInterval != time.Second {
		t.Errorf("Retry = %+v", opts.Retry)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, ExitOK},
		{"config error", &config.ConfigError{Issues: []config.Issue{{Message: "Developer token doesn't set."}}}, ExitUserError},
		{"user error", fmt.Errorf("wrapped: %w", &ads.UserError{Message: "401: invalid_grant"}), ExitUserError},
		{"application error", errors.New("disk full"), ExitApplication},
		{"schema mismatch", output.ErrSchemaMismatch, ExitApplication},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
