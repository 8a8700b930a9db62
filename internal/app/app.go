// Package app wires configuration, the ads gateway, extraction and
// publishing into the component's actions.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dvloznov/ads-extractor/internal/ads"
	"github.com/dvloznov/ads-extractor/internal/ads/rest"
	"github.com/dvloznov/ads-extractor/internal/config"
	"github.com/dvloznov/ads-extractor/internal/extractor"
	"github.com/dvloznov/ads-extractor/internal/gcsuploader"
	"github.com/dvloznov/ads-extractor/internal/hierarchy"
	bqinfra "github.com/dvloznov/ads-extractor/internal/infra/bigquery"
	"github.com/dvloznov/ads-extractor/internal/logger"
	"github.com/dvloznov/ads-extractor/internal/notify"
	"github.com/dvloznov/ads-extractor/internal/output"
	"github.com/dvloznov/ads-extractor/internal/publish"
	"github.com/google/uuid"
)

// Exit codes of the component.
const (
	ExitOK          = 0
	ExitUserError   = 1
	ExitApplication = 2
)

// ExitCode maps a run error onto the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case config.IsConfigError(err), ads.IsUserError(err):
		return ExitUserError
	default:
		return ExitApplication
	}
}

// NewGateway builds the REST gateway from the configuration.
func NewGateway(ctx context.Context, cfg *config.Config) *rest.Client {
	return rest.New(ctx, rest.Config{
		APIVersion:     cfg.APIVersion,
		DeveloperToken: cfg.DeveloperToken,
		ClientID:       cfg.OAuth.ClientID,
		ClientSecret:   cfg.OAuth.ClientSecret,
		RefreshToken:   cfg.OAuth.RefreshToken,
	})
}

// NewPublisher connects the configured publish targets. It returns nil when
// publishing is disabled.
func NewPublisher(ctx context.Context, p config.Publish) (*publish.Publisher, error) {
	if !p.Enabled() {
		return nil, nil
	}

	storage, err := gcsuploader.NewGCSStorageService(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewPublisher: %w", err)
	}
	pub := &publish.Publisher{
		Storage: storage,
		Target:  publish.Target{Bucket: p.Bucket, Prefix: p.Prefix},
	}

	if p.Project != "" && p.Dataset != "" {
		runs, err := bqinfra.NewBigQueryRunRepository(ctx, p.Project, p.Dataset)
		if err != nil {
			_ = pub.Close()
			return nil, fmt.Errorf("NewPublisher: %w", err)
		}
		pub.Runs = runs
	}
	if p.Project != "" && p.Topic != "" {
		n, err := notify.New(ctx, p.Project, p.Topic)
		if err != nil {
			_ = pub.Close()
			return nil, fmt.Errorf("NewPublisher: %w", err)
		}
		pub.Notifier = n
	}
	return pub, nil
}

// Options translates the configuration into extraction options.
func Options(cfg *config.Config) extractor.Options {
	return extractor.Options{
		CustomerIDs:     cfg.CustomerIDs,
		ReportName:      cfg.Name,
		Query:           cfg.Query,
		PrimaryKeys:     cfg.PrimaryKeys,
		Since:           cfg.Since,
		Until:           cfg.Until,
		OnlyEnabled:     cfg.OnlyEnabled,
		IncludeChildren: cfg.IncludeChildren,
		PageSize:        cfg.PageSize,
		Retry:           extractor.DefaultRetryPolicy(cfg.RetryAttempts),
	}
}

// Run executes the extraction and, when pub is not nil, publishes its
// tables.
func Run(ctx context.Context, cfg *config.Config, gw ads.Gateway, pub *publish.Publisher) (extractor.Summary, error) {
	return RunWithOptions(ctx, cfg.DataDir, cfg.Action, gw, pub, Options(cfg))
}

// RunWithOptions is Run with explicit extraction options.
func RunWithOptions(ctx context.Context, dataDir, action string, gw ads.Gateway, pub *publish.Publisher, opts extractor.Options) (extractor.Summary, error) {
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	log := logger.FromContext(ctx)

	w, err := output.NewWriter(dataDir)
	if err != nil {
		return extractor.Summary{}, err
	}

	run := publish.Run{ID: opts.RunID, Action: action, StartedAt: time.Now()}
	for _, id := range opts.CustomerIDs {
		run.Roots = append(run.Roots, id.String())
	}
	if pub != nil {
		if err := pub.Begin(ctx, run); err != nil {
			_ = w.Close()
			return extractor.Summary{RunID: opts.RunID}, err
		}
	}

	_, summary, runErr := extractor.NewOrchestrator(gw, w, opts).Run(ctx, nil)
	if err := w.Close(); err != nil && runErr == nil {
		runErr = err
	}

	run.FinishedAt = summary.FinishedAt
	run.Accounts = len(summary.Accounts)
	run.Skipped = summary.Skipped
	run.FailedReports = len(summary.FailedReports)

	if runErr != nil {
		if pub != nil {
			pub.Fail(ctx, run, runErr)
		}
		return summary, runErr
	}

	if pub != nil {
		if _, err := pub.Complete(ctx, run, w.Tables()); err != nil {
			return summary, err
		}
	}

	for _, t := range w.Tables() {
		log.Info().Str("table", t.Name).Int("rows", t.Rows).Msg("Table written")
	}
	return summary, nil
}

// ListAccounts walks the account hierarchy and writes it to out as JSON.
func ListAccounts(ctx context.Context, cfg *config.Config, gw ads.Gateway, out io.Writer) error {
	forest, _, err := hierarchy.NewWalker(gw, cfg.IncludeChildren).Walk(ctx, nil)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(forest); err != nil {
		return fmt.Errorf("ListAccounts: encoding: %w", err)
	}
	return nil
}

// Publish ships the tables found in dataDir, e.g. from an earlier run.
func Publish(ctx context.Context, dataDir, runID string, pub *publish.Publisher) ([]publish.UploadedTable, error) {
	tables, err := output.ScanTables(dataDir)
	if err != nil {
		return nil, err
	}
	if runID == "" {
		runID = uuid.NewString()
	}
	run := publish.Run{ID: runID, Action: "publish", StartedAt: time.Now()}
	if err := pub.Begin(ctx, run); err != nil {
		return nil, err
	}
	run.FinishedAt = time.Now()
	return pub.Complete(ctx, run, tables)
}
