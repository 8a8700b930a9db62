// Package publish ships the tables of a finished run to Cloud Storage and
// BigQuery and announces the run.
package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/dvloznov/ads-extractor/internal/gcsuploader"
	bqinfra "github.com/dvloznov/ads-extractor/internal/infra/bigquery"
	"github.com/dvloznov/ads-extractor/internal/logger"
	"github.com/dvloznov/ads-extractor/internal/notify"
	"github.com/dvloznov/ads-extractor/internal/output"
)

// EventNotifier announces finished runs.
type EventNotifier interface {
	RunCompleted(ctx context.Context, ev notify.RunCompleted) (string, error)
}

// Target is the Cloud Storage location tables are uploaded to.
type Target struct {
	Bucket string
	Prefix string
}

// Run describes the run being published.
type Run struct {
	ID            string
	Action        string
	Roots         []string
	StartedAt     time.Time
	FinishedAt    time.Time
	Accounts      int
	Skipped       int
	FailedReports int
}

// UploadedTable is a table copied to Cloud Storage.
type UploadedTable struct {
	Name        string
	URI         string
	ManifestURI string
	Rows        int
}

// Publisher uploads run output. Runs and Notifier are optional.
type Publisher struct {
	Storage  gcsuploader.StorageService
	Runs     bqinfra.RunRepository
	Notifier EventNotifier
	Target   Target
}

// Begin records the start of a run.
func (p *Publisher) Begin(ctx context.Context, run Run) error {
	if p.Runs == nil {
		return nil
	}
	if err := p.Runs.StartExtractionRun(ctx, run.ID, run.Action, run.Roots); err != nil {
		return fmt.Errorf("Begin: %w", err)
	}
	return nil
}

// Complete uploads every table, merges them into BigQuery, marks the run as
// succeeded and announces it.
func (p *Publisher) Complete(ctx context.Context, run Run, tables []output.TableInfo) ([]UploadedTable, error) {
	log := logger.WithFields(logger.FromContext(ctx), map[string]interface{}{
		"run_id": run.ID,
		"action": run.Action,
	})

	uploaded, err := p.upload(ctx, run.ID, tables)
	if err != nil {
		p.Fail(ctx, run, err)
		return nil, err
	}

	loaded := make(map[string]int64, len(uploaded))
	if p.Runs != nil {
		for i, u := range uploaded {
			res, err := p.Runs.LoadTable(ctx, run.ID, bqinfra.TableLoad{
				Name:       u.Name,
				URI:        u.URI,
				Columns:    tables[i].Manifest.Columns,
				PrimaryKey: tables[i].Manifest.PrimaryKey,
			})
			if err != nil {
				err = fmt.Errorf("Complete: loading %s: %w", u.Name, err)
				p.Fail(ctx, run, err)
				return nil, err
			}
			loaded[res.Table] = res.Rows
		}

		stats := bqinfra.RunStats{
			Accounts:      run.Accounts,
			Skipped:       run.Skipped,
			FailedReports: run.FailedReports,
			Tables:        loaded,
		}
		if err := p.Runs.MarkExtractionRunSucceeded(ctx, run.ID, stats); err != nil {
			return nil, fmt.Errorf("Complete: %w", err)
		}
	}

	names := make([]string, len(uploaded))
	for i, u := range uploaded {
		names[i] = u.Name
	}
	p.announce(ctx, run, bqinfra.RunStatusSuccess, nil, names)

	log.Info().Int("tables", len(uploaded)).Msg("Run published")
	return uploaded, nil
}

// Fail marks the run as failed and announces it. Errors are only logged.
func (p *Publisher) Fail(ctx context.Context, run Run, runErr error) {
	if p.Runs != nil {
		p.Runs.MarkExtractionRunFailed(ctx, run.ID, runErr)
	}
	p.announce(ctx, run, bqinfra.RunStatusFailed, runErr, nil)
}

func (p *Publisher) upload(ctx context.Context, runID string, tables []output.TableInfo) ([]UploadedTable, error) {
	log := logger.FromContext(ctx)

	out := make([]UploadedTable, 0, len(tables))
	for _, t := range tables {
		object := gcsuploader.ObjectName(p.Target.Prefix, runID, filepath.Base(t.Path))
		if err := p.Storage.UploadFile(ctx, p.Target.Bucket, object, t.Path); err != nil {
			return nil, fmt.Errorf("upload: %s: %w", t.Name, err)
		}
		manifestObject := object + ".manifest"
		if err := p.Storage.UploadFile(ctx, p.Target.Bucket, manifestObject, output.ManifestPath(t.Path)); err != nil {
			return nil, fmt.Errorf("upload: %s manifest: %w", t.Name, err)
		}

		u := UploadedTable{
			Name:        t.Name,
			URI:         gcsuploader.ObjectURI(p.Target.Bucket, object),
			ManifestURI: gcsuploader.ObjectURI(p.Target.Bucket, manifestObject),
			Rows:        t.Rows,
		}
		log.Debug().Str("table", t.Name).Str("uri", u.URI).Int("rows", t.Rows).Msg("Uploaded table")
		out = append(out, u)
	}
	return out, nil
}

func (p *Publisher) announce(ctx context.Context, run Run, status string, runErr error, tables []string) {
	if p.Notifier == nil {
		return
	}
	ev := notify.RunCompleted{
		RunID:         run.ID,
		Action:        run.Action,
		Status:        status,
		StartedAt:     run.StartedAt,
		FinishedAt:    run.FinishedAt,
		Accounts:      run.Accounts,
		Skipped:       run.Skipped,
		FailedReports: run.FailedReports,
		Tables:        tables,
	}
	if runErr != nil {
		ev.Error = runErr.Error()
	}
	if _, err := p.Notifier.RunCompleted(ctx, ev); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("run_id", run.ID).Msg("Announcing run failed")
	}
}

// Close releases the storage, BigQuery and Pub/Sub clients.
func (p *Publisher) Close() error {
	var errs []error
	if p.Storage != nil {
		errs = append(errs, p.Storage.Close())
	}
	if p.Runs != nil {
		errs = append(errs, p.Runs.Close())
	}
	if c, ok := p.Notifier.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
