package bigquery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/ads-extractor/internal/logger"
	"google.golang.org/api/iterator"
)

// StartExtractionRunWithClient inserts a new row into <dataset>.extraction_runs
// with status=RUNNING.
func StartExtractionRunWithClient(ctx context.Context, client *bigquery.Client, dataset, runID, action string, rootIDs []string) error {
	q := client.Query(fmt.Sprintf(`
		INSERT %s.%s (
			run_id,
			action,
			started_ts,
			status,
			root_ids
		)
		VALUES (
			@run_id,
			@action,
			@started_ts,
			@status,
			@root_ids
		)
	`, dataset, extractionRunsTable))

	if rootIDs == nil {
		rootIDs = []string{}
	}
	q.Parameters = []bigquery.QueryParameter{
		{Name: "run_id", Value: runID},
		{Name: "action", Value: action},
		{Name: "started_ts", Value: time.Now()},
		{Name: "status", Value: RunStatusRunning},
		{Name: "root_ids", Value: rootIDs},
	}

	if err := runAndWait(ctx, q); err != nil {
		return fmt.Errorf("StartExtractionRun: %w", err)
	}
	return nil
}

// MarkExtractionRunFailedWithClient sets status=FAILED, finished_ts and
// error_message. Failures are logged, not returned: the run already failed.
func MarkExtractionRunFailedWithClient(ctx context.Context, client *bigquery.Client, dataset, runID string, runErr error) {
	log := logger.FromContext(ctx)

	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
		const maxLen = 2000
		if len(errMsg) > maxLen {
			errMsg = errMsg[:maxLen]
		}
	}

	q := client.Query(fmt.Sprintf(`
		UPDATE %s.%s
		SET status = @status,
		    finished_ts = @finished_ts,
		    error_message = @error_message
		WHERE run_id = @run_id
	`, dataset, extractionRunsTable))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: RunStatusFailed},
		{Name: "finished_ts", Value: time.Now()},
		{Name: "error_message", Value: errMsg},
		{Name: "run_id", Value: runID},
	}

	if err := runAndWait(ctx, q); err != nil {
		log.Error().
			Err(err).
			Str("run_id", runID).
			Msg("MarkExtractionRunFailed: update failed")
	}
}

// MarkExtractionRunSucceededWithClient sets status=SUCCESS, finished_ts and
// the run counters, and clears error_message.
func MarkExtractionRunSucceededWithClient(ctx context.Context, client *bigquery.Client, dataset, runID string, stats RunStats) error {
	tables, err := json.Marshal(stats.Tables)
	if err != nil {
		return fmt.Errorf("MarkExtractionRunSucceeded: encoding tables: %w", err)
	}

	q := client.Query(fmt.Sprintf(`
		UPDATE %s.%s
		SET status = @status,
		    finished_ts = @finished_ts,
		    error_message = "",
		    accounts = @accounts,
		    skipped_accounts = @skipped_accounts,
		    failed_reports = @failed_reports,
		    tables = @tables
		WHERE run_id = @run_id
	`, dataset, extractionRunsTable))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: RunStatusSuccess},
		{Name: "finished_ts", Value: time.Now()},
		{Name: "accounts", Value: stats.Accounts},
		{Name: "skipped_accounts", Value: stats.Skipped},
		{Name: "failed_reports", Value: stats.FailedReports},
		{Name: "tables", Value: string(tables)},
		{Name: "run_id", Value: runID},
	}

	if err := runAndWait(ctx, q); err != nil {
		return fmt.Errorf("MarkExtractionRunSucceeded: %w", err)
	}
	return nil
}

// ListExtractionRunsWithClient returns the most recent runs, newest first.
func ListExtractionRunsWithClient(ctx context.Context, client *bigquery.Client, dataset string, limit int) ([]*ExtractionRunRow, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT
			run_id,
			action,
			started_ts,
			finished_ts,
			IFNULL(status, "") AS status,
			IFNULL(error_message, "") AS error_message,
			root_ids,
			accounts,
			skipped_accounts,
			failed_reports,
			tables
		FROM %s.%s
		ORDER BY started_ts DESC
		LIMIT @limit
	`, dataset, extractionRunsTable))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "limit", Value: limit},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListExtractionRuns: running query: %w", err)
	}

	var rows []*ExtractionRunRow
	for {
		var row ExtractionRunRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListExtractionRuns: iterating rows: %w", err)
		}
		rows = append(rows, &row)
	}
	return rows, nil
}

func runAndWait(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}
