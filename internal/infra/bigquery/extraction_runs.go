package bigquery

import (
	"time"

	"cloud.google.com/go/bigquery"
)

const extractionRunsTable = "extraction_runs"

// Run statuses stored in extraction_runs.status.
const (
	RunStatusRunning = "RUNNING"
	RunStatusSuccess = "SUCCESS"
	RunStatusFailed  = "FAILED"
)

type ExtractionRunRow struct {
	RunID  string `bigquery:"run_id"` // REQUIRED
	Action string `bigquery:"action"` // REQUIRED

	StartedTS  time.Time              `bigquery:"started_ts"`  // REQUIRED
	FinishedTS bigquery.NullTimestamp `bigquery:"finished_ts"` // NULLABLE

	Status       string `bigquery:"status"`        // NULLABLE
	ErrorMessage string `bigquery:"error_message"` // NULLABLE

	RootIDs         []string           `bigquery:"root_ids"`         // REPEATED
	Accounts        bigquery.NullInt64 `bigquery:"accounts"`         // NULLABLE
	SkippedAccounts bigquery.NullInt64 `bigquery:"skipped_accounts"` // NULLABLE
	FailedReports   bigquery.NullInt64 `bigquery:"failed_reports"`   // NULLABLE

	// Tables is a JSON object of table name to loaded rows.
	Tables bigquery.NullString `bigquery:"tables"` // NULLABLE
}

// RunStats is what a finished run reports back to extraction_runs.
type RunStats struct {
	Accounts      int
	Skipped       int
	FailedReports int
	// Tables maps the published table name to its loaded row count.
	Tables map[string]int64
}
