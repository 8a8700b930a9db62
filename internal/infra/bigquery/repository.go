package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
)

// RunRepository records extraction runs and loads their tables. It holds a
// shared BigQuery client to avoid creating a new connection for each
// operation.
type RunRepository interface {
	StartExtractionRun(ctx context.Context, runID, action string, rootIDs []string) error
	MarkExtractionRunFailed(ctx context.Context, runID string, runErr error)
	MarkExtractionRunSucceeded(ctx context.Context, runID string, stats RunStats) error
	LoadTable(ctx context.Context, runID string, load TableLoad) (*LoadResult, error)
	ListExtractionRuns(ctx context.Context, limit int) ([]*ExtractionRunRow, error)
	Close() error
}

// BigQueryRunRepository is the concrete implementation of RunRepository.
type BigQueryRunRepository struct {
	client  *bigquery.Client
	dataset string
}

var _ RunRepository = (*BigQueryRunRepository)(nil)

// NewBigQueryRunRepository creates a repository for the given project and dataset.
func NewBigQueryRunRepository(ctx context.Context, projectID, dataset string) (*BigQueryRunRepository, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewBigQueryRunRepository: creating client: %w", err)
	}
	return &BigQueryRunRepository{client: client, dataset: dataset}, nil
}

// Close closes the BigQuery client connection.
func (r *BigQueryRunRepository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

func (r *BigQueryRunRepository) StartExtractionRun(ctx context.Context, runID, action string, rootIDs []string) error {
	return StartExtractionRunWithClient(ctx, r.client, r.dataset, runID, action, rootIDs)
}

func (r *BigQueryRunRepository) MarkExtractionRunFailed(ctx context.Context, runID string, runErr error) {
	MarkExtractionRunFailedWithClient(ctx, r.client, r.dataset, runID, runErr)
}

func (r *BigQueryRunRepository) MarkExtractionRunSucceeded(ctx context.Context, runID string, stats RunStats) error {
	return MarkExtractionRunSucceededWithClient(ctx, r.client, r.dataset, runID, stats)
}

func (r *BigQueryRunRepository) LoadTable(ctx context.Context, runID string, load TableLoad) (*LoadResult, error) {
	return LoadTableWithClient(ctx, r.client, r.dataset, runID, load)
}

func (r *BigQueryRunRepository) ListExtractionRuns(ctx context.Context, limit int) ([]*ExtractionRunRow, error) {
	return ListExtractionRunsWithClient(ctx, r.client, r.dataset, limit)
}
