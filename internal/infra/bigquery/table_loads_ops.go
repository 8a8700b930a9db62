package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/ads-extractor/internal/logger"
)

// LoadTableWithClient loads one extracted CSV from GCS into a staging table
// and merges it into the target table on the table's primary key. The
// staging table is dropped afterwards.
func LoadTableWithClient(ctx context.Context, client *bigquery.Client, dataset, runID string, load TableLoad) (*LoadResult, error) {
	log := logger.FromContext(ctx).With().Str("table", load.Name).Logger()

	target := TableName(load.Name)
	staging := fmt.Sprintf("%s__staging_%s", target, TableName(runID))

	ref := bigquery.NewGCSReference(load.URI)
	ref.SourceFormat = bigquery.CSV
	ref.Schema = stringSchema(load.Columns)
	ref.AllowQuotedNewlines = true

	loader := client.Dataset(dataset).Table(staging).LoaderFrom(ref)
	loader.WriteDisposition = bigquery.WriteTruncate
	loader.CreateDisposition = bigquery.CreateIfNeeded

	job, err := loader.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("LoadTable: starting load of %s: %w", load.URI, err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("LoadTable: waiting for load job: %w", err)
	}
	if err := status.Err(); err != nil {
		return nil, fmt.Errorf("LoadTable: load job error: %w", err)
	}
	defer func() {
		if err := client.Dataset(dataset).Table(staging).Delete(ctx); err != nil {
			log.Warn().Err(err).Str("staging", staging).Msg("LoadTable: dropping staging table")
		}
	}()

	var rows int64
	if stats, ok := status.Statistics.Details.(*bigquery.LoadStatistics); ok {
		rows = stats.OutputRows
	}
	log.Debug().Int64("rows", rows).Str("staging", staging).Msg("Loaded staging table")

	if err := runAndWait(ctx, client.Query(createTableSQL(dataset, target, load.Columns))); err != nil {
		return nil, fmt.Errorf("LoadTable: creating %s: %w", target, err)
	}
	if err := runAndWait(ctx, client.Query(mergeSQL(dataset, target, staging, load.Columns, load.PrimaryKey))); err != nil {
		return nil, fmt.Errorf("LoadTable: merging into %s: %w", target, err)
	}

	log.Info().Int64("rows", rows).Str("target", target).Msg("Table merged")
	return &LoadResult{Table: target, Rows: rows}, nil
}
