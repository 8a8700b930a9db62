package extractor

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/ads-extractor/internal/ads"
	"github.com/dvloznov/ads-extractor/internal/logger"
	"github.com/dvloznov/ads-extractor/internal/output"
	"github.com/dvloznov/ads-extractor/internal/schema"
)

// Job is one query written to one table.
type Job struct {
	Table   string
	Request ads.SearchRequest
	// Static selects a fixed column list. When nil the columns are derived
	// from the first page's field mask.
	Static      *schema.ColumnSchema
	PrimaryKeys []string
}

func (j Job) columnSchema(fieldMask []string) schema.ColumnSchema {
	if j.Static != nil {
		return *j.Static
	}
	return schema.DynamicSchema(fieldMask)
}

// Result describes a finished extraction. Empty results wrote nothing.
type Result struct {
	Columns []string
	Rows    int
	Empty   bool
}

// PaginatedExtractor drives queries across all result pages into the writer.
type PaginatedExtractor struct {
	gateway   ads.Gateway
	writer    *output.Writer
	validated map[string]bool
}

// NewPaginatedExtractor creates an extractor writing through w.
func NewPaginatedExtractor(gateway ads.Gateway, w *output.Writer) *PaginatedExtractor {
	return &PaginatedExtractor{gateway: gateway, writer: w, validated: make(map[string]bool)}
}

// Extract runs the job to completion. Rows are appended in page order. On
// failure nothing written by this call remains in the table.
func (e *PaginatedExtractor) Extract(ctx context.Context, job Job) (Result, error) {
	log := logger.FromContext(ctx)

	pager, err := e.gateway.Search(ctx, job.Request)
	if err != nil {
		return Result{}, fmt.Errorf("Extract: searching %s for %s: %w", job.Table, job.Request.CustomerID, err)
	}
	if pager.ElementCount() == 0 {
		log.Debug().Str("table", job.Table).Str("customer_id", job.Request.CustomerID.String()).Msg("Empty result, nothing written")
		return Result{Empty: true}, nil
	}

	cs := job.columnSchema(pager.FieldMask())
	columns := cs.Names()

	seg, err := e.writer.Begin(job.Table, columns, job.PrimaryKeys)
	if err != nil {
		return Result{}, fmt.Errorf("Extract: %w", err)
	}

	first := true
	err = eachRecord(ctx, pager, func(rec ads.Record) error {
		row := cs.Flatten(rec)
		if first {
			first = false
			if err := e.validateOnce(job.Table, columns, job.PrimaryKeys); err != nil {
				return err
			}
		}
		return seg.Append(row)
	})
	if err != nil {
		if rbErr := seg.Rollback(); rbErr != nil {
			err = errors.Join(err, rbErr)
		}
		return Result{}, fmt.Errorf("Extract: %s: %w", job.Table, err)
	}
	if err := seg.Commit(); err != nil {
		return Result{}, fmt.Errorf("Extract: %w", err)
	}

	log.Info().Str("table", job.Table).Int("rows", seg.Rows()).Msg("Table extracted")
	return Result{Columns: columns, Rows: seg.Rows()}, nil
}

// validateOnce checks the declared primary key the first time a table
// receives a row.
func (e *PaginatedExtractor) validateOnce(table string, columns, primaryKeys []string) error {
	if e.validated[table] {
		return nil
	}
	if err := schema.ValidatePrimaryKeys(columns, primaryKeys); err != nil {
		return err
	}
	e.validated[table] = true
	return nil
}

// eachRecord visits every record of every page, starting with the current one.
func eachRecord(ctx context.Context, pager ads.Pager, fn func(ads.Record) error) error {
	for {
		for _, rec := range pager.Records() {
			if err := fn(rec); err != nil {
				return err
			}
		}
		if !pager.HasNextPage() {
			return nil
		}
		if err := pager.NextPage(ctx); err != nil {
			return fmt.Errorf("fetching next page: %w", err)
		}
	}
}
