package extractor

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/ads-extractor/internal/ads"
	"github.com/dvloznov/ads-extractor/internal/logger"
	"github.com/dvloznov/ads-extractor/internal/schema"
)

// AccountStep is one stage of the per-account extraction.
type AccountStep interface {
	Execute(ctx context.Context, run *AccountRun) error
}

// AccountRun holds the state shared by the steps of one account.
type AccountRun struct {
	Root     ads.CustomerID
	Customer Customer

	CampaignRows int
	ReportRows   int
	// ReportErr is set when the report failed for this account only.
	ReportErr error
}

// Customer is a client account selected for extraction.
type Customer struct {
	ID     ads.CustomerID
	Name   string
	Record ads.Record
}

// Step 1: CustomerStep writes the account's customer row.
type CustomerStep struct {
	extractor *PaginatedExtractor
}

func (s *CustomerStep) Execute(ctx context.Context, run *AccountRun) error {
	cs := schema.CustomerSchema()
	columns := cs.Names()

	seg, err := s.extractor.writer.Begin(schema.CustomerTable, columns, schema.CustomerPrimaryKey)
	if err != nil {
		return fmt.Errorf("CustomerStep: %w", err)
	}
	if err := s.extractor.validateOnce(schema.CustomerTable, columns, schema.CustomerPrimaryKey); err != nil {
		_ = seg.Rollback()
		return err
	}
	if err := seg.Append(cs.Flatten(run.Customer.Record)); err != nil {
		_ = seg.Rollback()
		return fmt.Errorf("CustomerStep: %w", err)
	}
	return seg.Commit()
}

// Step 2: CampaignStep lists the account's campaigns.
type CampaignStep struct {
	extractor *PaginatedExtractor
	opts      Options
}

func (s *CampaignStep) Execute(ctx context.Context, run *AccountRun) error {
	log := logger.FromContext(ctx)
	log.Info().Msg("Downloading campaigns.")

	cs := schema.CampaignSchema(run.Customer.ID.String())
	res, err := s.extractor.Extract(ctx, Job{
		Table: schema.CampaignTable,
		Request: ads.SearchRequest{
			CustomerID:      run.Customer.ID,
			LoginCustomerID: run.Root,
			Query:           ads.CampaignQuery(s.opts.OnlyEnabled, s.opts.Since, s.opts.Until),
		},
		Static:      &cs,
		PrimaryKeys: schema.CampaignPrimaryKey,
	})
	if err != nil {
		return fmt.Errorf("CampaignStep: %w", err)
	}
	run.CampaignRows = res.Rows
	return nil
}

// Step 3: ReportStep runs the custom report query with retries. Failures that
// concern only this account are recorded on the run and do not stop the
// pipeline.
type ReportStep struct {
	extractor *PaginatedExtractor
	opts      Options
}

func (s *ReportStep) Execute(ctx context.Context, run *AccountRun) error {
	log := logger.FromContext(ctx)
	log.Info().Msg("Downloading query report.")

	job := Job{
		Table: schema.ReportTable(s.opts.ReportName),
		Request: ads.SearchRequest{
			CustomerID:      run.Customer.ID,
			LoginCustomerID: run.Root,
			Query:           ads.WithDateRange(s.opts.Query, s.opts.Since, s.opts.Until),
			PageSize:        s.opts.PageSize,
		},
		PrimaryKeys: s.opts.PrimaryKeys,
	}

	var res Result
	err := s.opts.Retry.Do(ctx, func(attempt int) error {
		var err error
		res, err = s.extractor.Extract(ctx, job)
		return err
	}, func(err error, wait time.Duration) {
		log.Warn().Err(err).Dur("wait", wait).Str("table", job.Table).Msg("Report extraction failed, retrying")
	})
	if err == nil {
		run.ReportRows = res.Rows
		return nil
	}

	if Classify(err) == ScopeRun {
		return err
	}
	run.ReportErr = err
	log.Error().
		Str("customer_id", run.Customer.ID.String()).
		Msgf(`Getting report for client "%s" failed: "%s".`, run.Customer.Name, failureMessage(err))
	return nil
}

// AccountPipeline executes the account steps in order.
type AccountPipeline struct {
	steps []AccountStep
}

// NewAccountPipeline creates a pipeline with the given steps.
func NewAccountPipeline(steps ...AccountStep) *AccountPipeline {
	return &AccountPipeline{steps: steps}
}

// Execute runs all steps sequentially, stopping at the first error.
func (p *AccountPipeline) Execute(ctx context.Context, run *AccountRun) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, run); err != nil {
			return fmt.Errorf("account pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}

// newExtractionPipeline creates the customer, campaign, report pipeline.
func newExtractionPipeline(e *PaginatedExtractor, opts Options) *AccountPipeline {
	return NewAccountPipeline(
		&CustomerStep{extractor: e},
		&CampaignStep{extractor: e, opts: opts},
		&ReportStep{extractor: e, opts: opts},
	)
}
