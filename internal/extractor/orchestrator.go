package extractor

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/ads-extractor/internal/ads"
	"github.com/dvloznov/ads-extractor/internal/hierarchy"
	"github.com/dvloznov/ads-extractor/internal/logger"
	"github.com/dvloznov/ads-extractor/internal/output"
	"github.com/google/uuid"
)

// Options configures one extraction run.
type Options struct {
	// RunID identifies the run in logs and published results. Generated
	// when empty.
	RunID string
	// CustomerIDs are the root accounts. When empty, every accessible account
	// found by the hierarchy walk is used.
	CustomerIDs     []ads.CustomerID
	ReportName      string
	Query           string
	PrimaryKeys     []string
	Since           string
	Until           string
	OnlyEnabled     bool
	IncludeChildren bool
	PageSize        int
	Retry           RetryPolicy
}

// ExtractionState is the set of accounts fully extracted so far in the run.
type ExtractionState map[ads.CustomerID]struct{}

// Has reports whether the account was already extracted.
func (s ExtractionState) Has(id ads.CustomerID) bool {
	_, ok := s[id]
	return ok
}

// ReportFailure is a report that failed for one account.
type ReportFailure struct {
	CustomerID ads.CustomerID
	Name       string
	Err        error
}

// Summary describes a finished run.
type Summary struct {
	RunID         string
	StartedAt     time.Time
	FinishedAt    time.Time
	Roots         []ads.CustomerID
	Accounts      []ads.CustomerID
	Skipped       int
	FailedReports []ReportFailure
}

// Orchestrator runs the customer, campaign and report extraction for every
// target account, one account at a time.
type Orchestrator struct {
	gateway   ads.Gateway
	opts      Options
	extractor *PaginatedExtractor
	pipeline  *AccountPipeline
}

// NewOrchestrator wires an orchestrator writing through w.
func NewOrchestrator(gateway ads.Gateway, w *output.Writer, opts Options) *Orchestrator {
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = DefaultRetryPolicy(0)
	}
	e := NewPaginatedExtractor(gateway, w)
	return &Orchestrator{
		gateway:   gateway,
		opts:      opts,
		extractor: e,
		pipeline:  newExtractionPipeline(e, opts),
	}
}

// Run extracts every target account not yet in state and returns the state
// extended with the accounts completed by this run. The returned state is
// valid even when Run fails.
func (o *Orchestrator) Run(ctx context.Context, state ExtractionState) (ExtractionState, Summary, error) {
	if state == nil {
		state = make(ExtractionState)
	}
	summary := Summary{RunID: o.opts.RunID, StartedAt: time.Now()}
	if summary.RunID == "" {
		summary.RunID = uuid.NewString()
	}
	finish := func(err error) (ExtractionState, Summary, error) {
		summary.FinishedAt = time.Now()
		return state, summary, err
	}

	log := logger.FromContext(ctx).With().Str("run_id", summary.RunID).Logger()
	ctx = logger.WithContext(ctx, log)

	roots, err := o.roots(ctx)
	if err != nil {
		return finish(userFacing(err))
	}
	summary.Roots = roots

	for _, root := range roots {
		rootLog := log.With().Str("root_id", root.String()).Logger()
		rootCtx := logger.WithContext(ctx, rootLog)

		customers, skipped, err := o.listCustomers(rootCtx, root, state)
		if err != nil {
			return finish(userFacing(err))
		}
		summary.Skipped += skipped

		for _, c := range customers {
			accLog := rootLog.With().Str("customer_id", c.ID.String()).Logger()
			accCtx := logger.WithContext(rootCtx, accLog)
			accLog.Info().Msgf(`Extraction data of customer "%s".`, c.Name)

			run := &AccountRun{Root: root, Customer: c}
			if err := o.pipeline.Execute(accCtx, run); err != nil {
				return finish(userFacing(err))
			}
			if run.ReportErr != nil {
				summary.FailedReports = append(summary.FailedReports, ReportFailure{CustomerID: c.ID, Name: c.Name, Err: run.ReportErr})
			}

			state[c.ID] = struct{}{}
			summary.Accounts = append(summary.Accounts, c.ID)
		}
	}

	log.Info().
		Int("accounts", len(summary.Accounts)).
		Int("skipped", summary.Skipped).
		Int("failed_reports", len(summary.FailedReports)).
		Msg("Extraction finished")
	return finish(nil)
}

func (o *Orchestrator) roots(ctx context.Context) ([]ads.CustomerID, error) {
	if len(o.opts.CustomerIDs) > 0 {
		return o.opts.CustomerIDs, nil
	}
	forest, _, err := hierarchy.NewWalker(o.gateway, o.opts.IncludeChildren).Walk(ctx, nil)
	if err != nil {
		return nil, err
	}
	log := logger.FromContext(ctx)
	log.Info().Int("roots", len(forest.Roots)).Msg("Discovered root accounts")
	return forest.Roots, nil
}

// listCustomers returns the client accounts below root that still need
// extracting. Manager accounts are never extracted themselves.
func (o *Orchestrator) listCustomers(ctx context.Context, root ads.CustomerID, state ExtractionState) ([]Customer, int, error) {
	log := logger.FromContext(ctx)

	pager, err := o.gateway.Search(ctx, ads.SearchRequest{
		CustomerID:      root,
		LoginCustomerID: root,
		Query:           ads.CustomerQuery(o.opts.OnlyEnabled),
	})
	if err != nil {
		return nil, 0, fmt.Errorf("listCustomers: searching customers of %s: %w", root, err)
	}

	var customers []Customer
	skipped := 0
	err = eachRecord(ctx, pager, func(rec ads.Record) error {
		cc, ok := rec.Object("customerClient")
		if !ok || cc.Bool("manager") {
			return nil
		}
		id, ok := cc.Int64("id")
		if !ok {
			return nil
		}
		name := cc.String("descriptiveName")
		if state.Has(ads.CustomerID(id)) {
			log.Info().Msgf(`Customer "%s" already downloaded.`, name)
			skipped++
			return nil
		}
		customers = append(customers, Customer{ID: ads.CustomerID(id), Name: name, Record: rec})
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("listCustomers: %w", err)
	}
	return customers, skipped, nil
}
