// Package adstest provides an in-memory ads.Gateway for tests.
package adstest

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/dvloznov/ads-extractor/internal/ads"
	"google.golang.org/api/iterator"
)

// Key selects canned results by acting account and the resource named in the
// query's FROM clause.
type Key struct {
	CustomerID ads.CustomerID
	Resource   string
}

// Page is one canned result page.
type Page struct {
	FieldMask []string
	Records   []ads.Record
}

// Failure makes calls for a key fail. Remaining counts how many more calls
// fail; a negative value fails forever. With AtPage > 0 the failure is raised
// when the cursor advances to that page instead of on the initial call.
type Failure struct {
	Err       error
	Remaining int
	AtPage    int
}

// Call records one gateway invocation.
type Call struct {
	Method  string
	Request ads.SearchRequest
}

// Gateway is a deterministic fake of the remote query service.
type Gateway struct {
	mu sync.Mutex

	Accessible    []ads.CustomerID
	AccessibleErr error

	// Streams holds the rows returned by SearchStream per acting account.
	Streams map[ads.CustomerID][]ads.Record
	// StreamErrs fails SearchStream for an acting account.
	StreamErrs map[ads.CustomerID]error

	// Results holds the pages returned by Search.
	Results  map[Key][]Page
	Failures map[Key]*Failure

	Calls []Call
}

// New returns an empty fake gateway.
func New() *Gateway {
	return &Gateway{
		Streams:    make(map[ads.CustomerID][]ads.Record),
		StreamErrs: make(map[ads.CustomerID]error),
		Results:    make(map[Key][]Page),
		Failures:   make(map[Key]*Failure),
	}
}

var fromClause = regexp.MustCompile(`(?i)\bFROM\s+([a-z_]+)`)

// ResourceOf returns the resource a query selects from.
func ResourceOf(query string) string {
	m := fromClause.FindStringSubmatch(query)
	if m == nil {
		return ""
	}
	return strings.ToLower(m[1])
}

func (g *Gateway) record(method string, req ads.SearchRequest) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Calls = append(g.Calls, Call{Method: method, Request: req})
}

// CallsFor returns the calls of one method in order.
func (g *Gateway) CallsFor(method string) []Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []Call
	for _, c := range g.Calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// ListAccessibleCustomers returns Accessible or AccessibleErr.
func (g *Gateway) ListAccessibleCustomers(ctx context.Context) ([]ads.CustomerID, error) {
	g.record("ListAccessibleCustomers", ads.SearchRequest{})
	if g.AccessibleErr != nil {
		return nil, g.AccessibleErr
	}
	return append([]ads.CustomerID(nil), g.Accessible...), nil
}

// Search returns a pager over the canned pages for the request. A missing key
// yields a single empty page.
func (g *Gateway) Search(ctx context.Context, req ads.SearchRequest) (ads.Pager, error) {
	g.record("Search", req)
	key := Key{CustomerID: req.CustomerID, Resource: ResourceOf(req.Query)}

	fail := g.takeFailure(key, 0)
	if fail != nil {
		return nil, fail
	}

	pages := g.Results[key]
	if len(pages) == 0 {
		pages = []Page{{}}
	}
	return &pager{gw: g, key: key, pages: pages}, nil
}

func (g *Gateway) takeFailure(key Key, page int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	f, ok := g.Failures[key]
	if !ok || f.AtPage != page || f.Remaining == 0 {
		return nil
	}
	if f.Remaining > 0 {
		f.Remaining--
	}
	return f.Err
}

// SearchStream returns the canned stream rows for the acting account.
func (g *Gateway) SearchStream(ctx context.Context, req ads.SearchRequest) (ads.RowIterator, error) {
	g.record("SearchStream", req)
	if err := g.StreamErrs[req.CustomerID]; err != nil {
		return nil, err
	}
	return &rows{records: g.Streams[req.CustomerID]}, nil
}

type pager struct {
	gw    *Gateway
	key   Key
	pages []Page
	idx   int
}

func (p *pager) FieldMask() []string { return p.pages[0].FieldMask }
func (p *pager) ElementCount() int   { return len(p.pages[p.idx].Records) }
func (p *pager) Records() []ads.Record {
	return p.pages[p.idx].Records
}
func (p *pager) HasNextPage() bool { return p.idx+1 < len(p.pages) }

func (p *pager) NextPage(ctx context.Context) error {
	if !p.HasNextPage() {
		return fmt.Errorf("adstest: no page after %d", p.idx)
	}
	if err := p.gw.takeFailure(p.key, p.idx+1); err != nil {
		return err
	}
	p.idx++
	return nil
}

type rows struct {
	records []ads.Record
	pos     int
}

func (r *rows) Next() (ads.Record, error) {
	if r.pos >= len(r.records) {
		return nil, iterator.Done
	}
	rec := r.records[r.pos]
	r.pos++
	return rec, nil
}

func (r *rows) FieldMask() []string { return nil }
func (r *rows) Close() error        { return nil }

// CustomerClient builds a customer_client row the way the REST API encodes
// it: int64 fields as strings, nested under "customerClient".
func CustomerClient(id ads.CustomerID, level int, manager bool, name string) ads.Record {
	return ads.Record{
		"customerClient": map[string]any{
			"resourceName":    fmt.Sprintf("customers/%d/customerClients/%d", id, id),
			"clientCustomer":  fmt.Sprintf("customers/%d", id),
			"id":              id.String(),
			"level":           fmt.Sprint(level),
			"manager":         manager,
			"descriptiveName": name,
			"currencyCode":    "EUR",
			"timeZone":        "Europe/Prague",
		},
	}
}
