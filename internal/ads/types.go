package ads

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// CustomerID identifies an ads account. The platform displays it as
// 123-456-7890; internally it is the plain number.
type CustomerID int64

// ParseCustomerID accepts both the dashed display form and the plain number.
func ParseCustomerID(s string) (CustomerID, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(s), "-", "")
	if cleaned == "" {
		return 0, fmt.Errorf("ParseCustomerID: empty customer id")
	}
	id, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("ParseCustomerID: %q is not a valid customer id", s)
	}
	return CustomerID(id), nil
}

// ParseResourceName extracts the id from a "customers/1234567890" resource name.
func ParseResourceName(name string) (CustomerID, error) {
	id, ok := strings.CutPrefix(name, "customers/")
	if !ok {
		return 0, fmt.Errorf("ParseResourceName: unexpected resource name %q", name)
	}
	return ParseCustomerID(id)
}

func (id CustomerID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// Record is one result row as returned by the backend: nested objects keyed by
// lowerCamel field names. Numbers are kept as json.Number, so 64-bit ids that
// the backend sends as strings stay strings and everything else keeps its
// original textual form.
type Record map[string]any

// SearchRequest describes one query issued on behalf of an acting account.
type SearchRequest struct {
	// CustomerID is the acting account the query runs against.
	CustomerID CustomerID
	// LoginCustomerID is the manager account whose credentials scope the call.
	// Zero means the acting account itself.
	LoginCustomerID CustomerID
	Query           string
	// PageSize is a hint; zero lets the backend choose.
	PageSize int
}

// Pager is a cursor over a paginated search result. It starts positioned on the
// first page.
type Pager interface {
	// FieldMask lists the dotted field paths present in this result set.
	FieldMask() []string
	// ElementCount is the number of records on the current page.
	ElementCount() int
	Records() []Record
	HasNextPage() bool
	// NextPage advances the cursor. It must only be called when HasNextPage is true.
	NextPage(ctx context.Context) error
}

// RowIterator yields records of a streamed search. Next returns iterator.Done
// once the stream is exhausted.
type RowIterator interface {
	Next() (Record, error)
	FieldMask() []string
	Close() error
}

// Gateway is the remote query capability the extractor is built on.
type Gateway interface {
	ListAccessibleCustomers(ctx context.Context) ([]CustomerID, error)
	Search(ctx context.Context, req SearchRequest) (Pager, error)
	SearchStream(ctx context.Context, req SearchRequest) (RowIterator, error)
}
