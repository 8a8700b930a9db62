// Package rest implements ads.Gateway over the Google Ads REST interface.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dvloznov/ads-extractor/internal/ads"
	"github.com/dvloznov/ads-extractor/internal/logger"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL    = "https://googleads.googleapis.com"
	DefaultAPIVersion = "v17"

	adwordsScope = "https://www.googleapis.com/auth/adwords"
)

// Config configures the REST gateway.
type Config struct {
	BaseURL        string
	APIVersion     string
	DeveloperToken string

	ClientID     string
	ClientSecret string
	RefreshToken string

	// TokenSource overrides the refresh-token flow built from the client
	// credentials.
	TokenSource oauth2.TokenSource

	// RateLimit is the number of requests per second, RateBurst the burst size.
	RateLimit float64
	RateBurst int
	Timeout   time.Duration

	// Transport is the base round tripper below the OAuth layer.
	Transport http.RoundTripper
}

// Client talks to the ads backend. It is safe for sequential use by a single
// extraction run.
type Client struct {
	baseURL        string
	developerToken string
	httpClient     *http.Client
	limiter        *rate.Limiter
}

var _ ads.Gateway = (*Client)(nil)

// New creates a client. The context is used for token refreshes.
func New(ctx context.Context, cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 5
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = 2
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Minute
	}
	base := cfg.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	ts := cfg.TokenSource
	if ts == nil {
		oc := &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{adwordsScope},
		}
		ts = oc.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})
	}

	return &Client{
		baseURL:        strings.TrimSuffix(cfg.BaseURL, "/") + "/" + cfg.APIVersion,
		developerToken: cfg.DeveloperToken,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: &oauth2.Transport{Source: oauth2.ReuseTokenSource(nil, ts), Base: base},
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
	}
}

// ListAccessibleCustomers returns the accounts the credential can act on directly.
func (c *Client) ListAccessibleCustomers(ctx context.Context) ([]ads.CustomerID, error) {
	resp, err := c.do(ctx, http.MethodGet, "customers:listAccessibleCustomers", 0, nil)
	if err != nil {
		return nil, fmt.Errorf("ListAccessibleCustomers: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		ResourceNames []string `json:"resourceNames"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("ListAccessibleCustomers: %w", readError(err))
	}

	ids := make([]ads.CustomerID, 0, len(body.ResourceNames))
	for _, name := range body.ResourceNames {
		id, err := ads.ParseResourceName(name)
		if err != nil {
			return nil, fmt.Errorf("ListAccessibleCustomers: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

type searchBody struct {
	Query     string `json:"query"`
	PageToken string `json:"pageToken,omitempty"`
	PageSize  int    `json:"pageSize,omitempty"`
}

type searchResponse struct {
	Results       []ads.Record `json:"results"`
	NextPageToken string       `json:"nextPageToken"`
	FieldMask     string       `json:"fieldMask"`
}

// Search runs a paged query and returns a cursor on its first page.
func (c *Client) Search(ctx context.Context, req ads.SearchRequest) (ads.Pager, error) {
	p := &pager{client: c, req: req}
	if err := p.fetch(ctx, ""); err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}
	return p, nil
}

func (c *Client) searchPage(ctx context.Context, req ads.SearchRequest, token string) (*searchResponse, error) {
	body, err := json.Marshal(searchBody{Query: req.Query, PageToken: token, PageSize: req.PageSize})
	if err != nil {
		return nil, fmt.Errorf("searchPage: encoding request: %w", err)
	}
	path := fmt.Sprintf("customers/%s/googleAds:search", req.CustomerID)
	resp, err := c.do(ctx, http.MethodPost, path, req.LoginCustomerID, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var page searchResponse
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&page); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("searchPage: %w", readError(err))
	}
	return &page, nil
}

// SearchStream runs a query whose result arrives as a single streamed response.
func (c *Client) SearchStream(ctx context.Context, req ads.SearchRequest) (ads.RowIterator, error) {
	body, err := json.Marshal(searchBody{Query: req.Query})
	if err != nil {
		return nil, fmt.Errorf("SearchStream: encoding request: %w", err)
	}
	path := fmt.Sprintf("customers/%s/googleAds:searchStream", req.CustomerID)
	resp, err := c.do(ctx, http.MethodPost, path, req.LoginCustomerID, body)
	if err != nil {
		return nil, fmt.Errorf("SearchStream: %w", err)
	}

	it, err := newStream(resp.Body)
	if err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("SearchStream: %w", err)
	}
	return it, nil
}

// do sends one request and returns the response when it succeeded. Failures
// are converted into ads error kinds.
func (c *Client) do(ctx context.Context, method, path string, login ads.CustomerID, body []byte) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("developer-token", c.developerToken)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if login != 0 {
		httpReq.Header.Set("login-customer-id", login.String())
	}

	log := logger.FromContext(ctx)
	log.Debug().Str("method", method).Str("path", path).Msg("Sending ads request")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, transportError(err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	apiErr := decodeError(resp.StatusCode, data)
	log.Debug().Int("status", resp.StatusCode).Err(apiErr).Msg("Ads request failed")
	return nil, apiErr
}

// readError maps a response body that could not be read or decoded. The
// connection may have dropped mid-body, so the call is worth repeating.
func readError(err error) error {
	return &ads.TransportError{Message: fmt.Sprintf("decoding response: %v", err)}
}

// transportError maps a failed round trip. A refused token carries the status
// of the token endpoint.
func transportError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		msg := re.ErrorDescription
		if msg == "" {
			msg = re.ErrorCode
		}
		if msg == "" {
			msg = strings.TrimSpace(string(re.Body))
		}
		status := http.StatusUnauthorized
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		return &ads.TransportError{StatusCode: status, Message: msg}
	}
	return &ads.TransportError{Message: err.Error()}
}
