package rest

import (
	"context"
	"fmt"
	"strings"

	"github.com/dvloznov/ads-extractor/internal/ads"
)

type pager struct {
	client    *Client
	req       ads.SearchRequest
	fieldMask []string
	records   []ads.Record
	nextToken string
}

func (p *pager) fetch(ctx context.Context, token string) error {
	page, err := p.client.searchPage(ctx, p.req, token)
	if err != nil {
		return err
	}
	p.records = page.Results
	p.nextToken = page.NextPageToken
	// Later pages may omit the mask; the first one is authoritative.
	if mask := splitFieldMask(page.FieldMask); len(mask) > 0 || p.fieldMask == nil {
		p.fieldMask = mask
	}
	return nil
}

func (p *pager) FieldMask() []string  { return p.fieldMask }
func (p *pager) ElementCount() int    { return len(p.records) }
func (p *pager) Records() []ads.Record { return p.records }
func (p *pager) HasNextPage() bool    { return p.nextToken != "" }

func (p *pager) NextPage(ctx context.Context) error {
	if p.nextToken == "" {
		return fmt.Errorf("NextPage: no next page")
	}
	if err := p.fetch(ctx, p.nextToken); err != nil {
		return fmt.Errorf("NextPage: %w", err)
	}
	return nil
}

func splitFieldMask(mask string) []string {
	if strings.TrimSpace(mask) == "" {
		return nil
	}
	parts := strings.Split(mask, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
