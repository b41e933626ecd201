package lrs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/verte-zerg/lrsdash/internal/model"
)

const (
	DefaultMaxPages    = 1000
	DefaultMaxDuration = 5 * time.Minute
)

// Paginator follows continuation links until the store reports no further page.
type Paginator struct {
	fetcher     Fetcher
	maxPages    int
	maxDuration time.Duration
}

// NewPaginator builds a paginator. Non-positive bounds fall back to defaults.
func NewPaginator(fetcher Fetcher, maxPages int, maxDuration time.Duration) *Paginator {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	if maxDuration <= 0 {
		maxDuration = DefaultMaxDuration
	}
	return &Paginator{fetcher: fetcher, maxPages: maxPages, maxDuration: maxDuration}
}

// FetchAll returns every statement reachable from initialURL in page order.
func (p *Paginator) FetchAll(ctx context.Context, initialURL string) ([]model.Statement, error) {
	var out []model.Statement
	err := p.Walk(ctx, initialURL, func(page Page) error {
		out = append(out, page.Statements...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Walk calls fn for each page in order. A continuation that revisits an earlier
// URL, or paging past the page or time bound, fails with TooManyPagesError.
func (p *Paginator) Walk(ctx context.Context, initialURL string, fn func(Page) error) error {
	ctx, cancel := context.WithTimeout(ctx, p.maxDuration)
	defer cancel()

	visited := make(map[string]struct{})
	next := initialURL
	pages := 0
	for next != "" {
		if _, seen := visited[next]; seen {
			return &TooManyPagesError{Pages: pages, URL: next, Reason: "continuation cycle"}
		}
		if pages >= p.maxPages {
			return &TooManyPagesError{Pages: pages, URL: next, Reason: "page limit"}
		}
		visited[next] = struct{}{}

		page, err := p.fetcher.FetchPage(ctx, next)
		if err != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return &TooManyPagesError{Pages: pages, URL: next, Reason: "deadline"}
			}
			return fmt.Errorf("failed to fetch page %d: %w", pages+1, err)
		}
		pages++
		if err := fn(page); err != nil {
			return err
		}
		next = page.More
	}
	return nil
}
