// Package lrs talks to a learning record store over its xAPI statements endpoint.
package lrs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/verte-zerg/lrsdash/internal/model"
)

const (
	xapiVersionHeader = "X-Experience-API-Version"
	xapiVersion       = "1.0.3"

	defaultTimeout   = 30 * time.Second
	defaultRetryWait = 500 * time.Millisecond
	maxBodyBytes     = 64 << 20
)

// Page is one batch of statements and the optional continuation link.
type Page struct {
	Statements []model.Statement
	More       string
}

// Fetcher fetches a single statement page.
type Fetcher interface {
	FetchPage(ctx context.Context, pageURL string) (Page, error)
}

// ClientConfig holds connection parameters. Nothing here is read from the environment.
type ClientConfig struct {
	BaseURL    string
	Username   string
	Password   string
	Timeout    time.Duration
	Retries    int
	RetryWait  time.Duration
	HTTPClient *http.Client
}

// Client issues GET requests against the statements endpoint.
type Client struct {
	base      *url.URL
	username  string
	password  string
	retries   int
	retryWait time.Duration
	http      *http.Client
}

type statementResult struct {
	Statements *[]json.RawMessage `json:"statements"`
	More       string             `json:"more"`
}

// NewClient validates the base URL and builds a client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("lrs base url is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid lrs base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid lrs base url %q: scheme and host are required", cfg.BaseURL)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	retryWait := cfg.RetryWait
	if retryWait <= 0 {
		retryWait = defaultRetryWait
	}
	retries := cfg.Retries
	if retries < 0 {
		retries = 0
	}
	return &Client{
		base:      base,
		username:  cfg.Username,
		password:  cfg.Password,
		retries:   retries,
		retryWait: retryWait,
		http:      httpClient,
	}, nil
}

// BaseURL returns the statements endpoint.
func (c *Client) BaseURL() *url.URL {
	u := *c.base
	return &u
}

// FetchPage fetches and decodes one page. Temporary transport failures are retried.
func (c *Client) FetchPage(ctx context.Context, pageURL string) (Page, error) {
	var page Page
	op := func() error {
		p, err := c.fetchOnce(ctx, pageURL)
		if err != nil {
			var te *TransportError
			if errors.As(err, &te) && te.Temporary() && ctx.Err() == nil {
				return err
			}
			return backoff.Permanent(err)
		}
		page = p
		return nil
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryWait
	policy.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.retries)), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return Page{}, err
	}
	return page, nil
}

func (c *Client) fetchOnce(ctx context.Context, pageURL string) (Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, http.NoBody)
	if err != nil {
		return Page{}, &TransportError{URL: pageURL, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(xapiVersionHeader, xapiVersion)
	if c.username != "" || c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Page{}, &TransportError{URL: pageURL, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode/100 != 2 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return Page{}, &TransportError{URL: pageURL, StatusCode: resp.StatusCode, Err: errors.New(resp.Status)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Page{}, &TransportError{URL: pageURL, Err: fmt.Errorf("failed to read body: %w", err)}
	}
	return decodePage(pageURL, body)
}

func decodePage(pageURL string, body []byte) (Page, error) {
	var payload statementResult
	if err := json.Unmarshal(body, &payload); err != nil {
		return Page{}, &MalformedResponseError{URL: pageURL, Reason: "invalid json", Err: err}
	}
	if payload.Statements == nil {
		return Page{}, &MalformedResponseError{URL: pageURL, Reason: "missing statements field"}
	}
	statements := make([]model.Statement, 0, len(*payload.Statements))
	for i, raw := range *payload.Statements {
		var s model.Statement
		if err := json.Unmarshal(raw, &s); err != nil {
			return Page{}, &MalformedResponseError{URL: pageURL, Reason: fmt.Sprintf("statement %d", i), Err: err}
		}
		statements = append(statements, s)
	}
	more, err := resolveMore(pageURL, payload.More)
	if err != nil {
		return Page{}, &MalformedResponseError{URL: pageURL, Reason: "invalid more link", Err: err}
	}
	return Page{Statements: statements, More: more}, nil
}

// resolveMore turns a possibly relative continuation link into an absolute URL.
func resolveMore(pageURL, more string) (string, error) {
	if more == "" {
		return "", nil
	}
	ref, err := url.Parse(more)
	if err != nil {
		return "", err
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}
