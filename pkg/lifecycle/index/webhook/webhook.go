// Package webhook refreshes an external search index by calling an HTTP
// endpoint after each committed mutation.
package webhook

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tendant/content-lifecycle/pkg/lifecycle"
)

// Indexer sends GET {URL}?repository={id} and treats any 2xx as success.
type Indexer struct {
	endpoint *url.URL
	client   *http.Client
}

// Option configures an Indexer
type Option func(*Indexer)

// WithHTTPClient replaces the default client (5s timeout)
func WithHTTPClient(client *http.Client) Option {
	return func(i *Indexer) {
		i.client = client
	}
}

// New creates an indexer calling rawURL.
func New(rawURL string, options ...Option) (*Indexer, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse index url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("index url must be http or https, got %q", rawURL)
	}
	i := &Indexer{endpoint: u, client: &http.Client{Timeout: 5 * time.Second}}
	for _, option := range options {
		option(i)
	}
	return i, nil
}

func (i *Indexer) Refresh(ctx context.Context, repositoryID string) error {
	u := *i.endpoint
	q := u.Query()
	q.Set("repository", repositoryID)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("build index refresh request: %w", err)
	}
	resp, err := i.client.Do(req)
	if err != nil {
		return fmt.Errorf("index refresh: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("index refresh: unexpected status %d", resp.StatusCode)
	}
	return nil
}

var _ lifecycle.Indexer = (*Indexer)(nil)
