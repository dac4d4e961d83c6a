// Package cdn selects a reachable mirror for a static asset bundle.
package cdn

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/runboxd/runbox/internal/logger"
)

// DefaultProbeTimeout bounds a single reachability check.
const DefaultProbeTimeout = 5 * time.Second

// Resolver probes candidate URLs in order and reports the first reachable
// one. It holds no cache; callers that want a sticky mirror memoize the
// result themselves.
type Resolver struct {
	client       *http.Client
	probeTimeout time.Duration
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithClient sets the HTTP client used for probes and downloads.
func WithClient(c *http.Client) Option {
	return func(r *Resolver) {
		r.client = c
	}
}

// WithProbeTimeout sets the per-candidate reachability timeout.
func WithProbeTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		r.probeTimeout = d
	}
}

// New creates a Resolver.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		client:       http.DefaultClient,
		probeTimeout: DefaultProbeTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the first candidate that answers a reachability probe.
// Candidates are tried strictly in order, one probe each, no retries. When
// every candidate fails the returned error aggregates every probe failure.
func (r *Resolver) Resolve(ctx context.Context, candidates []string) (string, error) {
	if len(candidates) == 0 {
		return "", fmt.Errorf("no candidate urls")
	}

	var errs *multierror.Error
	for _, url := range candidates {
		if err := r.probe(ctx, url); err != nil {
			logger.G(ctx).WithField("url", url).WithError(err).Debug("mirror probe failed")
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", url, err))
			continue
		}
		return url, nil
	}
	return "", fmt.Errorf("no reachable mirror: %w", errs.ErrorOrNil())
}

// probe issues a HEAD request, falling back to a single-byte ranged GET for
// servers that reject HEAD.
func (r *Resolver) probe(ctx context.Context, url string) error {
	ctx, cancel := context.WithTimeout(ctx, r.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusNotImplemented {
		return r.probeRanged(ctx, url)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("status %s", resp.Status)
	}
	return nil
}

func (r *Resolver) probeRanged(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Range", "bytes=0-0")

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("status %s", resp.Status)
	}
	return nil
}

// Download fetches url to path, skipping the fetch when path already exists.
// The file is written to a temp sibling first and renamed into place so a
// failed download never leaves a truncated asset behind.
func (r *Resolver) Download(ctx context.Context, url, path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: status %s", url, resp.Status)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("download %s: %w", url, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}
