// Package remote executes code through hosted compiler services, one HTTP
// round trip per run.
package remote

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

	"github.com/avast/retry-go/v4"

	"github.com/runboxd/runbox/engine"
)

// Schema selects how a service's response maps onto an execution result.
type Schema int

const (
	// SchemaPlay is the playground style: {"Errors": "...", "Events":
	// [{"Message": "...", "Kind": "stdout"}]}.
	SchemaPlay Schema = iota
	// SchemaJudge is the judge style: {"stdout": "...", "stderr": "...",
	// "compile_output": "..."}.
	SchemaJudge
)

// DefaultExecTimeout bounds one compile-and-run round trip.
const DefaultExecTimeout = 30 * time.Second

// Service describes one hosted compiler endpoint.
type Service struct {
	// Name is the language identifier this service executes.
	Name string
	// URL is the compile endpoint.
	URL string
	// Schema selects the request/response mapping.
	Schema Schema
	// Wrap, when set, rewrites the source before submission (entry-point
	// auto-wrapping). See the Wrap* helpers in this package.
	Wrap func(source string) string
	// ExecTimeout bounds one execution round trip. Zero means
	// DefaultExecTimeout.
	ExecTimeout time.Duration
}

type config struct {
	client        *http.Client
	probeAttempts uint
}

// Option configures the remote engine factory.
type Option func(*config)

// WithClient sets the HTTP client used for the warm-up probe and executions.
func WithClient(client *http.Client) Option {
	return func(c *config) {
		c.client = client
	}
}

// WithProbeAttempts sets how many times the warm-up reachability check is
// attempted before acquisition fails.
func WithProbeAttempts(n uint) Option {
	return func(c *config) {
		c.probeAttempts = n
	}
}

// NewFactory returns an engine.Factory for one hosted compiler service. The
// factory performs a warm-up reachability check so an unreachable service
// fails acquisition instead of the first run.
func NewFactory(svc Service, opts ...Option) engine.Factory {
	cfg := config{
		client:        http.DefaultClient,
		probeAttempts: 3,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if svc.ExecTimeout == 0 {
		svc.ExecTimeout = DefaultExecTimeout
	}

	return func(ctx context.Context) (engine.Engine, error) {
		err := retry.Do(
			func() error { return probe(ctx, cfg.client, svc.URL) },
			retry.Context(ctx),
			retry.Attempts(cfg.probeAttempts),
			retry.DelayType(retry.BackOffDelay),
			retry.LastErrorOnly(true),
		)
		if err != nil {
			return nil, fmt.Errorf("service %s unreachable: %w", svc.Name, err)
		}
		return &Engine{svc: svc, client: cfg.client}, nil
	}
}

// probe checks reachability only; any HTTP response counts, since compile
// endpoints commonly reject non-POST requests.
func probe(ctx context.Context, client *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return nil
}

// Engine is a stateless handle for one hosted compiler service.
type Engine struct {
	svc    Service
	client *http.Client
}

// Language returns the service's language identifier.
func (e *Engine) Language() string {
	return e.svc.Name
}

// Execute submits the (possibly wrapped) source and maps the service
// response. Network failures during execution are reported in Result.Err like
// any other execution failure.
func (e *Engine) Execute(ctx context.Context, source string) engine.Result {
	start := time.Now()

	if e.svc.Wrap != nil {
		source = e.svc.Wrap(source)
	}

	ctx, cancel := context.WithTimeout(ctx, e.svc.ExecTimeout)
	defer cancel()

	output, execErr := e.roundTrip(ctx, source)
	result := engine.Result{Duration: time.Since(start)}
	if execErr != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			execErr = fmt.Errorf("execution: %w", engine.ErrTimedOut)
		}
		result.Err = execErr
		return result
	}
	result.Output = output
	return result
}

func (e *Engine) roundTrip(ctx context.Context, source string) (string, error) {
	body, err := e.encodeRequest(source)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.svc.URL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("service returned status %s", resp.Status)
	}

	return e.decodeResponse(resp.Body)
}

type playRequest struct {
	Version int    `json:"version"`
	Body    string `json:"body"`
}

type playResponse struct {
	Errors string `json:"Errors"`
	Events []struct {
		Message string `json:"Message"`
		Kind    string `json:"Kind"`
	} `json:"Events"`
}

type judgeRequest struct {
	Language string `json:"language"`
	Source   string `json:"source"`
}

type judgeResponse struct {
	Stdout        string `json:"stdout"`
	Stderr        string `json:"stderr"`
	CompileOutput string `json:"compile_output"`
}

func (e *Engine) encodeRequest(source string) ([]byte, error) {
	switch e.svc.Schema {
	case SchemaPlay:
		return json.Marshal(playRequest{Version: 2, Body: source})
	case SchemaJudge:
		return json.Marshal(judgeRequest{Language: e.svc.Name, Source: source})
	default:
		return nil, fmt.Errorf("unknown schema %d", e.svc.Schema)
	}
}

func (e *Engine) decodeResponse(r io.Reader) (string, error) {
	switch e.svc.Schema {
	case SchemaPlay:
		var pr playResponse
		if err := json.NewDecoder(r).Decode(&pr); err != nil {
			return "", fmt.Errorf("parse service response: %w", err)
		}
		if pr.Errors != "" {
			return "", errors.New(strings.TrimSpace(pr.Errors))
		}
		var out strings.Builder
		for _, ev := range pr.Events {
			if ev.Kind == "stdout" || ev.Kind == "stderr" {
				out.WriteString(ev.Message)
			}
		}
		return out.String(), nil
	case SchemaJudge:
		var jr judgeResponse
		if err := json.NewDecoder(r).Decode(&jr); err != nil {
			return "", fmt.Errorf("parse service response: %w", err)
		}
		if jr.CompileOutput != "" {
			return "", errors.New(strings.TrimSpace(jr.CompileOutput))
		}
		if jr.Stderr != "" {
			return "", errors.New(strings.TrimSpace(jr.Stderr))
		}
		return jr.Stdout, nil
	default:
		return "", fmt.Errorf("unknown schema %d", e.svc.Schema)
	}
}
