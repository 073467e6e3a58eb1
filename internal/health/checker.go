// Package health checks installed units: the unit's probe plus an optional
// HTTP or TCP endpoint declared in the catalog.
package health

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"golang.org/x/sync/errgroup"

	"github.com/blackwell-systems/stackup/internal/logging"
	"github.com/blackwell-systems/stackup/internal/probe"
	"github.com/blackwell-systems/stackup/internal/store"
)

// Status is the outcome of a health check.
type Status string

const (
	StatusHealthy      Status = "healthy"
	StatusUnhealthy    Status = "unhealthy"
	StatusUnreachable  Status = "unreachable"
	StatusNotInstalled Status = "not installed"
)

const (
	DefaultTimeout      = 5 * time.Second
	DefaultConcurrency  = 4
	DefaultWaitAttempts = 10
)

// ErrUnhealthy is returned by WaitHealthy when the unit never became
// healthy.
var ErrUnhealthy = errors.New("unit is not healthy")

// Target is one unit to check.
type Target struct {
	Unit     string
	Probe    probe.Probe
	Endpoint string
}

// Result is the outcome of checking one target.
type Result struct {
	Unit      string
	Status    Status
	Endpoint  string
	Detail    string
	Latency   time.Duration
	CheckedAt time.Time
}

// Up reports whether the unit is healthy.
func (r *Result) Up() bool {
	return r.Status == StatusHealthy
}

// Recorder persists results. *store.Store satisfies it.
type Recorder interface {
	SaveHealthResult(r *store.HealthResult) error
}

// Checker runs health checks.
type Checker struct {
	Client      *http.Client
	Timeout     time.Duration
	Concurrency int
	Recorder    Recorder
	Now         func() time.Time
}

// NewChecker returns a checker with the given per-check timeout and
// concurrency limit. Zero values select the defaults.
func NewChecker(timeout time.Duration, concurrency int) *Checker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Checker{
		Client:      &http.Client{Timeout: timeout},
		Timeout:     timeout,
		Concurrency: concurrency,
		Now:         time.Now,
	}
}

// Check runs a single check. A probe error or failed endpoint is reported
// in the result, not as an error.
func (c *Checker) Check(ctx context.Context, t Target) *Result {
	start := c.now()
	res := &Result{Unit: t.Unit, Endpoint: t.Endpoint, CheckedAt: start}

	installed, err := t.Probe.IsInstalled(ctx)
	switch {
	case err != nil:
		res.Status = StatusNotInstalled
		res.Detail = err.Error()
		return res
	case !installed:
		res.Status = StatusNotInstalled
		res.Detail = t.Probe.Describe()
		return res
	}

	if t.Endpoint == "" {
		res.Status = StatusHealthy
		res.Detail = t.Probe.Describe()
		return res
	}

	cctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()

	status, detail := c.checkEndpoint(cctx, t.Endpoint)
	res.Status = status
	res.Detail = detail
	res.Latency = c.now().Sub(start)
	return res
}

// CheckAll checks every target concurrently and returns results sorted by
// unit. Results are saved through the Recorder when one is set; a save
// failure is logged and does not fail the check.
func (c *Checker) CheckAll(ctx context.Context, targets []Target) ([]*Result, error) {
	results := make([]*Result, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency())
	for i, t := range targets {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = c.Check(gctx, t)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("health check interrupted: %w", err)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Unit < results[j].Unit
	})

	if c.Recorder != nil {
		log := logging.FromContext(ctx)
		for _, r := range results {
			if err := c.Recorder.SaveHealthResult(r.Record()); err != nil {
				log.Warn("failed to save health result", "unit", r.Unit, "error", err)
			}
		}
	}

	return results, nil
}

// WaitHealthy repeats the check until it reports healthy or attempts run
// out. Zero attempts means DefaultWaitAttempts. The last result is always
// returned.
func (c *Checker) WaitHealthy(ctx context.Context, t Target, attempts uint, delay, maxDelay time.Duration) (*Result, error) {
	if attempts == 0 {
		attempts = DefaultWaitAttempts
	}
	var last *Result
	err := retry.Do(func() error {
		last = c.Check(ctx, t)
		if !last.Up() {
			return fmt.Errorf("%s is %s", t.Unit, last.Status)
		}
		return nil
	}, retry.Attempts(attempts), retry.Delay(delay), retry.MaxDelay(maxDelay), retry.Context(ctx))
	if err == nil {
		return last, nil
	}
	if ctx.Err() != nil {
		return last, ctx.Err()
	}
	if last == nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnhealthy, t.Unit, err)
	}
	return last, fmt.Errorf("%w: %s is %s (%s)", ErrUnhealthy, t.Unit, last.Status, last.Detail)
}

// Record converts the result to its stored form.
func (r *Result) Record() *store.HealthResult {
	return &store.HealthResult{
		Unit:      r.Unit,
		Status:    string(r.Status),
		Detail:    r.Detail,
		Latency:   r.Latency,
		CheckedAt: r.CheckedAt,
	}
}

func (c *Checker) checkEndpoint(ctx context.Context, endpoint string) (Status, string) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return StatusUnreachable, fmt.Sprintf("invalid endpoint: %v", err)
	}

	switch u.Scheme {
	case "http", "https":
		return c.checkHTTP(ctx, endpoint)
	case "tcp":
		return c.checkTCP(ctx, u.Host)
	default:
		return StatusUnreachable, fmt.Sprintf("unsupported scheme %q", u.Scheme)
	}
}

func (c *Checker) checkHTTP(ctx context.Context, endpoint string) (Status, string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return StatusUnreachable, err.Error()
	}

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return StatusUnreachable, err.Error()
	}
	defer resp.Body.Close()

	detail := fmt.Sprintf("HTTP %d", resp.StatusCode)
	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		return StatusHealthy, detail
	}
	return StatusUnhealthy, detail
}

func (c *Checker) checkTCP(ctx context.Context, addr string) (Status, string) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return StatusUnreachable, err.Error()
	}
	conn.Close()
	return StatusHealthy, "tcp " + addr + " open"
}

func (c *Checker) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Checker) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultTimeout
}

func (c *Checker) concurrency() int {
	if c.Concurrency > 0 {
		return c.Concurrency
	}
	return DefaultConcurrency
}
