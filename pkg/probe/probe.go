// Package probe runs preflight checks before a server starts taking requests.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultTimeout bounds a single check when Run is given zero.
const DefaultTimeout = 5 * time.Second

// Probe is one named preflight check.
type Probe struct {
	Name     string
	Check    func(ctx context.Context) error
	Critical bool // failure blocks startup
}

// Result is the outcome of one probe.
type Result struct {
	Name     string
	Critical bool
	Err      error
	Took     time.Duration
}

// Passed reports whether the check returned nil.
func (r Result) Passed() bool { return r.Err == nil }

// Run executes the probes concurrently, each under its own timeout, and
// returns the results in probe order.
func Run(ctx context.Context, probes []Probe, timeout time.Duration) []Result {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	results := make([]Result, len(probes))

	var g errgroup.Group
	for i, p := range probes {
		g.Go(func() error {
			checkCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			start := time.Now()
			err := p.Check(checkCtx)
			results[i] = Result{Name: p.Name, Critical: p.Critical, Err: err, Took: time.Since(start)}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Analyze logs every result and joins the critical failures.
func Analyze(results []Result) error {
	var critical []error
	for _, r := range results {
		msg := fmt.Sprintf("Preflight %-18s %v", r.Name, r.Took.Round(time.Millisecond))
		switch {
		case r.Passed():
			slog.Info(msg, "status", "PASS")
		case r.Critical:
			slog.Error(msg, "status", "FAIL", "error", r.Err)
			critical = append(critical, fmt.Errorf("%s: %w", r.Name, r.Err))
		default:
			slog.Warn(msg, "status", "WARN", "error", r.Err)
		}
	}
	return errors.Join(critical...)
}
