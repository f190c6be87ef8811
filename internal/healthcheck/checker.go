// Package healthcheck aggregates dependency checks behind the liveness endpoints.
package healthcheck

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

const (
	// StatusOK indicates check passed.
	StatusOK = "ok"
	// StatusError indicates check failed.
	StatusError = "error"
)

// CheckResult is the outcome of one named check.
type CheckResult struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// PingFunc probes one dependency.
type PingFunc func(ctx context.Context) error

type check struct {
	name string
	ping PingFunc
}

// Checker runs every registered check concurrently.
type Checker struct {
	mu     sync.RWMutex
	checks []check
}

func New() *Checker {
	return &Checker{}
}

// Add registers a check. A nil ping is ignored.
func (c *Checker) Add(name string, ping PingFunc) {
	if ping == nil {
		return
	}
	c.mu.Lock()
	c.checks = append(c.checks, check{name: name, ping: ping})
	c.mu.Unlock()
}

// ListChecks evaluates all checks in registration order.
func (c *Checker) ListChecks(ctx context.Context) []CheckResult {
	c.mu.RLock()
	checks := append([]check(nil), c.checks...)
	c.mu.RUnlock()

	results := make([]CheckResult, len(checks))
	var wg sync.WaitGroup
	for i, ch := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := CheckResult{Name: ch.name, Status: StatusOK}
			if err := ch.ping(ctx); err != nil {
				res.Status = StatusError
				res.Detail = err.Error()
			}
			results[i] = res
		}()
	}
	wg.Wait()
	return results
}

// Ping fails when any check fails. The error names every failing check.
func (c *Checker) Ping(ctx context.Context) error {
	var errs []error
	for _, res := range c.ListChecks(ctx) {
		if res.Status != StatusOK {
			errs = append(errs, fmt.Errorf("%s: %s", res.Name, res.Detail))
		}
	}
	return errors.Join(errs...)
}
