package healthcheck

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestCheckerAllHealthy(t *testing.T) {
	t.Parallel()

	c := New()
	c.Add("storage", func(context.Context) error { return nil })
	c.Add("broker", func(context.Context) error { return nil })
	c.Add("ignored", nil)

	items := c.ListChecks(context.Background())
	if len(items) != 2 {
		t.Fatalf("expected 2 checks, got %d", len(items))
	}
	if items[0].Name != "storage" || items[1].Name != "broker" {
		t.Fatalf("unexpected order: %+v", items)
	}
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCheckerReportsFailures(t *testing.T) {
	t.Parallel()

	c := New()
	c.Add("storage", func(context.Context) error { return errors.New("connection refused") })
	c.Add("broker", func(context.Context) error { return nil })

	items := c.ListChecks(context.Background())
	if items[0].Status != StatusError || items[0].Detail != "connection refused" {
		t.Fatalf("unexpected storage result: %+v", items[0])
	}
	if items[1].Status != StatusOK {
		t.Fatalf("unexpected broker result: %+v", items[1])
	}
	err := c.Ping(context.Background())
	if err == nil || !strings.Contains(err.Error(), "storage: connection refused") {
		t.Fatalf("expected storage failure, got %v", err)
	}
}

func TestEmptyCheckerIsHealthy(t *testing.T) {
	t.Parallel()

	if err := New().Ping(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
