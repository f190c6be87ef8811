// Package janitor periodically removes channels whose chat bot no longer exists.
package janitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/memohai/chatrelay/internal/dialogue"
)

// cronParser accepts standard 5-field expressions and descriptors such as @hourly.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

const maxParallelDeletes = 8

// Channels lists and deletes dialogues.
type Channels interface {
	List(ctx context.Context) ([]dialogue.Dialogue, error)
	Delete(ctx context.Context, id string) error
}

// Bots reports whether a chat bot exists.
type Bots interface {
	Exists(ctx context.Context, id string) (bool, error)
}

// Janitor deletes orphaned channels on a cron schedule.
type Janitor struct {
	channels Channels
	bots     Bots
	logger   *slog.Logger
	cron     *cron.Cron
	schedule string
}

// New validates schedule and returns a janitor. An empty schedule disables it.
func New(log *slog.Logger, schedule string, channels Channels, bots Bots) (*Janitor, error) {
	if log == nil {
		log = slog.Default()
	}
	schedule = strings.TrimSpace(schedule)
	if schedule != "" {
		if _, err := cronParser.Parse(schedule); err != nil {
			return nil, fmt.Errorf("invalid janitor schedule %q: %w", schedule, err)
		}
	}
	return &Janitor{
		channels: channels,
		bots:     bots,
		logger:   log.With(slog.String("service", "janitor")),
		schedule: schedule,
	}, nil
}

// Enabled reports whether a schedule is configured.
func (j *Janitor) Enabled() bool {
	return j.schedule != ""
}

// Start registers the sweep and starts the cron runner.
func (j *Janitor) Start(ctx context.Context) error {
	if !j.Enabled() {
		return nil
	}
	j.cron = cron.New(cron.WithParser(cronParser))
	if _, err := j.cron.AddFunc(j.schedule, func() {
		if _, err := j.Sweep(context.WithoutCancel(ctx)); err != nil {
			j.logger.Error("sweep failed", slog.Any("error", err))
		}
	}); err != nil {
		return err
	}
	j.cron.Start()
	j.logger.Info("janitor started", slog.String("schedule", j.schedule))
	return nil
}

// Stop halts the cron runner and waits for a running sweep.
func (j *Janitor) Stop(ctx context.Context) error {
	if j.cron == nil {
		return nil
	}
	select {
	case <-j.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sweep deletes every channel whose chat bot is gone and returns how many were removed.
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	items, err := j.channels.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list channels: %w", err)
	}

	owners := map[string]bool{}
	for _, d := range items {
		if _, seen := owners[d.ChatBotID]; seen {
			continue
		}
		ok, err := j.bots.Exists(ctx, d.ChatBotID)
		if err != nil {
			return 0, fmt.Errorf("check chat bot %s: %w", d.ChatBotID, err)
		}
		owners[d.ChatBotID] = ok
	}

	var removed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelDeletes)
	for _, d := range items {
		if owners[d.ChatBotID] {
			continue
		}
		id := d.ID
		g.Go(func() error {
			err := j.channels.Delete(gctx, id)
			if errors.Is(err, dialogue.ErrDialogueNotFound) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("delete channel %s: %w", id, err)
			}
			removed.Add(1)
			return nil
		})
	}
	err = g.Wait()
	n := int(removed.Load())
	if n > 0 {
		j.logger.Info("orphaned channels removed", slog.Int("count", n))
	}
	return n, err
}
