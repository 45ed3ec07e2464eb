package service

import (
	"context"
	"log/slog"

	"github.com/reshetovitsme/notify-relay/internal/shared/errors"
	"github.com/robfig/cron/v3"
	"github.com/samber/oops"
)

// Snapshotter periodically saves every channel so that a mutation whose
// own save was lost is still persisted eventually.
type Snapshotter struct {
	channels *Service
	cron     *cron.Cron
}

// NewSnapshotter schedules SaveAll on a cron spec such as "@every 10m".
// An empty schedule yields a snapshotter that never runs.
func NewSnapshotter(channels *Service, schedule string) (*Snapshotter, error) {
	s := &Snapshotter{
		channels: channels,
		cron:     cron.New(),
	}

	if schedule == "" {
		return s, nil
	}

	if _, err := s.cron.AddFunc(schedule, s.Run); err != nil {
		return nil, oops.With("save_schedule", schedule).Wrap(errors.Configuration(err))
	}
	return s, nil
}

// Run saves every channel once.
func (s *Snapshotter) Run() {
	if err := s.channels.SaveAll(); err != nil {
		slog.Error("Periodic channel snapshot failed", "error", err)
		return
	}
	slog.Debug("Periodic channel snapshot saved", "channels", len(s.channels.IDs()))
}

func (s *Snapshotter) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for a running snapshot to finish.
func (s *Snapshotter) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}
