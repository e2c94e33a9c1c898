package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/micro-ha/att-presence/addon/internal/model"
)

const optionsRefreshTimeout = 10 * time.Second

type optionsManager interface {
	Refresh(ctx context.Context) (bool, error)
	Apply(ctx context.Context, patch model.OptionsPatch) (bool, error)
}

type reclassifier interface {
	Reclassify(ctx context.Context) error
}

type refresher interface {
	TriggerRefresh()
}

// optionsSync reacts to option changes from outside the HTTP API: the add-on
// options file and Home Assistant events.
type optionsSync struct {
	manager optionsManager
	service reclassifier
	poller  refresher
	logger  *slog.Logger
}

// onEvent persists the fields carried by an options event, or rereads the
// options file when the event has none.
func (s *optionsSync) onEvent(ctx context.Context, patch model.OptionsPatch) {
	refreshCtx, cancel := context.WithTimeout(ctx, optionsRefreshTimeout)
	defer cancel()

	var (
		changed bool
		err     error
	)
	if patch.Empty() {
		changed, err = s.manager.Refresh(refreshCtx)
	} else {
		changed, err = s.manager.Apply(refreshCtx, patch)
	}
	if err != nil {
		s.logger.Warn("config refresh from event failed", "err", err)
		return
	}
	s.changed(refreshCtx, changed)
}

func (s *optionsSync) runPeriodic(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refreshCtx, cancel := context.WithTimeout(ctx, optionsRefreshTimeout)
			changed, err := s.manager.Refresh(refreshCtx)
			if err != nil {
				s.logger.Warn("periodic config refresh failed", "err", err)
			} else {
				s.changed(refreshCtx, changed)
			}
			cancel()
		}
	}
}

func (s *optionsSync) changed(ctx context.Context, changed bool) {
	if !changed {
		return
	}
	if err := s.service.Reclassify(ctx); err != nil {
		s.logger.Warn("reclassify after config change failed", "err", err)
	}
	s.poller.TriggerRefresh()
}
