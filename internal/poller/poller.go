package poller

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/micro-ha/att-presence/addon/internal/model"
)

// PollService runs a single poll cycle.
type PollService interface {
	PollOnce(ctx context.Context) error
}

// ConfigProvider supplies the current poll interval.
type ConfigProvider interface {
	Get() (model.RouterConfig, bool)
}

// Poller is the fixed-interval trigger. Refresh requests that arrive while a
// poll is running collapse into one follow-up poll.
type Poller struct {
	service   PollService
	config    ConfigProvider
	refreshCh chan struct{}
	logger    *slog.Logger
}

func New(svc PollService, cfg ConfigProvider, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{service: svc, config: cfg, refreshCh: make(chan struct{}, 1), logger: logger}
}

func (p *Poller) TriggerRefresh() {
	select {
	case p.refreshCh <- struct{}{}:
	default:
	}
}

// Run polls immediately, then every PollInterval until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	p.poll(ctx)
	for {
		interval := model.DefaultPollInterval
		if cfg, ok := p.config.Get(); ok {
			interval = cfg.PollInterval()
		}
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-p.refreshCh:
			timer.Stop()
		case <-timer.C:
		}
		p.poll(ctx)
	}
}

func (p *Poller) poll(ctx context.Context) {
	err := p.service.PollOnce(ctx)
	switch {
	case err == nil:
	case errors.Is(err, model.ErrNotConfigured):
		p.logger.Info("poll skipped; router host or session id not configured")
	case ctx.Err() != nil:
		p.logger.Debug("poll cancelled", "err", err)
	default:
		// The service already logged the failure with its kind.
		p.logger.Debug("poll failed", "err", err)
	}
}
