package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/micro-ha/att-presence/addon/internal/gateway"
	"github.com/micro-ha/att-presence/addon/internal/model"
	"github.com/micro-ha/att-presence/addon/internal/presence"
	"github.com/micro-ha/att-presence/addon/internal/reconcile"
	"github.com/micro-ha/att-presence/addon/internal/snapshot"
)

// PageFetcher pulls the device list page from the router.
type PageFetcher interface {
	Fetch(ctx context.Context, cfg model.RouterConfig) (gateway.RawPage, error)
}

// PageParser turns the device list page into records.
type PageParser interface {
	Parse(page gateway.RawPage) ([]model.DeviceRecord, error)
}

// ConfigProvider supplies the Configuration read at the start of each poll.
type ConfigProvider interface {
	Get() (model.RouterConfig, bool)
}

type Service struct {
	fetcher  PageFetcher
	parser   PageParser
	config   ConfigProvider
	store    *snapshot.Store
	logger   *slog.Logger
	inflight *semaphore.Weighted
	now      func() time.Time
}

func New(fetcher PageFetcher, parser PageParser, cfg ConfigProvider, store *snapshot.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		fetcher:  fetcher,
		parser:   parser,
		config:   cfg,
		store:    store,
		logger:   logger,
		inflight: semaphore.NewWeighted(1),
		now:      time.Now,
	}
}

// PollOnce runs one fetch, parse, reconcile, classify and publish cycle. Polls never
// overlap; a second caller waits for the running one. A failed fetch or parse leaves
// the published snapshot untouched and marks it stale. A cancelled poll publishes nothing.
func (s *Service) PollOnce(ctx context.Context) error {
	if err := s.inflight.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.inflight.Release(1)

	cfg, ok := s.config.Get()
	if !ok || !cfg.Configured() {
		return model.ErrNotConfigured
	}

	startedAt := s.now().UTC()
	page, err := s.fetcher.Fetch(ctx, cfg)
	if err != nil {
		return s.fail(ctx, "fetch", err, startedAt)
	}
	records, err := s.parser.Parse(page)
	if err != nil {
		return s.fail(ctx, "parse", err, startedAt)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	fetchedAt := page.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = s.now().UTC()
	}
	snap := reconcile.Merge(s.store.Baseline(), records, fetchedAt)
	result := presence.Classify(snap, cfg.AlwaysHomeSet())
	s.store.Publish(snap, result)

	s.logger.Debug("poll published",
		"devices", len(snap.Devices),
		"parsed", len(records),
		"online", snap.OnlineCount(),
		"presence", result.State,
		"duration_ms", s.now().Sub(startedAt).Milliseconds(),
	)
	return nil
}

// Reclassify recomputes presence over the current snapshot with the current
// always-home set, without touching the router.
func (s *Service) Reclassify(ctx context.Context) error {
	if err := s.inflight.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.inflight.Release(1)

	cfg, _ := s.config.Get()
	alwaysHome := cfg.AlwaysHomeSet()
	s.store.Reclassify(func(snap model.Snapshot) model.PresenceResult {
		return presence.Classify(snap, alwaysHome)
	})
	return nil
}

func (s *Service) fail(ctx context.Context, stage string, err error, at time.Time) error {
	if ctx.Err() != nil {
		// Shutdown or caller cancellation, not a router failure.
		return errors.Join(ctx.Err(), err)
	}
	s.store.Fail(err, at)

	kind := model.KindOf(err)
	if kind == model.FailureAuthExpired {
		s.logger.Error("router session expired; supply a new session id", "stage", stage, "err", err)
	} else {
		s.logger.Warn("poll failed; keeping last snapshot", "stage", stage, "kind", kind, "err", err)
	}
	return err
}
