package configsync

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/micro-ha/att-presence/addon/internal/model"
)

var ErrOverridesUnavailable = errors.New("option overrides store unavailable")

// Source yields the base options, normally the add-on options file.
type Source interface {
	FetchConfig(ctx context.Context) (FetchResult, error)
}

// OverrideStore persists options changed at runtime.
type OverrideStore interface {
	LoadOptionOverrides(ctx context.Context) (model.OptionsPatch, model.OverrideTimes, error)
	SaveOptionOverrides(ctx context.Context, patch model.OptionsPatch, at time.Time) error
	ClearOptionOverrides(ctx context.Context) error
}

// Manager caches the effective Configuration: base options overlaid with the
// persisted runtime overrides. Per field, whichever was written last wins, so a
// session id rotated in the options file replaces an older override.
type Manager struct {
	source    Source
	overrides OverrideStore
	logger    *slog.Logger
	now       func() time.Time

	mu         sync.RWMutex
	loaded     bool
	configured bool
	config     model.RouterConfig
}

func NewManager(source Source, overrides OverrideStore, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{source: source, overrides: overrides, logger: logger, now: time.Now}
}

// Refresh reloads base options and overrides and reports whether the effective
// Configuration changed.
func (m *Manager) Refresh(ctx context.Context) (bool, error) {
	res, err := m.source.FetchConfig(ctx)
	if err != nil {
		return false, err
	}
	cfg := res.Config
	if m.overrides != nil {
		patch, times, err := m.overrides.LoadOptionOverrides(ctx)
		if err != nil {
			return false, err
		}
		patch, updatedAt := patch.NotOlderThan(times, res.Config.UpdatedAt)
		cfg = patch.Apply(cfg)
		if updatedAt.After(cfg.UpdatedAt) {
			cfg.UpdatedAt = updatedAt
		}
	}
	configured := cfg.Configured()

	m.mu.Lock()
	defer m.mu.Unlock()
	changed := !m.loaded || configured != m.configured || !cfg.Equal(m.config)
	m.loaded = true
	m.configured = configured
	m.config = cfg
	return changed, nil
}

// Apply persists patch as runtime overrides and refreshes the cached Configuration.
func (m *Manager) Apply(ctx context.Context, patch model.OptionsPatch) (bool, error) {
	if patch.Empty() {
		return false, nil
	}
	if m.overrides == nil {
		return false, ErrOverridesUnavailable
	}
	if err := m.overrides.SaveOptionOverrides(ctx, patch, m.now().UTC()); err != nil {
		return false, err
	}
	changed, err := m.Refresh(ctx)
	if err != nil {
		return false, err
	}
	if changed {
		m.logger.Info("options updated", "fields", patchFields(patch))
	}
	return changed, nil
}

// Reset drops every runtime override so the add-on options apply again.
func (m *Manager) Reset(ctx context.Context) (bool, error) {
	if m.overrides == nil {
		return false, ErrOverridesUnavailable
	}
	if err := m.overrides.ClearOptionOverrides(ctx); err != nil {
		return false, err
	}
	changed, err := m.Refresh(ctx)
	if err != nil {
		return false, err
	}
	if changed {
		m.logger.Info("options overrides cleared")
	}
	return changed, nil
}

// Get returns the effective Configuration and whether host and session id are set.
func (m *Manager) Get() (model.RouterConfig, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg := m.config
	cfg.AlwaysHome = append([]string(nil), m.config.AlwaysHome...)
	return cfg, m.configured
}

func patchFields(patch model.OptionsPatch) []string {
	var fields []string
	if patch.SessionID != nil {
		fields = append(fields, "session_id")
	}
	if patch.AlwaysHome != nil {
		fields = append(fields, "always_home_devices")
	}
	if patch.PresenceDetection != nil {
		fields = append(fields, "presence_detection")
	}
	if patch.PollIntervalSec != nil {
		fields = append(fields, "poll_interval_sec")
	}
	return fields
}
