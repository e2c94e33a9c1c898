package storage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/micro-ha/att-presence/addon/internal/snapshot"
)

const persistTimeout = 10 * time.Second

// SnapshotWriter persists each newly published snapshot. Failed polls leave the
// snapshot untouched, so they are not written again.
type SnapshotWriter struct {
	repo   *Repository
	logger *slog.Logger

	mu      sync.Mutex
	written time.Time
}

func NewSnapshotWriter(repo *Repository, logger *slog.Logger) *SnapshotWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotWriter{repo: repo, logger: logger}
}

// Notify implements snapshot.Sink.
func (w *SnapshotWriter) Notify(state snapshot.State) {
	if !state.Available {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if state.Snapshot.FetchedAt.Equal(w.written) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := w.repo.SaveSnapshot(ctx, state.Snapshot); err != nil {
		w.logger.Error("failed to persist device snapshot", "err", err, "devices", len(state.Snapshot.Devices))
		return
	}
	w.written = state.Snapshot.FetchedAt
}
