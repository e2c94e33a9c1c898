package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/micro-ha/att-presence/addon/internal/model"
)

const (
	keySessionID         = "session_id"
	keyAlwaysHome        = "always_home_devices"
	keyPresenceDetection = "presence_detection"
	keyPollIntervalSec   = "poll_interval_sec"
)

// LoadOptionOverrides returns the persisted options patch and when each of its
// fields was last written.
func (r *Repository) LoadOptionOverrides(ctx context.Context) (model.OptionsPatch, model.OverrideTimes, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, value, updated_at FROM option_overrides`)
	if err != nil {
		return model.OptionsPatch{}, model.OverrideTimes{}, err
	}
	defer rows.Close()

	var (
		patch model.OptionsPatch
		times model.OverrideTimes
	)
	for rows.Next() {
		var key, value, updatedAt string
		if err := rows.Scan(&key, &value, &updatedAt); err != nil {
			return model.OptionsPatch{}, model.OverrideTimes{}, err
		}
		var field model.OptionsPatch
		if err := decodeOverride(&field, key, value); err != nil {
			if r.logger != nil {
				r.logger.Warn("ignoring unreadable option override", "key", key, "err", err)
			}
			continue
		}
		ts, err := time.Parse(time.RFC3339Nano, updatedAt)
		if err != nil {
			if r.logger != nil {
				r.logger.Warn("ignoring option override without timestamp", "key", key, "err", err)
			}
			continue
		}
		patch = patch.Merge(field)
		times = times.Stamp(field, ts.UTC())
	}
	return patch, times, rows.Err()
}

// SaveOptionOverrides upserts the fields set in patch; unset fields keep their stored value.
func (r *Repository) SaveOptionOverrides(ctx context.Context, patch model.OptionsPatch, at time.Time) error {
	values := map[string]any{}
	if patch.SessionID != nil {
		values[keySessionID] = *patch.SessionID
	}
	if patch.AlwaysHome != nil {
		values[keyAlwaysHome] = model.NormalizeMACs(*patch.AlwaysHome)
	}
	if patch.PresenceDetection != nil {
		values[keyPresenceDetection] = *patch.PresenceDetection
	}
	if patch.PollIntervalSec != nil {
		values[keyPollIntervalSec] = *patch.PollIntervalSec
	}
	if len(values) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO option_overrides(key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value=excluded.value,
			updated_at=excluded.updated_at`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	stamp := at.UTC().Format(time.RFC3339Nano)
	for key, value := range values {
		body, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("encode option %s: %w", key, err)
		}
		if _, err := stmt.ExecContext(ctx, key, string(body), stamp); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ClearOptionOverrides drops every override so options.json applies unmodified again.
func (r *Repository) ClearOptionOverrides(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM option_overrides`)
	return err
}

func decodeOverride(patch *model.OptionsPatch, key, value string) error {
	switch key {
	case keySessionID:
		var v string
		if err := json.Unmarshal([]byte(value), &v); err != nil {
			return err
		}
		patch.SessionID = &v
	case keyAlwaysHome:
		var v []string
		if err := json.Unmarshal([]byte(value), &v); err != nil {
			return err
		}
		patch.AlwaysHome = &v
	case keyPresenceDetection:
		var v bool
		if err := json.Unmarshal([]byte(value), &v); err != nil {
			return err
		}
		patch.PresenceDetection = &v
	case keyPollIntervalSec:
		var v int
		if err := json.Unmarshal([]byte(value), &v); err != nil {
			return err
		}
		patch.PollIntervalSec = &v
	default:
		return fmt.Errorf("unknown option %q", key)
	}
	return nil
}
