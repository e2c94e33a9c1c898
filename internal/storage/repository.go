package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/micro-ha/att-presence/addon/internal/model"
)

// LoadDevices restores the device map written by the last SaveSnapshot.
func (r *Repository) LoadDevices(ctx context.Context) (map[string]model.DeviceRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT mac, name, generated_name, ip, connection_type, signal_bars, connection_speed, band,
			network_name, interface, allocation, last_activity, status, online, first_seen_at, last_seen_at
		FROM devices`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := map[string]model.DeviceRecord{}
	for rows.Next() {
		var (
			rec                                         model.DeviceRecord
			ip, speed, band, network, iface, allocation sql.NullString
			lastActivity, status, lastSeen              sql.NullString
			connectionType, firstSeen                   string
			bars                                        sql.NullInt64
		)
		if err := rows.Scan(
			&rec.MAC, &rec.Name, &rec.GeneratedName, &ip, &connectionType, &bars, &speed, &band,
			&network, &iface, &allocation, &lastActivity, &status, &rec.Online, &firstSeen, &lastSeen,
		); err != nil {
			return nil, err
		}
		rec.IP = ip.String
		rec.ConnectionType = model.ConnectionType(connectionType)
		rec.SignalBars = intPtr(bars)
		rec.ConnectionSpeed = speed.String
		rec.Band = band.String
		rec.NetworkName = network.String
		rec.Interface = iface.String
		rec.Allocation = allocation.String
		rec.LastActivity = lastActivity.String
		rec.Status = status.String
		rec.LastSeenAt = toTimePtr(lastSeen)
		if ts, err := time.Parse(time.RFC3339Nano, firstSeen); err == nil {
			rec.FirstSeenAt = ts.UTC()
		}
		result[rec.MAC] = rec
	}
	return result, rows.Err()
}

// SaveSnapshot upserts every device of snap. Rows are never deleted so the stored
// device set grows the same way the in-memory one does.
func (r *Repository) SaveSnapshot(ctx context.Context, snap model.Snapshot) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO devices (mac, name, generated_name, ip, connection_type, signal_bars, connection_speed, band,
			network_name, interface, allocation, last_activity, status, online, first_seen_at, last_seen_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(mac) DO UPDATE SET
			name=excluded.name,
			generated_name=excluded.generated_name,
			ip=excluded.ip,
			connection_type=excluded.connection_type,
			signal_bars=excluded.signal_bars,
			connection_speed=excluded.connection_speed,
			band=excluded.band,
			network_name=excluded.network_name,
			interface=excluded.interface,
			allocation=excluded.allocation,
			last_activity=excluded.last_activity,
			status=excluded.status,
			online=excluded.online,
			last_seen_at=excluded.last_seen_at,
			updated_at=excluded.updated_at`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	updatedAt := snap.FetchedAt.UTC().Format(time.RFC3339Nano)
	for _, rec := range snap.Sorted() {
		if _, err := stmt.ExecContext(
			ctx,
			rec.MAC,
			rec.Name,
			rec.GeneratedName,
			rec.IP,
			string(rec.ConnectionType),
			fromIntPtr(rec.SignalBars),
			rec.ConnectionSpeed,
			rec.Band,
			rec.NetworkName,
			rec.Interface,
			rec.Allocation,
			rec.LastActivity,
			rec.Status,
			rec.Online,
			rec.FirstSeenAt.UTC().Format(time.RFC3339Nano),
			fromTimePtr(rec.LastSeenAt),
			updatedAt,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}
