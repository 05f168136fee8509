package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"
)

// Setting keys persisted in the settings table.
const (
	settingLastSyncTime = "last_sync_time"
	settingAutoSync     = "auto_sync"
	settingSyncInterval = "sync_interval"
)

// GetSetting returns the value for key, or "" if the key is unset.
func (db *DB) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := db.conn.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return value, nil
}

// SetSetting stores a value for key, replacing any previous value.
func (db *DB) SetSetting(ctx context.Context, key, value string) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	return nil
}

// LastSyncTime returns the timestamp of the last successful sync cycle.
// The zero time means no sync has succeeded yet.
func (db *DB) LastSyncTime(ctx context.Context) (time.Time, error) {
	value, err := db.GetSetting(ctx, settingLastSyncTime)
	if err != nil || value == "" {
		return time.Time{}, err
	}

	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse last sync time %q: %w", value, err)
	}
	return t, nil
}

// SetLastSyncTime records the timestamp of a successful sync cycle.
func (db *DB) SetLastSyncTime(ctx context.Context, t time.Time) error {
	return db.SetSetting(ctx, settingLastSyncTime, formatTime(t))
}

// AutoSyncEnabled reports the persisted auto-sync preference.
// Defaults to true when unset.
func (db *DB) AutoSyncEnabled(ctx context.Context) (bool, error) {
	value, err := db.GetSetting(ctx, settingAutoSync)
	if err != nil {
		return false, err
	}
	if value == "" {
		return true, nil
	}
	return strconv.ParseBool(value)
}

// SetAutoSyncEnabled persists the auto-sync preference.
func (db *DB) SetAutoSyncEnabled(ctx context.Context, enabled bool) error {
	return db.SetSetting(ctx, settingAutoSync, strconv.FormatBool(enabled))
}

// SyncInterval returns the persisted auto-sync interval, or fallback when unset.
func (db *DB) SyncInterval(ctx context.Context, fallback time.Duration) (time.Duration, error) {
	value, err := db.GetSetting(ctx, settingSyncInterval)
	if err != nil || value == "" {
		return fallback, err
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback, fmt.Errorf("failed to parse sync interval %q: %w", value, err)
	}
	return d, nil
}

// SetSyncInterval persists the auto-sync interval.
func (db *DB) SetSyncInterval(ctx context.Context, d time.Duration) error {
	return db.SetSetting(ctx, settingSyncInterval, d.String())
}
