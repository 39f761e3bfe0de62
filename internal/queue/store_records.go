package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// AppendArchiveRecord adds rec to the archive log. URL may be empty when no
// object store is configured.
func (s *Store) AppendArchiveRecord(ctx context.Context, rec ArchiveRecord) error {
	if strings.TrimSpace(rec.Type) == "" {
		return errors.New("append archive record: type is required")
	}
	_, err := s.exec(ctx,
		`INSERT INTO archive_records (type, created, processed, lat, lon, url, taken)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.Type, rec.Created, rec.Processed, rec.Lat, rec.Lon, rec.URL, rec.Taken,
	)
	if err != nil {
		return fmt.Errorf("append archive record: %w", err)
	}
	return nil
}

// ListArchiveRecords returns archive records oldest first.
func (s *Store) ListArchiveRecords(ctx context.Context) ([]ArchiveRecord, error) {
	ctx = queryContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT type, created, processed, lat, lon, url, taken FROM archive_records ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list archive records: %w", err)
	}
	defer rows.Close()

	var out []ArchiveRecord
	for rows.Next() {
		var (
			rec      ArchiveRecord
			lat, lon sql.NullFloat64
		)
		if err := rows.Scan(&rec.Type, &rec.Created, &rec.Processed, &lat, &lon, &rec.URL, &rec.Taken); err != nil {
			return nil, fmt.Errorf("scan archive record: %w", err)
		}
		rec.Lat = lat.Float64
		rec.Lon = lon.Float64
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SetStream records folder as the latest published stream for angle.
func (s *Store) SetStream(ctx context.Context, angle, folder string) error {
	if strings.TrimSpace(angle) == "" {
		return errors.New("set stream: angle is required")
	}
	_, err := s.exec(ctx,
		`INSERT INTO stream_registry (angle, folder, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(angle) DO UPDATE SET folder = excluded.folder, updated_at = excluded.updated_at`,
		angle, folder, timestamp(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("set stream %s: %w", angle, err)
	}
	return nil
}

// ListStreams returns the registry sorted by angle.
func (s *Store) ListStreams(ctx context.Context) ([]StreamEntry, error) {
	ctx = queryContext(ctx)
	rows, err := s.db.QueryContext(ctx, `SELECT angle, folder, updated_at FROM stream_registry ORDER BY angle`)
	if err != nil {
		return nil, fmt.Errorf("list streams: %w", err)
	}
	defer rows.Close()

	var out []StreamEntry
	for rows.Next() {
		var (
			entry   StreamEntry
			updated string
		)
		if err := rows.Scan(&entry.Angle, &entry.Folder, &updated); err != nil {
			return nil, fmt.Errorf("scan stream: %w", err)
		}
		if ts, ok := parseTimestamp(updated); ok {
			entry.UpdatedAt = ts
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}
