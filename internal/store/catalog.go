package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"vibe-transcriber-service/internal/models"
)

const catalogColumns = `file_path, device_id, recorded_at, local_date, local_time, time_block`

// FindByFileRef looks up the catalog entry for one storage key.
func (s *Store) FindByFileRef(ctx context.Context, fileRef string) (*models.CatalogEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+catalogColumns+` FROM audio_files WHERE file_path = ?`, fileRef)

	entry, err := scanCatalogEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find by file ref: %w", err)
	}
	return entry, nil
}

// FindByDevice returns every catalog entry of deviceID on localDate, ordered
// by recorded_at. A non-empty timeBlocks restricts the result to those blocks.
func (s *Store) FindByDevice(ctx context.Context, deviceID, localDate string, timeBlocks []string) ([]models.CatalogEntry, error) {
	query := `SELECT ` + catalogColumns + ` FROM audio_files WHERE device_id = ? AND local_date = ?`
	args := []any{deviceID, localDate}
	if len(timeBlocks) > 0 {
		query += ` AND time_block IN (?` + strings.Repeat(`, ?`, len(timeBlocks)-1) + `)`
		for _, tb := range timeBlocks {
			args = append(args, tb)
		}
	}
	query += ` ORDER BY recorded_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find by device: %w", err)
	}
	defer rows.Close()

	var entries []models.CatalogEntry
	for rows.Next() {
		entry, err := scanCatalogEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("find by device: %w", err)
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

// LocalTimestamps returns the local date and time recorded in the catalog
// for key. Either value may be nil.
func (s *Store) LocalTimestamps(ctx context.Context, key models.RecordKey) (localDate, localTime *string, err error) {
	var d, t sql.NullString
	err = s.db.QueryRowContext(ctx,
		`SELECT local_date, local_time FROM audio_files WHERE device_id = ? AND recorded_at = ? LIMIT 1`,
		key.DeviceID, models.FormatTimestamp(key.RecordedAt)).Scan(&d, &t)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("local timestamps: %w", err)
	}
	return stringPtr(d), stringPtr(t), nil
}

// UpsertCatalogEntry inserts or replaces one catalog row.
func (s *Store) UpsertCatalogEntry(ctx context.Context, entry models.CatalogEntry) error {
	_, err := s.db.ExecContext(ctx, s.dialect.upsertCatalog,
		entry.FileRef,
		entry.DeviceID,
		models.FormatTimestamp(entry.RecordedAt),
		nullString(entry.LocalDate),
		nullString(entry.LocalTime),
		entry.TimeBlock,
	)
	if err != nil {
		return fmt.Errorf("upsert catalog entry: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCatalogEntry(row rowScanner) (*models.CatalogEntry, error) {
	var (
		e          models.CatalogEntry
		recordedAt string
		localDate  sql.NullString
		localTime  sql.NullString
		timeBlock  sql.NullString
	)
	if err := row.Scan(&e.FileRef, &e.DeviceID, &recordedAt, &localDate, &localTime, &timeBlock); err != nil {
		return nil, err
	}
	ts, err := models.ParseTimestamp(recordedAt)
	if err != nil {
		return nil, err
	}
	e.RecordedAt = ts
	e.LocalDate = stringPtr(localDate)
	e.LocalTime = stringPtr(localTime)
	e.TimeBlock = timeBlock.String
	return &e, nil
}
