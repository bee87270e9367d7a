package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"vibe-transcriber-service/internal/models"
)

// Ack is the datastore's acknowledgment of an upsert.
type Ack struct {
	// Confirmed is false when the write reported success without confirming
	// the affected row.
	Confirmed bool
}

// UpsertTranscript writes the transcript text for rec's key. Existing local
// date/time values are kept when rec does not carry them.
func (s *Store) UpsertTranscript(ctx context.Context, rec models.TranscriptRecord) (Ack, error) {
	now := s.now()
	args := []any{
		rec.DeviceID,
		models.FormatTimestamp(rec.RecordedAt),
		nullString(rec.LocalDate),
		nullString(rec.LocalTime),
		nullString(rec.TranscriptText),
		now,
		now,
	}

	if s.dialect.returning {
		var deviceID string
		err := s.db.QueryRowContext(ctx, s.dialect.upsertTranscript, args...).Scan(&deviceID)
		if errors.Is(err, sql.ErrNoRows) {
			return Ack{}, nil
		}
		if err != nil {
			return Ack{}, fmt.Errorf("upsert transcript: %w", err)
		}
		return Ack{Confirmed: deviceID == rec.DeviceID}, nil
	}

	res, err := s.db.ExecContext(ctx, s.dialect.upsertTranscript, args...)
	if err != nil {
		return Ack{}, fmt.Errorf("upsert transcript: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Ack{}, nil
	}
	return Ack{Confirmed: n > 0}, nil
}

// GetTranscript reads the record at key.
func (s *Store) GetTranscript(ctx context.Context, key models.RecordKey) (*models.TranscriptRecord, error) {
	var (
		rec                  models.TranscriptRecord
		recordedAt           string
		localDate, localTime sql.NullString
		text                 sql.NullString
		vibe, behavior, emo  sql.NullString
		createdAt, updatedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT device_id, recorded_at, local_date, local_time, vibe_transcriber_result,
		        vibe_status, behavior_status, emotion_status, created_at, updated_at
		 FROM spot_features WHERE device_id = ? AND recorded_at = ?`,
		key.DeviceID, models.FormatTimestamp(key.RecordedAt),
	).Scan(&rec.DeviceID, &recordedAt, &localDate, &localTime, &text,
		&vibe, &behavior, &emo, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transcript: %w", err)
	}

	rec.RecordedAt, _ = models.ParseTimestamp(recordedAt)
	rec.CreatedAt, _ = models.ParseTimestamp(createdAt)
	rec.UpdatedAt, _ = models.ParseTimestamp(updatedAt)
	rec.LocalDate = stringPtr(localDate)
	rec.LocalTime = stringPtr(localTime)
	rec.TranscriptText = stringPtr(text)
	rec.StatusFields = make(map[models.FeatureType]models.ProcessingStatus)
	for ft, v := range map[models.FeatureType]sql.NullString{
		models.FeatureVibe:     vibe,
		models.FeatureBehavior: behavior,
		models.FeatureEmotion:  emo,
	} {
		if v.Valid {
			rec.StatusFields[ft] = models.ProcessingStatus(v.String)
		}
	}
	return &rec, nil
}

// SetStatus updates the feature status of the record at key. When no record
// exists yet, one carrying only the status and timestamps is created. The
// insert is guarded against a concurrent creator of the same key.
func (s *Store) SetStatus(ctx context.Context, key models.RecordKey, feature models.FeatureType, status models.ProcessingStatus) error {
	if !feature.Valid() {
		return fmt.Errorf("set status: unknown feature type %q", feature)
	}
	if !status.Valid() {
		return fmt.Errorf("set status: unknown status %q", status)
	}
	column := feature.StatusColumn()
	recordedAt := models.FormatTimestamp(key.RecordedAt)
	now := s.now()

	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE spot_features SET %s = ?, updated_at = ? WHERE device_id = ? AND recorded_at = ?`, column),
		string(status), now, key.DeviceID, recordedAt)
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.log.Debug().
			Str("key", key.String()).
			Str("field", column).
			Str("status", string(status)).
			Msg("Status updated")
		return nil
	}

	if _, err := s.db.ExecContext(ctx, s.dialect.insertStatus(column),
		key.DeviceID, recordedAt, string(status), now, now); err != nil {
		return fmt.Errorf("set status: insert: %w", err)
	}
	s.log.Debug().
		Str("key", key.String()).
		Str("field", column).
		Str("status", string(status)).
		Msg("Status record created")
	return nil
}
