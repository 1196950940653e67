package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/montagehq/montage/internal/models"
	"github.com/montagehq/montage/internal/storage"
)

/*
// All time values are stored in milliseconds,
// the precision of the editing protocol.
*/

// SaveKeyFrame saves a key frame with its caller-supplied id, so
// undo can restore a deleted clip under its original id.
func (s *Storage) SaveKeyFrame(ctx context.Context, frame models.KeyFrame) error {
	const op = "storage.sqlite.SaveKeyFrame"

	data, err := json.Marshal(frame.Data)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	stmt, err := s.db.Prepare("INSERT INTO key_frames(id, track_id, timestamp_ms, duration_ms, data) VALUES(?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer stmt.Close()

	if _, err := stmt.ExecContext(ctx,
		frame.ID,
		frame.TrackID,
		frame.Timestamp.Milliseconds(),
		frame.Duration.Milliseconds(),
		string(data),
	); err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			return fmt.Errorf("%s: %w", op, storage.ErrKeyFrameExists)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// KeyFrame returns key frame by id.
func (s *Storage) KeyFrame(ctx context.Context, id string) (models.KeyFrame, error) {
	const op = "storage.sqlite.KeyFrame"

	stmt, err := s.db.Prepare("SELECT track_id, timestamp_ms, duration_ms, data FROM key_frames WHERE id = ?")
	if err != nil {
		return models.KeyFrame{}, fmt.Errorf("%s: %w", op, err)
	}
	defer stmt.Close()

	var (
		frame       models.KeyFrame
		tsMs, durMs int64
		data        string
	)

	row := stmt.QueryRowContext(ctx, id)
	if err := row.Scan(&frame.TrackID, &tsMs, &durMs, &data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.KeyFrame{}, fmt.Errorf("%s: %w", op, storage.ErrKeyFrameNotFound)
		}

		return models.KeyFrame{}, fmt.Errorf("%s: %w", op, err)
	}

	frame.ID = id
	frame.Timestamp = time.Duration(tsMs) * time.Millisecond
	frame.Duration = time.Duration(durMs) * time.Millisecond
	if err := json.Unmarshal([]byte(data), &frame.Data); err != nil {
		return models.KeyFrame{}, fmt.Errorf("%s: %w", op, err)
	}

	return frame, nil
}

// KeyFramesByTrack returns track clips ordered by timestamp.
func (s *Storage) KeyFramesByTrack(ctx context.Context, trackID string) ([]models.KeyFrame, error) {
	const op = "storage.sqlite.KeyFramesByTrack"

	stmt, err := s.db.Prepare(`
		SELECT id, timestamp_ms, duration_ms, data
		FROM key_frames
		WHERE track_id = ?
		ORDER BY timestamp_ms
	`)
	if err != nil {
		return []models.KeyFrame{}, fmt.Errorf("%s: %w", op, err)
	}
	defer stmt.Close()

	rows, err := stmt.QueryContext(ctx, trackID)
	if err != nil {
		return []models.KeyFrame{}, fmt.Errorf("%s: %w", op, err)
	}

	frames := make([]models.KeyFrame, 0)
	var (
		frame       models.KeyFrame
		tsMs, durMs int64
		data        string
	)
	for rows.Next() {
		if err = rows.Scan(&frame.ID, &tsMs, &durMs, &data); err != nil {
			return frames, fmt.Errorf("%s: %w", op, err)
		}
		frame.TrackID = trackID
		frame.Timestamp = time.Duration(tsMs) * time.Millisecond
		frame.Duration = time.Duration(durMs) * time.Millisecond
		if err := json.Unmarshal([]byte(data), &frame.Data); err != nil {
			return frames, fmt.Errorf("%s: %w", op, err)
		}

		frames = append(frames, frame)
	}

	return frames, nil
}

// KeyFramesByProject returns all project clips across tracks,
// ordered by timestamp.
func (s *Storage) KeyFramesByProject(ctx context.Context, projectID string) ([]models.KeyFrame, error) {
	const op = "storage.sqlite.KeyFramesByProject"

	stmt, err := s.db.Prepare(`
		SELECT k.id, k.track_id, k.timestamp_ms, k.duration_ms, k.data
		FROM key_frames k
		JOIN tracks t ON t.id = k.track_id
		WHERE t.project_id = ?
		ORDER BY k.timestamp_ms
	`)
	if err != nil {
		return []models.KeyFrame{}, fmt.Errorf("%s: %w", op, err)
	}
	defer stmt.Close()

	rows, err := stmt.QueryContext(ctx, projectID)
	if err != nil {
		return []models.KeyFrame{}, fmt.Errorf("%s: %w", op, err)
	}

	frames := make([]models.KeyFrame, 0)
	var (
		frame       models.KeyFrame
		tsMs, durMs int64
		data        string
	)
	for rows.Next() {
		if err = rows.Scan(&frame.ID, &frame.TrackID, &tsMs, &durMs, &data); err != nil {
			return frames, fmt.Errorf("%s: %w", op, err)
		}
		frame.Timestamp = time.Duration(tsMs) * time.Millisecond
		frame.Duration = time.Duration(durMs) * time.Millisecond
		if err := json.Unmarshal([]byte(data), &frame.Data); err != nil {
			return frames, fmt.Errorf("%s: %w", op, err)
		}

		frames = append(frames, frame)
	}

	return frames, nil
}

// UpdateKeyFrameTiming updates all fields referred to time.
func (s *Storage) UpdateKeyFrameTiming(ctx context.Context, id string, timestamp, duration time.Duration) error {
	const op = "storage.sqlite.UpdateKeyFrameTiming"

	stmt, err := s.db.Prepare("UPDATE key_frames SET timestamp_ms=?, duration_ms=? WHERE id=?")
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer stmt.Close()

	res, err := stmt.ExecContext(ctx, timestamp.Milliseconds(), duration.Milliseconds(), id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	affectedRows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affectedRows == 0 {
		return storage.ErrKeyFrameNotFound
	}

	return nil
}

// UpdateKeyFrame overwrites all mutable key frame fields.
func (s *Storage) UpdateKeyFrame(ctx context.Context, frame models.KeyFrame) error {
	const op = "storage.sqlite.UpdateKeyFrame"

	data, err := json.Marshal(frame.Data)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	stmt, err := s.db.Prepare("UPDATE key_frames SET track_id=?, timestamp_ms=?, duration_ms=?, data=? WHERE id=?")
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer stmt.Close()

	res, err := stmt.ExecContext(ctx,
		frame.TrackID,
		frame.Timestamp.Milliseconds(),
		frame.Duration.Milliseconds(),
		string(data),
		frame.ID,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	affectedRows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affectedRows == 0 {
		return storage.ErrKeyFrameNotFound
	}

	return nil
}

// DeleteKeyFrame deletes key frame by id.
func (s *Storage) DeleteKeyFrame(ctx context.Context, id string) error {
	const op = "storage.sqlite.DeleteKeyFrame"

	stmt, err := s.db.Prepare("DELETE FROM key_frames WHERE id = ?")
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer stmt.Close()

	res, err := stmt.ExecContext(ctx, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	affectedRows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affectedRows == 0 {
		return storage.ErrKeyFrameNotFound
	}

	return nil
}

// ShiftKeyFrames moves every clip on the track starting at or after
// `from` by delta (ripple). Negative delta closes a gap.
func (s *Storage) ShiftKeyFrames(ctx context.Context, trackID string, from time.Duration, delta time.Duration) error {
	const op = "storage.sqlite.ShiftKeyFrames"

	stmt, err := s.db.Prepare(`
		UPDATE key_frames
		SET timestamp_ms = timestamp_ms + ?
		WHERE track_id = ? AND timestamp_ms >= ?
	`)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer stmt.Close()

	if _, err := stmt.ExecContext(ctx,
		delta.Milliseconds(),
		trackID,
		from.Milliseconds(),
	); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
