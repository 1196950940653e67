package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/montagehq/montage/internal/models"
	"github.com/montagehq/montage/internal/storage"
)

// SaveTrack registers a new track.
func (s *Storage) SaveTrack(ctx context.Context, track models.Track) error {
	const op = "storage.sqlite.SaveTrack"

	stmt, err := s.db.Prepare(`
		INSERT INTO tracks(id, project_id, type, label, locked, muted, solo, volume, created_mus)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer stmt.Close()

	if _, err := stmt.ExecContext(ctx,
		track.ID,
		track.ProjectID,
		string(track.Type),
		track.Label,
		track.Locked,
		track.Muted,
		track.Solo,
		track.Volume,
		time.Now().UnixMicro(),
	); err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			return fmt.Errorf("%s: %w", op, storage.ErrTrackExists)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Track returns track by id.
func (s *Storage) Track(ctx context.Context, id string) (models.Track, error) {
	const op = "storage.sqlite.Track"

	stmt, err := s.db.Prepare("SELECT project_id, type, label, locked, muted, solo, volume FROM tracks WHERE id = ?")
	if err != nil {
		return models.Track{}, fmt.Errorf("%s: %w", op, err)
	}
	defer stmt.Close()

	row := stmt.QueryRowContext(ctx, id)

	var (
		track     models.Track
		trackType string
	)

	if err := row.Scan(
		&track.ProjectID,
		&trackType,
		&track.Label,
		&track.Locked,
		&track.Muted,
		&track.Solo,
		&track.Volume,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Track{}, fmt.Errorf("%s: %w", op, storage.ErrTrackNotFound)
		}

		return models.Track{}, fmt.Errorf("%s: %w", op, err)
	}

	track.ID = id
	track.Type = models.TrackType(trackType)

	return track, nil
}

// TracksByProject returns project tracks ordered by type priority
// (video, music, voiceover), creation order within a type.
func (s *Storage) TracksByProject(ctx context.Context, projectID string) ([]models.Track, error) {
	const op = "storage.sqlite.TracksByProject"

	stmt, err := s.db.Prepare(`
		SELECT id, type, label, locked, muted, solo, volume
		FROM tracks
		WHERE project_id = ?
		ORDER BY
			CASE type
				WHEN 'video' THEN 1
				WHEN 'music' THEN 2
				WHEN 'voiceover' THEN 3
			END,
			created_mus
	`)
	if err != nil {
		return []models.Track{}, fmt.Errorf("%s: %w", op, err)
	}
	defer stmt.Close()

	rows, err := stmt.QueryContext(ctx, projectID)
	if err != nil {
		return []models.Track{}, fmt.Errorf("%s: %w", op, err)
	}

	tracks := make([]models.Track, 0)
	var (
		track     models.Track
		trackType string
	)
	for rows.Next() {
		if err = rows.Scan(
			&track.ID,
			&trackType,
			&track.Label,
			&track.Locked,
			&track.Muted,
			&track.Solo,
			&track.Volume,
		); err != nil {
			return tracks, fmt.Errorf("%s: %w", op, err)
		}
		track.ProjectID = projectID
		track.Type = models.TrackType(trackType)

		tracks = append(tracks, track)
	}

	return tracks, nil
}

// UpdateTrack updates mutable track fields.
func (s *Storage) UpdateTrack(ctx context.Context, track models.Track) error {
	const op = "storage.sqlite.UpdateTrack"

	stmt, err := s.db.Prepare("UPDATE tracks SET label=?, locked=?, muted=?, solo=?, volume=? WHERE id=?")
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer stmt.Close()

	res, err := stmt.ExecContext(ctx,
		track.Label,
		track.Locked,
		track.Muted,
		track.Solo,
		track.Volume,
		track.ID,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	affectedRows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affectedRows == 0 {
		return storage.ErrTrackNotFound
	}

	return nil
}

// DeleteTrack deletes track by id. Key frames cascade.
func (s *Storage) DeleteTrack(ctx context.Context, id string) error {
	const op = "storage.sqlite.DeleteTrack"

	stmt, err := s.db.Prepare("DELETE FROM tracks WHERE id = ?")
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
		return storage.ErrTrackNotFound
	}

	return nil
}
