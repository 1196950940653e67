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

// SaveMedia saves an asset record produced by the generation or
// upload pipeline.
func (s *Storage) SaveMedia(ctx context.Context, media models.MediaItem) error {
	const op = "storage.sqlite.SaveMedia"

	metadata, err := json.Marshal(media.Metadata)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	stmt, err := s.db.Prepare(`
		INSERT INTO media(id, project_id, kind, media_type, status, url, prompt, created_mus, metadata)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer stmt.Close()

	if _, err := stmt.ExecContext(ctx,
		media.ID,
		media.ProjectID,
		string(media.Kind),
		string(media.MediaType),
		string(media.Status),
		media.URL,
		media.Prompt,
		media.CreatedAt.UnixMicro(),
		string(metadata),
	); err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			return fmt.Errorf("%s: %w", op, storage.ErrMediaExists)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Media returns asset record by id.
func (s *Storage) Media(ctx context.Context, id string) (models.MediaItem, error) {
	const op = "storage.sqlite.Media"

	stmt, err := s.db.Prepare(`
		SELECT project_id, kind, media_type, status, url, prompt, created_mus, metadata
		FROM media WHERE id = ?
	`)
	if err != nil {
		return models.MediaItem{}, fmt.Errorf("%s: %w", op, err)
	}
	defer stmt.Close()

	var (
		media                   models.MediaItem
		kind, mediaType, status string
		createdMuS              int64
		metadata                string
	)

	row := stmt.QueryRowContext(ctx, id)
	if err := row.Scan(
		&media.ProjectID,
		&kind,
		&mediaType,
		&status,
		&media.URL,
		&media.Prompt,
		&createdMuS,
		&metadata,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.MediaItem{}, fmt.Errorf("%s: %w", op, storage.ErrMediaNotFound)
		}

		return models.MediaItem{}, fmt.Errorf("%s: %w", op, err)
	}

	media.ID = id
	media.Kind = models.MediaKind(kind)
	media.MediaType = models.MediaType(mediaType)
	media.Status = models.MediaStatus(status)
	media.CreatedAt = time.UnixMicro(createdMuS)
	if err := json.Unmarshal([]byte(metadata), &media.Metadata); err != nil {
		return models.MediaItem{}, fmt.Errorf("%s: %w", op, err)
	}

	return media, nil
}

// MediaByProject returns all project assets, newest first.
func (s *Storage) MediaByProject(ctx context.Context, projectID string) ([]models.MediaItem, error) {
	const op = "storage.sqlite.MediaByProject"

	stmt, err := s.db.Prepare(`
		SELECT id, kind, media_type, status, url, prompt, created_mus, metadata
		FROM media
		WHERE project_id = ?
		ORDER BY created_mus DESC
	`)
	if err != nil {
		return []models.MediaItem{}, fmt.Errorf("%s: %w", op, err)
	}
	defer stmt.Close()

	rows, err := stmt.QueryContext(ctx, projectID)
	if err != nil {
		return []models.MediaItem{}, fmt.Errorf("%s: %w", op, err)
	}

	items := make([]models.MediaItem, 0)
	var (
		media                   models.MediaItem
		kind, mediaType, status string
		createdMuS              int64
		metadata                string
	)
	for rows.Next() {
		if err = rows.Scan(
			&media.ID,
			&kind,
			&mediaType,
			&status,
			&media.URL,
			&media.Prompt,
			&createdMuS,
			&metadata,
		); err != nil {
			return items, fmt.Errorf("%s: %w", op, err)
		}
		media.ProjectID = projectID
		media.Kind = models.MediaKind(kind)
		media.MediaType = models.MediaType(mediaType)
		media.Status = models.MediaStatus(status)
		media.CreatedAt = time.UnixMicro(createdMuS)
		media.Metadata = models.MediaMetadata{}
		if err := json.Unmarshal([]byte(metadata), &media.Metadata); err != nil {
			return items, fmt.Errorf("%s: %w", op, err)
		}

		items = append(items, media)
	}

	return items, nil
}

// UpdateMedia updates the mutable part of an asset record: the
// pipeline status, the delivery url and the probed metadata.
func (s *Storage) UpdateMedia(ctx context.Context, media models.MediaItem) error {
	const op = "storage.sqlite.UpdateMedia"

	metadata, err := json.Marshal(media.Metadata)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	stmt, err := s.db.Prepare("UPDATE media SET status = ?, url = ?, metadata = ? WHERE id = ?")
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer stmt.Close()

	res, err := stmt.ExecContext(ctx,
		string(media.Status),
		media.URL,
		string(metadata),
		media.ID,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	affectedRows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affectedRows == 0 {
		return storage.ErrMediaNotFound
	}

	return nil
}

// DeleteMedia deletes asset record by id.
func (s *Storage) DeleteMedia(ctx context.Context, id string) error {
	const op = "storage.sqlite.DeleteMedia"

	stmt, err := s.db.Prepare("DELETE FROM media WHERE id = ?")
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
		return storage.ErrMediaNotFound
	}

	return nil
}
