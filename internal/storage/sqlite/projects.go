package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/montagehq/montage/internal/models"
	"github.com/montagehq/montage/internal/storage"
)

// SaveProject registers a new project.
func (s *Storage) SaveProject(ctx context.Context, project models.Project) error {
	const op = "storage.sqlite.SaveProject"

	stmt, err := s.db.Prepare("INSERT INTO projects(id, title, description, aspect_ratio) VALUES(?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer stmt.Close()

	if _, err := stmt.ExecContext(ctx,
		project.ID,
		project.Title,
		project.Description,
		string(project.AspectRatio),
	); err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			return fmt.Errorf("%s: %w", op, storage.ErrProjectExists)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Project returns project by id.
func (s *Storage) Project(ctx context.Context, id string) (models.Project, error) {
	const op = "storage.sqlite.Project"

	stmt, err := s.db.Prepare("SELECT title, description, aspect_ratio FROM projects WHERE id = ?")
	if err != nil {
		return models.Project{}, fmt.Errorf("%s: %w", op, err)
	}
	defer stmt.Close()

	row := stmt.QueryRowContext(ctx, id)

	var (
		project models.Project
		aspect  string
	)

	if err := row.Scan(&project.Title, &project.Description, &aspect); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Project{}, fmt.Errorf("%s: %w", op, storage.ErrProjectNotFound)
		}

		return models.Project{}, fmt.Errorf("%s: %w", op, err)
	}

	project.ID = id
	project.AspectRatio = models.AspectRatio(aspect)

	return project, nil
}

// AllProjects returns all registered projects.
func (s *Storage) AllProjects(ctx context.Context) ([]models.Project, error) {
	const op = "storage.sqlite.AllProjects"

	stmt, err := s.db.Prepare("SELECT id, title, description, aspect_ratio FROM projects")
	if err != nil {
		return []models.Project{}, fmt.Errorf("%s: %w", op, err)
	}
	defer stmt.Close()

	rows, err := stmt.QueryContext(ctx)
	if err != nil {
		return []models.Project{}, fmt.Errorf("%s: %w", op, err)
	}

	projects := make([]models.Project, 0)
	var (
		project models.Project
		aspect  string
	)
	for rows.Next() {
		if err = rows.Scan(&project.ID, &project.Title, &project.Description, &aspect); err != nil {
			return projects, fmt.Errorf("%s: %w", op, err)
		}
		project.AspectRatio = models.AspectRatio(aspect)

		projects = append(projects, project)
	}

	return projects, nil
}

// DeleteProject deletes project by id.
// Tracks, key frames and media cascade.
func (s *Storage) DeleteProject(ctx context.Context, id string) error {
	const op = "storage.sqlite.DeleteProject"

	stmt, err := s.db.Prepare("DELETE FROM projects WHERE id = ?")
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
		return storage.ErrProjectNotFound
	}

	return nil
}
