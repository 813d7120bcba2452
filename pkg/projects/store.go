// Package projects keeps the mirrored project metadata the dashboard needs
// locally: team ownership and the public ("open") flag. The mirror is
// written by the source-control sync (an external collaborator) and read by
// the authorization policy.
package projects

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when no project with the given id is mirrored
var ErrNotFound = errors.New("project not found")

// Project is the mirrored metadata for one project
type Project struct {
	ID       int64     `json:"id"`
	TeamID   int64     `json:"team_id"`
	Name     string    `json:"name"`
	Public   bool      `json:"public"`
	SyncedAt time.Time `json:"synced_at"`
}

// Store persists mirrored project metadata in PostgreSQL
type Store struct {
	db *sql.DB
}

// NewStore creates a project metadata store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Get returns the mirrored metadata for a project
func (s *Store) Get(ctx context.Context, projectID int64) (*Project, error) {
	p := &Project{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, team_id, name, public, synced_at
		FROM projects
		WHERE id = $1
	`, projectID).Scan(&p.ID, &p.TeamID, &p.Name, &p.Public, &p.SyncedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query project: %w", err)
	}
	return p, nil
}

// Upsert writes mirrored metadata for a project, replacing any prior row
func (s *Store) Upsert(ctx context.Context, p *Project) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, team_id, name, public, synced_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (id)
		DO UPDATE SET team_id = EXCLUDED.team_id, name = EXCLUDED.name,
		              public = EXCLUDED.public, synced_at = EXCLUDED.synced_at
	`, p.ID, p.TeamID, p.Name, p.Public)
	if err != nil {
		return fmt.Errorf("failed to upsert project: %w", err)
	}
	return nil
}

// ListByTeam returns all mirrored projects owned by a team
func (s *Store) ListByTeam(ctx context.Context, teamID int64) ([]*Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, team_id, name, public, synced_at
		FROM projects
		WHERE team_id = $1
		ORDER BY id
	`, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to query team projects: %w", err)
	}
	defer rows.Close()

	var result []*Project
	for rows.Next() {
		p := &Project{}
		if err := rows.Scan(&p.ID, &p.TeamID, &p.Name, &p.Public, &p.SyncedAt); err != nil {
			return nil, fmt.Errorf("failed to scan project row: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// GetMigrations returns the project mirror migrations
func GetMigrations() []string {
	return []string{`
		CREATE TABLE IF NOT EXISTS projects (
			id BIGINT PRIMARY KEY,
			team_id BIGINT NOT NULL,
			name VARCHAR(255) NOT NULL,
			public BOOLEAN NOT NULL DEFAULT FALSE,
			synced_at TIMESTAMP NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_projects_team_id ON projects(team_id);
	`}
}

// RunMigrations applies the project mirror migrations
func RunMigrations(ctx context.Context, db *sql.DB) error {
	for _, stmt := range GetMigrations() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("project migration failed: %w", err)
		}
	}
	return nil
}
