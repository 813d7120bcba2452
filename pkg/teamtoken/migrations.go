package teamtoken

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all team token migrations
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create team_tokens table",
			SQL: `
				CREATE TABLE IF NOT EXISTS team_tokens (
					id BIGSERIAL PRIMARY KEY,
					team_id BIGINT NOT NULL,
					token VARCHAR(7) NOT NULL,
					created_at TIMESTAMP(3) NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_team_tokens_team_id ON team_tokens(team_id);
				CREATE INDEX IF NOT EXISTS idx_team_tokens_token ON team_tokens(token);
			`,
		},
	}
}

// RunMigrations applies all pending team token migrations
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS team_token_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	for _, m := range GetMigrations() {
		var exists bool
		err := db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM team_token_migrations WHERE version = $1)`,
			m.Version,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check migration %d: %w", m.Version, err)
		}
		if exists {
			continue
		}

		if _, err := db.ExecContext(ctx, m.SQL); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Description, err)
		}
		if _, err := db.ExecContext(ctx,
			`INSERT INTO team_token_migrations (version, description) VALUES ($1, $2)`,
			m.Version, m.Description,
		); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
		}
	}

	return nil
}
