package teamtoken

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shipview/shipview/pkg/observability"
)

// TeamToken represents one row of the team token audit trail
type TeamToken struct {
	ID        int64     `json:"id"`
	TeamID    int64     `json:"team_id"`
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists team tokens in PostgreSQL. Rows are only ever inserted;
// the newest row per team is the single current token.
type Store struct {
	db      *sql.DB
	metrics *observability.Metrics
}

// NewStore creates a team token store. metrics may be nil.
func NewStore(db *sql.DB, metrics *observability.Metrics) *Store {
	return &Store{
		db:      db,
		metrics: metrics,
	}
}

// Generate creates a new token for the team and inserts it. Prior rows are
// left untouched; they are superseded by timestamp ordering alone.
func (s *Store) Generate(ctx context.Context, teamID int64) (string, error) {
	token, err := newToken()
	if err != nil {
		return "", err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO team_tokens (team_id, token, created_at)
		VALUES ($1, $2, NOW())
	`, teamID, token)
	if err != nil {
		return "", fmt.Errorf("failed to insert team token: %w", err)
	}

	if s.metrics != nil {
		s.metrics.TeamTokensGeneratedTotal.Inc()
	}

	return token, nil
}

// Validate resolves a presented token to its team id. Only the newest token
// per team matches; superseded tokens fail with ErrInvalidToken. The format
// check runs first so garbage input never touches storage.
func (s *Store) Validate(ctx context.Context, token string) (int64, error) {
	if err := CheckFormat(token); err != nil {
		s.countValidation("bad_format")
		return 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT t.team_id
		FROM team_tokens t
		JOIN (
			SELECT team_id, MAX(created_at) AS created_at
			FROM team_tokens
			GROUP BY team_id
		) latest ON t.team_id = latest.team_id AND t.created_at = latest.created_at
		WHERE t.token = $1
	`, token)
	if err != nil {
		return 0, fmt.Errorf("failed to query team tokens: %w", err)
	}
	defer rows.Close()

	var teamIDs []int64
	for rows.Next() {
		var teamID int64
		if err := rows.Scan(&teamID); err != nil {
			return 0, fmt.Errorf("failed to scan team token row: %w", err)
		}
		teamIDs = append(teamIDs, teamID)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to read team token rows: %w", err)
	}

	// More than one match should be structurally impossible given the
	// per-team grouping; treat it as an invariant violation, not a hit.
	if len(teamIDs) != 1 {
		s.countValidation("rejected")
		return 0, ErrInvalidToken
	}

	s.countValidation("ok")
	return teamIDs[0], nil
}

// CurrentToken returns the current token for a team, or ErrNoToken when the
// team has never generated one.
func (s *Store) CurrentToken(ctx context.Context, teamID int64) (string, error) {
	var token string
	err := s.db.QueryRowContext(ctx, `
		SELECT token
		FROM team_tokens
		WHERE team_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, teamID).Scan(&token)
	if err == sql.ErrNoRows {
		return "", ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("failed to query current team token: %w", err)
	}
	return token, nil
}

// History returns all tokens ever generated for a team, newest first.
func (s *Store) History(ctx context.Context, teamID int64) ([]TeamToken, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, team_id, token, created_at
		FROM team_tokens
		WHERE team_id = $1
		ORDER BY created_at DESC, id DESC
	`, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to query team token history: %w", err)
	}
	defer rows.Close()

	var tokens []TeamToken
	for rows.Next() {
		var t TeamToken
		if err := rows.Scan(&t.ID, &t.TeamID, &t.Token, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan team token row: %w", err)
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

func (s *Store) countValidation(result string) {
	if s.metrics != nil {
		s.metrics.TeamTokenValidationsTotal.WithLabelValues(result).Inc()
	}
}
