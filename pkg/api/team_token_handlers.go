// Package api exposes the dashboard's HTTP surface for team tokens and
// capability share links. Every route is guarded by the access boundary;
// handlers only branch on its decision.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/shipview/shipview/pkg/access"
	"github.com/shipview/shipview/pkg/httputil"
	"github.com/shipview/shipview/pkg/observability"
	"github.com/shipview/shipview/pkg/teamtoken"
)

// TokenStore is the team token surface the handlers need. Satisfied by both
// teamtoken.Store and teamtoken.CachedStore.
type TokenStore interface {
	Generate(ctx context.Context, teamID int64) (string, error)
	CurrentToken(ctx context.Context, teamID int64) (string, error)
	History(ctx context.Context, teamID int64) ([]teamtoken.TeamToken, error)
}

// TeamTokenHandlers serves the team token management routes
type TeamTokenHandlers struct {
	tokens     TokenStore
	middleware *access.Middleware
	logger     *observability.Logger
}

// NewTeamTokenHandlers creates the team token handlers
func NewTeamTokenHandlers(tokens TokenStore, middleware *access.Middleware, logger *observability.Logger) *TeamTokenHandlers {
	return &TeamTokenHandlers{
		tokens:     tokens,
		middleware: middleware,
		logger:     logger,
	}
}

// RegisterRoutes registers the team token routes
func (h *TeamTokenHandlers) RegisterRoutes(router *mux.Router) {
	router.Handle("/team-token/{teamID:[0-9]+}",
		h.middleware.ProtectFunc(teamResource, h.getTeamToken)).Methods("GET")
	router.Handle("/team-token/{teamID:[0-9]+}",
		h.middleware.ProtectFunc(teamResource, h.generateTeamToken)).Methods("POST")
	router.Handle("/team-token/{teamID:[0-9]+}/history",
		h.middleware.ProtectFunc(teamResource, h.teamTokenHistory)).Methods("GET")
}

// teamResource builds the boundary descriptor for team-scoped routes
func teamResource(r *http.Request) (access.Resource, error) {
	teamID, err := httputil.ParsePathInt64(r, "teamID")
	if err != nil {
		return access.Resource{}, err
	}
	return access.Resource{Kind: access.KindTeam, TeamID: teamID}, nil
}

// getTeamToken handles GET /team-token/{teamID}. A team that has never
// generated a token gets a 404, not an empty token.
func (h *TeamTokenHandlers) getTeamToken(w http.ResponseWriter, r *http.Request) {
	teamID, ok := httputil.ParsePathInt64OrError(w, r, "teamID")
	if !ok {
		return
	}

	token, err := h.tokens.CurrentToken(r.Context(), teamID)
	if errors.Is(err, teamtoken.ErrNoToken) {
		httputil.WriteNotFoundError(w, "team has no token")
		return
	}
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to read team token")
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"team_id": teamID,
		"token":   token,
	})
}

// generateTeamToken handles POST /team-token/{teamID}. The new token
// supersedes any prior token for the team immediately.
func (h *TeamTokenHandlers) generateTeamToken(w http.ResponseWriter, r *http.Request) {
	teamID, ok := httputil.ParsePathInt64OrError(w, r, "teamID")
	if !ok {
		return
	}

	token, err := h.tokens.Generate(r.Context(), teamID)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to generate team token")
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteCreated(w, map[string]interface{}{
		"team_id": teamID,
		"token":   token,
	})
}

// teamTokenHistory handles GET /team-token/{teamID}/history, returning the
// full audit trail newest first. Superseded tokens are shown for auditing;
// none of them validate.
func (h *TeamTokenHandlers) teamTokenHistory(w http.ResponseWriter, r *http.Request) {
	teamID, ok := httputil.ParsePathInt64OrError(w, r, "teamID")
	if !ok {
		return
	}

	history, err := h.tokens.History(r.Context(), teamID)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to read team token history")
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"team_id": teamID,
		"tokens":  history,
	})
}
