package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/shipview/shipview/pkg/access"
	"github.com/shipview/shipview/pkg/httputil"
	"github.com/shipview/shipview/pkg/observability"
	"github.com/shipview/shipview/pkg/projects"
)

// ProjectWriter writes mirrored project metadata. Satisfied by both
// projects.Store and projects.CachedStore.
type ProjectWriter interface {
	Upsert(ctx context.Context, p *projects.Project) error
}

// ProjectLister reads a team's mirrored projects
type ProjectLister interface {
	ListByTeam(ctx context.Context, teamID int64) ([]*projects.Project, error)
}

// ProjectHandlers serves the project mirror routes. Writes come from the
// source-control sync and are restricted to admins; the open flag they set
// gates unauthenticated preview access.
type ProjectHandlers struct {
	writes     ProjectWriter
	reads      ProjectLister
	middleware *access.Middleware
	logger     *observability.Logger
}

// NewProjectHandlers creates the project mirror handlers
func NewProjectHandlers(writes ProjectWriter, reads ProjectLister, middleware *access.Middleware, logger *observability.Logger) *ProjectHandlers {
	return &ProjectHandlers{
		writes:     writes,
		reads:      reads,
		middleware: middleware,
		logger:     logger,
	}
}

// RegisterRoutes registers the project mirror routes
func (h *ProjectHandlers) RegisterRoutes(router *mux.Router) {
	router.Handle("/projects/{projectID:[0-9]+}",
		h.middleware.ProtectFunc(projectLinkResource, h.upsertProject)).Methods("PUT")
	router.Handle("/teams/{teamID:[0-9]+}/projects",
		h.middleware.ProtectFunc(teamResource, h.listTeamProjects)).Methods("GET")
}

// upsertProject handles PUT /projects/{projectID}. The boundary admits any
// subject who can see the project; mirror writes additionally require
// admin, since the public flag they carry disables authentication.
func (h *ProjectHandlers) upsertProject(w http.ResponseWriter, r *http.Request) {
	decision := access.DecisionFrom(r)
	if decision == nil || !decision.IsAdmin {
		httputil.WriteForbidden(w, "mirror writes require admin")
		return
	}

	projectID, ok := httputil.ParsePathInt64OrError(w, r, "projectID")
	if !ok {
		return
	}

	var body struct {
		TeamID int64  `json:"team_id"`
		Name   string `json:"name"`
		Public bool   `json:"public"`
	}
	if !httputil.ParseJSONOrError(w, r, &body) {
		return
	}
	if body.TeamID == 0 || body.Name == "" {
		httputil.WriteBadRequest(w, "team_id and name are required")
		return
	}

	err := h.writes.Upsert(r.Context(), &projects.Project{
		ID:     projectID,
		TeamID: body.TeamID,
		Name:   body.Name,
		Public: body.Public,
	})
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to upsert project mirror")
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}

// listTeamProjects handles GET /teams/{teamID}/projects
func (h *ProjectHandlers) listTeamProjects(w http.ResponseWriter, r *http.Request) {
	teamID, ok := httputil.ParsePathInt64OrError(w, r, "teamID")
	if !ok {
		return
	}

	list, err := h.reads.ListByTeam(r.Context(), teamID)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to list team projects")
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"team_id":  teamID,
		"projects": list,
	})
}
