package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/shipview/shipview/pkg/access"
	"github.com/shipview/shipview/pkg/capability"
	"github.com/shipview/shipview/pkg/httputil"
	"github.com/shipview/shipview/pkg/observability"
)

// PreviewHandlers serves public preview links and issues capability share
// links. Preview routes accept a capability token in the path; share-link
// issuance requires normal project access.
type PreviewHandlers struct {
	capabilities *capability.Generator
	middleware   *access.Middleware
	logger       *observability.Logger
}

// NewPreviewHandlers creates the preview handlers
func NewPreviewHandlers(capabilities *capability.Generator, middleware *access.Middleware, logger *observability.Logger) *PreviewHandlers {
	return &PreviewHandlers{
		capabilities: capabilities,
		middleware:   middleware,
		logger:       logger,
	}
}

// RegisterRoutes registers preview and share-link routes
func (h *PreviewHandlers) RegisterRoutes(router *mux.Router) {
	// Previews: the trailing path segment is the capability token. The same
	// routes also serve open projects and authenticated team members, so
	// the token segment may be "-" as a placeholder.
	router.Handle("/preview/deployment/{ref}/{token}",
		h.middleware.ProtectFunc(deploymentPreviewResource, h.previewDeployment)).Methods("GET")
	router.Handle("/preview/project/{projectID:[0-9]+}/{token}",
		h.middleware.ProtectFunc(projectPreviewResource, h.previewProject)).Methods("GET")
	router.Handle("/preview/branch/{projectID:[0-9]+}/{branch}/{token}",
		h.middleware.ProtectFunc(branchPreviewResource, h.previewBranch)).Methods("GET")

	// Share-link issuance: requires project access, returns the derived token
	router.Handle("/links/deployment/{projectID:[0-9]+}/{deploymentID:[0-9]+}",
		h.middleware.ProtectFunc(projectLinkResource, h.issueDeploymentLink)).Methods("POST")
	router.Handle("/links/project/{projectID:[0-9]+}",
		h.middleware.ProtectFunc(projectLinkResource, h.issueProjectLink)).Methods("POST")
	router.Handle("/links/branch/{projectID:[0-9]+}/{branch}",
		h.middleware.ProtectFunc(projectLinkResource, h.issueBranchLink)).Methods("POST")
}

// parseDeploymentRef splits a "{projectID}-{deploymentID}" path segment
func parseDeploymentRef(ref string) (int64, int64, error) {
	parts := strings.SplitN(ref, "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid deployment reference: %s", ref)
	}
	projectID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid project id in reference: %s", ref)
	}
	deploymentID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid deployment id in reference: %s", ref)
	}
	return projectID, deploymentID, nil
}

// pathToken reads the capability token segment, treating the "-"
// placeholder as absent.
func pathToken(r *http.Request) string {
	token := httputil.GetPathVars(r)["token"]
	if token == "-" {
		return ""
	}
	return token
}

func deploymentPreviewResource(r *http.Request) (access.Resource, error) {
	projectID, deploymentID, err := parseDeploymentRef(httputil.GetPathVars(r)["ref"])
	if err != nil {
		return access.Resource{}, err
	}
	return access.Resource{
		Kind:            access.KindDeployment,
		ProjectID:       projectID,
		DeploymentID:    deploymentID,
		CapabilityToken: pathToken(r),
	}, nil
}

func projectPreviewResource(r *http.Request) (access.Resource, error) {
	projectID, err := httputil.ParsePathInt64(r, "projectID")
	if err != nil {
		return access.Resource{}, err
	}
	return access.Resource{
		Kind:            access.KindProject,
		ProjectID:       projectID,
		CapabilityToken: pathToken(r),
	}, nil
}

func branchPreviewResource(r *http.Request) (access.Resource, error) {
	projectID, err := httputil.ParsePathInt64(r, "projectID")
	if err != nil {
		return access.Resource{}, err
	}
	return access.Resource{
		Kind:            access.KindBranch,
		ProjectID:       projectID,
		Branch:          httputil.GetPathVars(r)["branch"],
		CapabilityToken: pathToken(r),
	}, nil
}

func projectLinkResource(r *http.Request) (access.Resource, error) {
	projectID, err := httputil.ParsePathInt64(r, "projectID")
	if err != nil {
		return access.Resource{}, err
	}
	return access.Resource{Kind: access.KindProject, ProjectID: projectID}, nil
}

// previewDeployment handles GET /preview/deployment/{ref}/{token}. Serving
// the preview artifact itself (screenshots, built assets) belongs to the
// delivery layer; this returns the resolved preview descriptor.
func (h *PreviewHandlers) previewDeployment(w http.ResponseWriter, r *http.Request) {
	projectID, deploymentID, err := parseDeploymentRef(httputil.GetPathVars(r)["ref"])
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	decision := access.DecisionFrom(r)
	httputil.WriteSuccess(w, map[string]interface{}{
		"project_id":    projectID,
		"deployment_id": deploymentID,
		"open":          decision != nil && decision.IsOpen,
	})
}

// previewProject handles GET /preview/project/{projectID}/{token}
func (h *PreviewHandlers) previewProject(w http.ResponseWriter, r *http.Request) {
	projectID, ok := httputil.ParsePathInt64OrError(w, r, "projectID")
	if !ok {
		return
	}

	decision := access.DecisionFrom(r)
	httputil.WriteSuccess(w, map[string]interface{}{
		"project_id": projectID,
		"open":       decision != nil && decision.IsOpen,
	})
}

// previewBranch handles GET /preview/branch/{projectID}/{branch}/{token}
func (h *PreviewHandlers) previewBranch(w http.ResponseWriter, r *http.Request) {
	projectID, ok := httputil.ParsePathInt64OrError(w, r, "projectID")
	if !ok {
		return
	}

	decision := access.DecisionFrom(r)
	httputil.WriteSuccess(w, map[string]interface{}{
		"project_id": projectID,
		"branch":     httputil.GetPathVars(r)["branch"],
		"open":       decision != nil && decision.IsOpen,
	})
}

// issueDeploymentLink handles POST /links/deployment/{projectID}/{deploymentID}
func (h *PreviewHandlers) issueDeploymentLink(w http.ResponseWriter, r *http.Request) {
	projectID, ok := httputil.ParsePathInt64OrError(w, r, "projectID")
	if !ok {
		return
	}
	deploymentID, ok := httputil.ParsePathInt64OrError(w, r, "deploymentID")
	if !ok {
		return
	}

	token := h.capabilities.DeploymentToken(projectID, deploymentID)
	httputil.WriteCreated(w, map[string]interface{}{
		"token": token,
		"url":   fmt.Sprintf("/preview/deployment/%d-%d/%s", projectID, deploymentID, token),
	})
}

// issueProjectLink handles POST /links/project/{projectID}
func (h *PreviewHandlers) issueProjectLink(w http.ResponseWriter, r *http.Request) {
	projectID, ok := httputil.ParsePathInt64OrError(w, r, "projectID")
	if !ok {
		return
	}

	token := h.capabilities.ProjectToken(projectID)
	httputil.WriteCreated(w, map[string]interface{}{
		"token": token,
		"url":   fmt.Sprintf("/preview/project/%d/%s", projectID, token),
	})
}

// issueBranchLink handles POST /links/branch/{projectID}/{branch}
func (h *PreviewHandlers) issueBranchLink(w http.ResponseWriter, r *http.Request) {
	projectID, ok := httputil.ParsePathInt64OrError(w, r, "projectID")
	if !ok {
		return
	}
	branch := httputil.GetPathVars(r)["branch"]

	token := h.capabilities.BranchToken(projectID, branch)
	httputil.WriteCreated(w, map[string]interface{}{
		"token": token,
		"url":   fmt.Sprintf("/preview/branch/%d/%s/%s", projectID, branch, token),
	})
}
