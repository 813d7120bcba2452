// Package policy implements the authorization predicates every protected
// route composes.
//
// The predicates reconcile three trust sources: the resolved identity, the
// live directory (group membership and project visibility, always
// impersonated as the subject), and the mirrored project metadata (the open
// flag). "This subject has no access" is always a false result, never an
// error; only an unreachable directory propagates as an error.
package policy

import (
	"context"
	"errors"

	"github.com/shipview/shipview/pkg/credential"
	"github.com/shipview/shipview/pkg/directory"
	"github.com/shipview/shipview/pkg/projects"
)

// Directory is the impersonated lookup surface the policy consults.
// Satisfied by *directory.Client.
type Directory interface {
	GroupMember(ctx context.Context, subject string, groupID int64) (directory.Visibility, error)
	Project(ctx context.Context, subject string, projectID int64) (directory.Visibility, error)
}

// ProjectGetter reads mirrored project metadata. Satisfied by both
// projects.Store and projects.CachedStore.
type ProjectGetter interface {
	Get(ctx context.Context, projectID int64) (*projects.Project, error)
}

// Policy evaluates access-control predicates
type Policy struct {
	dir          Directory
	projects     ProjectGetter
	adminGroupID int64
}

// New creates an authorization policy
func New(dir Directory, projectStore ProjectGetter, adminGroupID int64) *Policy {
	return &Policy{
		dir:          dir,
		projects:     projectStore,
		adminGroupID: adminGroupID,
	}
}

// IsAdmin reports whether the subject is a member of the admin group.
// Absence of visibility is absence of privilege: a denied lookup is false,
// not an error.
func (p *Policy) IsAdmin(ctx context.Context, subject string) (bool, error) {
	vis, err := p.dir.GroupMember(ctx, subject, p.adminGroupID)
	return p.resolve(vis, err)
}

// HasAccessToTeam reports whether the subject is an admin or a member of
// the directory group whose id equals the team id.
func (p *Policy) HasAccessToTeam(ctx context.Context, subject string, teamID int64) (bool, error) {
	admin, err := p.IsAdmin(ctx, subject)
	if err != nil {
		return false, err
	}
	if admin {
		return true, nil
	}

	vis, err := p.dir.GroupMember(ctx, subject, teamID)
	return p.resolve(vis, err)
}

// HasAccessToProject reports whether the subject is an admin or can see the
// project in the directory. The directory enforces visibility itself; a 200
// is access, anything else is not.
func (p *Policy) HasAccessToProject(ctx context.Context, subject string, projectID int64) (bool, error) {
	admin, err := p.IsAdmin(ctx, subject)
	if err != nil {
		return false, err
	}
	if admin {
		return true, nil
	}

	vis, err := p.dir.Project(ctx, subject, projectID)
	return p.resolve(vis, err)
}

// HasAccessToDeployment delegates entirely to the owning project;
// deployments carry no ACL of their own.
func (p *Policy) HasAccessToDeployment(ctx context.Context, subject string, projectID, deploymentID int64) (bool, error) {
	return p.HasAccessToProject(ctx, subject, projectID)
}

// IsOpenDeployment reports whether the project is flagged public. Open
// resources are served with zero authentication, so callers must check this
// before requiring a credential at all. An unmirrored project reads as not
// open rather than an error, to avoid disclosing whether it exists.
func (p *Policy) IsOpenDeployment(ctx context.Context, projectID int64) (bool, error) {
	project, err := p.projects.Get(ctx, projectID)
	if errors.Is(err, projects.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return project.Public, nil
}

// resolve converts a visibility outcome into the predicate contract:
// granted is true, denied is false, unavailable propagates as a fault.
func (p *Policy) resolve(vis directory.Visibility, err error) (bool, error) {
	switch vis {
	case directory.VisibilityGranted:
		return true, nil
	case directory.VisibilityDenied:
		return false, nil
	default:
		return false, &credential.UpstreamError{Service: "directory", Err: err}
	}
}
