package access

import "github.com/shipview/shipview/pkg/capability"

// Kind identifies the kind of resource a request is after
type Kind string

const (
	KindTeam       Kind = "team"
	KindProject    Kind = "project"
	KindDeployment Kind = "deployment"
	KindBranch     Kind = "branch"
)

// Resource describes the resource a route handler wants to serve. The
// handler builds one per request and hands it to the boundary.
type Resource struct {
	Kind         Kind
	TeamID       int64
	ProjectID    int64
	DeploymentID int64
	Branch       string

	// CapabilityToken is the share-link token from the path or query, if any
	CapabilityToken string
}

// supportsCapability reports whether this resource kind can be reached via
// a capability token at all. Team-scoped resources never can: capability
// tokens confer no identity and must not unlock team state.
func (r Resource) supportsCapability() bool {
	switch r.Kind {
	case KindProject, KindDeployment, KindBranch:
		return true
	default:
		return false
	}
}

// capabilityScope maps the resource to the exact capability scope that
// would unlock it.
func (r Resource) capabilityScope() capability.Scope {
	switch r.Kind {
	case KindDeployment:
		return capability.Scope{Kind: capability.ScopeDeployment, ProjectID: r.ProjectID, DeploymentID: r.DeploymentID}
	case KindBranch:
		return capability.Scope{Kind: capability.ScopeBranch, ProjectID: r.ProjectID, Branch: r.Branch}
	default:
		return capability.Scope{Kind: capability.ScopeProject, ProjectID: r.ProjectID}
	}
}

// hasProject reports whether the resource is project-scoped and can
// therefore be open (public) without any identity.
func (r Resource) hasProject() bool {
	switch r.Kind {
	case KindProject, KindDeployment, KindBranch:
		return true
	default:
		return false
	}
}
