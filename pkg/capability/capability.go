// Package capability derives HMAC-based tokens that grant unauthenticated
// access to one exact resource scope.
//
// Tokens are deterministic: the same scope and server secret always yield
// the same token, so nothing is stored and there is no revocation list.
// Verification is recompute-and-compare. Rotating the secret invalidates
// every outstanding capability link at once.
package capability

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ScopeKind identifies what a capability token grants access to
type ScopeKind string

const (
	ScopeProject    ScopeKind = "project"
	ScopeDeployment ScopeKind = "deployment"
	ScopeBranch     ScopeKind = "branch"
)

// Scope describes the exact resource a capability token covers
type Scope struct {
	Kind         ScopeKind
	ProjectID    int64
	DeploymentID int64
	Branch       string
}

// discriminator encodes the scope kind and every scope component so that
// scopes of different kinds can never collide (project 5 vs deployment 5/5).
func (s Scope) discriminator() string {
	switch s.Kind {
	case ScopeProject:
		return fmt.Sprintf("project/%d", s.ProjectID)
	case ScopeDeployment:
		return fmt.Sprintf("deployment/%d/%d", s.ProjectID, s.DeploymentID)
	case ScopeBranch:
		return fmt.Sprintf("branch/%d/%s", s.ProjectID, s.Branch)
	default:
		return fmt.Sprintf("unknown/%d", s.ProjectID)
	}
}

// Generator derives capability tokens from a single server-wide secret
type Generator struct {
	secret []byte
}

// NewGenerator creates a capability token generator
func NewGenerator(secret string) *Generator {
	return &Generator{secret: []byte(secret)}
}

// Token computes the capability token for a scope as a hex HMAC-SHA256 digest
func (g *Generator) Token(scope Scope) string {
	mac := hmac.New(sha256.New, g.secret)
	mac.Write([]byte(scope.discriminator()))
	return hex.EncodeToString(mac.Sum(nil))
}

// ProjectToken derives the token granting access to one project
func (g *Generator) ProjectToken(projectID int64) string {
	return g.Token(Scope{Kind: ScopeProject, ProjectID: projectID})
}

// DeploymentToken derives the token granting access to one deployment
func (g *Generator) DeploymentToken(projectID, deploymentID int64) string {
	return g.Token(Scope{Kind: ScopeDeployment, ProjectID: projectID, DeploymentID: deploymentID})
}

// BranchToken derives the token granting access to one branch of a project
func (g *Generator) BranchToken(projectID int64, branch string) string {
	return g.Token(Scope{Kind: ScopeBranch, ProjectID: projectID, Branch: branch})
}

// Matches reports whether a presented token equals the freshly recomputed
// token for the scope. Comparison is constant-time.
func (g *Generator) Matches(presented string, scope Scope) bool {
	if presented == "" {
		return false
	}
	return hmac.Equal([]byte(presented), []byte(g.Token(scope)))
}
