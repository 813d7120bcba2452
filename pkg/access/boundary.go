// Package access implements the boundary every protected route and stream
// invokes before acting.
//
// The boundary extracts whatever the request carries (a capability token, a
// bearer credential in the Authorization header or cookie, or nothing),
// resolves it, and returns a single allow/deny decision with context. Route
// handlers branch on the decision; they never inspect credentials
// themselves.
package access

import (
	"context"
	"errors"
	"net/http"

	"github.com/shipview/shipview/pkg/capability"
	"github.com/shipview/shipview/pkg/credential"
	"github.com/shipview/shipview/pkg/httputil"
	"github.com/shipview/shipview/pkg/identity"
	"github.com/shipview/shipview/pkg/observability"
	"github.com/shipview/shipview/pkg/policy"
)

// Reason explains a decision. Denied reasons stay coarse on the wire, but
// ReasonNoCredential and ReasonForbidden must remain observably different:
// browser fetches redirect to login only when no credential was presented.
type Reason string

const (
	ReasonCapability   Reason = "capability"
	ReasonOpen         Reason = "open"
	ReasonAdmin        Reason = "admin"
	ReasonMember       Reason = "member"
	ReasonNoCredential Reason = "no_credential"
	ReasonForbidden    Reason = "forbidden"
)

// Decision is the outcome of an authorization check
type Decision struct {
	Allowed bool
	TeamID  *int64
	IsAdmin bool
	IsOpen  bool
	Reason  Reason
	Subject string
}

// Boundary wires the verifier, resolver, policy, and capability generator
// into the per-request state machine.
type Boundary struct {
	verifier     *credential.Verifier
	resolver     *identity.Resolver
	policy       *policy.Policy
	capabilities *capability.Generator
	cookieName   string
	metrics      *observability.Metrics
	logger       *observability.Logger
}

// NewBoundary creates an access boundary. metrics may be nil.
func NewBoundary(
	verifier *credential.Verifier,
	resolver *identity.Resolver,
	authPolicy *policy.Policy,
	capabilities *capability.Generator,
	cookieName string,
	metrics *observability.Metrics,
	logger *observability.Logger,
) *Boundary {
	return &Boundary{
		verifier:     verifier,
		resolver:     resolver,
		policy:       authPolicy,
		capabilities: capabilities,
		cookieName:   cookieName,
		metrics:      metrics,
		logger:       logger,
	}
}

// Authorize evaluates a request against a resource descriptor.
//
// Order matters: a matching capability token grants access with no identity
// at all; an open project is served without authentication; only then is a
// credential required. A capability token with the wrong scope falls
// through and behaves exactly like having presented nothing.
func (b *Boundary) Authorize(r *http.Request, res Resource) (*Decision, error) {
	ctx := r.Context()

	if res.CapabilityToken != "" && res.supportsCapability() {
		if b.capabilities.Matches(res.CapabilityToken, res.capabilityScope()) {
			return b.decided(res, &Decision{Allowed: true, Reason: ReasonCapability}), nil
		}
	}

	if res.hasProject() {
		open, err := b.policy.IsOpenDeployment(ctx, res.ProjectID)
		if err != nil {
			return nil, err
		}
		if open {
			return b.decided(res, &Decision{Allowed: true, IsOpen: true, Reason: ReasonOpen}), nil
		}
	}

	raw := httputil.BearerToken(r, b.cookieName)
	if raw == "" {
		return b.decided(res, &Decision{Reason: ReasonNoCredential}), nil
	}

	claims, err := b.verifier.Verify(ctx, raw)
	if err != nil {
		if errors.Is(err, credential.ErrCredentialInvalid) {
			return b.decided(res, &Decision{Reason: ReasonForbidden}), nil
		}
		return nil, err
	}

	ident, err := b.resolver.Resolve(ctx, claims, raw)
	if err != nil {
		if errors.Is(err, identity.ErrUnsupportedIdentitySource) {
			return b.decided(res, &Decision{Reason: ReasonForbidden}), nil
		}
		return nil, err
	}

	return b.authorizeIdentity(ctx, res, ident)
}

// authorizeIdentity runs the policy predicate matching the resource kind
func (b *Boundary) authorizeIdentity(ctx context.Context, res Resource, ident *identity.Identity) (*Decision, error) {
	decision := &Decision{
		Subject: ident.Subject,
		TeamID:  ident.TeamID,
	}

	admin, err := b.policy.IsAdmin(ctx, ident.Subject)
	if err != nil {
		return nil, err
	}
	decision.IsAdmin = admin
	if admin {
		decision.Allowed = true
		decision.Reason = ReasonAdmin
		return b.decided(res, decision), nil
	}

	// The predicates re-check admin internally; that duplicate lookup is
	// accepted to keep them usable on their own.
	var allowed bool
	switch res.Kind {
	case KindTeam:
		allowed, err = b.policy.HasAccessToTeam(ctx, ident.Subject, res.TeamID)
	case KindDeployment:
		allowed, err = b.policy.HasAccessToDeployment(ctx, ident.Subject, res.ProjectID, res.DeploymentID)
	case KindProject, KindBranch:
		allowed, err = b.policy.HasAccessToProject(ctx, ident.Subject, res.ProjectID)
	default:
		allowed = false
	}
	if err != nil {
		return nil, err
	}

	decision.Allowed = allowed
	if allowed {
		decision.Reason = ReasonMember
	} else {
		decision.Reason = ReasonForbidden
	}
	return b.decided(res, decision), nil
}

func (b *Boundary) decided(res Resource, d *Decision) *Decision {
	if b.metrics != nil {
		outcome := string(d.Reason)
		if !d.Allowed {
			outcome = "denied_" + outcome
		}
		b.metrics.AuthDecisionsTotal.WithLabelValues(string(res.Kind), outcome).Inc()
	}
	return d
}
