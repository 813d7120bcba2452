// Package identity turns verified credentials into resolved identities.
//
// The resolver binds a verified credential to a team via the embedded team
// token claim and fills in the subject's email, falling back to the
// identity provider's profile endpoint when the claim is absent.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/shipview/shipview/pkg/credential"
	"github.com/shipview/shipview/pkg/observability"
	"github.com/shipview/shipview/pkg/teamtoken"
)

var (
	// ErrUnsupportedIdentitySource is returned when the credential subject
	// does not originate from the configured identity-provider connection.
	ErrUnsupportedIdentitySource = errors.New("unsupported identity source")

	// ErrEmailUnavailable is returned by ResolveWithEmail when neither the
	// credential nor the profile endpoint yields an email.
	ErrEmailUnavailable = errors.New("email unavailable")
)

// TokenValidator resolves a team token to a team id. Satisfied by both
// teamtoken.Store and teamtoken.CachedStore.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (int64, error)
}

// Identity is the resolved, request-scoped identity of a subject
type Identity struct {
	Subject string
	Email   string
	// TeamID is nil when the credential carried no (valid) team binding
	TeamID *int64
}

// Resolver resolves verified credentials into identities
type Resolver struct {
	connectionPrefix string
	profileURL       string
	httpClient       *http.Client
	tokens           TokenValidator
	logger           *observability.Logger
}

// NewResolver creates an identity resolver. httpClient may be nil.
func NewResolver(connectionPrefix, profileURL string, httpClient *http.Client, tokens TokenValidator, logger *observability.Logger) *Resolver {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Resolver{
		connectionPrefix: connectionPrefix,
		profileURL:       profileURL,
		httpClient:       httpClient,
		tokens:           tokens,
		logger:           logger,
	}
}

// Resolve builds an identity from verified claims. Email is taken from the
// claims when present but its absence is not an error; flows that need an
// email use ResolveWithEmail. rawCredential is the bearer string the claims
// were verified from, reused for the profile fallback call.
func (r *Resolver) Resolve(ctx context.Context, claims *credential.Claims, rawCredential string) (*Identity, error) {
	if !strings.HasPrefix(claims.Subject, r.connectionPrefix) {
		return nil, ErrUnsupportedIdentitySource
	}

	ident := &Identity{
		Subject: claims.Subject,
		Email:   claims.Email,
	}

	if claims.TeamToken != "" {
		teamID, err := r.tokens.Validate(ctx, claims.TeamToken)
		switch {
		case err == nil:
			ident.TeamID = &teamID
		case teamtoken.IsAuthFailure(err):
			// A stale embedded token does not invalidate the identity; the
			// subject simply has no team binding until re-issued.
			r.logger.WithField("subject", claims.Subject).Warn("credential carried a superseded team token")
		default:
			return nil, err
		}
	}

	return ident, nil
}

// ResolveWithEmail resolves an identity and guarantees an email, querying
// the identity provider's profile endpoint when the credential lacks one.
func (r *Resolver) ResolveWithEmail(ctx context.Context, claims *credential.Claims, rawCredential string) (*Identity, error) {
	ident, err := r.Resolve(ctx, claims, rawCredential)
	if err != nil {
		return nil, err
	}

	if ident.Email == "" {
		email, err := r.fetchProfileEmail(ctx, rawCredential)
		if err != nil {
			return nil, err
		}
		ident.Email = email
	}

	if ident.Email == "" {
		return nil, ErrEmailUnavailable
	}

	return ident, nil
}

// fetchProfileEmail performs the one fallback call to the identity
// provider's profile endpoint, authenticated with the same bearer
// credential the request presented.
func (r *Resolver) fetchProfileEmail(ctx context.Context, rawCredential string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.profileURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build profile request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+rawCredential)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", &credential.UpstreamError{Service: "identity provider", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode >= 500 {
			return "", &credential.UpstreamError{Service: "identity provider", Err: fmt.Errorf("status %d", resp.StatusCode)}
		}
		return "", ErrEmailUnavailable
	}

	var profile struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return "", &credential.UpstreamError{Service: "identity provider", Err: err}
	}

	return profile.Email, nil
}
