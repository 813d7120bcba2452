package access

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shipview/shipview/pkg/capability"
	"github.com/shipview/shipview/pkg/credential"
	"github.com/shipview/shipview/pkg/directory"
	"github.com/shipview/shipview/pkg/identity"
	"github.com/shipview/shipview/pkg/observability"
	"github.com/shipview/shipview/pkg/policy"
	"github.com/shipview/shipview/pkg/projects"
	"github.com/shipview/shipview/pkg/teamtoken"
)

const (
	testIssuer   = "https://id.example.com/"
	testAudience = "shipview-api"
	testKid      = "key-2024"
	testSecret   = "server-secret"
	cookieName   = "shipview_token"
	adminGroup   = int64(999)
)

// fakeDirectory answers membership and visibility from in-memory sets
type fakeDirectory struct {
	memberships map[string][]int64
	visible     map[string][]int64
	down        bool
}

func (f *fakeDirectory) GroupMember(ctx context.Context, subject string, groupID int64) (directory.Visibility, error) {
	if f.down {
		return directory.VisibilityUnavailable, errors.New("directory returned status 503")
	}
	for _, id := range f.memberships[subject] {
		if id == groupID {
			return directory.VisibilityGranted, nil
		}
	}
	return directory.VisibilityDenied, nil
}

func (f *fakeDirectory) Project(ctx context.Context, subject string, projectID int64) (directory.Visibility, error) {
	if f.down {
		return directory.VisibilityUnavailable, errors.New("directory returned status 503")
	}
	for _, id := range f.visible[subject] {
		if id == projectID {
			return directory.VisibilityGranted, nil
		}
	}
	return directory.VisibilityDenied, nil
}

type fakeProjects struct {
	byID map[int64]*projects.Project
}

func (f *fakeProjects) Get(ctx context.Context, projectID int64) (*projects.Project, error) {
	p, ok := f.byID[projectID]
	if !ok {
		return nil, projects.ErrNotFound
	}
	return p, nil
}

type fakeTokens struct {
	tokens map[string]int64
}

func (f *fakeTokens) Validate(ctx context.Context, token string) (int64, error) {
	teamID, ok := f.tokens[token]
	if !ok {
		return 0, teamtoken.ErrInvalidToken
	}
	return teamID, nil
}

// harness assembles a boundary over an httptest key service and in-memory
// policy fakes.
type harness struct {
	boundary *Boundary
	signer   *rsa.PrivateKey
}

func newHarness(t *testing.T, dir *fakeDirectory, projs *fakeProjects) *harness {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	keyServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/"+testKid {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write(pemBytes)
	}))
	t.Cleanup(keyServer.Close)

	keys, err := credential.NewKeyServiceClient(keyServer.URL, nil, nil)
	require.NoError(t, err)

	logger := observability.NewLogger(observability.ErrorLevel, nil)
	verifier := credential.NewVerifier(testIssuer, testAudience, "RS256", keys, nil)
	resolver := identity.NewResolver("samlp|", "", nil,
		&fakeTokens{tokens: map[string]int64{"aB3xY9q": 7}}, logger)

	if projs == nil {
		projs = &fakeProjects{}
	}
	authPolicy := policy.New(dir, projs, adminGroup)

	boundary := NewBoundary(verifier, resolver, authPolicy,
		capability.NewGenerator(testSecret), cookieName, nil, logger)

	return &harness{boundary: boundary, signer: key}
}

func (h *harness) credentialFor(t *testing.T, subject string) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, credential.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testIssuer,
			Audience:  jwt.ClaimStrings{testAudience},
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	token.Header["kid"] = testKid
	raw, err := token.SignedString(h.signer)
	require.NoError(t, err)
	return raw
}

func request(raw string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if raw != "" {
		r.Header.Set("Authorization", "Bearer "+raw)
	}
	return r
}

func TestBoundary_CapabilityToken(t *testing.T) {
	h := newHarness(t, &fakeDirectory{}, nil)
	gen := capability.NewGenerator(testSecret)

	res := Resource{
		Kind:            KindDeployment,
		ProjectID:       1,
		DeploymentID:    1,
		CapabilityToken: gen.DeploymentToken(1, 1),
	}

	decision, err := h.boundary.Authorize(request(""), res)
	require.NoError(t, err)

	assert.True(t, decision.Allowed)
	assert.Equal(t, ReasonCapability, decision.Reason)
	assert.Empty(t, decision.Subject)
}

// A token scoped to a different deployment behaves exactly like having
// presented nothing.
func TestBoundary_CapabilityTokenWrongScope(t *testing.T) {
	h := newHarness(t, &fakeDirectory{}, nil)
	gen := capability.NewGenerator(testSecret)

	res := Resource{
		Kind:            KindDeployment,
		ProjectID:       1,
		DeploymentID:    2,
		CapabilityToken: gen.DeploymentToken(1, 1),
	}

	decision, err := h.boundary.Authorize(request(""), res)
	require.NoError(t, err)

	assert.False(t, decision.Allowed)
	assert.Equal(t, ReasonNoCredential, decision.Reason)
}

// Capability tokens never unlock team-scoped resources
func TestBoundary_CapabilityTokenIgnoredForTeams(t *testing.T) {
	h := newHarness(t, &fakeDirectory{}, nil)
	gen := capability.NewGenerator(testSecret)

	res := Resource{
		Kind:            KindTeam,
		TeamID:          7,
		CapabilityToken: gen.ProjectToken(7),
	}

	decision, err := h.boundary.Authorize(request(""), res)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
}

func TestBoundary_OpenDeployment(t *testing.T) {
	h := newHarness(t, &fakeDirectory{}, &fakeProjects{byID: map[int64]*projects.Project{
		1: {ID: 1, TeamID: 2, Name: "site", Public: true},
	}})

	decision, err := h.boundary.Authorize(request(""), Resource{
		Kind: KindDeployment, ProjectID: 1, DeploymentID: 3,
	})
	require.NoError(t, err)

	assert.True(t, decision.Allowed)
	assert.True(t, decision.IsOpen)
	assert.Equal(t, ReasonOpen, decision.Reason)
}

func TestBoundary_NoCredential(t *testing.T) {
	h := newHarness(t, &fakeDirectory{}, nil)

	decision, err := h.boundary.Authorize(request(""), Resource{Kind: KindTeam, TeamID: 7})
	require.NoError(t, err)

	assert.False(t, decision.Allowed)
	assert.Equal(t, ReasonNoCredential, decision.Reason)
}

func TestBoundary_InvalidCredential(t *testing.T) {
	h := newHarness(t, &fakeDirectory{}, nil)

	decision, err := h.boundary.Authorize(request("garbage"), Resource{Kind: KindTeam, TeamID: 7})
	require.NoError(t, err)

	assert.False(t, decision.Allowed)
	assert.Equal(t, ReasonForbidden, decision.Reason)
}

func TestBoundary_CredentialFromCookie(t *testing.T) {
	h := newHarness(t, &fakeDirectory{
		memberships: map[string][]int64{"samlp|dev": {7}},
	}, nil)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: cookieName, Value: h.credentialFor(t, "samlp|dev")})

	decision, err := h.boundary.Authorize(r, Resource{Kind: KindTeam, TeamID: 7})
	require.NoError(t, err)

	assert.True(t, decision.Allowed)
	assert.Equal(t, ReasonMember, decision.Reason)
}

func TestBoundary_Admin(t *testing.T) {
	h := newHarness(t, &fakeDirectory{
		memberships: map[string][]int64{"samlp|admin": {adminGroup}},
	}, nil)

	decision, err := h.boundary.Authorize(
		request(h.credentialFor(t, "samlp|admin")),
		Resource{Kind: KindTeam, TeamID: 7})
	require.NoError(t, err)

	assert.True(t, decision.Allowed)
	assert.True(t, decision.IsAdmin)
	assert.Equal(t, ReasonAdmin, decision.Reason)
	assert.Equal(t, "samlp|admin", decision.Subject)
}

func TestBoundary_Member(t *testing.T) {
	h := newHarness(t, &fakeDirectory{
		memberships: map[string][]int64{"samlp|dev": {7}},
		visible:     map[string][]int64{"samlp|dev": {17}},
	}, nil)

	decision, err := h.boundary.Authorize(
		request(h.credentialFor(t, "samlp|dev")),
		Resource{Kind: KindTeam, TeamID: 7})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, ReasonMember, decision.Reason)

	decision, err = h.boundary.Authorize(
		request(h.credentialFor(t, "samlp|dev")),
		Resource{Kind: KindProject, ProjectID: 17})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestBoundary_Forbidden(t *testing.T) {
	h := newHarness(t, &fakeDirectory{
		memberships: map[string][]int64{"samlp|dev": {7}},
	}, nil)

	decision, err := h.boundary.Authorize(
		request(h.credentialFor(t, "samlp|dev")),
		Resource{Kind: KindTeam, TeamID: 8})
	require.NoError(t, err)

	assert.False(t, decision.Allowed)
	assert.Equal(t, ReasonForbidden, decision.Reason)
	assert.Equal(t, "samlp|dev", decision.Subject)
}

func TestBoundary_UnsupportedIdentitySource(t *testing.T) {
	h := newHarness(t, &fakeDirectory{}, nil)

	decision, err := h.boundary.Authorize(
		request(h.credentialFor(t, "google-oauth2|u1")),
		Resource{Kind: KindTeam, TeamID: 7})
	require.NoError(t, err)

	assert.False(t, decision.Allowed)
	assert.Equal(t, ReasonForbidden, decision.Reason)
}

// A dead directory must surface as an error, not as a deny
func TestBoundary_DirectoryDown(t *testing.T) {
	h := newHarness(t, &fakeDirectory{down: true}, nil)

	_, err := h.boundary.Authorize(
		request(h.credentialFor(t, "samlp|dev")),
		Resource{Kind: KindTeam, TeamID: 7})
	require.Error(t, err)
	assert.True(t, credential.IsUpstream(err))
}
