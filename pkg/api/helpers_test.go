package api

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/shipview/shipview/pkg/access"
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
	adminGroup   = int64(999)
	loginURL     = "https://shipview.example.com/login"
)

type fakeDirectory struct {
	memberships map[string][]int64
	visible     map[string][]int64
}

func (f *fakeDirectory) GroupMember(ctx context.Context, subject string, groupID int64) (directory.Visibility, error) {
	for _, id := range f.memberships[subject] {
		if id == groupID {
			return directory.VisibilityGranted, nil
		}
	}
	return directory.VisibilityDenied, nil
}

func (f *fakeDirectory) Project(ctx context.Context, subject string, projectID int64) (directory.Visibility, error) {
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

func (f *fakeProjects) Upsert(ctx context.Context, p *projects.Project) error {
	if f.byID == nil {
		f.byID = make(map[int64]*projects.Project)
	}
	f.byID[p.ID] = p
	return nil
}

func (f *fakeProjects) ListByTeam(ctx context.Context, teamID int64) ([]*projects.Project, error) {
	var result []*projects.Project
	for _, p := range f.byID {
		if p.TeamID == teamID {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// fakeTokenStore is an in-memory TokenStore with supersession semantics
type fakeTokenStore struct {
	current map[int64]string
	history map[int64][]teamtoken.TeamToken
	serial  int
}

func newFakeTokenStore() *fakeTokenStore {
	return &fakeTokenStore{
		current: make(map[int64]string),
		history: make(map[int64][]teamtoken.TeamToken),
	}
}

func (f *fakeTokenStore) Generate(ctx context.Context, teamID int64) (string, error) {
	f.serial++
	token := []byte("tok0000")
	token[6] = byte('a' + f.serial)
	f.current[teamID] = string(token)
	f.history[teamID] = append([]teamtoken.TeamToken{{
		ID:        int64(f.serial),
		TeamID:    teamID,
		Token:     string(token),
		CreatedAt: time.Now(),
	}}, f.history[teamID]...)
	return string(token), nil
}

func (f *fakeTokenStore) History(ctx context.Context, teamID int64) ([]teamtoken.TeamToken, error) {
	return f.history[teamID], nil
}

func (f *fakeTokenStore) CurrentToken(ctx context.Context, teamID int64) (string, error) {
	token, ok := f.current[teamID]
	if !ok {
		return "", teamtoken.ErrNoToken
	}
	return token, nil
}

func (f *fakeTokenStore) Validate(ctx context.Context, token string) (int64, error) {
	for teamID, current := range f.current {
		if current == token {
			return teamID, nil
		}
	}
	return 0, teamtoken.ErrInvalidToken
}

// apiHarness is a fully wired router with fakes behind the boundary
type apiHarness struct {
	router *mux.Router
	tokens *fakeTokenStore
	signer *rsa.PrivateKey
}

func newAPIHarness(t *testing.T, dir *fakeDirectory, projs *fakeProjects) *apiHarness {
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
	tokens := newFakeTokenStore()

	verifier := credential.NewVerifier(testIssuer, testAudience, "RS256", keys, nil)
	resolver := identity.NewResolver("samlp|", "", nil, tokens, logger)

	if projs == nil {
		projs = &fakeProjects{}
	}
	authPolicy := policy.New(dir, projs, adminGroup)
	capabilities := capability.NewGenerator(testSecret)

	boundary := access.NewBoundary(verifier, resolver, authPolicy,
		capabilities, "shipview_token", nil, logger)
	middleware := access.NewMiddleware(boundary, loginURL, logger)

	router := mux.NewRouter()
	NewTeamTokenHandlers(tokens, middleware, logger).RegisterRoutes(router)
	NewPreviewHandlers(capabilities, middleware, logger).RegisterRoutes(router)
	NewProjectHandlers(projs, projs, middleware, logger).RegisterRoutes(router)

	return &apiHarness{router: router, tokens: tokens, signer: key}
}

func (h *apiHarness) credentialFor(t *testing.T, subject string) string {
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

// do runs a request through the router as the given subject; subject "" is
// an anonymous request.
func (h *apiHarness) do(t *testing.T, method, path, subject string) *httptest.ResponseRecorder {
	return h.doBody(t, method, path, subject, nil)
}

func (h *apiHarness) doBody(t *testing.T, method, path, subject string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()

	r := httptest.NewRequest(method, path, body)
	if subject != "" {
		r.Header.Set("Authorization", "Bearer "+h.credentialFor(t, subject))
	}

	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, r)
	return rec
}
