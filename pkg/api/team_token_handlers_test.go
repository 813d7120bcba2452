package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The full rotation flow as an admin: no token yet, generate one, read it
// back, regenerate, and see the replacement.
func TestTeamTokenRoutes_AdminLifecycle(t *testing.T) {
	h := newAPIHarness(t, &fakeDirectory{
		memberships: map[string][]int64{"samlp|admin": {adminGroup}},
	}, nil)

	rec := h.do(t, http.MethodGet, "/team-token/2", "samlp|admin")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodPost, "/team-token/2", "samlp|admin")
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		TeamID int64  `json:"team_id"`
		Token  string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, int64(2), created.TeamID)
	assert.NotEmpty(t, created.Token)

	rec = h.do(t, http.MethodGet, "/team-token/2", "samlp|admin")
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, created.Token, got.Token)

	rec = h.do(t, http.MethodPost, "/team-token/2", "samlp|admin")
	require.Equal(t, http.StatusCreated, rec.Code)

	var rotated struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rotated))
	assert.NotEqual(t, created.Token, rotated.Token)
}

// Rotating twice leaves both tokens in the audit trail, newest first
func TestTeamTokenRoutes_History(t *testing.T) {
	h := newAPIHarness(t, &fakeDirectory{
		memberships: map[string][]int64{"samlp|admin": {adminGroup}},
	}, nil)

	rec := h.do(t, http.MethodPost, "/team-token/2", "samlp|admin")
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = h.do(t, http.MethodPost, "/team-token/2", "samlp|admin")
	require.Equal(t, http.StatusCreated, rec.Code)

	var rotated struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rotated))

	rec = h.do(t, http.MethodGet, "/team-token/2/history", "samlp|admin")
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		TeamID int64 `json:"team_id"`
		Tokens []struct {
			Token string `json:"token"`
		} `json:"tokens"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, int64(2), got.TeamID)
	require.Len(t, got.Tokens, 2)
	assert.Equal(t, rotated.Token, got.Tokens[0].Token)

	rec = h.do(t, http.MethodGet, "/team-token/2/history", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTeamTokenRoutes_MemberCanManageOwnTeam(t *testing.T) {
	h := newAPIHarness(t, &fakeDirectory{
		memberships: map[string][]int64{"samlp|dev": {7}},
	}, nil)

	rec := h.do(t, http.MethodPost, "/team-token/7", "samlp|dev")
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = h.do(t, http.MethodGet, "/team-token/7", "samlp|dev")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTeamTokenRoutes_NonMemberDenied(t *testing.T) {
	h := newAPIHarness(t, &fakeDirectory{
		memberships: map[string][]int64{"samlp|dev": {7}},
	}, nil)

	rec := h.do(t, http.MethodGet, "/team-token/1", "samlp|dev")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(t, http.MethodPost, "/team-token/1", "samlp|dev")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTeamTokenRoutes_AnonymousDenied(t *testing.T) {
	h := newAPIHarness(t, &fakeDirectory{}, nil)

	rec := h.do(t, http.MethodGet, "/team-token/7", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// The router only matches numeric team ids
func TestTeamTokenRoutes_NonNumericTeamID(t *testing.T) {
	h := newAPIHarness(t, &fakeDirectory{}, nil)

	rec := h.do(t, http.MethodGet, "/team-token/ops", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
