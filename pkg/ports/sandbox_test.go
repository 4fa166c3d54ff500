package ports

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockSandbox_BalancedCodeSucceeds(t *testing.T) {
	s := &MockSandbox{}
	res, err := s.Execute(context.Background(), "p1", "javascript", `console.log("x")`, `console.log("x"`)
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestMockSandbox_UnbalancedCodeFails(t *testing.T) {
	s := &MockSandbox{}
	res, err := s.Execute(context.Background(), "p1", "javascript", `console.log("x"`, `console.log("x"`)
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestMockSandbox_FailSubstringForcesFailure(t *testing.T) {
	s := &MockSandbox{FailSubstrings: []string{"DROP TABLE"}}
	res, err := s.Execute(context.Background(), "p1", "sql", `DROP TABLE users;`, `SELECT 1;`)
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestHTTPSandbox_Execute_PostsAndDecodesResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req sandboxExecuteRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "p1", req.PatchID)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(SandboxResult{Success: true})
	}))
	defer srv.Close()

	s := NewHTTPSandbox(srv.URL)
	res, err := s.Execute(context.Background(), "p1", "go", "fixed()", "orig()")
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestHTTPSandbox_Execute_NonOKStatusErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s := NewHTTPSandbox(srv.URL)
	_, err := s.Execute(context.Background(), "p1", "go", "fixed()", "orig()")
	require.Error(t, err)
}
