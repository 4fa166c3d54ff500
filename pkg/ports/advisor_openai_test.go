package ports

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIAdvisor_Consult_ParsesCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Write([]byte(`{"choices":[{"message":{"content":"` + "```\\nfixed()\\n```" + `"}}]}`))
	}))
	defer srv.Close()

	o := NewOpenAIAdvisor("test-key", WithAdvisorBaseURL(srv.URL))
	resp, err := o.Consult(context.Background(), ConsultRequest{
		ErrorMessage: "boom",
		OriginalCode: "orig()",
		LastPatch:    "broken(",
		Language:     "go",
	})
	require.NoError(t, err)
	assert.Contains(t, resp.Text, "fixed()")
}

func TestOpenAIAdvisor_Consult_ErrorStatusPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	o := NewOpenAIAdvisor("test-key", WithAdvisorBaseURL(srv.URL))
	_, err := o.Consult(context.Background(), ConsultRequest{})
	require.Error(t, err)
}

func TestOpenAIAdvisor_Consult_NoAPIKeyFails(t *testing.T) {
	o := NewOpenAIAdvisor("")
	o.apiKey = ""
	_, err := o.Consult(context.Background(), ConsultRequest{})
	require.Error(t, err)
}

func TestBuildAdvisorPrompt_IncludesSimilarOutcomes(t *testing.T) {
	prompt := buildAdvisorPrompt(ConsultRequest{
		Language:        "go",
		ErrorMessage:    "boom",
		OriginalCode:    "orig()",
		LastPatch:       "broken(",
		SimilarOutcomes: []string{"envelope-1", "envelope-2"},
	})
	assert.Contains(t, prompt, "boom")
	assert.Contains(t, prompt, "envelope-1")
	assert.Contains(t, prompt, "envelope-2")
}
