package webhook_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/content-lifecycle/pkg/lifecycle/index/webhook"
)

func TestIndexer_Refresh(t *testing.T) {
	var gotRepo, gotToken string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRepo = r.URL.Query().Get("repository")
		gotToken = r.URL.Query().Get("token")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	indexer, err := webhook.New(server.URL+"/refresh?token=abc", webhook.WithHTTPClient(server.Client()))
	require.NoError(t, err)

	require.NoError(t, indexer.Refresh(context.Background(), "bedroom"))
	assert.Equal(t, "bedroom", gotRepo)
	assert.Equal(t, "abc", gotToken)
}

func TestIndexer_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	indexer, err := webhook.New(server.URL)
	require.NoError(t, err)
	err = indexer.Refresh(context.Background(), "bedroom")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestNew_RejectsBadURL(t *testing.T) {
	_, err := webhook.New("ftp://example.com")
	assert.Error(t, err)
}
