package guardclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoRequest_AuthHeader(t *testing.T) {
	var gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	client := New(Config{APIURL: ts.URL, APIKey: "sk_secret123"})
	_, err := client.GetConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer sk_secret123", gotAuth)
}

func TestNoAPIKey_NoAuthHeader(t *testing.T) {
	var gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	client := New(Config{APIURL: ts.URL})
	_, err := client.GetConfig(context.Background())
	require.NoError(t, err)
	assert.Empty(t, gotAuth)
}

func TestDoRequest_HTTPError_WithAPIMessage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":   "oracle_disabled",
			"message": "Risk oracle is not configured",
		})
	}))
	defer ts.Close()

	client := New(Config{APIURL: ts.URL})
	_, err := client.GetAssetRisk(context.Background(), "0xdead")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "Risk oracle is not configured")
}

func TestDoRequest_HTTPError_NonJSON(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream timeout"))
	}))
	defer ts.Close()

	client := New(Config{APIURL: ts.URL})
	_, err := client.GetWarningHistory(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "upstream timeout")
}

func TestDoRequest_ConnectionRefused(t *testing.T) {
	client := New(Config{APIURL: "http://127.0.0.1:1"})
	_, err := client.GetConfig(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request failed")
}

func TestAssetRisk_PathEscapesAsset(t *testing.T) {
	var gotPath string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	client := New(Config{APIURL: ts.URL})
	_, err := client.GetAssetRisk(context.Background(), "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	require.NoError(t, err)
	assert.Equal(t, "/v1/risk/TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA", gotPath)
}

func TestWithHTTPClient(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	custom := ts.Client()
	client := New(Config{APIURL: ts.URL}, WithHTTPClient(custom))
	_, err := client.GetConfig(context.Background())
	require.NoError(t, err)
}
