package download

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestFetch verifies successful streaming to a destination file.
func TestFetch(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("binary payload"))
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "artifact.tgz")

	err := NewClient().Fetch(context.Background(), server.URL, dest)
	require.NoError(t, err)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "binary payload", string(data))
}

// TestFetchBadStatus ensures a non-200 response surfaces as ErrDownloadFailed.
func TestFetchBadStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "artifact.tgz")

	err := NewClient().Fetch(context.Background(), server.URL, dest)
	require.ErrorIs(t, err, ErrDownloadFailed)
}

// TestFetchEmptyBody ensures an empty download is rejected.
func TestFetchEmptyBody(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "artifact.tgz")

	err := NewClient().Fetch(context.Background(), server.URL, dest)
	require.ErrorIs(t, err, ErrDownloadFailed)
}

// TestFetchFollowsRedirect covers the compose release asset redirect.
func TestFetchFollowsRedirect(t *testing.T) {
	t.Parallel()

	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("compose binary"))
	}))
	defer target.Close()

	redirecting := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target.URL, http.StatusFound)
	}))
	defer redirecting.Close()

	dest := filepath.Join(t.TempDir(), "docker-compose")

	err := NewClient().Fetch(context.Background(), redirecting.URL, dest)
	require.NoError(t, err)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "compose binary", string(data))
}
