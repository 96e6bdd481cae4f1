package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandler_ServesDefaultRegistry(t *testing.T) {
	srv := httptest.NewServer(Handler(""))
	defer srv.Close()

	resp, err := http.Get(srv.URL + DefaultPath)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "go_goroutines")

	other, err := http.Get(srv.URL + "/other")
	require.NoError(t, err)
	defer other.Body.Close()
	require.Equal(t, http.StatusNotFound, other.StatusCode)
}

func TestServe_EmptyAddrIsDisabled(t *testing.T) {
	require.NoError(t, Serve(context.Background(), "", "", nil))
}
