package engine

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// newStatusServer returns the URL of a server answering every request with
// status
func newStatusServer(t *testing.T, status int) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}
