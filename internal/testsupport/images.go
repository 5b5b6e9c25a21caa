package testsupport

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

// ImageServer serves fake image payloads under /img/<name>. Paths listed in
// failures answer with the mapped status code instead.
type ImageServer struct {
	*httptest.Server

	mu       sync.Mutex
	failures map[string]int
	hits     atomic.Int64
}

// NewImageServer starts an ImageServer and stops it on cleanup.
func NewImageServer(t testing.TB) *ImageServer {
	t.Helper()

	srv := &ImageServer{failures: map[string]int{}}
	srv.Server = httptest.NewServer(http.HandlerFunc(srv.serve))
	t.Cleanup(srv.Close)
	return srv
}

// Fail makes name answer with status.
func (s *ImageServer) Fail(name string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[name] = status
}

// URL returns the absolute address for name.
func (s *ImageServer) URL(name string) string {
	return s.Server.URL + "/img/" + name
}

// Hits reports how many requests reached the server.
func (s *ImageServer) Hits() int64 {
	return s.hits.Load()
}

// Payload returns the body served for name.
func Payload(name string) []byte {
	return []byte("image:" + name)
}

func (s *ImageServer) serve(w http.ResponseWriter, r *http.Request) {
	s.hits.Add(1)
	name := strings.TrimPrefix(r.URL.Path, "/img/")
	s.mu.Lock()
	status, failed := s.failures[name]
	s.mu.Unlock()
	if failed {
		http.Error(w, http.StatusText(status), status)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	_, _ = w.Write(Payload(name))
}
