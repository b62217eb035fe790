package testsupport

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// ArchiveServer imitates the ECMC download directory. Archives are served
// under /prod/<name>; anything else is a 404.
type ArchiveServer struct {
	server *httptest.Server

	mu       sync.Mutex
	archives map[string][]byte
	agents   []string
	hits     map[string]int
}

// NewArchiveServer starts a server that is closed when the test ends.
func NewArchiveServer(t testing.TB) *ArchiveServer {
	t.Helper()
	a := &ArchiveServer{archives: map[string][]byte{}, hits: map[string]int{}}
	a.server = httptest.NewServer(a)
	t.Cleanup(a.server.Close)
	return a
}

// BaseURL is the value for fetch.base_url.
func (a *ArchiveServer) BaseURL() string { return a.server.URL + "/prod/" }

// Set publishes or replaces an archive.
func (a *ArchiveServer) Set(name string, data []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.archives[name] = data
}

// UserAgents returns the User-Agent of every request so far.
func (a *ArchiveServer) UserAgents() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.agents...)
}

// Hits reports how often an archive was requested.
func (a *ArchiveServer) Hits(name string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hits[name]
}

func (a *ArchiveServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.agents = append(a.agents, r.UserAgent())
	name := strings.TrimPrefix(r.URL.Path, "/prod/")
	a.hits[name]++
	data, ok := a.archives[name]
	if !ok {
		http.NotFound(w, r)
		return
	}
	_, _ = w.Write(data)
}
