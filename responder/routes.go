package responder

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
)

// Routes serves many responders on one handler, keyed by request path.
type Routes struct {
	mu         sync.RWMutex
	responders map[string]*Responder
}

func NewRoutes() *Routes {
	return &Routes{responders: make(map[string]*Responder)}
}

// Register adds r. A route can only be registered once.
func (rs *Routes) Register(r *Responder) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if _, exists := rs.responders[r.Route()]; exists {
		return fmt.Errorf("responder for '%s' already registered", r.Route())
	}
	rs.responders[r.Route()] = r
	return nil
}

func (rs *Routes) Exists(route string) bool {
	_, ok := rs.lookup(route)
	return ok
}

func (rs *Routes) List() []string {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	routes := make([]string, 0, len(rs.responders))
	for route := range rs.responders {
		routes = append(routes, route)
	}
	sort.Strings(routes)
	return routes
}

func (rs *Routes) lookup(route string) (*Responder, bool) {
	route = "/" + strings.Trim(route, "/")
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	r, ok := rs.responders[route]
	return r, ok
}

func (rs *Routes) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r, ok := rs.lookup(req.URL.Path)
	if !ok {
		http.NotFound(w, req)
		return
	}
	r.ServeHTTP(w, req)
}
