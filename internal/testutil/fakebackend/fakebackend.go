// Package fakebackend serves an in-memory data concentrator for tests.
package fakebackend

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// Route names accepted by FailRoute, Hold and Hits.
const (
	RouteList     = "getall"
	RouteAllocate = "allocate"
	RouteGeneric  = "u"
	RouteModbus   = "cmbtcp"
	RouteMqtt     = "cmqtt"
)

var createTargets = map[string]string{
	RouteGeneric: "bucket",
	RouteModbus:  "mbstuff",
	RouteMqtt:    "mqttstuff",
}

type hold struct {
	arrived chan struct{}
	release chan struct{}
	once    sync.Once
}

// Server is a controllable backend double.
type Server struct {
	mu          sync.Mutex
	srv         *httptest.Server
	collections map[string][]json.RawMessage
	rawOverride map[string]string
	statuses    map[string]int
	holds       map[string]*hold
	hits        map[string]int
	posted      map[string][]map[string]any
	uids        []string
}

// New starts a backend double that is closed when t finishes.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		collections: map[string][]json.RawMessage{"bucket": {}, "mbstuff": {}, "mqttstuff": {}},
		rawOverride: make(map[string]string),
		statuses:    make(map[string]int),
		holds:       make(map[string]*hold),
		hits:        make(map[string]int),
		posted:      make(map[string][]map[string]any),
	}
	s.srv = httptest.NewServer(s.router())
	t.Cleanup(func() {
		s.releaseAll()
		s.srv.Close()
	})
	return s
}

func (s *Server) router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/getall/{collection}", s.handleList).Methods(http.MethodGet)
	r.HandleFunc("/c/", s.handleAllocate).Methods(http.MethodGet)
	for route := range createTargets {
		route := route
		r.HandleFunc("/"+route, func(w http.ResponseWriter, req *http.Request) {
			s.handleCreate(route, w, req)
		}).Methods(http.MethodPost)
	}
	return r
}

// URL is the base URL of the running double.
func (s *Server) URL() string {
	return s.srv.URL
}

// SetCollection replaces the list payload for a collection with raw text.
func (s *Server) SetCollection(name string, raw string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rawOverride[name] = raw
}

// FailRoute makes route answer with status until FailRoute(route, 0).
func (s *Server) FailRoute(route string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.statuses, route)
		return
	}
	s.statuses[route] = status
}

// SetUIDs queues identifiers for the allocation route; random uuids follow.
func (s *Server) SetUIDs(uids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uids = append(s.uids, uids...)
}

// Hold parks requests to route until release is called.
// arrived receives once per parked request.
func (s *Server) Hold(route string) (arrived <-chan struct{}, release func()) {
	h := &hold{arrived: make(chan struct{}, 64), release: make(chan struct{})}
	s.mu.Lock()
	s.holds[route] = h
	s.mu.Unlock()
	return h.arrived, func() {
		h.once.Do(func() { close(h.release) })
		s.mu.Lock()
		if s.holds[route] == h {
			delete(s.holds, route)
		}
		s.mu.Unlock()
	}
}

// Hits returns how many requests reached route.
func (s *Server) Hits(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[route]
}

// Posted returns decoded bodies received on a create route.
func (s *Server) Posted(route string) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]any, len(s.posted[route]))
	copy(out, s.posted[route])
	return out
}

func (s *Server) enter(route string) int {
	s.mu.Lock()
	s.hits[route]++
	status := s.statuses[route]
	h := s.holds[route]
	s.mu.Unlock()
	if h != nil {
		select {
		case h.arrived <- struct{}{}:
		default:
		}
		<-h.release
	}
	return status
}

func (s *Server) releaseAll() {
	s.mu.Lock()
	holds := make([]*hold, 0, len(s.holds))
	for _, h := range s.holds {
		holds = append(holds, h)
	}
	s.mu.Unlock()
	for _, h := range holds {
		h.once.Do(func() { close(h.release) })
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	if status := s.enter(RouteList); status != 0 {
		http.Error(w, "forced failure", status)
		return
	}
	name := mux.Vars(r)["collection"]

	s.mu.Lock()
	raw, overridden := s.rawOverride[name]
	items, known := s.collections[name]
	var payload []byte
	if !overridden && known {
		payload, _ = json.Marshal(items)
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case overridden:
		_, _ = io.WriteString(w, raw)
	case known:
		_, _ = w.Write(payload)
	default:
		http.Error(w, "unknown collection", http.StatusNotFound)
	}
}

func (s *Server) handleAllocate(w http.ResponseWriter, r *http.Request) {
	if status := s.enter(RouteAllocate); status != 0 {
		http.Error(w, "forced failure", status)
		return
	}
	s.mu.Lock()
	var uid string
	if len(s.uids) > 0 {
		uid = s.uids[0]
		s.uids = s.uids[1:]
	} else {
		uid = uuid.NewString()
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"uid": uid})
}

func (s *Server) handleCreate(route string, w http.ResponseWriter, r *http.Request) {
	if status := s.enter(route); status != 0 {
		http.Error(w, "forced failure", status)
		return
	}
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	stored := make(map[string]any, len(body)+1)
	for k, v := range body {
		stored[k] = v
	}
	if route == RouteGeneric {
		stored["node_last_update"] = map[string]any{
			"$date": map[string]string{"$numberLong": strconv.FormatInt(time.Now().UnixMilli(), 10)},
		}
	}
	raw, _ := json.Marshal(stored)

	s.mu.Lock()
	s.posted[route] = append(s.posted[route], body)
	collection := createTargets[route]
	s.collections[collection] = append(s.collections[collection], raw)
	s.mu.Unlock()

	w.WriteHeader(http.StatusOK)
}
