// Package controllertest provides an in-memory OpenDaylight RESTCONF
// inventory for tests.
package controllertest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
)

const nodesPrefix = "/restconf/config/opendaylight-inventory:nodes/node/"

// Request is a request observed by the server.
type Request struct {
	Method string
	// Node, Table and Flow are the decoded path elements; Flow is empty
	// for table-wide requests.
	Node  string
	Table string
	Flow  string
	Body  []byte
}

type tableKey struct {
	node  string
	table string
}

// Server is a fake RESTCONF flow inventory with upsert semantics.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	tables   map[tableKey]map[string]json.RawMessage
	requests []Request
	failures []int
	username string
	password string
}

// NewServer starts a fake inventory. When username is not empty requests
// without matching basic credentials are rejected with 401.
func NewServer(username string, password string) *Server {
	s := &Server{
		tables:   map[tableKey]map[string]json.RawMessage{},
		username: username,
		password: password,
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serveHTTP))
	return s
}

// FailNext makes the next len(codes) requests fail with the given status
// codes, in order.
func (m *Server) FailNext(codes ...int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, codes...)
}

// Flows returns the identities of the flows currently stored in the
// table.
func (m *Server) Flows(node string, table string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.tables[tableKey{node, table}]))
	for id := range m.tables[tableKey{node, table}] {
		ids = append(ids, id)
	}
	return ids
}

// Flow returns the stored body of the flow, if any.
func (m *Server) Flow(node string, table string, id string) (json.RawMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	body, ok := m.tables[tableKey{node, table}][id]
	return body, ok
}

// Put stores a flow directly, bypassing HTTP.
func (m *Server) Put(node string, table string, id string, body json.RawMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store(tableKey{node, table}, id, body)
}

// Requests returns the requests observed so far.
func (m *Server) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

func (m *Server) store(key tableKey, id string, body json.RawMessage) bool {
	flows, ok := m.tables[key]
	if !ok {
		flows = map[string]json.RawMessage{}
		m.tables[key] = flows
	}
	_, existed := flows[id]
	flows[id] = body
	return existed
}

func (m *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	req, ok := parsePath(r.URL.EscapedPath())
	if !ok {
		http.Error(w, "unknown resource", http.StatusBadRequest)
		return
	}
	req.Method = r.Method
	req.Body = body

	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)

	if m.username != "" {
		username, password, ok := r.BasicAuth()
		if !ok || username != m.username || password != m.password {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}
	if len(m.failures) > 0 {
		code := m.failures[0]
		m.failures = m.failures[1:]
		http.Error(w, "injected failure", code)
		return
	}

	key := tableKey{req.Node, req.Table}

	switch {
	case r.Method == http.MethodPut && req.Flow != "":
		if !json.Valid(body) {
			http.Error(w, "malformed body", http.StatusBadRequest)
			return
		}
		if m.store(key, req.Flow, body) {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusCreated)
		}
	case r.Method == http.MethodDelete && req.Flow != "":
		if _, ok := m.tables[key][req.Flow]; !ok {
			http.Error(w, "data-missing", http.StatusNotFound)
			return
		}
		delete(m.tables[key], req.Flow)
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodDelete:
		if len(m.tables[key]) == 0 {
			http.Error(w, "data-missing", http.StatusNotFound)
			return
		}
		delete(m.tables, key)
		w.WriteHeader(http.StatusOK)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// parsePath splits "<prefix><node>/table/<table>[/flow/<id>]".
func parsePath(path string) (Request, bool) {
	rest, ok := strings.CutPrefix(path, nodesPrefix)
	if !ok {
		return Request{}, false
	}

	parts := strings.Split(rest, "/")
	if len(parts) != 3 && len(parts) != 5 {
		return Request{}, false
	}
	if parts[1] != "table" || (len(parts) == 5 && parts[3] != "flow") {
		return Request{}, false
	}

	decoded := make([]string, len(parts))
	for i, p := range parts {
		v, err := url.PathUnescape(p)
		if err != nil {
			return Request{}, false
		}
		decoded[i] = v
	}

	req := Request{Node: decoded[0], Table: decoded[2]}
	if len(decoded) == 5 {
		req.Flow = decoded[4]
	}
	return req, true
}
