// Package nodetest provides an in-process fake of a node's /v1/group endpoint
// with scripted status codes, for tests.
package nodetest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/draftea/group-coordinator/group-service/domain"
)

// Request is one request received by a fake node
type Request struct {
	Method  string
	GroupID string
}

// Node is a fake node. Unscripted requests get 201 for POST, 200 for DELETE
// and 404 for GET.
type Node struct {
	server *httptest.Server

	mu        sync.Mutex
	requests  []Request
	responses map[string][]int
}

func NewNode(t testing.TB) *Node {
	t.Helper()

	n := &Node{responses: make(map[string][]int)}
	n.server = httptest.NewServer(http.HandlerFunc(n.serve))
	t.Cleanup(n.server.Close)
	return n
}

// NewCluster starts count fake nodes
func NewCluster(t testing.TB, count int) []*Node {
	t.Helper()

	nodes := make([]*Node, count)
	for i := range nodes {
		nodes[i] = NewNode(t)
	}
	return nodes
}

// Hosts returns the node identifiers of the given fake nodes, in order
func Hosts(nodes []*Node) []domain.Node {
	hosts := make([]domain.Node, len(nodes))
	for i, n := range nodes {
		hosts[i] = n.Host()
	}
	return hosts
}

// Host returns the node identifier (host:port) of the fake node
func (n *Node) Host() domain.Node {
	return domain.Node(strings.TrimPrefix(n.server.URL, "http://"))
}

// Respond scripts the status codes returned for method, in order. The last
// status keeps being returned once the script is exhausted.
func (n *Node) Respond(method string, statuses ...int) *Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.responses[method] = append([]int(nil), statuses...)
	return n
}

// Requests returns every request received so far
func (n *Node) Requests() []Request {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Request(nil), n.requests...)
}

// Count returns how many requests with method were received
func (n *Node) Count(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()

	count := 0
	for _, r := range n.requests {
		if r.Method == method {
			count++
		}
	}
	return count
}

func (n *Node) serve(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/group" {
		http.NotFound(w, r)
		return
	}

	groupID := r.URL.Query().Get("groupId")
	if r.Method == http.MethodPost {
		var body struct {
			GroupID string `json:"groupId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad json", http.StatusUnprocessableEntity)
			return
		}
		groupID = body.GroupID
	}

	n.mu.Lock()
	n.requests = append(n.requests, Request{Method: r.Method, GroupID: groupID})
	status := n.nextStatus(r.Method)
	n.mu.Unlock()

	w.WriteHeader(status)
}

func (n *Node) nextStatus(method string) int {
	script := n.responses[method]
	if len(script) == 0 {
		switch method {
		case http.MethodPost:
			return http.StatusCreated
		case http.MethodDelete:
			return http.StatusOK
		default:
			return http.StatusNotFound
		}
	}

	status := script[0]
	if len(script) > 1 {
		n.responses[method] = script[1:]
	}
	return status
}
