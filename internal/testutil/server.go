package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// Request is one call recorded by FlowServer.
type Request struct {
	Method      string
	Path        string
	Body        []byte
	ContentType string
	Auth        string
	RequestID   string
}

// Reply is a scripted response. Delay holds the response back after the
// request has been recorded.
type Reply struct {
	Status int
	Body   string
	Delay  time.Duration
}

// FlowServer is a fake orchestration API that records every request and
// answers from per-route scripts. Unscripted routes answer 201 to POST and
// 200 to PUT.
type FlowServer struct {
	*httptest.Server

	mu       sync.Mutex
	requests []Request
	scripts  map[string][]Reply
}

// NewFlowServer starts a FlowServer closed at test cleanup.
func NewFlowServer(t *testing.T) *FlowServer {
	t.Helper()
	fs := &FlowServer{scripts: map[string][]Reply{}}
	fs.Server = httptest.NewServer(http.HandlerFunc(fs.handle))
	t.Cleanup(fs.Close)
	return fs
}

// Script queues replies for method+path, consumed in order. The last reply
// repeats once the queue is drained.
func (fs *FlowServer) Script(method, path string, replies ...Reply) *FlowServer {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	key := method + " " + path
	fs.scripts[key] = append(fs.scripts[key], replies...)
	return fs
}

// Requests returns a copy of the recorded requests.
func (fs *FlowServer) Requests() []Request {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	out := make([]Request, len(fs.requests))
	copy(out, fs.requests)
	return out
}

// Count returns how many requests matched method.
func (fs *FlowServer) Count(method string) int {
	n := 0
	for _, r := range fs.Requests() {
		if r.Method == method {
			n++
		}
	}
	return n
}

// Reset forgets recorded requests and scripted replies, so later calls get
// the default answers until new replies are scripted.
func (fs *FlowServer) Reset() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.requests = nil
	clear(fs.scripts)
}

func (fs *FlowServer) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	fs.mu.Lock()
	fs.requests = append(fs.requests, Request{
		Method:      r.Method,
		Path:        r.URL.EscapedPath(),
		Body:        body,
		ContentType: r.Header.Get("Content-Type"),
		Auth:        r.Header.Get("Authorization"),
		RequestID:   r.Header.Get("X-Request-ID"),
	})
	reply := fs.next(r.Method + " " + r.URL.EscapedPath())
	fs.mu.Unlock()

	if reply.Delay > 0 {
		time.Sleep(reply.Delay)
	}

	if reply.Status == 0 {
		switch r.Method {
		case http.MethodPost:
			reply = Reply{Status: http.StatusCreated, Body: `{}`}
		default:
			reply = Reply{Status: http.StatusOK, Body: `{}`}
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(reply.Status)
	_, _ = io.WriteString(w, reply.Body)
}

// next must be called with mu held.
func (fs *FlowServer) next(key string) Reply {
	queue := fs.scripts[key]
	switch len(queue) {
	case 0:
		return Reply{}
	case 1:
		return queue[0]
	default:
		fs.scripts[key] = queue[1:]
		return queue[0]
	}
}
