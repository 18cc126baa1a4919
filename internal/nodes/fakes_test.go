package nodes

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/shaiso/Flowline/internal/domain"
	"github.com/shaiso/Flowline/internal/engine"
)

// spyTransport считает исходящие HTTP запросы и ничего не отправляет.
type spyTransport struct {
	mu    sync.Mutex
	calls int
}

func (s *spyTransport) RoundTrip(*http.Request) (*http.Response, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return nil, errors.New("network disabled in tests")
}

func (s *spyTransport) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type spyChat struct {
	calls int
	reply string
	err   error
	last  ChatRequest
}

func (s *spyChat) Complete(_ context.Context, req ChatRequest) (string, error) {
	s.calls++
	s.last = req
	return s.reply, s.err
}

type spyImages struct{ calls int }

func (s *spyImages) GenerateImage(context.Context, ImageRequest) (string, error) {
	s.calls++
	return "https://images.example/1.png", nil
}

type spyCompleter struct {
	calls int
	last  CompletionRequest
}

func (s *spyCompleter) CreateChatCompletion(_ context.Context, req CompletionRequest) (map[string]any, error) {
	s.calls++
	s.last = req
	return map[string]any{"id": "chatcmpl-1"}, nil
}

type spyMailer struct {
	calls int
	last  Email
}

func (s *spyMailer) Send(_ context.Context, _ SMTPConfig, msg Email) (*SendResult, error) {
	s.calls++
	s.last = msg
	return &SendResult{MessageID: "<1@test>", Accepted: msg.To}, nil
}

// fakeConn — соединение с заданным результатом.
type fakeConn struct {
	rows     []map[string]any
	err      error
	released *int
	lastSQL  string
	lastArgs []any
}

func (c *fakeConn) Query(_ context.Context, sql string, args ...any) ([]map[string]any, int64, error) {
	c.lastSQL = sql
	c.lastArgs = args
	if c.err != nil {
		return nil, 0, c.err
	}
	return c.rows, int64(len(c.rows)), nil
}

func (c *fakeConn) Release() { *c.released++ }

// fakePools — пул с одним соединением, считает Acquire/Release.
type fakePools struct {
	conn     *fakeConn
	acquired int
	released int
	connStr  string
}

func newFakePools(rows []map[string]any, err error) *fakePools {
	p := &fakePools{}
	p.conn = &fakeConn{rows: rows, err: err, released: &p.released}
	return p
}

func (p *fakePools) Pool(_ context.Context, connString string) (ConnPool, error) {
	p.connStr = connString
	return p, nil
}

func (p *fakePools) Acquire(context.Context) (Conn, error) {
	p.acquired++
	return p.conn, nil
}

// newRequest собирает Request для узла.
func newRequest(typ domain.NodeType, config map[string]any, exec *ExecutionContext) *Request {
	if exec == nil {
		exec = &ExecutionContext{UserID: "u1"}
	}
	return &Request{
		Node:   &domain.Node{ID: "n1", Type: typ, Name: "Test"},
		Config: config,
		Exec:   exec,
		Bag:    engine.NewDataBag(),
		Logs:   engine.NewLogSequence(),
	}
}

func hasLog(logs *engine.LogSequence, substr string) bool {
	for _, e := range logs.Entries() {
		if strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

func mustExecute(t *testing.T, exec Executor, req *Request) Output {
	t.Helper()
	out, err := exec.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("%s: unexpected error: %v", exec.Type(), err)
	}
	return out
}
