package engine

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	derrors "github.com/docdex/docdex/internal/errors"
)

// Engine methods spoken over the wire.
const (
	methodBuildIndex = "build_index"
	methodSearch     = "search"
)

// rpcRequest is a JSON-RPC 2.0 request sent to the engine subprocess.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// rpcResponse is a JSON-RPC 2.0 response read from the engine subprocess.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError is a JSON-RPC 2.0 error object.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return e.Message
}

type buildIndexParams struct {
	Path string `json:"path"`
}

type searchParams struct {
	Query      string `json:"query"`
	Collection string `json:"collection,omitempty"`
	MaxResults int    `json:"max_results"`
}

// Subprocess talks JSON-RPC 2.0 over the stdio of a spawned engine process.
// One request line out, one response line back; responses may arrive out of
// order, matched by ID.
type Subprocess struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	encoder *json.Encoder
	scanner *bufio.Scanner

	nextID  atomic.Int64
	mu      sync.Mutex
	pending map[int64]chan *rpcResponse
	done    chan struct{}
	closed  bool
}

// NewSubprocess spawns the engine command and starts the response reader.
func NewSubprocess(command string, args ...string) (*Subprocess, error) {
	if command == "" {
		return nil, derrors.InvalidInput("engine command is not configured")
	}

	cmd := exec.Command(command, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open engine stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open engine stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open engine stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, derrors.Wrap(derrors.CodeEngineUnavailable, "failed to start engine", err)
	}

	scanner := bufio.NewScanner(stdout)
	// Results can carry whole document sections; allow large lines (10MB).
	buf := make([]byte, 10*1024*1024)
	scanner.Buffer(buf, len(buf))

	s := &Subprocess{
		cmd:     cmd,
		stdin:   stdin,
		encoder: json.NewEncoder(stdin),
		scanner: scanner,
		pending: make(map[int64]chan *rpcResponse),
		done:    make(chan struct{}),
	}

	go s.readLoop()
	go drainStderr(stderr)

	slog.Debug("engine subprocess started",
		slog.String("command", command),
		slog.Int("pid", cmd.Process.Pid))

	return s, nil
}

// drainStderr forwards engine diagnostics to the log until stderr closes.
func drainStderr(r io.Reader) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			slog.Warn("engine stderr", slog.String("line", line))
		}
	}
}

// readLoop reads response lines from the engine until stdout closes.
func (s *Subprocess) readLoop() {
	defer close(s.done)

	for s.scanner.Scan() {
		line := s.scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var resp rpcResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			slog.Warn("engine sent unparseable response line", slog.String("error", err.Error()))
			continue
		}

		s.mu.Lock()
		ch, ok := s.pending[resp.ID]
		if ok {
			delete(s.pending, resp.ID)
		}
		s.mu.Unlock()

		if ok {
			ch <- &resp
		}
	}
}

// call sends one request and waits for its response or context expiry.
func (s *Subprocess) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := s.nextID.Add(1)
	ch := make(chan *rpcResponse, 1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, derrors.New(derrors.CodeEngineUnavailable, "engine is closed")
	}
	s.pending[id] = ch
	err := s.encoder.Encode(&rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	s.mu.Unlock()

	if err != nil {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
		return nil, derrors.Wrap(derrors.CodeEngineUnavailable, "failed to send engine request", err)
	}

	select {
	case <-ctx.Done():
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
		if ctx.Err() == context.DeadlineExceeded {
			return nil, derrors.Wrap(derrors.CodeEngineTimeout, method+" timed out", ctx.Err())
		}
		return nil, ctx.Err()
	case <-s.done:
		return nil, derrors.New(derrors.CodeEngineUnavailable, "engine process exited")
	case resp := <-ch:
		if resp.Error != nil {
			return nil, derrors.Wrap(derrors.CodeEngineUnavailable, "engine error", resp.Error)
		}
		return resp.Result, nil
	}
}

// BuildIndex implements Indexer.
func (s *Subprocess) BuildIndex(ctx context.Context, path string) (*BuildResult, error) {
	start := time.Now()

	raw, err := s.call(ctx, methodBuildIndex, buildIndexParams{Path: path})
	if err != nil {
		return nil, err
	}

	var result BuildResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, derrors.Wrap(derrors.CodeEngineUnavailable, "malformed build_index result", err)
	}
	if result.Duration == 0 {
		result.Duration = time.Since(start)
	}

	return &result, nil
}

// Search implements Searcher.
func (s *Subprocess) Search(ctx context.Context, query, collection string, maxResults int) ([]Result, error) {
	raw, err := s.call(ctx, methodSearch, searchParams{
		Query:      query,
		Collection: collection,
		MaxResults: maxResults,
	})
	if err != nil {
		return nil, err
	}

	var results []Result
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, derrors.Wrap(derrors.CodeEngineUnavailable, "malformed search result", err)
	}

	// No matches is an empty slice, never nil, so callers can cache it.
	if results == nil {
		results = []Result{}
	}

	return results, nil
}

// Close shuts down the subprocess, waiting briefly for a clean exit.
func (s *Subprocess) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	// Closing stdin signals the engine to exit.
	_ = s.stdin.Close()

	waitCh := make(chan error, 1)
	go func() { waitCh <- s.cmd.Wait() }()

	select {
	case err := <-waitCh:
		return err
	case <-time.After(5 * time.Second):
		_ = s.cmd.Process.Kill()
		return <-waitCh
	}
}
