package sidecar

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tomatitito/kotlin-analyzer/internal/config"
	"github.com/tomatitito/kotlin-analyzer/internal/document"
)

func testContext() config.ProjectContext {
	return config.ProjectContext{
		ProjectRoot: "/work/project",
		Classpath:   []string{"/lib/kotlin-stdlib.jar"},
		JDKHome:     "/opt/jdk",
		SourceRoots: []string{"src/main/kotlin"},
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "idle"},
		{StateStarting, "starting"},
		{StateReady, "ready"},
		{StateDegraded, "degraded"},
		{StateRestarting, "restarting"},
		{StateFailed, "failed"},
		{StateStopped, "stopped"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.String())
	}
}

func TestOptionsDefaults(t *testing.T) {
	var opts Options
	opts.applyDefaults()

	assert.Equal(t, 30*time.Second, opts.InitTimeout)
	assert.Equal(t, 30*time.Second, opts.HeartbeatInterval)
	assert.Equal(t, 10*time.Second, opts.HeartbeatTimeout)
	assert.Equal(t, 5, opts.FailLimit)
	assert.Equal(t, 120*time.Second, opts.FailWindow)
	require.Len(t, opts.BackoffSteps, 6)
	assert.Equal(t, 1*time.Second, opts.BackoffSteps[0])
	assert.Equal(t, 30*time.Second, opts.BackoffSteps[5])
}

func TestShutdownBeforeStart(t *testing.T) {
	store := document.NewStore()
	s := New(Options{Command: []string{"true"}}, testContext, store, zap.NewNop(), nil)

	require.NoError(t, s.Shutdown(context.Background()))
	assert.Equal(t, StateStopped, s.State())
}

// TestUnrecoverableAfterRepeatedSpawnFailures drives the supervisor
// against a command that cannot be spawned. After the failure budget is
// spent, semantic requests must fail fast with ErrUnavailable.
func TestUnrecoverableAfterRepeatedSpawnFailures(t *testing.T) {
	store := document.NewStore()
	s := New(Options{
		Command:      []string{"/nonexistent/kotlin-analyzer-test-binary"},
		BackoffSteps: []time.Duration{time.Millisecond, time.Millisecond},
		FailLimit:    3,
		FailWindow:   time.Hour,
	}, testContext, store, zap.NewNop(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var result PingResult
	err := s.Invoke(ctx, MethodPing, struct{}{}, &result)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, StateFailed, s.State())

	// Later requests fail immediately.
	err = s.Invoke(context.Background(), MethodPing, struct{}{}, &result)
	assert.ErrorIs(t, err, ErrUnavailable)
}

// scriptedInstance builds an instance whose transport talks to an
// in-memory peer instead of a real child process.
func scriptedInstance(t *testing.T) (*instance, *bufio.Reader, io.Writer) {
	t.Helper()

	fromAnalyzer, analyzerOut := io.Pipe()
	analyzerIn, toAnalyzer := io.Pipe()

	in := &instance{
		id:   "test-instance",
		gen:  1,
		dead: make(chan struct{}),
	}
	in.log = zap.NewNop()
	in.transport = NewTransport(fromAnalyzer, toAnalyzer, zap.NewNop())
	in.transport.Start(context.Background())

	t.Cleanup(func() {
		in.transport.Close(ErrShutdown)
		analyzerOut.Close()
		toAnalyzer.Close()
	})

	return in, bufio.NewReader(analyzerIn), analyzerOut
}

type scriptedMessage struct {
	ID     int64           `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

func readScriptedFrame(t *testing.T, r *bufio.Reader) scriptedMessage {
	t.Helper()

	var contentLength int
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = trimEOL(line)
		if line == "" {
			break
		}
		if n, ok := parseContentLength(line); ok {
			contentLength = n
		}
	}
	body := make([]byte, contentLength)
	_, err := io.ReadFull(r, body)
	require.NoError(t, err)

	var msg scriptedMessage
	require.NoError(t, json.Unmarshal(body, &msg))
	return msg
}

func trimEOL(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

func parseContentLength(line string) (int, bool) {
	const prefix = "Content-Length:"
	if len(line) <= len(prefix) || line[:len(prefix)] != prefix {
		return 0, false
	}
	n := 0
	for _, c := range line[len(prefix):] {
		if c == ' ' {
			continue
		}
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}

func writeScriptedResponse(t *testing.T, w io.Writer, id int64, result any) {
	t.Helper()
	data, err := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": id, "result": result})
	require.NoError(t, err)
	_, err = io.WriteString(w, "Content-Length: ")
	require.NoError(t, err)
	_, err = io.WriteString(w, itoa(len(data))+"\r\n\r\n"+string(data))
	require.NoError(t, err)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var b []byte
	for n > 0 {
		b = append([]byte{byte('0' + n%10)}, b...)
		n /= 10
	}
	return string(b)
}

// TestReplaySequence verifies the bring-up order into a fresh
// instance: initialize with the project context, one didOpen per open
// document, then a ping before any semantic traffic.
func TestReplaySequence(t *testing.T) {
	store := document.NewStore()
	store.Open("file:///a.kt", 7, "fun a() {}")
	store.Open("file:///b.kt", 3, "fun b() {}")

	s := New(Options{Command: []string{"true"}}, testContext, store, zap.NewNop(), nil)

	in, reader, writer := scriptedInstance(t)

	sequence := make(chan string, 8)
	go func() {
		for {
			msg := readScriptedFrame(t, reader)
			sequence <- msg.Method

			switch msg.Method {
			case MethodInitialize:
				var params InitializeParams
				if json.Unmarshal(msg.Params, &params) == nil {
					assert.Equal(t, "/work/project", params.ProjectRoot)
					assert.Equal(t, "/opt/jdk", params.JDKHome)
				}
				writeScriptedResponse(t, writer, msg.ID, InitializeResult{Success: true, KotlinVersion: "2.0.21"})
			case MethodPing:
				writeScriptedResponse(t, writer, msg.ID, PingResult{Pong: true})
				return
			}
		}
	}()

	require.NoError(t, s.replay(in))

	assert.Equal(t, MethodInitialize, <-sequence)
	opened := []string{<-sequence, <-sequence}
	assert.Equal(t, []string{MethodDidOpen, MethodDidOpen}, opened)
	assert.Equal(t, MethodPing, <-sequence)
}

// TestReplayFailsWhenInitializeTimesOut covers the Starting →
// Restarting transition input: a silent analyzer.
func TestReplayFailsWhenInitializeTimesOut(t *testing.T) {
	store := document.NewStore()
	s := New(Options{
		Command:     []string{"true"},
		InitTimeout: 50 * time.Millisecond,
	}, testContext, store, zap.NewNop(), nil)

	in, reader, _ := scriptedInstance(t)

	// Swallow the outbound initialize frame; the analyzer stays silent.
	go func() { _, _ = io.Copy(io.Discard, reader) }()

	err := s.replay(in)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDirtyFlushReopensFromStore(t *testing.T) {
	store := document.NewStore()
	store.Open("file:///a.kt", 2, "val x = 2")

	s := New(Options{Command: []string{"true"}}, testContext, store, zap.NewNop(), nil)

	// A sync arriving while no instance is live marks the URI dirty.
	s.Sync(MethodDidChange, "file:///a.kt", TextDocumentParams{URI: "file:///a.kt", Text: "val x = 2"})

	in, reader, _ := scriptedInstance(t)

	got := make(chan scriptedMessage, 1)
	go func() {
		got <- readScriptedFrame(t, reader)
	}()

	s.mu.Lock()
	s.flushDirtyLocked(in)
	s.mu.Unlock()

	select {
	case msg := <-got:
		assert.Equal(t, MethodDidOpen, msg.Method)
		var params TextDocumentParams
		require.NoError(t, json.Unmarshal(msg.Params, &params))
		assert.Equal(t, "val x = 2", params.Text)
	case <-time.After(2 * time.Second):
		t.Fatal("dirty document was not re-opened")
	}

	s.mu.Lock()
	assert.Empty(t, s.dirty)
	s.mu.Unlock()
}
