package sidecar

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeAnalyzer is the far end of a transport: a scripted peer over
// in-memory pipes standing in for the JVM child.
type fakeAnalyzer struct {
	t      *testing.T
	reader *bufio.Reader
	writer io.Writer

	mu       sync.Mutex
	received []json.RawMessage
}

func newTransportPair(t *testing.T) (*Transport, *fakeAnalyzer) {
	t.Helper()

	fromAnalyzer, analyzerOut := io.Pipe()
	analyzerIn, toAnalyzer := io.Pipe()

	tr := NewTransport(fromAnalyzer, toAnalyzer, zap.NewNop())
	fake := &fakeAnalyzer{
		t:      t,
		reader: bufio.NewReader(analyzerIn),
		writer: analyzerOut,
	}

	t.Cleanup(func() {
		tr.Close(ErrShutdown)
		analyzerOut.Close()
		toAnalyzer.Close()
	})

	return tr, fake
}

// readFrame reads one framed message from the transport side.
func (f *fakeAnalyzer) readFrame() (json.RawMessage, error) {
	contentLength := -1
	for {
		line, err := f.reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		if v, ok := strings.CutPrefix(strings.ToLower(line), "content-length:"); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return nil, err
			}
			contentLength = n
		}
	}
	if contentLength < 0 {
		return nil, fmt.Errorf("missing content length")
	}
	body := make([]byte, contentLength)
	if _, err := io.ReadFull(f.reader, body); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.received = append(f.received, body)
	f.mu.Unlock()
	return body, nil
}

// writeFrame writes one framed message toward the transport.
func (f *fakeAnalyzer) writeFrame(v any) {
	data, err := json.Marshal(v)
	require.NoError(f.t, err)
	_, err = fmt.Fprintf(f.writer, "Content-Length: %d\r\n\r\n%s", len(data), data)
	require.NoError(f.t, err)
}

// writeRaw writes raw bytes toward the transport.
func (f *fakeAnalyzer) writeRaw(s string) {
	_, err := io.WriteString(f.writer, s)
	require.NoError(f.t, err)
}

// respondToNext reads one request and responds with result.
func (f *fakeAnalyzer) respondToNext(result any) {
	frame, err := f.readFrame()
	require.NoError(f.t, err)

	var req struct {
		ID     int64  `json:"id"`
		Method string `json:"method"`
	}
	require.NoError(f.t, json.Unmarshal(frame, &req))

	f.writeFrame(map[string]any{
		"jsonrpc": "2.0",
		"id":      req.ID,
		"result":  result,
	})
}

func TestTransportCallResponse(t *testing.T) {
	tr, fake := newTransportPair(t)
	tr.Start(context.Background())

	go fake.respondToNext(map[string]any{"pong": true})

	var result PingResult
	err := tr.Call(context.Background(), MethodPing, struct{}{}, &result)
	require.NoError(t, err)
	assert.True(t, result.Pong)
}

func TestTransportIDsStartAtOne(t *testing.T) {
	tr, fake := newTransportPair(t)
	tr.Start(context.Background())

	ids := make(chan int64, 2)
	go func() {
		for i := 0; i < 2; i++ {
			frame, err := fake.readFrame()
			if err != nil {
				return
			}
			var req struct {
				ID int64 `json:"id"`
			}
			if json.Unmarshal(frame, &req) == nil {
				ids <- req.ID
				fake.writeFrame(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": map[string]any{"pong": true}})
			}
		}
	}()

	var result PingResult
	require.NoError(t, tr.Call(context.Background(), MethodPing, struct{}{}, &result))
	require.NoError(t, tr.Call(context.Background(), MethodPing, struct{}{}, &result))

	assert.Equal(t, int64(1), <-ids)
	assert.Equal(t, int64(2), <-ids)
}

func TestTransportErrorResponse(t *testing.T) {
	tr, fake := newTransportPair(t)
	tr.Start(context.Background())

	go func() {
		frame, err := fake.readFrame()
		if err != nil {
			return
		}
		var req struct {
			ID int64 `json:"id"`
		}
		if json.Unmarshal(frame, &req) == nil {
			fake.writeFrame(map[string]any{
				"jsonrpc": "2.0",
				"id":      req.ID,
				"error":   map[string]any{"code": CodeMethodNotFound, "message": "nope"},
			})
		}
	}()

	err := tr.Call(context.Background(), "bogus", struct{}{}, nil)
	assert.ErrorIs(t, err, ErrNotSupported)
}

func TestTransportNotificationDispatch(t *testing.T) {
	tr, fake := newTransportPair(t)

	got := make(chan string, 1)
	tr.OnNotification("log", func(method string, params json.RawMessage) {
		var p struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(params, &p)
		got <- p.Message
	})
	tr.Start(context.Background())

	fake.writeFrame(map[string]any{
		"jsonrpc": "2.0",
		"method":  "log",
		"params":  map[string]any{"level": "info", "message": "warmup done"},
	})

	select {
	case msg := <-got:
		assert.Equal(t, "warmup done", msg)
	case <-time.After(2 * time.Second):
		t.Fatal("notification was not dispatched")
	}
}

func TestTransportMalformedFrameResync(t *testing.T) {
	tr, fake := newTransportPair(t)

	got := make(chan struct{}, 1)
	tr.OnNotification("log", func(string, json.RawMessage) {
		got <- struct{}{}
	})
	tr.Start(context.Background())

	// Garbage without a usable header, then a valid frame. The reader
	// must skip to the next Content-Length marker and keep going.
	fake.writeRaw("this is not a frame\r\n\r\n")
	fake.writeFrame(map[string]any{"jsonrpc": "2.0", "method": "log", "params": map[string]any{}})

	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("transport did not resynchronize after malformed frame")
	}
}

func TestTransportLengthMismatchIsSkipped(t *testing.T) {
	tr, fake := newTransportPair(t)

	got := make(chan struct{}, 1)
	tr.OnNotification("log", func(string, json.RawMessage) {
		got <- struct{}{}
	})
	tr.Start(context.Background())

	// Declared length shorter than the actual body: the reader picks
	// up a truncated, invalid body and must resynchronize on the next
	// Content-Length marker even though it is glued to leftover bytes.
	fake.writeRaw("Content-Length: 4\r\n\r\n{\"method\":\"junk\"}")
	fake.writeFrame(map[string]any{"jsonrpc": "2.0", "method": "log", "params": map[string]any{}})

	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("transport did not recover from length mismatch")
	}
}

func TestTransportDegradedAfterRepeatedMalformed(t *testing.T) {
	tr, fake := newTransportPair(t)

	degraded := make(chan struct{}, 1)
	tr.OnDegraded(func() {
		select {
		case degraded <- struct{}{}:
		default:
		}
	})
	tr.Start(context.Background())

	// Three framed bodies that are not JSON: each is one malformed
	// frame, and each header is the marker the previous resync stops at.
	for i := 0; i < 3; i++ {
		fake.writeRaw("Content-Length: 3\r\n\r\nxyz")
	}

	select {
	case <-degraded:
	case <-time.After(2 * time.Second):
		t.Fatal("transport did not report degradation")
	}
}

func TestTransportCloseFailsPendingCalls(t *testing.T) {
	tr, fake := newTransportPair(t)
	tr.Start(context.Background())

	// Swallow the outbound frame; the analyzer never answers.
	go func() { _, _ = io.Copy(io.Discard, fake.reader) }()

	errCh := make(chan error, 1)
	go func() {
		errCh <- tr.Call(context.Background(), MethodHover, PositionParams{URI: "file:///a.kt", Line: 1, Character: 1}, nil)
	}()

	// Give the call time to register before tearing down.
	time.Sleep(50 * time.Millisecond)
	tr.Close(ErrRestarted)

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrRestarted)
	case <-time.After(2 * time.Second):
		t.Fatal("pending call was not resolved on close")
	}
}

func TestTransportCancelledCallSendsCancelNotification(t *testing.T) {
	tr, fake := newTransportPair(t)
	tr.Start(context.Background())

	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- tr.Call(ctx, MethodCompletion, PositionParams{URI: "file:///a.kt", Line: 3, Character: 5}, nil)
	}()

	// The request frame arrives first.
	frame, err := fake.readFrame()
	require.NoError(t, err)
	var req struct {
		ID     int64  `json:"id"`
		Method string `json:"method"`
	}
	require.NoError(t, json.Unmarshal(frame, &req))
	assert.Equal(t, MethodCompletion, req.Method)

	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)

	// Then the cancellation notification for the same id.
	frame, err = fake.readFrame()
	require.NoError(t, err)
	var notif struct {
		Method string       `json:"method"`
		Params CancelParams `json:"params"`
	}
	require.NoError(t, json.Unmarshal(frame, &notif))
	assert.Equal(t, MethodCancelRequest, notif.Method)
	assert.Equal(t, req.ID, notif.Params.ID)

	// A late response for the abandoned id is discarded silently and
	// releases the correlation entry.
	fake.writeFrame(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": map[string]any{"items": []any{}}})
	assert.Eventually(t, func() bool { return tr.PendingCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}
