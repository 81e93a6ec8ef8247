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
	"sync/atomic"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

// NotificationHandler handles incoming notifications from the analyzer.
type NotificationHandler func(method string, params json.RawMessage)

// malformedWindow and malformedLimit implement the degrade rule: three
// malformed frames within the window trip the callback.
const (
	malformedWindow = 5 * time.Second
	malformedLimit  = 3
)

// errMalformedFrame marks a frame the reader skipped over.
var errMalformedFrame = fmt.Errorf("malformed frame")

// Transport handles JSON-RPC 2.0 communication with one analyzer
// instance over its stdin/stdout pipes. Request ids start at 1 and are
// unique within the instance; a fresh Transport is created per spawn,
// which is what resets them across epochs.
type Transport struct {
	reader *bufio.Reader
	writer io.Writer
	log    *zap.Logger

	writeMu sync.Mutex

	nextID  atomic.Int64
	mu      sync.Mutex
	pending map[int64]*pendingCall

	handlers   map[string]NotificationHandler
	handlersMu sync.RWMutex

	onDegraded func()
	onClosed   func(error)

	malformed []time.Time

	closed   atomic.Bool
	closeErr error
	done     chan struct{}
}

// pendingCall is one correlation table entry. An abandoned entry stays
// in the table so a late response is recognized and discarded rather
// than logged as unknown.
type pendingCall struct {
	ch        chan *response
	abandoned atomic.Bool
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

type notification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// NewTransport creates a transport over the analyzer's pipes. r is the
// child's stdout, w its stdin.
func NewTransport(r io.Reader, w io.Writer, log *zap.Logger) *Transport {
	return &Transport{
		reader:   bufio.NewReaderSize(r, 64*1024),
		writer:   w,
		log:      log,
		pending:  make(map[int64]*pendingCall),
		handlers: make(map[string]NotificationHandler),
		done:     make(chan struct{}),
	}
}

// OnDegraded registers the callback invoked when repeated malformed
// frames indicate a degraded analyzer. Must be set before Start.
func (t *Transport) OnDegraded(fn func()) {
	t.onDegraded = fn
}

// OnClosed registers the callback invoked once when the read loop ends,
// with the terminal error (io.EOF on clean stream close). It is not
// invoked when the loop ends because Close was called. Must be set
// before Start.
func (t *Transport) OnClosed(fn func(error)) {
	t.onClosed = fn
}

// OnNotification registers a handler for analyzer notifications.
func (t *Transport) OnNotification(method string, handler NotificationHandler) {
	t.handlersMu.Lock()
	t.handlers[method] = handler
	t.handlersMu.Unlock()
}

// Start begins reading messages on a background goroutine and returns
// immediately. The read loop ends when the stream ends, the context is
// cancelled, or the transport is closed.
func (t *Transport) Start(ctx context.Context) {
	go t.readLoop(ctx)
}

// Close tears the transport down, resolving every live correlation
// entry with err. Safe to call more than once.
func (t *Transport) Close(err error) {
	if t.closed.Swap(true) {
		return
	}
	if err == nil {
		err = ErrShutdown
	}

	t.mu.Lock()
	t.closeErr = err
	t.pending = make(map[int64]*pendingCall)
	t.mu.Unlock()

	// Every waiter selects on done and resolves with the close error.
	close(t.done)
}

// CloseError returns the terminal error after Close.
func (t *Transport) CloseError() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeErr
}

// Call sends a request and waits for the correlated response. If ctx is
// cancelled first, a best-effort cancelRequest notification is sent
// without waiting for the write, and the entry is abandoned: the table keeps it so a late response is
// discarded silently instead of surfacing as an unknown id.
func (t *Transport) Call(ctx context.Context, method string, params, result any) error {
	if t.closed.Load() {
		return ErrRestarted
	}

	id := t.nextID.Add(1)
	pc := &pendingCall{ch: make(chan *response, 1)}

	t.mu.Lock()
	t.pending[id] = pc
	t.mu.Unlock()

	if err := t.send(&request{JSONRPC: "2.0", ID: id, Method: method, Params: params}); err != nil {
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
		return fmt.Errorf("send %s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		pc.abandoned.Store(true)
		go func() { _ = t.Notify(MethodCancelRequest, CancelParams{ID: id}) }()
		return ctx.Err()
	case <-t.done:
		return t.CloseError()
	case resp := <-pc.ch:
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
		if resp.Error != nil {
			if resp.Error.Code == CodeMethodNotFound {
				return ErrNotSupported
			}
			return resp.Error
		}
		if result != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("unmarshal %s result: %w", method, err)
			}
		}
		return nil
	}
}

// Notify sends a notification. No response is expected.
func (t *Transport) Notify(method string, params any) error {
	if t.closed.Load() {
		return ErrRestarted
	}
	return t.send(&request{JSONRPC: "2.0", Method: method, Params: params})
}

// send writes one framed message. The write lock keeps header and body
// contiguous on the wire.
func (t *Transport) send(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if _, err := fmt.Fprintf(t.writer, "Content-Length: %d\r\n\r\n", len(data)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := t.writer.Write(data); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	return nil
}

// readLoop reads frames until the stream ends. Malformed frames are
// skipped to the next Content-Length marker; repeated ones within the
// window trip the degraded callback.
func (t *Transport) readLoop(ctx context.Context) {
	var terminal error

	// carry holds a header line recovered during resynchronization.
	var carry string

	for terminal == nil {
		select {
		case <-ctx.Done():
			terminal = ctx.Err()
			continue
		case <-t.done:
			return
		default:
		}

		msg, err := t.readMessage(carry)
		carry = ""
		switch {
		case err == nil:
			t.dispatch(msg)
		case err == errMalformedFrame:
			t.recordMalformed()
			carry, terminal = t.resync()
		default:
			terminal = err
		}
	}

	if t.closed.Load() {
		return
	}
	if t.onClosed != nil {
		t.onClosed(terminal)
	}
}

// readMessage reads one framed message. firstLine, when non-empty, is a
// header line already consumed by resync.
func (t *Transport) readMessage(firstLine string) (json.RawMessage, error) {
	contentLength := -1

	line := firstLine
	for {
		if line == "" {
			raw, err := t.reader.ReadString('\n')
			if err != nil {
				return nil, err
			}
			line = raw
		}
		trimmed := strings.TrimSpace(line)
		line = ""
		if trimmed == "" {
			break
		}
		if v, ok := strings.CutPrefix(strings.ToLower(trimmed), "content-length:"); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil || n < 0 {
				t.log.Warn("sidecar frame has unparseable Content-Length", zap.String("header", trimmed))
				return nil, errMalformedFrame
			}
			contentLength = n
		}
		// Content-Type and any other headers are ignored.
	}

	if contentLength < 0 {
		t.log.Warn("sidecar frame missing Content-Length header")
		return nil, errMalformedFrame
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(t.reader, body); err != nil {
		return nil, err
	}

	if !utf8.Valid(body) {
		t.log.Warn("sidecar frame body is not valid UTF-8", zap.Int("length", contentLength))
		return nil, errMalformedFrame
	}
	if !json.Valid(body) {
		t.log.Warn("sidecar frame body is not valid JSON", zap.Int("length", contentLength))
		return nil, errMalformedFrame
	}

	return body, nil
}

// resync scans forward to the next Content-Length marker and returns
// the header line for reuse by readMessage. The marker may sit
// mid-line: after a length mismatch the reader is misaligned inside a
// body, and the next header is glued to whatever bytes precede it.
func (t *Transport) resync() (string, error) {
	for {
		line, err := t.reader.ReadString('\n')
		if err != nil {
			return "", err
		}
		if idx := strings.Index(strings.ToLower(line), "content-length:"); idx >= 0 {
			return line[idx:], nil
		}
	}
}

// recordMalformed tracks malformed-frame timestamps and trips the
// degraded callback at the limit.
func (t *Transport) recordMalformed() {
	now := time.Now()

	t.mu.Lock()
	kept := t.malformed[:0]
	for _, ts := range t.malformed {
		if now.Sub(ts) <= malformedWindow {
			kept = append(kept, ts)
		}
	}
	t.malformed = append(kept, now)
	tripped := len(t.malformed) >= malformedLimit
	if tripped {
		t.malformed = t.malformed[:0]
	}
	t.mu.Unlock()

	if tripped && t.onDegraded != nil {
		t.onDegraded()
	}
}

// dispatch routes one inbound message.
func (t *Transport) dispatch(data json.RawMessage) {
	var probe struct {
		ID     *int64          `json:"id"`
		Method string          `json:"method"`
		Error  *RPCError       `json:"error"`
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		t.log.Warn("sidecar message failed to decode", zap.Error(err))
		return
	}

	if probe.ID != nil && probe.Method == "" {
		var resp response
		if err := json.Unmarshal(data, &resp); err != nil {
			t.log.Warn("sidecar response failed to decode", zap.Error(err))
			return
		}
		t.handleResponse(&resp)
		return
	}

	if probe.Method != "" && probe.ID == nil {
		var notif notification
		if err := json.Unmarshal(data, &notif); err != nil {
			return
		}
		t.handleNotification(&notif)
		return
	}

	// The analyzer never initiates requests; log and drop.
	t.log.Warn("unexpected sidecar message shape", zap.String("method", probe.Method))
}

// handleResponse resolves the correlation entry for a response.
func (t *Transport) handleResponse(resp *response) {
	t.mu.Lock()
	pc, ok := t.pending[resp.ID]
	if ok && pc.abandoned.Load() {
		// Cancelled earlier; the late response is discarded and the
		// entry finally released.
		delete(t.pending, resp.ID)
		t.mu.Unlock()
		t.log.Debug("discarding response to cancelled request", zap.Int64("id", resp.ID))
		return
	}
	t.mu.Unlock()

	if !ok {
		t.log.Warn("response with unknown id", zap.Int64("id", resp.ID))
		return
	}

	select {
	case pc.ch <- resp:
	default:
	}
}

// handleNotification runs the registered handler outside the read loop.
func (t *Transport) handleNotification(notif *notification) {
	t.handlersMu.RLock()
	handler, ok := t.handlers[notif.Method]
	t.handlersMu.RUnlock()

	if !ok {
		t.log.Debug("unhandled sidecar notification", zap.String("method", notif.Method))
		return
	}
	go handler(notif.Method, notif.Params)
}

// PendingCount reports live correlation entries, for tests and stats.
func (t *Transport) PendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
