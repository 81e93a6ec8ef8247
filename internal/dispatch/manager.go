// Package dispatch sits between the LSP endpoint and the analyzer
// supervisor. It enforces the four request policies: per-URI sync
// ordering, debounce on change, supersession of fast position-scoped
// reads, and bounded-queue backpressure. Every accepted request reaches
// exactly one terminal outcome.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/tomatitito/kotlin-analyzer/internal/document"
	"github.com/tomatitito/kotlin-analyzer/internal/sidecar"
)

// Backend is the supervisor surface the manager needs. Satisfied by
// *sidecar.Supervisor.
type Backend interface {
	Invoke(ctx context.Context, method string, params, result any) error
	Sync(method, uri string, params any)
}

// DiagnosticsHandler receives analysis results for publication.
type DiagnosticsHandler func(uri string, version int32, diags []sidecar.Diagnostic)

// Default deadlines per method class.
const (
	FastDeadline = 10 * time.Second
	SlowDeadline = 60 * time.Second

	// overflowWait is how long a request may block the dispatcher when
	// the queue is full and no victim exists.
	overflowWait = 100 * time.Millisecond

	maxWorkers = 8
)

// Options configures the manager.
type Options struct {
	// Debounce is the didChange-to-analysis delay.
	Debounce time.Duration

	// QueueCapacity bounds requests waiting for the analyzer.
	QueueCapacity int
}

func (o *Options) applyDefaults() {
	if o.Debounce == 0 {
		o.Debounce = 250 * time.Millisecond
	}
	if o.QueueCapacity == 0 {
		o.QueueCapacity = 64
	}
}

// Request describes one unit of work headed for the analyzer.
type Request struct {
	// ClientID keys the request for $/cancelRequest. Empty for
	// internally generated work.
	ClientID string

	// Method is the sidecar method name.
	Method string

	// URI scopes the request to a document; empty for workspace scope.
	URI string

	// Params is the sidecar params payload.
	Params any

	// NewResult allocates the result container.
	NewResult func() any

	// Supersedable marks fast position-scoped reads: a newer request
	// of the same (method, URI) cancels this one.
	Supersedable bool

	// Deadline overrides the fast-method default.
	Deadline time.Duration
}

// task is the internal pending-request record.
type task struct {
	req     *Request
	class   string // supersession key, "" when not supersedable
	seq     uint64
	respond func(result any, derr *Error)

	once      sync.Once
	cancelled atomic.Bool
	cancel    context.CancelFunc
}

func (t *task) finish(result any, derr *Error) {
	t.once.Do(func() { t.respond(result, derr) })
}

// Manager implements the request policies over a worker pool.
type Manager struct {
	opts    Options
	backend Backend
	store   *document.Store
	log     *zap.Logger
	onDiags DiagnosticsHandler

	mu       sync.Mutex
	queue    []*task          // accepted, not yet forwarded
	running  map[*task]struct{} // forwarded, awaiting outcome
	classes  map[string]*task // supersedable (method,URI) → live task
	byID     map[string]*task // client id → live task
	timers   map[string]*time.Timer
	seq      uint64
	notEmpty chan struct{}
	notFull  chan struct{}
	closed   bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewManager creates and starts a manager.
func NewManager(opts Options, backend Backend, store *document.Store, log *zap.Logger, onDiags DiagnosticsHandler) *Manager {
	opts.applyDefaults()
	m := &Manager{
		opts:     opts,
		backend:  backend,
		store:    store,
		log:      log.Named("dispatch"),
		onDiags:  onDiags,
		running:  make(map[*task]struct{}),
		classes:  make(map[string]*task),
		byID:     make(map[string]*task),
		timers:   make(map[string]*time.Timer),
		notEmpty: make(chan struct{}, 1),
		notFull:  make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
	}
	// A queue slot is held from acceptance to terminal outcome, so the
	// worker count bounds concurrent forwarding at the queue capacity.
	workers := opts.QueueCapacity
	if workers > maxWorkers {
		workers = maxWorkers
	}
	for i := 0; i < workers; i++ {
		m.wg.Add(1)
		go m.worker()
	}
	return m
}

// --- Document sync ---

// DidOpen applies an open notification and schedules analysis.
func (m *Manager) DidOpen(uri string, version int32, text string) {
	m.store.Open(uri, version, text)
	m.backend.Sync(sidecar.MethodDidOpen, uri, sidecar.TextDocumentParams{URI: uri, Text: text})
	m.scheduleAnalysis(uri)
}

// DidChange applies a full-content change and reschedules analysis.
// The pending analysis for the URI, if any, is superseded rather than
// queued behind.
func (m *Manager) DidChange(uri string, version int32, text string) error {
	if err := m.store.ChangeFull(uri, version, text); err != nil {
		return err
	}
	m.backend.Sync(sidecar.MethodDidChange, uri, sidecar.TextDocumentParams{URI: uri, Text: text})
	m.scheduleAnalysis(uri)
	return nil
}

// DidClose removes the document, cancels pending analysis, and clears
// published diagnostics.
func (m *Manager) DidClose(uri string) {
	m.store.Close(uri)
	m.backend.Sync(sidecar.MethodDidClose, uri, sidecar.TextDocumentParams{URI: uri})

	m.mu.Lock()
	if timer, ok := m.timers[uri]; ok {
		timer.Stop()
		delete(m.timers, uri)
	}
	pending := m.classes[analysisClass(uri)]
	m.mu.Unlock()

	if pending != nil {
		m.supersede(pending)
	}
	if m.onDiags != nil {
		m.onDiags(uri, 0, nil)
	}
}

// scheduleAnalysis (re)arms the per-URI debounce timer.
func (m *Manager) scheduleAnalysis(uri string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if timer, ok := m.timers[uri]; ok {
		timer.Stop()
	}
	m.timers[uri] = time.AfterFunc(m.opts.Debounce, func() {
		m.mu.Lock()
		delete(m.timers, uri)
		m.mu.Unlock()
		m.submitAnalysis(uri)
	})
}

func analysisClass(uri string) string {
	return sidecar.MethodAnalyze + "\x00" + uri
}

// submitAnalysis enqueues an analyze request for the latest text.
func (m *Manager) submitAnalysis(uri string) {
	doc, ok := m.store.Get(uri)
	if !ok {
		return
	}
	version := doc.Version
	m.Submit(&Request{
		Method:       sidecar.MethodAnalyze,
		URI:          uri,
		Params:       sidecar.DocumentParams{URI: uri},
		NewResult:    func() any { return new(sidecar.AnalyzeResult) },
		Supersedable: true,
	}, func(result any, derr *Error) {
		if derr != nil || m.onDiags == nil {
			return
		}
		res, _ := result.(*sidecar.AnalyzeResult)
		if res == nil {
			return
		}
		m.onDiags(uri, version, res.Diagnostics)
	})
}

// --- Request submission ---

// Submit accepts a request and guarantees respond is invoked exactly
// once with its terminal outcome. It may block up to 100 ms when the
// queue is saturated.
func (m *Manager) Submit(req *Request, respond func(result any, derr *Error)) {
	t := &task{req: req, respond: respond}
	if req.Supersedable {
		t.class = req.Method + "\x00" + req.URI
	}
	if req.Deadline == 0 {
		req.Deadline = FastDeadline
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		t.finish(nil, cancelledError())
		return
	}
	m.seq++
	t.seq = m.seq

	// Supersession: a newer request of the same class replaces the
	// older one wherever it is.
	if t.class != "" {
		if older := m.classes[t.class]; older != nil {
			m.removeQueuedLocked(older)
			m.unregisterLocked(older)
			m.mu.Unlock()
			m.supersede(older)
			m.mu.Lock()
			if m.closed {
				m.mu.Unlock()
				t.finish(nil, cancelledError())
				return
			}
		}
	}

	var waitDeadline time.Time
	for len(m.queue)+len(m.running) >= m.opts.QueueCapacity {
		// Evict the oldest queued request of a supersedable class.
		if victim := m.oldestSupersedableLocked(); victim != nil {
			m.removeQueuedLocked(victim)
			m.unregisterLocked(victim)
			m.mu.Unlock()
			m.supersede(victim)
			m.mu.Lock()
			if m.closed {
				m.mu.Unlock()
				t.finish(nil, cancelledError())
				return
			}
			continue
		}

		// No victim: block the dispatcher briefly, then refuse. The
		// deadline spans the whole wait, not each wakeup.
		if waitDeadline.IsZero() {
			waitDeadline = time.Now().Add(overflowWait)
		}
		m.mu.Unlock()
		select {
		case <-m.notFull:
			m.mu.Lock()
		case <-time.After(time.Until(waitDeadline)):
			t.finish(nil, overloadedError())
			return
		case <-m.stopCh:
			t.finish(nil, cancelledError())
			return
		}
	}

	m.queue = append(m.queue, t)
	if t.class != "" {
		m.classes[t.class] = t
	}
	if req.ClientID != "" {
		m.byID[req.ClientID] = t
	}
	m.mu.Unlock()

	m.signal(m.notEmpty)
	if !waitDeadline.IsZero() {
		// Another submitter may be waiting on a slot freed alongside
		// the one just taken; the signal channel holds only one token.
		m.signal(m.notFull)
	}
}

// Cancel handles $/cancelRequest. Idempotent; a no-op once the request
// has reached a terminal outcome.
func (m *Manager) Cancel(clientID string) {
	m.mu.Lock()
	t, ok := m.byID[clientID]
	if !ok {
		m.mu.Unlock()
		return
	}
	t.cancelled.Store(true)
	queued := m.removeQueuedLocked(t)
	m.unregisterLocked(t)
	cancel := t.cancel
	m.mu.Unlock()

	if !queued && cancel != nil {
		// In flight: cancelling the call context makes the transport
		// forward a cancellation notification to the analyzer.
		cancel()
	}
	t.finish(nil, cancelledError())
}

// supersede cancels an older task in favor of a newer one.
func (m *Manager) supersede(t *task) {
	t.cancelled.Store(true)
	m.mu.Lock()
	cancel := t.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	t.finish(nil, cancelledError())
}

// --- queue internals (callers hold mu) ---

func (m *Manager) removeQueuedLocked(t *task) bool {
	for i, q := range m.queue {
		if q == t {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			m.signal(m.notFull)
			return true
		}
	}
	return false
}

func (m *Manager) unregisterLocked(t *task) {
	if t.class != "" && m.classes[t.class] == t {
		delete(m.classes, t.class)
	}
	if t.req.ClientID != "" && m.byID[t.req.ClientID] == t {
		delete(m.byID, t.req.ClientID)
	}
}

func (m *Manager) oldestSupersedableLocked() *task {
	for _, t := range m.queue {
		if t.class != "" {
			return t
		}
	}
	return nil
}

func (m *Manager) signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// --- workers ---

func (m *Manager) worker() {
	defer m.wg.Done()
	for {
		t := m.pop()
		if t == nil {
			return
		}
		m.runTask(t)
	}
}

func (m *Manager) pop() *task {
	for {
		m.mu.Lock()
		if len(m.queue) > 0 {
			t := m.queue[0]
			m.queue = m.queue[1:]
			m.running[t] = struct{}{}
			remaining := len(m.queue)
			m.mu.Unlock()
			if remaining > 0 {
				// Wake another worker; the signal channel coalesces.
				m.signal(m.notEmpty)
			}
			return t
		}
		closed := m.closed
		m.mu.Unlock()
		if closed {
			return nil
		}

		select {
		case <-m.notEmpty:
		case <-m.stopCh:
			return nil
		}
	}
}

func (m *Manager) runTask(t *task) {
	if t.cancelled.Load() {
		m.mu.Lock()
		delete(m.running, t)
		m.mu.Unlock()
		m.signal(m.notFull)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.req.Deadline)
	m.mu.Lock()
	t.cancel = cancel
	m.mu.Unlock()
	if t.cancelled.Load() {
		// Cancelled between dequeue and context registration.
		cancel()
	}

	result := t.req.NewResult()
	err := m.backend.Invoke(ctx, t.req.Method, t.req.Params, result)
	cancel()

	m.mu.Lock()
	m.unregisterLocked(t)
	delete(m.running, t)
	m.mu.Unlock()
	m.signal(m.notFull)

	switch {
	case err == nil:
		t.finish(result, nil)
	case t.cancelled.Load():
		t.finish(nil, cancelledError())
	case errors.Is(err, context.DeadlineExceeded):
		t.finish(nil, timeoutError())
	case errors.Is(err, sidecar.ErrRestarted):
		t.finish(nil, cancelledError())
	case errors.Is(err, sidecar.ErrUnavailable):
		t.finish(nil, unavailableError())
	case errors.Is(err, sidecar.ErrShutdown):
		t.finish(nil, cancelledError())
	case errors.Is(err, sidecar.ErrNotSupported):
		// Feature unavailable in this analyzer: empty result.
		t.finish(nil, nil)
	default:
		var rpcErr *sidecar.RPCError
		if errors.As(err, &rpcErr) {
			t.finish(nil, &Error{Code: translateCode(rpcErr.Code), Message: rpcErr.Message})
			return
		}
		m.log.Warn("request failed", zap.String("method", t.req.Method), zap.Error(err))
		t.finish(nil, &Error{Code: CodeInternalError, Message: err.Error()})
	}
}

// translateCode maps a sidecar error code onto the closest LSP code.
func translateCode(code int64) int64 {
	switch code {
	case CodeInvalidParams, CodeInvalidRequest, CodeInternalError:
		return code
	default:
		return CodeInternalError
	}
}

// Shutdown cancels all pending work. Every queued or in-flight request
// still receives its one terminal outcome.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	for uri, timer := range m.timers {
		timer.Stop()
		delete(m.timers, uri)
	}
	queued := m.queue
	m.queue = nil
	inflight := make([]*task, 0, len(m.running))
	for t := range m.running {
		inflight = append(inflight, t)
	}
	m.byID = make(map[string]*task)
	m.classes = make(map[string]*task)
	m.mu.Unlock()

	close(m.stopCh)

	for _, t := range queued {
		t.cancelled.Store(true)
		t.finish(nil, cancelledError())
	}
	for _, t := range inflight {
		t.cancelled.Store(true)
		m.mu.Lock()
		cancel := t.cancel
		m.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		t.finish(nil, cancelledError())
	}

	m.wg.Wait()
}
