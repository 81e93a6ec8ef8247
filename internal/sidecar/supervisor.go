// Package sidecar owns the analyzer child process: spawning, JSON-RPC
// transport, request correlation, health probing, crash recovery with
// backoff, and state replay into fresh instances.
package sidecar

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tomatitito/kotlin-analyzer/internal/config"
	"github.com/tomatitito/kotlin-analyzer/internal/document"
)

// State is the supervisor's lifecycle state.
type State int32

const (
	// StateIdle means no analyzer has been needed yet.
	StateIdle State = iota
	// StateStarting means an instance is spawning or replaying.
	StateStarting
	// StateReady means the instance answers requests.
	StateReady
	// StateDegraded means the instance missed a heartbeat or emitted
	// repeated malformed frames; requests still flow.
	StateDegraded
	// StateRestarting means the supervisor is between instances.
	StateRestarting
	// StateFailed means restarts were exhausted; semantic requests are
	// refused until process restart.
	StateFailed
	// StateStopped means the supervisor was shut down.
	StateStopped
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateDegraded:
		return "degraded"
	case StateRestarting:
		return "restarting"
	case StateFailed:
		return "failed"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Options configures the supervisor.
type Options struct {
	// Command is the argv for the analyzer child.
	Command []string

	// Dir is the child's working directory.
	Dir string

	// Env is extra environment for the child.
	Env map[string]string

	InitTimeout       time.Duration
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	ShutdownTimeout   time.Duration
	TermGrace         time.Duration

	// BackoffSteps are the restart delays; the last value repeats.
	BackoffSteps []time.Duration

	// ReadyReset is how long an instance must stay ready before the
	// backoff and failure counters reset.
	ReadyReset time.Duration

	// FailLimit restarts within FailWindow declare the analyzer
	// unrecoverable.
	FailLimit  int
	FailWindow time.Duration
}

func (o *Options) applyDefaults() {
	if o.InitTimeout == 0 {
		o.InitTimeout = 30 * time.Second
	}
	if o.HeartbeatInterval == 0 {
		o.HeartbeatInterval = 30 * time.Second
	}
	if o.HeartbeatTimeout == 0 {
		o.HeartbeatTimeout = 10 * time.Second
	}
	if o.ShutdownTimeout == 0 {
		o.ShutdownTimeout = 5 * time.Second
	}
	if o.TermGrace == 0 {
		o.TermGrace = 2 * time.Second
	}
	if len(o.BackoffSteps) == 0 {
		o.BackoffSteps = []time.Duration{
			1 * time.Second, 2 * time.Second, 4 * time.Second,
			8 * time.Second, 16 * time.Second, 30 * time.Second,
		}
	}
	if o.ReadyReset == 0 {
		o.ReadyReset = 60 * time.Second
	}
	if o.FailLimit == 0 {
		o.FailLimit = 5
	}
	if o.FailWindow == 0 {
		o.FailWindow = 120 * time.Second
	}
}

// LogHandler receives log lines pushed by the analyzer.
type LogHandler func(level, message string)

// Supervisor runs one analyzer instance at a time, restarting on
// failure and replaying the document store into each new instance.
type Supervisor struct {
	opts    Options
	context func() config.ProjectContext
	store   *document.Store
	log     *zap.Logger
	onLog   LogHandler

	state atomic.Int32
	gen   atomic.Uint64

	mu      sync.Mutex
	inst    *instance
	readyCh chan struct{}
	dirty   map[string]struct{}

	started  bool
	stopOnce sync.Once
	stopCh   chan struct{}
	failedCh chan struct{}
	doneCh   chan struct{}

	restartCh chan struct{}

	backoffIdx   int
	restartTimes []time.Time
}

// instance is one lifetime of the analyzer child.
type instance struct {
	id        string
	gen       uint64
	proc      *process
	transport *Transport
	log       *zap.Logger

	dead     chan struct{}
	deadOnce sync.Once
}

func (in *instance) markDead() {
	in.deadOnce.Do(func() { close(in.dead) })
}

// New creates a supervisor. contextFn is called at each spawn so a
// reconfigured project context takes effect on the next epoch.
func New(opts Options, contextFn func() config.ProjectContext, store *document.Store, log *zap.Logger, onLog LogHandler) *Supervisor {
	opts.applyDefaults()
	s := &Supervisor{
		opts:      opts,
		context:   contextFn,
		store:     store,
		log:       log.Named("supervisor"),
		onLog:     onLog,
		readyCh:   make(chan struct{}),
		dirty:     make(map[string]struct{}),
		stopCh:    make(chan struct{}),
		failedCh:  make(chan struct{}),
		doneCh:    make(chan struct{}),
		restartCh: make(chan struct{}, 1),
	}
	s.state.Store(int32(StateIdle))
	return s
}

// State returns the current lifecycle state. Readers may observe a
// slightly stale value; transitions are monotone within one epoch.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// Generation returns the current instance generation counter.
func (s *Supervisor) Generation() uint64 {
	return s.gen.Load()
}

func (s *Supervisor) setState(st State) {
	s.state.Store(int32(st))
}

// Invoke forwards one request to the analyzer, lazily starting it on
// first use and waiting through Starting and Restarting states. The
// caller's context carries the deadline.
func (s *Supervisor) Invoke(ctx context.Context, method string, params, result any) error {
	s.ensureStarted()

	for {
		s.mu.Lock()
		inst := s.inst
		readyCh := s.readyCh
		s.mu.Unlock()

		st := s.State()
		switch st {
		case StateFailed:
			return ErrUnavailable
		case StateStopped:
			return ErrShutdown
		case StateReady, StateDegraded:
			if inst != nil {
				return inst.transport.Call(ctx, method, params, result)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.failedCh:
			return ErrUnavailable
		case <-s.stopCh:
			return ErrShutdown
		case <-readyCh:
		}
	}
}

// Sync forwards a document-sync notification when an instance is live.
// When none is, the URI is marked dirty and re-opened from the store
// just before the next instance is declared ready, so the analyzer
// never observes stale text.
func (s *Supervisor) Sync(method, uri string, params any) {
	s.mu.Lock()
	inst := s.inst
	st := s.State()
	if inst == nil || (st != StateReady && st != StateDegraded) {
		s.dirty[uri] = struct{}{}
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if err := inst.transport.Notify(method, params); err != nil {
		s.log.Debug("sync notification dropped", zap.String("method", method), zap.String("uri", uri), zap.Error(err))
		s.mu.Lock()
		s.dirty[uri] = struct{}{}
		s.mu.Unlock()
	}
}

// Reconfigure restarts the analyzer so the next instance picks up a
// changed project context. No backoff or failure accounting applies.
func (s *Supervisor) Reconfigure() {
	select {
	case s.restartCh <- struct{}{}:
	default:
	}
}

// ensureStarted launches the run loop on first semantic need.
func (s *Supervisor) ensureStarted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	go s.run()
}

type monitorOutcome int

const (
	outcomeDead monitorOutcome = iota
	outcomeStop
	outcomeRestart
)

// run is the supervision loop: spawn, replay, monitor, restart.
func (s *Supervisor) run() {
	defer close(s.doneCh)

	for {
		select {
		case <-s.stopCh:
			s.setState(StateStopped)
			return
		default:
		}

		s.setState(StateStarting)
		inst, err := s.spawn()
		if err != nil {
			s.log.Warn("analyzer start failed", zap.Error(err))
			if !s.backoffOrFail() {
				return
			}
			continue
		}

		readyAt := time.Now()
		s.mu.Lock()
		s.inst = inst
		s.flushDirtyLocked(inst)
		s.setState(StateReady)
		close(s.readyCh)
		s.mu.Unlock()

		s.log.Info("analyzer ready",
			zap.Uint64("generation", inst.gen),
			zap.String("instance", inst.id))

		outcome := s.monitor(inst)

		s.mu.Lock()
		s.inst = nil
		s.readyCh = make(chan struct{})
		s.mu.Unlock()

		switch outcome {
		case outcomeStop:
			s.shutdownInstance(inst)
			s.setState(StateStopped)
			return
		case outcomeRestart:
			s.log.Info("restarting analyzer for reconfiguration", zap.Uint64("generation", inst.gen))
			s.shutdownInstance(inst)
			continue
		case outcomeDead:
			inst.transport.Close(ErrRestarted)
			if inst.proc.alive() {
				inst.proc.terminate(s.opts.TermGrace)
			}
			if time.Since(readyAt) >= s.opts.ReadyReset {
				s.mu.Lock()
				s.backoffIdx = 0
				s.restartTimes = nil
				s.mu.Unlock()
			}
			if !s.backoffOrFail() {
				return
			}
		}
	}
}

// spawn starts one child and brings it to a replayed, pinged state.
func (s *Supervisor) spawn() (*instance, error) {
	gen := s.gen.Add(1)
	in := &instance{
		id:   uuid.NewString(),
		gen:  gen,
		dead: make(chan struct{}),
	}
	in.log = s.log.With(zap.Uint64("generation", gen), zap.String("instance", in.id))

	proc, err := startProcess(s.opts.Command, s.opts.Dir, s.opts.Env)
	if err != nil {
		return nil, err
	}
	in.proc = proc

	t := NewTransport(proc.stdout, proc.stdin, in.log.Named("transport"))
	t.OnClosed(func(err error) {
		in.log.Info("analyzer stream closed", zap.Error(err))
		in.markDead()
	})
	t.OnDegraded(func() {
		if s.State() == StateReady {
			in.log.Warn("repeated malformed frames; analyzer degraded")
			s.setState(StateDegraded)
		}
	})
	t.OnNotification("log", func(_ string, params json.RawMessage) {
		var p struct {
			Level   string `json:"level"`
			Message string `json:"message"`
		}
		if json.Unmarshal(params, &p) == nil && s.onLog != nil {
			s.onLog(p.Level, p.Message)
		}
	})
	in.transport = t

	var g errgroup.Group
	g.Go(func() error {
		drainStderr(proc.stderr, in.log.Named("stderr"))
		return nil
	})
	g.Go(func() error {
		err := proc.wait()
		in.log.Info("analyzer exited", zap.Error(err))
		in.markDead()
		return nil
	})
	go func() { _ = g.Wait() }()

	t.Start(context.Background())

	if err := s.replay(in); err != nil {
		in.log.Warn("analyzer bring-up failed", zap.Error(err))
		t.Close(ErrRestarted)
		proc.terminate(s.opts.TermGrace)
		return nil, err
	}

	return in, nil
}

// replay performs the bring-up sequence: initialize with the current
// project context, one didOpen per open document, then a ping. The
// instance serves no semantic request until all three complete.
func (s *Supervisor) replay(in *instance) error {
	pc := s.context()

	initCtx, cancel := context.WithTimeout(context.Background(), s.opts.InitTimeout)
	defer cancel()

	var initRes InitializeResult
	if err := in.transport.Call(initCtx, MethodInitialize, InitializeParams{
		ProjectRoot:   pc.ProjectRoot,
		Classpath:     pc.Classpath,
		CompilerFlags: pc.CompilerFlags,
		JDKHome:       pc.JDKHome,
		SourceRoots:   pc.SourceRoots,
	}, &initRes); err != nil {
		return err
	}
	in.log.Info("analyzer initialized", zap.String("kotlinVersion", initRes.KotlinVersion))

	for _, doc := range s.store.Snapshot() {
		if err := in.transport.Notify(MethodDidOpen, TextDocumentParams{URI: doc.URI, Text: doc.Text}); err != nil {
			return err
		}
	}

	pingCtx, cancelPing := context.WithTimeout(context.Background(), s.opts.HeartbeatTimeout)
	defer cancelPing()
	var pong PingResult
	return in.transport.Call(pingCtx, MethodPing, struct{}{}, &pong)
}

// flushDirtyLocked re-opens documents whose sync notifications were
// dropped between the replay snapshot and readiness. Caller holds mu.
func (s *Supervisor) flushDirtyLocked(in *instance) {
	for uri := range s.dirty {
		if doc, ok := s.store.Get(uri); ok {
			_ = in.transport.Notify(MethodDidOpen, TextDocumentParams{URI: doc.URI, Text: doc.Text})
		} else {
			_ = in.transport.Notify(MethodDidClose, TextDocumentParams{URI: uri})
		}
	}
	s.dirty = make(map[string]struct{})
}

// monitor probes the instance until it dies, a stop or reconfigure is
// requested, or a degraded instance misses another heartbeat.
func (s *Supervisor) monitor(in *instance) monitorOutcome {
	ticker := time.NewTicker(s.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return outcomeStop
		case <-s.restartCh:
			return outcomeRestart
		case <-in.dead:
			return outcomeDead
		case <-ticker.C:
			if s.ping(in) {
				if s.State() == StateDegraded {
					in.log.Info("heartbeat recovered")
					s.setState(StateReady)
				}
				continue
			}
			if s.State() == StateDegraded {
				in.log.Warn("second heartbeat failure; killing analyzer")
				in.proc.terminate(s.opts.TermGrace)
				return outcomeDead
			}
			in.log.Warn("heartbeat failed; analyzer degraded")
			s.setState(StateDegraded)
		}
	}
}

func (s *Supervisor) ping(in *instance) bool {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.HeartbeatTimeout)
	defer cancel()
	var pong PingResult
	err := in.transport.Call(ctx, MethodPing, struct{}{}, &pong)
	return err == nil && pong.Pong
}

// backoffOrFail sleeps the next backoff step. It returns false when the
// failure budget is exhausted or a stop arrived, after recording the
// terminal state.
func (s *Supervisor) backoffOrFail() bool {
	now := time.Now()

	s.mu.Lock()
	kept := s.restartTimes[:0]
	for _, ts := range s.restartTimes {
		if now.Sub(ts) <= s.opts.FailWindow {
			kept = append(kept, ts)
		}
	}
	s.restartTimes = append(kept, now)
	exhausted := len(s.restartTimes) >= s.opts.FailLimit
	idx := s.backoffIdx
	if s.backoffIdx < len(s.opts.BackoffSteps)-1 {
		s.backoffIdx++
	}
	s.mu.Unlock()

	if exhausted {
		s.log.Error("analyzer unrecoverable; giving up",
			zap.Int("restarts", len(s.restartTimes)),
			zap.Duration("window", s.opts.FailWindow))
		s.setState(StateFailed)
		close(s.failedCh)
		return false
	}

	delay := s.opts.BackoffSteps[idx]
	s.setState(StateRestarting)
	s.log.Info("scheduling analyzer restart", zap.Duration("backoff", delay))

	select {
	case <-s.stopCh:
		s.setState(StateStopped)
		return false
	case <-time.After(delay):
		return true
	}
}

// shutdownInstance runs the graceful exit path: shutdown RPC with a
// timeout, then SIGTERM, then SIGKILL.
func (s *Supervisor) shutdownInstance(in *instance) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()

	var res ShutdownResult
	if err := in.transport.Call(ctx, MethodShutdown, struct{}{}, &res); err != nil {
		in.log.Debug("sidecar shutdown rpc failed", zap.Error(err))
	}
	in.transport.Close(ErrShutdown)
	in.proc.terminate(s.opts.TermGrace)
}

// Shutdown stops supervision and the child. It is idempotent and safe
// on a supervisor that never started.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stopCh) })

	s.mu.Lock()
	started := s.started
	if !started {
		s.setState(StateStopped)
	}
	s.mu.Unlock()

	if !started {
		return nil
	}

	select {
	case <-s.doneCh:
		return nil
	case <-ctx.Done():
		s.Kill()
		return ctx.Err()
	}
}

// Kill is the last-resort exit path: terminate the child without the
// shutdown RPC. Used from defers and when a graceful Shutdown times out
// so no analyzer process is ever orphaned.
func (s *Supervisor) Kill() {
	s.mu.Lock()
	inst := s.inst
	s.mu.Unlock()
	if inst != nil {
		inst.transport.Close(ErrShutdown)
		inst.proc.terminate(s.opts.TermGrace)
	}
}

// drainStderr logs analyzer stderr line by line.
func drainStderr(r io.Reader, log *zap.Logger) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), 1024*1024)
	for sc.Scan() {
		if line := sc.Text(); line != "" {
			log.Info(line)
		}
	}
}
