// Package lsp implements the editor-facing Language Server Protocol
// endpoint. It frames messages over stdin/stdout, owns the
// initialize/shutdown lifecycle, and forwards work to the request
// manager. No semantic analysis happens here; that is the analyzer
// sidecar's job.
package lsp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
	"go.uber.org/zap"

	"github.com/tomatitito/kotlin-analyzer/internal/dispatch"
	"github.com/tomatitito/kotlin-analyzer/internal/document"
	"github.com/tomatitito/kotlin-analyzer/internal/sidecar"
)

// serverName is reported to clients in ServerInfo.
const serverName = "kotlin-ls"

// Server implements the LSP endpoint.
type Server struct {
	store   *document.Store
	manager *dispatch.Manager
	sup     *sidecar.Supervisor

	// conn is the JSON-RPC connection to the editor
	conn jsonrpc2.Conn

	// client is the LSP client interface for server-pushed messages
	client protocol.Client

	logger *zap.Logger

	// Server capabilities
	capabilities protocol.ServerCapabilities

	// onConfigChange is invoked for workspace/didChangeConfiguration
	onConfigChange func()

	// workspaceRoot is the root directory reported by the client
	workspaceRoot string

	mu          sync.Mutex
	initialized bool
	shutdown    bool
	exitCode    int

	// cancel is used to signal server shutdown
	cancel context.CancelFunc
}

// Options wires the server's collaborators.
type Options struct {
	Store          *document.Store
	Manager        *dispatch.Manager
	Supervisor     *sidecar.Supervisor
	Logger         *zap.Logger
	OnConfigChange func()
}

// NewServer creates a new LSP endpoint instance.
func NewServer(opts Options) *Server {
	return &Server{
		store:          opts.Store,
		manager:        opts.Manager,
		sup:            opts.Supervisor,
		logger:         opts.Logger.Named("lsp"),
		onConfigChange: opts.OnConfigChange,
		exitCode:       1,
		capabilities: protocol.ServerCapabilities{
			TextDocumentSync: protocol.TextDocumentSyncOptions{
				OpenClose: true,
				Change:    protocol.TextDocumentSyncKindFull,
			},
			CompletionProvider: &protocol.CompletionOptions{
				TriggerCharacters: []string{".", ":"},
				ResolveProvider:   false,
			},
			HoverProvider: true,
			SignatureHelpProvider: &protocol.SignatureHelpOptions{
				TriggerCharacters: []string{"(", ","},
			},
			DefinitionProvider:         true,
			ReferencesProvider:         true,
			DocumentFormattingProvider: true,
			RenameProvider:             true,
			CodeActionProvider:         true,
			WorkspaceSymbolProvider:    true,
			CodeLensProvider: &protocol.CodeLensOptions{
				ResolveProvider: false,
			},
			SemanticTokensProvider: map[string]any{
				"legend": map[string]any{
					"tokenTypes":     semanticTokenTypes,
					"tokenModifiers": semanticTokenModifiers,
				},
				"full": true,
			},
			CallHierarchyProvider: true,
			// The protocol library predates these 3.17 capabilities;
			// clients that know kotlin-ls read them from here.
			Experimental: map[string]any{
				"inlayHintProvider":     true,
				"typeHierarchyProvider": true,
			},
		},
	}
}

// semanticTokenTypes is the fixed legend advertised to clients. The
// analyzer emits indexes into this table.
var semanticTokenTypes = []string{
	"namespace", "type", "class", "enum", "interface", "typeParameter",
	"parameter", "variable", "property", "enumMember", "function",
	"method", "keyword", "modifier", "comment", "string", "number",
	"operator",
}

var semanticTokenModifiers = []string{
	"declaration", "definition", "readonly", "static", "abstract",
}

// Run starts the endpoint over stdin/stdout and blocks until exit.
// The returned code is the process exit status.
func (s *Server) Run(ctx context.Context) int {
	s.logger.Info("starting kotlin language server")

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	stream := jsonrpc2.NewStream(stdrwc{})
	conn := jsonrpc2.NewConn(stream)
	s.conn = conn
	s.client = protocol.ClientDispatcher(conn, s.logger.Named("client"))

	conn.Go(ctx, s.handler())

	select {
	case <-ctx.Done():
	case <-conn.Done():
	}

	s.logger.Info("language server stopped")
	_ = conn.Close()

	s.mu.Lock()
	code := s.exitCode
	s.mu.Unlock()
	return code
}

// handler returns the JSON-RPC handler function. Lifecycle gating
// happens here before any method-specific work.
func (s *Server) handler() jsonrpc2.Handler {
	return func(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
		s.logger.Debug("received", zap.String("method", req.Method()))

		method := req.Method()

		s.mu.Lock()
		initialized := s.initialized
		down := s.shutdown
		s.mu.Unlock()

		// After shutdown only exit is accepted.
		if down && method != protocol.MethodExit {
			return s.replyWithError(ctx, reply, jsonrpc2.Code(dispatch.CodeInvalidRequest), "server is shutting down")
		}

		// Before initialize only initialize and exit are accepted.
		if !initialized && method != protocol.MethodInitialize && method != protocol.MethodExit {
			return s.replyWithError(ctx, reply, jsonrpc2.Code(dispatch.CodeServerNotInit), "server not initialized")
		}

		switch method {
		case protocol.MethodInitialize:
			return s.handleInitialize(ctx, reply, req)
		case protocol.MethodInitialized:
			return reply(ctx, nil, nil)
		case protocol.MethodShutdown:
			return s.handleShutdown(ctx, reply, req)
		case protocol.MethodExit:
			return s.handleExit(ctx, reply, req)
		case "$/cancelRequest":
			return s.handleCancelRequest(ctx, reply, req)
		case protocol.MethodWorkspaceDidChangeConfiguration:
			return s.handleDidChangeConfiguration(ctx, reply, req)
		case protocol.MethodTextDocumentDidOpen:
			return s.handleTextDocumentDidOpen(ctx, reply, req)
		case protocol.MethodTextDocumentDidChange:
			return s.handleTextDocumentDidChange(ctx, reply, req)
		case protocol.MethodTextDocumentDidClose:
			return s.handleTextDocumentDidClose(ctx, reply, req)
		case protocol.MethodTextDocumentCompletion:
			return s.handleTextDocumentCompletion(ctx, reply, req)
		case protocol.MethodTextDocumentHover:
			return s.handleTextDocumentHover(ctx, reply, req)
		case protocol.MethodTextDocumentDefinition:
			return s.handleTextDocumentDefinition(ctx, reply, req)
		case protocol.MethodTextDocumentReferences:
			return s.handleTextDocumentReferences(ctx, reply, req)
		case protocol.MethodTextDocumentSignatureHelp:
			return s.handleTextDocumentSignatureHelp(ctx, reply, req)
		case protocol.MethodTextDocumentFormatting:
			return s.handleTextDocumentFormatting(ctx, reply, req)
		case protocol.MethodTextDocumentRename:
			return s.handleTextDocumentRename(ctx, reply, req)
		case protocol.MethodTextDocumentCodeAction:
			return s.handleTextDocumentCodeAction(ctx, reply, req)
		case protocol.MethodWorkspaceSymbol:
			return s.handleWorkspaceSymbol(ctx, reply, req)
		case protocol.MethodTextDocumentCodeLens:
			return s.handleTextDocumentCodeLens(ctx, reply, req)
		case "textDocument/semanticTokens/full":
			return s.handleSemanticTokens(ctx, reply, req)
		case "textDocument/inlayHint":
			return s.handleInlayHint(ctx, reply, req)
		case "textDocument/prepareCallHierarchy":
			return s.handlePrepareCallHierarchy(ctx, reply, req)
		case "callHierarchy/incomingCalls":
			return s.handleCallHierarchyIncoming(ctx, reply, req)
		case "textDocument/prepareTypeHierarchy":
			return s.handlePrepareTypeHierarchy(ctx, reply, req)
		case "typeHierarchy/supertypes":
			return s.handleTypeHierarchySupertypes(ctx, reply, req)
		default:
			if _, ok := req.(*jsonrpc2.Call); !ok {
				// Unknown notifications are dropped silently.
				return nil
			}
			return reply(ctx, nil, jsonrpc2.ErrMethodNotFound)
		}
	}
}

// handleInitialize handles the initialize request. The reply carries
// the declared capabilities immediately; it never waits for the
// analyzer, which is spawned lazily on first semantic work.
func (s *Server) handleInitialize(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.InitializeParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return s.replyWithError(ctx, reply, jsonrpc2.InvalidParams, "Failed to parse initialize params")
	}

	s.mu.Lock()
	s.initialized = true
	s.mu.Unlock()

	// Extract workspace root from params
	if len(params.WorkspaceFolders) > 0 {
		// Use workspace folders if available (LSP 3.6+)
		s.workspaceRoot = uri.URI(params.WorkspaceFolders[0].URI).Filename()
	} else if params.RootURI != "" {
		// Fall back to rootUri (deprecated but still used)
		s.workspaceRoot = params.RootURI.Filename()
	} else if params.RootPath != "" {
		// Fall back to rootPath (deprecated)
		s.workspaceRoot = params.RootPath
	}

	s.logger.Info("initialize",
		zap.Any("clientInfo", params.ClientInfo),
		zap.String("workspaceRoot", s.workspaceRoot))

	result := protocol.InitializeResult{
		Capabilities: s.capabilities,
		ServerInfo: &protocol.ServerInfo{
			Name:    serverName,
			Version: "0.1.0",
		},
	}
	return reply(ctx, result, nil)
}

// handleShutdown runs the ordered exit path: cancel pending work, give
// the analyzer its shutdown RPC window, then acknowledge with null.
func (s *Server) handleShutdown(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	s.logger.Info("shutdown requested")

	s.mu.Lock()
	s.shutdown = true
	s.exitCode = 0
	s.mu.Unlock()

	s.manager.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.sup.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("sidecar shutdown incomplete", zap.Error(err))
	}

	return reply(ctx, nil, nil)
}

// handleExit terminates the server loop. Status 0 only after a prior
// shutdown request.
func (s *Server) handleExit(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	s.mu.Lock()
	if !s.shutdown {
		s.exitCode = 1
	}
	s.mu.Unlock()

	s.logger.Info("exit requested")
	if err := reply(ctx, nil, nil); err != nil {
		s.logger.Debug("error replying to exit", zap.Error(err))
	}
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

// handleCancelRequest registers cancellation intent for a client id.
func (s *Server) handleCancelRequest(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return reply(ctx, nil, nil)
	}
	if key, ok := cancelIDKey(params.ID); ok {
		s.manager.Cancel(key)
	}
	return reply(ctx, nil, nil)
}

// handleDidChangeConfiguration reloads configuration. Changes that
// affect the project context force an analyzer restart.
func (s *Server) handleDidChangeConfiguration(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	s.logger.Info("configuration change notified")
	if s.onConfigChange != nil {
		s.onConfigChange()
	}
	return reply(ctx, nil, nil)
}

// replyWithError sends an LSP-compliant error response.
func (s *Server) replyWithError(ctx context.Context, reply jsonrpc2.Replier, code jsonrpc2.Code, message string) error {
	return reply(ctx, nil, &jsonrpc2.Error{
		Code:    code,
		Message: message,
	})
}

// submit hands a request to the manager and replies asynchronously with
// its terminal outcome. convert translates the sidecar result into the
// LSP shape; a nil result (no response content or feature unavailable)
// is replied as null.
func (s *Server) submit(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request, dreq *dispatch.Request, convert func(any) any) error {
	if call, ok := req.(*jsonrpc2.Call); ok {
		dreq.ClientID = fmt.Sprintf("%v", call.ID())
	}

	s.manager.Submit(dreq, func(result any, derr *dispatch.Error) {
		if derr != nil {
			_ = reply(ctx, nil, &jsonrpc2.Error{Code: jsonrpc2.Code(derr.Code), Message: derr.Message})
			return
		}
		var out any
		if result != nil && convert != nil {
			out = convert(result)
		}
		_ = reply(ctx, out, nil)
	})
	return nil
}

// cancelIDKey rebuilds the submission-time request key from the raw
// id in $/cancelRequest params. Ids are opaque integers or strings;
// anything else is ignored.
func cancelIDKey(raw json.RawMessage) (string, bool) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", false
	}
	switch id := v.(type) {
	case float64:
		return fmt.Sprintf("%v", jsonrpc2.NewNumberID(int32(id))), true
	case string:
		return fmt.Sprintf("%v", jsonrpc2.NewStringID(id)), true
	}
	return "", false
}

// publishDiagnostics pushes analyzer findings to the editor.
func (s *Server) publishDiagnostics(uri string, version int32, diags []sidecar.Diagnostic) {
	text := ""
	if doc, ok := s.store.Get(uri); ok {
		text = doc.Text
	}

	lspDiagnostics := make([]protocol.Diagnostic, 0, len(diags))
	for _, d := range diags {
		lspDiagnostics = append(lspDiagnostics, protocol.Diagnostic{
			Range:    fromSidecarRange(text, d.Range),
			Severity: convertSeverity(d.Severity),
			Code:     d.Code,
			Source:   d.Source,
			Message:  d.Message,
		})
	}

	params := protocol.PublishDiagnosticsParams{
		URI:         protocol.DocumentURI(uri),
		Diagnostics: lspDiagnostics,
	}

	if err := s.client.PublishDiagnostics(context.Background(), &params); err != nil {
		s.logger.Warn("error publishing diagnostics", zap.Error(err))
	}
}

// PublishDiagnostics is the dispatch.DiagnosticsHandler hook.
func (s *Server) PublishDiagnostics(uri string, version int32, diags []sidecar.Diagnostic) {
	s.publishDiagnostics(uri, version, diags)
}

// ForwardLogMessage relays an analyzer log line to the editor.
func (s *Server) ForwardLogMessage(level, message string) {
	typ := protocol.MessageTypeLog
	switch level {
	case "error":
		typ = protocol.MessageTypeError
	case "warn", "warning":
		typ = protocol.MessageTypeWarning
	case "info":
		typ = protocol.MessageTypeInfo
	}
	if s.client == nil {
		return
	}
	if err := s.client.LogMessage(context.Background(), &protocol.LogMessageParams{
		Type:    typ,
		Message: message,
	}); err != nil {
		s.logger.Debug("error forwarding log message", zap.Error(err))
	}
}

// convertSeverity maps analyzer severity strings onto LSP severities.
func convertSeverity(severity string) protocol.DiagnosticSeverity {
	switch severity {
	case "error":
		return protocol.DiagnosticSeverityError
	case "warning", "warn":
		return protocol.DiagnosticSeverityWarning
	case "info":
		return protocol.DiagnosticSeverityInformation
	case "hint":
		return protocol.DiagnosticSeverityHint
	default:
		return protocol.DiagnosticSeverityError
	}
}

// stdrwc implements io.ReadWriteCloser for stdin/stdout. Stdout is
// reserved exclusively for LSP framing.
type stdrwc struct{}

func (stdrwc) Read(p []byte) (int, error) {
	return os.Stdin.Read(p)
}

func (stdrwc) Write(p []byte) (int, error) {
	return os.Stdout.Write(p)
}

func (stdrwc) Close() error {
	if err := os.Stdin.Close(); err != nil {
		return err
	}
	return os.Stdout.Close()
}
