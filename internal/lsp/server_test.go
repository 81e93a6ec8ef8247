package lsp

import (
	"encoding/json"
	"fmt"
	"testing"

	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.uber.org/zap"

	"github.com/tomatitito/kotlin-analyzer/internal/dispatch"
	"github.com/tomatitito/kotlin-analyzer/internal/document"
	"github.com/tomatitito/kotlin-analyzer/internal/sidecar"
)

func newTestServer() *Server {
	store := document.NewStore()
	return NewServer(Options{
		Store:  store,
		Logger: zap.NewNop(),
	})
}

func TestServerInitialization(t *testing.T) {
	server := newTestServer()
	if server == nil {
		t.Fatal("NewServer() returned nil")
	}

	if server.logger == nil {
		t.Error("Server logger is nil")
	}

	// Check capabilities
	caps := server.capabilities
	if caps.CompletionProvider == nil {
		t.Error("CompletionProvider is nil")
	}

	if caps.SignatureHelpProvider == nil {
		t.Error("SignatureHelpProvider is nil")
	}

	if caps.HoverProvider != true {
		t.Error("HoverProvider should be true")
	}

	if caps.DefinitionProvider != true {
		t.Error("DefinitionProvider should be true")
	}

	if caps.ReferencesProvider != true {
		t.Error("ReferencesProvider should be true")
	}

	if caps.WorkspaceSymbolProvider != true {
		t.Error("WorkspaceSymbolProvider should be true")
	}

	if caps.DocumentFormattingProvider != true {
		t.Error("DocumentFormattingProvider should be true")
	}

	if caps.RenameProvider != true {
		t.Error("RenameProvider should be true")
	}

	if caps.CodeActionProvider != true {
		t.Error("CodeActionProvider should be true")
	}

	if caps.CodeLensProvider == nil {
		t.Error("CodeLensProvider is nil")
	}

	if caps.SemanticTokensProvider == nil {
		t.Error("SemanticTokensProvider is nil")
	}

	if caps.CallHierarchyProvider != true {
		t.Error("CallHierarchyProvider should be true")
	}

	sync, ok := caps.TextDocumentSync.(protocol.TextDocumentSyncOptions)
	if !ok {
		t.Fatalf("TextDocumentSync has unexpected type %T", caps.TextDocumentSync)
	}
	if sync.Change != protocol.TextDocumentSyncKindFull {
		t.Error("text sync must be full-content")
	}
	if !sync.OpenClose {
		t.Error("text sync must track open/close")
	}
}

func TestConvertSeverity(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected protocol.DiagnosticSeverity
	}{
		{
			name:     "Error severity",
			input:    "error",
			expected: protocol.DiagnosticSeverityError,
		},
		{
			name:     "Warning severity",
			input:    "warning",
			expected: protocol.DiagnosticSeverityWarning,
		},
		{
			name:     "Info severity",
			input:    "info",
			expected: protocol.DiagnosticSeverityInformation,
		},
		{
			name:     "Hint severity",
			input:    "hint",
			expected: protocol.DiagnosticSeverityHint,
		},
		{
			name:     "Unknown defaults to error",
			input:    "bogus",
			expected: protocol.DiagnosticSeverityError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := convertSeverity(tt.input)
			if result != tt.expected {
				t.Errorf("convertSeverity(%v): expected %v, got %v", tt.input, tt.expected, result)
			}
		})
	}
}

func TestCancelIDKey(t *testing.T) {
	numKey, ok := cancelIDKey(json.RawMessage(`5`))
	if !ok {
		t.Fatal("numeric id not accepted")
	}
	if got := fmt.Sprintf("%v", jsonrpc2.NewNumberID(5)); got != numKey {
		t.Errorf("numeric key mismatch: %q vs %q", numKey, got)
	}

	strKey, ok := cancelIDKey(json.RawMessage(`"abc"`))
	if !ok {
		t.Fatal("string id not accepted")
	}
	if got := fmt.Sprintf("%v", jsonrpc2.NewStringID("abc")); got != strKey {
		t.Errorf("string key mismatch: %q vs %q", strKey, got)
	}

	// Number and string forms of the same digits must not collide.
	five, _ := cancelIDKey(json.RawMessage(`5`))
	fiveStr, _ := cancelIDKey(json.RawMessage(`"5"`))
	if five == fiveStr {
		t.Error("numeric and string ids must produce distinct keys")
	}

	if _, ok := cancelIDKey(json.RawMessage(`{"bad":1}`)); ok {
		t.Error("object ids must be rejected")
	}
}

func TestConvertCompletionKind(t *testing.T) {
	if convertCompletionKind("function") != protocol.CompletionItemKindFunction {
		t.Error("function kind mismatch")
	}
	if convertCompletionKind("") != protocol.CompletionItemKindText {
		t.Error("unknown kind should default to text")
	}
}

func TestConvertWorkspaceEditGroupsByURI(t *testing.T) {
	server := newTestServer()
	server.store.Open("file:///a.kt", 1, "val a = 1\n")
	server.store.Open("file:///b.kt", 1, "val b = 2\n")

	edit := server.convertWorkspaceEdit([]sidecar.TextEdit{
		{URI: "file:///a.kt", Range: sidecar.Range{Start: sidecar.Position{Line: 1, Character: 5}, End: sidecar.Position{Line: 1, Character: 6}}, NewText: "x"},
		{URI: "file:///b.kt", Range: sidecar.Range{Start: sidecar.Position{Line: 1, Character: 5}, End: sidecar.Position{Line: 1, Character: 6}}, NewText: "y"},
		{URI: "file:///a.kt", Range: sidecar.Range{Start: sidecar.Position{Line: 1, Character: 9}, End: sidecar.Position{Line: 1, Character: 10}}, NewText: "2"},
	})

	if len(edit.Changes) != 2 {
		t.Fatalf("expected 2 uris, got %d", len(edit.Changes))
	}
	if len(edit.Changes["file:///a.kt"]) != 2 {
		t.Errorf("expected 2 edits for a.kt, got %d", len(edit.Changes["file:///a.kt"]))
	}
	if edit.Changes["file:///a.kt"][0].Range.Start.Character != 4 {
		t.Errorf("edit range was not translated to 0-based utf-16")
	}
}

// The dispatch.Error codes surfaced to clients must be the LSP wire
// values.
func TestErrorCodeValues(t *testing.T) {
	if dispatch.CodeRequestCancelled != -32800 {
		t.Error("RequestCancelled must be -32800")
	}
	if dispatch.CodeServerNotInit != -32002 {
		t.Error("ServerNotInitialized must be -32002")
	}
	if dispatch.CodeInvalidRequest != -32600 {
		t.Error("InvalidRequest must be -32600")
	}
}
