package sidecar

// The analyzer speaks a narrow JSON-RPC 2.0 protocol over its
// stdin/stdout. Lines and columns are 1-based on this wire; the
// endpoint translates from the LSP's 0-based UTF-16 positions.

// Frontend-initiated request methods.
const (
	MethodInitialize              = "initialize"
	MethodShutdown                = "shutdown"
	MethodPing                    = "ping"
	MethodAnalyze                 = "analyze"
	MethodHover                   = "hover"
	MethodCompletion              = "completion"
	MethodDefinition              = "definition"
	MethodReferences              = "references"
	MethodSignatureHelp           = "signatureHelp"
	MethodRename                  = "rename"
	MethodCodeActions             = "codeActions"
	MethodWorkspaceSymbols        = "workspaceSymbols"
	MethodInlayHints              = "inlayHints"
	MethodCodeLens                = "codeLens"
	MethodSemanticTokens          = "semanticTokens"
	MethodFormatting              = "formatting"
	MethodCallHierarchyPrepare    = "callHierarchy/prepare"
	MethodCallHierarchyIncoming   = "callHierarchy/incoming"
	MethodTypeHierarchyPrepare    = "typeHierarchy/prepare"
	MethodTypeHierarchySupertypes = "typeHierarchy/supertypes"
)

// Frontend-issued notification methods.
const (
	MethodDidOpen       = "textDocument/didOpen"
	MethodDidChange     = "textDocument/didChange"
	MethodDidClose      = "textDocument/didClose"
	MethodCancelRequest = "cancelRequest"
)

// Position is a 1-based line/column pair. Columns count UTF-8 bytes
// within the line.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range is a half-open span between two positions.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Location is a range within a document.
type Location struct {
	URI   string `json:"uri"`
	Range Range  `json:"range"`
}

// TextEdit replaces a range with new text.
type TextEdit struct {
	URI     string `json:"uri"`
	Range   Range  `json:"range"`
	NewText string `json:"newText"`
}

// InitializeParams carries the project context for one analyzer epoch.
type InitializeParams struct {
	ProjectRoot   string   `json:"projectRoot"`
	Classpath     []string `json:"classpath"`
	CompilerFlags []string `json:"compilerFlags"`
	JDKHome       string   `json:"jdkHome"`
	SourceRoots   []string `json:"sourceRoots"`
}

// InitializeResult acknowledges analyzer startup.
type InitializeResult struct {
	Success       bool   `json:"success"`
	KotlinVersion string `json:"kotlinVersion"`
}

// ShutdownResult acknowledges a shutdown request.
type ShutdownResult struct {
	Success bool `json:"success"`
}

// PingResult is the heartbeat reply.
type PingResult struct {
	Pong bool `json:"pong"`
}

// DocumentParams identifies a document.
type DocumentParams struct {
	URI string `json:"uri"`
}

// PositionParams identifies a position within a document.
type PositionParams struct {
	URI       string `json:"uri"`
	Line      int    `json:"line"`
	Character int    `json:"character"`
}

// TextDocumentParams is the payload of didOpen and didChange
// notifications. Text is omitted for didClose.
type TextDocumentParams struct {
	URI  string `json:"uri"`
	Text string `json:"text,omitempty"`
}

// CancelParams names an in-flight request by its wire id.
type CancelParams struct {
	ID int64 `json:"id"`
}

// Diagnostic is one analyzer finding.
type Diagnostic struct {
	Range    Range  `json:"range"`
	Severity string `json:"severity"`
	Code     string `json:"code,omitempty"`
	Source   string `json:"source,omitempty"`
	Message  string `json:"message"`
}

// AnalyzeResult carries the diagnostics for one document.
type AnalyzeResult struct {
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// HoverResult carries hover markup. A null response means no hover.
type HoverResult struct {
	Contents string `json:"contents"`
	Range    *Range `json:"range,omitempty"`
}

// CompletionItem is one completion candidate.
type CompletionItem struct {
	Label         string `json:"label"`
	Kind          string `json:"kind,omitempty"`
	Detail        string `json:"detail,omitempty"`
	Documentation string `json:"documentation,omitempty"`
	InsertText    string `json:"insertText,omitempty"`
	SortText      string `json:"sortText,omitempty"`
}

// CompletionResult carries completion candidates.
type CompletionResult struct {
	Items []CompletionItem `json:"items"`
}

// LocationsResult is shared by definition and references.
type LocationsResult struct {
	Locations []Location `json:"locations"`
}

// ParameterInfo describes one signature parameter.
type ParameterInfo struct {
	Label         string `json:"label"`
	Documentation string `json:"documentation,omitempty"`
}

// SignatureInfo describes one callable signature.
type SignatureInfo struct {
	Label           string          `json:"label"`
	Documentation   string          `json:"documentation,omitempty"`
	Parameters      []ParameterInfo `json:"parameters,omitempty"`
	ActiveParameter int             `json:"activeParameter"`
}

// SignatureHelpResult carries the signatures at a call site.
type SignatureHelpResult struct {
	Signatures []SignatureInfo `json:"signatures"`
}

// RenameParams renames the symbol at a position.
type RenameParams struct {
	URI       string `json:"uri"`
	Line      int    `json:"line"`
	Character int    `json:"character"`
	NewName   string `json:"newName"`
}

// EditsResult is shared by rename and formatting.
type EditsResult struct {
	Edits []TextEdit `json:"edits"`
}

// CodeAction is one available action at a position.
type CodeAction struct {
	Title string     `json:"title"`
	Kind  string     `json:"kind,omitempty"`
	Edits []TextEdit `json:"edits,omitempty"`
}

// CodeActionsResult carries available actions.
type CodeActionsResult struct {
	Actions []CodeAction `json:"actions"`
}

// WorkspaceSymbolsParams searches symbols by query.
type WorkspaceSymbolsParams struct {
	Query string `json:"query"`
}

// SymbolInfo is one workspace symbol.
type SymbolInfo struct {
	Name          string   `json:"name"`
	Kind          string   `json:"kind,omitempty"`
	Location      Location `json:"location"`
	ContainerName string   `json:"containerName,omitempty"`
}

// WorkspaceSymbolsResult carries matched symbols.
type WorkspaceSymbolsResult struct {
	Symbols []SymbolInfo `json:"symbols"`
}

// InlayHintsParams requests hints for a line window.
type InlayHintsParams struct {
	URI       string `json:"uri"`
	StartLine int    `json:"startLine"`
	EndLine   int    `json:"endLine"`
}

// InlayHint is one inline annotation.
type InlayHint struct {
	Position Position `json:"position"`
	Label    string   `json:"label"`
	Kind     string   `json:"kind,omitempty"`
}

// InlayHintsResult carries hints.
type InlayHintsResult struct {
	Hints []InlayHint `json:"hints"`
}

// CodeLens is one lens over a range.
type CodeLens struct {
	Range   Range  `json:"range"`
	Title   string `json:"title"`
	Command string `json:"command,omitempty"`
}

// CodeLensResult carries lenses for a document.
type CodeLensResult struct {
	Lenses []CodeLens `json:"lenses"`
}

// SemanticTokensLegend names the token types and modifiers the data
// array indexes into.
type SemanticTokensLegend struct {
	TokenTypes     []string `json:"tokenTypes"`
	TokenModifiers []string `json:"tokenModifiers"`
}

// SemanticTokensResult carries LSP-style delta-encoded token data.
type SemanticTokensResult struct {
	Data   []uint32             `json:"data"`
	Legend SemanticTokensLegend `json:"legend"`
}

// HierarchyItem is one node in a call or type hierarchy.
type HierarchyItem struct {
	Name           string `json:"name"`
	Kind           string `json:"kind,omitempty"`
	URI            string `json:"uri"`
	Range          Range  `json:"range"`
	SelectionRange Range  `json:"selectionRange"`
}

// HierarchyItemsResult carries prepare results.
type HierarchyItemsResult struct {
	Items []HierarchyItem `json:"items"`
}

// HierarchyItemParams walks the hierarchy from one item.
type HierarchyItemParams struct {
	Item HierarchyItem `json:"item"`
}

// IncomingCall is one inbound call edge.
type IncomingCall struct {
	From       HierarchyItem `json:"from"`
	FromRanges []Range       `json:"fromRanges"`
}

// IncomingCallsResult carries the callers of an item.
type IncomingCallsResult struct {
	Calls []IncomingCall `json:"calls"`
}
