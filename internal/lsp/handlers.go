package lsp

import (
	"context"
	"encoding/json"

	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.uber.org/zap"

	"github.com/tomatitito/kotlin-analyzer/internal/dispatch"
	"github.com/tomatitito/kotlin-analyzer/internal/sidecar"
)

// Result shapes the protocol library does not model (LSP 3.17) are
// declared locally with the wire field names.
type workspaceEdit struct {
	Changes map[string][]protocol.TextEdit `json:"changes"`
}

type codeAction struct {
	Title string         `json:"title"`
	Kind  string         `json:"kind,omitempty"`
	Edit  *workspaceEdit `json:"edit,omitempty"`
}

type semanticTokens struct {
	Data []uint32 `json:"data"`
}

type inlayHint struct {
	Position protocol.Position `json:"position"`
	Label    string            `json:"label"`
	Kind     string            `json:"kind,omitempty"`
}

type hierarchyItem struct {
	Name           string             `json:"name"`
	Kind           string             `json:"kind,omitempty"`
	URI            string             `json:"uri"`
	Range          protocol.Range     `json:"range"`
	SelectionRange protocol.Range     `json:"selectionRange"`
}

type incomingCall struct {
	From       hierarchyItem    `json:"from"`
	FromRanges []protocol.Range `json:"fromRanges"`
}

// --- Document synchronization ---

// handleTextDocumentDidOpen handles document open notifications.
func (s *Server) handleTextDocumentDidOpen(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.DidOpenTextDocumentParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return s.replyWithError(ctx, reply, jsonrpc2.InvalidParams, "Failed to parse didOpen params")
	}

	uri := string(params.TextDocument.URI)
	s.logger.Debug("document opened", zap.String("uri", uri))

	s.manager.DidOpen(uri, int32(params.TextDocument.Version), params.TextDocument.Text)
	return reply(ctx, nil, nil)
}

// handleTextDocumentDidChange handles full-content change
// notifications. Only full sync is advertised, so the last content
// change carries the complete text.
func (s *Server) handleTextDocumentDidChange(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.DidChangeTextDocumentParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return s.replyWithError(ctx, reply, jsonrpc2.InvalidParams, "Failed to parse didChange params")
	}

	if len(params.ContentChanges) == 0 {
		return reply(ctx, nil, nil)
	}

	uri := string(params.TextDocument.URI)
	text := params.ContentChanges[len(params.ContentChanges)-1].Text

	if err := s.manager.DidChange(uri, int32(params.TextDocument.Version), text); err != nil {
		s.logger.Warn("change for unknown document", zap.String("uri", uri))
	}
	return reply(ctx, nil, nil)
}

// handleTextDocumentDidClose handles document close notifications.
func (s *Server) handleTextDocumentDidClose(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.DidCloseTextDocumentParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return s.replyWithError(ctx, reply, jsonrpc2.InvalidParams, "Failed to parse didClose params")
	}

	uri := string(params.TextDocument.URI)
	s.logger.Debug("document closed", zap.String("uri", uri))

	s.manager.DidClose(uri)
	return reply(ctx, nil, nil)
}

// --- Position-scoped requests ---

// positionParams builds the sidecar params for a position-scoped
// method, translating the LSP position onto the sidecar's 1-based
// lines and byte columns.
func (s *Server) positionParams(uri string, pos protocol.Position) sidecar.PositionParams {
	text := ""
	if doc, ok := s.store.Get(uri); ok {
		text = doc.Text
	}
	sp := toSidecarPosition(text, pos)
	return sidecar.PositionParams{URI: uri, Line: sp.Line, Character: sp.Character}
}

// docText returns the stored text for uri, or empty when unopened.
func (s *Server) docText(uri string) string {
	if doc, ok := s.store.Get(uri); ok {
		return doc.Text
	}
	return ""
}

// handleTextDocumentCompletion handles completion requests. Completion
// is supersedable: a newer request for the same document cancels an
// older in-flight one.
func (s *Server) handleTextDocumentCompletion(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.CompletionParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return s.replyWithError(ctx, reply, jsonrpc2.InvalidParams, "Failed to parse completion params")
	}

	uri := string(params.TextDocument.URI)
	return s.submit(ctx, reply, req, &dispatch.Request{
		Method:       sidecar.MethodCompletion,
		URI:          uri,
		Params:       s.positionParams(uri, params.Position),
		NewResult:    func() any { return new(sidecar.CompletionResult) },
		Supersedable: true,
	}, func(result any) any {
		res := result.(*sidecar.CompletionResult)
		items := make([]protocol.CompletionItem, 0, len(res.Items))
		for _, c := range res.Items {
			item := protocol.CompletionItem{
				Label:      c.Label,
				Kind:       convertCompletionKind(c.Kind),
				Detail:     c.Detail,
				InsertText: c.InsertText,
			}
			if c.Documentation != "" {
				item.Documentation = protocol.MarkupContent{
					Kind:  protocol.Markdown,
					Value: c.Documentation,
				}
			}
			if c.SortText != "" {
				item.SortText = c.SortText
			}
			items = append(items, item)
		}
		return protocol.CompletionList{IsIncomplete: false, Items: items}
	})
}

// handleTextDocumentHover handles hover requests.
func (s *Server) handleTextDocumentHover(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.HoverParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return s.replyWithError(ctx, reply, jsonrpc2.InvalidParams, "Failed to parse hover params")
	}

	uri := string(params.TextDocument.URI)
	return s.submit(ctx, reply, req, &dispatch.Request{
		Method:       sidecar.MethodHover,
		URI:          uri,
		Params:       s.positionParams(uri, params.Position),
		NewResult:    func() any { return new(sidecar.HoverResult) },
		Supersedable: true,
	}, func(result any) any {
		res := result.(*sidecar.HoverResult)
		if res.Contents == "" {
			return nil
		}
		hover := protocol.Hover{
			Contents: protocol.MarkupContent{
				Kind:  protocol.Markdown,
				Value: res.Contents,
			},
		}
		if res.Range != nil {
			rng := fromSidecarRange(s.docText(uri), *res.Range)
			hover.Range = &rng
		}
		return hover
	})
}

// handleTextDocumentDefinition handles go-to-definition requests.
func (s *Server) handleTextDocumentDefinition(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.DefinitionParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return s.replyWithError(ctx, reply, jsonrpc2.InvalidParams, "Failed to parse definition params")
	}

	uri := string(params.TextDocument.URI)
	return s.submit(ctx, reply, req, &dispatch.Request{
		Method:    sidecar.MethodDefinition,
		URI:       uri,
		Params:    s.positionParams(uri, params.Position),
		NewResult: func() any { return new(sidecar.LocationsResult) },
	}, func(result any) any {
		return s.convertLocations(result.(*sidecar.LocationsResult).Locations)
	})
}

// handleTextDocumentReferences handles find-references requests.
func (s *Server) handleTextDocumentReferences(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.ReferenceParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return s.replyWithError(ctx, reply, jsonrpc2.InvalidParams, "Failed to parse references params")
	}

	uri := string(params.TextDocument.URI)
	return s.submit(ctx, reply, req, &dispatch.Request{
		Method:    sidecar.MethodReferences,
		URI:       uri,
		Params:    s.positionParams(uri, params.Position),
		NewResult: func() any { return new(sidecar.LocationsResult) },
		Deadline:  dispatch.SlowDeadline,
	}, func(result any) any {
		return s.convertLocations(result.(*sidecar.LocationsResult).Locations)
	})
}

// handleTextDocumentSignatureHelp handles signature help requests.
func (s *Server) handleTextDocumentSignatureHelp(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.SignatureHelpParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return s.replyWithError(ctx, reply, jsonrpc2.InvalidParams, "Failed to parse signatureHelp params")
	}

	uri := string(params.TextDocument.URI)
	return s.submit(ctx, reply, req, &dispatch.Request{
		Method:       sidecar.MethodSignatureHelp,
		URI:          uri,
		Params:       s.positionParams(uri, params.Position),
		NewResult:    func() any { return new(sidecar.SignatureHelpResult) },
		Supersedable: true,
	}, func(result any) any {
		res := result.(*sidecar.SignatureHelpResult)
		sigs := make([]protocol.SignatureInformation, 0, len(res.Signatures))
		for _, sig := range res.Signatures {
			info := protocol.SignatureInformation{
				Label:         sig.Label,
				Documentation: sig.Documentation,
			}
			for _, p := range sig.Parameters {
				info.Parameters = append(info.Parameters, protocol.ParameterInformation{
					Label:         p.Label,
					Documentation: p.Documentation,
				})
			}
			sigs = append(sigs, info)
		}
		return protocol.SignatureHelp{Signatures: sigs}
	})
}

// handleTextDocumentFormatting is a pure pass-through: the analyzer
// defines formatting semantics, the frontend only translates offsets.
func (s *Server) handleTextDocumentFormatting(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.DocumentFormattingParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return s.replyWithError(ctx, reply, jsonrpc2.InvalidParams, "Failed to parse formatting params")
	}

	uri := string(params.TextDocument.URI)
	return s.submit(ctx, reply, req, &dispatch.Request{
		Method:    sidecar.MethodFormatting,
		URI:       uri,
		Params:    sidecar.DocumentParams{URI: uri},
		NewResult: func() any { return new(sidecar.EditsResult) },
	}, func(result any) any {
		return s.convertTextEdits(uri, result.(*sidecar.EditsResult).Edits)
	})
}

// handleTextDocumentRename handles rename requests.
func (s *Server) handleTextDocumentRename(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.RenameParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return s.replyWithError(ctx, reply, jsonrpc2.InvalidParams, "Failed to parse rename params")
	}

	uri := string(params.TextDocument.URI)
	sp := s.positionParams(uri, params.Position)
	return s.submit(ctx, reply, req, &dispatch.Request{
		Method: sidecar.MethodRename,
		URI:    uri,
		Params: sidecar.RenameParams{
			URI:       uri,
			Line:      sp.Line,
			Character: sp.Character,
			NewName:   params.NewName,
		},
		NewResult: func() any { return new(sidecar.EditsResult) },
		Deadline:  dispatch.SlowDeadline,
	}, func(result any) any {
		return s.convertWorkspaceEdit(result.(*sidecar.EditsResult).Edits)
	})
}

// handleTextDocumentCodeAction handles code action requests.
func (s *Server) handleTextDocumentCodeAction(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.CodeActionParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return s.replyWithError(ctx, reply, jsonrpc2.InvalidParams, "Failed to parse codeAction params")
	}

	uri := string(params.TextDocument.URI)
	return s.submit(ctx, reply, req, &dispatch.Request{
		Method:    sidecar.MethodCodeActions,
		URI:       uri,
		Params:    s.positionParams(uri, params.Range.Start),
		NewResult: func() any { return new(sidecar.CodeActionsResult) },
	}, func(result any) any {
		res := result.(*sidecar.CodeActionsResult)
		actions := make([]codeAction, 0, len(res.Actions))
		for _, a := range res.Actions {
			act := codeAction{Title: a.Title, Kind: a.Kind}
			if len(a.Edits) > 0 {
				act.Edit = s.convertWorkspaceEdit(a.Edits)
			}
			actions = append(actions, act)
		}
		return actions
	})
}

// handleWorkspaceSymbol handles workspace symbol search requests.
func (s *Server) handleWorkspaceSymbol(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.WorkspaceSymbolParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return s.replyWithError(ctx, reply, jsonrpc2.InvalidParams, "Failed to parse workspace symbol params")
	}

	return s.submit(ctx, reply, req, &dispatch.Request{
		Method:    sidecar.MethodWorkspaceSymbols,
		Params:    sidecar.WorkspaceSymbolsParams{Query: params.Query},
		NewResult: func() any { return new(sidecar.WorkspaceSymbolsResult) },
		Deadline:  dispatch.SlowDeadline,
	}, func(result any) any {
		res := result.(*sidecar.WorkspaceSymbolsResult)
		symbols := make([]protocol.SymbolInformation, 0, len(res.Symbols))
		for _, sym := range res.Symbols {
			symbols = append(symbols, protocol.SymbolInformation{
				Name:          sym.Name,
				Kind:          convertSymbolKind(sym.Kind),
				ContainerName: sym.ContainerName,
				Location:      s.convertLocation(sym.Location),
			})
		}
		return symbols
	})
}

// handleTextDocumentCodeLens handles code lens requests.
func (s *Server) handleTextDocumentCodeLens(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.CodeLensParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return s.replyWithError(ctx, reply, jsonrpc2.InvalidParams, "Failed to parse codeLens params")
	}

	uri := string(params.TextDocument.URI)
	return s.submit(ctx, reply, req, &dispatch.Request{
		Method:    sidecar.MethodCodeLens,
		URI:       uri,
		Params:    sidecar.DocumentParams{URI: uri},
		NewResult: func() any { return new(sidecar.CodeLensResult) },
	}, func(result any) any {
		res := result.(*sidecar.CodeLensResult)
		text := s.docText(uri)
		lenses := make([]protocol.CodeLens, 0, len(res.Lenses))
		for _, l := range res.Lenses {
			lens := protocol.CodeLens{Range: fromSidecarRange(text, l.Range)}
			if l.Title != "" {
				lens.Command = &protocol.Command{Title: l.Title, Command: l.Command}
			}
			lenses = append(lenses, lens)
		}
		return lenses
	})
}

// handleSemanticTokens handles full-document semantic token requests.
// The data array is already LSP delta-encoded by the analyzer.
func (s *Server) handleSemanticTokens(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params struct {
		TextDocument protocol.TextDocumentIdentifier `json:"textDocument"`
	}
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return s.replyWithError(ctx, reply, jsonrpc2.InvalidParams, "Failed to parse semanticTokens params")
	}

	uri := string(params.TextDocument.URI)
	return s.submit(ctx, reply, req, &dispatch.Request{
		Method:       sidecar.MethodSemanticTokens,
		URI:          uri,
		Params:       sidecar.DocumentParams{URI: uri},
		NewResult:    func() any { return new(sidecar.SemanticTokensResult) },
		Supersedable: true,
	}, func(result any) any {
		res := result.(*sidecar.SemanticTokensResult)
		return semanticTokens{Data: res.Data}
	})
}

// handleInlayHint handles inlay hint requests for a line window.
func (s *Server) handleInlayHint(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params struct {
		TextDocument protocol.TextDocumentIdentifier `json:"textDocument"`
		Range        protocol.Range                  `json:"range"`
	}
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return s.replyWithError(ctx, reply, jsonrpc2.InvalidParams, "Failed to parse inlayHint params")
	}

	uri := string(params.TextDocument.URI)
	return s.submit(ctx, reply, req, &dispatch.Request{
		Method: sidecar.MethodInlayHints,
		URI:    uri,
		Params: sidecar.InlayHintsParams{
			URI:       uri,
			StartLine: int(params.Range.Start.Line) + 1,
			EndLine:   int(params.Range.End.Line) + 1,
		},
		NewResult:    func() any { return new(sidecar.InlayHintsResult) },
		Supersedable: true,
	}, func(result any) any {
		res := result.(*sidecar.InlayHintsResult)
		text := s.docText(uri)
		hints := make([]inlayHint, 0, len(res.Hints))
		for _, h := range res.Hints {
			hints = append(hints, inlayHint{
				Position: fromSidecarPosition(text, h.Position),
				Label:    h.Label,
				Kind:     h.Kind,
			})
		}
		return hints
	})
}

// --- Hierarchies ---

func (s *Server) handlePrepareCallHierarchy(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	return s.handleHierarchyPrepare(ctx, reply, req, sidecar.MethodCallHierarchyPrepare)
}

func (s *Server) handlePrepareTypeHierarchy(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	return s.handleHierarchyPrepare(ctx, reply, req, sidecar.MethodTypeHierarchyPrepare)
}

// handleHierarchyPrepare is shared by call and type hierarchy
// preparation; both take a position and return items.
func (s *Server) handleHierarchyPrepare(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request, method string) error {
	var params struct {
		TextDocument protocol.TextDocumentIdentifier `json:"textDocument"`
		Position     protocol.Position               `json:"position"`
	}
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return s.replyWithError(ctx, reply, jsonrpc2.InvalidParams, "Failed to parse hierarchy params")
	}

	uri := string(params.TextDocument.URI)
	return s.submit(ctx, reply, req, &dispatch.Request{
		Method:    method,
		URI:       uri,
		Params:    s.positionParams(uri, params.Position),
		NewResult: func() any { return new(sidecar.HierarchyItemsResult) },
	}, func(result any) any {
		return s.convertHierarchyItems(result.(*sidecar.HierarchyItemsResult).Items)
	})
}

func (s *Server) handleCallHierarchyIncoming(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params struct {
		Item hierarchyItem `json:"item"`
	}
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return s.replyWithError(ctx, reply, jsonrpc2.InvalidParams, "Failed to parse incomingCalls params")
	}

	return s.submit(ctx, reply, req, &dispatch.Request{
		Method:    sidecar.MethodCallHierarchyIncoming,
		URI:       params.Item.URI,
		Params:    sidecar.HierarchyItemParams{Item: s.toSidecarHierarchyItem(params.Item)},
		NewResult: func() any { return new(sidecar.IncomingCallsResult) },
	}, func(result any) any {
		res := result.(*sidecar.IncomingCallsResult)
		calls := make([]incomingCall, 0, len(res.Calls))
		for _, c := range res.Calls {
			call := incomingCall{From: s.convertHierarchyItem(c.From)}
			text := s.docText(c.From.URI)
			for _, r := range c.FromRanges {
				call.FromRanges = append(call.FromRanges, fromSidecarRange(text, r))
			}
			calls = append(calls, call)
		}
		return calls
	})
}

func (s *Server) handleTypeHierarchySupertypes(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params struct {
		Item hierarchyItem `json:"item"`
	}
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return s.replyWithError(ctx, reply, jsonrpc2.InvalidParams, "Failed to parse supertypes params")
	}

	return s.submit(ctx, reply, req, &dispatch.Request{
		Method:    sidecar.MethodTypeHierarchySupertypes,
		URI:       params.Item.URI,
		Params:    sidecar.HierarchyItemParams{Item: s.toSidecarHierarchyItem(params.Item)},
		NewResult: func() any { return new(sidecar.HierarchyItemsResult) },
	}, func(result any) any {
		return s.convertHierarchyItems(result.(*sidecar.HierarchyItemsResult).Items)
	})
}

// --- Conversions ---

func (s *Server) convertLocation(loc sidecar.Location) protocol.Location {
	return protocol.Location{
		URI:   protocol.DocumentURI(loc.URI),
		Range: fromSidecarRange(s.docText(loc.URI), loc.Range),
	}
}

func (s *Server) convertLocations(locs []sidecar.Location) []protocol.Location {
	out := make([]protocol.Location, 0, len(locs))
	for _, loc := range locs {
		out = append(out, s.convertLocation(loc))
	}
	return out
}

func (s *Server) convertTextEdits(uri string, edits []sidecar.TextEdit) []protocol.TextEdit {
	text := s.docText(uri)
	out := make([]protocol.TextEdit, 0, len(edits))
	for _, e := range edits {
		out = append(out, protocol.TextEdit{
			Range:   fromSidecarRange(text, e.Range),
			NewText: e.NewText,
		})
	}
	return out
}

func (s *Server) convertWorkspaceEdit(edits []sidecar.TextEdit) *workspaceEdit {
	changes := make(map[string][]protocol.TextEdit)
	for _, e := range edits {
		changes[e.URI] = append(changes[e.URI], protocol.TextEdit{
			Range:   fromSidecarRange(s.docText(e.URI), e.Range),
			NewText: e.NewText,
		})
	}
	return &workspaceEdit{Changes: changes}
}

func (s *Server) convertHierarchyItem(item sidecar.HierarchyItem) hierarchyItem {
	text := s.docText(item.URI)
	return hierarchyItem{
		Name:           item.Name,
		Kind:           item.Kind,
		URI:            item.URI,
		Range:          fromSidecarRange(text, item.Range),
		SelectionRange: fromSidecarRange(text, item.SelectionRange),
	}
}

func (s *Server) convertHierarchyItems(items []sidecar.HierarchyItem) []hierarchyItem {
	out := make([]hierarchyItem, 0, len(items))
	for _, item := range items {
		out = append(out, s.convertHierarchyItem(item))
	}
	return out
}

func (s *Server) toSidecarHierarchyItem(item hierarchyItem) sidecar.HierarchyItem {
	text := s.docText(item.URI)
	return sidecar.HierarchyItem{
		Name:           item.Name,
		Kind:           item.Kind,
		URI:            item.URI,
		Range:          toSidecarRange(text, item.Range),
		SelectionRange: toSidecarRange(text, item.SelectionRange),
	}
}

// convertCompletionKind maps analyzer completion kinds onto LSP kinds.
func convertCompletionKind(kind string) protocol.CompletionItemKind {
	switch kind {
	case "keyword":
		return protocol.CompletionItemKindKeyword
	case "class":
		return protocol.CompletionItemKindClass
	case "interface":
		return protocol.CompletionItemKindInterface
	case "field", "property":
		return protocol.CompletionItemKindField
	case "function":
		return protocol.CompletionItemKindFunction
	case "method":
		return protocol.CompletionItemKindMethod
	case "variable":
		return protocol.CompletionItemKindVariable
	case "snippet":
		return protocol.CompletionItemKindSnippet
	default:
		return protocol.CompletionItemKindText
	}
}

// convertSymbolKind maps analyzer symbol kinds onto LSP kinds.
func convertSymbolKind(kind string) protocol.SymbolKind {
	switch kind {
	case "class":
		return protocol.SymbolKindClass
	case "interface":
		return protocol.SymbolKindInterface
	case "object":
		return protocol.SymbolKindObject
	case "function":
		return protocol.SymbolKindFunction
	case "method":
		return protocol.SymbolKindMethod
	case "property":
		return protocol.SymbolKindProperty
	case "field":
		return protocol.SymbolKindField
	case "variable":
		return protocol.SymbolKindVariable
	case "constant":
		return protocol.SymbolKindConstant
	case "enum":
		return protocol.SymbolKindEnum
	case "package", "namespace":
		return protocol.SymbolKindPackage
	default:
		return protocol.SymbolKindObject
	}
}
