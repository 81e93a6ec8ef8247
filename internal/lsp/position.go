package lsp

import (
	"strings"

	"go.lsp.dev/protocol"

	"github.com/tomatitito/kotlin-analyzer/internal/sidecar"
)

// The LSP addresses positions with 0-based lines and UTF-16 code-unit
// columns; the analyzer wire uses 1-based lines and UTF-8 byte
// columns. These conversions clamp out-of-range inputs to the nearest
// valid position rather than failing, since editors routinely send
// positions one past the end of a line.

// toSidecarPosition converts an LSP position into analyzer coordinates
// using the document text for the UTF-16 to byte column mapping.
func toSidecarPosition(text string, pos protocol.Position) sidecar.Position {
	line := lineContent(text, int(pos.Line))
	return sidecar.Position{
		Line:      int(pos.Line) + 1,
		Character: utf16ToByteCol(line, int(pos.Character)) + 1,
	}
}

// fromSidecarPosition converts analyzer coordinates into an LSP
// position.
func fromSidecarPosition(text string, pos sidecar.Position) protocol.Position {
	line0 := pos.Line - 1
	if line0 < 0 {
		line0 = 0
	}
	line := lineContent(text, line0)
	col0 := pos.Character - 1
	if col0 < 0 {
		col0 = 0
	}
	return protocol.Position{
		Line:      uint32(line0),
		Character: uint32(byteToUTF16Col(line, col0)),
	}
}

// toSidecarRange converts an LSP range.
func toSidecarRange(text string, r protocol.Range) sidecar.Range {
	return sidecar.Range{
		Start: toSidecarPosition(text, r.Start),
		End:   toSidecarPosition(text, r.End),
	}
}

// fromSidecarRange converts an analyzer range.
func fromSidecarRange(text string, r sidecar.Range) protocol.Range {
	return protocol.Range{
		Start: fromSidecarPosition(text, r.Start),
		End:   fromSidecarPosition(text, r.End),
	}
}

// lineContent returns the content of the 0-based line without its
// terminator. Out-of-range lines yield the empty string, which makes
// the column conversions clamp to column zero.
func lineContent(text string, line int) string {
	if line < 0 {
		return ""
	}
	rest := text
	for i := 0; i < line; i++ {
		idx := strings.IndexByte(rest, '\n')
		if idx < 0 {
			return ""
		}
		rest = rest[idx+1:]
	}
	if idx := strings.IndexByte(rest, '\n'); idx >= 0 {
		rest = rest[:idx]
	}
	return strings.TrimSuffix(rest, "\r")
}

// utf16ToByteCol converts a UTF-16 code-unit column within line to a
// byte offset, clamping past-end columns to the line length.
func utf16ToByteCol(line string, col int) int {
	if col <= 0 {
		return 0
	}
	units := 0
	for i, r := range line {
		if units >= col {
			return i
		}
		units += utf16RuneLen(r)
	}
	return len(line)
}

// byteToUTF16Col converts a byte offset within line to a UTF-16
// code-unit column, clamping offsets that land inside a rune or past
// the end.
func byteToUTF16Col(line string, offset int) int {
	if offset <= 0 {
		return 0
	}
	if offset > len(line) {
		offset = len(line)
	}
	units := 0
	for i, r := range line {
		if i >= offset {
			break
		}
		units += utf16RuneLen(r)
	}
	return units
}

// utf16RuneLen is the number of UTF-16 code units encoding r.
func utf16RuneLen(r rune) int {
	if r >= 0x10000 {
		return 2
	}
	return 1
}
