package tagml

import (
	"regexp"

	"github.com/alecthomas/participle/v2/lexer"
)

const (
	namePattern   = `[A-Za-z_][\w.:-]*`
	suffixPattern = `(?:~[\w.-]+)?`
	layerPattern  = `(?:\|\+?[A-Za-z_][\w.-]*(?:,\+?[A-Za-z_][\w.-]*)*)?`
	numberPattern = `[-+]?\d+(?:\.\d+)?(?:[eE][-+]?\d+)?`
	attrsPattern  = `(?:"(?:\\.|[^"\\])*"|'(?:\\.|[^'\\])*'|\[[^\]]*\]|[^"'\]>\[])*`
)

// documentLexer splits TAGML into whole tags, branch punctuation and text.
var documentLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Namespace", Pattern: `\[!ns\s+[^\]]*\]`},
	{Name: "Schema", Pattern: `\[!schema\s+[^\]]*\]`},
	{Name: "Comment", Pattern: `\[!(?s:.*?)!\]`},
	{Name: "StartTag", Pattern: `\[[+?]?` + namePattern + suffixPattern + layerPattern + attrsPattern + `[>\]]`},
	{Name: "EndTag", Pattern: `<[-?]?` + namePattern + suffixPattern + layerPattern + `\]`},
	{Name: "BranchOpen", Pattern: `<\|`},
	{Name: "BranchClose", Pattern: `\|>`},
	{Name: "Divider", Pattern: `\|`},
	{Name: "Escape", Pattern: `\\[\[\]<>|\\!"']`},
	{Name: "Text", Pattern: `[^\[<\\|]+`},
})

// attributeLexer tokenizes the attribute part of a start tag.
var attributeLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "String", Pattern: `"(?:\\.|[^"\\])*"|'(?:\\.|[^'\\])*'`},
	{Name: "Number", Pattern: numberPattern},
	{Name: "Bool", Pattern: `(?:true|false)\b`},
	{Name: "Name", Pattern: `:?[A-Za-z_][\w.-]*`},
	{Name: "Punct", Pattern: `[=\[\]{},]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var (
	startTagRe = regexp.MustCompile(`(?s)^\[([+?]?)(` + namePattern + `)(?:~([\w.-]+))?(?:\|([^\s>\]]*))?(.*)([>\]])$`)
	numberRe   = regexp.MustCompile(`^` + numberPattern + `$`)
	endTagRe   = regexp.MustCompile(`^<([-?]?)(` + namePattern + `)(?:~([\w.-]+))?(?:\|(.*))?\]$`)
)
