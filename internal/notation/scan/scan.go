// Package scan holds the lexing helpers shared by the notation adapters.
package scan

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"

	"github.com/starford/limen/internal/importer"
)

// ErrSyntax is wrapped by every SyntaxError.
var ErrSyntax = errors.New("syntax error")

// SyntaxError reports surface syntax a notation adapter cannot read.
type SyntaxError struct {
	Name string
	Pos  importer.Pos
	Msg  string
}

func (e *SyntaxError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("%s: %s: %s", ErrSyntax, e.Pos, e.Msg)
	}
	return fmt.Sprintf("%s: %s:%s: %s", ErrSyntax, e.Name, e.Pos, e.Msg)
}

func (e *SyntaxError) Unwrap() error { return ErrSyntax }

// Errorf builds a SyntaxError at the token's position.
func Errorf(name string, tok lexer.Token, format string, args ...any) error {
	return &SyntaxError{Name: name, Pos: PosOf(tok), Msg: fmt.Sprintf(format, args...)}
}

// PosOf converts a lexer position.
func PosOf(tok lexer.Token) importer.Pos {
	return importer.Pos{Line: tok.Pos.Line, Column: tok.Pos.Column}
}

// Token is a lexed token with its rule name resolved.
type Token struct {
	lexer.Token
	Kind string
}

// Tokens lexes all of r with def.
func Tokens(def lexer.Definition, name string, r io.Reader) ([]Token, error) {
	names := make(map[lexer.TokenType]string)
	for sym, tt := range def.Symbols() {
		names[tt] = sym
	}
	lex, err := def.Lex(name, r)
	if err != nil {
		return nil, wrapLexError(name, err)
	}
	var out []Token
	for {
		tok, err := lex.Next()
		if err != nil {
			return nil, wrapLexError(name, err)
		}
		if tok.EOF() {
			return out, nil
		}
		out = append(out, Token{Token: tok, Kind: names[tok.Type]})
	}
}

func wrapLexError(name string, err error) error {
	var le *lexer.Error
	if errors.As(err, &le) {
		return &SyntaxError{
			Name: name,
			Pos:  importer.Pos{Line: le.Pos.Line, Column: le.Pos.Column},
			Msg:  le.Msg,
		}
	}
	return &SyntaxError{Name: name, Msg: err.Error()}
}

// Emitter collects events, merging adjacent text.
type Emitter struct {
	events []importer.Event
}

// Emit appends e. A Text event directly following another Text event is
// merged into it.
func (em *Emitter) Emit(e importer.Event) {
	if e.Kind == importer.KindText {
		if e.Value == "" {
			return
		}
		if n := len(em.events); n > 0 && em.events[n-1].Kind == importer.KindText {
			em.events[n-1].Value += e.Value
			return
		}
	}
	em.events = append(em.events, e)
}

// Events returns everything emitted so far.
func (em *Emitter) Events() []importer.Event { return em.events }

// SplitLayers parses a comma separated layer list, dropping the "+" that
// marks a layer's first use.
func SplitLayers(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimPrefix(strings.TrimSpace(p), "+")
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// IsBlank reports whether s holds only white space.
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
