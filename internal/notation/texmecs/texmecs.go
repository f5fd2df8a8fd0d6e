// Package texmecs reads TexMECS, a notation in which elements may overlap
// without layers and carry suspend/resume and virtual element syntax.
package texmecs

import (
	"io"
	"regexp"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"

	"github.com/starford/limen/internal/importer"
	"github.com/starford/limen/internal/notation/scan"
)

const (
	namePattern   = `[A-Za-z_][\w.:-]*`
	suffixPattern = `(?:~\d+)?`
	attrPattern   = `[\w.:-]+\s*=\s*(?:'[^']*'|"[^"]*")`
)

var texmecsLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "CommentOpen", Pattern: `<\*`},
	{Name: "CommentClose", Pattern: `\*>`},
	{Name: "CData", Pattern: `<#CDATA<(?s:.*?)>#CDATA>`},
	{Name: "TagSetOpen", Pattern: `<\|` + namePattern + suffixPattern + `\|\|`},
	{Name: "TagSetClose", Pattern: `\|\|` + namePattern + suffixPattern + `\|>`},
	{Name: "Virtual", Pattern: `<\^` + namePattern + `\^[\w.:-]+>`},
	{Name: "Resume", Pattern: `<\+` + namePattern + suffixPattern + `\|`},
	{Name: "Suspend", Pattern: `\|-` + namePattern + suffixPattern + `>`},
	{Name: "End", Pattern: `\|` + namePattern + suffixPattern + `>`},
	{Name: "Start", Pattern: `<` + namePattern + suffixPattern + `(?:[=@][\w.:-]+)?(?:\s+` + attrPattern + `)*\s*[|>]`},
	{Name: "Text", Pattern: `[^<|*]+`},
	{Name: "Char", Pattern: `[<|*]`},
})

var (
	startRe = regexp.MustCompile(`(?s)^<(` + namePattern + `)(?:~(\d+))?(?:[=@]([\w.:-]+))?(.*?)\s*([|>])$`)
	attrRe  = regexp.MustCompile(`([\w.:-]+)\s*=\s*(?:'([^']*)'|"([^"]*)")`)
	nameRe  = regexp.MustCompile(`(` + namePattern + `)(?:~(\d+))?`)
	virtRe  = regexp.MustCompile(`^<\^(` + namePattern + `)\^([\w.:-]+)>$`)
)

// Tokenize reads TexMECS from r and returns import events with implicit
// layers assigned to overlapping elements.
func Tokenize(name string, r io.Reader) ([]importer.Event, error) {
	toks, err := scan.Tokens(texmecsLexer, name, r)
	if err != nil {
		return nil, err
	}
	var (
		em      scan.Emitter
		depth   int
		comment strings.Builder
	)
	for _, tok := range toks {
		pos := scan.PosOf(tok.Token)
		if depth > 0 {
			switch tok.Kind {
			case "CommentOpen":
				depth++
			case "CommentClose":
				depth--
				if depth == 0 {
					em.Emit(importer.Comment(strings.TrimSpace(comment.String())).At(pos))
					comment.Reset()
					continue
				}
			}
			comment.WriteString(tok.Value)
			continue
		}

		switch tok.Kind {
		case "CommentOpen":
			depth = 1
		case "Text", "Char", "CommentClose":
			em.Emit(importer.Text(tok.Value).At(pos))
		case "CData":
			body := strings.TrimSuffix(strings.TrimPrefix(tok.Value, "<#CDATA<"), ">#CDATA>")
			em.Emit(importer.Text(body).At(pos))
		case "Start":
			if err := start(&em, name, tok); err != nil {
				return nil, err
			}
		case "End", "Suspend", "Resume", "TagSetOpen", "TagSetClose":
			m := nameRe.FindStringSubmatch(tok.Value)
			var e importer.Event
			switch tok.Kind {
			case "End", "TagSetClose":
				e = importer.Close(m[1])
			case "Suspend":
				e = importer.Suspend(m[1])
			case "Resume":
				e = importer.Resume(m[1])
			case "TagSetOpen":
				e = importer.Open(m[1])
			}
			em.Emit(e.WithSuffix(m[2]).At(pos))
		case "Virtual":
			m := virtRe.FindStringSubmatch(tok.Value)
			em.Emit(importer.VirtualReference(m[1], m[2]).At(pos))
		default:
			return nil, scan.Errorf(name, tok.Token, "unexpected token %q", tok.Value)
		}
	}
	if depth > 0 {
		return nil, &scan.SyntaxError{Name: name, Msg: "comment not terminated"}
	}
	return importer.AssignLayers(em.Events()), nil
}

// start handles a start tag "<e|" or a sole tag "<e>", both optionally
// carrying a suffix, an identifier and attributes.
func start(em *scan.Emitter, name string, tok scan.Token) error {
	m := startRe.FindStringSubmatch(tok.Value)
	if m == nil {
		return scan.Errorf(name, tok.Token, "malformed start tag %s", tok.Value)
	}
	tag, suffix, id, rawAttrs, end := m[1], m[2], m[3], m[4], m[5]
	pos := scan.PosOf(tok.Token)
	if end == "|" {
		em.Emit(importer.Open(tag).WithSuffix(suffix).At(pos))
	} else {
		em.Emit(importer.Milestone(tag).WithSuffix(suffix).At(pos))
	}
	if id != "" {
		em.Emit(importer.DeclareIdentifier(id).At(pos))
	}
	for _, a := range attrRe.FindAllStringSubmatch(rawAttrs, -1) {
		v := a[2]
		if v == "" {
			v = a[3]
		}
		em.Emit(importer.BeginAnnotation(a[1]).At(pos))
		em.Emit(importer.Text(v).At(pos))
		em.Emit(importer.EndAnnotation().At(pos))
	}
	return nil
}
