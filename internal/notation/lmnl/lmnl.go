// Package lmnl reads LMNL sawtooth syntax. Ranges may overlap freely and
// every annotation value can itself hold text, ranges and annotations.
package lmnl

import (
	"io"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"

	"github.com/starford/limen/internal/importer"
	"github.com/starford/limen/internal/notation/scan"
)

var lmnlLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `\[!--(?s:.*?)--\]`},
	{Name: "Open", Pattern: `\[[A-Za-z_][\w.:-]*(?:~[\w.-]+)?`},
	{Name: "Close", Pattern: `\{[A-Za-z_][\w.:-]*(?:~[\w.-]+)?`},
	{Name: "AnonClose", Pattern: `\{\]`},
	{Name: "RBrace", Pattern: `\}`},
	{Name: "RBracket", Pattern: `\]`},
	{Name: "Text", Pattern: `[^\[\]{}]+`},
})

type ctxKind int

const (
	// content is the root text or the text of an annotation value.
	content ctxKind = iota
	// rangeOpen is inside "[name ...", waiting for "}" or "]".
	rangeOpen
	// rangeClose is inside "{name ...", waiting for "]".
	rangeClose
	// annoHead is inside an annotation start, waiting for "}" or "]".
	annoHead
	// annoClose is inside "{name" that ends the enclosing annotation.
	annoClose
)

type ctx struct {
	kind       ctxKind
	tag        string
	suffix     string
	pos        importer.Pos
	annotation bool
	opened     map[string]int
	em         scan.Emitter
}

// Tokenize reads LMNL from r and returns import events with implicit
// layers assigned to overlapping ranges.
func Tokenize(name string, r io.Reader) ([]importer.Event, error) {
	toks, err := scan.Tokens(lmnlLexer, name, r)
	if err != nil {
		return nil, err
	}
	p := &parser{name: name, stack: []*ctx{{kind: content, opened: map[string]int{}}}}
	for _, tok := range toks {
		if err := p.token(tok); err != nil {
			return nil, err
		}
	}
	if len(p.stack) > 1 {
		top := p.top()
		return nil, &scan.SyntaxError{Name: name, Pos: top.pos, Msg: "tag [" + top.tag + " is not terminated"}
	}
	return importer.AssignLayers(p.stack[0].em.Events()), nil
}

type parser struct {
	name  string
	stack []*ctx
}

func (p *parser) top() *ctx { return p.stack[len(p.stack)-1] }

func (p *parser) push(c *ctx) { p.stack = append(p.stack, c) }

func (p *parser) pop() *ctx {
	c := p.top()
	p.stack = p.stack[:len(p.stack)-1]
	return c
}

// flush appends events to the now-top context.
func (p *parser) flush(events ...importer.Event) {
	for _, e := range events {
		p.top().em.Emit(e)
	}
}

func splitName(v string) (tag, suffix string) {
	tag, suffix, _ = strings.Cut(v[1:], "~")
	return tag, suffix
}

func (p *parser) token(tok scan.Token) error {
	c := p.top()
	pos := scan.PosOf(tok.Token)
	if c.kind == content {
		return p.contentToken(c, tok, pos)
	}

	switch tok.Kind {
	case "Text":
		if !scan.IsBlank(tok.Value) {
			return scan.Errorf(p.name, tok.Token, "unexpected text %q inside tag %s", strings.TrimSpace(tok.Value), c.tag)
		}
		return nil
	case "Comment":
		c.em.Emit(importer.Comment(comment(tok.Value)).At(pos))
		return nil
	case "Open":
		if c.kind == annoClose {
			break
		}
		tag, suffix := splitName(tok.Value)
		a := &ctx{kind: annoHead, tag: tag, suffix: suffix, pos: pos}
		a.em.Emit(importer.BeginAnnotation(tag).At(pos))
		p.push(a)
		return nil
	case "RBrace":
		switch c.kind {
		case rangeOpen:
			p.pop()
			p.top().opened[extended(c.tag, c.suffix)]++
			p.flush(importer.Open(c.tag).WithSuffix(c.suffix).At(c.pos))
			p.flush(c.em.Events()...)
			return nil
		case annoHead:
			p.pop()
			p.push(&ctx{kind: content, tag: c.tag, suffix: c.suffix, pos: c.pos, annotation: true, opened: map[string]int{}, em: c.em})
			return nil
		}
	case "RBracket":
		switch c.kind {
		case rangeOpen:
			p.pop()
			p.flush(importer.Milestone(c.tag).WithSuffix(c.suffix).At(c.pos))
			p.flush(c.em.Events()...)
			return nil
		case rangeClose:
			p.pop()
			p.top().opened[extended(c.tag, c.suffix)]--
			p.flush(importer.Close(c.tag).WithSuffix(c.suffix).At(c.pos))
			p.flush(c.em.Events()...)
			return nil
		case annoHead:
			p.pop()
			p.flush(c.em.Events()...)
			p.flush(importer.EndAnnotation().At(pos))
			return nil
		case annoClose:
			p.pop()
			p.endAnnotation(pos)
			return nil
		}
	}
	return scan.Errorf(p.name, tok.Token, "unexpected %q inside tag %s", tok.Value, c.tag)
}

func (p *parser) contentToken(c *ctx, tok scan.Token, pos importer.Pos) error {
	switch tok.Kind {
	case "Text", "RBrace", "RBracket":
		c.em.Emit(importer.Text(tok.Value).At(pos))
	case "Comment":
		c.em.Emit(importer.Comment(comment(tok.Value)).At(pos))
	case "Open":
		tag, suffix := splitName(tok.Value)
		p.push(&ctx{kind: rangeOpen, tag: tag, suffix: suffix, pos: pos})
	case "Close":
		tag, suffix := splitName(tok.Value)
		ext := extended(tag, suffix)
		if c.annotation && ext == extended(c.tag, c.suffix) && c.opened[ext] <= 0 {
			p.push(&ctx{kind: annoClose, tag: tag, suffix: suffix, pos: pos})
			return nil
		}
		p.push(&ctx{kind: rangeClose, tag: tag, suffix: suffix, pos: pos})
	case "AnonClose":
		if !c.annotation {
			return scan.Errorf(p.name, tok.Token, "anonymous close outside an annotation")
		}
		p.endAnnotation(pos)
	default:
		return scan.Errorf(p.name, tok.Token, "unexpected token %q", tok.Value)
	}
	return nil
}

// endAnnotation finishes the annotation value on top of the stack and hands
// its events to the enclosing tag.
func (p *parser) endAnnotation(pos importer.Pos) {
	value := p.pop()
	p.flush(value.em.Events()...)
	p.flush(importer.EndAnnotation().At(pos))
}

func comment(v string) string {
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(v, "[!--"), "--]"))
}

// extended returns the extended tag used to pair opens with closes.
func extended(tag, suffix string) string {
	if suffix == "" {
		return tag
	}
	return tag + "~" + suffix
}
