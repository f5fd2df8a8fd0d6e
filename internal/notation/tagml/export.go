package tagml

import (
	"io"
	"slices"
	"strings"

	"github.com/starford/limen/internal/document"
)

var textEscaper = strings.NewReplacer(`\`, `\\`, `[`, `\[`, `<`, `\<`, `|`, `\|`)

// Export renders doc as TAGML.
func Export(doc *document.Document) string {
	var b strings.Builder
	_ = ExportTo(&b, doc)
	return b.String()
}

// ExportTo writes doc as TAGML to w.
func ExportTo(w io.Writer, doc *document.Document) error {
	e := &exporter{declared: make(map[string]bool)}
	for _, ns := range sortedKeys(doc.Meta.Namespaces) {
		e.b.WriteString("[!ns " + ns + " " + doc.Meta.Namespaces[ns] + "]")
	}
	for _, s := range doc.Meta.Schemas {
		e.b.WriteString("[!schema " + s + "]")
	}
	e.limen(doc.Root())
	_, err := io.WriteString(w, e.b.String())
	return err
}

type exporter struct {
	b        strings.Builder
	declared map[string]bool
}

func (e *exporter) limen(l *document.Limen) {
	for _, mark := range l.Marks() {
		m := mark.Markup
		switch mark.Kind {
		case document.MarkText:
			e.b.WriteString(textEscaper.Replace(mark.Node.Content()))
		case document.MarkOpen:
			e.b.WriteString("[")
			if m.Optional {
				e.b.WriteString("?")
			}
			e.b.WriteString(m.ExtendedTag() + e.layers(m) + e.attributes(m) + ">")
		case document.MarkClose:
			e.b.WriteString("<" + m.ExtendedTag() + e.layers(m) + "]")
		case document.MarkSuspend:
			e.b.WriteString("<-" + m.ExtendedTag() + e.layers(m) + "]")
		case document.MarkResume:
			e.b.WriteString("[+" + m.ExtendedTag() + e.layers(m) + ">")
		case document.MarkMilestone:
			e.b.WriteString("[" + m.ExtendedTag() + e.layers(m) + e.attributes(m) + "]")
		case document.MarkVirtual:
			e.b.WriteString("[" + m.ExtendedTag() + " " + attrRef + "=" + quote(m.Target().ID) + e.attributes(m) + "]")
		case document.MarkBranchSet:
			e.b.WriteString("<|")
			for i, br := range mark.BranchSet.Branches() {
				if i > 0 {
					e.b.WriteString("|")
				}
				e.limen(br)
			}
			e.b.WriteString("|>")
		}
	}
}

// layers renders the non-default layers of m, marking each layer's first
// appearance with "+".
func (e *exporter) layers(m *document.Markup) string {
	var parts []string
	for _, l := range m.Layers() {
		if l == document.DefaultLayer {
			continue
		}
		if !e.declared[l] {
			e.declared[l] = true
			parts = append(parts, "+"+l)
			continue
		}
		parts = append(parts, l)
	}
	if len(parts) == 0 {
		return ""
	}
	return "|" + strings.Join(parts, ",")
}

func (e *exporter) attributes(m *document.Markup) string {
	var b strings.Builder
	if m.ID != "" {
		b.WriteString(" " + attrID + "=" + quote(m.ID))
	}
	for _, a := range m.Annotations() {
		b.WriteString(" ")
		writeAnnotation(&b, a)
	}
	return b.String()
}

func writeAnnotation(b *strings.Builder, a *document.Annotation) {
	b.WriteString(a.Tag + "=")
	writeValue(b, a)
}

// writeValue writes a scalar bare when it reads back as a number or
// boolean, item-only scalar children as a list and other children as an
// object.
func writeValue(b *strings.Builder, a *document.Annotation) {
	children := a.Annotations()
	if len(children) == 0 || a.Value().Len() > 0 {
		writeScalar(b, a.Text())
		return
	}
	if isScalarList(children) {
		b.WriteString("[")
		for i, c := range children {
			if i > 0 {
				b.WriteString(", ")
			}
			writeScalar(b, c.Text())
		}
		b.WriteString("]")
		return
	}
	b.WriteString("{")
	for i, c := range children {
		if i > 0 {
			b.WriteString(" ")
		}
		writeAnnotation(b, c)
	}
	b.WriteString("}")
}

func isScalarList(as []*document.Annotation) bool {
	return !slices.ContainsFunc(as, func(a *document.Annotation) bool {
		return a.Tag != listItem || len(a.Annotations()) > 0
	})
}

func writeScalar(b *strings.Builder, s string) {
	if s == "true" || s == "false" || numberRe.MatchString(s) {
		b.WriteString(s)
		return
	}
	b.WriteString(quote(s))
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
