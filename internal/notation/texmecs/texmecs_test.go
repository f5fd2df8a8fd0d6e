package texmecs

import (
	"errors"
	"strings"
	"testing"

	"github.com/starford/limen/internal/document"
	"github.com/starford/limen/internal/importer"
	"github.com/starford/limen/internal/notation/scan"
)

func build(src string) (*document.Document, error) {
	events, err := Tokenize("test.texmecs", strings.NewReader(src))
	if err != nil {
		return nil, err
	}
	return importer.BuildAll(events)
}

func mustBuild(t *testing.T, src string) *document.Document {
	t.Helper()
	doc, err := build(src)
	if err != nil {
		t.Fatalf("import %q: %v", src, err)
	}
	return doc
}

func find(t *testing.T, doc *document.Document, ext string) *document.Markup {
	t.Helper()
	for m := range doc.Markups() {
		if m.ExtendedTag() == ext && !m.IsVirtual() {
			return m
		}
	}
	t.Fatalf("no markup %s", ext)
	return nil
}

func TestOverlappingElements(t *testing.T) {
	doc := mustBuild(t, `<s|<a|John <b|loves|a> Mary|b>|s>`)
	if got := doc.Root().Text(); got != "John loves Mary" {
		t.Errorf("text = %q", got)
	}
	for ext, want := range map[string]string{"s": "John loves Mary", "a": "John loves", "b": "loves Mary"} {
		if got := find(t, doc, ext).Text(); got != want {
			t.Errorf("%s text = %q, want %q", ext, got, want)
		}
	}
	if find(t, doc, "a").InLayer(find(t, doc, "b").Layers()[0]) {
		t.Error("overlapping elements must not share a layer")
	}
}

func TestSelfOverlap(t *testing.T) {
	doc := mustBuild(t, `<e~1|Lorem <e~2|Ipsum |e~1>Dolor...|e~2>`)
	e1, e2 := find(t, doc, "e~1"), find(t, doc, "e~2")
	if e1.Text() != "Lorem Ipsum " || e2.Text() != "Ipsum Dolor..." {
		t.Errorf("texts = %q, %q", e1.Text(), e2.Text())
	}
	if e1.Tag != "e" || e1.Suffix != "1" {
		t.Errorf("e~1 parsed as tag %q suffix %q", e1.Tag, e1.Suffix)
	}
	if !e2.InLayer(importer.OverlapLayer(1)) {
		t.Errorf("e~2 layers = %v", e2.Layers())
	}
}

func TestAttributesAndSoleTags(t *testing.T) {
	doc := mustBuild(t, `<s type='test'|x <empty purpose="mark">y|s>`)
	s := find(t, doc, "s")
	annos := document.AnnotationsOf(s)
	if len(annos) != 1 || annos[0].Tag != "type" || annos[0].Text() != "test" {
		t.Errorf("s annotations malformed")
	}
	empty := find(t, doc, "empty")
	if !empty.IsMilestone() || document.AnnotationsOf(empty)[0].Text() != "mark" {
		t.Error("sole tag should be a milestone with its attribute")
	}
}

func TestSuspendResume(t *testing.T) {
	doc := mustBuild(t, `<s|<a|John <b|loves|a> Mary|-b>, or so he says, <+b|very much|b>|s>`)
	b := find(t, doc, "b")
	var segs []string
	for n := range document.TextNodesOf(b) {
		segs = append(segs, n.Content())
	}
	if strings.Join(segs, "/") != "loves/ Mary/very much" {
		t.Errorf("b segments = %q", segs)
	}
}

func TestTagSets(t *testing.T) {
	doc := mustBuild(t, `<|choice||<option|A|option><option|B|option>||choice|>`)
	if got := find(t, doc, "choice").Text(); got != "AB" {
		t.Errorf("choice text = %q", got)
	}
	n := 0
	for m := range doc.Markups() {
		if m.Tag == "option" {
			n++
		}
	}
	if n != 2 {
		t.Errorf("options = %d", n)
	}
}

func TestVirtualElement(t *testing.T) {
	doc := mustBuild(t, `<real|<e=e1|Reality|e>|real><virtual|<^e^e1>|virtual>`)
	if got := find(t, doc, "virtual").Text(); got != "" {
		t.Errorf("virtual range holds no own text, got %q", got)
	}
	var virt *document.Markup
	for m := range doc.Markups() {
		if m.IsVirtual() {
			virt = m
		}
	}
	if virt == nil || virt.Target() != find(t, doc, "e") || virt.Text() != "Reality" {
		t.Fatal("virtual element should alias e1")
	}
}

func TestDominance(t *testing.T) {
	doc := mustBuild(t, `<a|<b|x|b>|a>`)
	a, b := find(t, doc, "a"), find(t, doc, "b")
	if p, ok := document.DominatingMarkup(b); !ok || p != a {
		t.Error("b should be dominated by a")
	}
	if c, ok := document.DominatedMarkup(a); !ok || c != b {
		t.Error("a should dominate b")
	}
}

func TestCommentsAndCData(t *testing.T) {
	doc := mustBuild(t, `<t|<* outer <* inner *> *>1 < 2 * 3 <#CDATA<<b|raw|b>>#CDATA>|t>`)
	if got := doc.Root().Text(); got != "1 < 2 * 3 <b|raw|b>" {
		t.Errorf("text = %q", got)
	}
	if len(doc.Meta.Comments) != 1 || doc.Meta.Comments[0] != "outer <* inner *>" {
		t.Errorf("comments = %q", doc.Meta.Comments)
	}
}

func TestImportErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want error
	}{
		{"not closed", `<tag|opening, but not closing`, importer.ErrUnclosedMarkup},
		{"no opening tag", `no opening tag|bla>`, importer.ErrUnmatchedClose},
		{"idref not found", `<v|<^v^v12>|v>`, importer.ErrUnresolvedReference},
		{"close while suspended", `<tag|Lorem ipsum|-tag> dolores rosetta|tag>`, importer.ErrUnmatchedSuspendClose},
		{"resume without suspend", `<tag|Lorem ipsum <+tag|dolores rosetta|tag>`, importer.ErrUnmatchedResume},
		{"id reused", `<tag@t1|Lorem ipsum <b@t1|Dolores|b> dulcetto.|tag>`, importer.ErrDuplicateID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := build(tt.src)
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
			if !errors.Is(err, importer.ErrStructural) {
				t.Errorf("%v should be structural", err)
			}
		})
	}
}

func TestDuplicateIDPosition(t *testing.T) {
	_, err := build(`<tag@t1|Lorem ipsum <b@t1|Dolores|b> dulcetto.|tag>`)
	var dup *importer.DuplicateIDError
	if !errors.As(err, &dup) {
		t.Fatalf("error = %v", err)
	}
	if dup.ID != "t1" || dup.Pos.Column != 21 {
		t.Errorf("duplicate reported at %s for %q", dup.Pos, dup.ID)
	}
}

func TestUnterminatedComment(t *testing.T) {
	_, err := Tokenize("bad.texmecs", strings.NewReader(`<t|x<* never closed|t>`))
	if !errors.Is(err, scan.ErrSyntax) {
		t.Errorf("error = %v", err)
	}
}

func TestResumeCrossingElement(t *testing.T) {
	doc := mustBuild(t, `<a|x|-a> <b|y<+a|z|b>w|a>`)
	a, b := find(t, doc, "a"), find(t, doc, "b")
	if a.Text() != "xzw" || b.Text() != "yz" {
		t.Errorf("a=%q b=%q", a.Text(), b.Text())
	}
	if a.InLayer(b.Layers()[0]) {
		t.Error("a and b must not share a layer")
	}
}

func TestSuspendCrossingEarlierElement(t *testing.T) {
	doc := mustBuild(t, `<b|p<a|q|b>r|-a>s<+a|t|a>`)
	if a, b := find(t, doc, "a"), find(t, doc, "b"); a.Text() != "qrt" || b.Text() != "pq" {
		t.Errorf("a=%q b=%q", a.Text(), b.Text())
	}
}
