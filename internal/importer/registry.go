package importer

import (
	"slices"

	"github.com/starford/limen/internal/document"
)

// registry keeps one stack of open ranges per layer plus the table of
// suspended ranges. Each builder frame owns its own registry.
type registry struct {
	stacks    map[string][]*document.Markup
	open      []*document.Markup // currently open ranges in open order
	suspended map[string][]*document.Markup
}

func newRegistry() *registry {
	return &registry{
		stacks:    map[string][]*document.Markup{document.DefaultLayer: nil},
		suspended: make(map[string][]*document.Markup),
	}
}

func (r *registry) top(layer string) *document.Markup {
	st := r.stacks[layer]
	if len(st) == 0 {
		return nil
	}
	return st[len(st)-1]
}

func (r *registry) push(m *document.Markup) {
	for _, l := range m.Layers() {
		r.stacks[l] = append(r.stacks[l], m)
	}
	r.open = append(r.open, m)
}

func (r *registry) pop(m *document.Markup) {
	for _, l := range m.Layers() {
		st := r.stacks[l]
		r.stacks[l] = st[:len(st)-1]
	}
	if i := slices.Index(r.open, m); i >= 0 {
		r.open = slices.Delete(r.open, i, i+1)
	}
}

func (r *registry) empty() bool { return len(r.open) == 0 }

// layers returns every layer that has ever held a range, sorted.
func (r *registry) layers() []string {
	out := make([]string, 0, len(r.stacks))
	for l := range r.stacks {
		out = append(out, l)
	}
	slices.Sort(out)
	return out
}

// resolve finds the range a close or suspend of ext refers to. The range
// must be on top of every layer it belongs to.
func (r *registry) resolve(pos Pos, ext string, layers []string, suspending bool) (*document.Markup, error) {
	var (
		m       *document.Markup
		matched []string
	)
	if len(layers) > 0 {
		for _, l := range layers {
			t := r.top(l)
			if t == nil || t.ExtendedTag() != ext {
				return nil, r.notFound(pos, ext, l, suspending)
			}
			if m != nil && m != t {
				return nil, &AmbiguousCloseError{Pos: pos, Tag: ext, Layers: layers}
			}
			m = t
		}
	} else {
		var distinct []*document.Markup
		for _, l := range r.layers() {
			t := r.top(l)
			if t == nil || t.ExtendedTag() != ext {
				continue
			}
			matched = append(matched, l)
			if !slices.Contains(distinct, t) {
				distinct = append(distinct, t)
			}
		}
		switch len(distinct) {
		case 0:
			return nil, r.notFound(pos, ext, "", suspending)
		case 1:
			m = distinct[0]
		default:
			return nil, &AmbiguousCloseError{Pos: pos, Tag: ext, Layers: matched}
		}
	}
	for _, l := range m.Layers() {
		if t := r.top(l); t != m {
			return nil, &UnmatchedCloseError{Pos: pos, Tag: ext, Layer: l, Crosses: t.ExtendedTag()}
		}
	}
	return m, nil
}

func (r *registry) notFound(pos Pos, ext, layer string, suspending bool) error {
	if suspending {
		return &UnmatchedSuspendCloseError{Pos: pos, Tag: ext}
	}
	if len(r.suspended[ext]) > 0 && !r.isOpen(ext) {
		return &UnmatchedSuspendCloseError{Pos: pos, Tag: ext, Suspended: true}
	}
	err := &UnmatchedCloseError{Pos: pos, Tag: ext, Layer: layer}
	if m := r.innermostOpen(ext); m != nil {
		for _, l := range m.Layers() {
			if layer != "" && l != layer {
				continue
			}
			if t := r.top(l); t != nil && t != m {
				err.Layer, err.Crosses = l, t.ExtendedTag()
				break
			}
		}
	}
	return err
}

// innermostOpen returns the most recently opened range with tag ext that
// is still open.
func (r *registry) innermostOpen(ext string) *document.Markup {
	for i := len(r.open) - 1; i >= 0; i-- {
		if r.open[i].ExtendedTag() == ext {
			return r.open[i]
		}
	}
	return nil
}

func (r *registry) isOpen(ext string) bool {
	return slices.ContainsFunc(r.open, func(m *document.Markup) bool { return m.ExtendedTag() == ext })
}

func (r *registry) close(pos Pos, ext string, layers []string) (*document.Markup, error) {
	m, err := r.resolve(pos, ext, layers, false)
	if err != nil {
		return nil, err
	}
	r.pop(m)
	return m, nil
}

func (r *registry) suspend(pos Pos, ext string, layers []string) (*document.Markup, error) {
	m, err := r.resolve(pos, ext, layers, true)
	if err != nil {
		return nil, err
	}
	r.pop(m)
	r.suspended[ext] = append(r.suspended[ext], m)
	return m, nil
}

// resume re-pushes the most recently suspended range for ext onto its
// original layers.
func (r *registry) resume(pos Pos, ext string, layers []string) (*document.Markup, error) {
	list := r.suspended[ext]
	if len(list) == 0 {
		return nil, &UnmatchedResumeError{Pos: pos, Tag: ext}
	}
	m := list[len(list)-1]
	for _, l := range layers {
		if !m.InLayer(l) {
			return nil, &UnmatchedResumeError{Pos: pos, Tag: ext}
		}
	}
	if len(list) == 1 {
		delete(r.suspended, ext)
	} else {
		r.suspended[ext] = list[:len(list)-1]
	}
	r.push(m)
	return m, nil
}

// unclosed returns the extended tags of open ranges, innermost first.
func (r *registry) unclosed() []string {
	out := make([]string, 0, len(r.open))
	for i := len(r.open) - 1; i >= 0; i-- {
		out = append(out, r.open[i].ExtendedTag())
	}
	return out
}

// pendingSuspended returns ranges that were suspended and never resumed.
func (r *registry) pendingSuspended() []*document.Markup {
	var out []*document.Markup
	for _, ext := range sortedKeys(r.suspended) {
		out = append(out, r.suspended[ext]...)
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
