package importer

import (
	"fmt"
	"math"
	"slices"
)

// OverlapLayer names the n-th implicit layer created by AssignLayers.
func OverlapLayer(n int) string {
	if n == 0 {
		return ""
	}
	return fmt.Sprintf("overlap-%d", n)
}

// AssignLayers gives layers to ranges of notations that allow overlap
// without naming layers. Opens are paired with closes by extended tag, most
// recent first, and each range goes to the first layer in which every one
// of its segments nests properly with the segments already placed there;
// the default layer is tried first. All segments of a range share its
// layer. Events that already carry layers are left untouched, and unpaired
// closes keep no layer so the builder reports them.
func AssignLayers(events []Event) []Event {
	out := slices.Clone(events)
	scope := scopesOf(out)

	// Pass 1: pair segment starts (open, resume) with segment ends (close,
	// suspend) and remember which range each belongs to. A range is
	// identified by the index of its open event.
	type key struct {
		scope int
		ext   string
	}
	segEnd := make(map[int]int)
	rangeOf := make(map[int]int)
	openSeg := make(map[key][]int)
	suspended := make(map[key][]int)
	var order []int
	for i, e := range out {
		if len(e.Layers) > 0 {
			continue
		}
		k := key{scope[i], extOf(e)}
		switch e.Kind {
		case KindOpenRange:
			rangeOf[i] = i
			order = append(order, i)
			segEnd[i] = math.MaxInt
			openSeg[k] = append(openSeg[k], i)
		case KindResumeRange:
			if rs := suspended[k]; len(rs) > 0 {
				rangeOf[i] = rs[len(rs)-1]
				suspended[k] = rs[:len(rs)-1]
			}
			segEnd[i] = math.MaxInt
			openSeg[k] = append(openSeg[k], i)
		case KindCloseRange, KindSuspendRange:
			starts := openSeg[k]
			if len(starts) == 0 {
				continue
			}
			start := starts[len(starts)-1]
			openSeg[k] = starts[:len(starts)-1]
			segEnd[start] = i
			if r, ok := rangeOf[start]; ok {
				rangeOf[i] = r
				if e.Kind == KindSuspendRange {
					suspended[k] = append(suspended[k], r)
				}
			}
		}
	}

	segments := make(map[int][]segment)
	for i, e := range out {
		if e.Kind != KindOpenRange && e.Kind != KindResumeRange {
			continue
		}
		if r, ok := rangeOf[i]; ok {
			segments[r] = append(segments[r], segment{i, segEnd[i]})
		}
	}

	// Pass 2: place whole ranges, in order of their first start.
	placed := make(map[int][][]segment)
	layerOf := make(map[int]int)
	for _, r := range order {
		s := scope[r]
		n := pickLayer(placed[s], segments[r])
		if n == len(placed[s]) {
			placed[s] = append(placed[s], nil)
		}
		placed[s][n] = append(placed[s][n], segments[r]...)
		layerOf[r] = n
	}
	for i := range out {
		if r, ok := rangeOf[i]; ok {
			out[i].Layers = layerList(layerOf[r])
		}
	}
	return out
}

// segment spans the event indices of one start (open or resume) and its
// end (close or suspend). Unended segments end at math.MaxInt.
type segment struct {
	start, end int
}

// crosses reports whether a and b overlap without one containing the other.
func (a segment) crosses(b segment) bool {
	return (a.start < b.start && b.start < a.end && a.end < b.end) ||
		(b.start < a.start && a.start < b.end && b.end < a.end)
}

// pickLayer returns the first layer in which none of segs crosses a
// segment already placed there.
func pickLayer(layers [][]segment, segs []segment) int {
	for n, placed := range layers {
		fits := !slices.ContainsFunc(segs, func(a segment) bool {
			return slices.ContainsFunc(placed, a.crosses)
		})
		if fits {
			return n
		}
	}
	return len(layers)
}

func layerList(n int) []string {
	if n == 0 {
		return nil
	}
	return []string{OverlapLayer(n)}
}

func extOf(e Event) string {
	if e.Suffix == "" {
		return e.Tag
	}
	return e.Tag + "~" + e.Suffix
}

// scopesOf numbers the annotation and branch scopes each event lives in.
// Ranges never pair across scopes.
func scopesOf(events []Event) []int {
	out := make([]int, len(events))
	stack := []int{0}
	next := 1
	for i, e := range events {
		switch e.Kind {
		case KindBeginAnnotation, KindBeginBranchSet:
			out[i] = stack[len(stack)-1]
			stack = append(stack, next)
			next++
		case KindNextBranch:
			if len(stack) > 1 {
				stack[len(stack)-1] = next
				next++
			}
			out[i] = stack[len(stack)-1]
		case KindEndAnnotation, KindEndBranchSet:
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}
			out[i] = stack[len(stack)-1]
		default:
			out[i] = stack[len(stack)-1]
		}
	}
	return out
}
