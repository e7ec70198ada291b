package epub

import (
	"cmp"
	"slices"
)

// RewriteOptions selects what Rewrite drops from the package document
type RewriteOptions struct {
	// SpineLimit keeps only the first n itemrefs. Zero or less keeps all.
	SpineLimit int
	// KeepItem decides per manifest item. Nil keeps every item.
	KeepItem func(Item) bool
}

// Rewrite returns a copy of the package document with the dropped itemref
// and item elements cut out. Every other byte, including metadata, guide,
// comments and the attributes on <spine>, is carried over unchanged.
func (p *Package) Rewrite(opts RewriteOptions) []byte {
	var drops []span

	if opts.SpineLimit > 0 && opts.SpineLimit < len(p.spineSpans) {
		drops = append(drops, p.spineSpans[opts.SpineLimit:]...)
	}
	if opts.KeepItem != nil {
		for i, it := range p.Items {
			if !opts.KeepItem(it) {
				drops = append(drops, p.itemSpans[i])
			}
		}
	}

	if len(drops) == 0 {
		return slices.Clone(p.raw)
	}

	slices.SortFunc(drops, func(a, b span) int {
		return cmp.Compare(a.start, b.start)
	})

	out := make([]byte, 0, len(p.raw))
	var cursor int64
	for _, d := range drops {
		cut := lineStart(p.raw, cursor, d.start)
		out = append(out, p.raw[cursor:cut]...)
		cursor = d.end
	}
	out = append(out, p.raw[cursor:]...)
	return out
}

// lineStart widens a cut at pos backwards over the indentation and line
// break that precede it, never crossing floor.
func lineStart(raw []byte, floor, pos int64) int64 {
	i := pos
	for i > floor && (raw[i-1] == ' ' || raw[i-1] == '\t') {
		i--
	}
	if i > floor && raw[i-1] == '\n' {
		i--
		if i > floor && raw[i-1] == '\r' {
			i--
		}
		return i
	}
	return pos
}
