// Package trial carves a truncated but independently valid EPUB out of a
// full one.
package trial

import (
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"

	"bookgate/pkg/archive"
	"bookgate/pkg/epub"
	"bookgate/pkg/models"

	"github.com/samber/lo"
)

const (
	// DefaultMaxSections is the number of spine documents a trial exposes
	DefaultMaxSections = 3
	// DefaultFallbackBytes is the prefix served when a source archive
	// cannot be sliced
	DefaultFallbackBytes = 100000
)

var (
	ErrInvalidBound    = errors.New("trial: section bound must be at least 1")
	ErrWithinBound     = errors.New("trial: spine already fits within the section bound")
	ErrMissingContent  = errors.New("trial: spine document has no archive entry")
	ErrMissingResource = errors.New("trial: embedded resource has no archive entry")
)

// sharedExtensions mark entries every trial carries regardless of the spine
var sharedExtensions = []string{".css", ".ttf", ".otf", ".woff", ".woff2", ".ncx"}

// IsSharedAsset reports whether an entry name is a stylesheet, font or NCX
func IsSharedAsset(name string) bool {
	return lo.Contains(sharedExtensions, strings.ToLower(path.Ext(name)))
}

// Plan is the set of entries a trial archive is built from
type Plan struct {
	// Sections are the retained spine ids in reading order
	Sections []string
	// Entries are the source entries to copy, in source order, excluding
	// the package document which is rewritten
	Entries []string

	include map[string]bool
}

// Includes reports whether the plan carries the named entry
func (p *Plan) Includes(name string) bool {
	return p.include[name]
}

// NewPlan computes the minimal consistent entry set for the first
// maxSections spine documents of pkg.
func NewPlan(arc *archive.Archive, pkg *epub.Package, maxSections int) (*Plan, error) {
	if maxSections < 1 {
		return nil, ErrInvalidBound
	}
	if len(pkg.Spine) <= maxSections {
		return nil, ErrWithinBound
	}

	plan := &Plan{
		Sections: lo.Map(pkg.Spine[:maxSections], func(ref epub.SpineRef, _ int) string {
			return ref.IDRef
		}),
		include: make(map[string]bool),
	}

	// bootstrap descriptors
	for _, name := range arc.Names() {
		if name == epub.MimetypeFile || strings.HasPrefix(name, epub.MetaInfDir) {
			plan.include[name] = true
		}
	}

	// shared assets, whether or not the manifest lists them
	for _, name := range arc.Names() {
		if IsSharedAsset(name) {
			plan.include[name] = true
		}
	}
	for _, it := range pkg.Items {
		if (it.HasProperty("nav") || it.ID == pkg.Toc) && arc.Has(it.Path) {
			plan.include[it.Path] = true
		}
	}

	// the cover stays with the metadata that points at it
	for _, it := range pkg.CoverItems() {
		if arc.Has(it.Path) {
			plan.include[it.Path] = true
		}
	}

	// retained content documents and what they embed
	for _, id := range plan.Sections {
		it, _ := pkg.Item(id)
		entry, ok := arc.Entry(it.Path)
		if !ok {
			return nil, sliceError(fmt.Sprintf("spine item %q is missing", id), ErrMissingContent)
		}
		plan.include[it.Path] = true

		for _, ref := range epub.EmbeddedRefs(it.Path, entry.Data) {
			if !arc.Has(ref) {
				return nil, sliceError(fmt.Sprintf("spine item %q embeds a missing resource", id), ErrMissingResource)
			}
			plan.include[ref] = true
		}
	}

	delete(plan.include, pkg.Path)
	plan.Entries = lo.Filter(arc.Names(), func(name string, _ int) bool {
		return plan.include[name]
	})

	return plan, nil
}

// Slice builds the trial archive for the first maxSections spine documents.
// The package document keeps everything but the dropped itemrefs and the
// manifest items whose entries are not carried over. The output is re-opened
// and validated before it is returned.
func Slice(arc *archive.Archive, pkg *epub.Package, maxSections int) ([]byte, error) {
	plan, err := NewPlan(arc, pkg, maxSections)
	if err != nil {
		return nil, err
	}

	rewritten := pkg.Rewrite(epub.RewriteOptions{
		SpineLimit: maxSections,
		KeepItem: func(it epub.Item) bool {
			return plan.Includes(it.Path)
		},
	})

	entries := make([]*archive.Entry, 0, len(plan.Entries)+3)
	// lenient sources may lack the bootstrap entries; the trial never does
	if !arc.Has(epub.MimetypeFile) {
		entries = append(entries, &archive.Entry{Name: epub.MimetypeFile, Data: []byte(epub.MimetypeValue)})
	}
	if !arc.Has(epub.ContainerFile) {
		entries = append(entries, &archive.Entry{Name: epub.ContainerFile, Data: epub.ContainerXML(pkg.Path)})
	}
	for _, name := range arc.Names() {
		if name == pkg.Path {
			entries = append(entries, &archive.Entry{Name: name, Data: rewritten})
			continue
		}
		if plan.Includes(name) {
			src, _ := arc.Entry(name)
			entries = append(entries, &archive.Entry{Name: name, Data: src.Data})
		}
	}

	out, err := archive.Write(entries, archive.WriteOptions{StoredFirst: epub.MimetypeFile})
	if err != nil {
		return nil, selfCheckError("failed to serialize trial archive", err)
	}

	if err := selfCheck(out, plan.Sections); err != nil {
		return nil, err
	}
	return out, nil
}

func selfCheck(data []byte, sections []string) error {
	arc, err := archive.Open(data)
	if err != nil {
		return selfCheckError("trial archive does not reopen", err)
	}
	pkg, err := epub.Validate(arc)
	if err != nil {
		return selfCheckError("trial archive is not valid", err)
	}
	if got := pkg.SpineIDs(); !slices.Equal(got, sections) {
		return selfCheckError(fmt.Sprintf("trial spine is %v, want %v", got, sections), errors.New("spine mismatch"))
	}
	return nil
}

func sliceError(message string, cause error) error {
	return &models.Error{
		Code:    models.ErrCodeSliceFailed,
		Message: message,
		Err:     fmt.Errorf("%w: %w", models.ErrMalformedArchive, cause),
	}
}

func selfCheckError(message string, cause error) error {
	return &models.Error{
		Code:    models.ErrCodeSliceFailed,
		Message: message,
		Err:     fmt.Errorf("%w: %w", models.ErrSliceSelfCheck, cause),
	}
}
