// Package epub locates, parses and rewrites the package document of an
// EPUB container.
package epub

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"bookgate/pkg/models"

	"github.com/samber/lo"
)

const (
	MimetypeFile     = "mimetype"
	MimetypeValue    = "application/epub+zip"
	ContainerFile    = "META-INF/container.xml"
	MetaInfDir       = "META-INF/"
	PackageMediaType = "application/oebps-package+xml"
	NCXMediaType     = "application/x-dtbncx+xml"
)

// DefaultPackagePaths are tried in order when container.xml is absent or
// points at an entry that does not exist.
var DefaultPackagePaths = []string{
	"OEBPS/content.opf",
	"content.opf",
	"OPS/content.opf",
}

var (
	ErrNoPackage           = errors.New("epub: package document not found")
	ErrInvalidPackage      = errors.New("epub: package document is not well-formed")
	ErrNoManifest          = errors.New("epub: package has no manifest")
	ErrNoSpine             = errors.New("epub: package has no spine")
	ErrEmptySpine          = errors.New("epub: spine has no itemrefs")
	ErrUnresolvedSpine     = errors.New("epub: spine references an unknown manifest item")
	ErrUnsupportedEncoding = errors.New("epub: package document is not UTF-8")
	ErrInconsistentArchive = errors.New("epub: archive is internally inconsistent")
)

// Item is a manifest entry
type Item struct {
	ID         string
	Href       string
	MediaType  string
	Properties []string
	// Path is Href resolved against the package document directory
	Path string
}

// HasProperty reports whether the item declares prop
func (i Item) HasProperty(prop string) bool {
	return lo.Contains(i.Properties, prop)
}

// SpineRef is one itemref of the spine
type SpineRef struct {
	IDRef  string
	Linear bool
}

// Metadata holds the descriptive fields readers show in their library view
type Metadata struct {
	Title      string
	Creators   []string
	Language   string
	Identifier string
	// CoverID is the manifest id named by <meta name="cover">
	CoverID string
}

type span struct {
	start, end int64
}

// Package is a parsed package document together with the byte positions of
// the elements that Rewrite may drop.
type Package struct {
	Path     string
	BaseDir  string
	Version  string
	Metadata Metadata
	Items    []Item
	Spine    []SpineRef
	Toc      string

	raw        []byte
	byID       map[string]int
	itemSpans  []span
	spineSpans []span
}

// Item looks up a manifest item by id
func (p *Package) Item(id string) (Item, bool) {
	i, ok := p.byID[id]
	if !ok {
		return Item{}, false
	}
	return p.Items[i], true
}

// SpineIDs returns the spine idrefs in reading order
func (p *Package) SpineIDs() []string {
	ids := make([]string, len(p.Spine))
	for i, ref := range p.Spine {
		ids[i] = ref.IDRef
	}
	return ids
}

// CoverItems returns the manifest items that make up the cover: the item
// named by the cover meta and any item with the cover-image property.
func (p *Package) CoverItems() []Item {
	var items []Item
	for _, it := range p.Items {
		if it.ID == p.Metadata.CoverID || it.HasProperty("cover-image") {
			items = append(items, it)
		}
	}
	return items
}

// Raw returns the package document bytes as read from the archive
func (p *Package) Raw() []byte {
	return p.raw
}

// ResolveHref resolves a package-relative href to an archive entry name
func (p *Package) ResolveHref(href string) string {
	return resolveRef(p.BaseDir, href)
}

// resolveRef joins a relative reference to dir, dropping any fragment or
// query and undoing percent-encoding.
func resolveRef(dir, ref string) string {
	if i := strings.IndexAny(ref, "#?"); i >= 0 {
		ref = ref[:i]
	}
	if ref == "" {
		return ""
	}
	if unescaped, err := url.PathUnescape(ref); err == nil {
		ref = unescaped
	}
	if strings.HasPrefix(ref, "/") {
		return strings.TrimPrefix(path.Clean(ref), "/")
	}
	return path.Clean(path.Join(dir, ref))
}

func malformed(message string, cause error) error {
	return &models.Error{
		Code:    models.ErrCodeInvalidManifest,
		Message: message,
		Err:     fmt.Errorf("%w: %w", models.ErrMalformedArchive, cause),
	}
}
