package epub

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"bookgate/pkg/archive"
)

type opfMetadata struct {
	Title      []dcElement `xml:"title"`
	Creator    []dcElement `xml:"creator"`
	Language   []dcElement `xml:"language"`
	Identifier []dcElement `xml:"identifier"`
	Meta       []opfMeta   `xml:"meta"`
}

type opfMeta struct {
	Name    string `xml:"name,attr"`
	Content string `xml:"content,attr"`
}

type dcElement struct {
	ID      string `xml:"id,attr"`
	Content string `xml:",chardata"`
}

type opfItem struct {
	ID         string `xml:"id,attr"`
	Href       string `xml:"href,attr"`
	MediaType  string `xml:"media-type,attr"`
	Properties string `xml:"properties,attr"`
}

type opfItemRef struct {
	IDRef  string `xml:"idref,attr"`
	Linear string `xml:"linear,attr"`
}

// Parse locates the package document inside arc and parses it. Any missing
// or unreadable structure fails with models.ErrMalformedArchive; no partial
// package is ever returned.
func Parse(arc *archive.Archive) (*Package, error) {
	opfPath, err := locatePackage(arc)
	if err != nil {
		return nil, malformed("package document not found", err)
	}

	entry, _ := arc.Entry(opfPath)
	pkg, err := ParsePackage(opfPath, entry.Data)
	if err != nil {
		return nil, malformed("failed to parse "+opfPath, err)
	}
	return pkg, nil
}

// ParsePackage parses a package document read from opfPath
func ParsePackage(opfPath string, data []byte) (*Package, error) {
	baseDir := path.Dir(opfPath)
	if baseDir == "." {
		baseDir = ""
	}

	pkg := &Package{
		Path:    opfPath,
		BaseDir: baseDir,
		raw:     data,
		byID:    make(map[string]int),
	}

	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = asciiOnly

	var (
		stack        []string
		seenPackage  bool
		seenManifest bool
		seenSpine    bool
	)

	for {
		start := dec.InputOffset()
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if errors.Is(err, ErrUnsupportedEncoding) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v", ErrInvalidPackage, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			parent := ""
			if len(stack) > 0 {
				parent = stack[len(stack)-1]
			}
			name := t.Name.Local

			switch {
			case len(stack) == 0:
				if name != "package" {
					return nil, fmt.Errorf("%w: root element is <%s>", ErrInvalidPackage, name)
				}
				seenPackage = true
				pkg.Version = attrValue(t, "version")
				stack = append(stack, name)

			case parent == "package" && name == "metadata":
				var md opfMetadata
				if err := dec.DecodeElement(&md, &t); err != nil {
					return nil, fmt.Errorf("%w: metadata: %v", ErrInvalidPackage, err)
				}
				pkg.Metadata = md.convert()

			case parent == "package" && name == "manifest":
				seenManifest = true
				stack = append(stack, name)

			case parent == "package" && name == "spine":
				seenSpine = true
				pkg.Toc = attrValue(t, "toc")
				stack = append(stack, name)

			case parent == "manifest" && name == "item":
				var it opfItem
				if err := dec.DecodeElement(&it, &t); err != nil {
					return nil, fmt.Errorf("%w: manifest item: %v", ErrInvalidPackage, err)
				}
				if it.ID == "" || it.Href == "" {
					return nil, fmt.Errorf("%w: manifest item without id or href", ErrInvalidPackage)
				}
				if _, dup := pkg.byID[it.ID]; dup {
					return nil, fmt.Errorf("%w: duplicate manifest id %q", ErrInvalidPackage, it.ID)
				}
				pkg.byID[it.ID] = len(pkg.Items)
				pkg.Items = append(pkg.Items, Item{
					ID:         it.ID,
					Href:       it.Href,
					MediaType:  it.MediaType,
					Properties: strings.Fields(it.Properties),
					Path:       resolveRef(baseDir, it.Href),
				})
				pkg.itemSpans = append(pkg.itemSpans, span{start: start, end: dec.InputOffset()})

			case parent == "spine" && name == "itemref":
				var ref opfItemRef
				if err := dec.DecodeElement(&ref, &t); err != nil {
					return nil, fmt.Errorf("%w: spine itemref: %v", ErrInvalidPackage, err)
				}
				pkg.Spine = append(pkg.Spine, SpineRef{
					IDRef:  ref.IDRef,
					Linear: ref.Linear != "no",
				})
				pkg.spineSpans = append(pkg.spineSpans, span{start: start, end: dec.InputOffset()})

			default:
				if err := dec.Skip(); err != nil {
					return nil, fmt.Errorf("%w: %v", ErrInvalidPackage, err)
				}
			}

		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	switch {
	case !seenPackage:
		return nil, fmt.Errorf("%w: no <package> element", ErrInvalidPackage)
	case !seenManifest:
		return nil, ErrNoManifest
	case !seenSpine:
		return nil, ErrNoSpine
	case len(pkg.Spine) == 0:
		return nil, ErrEmptySpine
	}

	for _, ref := range pkg.Spine {
		if _, ok := pkg.byID[ref.IDRef]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnresolvedSpine, ref.IDRef)
		}
	}

	return pkg, nil
}

// asciiOnly accepts encodings that are byte-identical to UTF-8 so recorded
// offsets stay valid for Rewrite.
func asciiOnly(label string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(label) {
	case "us-ascii", "ascii", "utf8":
		return input, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedEncoding, label)
}

func attrValue(se xml.StartElement, local string) string {
	for _, a := range se.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

func (md *opfMetadata) convert() Metadata {
	m := Metadata{
		Title:      firstText(md.Title),
		Language:   firstText(md.Language),
		Identifier: firstText(md.Identifier),
	}
	for _, meta := range md.Meta {
		if meta.Name == "cover" && m.CoverID == "" {
			m.CoverID = strings.TrimSpace(meta.Content)
		}
	}
	for _, c := range md.Creator {
		if name := strings.TrimSpace(c.Content); name != "" {
			m.Creators = append(m.Creators, name)
		}
	}
	return m
}

func firstText(elems []dcElement) string {
	for _, e := range elems {
		if s := strings.TrimSpace(e.Content); s != "" {
			return s
		}
	}
	return ""
}
