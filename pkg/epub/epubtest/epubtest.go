// Package epubtest builds small, valid EPUB containers for tests.
package epubtest

import (
	"archive/zip"
	"bytes"
	"fmt"
	"path"
	"strings"
)

type config struct {
	opfDir       string
	container    bool
	mimetype     bool
	assets       bool
	missingImage bool
	cover        coverStyle
	extra        map[string]string
}

type coverStyle int

const (
	noCover coverStyle = iota
	// coverMeta marks the cover with <meta name="cover"> only
	coverMeta
	// coverBoth adds the cover-image property as EPUB 3 books do
	coverBoth
)

// CoverPath is the archive path of the cover image for the default layout
const CoverPath = "OEBPS/images/cover.jpg"

// Option customizes a fixture
type Option func(*config)

// WithPackageDir places the package document and content under dir. An empty
// dir puts content.opf at the archive root.
func WithPackageDir(dir string) Option {
	return func(c *config) { c.opfDir = dir }
}

// WithoutContainer omits META-INF/container.xml
func WithoutContainer() Option {
	return func(c *config) { c.container = false }
}

// WithoutMimetype omits the mimetype entry
func WithoutMimetype() Option {
	return func(c *config) { c.mimetype = false }
}

// WithoutAssets omits stylesheet, font, image, NCX and nav entries
func WithoutAssets() Option {
	return func(c *config) { c.assets = false }
}

// WithMissingImage keeps the image reference in chapter 1 but drops the
// image entry from the archive.
func WithMissingImage() Option {
	return func(c *config) { c.missingImage = true }
}

// WithCover adds a cover image declared both by <meta name="cover"> and by
// the cover-image manifest property
func WithCover() Option {
	return func(c *config) { c.cover = coverBoth }
}

// WithLegacyCover adds a cover image declared only by <meta name="cover">
func WithLegacyCover() Option {
	return func(c *config) { c.cover = coverMeta }
}

// WithEntry adds an arbitrary extra entry
func WithEntry(name, body string) Option {
	return func(c *config) { c.extra[name] = body }
}

// SectionID returns the manifest id of section n (1-based)
func SectionID(n int) string {
	return fmt.Sprintf("c%d", n)
}

// SectionPath returns the archive path of section n for the default layout
func SectionPath(n int) string {
	return fmt.Sprintf("OEBPS/text/ch%d.xhtml", n)
}

// Build returns an EPUB with the given number of spine sections. By default
// it carries a stored mimetype, container.xml, OEBPS/content.opf, a
// stylesheet, a font, an NCX, a nav document and one image embedded from the
// first section.
func Build(sections int, opts ...Option) []byte {
	cfg := &config{
		opfDir:    "OEBPS",
		container: true,
		mimetype:  true,
		assets:    true,
		extra:     map[string]string{},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	type file struct{ name, body string }
	var files []file
	join := func(rel string) string {
		if cfg.opfDir == "" {
			return rel
		}
		return path.Join(cfg.opfDir, rel)
	}

	if cfg.mimetype {
		files = append(files, file{"mimetype", "application/epub+zip"})
	}
	if cfg.container {
		files = append(files, file{"META-INF/container.xml", Container(join("content.opf"))})
	}
	files = append(files, file{join("content.opf"), packageDocument(sections, cfg.assets, cfg.cover)})

	for i := 1; i <= sections; i++ {
		files = append(files, file{join(fmt.Sprintf("text/ch%d.xhtml", i)), Section(i, cfg.assets && i == 1)})
	}

	if cfg.assets {
		files = append(files,
			file{join("styles/style.css"), "body { font-family: serif; }"},
			file{join("fonts/serif.woff2"), "wOF2-font-bytes"},
			file{join("toc.ncx"), `<?xml version="1.0" encoding="UTF-8"?><ncx xmlns="http://www.daisy.org/z3986/2005/ncx/"/>`},
			file{join("nav.xhtml"), navDocument(sections)},
		)
		if !cfg.missingImage {
			files = append(files, file{join("images/fig1.png"), "\x89PNG-fixture"})
		}
	}

	if cfg.cover != noCover {
		files = append(files, file{join("images/cover.jpg"), "\xff\xd8cover-fixture"})
	}

	for name, body := range cfg.extra {
		files = append(files, file{name, body})
	}

	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)
	for _, f := range files {
		method := zip.Deflate
		if f.name == "mimetype" {
			method = zip.Store
		}
		w, err := zw.CreateHeader(&zip.FileHeader{Name: f.name, Method: method})
		if err != nil {
			panic(err)
		}
		if _, err := w.Write([]byte(f.body)); err != nil {
			panic(err)
		}
	}
	if err := zw.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// Container returns a container.xml pointing at opfPath
func Container(opfPath string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="` + opfPath + `" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>
`
}

// PackageDocument returns an EPUB 3 package document with sections c1..cN
func PackageDocument(sections int, assets bool) string {
	return packageDocument(sections, assets, noCover)
}

func packageDocument(sections int, assets bool, cover coverStyle) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="bookid">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:identifier id="bookid">urn:uuid:8a1c5e2e-6f0b-4f43-9d0e-1f2a3b4c5d6e</dc:identifier>
    <dc:title>Fixture Book</dc:title>
    <dc:creator>A. Writer</dc:creator>
    <dc:language>en</dc:language>
`)
	if cover != noCover {
		b.WriteString(`    <meta name="cover" content="cover-img"/>
`)
	}
	b.WriteString(`  </metadata>
  <manifest>
`)
	if assets {
		b.WriteString(`    <item id="nav" href="nav.xhtml" media-type="application/xhtml+xml" properties="nav"/>
    <item id="ncx" href="toc.ncx" media-type="application/x-dtbncx+xml"/>
    <item id="css" href="styles/style.css" media-type="text/css"/>
    <item id="font" href="fonts/serif.woff2" media-type="font/woff2"/>
    <item id="fig1" href="images/fig1.png" media-type="image/png"/>
`)
	}
	switch cover {
	case coverMeta:
		b.WriteString(`    <item id="cover-img" href="images/cover.jpg" media-type="image/jpeg"/>
`)
	case coverBoth:
		b.WriteString(`    <item id="cover-img" href="images/cover.jpg" media-type="image/jpeg" properties="cover-image"/>
`)
	}
	for i := 1; i <= sections; i++ {
		fmt.Fprintf(&b, "    <item id=\"c%d\" href=\"text/ch%d.xhtml\" media-type=\"application/xhtml+xml\"/>\n", i, i)
	}
	b.WriteString("  </manifest>\n")
	if assets {
		b.WriteString(`  <spine toc="ncx" page-progression-direction="ltr">` + "\n")
	} else {
		b.WriteString("  <spine>\n")
	}
	for i := 1; i <= sections; i++ {
		fmt.Fprintf(&b, "    <itemref idref=\"c%d\"/>\n", i)
	}
	b.WriteString("  </spine>\n</package>\n")
	return b.String()
}

// Section returns the XHTML body of section n
func Section(n int, withImage bool) string {
	img := ""
	if withImage {
		img = `<img src="../images/fig1.png" alt="figure"/>`
	}
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml">
<head><title>Chapter %d</title><link rel="stylesheet" type="text/css" href="../styles/style.css"/></head>
<body><h1>Chapter %d</h1>%s<p>Text of chapter %d. <a href="ch%d.xhtml">next</a></p></body>
</html>
`, n, n, img, n, n+1)
}

func navDocument(sections int) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops"><body><nav epub:type="toc"><ol>`)
	for i := 1; i <= sections; i++ {
		fmt.Fprintf(&b, `<li><a href="text/ch%d.xhtml">Chapter %d</a></li>`, i, i)
	}
	b.WriteString("</ol></nav></body></html>\n")
	return b.String()
}
