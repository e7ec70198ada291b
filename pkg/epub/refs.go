package epub

import (
	"bytes"
	"net/url"
	"path"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/net/html"
)

// embeddingAttrs lists, per element, the attributes that pull a resource
// into the rendered page. Hyperlinks are not listed.
var embeddingAttrs = map[string][]string{
	"img":    {"src"},
	"image":  {"href"},
	"source": {"src"},
	"audio":  {"src"},
	"video":  {"src", "poster"},
	"track":  {"src"},
	"embed":  {"src"},
	"object": {"data"},
	"script": {"src"},
	"input":  {"src"},
}

// EmbeddedRefs scans an (X)HTML content document and returns the archive
// paths of the resources it embeds, in document order without duplicates.
// External URLs, data URIs and fragment-only references are ignored.
func EmbeddedRefs(docPath string, content []byte) []string {
	root, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return nil
	}

	dir := path.Dir(docPath)
	if dir == "." {
		dir = ""
	}

	var refs []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			for _, raw := range referencedValues(n) {
				if target, ok := localTarget(dir, raw); ok {
					refs = append(refs, target)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	return lo.Uniq(refs)
}

func referencedValues(n *html.Node) []string {
	if n.Data == "link" {
		if !isStylesheetLink(n) {
			return nil
		}
		return attrs(n, "href")
	}
	keys, ok := embeddingAttrs[n.Data]
	if !ok {
		return nil
	}
	return attrs(n, keys...)
}

func isStylesheetLink(n *html.Node) bool {
	for _, a := range n.Attr {
		if a.Key == "rel" {
			return lo.Contains(strings.Fields(strings.ToLower(a.Val)), "stylesheet")
		}
	}
	return false
}

// attrs returns the values of the named attributes, matching both plain and
// xlink-namespaced forms (svg <image xlink:href>).
func attrs(n *html.Node, keys ...string) []string {
	var vals []string
	for _, a := range n.Attr {
		if lo.Contains(keys, a.Key) && (a.Namespace == "" || a.Namespace == "xlink") {
			vals = append(vals, a.Val)
		}
	}
	return vals
}

func localTarget(dir, ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") {
		return "", false
	}
	u, err := url.Parse(ref)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "", false
	}
	target := resolveRef(dir, ref)
	if target == "" || target == "." || strings.HasPrefix(target, "../") {
		return "", false
	}
	return target, true
}
