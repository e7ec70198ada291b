package epub

import (
	"encoding/xml"
	"fmt"
	"strings"

	"bookgate/pkg/archive"
)

type containerXML struct {
	XMLName   xml.Name `xml:"container"`
	Rootfiles struct {
		Rootfile []rootfile `xml:"rootfile"`
	} `xml:"rootfiles"`
}

type rootfile struct {
	FullPath  string `xml:"full-path,attr"`
	MediaType string `xml:"media-type,attr"`
}

// locatePackage returns the entry name of the package document. The
// container pointer wins when it names an existing entry; otherwise the
// conventional default locations are tried.
func locatePackage(arc *archive.Archive) (string, error) {
	if entry, ok := arc.Entry(ContainerFile); ok {
		if p := rootfileFromContainer(entry.Data); p != "" && arc.Has(p) {
			return p, nil
		}
	}

	for _, p := range DefaultPackagePaths {
		if arc.Has(p) {
			return p, nil
		}
	}

	return "", ErrNoPackage
}

func rootfileFromContainer(data []byte) string {
	var c containerXML
	if err := xml.Unmarshal(data, &c); err != nil {
		return ""
	}

	for _, rf := range c.Rootfiles.Rootfile {
		if rf.FullPath != "" && (rf.MediaType == PackageMediaType || rf.MediaType == "") {
			return resolveRef("", rf.FullPath)
		}
	}
	if len(c.Rootfiles.Rootfile) > 0 {
		return resolveRef("", c.Rootfiles.Rootfile[0].FullPath)
	}
	return ""
}

// ContainerXML renders a minimal container.xml pointing at opfPath
func ContainerXML(opfPath string) []byte {
	escaped := new(strings.Builder)
	_ = xml.EscapeText(escaped, []byte(opfPath))
	return []byte(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="%s" media-type="%s"/>
  </rootfiles>
</container>
`, escaped.String(), PackageMediaType))
}
