package epub

import (
	"archive/zip"
	"fmt"

	"bookgate/pkg/archive"
	"bookgate/pkg/models"
)

// Validate checks the structural rules a reading system relies on to open
// the container: a leading stored mimetype when one is present, the
// container pointer, a parseable package document, an archive entry for
// every manifest item, and a manifest item for every id the spine toc or the
// cover meta names.
func Validate(arc *archive.Archive) (*Package, error) {
	if arc.Has(MimetypeFile) {
		first := arc.Entries()[0]
		if first.Name != MimetypeFile || first.Method != zip.Store {
			return nil, inconsistent("mimetype must be the first entry and stored")
		}
	}

	if !arc.Has(ContainerFile) {
		return nil, inconsistent("missing %s", ContainerFile)
	}

	pkg, err := Parse(arc)
	if err != nil {
		return nil, err
	}

	for _, it := range pkg.Items {
		if !arc.Has(it.Path) {
			return nil, inconsistent("manifest item %q has no entry", it.ID)
		}
	}

	if pkg.Toc != "" {
		if _, ok := pkg.Item(pkg.Toc); !ok {
			return nil, inconsistent("spine toc %q is not a manifest item", pkg.Toc)
		}
	}

	if id := pkg.Metadata.CoverID; id != "" {
		if _, ok := pkg.Item(id); !ok {
			return nil, inconsistent("cover meta %q is not a manifest item", id)
		}
	}

	return pkg, nil
}

func inconsistent(format string, args ...interface{}) error {
	return &models.Error{
		Code:    models.ErrCodeInvalidManifest,
		Message: fmt.Sprintf(format, args...),
		Err:     ErrInconsistentArchive,
	}
}
