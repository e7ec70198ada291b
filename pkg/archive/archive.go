// Package archive reads and writes zip containers held in memory.
package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"bookgate/pkg/models"
)

var (
	ErrInvalidArchive       = errors.New("invalid zip archive")
	ErrDuplicateEntry       = errors.New("duplicate archive entry")
	ErrEntryTooLarge        = errors.New("archive entry exceeds size limit")
	ErrStoredEntryViolation = errors.New("stored entry is not first or is compressed")
)

// DefaultMaxEntrySize bounds the decompressed size of a single entry
const DefaultMaxEntrySize = 256 << 20

// Entry is a single file inside an archive
type Entry struct {
	Name   string
	Method uint16
	Data   []byte
}

// Archive is an ordered, read-only view of a zip container
type Archive struct {
	entries []*Entry
	index   map[string]int
}

// Open parses data as a zip container. Directory entries are skipped and
// entry order is preserved.
func Open(data []byte) (*Archive, error) {
	return OpenLimited(data, DefaultMaxEntrySize)
}

// OpenLimited is Open with an explicit per-entry decompressed size limit
func OpenLimited(data []byte, maxEntrySize int64) (*Archive, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &models.Error{
			Code:    models.ErrCodeInvalidArchive,
			Message: "failed to read zip directory",
			Err:     fmt.Errorf("%w: %v", ErrInvalidArchive, err),
		}
	}

	a := &Archive{
		entries: make([]*Entry, 0, len(zr.File)),
		index:   make(map[string]int, len(zr.File)),
	}

	for _, f := range zr.File {
		if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") {
			continue
		}
		if _, dup := a.index[f.Name]; dup {
			return nil, &models.Error{
				Code:    models.ErrCodeInvalidArchive,
				Message: "entry " + f.Name + " appears more than once",
				Err:     ErrDuplicateEntry,
			}
		}

		content, err := readEntry(f, maxEntrySize)
		if err != nil {
			return nil, &models.Error{
				Code:    models.ErrCodeInvalidArchive,
				Message: "failed to read entry " + f.Name,
				Err:     err,
			}
		}

		a.index[f.Name] = len(a.entries)
		a.entries = append(a.entries, &Entry{
			Name:   f.Name,
			Method: f.Method,
			Data:   content,
		})
	}

	return a, nil
}

func readEntry(f *zip.File, limit int64) ([]byte, error) {
	if limit > 0 && f.UncompressedSize64 > uint64(limit) {
		return nil, ErrEntryTooLarge
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}
	defer rc.Close()

	r := io.Reader(rc)
	if limit > 0 {
		// header sizes are not trusted
		r = io.LimitReader(rc, limit+1)
	}

	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}
	if limit > 0 && int64(len(content)) > limit {
		return nil, ErrEntryTooLarge
	}
	return content, nil
}

// Entry returns the named entry
func (a *Archive) Entry(name string) (*Entry, bool) {
	i, ok := a.index[name]
	if !ok {
		return nil, false
	}
	return a.entries[i], true
}

// Has reports whether the archive contains name
func (a *Archive) Has(name string) bool {
	_, ok := a.index[name]
	return ok
}

// Names returns entry names in archive order
func (a *Archive) Names() []string {
	names := make([]string, len(a.entries))
	for i, e := range a.entries {
		names[i] = e.Name
	}
	return names
}

// Entries returns the entries in archive order
func (a *Archive) Entries() []*Entry {
	return a.entries
}

func (a *Archive) Len() int {
	return len(a.entries)
}
