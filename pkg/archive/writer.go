package archive

import (
	"archive/zip"
	"bytes"
	"fmt"
	"hash/crc32"

	"bookgate/pkg/models"
)

// WriteOptions controls serialization
type WriteOptions struct {
	// StoredFirst names an entry that must be written first and uncompressed.
	// Empty disables the constraint.
	StoredFirst string
}

// Write serializes entries in the given order. When opts.StoredFirst is set
// the named entry is moved to the front, written with zip.Store and checked
// after the archive is closed.
func Write(entries []*Entry, opts WriteOptions) ([]byte, error) {
	ordered := orderEntries(entries, opts.StoredFirst)

	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)

	for _, e := range ordered {
		var err error
		if opts.StoredFirst != "" && e.Name == opts.StoredFirst {
			err = writeStored(zw, e)
		} else {
			err = writeDeflated(zw, e)
		}
		if err != nil {
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, &models.Error{
			Code:    models.ErrCodeZipCloseFailed,
			Message: "failed to finalize archive",
			Err:     err,
		}
	}

	out := buf.Bytes()
	if opts.StoredFirst != "" {
		if err := verifyStoredFirst(out, opts.StoredFirst); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func orderEntries(entries []*Entry, first string) []*Entry {
	if first == "" {
		return entries
	}
	ordered := make([]*Entry, 0, len(entries))
	var head *Entry
	for _, e := range entries {
		if e.Name == first && head == nil {
			head = e
			continue
		}
		ordered = append(ordered, e)
	}
	if head == nil {
		return entries
	}
	return append([]*Entry{head}, ordered...)
}

// writeStored writes e without compression and without a trailing data
// descriptor, so the local header carries the final sizes.
func writeStored(zw *zip.Writer, e *Entry) error {
	header := &zip.FileHeader{
		Name:               e.Name,
		Method:             zip.Store,
		CRC32:              crc32.ChecksumIEEE(e.Data),
		CompressedSize64:   uint64(len(e.Data)),
		UncompressedSize64: uint64(len(e.Data)),
	}
	w, err := zw.CreateRaw(header)
	if err != nil {
		return &models.Error{
			Code:    models.ErrCodeZipCreateFailed,
			Message: "failed to create " + e.Name + " entry",
			Err:     err,
		}
	}
	if _, err := w.Write(e.Data); err != nil {
		return &models.Error{
			Code:    models.ErrCodeZipWriteFailed,
			Message: "failed to write " + e.Name,
			Err:     err,
		}
	}
	return nil
}

func writeDeflated(zw *zip.Writer, e *Entry) error {
	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:   e.Name,
		Method: zip.Deflate,
	})
	if err != nil {
		return &models.Error{
			Code:    models.ErrCodeZipCreateFailed,
			Message: "failed to create " + e.Name + " entry",
			Err:     err,
		}
	}
	if _, err := w.Write(e.Data); err != nil {
		return &models.Error{
			Code:    models.ErrCodeZipWriteFailed,
			Message: "failed to write " + e.Name,
			Err:     err,
		}
	}
	return nil
}

func verifyStoredFirst(data []byte, name string) error {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return &models.Error{
			Code:    models.ErrCodeZipWriteFailed,
			Message: "written archive is unreadable",
			Err:     err,
		}
	}
	if len(zr.File) == 0 {
		return &models.Error{
			Code:    models.ErrCodeZipWriteFailed,
			Message: "written archive is empty",
			Err:     ErrStoredEntryViolation,
		}
	}
	first := zr.File[0]
	if first.Name != name || first.Method != zip.Store {
		return &models.Error{
			Code:    models.ErrCodeZipWriteFailed,
			Message: fmt.Sprintf("first entry is %s (method %d), want stored %s", first.Name, first.Method, name),
			Err:     ErrStoredEntryViolation,
		}
	}
	return nil
}
