package trial

import (
	"context"
	"errors"

	"bookgate/pkg/archive"
	"bookgate/pkg/epub"
	"bookgate/pkg/models"
)

// Result is the outcome of a trial extraction
type Result struct {
	Data []byte
	// Sections is the number of spine documents the trial exposes
	Sections int
	// TotalSections is the spine length of the source, zero when unknown
	TotalSections int
	// Whole is set when the source already fits within the bound and is
	// returned unchanged
	Whole bool
	// Fallback is set when Data is a raw byte prefix rather than a valid
	// archive; Cause holds the reason
	Fallback bool
	Cause    error
}

// Extractor turns raw EPUB bytes into trial bytes
type Extractor struct {
	MaxSections   int
	FallbackBytes int
}

// NewExtractor returns an Extractor with the given bounds, substituting the
// defaults for non-positive values.
func NewExtractor(maxSections, fallbackBytes int) *Extractor {
	if maxSections < 1 {
		maxSections = DefaultMaxSections
	}
	if fallbackBytes < 1 {
		fallbackBytes = DefaultFallbackBytes
	}
	return &Extractor{
		MaxSections:   maxSections,
		FallbackBytes: fallbackBytes,
	}
}

// Extract parses and slices raw. Malformed sources and slices that fail
// their self-check degrade to a byte prefix of raw; the only errors returned
// are context cancellation and an invalid bound.
func (e *Extractor) Extract(ctx context.Context, raw []byte) (*Result, error) {
	if e.MaxSections < 1 {
		return nil, ErrInvalidBound
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	arc, err := archive.Open(raw)
	if err != nil {
		return e.fallback(raw, 0, err), nil
	}

	pkg, err := epub.Parse(arc)
	if err != nil {
		return e.fallback(raw, 0, err), nil
	}

	total := len(pkg.Spine)
	if total <= e.MaxSections {
		return &Result{
			Data:          raw,
			Sections:      total,
			TotalSections: total,
			Whole:         true,
		}, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out, err := Slice(arc, pkg, e.MaxSections)
	if err != nil {
		if degradable(err) {
			return e.fallback(raw, total, err), nil
		}
		return nil, err
	}

	return &Result{
		Data:          out,
		Sections:      e.MaxSections,
		TotalSections: total,
	}, nil
}

func (e *Extractor) fallback(raw []byte, total int, cause error) *Result {
	n := min(len(raw), e.FallbackBytes)
	return &Result{
		Data:          raw[:n:n],
		TotalSections: total,
		Fallback:      true,
		Cause:         cause,
	}
}

func degradable(err error) bool {
	return errors.Is(err, models.ErrMalformedArchive) ||
		errors.Is(err, models.ErrSliceSelfCheck) ||
		errors.Is(err, archive.ErrInvalidArchive)
}
