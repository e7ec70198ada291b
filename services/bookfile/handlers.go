package bookfile

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"bookgate/pkg/crypto"
	"bookgate/pkg/entitlement"
	"bookgate/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const genericFailure = "Internal server error"

// getBookFile runs the delivery pipeline: resolve entitlement, load the
// archive, slice it for trials, seal it and write the encrypted response.
func (s *Server) getBookFile(c *gin.Context) {
	start := time.Now()
	ctx, span := startBookfileSpan(c.Request.Context(), "bookfile.GetBookFile")
	defer span.End()

	resolved := "none"
	defer func() {
		recordFileTelemetry(ctx, time.Since(start), resolved, c.Writer.Status())
	}()

	bookID, err := parseBookID(c.Param("id"))
	if err != nil {
		span.RecordError(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid book ID"})
		return
	}
	span.SetAttributes(attribute.String("book_id", bookID.String()))

	mode, err := entitlement.ParseAccessMode(c.Query("mode"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid mode, expected full or trial"})
		return
	}

	decision, book, err := s.resolver.Resolve(ctx, userFromContext(c), bookID, mode)
	if err != nil {
		s.handleLookupError(c, span, err)
		return
	}
	resolved = string(decision.ResolvedMode)
	span.SetAttributes(
		attribute.String("requested_mode", string(decision.RequestedMode)),
		attribute.String("resolved_mode", resolved),
	)

	if decision.Denied() {
		c.JSON(http.StatusForbidden, gin.H{
			"error":           "Purchase required to access the full book",
			"requirePurchase": true,
		})
		return
	}

	payload, err := s.preparePayload(ctx, book, decision.IsTrial())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "prepare payload")
		if errors.Is(err, models.ErrStorageUnavailable) || errors.Is(err, models.ErrObjectNotFound) {
			logger.Error("Failed to load file for book %s: %v", bookID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load book file"})
			return
		}
		logger.Error("Failed to prepare file for book %s: %v", bookID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": genericFailure})
		return
	}

	_, sealSpan := startBookfileSpan(ctx, "bookfile.Seal", attribute.Int("plaintext_bytes", len(payload)))
	sealed, err := s.seal(payload)
	sealSpan.End()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "seal")
		logger.Error("Failed to encrypt file for book %s: %v", bookID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to encrypt book file"})
		return
	}

	writeEncrypted(c, sealed, decision.IsTrial())
}

// getBookAccess reports what the caller could obtain without downloading
func (s *Server) getBookAccess(c *gin.Context) {
	ctx, span := startBookfileSpan(c.Request.Context(), "bookfile.GetBookAccess")
	defer span.End()

	bookID, err := parseBookID(c.Param("id"))
	if err != nil {
		span.RecordError(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid book ID"})
		return
	}

	summary, err := s.resolver.Summarize(ctx, userFromContext(c), bookID)
	if err != nil {
		s.handleLookupError(c, span, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    summary,
	})
}

// preparePayload returns the plaintext to seal. Full requests get the
// stored bytes unchanged; trials come from the cache or the extractor.
func (s *Server) preparePayload(ctx context.Context, book *models.Book, isTrial bool) ([]byte, error) {
	maxSections := s.extractor.MaxSections

	if isTrial {
		data, hit, err := s.cache.Get(ctx, book.ID, maxSections)
		if err != nil {
			logger.Warn("Trial cache read failed for book %s: %v", book.ID, err)
		}
		recordSliceCacheEvent(ctx, hit)
		if hit {
			return data, nil
		}
	}

	loadCtx, loadSpan := startBookfileSpan(ctx, "bookfile.LoadArchive", attribute.String("storage", s.loader.Kind()))
	raw, err := s.loader.Load(loadCtx, book.FilePath)
	loadSpan.End()
	if err != nil {
		return nil, err
	}

	if !isTrial {
		return raw, nil
	}

	sliceCtx, sliceSpan := startBookfileSpan(ctx, "bookfile.ExtractTrial", attribute.Int("max_sections", maxSections))
	defer sliceSpan.End()

	res, err := s.extractor.Extract(sliceCtx, raw)
	if err != nil {
		return nil, fmt.Errorf("trial extraction failed: %w", err)
	}
	sliceSpan.SetAttributes(
		attribute.Int("total_sections", res.TotalSections),
		attribute.Bool("fallback", res.Fallback),
	)

	if res.Fallback {
		// prefixes are never cached
		recordTrialFallback(ctx)
		logger.Warn("Trial for book %s degraded to a %d-byte prefix: %v", book.ID, len(res.Data), res.Cause)
		return res.Data, nil
	}

	if err := s.cache.Set(ctx, book.ID, maxSections, res.Data); err != nil {
		logger.Warn("Trial cache write failed for book %s: %v", book.ID, err)
	}
	return res.Data, nil
}

func (s *Server) handleLookupError(c *gin.Context, span trace.Span, err error) {
	switch {
	case errors.Is(err, models.ErrBookNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Book not found"})
	case errors.Is(err, models.ErrUnsupportedType):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Only ebooks can be delivered as files"})
	case errors.Is(err, models.ErrInvalidAccessMode):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid mode, expected full or trial"})
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, "lookup")
		logger.Error("Book lookup failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": genericFailure})
	}
}

// writeEncrypted emits the sealed body with its key token. The token is the
// key, so nothing downstream may cache or reinterpret the response.
func writeEncrypted(c *gin.Context, sealed *crypto.Sealed, isTrial bool) {
	h := c.Writer.Header()
	h.Set(crypto.EncryptedHeader, "true")
	h.Set(crypto.TokenHeader, sealed.Token)
	h.Set(crypto.TrialHeader, strconv.FormatBool(isTrial))
	h.Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
	h.Set("Pragma", "no-cache")
	h.Set("X-Frame-Options", "DENY")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Content-Security-Policy", "default-src 'none'")

	c.Data(http.StatusOK, "application/octet-stream", sealed.Ciphertext)
}

func parseBookID(id string) (uuid.UUID, error) {
	parsedID, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", models.ErrInvalidBookID, err)
	}
	return parsedID, nil
}
