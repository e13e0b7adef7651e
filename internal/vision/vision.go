// Package vision defines the boundary contract to the external image-analysis
// capability and the normalization of its raw output into domain violations.
package vision

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	// Raster formats accepted for analysis. Registering the decoders lets
	// ValidateImage confirm the payload is actually a parseable image rather
	// than trusting the declared content type.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/siteguardhq/siteguard/internal/domain"
)

// DefaultRequestTimeout bounds a single analysis call.
const DefaultRequestTimeout = 10 * time.Second

// MaxImageSize is the maximum accepted image size in bytes (20MB).
const MaxImageSize = 20 * 1024 * 1024

// AnalyzeParams contains parameters for image analysis.
type AnalyzeParams struct {
	ImageData   []byte // Raw image bytes
	ContentType string // MIME type (e.g. "image/jpeg")
	Context     string // Optional context provided by the inspector
}

// Analyzer is the contract to the external image-analysis capability.
//
// Implementations are stateless: each invocation is independent, bounded by
// the configured timeout, and retried at most once on transient network
// failure. A repeated call simply produces a fresh, independent result.
type Analyzer interface {
	Analyze(ctx context.Context, params AnalyzeParams) ([]domain.Violation, error)
}

// Error codes for analysis operations
var (
	// ErrAnalysisTimeout indicates the analysis exceeded its deadline.
	ErrAnalysisTimeout = errors.New("image analysis timed out")

	// ErrAnalysisMalformed indicates the adapter returned data that failed
	// schema validation beyond what per-violation repair could fix.
	ErrAnalysisMalformed = errors.New("analysis result is malformed")

	// ErrInvalidImage indicates the image format or content is unsupported.
	ErrInvalidImage = errors.New("invalid or unsupported image")

	// ErrRateLimit indicates the provider rate limit has been exceeded.
	ErrRateLimit = errors.New("analysis provider rate limit exceeded")

	// ErrUnavailable indicates the provider is temporarily unavailable.
	ErrUnavailable = errors.New("analysis provider temporarily unavailable")

	// ErrUnauthorized indicates invalid provider credentials.
	ErrUnauthorized = errors.New("analysis provider authentication failed")
)

// IsTransient returns true for errors worth one immediate retry.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrRateLimit)
}

// IsTimeout returns true if the analysis exceeded its deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrAnalysisTimeout)
}

// IsInvalidImage returns true if the image itself was rejected.
func IsInvalidImage(err error) bool {
	return errors.Is(err, ErrInvalidImage)
}

// IsMalformed returns true if the analysis result failed validation.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrAnalysisMalformed)
}

// ProviderConfig contains common configuration for analysis providers.
type ProviderConfig struct {
	RequestTimeout time.Duration // Timeout for a single analysis call
}

// ValidateImage checks that the payload is a supported raster image. The
// declared content type must be on the allow list and the bytes must decode
// as an image header.
func ValidateImage(data []byte, contentType string) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty image data", ErrInvalidImage)
	}
	if len(data) > MaxImageSize {
		return fmt.Errorf("%w: image size %d exceeds maximum %d", ErrInvalidImage, len(data), MaxImageSize)
	}

	validTypes := map[string]bool{
		"image/jpeg": true,
		"image/png":  true,
		"image/gif":  true,
		"image/webp": true,
	}
	if !validTypes[contentType] {
		return fmt.Errorf("%w: unsupported content type %s", ErrInvalidImage, contentType)
	}

	// webp has no stdlib decoder; accept it on content type alone.
	if contentType == "image/webp" {
		return nil
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return nil
}
