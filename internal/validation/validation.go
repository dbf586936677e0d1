package validation

import (
	"math"
	"regexp"
	"strings"

	"github.com/trunov/freshconnect-images/internal/entities"
)

// MaxImageBytes is the hard ceiling on raw uploads.
const MaxImageBytes = 10 * entities.MiB

var imageMediaType = regexp.MustCompile(`^image/[a-z0-9][a-z0-9.+-]*$`)

// Validate checks metadata only; it never decodes pixel data.
func Validate(input entities.ImageInput) error {
	mediaType := BaseMediaType(input.MediaType)
	if !imageMediaType.MatchString(mediaType) {
		return &entities.ValidationError{Kind: entities.NotAnImage, MediaType: input.MediaType}
	}

	if input.ByteLength > MaxImageBytes {
		return &entities.ValidationError{
			Kind:       entities.TooLarge,
			MediaType:  mediaType,
			SizeMB:     math.Round(float64(input.ByteLength)/float64(entities.MiB)*100) / 100,
			CeilingMiB: MaxImageBytes / entities.MiB,
		}
	}

	return nil
}

// BaseMediaType lowercases a media type and drops any parameters.
func BaseMediaType(mediaType string) string {
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = mediaType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}
