package encoder

import (
	"encoding/base64"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/trunov/freshconnect-images/internal/entities"
)

// InlineCeiling bounds the length of an inline payload rendered as a data URI.
const InlineCeiling = 500 * entities.KiB

// InlineLength is the length of the data URI for n payload bytes.
func InlineLength(mediaType string, n int) int {
	return len("data:") + len(mediaType) + len(";base64,") + base64.StdEncoding.EncodedLen(n)
}

func FitsInline(mediaType string, n int) bool {
	return InlineLength(mediaType, n) <= InlineCeiling
}

// Encode turns transformed bytes into an inline payload, or a placeholder
// when the bytes are missing, not an image, or too large to inline.
func Encode(img entities.TransformedImage) entities.Representation {
	if len(img.Data) == 0 {
		return Placeholder(entities.ReasonCorrupt, "")
	}

	mediaType := strings.ToLower(img.MediaType)
	if !strings.HasPrefix(mediaType, "image/") {
		mediaType = mimetype.Detect(img.Data).String()
		if !strings.HasPrefix(mediaType, "image/") {
			return Placeholder(entities.ReasonCorrupt, "")
		}
	}

	if !FitsInline(mediaType, len(img.Data)) {
		return Placeholder(entities.ReasonTooLargeForInline, "")
	}

	return entities.Inline(mediaType, base64.StdEncoding.EncodeToString(img.Data))
}

// ProcessingError wraps an absorbed failure into a captioned placeholder.
func ProcessingError(err error) entities.Representation {
	msg := "unknown"
	if err != nil {
		msg = err.Error()
	}
	return Placeholder(entities.ReasonProcessingError, msg)
}
